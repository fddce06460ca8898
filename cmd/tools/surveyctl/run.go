package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/survey-runner/backend/internal/client"
	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
	"github.com/zhouzirui/survey-runner/backend/internal/runner"
)

var (
	runServer  string
	runSession string
	runAnswers string
	runLegacy  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one survey session against a server",
	Long: `Loads the trial set of --session from the server, answers it from
--answers and saves the responses, printing every lifecycle step.

Example:
  surveyctl run --server http://localhost:8080 --session s-42 --answers answers.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		answers, err := loadAnswers(runAnswers)
		if err != nil {
			return fmt.Errorf("load answers: %w", err)
		}

		server := runServer
		if server == "" {
			server = cfg.Client.BaseURL
		}
		sessionID := runSession
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		trialsPath, responsesPath := client.DefaultTrialsPath, client.DefaultResponsesPath
		if runLegacy {
			trialsPath, responsesPath = "/fetchTrials.php", "/saveResponses.php"
		}

		c := client.New(server, client.WithTimeout(cfg.Client.Timeout), client.WithLogger(logger))
		sess := runner.New(sessionID,
			client.NewTrialLoader(c, trialsPath),
			&scriptedRenderer{answers: answers, logger: logger},
			client.NewPersister(c, responsesPath),
			runner.Options{
				MinInterim: cfg.Session.InterimDelay,
				Observers:  []runner.Observer{printEvent(cmd)},
				Logger:     logger,
			})

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		out, err := sess.Run(ctx)
		if err != nil {
			logger.Error("session did not complete", zap.String("session", sessionID), zap.Error(err))
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d pages, %d answers, success=%t\n",
			sessionID, len(out.Pages), len(out.Responses), out.Result.Success)
		return nil
	},
}

func printEvent(cmd *cobra.Command) runner.Observer {
	return func(ev survey.Event) {
		if ev.Detail != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s)\n", ev.From, ev.State, ev.Detail)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", ev.From, ev.State)
	}
}

func init() {
	runCmd.Flags().StringVar(&runServer, "server", "", "Server base URL (default $SURVEY_SERVER)")
	runCmd.Flags().StringVar(&runSession, "session", "", "Session id (default: random)")
	runCmd.Flags().StringVar(&runAnswers, "answers", "", "YAML mapping of question name to answer")
	runCmd.Flags().BoolVar(&runLegacy, "legacy", false, "Use the fetchTrials.php/saveResponses.php endpoints")
}
