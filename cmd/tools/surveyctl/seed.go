package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/survey-runner/backend/internal/cache"
	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
	surveyservice "github.com/zhouzirui/survey-runner/backend/internal/service/survey"
	"github.com/zhouzirui/survey-runner/backend/internal/store"
)

var (
	seedSession string
	seedFile    string
	seedDemo    bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Replace the trial set of a session",
	Long: `Reads a YAML list of jsPsych page definitions and stores it as the
trial set of --session. Sessions without their own set fall back to the
"default" set.

Cached trial sets are invalidated only in Redis (REDIS_URL). A server
running with its in-memory cache keeps serving the old set until
CACHE_TTL expires; set REDIS_URL on both sides or restart the server.

Example:
  surveyctl seed --session default --file trials.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var pages []survey.Page
		switch {
		case seedDemo:
			pages = store.Seed()
		case seedFile != "":
			data, err := os.ReadFile(seedFile)
			if err != nil {
				return err
			}
			pages, err = parsePages(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", seedFile, err)
			}
		default:
			return errors.New("either --file or --demo is required")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		st, err := openSQLite()
		if err != nil {
			return err
		}
		defer st.Close()

		opts := []surveyservice.Option{surveyservice.WithLogger(logger)}
		if cfg.Cache.RedisURL != "" {
			rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
			if err != nil {
				logger.Warn("redis unavailable, cached trial sets are left to expire", zap.Error(err))
			} else {
				defer rc.Close()
				opts = append(opts, surveyservice.WithCache(rc))
			}
		}

		svc := surveyservice.NewService(st, opts...)
		if err := svc.SeedTrials(ctx, seedSession, pages); err != nil {
			return err
		}

		logger.Info("trial set seeded",
			zap.String("session", seedSession),
			zap.Int("pages", len(pages)),
			zap.String("db", st.Path()))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedSession, "session", store.DefaultTrialSet, "Session whose trial set is replaced")
	seedCmd.Flags().StringVar(&seedFile, "file", "", "YAML file with a list of page definitions")
	seedCmd.Flags().BoolVar(&seedDemo, "demo", false, "Seed the built-in demo questionnaire")
}

func openSQLite() (*store.SQLiteStore, error) {
	if cfg.Store.InMemory() {
		return nil, errors.New("DB_PATH must name a SQLite file")
	}
	return store.OpenSQLite(cfg.Store.Path, store.WithAtomic(cfg.Store.Atomic), store.WithLogger(logger))
}

// parsePages converts a YAML sequence of mappings into JSON pages.
func parsePages(data []byte) ([]survey.Page, error) {
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("no pages defined")
	}

	pages := make([]survey.Page, 0, len(raw))
	for i, def := range raw {
		encoded, err := json.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, survey.Page(encoded))
	}
	return pages, nil
}
