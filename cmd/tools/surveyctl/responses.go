package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	responsesSession string
	responsesFormat  string
)

var responsesCmd = &cobra.Command{
	Use:   "responses",
	Short: "List stored responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		st, err := openSQLite()
		if err != nil {
			return err
		}
		defer st.Close()

		rows, err := st.ListResponses(ctx, responsesSession)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		switch responsesFormat {
		case "json":
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		case "yaml":
			enc := yaml.NewEncoder(w)
			defer enc.Close()
			return enc.Encode(rows)
		default:
			return fmt.Errorf("unknown format %q", responsesFormat)
		}
	},
}

func init() {
	responsesCmd.Flags().StringVar(&responsesSession, "session", "", "Only list rows of this session")
	responsesCmd.Flags().StringVarP(&responsesFormat, "output", "o", "yaml", "Output format: yaml or json")
}
