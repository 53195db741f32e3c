package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/usermemory/internal/app"
	"github.com/aiox-platform/usermemory/internal/config"
	"github.com/aiox-platform/usermemory/internal/memory"
)

func newReembedCommand() *cobra.Command {
	var (
		userID      string
		only        []string
		concurrency int
		limit       int
		since       string
		until       string
	)

	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "Regenerate stored vectors for a user",
		Example: `  # Re-embed everything
  memoryctl reembed --user 42

  # Only identities and contexts created in 2025
  memoryctl reembed --user 42 --only identities,contexts --since 2025-01-01 --until 2026-01-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := memory.ReembedInput{Concurrency: concurrency, Limit: limit}
			for _, t := range only {
				in.Only = append(in.Only, memory.ReembedTable(t))
			}
			var err error
			if in.StartDate, err = parseDate(since); err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			if in.EndDate, err = parseDate(until); err != nil {
				return fmt.Errorf("--until: %w", err)
			}

			return withApp(cmd.Context(), func(_ *config.Config, a *app.App) error {
				if err := a.Reembedder.Validate(in); err != nil {
					return err
				}
				res := a.Reembedder.Run(cmd.Context(), userID, in)
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return errors.New(res.Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringSliceVar(&only, "only", nil, "tables to process: userMemories, contexts, preferences, identities, experiences")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel embedding calls (1-50)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows per table")
	cmd.Flags().StringVar(&since, "since", "", "only rows created at or after this date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&until, "until", "", "only rows created before this date (YYYY-MM-DD or RFC3339)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. Empty is nil.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", s)
}
