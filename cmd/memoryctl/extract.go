package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aiox-platform/usermemory/internal/app"
	"github.com/aiox-platform/usermemory/internal/config"
	"github.com/aiox-platform/usermemory/internal/extraction"
	inats "github.com/aiox-platform/usermemory/internal/nats"
	"github.com/aiox-platform/usermemory/internal/orchestrator"
)

func newExtractCommand() *cobra.Command {
	var (
		userIDs  []string
		topicIDs []string
		layers   []string
		since    string
		until    string
		force    bool
		queue    bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract memories from chat topics",
		Long: `Extract memories from chat topics.

By default the named topics run in this process, one after another. With
--queue the jobs are published to JetStream for the API server's consumer,
and omitting --topic enqueues every topic of the users in the date window.`,
		Example: `  # Run two topics now
  memoryctl extract --user 42 --topic t-1 --topic t-2

  # Re-run only the identity layer
  memoryctl extract --user 42 --topic t-1 --layers identity --force

  # Queue every topic from March
  memoryctl extract --user 42 --queue --since 2025-03-01 --until 2025-04-01`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := orchestrator.ExtractionPayload{
				UserIDs:     userIDs,
				TopicIDs:    topicIDs,
				Layers:      layers,
				ForceTopics: force,
			}
			var err error
			if payload.FromDate, err = parseDate(since); err != nil {
				return fmt.Errorf("--since: %w", err)
			}
			if payload.ToDate, err = parseDate(until); err != nil {
				return fmt.Errorf("--until: %w", err)
			}
			normalized, err := orchestrator.NormalizePayload(payload)
			if err != nil {
				return err
			}
			traceID := uuid.NewString()

			return withApp(cmd.Context(), func(cfg *config.Config, a *app.App) error {
				if !queue {
					results, err := a.Executor.RunDirect(cmd.Context(), normalized, traceID)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), results)
				}

				natsClient, err := inats.NewClient(cmd.Context(), cfg.NATS)
				if err != nil {
					return err
				}
				defer natsClient.Close()

				dispatcher := extraction.NewDispatcher(a.Topics, inats.NewPublisher(natsClient.JetStream()))
				res, err := dispatcher.Dispatch(cmd.Context(), normalized, traceID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().StringSliceVar(&userIDs, "user", nil, "user id, repeatable (required)")
	cmd.Flags().StringSliceVar(&topicIDs, "topic", nil, "topic id, repeatable")
	cmd.Flags().StringSliceVar(&layers, "layers", nil, "layers to run: identity, context, preference, experience")
	cmd.Flags().StringVar(&since, "since", "", "only topics created at or after this date")
	cmd.Flags().StringVar(&until, "until", "", "only topics created at or before this date")
	cmd.Flags().BoolVar(&force, "force", false, "re-run topics that were already extracted")
	cmd.Flags().BoolVar(&queue, "queue", false, "publish jobs to JetStream instead of running them here")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
