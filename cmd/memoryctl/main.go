package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/usermemory/internal/app"
	"github.com/aiox-platform/usermemory/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "memoryctl",
		Short:         "Operate the user memory service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `memoryctl runs maintenance tasks against the user memory store.

It reads the same environment variables and .env file as the API server.`,
	}

	cmd.AddCommand(
		newReembedCommand(),
		newExtractCommand(),
		newRenderBenchmarkCommand(),
		newTokenCommand(),
		newMigrateCommand(),
	)
	return cmd
}

// loadConfig reads configuration and installs the logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	app.SetupLogger(cfg.Log)
	return cfg, nil
}

// withApp builds the shared services for the duration of fn.
func withApp(ctx context.Context, fn func(cfg *config.Config, a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cfg, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
