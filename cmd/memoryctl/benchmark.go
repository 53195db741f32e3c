package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/usermemory/internal/providers"
)

// benchmarkSample is one LoCoMo sample as exported by the benchmark harness.
type benchmarkSample struct {
	SampleID string                    `json:"sampleId"`
	UserID   string                    `json:"userId"`
	Parts    []providers.BenchmarkPart `json:"parts"`
}

func newRenderBenchmarkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render-benchmark [file]",
		Short: "Print the extraction context of a benchmark sample",
		Long: `Render a LoCoMo benchmark sample exactly as the extractors would see it.

The sample is read from file, or from stdin when file is "-" or omitted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			var sample benchmarkSample
			if err := json.NewDecoder(r).Decode(&sample); err != nil {
				return fmt.Errorf("decoding sample: %w", err)
			}
			if sample.SampleID == "" {
				return errors.New("sample has no sampleId")
			}

			out, err := providers.NewBenchmarkProvider(sample.SampleID, sample.Parts).Render(sample.SampleID, sample.UserID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	return cmd
}
