package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/allionai/allion/pkg/ingest"
	"github.com/allionai/allion/pkg/processor"
)

var downloadFilesCmd = &cobra.Command{
	Use:   "download-files",
	Short: "Prefetch everything the agent needs before first run",
	Long: `Verifies the vector store against the PDF directory, builds it if it is
missing or stale, and warms the embedding endpoint so the first live session
does not pay cold-start latency.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		embedder, err := buildEmbedder()
		if err != nil {
			return err
		}
		vectorStore, err := buildStore(ctx, embedder)
		if err != nil {
			return err
		}
		defer vectorStore.Close()

		proc := processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:    cfg.Ingest.ChunkSize,
			ChunkOverlap: cfg.Ingest.ChunkOverlap,
		})

		pipeline := ingest.New(ingest.Config{
			PDFDir:   cfg.Ingest.PDFDir,
			StateDir: cfg.Store.Dir,
		}, &proc, vectorStore)

		stale, err := pipeline.Stale(ctx)
		if err != nil {
			return err
		}

		if stale {
			color.Yellow("Vector store missing or out of date, rebuilding")
			count, err := pipeline.Reingest(ctx, false)
			if err != nil {
				return err
			}
			color.Green("✓ Rebuilt vector store with %d chunks\n", count)
		} else {
			count, _ := vectorStore.Count(ctx)
			color.Green("✓ Vector store up to date (%d chunks)\n", count)
		}

		// Warm the embedding endpoint.
		spinner := getSpinner(" Warming embedding model...")
		_, err = embedder.CreateEmbedding(ctx, []string{"check engine light"})
		spinner.Finish()
		if err != nil {
			return err
		}
		color.Green("✓ Embedding endpoint reachable\n")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(downloadFilesCmd)
}
