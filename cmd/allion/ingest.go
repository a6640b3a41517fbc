package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/allionai/allion/pkg/ingest"
	"github.com/allionai/allion/pkg/processor"
)

var ingestForce bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build the vector store from the PDF directory",
	Long: `Reads every PDF under the configured directory, chunks the text, embeds
the chunks, and writes them into the vector store. A hash manifest skips
re-ingestion when nothing changed; --force deletes the store and rebuilds it
from scratch.`,
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

		bar := getProgressBar(-1, " Ingesting PDF manuals")
		pipeline := ingest.New(ingest.Config{
			PDFDir:   cfg.Ingest.PDFDir,
			StateDir: cfg.Store.Dir,
			OnProgress: func(stage string, done int) {
				bar.Describe(color.BlueString(" Ingesting PDF manuals (%s)", stage))
				bar.Set(done)
			},
		}, &proc, vectorStore)

		count, err := pipeline.Reingest(ctx, ingestForce)
		bar.Finish()
		if err != nil {
			return err
		}

		color.Green("✓ Vector store ready with %d chunks\n", count)
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "delete the store and reingest everything")
	rootCmd.AddCommand(ingestCmd)
}
