package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/allionai/allion/pkg/ingest"
	"github.com/allionai/allion/pkg/processor"
	"github.com/allionai/allion/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant over HTTP and WebSocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		embedder, err := buildEmbedder()
		if err != nil {
			return err
		}
		vectorStore, err := buildStore(ctx, embedder)
		if err != nil {
			return err
		}
		defer vectorStore.Close()

		chat, err := buildChat()
		if err != nil {
			return err
		}
		asst := buildAssistant(embedder, vectorStore, chat)

		proc := processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:    cfg.Ingest.ChunkSize,
			ChunkOverlap: cfg.Ingest.ChunkOverlap,
		})
		pipeline := ingest.New(ingest.Config{
			PDFDir:   cfg.Ingest.PDFDir,
			StateDir: cfg.Store.Dir,
		}, &proc, vectorStore)

		srv := server.New(server.Config{
			Port:      serverPort(),
			Streaming: cfg.Server.Streaming,
			SearchK:   cfg.Store.SearchK,
		}, asst, vectorStore, embedder, chat).
			WithIngester(pipeline).
			WithHealth(asst)

		color.Cyan("Serving on :%d", serverPort())
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
