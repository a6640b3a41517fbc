package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/allionai/allion/internal/types"
	"github.com/allionai/allion/pkg/assistant"
	"github.com/allionai/allion/pkg/config"
	"github.com/allionai/allion/pkg/llm"
	"github.com/allionai/allion/pkg/store"
	"github.com/allionai/allion/pkg/websearch"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "allion",
	Short: "Allion: voice-enabled automotive repair assistant",
	Long: `Allion answers automotive diagnostic and repair questions from a local
knowledge base of PDF manuals, falling back to trusted online repair
resources. It runs as a terminal chat, an HTTP/WebSocket API, or a LiveKit
voice agent.`,
}

// Execute is the entry point called by main.main().
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default allion.yaml)")
}

func loadConfig() {
	c, err := config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Failed to load config: %v", err))
		os.Exit(1)
	}

	if errs := c.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, color.RedString("Config: %s", e.Error()))
		}
		os.Exit(1)
	}

	cfg = c
}

func buildEmbedder() (*llm.Embedder, error) {
	return llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:   cfg.Embedding.Model,
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
	})
}

func buildStore(ctx context.Context, embedder types.Embedder) (types.VectorStore, error) {
	switch cfg.Store.Backend {
	case "pgvector":
		return store.NewPGVectorWithConfig(ctx, store.PGVectorConfig{
			ConnString: cfg.Store.URL,
			TableName:  cfg.Store.TableName,
			VectorDim:  cfg.Store.VectorDim,
			BatchSize:  cfg.Store.BatchSize,
			SearchK:    cfg.Store.SearchK,
			Embedder:   embedder,
		})
	default:
		return store.NewLocalWithConfig(store.LocalStoreConfig{
			Dir:        cfg.Store.Dir,
			EmbedModel: cfg.Embedding.Model,
			SearchK:    cfg.Store.SearchK,
			BatchSize:  cfg.Store.BatchSize,
			Embedder:   embedder,
		})
	}
}

func buildChat() (*llm.ChatEngine, error) {
	return llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
	})
}

func buildAssistant(embedder types.Embedder, vectorStore types.VectorStore, chat *llm.ChatEngine) *assistant.Assistant {
	var searcher assistant.WebSearcher
	if cfg.WebSearch.Enabled {
		searcher = websearch.NewWithConfig(websearch.SearcherConfig{
			MaxResults: cfg.WebSearch.MaxResults,
			Timeout:    time.Duration(cfg.WebSearch.TimeoutSeconds) * time.Second,
			RateLimit:  cfg.WebSearch.RateLimit,
		})
	}

	return assistant.New(assistant.Config{
		SearchK:          cfg.Store.SearchK,
		WebSearchEnabled: cfg.WebSearch.Enabled,
		MaxWebResults:    cfg.WebSearch.MaxResults,
	}, embedder, vectorStore, chat, searcher)
}

func serverPort() int {
	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil {
		return 8080
	}
	return port
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
