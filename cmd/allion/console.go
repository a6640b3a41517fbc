package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Chat with the repair assistant in the terminal",
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

		chat, err := buildChat()
		if err != nil {
			return err
		}
		asst := buildAssistant(embedder, vectorStore, chat)

		if count, err := vectorStore.Count(ctx); err == nil && count == 0 {
			color.Yellow("Vector store is empty. Run 'allion ingest' first.")
		}

		color.Cyan("\nAllion automotive assistant (type 'exit' to quit)")

		scanner := bufio.NewScanner(os.Stdin)
		userPrompt := color.New(color.FgGreen).PrintfFunc()
		assistantPrompt := color.New(color.FgCyan).PrintfFunc()

		for {
			userPrompt("\nYou: ")
			if !scanner.Scan() {
				break
			}

			query := strings.TrimSpace(scanner.Text())
			if strings.ToLower(query) == "exit" {
				break
			}
			if query == "" {
				continue
			}

			spinner := getSpinner(" Thinking...")
			answer, err := asst.Process(ctx, query)
			spinner.Finish()

			if err != nil {
				color.Red("Error: %v\n", err)
				continue
			}

			assistantPrompt("\nAssistant: ")
			fmt.Printf("%s\n", answer.Text)

			if answer.SourceType != "" {
				color.Blue("\n[source: %s, confidence: %.1f]", answer.SourceType, answer.Confidence)
			}
			if len(answer.Sources) > 0 {
				color.Blue("[references: %s]", strings.Join(answer.Sources, ", "))
			}
			fmt.Println()
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
