package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/allionai/allion/internal/types"
	"github.com/allionai/allion/pkg/agent"
	"github.com/allionai/allion/pkg/livekit"
	"github.com/allionai/allion/pkg/stt"
	"github.com/allionai/allion/pkg/tts"
)

var devCreateRoom bool

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Run the LiveKit voice agent worker",
	Long: `Joins the configured LiveKit room as the agent, transcribes participant
speech, answers through the repair assistant, and speaks the answers back.
Stops on SIGINT or SIGTERM.`,
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

		client, err := livekit.NewClient(livekit.ClientConfig{
			URL:       cfg.LiveKit.URL,
			APIKey:    cfg.LiveKit.APIKey,
			APISecret: cfg.LiveKit.APISecret,
		})
		if err != nil {
			return err
		}

		if devCreateRoom {
			if err := client.CreateRoom(ctx, cfg.LiveKit.Room); err != nil {
				return err
			}
		}

		newTranscriber := func(lang agent.Language) types.Transcriber {
			return stt.NewTranscriber(stt.Config{
				APIKey:   cfg.Voice.DeepgramAPIKey,
				Language: lang.STTCode,
			})
		}
		newSpeaker := func(lang agent.Language) types.Speaker {
			return tts.NewSpeaker(tts.Config{
				APIKey:  cfg.Voice.CartesiaAPIKey,
				VoiceID: lang.VoiceID,
			})
		}

		worker := agent.New(agent.Config{
			RoomName:        cfg.LiveKit.Room,
			Identity:        cfg.LiveKit.AgentID,
			DefaultLanguage: cfg.LiveKit.Language,
			MaxAnswerChars:  cfg.Voice.MaxAnswerChars,
		}, client, asst, newTranscriber, newSpeaker).WithVision(chat)
		defer worker.Stop()

		color.Cyan("Voice agent joining room %s as %s", cfg.LiveKit.Room, cfg.LiveKit.AgentID)
		return worker.Start(ctx)
	},
}

func init() {
	devCmd.Flags().BoolVar(&devCreateRoom, "create-room", false, "create the room before joining")
	rootCmd.AddCommand(devCmd)
}
