package stt

import (
	"context"
	"fmt"
	"log"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
)

// Transcriber streams audio to Deepgram and emits final transcripts. It
// satisfies types.Transcriber.
type Transcriber struct {
	config       Config
	conn         *client.WSCallback
	transcripts  chan string
	utteranceEnd chan struct{}
}

type Config struct {
	APIKey string
	// Language is a Deepgram language code such as "en-US" or "hi".
	Language string
	Model    string
	// SampleRate of the linear16 audio the caller will send.
	SampleRate int
	// UtteranceEndMs is the silence window before an utterance is closed.
	UtteranceEndMs string
}

func NewTranscriber(config Config) *Transcriber {
	if config.Language == "" {
		config.Language = "en-US"
	}
	if config.Model == "" {
		config.Model = "nova-3"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.UtteranceEndMs == "" {
		config.UtteranceEndMs = "1500"
	}

	return &Transcriber{
		config:       config,
		transcripts:  make(chan string, 100),
		utteranceEnd: make(chan struct{}, 10),
	}
}

func (t *Transcriber) Connect(ctx context.Context) error {
	clientOptions := interfaces.ClientOptions{
		APIKey: t.config.APIKey,
	}

	tOptions := interfaces.LiveTranscriptionOptions{
		Model:          t.config.Model,
		Language:       t.config.Language,
		SmartFormat:    true,
		Encoding:       "linear16",
		SampleRate:     t.config.SampleRate,
		Channels:       1,
		InterimResults: true,
		UtteranceEndMs: t.config.UtteranceEndMs,
	}

	callback := &receiver{t: t}

	conn, err := client.NewWebSocketUsingCallback(ctx, "", &clientOptions, &tOptions, callback)
	if err != nil {
		return fmt.Errorf("deepgram websocket: %w", err)
	}
	t.conn = conn

	if ok := t.conn.Connect(); !ok {
		return fmt.Errorf("deepgram connect failed")
	}
	return nil
}

func (t *Transcriber) SendAudio(data []byte) error {
	if t.conn == nil {
		return nil
	}
	_, err := t.conn.Write(data)
	return err
}

func (t *Transcriber) Transcripts() <-chan string {
	return t.transcripts
}

func (t *Transcriber) UtteranceEnd() <-chan struct{} {
	return t.utteranceEnd
}

func (t *Transcriber) Close() error {
	if t.conn != nil {
		t.conn.Stop()
	}
	return nil
}

// receiver implements msginterfaces.LiveMessageCallback.
type receiver struct {
	t *Transcriber
}

func (r *receiver) Open(or *msginterfaces.OpenResponse) error {
	return nil
}

func (r *receiver) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if len(alt.Transcript) > 0 && mr.IsFinal {
		select {
		case r.t.transcripts <- alt.Transcript:
		default:
			log.Printf("stt: transcript channel full, dropping %q", alt.Transcript)
		}
	}
	return nil
}

func (r *receiver) Metadata(md *msginterfaces.MetadataResponse) error { return nil }

func (r *receiver) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error { return nil }

func (r *receiver) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	select {
	case r.t.utteranceEnd <- struct{}{}:
	default:
	}
	return nil
}

func (r *receiver) Close(cr *msginterfaces.CloseResponse) error { return nil }

func (r *receiver) Error(er *msginterfaces.ErrorResponse) error {
	log.Printf("stt: deepgram error: %s", er.Description)
	return nil
}

func (r *receiver) UnhandledEvent(byData []byte) error { return nil }
