package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/allionai/allion/internal/types"
	"github.com/allionai/allion/pkg/assistant"
	"github.com/allionai/allion/pkg/livekit"
)

const (
	topicChat   = "chat"
	topicAudio  = "audio"
	topicConfig = "config"
	topicImages = "images"

	debounceDelay  = time.Second
	utteranceGrace = 100 * time.Millisecond
)

// VisionResponder answers questions about shared images.
type VisionResponder interface {
	Describe(ctx context.Context, query, imageURL string) (string, error)
}

type Config struct {
	RoomName        string
	Identity        string
	DefaultLanguage string
	MaxAnswerChars  int
	// LanguageWait bounds how long the agent waits for a participant to pick
	// a language before falling back to the default.
	LanguageWait time.Duration
	// TurnDebounce is the quiet period after a transcript before the buffered
	// text is treated as a complete turn.
	TurnDebounce time.Duration
}

// chatMessage is published on the chat data topic.
type chatMessage struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	SourceType string  `json:"source_type,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// audioMessage carries synthesized speech over the audio data topic.
type audioMessage struct {
	Type       string `json:"type"`
	Audio      string `json:"audio"`
	SampleRate int    `json:"sampleRate"`
}

// configMessage is sent by the frontend to select a session language.
type configMessage struct {
	Language string `json:"language"`
}

// imageUpload carries a shared image over the images data topic.
type imageUpload struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Agent joins a room, listens to participant audio, answers through the
// assistant pipeline, and speaks the answers back.
type Agent struct {
	config    Config
	client    *livekit.Client
	responder types.Responder
	describer VisionResponder
	vision    *VisionBuffer

	// Per-language session factories. The transcriber and speaker are built
	// once the session language is known.
	newTranscriber func(lang Language) types.Transcriber
	newSpeaker     func(lang Language) types.Speaker

	room        *lksdk.Room
	transcriber types.Transcriber
	speaker     types.Speaker

	langCh chan string

	mu            sync.Mutex
	transcriptBuf strings.Builder
	debounce      *time.Timer
	closed        bool

	ctx    context.Context
	cancel context.CancelFunc
}

func New(config Config, client *livekit.Client, responder types.Responder,
	newTranscriber func(lang Language) types.Transcriber,
	newSpeaker func(lang Language) types.Speaker) *Agent {

	if config.Identity == "" {
		config.Identity = "allion-agent"
	}
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = "en"
	}
	if config.MaxAnswerChars == 0 {
		config.MaxAnswerChars = 500
	}
	if config.LanguageWait == 0 {
		config.LanguageWait = 8 * time.Second
	}
	if config.TurnDebounce == 0 {
		config.TurnDebounce = debounceDelay
	}

	return &Agent{
		config:         config,
		client:         client,
		responder:      responder,
		vision:         NewVisionBuffer(),
		newTranscriber: newTranscriber,
		newSpeaker:     newSpeaker,
		langCh:         make(chan string, 4),
	}
}

// WithVision enables image handling through the given responder.
func (a *Agent) WithVision(describer VisionResponder) *Agent {
	a.describer = describer
	return a
}

// Start joins the room, resolves the session language, and runs the voice
// pipeline until the context is cancelled or Stop is called.
func (a *Agent) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	callback := &lksdk.RoomCallback{
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: a.onTrackSubscribed,
			OnDataPacket:      a.onDataPacket,
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			log.Printf("agent: participant connected: %s", rp.Identity())
			a.offerLanguage(languageFromMetadata(rp.Metadata()))
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			log.Printf("agent: participant disconnected: %s", rp.Identity())
		},
	}

	room, err := a.client.Join(a.config.RoomName, a.config.Identity, callback)
	if err != nil {
		return fmt.Errorf("agent join: %w", err)
	}
	a.room = room
	log.Printf("agent: joined room %s as %s", a.config.RoomName, a.config.Identity)

	for _, rp := range room.GetRemoteParticipants() {
		a.offerLanguage(languageFromMetadata(rp.Metadata()))
	}

	lang := a.waitForLanguage()
	log.Printf("agent: session language: %s", lang.Code)

	a.mu.Lock()
	a.transcriber = a.newTranscriber(lang)
	a.speaker = a.newSpeaker(lang)
	a.mu.Unlock()

	if err := a.transcriber.Connect(a.ctx); err != nil {
		return fmt.Errorf("agent stt connect: %w", err)
	}

	go a.forwardSpeech()
	go a.processTranscripts()

	a.publishChat(chatMessage{Type: "greeting", Text: lang.Greeting})
	if err := a.speaker.SendText(lang.Greeting); err != nil {
		log.Printf("agent: greeting synthesis failed: %v", err)
	}

	<-a.ctx.Done()
	return nil
}

// offerLanguage submits a candidate language code; unknown codes are ignored.
func (a *Agent) offerLanguage(code string) {
	if !SupportedLanguage(code) {
		return
	}
	select {
	case a.langCh <- code:
	default:
	}
}

func (a *Agent) waitForLanguage() Language {
	select {
	case code := <-a.langCh:
		return LookupLanguage(code)
	case <-time.After(a.config.LanguageWait):
		log.Printf("agent: no language selected, defaulting to %s", a.config.DefaultLanguage)
		return LookupLanguage(a.config.DefaultLanguage)
	case <-a.ctx.Done():
		return LookupLanguage(a.config.DefaultLanguage)
	}
}

// languageFromMetadata parses a language selection out of participant
// metadata, which the frontend sets to a JSON object.
func languageFromMetadata(metadata string) string {
	if metadata == "" {
		return ""
	}
	var msg configMessage
	if err := json.Unmarshal([]byte(metadata), &msg); err != nil {
		return ""
	}
	return strings.ToLower(msg.Language)
}

func (a *Agent) onDataPacket(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
	pkt, ok := data.(*lksdk.UserDataPacket)
	if !ok {
		return
	}

	switch pkt.Topic {
	case topicConfig:
		var msg configMessage
		if err := json.Unmarshal(pkt.Payload, &msg); err != nil {
			log.Printf("agent: bad config packet from %s: %v", params.SenderIdentity, err)
			return
		}
		a.offerLanguage(strings.ToLower(msg.Language))

	case topicImages:
		a.handleImage(pkt.Payload, params.SenderIdentity)
	}
}

func (a *Agent) handleImage(payload []byte, sender string) {
	if a.describer == nil {
		return
	}

	var upload imageUpload
	if err := json.Unmarshal(payload, &upload); err != nil {
		log.Printf("agent: bad image packet from %s: %v", sender, err)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(upload.Data)
	if err != nil {
		log.Printf("agent: image decode from %s: %v", sender, err)
		return
	}

	if err := a.vision.AddImage(raw, upload.MimeType); err != nil {
		log.Printf("agent: image from %s rejected: %v", sender, err)
	}
}

func (a *Agent) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	log.Printf("agent: subscribed to audio track from %s (%s)", rp.Identity(), track.Codec().MimeType)
	go a.readAudioTrack(track)
}

func (a *Agent) readAudioTrack(track *webrtc.TrackRemote) {
	for {
		a.mu.Lock()
		closed := a.closed
		a.mu.Unlock()
		if closed {
			return
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			log.Printf("agent: rtp read ended: %v", err)
			return
		}

		payload := pkt.Payload
		// RED wraps the primary opus payload behind a 4 byte block header.
		if track.Codec().MimeType == "audio/red" && len(payload) > 4 {
			payload = payload[4:]
		}

		a.sendAudio(payload)
	}
}

// sendAudio forwards an audio payload to the transcriber. Tracks can be
// subscribed before the session language is resolved, so the transcriber may
// not exist yet.
func (a *Agent) sendAudio(payload []byte) {
	a.mu.Lock()
	transcriber := a.transcriber
	a.mu.Unlock()

	if transcriber == nil || len(payload) == 0 {
		return
	}
	if err := transcriber.SendAudio(payload); err != nil {
		log.Printf("agent: stt send: %v", err)
	}
}

// forwardSpeech relays synthesized audio chunks to the room.
func (a *Agent) forwardSpeech() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case pcm, ok := <-a.speaker.AudioChannel():
			if !ok {
				return
			}
			if len(pcm) == 0 {
				continue
			}

			msg := audioMessage{
				Type:       "audio",
				Audio:      base64.StdEncoding.EncodeToString(pcm),
				SampleRate: 44100,
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			a.publishData(payload, topicAudio)
		}
	}
}

// processTranscripts accumulates final transcripts and fires a turn after the
// utterance ends or the debounce window closes.
func (a *Agent) processTranscripts() {
	go func() {
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-a.transcriber.UtteranceEnd():
				a.mu.Lock()
				if a.debounce != nil {
					a.debounce.Stop()
				}
				a.debounce = time.AfterFunc(utteranceGrace, a.handleTurn)
				a.mu.Unlock()
			}
		}
	}()

	for {
		select {
		case <-a.ctx.Done():
			return
		case transcript, ok := <-a.transcriber.Transcripts():
			if !ok {
				return
			}
			if transcript == "" {
				continue
			}

			a.mu.Lock()
			if a.transcriptBuf.Len() > 0 {
				a.transcriptBuf.WriteString(" ")
			}
			a.transcriptBuf.WriteString(transcript)
			if a.debounce != nil {
				a.debounce.Stop()
			}
			a.debounce = time.AfterFunc(a.config.TurnDebounce, a.handleTurn)
			a.mu.Unlock()
		}
	}
}

// handleTurn runs one full user turn through the pipeline.
func (a *Agent) handleTurn() {
	a.mu.Lock()
	utterance := strings.TrimSpace(a.transcriptBuf.String())
	a.transcriptBuf.Reset()
	a.mu.Unlock()

	if utterance == "" {
		return
	}
	log.Printf("agent: user turn: %s", utterance)

	// The user may still be interrupting a previous answer.
	a.speaker.Cancel()

	a.publishChat(chatMessage{Type: "transcript", Text: utterance})

	text, sourceType, confidence := a.answer(utterance)
	if text == "" {
		return
	}

	spoken := assistant.FormatForVoice(text, a.config.MaxAnswerChars)

	a.publishChat(chatMessage{
		Type:       "answer",
		Text:       text,
		SourceType: sourceType,
		Confidence: confidence,
	})

	if err := a.speaker.SendText(spoken); err != nil {
		log.Printf("agent: speech synthesis failed: %v", err)
	}
}

func (a *Agent) answer(utterance string) (text, sourceType string, confidence float64) {
	// A buffered image routes the turn through the vision model.
	if a.describer != nil {
		if frame, ok := a.vision.TakeFrame(); ok {
			described, err := a.describer.Describe(a.ctx, utterance, frame)
			if err != nil {
				log.Printf("agent: vision turn failed: %v", err)
				return "", "", 0
			}
			return described, "vision", 0.7
		}
	}

	answer, err := a.responder.Process(a.ctx, utterance)
	if err != nil {
		log.Printf("agent: responder failed: %v", err)
		return "", "", 0
	}
	return answer.Text, answer.SourceType, answer.Confidence
}

func (a *Agent) publishChat(msg chatMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	a.publishData(payload, topicChat)
}

func (a *Agent) publishData(payload []byte, topic string) {
	if a.room == nil {
		return
	}
	err := a.room.LocalParticipant.PublishDataPacket(
		lksdk.UserData(payload),
		lksdk.WithDataPublishReliable(true),
		lksdk.WithDataPublishTopic(topic),
	)
	if err != nil {
		log.Printf("agent: publish on %s failed: %v", topic, err)
	}
}

// Vision exposes the frame buffer for track samplers.
func (a *Agent) Vision() *VisionBuffer {
	return a.vision
}

// Stop disconnects from the room and shuts the pipeline down.
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.debounce != nil {
		a.debounce.Stop()
	}
	a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	if a.room != nil {
		a.room.Disconnect()
	}
	if a.transcriber != nil {
		a.transcriber.Close()
	}
	if a.speaker != nil {
		a.speaker.Close()
	}
	log.Printf("agent: stopped")
}
