package agent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allionai/allion/internal/models"
	"github.com/allionai/allion/internal/types"
)

// eventLog records pipeline events in order so tests can assert sequencing.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) waitFor(t *testing.T, prefix string, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, e := range l.snapshot() {
			if strings.HasPrefix(e, prefix) {
				return e
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no %q event within %v: %v", prefix, timeout, l.snapshot())
	return ""
}

type stubTranscriber struct {
	transcripts chan string
	utterances  chan struct{}
	log         *eventLog
}

func newStubTranscriber(log *eventLog) *stubTranscriber {
	return &stubTranscriber{
		transcripts: make(chan string, 10),
		utterances:  make(chan struct{}, 10),
		log:         log,
	}
}

func (s *stubTranscriber) Connect(ctx context.Context) error { return nil }
func (s *stubTranscriber) SendAudio(data []byte) error {
	s.log.add("audio:" + string(data))
	return nil
}
func (s *stubTranscriber) Transcripts() <-chan string    { return s.transcripts }
func (s *stubTranscriber) UtteranceEnd() <-chan struct{} { return s.utterances }
func (s *stubTranscriber) Close() error                  { return nil }

type stubSpeaker struct {
	audio chan []byte
	log   *eventLog
}

func newStubSpeaker(log *eventLog) *stubSpeaker {
	return &stubSpeaker{audio: make(chan []byte), log: log}
}

func (s *stubSpeaker) SendText(text string) error {
	s.log.add("speak:" + text)
	return nil
}
func (s *stubSpeaker) AudioChannel() <-chan []byte { return s.audio }
func (s *stubSpeaker) Cancel()                     { s.log.add("cancel") }
func (s *stubSpeaker) Close()                      {}

type stubResponder struct {
	log    *eventLog
	answer *models.Answer
}

func (s *stubResponder) Process(ctx context.Context, query string) (*models.Answer, error) {
	s.log.add("process:" + query)
	return s.answer, nil
}

func newTestAgent(t *testing.T, log *eventLog, tr *stubTranscriber, sp *stubSpeaker, debounce time.Duration) *Agent {
	t.Helper()

	responder := &stubResponder{
		log: log,
		answer: &models.Answer{
			Text:       "Replace the ignition coil.",
			SourceType: "docs",
			Confidence: 0.7,
		},
	}

	a := New(Config{
		RoomName:     "workshop",
		TurnDebounce: debounce,
		LanguageWait: 50 * time.Millisecond,
	}, nil, responder,
		func(Language) types.Transcriber { return tr },
		func(Language) types.Speaker { return sp })

	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.mu.Lock()
	a.transcriber = tr
	a.speaker = sp
	a.mu.Unlock()
	t.Cleanup(a.cancel)

	return a
}

func TestAgent_TurnFiresAfterDebounce(t *testing.T) {
	log := &eventLog{}
	tr := newStubTranscriber(log)
	sp := newStubSpeaker(log)
	a := newTestAgent(t, log, tr, sp, 100*time.Millisecond)

	go a.processTranscripts()

	tr.transcripts <- "check engine"
	time.Sleep(30 * time.Millisecond)
	tr.transcripts <- "light is on"

	got := log.waitFor(t, "process:", time.Second)
	assert.Equal(t, "process:check engine light is on", got)

	spoken := log.waitFor(t, "speak:", time.Second)
	assert.Equal(t, "speak:Replace the ignition coil.", spoken)
}

func TestAgent_UtteranceEndShortcutsDebounce(t *testing.T) {
	log := &eventLog{}
	tr := newStubTranscriber(log)
	sp := newStubSpeaker(log)
	// The debounce alone would hold this turn for 10 seconds.
	a := newTestAgent(t, log, tr, sp, 10*time.Second)

	go a.processTranscripts()

	tr.transcripts <- "what does p0301 mean"
	time.Sleep(30 * time.Millisecond)
	tr.utterances <- struct{}{}

	start := time.Now()
	got := log.waitFor(t, "process:", time.Second)
	assert.Equal(t, "process:what does p0301 mean", got)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAgent_TurnCancelsSpeechBeforeAnswering(t *testing.T) {
	log := &eventLog{}
	tr := newStubTranscriber(log)
	sp := newStubSpeaker(log)
	a := newTestAgent(t, log, tr, sp, 50*time.Millisecond)

	go a.processTranscripts()

	tr.transcripts <- "actually check the brakes instead"
	log.waitFor(t, "process:", time.Second)

	events := log.snapshot()
	cancelAt, processAt := -1, -1
	for i, e := range events {
		if e == "cancel" && cancelAt == -1 {
			cancelAt = i
		}
		if strings.HasPrefix(e, "process:") && processAt == -1 {
			processAt = i
		}
	}
	require.NotEqual(t, -1, cancelAt, "barge-in must cancel ongoing speech")
	require.NotEqual(t, -1, processAt)
	assert.Less(t, cancelAt, processAt, "speech is cancelled before the answer is computed")
}

func TestAgent_WaitForLanguage(t *testing.T) {
	log := &eventLog{}
	tr := newStubTranscriber(log)
	sp := newStubSpeaker(log)

	t.Run("falls back to default after the wait", func(t *testing.T) {
		a := newTestAgent(t, log, tr, sp, time.Second)
		a.config.DefaultLanguage = "kn"

		start := time.Now()
		lang := a.waitForLanguage()
		assert.Equal(t, "kn", lang.Code)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("uses the offered language", func(t *testing.T) {
		a := newTestAgent(t, log, tr, sp, time.Second)
		a.offerLanguage("hi")
		assert.Equal(t, "hi", a.waitForLanguage().Code)
	})

	t.Run("ignores unsupported offers", func(t *testing.T) {
		a := newTestAgent(t, log, tr, sp, time.Second)
		a.offerLanguage("fr")
		assert.Equal(t, "en", a.waitForLanguage().Code)
	})
}

func TestAgent_SendAudioBeforeSessionIsNoop(t *testing.T) {
	log := &eventLog{}
	tr := newStubTranscriber(log)
	sp := newStubSpeaker(log)

	a := New(Config{RoomName: "workshop"}, nil, &stubResponder{log: log, answer: &models.Answer{}},
		func(Language) types.Transcriber { return tr },
		func(Language) types.Speaker { return sp })
	a.ctx, a.cancel = context.WithCancel(context.Background())
	t.Cleanup(a.cancel)

	// Tracks can deliver audio before the language is resolved.
	a.sendAudio([]byte("early"))
	assert.Empty(t, log.snapshot())

	a.mu.Lock()
	a.transcriber = tr
	a.mu.Unlock()

	a.sendAudio([]byte("later"))
	assert.Equal(t, []string{"audio:later"}, log.snapshot())
}
