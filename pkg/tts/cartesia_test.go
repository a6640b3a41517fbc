package tts

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newSynthServer serves the Cartesia protocol. The "drop" transcript streams
// two chunks and then closes the connection without a done message; any other
// transcript streams five chunks labelled with the transcript text.
func newSynthServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req struct {
			Transcript string `json:"transcript"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		chunk := func() error {
			return conn.WriteJSON(map[string]interface{}{
				"data": base64.StdEncoding.EncodeToString([]byte(req.Transcript)),
			})
		}

		if req.Transcript == "drop" {
			chunk()
			chunk()
			time.Sleep(100 * time.Millisecond)
			return
		}

		for i := 0; i < 5; i++ {
			if err := chunk(); err != nil {
				return
			}
			time.Sleep(30 * time.Millisecond)
		}
		conn.WriteJSON(map[string]interface{}{"done": true})
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collectChunks(t *testing.T, s *Speaker, want string, count int, timeout time.Duration) int {
	t.Helper()

	got := 0
	deadline := time.After(timeout)
	for got < count {
		select {
		case pcm := <-s.AudioChannel():
			if string(pcm) == want {
				got++
			}
		case <-deadline:
			return got
		}
	}
	return got
}

func TestSpeaker_StreamsAudio(t *testing.T) {
	srv := newSynthServer(t)
	defer srv.Close()

	s := NewSpeaker(Config{APIKey: "test", VoiceID: "voice", Endpoint: wsURL(srv)})
	defer s.Close()

	require.NoError(t, s.SendText("your brake pads are worn"))

	got := collectChunks(t, s, "your brake pads are worn", 5, 2*time.Second)
	assert.Equal(t, 5, got)
}

func TestSpeaker_StaleConnectionDoesNotKillSuccessor(t *testing.T) {
	srv := newSynthServer(t)
	defer srv.Close()

	s := NewSpeaker(Config{APIKey: "test", VoiceID: "voice", Endpoint: wsURL(srv)})
	defer s.Close()

	// First session: the server drops the connection mid stream, so the first
	// goroutine's cleanup runs while the second session is live.
	require.NoError(t, s.SendText("drop"))
	require.Equal(t, 2, collectChunks(t, s, "drop", 2, 2*time.Second))

	require.NoError(t, s.SendText("second answer"))

	got := collectChunks(t, s, "second answer", 5, 2*time.Second)
	assert.Equal(t, 5, got, "later synthesis must survive the earlier connection's teardown")
}

func TestSpeaker_CancelStopsStream(t *testing.T) {
	srv := newSynthServer(t)
	defer srv.Close()

	s := NewSpeaker(Config{APIKey: "test", VoiceID: "voice", Endpoint: wsURL(srv)})
	defer s.Close()

	require.NoError(t, s.SendText("long answer"))
	require.GreaterOrEqual(t, collectChunks(t, s, "long answer", 1, 2*time.Second), 1)

	s.Cancel()

	// A fresh synthesis after the interruption streams normally.
	require.NoError(t, s.SendText("after barge in"))
	got := collectChunks(t, s, "after barge in", 5, 2*time.Second)
	assert.Equal(t, 5, got)
}
