package tts

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	defaultEndpoint   = "wss://api.cartesia.ai/tts/websocket"
	cartesiaVersion   = "2024-06-10"
	defaultModelID    = "sonic-2"
	defaultSampleRate = 44100
)

// Speaker synthesizes speech through the Cartesia websocket API. Audio
// arrives as raw pcm_s16le chunks on AudioChannel. It satisfies
// types.Speaker.
type Speaker struct {
	config      Config
	audioChan   chan []byte
	interrupted atomic.Bool

	connMu sync.Mutex
	conn   *websocket.Conn
}

type Config struct {
	APIKey     string
	VoiceID    string
	ModelID    string
	SampleRate int
	Endpoint   string
}

func NewSpeaker(config Config) *Speaker {
	if config.ModelID == "" {
		config.ModelID = defaultModelID
	}
	if config.SampleRate == 0 {
		config.SampleRate = defaultSampleRate
	}
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}

	return &Speaker{
		config:    config,
		audioChan: make(chan []byte, 100),
	}
}

func (s *Speaker) AudioChannel() <-chan []byte {
	return s.audioChan
}

// Cancel interrupts the current synthesis. Chunks already queued on the audio
// channel are not drained.
func (s *Speaker) Cancel() {
	s.interrupted.Store(true)
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
}

// SendText synthesizes text in the background. Chunks stream onto the audio
// channel as they arrive.
func (s *Speaker) SendText(text string) error {
	if text == "" {
		return nil
	}
	s.interrupted.Store(false)
	go s.synthesize(text)
	return nil
}

func (s *Speaker) synthesize(text string) {
	url := fmt.Sprintf("%s?api_key=%s&cartesia_version=%s", s.config.Endpoint, s.config.APIKey, cartesiaVersion)

	s.connMu.Lock()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		s.connMu.Unlock()
		log.Printf("tts: cartesia dial: %v", err)
		return
	}
	s.conn = conn
	s.connMu.Unlock()

	// Close only this goroutine's connection. A later synthesis may have
	// replaced s.conn already.
	defer func() {
		conn.Close()
		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.connMu.Unlock()
	}()

	payload := map[string]interface{}{
		"context_id": uuid.New().String(),
		"model_id":   s.config.ModelID,
		"transcript": text,
		"voice": map[string]string{
			"mode": "id",
			"id":   s.config.VoiceID,
		},
		"output_format": map[string]interface{}{
			"container":   "raw",
			"encoding":    "pcm_s16le",
			"sample_rate": s.config.SampleRate,
		},
	}

	if err := conn.WriteJSON(payload); err != nil {
		log.Printf("tts: cartesia request: %v", err)
		return
	}

	for {
		if s.interrupted.Load() {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("tts: cartesia read: %v", err)
			}
			return
		}

		var response map[string]interface{}
		if err := json.Unmarshal(message, &response); err != nil {
			continue
		}

		if errMsg, ok := response["error"].(string); ok && errMsg != "" {
			log.Printf("tts: cartesia api error: %s", errMsg)
		}

		if dataStr, ok := response["data"].(string); ok {
			audio, err := base64.StdEncoding.DecodeString(dataStr)
			if err != nil {
				continue
			}
			select {
			case s.audioChan <- audio:
			default:
				log.Printf("tts: audio channel full, dropping %d bytes", len(audio))
			}
		} else if done, ok := response["done"].(bool); ok && done {
			return
		}
	}
}

func (s *Speaker) Close() {
	s.Cancel()
}
