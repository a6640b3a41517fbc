package agent

import (
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

const (
	// maxImageBytes caps uploads arriving on the images topic.
	maxImageBytes = 8 * 1024 * 1024
	// frameInterval throttles video frame updates to roughly 5 FPS.
	frameInterval = 200 * time.Millisecond
)

// VisionBuffer holds the most recent image shared by a participant, either an
// explicit upload or a sampled video frame. The buffered image is attached to
// the next model turn and then cleared.
type VisionBuffer struct {
	mu          sync.Mutex
	latestFrame string
	lastFrameAt time.Time
	now         func() time.Time
}

func NewVisionBuffer() *VisionBuffer {
	return &VisionBuffer{now: time.Now}
}

// AddImage stores an uploaded image. Oversized payloads are rejected.
func (v *VisionBuffer) AddImage(data []byte, mimeType string) error {
	if len(data) == 0 {
		return fmt.Errorf("empty image payload")
	}
	if len(data) > maxImageBytes {
		return fmt.Errorf("image payload %d bytes exceeds %d byte limit", len(data), maxImageBytes)
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	url := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	v.mu.Lock()
	v.latestFrame = url
	v.mu.Unlock()
	return nil
}

// AddVideoFrame stores a sampled video frame, dropping frames that arrive
// faster than the sampling interval.
func (v *VisionBuffer) AddVideoFrame(jpeg []byte) bool {
	if len(jpeg) == 0 || len(jpeg) > maxImageBytes {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if now.Sub(v.lastFrameAt) < frameInterval {
		return false
	}
	v.lastFrameAt = now
	v.latestFrame = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	return true
}

// TakeFrame returns the buffered image and clears it. The second return is
// false when nothing is buffered.
func (v *VisionBuffer) TakeFrame() (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.latestFrame == "" {
		return "", false
	}
	frame := v.latestFrame
	v.latestFrame = ""
	return frame, true
}
