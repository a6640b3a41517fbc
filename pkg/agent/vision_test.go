package agent

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisionBuffer_AddImage(t *testing.T) {
	v := NewVisionBuffer()

	require.NoError(t, v.AddImage([]byte{0x89, 0x50}, "image/png"))

	frame, ok := v.TakeFrame()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(frame, "data:image/png;base64,"))

	// Taking the frame clears it.
	_, ok = v.TakeFrame()
	assert.False(t, ok)
}

func TestVisionBuffer_DefaultMimeType(t *testing.T) {
	v := NewVisionBuffer()

	require.NoError(t, v.AddImage([]byte{1, 2, 3}, ""))
	frame, ok := v.TakeFrame()
	require.True(t, ok)
	assert.Contains(t, frame, "image/png")
}

func TestVisionBuffer_RejectsOversizedImage(t *testing.T) {
	v := NewVisionBuffer()

	err := v.AddImage(bytes.Repeat([]byte{1}, maxImageBytes+1), "image/jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")

	_, ok := v.TakeFrame()
	assert.False(t, ok)
}

func TestVisionBuffer_RejectsEmptyImage(t *testing.T) {
	v := NewVisionBuffer()
	assert.Error(t, v.AddImage(nil, "image/png"))
}

func TestVisionBuffer_FrameSampling(t *testing.T) {
	v := NewVisionBuffer()
	now := time.Unix(0, 0)
	v.now = func() time.Time { return now }

	assert.True(t, v.AddVideoFrame([]byte{1}))

	// Within the sampling interval frames are dropped.
	now = now.Add(50 * time.Millisecond)
	assert.False(t, v.AddVideoFrame([]byte{2}))

	now = now.Add(frameInterval)
	assert.True(t, v.AddVideoFrame([]byte{3}))

	frame, ok := v.TakeFrame()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(frame, "data:image/jpeg;base64,"))
}

func TestLookupLanguage(t *testing.T) {
	assert.Equal(t, "en", LookupLanguage("en").Code)
	assert.Equal(t, "hi", LookupLanguage("hi").Code)
	assert.Equal(t, "kn", LookupLanguage("kn").Code)
	// Unknown codes fall back to English.
	assert.Equal(t, "en", LookupLanguage("fr").Code)

	for _, code := range []string{"en", "hi", "kn"} {
		lang := LookupLanguage(code)
		assert.NotEmpty(t, lang.Greeting, code)
		assert.NotEmpty(t, lang.STTCode, code)
		assert.NotEmpty(t, lang.VoiceID, code)
	}
}

func TestSupportedLanguage(t *testing.T) {
	assert.True(t, SupportedLanguage("en"))
	assert.True(t, SupportedLanguage("hi"))
	assert.False(t, SupportedLanguage("de"))
	assert.False(t, SupportedLanguage(""))
}

func TestLanguageFromMetadata(t *testing.T) {
	assert.Equal(t, "hi", languageFromMetadata(`{"language":"hi"}`))
	assert.Equal(t, "kn", languageFromMetadata(`{"language":"KN"}`))
	assert.Equal(t, "", languageFromMetadata(""))
	assert.Equal(t, "", languageFromMetadata("not json"))
	assert.Equal(t, "", languageFromMetadata(`{"other":"field"}`))
}
