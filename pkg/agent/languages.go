package agent

// Language bundles the per-language settings for a session: the greeting
// spoken on join, the transcription language code, and the synthesis voice.
type Language struct {
	Code     string
	Greeting string
	// STTCode is the Deepgram language code.
	STTCode string
	// VoiceID is the Cartesia voice for this language.
	VoiceID string
}

var languages = map[string]Language{
	"en": {
		Code:     "en",
		Greeting: "Hi! I'm your automotive assistant. How can I help today?",
		STTCode:  "en-US",
		VoiceID:  "f786b574-daa5-4673-aa0c-cbe3e8534c02",
	},
	"hi": {
		Code:     "hi",
		Greeting: "नमस्ते! मैं आपका ऑटोमोटिव सहायक हूँ। आज मैं आपकी कैसे मदद कर सकता/सकती हूँ?",
		STTCode:  "hi",
		VoiceID:  "bdab08ad-4137-4548-b9db-6142854c7525",
	},
	"kn": {
		Code:     "kn",
		Greeting: "ನಮಸ್ಕಾರ! ನಾನು ನಿಮ್ಮ ವಾಹನ ಸಹಾಯಕ. ನಾನು ಹೇಗೆ ಸಹಾಯ ಮಾಡಲಿ?",
		STTCode:  "kn",
		VoiceID:  "bdab08ad-4137-4548-b9db-6142854c7525",
	},
}

// LookupLanguage returns the settings for a language code, falling back to
// English for unknown codes.
func LookupLanguage(code string) Language {
	if lang, ok := languages[code]; ok {
		return lang
	}
	return languages["en"]
}

// SupportedLanguage reports whether code is a language the agent can run.
func SupportedLanguage(code string) bool {
	_, ok := languages[code]
	return ok
}
