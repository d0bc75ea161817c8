package model

import "voiceforge/internal/domain"

// Emotion control modes accepted at submission.
const (
	EmoModeSpeaker   = "speaker"
	EmoModeReference = "reference"
	EmoModeVector    = "vector"
	EmoModeText      = "text"
)

// SynthesisParams is the immutable snapshot of a job's input configuration.
// It is stored for reference and audit and never re-validated after creation.
type SynthesisParams struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`

	// Target speech duration in milliseconds, 0 for automatic.
	SpeechLengthMS int `json:"speech_length_ms"`

	// Sampling controls.
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`

	// Emotion control.
	EmoMode   string  `json:"emo_mode"`
	EmoWeight float64 `json:"emo_weight"`
	EmoText   string  `json:"emo_text,omitempty"`

	MaxTextTokensPerSegment int `json:"max_text_tokens_per_segment"`

	// References to uploaded audio saved through the artifact store.
	// Removed once execution finishes, whatever the outcome.
	PromptAudioRef string `json:"prompt_audio_ref,omitempty"`
	EmoAudioRef    string `json:"emo_audio_ref,omitempty"`
}

// DefaultSynthesisParams mirrors the submission form defaults.
func DefaultSynthesisParams() SynthesisParams {
	return SynthesisParams{
		Voice:                   "alloy",
		Temperature:             0.8,
		TopP:                    0.8,
		TopK:                    30,
		EmoMode:                 EmoModeSpeaker,
		EmoWeight:               0.65,
		MaxTextTokensPerSegment: 120,
	}
}

// Validate checks ranges and mode-dependent requirements.
// Text length limits are enforced by the caller, which knows the
// configured maximum.
func (p SynthesisParams) Validate() error {
	if p.Text == "" {
		return domain.ErrInvalidArgument
	}
	if p.Temperature < 0.1 || p.Temperature > 2.0 {
		return domain.ErrInvalidArgument
	}
	if p.TopP < 0 || p.TopP > 1 {
		return domain.ErrInvalidArgument
	}
	if p.TopK < 0 || p.TopK > 100 {
		return domain.ErrInvalidArgument
	}
	if p.EmoWeight < 0 || p.EmoWeight > 1 {
		return domain.ErrInvalidArgument
	}
	if p.MaxTextTokensPerSegment < 20 || p.MaxTextTokensPerSegment > 300 {
		return domain.ErrInvalidArgument
	}
	if p.SpeechLengthMS < 0 {
		return domain.ErrInvalidArgument
	}
	switch p.EmoMode {
	case EmoModeSpeaker, EmoModeVector:
	case EmoModeReference:
		if p.EmoAudioRef == "" {
			return domain.ErrInvalidArgument
		}
	case EmoModeText:
		if p.EmoText == "" {
			return domain.ErrInvalidArgument
		}
	default:
		return domain.ErrInvalidArgument
	}
	return nil
}
