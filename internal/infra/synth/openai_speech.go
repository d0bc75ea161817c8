package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voiceforge/internal/domain/model"
	"voiceforge/internal/domain/ports/adapter"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.SynthesisAdapter = (*OpenAISpeechAdapter)(nil)

// OpenAISpeechAdapter drives the OpenAI speech endpoint. Base URL
// defaults to https://api.openai.com/v1 (configurable, any
// OpenAI-compatible gateway works). Path: /audio/speech.
// Authorization: Bearer <OPENAI_API_KEY>
type OpenAISpeechAdapter struct {
	apiKey string
	base   string
	model  string
	client *http.Client
	store  adapter.ArtifactStore
	seg    *Segmenter
}

func NewOpenAISpeechAdapter(apiKey, model, base string, store adapter.ArtifactStore, seg *Segmenter) (*OpenAISpeechAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini-tts"
	}
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	return &OpenAISpeechAdapter{
		apiKey: apiKey,
		base:   strings.TrimRight(base, "/"),
		model:  model,
		client: &http.Client{Timeout: 120 * time.Second},
		store:  store,
		seg:    seg,
	}, nil
}

func (a *OpenAISpeechAdapter) Name() string { return "openai" }

func (a *OpenAISpeechAdapter) Run(ctx context.Context, req adapter.SynthesisRequest, onProgress adapter.ProgressFunc) (string, error) {
	if onProgress == nil {
		onProgress = func(float64, string) {}
	}

	segments := a.seg.Split(req.Params.Text, req.Params.MaxTextTokensPerSegment)
	total := len(segments)

	// MP3 frames are self-contained, so per-segment output concatenates
	// into one playable stream.
	var audio bytes.Buffer
	for i, segment := range segments {
		onProgress(float64(i)/float64(total), fmt.Sprintf("synthesizing segment %d/%d", i+1, total))
		chunk, err := a.speech(ctx, segment, req.Params)
		if err != nil {
			return "", fmt.Errorf("segment %d/%d: %w", i+1, total, err)
		}
		audio.Write(chunk)
		onProgress(float64(i+1)/float64(total), fmt.Sprintf("synthesized segment %d/%d", i+1, total))
	}

	ref, err := a.store.Save(ctx, req.JobID+".mp3", &audio)
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (a *OpenAISpeechAdapter) speech(ctx context.Context, text string, params model.SynthesisParams) ([]byte, error) {
	reqBody := struct {
		Model          string  `json:"model"`
		Input          string  `json:"input"`
		Voice          string  `json:"voice"`
		ResponseFormat string  `json:"response_format"`
		Instructions   string  `json:"instructions,omitempty"`
		Temperature    float64 `json:"temperature,omitempty"`
	}{
		Model:          a.model,
		Input:          text,
		Voice:          params.Voice,
		ResponseFormat: "mp3",
		Instructions:   styleInstructions(params),
		Temperature:    params.Temperature,
	}

	b, _ := json.Marshal(reqBody)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/audio/speech", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("openai speech http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return io.ReadAll(resp.Body)
}

// styleInstructions turns the emotion controls into a delivery prompt.
// The speech endpoint has no vector interface, so reference and vector
// modes fall back to the speaker's natural delivery.
func styleInstructions(params model.SynthesisParams) string {
	if params.EmoMode == model.EmoModeText && params.EmoText != "" {
		return fmt.Sprintf("Speak with the following emotion: %s (intensity %.2f of 1).", params.EmoText, params.EmoWeight)
	}
	return ""
}
