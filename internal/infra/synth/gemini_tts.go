package synth

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"voiceforge/internal/domain/model"
	"voiceforge/internal/domain/ports/adapter"
)

var _ adapter.SynthesisAdapter = (*GeminiTTSAdapter)(nil)

// Gemini TTS returns raw PCM at this rate, signed 16-bit mono.
const (
	geminiSampleRate = 24000
	geminiSampleBits = 16
)

type GeminiTTSAdapter struct {
	client       *genai.Client
	defaultModel string
	store        adapter.ArtifactStore
	seg          *Segmenter
}

// NewGeminiTTSAdapter creates a Gemini adapter using the official SDK.
func NewGeminiTTSAdapter(ctx context.Context, apiKey, defaultModel string, store adapter.ArtifactStore, seg *Segmenter) (*GeminiTTSAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash-preview-tts"
	}
	return &GeminiTTSAdapter{client: c, defaultModel: defaultModel, store: store, seg: seg}, nil
}

func (g *GeminiTTSAdapter) Name() string { return "gemini" }

func (g *GeminiTTSAdapter) Run(ctx context.Context, req adapter.SynthesisRequest, onProgress adapter.ProgressFunc) (string, error) {
	if onProgress == nil {
		onProgress = func(float64, string) {}
	}

	segments := g.seg.Split(req.Params.Text, req.Params.MaxTextTokensPerSegment)
	total := len(segments)

	// One PCM stream across all segments under a single WAV header.
	var pcm bytes.Buffer
	for i, segment := range segments {
		onProgress(float64(i)/float64(total), fmt.Sprintf("synthesizing segment %d/%d", i+1, total))
		chunk, err := g.generate(ctx, segment, req.Params)
		if err != nil {
			return "", fmt.Errorf("segment %d/%d: %w", i+1, total, err)
		}
		pcm.Write(chunk)
		onProgress(float64(i+1)/float64(total), fmt.Sprintf("synthesized segment %d/%d", i+1, total))
	}

	var wav bytes.Buffer
	writeWAVHeader(&wav, pcm.Len())
	wav.Write(pcm.Bytes())

	ref, err := g.store.Save(ctx, req.JobID+".wav", &wav)
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (g *GeminiTTSAdapter) generate(ctx context.Context, text string, params model.SynthesisParams) ([]byte, error) {
	prompt := text
	if params.EmoMode == model.EmoModeText && params.EmoText != "" {
		// Style prompting is the SDK's emotion interface.
		prompt = fmt.Sprintf("Say in a %s tone: %s", params.EmoText, text)
	}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: params.Voice},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.defaultModel, genai.Text(prompt), cfg)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("gemini: empty response")
	}
	part := resp.Candidates[0].Content.Parts[0]
	if part.InlineData == nil || len(part.InlineData.Data) == 0 {
		return nil, errors.New("gemini: no audio data in response")
	}
	return part.InlineData.Data, nil
}

func writeWAVHeader(w *bytes.Buffer, dataLen int) {
	byteRate := geminiSampleRate * geminiSampleBits / 8

	w.WriteString("RIFF")
	binary.Write(w, binary.LittleEndian, uint32(36+dataLen))
	w.WriteString("WAVE")
	w.WriteString("fmt ")
	binary.Write(w, binary.LittleEndian, uint32(16))
	binary.Write(w, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(w, binary.LittleEndian, uint16(1)) // mono
	binary.Write(w, binary.LittleEndian, uint32(geminiSampleRate))
	binary.Write(w, binary.LittleEndian, uint32(byteRate))
	binary.Write(w, binary.LittleEndian, uint16(geminiSampleBits/8))
	binary.Write(w, binary.LittleEndian, uint16(geminiSampleBits))
	w.WriteString("data")
	binary.Write(w, binary.LittleEndian, uint32(dataLen))
}
