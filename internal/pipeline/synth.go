package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Synthesizer produces speech audio for one sentence of advisory text.
// Providers are tried in order by the synthesis chain.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (*SynthesisResult, error)
}

// SynthesisResult holds synthesized audio with timing.
type SynthesisResult struct {
	Audio     []byte `json:"-"`
	Format    string `json:"format"`
	LatencyMs int64  `json:"latency_ms"`
}

// --- Piper provider (local neural TTS via piper-tts, returns WAV) ---

type piperProvider struct {
	url    string
	voice  string
	client *http.Client
}

func NewPiperProvider(url, voice string, client *http.Client) Synthesizer {
	return &piperProvider{url: url, voice: voice, client: client}
}

func (p *piperProvider) Name() string { return "piper" }

func (p *piperProvider) Synthesize(ctx context.Context, text string) (*SynthesisResult, error) {
	start := time.Now()
	body, err := json.Marshal(struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}{Text: text, Voice: p.voice})
	if err != nil {
		return nil, fmt.Errorf("marshal piper request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.url+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create piper request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	audio, err := doSynthRequest(p.client, req)
	if err != nil {
		return nil, fmt.Errorf("piper: %w", err)
	}
	return &SynthesisResult{Audio: audio, Format: "wav", LatencyMs: time.Since(start).Milliseconds()}, nil
}

// --- OpenAI-compatible provider (any server exposing /v1/audio/speech) ---

type openaiSpeechProvider struct {
	url    string
	model  string
	voice  string
	speed  float64
	client *http.Client
}

func NewOpenAISpeechProvider(url, model, voice string, speed float64, client *http.Client) Synthesizer {
	return &openaiSpeechProvider{url: url, model: model, voice: voice, speed: speed, client: client}
}

func (o *openaiSpeechProvider) Name() string { return "openai" }

func (o *openaiSpeechProvider) Synthesize(ctx context.Context, text string) (*SynthesisResult, error) {
	start := time.Now()
	body, err := json.Marshal(struct {
		Input          string  `json:"input"`
		Model          string  `json:"model"`
		Voice          string  `json:"voice"`
		Speed          float64 `json:"speed,omitempty"`
		ResponseFormat string  `json:"response_format"`
	}{Input: text, Model: o.model, Voice: o.voice, Speed: o.speed, ResponseFormat: "wav"})
	if err != nil {
		return nil, fmt.Errorf("marshal speech request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.url+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	audio, err := doSynthRequest(o.client, req)
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	return &SynthesisResult{Audio: audio, Format: "wav", LatencyMs: time.Since(start).Milliseconds()}, nil
}

// --- ElevenLabs provider (cloud API, returns MP3) ---

type elevenLabsProvider struct {
	apiKey  string
	voiceID string
	modelID string
	client  *http.Client
}

func NewElevenLabsProvider(apiKey, voiceID, modelID string, client *http.Client) Synthesizer {
	return &elevenLabsProvider{apiKey: apiKey, voiceID: voiceID, modelID: modelID, client: client}
}

func (e *elevenLabsProvider) Name() string { return "elevenlabs" }

func (e *elevenLabsProvider) Synthesize(ctx context.Context, text string) (*SynthesisResult, error) {
	start := time.Now()
	body, err := json.Marshal(struct {
		Text    string `json:"text"`
		ModelID string `json:"model_id"`
	}{Text: text, ModelID: e.modelID})
	if err != nil {
		return nil, fmt.Errorf("marshal elevenlabs request: %w", err)
	}

	url := fmt.Sprintf("https://api.elevenlabs.io/v1/text-to-speech/%s", e.voiceID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create elevenlabs request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Accept", "audio/mpeg")

	audio, err := doSynthRequest(e.client, req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	return &SynthesisResult{Audio: audio, Format: "mp3", LatencyMs: time.Since(start).Milliseconds()}, nil
}

// --- shared HTTP helper ---

func doSynthRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
