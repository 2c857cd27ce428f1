package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/croplink/voice-gateway/internal/metrics"
)

// Transcriber converts a captured recording into text. Audio arrives as the
// raw bytes the client recorded; the gateway does not transcode.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (*TranscriptResult, error)
}

// TranscriptResult holds the transcription output.
type TranscriptResult struct {
	Text      string `json:"text"`
	LatencyMs int64  `json:"latency_ms"`
}

// TranscriberRouter holds the configured transcription backends by name
// and serves every session from the default one.
type TranscriberRouter struct {
	backends map[string]Transcriber
	fallback string
}

func NewTranscriberRouter(backends map[string]Transcriber, fallback string) *TranscriberRouter {
	return &TranscriberRouter{backends: backends, fallback: fallback}
}

// Transcribe dispatches to the default backend.
func (r *TranscriberRouter) Transcribe(ctx context.Context, audio []byte) (*TranscriptResult, error) {
	backend, ok := r.backends[r.fallback]
	if !ok {
		return nil, fmt.Errorf("no transcription backend %q configured", r.fallback)
	}
	return backend.Transcribe(ctx, audio)
}

// Engines returns the names of the configured backends.
func (r *TranscriberRouter) Engines() []string {
	names := make([]string, 0, len(r.backends))
	for k := range r.backends {
		names = append(names, k)
	}
	return names
}

// MultipartTranscriber posts a recording as a multipart upload to any
// whisper-compatible HTTP endpoint. Backends vary only by path (/inference
// for whisper.cpp, /transcribe for the ROCm server); the label shows up in
// errors and logs.
type MultipartTranscriber struct {
	url      string
	endpoint string
	label    string
	filename string
	client   *http.Client
}

// NewWhisperTranscriber creates a client for whisper.cpp (/inference).
func NewWhisperTranscriber(url string, poolSize int) *MultipartTranscriber {
	return &MultipartTranscriber{
		url:      url,
		endpoint: "/inference",
		label:    "whisper",
		filename: "audio.wav",
		client:   NewPooledHTTPClient(poolSize, 30*time.Second),
	}
}

// NewROCmTranscriber creates a client for the ROCm whisper API (/transcribe).
func NewROCmTranscriber(url string, poolSize int) *MultipartTranscriber {
	return &MultipartTranscriber{
		url:      url,
		endpoint: "/transcribe",
		label:    "rocm-whisper",
		filename: "audio.wav",
		client:   NewPooledHTTPClient(poolSize, 60*time.Second),
	}
}

// Transcribe uploads the recording and returns the transcript.
func (c *MultipartTranscriber) Transcribe(ctx context.Context, audio []byte) (*TranscriptResult, error) {
	start := time.Now()

	body, contentType, err := buildMultipartUpload(audio, c.filename)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", c.label, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("transcription", "http").Inc()
		return nil, fmt.Errorf("%s request: %w", c.label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		metrics.Errors.WithLabelValues("transcription", "status").Inc()
		return nil, fmt.Errorf("%s status %d: %s", c.label, resp.StatusCode, respBody)
	}

	var result whisperResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.label, err)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("transcription").Observe(latency.Seconds())

	return &TranscriptResult{
		Text:      result.Text,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

type whisperResponse struct {
	Text string `json:"text"`
}

func buildMultipartUpload(data []byte, filename string) (*bytes.Buffer, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}

	if _, err = part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}

	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close writer: %w", err)
	}

	return &body, writer.FormDataContentType(), nil
}
