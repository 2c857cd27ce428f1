package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/croplink/voice-gateway/internal/metrics"
	"github.com/croplink/voice-gateway/internal/prompts"
)

// TextGenerator streams an advisory response for a farmer's transcribed
// question. Implementations are tried in order by the generation chain.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, userText, knowledgeContext, systemPrompt string, onToken TokenCallback) (*GenerationResult, error)
}

// GenerationResult holds the complete response with timing.
type GenerationResult struct {
	Text               string `json:"text"`
	Thinking           string `json:"thinking,omitempty"`
	Model              string `json:"model"`
	LatencyMs          int64  `json:"latency_ms"`
	TimeToFirstTokenMs int64  `json:"ttft_ms"`
	Tokens             int    `json:"tokens"`
}

// TokenCallback is called for each streamed token, in arrival order.
type TokenCallback func(token string)

// --- Ollama strategy ---

// OllamaGenerator streams chat completions from a local Ollama server.
type OllamaGenerator struct {
	url          string
	model        string
	systemPrompt string
	maxTokens    int
	client       *http.Client
}

func NewOllamaGenerator(url, model, systemPrompt string, maxTokens, poolSize int) *OllamaGenerator {
	return &OllamaGenerator{
		url:          url,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       NewPooledHTTPClient(poolSize, 60*time.Second),
	}
}

func (c *OllamaGenerator) Name() string { return "ollama" }

// Generate sends the question to Ollama and streams the answer.
func (c *OllamaGenerator) Generate(ctx context.Context, userText, knowledgeContext, systemPrompt string, onToken TokenCallback) (*GenerationResult, error) {
	start := time.Now()

	resp, err := c.postChatRequest(ctx, userText, knowledgeContext, systemPrompt)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("generation", "status").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, body)
	}

	sr := consumeOllamaStream(resp, onToken)

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("generation").Observe(latency.Seconds())

	var ttft int64
	if !sr.ttft.IsZero() {
		ttft = sr.ttft.Sub(start).Milliseconds()
	}

	return &GenerationResult{
		Text:               sr.text,
		Thinking:           sr.thinking,
		Model:              c.model,
		LatencyMs:          latency.Milliseconds(),
		TimeToFirstTokenMs: ttft,
		Tokens:             sr.tokens,
	}, nil
}

func (c *OllamaGenerator) postChatRequest(ctx context.Context, userText, knowledgeContext, systemPrompt string) (*http.Response, error) {
	sysPrompt := c.systemPrompt
	if systemPrompt != "" {
		sysPrompt = systemPrompt
	}
	messages := []ollamaMessage{
		{Role: "system", Content: sysPrompt},
	}
	if knowledgeContext != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: prompts.KnowledgeContext(knowledgeContext)})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: userText})

	reqBody := ollamaRequest{
		Model:    c.model,
		Stream:   true,
		Options:  ollamaOptions{NumPredict: c.maxTokens},
		Messages: messages,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("generation", "http").Inc()
		return nil, fmt.Errorf("ollama request: %w", err)
	}

	return resp, nil
}

type streamResult struct {
	text     string
	thinking string
	tokens   int
	ttft     time.Time
}

func consumeOllamaStream(resp *http.Response, onToken TokenCallback) streamResult {
	var sr streamResult
	scanner := bufio.NewScanner(resp.Body)

	for scanner.Scan() {
		chunk := parseOllamaChunk(scanner.Bytes())
		if chunk == nil {
			return sr
		}
		sr = applyChunk(chunk, sr, onToken)
	}

	return sr
}

func applyChunk(chunk *parsedChunk, sr streamResult, onToken TokenCallback) streamResult {
	if chunk.Thinking != "" {
		sr.thinking += chunk.Thinking
		return sr
	}
	if chunk.Content == "" {
		return sr
	}
	if sr.ttft.IsZero() {
		sr.ttft = time.Now()
	}
	if onToken != nil {
		onToken(chunk.Content)
	}
	sr.text += chunk.Content
	sr.tokens++
	return sr
}

type parsedChunk struct {
	Content  string
	Thinking string
}

func parseOllamaChunk(data []byte) *parsedChunk {
	var chunk ollamaStreamChunk
	if json.Unmarshal(data, &chunk) != nil {
		return &parsedChunk{}
	}
	if chunk.Done {
		return nil
	}
	return &parsedChunk{Content: chunk.Message.Content, Thinking: chunk.Message.Thinking}
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []ollamaMessage `json:"messages"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict"`
}

type ollamaStreamChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}
