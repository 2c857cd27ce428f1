package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/croplink/voice-gateway/internal/metrics"
	"github.com/croplink/voice-gateway/internal/prompts"
)

// AgentGenerator streams completions through the openai-agents-go SDK. Any
// OpenAI-compatible endpoint plugs in as the model provider.
type AgentGenerator struct {
	provider  agents.ModelProvider
	model     string
	maxTokens int
}

func NewAgentGenerator(provider agents.ModelProvider, model string, maxTokens int) *AgentGenerator {
	return &AgentGenerator{provider: provider, model: model, maxTokens: maxTokens}
}

func (a *AgentGenerator) Name() string { return "agent" }

// Generate runs a single-turn streamed agent and forwards output deltas as
// tokens.
func (a *AgentGenerator) Generate(ctx context.Context, userText, knowledgeContext, systemPrompt string, onToken TokenCallback) (*GenerationResult, error) {
	instructions := systemPrompt
	if knowledgeContext != "" {
		instructions += "\n\n" + prompts.KnowledgeContext(knowledgeContext)
	}

	agent := agents.New("farm-advisor").
		WithInstructions(instructions).
		WithModel(a.model).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(a.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	start := time.Now()

	events, errCh, err := runner.RunStreamedChan(ctx, agent, userText)
	if err != nil {
		metrics.Errors.WithLabelValues("generation", "stream_start").Inc()
		return nil, fmt.Errorf("agent stream start: %w", err)
	}

	var textBuf strings.Builder
	var sr streamResult
	for ev := range events {
		handleStreamEvent(ev, &sr, onToken, &textBuf)
	}

	if streamErr := <-errCh; streamErr != nil {
		metrics.Errors.WithLabelValues("generation", "stream").Inc()
		return nil, fmt.Errorf("agent stream: %w", streamErr)
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("generation").Observe(latency.Seconds())

	var ttft int64
	if !sr.ttft.IsZero() {
		ttft = sr.ttft.Sub(start).Milliseconds()
	}

	return &GenerationResult{
		Text:               textBuf.String(),
		Model:              a.model,
		LatencyMs:          latency.Milliseconds(),
		TimeToFirstTokenMs: ttft,
		Tokens:             sr.tokens,
	}, nil
}

func handleStreamEvent(ev agents.StreamEvent, sr *streamResult, onToken TokenCallback, textBuf *strings.Builder) {
	raw, ok := ev.(agents.RawResponsesStreamEvent)
	if !ok {
		return
	}
	if raw.Data.Type != "response.output_text.delta" {
		return
	}
	if sr.ttft.IsZero() {
		sr.ttft = time.Now()
	}
	if onToken != nil {
		onToken(raw.Data.Delta)
	}
	sr.tokens++
	textBuf.WriteString(raw.Data.Delta)
}
