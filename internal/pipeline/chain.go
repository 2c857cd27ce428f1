package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/croplink/voice-gateway/internal/metrics"
)

// AttemptError records one failed strategy inside a chain.
type AttemptError struct {
	Strategy string
	Err      error
}

func (e *AttemptError) Error() string { return fmt.Sprintf("%s: %v", e.Strategy, e.Err) }
func (e *AttemptError) Unwrap() error { return e.Err }

// ChainError aggregates the attempt errors of an exhausted chain.
type ChainError struct {
	Attempts []*AttemptError
}

func (e *ChainError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return "all strategies failed: " + strings.Join(parts, "; ")
}

func (e *ChainError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a
	}
	return errs
}

var (
	_ TextGenerator = (*GenerationChain)(nil)
	_ Synthesizer   = (*SynthesisChain)(nil)
)

// GenerationChain tries its strategies in order and returns the first
// success. A strategy that fails after emitting tokens ends the chain: the
// client has already seen part of that stream, and replaying it through
// another strategy would duplicate text.
type GenerationChain struct {
	strategies []TextGenerator
}

func NewGenerationChain(strategies ...TextGenerator) *GenerationChain {
	return &GenerationChain{strategies: strategies}
}

func (c *GenerationChain) Name() string { return "generation-chain" }

func (c *GenerationChain) Generate(ctx context.Context, userText, knowledgeContext, systemPrompt string, onToken TokenCallback) (*GenerationResult, error) {
	if len(c.strategies) == 0 {
		return nil, errors.New("no generation strategies configured")
	}
	chainErr := &ChainError{}
	for _, s := range c.strategies {
		emitted := 0
		counting := func(tok string) {
			emitted++
			if onToken != nil {
				onToken(tok)
			}
		}
		res, err := s.Generate(ctx, userText, knowledgeContext, systemPrompt, counting)
		if err == nil {
			return res, nil
		}
		chainErr.Attempts = append(chainErr.Attempts, &AttemptError{Strategy: s.Name(), Err: err})
		if emitted > 0 || ctx.Err() != nil {
			return nil, chainErr
		}
		slog.Warn("generation strategy failed", "strategy", s.Name(), "error", err)
	}
	return nil, chainErr
}

// SynthesisChain tries its providers in order and returns the first
// success. The chain runs once per sentence; there is no retry above it.
type SynthesisChain struct {
	providers []Synthesizer
}

func NewSynthesisChain(providers ...Synthesizer) *SynthesisChain {
	return &SynthesisChain{providers: providers}
}

func (c *SynthesisChain) Name() string { return "synthesis-chain" }

func (c *SynthesisChain) Synthesize(ctx context.Context, text string) (*SynthesisResult, error) {
	if len(c.providers) == 0 {
		return nil, errors.New("no synthesis providers configured")
	}
	start := time.Now()
	chainErr := &ChainError{}
	for _, p := range c.providers {
		res, err := p.Synthesize(ctx, text)
		if err == nil {
			metrics.StageDuration.WithLabelValues("synthesis").Observe(time.Since(start).Seconds())
			return res, nil
		}
		chainErr.Attempts = append(chainErr.Attempts, &AttemptError{Strategy: p.Name(), Err: err})
		if ctx.Err() != nil {
			break
		}
		slog.Warn("synthesis provider failed", "provider", p.Name(), "error", err)
	}
	metrics.Errors.WithLabelValues("synthesis", "exhausted").Inc()
	return nil, chainErr
}
