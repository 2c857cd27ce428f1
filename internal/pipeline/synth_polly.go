package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"
)

// pollySpeech is the Polly API surface the provider calls; the SDK client
// satisfies it.
type pollySpeech interface {
	SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyProvider synthesizes speech with AWS Polly. The SDK client resolves
// lazily on first use, so startup does not require AWS credentials while
// another provider serves all traffic.
type PollyProvider struct {
	region string
	voice  string
	engine string

	mu     sync.Mutex
	client pollySpeech
}

func NewPollyProvider(region, voice, engine string) *PollyProvider {
	return &PollyProvider{region: region, voice: voice, engine: engine}
}

func (p *PollyProvider) Name() string { return "polly" }

func (p *PollyProvider) Synthesize(ctx context.Context, text string) (*SynthesisResult, error) {
	client, err := p.resolveClient(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	engine := pollytypes.EngineStandard
	if p.engine == "neural" {
		engine = pollytypes.EngineNeural
	}
	out, err := client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       engine,
		OutputFormat: pollytypes.OutputFormatMp3,
		Text:         &text,
		TextType:     pollytypes.TextTypeText,
		VoiceId:      pollytypes.VoiceId(p.voice),
	})
	if err != nil {
		return nil, normalizePollyError(err)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read polly audio stream: %w", err)
	}
	return &SynthesisResult{Audio: audio, Format: "mp3", LatencyMs: time.Since(start).Milliseconds()}, nil
}

func (p *PollyProvider) resolveClient(ctx context.Context) (pollySpeech, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	p.client = polly.NewFromConfig(cfg)
	return p.client, nil
}

// normalizePollyError keeps cancellation errors recognizable and folds SDK
// error codes into messages the chain can report.
func normalizePollyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return fmt.Errorf("polly throttled: %w", err)
		case "TextLengthExceededException":
			return fmt.Errorf("polly rejected sentence length: %w", err)
		}
		return fmt.Errorf("polly %s: %w", apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("polly: %w", err)
}
