package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/croplink/voice-gateway/internal/knowledge"
	"github.com/croplink/voice-gateway/internal/models"
	"github.com/croplink/voice-gateway/internal/pipeline"
	"github.com/croplink/voice-gateway/internal/prompts"
	"github.com/croplink/voice-gateway/internal/store"
	"github.com/croplink/voice-gateway/internal/telemetry"
	"github.com/croplink/voice-gateway/internal/upstream"
	"github.com/croplink/voice-gateway/internal/ws"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	monitor := telemetry.NewMonitor(telemetry.Config{
		QueueCapacity: cfg.TelemetryQueue,
		WindowSize:    cfg.TelemetryWindow,
		Retention:     time.Duration(cfg.TelemetryRetentionMin) * time.Minute,
	})

	// Transcription backends
	asrBackends := map[string]pipeline.Transcriber{}
	if cfg.WhisperURL != "" {
		asrBackends["whisper"] = pipeline.NewWhisperTranscriber(cfg.WhisperURL, cfg.ASRPoolSize)
	}
	if cfg.ROCmURL != "" {
		asrBackends["rocm"] = pipeline.NewROCmTranscriber(cfg.ROCmURL, cfg.ASRPoolSize)
	}
	transcriber := pipeline.NewTranscriberRouter(asrBackends, cfg.ASRDefault)

	// Generation strategies, tried in order until one answers
	var generators []pipeline.TextGenerator
	if cfg.AgentBaseURL != "" {
		provider := agents.NewOpenaiProvider(agents.OpenaiProviderParams{
			APIKey:       param.NewOpt(cfg.AgentAPIKey),
			BaseURL:      param.NewOpt(cfg.AgentBaseURL),
			UseResponses: param.NewOpt(false),
		})
		generators = append(generators, pipeline.NewAgentGenerator(provider, cfg.AgentModel, cfg.MaxTokens))
	}
	if cfg.AnthropicAPIKey != "" {
		generators = append(generators, pipeline.NewAnthropicGenerator(
			cfg.AnthropicAPIKey, cfg.AnthropicURL, cfg.AnthropicModel, cfg.MaxTokens, cfg.LLMPoolSize))
	}
	generators = append(generators, pipeline.NewOllamaGenerator(
		cfg.OllamaURL, cfg.OllamaModel, prompts.DefaultAdvisor, cfg.MaxTokens, cfg.LLMPoolSize))
	generator := pipeline.NewGenerationChain(generators...)

	// Synthesis providers, local first so cloud voices only cover outages
	ttsHTTP := pipeline.NewPooledHTTPClient(cfg.TTSPoolSize, 30*time.Second)
	var synths []pipeline.Synthesizer
	if cfg.PiperURL != "" {
		synths = append(synths, pipeline.NewPiperProvider(cfg.PiperURL, cfg.PiperVoice, ttsHTTP))
	}
	if cfg.OpenAISpeechURL != "" {
		synths = append(synths, pipeline.NewOpenAISpeechProvider(
			cfg.OpenAISpeechURL, cfg.OpenAISpeechModel, cfg.OpenAISpeechVoice, cfg.OpenAISpeechSpeed, ttsHTTP))
	}
	if cfg.PollyRegion != "" {
		synths = append(synths, pipeline.NewPollyProvider(cfg.PollyRegion, cfg.PollyVoice, cfg.PollyEngine))
	}
	if cfg.ElevenLabsAPIKey != "" {
		synths = append(synths, pipeline.NewElevenLabsProvider(
			cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, cfg.ElevenLabsModelID, ttsHTTP))
	}

	backends := pipeline.Backends{
		Transcriber: transcriber,
		Generator:   generator,
		Validator:   pipeline.NewRuleValidator(),
		Monitor:     monitor,
	}
	if len(synths) > 0 {
		backends.Synthesizer = pipeline.NewSynthesisChain(synths...)
	}

	if cfg.QdrantURL != "" {
		qdrantHTTP := pipeline.NewPooledHTTPClient(cfg.QdrantPoolSize, 30*time.Second)
		embedHTTP := pipeline.NewPooledHTTPClient(cfg.LLMPoolSize, 30*time.Second)
		embedder := knowledge.NewEmbedder(cfg.OllamaURL, cfg.EmbeddingModel, embedHTTP)
		qdrant := knowledge.NewQdrant(cfg.QdrantURL, qdrantHTTP)

		initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := qdrant.EnsureCollection(initCtx, "agronomy", cfg.VectorSize); err != nil {
			slog.Warn("qdrant agronomy collection", "error", err)
		}
		initCancel()

		backends.Retriever = knowledge.NewRetriever(knowledge.RetrieverConfig{
			Embedder:       embedder,
			Qdrant:         qdrant,
			Collection:     "agronomy",
			TopK:           cfg.RetrievalTopK,
			ScoreThreshold: cfg.ScoreThreshold,
		})
		slog.Info("knowledge retrieval enabled", "qdrant", cfg.QdrantURL, "embedding_model", cfg.EmbeddingModel)
	}

	var journal *store.Store
	if cfg.DatabaseURL != "" {
		journal, err = store.Open(cfg.DatabaseURL, time.Duration(cfg.RetentionDays)*24*time.Hour)
		if err != nil {
			slog.Error("open journal store", "error", err)
			os.Exit(1)
		}
		backends.Store = journal
		slog.Info("journal store ready", "retention_days", cfg.RetentionDays)
	}

	registry := ws.NewRegistry()
	verifier := ws.StaticVerifier{Secret: cfg.SharedSecret}
	grace := time.Duration(cfg.SynthesisGraceSec) * time.Second

	assistantWS := ws.NewHandler(ws.HandlerConfig{
		Channel:        ws.ChannelAssistant,
		Registry:       registry,
		Verifier:       verifier,
		Backends:       backends,
		SystemPrompt:   prompts.ForChannel(cfg.SystemPrompt, false),
		MaxConcurrent:  cfg.MaxConcurrent,
		SynthesisGrace: grace,
	})
	journalWS := ws.NewHandler(ws.HandlerConfig{
		Channel:        ws.ChannelJournal,
		Registry:       registry,
		Verifier:       verifier,
		Backends:       backends,
		SystemPrompt:   prompts.ForChannel("", true),
		MaxConcurrent:  cfg.MaxConcurrent,
		SynthesisGrace: grace,
	})

	upstreams := upstream.NewRegistry(nil)
	if cfg.WhisperURL != "" {
		upstreams.Add(upstream.Upstream{Name: "whisper", Category: "transcription", HealthURL: cfg.WhisperURL})
	}
	if cfg.ROCmURL != "" {
		upstreams.Add(upstream.Upstream{Name: "rocm-whisper", Category: "transcription", HealthURL: cfg.ROCmURL})
	}
	upstreams.Add(upstream.Upstream{Name: "ollama", Category: "generation", HealthURL: cfg.OllamaURL})
	if cfg.PiperURL != "" {
		upstreams.Add(upstream.Upstream{Name: "piper", Category: "synthesis", HealthURL: cfg.PiperURL})
	}
	if cfg.QdrantURL != "" {
		upstreams.Add(upstream.Upstream{Name: "qdrant", Category: "knowledge", HealthURL: cfg.QdrantURL})
	}
	slog.Info("upstreams registered", "names", upstreams.Names())

	mux := http.NewServeMux()
	registerRoutes(mux, deps{
		ollamaURL:   cfg.OllamaURL,
		ollamaModel: cfg.OllamaModel,
		asr:         transcriber,
		monitor:     monitor,
		journal:     journal,
		upstreams:   upstreams,
		assistantWS: assistantWS,
		journalWS:   journalWS,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		slog.Info("unloading ollama models")
		if err := models.UnloadAll(ctx, cfg.OllamaURL); err != nil {
			slog.Warn("ollama unload", "error", err)
		}

		srv.Shutdown(ctx)
	}()

	slog.Info("gateway starting", "addr", addr, "max_concurrent", cfg.MaxConcurrent)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	monitor.Close()
	if journal != nil {
		journal.Close()
	}
	slog.Info("gateway stopped")
}
