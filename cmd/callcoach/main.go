package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/analysis"
	"callcoach-server/pkg/audio"
	"callcoach-server/pkg/config"
	"callcoach-server/pkg/database"
	httpserver "callcoach-server/pkg/http"
	"callcoach-server/pkg/messaging"
	"callcoach-server/pkg/metrics"
	"callcoach-server/pkg/pipeline"
	"callcoach-server/pkg/sentiment"
	"callcoach-server/pkg/stt"
	"callcoach-server/pkg/tts"
	"callcoach-server/pkg/version"
)

var logger = logrus.New()

func main() {
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if err := cfg.Logging.ApplyLogging(logger); err != nil {
		logger.WithError(err).Fatal("Failed to configure logging")
	}

	logger.WithField("version", version.Version).Info("Starting callcoach server")

	metrics.StartMetrics(logger, cfg.HTTP.EnableMetrics)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Persistence.
	connectCtx, connectCancel := context.WithTimeout(rootCtx, cfg.Database.ConnectTimeout)
	db, err := database.Connect(connectCtx, logger, &cfg.Database)
	connectCancel()
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(rootCtx); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}
	repo := database.NewRepository(db, logger)

	// Job queue.
	queue, err := buildQueue(&cfg.Queue)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize job queue")
	}
	defer queue.Close()

	// Collaborating engines.
	sttManager := buildSTT(&cfg.STT)
	scorer := buildScorer(&cfg.Sentiment)
	ttsManager := buildTTS(&cfg.TTS)
	ttsManager.StartJanitor(rootCtx)

	uploads, err := audio.NewStore(logger, &cfg.Audio)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize audio store")
	}

	// Moment detection and summary synthesis.
	detectionCfg := analysis.DefaultDetectionConfig()
	if len(cfg.Detection.ObjectionKeywords) > 0 {
		detectionCfg.ObjectionKeywords = cfg.Detection.ObjectionKeywords
	}
	if len(cfg.Detection.BuyingSignalKeywords) > 0 {
		detectionCfg.BuyingSignalKeywords = cfg.Detection.BuyingSignalKeywords
	}

	detector, err := analysis.NewDetector(detectionCfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to build moment detector")
	}
	synthesizer := analysis.NewSynthesizer(detectionCfg, logger)

	// Event sinks: the websocket hub always, AMQP when configured.
	hub := httpserver.NewAnalysisHub(logger)
	go hub.Run(rootCtx)

	publisher := &eventFanout{targets: []pipeline.EventPublisher{hub}}

	amqpClient := messaging.NewAMQPClient(logger, &cfg.Messaging)
	if amqpClient.Enabled() {
		if err := amqpClient.Connect(); err != nil {
			logger.WithError(err).Warn("AMQP broker unavailable at startup, continuing without it")
		}
		publisher.targets = append(publisher.targets, amqpClient)
		defer amqpClient.Disconnect()
	}

	// Analysis workers.
	processor := pipeline.NewProcessor(logger, pipeline.ProcessorOptions{
		Queue:       queue,
		Store:       repo,
		Transcriber: sttManager,
		Scorer:      scorer,
		Detector:    detector,
		Synthesizer: synthesizer,
		Publisher:   publisher,
		Workers:     cfg.Queue.Workers,
	})
	processor.Start(rootCtx)

	// HTTP front.
	server := httpserver.NewServer(logger, &cfg.HTTP)
	server.MountAPI(httpserver.NewHandler(logger, httpserver.HandlerOptions{
		Store:           repo,
		Jobs:            processor,
		Uploads:         uploads,
		Speech:          ttsManager,
		Analyzer:        analysis.NewContentAnalyzer(detectionCfg.TopicKeywords),
		AudioDir:        cfg.TTS.OutputDir,
		MomentThreshold: cfg.Detection.MomentThreshold,
	}))
	server.MountWebSocket(hub)
	server.SetDatabase(db)
	server.SetQueue(queue)
	server.SetBroker(amqpClient)
	server.Start()

	// Block until a shutdown signal, then wind down in dependency order:
	// stop accepting requests, stop workers, then release backends.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.WithField("signal", sig.String()).Info("Received shutdown signal, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}

	rootCancel()
	processor.Wait()

	logger.Info("Shutdown complete")
}

// buildQueue selects the configured queue backend.
func buildQueue(cfg *config.QueueConfig) (pipeline.Queue, error) {
	if cfg.Backend == "redis" {
		return pipeline.NewRedisQueue(logger, cfg.RedisURL, cfg.PollInterval)
	}
	return pipeline.NewMemoryQueue(logger, cfg.BufferSize), nil
}

// buildSTT registers every configured speech-to-text provider. A provider
// that fails to initialize is logged and skipped; the manager falls back
// among the ones that registered.
func buildSTT(cfg *config.STTConfig) *stt.ProviderManager {
	manager := stt.NewProviderManager(logger, cfg.DefaultProvider)

	for _, name := range cfg.SupportedProviders {
		var provider stt.Provider
		switch name {
		case "openai":
			provider = stt.NewOpenAIProvider(logger, &cfg.OpenAI)
		case "google":
			provider = stt.NewGoogleProvider(logger, &cfg.Google)
		case "amazon":
			provider = stt.NewAmazonProvider(logger, &cfg.Amazon)
		case "mock":
			provider = stt.NewMockProvider(logger)
		default:
			logger.WithField("provider", name).Warn("Unknown STT provider, skipping")
			continue
		}

		if err := manager.RegisterProvider(provider); err != nil {
			logger.WithError(err).WithField("provider", name).Warn("STT provider unavailable")
		}
	}

	return manager
}

// buildScorer selects the configured sentiment scorer.
func buildScorer(cfg *config.SentimentConfig) sentiment.Scorer {
	if cfg.Scorer == "huggingface" {
		return sentiment.NewHuggingFaceScorer(logger, cfg.APIKey, cfg.Model)
	}
	return sentiment.NewLexiconScorer(logger)
}

// buildTTS registers every configured text-to-speech engine.
func buildTTS(cfg *config.TTSConfig) *tts.EngineManager {
	manager, err := tts.NewEngineManager(logger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize TTS manager")
	}

	for _, name := range cfg.SupportedEngines {
		var engine tts.Engine
		switch name {
		case "google":
			engine = tts.NewGoogleEngine(logger, cfg)
		case "espeak":
			engine = tts.NewESpeakEngine(logger, cfg)
		case "mock":
			engine = tts.NewMockEngine(logger, cfg)
		default:
			logger.WithField("engine", name).Warn("Unknown TTS engine, skipping")
			continue
		}

		if err := manager.RegisterEngine(engine); err != nil {
			logger.WithError(err).WithField("engine", name).Warn("TTS engine unavailable")
		}
	}

	return manager
}

// eventFanout delivers each pipeline event to every configured sink.
type eventFanout struct {
	targets []pipeline.EventPublisher
}

func (f *eventFanout) PublishEvent(event, callID string, payload map[string]interface{}) error {
	var firstErr error
	for _, target := range f.targets {
		if err := target.PublishEvent(event, callID, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
