package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"voice-session-orchestrator/internal/app"
	"voice-session-orchestrator/internal/config"
	"voice-session-orchestrator/internal/events"
	httpapi "voice-session-orchestrator/internal/http"
	"voice-session-orchestrator/internal/observability"
	"voice-session-orchestrator/internal/service/credential"
	detectbackend "voice-session-orchestrator/internal/service/detect/backend"
	"voice-session-orchestrator/internal/service/history"
	"voice-session-orchestrator/internal/service/media"
	"voice-session-orchestrator/internal/service/media/ffmpeg"
	mediamock "voice-session-orchestrator/internal/service/media/mock"
	"voice-session-orchestrator/internal/service/session"
	"voice-session-orchestrator/internal/service/transport"
)

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("application start failed")
	}

	// Analytics publisher with separate topics for transcripts and lifecycle events
	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicSession:    cfg.Kafka.TopicSession,
		Principal:       cfg.Kafka.Principal,
	})
	defer publisher.Close()

	var source media.Source
	switch cfg.Media.Source {
	case "ffmpeg":
		source = ffmpeg.New(cfg.Media.Device)
	default:
		source = mediamock.New()
	}

	broker := credential.NewBroker(cfg.Backend.BaseURL, cfg.Backend.CredentialPath, cfg.Backend.AgentID, cfg.Backend.RequestTimeout)
	detector := detectbackend.New(cfg.Backend.BaseURL, cfg.Backend.DetectionPath, cfg.Detection.RequestTimeout)
	recorder := history.NewRecorder(cfg.Backend.BaseURL, cfg.Backend.HistoryPath, cfg.Backend.RequestTimeout)

	transportCfg := transport.Config{
		BaseURL:            cfg.Realtime.BaseURL,
		Model:              cfg.Realtime.Model,
		NegotiationTimeout: cfg.Realtime.NegotiationTimeout,
		PlaybackRetryDelay: cfg.Realtime.PlaybackRetryDelay,
	}
	sink := transport.NewFFplaySink()

	var negotiator session.Negotiator
	switch cfg.Realtime.Transport {
	case "websocket":
		negotiator = session.WrapNegotiator(transport.NewWSNegotiator(transportCfg, sink))
	default:
		negotiator = session.WrapNegotiator(transport.NewNegotiator(transportCfg, sink))
	}

	orchestrator := session.NewOrchestrator(session.Config{
		AgentID:            cfg.Backend.AgentID,
		ClientVersion:      cfg.Service.Name,
		DefaultLanguage:    cfg.Detection.DefaultLanguage,
		Instructions:       cfg.Realtime.Instructions,
		DetectionEnabled:   cfg.Detection.Enabled,
		DetectionThreshold: cfg.Detection.ConfidenceThreshold,
		CredentialTimeout:  cfg.Backend.RequestTimeout,
		ConnectTimeout:     cfg.Realtime.NegotiationTimeout,
		Constraints: media.Constraints{
			SampleRateHz:     cfg.Media.SampleRateHz,
			Channels:         cfg.Media.Channels,
			EchoCancellation: cfg.Media.EchoCancellation,
			NoiseSuppression: cfg.Media.NoiseSuppression,
		},
	}, media.NewGuard(source), broker, negotiator, detector, recorder, publisher, nil)

	obs := observability.NewServer(":" + cfg.Observability.MetricsPort)
	obs.Start()

	server := &http.Server{
		Addr:    ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(application, orchestrator),
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Control API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()
	obs.SetReady(true)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	obs.SetReady(false)
	orchestrator.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http shutdown error")
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("metrics shutdown error")
	}
	application.Shutdown()
}
