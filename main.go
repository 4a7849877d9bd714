// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/rapidaai/voice-gateway/config"
	internal_agent_openai "github.com/rapidaai/voice-gateway/internal/agent/openai"
	internal_agentstore "github.com/rapidaai/voice-gateway/internal/agentstore"
	internal_calllog "github.com/rapidaai/voice-gateway/internal/calllog"
	internal_notify "github.com/rapidaai/voice-gateway/internal/notify"
	internal_pacer "github.com/rapidaai/voice-gateway/internal/pacer"
	internal_recorder "github.com/rapidaai/voice-gateway/internal/recorder"
	internal_session "github.com/rapidaai/voice-gateway/internal/session"
	internal_synthesizer_sarvam "github.com/rapidaai/voice-gateway/internal/synthesizer/sarvam"
	internal_transcriber_deepgram "github.com/rapidaai/voice-gateway/internal/transcriber/deepgram"
	"github.com/rapidaai/voice-gateway/pkg/commons"
	"github.com/rapidaai/voice-gateway/pkg/connectors"
	"github.com/rapidaai/voice-gateway/pkg/utils"
	gateway_routers "github.com/rapidaai/voice-gateway/router"
)

const (
	shutdownTimeout = 10 * time.Second
	drainInterval   = 200 * time.Millisecond
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("failed to initialize configuration: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("invalid application configuration: %v", err)
	}

	logger, err := commons.NewApplicationLogger()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Errorf("gateway exited with error: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger commons.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := connectors.NewDatabaseConnector(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}
	defer database.Close()

	logStore := internal_calllog.NewStore(database, logger)
	if err := logStore.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate call logs: %w", err)
	}
	agentStore := internal_agentstore.NewStore(database, logger)
	if err := agentStore.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate agent definitions: %w", err)
	}

	registry := internal_session.NewRegistry()
	completer := internal_agent_openai.NewCompleter(logger, cfg.OpenAIApiKey, cfg.LLMConfig)
	deps := buildSessionDependencies(cfg, logger, registry, completer, agentStore, logStore)

	if cfg.RedisConfig.Enabled {
		redis := connectors.NewRedisConnector(cfg, logger)
		defer redis.Close()
		notifier := internal_notify.NewDisconnectNotifier(logger, redis.Client(), registry)
		if err := notifier.Start(ctx); err != nil {
			// External hangups are an operator convenience; calls still work.
			logger.Warnw("disconnect notifier unavailable", "error", err)
		}
	}

	if utils.FromEnvironmentStr(cfg.Environment).IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:    []string{"*"},
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", utils.HEADER_API_KEY, utils.HEADER_AUTH_KEY},
		AllowWebSockets: true,
		MaxAge:          12 * time.Hour,
	}))

	gateway_routers.HealthCheckRoutes(cfg, engine, logger, database, registry)
	gateway_routers.TelephonyRoutes(cfg, engine, logger, deps)
	gateway_routers.AdminRoutes(cfg, engine, logger, registry, logStore)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("%s %s listening on %s", cfg.Name, cfg.Version, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down, terminating %d live calls", registry.Count())
		registry.TerminateAll("server_shutdown")
		drainSessions(registry)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func buildSessionDependencies(
	cfg *config.AppConfig,
	logger commons.Logger,
	registry *internal_session.Registry,
	completer *internal_agent_openai.Completer,
	agents internal_agentstore.Store,
	logs internal_calllog.Store,
) internal_session.Dependencies {
	deps := internal_session.Dependencies{
		Agents:    agents,
		Logs:      logs,
		Registry:  registry,
		Completer: completer,

		NewTranscriber: func(language string) (internal_session.Transcriber, error) {
			option, err := internal_transcriber_deepgram.NewDeepgramOption(logger, cfg.DeepgramApiKey, utils.Option{
				"listen.model":       cfg.SttConfig.Model,
				"listen.language":    internal_transcriber_deepgram.MapLanguage(language),
				"listen.endpointing": strconv.Itoa(cfg.SttConfig.EndpointingMs),
			})
			if err != nil {
				return nil, err
			}
			return internal_transcriber_deepgram.NewSpeechToText(logger, option), nil
		},

		NewSynthesizer: func(voice string) (internal_session.Synthesizer, error) {
			speaker := voice
			if speaker == "" {
				speaker = cfg.TtsConfig.Speaker
			}
			option, err := internal_synthesizer_sarvam.NewSarvamOption(logger, cfg.SarvamApiKey, nil, utils.Option{
				"speaker.model": cfg.TtsConfig.Model,
				"speaker.voice": speaker,
			})
			if err != nil {
				return nil, err
			}
			return internal_synthesizer_sarvam.NewTextToSpeech(logger, option), nil
		},

		NewPlayer: func(sink internal_pacer.MediaSink, streamSid string) internal_session.Player {
			return internal_pacer.NewPacer(logger, sink, streamSid)
		},
	}

	if cfg.RecordingConfig.Enabled {
		deps.NewRecorder = func(streamSid string) internal_session.Recorder {
			return internal_recorder.NewCallRecorder(logger, cfg.RecordingConfig.Directory, streamSid)
		}
	}
	return deps
}

// drainSessions waits for live sessions to finish their goodbye and teardown.
// Hijacked websocket connections are outside http.Server.Shutdown's view, so
// the registry is the only signal that calls actually ended.
func drainSessions(registry *internal_session.Registry) {
	deadline := time.Now().Add(shutdownTimeout)
	for registry.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(drainInterval)
	}
}
