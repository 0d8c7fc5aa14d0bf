package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mathiu1/aadhavmadhav-sub000/internal/auth"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/call"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/chat"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/config"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/control"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/history"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/media"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/metrics"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/peer"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/presence"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/signaling"
	"github.com/mathiu1/aadhavmadhav-sub000/internal/types"
	"github.com/mathiu1/aadhavmadhav-sub000/pkg/middleware"
)

// peerFactory adapts the peer manager to the call session's factory
// interface.
type peerFactory struct {
	manager *peer.Manager
}

func (f peerFactory) Create(initiator bool, stream media.Stream) (call.PeerHandle, error) {
	h, err := f.manager.Create(initiator, stream)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Str("signaling_url", cfg.SignalingURL).
		Str("log_level", cfg.LogLevel).
		Msg("starting agentd")

	// Signaling connection
	sig := signaling.NewClient(cfg.SignalingURL, cfg.AuthToken, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sig.Run(ctx)

	// Backend message API and local identity
	api := chat.NewClient(cfg.APIBaseURL, cfg.AuthToken)
	self := types.UserSummary{ID: cfg.AgentID, Name: cfg.AgentName, IsAdmin: true}
	if agent, err := api.SupportAgent(ctx); err != nil {
		log.Warn().Err(err).Msg("support-agent lookup failed, using configured identity")
	} else if agent.ID != "" {
		self = agent
		self.IsAdmin = true
	}

	// UI push hub
	hub := control.NewHub(log.Logger)
	go hub.Run()
	pusher := control.NewPusher(hub)

	// Presence views
	tracker := presence.NewTracker(sig, log.Logger)
	tracker.SetOnChange(func() {
		pusher.Presence(tracker.Online(), tracker.ActiveCalls())
	})
	tracker.SetOnForcedLogout(func(userID string) {
		if userID == self.ID {
			log.Warn().Msg("forced logout, shutting down")
			cancel()
		}
	})
	tracker.Start()
	defer tracker.Stop()

	// Microphone capture
	mic, err := media.NewDeviceSource(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audio capture")
	}

	// Peer connections
	peers := peer.NewManager(mic, log.Logger)

	// Local call history
	store, err := history.Open(cfg.HistoryPath, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open call history")
	}
	defer store.Close()

	// Call session
	session := call.NewSession(self, cfg.RingTimeout, sig, peerFactory{peers}, mic, tracker, pusher, log.Logger)
	session.SetRecorder(store)
	session.SetOnChange(pusher.CallState)
	session.Start()
	defer session.Stop()

	// Chat session
	chatSession := chat.NewSession(self, api, sig, cfg.ChatPageSize, log.Logger)
	chatSession.SetOnChange(pusher.ChatChanged)
	chatSession.Start()
	defer chatSession.Stop()

	// Control API
	handlers := control.NewHandlers(session, tracker, chatSession, store, sig, hub, log.Logger)
	wsHandler := control.NewWSHandler(hub, cfg, log.Logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes (no auth required)
	r.Get("/health", healthHandler)
	r.Get("/metrics", metrics.Get().Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Route("/call", func(r chi.Router) {
			r.Post("/start", handlers.HandleStartCall)
			r.Post("/answer", handlers.HandleAnswerCall)
			r.Post("/reject", handlers.HandleRejectCall)
			r.Post("/hangup", handlers.HandleHangup)
			r.Get("/state", handlers.HandleCallState)
			r.Get("/queue", handlers.HandleCallQueue)
			r.Get("/roster", handlers.HandleRoster)
		})
		r.Get("/presence/online", handlers.HandleOnline)
		r.Get("/history/recent", handlers.HandleRecentCalls)
		r.Get("/stats", handlers.HandleStats)

		r.Route("/chat", func(r chi.Router) {
			r.Get("/{userId}/messages", handlers.HandleChatMessages)
			r.Put("/{userId}/read", handlers.HandleMarkRead)
			r.Post("/messages", handlers.HandleSendMessage)
			r.Delete("/messages/{id}", handlers.HandleDeleteMessage)
			r.Get("/unread", handlers.HandleUnread)
		})

		r.Get("/ws", wsHandler.ServeHTTP)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("control api listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt or forced logout
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down...")

	// Hanging up releases the microphone and tears down any live peer
	// connection before the process exits.
	session.Stop()
	cancel()
	sig.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("agentd stopped")
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"agentd"}`)
}
