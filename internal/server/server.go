// Package server assembles the bot, the admin API and the background
// workers into one HTTP service.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/reedfamily/zomboidbot/internal/api"
	"github.com/reedfamily/zomboidbot/internal/auth"
	"github.com/reedfamily/zomboidbot/internal/backup"
	"github.com/reedfamily/zomboidbot/internal/bot"
	"github.com/reedfamily/zomboidbot/internal/config"
	"github.com/reedfamily/zomboidbot/internal/game"
	"github.com/reedfamily/zomboidbot/internal/logs"
	"github.com/reedfamily/zomboidbot/internal/metrics"
	"github.com/reedfamily/zomboidbot/internal/mods"
	"github.com/reedfamily/zomboidbot/internal/rcon"
	"github.com/reedfamily/zomboidbot/internal/scheduler"
	"github.com/reedfamily/zomboidbot/internal/serverini"
	"github.com/reedfamily/zomboidbot/internal/stats"
	"github.com/reedfamily/zomboidbot/internal/telegram"
	"github.com/reedfamily/zomboidbot/internal/workshop"
	"go.uber.org/zap"

	// Register game adapters
	_ "github.com/reedfamily/zomboidbot/internal/game/zomboid"
)

// GameID selects the log adapter.
const GameID = "zomboid"

// PollCheckInterval is how often expired mod polls are looked for.
const PollCheckInterval = 30 * time.Second

type Server struct {
	cfg       *config.Config
	db        *sql.DB
	log       *zap.Logger
	router    chi.Router
	metrics   *metrics.Metrics
	sessions  *Sessions
	tg        *telegram.Client
	bot       *bot.Bot
	collector *stats.Collector
	scheduler *scheduler.Scheduler
	cancel    context.CancelFunc
}

// NewLogs returns the accessor for the server's log directory.
func NewLogs(cfg *config.Config, log *zap.Logger) (*logs.Accessor, error) {
	adapter := game.Get(GameID)
	if adapter == nil {
		return nil, fmt.Errorf("no log adapter for %s", GameID)
	}
	return logs.Open(cfg.Server.LogsDirPath, adapter, log.Named("logs")), nil
}

// NewModManager opens the server ini and the installed-mod store.
func NewModManager(ctx context.Context, cfg *config.Config, db *sql.DB, log *zap.Logger) (*mods.Manager, error) {
	ini, err := serverini.Open(cfg.ServerIniPath())
	if err != nil {
		return nil, err
	}
	catalog := workshop.NewClient(cfg.Other.ModManagerTimeout.Duration(), log.Named("workshop"))
	return mods.NewManager(ctx, ini, catalog, mods.NewStore(db), log.Named("mods"))
}

func NewRCON(cfg *config.Config, log *zap.Logger) *rcon.Client {
	return rcon.New(cfg.RCONAddr(), cfg.Env.RCONPassword, cfg.RCON.Timeout.Duration(), cfg.RCON.AllowedCommands, log.Named("rcon"))
}

func New(cfg *config.Config, db *sql.DB, log *zap.Logger) (*Server, error) {
	m := metrics.New()

	authSvc := auth.NewService(db)
	warnDefaultCredentials(cfg, log)
	if err := authSvc.EnsureDefaultOperator(cfg.Env.AdminUser, cfg.Env.AdminPass); err != nil {
		return nil, fmt.Errorf("ensure default operator: %w", err)
	}

	// Session status lines are user output for the CLI; serve only logs.
	sessions, err := NewSessions(cfg, m, log, io.Discard, io.Discard)
	if err != nil {
		return nil, err
	}

	serverLogs, err := NewLogs(cfg, log)
	if err != nil {
		return nil, err
	}
	modMgr, err := NewModManager(context.Background(), cfg, db, log)
	if err != nil {
		return nil, err
	}
	if installed, err := modMgr.Installed(context.Background()); err == nil {
		m.ModsInstalled.Add(float64(len(installed)))
	}
	rc := NewRCON(cfg, log)

	tg := telegram.NewClient(cfg.TelegramBot.APIBaseURL, cfg.Env.TelegramToken)
	polls := bot.NewPollStore(db)
	opts := bot.DefaultOptions()
	opts.ChatID = cfg.TelegramBot.ChatID
	opts.MinAgree = cfg.Other.MinimumAgreeMembersForMod
	opts.MaxAnswers = cfg.Other.PollMaxAnswers
	opts.PollDuration = cfg.Other.PollDuration.Duration()
	opts.RestartNoticeDelay = cfg.Other.RestartNoticeDelay.Duration()
	b := bot.New(tg, sessions.Server, serverLogs, modMgr, polls, opts, m, log.Named("bot"))

	collector := stats.NewCollector(db, serverLogs, m, cfg.Other.PlayerSampleInterval.Duration(), log.Named("stats"))
	backupSvc := backup.NewService(db, filepath.Join(cfg.Env.DataDir, "backups"), cfg.Server.SavesDirPath, cfg.ServerIniPath(), log.Named("backup"))
	sched := scheduler.New(db, sessions.Server, serverLogs, backupSvc, log.Named("scheduler"))

	// Handlers
	sessionMap := map[string]api.Session{api.TargetServer: sessions.Server, api.TargetBot: sessions.Bot}
	authHandler := api.NewAuthHandler(authSvc, log)
	sessionHandler := api.NewSessionHandler(sessionMap, serverLogs, log)
	playersHandler := api.NewPlayersHandler(serverLogs, collector, log)
	modsHandler := api.NewModsHandler(modMgr, log)
	pollsHandler := api.NewPollsHandler(polls)
	backupHandler := api.NewBackupHandler(backupSvc, sessions.Server, log)
	scheduleHandler := api.NewScheduleHandler(sched)
	consoleHandler := api.NewConsoleHandler(sessions.Server, rc, log)
	webhookHandler := api.NewWebhookHandler(cfg.Env.WebhookSecret, b, log.Named("webhook"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", m.Handler())
	r.Post("/webhook", webhookHandler.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(api.AuthMiddleware(authSvc))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)

			r.Route("/session", func(r chi.Router) {
				r.Get("/", sessionHandler.Status)
				r.Post("/start", sessionHandler.Start)
				r.Post("/stop", sessionHandler.Stop)
				r.Post("/restart", sessionHandler.Restart)
			})

			r.Get("/players", playersHandler.Current)
			r.Get("/players/history", playersHandler.History)
			r.Get("/players/live", playersHandler.Live)

			r.Route("/mods", func(r chi.Router) {
				r.Get("/", modsHandler.List)
				r.Post("/", modsHandler.Install)
				r.Get("/{id}", modsHandler.Get)
				r.Delete("/{id}", modsHandler.Remove)
			})
			r.Get("/polls", pollsHandler.List)

			r.Route("/backups", func(r chi.Router) {
				r.Get("/", backupHandler.List)
				r.Post("/", backupHandler.Create)
				r.Get("/{backupId}/download", backupHandler.Download)
				r.Delete("/{backupId}", backupHandler.Delete)
				r.Post("/{backupId}/restore", backupHandler.Restore)
			})

			r.Route("/schedules", func(r chi.Router) {
				r.Get("/", scheduleHandler.List)
				r.Post("/", scheduleHandler.Create)
				r.Put("/{scheduleId}", scheduleHandler.Update)
				r.Delete("/{scheduleId}", scheduleHandler.Delete)
				r.Post("/{scheduleId}/run", scheduleHandler.Run)
			})

			r.Get("/console", consoleHandler.Handle)
			r.Post("/console", consoleHandler.Send)
			r.Post("/rcon", consoleHandler.RCON)
			r.Post("/broadcast", consoleHandler.Broadcast)
		})
	})

	return &Server{
		cfg:       cfg,
		db:        db,
		log:       log,
		router:    r,
		metrics:   m,
		sessions:  sessions,
		tg:        tg,
		bot:       b,
		collector: collector,
		scheduler: sched,
	}, nil
}

func (s *Server) Router() chi.Router {
	return s.router
}

// Start launches the background workers and registers the webhook when a
// public URL is configured.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.bot.Run(ctx, PollCheckInterval)
	s.collector.Start()
	s.scheduler.Start()

	_, err := s.registerWebhook(ctx)
	return err
}

// registerWebhook points Telegram at /webhook. It is skipped unless the
// public URL, the bot token and the webhook secret are all set.
func (s *Server) registerWebhook(ctx context.Context) (bool, error) {
	if s.cfg.Env.PublicURL == "" || s.cfg.Env.TelegramToken == "" {
		s.log.Warn("webhook not registered: ZOMBOID_PUBLIC_URL or the bot token is empty")
		return false, nil
	}
	if s.cfg.Env.WebhookSecret == "" {
		s.log.Warn("webhook not registered: ZOMBOID_WEBHOOK_SECRET is empty")
		return false, nil
	}
	url := strings.TrimRight(s.cfg.Env.PublicURL, "/") + "/webhook"
	if err := s.tg.SetWebhook(ctx, url, s.cfg.Env.WebhookSecret); err != nil {
		return false, fmt.Errorf("set webhook: %w", err)
	}
	s.log.Info("webhook registered", zap.String("url", url))
	return true, nil
}

// warnDefaultCredentials flags the built-in operator password, which
// gives anyone console and RCON access through the API.
func warnDefaultCredentials(cfg *config.Config, log *zap.Logger) {
	if cfg.Env.AdminPass == config.DefaultAdminPass {
		log.Warn("admin API uses the default operator password; set ZOMBOID_ADMIN_PASS",
			zap.String("username", cfg.Env.AdminUser))
	}
}

func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.collector != nil {
		s.collector.Stop()
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	if s.sessions != nil {
		s.sessions.Close()
	}
}

// requestLogger logs each request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
