package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/timenest/internal/backup"
	"github.com/dukerupert/timenest/internal/config"
	"github.com/dukerupert/timenest/internal/email"
	"github.com/dukerupert/timenest/internal/handler"
	"github.com/dukerupert/timenest/internal/middleware"
	"github.com/dukerupert/timenest/internal/push"
	"github.com/dukerupert/timenest/internal/store"
	ws "github.com/dukerupert/timenest/internal/websocket"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute

	// sentReminderRetention bounds the reminder log; occurrences older than
	// this can no longer fall inside a reminder window.
	sentReminderRetention = 48 * time.Hour
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	userH          *handler.UserHandler
	eventH         *handler.EventHandler
	calendarH      *handler.CalendarHandler
	contactH       *handler.ContactHandler
	searchH        *handler.SearchHandler
	pushH          *handler.PushHandler
	backupH        *handler.BackupHandler
	userStore      *store.UserStore
	sessionStore   *store.SessionStore
	pushStore      *store.PushStore
	reminders      *push.Reminders
	backups        *backup.Manager
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
	logger         *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	eventStore := store.NewEventStore(db)
	contactStore := store.NewContactStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	loc := cfg.Location()

	eventH := handler.NewEventHandler(eventStore, userStore, hub, loc, logger.With("component", "event"))
	mailer := email.NewClient(cfg.Mail.PostmarkToken, cfg.Mail.From, cfg.BaseURL, mailOptions(cfg)...)
	if mailer.Configured() {
		eventH.SetInviter(mailer)
	}

	pushService := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)
	var reminders *push.Reminders
	if pushService.Enabled() {
		reminders = push.NewReminders(pushService, pushStore, eventStore, cfg.ReminderLead(), loc, logger.With("component", "reminders"))
	}

	backups := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  cfg.Backup.Endpoint,
			Bucket:    cfg.Backup.Bucket,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		},
		Prefix:     cfg.Backup.Prefix,
		Passphrase: cfg.Backup.Passphrase,
		Retention:  cfg.BackupRetention(),
	}, db, backupStore, logger.With("component", "backup"))

	logger.Info("optional features",
		"invitations", mailer.Configured(),
		"reminders", reminders != nil,
		"backups", backups.Enabled(),
	)

	return &Server{
		db:  db,
		hub: hub,
		userH: handler.NewUserHandler(userStore, sessionStore, handler.UserOptions{
			SessionTTL:    cfg.SessionDuration(),
			SecureCookies: cfg.SecureCookies,
		}, logger.With("component", "user")),
		eventH:         eventH,
		calendarH:      handler.NewCalendarHandler(eventStore, userStore, hub, loc, cfg.FirstWeekday(), logger.With("component", "calendar")),
		contactH:       handler.NewContactHandler(contactStore, userStore, hub, logger.With("component", "contact")),
		searchH:        handler.NewSearchHandler(eventStore, userStore, loc, logger.With("component", "search")),
		pushH:          handler.NewPushHandler(pushStore, pushService.VAPIDPublicKey(), logger.With("component", "push")),
		backupH:        handler.NewBackupHandler(backups, logger.With("component", "backup")),
		userStore:      userStore,
		sessionStore:   sessionStore,
		pushStore:      pushStore,
		reminders:      reminders,
		backups:        backups,
		rateLimiter:    middleware.NewRateLimiter(),
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger,
	}
}

func mailOptions(cfg *config.Config) []email.Option {
	if cfg.Mail.APIURL == "" {
		return nil
	}
	return []email.Option{email.WithAPIURL(cfg.Mail.APIURL)}
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// Reminders returns the reminder job, or nil when push is not configured.
func (s *Server) Reminders() *push.Reminders {
	return s.reminders
}

// Backups returns the backup manager.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// Cleanup purges expired sessions, rate-limit windows and old reminder log
// entries. It is run on the configured cron schedule.
func (s *Server) Cleanup(now time.Time) {
	n, err := s.sessionStore.DeleteExpired(now)
	if err != nil {
		s.logger.Error("cleanup sessions", "error", err)
	}
	sent, err := s.pushStore.DeleteSentBefore(now.Add(-sentReminderRetention))
	if err != nil {
		s.logger.Error("cleanup sent reminders", "error", err)
	}
	removed := s.rateLimiter.Cleanup()
	s.logger.Debug("cleanup finished", "sessions", n, "sent_reminders", sent, "rate_limit_entries", removed)
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.HandleFunc("POST /api/auth/register", s.rateLimitedHandler(s.userH.Register))
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.userH.Login))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	return middleware.RateLimit(s.rateLimiter, middleware.ByIP, authRateLimit, authRateWindow)(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Account
	mux.HandleFunc("POST /api/auth/logout", s.userH.Logout)
	mux.HandleFunc("GET /api/users/me", s.userH.Me)
	mux.HandleFunc("PATCH /api/users/me", s.userH.UpdateMe)
	mux.HandleFunc("PUT /api/users/me/password", s.userH.ChangePassword)
	mux.HandleFunc("GET /api/users/{id}", s.userH.Get)
	mux.Handle("PUT /api/admin/users/{id}/role", middleware.RequireAdmin(http.HandlerFunc(s.userH.SetRole)))

	// Events
	mux.HandleFunc("POST /api/events", s.eventH.Create)
	mux.HandleFunc("GET /api/events/mine", s.eventH.ListMine)
	mux.HandleFunc("GET /api/events/participating", s.eventH.ListParticipating)
	mux.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	mux.HandleFunc("PUT /api/events/{id}", s.eventH.Update)
	mux.HandleFunc("DELETE /api/events/{id}", s.eventH.Delete)
	mux.HandleFunc("POST /api/events/{id}/join", s.eventH.Join)
	mux.HandleFunc("POST /api/events/{id}/leave", s.eventH.Leave)
	mux.HandleFunc("POST /api/events/{id}/participants", s.eventH.AddParticipant)
	mux.HandleFunc("DELETE /api/events/{id}/participants/{userID}", s.eventH.RemoveParticipant)

	// Calendar views
	mux.HandleFunc("GET /api/calendar/day", s.calendarH.Day)
	mux.HandleFunc("GET /api/calendar/hour", s.calendarH.Hour)
	mux.HandleFunc("GET /api/calendar/week", s.calendarH.Week)
	mux.HandleFunc("GET /api/calendar/month", s.calendarH.Month)
	mux.HandleFunc("GET /api/calendar/export.ics", s.calendarH.Export)
	mux.HandleFunc("POST /api/calendar/import", s.calendarH.Import)

	// Contact lists
	mux.HandleFunc("GET /api/contacts", s.contactH.List)
	mux.HandleFunc("POST /api/contacts", s.contactH.Create)
	mux.HandleFunc("GET /api/contacts/{id}", s.contactH.Get)
	mux.HandleFunc("PATCH /api/contacts/{id}", s.contactH.Rename)
	mux.HandleFunc("DELETE /api/contacts/{id}", s.contactH.Delete)
	mux.HandleFunc("GET /api/contacts/{id}/members", s.contactH.Members)
	mux.HandleFunc("POST /api/contacts/{id}/members", s.contactH.AddMember)
	mux.HandleFunc("DELETE /api/contacts/{id}/members/{userID}", s.contactH.RemoveMember)

	// Search
	mux.HandleFunc("GET /api/search/users", s.searchH.Users)
	mux.HandleFunc("GET /api/search/events", s.searchH.Events)

	// Push reminders
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.List)
	mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)

	// Backups
	mux.Handle("GET /api/admin/backups", middleware.RequireAdmin(http.HandlerFunc(s.backupH.List)))
	mux.Handle("POST /api/admin/backups", middleware.RequireAdmin(http.HandlerFunc(s.backupH.Run)))

	// Realtime notifications
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket"), s.allowedOrigins))
}
