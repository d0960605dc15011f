package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kohrachel/weshare-sub000/internal/backup"
	"github.com/kohrachel/weshare-sub000/internal/docstore"
	"github.com/kohrachel/weshare-sub000/internal/handler"
	"github.com/kohrachel/weshare-sub000/internal/metrics"
	"github.com/kohrachel/weshare-sub000/internal/middleware"
	"github.com/kohrachel/weshare-sub000/internal/push"
	"github.com/kohrachel/weshare-sub000/internal/reminder"
	"github.com/kohrachel/weshare-sub000/internal/ridecache"
	"github.com/kohrachel/weshare-sub000/internal/rides"
	"github.com/kohrachel/weshare-sub000/internal/rsvp"
	"github.com/kohrachel/weshare-sub000/internal/store"
	ws "github.com/kohrachel/weshare-sub000/internal/websocket"
)

// Config carries the settings the server needs beyond the database.
type Config struct {
	JWTSecret         string
	Push              push.Config
	ReminderTolerance time.Duration
	DispatchInterval  time.Duration
	RSVPPerMinute     int
	Backup            backup.Config
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	cache       *ridecache.Cache
	rideH       *handler.RideHandler
	userH       *handler.UserHandler
	devicesH    *handler.DeviceHandler
	dispatcher  *push.Dispatcher
	backups     *backup.Manager
	rateLimiter *middleware.RateLimiter
	registry    *prometheus.Registry
	jwtSecret   string
	logger      *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	docs := docstore.New(db)
	rideStore := store.NewRideStore(docs)
	userStore := store.NewUserStore(docs)
	pushSt := store.NewPushStore(db)
	reminderStore := store.NewReminderStore(db)

	// Ride cache, mirrored to websocket clients
	cache := ridecache.New(logger.With("component", "ridecache"))
	cache.OnChange(ws.RideObserver(hub))

	notifier := push.NewNotifier(reminderStore, pushSt, cfg.Push.Configured())
	scheduler := reminder.NewScheduler(notifier, logger.With("component", "reminder"),
		reminder.WithTolerance(cfg.ReminderTolerance),
		reminder.WithMetrics(collector),
	)

	coord := rsvp.NewCoordinator(
		rsvp.StoreRepository{Rides: rideStore, Users: userStore},
		cache, scheduler, collector, logger.With("component", "rsvp"),
	)
	rideSvc := rides.NewService(rideStore, cache, scheduler, logger.With("component", "rides"))

	// Push delivery only runs with VAPID keys
	var devicesH *handler.DeviceHandler
	var dispatcher *push.Dispatcher
	if cfg.Push.Configured() {
		pushSvc := push.NewService(cfg.Push)
		devicesH = handler.NewDeviceHandler(pushSt, pushSvc, notifier, logger.With("component", "devices"))
		dispatcher = push.NewDispatcher(pushSvc, reminderStore, pushSt, cfg.DispatchInterval, collector, logger.With("component", "push"))
	}

	backups := backup.NewManager(cfg.Backup, db, store.NewBackupStore(db), collector, logger.With("component", "backup"))

	return &Server{
		db:          db,
		hub:         hub,
		cache:       cache,
		rideH:       handler.NewRideHandler(rideSvc, coord, scheduler, logger.With("component", "ride")),
		userH:       handler.NewUserHandler(userStore, logger.With("component", "user")),
		devicesH:    devicesH,
		dispatcher:  dispatcher,
		backups:     backups,
		rateLimiter: middleware.NewRateLimiter(cfg.RSVPPerMinute, cfg.RSVPPerMinute),
		registry:    registry,
		jwtSecret:   cfg.JWTSecret,
		logger:      logger,
	}
}

// Dispatcher returns the reminder dispatcher, or nil when push is not configured.
func (s *Server) Dispatcher() *push.Dispatcher {
	return s.dispatcher
}

// Backups returns the backup manager. It stays disabled without storage
// credentials.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (viewer identity optional)
	optional := middleware.OptionalUser(s.jwtSecret)
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", metrics.Handler(s.registry))
	outerMux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
	outerMux.Handle("GET /api/rides", optional(http.HandlerFunc(s.rideH.List)))
	outerMux.Handle("GET /api/rides/{id}", optional(http.HandlerFunc(s.rideH.Get)))
	if s.devicesH != nil {
		outerMux.HandleFunc("GET /api/reminders/vapid-key", s.devicesH.VAPIDKey)
	}

	// Protected routes
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)
	outerMux.Handle("/", middleware.RequireUser(s.jwtSecret)(protectedMux))

	// Apply request logging middleware
	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":     "ok",
		"rides":      s.cache.Len(),
		"ws_clients": s.hub.ClientCount(),
		"backup":     s.backups.Status(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.rateLimiter, middleware.UserOrIP)(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Ride API routes
	mux.HandleFunc("POST /api/rides", s.rideH.Create)
	mux.Handle("POST /api/rides/{id}/rsvp", s.rateLimitedHandler(s.rideH.ToggleRSVP))
	mux.HandleFunc("POST /api/rides/{id}/cancel-reminder", s.rideH.CancelReminder)

	// Profile
	mux.HandleFunc("GET /api/users/me", s.userH.Me)
	mux.HandleFunc("PUT /api/users/me", s.userH.UpdateMe)

	// Ride reminder devices
	if s.devicesH != nil {
		mux.HandleFunc("POST /api/reminders/devices", s.devicesH.Register)
		mux.HandleFunc("GET /api/reminders/devices", s.devicesH.List)
		mux.HandleFunc("DELETE /api/reminders/devices/{id}", s.devicesH.Remove)
		mux.HandleFunc("POST /api/reminders/devices/test", s.devicesH.SendSample)
		mux.HandleFunc("GET /api/reminders/permission", s.devicesH.Permission)
	}
}
