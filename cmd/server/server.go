package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"example.com/livefeed/internal/feed"
	"example.com/livefeed/internal/images"
	config "example.com/livefeed/internal/init"
	"example.com/livefeed/internal/logger"
	"example.com/livefeed/internal/middleware"
	"example.com/livefeed/internal/notify"
	"example.com/livefeed/internal/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Server struct {
	cfg     *config.Config
	store   store.StoreInterface
	feed    *feed.Service
	images  *images.Store
	hub     *notify.Hub
	limiter *middleware.RateLimiter
	secret  []byte
}

var logg = logger.New()

// New wires handlers to the store, image store and notifier. The hub is the
// socket endpoint the notifier is bound to once the server is listening.
func New(cfg *config.Config, st store.StoreInterface, imgs *images.Store, notifier *notify.Notifier) *Server {
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.TrustProxyHeaders = cfg.TrustProxyHeaders

	return &Server{
		cfg:     cfg,
		store:   st,
		feed:    feed.NewService(st, imgs, notifier),
		images:  imgs,
		hub:     notify.NewHub(),
		limiter: limiter,
		secret:  []byte(cfg.JWTSecret),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))
	r.Use(securityHeaders)
	r.Use(s.limiter.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/socket", s.hub)
	r.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(s.cfg.ImagesDir))))

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))

		// Public endpoints
		r.Post("/auth/signup", s.signupHandler)
		r.Get("/feed/posts", s.getPostsHandler)

		// Protected endpoints with JWT authentication middleware
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(s.secret))
			r.Post("/feed/post", s.createPostHandler)
			r.Get("/feed/post/{postId}", s.getPostHandler)
			r.Put("/feed/post/{postId}", s.updatePostHandler)
			r.Delete("/feed/post/{postId}", s.deletePostHandler)
		})
	})

	return r
}

// Run starts the server, binds the notifier to the socket hub once the
// listener is open, and shuts everything down gracefully when ctx ends.
func Run(ctx context.Context, cfg *config.Config, st store.StoreInterface, notifier *notify.Notifier) error {
	imgs, err := images.NewStore(cfg.ImagesDir)
	if err != nil {
		return err
	}
	s := New(cfg, st, imgs, notifier)

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second, // prevent slowloris attacks
		WriteTimeout:      30 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.ServerAddr)
	if err != nil {
		return err
	}
	notifier.Init(s.hub)

	// --- Start server in a goroutine ---
	serveErr := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled() {
			logg.Info("server", "Starting HTTPS server", logger.F("addr", cfg.ServerAddr))
			err = srv.ServeTLS(ln, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			logg.Info("server", "Starting HTTP server", logger.F("addr", cfg.ServerAddr))
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	go s.sweepLimiter(ctx)

	// --- Graceful shutdown ---
	var runErr error
	select {
	case <-ctx.Done():
		logg.Info("server", "Shutdown signal received")
	case runErr = <-serveErr:
		logg.Error("server", "Server stopped unexpectedly", runErr)
	}

	notifier.Close()
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
		if runErr == nil {
			runErr = err
		}
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
	return runErr
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(); n > 0 {
				logg.Debug("server", "Dropped idle rate limit buckets", logger.F("count", n))
			}
		}
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}
