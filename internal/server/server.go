package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danmuck/scopectl/internal/debugger"
	"github.com/danmuck/scopectl/internal/logging"
	"github.com/danmuck/scopectl/internal/observability"
	"github.com/danmuck/scopectl/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

// Debugger is the part of *debugger.Debugger the admin API reads and steers.
type Debugger interface {
	SessionID() string
	Registry() *debugger.Registry
	ActiveRuntime() (debugger.ActiveRuntime, bool)
	ListFramePaths() []string
	ChangeRuntime(path string) (debugger.ActiveRuntime, error)
	ChangeRuntimeIndex(i int) (debugger.ActiveRuntime, error)
}

type Windows interface {
	ActiveWindowID() uint32
	List() []session.WindowInfo
}

// Admin serves health, metrics and runtime state for one debugger session.
type Admin struct {
	Name     string
	Addr     string
	Appeared time.Time

	dbg     Debugger
	windows Windows
	router  *gin.Engine
	log     zerolog.Logger
}

func New(name, addr string, corsOrigins []string, dbg Debugger, windows Windows) *Admin {
	observability.RegisterMetrics()
	logger := logging.Component("admin")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		Name:     name,
		Addr:     addr,
		Appeared: time.Now(),
		dbg:      dbg,
		windows:  windows,
		router:   r,
		log:      logger,
	}
	a.registerRoutes()
	return a
}

func (a *Admin) Handler() http.Handler {
	return a.router
}

// Serve listens on Addr until ctx is cancelled, then shuts down gracefully.
func (a *Admin) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.Addr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("admin serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin shutdown: %w", err)
		}
		return nil
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
