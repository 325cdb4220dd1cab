// Package server exposes transfer status over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/auth"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/journal"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const Version = "0.1.0"

type Server struct {
	Name    string
	Addr    string
	Started time.Time

	store     journal.Store
	router    *gin.Engine
	validator auth.Validator
}

func New(name, addr string, corsOrigins []string, store journal.Store) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Name:    name,
		Addr:    addr,
		Started: time.Now(),
		store:   store,
		router:  r,
	}
	s.RegisterRoutes()
	return s
}

// SetValidator guards the /transfers routes. A nil validator leaves them open.
func (s *Server) SetValidator(v auth.Validator) {
	s.validator = v
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens on Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("node", s.Name).Str("addr", s.Addr).Msg("status server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
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
