package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/auth"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/journal"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"node":    s.Name,
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	transfers := s.router.Group("/transfers", s.requireToken)
	transfers.GET("", func(c *gin.Context) {
		entries, err := s.store.List(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("list transfers failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transfers": entries})
	})

	transfers.GET("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tensor id must be an unsigned 32-bit integer"})
			return
		}
		entry, err := s.store.Get(c.Request.Context(), uint32(id))
		if errors.Is(err, journal.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entry)
	})
}

// requireToken reads the validator per request so SetValidator may follow New.
func (s *Server) requireToken(c *gin.Context) {
	auth.Middleware(s.validator)(c)
}
