// Package httpapi serves the cooperation protocol over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dynamoRando/rcd-sub004/internal/model"
	"github.com/dynamoRando/rcd-sub004/internal/notify"
)

const (
	PathHealth  = "/healthz"
	PathMetrics = "/metrics"
)

const shutdownTimeout = 5 * time.Second

// Server exposes a node's inbound handlers as JSON POST endpoints.
type Server struct {
	engine *gin.Engine
}

// New returns a Server routing host calls to host and participant calls to
// participant. A nil gatherer leaves /metrics unrouted.
func New(host notify.HostHandler, participant notify.ParticipantHandler, gatherer prometheus.Gatherer) *Server {
	s := &Server{engine: gin.New()}
	s.engine.Use(gin.Recovery(), logRequests(), handleError())

	s.engine.GET(PathHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		s.engine.GET(PathMetrics, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.engine.POST(notify.PathUpdatedHash, call(host.HandleUpdatedHash))
	s.engine.POST(notify.PathRemovedRow, call(host.HandleRemovedRow))
	s.engine.POST(notify.PathContractAcceptance, call(host.HandleContractAcceptance))

	s.engine.POST(notify.PathContractOffer, call(participant.HandleContractOffer))
	s.engine.POST(notify.PathAuth, call(participant.HandleAuth))
	s.engine.POST(notify.PathInsert, push(participant.HandleInsert))
	s.engine.POST(notify.PathUpdate, push(participant.HandleUpdate))
	s.engine.POST(notify.PathDelete, push(participant.HandleDelete))
	return s
}

// Handler returns the routed engine.
func (s *Server) Handler() http.Handler { return s.engine }

// Serve accepts connections on ln until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func call[Req any](fn func(context.Context, Req) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Req
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(model.NewParseError("invalid request body", err))
			return
		}
		if err := fn(c.Request.Context(), req); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func push(fn func(context.Context, notify.DataPush) (model.PartialDataResult, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req notify.DataPush
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(model.NewParseError("invalid request body", err))
			return
		}
		res, err := fn(c.Request.Context(), req)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// handleError renders the last handler error as an ErrorBody.
func handleError() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status := StatusFor(err)
		body := notify.ErrorBody{Code: model.CodeOf(err), Message: err.Error()}
		var me *model.Error
		if errors.As(err, &me) {
			body.Message = me.Message
		}
		if status >= http.StatusInternalServerError {
			slog.Error("request failed", "path", c.FullPath(), "error", err)
		}
		c.AbortWithStatusJSON(status, body)
	}
}

func logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch model.CodeOf(err) {
	case model.ErrCodeAuthenticationFailure:
		return http.StatusUnauthorized
	case model.ErrCodeContractNotFound,
		model.ErrCodeTableNotFound,
		model.ErrCodeDbNotFound,
		model.ErrCodeParticipantNotFound,
		model.ErrCodePendingNotFound:
		return http.StatusNotFound
	case model.ErrCodeParseError, model.ErrCodeDecodeFailure:
		return http.StatusBadRequest
	case model.ErrCodeInvalidTransition,
		model.ErrCodePolicyViolation,
		model.ErrCodePolicyNotSet,
		model.ErrCodeNotAllTablesSet,
		model.ErrCodeBehaviorNotSet,
		model.ErrCodeNameCollision:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
