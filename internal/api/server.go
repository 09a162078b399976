package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/locus/internal/engine"
	"github.com/samcharles93/locus/internal/telemetry"
	"github.com/samcharles93/locus/internal/version"
)

type Server struct {
	service  *PredictionService
	stats    *telemetry.Stats
	gatherer prometheus.Gatherer
	clock    func() time.Time
}

// NewServer wires the HTTP handlers. stats and gatherer may be nil, in which
// case /v1/stats reports nothing and /metrics is not registered.
func NewServer(service *PredictionService, stats *telemetry.Stats, gatherer prometheus.Gatherer) *Server {
	return &Server{
		service:  service,
		stats:    stats,
		gatherer: gatherer,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/predict", s.handlePredict)
	e.GET("/v1/model", s.handleModel)
	e.GET("/v1/stats", s.handleStats)
	e.GET("/healthz", s.handleHealth)
	if s.gatherer != nil {
		h := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
		e.GET("/metrics", func(c *echo.Context) error {
			h.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}
}

func (s *Server) handlePredict(c *echo.Context) error {
	if s.service == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "prediction service not configured", "", "")
	}
	req, err := decodeJSON[PredictRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	rep, err := s.service.Predict(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			return writeBadRequest(c, err.Error())
		}
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	return c.JSON(http.StatusOK, PredictResponse{
		ID:        "pred_" + uuid.NewString(),
		Object:    "prediction",
		Created:   s.clock().Unix(),
		Model:     s.service.Info().Name,
		Features:  rep.Features,
		X:         rep.Prediction.X,
		Y:         rep.Prediction.Y,
		LatencyUs: rep.Prediction.LatencyMicros(),
		LatencyMs: rep.Prediction.LatencyMillis(),
	})
}

func (s *Server) handleModel(c *echo.Context) error {
	if s.service == nil {
		return writeNotFound(c, "no model loaded")
	}
	return c.JSON(http.StatusOK, s.service.Info())
}

func (s *Server) handleStats(c *echo.Context) error {
	if s.stats == nil {
		return c.JSON(http.StatusOK, telemetry.Snapshot{})
	}
	return c.JSON(http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleHealth(c *echo.Context) error {
	state := engine.StateUninitialized.String()
	if s.service != nil {
		state = s.service.Info().State
	}
	resp := HealthResponse{Status: "ok", State: state, Version: version.String()}
	if state != engine.StateReady.String() {
		resp.Status = "unavailable"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
