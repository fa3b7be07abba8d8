package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/soulra/clinical-router/internal/agent/graph"
	"github.com/soulra/clinical-router/internal/agent/graph/conversations"
	"github.com/soulra/clinical-router/internal/agent/model"
	errx "github.com/soulra/clinical-router/internal/core/error"
	"github.com/soulra/clinical-router/internal/metrics"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

const bodyLimit = "1M"

// HeaderRequestID lets callers supply their own request identifier.
const HeaderRequestID = echo.HeaderXRequestID

// Config holds the HTTP server settings.
type Config struct {
	Addr         string `envconfig:"HTTP_ADDR" default:":8080"`
	ReadTimeout  string `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout string `envconfig:"HTTP_WRITE_TIMEOUT" default:"180s"`
}

// AgentRequest is the inbound workflow request.
type AgentRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	PatientID      string `json:"patient_id,omitempty"`
	DoctorID       string `json:"doctor_id,omitempty"`
	Message        string `json:"message"`
}

// AgentResponse is returned on success. Failures carry ErrorResponse instead
// and never an answer.
type AgentResponse struct {
	RequestID string         `json:"request_id"`
	Intent    string         `json:"intent"`
	Answer    string         `json:"answer"`
	Debug     map[string]any `json:"debug,omitempty"`
}

type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error"`
}

type HistoryResponse struct {
	Scope    string          `json:"scope"`
	Messages []model.Message `json:"messages"`
}

type PrescriptionRequest struct {
	Content string `json:"content"`
}

// Server is the thin HTTP layer over the workflow runner.
type Server struct {
	runner  graph.Runner
	manager *conversations.MessagesManager
	metrics *metrics.Metrics
	addr    string
	echo    *echo.Echo
}

// New creates a new HTTP server
func New(cfg Config, runner graph.Runner, manager *conversations.MessagesManager, m *metrics.Metrics) (*Server, error) {
	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, err
	}

	s := &Server{runner: runner, manager: manager, metrics: m, addr: cfg.Addr}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = readTimeout
	e.Server.WriteTimeout = writeTimeout
	e.Server.IdleTimeout = 60 * time.Second
	e.HTTPErrorHandler = errorHandler

	// Global middleware
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator:    uuid.NewString,
		TargetHeader: HeaderRequestID,
	}))
	e.Use(s.instrument)
	e.Use(echomw.BodyLimit(bodyLimit))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	v1 := e.Group("/v1")
	v1.POST("/agent", s.agentHandler)

	conv := v1.Group("/conversations/:scope")
	conv.GET("/history", s.historyHandler)
	conv.POST("/prescriptions", s.prescriptionHandler)

	s.echo = e
	return s, nil
}

// Handler returns the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logx.Info().Str("addr", s.addr).Msg("HTTP server starting")
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// agentHandler runs the workflow and persists the exchange on success.
func (s *Server) agentHandler(c echo.Context) error {
	requestID := requestIDOf(c)

	var req AgentRequest
	if err := decodeJSON(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{RequestID: requestID, Error: "invalid request body: " + err.Error()})
	}

	ctx := c.Request().Context()
	in := model.QueryInput{
		RequestID:      requestID,
		ConversationID: req.ConversationID,
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		Message:        req.Message,
	}
	state, err := s.runner.Invoke(ctx, in)
	if err != nil {
		status := errx.HTTPStatus(err)
		logx.Error().Err(err).Str("request_id", requestID).Int("status", status).Msg("Agent request failed")
		return c.JSON(status, ErrorResponse{RequestID: requestID, Error: err.Error()})
	}

	persisted := true
	if err := s.manager.SaveExchange(ctx, in.Scope(), in.Message, state.Answer()); err != nil {
		persisted = false
		logx.Warn().Err(err).Str("request_id", requestID).Str("scope", in.Scope().Key()).Msg("Failed to persist exchange")
	}
	state.AddDebug(model.DebugExchangePersisted, persisted)

	return c.JSON(http.StatusOK, AgentResponse{
		RequestID: requestID,
		Intent:    state.Intent().String(),
		Answer:    state.Answer(),
		Debug:     state.Debug(),
	})
}

func (s *Server) historyHandler(c echo.Context) error {
	scope := model.ParseScopeKey(c.Param("scope"))

	messages, err := s.manager.History(c.Request().Context(), scope)
	if err != nil {
		return c.JSON(errx.HTTPStatus(err), ErrorResponse{RequestID: requestIDOf(c), Error: err.Error()})
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{Scope: scope.Key(), Messages: messages})
}

func (s *Server) prescriptionHandler(c echo.Context) error {
	scope := model.ParseScopeKey(c.Param("scope"))

	var req PrescriptionRequest
	if err := decodeJSON(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{RequestID: requestIDOf(c), Error: "invalid request body: " + err.Error()})
	}
	rx, err := s.manager.SavePrescription(c.Request().Context(), scope, req.Content)
	if err != nil {
		return c.JSON(errx.HTTPStatus(err), ErrorResponse{RequestID: requestIDOf(c), Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, rx)
}

// instrument counts every request by route template and final status.
func (s *Server) instrument(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		route := c.Request().Method + " " + c.Path()
		status := c.Response().Status
		s.metrics.IncHTTPRequest(route, status)
		logx.Debug().
			Str("route", route).
			Int("status", status).
			Str("request_id", requestIDOf(c)).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
		return nil
	}
}

// errorHandler renders echo errors (unknown route, body too large, panics)
// in the ErrorResponse shape.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if err := c.JSON(status, ErrorResponse{RequestID: requestIDOf(c), Error: msg}); err != nil {
		logx.Error().Err(err).Msg("Failed to encode error response")
	}
}

func requestIDOf(c echo.Context) string {
	return c.Response().Header().Get(HeaderRequestID)
}

func decodeJSON(c echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
