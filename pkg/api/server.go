// Package api implements the optional HTTP+SSE wire protocol:
// submit/status/cancel routes, a health check, and an SSE event stream
// fed by the Event Bus. It is the network-facing half of the
// submission/observation interface the CLI and any external client
// drive.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mnemosyne-ai/mnemosyne/pkg/eventlog"
	"github.com/mnemosyne-ai/mnemosyne/pkg/ids"
	"github.com/mnemosyne-ai/mnemosyne/pkg/models"
	"github.com/mnemosyne-ai/mnemosyne/pkg/orchestrator"
	"github.com/mnemosyne-ai/mnemosyne/pkg/storage"
	"github.com/mnemosyne-ai/mnemosyne/pkg/version"
)

// Server is the optional HTTP+SSE surface. One Server binds
// to one port per running instance.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	instanceID ids.InstanceId
	store      storage.Storage
	orch       *orchestrator.Orchestrator
	bus        *eventlog.Bus
	log        *eventlog.EventLog
}

// New constructs a Server. Call Start to bind and serve.
func New(instanceID ids.InstanceId, store storage.Storage, orch *orchestrator.Orchestrator, log *eventlog.EventLog, bus *eventlog.Bus) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())

	s := &Server{engine: e, instanceID: instanceID, store: store, orch: orch, bus: bus, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/events", s.handleEvents)
	s.engine.POST("/work", s.handleSubmit)
	s.engine.GET("/work/:id", s.handleStatus)
	s.engine.POST("/work/:id/cancel", s.handleCancel)
}

// Start binds the server to the first free port starting at preferred,
// scanning preferred+1..preferred+10 before giving up. It returns the
// bound port with ok=true, or ok=false if the whole range is busy — the
// caller is expected to log and continue without HTTP.
func (s *Server) Start(preferred int) (port int, ok bool) {
	for p := preferred; p <= preferred+10; p++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", p))
		if err != nil {
			continue
		}
		s.httpServer = &http.Server{Handler: s.engine}
		go func() {
			if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("api: server exited", "error", err)
			}
		}()
		slog.Info("api: listening", "port", p)
		return p, true
	}
	slog.Warn("api: no free port in range, continuing without HTTP", "preferred", preferred)
	return 0, false
}

// Shutdown gracefully drains in-flight requests within deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	subscribers := 0
	if s.bus != nil {
		subscribers = s.bus.SubscriberCount()
	}
	status := "ok"
	if s.log != nil && s.log.Degraded() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:      status,
		Version:     version.Version,
		InstanceID:  s.instanceID.String(),
		Subscribers: subscribers,
	})
}

// handleEvents serves GET /events?since=<event_id> as text/event-stream:
// one JSON-encoded Event per frame, with live events relayed from the
// Event Bus after the backlog drains, so a client never misses the gap
// between its backlog read and its bus subscription.
func (s *Server) handleEvents(c *gin.Context) {
	since := ids.EventId{}
	if raw := c.Query("since"); raw != "" {
		parsed, err := ids.ParseEventId(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid since event id"})
			return
		}
		since = parsed
	}

	sub := s.bus.Subscribe()
	defer sub.Unsubscribe()

	backlog, err := s.log.Since(c.Request.Context(), since, 1000)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	w := c.Writer
	flusher, canFlush := w.(http.Flusher)

	lastSeen := since
	for _, ev := range backlog {
		writeEventFrame(w, toEventDTO(ev))
		lastSeen = ev.EventID
		if canFlush {
			flusher.Flush()
		}
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events:
			if !open {
				return
			}
			if !lastSeen.Less(ev.EventID) {
				continue // already covered by the backlog read above
			}
			lastSeen = ev.EventID
			writeEventFrame(w, toEventDTO(ev))
			if canFlush {
				flusher.Flush()
			}
		}
	}
}

func writeEventFrame(w http.ResponseWriter, dto EventDTO) {
	data, err := jsonMarshal(dto)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	ns, err := ids.ParseNamespace(req.Namespace)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	var deps []ids.WorkItemId
	for _, d := range req.Dependencies {
		id, err := ids.ParseWorkItemId(d)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid dependency id %q: %v", d, err)})
			return
		}
		deps = append(deps, id)
	}

	id, err := s.orch.HandleSubmit(c.Request.Context(), models.Spec{Intent: req.Intent}, req.Priority, ns, deps)
	if err != nil {
		writeCoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, SubmitResponse{WorkItemID: id.String()})
}

func (s *Server) handleStatus(c *gin.Context) {
	id, err := ids.ParseWorkItemId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid work item id"})
		return
	}
	wi, err := s.store.GetWorkItem(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "work item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, toStatusResponse(wi))
}

func (s *Server) handleCancel(c *gin.Context) {
	id, err := ids.ParseWorkItemId(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid work item id"})
		return
	}
	if err := s.orch.Cancel(c.Request.Context(), id); err != nil {
		writeCoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeCoreError(c *gin.Context, err error) {
	var coreErr *orchestrator.CoreError
	if errors.As(err, &coreErr) {
		switch coreErr.Kind {
		case orchestrator.KindCycle, orchestrator.KindUnknownDependency:
			c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Kind: string(coreErr.Kind)})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Kind: string(coreErr.Kind)})
		}
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

func jsonMarshal(v any) ([]byte, error) {
	return json.Marshal(v)
}


