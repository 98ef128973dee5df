package control

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/ai-interview/client/internal/api"
	"github.com/zhouzirui/ai-interview/client/internal/audio"
	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
	"github.com/zhouzirui/ai-interview/client/internal/session"
	"github.com/zhouzirui/ai-interview/client/internal/transport"
	"github.com/zhouzirui/ai-interview/client/pkg/utils"
)

var log = logrus.WithField("component", "control")

// Session is the orchestrator surface driven over HTTP.
type Session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	StartAnswer(ctx context.Context) error
	EndAnswer() error
	Snapshot() session.Snapshot
	ReportInputs() (sid string, history []interview.HistoryEntry, emotions []interview.EmotionSample)
	Subscribe() (<-chan session.Update, func())
}

// Reporter builds and submits the final report.
type Reporter interface {
	Assemble(ctx context.Context, history []interview.HistoryEntry, emotions []interview.EmotionSample, resumeText string) interview.ReportRequest
	Submit(ctx context.Context, req interview.ReportRequest) (*interview.Report, error)
}

// Handler 本地控制接口
type Handler struct {
	session   Session
	reporter  Reporter
	heartbeat time.Duration
}

// New 创建控制接口处理器
func New(s Session, reporter Reporter) *Handler {
	return &Handler{session: s, reporter: reporter, heartbeat: 15 * time.Second}
}

// RegisterRoutes 注册会话控制相关路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session/start", h.handleStart)
	r.Post("/session/stop", h.handleStop)
	r.Get("/session", h.handleSnapshot)
	r.Post("/answer/start", h.handleStartAnswer)
	r.Post("/answer/end", h.handleEndAnswer)
	r.Post("/report", h.handleReport)
	r.Get("/events", h.handleEvents)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Start(r.Context()); err != nil {
		respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Stop(r.Context()); err != nil {
		respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *Handler) handleStartAnswer(w http.ResponseWriter, r *http.Request) {
	if err := h.session.StartAnswer(r.Context()); err != nil {
		respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.session.Snapshot())
}

func (h *Handler) handleEndAnswer(w http.ResponseWriter, r *http.Request) {
	if err := h.session.EndAnswer(); err != nil {
		respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, h.session.Snapshot())
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ResumeText string `json:"resume_text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	_, history, emotions := h.session.ReportInputs()
	req := h.reporter.Assemble(r.Context(), history, emotions, payload.ResumeText)
	rep, err := h.reporter.Submit(r.Context(), req)
	if err != nil {
		respondSessionError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, rep)
}

// handleEvents streams session updates as SSE until the client leaves.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel := h.session.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	utils.SendSSEEvent(w, flusher, "state", h.session.Snapshot())

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug("[sse] client left")
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			utils.SendSSEEvent(w, flusher, u.Type, u)
		case t := <-ticker.C:
			utils.SendSSEChunk(w, flusher, map[string]any{
				"event": "heartbeat",
				"time":  t.UTC().Format(time.RFC3339),
			})
		}
	}
}

// respondSessionError maps the error taxonomy onto HTTP statuses.
func respondSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, session.ErrEmptyAnswer):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, audio.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, api.ErrRemoteRequestFailed), errors.Is(err, transport.ErrUnavailable):
		status = http.StatusBadGateway
	}
	utils.RespondError(w, status, err.Error())
}
