package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/survey-runner/backend/internal/runner"
	sessionservice "github.com/zhouzirui/survey-runner/backend/internal/service/session"
	"github.com/zhouzirui/survey-runner/backend/pkg/utils"
)

const sseKeepAlive = 15 * time.Second

// Config tunes the sessions the handler runs.
type Config struct {
	MinInterim time.Duration
	OnClose    runner.CloseHook
	Logger     *zap.Logger
}

// Handler 会话生命周期的HTTP处理器
type Handler struct {
	sessions  *sessionservice.Service
	loader    runner.Loader
	persister runner.Persister
	cfg       Config
	logger    *zap.Logger
	upgrader  websocket.Upgrader
}

// New 创建会话处理器
func New(sessions *sessionservice.Service, loader runner.Loader, persister runner.Persister, cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sessions:  sessions,
		loader:    loader,
		persister: persister,
		cfg:       cfg,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Get("/session/{sessionID}/events", h.handleEvents)
	r.Get("/session/{sessionID}/ws", h.handleWebSocket)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info("session created", zap.String("session", session.ID))
	utils.RespondJSON(w, http.StatusCreated, session)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondLookupError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

// handleEvents 以SSE推送会话状态变化
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		respondLookupError(w, err)
		return
	}
	events, cancel, err := h.sessions.Subscribe(sessionID)
	if err != nil {
		respondLookupError(w, err)
		return
	}
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	logger := h.logger.With(zap.String("session", sessionID))
	logger.Debug("event stream opened")
	if err := utils.SendSSEEvent(w, flusher, "state", map[string]any{"state": session.State}); err != nil {
		return
	}

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("event stream closed by client")
			return
		case ev, ok := <-events:
			if !ok {
				logger.Debug("event stream ended with session")
				return
			}
			if err := utils.SendSSEEvent(w, flusher, "state", ev); err != nil {
				logger.Warn("failed to send event", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "keepalive"); err != nil {
				return
			}
		}
	}
}

func respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, sessionservice.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	if errors.Is(err, sessionservice.ErrSessionClaimed) {
		utils.RespondError(w, http.StatusConflict, err.Error())
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}
