package survey

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
	"github.com/zhouzirui/survey-runner/backend/pkg/utils"
)

// Service is the part of the survey service the handler needs.
type Service interface {
	Trials(ctx context.Context, sessionID string) ([]survey.Trial, error)
	SaveResponses(ctx context.Context, sessionID string, responses survey.Responses) error
}

// Handler 问卷数据的HTTP处理器
type Handler struct {
	svc    Service
	logger *zap.Logger
}

// New 创建问卷处理器
func New(svc Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes 注册问卷相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/trials", h.handleFetchTrials)
	r.Post("/responses", h.handleSaveResponses)
}

// RegisterLegacyRoutes mounts the endpoint names existing jsPsych pages post to.
func (h *Handler) RegisterLegacyRoutes(r chi.Router) {
	r.Post("/fetchTrials.php", h.handleFetchTrials)
	r.Post("/saveResponses.php", h.handleSaveResponses)
}

func (h *Handler) handleFetchTrials(w http.ResponseWriter, r *http.Request) {
	var req survey.TrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		utils.RespondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	trials, err := h.svc.Trials(r.Context(), req.SessionID)
	if err != nil {
		h.logger.Error("fetch trials failed", zap.String("session", req.SessionID), zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "failed to load trials")
		return
	}

	if trials == nil {
		trials = []survey.Trial{}
	}
	utils.RespondJSON(w, http.StatusOK, trials)
}

func (h *Handler) handleSaveResponses(w http.ResponseWriter, r *http.Request) {
	var responses survey.Responses
	if err := json.NewDecoder(r.Body).Decode(&responses); err != nil {
		msg := "invalid request body"
		if errors.Is(err, survey.ErrNotObject) || errors.Is(err, survey.ErrNonStringValue) {
			msg = err.Error()
		}
		utils.RespondError(w, http.StatusBadRequest, msg)
		return
	}

	sessionID := r.Header.Get(survey.SessionHeader)
	if err := h.svc.SaveResponses(r.Context(), sessionID, responses); err != nil {
		utils.RespondText(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, survey.PersistResult{Success: true})
}
