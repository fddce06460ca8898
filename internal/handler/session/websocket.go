package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
	"github.com/zhouzirui/survey-runner/backend/internal/runner"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
	closeGrace = time.Second
)

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// bridge renders a session over one websocket connection.
type bridge struct {
	conn      *websocket.Conn
	sessionID string
	logger    *zap.Logger

	writeMu   sync.Mutex
	responses chan survey.ResponseMap
}

func newBridge(conn *websocket.Conn, sessionID string, logger *zap.Logger) *bridge {
	return &bridge{
		conn:      conn,
		sessionID: sessionID,
		logger:    logger,
		responses: make(chan survey.ResponseMap, 1),
	}
}

// Render sends the pages and waits for the participant's answers.
func (b *bridge) Render(ctx context.Context, pages []survey.Page) (survey.ResponseMap, error) {
	if err := b.send("pages", pages); err != nil {
		return nil, fmt.Errorf("send pages: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case responses := <-b.responses:
		return responses, nil
	}
}

func (b *bridge) sendState(ev survey.Event) {
	data := map[string]any{"state": ev.State}
	if ev.Detail != "" {
		data["detail"] = ev.Detail
	}
	if err := b.send("state", data); err != nil {
		b.logger.Debug("write state failed", zap.Error(err))
	}
}

func (b *bridge) sendError(message string) {
	if err := b.send("error", map[string]string{"message": message}); err != nil {
		b.logger.Debug("write error failed", zap.Error(err))
	}
}

func (b *bridge) send(msgType string, data interface{}) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	b.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return b.conn.WriteJSON(outgoingMessage{
		Type:      msgType,
		SessionID: b.sessionID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

// finish sends a close frame and gives the peer closeGrace to answer it.
func (b *bridge) finish() {
	b.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished")
	if err := b.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		b.logger.Debug("write close failed", zap.Error(err))
	}
	b.writeMu.Unlock()
	b.conn.SetReadDeadline(time.Now().Add(closeGrace))
}

// readPump delivers answers to Render until the connection drops.
func (b *bridge) readPump(sess *runner.Session) error {
	for {
		var msg inboundMessage
		if err := b.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Debug("read failed", zap.Error(err))
			}
			return err
		}
		b.conn.SetReadDeadline(time.Now().Add(pongWait))

		switch msg.Type {
		case "responses":
			if sess.State() != survey.StateCollecting {
				b.sendError("session is not collecting responses")
				continue
			}
			var responses survey.ResponseMap
			if err := json.Unmarshal(msg.Data, &responses); err != nil || responses == nil {
				b.sendError("invalid responses payload")
				continue
			}
			select {
			case b.responses <- responses:
			default:
				b.sendError("responses already submitted")
			}
		default:
			b.sendError("unsupported message type: " + msg.Type)
		}
	}
}

// handleWebSocket 通过WebSocket驱动一次完整的问卷会话
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.sessions.Claim(r.Context(), sessionID); err != nil {
		respondLookupError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sessions.Release(sessionID)
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("session", sessionID))
	logger.Info("websocket connected")

	b := newBridge(conn, sessionID, logger)
	sess := runner.New(sessionID, h.loader, b, h.persister, runner.Options{
		MinInterim: h.cfg.MinInterim,
		OnClose:    h.cfg.OnClose,
		Observers:  []runner.Observer{b.sendState, h.sessions.Publish},
		Logger:     logger,
	})

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pingLoop(gctx, conn)
		return nil
	})

	g.Go(func() error {
		defer cancel()
		_ = b.readPump(sess)
		if !sess.State().Terminal() {
			logger.Info("participant left before completion", zap.String("state", string(sess.State())))
			if err := sess.Close(context.WithoutCancel(gctx)); err != nil {
				logger.Warn("close hook failed", zap.Error(err))
			}
		}
		return nil
	})

	g.Go(func() error {
		out, err := sess.Run(gctx)
		switch {
		case errors.Is(err, runner.ErrClosed):
		case err != nil && sess.State() == survey.StateDone:
			b.sendError(err.Error())
			_ = b.send("saved", out.Result)
		case err != nil:
			logger.Warn("session failed", zap.Error(err))
			b.sendError(err.Error())
		default:
			_ = b.send("saved", out.Result)
		}
		b.finish()
		return nil
	})

	_ = g.Wait()

	if err := h.sessions.EndSession(context.Background(), sessionID); err != nil {
		logger.Debug("end session", zap.Error(err))
	}
	logger.Info("websocket closed")
}

// pingLoop 定期发送ping消息
func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
