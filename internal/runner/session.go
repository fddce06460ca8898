// Package runner sequences one survey session: load the trials, hand the
// pages to a renderer, persist what the participant answered.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

var (
	// ErrClosed is returned by Run when Close ended the session first.
	ErrClosed = errors.New("session closed")
	// ErrInvalidTransition is returned when a phase is entered out of order.
	ErrInvalidTransition = errors.New("invalid session transition")

	errSubmitting = errors.New("responses are being saved")
)

// Loader 获取会话的页面
type Loader interface {
	LoadTrials(ctx context.Context, sessionID string) ([]survey.Page, error)
}

// Renderer 展示页面, 参与者完成问卷后返回
type Renderer interface {
	Render(ctx context.Context, pages []survey.Page) (survey.ResponseMap, error)
}

// Persister 保存收集到的答案
type Persister interface {
	Persist(ctx context.Context, sessionID string, responses survey.ResponseMap) (survey.PersistResult, error)
}

// Observer 按顺序接收每次状态转换, 不得调用 Close
type Observer func(survey.Event)

// CloseHook 在会话完成前被关闭时执行一次
type CloseHook func(ctx context.Context, s *Session) error

// Options 会话参数
type Options struct {
	// MinInterim 加载和保存阶段的最短持续时间
	MinInterim time.Duration
	OnClose    CloseHook
	Observers  []Observer
	Logger     *zap.Logger
}

// Outcome 一次运行的结果
type Outcome struct {
	Pages      []survey.Page
	Responses  survey.ResponseMap
	Result     survey.PersistResult
	PersistErr error
}

var transitions = map[survey.State][]survey.State{
	survey.StateIdle:       {survey.StateLoading},
	survey.StateLoading:    {survey.StateReady, survey.StateFailed},
	survey.StateReady:      {survey.StateCollecting},
	survey.StateCollecting: {survey.StateSubmitting, survey.StateFailed},
	survey.StateSubmitting: {survey.StateDone},
}

// Session 单个参与者的一次运行
type Session struct {
	id        string
	loader    Loader
	renderer  Renderer
	persister Persister
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	mu        sync.Mutex
	emitMu    sync.Mutex
	state     survey.State
	cancel    context.CancelFunc
	responses survey.ResponseMap
	closeOnce sync.Once
	settled   chan struct{}
}

// New 创建处于空闲状态的会话
func New(id string, loader Loader, renderer Renderer, persister Persister, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:        id,
		loader:    loader,
		renderer:  renderer,
		persister: persister,
		opts:      opts,
		logger:    logger.With(zap.String("session", id)),
		now:       time.Now,
		state:     survey.StateIdle,
		settled:   make(chan struct{}),
	}
}

// ID 返回会话标识
func (s *Session) ID() string { return s.id }

// State 返回当前生命周期状态
func (s *Session) State() survey.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Responses 返回已收集答案的副本, 收集结束前为 nil
func (s *Session) Responses() survey.ResponseMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responses.Clone()
}

// Run 驱动会话从 Idle 到 Done。加载结束后才调用渲染器,
// 保存结束后才进入 Done。保存失败仍会进入 Done, 错误与结果一并返回。
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.state == survey.StateIdle {
		s.cancel = cancel
	}
	s.mu.Unlock()

	if err := s.transition(survey.StateLoading, ""); err != nil {
		return Outcome{}, err
	}

	pages, err := s.load(runCtx)
	if err != nil {
		if terr := s.transition(survey.StateFailed, err.Error()); terr != nil {
			return Outcome{}, terr
		}
		return Outcome{}, err
	}
	if err := s.transition(survey.StateReady, fmt.Sprintf("%d pages", len(pages))); err != nil {
		return Outcome{}, err
	}

	out := Outcome{Pages: pages}

	if err := s.transition(survey.StateCollecting, ""); err != nil {
		return out, err
	}
	collected, err := s.renderer.Render(runCtx, pages)
	if err != nil {
		err = fmt.Errorf("render survey: %w", err)
		if terr := s.transition(survey.StateFailed, err.Error()); terr != nil {
			return out, terr
		}
		return out, err
	}

	s.mu.Lock()
	s.responses = collected.Clone()
	s.mu.Unlock()
	out.Responses = collected.Clone()

	if err := s.transition(survey.StateSubmitting, ""); err != nil {
		return out, err
	}
	out.Result, out.PersistErr = s.persist(runCtx, out.Responses.Clone())
	defer close(s.settled)

	detail := "saved"
	if out.PersistErr != nil {
		detail = out.PersistErr.Error()
	} else if !out.Result.Success {
		detail = "not saved"
	}
	if err := s.transition(survey.StateDone, detail); err != nil {
		return out, err
	}
	if out.PersistErr != nil {
		return out, fmt.Errorf("persist responses: %w", out.PersistErr)
	}
	return out, nil
}

// Close 结束尚未完成的会话并执行一次关闭钩子, 已结束的会话不受影响。
// 正在进行的保存不会被取消: Close 等待其完成, 会话最终进入 Done。
func (s *Session) Close(ctx context.Context) error {
	for {
		err := s.transition(survey.StateClosed, "closed before completion")
		if err == nil {
			break
		}
		if !errors.Is(err, errSubmitting) {
			return nil
		}
		select {
		case <-s.settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	var hookErr error
	s.closeOnce.Do(func() {
		if s.opts.OnClose != nil {
			hookErr = s.opts.OnClose(ctx, s)
		}
	})
	return hookErr
}

func (s *Session) load(ctx context.Context) ([]survey.Page, error) {
	wait := s.interim()
	pages, err := s.loader.LoadTrials(ctx, s.id)
	wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trials: %w", err)
	}
	return pages, nil
}

// persist 不随 ctx 取消, 只有节奏等待受 ctx 控制
func (s *Session) persist(ctx context.Context, responses survey.ResponseMap) (survey.PersistResult, error) {
	wait := s.interim()
	result, err := s.persister.Persist(context.WithoutCancel(ctx), s.id, responses)
	wait(ctx)
	return result, err
}

// interim 启动节奏计时器, 返回的函数阻塞到计时结束
func (s *Session) interim() func(context.Context) {
	if s.opts.MinInterim <= 0 {
		return func(context.Context) {}
	}
	timer := time.NewTimer(s.opts.MinInterim)
	return func(ctx context.Context) {
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
}

func (s *Session) transition(to survey.State, detail string) error {
	s.mu.Lock()
	from := s.state
	if from == survey.StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	if from == survey.StateSubmitting && to == survey.StateClosed {
		s.mu.Unlock()
		return errSubmitting
	}
	if !allowed(from, to) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	s.state = to
	ev := survey.Event{SessionID: s.id, From: from, State: to, Detail: detail, At: s.now().UTC()}

	// Hand over to emitMu before releasing mu so observers see transitions in order.
	s.emitMu.Lock()
	s.mu.Unlock()
	defer s.emitMu.Unlock()

	s.logger.Debug("session transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("detail", detail))
	for _, obs := range s.opts.Observers {
		obs(ev)
	}
	return nil
}

func allowed(from, to survey.State) bool {
	if to == survey.StateClosed {
		return !from.Terminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
