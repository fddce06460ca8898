package survey

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/survey-runner/backend/internal/cache"
	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
	"github.com/zhouzirui/survey-runner/backend/internal/notify"
	"github.com/zhouzirui/survey-runner/backend/internal/store"
)

// Service 基于 Store 提供试次集并保存答案
type Service struct {
	store    store.Store
	cache    cache.TrialCache
	notifier notify.Notifier
	logger   *zap.Logger
}

// Option 服务配置项
type Option func(*Service)

// WithCache 优先从缓存读取试次集
func WithCache(c cache.TrialCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithNotifier 每次保存成功后发送通知
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLogger 设置服务日志
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService 创建问卷服务
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		notifier: notify.Nop{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trials 返回会话的试次记录
func (s *Service) Trials(ctx context.Context, sessionID string) ([]survey.Trial, error) {
	if s.cache != nil {
		trials, ok, err := s.cache.Get(ctx, sessionID)
		if err != nil {
			s.logger.Warn("trial cache read failed", zap.String("session", sessionID), zap.Error(err))
		} else if ok {
			return trials, nil
		}
	}

	trials, err := s.store.Trials(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load trials: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, sessionID, trials); err != nil {
			s.logger.Warn("trial cache write failed", zap.String("session", sessionID), zap.Error(err))
		}
	}
	return trials, nil
}

// LoadTrials 将会话的试次集解析为页面
func (s *Service) LoadTrials(ctx context.Context, sessionID string) ([]survey.Page, error) {
	trials, err := s.Trials(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return survey.DecodeTrials(trials)
}

// SeedTrials 替换会话的试次集并清理过期缓存
func (s *Service) SeedTrials(ctx context.Context, sessionID string, pages []survey.Page) error {
	if err := s.store.SeedTrials(ctx, sessionID, pages); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}

	// Every session without its own set falls back to the default one.
	var err error
	if sessionID == store.DefaultTrialSet {
		err = s.cache.Flush(ctx)
	} else {
		err = s.cache.Invalidate(ctx, sessionID)
	}
	if err != nil {
		s.logger.Warn("trial cache invalidation failed", zap.String("session", sessionID), zap.Error(err))
	}
	return nil
}

// SaveResponses 每个答案保存一行, 然后通知下游
func (s *Service) SaveResponses(ctx context.Context, sessionID string, responses survey.Responses) error {
	if err := s.store.SaveResponses(ctx, sessionID, responses); err != nil {
		s.logger.Error("failed to save responses",
			zap.String("session", sessionID),
			zap.Int("count", len(responses)),
			zap.Error(err))
		return err
	}

	s.logger.Info("saved responses", zap.String("session", sessionID), zap.Int("count", len(responses)))
	if err := s.notifier.ResponsesSaved(ctx, sessionID, len(responses)); err != nil {
		s.logger.Warn("failed to publish saved notification", zap.String("session", sessionID), zap.Error(err))
	}
	return nil
}

// Persist 编码并保存收集到的答案
func (s *Service) Persist(ctx context.Context, sessionID string, responses survey.ResponseMap) (survey.PersistResult, error) {
	encoded, err := survey.EncodeResponses(responses)
	if err != nil {
		return survey.PersistResult{}, err
	}
	if err := s.SaveResponses(ctx, sessionID, encoded); err != nil {
		return survey.PersistResult{}, err
	}
	return survey.PersistResult{Success: true}, nil
}

// ListResponses 返回会话已保存的答案
func (s *Service) ListResponses(ctx context.Context, sessionID string) ([]store.ResponseRow, error) {
	return s.store.ListResponses(ctx, sessionID)
}

// Ping 检查底层存储
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
