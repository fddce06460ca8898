package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

// MemoryStore 基于内存的 Store 实现, 用于测试和演示
type MemoryStore struct {
	mu        sync.RWMutex
	opts      options
	trials    map[string][]survey.Trial
	responses []ResponseRow
	nextID    int64
}

// NewMemoryStore 创建内存存储, seed 作为默认试次集
func NewMemoryStore(seed []survey.Page, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		opts:   buildOptions(opts),
		trials: make(map[string][]survey.Trial),
	}
	if len(seed) > 0 {
		trials, err := survey.EncodeTrials(seed)
		if err == nil {
			s.trials[DefaultTrialSet] = trials
		}
	}
	return s
}

// Trials 返回会话的试次集, 没有时返回默认试次集
func (s *MemoryStore) Trials(_ context.Context, sessionID string) ([]survey.Trial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trials, ok := s.trials[sessionID]
	if !ok || len(trials) == 0 {
		trials = s.trials[DefaultTrialSet]
	}
	return append(make([]survey.Trial, 0, len(trials)), trials...), nil
}

// SeedTrials 替换会话的试次集
func (s *MemoryStore) SeedTrials(_ context.Context, sessionID string, pages []survey.Page) error {
	for i, page := range pages {
		if !json.Valid(page) {
			return fmt.Errorf("page %d: %w", i, survey.ErrInvalidPage)
		}
	}
	trials, err := survey.EncodeTrials(pages)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.trials[sessionID] = trials
	s.mu.Unlock()
	return nil
}

// SaveResponses 每个答案追加一行
func (s *MemoryStore) SaveResponses(_ context.Context, sessionID string, responses survey.Responses) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now().UTC()
	for _, a := range responses {
		s.nextID++
		s.responses = append(s.responses, ResponseRow{
			ID:        s.nextID,
			SessionID: sessionID,
			Question:  a.Question,
			Response:  a.Response,
			CreatedAt: now,
		})
	}
	return nil
}

// ListResponses 返回会话的答案行, sessionID 为空时返回全部
func (s *MemoryStore) ListResponses(_ context.Context, sessionID string) ([]ResponseRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ResponseRow, 0, len(s.responses))
	for _, r := range s.responses {
		if sessionID == "" || r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
