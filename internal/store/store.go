// Package store persists trial sets and survey responses.
package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

// DefaultTrialSet is served to sessions that have no trial set of their own.
const DefaultTrialSet = "default"

// Store 试次和答案接口背后的关系型存储
type Store interface {
	Trials(ctx context.Context, sessionID string) ([]survey.Trial, error)
	SeedTrials(ctx context.Context, sessionID string, pages []survey.Page) error
	SaveResponses(ctx context.Context, sessionID string, responses survey.Responses) error
	ListResponses(ctx context.Context, sessionID string) ([]ResponseRow, error)
	Ping(ctx context.Context) error
	Close() error
}

// ResponseRow 一条已保存的问题/答案
type ResponseRow struct {
	ID        int64     `json:"id" yaml:"id"`
	SessionID string    `json:"sessionId" yaml:"session_id"`
	Question  string    `json:"question" yaml:"question"`
	Response  string    `json:"response" yaml:"response"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at"`
}

// StoreError reports the insert that failed while saving responses.
type StoreError struct {
	Question string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("insert response %q: %v", e.Question, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

type options struct {
	atomic bool
	logger *zap.Logger
	now    func() time.Time
}

// Option 存储配置项
type Option func(*options)

// WithAtomic chooses between one transaction per submission (true, the
// default) and independent inserts that keep rows written before a failure.
func WithAtomic(atomic bool) Option {
	return func(o *options) { o.atomic = atomic }
}

// WithLogger 设置存储日志
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{atomic: true, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
