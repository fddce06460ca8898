// Package notify announces saved survey responses to downstream consumers.
package notify

import (
	"context"
	"time"
)

// Notifier 接收每次成功提交答案的通知
type Notifier interface {
	ResponsesSaved(ctx context.Context, sessionID string, count int) error
	Close() error
}

// SavedEvent 提交成功后发布的消息体
type SavedEvent struct {
	SessionID string    `json:"session_id"`
	Count     int       `json:"count"`
	SavedAt   time.Time `json:"saved_at"`
}

// Nop 丢弃所有通知
type Nop struct{}

func (Nop) ResponsesSaved(context.Context, string, int) error { return nil }

func (Nop) Close() error { return nil }
