package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/survey-runner/backend/internal/model/survey"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClaimed  = errors.New("session already running")
)

const subscriberBuffer = 16

type entry struct {
	session     survey.Session
	subscribers map[int]chan survey.Event
	nextSub     int
	claimed     bool
}

// Service 跟踪进行中的问卷会话, 并将状态变化分发给订阅者
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewService 创建内存中的会话注册表
func NewService() *Service {
	return &Service{sessions: make(map[string]*entry)}
}

// CreateSession 注册一个新的空闲会话
func (s *Service) CreateSession(_ context.Context) (survey.Session, error) {
	session := survey.Session{
		ID:        uuid.NewString(),
		State:     survey.StateIdle,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = &entry{
		session:     session,
		subscribers: make(map[int]chan survey.Event),
	}
	s.mu.Unlock()

	return session, nil
}

// GetSession 根据ID获取会话
func (s *Service) GetSession(_ context.Context, sessionID string) (survey.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return survey.Session{}, ErrSessionNotFound
	}
	return e.session, nil
}

// Claim 独占一个空闲会话, 每个会话只能运行一次
func (s *Service) Claim(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if e.claimed || e.session.State != survey.StateIdle {
		return ErrSessionClaimed
	}
	e.claimed = true
	return nil
}

// Release 释放尚未开始运行的会话
func (s *Service) Release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[sessionID]; ok && e.session.State == survey.StateIdle {
		e.claimed = false
	}
}

// Publish records the new state of ev.SessionID and forwards ev to subscribers.
// Slow subscribers miss events rather than block the session.
func (s *Service) Publish(ev survey.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[ev.SessionID]
	if !ok {
		return
	}
	e.session.State = ev.State
	for _, ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of state events for sessionID and a func that
// releases it. The channel is closed when the session ends.
func (s *Service) Subscribe(sessionID string) (<-chan survey.Event, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}

	id := e.nextSub
	e.nextSub++
	ch := make(chan survey.Event, subscriberBuffer)
	e.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if cur, ok := s.sessions[sessionID]; ok && cur == e {
				if sub, ok := e.subscribers[id]; ok {
					delete(e.subscribers, id)
					close(sub)
				}
			}
		})
	}
	return ch, cancel, nil
}

// EndSession 移除会话并关闭其订阅通道
func (s *Service) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	for id, ch := range e.subscribers {
		delete(e.subscribers, id)
		close(ch)
	}
	return nil
}
