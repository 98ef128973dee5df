// Package record keeps the dev server's per-connection interview records in memory.
package record

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/ai-interview/client/internal/model/interview"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is one interview as seen by the dev server.
type Session struct {
	ID            string                   `json:"sid"`
	Question      string                   `json:"question,omitempty"`
	History       []interview.HistoryEntry `json:"history"`
	AudioAnalysis []string                 `json:"audio_analysis"`
	StartedAt     time.Time                `json:"startedAt"`
}

func (s *Session) clone() Session {
	out := *s
	out.History = append([]interview.HistoryEntry(nil), s.History...)
	out.AudioAnalysis = append([]string(nil), s.AudioAnalysis...)
	return out
}

// Service encapsulates interview record management.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	latest   string
}

// NewService bootstraps the in-memory record service.
func NewService() *Service {
	return &Service{sessions: make(map[string]*Session)}
}

// Open starts a fresh record for sid, discarding any earlier one. An empty
// sid gets a generated id.
func (s *Service) Open(_ context.Context, sid string) Session {
	if sid == "" {
		sid = uuid.NewString()
	}
	session := &Session{ID: sid, StartedAt: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sid] = session
	s.latest = sid
	return session.clone()
}

// Get retrieves a record by identifier.
func (s *Service) Get(_ context.Context, sid string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sid]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session.clone(), nil
}

// Latest returns the most recently opened record.
func (s *Service) Latest(ctx context.Context) (Session, error) {
	s.mu.RLock()
	sid := s.latest
	s.mu.RUnlock()
	if sid == "" {
		return Session{}, ErrSessionNotFound
	}
	return s.Get(ctx, sid)
}

// SetQuestion records the question currently posed.
func (s *Service) SetQuestion(_ context.Context, sid, question string) error {
	return s.update(sid, func(session *Session) {
		session.Question = question
	})
}

// AppendAnswer binds answer to the current question and returns the entry.
func (s *Service) AppendAnswer(_ context.Context, sid, answer string) (interview.HistoryEntry, error) {
	var entry interview.HistoryEntry
	err := s.update(sid, func(session *Session) {
		entry = interview.HistoryEntry{Question: session.Question, Answer: answer}
		session.History = append(session.History, entry)
	})
	return entry, err
}

// AppendAnalysis stores one turn's voice analysis text.
func (s *Service) AppendAnalysis(_ context.Context, sid, text string) error {
	return s.update(sid, func(session *Session) {
		session.AudioAnalysis = append(session.AudioAnalysis, text)
	})
}

func (s *Service) update(sid string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sid]
	if !ok {
		return ErrSessionNotFound
	}
	fn(session)
	return nil
}
