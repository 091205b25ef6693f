package qa

import (
	"context"
	"errors"
	"time"

	"github.com/bull/docqa/internal/storage"
)

// ErrNoDocument is returned when asking before any document is loaded.
var ErrNoDocument = errors.New("no document loaded")

// Exchange is one answered question.
type Exchange struct {
	Question string
	Answer   string
	Sources  []*storage.ScoredChunk
	AskedAt  time.Time
}

// Session holds one user's current document and question history. History
// lives only as long as the session. A Session is not safe for concurrent
// use.
type Session struct {
	service *Service
	handle  *Handle
	history []Exchange
	now     func() time.Time
}

// NewSession starts an empty session.
func NewSession(service *Service) *Session {
	return &Session{service: service, now: time.Now}
}

// Handle returns the loaded document, or nil.
func (s *Session) Handle() *Handle { return s.handle }

// History returns the exchanges since the current document was loaded.
func (s *Session) History() []Exchange {
	return append([]Exchange(nil), s.history...)
}

// Ingest indexes a new document and makes it current. History is cleared
// only when ingestion succeeds.
func (s *Session) Ingest(ctx context.Context, raw []byte, displayName string) (*Handle, error) {
	h, err := s.service.Ingest(ctx, raw, displayName)
	if err != nil {
		return nil, err
	}
	s.load(h)
	return h, nil
}

// Resume makes a previously ingested document current.
func (s *Session) Resume(ctx context.Context, documentID string) (*Handle, error) {
	h, err := s.service.Resume(ctx, documentID)
	if err != nil {
		return nil, err
	}
	s.load(h)
	return h, nil
}

func (s *Session) load(h *Handle) {
	s.handle = h
	s.history = nil
}

// Ask answers question from the current document and records the exchange.
func (s *Session) Ask(ctx context.Context, question string) (*Exchange, error) {
	if s.handle == nil {
		return nil, ErrNoDocument
	}
	ans, err := s.service.Ask(ctx, s.handle, question)
	if err != nil {
		return nil, err
	}
	ex := Exchange{
		Question: question,
		Answer:   ans.Text,
		Sources:  ans.Citations,
		AskedAt:  s.now(),
	}
	s.history = append(s.history, ex)
	return &ex, nil
}

// Reset forgets the current document and history.
func (s *Session) Reset() {
	s.handle = nil
	s.history = nil
}
