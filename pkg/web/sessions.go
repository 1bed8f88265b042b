package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openai/openai-go/v3"

	"github.com/sealor/shop-assistant/pkg/conversation"
	"github.com/sealor/shop-assistant/pkg/persistence"
	"github.com/sealor/shop-assistant/pkg/store"
)

var (
	ErrSessionNotFound = errors.New("web: session not found")
	ErrConnect         = errors.New("web: connect failed")
)

// Chat is one connected conversation.
type Chat interface {
	ID() string
	ServerURL() string
	Send(ctx context.Context, prompt string) (conversation.Turn, error)
	Transcript() []conversation.Turn
	Reset()
	Close() error
}

// restorable is implemented by chats whose agent history can be saved and
// resumed.
type restorable interface {
	Messages() ([]openai.ChatCompletionMessageParamUnion, bool)
	Restore(messages []openai.ChatCompletionMessageParamUnion, turns []conversation.Turn)
}

// ConnectFunc opens a chat against a UCP server. id is empty for a new
// session and the stored id when one is resumed.
type ConnectFunc func(id, serverURL string) (Chat, error)

// Store keeps sessions across restarts.
type Store interface {
	CreateSession(ctx context.Context, id, serverURL string) (store.SessionRecord, error)
	GetSession(ctx context.Context, id string) (store.SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
	AppendTurn(ctx context.Context, sessionID string, turn conversation.Turn) (store.TurnRecord, error)
	Turns(ctx context.Context, sessionID string) ([]conversation.Turn, error)
	ClearTurns(ctx context.Context, sessionID string) error
	SaveHistory(ctx context.Context, sessionID string, messages []persistence.Message) error
	History(ctx context.Context, sessionID string) ([]persistence.Message, error)
	Ping(ctx context.Context) error
}

// Sessions tracks the open chats by session id. With a store, turns are
// saved as they complete and sessions unknown to this process are resumed
// from it.
type Sessions struct {
	connect ConnectFunc
	store   Store
	logger  *slog.Logger

	mu    sync.Mutex
	chats map[string]Chat
}

func NewSessions(connect ConnectFunc, st Store, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sessions{connect: connect, store: st, logger: logger, chats: map[string]Chat{}}
}

func (s *Sessions) Create(ctx context.Context, serverURL string) (string, Chat, error) {
	chat, err := s.connect("", serverURL)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	id := chat.ID()
	if s.store != nil {
		if _, err := s.store.CreateSession(ctx, id, chat.ServerURL()); err != nil {
			_ = chat.Close()
			return "", nil, fmt.Errorf("store session: %w", err)
		}
	}

	s.mu.Lock()
	s.chats[id] = chat
	s.mu.Unlock()
	return id, chat, nil
}

// Get returns the chat for id, resuming it from the store if needed. The
// registry is not locked while resuming.
func (s *Sessions) Get(ctx context.Context, id string) (Chat, error) {
	s.mu.Lock()
	chat, ok := s.chats[id]
	s.mu.Unlock()
	if ok {
		return chat, nil
	}
	if s.store == nil {
		return nil, ErrSessionNotFound
	}

	chat, err := s.resume(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.chats[id]; ok {
		// resumed concurrently; keep the first
		_ = chat.Close()
		return existing, nil
	}
	s.chats[id] = chat
	return chat, nil
}

func (s *Sessions) resume(ctx context.Context, id string) (Chat, error) {
	record, err := s.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	chat, err := s.connect(id, record.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	turns, err := s.store.Turns(ctx, id)
	if err != nil {
		_ = chat.Close()
		return nil, err
	}
	history, err := s.store.History(ctx, id)
	if err != nil {
		_ = chat.Close()
		return nil, err
	}
	if r, ok := chat.(restorable); ok {
		r.Restore(persistence.NewOpenAIFromMessages(history), turns)
	}
	s.logger.Info("session resumed", "session_id", id, "turns", len(turns))
	return chat, nil
}

// Send runs a turn on the session and saves it.
func (s *Sessions) Send(ctx context.Context, id, prompt string) (conversation.Turn, error) {
	chat, err := s.Get(ctx, id)
	if err != nil {
		return conversation.Turn{}, err
	}
	turn, err := chat.Send(ctx, prompt)
	if err != nil {
		return conversation.Turn{}, err
	}
	s.save(ctx, id, chat, turn)
	return turn, nil
}

// save records a completed turn. Store failures are logged; the turn has
// already happened.
func (s *Sessions) save(ctx context.Context, id string, chat Chat, turn conversation.Turn) {
	if s.store == nil {
		return
	}
	log := s.logger.With("session_id", id)
	if _, err := s.store.AppendTurn(ctx, id, turn); err != nil {
		log.Warn("store turn", "error", err)
	}
	r, ok := chat.(restorable)
	if !ok {
		return
	}
	messages, ok := r.Messages()
	if !ok {
		return
	}
	if err := s.store.SaveHistory(ctx, id, persistence.NewMessagesFromOpenAI(messages)); err != nil {
		log.Warn("store history", "error", err)
	}
}

// Clear forgets the session's turns and agent memory.
func (s *Sessions) Clear(ctx context.Context, id string) error {
	chat, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	chat.Reset()
	if s.store != nil {
		if err := s.store.ClearTurns(ctx, id); err != nil {
			return fmt.Errorf("clear stored turns: %w", err)
		}
	}
	return nil
}

// Delete disconnects the session and removes it from the store.
func (s *Sessions) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	chat, ok := s.chats[id]
	delete(s.chats, id)
	s.mu.Unlock()

	if ok {
		if err := chat.Close(); err != nil {
			s.logger.Warn("close session", "session_id", id, "error", err)
		}
	}
	if s.store == nil {
		if !ok {
			return ErrSessionNotFound
		}
		return nil
	}
	err := s.store.DeleteSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		if ok {
			return nil
		}
		return ErrSessionNotFound
	}
	return err
}

// Ping reports whether the store is reachable.
func (s *Sessions) Ping(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Ping(ctx)
}

// CloseAll disconnects every open session. Stored sessions are kept.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, chat := range s.chats {
		_ = chat.Close()
		delete(s.chats, id)
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}
