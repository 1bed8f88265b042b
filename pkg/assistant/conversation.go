// Package assistant ties an agent session, the UCP tools and a transcript
// together into an explicit conversation handle.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"

	"github.com/sealor/shop-assistant/pkg/conversation"
)

var (
	ErrEmptyPrompt = errors.New("assistant: empty prompt")
	ErrClosed      = errors.New("assistant: conversation closed")
)

// Session is an agent session that can forget its history.
type Session interface {
	conversation.Session
	Reset()
}

// Memory is implemented by sessions whose raw history can be saved and
// restored.
type Memory interface {
	Messages() []openai.ChatCompletionMessageParamUnion
	Restore(messages []openai.ChatCompletionMessageParamUnion)
}

// Conversation is one shopper's chat with the assistant. Sends are
// serialised; the transcript only ever holds completed turns and can be read
// while a turn is running.
type Conversation struct {
	id        string
	serverURL string
	session   Session
	driver    *conversation.Driver
	logger    *slog.Logger

	// turn is held for a whole turn, and by anything that resets the agent.
	turn sync.Mutex

	mu         sync.Mutex
	transcript *conversation.Transcript
	closed     bool
}

// NewConversation wraps session. An empty id starts a new session with a
// fresh id.
func NewConversation(id string, session Session, serverURL string, logger *slog.Logger) *Conversation {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if id == "" {
		id = uuid.NewString()
	}
	logger = logger.With("session_id", id)
	return &Conversation{
		id:         id,
		serverURL:  serverURL,
		session:    session,
		driver:     &conversation.Driver{Logger: logger},
		logger:     logger,
		transcript: conversation.NewTranscript(),
	}
}

func (c *Conversation) ID() string        { return c.id }
func (c *Conversation) ServerURL() string { return c.serverURL }

// Model names the LLM behind the session, or "" when the session does not
// say.
func (c *Conversation) Model() string {
	if m, ok := c.session.(interface{ Model() string }); ok {
		return m.Model()
	}
	return ""
}

// Send runs one turn and appends it to the transcript. Nothing is recorded
// when the turn fails.
func (c *Conversation) Send(ctx context.Context, prompt string) (conversation.Turn, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return conversation.Turn{}, ErrEmptyPrompt
	}

	c.turn.Lock()
	defer c.turn.Unlock()
	if c.isClosed() {
		return conversation.Turn{}, ErrClosed
	}

	log := c.logger.With("turn_id", uuid.NewString())
	started := time.Now()
	log.InfoContext(ctx, "turn started")

	text, invocations, err := c.driver.RunTurn(ctx, c.session, prompt)
	if err != nil {
		log.ErrorContext(ctx, "turn failed", "error", err, "duration", time.Since(started))
		return conversation.Turn{}, err
	}

	turn := conversation.Turn{
		Prompt:       prompt,
		ResponseText: text,
		Invocations:  invocations,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	}
	c.mu.Lock()
	c.transcript.Append(turn)
	c.mu.Unlock()
	log.InfoContext(ctx, "turn finished", "tool_calls", len(invocations), "duration", turn.FinishedAt.Sub(started))
	return turn, nil
}

func (c *Conversation) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conversation) Transcript() []conversation.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Turns()
}

// Reset clears the transcript and the agent's memory once the running turn,
// if any, has finished.
func (c *Conversation) Reset() {
	c.turn.Lock()
	defer c.turn.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transcript.Reset()
	c.session.Reset()
	c.logger.Info("conversation reset")
}

// Close resets the conversation and rejects further sends.
func (c *Conversation) Close() error {
	c.turn.Lock()
	defer c.turn.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.transcript.Reset()
	c.session.Reset()
	c.logger.Info("conversation closed")
	return nil
}

// Messages returns the agent's raw history when the session supports it,
// waiting for a running turn so the history never ends mid-turn.
func (c *Conversation) Messages() ([]openai.ChatCompletionMessageParamUnion, bool) {
	c.turn.Lock()
	defer c.turn.Unlock()
	m, ok := c.session.(Memory)
	if !ok {
		return nil, false
	}
	return m.Messages(), true
}

// Restore resumes an earlier conversation from its saved agent history and
// transcript.
func (c *Conversation) Restore(messages []openai.ChatCompletionMessageParamUnion, turns []conversation.Turn) {
	c.turn.Lock()
	defer c.turn.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.session.(Memory); ok {
		m.Restore(messages)
	}
	c.transcript = conversation.NewTranscript(turns...)
}
