// Package agent runs the chat-completions tool loop against an
// OpenAI-compatible endpoint and keeps the conversation's message history.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/openai/openai-go/v3"

	"github.com/sealor/shop-assistant/pkg/conversation"
)

// ErrTooManyToolRounds is returned when the model keeps calling tools past
// the configured number of rounds.
var ErrTooManyToolRounds = errors.New("agent: too many tool rounds")

var errNoChoices = errors.New("agent: completion has no choices")

// Toolset provides the tools offered to the model and executes its calls.
type Toolset interface {
	Definitions() []openai.ChatCompletionToolUnionParam
	Call(ctx context.Context, name, arguments string) (string, error)
}

type Config struct {
	Model         string
	SystemPrompt  string
	MaxToolRounds int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	return c
}

// Session is one agent conversation. Its history holds user, assistant and
// tool messages; the system prompt is sent with every request but never
// stored.
type Session struct {
	client openai.Client
	tools  Toolset
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	messages []openai.ChatCompletionMessageParamUnion
}

func New(client openai.Client, tools Toolset, cfg Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{client: client, tools: tools, cfg: cfg.withDefaults(), logger: logger}
}

// Invoke answers prompt, running tool calls until the model replies with
// text only.
func (s *Session) Invoke(ctx context.Context, prompt string) (string, error) {
	s.append(openai.UserMessage(prompt))

	for round := 0; round < s.cfg.MaxToolRounds; round++ {
		completion, err := s.client.Chat.Completions.New(ctx, s.params())
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return "", errNoChoices
		}

		message := completion.Choices[0].Message
		s.append(assistantParam(message))
		if len(message.ToolCalls) == 0 {
			return message.Content, nil
		}
		for _, call := range message.ToolCalls {
			s.append(openai.ToolMessage(s.callTool(ctx, call), call.ID))
		}
	}
	return "", ErrTooManyToolRounds
}

// History returns the messages recorded so far, oldest first.
func (s *Session) History() []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]conversation.Message, 0, len(s.messages))
	for _, m := range s.messages {
		history = append(history, historyMessage(m))
	}
	return history
}

// Messages returns a copy of the raw message history.
func (s *Session) Messages() []openai.ChatCompletionMessageParamUnion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Restore replaces the message history, e.g. with a resumed session.
func (s *Session) Restore(messages []openai.ChatCompletionMessageParamUnion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = slices.Clone(messages)
}

// Reset forgets the conversation.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

func (s *Session) Model() string { return s.cfg.Model }

func (s *Session) append(messages ...openai.ChatCompletionMessageParamUnion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, messages...)
}

func (s *Session) params() openai.ChatCompletionNewParams {
	s.mu.Lock()
	defer s.mu.Unlock()

	param := openai.ChatCompletionNewParams{Model: s.cfg.Model}
	if s.cfg.SystemPrompt != "" {
		param.Messages = append(param.Messages, openai.SystemMessage(s.cfg.SystemPrompt))
	}
	param.Messages = append(param.Messages, s.messages...)
	if s.tools != nil {
		param.Tools = s.tools.Definitions()
	}
	return param
}

// callTool runs one tool call. Failures are reported back to the model as
// the tool's result so it can correct itself.
func (s *Session) callTool(ctx context.Context, call openai.ChatCompletionMessageToolCallUnion) string {
	name := call.Function.Name
	s.logger.DebugContext(ctx, "tool call", "tool", name, "tool_call_id", call.ID, "arguments", call.Function.Arguments)
	if s.tools == nil {
		return fmt.Sprintf("error: unknown tool %q", name)
	}
	result, err := s.tools.Call(ctx, name, call.Function.Arguments)
	if err != nil {
		s.logger.WarnContext(ctx, "tool failed", "tool", name, "tool_call_id", call.ID, "error", err)
		return "error: " + err.Error()
	}
	return result
}

// assistantParam converts a received assistant message into a history entry.
// Tool calls are always mapped as function calls since accumulated stream
// messages carry no raw JSON.
func assistantParam(m openai.ChatCompletionMessage) openai.ChatCompletionMessageParamUnion {
	var asst openai.ChatCompletionAssistantMessageParam
	// an assistant message needs content unless it carries tool calls
	if m.Content != "" || len(m.ToolCalls) == 0 {
		asst.Content.OfString = openai.String(m.Content)
	}
	if m.Refusal != "" {
		asst.Refusal = openai.String(m.Refusal)
	}
	for _, call := range m.ToolCalls {
		asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}

func historyMessage(m openai.ChatCompletionMessageParamUnion) conversation.Message {
	switch {
	case m.OfUser != nil:
		return conversation.Message{Role: "user", Content: m.OfUser.Content.OfString.Value}
	case m.OfSystem != nil:
		return conversation.Message{Role: "system", Content: m.OfSystem.Content.OfString.Value}
	case m.OfDeveloper != nil:
		return conversation.Message{Role: "developer", Content: m.OfDeveloper.Content.OfString.Value}
	case m.OfTool != nil:
		id := m.OfTool.ToolCallID
		return conversation.Message{Role: conversation.RoleTool, Content: m.OfTool.Content.OfString.Value, ToolCallID: &id}
	case m.OfAssistant != nil:
		msg := conversation.Message{Role: "assistant", Content: m.OfAssistant.Content.OfString.Value}
		for _, call := range m.OfAssistant.ToolCalls {
			if call.OfFunction == nil {
				continue
			}
			id, name := call.OfFunction.ID, call.OfFunction.Function.Name
			msg.ToolCalls = append(msg.ToolCalls, conversation.ToolCallFields{
				ID:        &id,
				Name:      &name,
				Arguments: call.OfFunction.Function.Arguments,
			})
		}
		return msg
	}
	return conversation.Message{}
}

func decodeArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}
