package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/ssestream"

	"github.com/sealor/shop-assistant/pkg/conversation"
)

// previewLimit bounds the result preview carried by tool result events.
const previewLimit = 2000

var errStreamConsumed = errors.New("agent: stream already consumed")

// StreamingSession is a Session whose turns can be streamed event by event.
type StreamingSession struct {
	*Session
}

func NewStreaming(client openai.Client, tools Toolset, cfg Config, logger *slog.Logger) *StreamingSession {
	return &StreamingSession{Session: New(client, tools, cfg, logger)}
}

// Stream opens a streaming turn for prompt. No request is sent before the
// events are iterated.
func (s *StreamingSession) Stream(ctx context.Context, prompt string) (conversation.EventStream, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return &Stream{ctx: ctx, session: s.Session, prompt: prompt}, nil
}

// Stream is one streamed turn. It runs the same tool loop as Invoke and
// reports tool calls and their results as they happen.
type Stream struct {
	ctx     context.Context
	session *Session
	prompt  string

	mu      sync.Mutex
	sse     *ssestream.Stream[openai.ChatCompletionChunk]
	text    strings.Builder
	started bool
	closed  bool
}

func (st *Stream) Events() iter.Seq2[conversation.Event, error] {
	return func(yield func(conversation.Event, error) bool) {
		st.mu.Lock()
		if st.started || st.closed {
			st.mu.Unlock()
			yield(nil, errStreamConsumed)
			return
		}
		st.started = true
		st.mu.Unlock()

		s := st.session
		s.append(openai.UserMessage(st.prompt))

		for round := 0; round < s.cfg.MaxToolRounds; round++ {
			message, ok, err := st.round(yield)
			if err != nil {
				yield(nil, err)
				return
			}
			if !ok {
				return
			}

			s.append(assistantParam(message))
			if len(message.ToolCalls) == 0 {
				return
			}
			for _, call := range message.ToolCalls {
				event := conversation.ToolCallEvent{
					ToolCallID: call.ID,
					ToolName:   call.Function.Name,
					ToolArgs:   decodeArguments(call.Function.Arguments),
				}
				if !yield(event, nil) {
					return
				}
				result := s.callTool(st.ctx, call)
				s.append(openai.ToolMessage(result, call.ID))
				if !yield(conversation.ToolResultEvent{ToolCallID: call.ID, ResultPreview: preview(result), Result: result}, nil) {
					return
				}
			}
		}
		yield(nil, ErrTooManyToolRounds)
	}
}

// round streams one completion, yielding its text deltas. ok is false when
// the consumer stopped iterating.
func (st *Stream) round(yield func(conversation.Event, error) bool) (message openai.ChatCompletionMessage, ok bool, err error) {
	sse := st.session.client.Chat.Completions.NewStreaming(st.ctx, st.session.params())

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		_ = sse.Close()
		return message, false, nil
	}
	st.sse = sse
	st.mu.Unlock()

	acc := openai.ChatCompletionAccumulator{}
	for sse.Next() {
		chunk := sse.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		st.mu.Lock()
		st.text.WriteString(delta)
		st.mu.Unlock()
		if !yield(conversation.TextDeltaEvent{Text: delta}, nil) {
			return message, false, nil
		}
	}
	if err := sse.Err(); err != nil {
		return message, false, fmt.Errorf("chat completion stream: %w", err)
	}
	if err := st.releaseSSE(); err != nil {
		return message, false, fmt.Errorf("close completion stream: %w", err)
	}
	if len(acc.Choices) == 0 {
		return message, false, errNoChoices
	}
	return acc.Choices[0].Message, true, nil
}

func (st *Stream) releaseSSE() error {
	st.mu.Lock()
	sse := st.sse
	st.sse = nil
	st.mu.Unlock()
	if sse == nil {
		return nil
	}
	return sse.Close()
}

// AccumulatedText returns every text delta streamed so far in this turn,
// across all completion rounds.
func (st *Stream) AccumulatedText() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.text.String()
}

// Close releases the open completion stream, if any. Further iteration
// yields no events.
func (st *Stream) Close() error {
	st.mu.Lock()
	st.closed = true
	st.mu.Unlock()
	return st.releaseSSE()
}

func preview(result string) string {
	if len(result) <= previewLimit {
		return result
	}
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(result[cut]) {
		cut--
	}
	return result[:cut] + "..."
}
