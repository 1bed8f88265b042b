package conversation

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
)

// Event is one unit of streamed agent output.
type Event interface {
	isEvent()
}

// ToolCallEvent reports that the agent called a tool.
type ToolCallEvent struct {
	ToolCallID string
	ToolName   string
	ToolArgs   map[string]any
}

// ToolResultEvent reports the result of an earlier tool call. ResultPreview,
// when not empty, is a short projection of Result.
type ToolResultEvent struct {
	ToolCallID    string
	ResultPreview string
	Result        any
}

// TextDeltaEvent carries a fragment of the assistant's answer.
type TextDeltaEvent struct {
	Text string
}

func (ToolCallEvent) isEvent()   {}
func (ToolResultEvent) isEvent() {}
func (TextDeltaEvent) isEvent()  {}

// Session is an agent conversation that answers one prompt at a time.
type Session interface {
	// Invoke blocks until the agent has produced its final answer.
	Invoke(ctx context.Context, prompt string) (string, error)
	// History returns every message recorded so far, oldest first.
	History() []Message
}

// Streamer is implemented by sessions that can stream a turn as events.
type Streamer interface {
	Stream(ctx context.Context, prompt string) (EventStream, error)
}

// EventStream is an open streaming turn. It must be closed once consumed.
type EventStream interface {
	io.Closer
	// Events yields the turn's events in arrival order. Iteration stops at
	// the first error.
	Events() iter.Seq2[Event, error]
	// AccumulatedText returns the answer text streamed so far.
	AccumulatedText() string
}

// Driver runs turns against a Session.
type Driver struct {
	Logger *slog.Logger
}

func (d *Driver) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return d.Logger
}

// RunTurn sends prompt to the session and returns the final answer together
// with the tool invocations made while producing it. Sessions implementing
// Streamer are consumed event by event; others are invoked once and their
// new history is inspected afterwards. Session errors are returned unchanged.
func (d *Driver) RunTurn(ctx context.Context, session Session, prompt string) (string, []ToolInvocation, error) {
	if streamer, ok := session.(Streamer); ok {
		return d.runStreaming(ctx, streamer, prompt)
	}
	return d.runInvoke(ctx, session, prompt)
}

func (d *Driver) runStreaming(ctx context.Context, streamer Streamer, prompt string) (text string, invocations []ToolInvocation, err error) {
	stream, err := streamer.Stream(ctx, prompt)
	if err != nil {
		return "", nil, err
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close stream: %w", closeErr)
		}
	}()

	log := d.logger()
	var list Invocations
	for event, iterErr := range stream.Events() {
		if iterErr != nil {
			return "", nil, iterErr
		}
		switch e := event.(type) {
		case ToolCallEvent:
			id := e.ToolCallID
			if id == "" {
				id = strconv.Itoa(list.Len())
			}
			log.DebugContext(ctx, "tool call", "tool", e.ToolName, "tool_call_id", id)
			list.Add(ToolInvocation{ID: id, Name: e.ToolName, Arguments: e.ToolArgs})
		case ToolResultEvent:
			var result any = e.ResultPreview
			if e.ResultPreview == "" {
				result = e.Result
			}
			var resolved bool
			if e.ToolCallID == "" {
				// id-less results belong to the latest call still waiting for one
				resolved = !EmptyPayload(result) && list.resolveLatest(result)
			} else {
				resolved = list.Resolve(e.ToolCallID, result)
			}
			if !resolved {
				log.DebugContext(ctx, "dropped tool result", "tool_call_id", e.ToolCallID)
			}
		}
	}
	return stream.AccumulatedText(), list.List(), nil
}

func (d *Driver) runInvoke(ctx context.Context, session Session, prompt string) (string, []ToolInvocation, error) {
	start := len(session.History())
	text, err := session.Invoke(ctx, prompt)
	if err != nil {
		return "", nil, err
	}
	invocations := Extract(session.History(), start)
	d.logger().DebugContext(ctx, "extracted tool invocations", "count", len(invocations))
	return text, invocations, nil
}
