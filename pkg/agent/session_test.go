package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealor/shop-assistant/pkg/agent"
	"github.com/sealor/shop-assistant/pkg/conversation"
)

// fakeLLM serves canned chat completion responses in order and records the
// request bodies.
type fakeLLM struct {
	mu        sync.Mutex
	responses []string
	requests  []map[string]any
}

func newFakeLLM(t *testing.T, responses ...string) (*fakeLLM, openai.Client) {
	t.Helper()
	llm := &fakeLLM{responses: responses}
	srv := httptest.NewServer(http.HandlerFunc(llm.serve))
	t.Cleanup(srv.Close)

	client := openai.NewClient(
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
	return llm, client
}

func (f *fakeLLM) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req map[string]any
	_ = json.Unmarshal(body, &req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	if len(f.responses) == 0 {
		f.mu.Unlock()
		http.Error(w, `{"error":{"message":"no more responses"}}`, http.StatusInternalServerError)
		return
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	f.mu.Unlock()

	if strings.HasPrefix(resp, "data:") {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	_, _ = io.WriteString(w, resp)
}

func (f *fakeLLM) request(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func (f *fakeLLM) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func completion(message string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o","choices":[{"index":0,"finish_reason":"stop","logprobs":null,"message":` + message + `}]}`
}

func textCompletion(text string) string {
	return completion(fmt.Sprintf(`{"role":"assistant","content":%q,"refusal":null}`, text))
}

func toolCallCompletion(id, name, args string) string {
	return completion(fmt.Sprintf(
		`{"role":"assistant","content":null,"refusal":null,"tool_calls":[{"id":%q,"type":"function","function":{"name":%q,"arguments":%q}}]}`,
		id, name, args))
}

func chunk(id, delta string) string {
	return `data: {"id":"` + id + `","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":` + delta + `,"finish_reason":null}]}` + "\n\n"
}

func sse(chunks ...string) string {
	return strings.Join(chunks, "") + "data: [DONE]\n\n"
}

type fakeTools struct {
	calls   []string
	results map[string]string
	errs    map[string]error
}

func (f *fakeTools) Definitions() []openai.ChatCompletionToolUnionParam {
	return []openai.ChatCompletionToolUnionParam{{
		OfFunction: &openai.ChatCompletionFunctionToolParam{
			Function: openai.FunctionDefinitionParam{Name: "create_cart", Parameters: openai.FunctionParameters{"type": "object"}},
		},
	}}
}

func (f *fakeTools) Call(_ context.Context, name, arguments string) (string, error) {
	f.calls = append(f.calls, name+" "+arguments)
	if err := f.errs[name]; err != nil {
		return "", err
	}
	return f.results[name], nil
}

func TestSession_Invoke_RunsToolLoop(t *testing.T) {
	llm, client := newFakeLLM(t,
		toolCallCompletion("call_1", "create_cart", `{"items":[{"product_id":"roses","quantity":1}]}`),
		textCompletion("Cart created."),
	)
	tools := &fakeTools{results: map[string]string{"create_cart": `{"id":"cart-42"}`}}
	session := agent.New(client, tools, agent.Config{SystemPrompt: "be nice"}, nil)

	text, err := session.Invoke(context.Background(), "buy roses")
	require.NoError(t, err)
	assert.Equal(t, "Cart created.", text)
	assert.Equal(t, []string{`create_cart {"items":[{"product_id":"roses","quantity":1}]}`}, tools.calls)

	require.Equal(t, 2, llm.count())
	first := llm.request(0)
	assert.Equal(t, agent.DefaultModel, first["model"])
	assert.Len(t, first["tools"], 1)
	messages := first["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "user", messages[1].(map[string]any)["role"])

	second := llm.request(1)["messages"].([]any)
	require.Len(t, second, 4)
	toolMsg := second[3].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
	assert.Equal(t, `{"id":"cart-42"}`, toolMsg["content"])
}

func TestSession_History_FeedsExtract(t *testing.T) {
	_, client := newFakeLLM(t,
		toolCallCompletion("call_1", "create_cart", `{"currency":"USD"}`),
		textCompletion("Done."),
	)
	tools := &fakeTools{results: map[string]string{"create_cart": "cart-42"}}
	session := agent.New(client, tools, agent.Config{SystemPrompt: "ignored in history"}, nil)

	_, err := session.Invoke(context.Background(), "hi")
	require.NoError(t, err)

	history := session.History()
	require.Len(t, history, 4)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "Done.", history[3].Content)

	invocations := conversation.Extract(history, 0)
	require.Len(t, invocations, 1)
	assert.Equal(t, "call_1", invocations[0].ID)
	assert.Equal(t, "create_cart", invocations[0].Name)
	assert.Equal(t, map[string]any{"currency": "USD"}, invocations[0].Arguments)
	assert.Equal(t, "cart-42", invocations[0].Result)
}

func TestSession_ToolErrorIsReturnedToModel(t *testing.T) {
	llm, client := newFakeLLM(t,
		toolCallCompletion("call_1", "create_cart", `{}`),
		textCompletion("Sorry, that failed."),
	)
	tools := &fakeTools{errs: map[string]error{"create_cart": errors.New("create_cart: items is empty")}}
	session := agent.New(client, tools, agent.Config{}, nil)

	text, err := session.Invoke(context.Background(), "buy")
	require.NoError(t, err)
	assert.Equal(t, "Sorry, that failed.", text)

	messages := llm.request(1)["messages"].([]any)
	assert.Equal(t, "error: create_cart: items is empty", messages[len(messages)-1].(map[string]any)["content"])
}

func TestSession_TooManyToolRounds(t *testing.T) {
	_, client := newFakeLLM(t,
		toolCallCompletion("call_1", "create_cart", `{}`),
		toolCallCompletion("call_2", "create_cart", `{}`),
	)
	session := agent.New(client, &fakeTools{}, agent.Config{MaxToolRounds: 2}, nil)

	_, err := session.Invoke(context.Background(), "loop")
	assert.ErrorIs(t, err, agent.ErrTooManyToolRounds)
}

func TestSession_HTTPErrorPropagates(t *testing.T) {
	_, client := newFakeLLM(t)
	session := agent.New(client, &fakeTools{}, agent.Config{}, nil)

	_, err := session.Invoke(context.Background(), "hi")
	var apiErr *openai.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestSession_EmptyReplyKeepsContentInHistory(t *testing.T) {
	llm, client := newFakeLLM(t, textCompletion(""), textCompletion("Still here."))
	session := agent.New(client, nil, agent.Config{}, nil)

	text, err := session.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	assert.Empty(t, text)

	_, err = session.Invoke(context.Background(), "hello?")
	require.NoError(t, err)

	messages, ok := llm.request(1)["messages"].([]any)
	require.True(t, ok)
	var assistant map[string]any
	for _, m := range messages {
		if msg, _ := m.(map[string]any); msg["role"] == "assistant" {
			assistant = msg
		}
	}
	require.NotNil(t, assistant)
	content, present := assistant["content"]
	assert.True(t, present, "assistant message must carry content")
	assert.Equal(t, "", content)
}

func TestSession_ResetAndRestore(t *testing.T) {
	_, client := newFakeLLM(t, textCompletion("Hello!"))
	session := agent.New(client, nil, agent.Config{}, nil)

	_, err := session.Invoke(context.Background(), "hi")
	require.NoError(t, err)
	saved := session.Messages()
	require.Len(t, saved, 2)

	session.Reset()
	assert.Empty(t, session.History())

	session.Restore(saved)
	assert.Len(t, session.History(), 2)
}

func TestStreamingSession_EmitsEvents(t *testing.T) {
	llm, client := newFakeLLM(t,
		sse(
			chunk("c1", `{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"create_cart","arguments":""}}]}`),
			chunk("c1", `{"tool_calls":[{"index":0,"function":{"arguments":"{\"currency\":"}}]}`),
			chunk("c1", `{"tool_calls":[{"index":0,"function":{"arguments":"\"USD\"}"}}]}`),
		),
		sse(
			chunk("c2", `{"role":"assistant","content":"Cart "}`),
			chunk("c2", `{"content":"created."}`),
		),
	)
	tools := &fakeTools{results: map[string]string{"create_cart": "cart-42"}}
	session := agent.NewStreaming(client, tools, agent.Config{}, nil)

	stream, err := session.Stream(context.Background(), "buy")
	require.NoError(t, err)

	var events []conversation.Event
	for event, err := range stream.Events() {
		require.NoError(t, err)
		events = append(events, event)
	}
	require.NoError(t, stream.Close())

	assert.Equal(t, []conversation.Event{
		conversation.ToolCallEvent{ToolCallID: "call_1", ToolName: "create_cart", ToolArgs: map[string]any{"currency": "USD"}},
		conversation.ToolResultEvent{ToolCallID: "call_1", ResultPreview: "cart-42", Result: "cart-42"},
		conversation.TextDeltaEvent{Text: "Cart "},
		conversation.TextDeltaEvent{Text: "created."},
	}, events)
	assert.Equal(t, "Cart created.", stream.AccumulatedText())
	assert.Equal(t, []string{`create_cart {"currency":"USD"}`}, tools.calls)

	assert.Equal(t, true, llm.request(0)["stream"])
	assert.Len(t, session.History(), 4)
}

func TestStreamingSession_AccumulatesTextAcrossRounds(t *testing.T) {
	_, client := newFakeLLM(t,
		sse(
			chunk("c1", `{"role":"assistant","content":"Let me check. "}`),
			chunk("c1", `{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"create_cart","arguments":"{}"}}]}`),
		),
		sse(chunk("c2", `{"role":"assistant","content":"Cart created."}`)),
	)
	tools := &fakeTools{results: map[string]string{"create_cart": "cart-42"}}
	session := agent.NewStreaming(client, tools, agent.Config{}, nil)

	stream, err := session.Stream(context.Background(), "buy")
	require.NoError(t, err)
	defer stream.Close()

	var deltas strings.Builder
	for event, err := range stream.Events() {
		require.NoError(t, err)
		if delta, ok := event.(conversation.TextDeltaEvent); ok {
			deltas.WriteString(delta.Text)
		}
	}
	assert.Equal(t, "Let me check. Cart created.", stream.AccumulatedText())
	assert.Equal(t, deltas.String(), stream.AccumulatedText())
}

func TestStreamingSession_WorksWithDriver(t *testing.T) {
	_, client := newFakeLLM(t,
		sse(chunk("c1", `{"role":"assistant","tool_calls":[{"index":0,"id":"call_9","type":"function","function":{"name":"create_cart","arguments":"{}"}}]}`)),
		sse(chunk("c2", `{"role":"assistant","content":"Cart created."}`)),
	)
	tools := &fakeTools{results: map[string]string{"create_cart": "cart-42"}}
	session := agent.NewStreaming(client, tools, agent.Config{}, nil)

	var driver conversation.Driver
	text, invocations, err := driver.RunTurn(context.Background(), session, "buy")
	require.NoError(t, err)
	assert.Equal(t, "Cart created.", text)
	require.Len(t, invocations, 1)
	assert.Equal(t, "create_cart", invocations[0].Name)
	assert.Equal(t, "cart-42", invocations[0].Result)
}

func TestStream_ErrorIsYielded(t *testing.T) {
	_, client := newFakeLLM(t)
	session := agent.NewStreaming(client, &fakeTools{}, agent.Config{}, nil)

	stream, err := session.Stream(context.Background(), "hi")
	require.NoError(t, err)
	defer stream.Close()

	var iterErr error
	for _, err := range stream.Events() {
		if err != nil {
			iterErr = err
		}
	}
	require.Error(t, iterErr)
}

func TestStream_ConsumedOnce(t *testing.T) {
	_, client := newFakeLLM(t, sse(chunk("c1", `{"role":"assistant","content":"hi"}`)))
	session := agent.NewStreaming(client, &fakeTools{}, agent.Config{}, nil)

	stream, err := session.Stream(context.Background(), "hi")
	require.NoError(t, err)
	for _, err := range stream.Events() {
		require.NoError(t, err)
	}
	for _, err := range stream.Events() {
		assert.Error(t, err)
	}
	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
}
