package assistant_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealor/shop-assistant/pkg/agent"
	"github.com/sealor/shop-assistant/pkg/assistant"
	"github.com/sealor/shop-assistant/pkg/conversation"
)

type fakeSession struct {
	history  []conversation.Message
	reply    string
	err      error
	resets   int
	restored []openai.ChatCompletionMessageParamUnion
}

func (s *fakeSession) Invoke(_ context.Context, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	id := fmt.Sprintf("call_%d", len(s.history))
	s.history = append(s.history,
		conversation.Message{Role: "user", Content: prompt},
		conversation.Message{Role: "assistant", ToolCalls: []any{map[string]any{"tool_call_id": id, "tool_name": "get_your_user", "args": map[string]any{}}}},
		conversation.Message{Role: conversation.RoleTool, ToolCallID: &id, Content: `{"name":"Jane"}`},
		conversation.Message{Role: "assistant", Content: s.reply},
	)
	return s.reply, nil
}

func (s *fakeSession) History() []conversation.Message { return s.history }
func (s *fakeSession) Reset()                          { s.history = nil; s.resets++ }

func (s *fakeSession) Messages() []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{openai.UserMessage("saved")}
}

func (s *fakeSession) Restore(messages []openai.ChatCompletionMessageParamUnion) {
	s.restored = messages
}

func TestConversation_Send_CommitsTurn(t *testing.T) {
	session := &fakeSession{reply: "Hi Jane!"}
	conv := assistant.NewConversation("", session, "http://localhost:8182", nil)
	assert.NotEmpty(t, conv.ID())

	turn, err := conv.Send(context.Background(), "  who am I?  ")
	require.NoError(t, err)
	assert.Equal(t, "who am I?", turn.Prompt)
	assert.Equal(t, "Hi Jane!", turn.ResponseText)
	require.Len(t, turn.Invocations, 1)
	assert.Equal(t, "get_your_user", turn.Invocations[0].Name)
	assert.Equal(t, `{"name":"Jane"}`, turn.Invocations[0].Result)
	assert.False(t, turn.FinishedAt.Before(turn.StartedAt))

	_, err = conv.Send(context.Background(), "again")
	require.NoError(t, err)
	turns := conv.Transcript()
	require.Len(t, turns, 2)
	assert.Len(t, turns[1].Invocations, 1, "second turn only sees its own tool calls")
}

func TestConversation_Send_FailureRecordsNothing(t *testing.T) {
	boom := errors.New("agent unavailable")
	conv := assistant.NewConversation("", &fakeSession{err: boom}, "", nil)

	_, err := conv.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, conv.Transcript())
}

func TestConversation_Send_RejectsEmptyPrompt(t *testing.T) {
	conv := assistant.NewConversation("", &fakeSession{}, "", nil)
	_, err := conv.Send(context.Background(), " \t ")
	assert.ErrorIs(t, err, assistant.ErrEmptyPrompt)
}

func TestConversation_ResetAndClose(t *testing.T) {
	session := &fakeSession{reply: "ok"}
	conv := assistant.NewConversation("", session, "", nil)
	_, err := conv.Send(context.Background(), "hello")
	require.NoError(t, err)

	conv.Reset()
	assert.Empty(t, conv.Transcript())
	assert.Empty(t, session.History())
	assert.Equal(t, 1, session.resets)

	require.NoError(t, conv.Close())
	require.NoError(t, conv.Close())
	_, err = conv.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, assistant.ErrClosed)
}

func TestConversation_MessagesAndRestore(t *testing.T) {
	session := &fakeSession{}
	conv := assistant.NewConversation("", session, "", nil)

	messages, ok := conv.Messages()
	require.True(t, ok)
	require.Len(t, messages, 1)

	conv.Restore(messages, []conversation.Turn{{Prompt: "earlier", ResponseText: "answer"}})
	assert.Equal(t, messages, session.restored)
	require.Len(t, conv.Transcript(), 1)
	assert.Equal(t, "earlier", conv.Transcript()[0].Prompt)
}

func TestConversation_ConcurrentSendsAreSerialised(t *testing.T) {
	session := &fakeSession{reply: "ok"}
	conv := assistant.NewConversation("", session, "", nil)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := conv.Send(context.Background(), fmt.Sprintf("prompt %d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	turns := conv.Transcript()
	require.Len(t, turns, 8)
	for _, turn := range turns {
		assert.Len(t, turn.Invocations, 1)
	}
}

// gatedSession blocks each Invoke until release is closed.
type gatedSession struct {
	fakeSession
	started chan struct{}
	release chan struct{}
}

func (s *gatedSession) Invoke(ctx context.Context, prompt string) (string, error) {
	close(s.started)
	<-s.release
	return s.fakeSession.Invoke(ctx, prompt)
}

func TestConversation_TranscriptIsReadableDuringTurn(t *testing.T) {
	session := &gatedSession{fakeSession: fakeSession{reply: "ok"}, started: make(chan struct{}), release: make(chan struct{})}
	conv := assistant.NewConversation("", session, "", nil)

	done := make(chan error, 1)
	go func() {
		_, err := conv.Send(context.Background(), "slow question")
		done <- err
	}()
	<-session.started

	read := make(chan []conversation.Turn, 1)
	go func() { read <- conv.Transcript() }()
	select {
	case turns := <-read:
		assert.Empty(t, turns)
	case <-time.After(2 * time.Second):
		t.Fatal("transcript blocked by the running turn")
	}

	close(session.release)
	require.NoError(t, <-done)
	assert.Len(t, conv.Transcript(), 1)
}

func TestConversation_KeepsGivenID(t *testing.T) {
	conv := assistant.NewConversation("stored-session", &fakeSession{}, "", nil)
	assert.Equal(t, "stored-session", conv.ID())
}

func TestConversation_Model(t *testing.T) {
	session := agent.New(openai.NewClient(option.WithAPIKey("test")), nil, agent.Config{}, nil)
	conv := assistant.NewConversation("", session, "", nil)
	assert.Equal(t, agent.DefaultModel, conv.Model())

	assert.Empty(t, assistant.NewConversation("", &fakeSession{}, "", nil).Model())
}

func TestFactory_Connect_RejectsBadURL(t *testing.T) {
	f := &assistant.Factory{}
	_, err := f.Connect("ftp://shop")
	assert.Error(t, err)
}

func TestFactory_Connect_EndToEnd(t *testing.T) {
	ucpServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id":"roses","price":2500}]`)
	}))
	defer ucpServer.Close()

	var mu sync.Mutex
	responses := []string{
		`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_available_products","arguments":"{}"}}]},"finish_reason":null}]}` + "\n\ndata: [DONE]\n\n",
		`data: {"id":"c2","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"We have roses."},"finish_reason":null}]}` + "\n\ndata: [DONE]\n\n",
	}
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if len(responses) == 0 {
			http.Error(w, "no more responses", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, responses[0])
		responses = responses[1:]
	}))
	defer llm.Close()

	f := &assistant.Factory{
		OpenAI:    openai.NewClient(option.WithBaseURL(llm.URL+"/v1/"), option.WithAPIKey("test"), option.WithMaxRetries(0)),
		Streaming: true,
		LogHTTP:   true,
	}
	conv, err := f.Resume("stored-session", ucpServer.URL)
	require.NoError(t, err)
	assert.Equal(t, "stored-session", conv.ID())
	assert.Equal(t, ucpServer.URL, conv.ServerURL())
	assert.Equal(t, agent.DefaultModel, conv.Model())

	turn, err := conv.Send(context.Background(), "what do you sell?")
	require.NoError(t, err)
	assert.Equal(t, "We have roses.", turn.ResponseText)
	require.Len(t, turn.Invocations, 1)
	assert.Equal(t, "get_available_products", turn.Invocations[0].Name)
	assert.True(t, strings.Contains(fmt.Sprint(turn.Invocations[0].Result), "roses"))
}
