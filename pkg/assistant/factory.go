package assistant

import (
	"fmt"
	"log/slog"

	"github.com/openai/openai-go/v3"

	"github.com/sealor/shop-assistant/pkg/agent"
	"github.com/sealor/shop-assistant/pkg/tooling"
	"github.com/sealor/shop-assistant/pkg/ucp"
)

// Factory creates conversations bound to a UCP server.
type Factory struct {
	OpenAI       openai.Client
	Agent        agent.Config
	Streaming    bool
	LogHTTP      bool
	AgentProfile string
	Retries      int
	Logger       *slog.Logger
}

func (f *Factory) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.Logger
}

// Connect creates a conversation whose tools talk to the UCP server at
// serverURL.
func (f *Factory) Connect(serverURL string) (*Conversation, error) {
	return f.Resume("", serverURL)
}

// Resume is Connect for a session that already has an id.
func (f *Factory) Resume(id, serverURL string) (*Conversation, error) {
	logger := f.logger()

	var opts []ucp.Option
	if f.LogHTTP {
		opts = append(opts, ucp.WithInterceptor(ucp.LoggingInterceptor(logger)))
	}
	if f.AgentProfile != "" {
		opts = append(opts, ucp.WithAgentProfile(f.AgentProfile))
	}
	if f.Retries > 0 {
		opts = append(opts, ucp.WithRetry(f.Retries))
	}
	client, err := ucp.New(serverURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", serverURL, err)
	}

	tools := tooling.NewToolset(client)
	var session Session
	if f.Streaming {
		session = agent.NewStreaming(f.OpenAI, tools, f.Agent, logger)
	} else {
		session = agent.New(f.OpenAI, tools, f.Agent, logger)
	}

	conv := NewConversation(id, session, client.BaseURL(), logger)
	logger.Info("connected", "session_id", conv.ID(), "server_url", conv.ServerURL(), "streaming", f.Streaming)
	return conv, nil
}
