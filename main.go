package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/sealor/shop-assistant/pkg/agent"
	"github.com/sealor/shop-assistant/pkg/assistant"
	"github.com/sealor/shop-assistant/pkg/config"
	"github.com/sealor/shop-assistant/pkg/logging"
)

// Options is the root command. Flags given here override the config file
// and the environment.
type Options struct {
	Config    string `short:"f" long:"config" description:"YAML config file"`
	APIURL    string `long:"api" description:"URL for the OpenAI API endpoint"`
	Model     string `long:"model" description:"Technical name of the LLM"`
	ServerURL string `long:"server-url" description:"UCP server URL"`
	LogLevel  string `long:"log-level" description:"debug, info, warn or error"`
	LogHTTP   bool   `long:"log" description:"Log HTTP traffic to the LLM and the UCP server"`
	NoStream  bool   `long:"no-stream" description:"Wait for complete responses instead of streaming"`

	Chat  ChatCmd  `command:"chat" description:"Chat in the terminal"`
	Serve ServeCmd `command:"serve" description:"Serve the web chat"`
}

var opts Options

func main() {
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			return
		}
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger and conversation
// factory shared by both commands.
func (o *Options) setup() (config.Config, *slog.Logger, *assistant.Factory, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	if o.APIURL != "" {
		cfg.OpenAIURL = o.APIURL
	}
	if o.Model != "" {
		cfg.Model = o.Model
	}
	if o.ServerURL != "" {
		cfg.ServerURL = o.ServerURL
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if o.LogHTTP {
		cfg.LogHTTP = true
	}
	if o.NoStream {
		cfg.Streaming = false
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, nil, err
	}

	logger := logging.New(os.Stderr, logging.Options{
		Level:   cfg.Level(),
		JSON:    cfg.LogFormat == config.LogFormatJSON,
		NoColor: cfg.NoColor,
	})

	factory := &assistant.Factory{
		OpenAI: newOpenAIClient(cfg, logger),
		Agent: agent.Config{
			Model:         cfg.Model,
			SystemPrompt:  cfg.SystemPrompt,
			MaxToolRounds: cfg.MaxToolRounds,
		},
		Streaming:    cfg.Streaming,
		LogHTTP:      cfg.LogHTTP,
		AgentProfile: cfg.AgentProfile,
		Retries:      cfg.UCPRetries,
		Logger:       logger,
	}
	return cfg, logger, factory, nil
}

func newOpenAIClient(cfg config.Config, logger *slog.Logger) openai.Client {
	options := []option.RequestOption{
		option.WithBaseURL(strings.TrimSpace(cfg.OpenAIURL)),
	}
	if cfg.OpenAIAPIKey != "" {
		options = append(options, option.WithAPIKey(cfg.OpenAIAPIKey))
	}
	if cfg.LogHTTP {
		options = append(options, option.WithDebugLog(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)))
	}
	return openai.NewClient(options...)
}
