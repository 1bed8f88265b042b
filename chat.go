package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/sealor/shop-assistant/pkg/assistant"
	"github.com/sealor/shop-assistant/pkg/console"
	"github.com/sealor/shop-assistant/pkg/persistence"
	"github.com/sealor/shop-assistant/pkg/render"
)

type ChatCmd struct {
	SessionFile string `long:"session-file" description:"Use this file to save and resume chat sessions"`
	Message     string `short:"m" long:"message" description:"Send a single message and exit"`
}

func (c *ChatCmd) Execute(_ []string) error {
	cfg, logger, factory, err := opts.setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var saved *persistence.Session
	serverURL := cfg.ServerURL
	if c.SessionFile != "" {
		saved, err = persistence.TryToResumeSession(c.SessionFile)
		if err != nil {
			return err
		}
		if saved.ServerURL != "" && opts.ServerURL == "" {
			serverURL = saved.ServerURL
		}
	}

	conv, err := factory.Connect(serverURL)
	if err != nil {
		return err
	}
	defer conv.Close()

	if saved != nil && len(saved.Messages) > 0 {
		conv.Restore(persistence.NewOpenAIFromMessages(saved.Messages), saved.Transcript())
		logger.Info("session resumed", "file", c.SessionFile, "turns", len(conv.Transcript()))
	}

	save := func() error {
		if c.SessionFile == "" {
			return nil
		}
		messages, _ := conv.Messages()
		return persistence.SaveSession(c.SessionFile, &persistence.Session{
			Model:     conv.Model(),
			ServerURL: conv.ServerURL(),
			Messages:  persistence.NewMessagesFromOpenAI(messages),
			Turns:     conv.Transcript(),
		})
	}

	if c.Message != "" {
		return c.sendOnce(ctx, conv, save)
	}

	fd := int(os.Stdin.Fd())
	repl := &console.REPL{Conversation: conv, AfterTurn: save, Logger: logger}
	if term.IsTerminal(fd) {
		t := console.NewTerminal(fd, struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout})
		repl.In, repl.Out = t, t
	} else {
		repl.In, repl.Out = console.NewLines(os.Stdin, os.Stdout), os.Stdout
	}
	return repl.Run(ctx)
}

func (c *ChatCmd) sendOnce(ctx context.Context, conv *assistant.Conversation, save func() error) error {
	turn, err := conv.Send(ctx, c.Message)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if err := render.Turn(os.Stdout, turn); err != nil {
		return err
	}
	return save()
}
