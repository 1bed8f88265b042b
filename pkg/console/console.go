// Package console runs the interactive command-line chat.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sealor/shop-assistant/pkg/conversation"
	"github.com/sealor/shop-assistant/pkg/render"
)

const resetCommand = "/reset"

// LineReader reads one line of user input, prompting for it.
type LineReader interface {
	ReadLine() (string, error)
}

// Conversation is the chat the console drives.
type Conversation interface {
	Send(ctx context.Context, prompt string) (conversation.Turn, error)
	Reset()
}

type REPL struct {
	In           LineReader
	Out          io.Writer
	Conversation Conversation
	// AfterTurn runs after each successful turn and after a reset.
	AfterTurn func() error
	Logger    *slog.Logger
}

// Run reads prompts until the user quits or the input ends.
func (r *REPL) Run(ctx context.Context) error {
	log := r.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	fmt.Fprintln(r.Out, "🛒 Shopping Assistant Ready!")
	fmt.Fprintf(r.Out, "Type 'quit' to exit, '%s' to start over.\n\n", resetCommand)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := r.In.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.Out, "Goodbye! 👋")
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		prompt := strings.TrimSpace(line)
		switch {
		case prompt == "":
			continue
		case strings.EqualFold(prompt, "quit"), strings.EqualFold(prompt, "exit"):
			fmt.Fprintln(r.Out, "Goodbye! 👋")
			return nil
		case prompt == resetCommand:
			r.Conversation.Reset()
			fmt.Fprintln(r.Out, "Conversation cleared.")
			fmt.Fprintln(r.Out)
			r.afterTurn(log)
			continue
		}

		turn, err := r.Conversation.Send(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("turn failed", "error", err)
			fmt.Fprintf(r.Out, "Error: %v\n\n", err)
			continue
		}
		if err := render.Turn(r.Out, turn); err != nil {
			return err
		}
		r.afterTurn(log)
	}
}

func (r *REPL) afterTurn(log *slog.Logger) {
	if r.AfterTurn == nil {
		return
	}
	if err := r.AfterTurn(); err != nil {
		log.Error("save session", "error", err)
		fmt.Fprintf(r.Out, "Error: %v\n\n", err)
	}
}
