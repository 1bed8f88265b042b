// Package render formats turns and tool invocations as text.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/sealor/shop-assistant/pkg/conversation"
)

// MaxResultLength is the number of characters of a tool result shown before
// it is cut off.
const MaxResultLength = 500

// Call formats an invocation as "📤 name(args)".
func Call(inv conversation.ToolInvocation) string {
	args := "{}"
	if len(inv.Arguments) > 0 {
		if encoded, err := json.Marshal(inv.Arguments); err == nil {
			args = string(encoded)
		}
	}
	return fmt.Sprintf("📤 %s(%s)", inv.Name, args)
}

// Result formats the invocation's result as "📥 result". ok is false when
// there is nothing worth showing.
func Result(inv conversation.ToolInvocation) (line string, ok bool) {
	if !inv.HasResult || conversation.EmptyPayload(inv.Result) {
		return "", false
	}
	return "📥 " + Truncate(Value(inv.Result), MaxResultLength), true
}

// Value renders a result payload: strings as they are, anything else as JSON.
func Value(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(encoded)
}

// Truncate cuts s to n characters and marks the cut with "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// Invocations writes the call and result lines of each invocation.
func Invocations(w io.Writer, invocations []conversation.ToolInvocation) error {
	for _, inv := range invocations {
		if _, err := fmt.Fprintln(w, Call(inv)); err != nil {
			return err
		}
		if line, ok := Result(inv); ok {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}
	return nil
}

// Turn writes the turn's tool invocations followed by the assistant's answer.
func Turn(w io.Writer, turn conversation.Turn) error {
	if err := Invocations(w, turn.Invocations); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Assistant: %s\n\n", turn.ResponseText)
	return err
}
