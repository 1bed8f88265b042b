// Package persistence handles mapping and YAML serialization of chat sessions
package persistence

import "github.com/sealor/shop-assistant/pkg/conversation"

type Session struct {
	Model     string `yaml:"model,omitempty"`
	ServerURL string `yaml:"server_url,omitempty"`

	Messages []Message          `yaml:"messages,omitempty"`
	Turns    []conversation.Turn `yaml:"turns,omitempty"`
}

type Message struct {
	Role       string     `yaml:"role"`
	Content    string     `yaml:"content,omitempty"`
	ToolCallID string     `yaml:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `yaml:"tool_calls,omitempty"`
}

type ToolCall struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Arguments string `yaml:"arguments"`
}

// Field exposes a saved tool call under its attribute names.
func (c ToolCall) Field(name string) (any, bool) {
	switch name {
	case "id":
		return c.ID, c.ID != ""
	case "name":
		return c.Name, c.Name != ""
	case "arguments":
		return c.Arguments, c.Arguments != ""
	}
	return nil, false
}
