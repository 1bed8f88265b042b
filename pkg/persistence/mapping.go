package persistence

import (
	"github.com/openai/openai-go/v3"

	"github.com/sealor/shop-assistant/pkg/conversation"
)

// NewMessagesFromOpenAI maps the agent's message history to its saved form.
// Content parts other than plain text are not kept.
func NewMessagesFromOpenAI(params []openai.ChatCompletionMessageParamUnion) []Message {
	var messages []Message
	for _, param := range params {
		var message Message
		if m := param.OfAssistant; m != nil {
			message = Message{Role: "assistant", Content: m.Content.OfString.Value, ToolCalls: newToolCallsFromOpenAI(m.ToolCalls)}
		} else if m := param.OfDeveloper; m != nil {
			message = Message{Role: "developer", Content: m.Content.OfString.Value}
		} else if m := param.OfSystem; m != nil {
			message = Message{Role: "system", Content: m.Content.OfString.Value}
		} else if m := param.OfTool; m != nil {
			message = Message{Role: conversation.RoleTool, Content: m.Content.OfString.Value, ToolCallID: m.ToolCallID}
		} else if m := param.OfUser; m != nil {
			message = Message{Role: "user", Content: m.Content.OfString.Value}
		} else {
			continue
		}
		messages = append(messages, message)
	}
	return messages
}

func newToolCallsFromOpenAI(calls []openai.ChatCompletionMessageToolCallUnionParam) []ToolCall {
	var toolCalls []ToolCall
	for _, call := range calls {
		if f := call.OfFunction; f != nil {
			toolCalls = append(toolCalls, ToolCall{ID: f.ID, Name: f.Function.Name, Arguments: f.Function.Arguments})
		}
	}
	return toolCalls
}

// NewOpenAIFromMessages rebuilds the agent's message history. Messages with
// an unknown role are skipped.
func NewOpenAIFromMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	var params []openai.ChatCompletionMessageParamUnion
	for _, message := range messages {
		var param openai.ChatCompletionMessageParamUnion

		switch message.Role {
		case "assistant":
			param = openai.AssistantMessage(message.Content)
			if message.Content == "" && len(message.ToolCalls) > 0 {
				param.OfAssistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{}
			}
			param.OfAssistant.ToolCalls = newToolCallsFromSession(message.ToolCalls)
		case "developer":
			param = openai.DeveloperMessage(message.Content)
		case "system":
			param = openai.SystemMessage(message.Content)
		case conversation.RoleTool:
			param = openai.ToolMessage(message.Content, message.ToolCallID)
		case "user":
			param = openai.UserMessage(message.Content)
		default:
			continue
		}

		params = append(params, param)
	}
	return params
}

func newToolCallsFromSession(calls []ToolCall) []openai.ChatCompletionMessageToolCallUnionParam {
	var toolCalls []openai.ChatCompletionMessageToolCallUnionParam
	for _, call := range calls {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID:       call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{Name: call.Name, Arguments: call.Arguments},
			},
		})
	}
	return toolCalls
}

// History maps saved messages to history records, with the saved tool calls
// as attribute-shaped descriptors.
func History(messages []Message) []conversation.Message {
	history := make([]conversation.Message, 0, len(messages))
	for _, message := range messages {
		record := conversation.Message{Role: message.Role, Content: message.Content}
		if message.Role == conversation.RoleTool {
			id := message.ToolCallID
			record.ToolCallID = &id
		}
		for _, call := range message.ToolCalls {
			record.ToolCalls = append(record.ToolCalls, call)
		}
		history = append(history, record)
	}
	return history
}

// RebuildTurns reconstructs the transcript of a session saved without one.
// Each user message starts a turn; the last assistant text before the next
// user message is its answer.
func RebuildTurns(messages []Message) []conversation.Turn {
	history := History(messages)

	var turns []conversation.Turn
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		turn := conversation.Turn{Prompt: messages[start].Content}
		for i := start + 1; i < end; i++ {
			if messages[i].Role == "assistant" && messages[i].Content != "" {
				turn.ResponseText = messages[i].Content
			}
		}
		turn.Invocations = conversation.Extract(history[:end], start)
		turns = append(turns, turn)
	}
	for i, message := range messages {
		if message.Role == "user" {
			flush(i)
			start = i
		}
	}
	flush(len(messages))
	return turns
}

// Transcript returns the saved turns, or turns rebuilt from the messages when
// none were saved.
func (s *Session) Transcript() []conversation.Turn {
	if len(s.Turns) > 0 || len(s.Messages) == 0 {
		return s.Turns
	}
	return RebuildTurns(s.Messages)
}
