package conversation

import (
	"encoding/json"
	"reflect"
	"strconv"
)

// RoleTool marks a history record that carries a tool result.
const RoleTool = "tool"

// Message is one role-tagged record of an agent session's history.
//
// ToolCalls holds tool-call descriptors, each either a map[string]any keyed
// by tool_call_id/tool_name/args or a value implementing Fields.
type Message struct {
	Role       string
	Content    any
	ToolCallID *string
	ToolCalls  []any
}

// Fields is implemented by attribute-shaped tool-call descriptors.
type Fields interface {
	Field(name string) (any, bool)
}

// ToolCallFields is an attribute-shaped descriptor. Each attribute may be set
// under its primary or its alternate name; nil or empty means absent.
type ToolCallFields struct {
	ToolCallID *string
	ID         *string
	ToolName   *string
	Name       *string
	Args       any
	Arguments  any
}

func (f ToolCallFields) Field(name string) (any, bool) {
	switch name {
	case "tool_call_id":
		return derefString(f.ToolCallID)
	case "id":
		return derefString(f.ID)
	case "tool_name":
		return derefString(f.ToolName)
	case "name":
		return derefString(f.Name)
	case "args":
		return f.Args, f.Args != nil
	case "arguments":
		return f.Arguments, f.Arguments != nil
	}
	return nil, false
}

func derefString(s *string) (any, bool) {
	if s == nil || *s == "" {
		return nil, false
	}
	return *s, true
}

// descriptorField names one attribute of a tool-call descriptor: the mapping
// key followed by the attribute names, primary first.
type descriptorField struct {
	key   string
	attrs [2]string
}

var (
	idField   = descriptorField{key: "tool_call_id", attrs: [2]string{"tool_call_id", "id"}}
	nameField = descriptorField{key: "tool_name", attrs: [2]string{"tool_name", "name"}}
	argsField = descriptorField{key: "args", attrs: [2]string{"args", "arguments"}}
)

func lookup(descriptor any, f descriptorField) (any, bool) {
	if m, ok := descriptor.(map[string]any); ok {
		v, ok := m[f.key]
		return v, ok
	}
	if fields, ok := descriptor.(Fields); ok {
		for _, name := range f.attrs {
			if v, ok := fields.Field(name); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// decodeToolCall turns any descriptor shape into a ToolInvocation. position is
// the number of invocations extracted so far and becomes the id when the
// descriptor has none.
func decodeToolCall(descriptor any, position int) ToolInvocation {
	inv := ToolInvocation{
		ID:        strconv.Itoa(position),
		Name:      "unknown",
		Arguments: map[string]any{},
	}
	if v, ok := lookup(descriptor, idField); ok {
		inv.ID = stringify(v)
	}
	if v, ok := lookup(descriptor, nameField); ok {
		inv.Name = stringify(v)
	}
	if v, ok := lookup(descriptor, argsField); ok {
		inv.Arguments = toArguments(v)
	}
	return inv
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case json.Number:
		return s.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// toArguments accepts a map or a JSON object string.
func toArguments(v any) map[string]any {
	switch a := v.(type) {
	case map[string]any:
		if a == nil {
			return map[string]any{}
		}
		return a
	case string:
		out := map[string]any{}
		if err := json.Unmarshal([]byte(a), &out); err != nil || out == nil {
			return map[string]any{}
		}
		return out
	case json.RawMessage:
		return toArguments(string(a))
	}
	return map[string]any{}
}

// EmptyPayload reports whether a tool result carries nothing worth showing:
// nil, false, zero numbers, and empty strings, slices and maps.
func EmptyPayload(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Bool:
		return !rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Extract rebuilds the tool invocations recorded in history from index start
// on. A tool record whose tool_call_id matches no call is attached to the most
// recent invocation that still has no result, provided its content is not
// empty.
func Extract(history []Message, start int) []ToolInvocation {
	if start < 0 {
		start = 0
	}
	var list Invocations
	for i := start; i < len(history); i++ {
		msg := history[i]
		for _, descriptor := range msg.ToolCalls {
			list.Add(decodeToolCall(descriptor, list.Len()))
		}
		if msg.Role != RoleTool {
			continue
		}
		if msg.ToolCallID != nil && list.Resolve(*msg.ToolCallID, msg.Content) {
			continue
		}
		if !EmptyPayload(msg.Content) {
			list.resolveLatest(msg.Content)
		}
	}
	return list.List()
}
