// Package conversation turns an agent session's output into a transcript of
// turns, each with the ordered tool invocations made while producing it.
package conversation

import "time"

// ToolInvocation is one call the agent made to a tool during a turn.
type ToolInvocation struct {
	ID        string         `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Arguments map[string]any `json:"arguments" yaml:"arguments"`
	Result    any            `json:"result,omitempty" yaml:"result,omitempty"`
	HasResult bool           `json:"has_result" yaml:"has_result"`
}

// Invocations is the ordered invocation list of a single turn.
type Invocations struct {
	items []ToolInvocation
}

// Add appends inv unless an invocation with the same id is already present,
// in which case the existing record is kept as is. It reports whether inv was
// appended.
func (l *Invocations) Add(inv ToolInvocation) bool {
	if l.index(inv.ID) >= 0 {
		return false
	}
	if inv.Arguments == nil {
		inv.Arguments = map[string]any{}
	}
	l.items = append(l.items, inv)
	return true
}

// Resolve sets the result of the first invocation with the given id.
func (l *Invocations) Resolve(id string, result any) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.items[i].Result = result
	l.items[i].HasResult = true
	return true
}

// resolveLatest attaches result to the most recently added invocation when it
// has no result yet.
func (l *Invocations) resolveLatest(result any) bool {
	if len(l.items) == 0 {
		return false
	}
	last := &l.items[len(l.items)-1]
	if last.HasResult {
		return false
	}
	last.Result = result
	last.HasResult = true
	return true
}

func (l *Invocations) index(id string) int {
	for i := range l.items {
		if l.items[i].ID == id {
			return i
		}
	}
	return -1
}

// Len returns the number of invocations.
func (l *Invocations) Len() int { return len(l.items) }

// List returns the invocations in call order. The slice is never nil.
func (l *Invocations) List() []ToolInvocation {
	out := make([]ToolInvocation, len(l.items))
	copy(out, l.items)
	return out
}

// Turn is one user prompt and the assistant's answer to it.
type Turn struct {
	Prompt       string           `json:"prompt" yaml:"prompt"`
	ResponseText string           `json:"response_text" yaml:"response_text"`
	Invocations  []ToolInvocation `json:"invocations" yaml:"invocations,omitempty"`
	StartedAt    time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time        `json:"finished_at" yaml:"finished_at"`
}

// Transcript is the ordered sequence of turns shown to the user. It is
// append-only and cleared only as a whole.
type Transcript struct {
	turns []Turn
}

// NewTranscript returns a transcript holding turns.
func NewTranscript(turns ...Turn) *Transcript {
	t := &Transcript{}
	t.turns = append(t.turns, turns...)
	return t
}

func (t *Transcript) Append(turn Turn) {
	t.turns = append(t.turns, turn)
}

// Turns returns a copy of the turns in order.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Len() int { return len(t.turns) }

func (t *Transcript) Reset() {
	t.turns = nil
}
