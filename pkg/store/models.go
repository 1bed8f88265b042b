package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sealor/shop-assistant/pkg/conversation"
)

// SessionRecord is a stored web chat session.
type SessionRecord struct {
	ID        string
	ServerURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TurnRecord is a stored turn of a session.
type TurnRecord struct {
	ID        string
	SessionID string
	Sequence  int64
	Turn      conversation.Turn
}

type sessionRow struct {
	ID          string    `gorm:"primaryKey;size:64"`
	ServerURL   string    `gorm:"size:512;not null"`
	HistoryYAML string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (sessionRow) TableName() string {
	return "chat_sessions"
}

func (r sessionRow) toRecord() SessionRecord {
	return SessionRecord{ID: r.ID, ServerURL: r.ServerURL, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt}
}

type turnRow struct {
	ID              string    `gorm:"primaryKey;size:64"`
	SessionID       string    `gorm:"size:64;not null;uniqueIndex:idx_chat_turns_session_sequence,priority:1"`
	Sequence        int64     `gorm:"not null;uniqueIndex:idx_chat_turns_session_sequence,priority:2"`
	Prompt          string    `gorm:"type:text;not null"`
	ResponseText    string    `gorm:"type:text"`
	InvocationsJSON string    `gorm:"type:text;not null"`
	StartedAt       time.Time `gorm:"not null"`
	FinishedAt      time.Time `gorm:"not null"`
}

func (turnRow) TableName() string {
	return "chat_turns"
}

func turnRowFromTurn(id, sessionID string, sequence int64, turn conversation.Turn) (turnRow, error) {
	invocations := turn.Invocations
	if invocations == nil {
		invocations = []conversation.ToolInvocation{}
	}
	encoded, err := json.Marshal(invocations)
	if err != nil {
		return turnRow{}, fmt.Errorf("marshal invocations: %w", err)
	}
	return turnRow{
		ID:              id,
		SessionID:       sessionID,
		Sequence:        sequence,
		Prompt:          turn.Prompt,
		ResponseText:    turn.ResponseText,
		InvocationsJSON: string(encoded),
		StartedAt:       turn.StartedAt.UTC(),
		FinishedAt:      turn.FinishedAt.UTC(),
	}, nil
}

func (r turnRow) toRecord() (TurnRecord, error) {
	var invocations []conversation.ToolInvocation
	if err := json.Unmarshal([]byte(r.InvocationsJSON), &invocations); err != nil {
		return TurnRecord{}, fmt.Errorf("unmarshal invocations of turn %s: %w", r.ID, err)
	}
	return TurnRecord{
		ID:        r.ID,
		SessionID: r.SessionID,
		Sequence:  r.Sequence,
		Turn: conversation.Turn{
			Prompt:       r.Prompt,
			ResponseText: r.ResponseText,
			Invocations:  invocations,
			StartedAt:    r.StartedAt,
			FinishedAt:   r.FinishedAt,
		},
	}, nil
}
