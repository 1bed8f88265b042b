package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/sealor/shop-assistant/pkg/conversation"
	"github.com/sealor/shop-assistant/pkg/persistence"
)

var ErrNotFound = errors.New("store: not found")

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(driver, dsn string) (*GormStore, error) {
	gormDB, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}

	store := &GormStore{db: gormDB}
	if err := store.migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *GormStore) migrate() error {
	if err := s.db.AutoMigrate(&sessionRow{}, &turnRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}
	return nil
}

func (s *GormStore) CreateSession(ctx context.Context, id, serverURL string) (SessionRecord, error) {
	if err := validateID(id); err != nil {
		return SessionRecord{}, err
	}
	now := time.Now().UTC()
	row := sessionRow{ID: id, ServerURL: serverURL, CreatedAt: now, UpdatedAt: now}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return SessionRecord{}, fmt.Errorf("create session: %w", err)
	}
	return row.toRecord(), nil
}

func (s *GormStore) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	row, err := s.sessionRow(ctx, id)
	if err != nil {
		return SessionRecord{}, err
	}
	return row.toRecord(), nil
}

func (s *GormStore) sessionRow(ctx context.Context, id string) (sessionRow, error) {
	if err := validateID(id); err != nil {
		return sessionRow{}, err
	}
	var row sessionRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return sessionRow{}, ErrNotFound
		}
		return sessionRow{}, fmt.Errorf("get session: %w", err)
	}
	return row, nil
}

// DeleteSession removes the session and all its turns.
func (s *GormStore) DeleteSession(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", id).Delete(&turnRow{}).Error; err != nil {
			return fmt.Errorf("delete turns: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&sessionRow{})
		if res.Error != nil {
			return fmt.Errorf("delete session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// AppendTurn stores turn as the next turn of the session.
func (s *GormStore) AppendTurn(ctx context.Context, sessionID string, turn conversation.Turn) (TurnRecord, error) {
	if err := validateID(sessionID); err != nil {
		return TurnRecord{}, err
	}

	var out TurnRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&sessionRow{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
			return fmt.Errorf("session lookup: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}

		var maxSeq int64
		if err := tx.Model(&turnRow{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("sequence lookup: %w", err)
		}

		row, err := turnRowFromTurn(uuid.NewString(), sessionID, maxSeq+1, turn)
		if err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create turn: %w", err)
		}
		if err := tx.Model(&sessionRow{}).Where("id = ?", sessionID).Update("updated_at", time.Now().UTC()).Error; err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		out, err = row.toRecord()
		return err
	})
	if err != nil {
		return TurnRecord{}, err
	}
	return out, nil
}

// Turns returns the session's turns in order.
func (s *GormStore) Turns(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	if err := validateID(sessionID); err != nil {
		return nil, err
	}
	var rows []turnRow
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get turns: %w", err)
	}
	out := make([]conversation.Turn, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Turn)
	}
	return out, nil
}

// ClearTurns deletes the session's turns and saved agent history but keeps
// the session.
func (s *GormStore) ClearTurns(ctx context.Context, sessionID string) error {
	if err := validateID(sessionID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&turnRow{}).Error; err != nil {
			return fmt.Errorf("clear turns: %w", err)
		}
		res := tx.Model(&sessionRow{}).Where("id = ?", sessionID).Updates(map[string]any{
			"history_yaml": "",
			"updated_at":   time.Now().UTC(),
		})
		if res.Error != nil {
			return fmt.Errorf("clear history: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SaveHistory stores the agent's message history of the session.
func (s *GormStore) SaveHistory(ctx context.Context, sessionID string, messages []persistence.Message) error {
	if err := validateID(sessionID); err != nil {
		return err
	}
	encoded, err := yaml.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&sessionRow{}).Where("id = ?", sessionID).Updates(map[string]any{
		"history_yaml": string(encoded),
		"updated_at":   time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("save history: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) History(ctx context.Context, sessionID string) ([]persistence.Message, error) {
	row, err := s.sessionRow(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if row.HistoryYAML == "" {
		return nil, nil
	}
	var messages []persistence.Message
	if err := yaml.Unmarshal([]byte(row.HistoryYAML), &messages); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	return messages, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}
