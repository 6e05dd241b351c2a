package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mom-admin-api/internal/models"
	"mom-admin-api/internal/realtime"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps documents in the SQL documents table and fans writes
// out to subscribers through a realtime hub.
type GormStore struct {
	db  *gorm.DB
	hub *realtime.Hub
}

// NewGormStore creates a store over an already migrated database.
func NewGormStore(db *gorm.DB, hub *realtime.Hub) *GormStore {
	if hub == nil {
		hub = realtime.NewHub()
	}
	return &GormStore{db: db, hub: hub}
}

func (s *GormStore) Read(ctx context.Context, path string) (json.RawMessage, error) {
	p, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	var doc models.Document
	if err := s.db.WithContext(ctx).Where("path = ?", p).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return json.RawMessage(doc.Data), nil
}

func (s *GormStore) Write(ctx context.Context, path string, doc any) error {
	p, err := CleanPath(path)
	if err != nil {
		return err
	}
	data, err := encode(p, doc)
	if err != nil {
		return err
	}

	row := models.Document{Path: p, Data: string(data)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.hub.Broadcast(p, data)
	return nil
}

func (s *GormStore) Subscribe(path string, fn func(doc json.RawMessage)) func() {
	p, err := CleanPath(path)
	if err != nil {
		return func() {}
	}
	return s.hub.Subscribe(p, func(m []byte) { fn(json.RawMessage(m)) })
}

var _ Store = (*GormStore)(nil)
