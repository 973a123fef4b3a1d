package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/neurobridge-mastery/internal/platform/logger"
)

type Entry struct {
	Key       string         `gorm:"column:key;primaryKey;type:varchar(512)" json:"key"`
	Value     datatypes.JSON `gorm:"column:value;not null" json:"value"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Entry) TableName() string { return "kv_entries" }

// GormStore persists entries in a single kv_entries table. It works on any
// gorm dialect; postgres and sqlite are the ones wired by the app.
type GormStore struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGormStore(db *gorm.DB, baseLog *logger.Logger) *GormStore {
	return &GormStore{db: db, log: baseLog.With("store", "GormStore")}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

func (s *GormStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, ErrEmptyKey
	}
	var row Entry
	err := s.db.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, decode(key, row.Value, dst)
}

func (s *GormStore) Set(ctx context.Context, key string, value any) error {
	raw, err := encode(key, value)
	if err != nil {
		return err
	}
	row := Entry{Key: key, Value: datatypes.JSON(raw), UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}
