// Package gormkv implements storage.KVBackend on top of gorm.io/gorm,
// the way the teacher backs every repository with gorm (postgres in
// production, sqlite in tests) via a single-table key/value model,
// following internal/infrastructure/repositories/unit_of_work_impl.go's
// DB-handling conventions.
package gormkv

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is the single-table row model: one hierarchical key per row.
type Entry struct {
	Key   string `gorm:"primaryKey"`
	Value []byte
}

func (Entry) TableName() string { return "kv_entries" }

// Backend adapts a *gorm.DB into storage.KVBackend.
type Backend struct {
	db *gorm.DB
}

// New builds a Backend. Migrate must have been run (or AutoMigrate called)
// before first use.
func New(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// AutoMigrate creates the backing table if it does not already exist.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

func (b *Backend) Get(key string) ([]byte, bool, error) {
	var entry Entry
	err := b.db.Where("key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry.Value, true, nil
}

func (b *Backend) Set(key string, value []byte) error {
	entry := Entry{Key: key, Value: value}
	return b.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error
}

func (b *Backend) Delete(key string) error {
	return b.db.Where("key = ?", key).Delete(&Entry{}).Error
}

func (b *Backend) Has(key string) (bool, error) {
	var count int64
	if err := b.db.Model(&Entry{}).Where("key = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
