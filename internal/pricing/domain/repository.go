package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *MarkdownRecord) error
	ListByStore(ctx context.Context, db *gorm.DB, storeID string, limit int) ([]MarkdownRecord, error)
}
