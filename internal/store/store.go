package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"tiffin-tracker-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	GetPreference(ctx context.Context, userID string) (*model.NotificationPreference, error)
	UpsertPreference(ctx context.Context, pref *model.NotificationPreference) (*model.NotificationPreference, error)
	ClearPushSubscription(ctx context.Context, userID string) error
	MarkNotificationSent(ctx context.Context, userID, date string) error
	EligibleUsers(ctx context.Context, q EligibilityQuery) ([]EligibleUser, error)
	EnabledTimezones(ctx context.Context) ([]string, error)

	GetEntry(ctx context.Context, userID, date string) (*model.TiffinEntry, error)
	UpsertEntry(ctx context.Context, userID, date string, counts EntryCounts) (*model.TiffinEntry, error)
	UpdateEntry(ctx context.Context, userID string, id int64, counts EntryCounts) (*model.TiffinEntry, error)
	DeleteEntry(ctx context.Context, userID string, id int64) error
	ListEntries(ctx context.Context, userID, start, end string) ([]model.TiffinEntry, error)
	SummarizeEntries(ctx context.Context, userID, start, end string) (EntrySummary, error)

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// DB exposes the underlying connection for health checks.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
