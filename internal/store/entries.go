package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tiffin-tracker-backend/internal/model"
)

// GetEntry returns the user's entry for date or ErrNotFound.
func (s *gormStore) GetEntry(ctx context.Context, userID, date string) (*model.TiffinEntry, error) {
	var entry model.TiffinEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND entry_date = ?", userID, date).
		First(&entry).Error; err != nil {
		return nil, notFound(err)
	}
	return &entry, nil
}

// UpsertEntry writes the counts for (user, date), creating the row if needed.
func (s *gormStore) UpsertEntry(ctx context.Context, userID, date string, counts EntryCounts) (*model.TiffinEntry, error) {
	entry := model.TiffinEntry{
		UserID:         userID,
		EntryDate:      date,
		AfternoonCount: counts.Afternoon,
		EveningCount:   counts.Evening,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "entry_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"afternoon_count", "evening_count", "total_count", "updated_at"}),
	}).Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("upsert entry %s for user %s: %w", date, userID, err)
	}
	return s.GetEntry(ctx, userID, date)
}

// UpdateEntry changes the counts of an existing entry owned by the user.
func (s *gormStore) UpdateEntry(ctx context.Context, userID string, id int64, counts EntryCounts) (*model.TiffinEntry, error) {
	var entry model.TiffinEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&entry).Error; err != nil {
			return notFound(err)
		}
		entry.AfternoonCount = counts.Afternoon
		entry.EveningCount = counts.Evening
		return tx.Save(&entry).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteEntry removes the entry if it belongs to the user.
func (s *gormStore) DeleteEntry(ctx context.Context, userID string, id int64) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.TiffinEntry{})
	if res.Error != nil {
		return fmt.Errorf("delete entry %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEntries returns entries with start <= entry_date <= end, newest first.
func (s *gormStore) ListEntries(ctx context.Context, userID, start, end string) ([]model.TiffinEntry, error) {
	entries := make([]model.TiffinEntry, 0)
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND entry_date >= ? AND entry_date <= ?", userID, start, end).
		Order("entry_date DESC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list entries %s..%s: %w", start, end, err)
	}
	return entries, nil
}

// SummarizeEntries totals the counts of the entries in the range.
func (s *gormStore) SummarizeEntries(ctx context.Context, userID, start, end string) (EntrySummary, error) {
	var summary EntrySummary
	if err := s.db.WithContext(ctx).
		Model(&model.TiffinEntry{}).
		Select("COUNT(*) AS entries, COALESCE(SUM(afternoon_count), 0) AS afternoon, COALESCE(SUM(evening_count), 0) AS evening, COALESCE(SUM(total_count), 0) AS total").
		Where("user_id = ? AND entry_date >= ? AND entry_date <= ?", userID, start, end).
		Scan(&summary).Error; err != nil {
		return EntrySummary{}, fmt.Errorf("summarize entries %s..%s: %w", start, end, err)
	}
	return summary, nil
}
