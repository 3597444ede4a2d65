package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tiffin-tracker-backend/internal/model"
)

// GetPreference returns the user's preferences or ErrNotFound.
func (s *gormStore) GetPreference(ctx context.Context, userID string) (*model.NotificationPreference, error) {
	var pref model.NotificationPreference
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&pref).Error; err != nil {
		return nil, notFound(err)
	}
	return &pref, nil
}

// UpsertPreference creates or replaces the settings-owned columns of the
// user's row. last_notification_sent is left to the reminder job.
func (s *gormStore) UpsertPreference(ctx context.Context, pref *model.NotificationPreference) (*model.NotificationPreference, error) {
	row := *pref
	row.ID = 0
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "notification_time", "timezone", "push_subscription", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("upsert preferences for user %s: %w", pref.UserID, err)
	}
	return s.GetPreference(ctx, pref.UserID)
}

// ClearPushSubscription sets the user's push_subscription to NULL.
func (s *gormStore) ClearPushSubscription(ctx context.Context, userID string) error {
	res := s.db.WithContext(ctx).
		Model(&model.NotificationPreference{}).
		Where("user_id = ?", userID).
		Update("push_subscription", gorm.Expr("NULL"))
	if res.Error != nil {
		return fmt.Errorf("clear push subscription for user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkNotificationSent records date as the day the user was last reminded.
func (s *gormStore) MarkNotificationSent(ctx context.Context, userID, date string) error {
	res := s.db.WithContext(ctx).
		Model(&model.NotificationPreference{}).
		Where("user_id = ?", userID).
		Update("last_notification_sent", date)
	if res.Error != nil {
		return fmt.Errorf("mark notification sent for user %s: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// EligibleUsers returns enabled users whose notification_time equals
// q.TargetTime, each flagged with whether an entry exists for q.TargetDate.
func (s *gormStore) EligibleUsers(ctx context.Context, q EligibilityQuery) ([]EligibleUser, error) {
	query := s.db.WithContext(ctx).
		Model(&model.NotificationPreference{}).
		Select(`notification_preferences.user_id,
			notification_preferences.push_subscription,
			EXISTS (
				SELECT 1 FROM tiffin_entries te
				WHERE te.user_id = notification_preferences.user_id AND te.entry_date = ?
			) AS has_entry_today`, q.TargetDate).
		Where("notification_preferences.enabled = ? AND notification_preferences.notification_time = ?", true, q.TargetTime)
	if q.Timezone != "" {
		query = query.Where("notification_preferences.timezone = ?", q.Timezone)
	}
	if q.ExcludeNotified {
		query = query.Where("(notification_preferences.last_notification_sent IS NULL OR notification_preferences.last_notification_sent <> ?)", q.TargetDate)
	}

	var users []EligibleUser
	if err := query.Order("notification_preferences.id").Scan(&users).Error; err != nil {
		return nil, fmt.Errorf("query eligible users at %s: %w", q.TargetTime, err)
	}
	return users, nil
}

// EnabledTimezones lists the distinct timezones stored by enabled users.
func (s *gormStore) EnabledTimezones(ctx context.Context) ([]string, error) {
	var zones []string
	if err := s.db.WithContext(ctx).
		Model(&model.NotificationPreference{}).
		Where("enabled = ?", true).
		Distinct().
		Order("timezone").
		Pluck("timezone", &zones).Error; err != nil {
		return nil, fmt.Errorf("list enabled timezones: %w", err)
	}
	return zones, nil
}
