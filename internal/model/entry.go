package model

import (
	"time"

	"gorm.io/gorm"
)

// MaxMealCount is the largest number of tiffins accepted for one meal.
const MaxMealCount = 10

// TiffinEntry is one user's tiffin count for one day.
type TiffinEntry struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	UserID         string    `gorm:"uniqueIndex:idx_tiffin_entries_user_date;size:36;not null" json:"user_id"`
	EntryDate      string    `gorm:"uniqueIndex:idx_tiffin_entries_user_date;size:10;not null" json:"entry_date"` // YYYY-MM-DD
	AfternoonCount int       `gorm:"not null" json:"afternoon_count"`
	EveningCount   int       `gorm:"not null" json:"evening_count"`
	TotalCount     int       `gorm:"not null" json:"total_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ClampCount limits n to [0, MaxMealCount].
func ClampCount(n int) int {
	if n < 0 {
		return 0
	}
	if n > MaxMealCount {
		return MaxMealCount
	}
	return n
}

// Normalize clamps both meal counts and recomputes the total.
func (e *TiffinEntry) Normalize() {
	e.AfternoonCount = ClampCount(e.AfternoonCount)
	e.EveningCount = ClampCount(e.EveningCount)
	e.TotalCount = e.AfternoonCount + e.EveningCount
}

// BeforeSave keeps the stored counts within range on create and save.
func (e *TiffinEntry) BeforeSave(tx *gorm.DB) error {
	e.Normalize()
	return nil
}
