package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditInfo is embedded by every entity
type AuditInfo struct {
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
	CreatedBy string    `bson:"createdBy,omitempty" json:"createdBy,omitempty"`
	UpdatedBy string    `bson:"updatedBy,omitempty" json:"updatedBy,omitempty"`
	IsActive  bool      `bson:"isActive" json:"isActive"`
}

// NewAuditInfo stamps creation metadata
func NewAuditInfo(by string) AuditInfo {
	now := Now()
	return AuditInfo{
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: by,
		UpdatedBy: by,
		IsActive:  true,
	}
}

// Touch records a modification
func (a *AuditInfo) Touch(by string) {
	a.UpdatedAt = Now()
	if by != "" {
		a.UpdatedBy = by
	}
}

// Now is the domain clock. Tests may replace it.
var Now = func() time.Time {
	return time.Now().UTC()
}

// NewID generates an entity identifier
func NewID() string {
	return uuid.New().String()
}

// truncateToDay drops the time of day
func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts whole calendar days from a to b (negative when b is before a)
func DaysBetween(a, b time.Time) int {
	return int(truncateToDay(b).Sub(truncateToDay(a)).Hours() / 24)
}
