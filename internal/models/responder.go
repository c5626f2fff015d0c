package models

import (
	"strings"
	"time"
)

// Responder is a directory entry for a responder or volunteer who can be
// offered SOS requests.
type Responder struct {
	ID          string `gorm:"primaryKey;size:64"`
	DisplayName string `gorm:"size:128;not null"`
	Contact     string `gorm:"size:128"`
	Role        string `gorm:"size:16;not null"`
	Available   bool   `gorm:"not null;index"`
	Latitude    *float64
	Longitude   *float64
	Categories  string    `gorm:"size:128"` // comma-separated; empty accepts every category
	CreatedAt   time.Time `gorm:"index"`
	UpdatedAt   time.Time
}

// HasLocation reports whether the responder's position is known.
func (r *Responder) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Accepts reports whether the responder takes requests of the given category.
func (r *Responder) Accepts(category string) bool {
	if strings.TrimSpace(r.Categories) == "" || category == "" {
		return true
	}
	for _, c := range strings.Split(r.Categories, ",") {
		if strings.EqualFold(strings.TrimSpace(c), category) {
			return true
		}
	}
	return false
}

// ActiveAssignment links a responder to the one request they currently hold.
type ActiveAssignment struct {
	ResponderID string `gorm:"primaryKey;size:64"`
	RequestID   string `gorm:"size:32;not null;uniqueIndex"`
	AssignedAt  time.Time
}
