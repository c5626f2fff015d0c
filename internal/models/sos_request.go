package models

import "time"

// Location is the coordinate pair captured when an SOS request is submitted.
type Location struct {
	Longitude float64 `gorm:"not null"`
	Latitude  float64 `gorm:"not null"`
	Address   string  `gorm:"size:256"`
}

// SOSRequest is a single emergency report and its lifecycle state.
type SOSRequest struct {
	ID                  string    `gorm:"primaryKey;size:32"`
	ReporterID          string    `gorm:"size:64;not null;index"`
	Category            string    `gorm:"size:16;not null"`
	Description         string    `gorm:"type:text"`
	Location            Location  `gorm:"embedded;embeddedPrefix:location_"`
	Status              string    `gorm:"size:16;not null;index"`
	AssignedResponderID string    `gorm:"size:64;index"`
	UpdatedBy           string    `gorm:"size:64"`
	Version             int       `gorm:"not null;default:1"`
	CreatedAt           time.Time `gorm:"index"`
	UpdatedAt           time.Time
	AssignedAt          *time.Time
	ResolvedAt          *time.Time

	Events []RequestEvent `gorm:"foreignKey:RequestID"`
}

// RequestEvent is one entry in a request's append-only history.
type RequestEvent struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	RequestID  string `gorm:"size:32;not null;index"`
	Event      string `gorm:"size:16;not null"`
	ActorID    string `gorm:"size:64"`
	FromStatus string `gorm:"size:16"`
	ToStatus   string `gorm:"size:16;not null"`
	CreatedAt  time.Time
}
