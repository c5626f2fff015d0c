package models

import "time"

// Account is an identity that may present a bearer token to the API.
type Account struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:128;not null"`
	Email     string `gorm:"size:128;index"`
	Role      string `gorm:"size:16;not null"`
	TokenHash string `gorm:"size:64;not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
