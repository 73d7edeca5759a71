package models

import (
	"time"

	"gorm.io/gorm"
)

// CachedProfile is the persisted form of a counterparty's display profile.
// Only display data is cached for warm starts; relation state is never
// persisted and is always rebuilt from fresh fetches.
type CachedProfile struct {
	ID             uint           `gorm:"primarykey" json:"id"`
	CounterpartyID string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"counterpartyId"`
	Name           string         `gorm:"type:varchar(255)" json:"name"`
	AvatarURL      string         `gorm:"type:varchar(255)" json:"avatarUrl,omitempty"`
	Headline       string         `gorm:"type:varchar(255)" json:"headline,omitempty"`
	Company        string         `gorm:"type:varchar(255)" json:"company,omitempty"`
	Email          string         `gorm:"type:varchar(100)" json:"email,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deletedAt,omitempty"`
}

// TableName sets the table name for CachedProfile.
func (CachedProfile) TableName() string {
	return "cached_profiles"
}

// Display converts the cached row back to a DisplayProfile.
func (c *CachedProfile) Display() DisplayProfile {
	return DisplayProfile{
		Name:      c.Name,
		AvatarURL: c.AvatarURL,
		Headline:  c.Headline,
		Company:   c.Company,
		Email:     c.Email,
	}
}
