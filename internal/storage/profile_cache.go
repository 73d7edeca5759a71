package storage

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pronet-go/internal/models"
)

// ProfileCacheRepository persists denormalized display profiles between
// daemon runs. Only display data goes through here; relation state is owned
// by the in-memory repository and is never written to disk.
type ProfileCacheRepository interface {
	LoadAll(ctx context.Context) ([]models.CachedProfile, error)
	SaveBatch(ctx context.Context, profiles []models.CachedProfile) error
	Delete(ctx context.Context, counterpartyID string) error
}

// gormProfileCacheRepository implements ProfileCacheRepository using GORM.
type gormProfileCacheRepository struct {
	db *gorm.DB
}

// NewGormProfileCacheRepository creates a new GORM-based cache repository.
func NewGormProfileCacheRepository(db *gorm.DB) ProfileCacheRepository {
	return &gormProfileCacheRepository{db: db}
}

func (r *gormProfileCacheRepository) LoadAll(ctx context.Context) ([]models.CachedProfile, error) {
	var profiles []models.CachedProfile
	err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

// SaveBatch upserts by counterparty id so repeated refreshes keep a single
// row per counterparty.
func (r *gormProfileCacheRepository) SaveBatch(ctx context.Context, profiles []models.CachedProfile) error {
	if len(profiles) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "counterparty_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "avatar_url", "headline", "company", "email", "updated_at"}),
	}).Create(&profiles).Error
}

func (r *gormProfileCacheRepository) Delete(ctx context.Context, counterpartyID string) error {
	return r.db.WithContext(ctx).
		Where("counterparty_id = ?", counterpartyID).
		Delete(&models.CachedProfile{}).Error
}
