package participant

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/inamkkkk/take-it-and-go/pkg/log"
)

// Directory answers whether a user takes part in a delivery.
type Directory interface {
	IsParticipant(ctx context.Context, deliveryKey, userID string) (bool, error)
}

// OpenDirectory admits every authenticated user to every delivery room.
type OpenDirectory struct{}

func (OpenDirectory) IsParticipant(context.Context, string, string) (bool, error) {
	return true, nil
}

// DeliveryModel is the read-only view of the marketplace deliveries table.
type DeliveryModel struct {
	ID         string `gorm:"primaryKey;size:128"`
	ShipperID  string `gorm:"size:64;index"`
	TravelerID string `gorm:"size:64;index"`
}

func (DeliveryModel) TableName() string {
	return "deliveries"
}

// GormDirectory looks participants up in the deliveries table.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

// Migrate creates the deliveries table. Only used for local setups where
// the marketplace schema does not exist.
func (d *GormDirectory) Migrate() error {
	return d.db.AutoMigrate(&DeliveryModel{})
}

func (d *GormDirectory) IsParticipant(ctx context.Context, deliveryKey, userID string) (bool, error) {
	var delivery DeliveryModel
	err := d.db.WithContext(ctx).First(&delivery, "id = ?", deliveryKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str("delivery_key", deliveryKey).Msg("failed to load delivery")
		return false, fmt.Errorf("failed to load delivery: %w", err)
	}
	return delivery.ShipperID == userID || delivery.TravelerID == userID, nil
}
