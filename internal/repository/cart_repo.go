package repository

import (
	"context"

	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartRepo interface {
	// ItemsByUser returns the user's saved cart lines, oldest first. A user
	// without a cart has no items.
	ItemsByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	AddItem(ctx context.Context, userID uuid.UUID, item *models.CartItem) error
	ClearByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type cartRepo struct{ db *gorm.DB }

func NewCartRepo(db *gorm.DB) CartRepo { return &cartRepo{db: db} }

func (r *cartRepo) ItemsByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Joins("JOIN carts ON carts.id = cart_items.cart_id").
		Where("carts.user_id = ?", userID).
		Order("cart_items.added_at ASC, cart_items.id ASC").
		Find(&items).Error
	return items, err
}

// AddItem creates the cart on first use. Catalog-facing cart editing lives
// elsewhere; this is used by seeding and tests.
func (r *cartRepo) AddItem(ctx context.Context, userID uuid.UUID, item *models.CartItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart := models.Cart{UserID: userID}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).Create(&cart).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).First(&cart).Error; err != nil {
			return err
		}
		item.CartID = cart.ID
		return tx.Create(item).Error
	})
}

func (r *cartRepo) ClearByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
DELETE FROM cart_items
WHERE cart_id IN (SELECT id FROM carts WHERE user_id = ?)
`, userID)
	return res.RowsAffected, res.Error
}
