package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogProduct is the shared shape of every family's product table. The
// concrete table is chosen per family through catalog.Descriptor.
type CatalogProduct struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Name        string    `gorm:"type:text;not null"`
	Brand       string    `gorm:"type:text"`
	ProductCode string    `gorm:"type:text;not null"`
	IsActive    bool      `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

type CatalogVariant struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Label     string          `gorm:"type:text"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Stock     int             `gorm:"not null;default:0"`
	Image     string          `gorm:"type:text"`

	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

// StockedProduct is used by families without variants: price and stock live
// on the product row.
type StockedProduct struct {
	CatalogProduct `gorm:"embedded"`

	Price decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Stock int             `gorm:"not null;default:0"`
	Image string          `gorm:"type:text"`
}
