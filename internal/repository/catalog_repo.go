package repository

import (
	"context"
	"fmt"

	"marketplace-order-service/internal/catalog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VariantKey addresses one sellable unit. Families without variants use the
// product id as the variant id.
type VariantKey struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
}

// CatalogItem is the current catalog state of one variant of an active product.
type CatalogItem struct {
	ProductID   uuid.UUID
	VariantID   uuid.UUID
	VendorID    uuid.UUID
	VendorName  string
	Name        string
	Brand       string
	ProductCode string
	Image       string
	Price       decimal.Decimal
	Stock       int
}

func (c CatalogItem) Key() VariantKey {
	return VariantKey{ProductID: c.ProductID, VariantID: c.VariantID}
}

// FamilyStore reads and mutates the storage of one product family.
type FamilyStore interface {
	Descriptor() catalog.Descriptor
	// Resolve returns only variants of active products that still exist.
	Resolve(ctx context.Context, keys []VariantKey) (map[VariantKey]CatalogItem, error)
	// AdjustStock applies delta atomically and reports false when the row is
	// missing or the result would go negative.
	AdjustStock(ctx context.Context, key VariantKey, delta int) (bool, error)
	Exists(ctx context.Context, key VariantKey) (bool, error)
}

type CatalogRepo interface {
	Store(f catalog.Family) (FamilyStore, error)
	Resolve(ctx context.Context, f catalog.Family, keys []VariantKey) (map[VariantKey]CatalogItem, error)
	AdjustStock(ctx context.Context, f catalog.Family, key VariantKey, delta int) (bool, error)
	Exists(ctx context.Context, f catalog.Family, key VariantKey) (bool, error)
	// ValidateSchema checks that every family table is present.
	ValidateSchema(ctx context.Context) error
}

type catalogRepo struct {
	db     *gorm.DB
	stores map[catalog.Family]FamilyStore
}

func NewCatalogRepo(db *gorm.DB) CatalogRepo {
	r := &catalogRepo{db: db, stores: map[catalog.Family]FamilyStore{}}
	for _, d := range catalog.Descriptors() {
		if d.HasVariants() {
			r.stores[d.Family] = &variantStore{db: db, d: d}
		} else {
			r.stores[d.Family] = &productStore{db: db, d: d}
		}
	}
	return r
}

func (r *catalogRepo) Store(f catalog.Family) (FamilyStore, error) {
	s, ok := r.stores[f]
	if !ok {
		return nil, fmt.Errorf("catalog: no store for family %q", f)
	}
	return s, nil
}

func (r *catalogRepo) Resolve(ctx context.Context, f catalog.Family, keys []VariantKey) (map[VariantKey]CatalogItem, error) {
	s, err := r.Store(f)
	if err != nil {
		return nil, err
	}
	return s.Resolve(ctx, keys)
}

func (r *catalogRepo) AdjustStock(ctx context.Context, f catalog.Family, key VariantKey, delta int) (bool, error) {
	s, err := r.Store(f)
	if err != nil {
		return false, err
	}
	return s.AdjustStock(ctx, key, delta)
}

func (r *catalogRepo) Exists(ctx context.Context, f catalog.Family, key VariantKey) (bool, error) {
	s, err := r.Store(f)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, key)
}

func (r *catalogRepo) ValidateSchema(ctx context.Context) error {
	m := r.db.WithContext(ctx).Migrator()
	for _, d := range catalog.Descriptors() {
		for _, t := range []string{d.ProductTable, d.VariantTable} {
			if t != "" && !m.HasTable(t) {
				return fmt.Errorf("catalog: table %q for family %q is missing", t, d.Family)
			}
		}
	}
	return nil
}

func variantIDs(keys []VariantKey) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(keys))
	seen := make(map[uuid.UUID]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k.VariantID]; ok {
			continue
		}
		seen[k.VariantID] = struct{}{}
		ids = append(ids, k.VariantID)
	}
	return ids
}

type catalogRow struct {
	ProductID   uuid.UUID
	VariantID   uuid.UUID
	VendorID    uuid.UUID
	VendorName  string
	Name        string
	Brand       string
	ProductCode string
	Image       string
	Price       decimal.Decimal
	Stock       int
}

func collect(rows []catalogRow, keys []VariantKey) map[VariantKey]CatalogItem {
	want := make(map[VariantKey]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	out := make(map[VariantKey]CatalogItem, len(rows))
	for _, row := range rows {
		item := CatalogItem(row)
		if _, ok := want[item.Key()]; ok {
			out[item.Key()] = item
		}
	}
	return out
}

// variantStore serves families whose price and stock live on a variant table.
type variantStore struct {
	db *gorm.DB
	d  catalog.Descriptor
}

func (s *variantStore) Descriptor() catalog.Descriptor { return s.d }

func (s *variantStore) Resolve(ctx context.Context, keys []VariantKey) (map[VariantKey]CatalogItem, error) {
	if len(keys) == 0 {
		return map[VariantKey]CatalogItem{}, nil
	}
	var rows []catalogRow
	err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`
SELECT p.id AS product_id, v.id AS variant_id, p.vendor_id,
       COALESCE(vd.business_name, '') AS vendor_name,
       p.name, p.brand, p.product_code, v.image, v.price, v.stock
FROM %s v
JOIN %s p ON p.id = v.product_id
LEFT JOIN vendors vd ON vd.id = p.vendor_id
WHERE v.id IN ? AND p.is_active
`, s.d.VariantTable, s.d.ProductTable), variantIDs(keys)).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return collect(rows, keys), nil
}

func (s *variantStore) AdjustStock(ctx context.Context, key VariantKey, delta int) (bool, error) {
	tx := s.db.WithContext(ctx).Exec(fmt.Sprintf(`
UPDATE %s
SET stock = stock + @delta,
    updated_at = now()
WHERE id = @vid
  AND product_id = @pid
  AND stock + @delta >= 0
`, s.d.VariantTable), map[string]any{
		"vid":   key.VariantID,
		"pid":   key.ProductID,
		"delta": delta,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (s *variantStore) Exists(ctx context.Context, key VariantKey) (bool, error) {
	var cnt int64
	err := s.db.WithContext(ctx).Table(s.d.VariantTable).
		Where("id = ? AND product_id = ?", key.VariantID, key.ProductID).
		Count(&cnt).Error
	return cnt > 0, err
}

// productStore serves families that keep price and stock on the product row.
type productStore struct {
	db *gorm.DB
	d  catalog.Descriptor
}

func (s *productStore) Descriptor() catalog.Descriptor { return s.d }

func (s *productStore) Resolve(ctx context.Context, keys []VariantKey) (map[VariantKey]CatalogItem, error) {
	if len(keys) == 0 {
		return map[VariantKey]CatalogItem{}, nil
	}
	var rows []catalogRow
	err := s.db.WithContext(ctx).Raw(fmt.Sprintf(`
SELECT p.id AS product_id, p.id AS variant_id, p.vendor_id,
       COALESCE(vd.business_name, '') AS vendor_name,
       p.name, p.brand, p.product_code, p.image, p.price, p.stock
FROM %s p
LEFT JOIN vendors vd ON vd.id = p.vendor_id
WHERE p.id IN ? AND p.is_active
`, s.d.ProductTable), variantIDs(keys)).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return collect(rows, keys), nil
}

func (s *productStore) AdjustStock(ctx context.Context, key VariantKey, delta int) (bool, error) {
	if key.VariantID != key.ProductID {
		return false, nil
	}
	tx := s.db.WithContext(ctx).Exec(fmt.Sprintf(`
UPDATE %s
SET stock = stock + @delta,
    updated_at = now()
WHERE id = @pid
  AND stock + @delta >= 0
`, s.d.ProductTable), map[string]any{
		"pid":   key.ProductID,
		"delta": delta,
	})
	return tx.RowsAffected > 0, tx.Error
}

func (s *productStore) Exists(ctx context.Context, key VariantKey) (bool, error) {
	if key.VariantID != key.ProductID {
		return false, nil
	}
	var cnt int64
	err := s.db.WithContext(ctx).Table(s.d.ProductTable).Where("id = ?", key.ProductID).Count(&cnt).Error
	return cnt > 0, err
}
