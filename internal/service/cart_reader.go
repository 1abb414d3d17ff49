package service

import (
	"context"

	"marketplace-order-service/internal/catalog"
	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ResolvedCartItem is a cart line joined with the current catalog state.
type ResolvedCartItem struct {
	CartItemID  uuid.UUID
	ProductID   uuid.UUID
	VariantID   uuid.UUID
	Family      catalog.Family
	VendorID    uuid.UUID
	VendorName  string
	Name        string
	Brand       string
	ProductCode string
	Image       string
	UnitPrice   decimal.Decimal
	Quantity    int
	LensPackage *models.LensPackage
}

type CartReader struct {
	carts   CartRepo
	catalog CatalogRepo
	log     *zap.Logger
}

func NewCartReader(repos Repos, log *zap.Logger) *CartReader {
	return &CartReader{carts: repos.Carts(), catalog: repos.Catalog(), log: log}
}

// ReadCart returns the user's purchasable cart lines in cart order. Lines
// whose product is inactive, deleted or of an unknown family, or whose
// variant no longer exists, are dropped silently.
func (r *CartReader) ReadCart(ctx context.Context, userID uuid.UUID) (_ []ResolvedCartItem, err error) {
	ctx, span := startSpan(ctx, "ReadCart", attribute.String("user.id", userID.String()))
	defer func() { endSpan(span, err) }()

	items, err := r.carts.ItemsByUser(ctx, userID)
	if err != nil {
		return nil, internalErr("cart_read_failed", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	byFamily := make(map[catalog.Family][]VariantKey)
	families := make([]catalog.Family, len(items))
	for i, it := range items {
		f, err := catalog.ParseFamily(it.Family)
		if err != nil || it.Quantity <= 0 {
			r.log.Warn("Пропуск позиции корзины",
				zap.String("cart_item_id", it.ID.String()),
				zap.String("family", it.Family),
				zap.Int("quantity", it.Quantity))
			continue
		}
		families[i] = f
		byFamily[f] = append(byFamily[f], VariantKey{ProductID: it.ProductID, VariantID: it.VariantID})
	}

	resolved := make(map[catalog.Family]map[VariantKey]CatalogItem, len(byFamily))
	for f, keys := range byFamily {
		got, err := r.catalog.Resolve(ctx, f, keys)
		if err != nil {
			return nil, internalErr("cart_read_failed", err)
		}
		resolved[f] = got
	}

	out := make([]ResolvedCartItem, 0, len(items))
	for i, it := range items {
		f := families[i]
		if f == "" {
			continue
		}
		ci, ok := resolved[f][VariantKey{ProductID: it.ProductID, VariantID: it.VariantID}]
		if !ok {
			r.log.Debug("Товар корзины недоступен",
				zap.String("cart_item_id", it.ID.String()),
				zap.String("product_id", it.ProductID.String()))
			continue
		}
		out = append(out, resolveLine(it, f, ci))
	}
	span.SetAttributes(attribute.Int("cart.items", len(out)))
	return out, nil
}

func resolveLine(it models.CartItem, f catalog.Family, ci CatalogItem) ResolvedCartItem {
	line := ResolvedCartItem{
		CartItemID:  it.ID,
		ProductID:   it.ProductID,
		VariantID:   it.VariantID,
		Family:      f,
		VendorID:    ci.VendorID,
		VendorName:  firstNonEmpty(ci.VendorName, it.VendorName),
		Name:        firstNonEmpty(ci.Name, it.Name),
		Brand:       firstNonEmpty(ci.Brand, it.Brand),
		ProductCode: firstNonEmpty(ci.ProductCode, it.ProductCode),
		Image:       firstNonEmpty(ci.Image, it.Image),
		UnitPrice:   ci.Price,
		Quantity:    it.Quantity,
	}
	if it.LensPackage != nil {
		pkg := it.LensPackage.Data()
		line.LensPackage = &pkg
	}
	return line
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
