package service

import (
	"bytes"
	"sort"

	"marketplace-order-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DraftOrder is one vendor's share of a checkout before persistence.
type DraftOrder struct {
	VendorID   uuid.UUID
	VendorName string
	Items      []models.OrderItem
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
	CouponCode *string
}

// Split groups cart lines by vendor and distributes the coupon discount.
// Groups are ordered by vendor id. For a global coupon the per-vendor
// discounts sum exactly to the coupon discount and each stays within
// [0, subtotal].
func Split(items []ResolvedCartItem, coupon *VerifiedCoupon) []DraftOrder {
	if len(items) == 0 {
		return nil
	}

	groups := map[uuid.UUID]*DraftOrder{}
	for _, it := range items {
		g, ok := groups[it.VendorID]
		if !ok {
			g = &DraftOrder{VendorID: it.VendorID, VendorName: it.VendorName, Subtotal: decimal.Zero}
			groups[it.VendorID] = g
		}
		oi := toOrderItem(it)
		g.Items = append(g.Items, oi)
		g.Subtotal = g.Subtotal.Add(oi.LineTotal)
	}

	drafts := make([]DraftOrder, 0, len(groups))
	for _, g := range groups {
		drafts = append(drafts, *g)
	}
	sort.Slice(drafts, func(i, j int) bool {
		return bytes.Compare(drafts[i].VendorID[:], drafts[j].VendorID[:]) < 0
	})

	allocateDiscount(drafts, coupon)

	for i := range drafts {
		d := &drafts[i]
		d.Total = d.Subtotal.Sub(d.Discount)
		if d.Total.IsNegative() {
			d.Total = decimal.Zero
		}
		if coupon != nil && (coupon.Scope != models.CouponScopeVendor || coupon.AppliesTo(d.VendorID)) {
			code := coupon.Code
			d.CouponCode = &code
		}
	}
	return drafts
}

func allocateDiscount(drafts []DraftOrder, coupon *VerifiedCoupon) {
	for i := range drafts {
		drafts[i].Discount = decimal.Zero
	}
	if coupon == nil {
		return
	}

	if coupon.Scope == models.CouponScopeVendor {
		for i := range drafts {
			if coupon.AppliesTo(drafts[i].VendorID) {
				drafts[i].Discount = coupon.DiscountFor(drafts[i].Subtotal)
			}
		}
		return
	}

	orderTotal := decimal.Zero
	for _, d := range drafts {
		orderTotal = orderTotal.Add(d.Subtotal)
	}
	total := decimal.Min(coupon.Discount, orderTotal).Round(2)
	if !orderTotal.IsPositive() || !total.IsPositive() {
		return
	}

	// Largest remainder in cents: shares are rounded down, then the
	// leftover cents go to the largest remainders, earlier groups first
	// on ties.
	totalCents := total.Shift(2)
	orderCents := orderTotal.Shift(2)
	rems := make([]decimal.Decimal, len(drafts))
	allocated := decimal.Zero
	for i := range drafts {
		q, r := drafts[i].Subtotal.Shift(2).Mul(totalCents).QuoRem(orderCents, 0)
		drafts[i].Discount = q.Shift(-2)
		rems[i] = r
		allocated = allocated.Add(q)
	}

	byRem := make([]int, len(drafts))
	for i := range byRem {
		byRem[i] = i
	}
	sort.SliceStable(byRem, func(a, b int) bool { return rems[byRem[a]].GreaterThan(rems[byRem[b]]) })

	cent := decimal.New(1, -2)
	left := totalCents.Sub(allocated).IntPart()
	for k := 0; k < int(left) && k < len(byRem); k++ {
		i := byRem[k]
		drafts[i].Discount = drafts[i].Discount.Add(cent)
	}
}

func toOrderItem(it ResolvedCartItem) models.OrderItem {
	pkgPrice := decimal.Zero
	var pkg *datatypes.JSONType[models.LensPackage]
	if it.LensPackage != nil {
		pkgPrice = it.LensPackage.Price
		j := datatypes.NewJSONType(*it.LensPackage)
		pkg = &j
	}
	line := it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))).Add(pkgPrice)
	return models.OrderItem{
		ProductID:    it.ProductID,
		VariantID:    it.VariantID,
		Family:       string(it.Family),
		VendorID:     it.VendorID,
		VendorName:   it.VendorName,
		Name:         it.Name,
		Brand:        it.Brand,
		ProductCode:  it.ProductCode,
		Image:        it.Image,
		UnitPrice:    it.UnitPrice,
		Quantity:     it.Quantity,
		PackagePrice: pkgPrice,
		LensPackage:  pkg,
		LineTotal:    line,
	}
}
