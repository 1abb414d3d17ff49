package service_test

import (
	"testing"

	"marketplace-order-service/internal/catalog"
	"marketplace-order-service/internal/models"
	"marketplace-order-service/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(vendor uuid.UUID, price string, qty int) service.ResolvedCartItem {
	return service.ResolvedCartItem{
		ProductID: uuid.New(),
		VariantID: uuid.New(),
		Family:    catalog.FamilyFrame,
		VendorID:  vendor,
		UnitPrice: dec(price),
		Quantity:  qty,
	}
}

// orderedVendors returns n vendor ids in ascending order.
func orderedVendors(n int) []uuid.UUID {
	out := make([]uuid.UUID, n)
	for i := range out {
		out[i] = uuid.UUID{byte(i + 1)}
	}
	return out
}

func sumTotals(drafts []service.DraftOrder) (total, discount decimal.Decimal) {
	for _, d := range drafts {
		total = total.Add(d.Total)
		discount = discount.Add(d.Discount)
	}
	return total, discount
}

func TestSplit_GlobalCouponProportional(t *testing.T) {
	v := orderedVendors(2)
	coupon := &service.VerifiedCoupon{
		Code: "SAVE10", Type: models.DiscountPercentage, Value: dec("10"),
		Scope: models.CouponScopeGlobal, Discount: dec("100"),
	}

	drafts := service.Split([]service.ResolvedCartItem{
		line(v[0], "400", 2),
		line(v[1], "200", 1),
	}, coupon)

	require.Len(t, drafts, 2)
	assert.True(t, drafts[0].Subtotal.Equal(dec("800")))
	assert.True(t, drafts[0].Discount.Equal(dec("80")), "got %s", drafts[0].Discount)
	assert.True(t, drafts[0].Total.Equal(dec("720")))
	assert.True(t, drafts[1].Discount.Equal(dec("20")), "got %s", drafts[1].Discount)
	assert.True(t, drafts[1].Total.Equal(dec("180")))

	total, discount := sumTotals(drafts)
	assert.True(t, total.Equal(dec("900")))
	assert.True(t, discount.Equal(dec("100")))
	for _, d := range drafts {
		require.NotNil(t, d.CouponCode)
		assert.Equal(t, "SAVE10", *d.CouponCode)
	}
}

func TestSplit_LeftoverCentGoesToFirstOnTie(t *testing.T) {
	v := orderedVendors(3)
	coupon := &service.VerifiedCoupon{
		Code: "FLAT100", Type: models.DiscountFlat, Value: dec("100"),
		Scope: models.CouponScopeGlobal, Discount: dec("100"),
	}

	drafts := service.Split([]service.ResolvedCartItem{
		line(v[2], "100", 1),
		line(v[0], "100", 1),
		line(v[1], "100", 1),
	}, coupon)

	require.Len(t, drafts, 3)
	assert.Equal(t, []uuid.UUID{v[0], v[1], v[2]}, []uuid.UUID{drafts[0].VendorID, drafts[1].VendorID, drafts[2].VendorID})
	assert.True(t, drafts[0].Discount.Equal(dec("33.34")), "got %s", drafts[0].Discount)
	assert.True(t, drafts[1].Discount.Equal(dec("33.33")))
	assert.True(t, drafts[2].Discount.Equal(dec("33.33")))

	total, discount := sumTotals(drafts)
	assert.True(t, discount.Equal(dec("100")))
	assert.True(t, total.Equal(dec("200")))
}

func TestSplit_LeftoverCentsFollowLargestRemainders(t *testing.T) {
	v := orderedVendors(3)
	coupon := &service.VerifiedCoupon{
		Code: "FLAT1", Type: models.DiscountFlat, Value: dec("1"),
		Scope: models.CouponScopeGlobal, Discount: dec("1"),
	}

	// Exact shares 0.1666.., 0.3333.., 0.5.
	drafts := service.Split([]service.ResolvedCartItem{
		line(v[0], "1", 1),
		line(v[1], "2", 1),
		line(v[2], "3", 1),
	}, coupon)

	require.Len(t, drafts, 3)
	assert.True(t, drafts[0].Discount.Equal(dec("0.17")), "got %s", drafts[0].Discount)
	assert.True(t, drafts[1].Discount.Equal(dec("0.33")), "got %s", drafts[1].Discount)
	assert.True(t, drafts[2].Discount.Equal(dec("0.50")), "got %s", drafts[2].Discount)
}

func TestSplit_SmallCouponOverManyVendorsNeverNegative(t *testing.T) {
	v := orderedVendors(10)
	coupon := &service.VerifiedCoupon{
		Code: "FIVE", Type: models.DiscountFlat, Value: dec("0.05"),
		Scope: models.CouponScopeGlobal, Discount: dec("0.05"),
	}
	items := make([]service.ResolvedCartItem, 0, len(v))
	for _, id := range v {
		items = append(items, line(id, "1", 1))
	}

	drafts := service.Split(items, coupon)

	require.Len(t, drafts, 10)
	for i, d := range drafts {
		assert.False(t, d.Discount.IsNegative(), "group %d discount %s", i, d.Discount)
		assert.True(t, d.Discount.LessThanOrEqual(d.Subtotal), "group %d", i)
		assert.True(t, d.Total.LessThanOrEqual(d.Subtotal), "group %d total %s", i, d.Total)
		want := "0"
		if i < 5 {
			want = "0.01"
		}
		assert.True(t, d.Discount.Equal(dec(want)), "group %d got %s", i, d.Discount)
	}
	_, discount := sumTotals(drafts)
	assert.True(t, discount.Equal(dec("0.05")))
}

func TestSplit_VendorCouponDiscountsOnlyItsVendor(t *testing.T) {
	v := orderedVendors(2)
	target := v[1]
	coupon := &service.VerifiedCoupon{
		Code: "LENS10", Type: models.DiscountPercentage, Value: dec("10"),
		Scope: models.CouponScopeVendor, VendorID: &target,
	}

	drafts := service.Split([]service.ResolvedCartItem{
		line(v[0], "800", 1),
		line(v[1], "200", 1),
	}, coupon)

	require.Len(t, drafts, 2)
	assert.True(t, drafts[0].Discount.IsZero())
	assert.Nil(t, drafts[0].CouponCode)
	assert.True(t, drafts[0].Total.Equal(dec("800")))
	assert.True(t, drafts[1].Discount.Equal(dec("20")))
	assert.True(t, drafts[1].Total.Equal(dec("180")))
	require.NotNil(t, drafts[1].CouponCode)

	_, discount := sumTotals(drafts)
	assert.True(t, discount.Equal(dec("20")), "vendor coupon is applied exactly once")
}

func TestSplit_FlatVendorCouponClampsAtZero(t *testing.T) {
	v := orderedVendors(1)
	coupon := &service.VerifiedCoupon{
		Code: "BIG", Type: models.DiscountFlat, Value: dec("500"),
		Scope: models.CouponScopeVendor, VendorID: &v[0],
	}

	drafts := service.Split([]service.ResolvedCartItem{line(v[0], "150", 1)}, coupon)

	require.Len(t, drafts, 1)
	assert.True(t, drafts[0].Discount.Equal(dec("150")))
	assert.True(t, drafts[0].Total.IsZero())
	assert.False(t, drafts[0].Total.IsNegative())
}

func TestSplit_LineTotalIncludesLensPackage(t *testing.T) {
	v := orderedVendors(1)
	it := line(v[0], "1000", 2)
	it.LensPackage = &models.LensPackage{Name: "Blue cut", Price: dec("350")}

	drafts := service.Split([]service.ResolvedCartItem{it}, nil)

	require.Len(t, drafts, 1)
	require.Len(t, drafts[0].Items, 1)
	oi := drafts[0].Items[0]
	assert.True(t, oi.LineTotal.Equal(dec("2350")))
	assert.True(t, oi.PackagePrice.Equal(dec("350")))
	require.NotNil(t, oi.LensPackage)
	assert.Equal(t, "Blue cut", oi.LensPackage.Data().Name)
	assert.True(t, drafts[0].Discount.IsZero())
	assert.Nil(t, drafts[0].CouponCode)
}

func TestSplit_EmptyCart(t *testing.T) {
	assert.Empty(t, service.Split(nil, nil))
}
