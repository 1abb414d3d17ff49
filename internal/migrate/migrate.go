package migrate

import (
	"context"
	"fmt"

	"marketplace-order-service/internal/catalog"
	"marketplace-order-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto
	CreateCatalogTables    bool // таблицы семейств товаров (в проде ими владеет каталог)
	CreateChecks           bool // CHECK-constraint для целостности
	CreateIndexes          bool // индексы и UNIQUE
	CreateUpdatedAtTrigger bool // триггер обновления updated_at
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateCatalogTables:    true,
		CreateChecks:           true,
		CreateIndexes:          true,
		CreateUpdatedAtTrigger: true,
	}
}

// step is one named raw SQL statement applied after AutoMigrate.
type step struct {
	name string
	sql  string
}

func MigrateOrderDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	log.Info("Начало миграции базы заказов маркетплейса")
	db = db.WithContext(ctx)

	if opt.CreateExtensions {
		log.Info("Создание расширений PostgreSQL")
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("Не удалось включить расширение pgcrypto", zap.Error(err))
			return err
		}
	}

	log.Info("Создание основных таблиц")
	if err := db.AutoMigrate(
		&models.User{},
		&models.Vendor{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.Coupon{},
		&models.PaymentRecord{},
		&models.OrderPayment{},
		&models.StockAdjustment{},
	); err != nil {
		log.Error("Не удалось создать таблицы", zap.Error(err))
		return err
	}

	if opt.CreateCatalogTables {
		if err := migrateCatalog(db, log); err != nil {
			return err
		}
	}

	if opt.CreateUpdatedAtTrigger {
		log.Info("Создание триггеров updated_at")
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;`).Error; err != nil {
			log.Error("Не удалось создать функцию set_updated_at", zap.Error(err))
			return err
		}
		for _, table := range []string{"orders", "carts", "coupons", "stock_adjustments"} {
			sql := fmt.Sprintf(`
DROP TRIGGER IF EXISTS trg_%[1]s_updated ON %[1]s;
CREATE TRIGGER trg_%[1]s_updated
BEFORE UPDATE ON %[1]s
FOR EACH ROW EXECUTE FUNCTION set_updated_at();`, table)
			if err := db.Exec(sql).Error; err != nil {
				log.Error("Не удалось создать триггер updated_at", zap.String("table", table), zap.Error(err))
				return err
			}
		}
	}

	if opt.CreateChecks {
		log.Info("Создание CHECK-ограничений")
		if err := apply(db, log, checkSteps(opt.CreateCatalogTables)); err != nil {
			return err
		}
		log.Info("CHECK-ограничения успешно созданы")
	}

	if opt.CreateIndexes {
		log.Info("Создание индексов")
		if err := apply(db, log, indexSteps()); err != nil {
			return err
		}
		log.Info("Индексы успешно созданы")
	}

	log.Info("Миграция базы заказов успешно завершена")
	return nil
}

func migrateCatalog(db *gorm.DB, log *zap.Logger) error {
	for _, d := range catalog.Descriptors() {
		log.Info("Создание таблиц семейства товаров", zap.String("family", string(d.Family)))
		if !d.HasVariants() {
			if err := db.Table(d.ProductTable).AutoMigrate(&models.StockedProduct{}); err != nil {
				log.Error("Не удалось создать таблицу товаров", zap.String("table", d.ProductTable), zap.Error(err))
				return err
			}
			continue
		}
		if err := db.Table(d.ProductTable).AutoMigrate(&models.CatalogProduct{}); err != nil {
			log.Error("Не удалось создать таблицу товаров", zap.String("table", d.ProductTable), zap.Error(err))
			return err
		}
		if err := db.Table(d.VariantTable).AutoMigrate(&models.CatalogVariant{}); err != nil {
			log.Error("Не удалось создать таблицу вариантов", zap.String("table", d.VariantTable), zap.Error(err))
			return err
		}
	}
	return nil
}

func apply(db *gorm.DB, log *zap.Logger, steps []step) error {
	for _, s := range steps {
		if err := db.Exec(s.sql).Error; err != nil {
			log.Error("Не удалось применить шаг миграции", zap.String("step", s.name), zap.Error(err))
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func addCheck(table, name, expr string) step {
	return step{
		name: name,
		sql: fmt.Sprintf(`
ALTER TABLE %[1]s DROP CONSTRAINT IF EXISTS %[2]s;
ALTER TABLE %[1]s ADD CONSTRAINT %[2]s CHECK (%[3]s);`, table, name, expr),
	}
}

func checkSteps(withCatalog bool) []step {
	steps := []step{
		addCheck("orders", "chk_orders_status_allowed",
			`status IN ('pending','processing','shipped','delivered','cancelled')`),
		addCheck("orders", "chk_orders_amounts_non_negative",
			`subtotal >= 0 AND discount >= 0 AND total_amount >= 0`),
		addCheck("order_items", "chk_order_items_quantity_gt_zero", `quantity > 0`),
		addCheck("order_items", "chk_order_items_prices_non_negative",
			`unit_price >= 0 AND package_price >= 0 AND line_total >= 0`),
		addCheck("cart_items", "chk_cart_items_quantity_gt_zero", `quantity > 0`),
		addCheck("coupons", "chk_coupons_discount_type",
			`discount_type IN ('percentage','flat')`),
		addCheck("coupons", "chk_coupons_value_positive", `value > 0`),
		addCheck("coupons", "chk_coupons_percentage_le_100",
			`discount_type <> 'percentage' OR value <= 100`),
		addCheck("coupons", "chk_coupons_limits_non_negative",
			`usage_limit >= 0 AND per_user_limit >= 0 AND min_order_amount >= 0`),
		addCheck("coupons", "chk_coupons_vendor_scope",
			`(scope = 'global' AND vendor_id IS NULL) OR (scope = 'vendor' AND vendor_id IS NOT NULL)`),
		addCheck("payment_records", "chk_payment_records_status",
			`status IN ('initiated','successful','failed','refunded')`),
		addCheck("payment_records", "chk_payment_records_currency_len", `char_length(currency) = 3`),
		addCheck("payment_records", "chk_payment_records_amount_non_negative", `amount >= 0`),
		addCheck("stock_adjustments", "chk_stock_adjustments_status",
			`status IN ('pending','applied','failed','superseded')`),
		addCheck("stock_adjustments", "chk_stock_adjustments_reason",
			`(reason = 'payment' AND delta < 0) OR (reason = 'cancellation' AND delta > 0)`),
	}
	if !withCatalog {
		return steps
	}
	for _, d := range catalog.Descriptors() {
		table := d.VariantTable
		if !d.HasVariants() {
			table = d.ProductTable
		}
		steps = append(steps,
			addCheck(table, "chk_"+table+"_stock_non_negative", `stock >= 0`),
			addCheck(table, "chk_"+table+"_price_non_negative", `price >= 0`),
		)
	}
	return steps
}

func indexSteps() []step {
	return []step{
		{"ux_coupons_code_lower", `CREATE UNIQUE INDEX IF NOT EXISTS ux_coupons_code_lower ON coupons (lower(code));`},
		{"ix_orders_user_created", `CREATE INDEX IF NOT EXISTS ix_orders_user_created ON orders (user_id, created_at DESC);`},
		{"ix_orders_vendor_created", `CREATE INDEX IF NOT EXISTS ix_orders_vendor_created ON orders (vendor_id, created_at DESC);`},
		{"ix_orders_status_created", `CREATE INDEX IF NOT EXISTS ix_orders_status_created ON orders (status, created_at DESC);`},
		{"ix_orders_coupon_active", `
CREATE INDEX IF NOT EXISTS ix_orders_coupon_active
ON orders (upper(coupon_code), user_id)
WHERE coupon_code IS NOT NULL AND status <> 'cancelled';`},
		{"ix_stock_adjustments_retry", `
CREATE INDEX IF NOT EXISTS ix_stock_adjustments_retry
ON stock_adjustments (created_at)
WHERE status IN ('pending','failed');`},
	}
}
