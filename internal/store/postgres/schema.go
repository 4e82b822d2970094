package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Table models used only to create and evolve the schema. Queries go
// through database/sql in postgres.go.

type productRow struct {
	ID            string          `gorm:"primaryKey;type:text"`
	UserID        string          `gorm:"type:text;not null;index:idx_products_user"`
	Name          string          `gorm:"type:text;not null"`
	Specifics     string          `gorm:"type:text;not null;default:''"`
	PurchaseDate  time.Time       `gorm:"type:timestamptz;not null"`
	Quantity      int             `gorm:"not null;check:chk_products_quantity,quantity >= 0"`
	PurchasePrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Discount      decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0"`
	MRP           decimal.Decimal `gorm:"column:mrp;type:numeric(12,2);not null"`
	ExpiryDate    time.Time       `gorm:"type:timestamptz;not null;index:idx_products_expiry"`
	CreatedAt     time.Time       `gorm:"type:timestamptz;not null;default:now()"`
}

func (productRow) TableName() string { return "products" }

type billRow struct {
	ID              string          `gorm:"primaryKey;type:text"`
	UserID          string          `gorm:"type:text;not null;index:idx_bills_user_date,priority:1"`
	Items           []byte          `gorm:"type:jsonb;not null"`
	Subtotal        decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	Tax             decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	Total           decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	Profit          decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	Date            time.Time       `gorm:"type:timestamptz;not null;index:idx_bills_user_date,priority:2"`
	PaymentMethod   string          `gorm:"type:text;not null"`
	PaymentReceived decimal.Decimal `gorm:"type:numeric(14,4);not null"`
	Change          decimal.Decimal `gorm:"type:numeric(14,4);not null"`
}

func (billRow) TableName() string { return "bills" }

type returnRow struct {
	ID                  string          `gorm:"primaryKey;type:text"`
	ProductID           string          `gorm:"type:text;not null"`
	UserID              string          `gorm:"type:text;not null;index:idx_returns_user_date,priority:1"`
	Name                string          `gorm:"type:text;not null"`
	Specifics           string          `gorm:"type:text;not null;default:''"`
	PurchaseDate        time.Time       `gorm:"type:timestamptz;not null"`
	Quantity            int             `gorm:"not null"`
	PurchasePrice       decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Discount            decimal.Decimal `gorm:"type:numeric(5,2);not null"`
	MRP                 decimal.Decimal `gorm:"column:mrp;type:numeric(12,2);not null"`
	ExpiryDate          time.Time       `gorm:"type:timestamptz;not null"`
	ReturnDate          time.Time       `gorm:"type:timestamptz;not null;index:idx_returns_user_date,priority:2"`
	ActualMoneyReceived decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ReturnReason        string          `gorm:"type:text;not null"`
}

func (returnRow) TableName() string { return "returns" }

type auditLogRow struct {
	ID         string    `gorm:"primaryKey;type:text"`
	UserID     string    `gorm:"type:text;not null;index:idx_audit_user_created,priority:1"`
	Action     string    `gorm:"type:text;not null"`
	EntityType string    `gorm:"type:text;not null"`
	EntityID   string    `gorm:"type:text;not null"`
	Detail     string    `gorm:"type:text;not null;default:''"`
	CreatedAt  time.Time `gorm:"type:timestamptz;not null;index:idx_audit_user_created,priority:2"`
}

func (auditLogRow) TableName() string { return "audit_logs" }

type userRow struct {
	ID           string    `gorm:"primaryKey;type:text"`
	Email        string    `gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string    `gorm:"type:text;not null"`
	CreatedAt    time.Time `gorm:"type:timestamptz;not null;default:now()"`
}

func (userRow) TableName() string { return "users" }

func tables() []any {
	return []any{&userRow{}, &productRow{}, &billRow{}, &returnRow{}, &auditLogRow{}}
}

// Migrate creates or widens every table on the given pool. It never drops
// columns.
func Migrate(ctx context.Context, db *sql.DB) error {
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return fmt.Errorf("open migrator: %w", err)
	}

	if err := gormDB.WithContext(ctx).Migrator().AutoMigrate(tables()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
