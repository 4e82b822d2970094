package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"onedesk/backend/internal/domain"
	"onedesk/backend/internal/store"
	"onedesk/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// DB exposes the pool so the schema migrator can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, specifics, purchase_date, quantity, purchase_price, discount, mrp, expiry_date, created_at, user_id`

func (s *Store) ListProducts(ctx context.Context, ownerID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE user_id = $1
		ORDER BY lower(name), id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var (
			p         domain.Product
			createdAt sql.NullTime
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Specifics, &p.PurchaseDate, &p.Quantity,
			&p.PurchasePrice, &p.Discount, &p.MRP, &p.ExpiryDate, &createdAt, &p.UserID,
		); err != nil {
			return nil, err
		}
		if createdAt.Valid {
			at := createdAt.Time.UTC()
			p.CreatedAt = &at
		}
		p.PurchaseDate = p.PurchaseDate.UTC()
		p.ExpiryDate = p.ExpiryDate.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) InsertProducts(ctx context.Context, ownerID string, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range products {
		if strings.TrimSpace(p.ID) == "" {
			return store.ErrInvalid
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),$10)
		`, p.ID, p.Name, p.Specifics, p.PurchaseDate, p.Quantity,
			p.PurchasePrice, p.Discount, p.MRP, p.ExpiryDate, ownerID)
		if err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
	}

	return tx.Commit()
}

// UpsertProducts writes every row in one transaction. Rows of another owner
// that happen to share an id are left untouched.
func (s *Store) UpsertProducts(ctx context.Context, ownerID string, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range products {
		if strings.TrimSpace(p.ID) == "" {
			return store.ErrInvalid
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),$10)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				specifics = EXCLUDED.specifics,
				purchase_date = EXCLUDED.purchase_date,
				quantity = EXCLUDED.quantity,
				purchase_price = EXCLUDED.purchase_price,
				discount = EXCLUDED.discount,
				mrp = EXCLUDED.mrp,
				expiry_date = EXCLUDED.expiry_date
			WHERE products.user_id = EXCLUDED.user_id
		`, p.ID, p.Name, p.Specifics, p.PurchaseDate, p.Quantity,
			p.PurchasePrice, p.Discount, p.MRP, p.ExpiryDate, ownerID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("product %s: %w", p.ID, store.ErrConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (s *Store) DeleteProducts(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM products
		WHERE user_id = $1 AND id = ANY($2)
	`, ownerID, ids)
	return err
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) error {
	if strings.TrimSpace(bill.ID) == "" || strings.TrimSpace(bill.UserID) == "" {
		return store.ErrInvalid
	}
	items, err := json.Marshal(bill.Items)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bills (id, user_id, items, subtotal, tax, total, profit, date, payment_method, payment_received, change)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, bill.ID, bill.UserID, items, bill.Subtotal, bill.Tax, bill.Total, bill.Profit,
		bill.Date, string(bill.PaymentMethod), bill.PaymentReceived, bill.Change)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListBills(ctx context.Context, ownerID string, from time.Time, to time.Time) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, items, subtotal, tax, total, profit, date, payment_method, payment_received, change
		FROM bills
		WHERE user_id = $1
			AND ($2::timestamptz IS NULL OR date >= $2)
			AND ($3::timestamptz IS NULL OR date < $3)
		ORDER BY date, id
	`, ownerID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bills := make([]domain.Bill, 0, 64)
	for rows.Next() {
		var (
			bill   domain.Bill
			items  []byte
			method string
		)
		if err := rows.Scan(
			&bill.ID, &bill.UserID, &items, &bill.Subtotal, &bill.Tax, &bill.Total, &bill.Profit,
			&bill.Date, &method, &bill.PaymentReceived, &bill.Change,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(items, &bill.Items); err != nil {
			return nil, fmt.Errorf("bill %s items: %w", bill.ID, err)
		}
		bill.PaymentMethod = domain.PaymentMethod(method)
		bill.Date = bill.Date.UTC()
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bills, nil
}

func (s *Store) CreateReturn(ctx context.Context, ownerID string, record domain.ReturnRecord) error {
	if strings.TrimSpace(record.ID) == "" {
		return store.ErrInvalid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO returns (
			id, product_id, user_id, name, specifics, purchase_date, quantity, purchase_price,
			discount, mrp, expiry_date, return_date, actual_money_received, return_reason
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, record.ID, record.ProductID, ownerID, record.Name, record.Specifics, record.PurchaseDate,
		record.Quantity, record.PurchasePrice, record.Discount, record.MRP, record.ExpiryDate,
		record.ReturnDate, record.ActualMoneyReceived, record.ReturnReason)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListReturns(ctx context.Context, ownerID string, from time.Time, to time.Time) ([]domain.ReturnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, user_id, name, specifics, purchase_date, quantity, purchase_price,
			discount, mrp, expiry_date, return_date, actual_money_received, return_reason
		FROM returns
		WHERE user_id = $1
			AND ($2::timestamptz IS NULL OR return_date >= $2)
			AND ($3::timestamptz IS NULL OR return_date < $3)
		ORDER BY return_date, id
	`, ownerID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.ReturnRecord, 0, 16)
	for rows.Next() {
		var r domain.ReturnRecord
		if err := rows.Scan(
			&r.ID, &r.ProductID, &r.UserID, &r.Name, &r.Specifics, &r.PurchaseDate, &r.Quantity,
			&r.PurchasePrice, &r.Discount, &r.MRP, &r.ExpiryDate, &r.ReturnDate,
			&r.ActualMoneyReceived, &r.ReturnReason,
		); err != nil {
			return nil, err
		}
		r.Product.ID = r.ProductID
		r.ReturnDate = r.ReturnDate.UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, ownerID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE user_id = $1
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, ownerID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	email := strings.ToLower(strings.TrimSpace(user.Email))
	if user.ID == "" || email == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1,$2,$3,$4)
	`, user.ID, email, user.Password, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	return s.getUser(ctx, `WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) getUser(ctx context.Context, where string, arg string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at
		FROM users
		`+where, arg).Scan(&user.ID, &user.Email, &user.Password, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
