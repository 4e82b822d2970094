package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxRate is the fixed GST rate applied to every bill.
var TaxRate = decimal.RequireFromString("0.18")

type Product struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Specifics     string          `json:"specifics"`
	PurchaseDate  time.Time       `json:"purchase_date"`
	Quantity      int             `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	Discount      decimal.Decimal `json:"discount"`
	MRP           decimal.Decimal `json:"mrp"`
	ExpiryDate    time.Time       `json:"expiry_date"`
	CreatedAt     *time.Time      `json:"created_at,omitempty"`
	UserID        string          `json:"user_id,omitempty"`
}

// RefundCeiling is the most that may be paid back when the lot is returned.
func (p Product) RefundCeiling() decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	return p.PurchasePrice.Mul(hundred.Sub(p.Discount)).Div(hundred)
}

// ProductInput is the catalog form as submitted by the client. JSON bodies
// may carry numbers or strings; form posts carry strings. Values are
// coerced and validated before a Product is built.
type ProductInput struct {
	Name          any `json:"name"`
	Specifics     any `json:"specifics"`
	PurchaseDate  any `json:"purchase_date"`
	Quantity      any `json:"quantity"`
	PurchasePrice any `json:"purchase_price"`
	Discount      any `json:"discount"`
	MRP           any `json:"mrp"`
	ExpiryDate    any `json:"expiry_date"`
}

type BillItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name,omitempty"`
	Specifics string          `json:"specifics,omitempty"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type BillTotals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Profit   decimal.Decimal `json:"profit"`
}

type Bill struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id,omitempty"`
	Items           []BillItem      `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	Profit          decimal.Decimal `json:"profit"`
	Date            time.Time       `json:"date"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentReceived decimal.Decimal `json:"payment_received"`
	Change          decimal.Decimal `json:"change"`
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
	PaymentUPI  PaymentMethod = "upi"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentUPI:
		return true
	default:
		return false
	}
}

type CartState string

const (
	CartEmpty      CartState = "empty"
	CartBuilding   CartState = "building"
	CartReadyToPay CartState = "ready_to_pay"
)

type Cart struct {
	State  CartState        `json:"state"`
	Items  []BillItem       `json:"items"`
	Totals BillTotals       `json:"totals"`
	Tender *decimal.Decimal `json:"tender,omitempty"`
	Change *decimal.Decimal `json:"change,omitempty"`
}

type AddCartItemRequest struct {
	ProductID string `json:"product_id"`
}

type SetLineQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type TenderRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type CommitRequest struct {
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentReceived decimal.Decimal `json:"payment_received"`
}

type CommitResponse struct {
	Bill    Bill   `json:"bill"`
	Receipt string `json:"receipt"`
}

// ReturnRecord flattens the returned lot. Its own ID shadows the product's
// in JSON, so the lot id is repeated as product_id.
type ReturnRecord struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Product
	ReturnDate          time.Time       `json:"return_date"`
	ActualMoneyReceived decimal.Decimal `json:"actual_money_received"`
	ReturnReason        string          `json:"return_reason"`
}

type ReturnState string

const (
	ReturnIdle     ReturnState = "idle"
	ReturnSelected ReturnState = "product_selected"
)

type ReturnSelection struct {
	State           ReturnState      `json:"state"`
	Product         *Product         `json:"product,omitempty"`
	SuggestedRefund *decimal.Decimal `json:"suggested_refund,omitempty"`
	RefundAmount    *decimal.Decimal `json:"refund_amount,omitempty"`
}

type SelectReturnRequest struct {
	ProductID string `json:"product_id"`
}

type RefundAmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type FinalizeReturnRequest struct {
	Reason       string           `json:"reason"`
	RefundAmount *decimal.Decimal `json:"refund_amount,omitempty"`
}

type ExpiryTier string

const (
	ExpiryCritical ExpiryTier = "critical"
	ExpiryWarning  ExpiryTier = "warning"
	ExpiryNormal   ExpiryTier = "normal"
)

type ExpiringProduct struct {
	Product
	DaysUntilExpiry int        `json:"days_until_expiry"`
	Tier            ExpiryTier `json:"tier"`
}

type ExpiryReport struct {
	From     time.Time         `json:"from"`
	To       time.Time         `json:"to"`
	Count    int               `json:"count"`
	Items    []ExpiringProduct `json:"items"`
	Notified bool              `json:"notified"`
}

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
	NotifyCustom  NotificationKind = "custom"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title,omitempty"`
	Message   string           `json:"message"`
	Count     int              `json:"count,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Session struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type SessionEvent string

const (
	SessionSignedIn  SessionEvent = "SIGNED_IN"
	SessionSignedOut SessionEvent = "SIGNED_OUT"
)

type Actor struct {
	UserID string
	Email  string
}

type UserAccount struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type SyncStatus struct {
	Syncing   bool       `json:"syncing"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Products  int        `json:"products"`
}

type AuditLog struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"created_at"`
}

type DailyReportPayment struct {
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Bills         int             `json:"bills"`
	Total         decimal.Decimal `json:"total"`
}

type DailyReport struct {
	Date          string               `json:"date"`
	UserID        string               `json:"user_id"`
	Bills         int                  `json:"bills"`
	GrossSales    decimal.Decimal      `json:"gross_sales"`
	Tax           decimal.Decimal      `json:"tax"`
	NetSales      decimal.Decimal      `json:"net_sales"`
	Profit        decimal.Decimal      `json:"profit"`
	Returns       int                  `json:"returns"`
	Refunded      decimal.Decimal      `json:"refunded"`
	AverageTicket decimal.Decimal      `json:"average_ticket"`
	MedianTicket  decimal.Decimal      `json:"median_ticket"`
	ByPayment     []DailyReportPayment `json:"by_payment"`
}
