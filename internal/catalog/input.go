package catalog

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"onedesk/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// FormInput lifts a form-encoded catalog submission into a ProductInput.
func FormInput(values url.Values) domain.ProductInput {
	return domain.ProductInput{
		Name:          values.Get("name"),
		Specifics:     values.Get("specifics"),
		PurchaseDate:  values.Get("purchase_date"),
		Quantity:      values.Get("quantity"),
		PurchasePrice: values.Get("purchase_price"),
		Discount:      values.Get("discount"),
		MRP:           values.Get("mrp"),
		ExpiryDate:    values.Get("expiry_date"),
	}
}

// ParseProductInput validates every field of the catalog form and builds a
// Product without id, owner or creation time.
func ParseProductInput(in domain.ProductInput) (domain.Product, error) {
	var p domain.Product
	var err error

	if p.Name, err = requiredText("name", in.Name); err != nil {
		return domain.Product{}, err
	}
	if p.Specifics, err = requiredText("specifics", in.Specifics); err != nil {
		return domain.Product{}, err
	}
	if p.PurchaseDate, err = parseDate("purchase_date", in.PurchaseDate); err != nil {
		return domain.Product{}, err
	}
	if p.ExpiryDate, err = parseDate("expiry_date", in.ExpiryDate); err != nil {
		return domain.Product{}, err
	}
	if p.Quantity, err = parseQuantity(in.Quantity); err != nil {
		return domain.Product{}, err
	}
	if p.PurchasePrice, err = parseMoney("purchase_price", in.PurchasePrice); err != nil {
		return domain.Product{}, err
	}
	if p.MRP, err = parseMoney("mrp", in.MRP); err != nil {
		return domain.Product{}, err
	}
	if p.Discount, err = parseMoney("discount", in.Discount); err != nil {
		return domain.Product{}, err
	}
	if p.Discount.GreaterThan(hundred) {
		return domain.Product{}, invalid("discount", "must be between 0 and 100")
	}

	return p, nil
}

// ValidateProduct checks a fully built row, as submitted in a bulk update.
func ValidateProduct(p domain.Product) error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return invalid("id", "is required")
	case strings.TrimSpace(p.Name) == "":
		return invalid("name", "is required")
	case p.Quantity < 0:
		return invalid("quantity", "must not be negative")
	case p.PurchasePrice.IsNegative():
		return invalid("purchase_price", "must not be negative")
	case p.MRP.IsNegative():
		return invalid("mrp", "must not be negative")
	case p.Discount.IsNegative() || p.Discount.GreaterThan(hundred):
		return invalid("discount", "must be between 0 and 100")
	}
	return nil
}

func requiredText(field string, raw any) (string, error) {
	text, err := cast.ToStringE(raw)
	if err != nil {
		return "", invalid(field, "must be text")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", invalid(field, "is required")
	}
	return text, nil
}

func parseDate(field string, raw any) (time.Time, error) {
	if at, ok := raw.(time.Time); ok {
		return at.UTC(), nil
	}
	text, err := requiredText(field, raw)
	if err != nil {
		return time.Time{}, err
	}
	at, err := dateparse.ParseIn(text, time.UTC)
	if err != nil {
		return time.Time{}, invalid(field, "is not a recognizable date")
	}
	return at.UTC(), nil
}

func parseQuantity(raw any) (int, error) {
	if text, ok := raw.(string); ok {
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, invalid("quantity", "is required")
		}
		trimmed := strings.TrimLeft(text, "0")
		if trimmed == "" || strings.HasPrefix(trimmed, ".") {
			trimmed = "0" + trimmed
		}
		raw = trimmed
	}
	if raw == nil {
		return 0, invalid("quantity", "is required")
	}
	if f, ok := raw.(float64); ok && f != float64(int64(f)) {
		return 0, invalid("quantity", "must be a whole number")
	}
	qty, err := cast.ToIntE(raw)
	if err != nil {
		return 0, invalid("quantity", "must be a whole number")
	}
	if qty < 0 {
		return 0, invalid("quantity", "must not be negative")
	}
	return qty, nil
}

func parseMoney(field string, raw any) (decimal.Decimal, error) {
	text, err := requiredText(field, raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, invalid(field, "must be a number")
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, invalid(field, "must not be negative")
	}
	return amount, nil
}

func invalid(field string, reason string) error {
	return fmt.Errorf("%w: %s %s", domain.ErrInvalidProduct, field, reason)
}
