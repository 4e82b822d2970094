package catalog

import (
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onedesk/backend/internal/domain"
)

func TestParseProductInputAcceptsJSONNumbers(t *testing.T) {
	input := validInput()
	input.Quantity = float64(7)
	input.MRP = float64(99.5)

	p, err := ParseProductInput(input)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Quantity)
	assert.True(t, p.MRP.Equal(decimal.RequireFromString("99.5")))
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), p.ExpiryDate)
}

func TestParseProductInputFromForm(t *testing.T) {
	form := url.Values{
		"name":           {"Sunflower Oil"},
		"specifics":      {"1L"},
		"purchase_date":  {"03/01/2024"},
		"quantity":       {"08"},
		"purchase_price": {"120"},
		"discount":       {"0"},
		"mrp":            {"150"},
		"expiry_date":    {"2024-12-31T00:00:00Z"},
	}

	p, err := ParseProductInput(FormInput(form))
	require.NoError(t, err)
	assert.Equal(t, 8, p.Quantity)
	assert.Equal(t, time.March, p.PurchaseDate.Month())
}

func TestParseProductInputRejections(t *testing.T) {
	cases := map[string]func(in *domain.ProductInput){
		"missing name":      func(in *domain.ProductInput) { in.Name = "  " },
		"negative quantity": func(in *domain.ProductInput) { in.Quantity = "-1" },
		"fractional qty":    func(in *domain.ProductInput) { in.Quantity = "1.5" },
		"negative price":    func(in *domain.ProductInput) { in.PurchasePrice = "-3" },
		"discount over 100": func(in *domain.ProductInput) { in.Discount = "100.01" },
		"bad date":          func(in *domain.ProductInput) { in.ExpiryDate = "someday" },
		"missing mrp":       func(in *domain.ProductInput) { in.MRP = nil },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := validInput()
			mutate(&input)
			_, err := ParseProductInput(input)
			require.ErrorIs(t, err, domain.ErrInvalidProduct)
		})
	}
}
