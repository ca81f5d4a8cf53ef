package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecimalString(t *testing.T) {
	assert.Equal(t, "25.70", DecimalString(2570))
	assert.Equal(t, "0.05", DecimalString(5))
	assert.Equal(t, "0.00", DecimalString(0))
	assert.Equal(t, "-1.50", DecimalString(-150))
}

func TestFormatCurrency(t *testing.T) {
	assert.Equal(t, "$25.70", FormatCurrency(2570, "usd"))
	assert.Equal(t, "$2,570.00", FormatCurrency(257000, "USD"))
	assert.Equal(t, "€0.99", FormatCurrency(99, "EUR"))
	assert.Equal(t, "-£1,000.01", FormatCurrency(-100001, "GBP"))
	assert.Equal(t, "¥12.00", FormatCurrency(1200, "jpy"))
	assert.Equal(t, "CHF 12.00", FormatCurrency(1200, "CHF"))
	assert.Equal(t, "ZZQ 1.00", FormatCurrency(100, "zzq"))
	assert.Equal(t, "3.40", FormatCurrency(340, ""))
}

func TestNewBreakdownDisplay(t *testing.T) {
	display := NewBreakdownDisplay(ComputeOrderValuation(markdownOrder()), "USD")

	assert.Equal(t, "USD", display.Currency)
	assert.Equal(t, "24.00", display.OriginalSubtotal)
	assert.Equal(t, "4.00", display.VariantDiscount)
	assert.Equal(t, "20.00", display.SubtotalAfterItemDiscounts)
	assert.Equal(t, "5.00", display.Shipping)
	assert.Equal(t, "0.70", display.Tax)
	assert.Equal(t, "25.70", display.Total)
	assert.Equal(t, "$25.70", display.TotalLabel)
}
