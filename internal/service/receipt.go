package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"orderdesk/backend/internal/domain"
	"orderdesk/backend/internal/valuation"
)

const receiptWidth = 32

// BuildReceipt renders an ESC/POS receipt for an order from the same
// valuation the order detail shows, followed by any refunds already issued.
func (s *Service) BuildReceipt(ctx context.Context, orderID string) (domain.ReceiptResponse, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	returns, err := s.repo.ListReturnsByOrder(ctx, order.ID)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	currency := s.orderCurrency(*order)
	money := func(cents int64) string { return valuation.FormatCurrency(cents, currency) }
	v := valuation.ComputeOrderValuation(toValuationOrder(*order))

	lines := []string{
		"OrderDesk",
		strings.Repeat("=", receiptWidth),
		"Order: " + defaultString(order.OrderNumber, order.ID),
		"Customer: " + defaultString(order.CustomerName, "-"),
		"Date: " + order.CreatedAt.Format("2006-01-02 15:04:05"),
		strings.Repeat("-", receiptWidth),
	}
	for _, item := range order.Items {
		line := toLineItem(item)
		lines = append(lines, fmt.Sprintf("%s x%d", defaultString(item.Name, item.SKU), item.Qty))
		lines = append(lines, receiptRow("", money(valuation.OriginalUnitPrice(line)*int64(item.Qty))))
	}
	lines = append(lines,
		strings.Repeat("-", receiptWidth),
		receiptRow("Subtotal", money(v.OriginalSubtotal)),
	)
	lines = appendDiscountRow(lines, "Bundle promo", v.BundlePromoDiscount, money)
	lines = appendDiscountRow(lines, "Markdown", v.VariantDiscount, money)
	lines = appendDiscountRow(lines, "Bulk price", v.BulkDiscount, money)
	lines = appendDiscountRow(lines, "Coupon "+strings.TrimSpace(order.CouponCode), v.CouponDiscount, money)
	lines = appendDiscountRow(lines, "Points", v.PointsDiscount, money)
	lines = appendDiscountRow(lines, "Member promo", v.MembershipPromoDiscount, money)
	lines = appendDiscountRow(lines, "Tier", v.TierDiscount, money)
	lines = append(lines,
		receiptRow("Shipping", money(v.EffectiveShipping)),
		receiptRow("Tax", money(v.Tax)),
		receiptRow("Total", money(v.Total)),
	)
	if len(returns) > 0 {
		lines = append(lines, strings.Repeat("-", receiptWidth))
		for _, record := range returns {
			lines = append(lines, receiptRow("Refund "+record.CreatedAt.Format("2006-01-02"), "-"+money(record.TotalRefundCents)))
		}
	}
	lines = append(lines,
		strings.Repeat("=", receiptWidth),
		"Thank you",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptResponse{
		OrderID:      order.ID,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("receipt-%s.bin", order.ID),
	}, nil
}

func appendDiscountRow(lines []string, label string, cents int64, money func(int64) string) []string {
	if cents == 0 {
		return lines
	}
	return append(lines, receiptRow(strings.TrimSpace(label), "-"+money(cents)))
}

// receiptRow right-aligns value against label within the receipt width.
func receiptRow(label string, value string) string {
	pad := receiptWidth - len([]rune(label)) - len([]rune(value))
	if pad < 1 {
		pad = 1
	}
	return label + strings.Repeat(" ", pad) + value
}
