package valuation

import (
	"errors"
	"fmt"
)

// ErrInvalidReturnRequest reports a return that cannot be satisfied against
// its order. No partial breakdown accompanies it.
var ErrInvalidReturnRequest = errors.New("invalid return request")

// ComputeReturnRefund apportions the refundable amount of a return across the
// requested lines, using the same per-unit derivation as the order valuation.
func ComputeReturnRefund(req ReturnRequest, order OrderContext) (RefundBreakdown, error) {
	lines, err := mergeReturnLines(req.Lines)
	if err != nil {
		return RefundBreakdown{}, err
	}
	if req.ShippingRefund < 0 {
		return RefundBreakdown{}, fmt.Errorf("%w: negative shipping refund", ErrInvalidReturnRequest)
	}

	itemsByID := make(map[string]LineItem, len(order.Items))
	for _, item := range order.Items {
		itemsByID[item.ID] = item
	}

	breakdown := RefundBreakdown{
		Items:          make([]ItemRefund, 0, len(lines)),
		ShippingRefund: req.ShippingRefund,
	}
	for _, line := range lines {
		item, ok := itemsByID[line.LineItemID]
		if !ok {
			return RefundBreakdown{}, fmt.Errorf("%w: unknown line item %q", ErrInvalidReturnRequest, line.LineItemID)
		}
		returnable := item.Quantity - order.ReturnedQuantity[item.ID]
		if line.Quantity > returnable {
			return RefundBreakdown{}, fmt.Errorf("%w: line item %q has %d returnable units, %d requested",
				ErrInvalidReturnRequest, item.ID, max(returnable, 0), line.Quantity)
		}

		refund := apportionLine(item, line)
		breakdown.Items = append(breakdown.Items, refund)
		breakdown.ItemsTotal += refund.Amount
	}
	breakdown.Total = breakdown.ItemsTotal + breakdown.ShippingRefund

	return breakdown, nil
}

func apportionLine(item LineItem, line ReturnLine) ItemRefund {
	unit := EffectiveUnitPrice(item)
	if line.PerUnitRefund != nil {
		unit = *line.PerUnitRefund
	}

	refund := ItemRefund{
		LineItemID: item.ID,
		Quantity:   line.Quantity,
		UnitRefund: unit,
	}
	// Returning every purchased unit refunds the order's own line total.
	if line.Quantity == item.Quantity && line.FullReturnRefundTotal != nil {
		refund.Amount = *line.FullReturnRefundTotal
		refund.FullReturn = true
		return refund
	}
	refund.Amount = unit * int64(line.Quantity)
	return refund
}

// mergeReturnLines folds repeated references to the same line into one,
// keeping first-seen order and the first supplied precision amounts.
func mergeReturnLines(lines []ReturnLine) ([]ReturnLine, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no items selected", ErrInvalidReturnRequest)
	}

	merged := make([]ReturnLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.LineItemID == "" || line.Quantity < 1 {
			return nil, fmt.Errorf("%w: line %q requests %d units", ErrInvalidReturnRequest, line.LineItemID, line.Quantity)
		}
		pos, seen := index[line.LineItemID]
		if !seen {
			index[line.LineItemID] = len(merged)
			merged = append(merged, line)
			continue
		}
		current := &merged[pos]
		current.Quantity += line.Quantity
		if current.FullReturnRefundTotal == nil {
			current.FullReturnRefundTotal = line.FullReturnRefundTotal
		}
		if current.PerUnitRefund == nil {
			current.PerUnitRefund = line.PerUnitRefund
		}
	}
	return merged, nil
}
