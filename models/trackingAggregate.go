package models

import "github.com/shopspring/decimal"

// StageAggregate is the pooled view of an aggregate stage: every counter is
// the minimum across the stage's rows, because the slowest item gates the
// whole batch. Callers see this instead of row-level detail.
type StageAggregate struct {
	Department     Department      `json:"department"`
	ItemCount      int             `json:"item_count"`
	ReceivedQty    decimal.Decimal `json:"received_qty"`
	CompletedQty   decimal.Decimal `json:"completed_qty"`
	TransferredQty decimal.Decimal `json:"transferred_qty"`
	BottleneckItem string          `json:"bottleneck_item"`
	BottleneckKey  string          `json:"bottleneck_key"`
}

// AggregateStage reduces a stage's rows to the pooled min-across-rows view
// and names the limiting item (smallest received quantity, first on ties).
// Returns nil when the stage has no rows.
func AggregateStage(doc *TrackingDocument, dept Department) *StageAggregate {
	indices := doc.rowsIn(dept)
	if len(indices) == 0 {
		return nil
	}

	first := &doc.Rows[indices[0]]
	agg := &StageAggregate{
		Department:     dept,
		ItemCount:      len(indices),
		ReceivedQty:    first.ReceivedQty,
		CompletedQty:   first.CompletedQty,
		TransferredQty: first.TransferredQty,
		BottleneckItem: first.Name,
		BottleneckKey:  first.ItemKey,
	}
	for _, i := range indices[1:] {
		row := &doc.Rows[i]
		if row.ReceivedQty.LessThan(agg.ReceivedQty) {
			agg.ReceivedQty = row.ReceivedQty
			agg.BottleneckItem = row.Name
			agg.BottleneckKey = row.ItemKey
		}
		if row.CompletedQty.LessThan(agg.CompletedQty) {
			agg.CompletedQty = row.CompletedQty
		}
		if row.TransferredQty.LessThan(agg.TransferredQty) {
			agg.TransferredQty = row.TransferredQty
		}
	}
	return agg
}
