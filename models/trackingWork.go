package models

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/stridemfg/mfgtrack_backend/utils"
	"gorm.io/gorm"
)

// WorkTransferInput is one work-and/or-transfer request against a card.
// Item identity may be given as an external item id or a derived item key;
// it is required for item-tracked departments and ignored for aggregate ones.
type WorkTransferInput struct {
	CardId       int             `json:"card_id" binding:"required"`
	Department   string          `json:"department" binding:"required"`
	ItemId       int             `json:"item_id"`
	ItemKey      string          `json:"item_key"`
	WorkQty      decimal.Decimal `json:"work_qty"`
	TransferQty  decimal.Decimal `json:"transfer_qty"`
	ToDepartment string          `json:"to_department"`
}

type workTransferParams struct {
	From        Department
	To          Department
	ItemKey     string
	WorkQty     decimal.Decimal
	TransferQty decimal.Decimal
}

// ApplyWorkAndTransfer advances a row's completed quantity within a
// department and/or moves completed quantity into the next department,
// creating or merging the downstream row. The whole mutation runs against
// one loaded document and is persisted as a single save.
func ApplyWorkAndTransfer(ctx context.Context, input *WorkTransferInput) (*TrackingDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, trackingOpTimeout)
	defer cancel()

	params, err := validateWorkTransferInput(input)
	if err != nil {
		return nil, err
	}
	actor := actorFromContext(ctx)

	var doc *TrackingDocument
	err = withCardLock(ctx, input.CardId, func(tx *gorm.DB) error {
		doc, err = loadTrackingTx(tx, input.CardId)
		if err != nil {
			return err
		}
		if err := doc.applyWorkAndTransfer(params, actor); err != nil {
			return err
		}
		return saveTrackingMutations(tx, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func validateWorkTransferInput(input *WorkTransferInput) (workTransferParams, error) {
	var params workTransferParams

	if input.CardId <= 0 {
		return params, utils.ValidationError("card id is required")
	}
	from, ok := NormalizeDepartment(input.Department)
	if !ok {
		return params, utils.ValidationError("unknown department %q", input.Department)
	}
	params.From = from

	if input.WorkQty.IsNegative() {
		return params, utils.ValidationError("work quantity %s must not be negative", input.WorkQty)
	}
	if input.TransferQty.IsNegative() {
		return params, utils.ValidationError("transfer quantity %s must not be negative", input.TransferQty)
	}
	if !input.WorkQty.IsPositive() && !input.TransferQty.IsPositive() {
		return params, utils.ValidationError("at least one of work quantity and transfer quantity must be positive")
	}
	params.WorkQty = input.WorkQty
	params.TransferQty = input.TransferQty

	if !from.IsAggregate() {
		switch {
		case input.ItemKey != "":
			params.ItemKey = input.ItemKey
		case input.ItemId > 0:
			params.ItemKey = deriveItemKey(input.ItemId, "", "", "")
		default:
			return params, utils.ValidationError("item is required for department %s", from)
		}
	}

	if input.TransferQty.IsPositive() {
		if input.ToDepartment != "" {
			to, ok := NormalizeDepartment(input.ToDepartment)
			if !ok {
				return params, utils.ValidationError("unknown target department %q", input.ToDepartment)
			}
			params.To = to
		} else {
			to, ok := from.Next()
			if !ok {
				return params, utils.ValidationError("department %s has no next department, target must be given", from)
			}
			params.To = to
		}
		if params.To == from {
			return params, utils.ValidationError("target department must differ from %s", from)
		}
	}
	return params, nil
}

func (doc *TrackingDocument) applyWorkAndTransfer(p workTransferParams, actor Actor) error {
	if p.From.IsAggregate() {
		return doc.applyAggregateWorkAndTransfer(p, actor)
	}
	return doc.applyItemWorkAndTransfer(p, actor)
}

// workCapacityRemaining is the quantity still addable to CompletedQty: the
// smaller of received quantity and producible-units-from-material (when
// consumption is known) minus what is already completed.
func (row *TrackingRow) workCapacityRemaining() decimal.Decimal {
	ceiling := row.ReceivedQty
	if row.ConsumptionPerUnit.IsPositive() && row.ProducibleUnits.LessThan(ceiling) {
		ceiling = row.ProducibleUnits
	}
	return ceiling.Sub(row.CompletedQty)
}

func (doc *TrackingDocument) applyItemWorkAndTransfer(p workTransferParams, actor Actor) error {
	index := doc.rowIndexFor(p.From)
	i, ok := index[p.ItemKey]
	if !ok {
		return utils.NotFoundError("no row for item %s in department %s", p.ItemKey, p.From)
	}

	// all capacity checks run before the first mutation
	row := &doc.Rows[i]
	if p.WorkQty.IsPositive() {
		remaining := row.workCapacityRemaining()
		if !remaining.IsPositive() {
			return utils.CapacityError("no remaining work capacity for item %s in %s", row.Name, p.From)
		}
		if p.WorkQty.GreaterThan(remaining) {
			return utils.CapacityError("work quantity %s exceeds remaining capacity %s for item %s in %s",
				p.WorkQty, remaining, row.Name, p.From)
		}
	}
	if p.TransferQty.IsPositive() {
		// work requested in the same call counts as completed for the check
		transferable := row.CompletedQty.Add(p.WorkQty).Sub(row.TransferredQty)
		if !transferable.IsPositive() {
			return utils.CapacityError("no transferable quantity for item %s in %s", row.Name, p.From)
		}
		if p.TransferQty.GreaterThan(transferable) {
			return utils.CapacityError("transfer quantity %s exceeds transferable quantity %s for item %s in %s",
				p.TransferQty, transferable, row.Name, p.From)
		}
	}

	if p.WorkQty.IsPositive() {
		row.CompletedQty = row.CompletedQty.Add(p.WorkQty)
		row.appendEvent(EventWorkAdded, p.WorkQty, string(p.From), string(p.From), "work added", actor)
	}
	if p.TransferQty.IsPositive() {
		row.TransferredQty = row.TransferredQty.Add(p.TransferQty)
		row.appendEvent(EventTransfer, p.TransferQty, string(p.From), string(p.To), "transfer out", actor)
		carry := transferCarry(row, p.TransferQty)
		toIndex := doc.rowIndexFor(p.To)
		doc.receiveInto(i, p.To, p.TransferQty, carry, toIndex, actor)
	}
	return nil
}

// applyAggregateWorkAndTransfer operates over all rows of an aggregate stage
// at once. The batch ceiling is the minimum remaining capacity across rows
// (the slowest item gates the whole batch); allocation is bottleneck-first.
// Past the preconditions the per-row loop is greedy and final.
func (doc *TrackingDocument) applyAggregateWorkAndTransfer(p workTransferParams, actor Actor) error {
	indices := doc.rowsIn(p.From)
	if len(indices) == 0 {
		return utils.NotFoundError("no rows in department %s for card %d", p.From, doc.CardId)
	}

	if p.WorkQty.IsPositive() {
		ceiling := doc.minAcross(indices, func(row *TrackingRow) decimal.Decimal {
			return row.ReceivedQty.Sub(row.CompletedQty)
		})
		if !ceiling.IsPositive() {
			return utils.CapacityError("no remaining work capacity in %s", p.From)
		}
		if p.WorkQty.GreaterThan(ceiling) {
			return utils.CapacityError("work quantity %s exceeds batch capacity %s in %s", p.WorkQty, ceiling, p.From)
		}
	}
	if p.TransferQty.IsPositive() {
		ceiling := doc.minAcross(indices, func(row *TrackingRow) decimal.Decimal {
			return row.CompletedQty.Add(p.WorkQty).Sub(row.TransferredQty)
		})
		if !ceiling.IsPositive() {
			return utils.CapacityError("no transferable quantity in %s", p.From)
		}
		if p.TransferQty.GreaterThan(ceiling) {
			return utils.CapacityError("transfer quantity %s exceeds batch transferable %s in %s", p.TransferQty, ceiling, p.From)
		}
	}

	if p.WorkQty.IsPositive() {
		order := doc.sortIndicesBy(indices, func(row *TrackingRow) decimal.Decimal {
			return row.ReceivedQty.Sub(row.CompletedQty)
		})
		for _, i := range order {
			row := &doc.Rows[i]
			row.CompletedQty = row.CompletedQty.Add(p.WorkQty)
			row.appendEvent(EventWorkAdded, p.WorkQty, string(p.From), string(p.From), "work added", actor)
		}
	}
	if p.TransferQty.IsPositive() {
		order := doc.sortIndicesBy(indices, func(row *TrackingRow) decimal.Decimal {
			return row.CompletedQty.Sub(row.TransferredQty)
		})
		toIndex := doc.rowIndexFor(p.To)
		for _, i := range order {
			row := &doc.Rows[i]
			row.TransferredQty = row.TransferredQty.Add(p.TransferQty)
			row.appendEvent(EventTransfer, p.TransferQty, string(p.From), string(p.To), "transfer out", actor)
			carry := transferCarry(row, p.TransferQty)
			doc.receiveInto(i, p.To, p.TransferQty, carry, toIndex, actor)
		}
	}
	return nil
}

// transferCarry is the proportional share of issued material that follows a
// transferred quantity downstream, when consumption is known.
func transferCarry(row *TrackingRow, qty decimal.Decimal) decimal.Decimal {
	if row.ConsumptionPerUnit.IsPositive() {
		return qty.Mul(row.ConsumptionPerUnit)
	}
	return decimal.Zero
}

// receiveInto merges a transferred quantity into the matching row of the
// target department, creating the row when absent. toIndex is maintained so
// repeated receives within one operation stay O(1).
func (doc *TrackingDocument) receiveInto(sourceIdx int, to Department, qty decimal.Decimal, carry decimal.Decimal, toIndex map[string]int, actor Actor) {
	source := doc.Rows[sourceIdx]
	if j, ok := toIndex[source.ItemKey]; ok {
		target := &doc.Rows[j]
		target.ReceivedQty = target.ReceivedQty.Add(qty)
		if carry.IsPositive() {
			target.IssuedMaterialQty = target.IssuedMaterialQty.Add(carry)
			if !target.ConsumptionPerUnit.IsPositive() {
				target.ConsumptionPerUnit = source.ConsumptionPerUnit
			}
			target.ProducibleUnits = target.computeProducible()
		}
		target.appendEvent(EventReceive, qty, string(source.Department), string(to), "transfer in", actor)
		return
	}

	newRow := TrackingRow{
		DocumentId:         doc.ID,
		Category:           source.Category,
		ItemId:             source.ItemId,
		ItemKey:            source.ItemKey,
		Name:               source.Name,
		Specification:      source.Specification,
		Unit:               source.Unit,
		Department:         to,
		ReceivedQty:        qty,
		IssuedMaterialQty:  carry,
		ConsumptionPerUnit: source.ConsumptionPerUnit,
	}
	newRow.ProducibleUnits = newRow.computeProducible()
	newRow.appendEvent(EventReceive, qty, string(source.Department), string(to), "transfer in", actor)
	doc.Rows = append(doc.Rows, newRow)
	toIndex[newRow.ItemKey] = len(doc.Rows) - 1
}

func (doc *TrackingDocument) minAcross(indices []int, metric func(*TrackingRow) decimal.Decimal) decimal.Decimal {
	min := metric(&doc.Rows[indices[0]])
	for _, i := range indices[1:] {
		if v := metric(&doc.Rows[i]); v.LessThan(min) {
			min = v
		}
	}
	return min
}

func (doc *TrackingDocument) sortIndicesBy(indices []int, metric func(*TrackingRow) decimal.Decimal) []int {
	order := append([]int(nil), indices...)
	sort.SliceStable(order, func(a, b int) bool {
		return metric(&doc.Rows[order[a]]).LessThan(metric(&doc.Rows[order[b]]))
	})
	return order
}
