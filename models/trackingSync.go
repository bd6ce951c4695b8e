package models

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/stridemfg/mfgtrack_backend/config"
	"github.com/stridemfg/mfgtrack_backend/utils"
	"gorm.io/gorm"
)

// consumptionLookup resolves consumption-per-unit for an external item id.
// Injected so the sync core is testable without the cost collaborator.
type consumptionLookup func(itemId int) (decimal.Decimal, error)

// SyncIssuedFromLedger pulls the latest issued-quantity snapshot from the
// material ledger and synchronizes it into the card's item-tracked rows.
// Returns (nil, nil) when the card has no tracking document yet. The
// document is persisted only when at least one row changed.
func SyncIssuedFromLedger(ctx context.Context, cardId int) (*TrackingDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, trackingOpTimeout)
	defer cancel()

	if cardId <= 0 {
		return nil, utils.ValidationError("card id is required")
	}
	actor := actorFromContext(ctx)

	var doc *TrackingDocument
	err := withCardLock(ctx, cardId, func(tx *gorm.DB) error {
		var err error
		doc, err = loadTrackingTx(tx, cardId)
		if err != nil {
			doc = nil
			if errors.Is(err, utils.ErrorRecordNotFound) {
				return nil
			}
			return err
		}

		issue, err := GetLatestMaterialIssue(ctx, cardId)
		if err != nil || issue == nil {
			return nil
		}

		lookup := func(itemId int) (decimal.Decimal, error) {
			costRow, err := GetCostRow(ctx, doc.ProjectId, itemId)
			if err != nil {
				return decimal.Zero, err
			}
			return costRow.ConsumptionPerUnit, nil
		}

		changed := doc.syncIssuedRows(issue.IssuedQtyByItem(), lookup, actor)
		if !changed {
			return nil
		}
		return saveTrackingMutations(tx, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// syncIssuedRows applies an issued snapshot to every item-tracked row keyed
// by an external item id. Only positive deltas are logged as ISSUE events;
// unchanged snapshots still refresh a stale ProducibleUnits, and decreases
// lower the stored value silently (no new material flowed in).
func (doc *TrackingDocument) syncIssuedRows(issued map[int]decimal.Decimal, lookup consumptionLookup, actor Actor) bool {
	logger := config.GetLogger()
	changed := false

	for i := range doc.Rows {
		row := &doc.Rows[i]
		if row.Department.IsAggregate() || row.ItemId <= 0 {
			continue
		}
		snapshot, ok := issued[row.ItemId]
		if !ok {
			continue
		}

		// lazy consumption lookup, cached on the row once found.
		// A failed lookup is non-fatal: the row keeps gating with zero
		// producible capacity until the cost side catches up.
		if !row.ConsumptionPerUnit.IsPositive() {
			consumption, err := lookup(row.ItemId)
			if err != nil {
				config.LogError(logger, "trackingSync.go", "syncIssuedRows", "ConsumptionLookup", row.ItemId, err)
			} else if consumption.IsPositive() {
				row.ConsumptionPerUnit = consumption
				changed = true
			}
		}

		delta := snapshot.Sub(row.IssuedMaterialQty)
		switch {
		case delta.IsPositive():
			row.IssuedMaterialQty = snapshot
			row.ProducibleUnits = row.computeProducible()
			row.appendEvent(EventIssue, delta, historySourceStore, string(row.Department), "material issued", actor)
			changed = true
		case delta.IsNegative():
			row.IssuedMaterialQty = snapshot
			row.ProducibleUnits = row.computeProducible()
			changed = true
		default:
			if expected := row.computeProducible(); !expected.Equal(row.ProducibleUnits) {
				row.ProducibleUnits = expected
				changed = true
			}
		}
	}
	return changed
}

// EditRowConsumption manually overrides a row's consumption-per-unit figure
// and recomputes its producible units, logging an EDIT event.
func EditRowConsumption(ctx context.Context, cardId int, department string, itemKey string, consumption decimal.Decimal) (*TrackingDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, trackingOpTimeout)
	defer cancel()

	dept, ok := NormalizeDepartment(department)
	if !ok {
		return nil, utils.ValidationError("unknown department %q", department)
	}
	if consumption.IsNegative() {
		return nil, utils.ValidationError("consumption per unit %s must not be negative", consumption)
	}
	actor := actorFromContext(ctx)

	var doc *TrackingDocument
	err := withCardLock(ctx, cardId, func(tx *gorm.DB) error {
		var err error
		doc, err = loadTrackingTx(tx, cardId)
		if err != nil {
			return err
		}
		index := doc.rowIndexFor(dept)
		i, ok := index[itemKey]
		if !ok {
			return utils.NotFoundError("no row for item %s in department %s", itemKey, dept)
		}
		row := &doc.Rows[i]
		row.ConsumptionPerUnit = consumption
		row.ProducibleUnits = row.computeProducible()
		row.appendEvent(EventEdit, consumption, string(dept), string(dept), "consumption per unit edited", actor)
		return saveTrackingMutations(tx, doc)
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}
