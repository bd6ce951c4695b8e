package models

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stridemfg/mfgtrack_backend/utils"
)

// deriveItemKey is the stable identity of an item within a (card, department)
// pair: the external item id when available, otherwise a case-normalized
// composite of the display fields.
func deriveItemKey(itemId int, name string, specification string, unit string) string {
	if itemId > 0 {
		return "item:" + strconv.Itoa(itemId)
	}
	return utils.NormalizeText(name) + "|" + utils.NormalizeText(specification) + "|" + utils.NormalizeText(unit)
}

// normalizeCardItem canonicalizes one card item into a zero-quantity tracking
// row before any seeding. Department tags use the permissive fallback;
// untagged items sit at the card's starting department. Negative snapshot
// quantities are coerced to zero.
func normalizeCardItem(item CardItem, startingDept Department) TrackingRow {
	dept := startingDept
	if strings.TrimSpace(item.Department) != "" {
		dept = NormalizeDepartmentOrFirst(item.Department)
	}

	issued := item.IssuedQty
	if issued.IsNegative() {
		issued = decimal.Zero
	}

	row := TrackingRow{
		Category:          item.Category,
		ItemId:            item.ItemId,
		Name:              strings.TrimSpace(item.Name),
		Specification:     strings.TrimSpace(item.Specification),
		Unit:              strings.TrimSpace(item.Unit),
		Department:        dept,
		IssuedMaterialQty: issued,
	}
	row.ItemKey = deriveItemKey(row.ItemId, row.Name, row.Specification, row.Unit)
	return row
}

// rowIndexFor builds an itemKey -> row index lookup for one department.
// Built once per operation; indices stay valid across appends to doc.Rows.
func (doc *TrackingDocument) rowIndexFor(dept Department) map[string]int {
	index := make(map[string]int)
	for i := range doc.Rows {
		if doc.Rows[i].Department == dept {
			index[doc.Rows[i].ItemKey] = i
		}
	}
	return index
}

// rowsIn returns the indices of all rows in a department, in load order.
func (doc *TrackingDocument) rowsIn(dept Department) []int {
	var indices []int
	for i := range doc.Rows {
		if doc.Rows[i].Department == dept {
			indices = append(indices, i)
		}
	}
	return indices
}
