package models

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stridemfg/mfgtrack_backend/config"
	"github.com/stridemfg/mfgtrack_backend/utils"
	"gorm.io/gorm"
)

const weeklyBucketCount = 5

type CardDashboard struct {
	CardId    int             `json:"card_id"`
	CardNo    string          `json:"card_no"`
	TargetQty decimal.Decimal `json:"target_qty"`
	// Aggregate is set for aggregate departments, Rows for item-tracked ones.
	Aggregate *StageAggregate                    `json:"aggregate,omitempty"`
	Rows      []TrackingRow                      `json:"rows,omitempty"`
	Daily     map[int]decimal.Decimal            `json:"daily,omitempty"`
	Weekly    [weeklyBucketCount]decimal.Decimal `json:"weekly"`
}

type ProjectDashboard struct {
	ProjectId     string          `json:"project_id"`
	Project       *Project        `json:"project,omitempty"`
	PurchaseOrder *PurchaseOrder  `json:"purchase_order,omitempty"`
	Cards         []CardDashboard `json:"cards"`
}

type DashboardResult struct {
	Department Department         `json:"department"`
	Month      int                `json:"month"`
	Year       int                `json:"year"`
	Projects   []ProjectDashboard `json:"projects"`
}

// DepartmentDashboard rolls up one department's activity for a calendar
// month, grouped per project and enriched with project and purchase-order
// metadata. Read-only: it never mutates tracking state and may run against
// a stale replica.
func DepartmentDashboard(ctx context.Context, department string, month int, year int) (*DashboardResult, error) {
	dept, ok := NormalizeDepartment(department)
	if !ok {
		return nil, utils.ValidationError("unknown department %q", department)
	}
	if month < 1 || month > 12 {
		return nil, utils.ValidationError("month %d out of range", month)
	}
	if year <= 0 {
		return nil, utils.ValidationError("year %d out of range", year)
	}
	start, end := utils.MonthWindow(month, year)

	db := config.GetDB()
	var docIds []int
	err := db.WithContext(ctx).Model(&TrackingRow{}).
		Distinct("document_id").
		Where("department = ?", dept).
		Pluck("document_id", &docIds).Error
	if err != nil {
		return nil, err
	}

	result := &DashboardResult{Department: dept, Month: month, Year: year}
	if len(docIds) == 0 {
		return result, nil
	}

	var docs []TrackingDocument
	err = db.WithContext(ctx).
		Preload("Rows", func(db *gorm.DB) *gorm.DB { return db.Order("tracking_rows.id") }).
		Preload("Rows.History", func(db *gorm.DB) *gorm.DB { return db.Order("tracking_histories.id") }).
		Where("id IN ? AND is_active = ?", docIds, true).
		Order("id").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}

	byProject := make(map[string][]CardDashboard)
	for i := range docs {
		doc := &docs[i]
		if !documentActiveInWindow(doc, dept, start, end) {
			continue
		}

		entry := CardDashboard{
			CardId:    doc.CardId,
			TargetQty: doc.TargetQty,
		}
		var card ProductionCard
		if err := db.WithContext(ctx).Select("card_no").First(&card, doc.CardId).Error; err == nil {
			entry.CardNo = card.CardNo
		}

		daily, weekly := bucketWorkEvents(doc, dept, start, end)
		entry.Weekly = weekly
		if dept.IsAggregate() {
			entry.Aggregate = AggregateStage(doc, dept)
		} else {
			for _, j := range doc.rowsIn(dept) {
				entry.Rows = append(entry.Rows, doc.Rows[j])
			}
			entry.Daily = daily
		}
		byProject[doc.ProjectId] = append(byProject[doc.ProjectId], entry)
	}

	projectIds := make([]string, 0, len(byProject))
	for projectId := range byProject {
		projectIds = append(projectIds, projectId)
	}
	sort.Strings(projectIds)

	for _, projectId := range projectIds {
		projectEntry := ProjectDashboard{
			ProjectId: projectId,
			Cards:     byProject[projectId],
		}
		if project, err := GetProject(ctx, projectId); err == nil {
			projectEntry.Project = project
		}
		if po, _ := GetPurchaseOrderForProject(ctx, projectId); po != nil {
			projectEntry.PurchaseOrder = po
		}
		result.Projects = append(result.Projects, projectEntry)
	}
	return result, nil
}

// documentActiveInWindow: a document qualifies when the department's rows
// logged any history event inside the window, or (fallback) the document
// itself was created inside the window.
func documentActiveInWindow(doc *TrackingDocument, dept Department, start time.Time, end time.Time) bool {
	for _, i := range doc.rowsIn(dept) {
		for _, event := range doc.Rows[i].History {
			if inWindow(event.CreatedAt, start, end) {
				return true
			}
		}
	}
	return inWindow(doc.CreatedAt, start, end)
}

func inWindow(t time.Time, start time.Time, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}

// bucketWorkEvents buckets WORK_ADDED quantity deltas inside the window into
// daily totals and the W1..W5 calendar ranges (1-7, 8-14, 15-21, 22-28, 29+).
// Other event types never contribute.
func bucketWorkEvents(doc *TrackingDocument, dept Department, start time.Time, end time.Time) (map[int]decimal.Decimal, [weeklyBucketCount]decimal.Decimal) {
	daily := make(map[int]decimal.Decimal)
	var weekly [weeklyBucketCount]decimal.Decimal

	for _, i := range doc.rowsIn(dept) {
		for _, event := range doc.Rows[i].History {
			if event.EventType != EventWorkAdded {
				continue
			}
			// the window is built in UTC; the day-of-month must be read in
			// the same zone or boundary events land in the wrong bucket
			ts := event.CreatedAt.UTC()
			if !inWindow(ts, start, end) {
				continue
			}
			day := ts.Day()
			daily[day] = daily[day].Add(event.Qty)
			weekly[weekBucketForDay(day)] = weekly[weekBucketForDay(day)].Add(event.Qty)
		}
	}
	return daily, weekly
}

func weekBucketForDay(day int) int {
	switch {
	case day <= 7:
		return 0
	case day <= 14:
		return 1
	case day <= 21:
		return 2
	case day <= 28:
		return 3
	default:
		return 4
	}
}
