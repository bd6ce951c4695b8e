package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stridemfg/mfgtrack_backend/config"
	"github.com/stridemfg/mfgtrack_backend/utils"
	"gorm.io/gorm"
)

type TrackingEventType string

const (
	EventReceive   TrackingEventType = "RECEIVE"
	EventWorkAdded TrackingEventType = "WORK_ADDED"
	EventTransfer  TrackingEventType = "TRANSFER"
	EventIssue     TrackingEventType = "ISSUE"
	EventEdit      TrackingEventType = "EDIT"
)

// historySourceStore marks material flowing in from the raw-material store
// rather than from another department.
const historySourceStore = "store"

const trackingOpTimeout = 30 * time.Second

// TrackingDocument is the unit of mutation for a card's production tracking:
// every operation loads the whole document, mutates it in memory and writes
// it back in one transaction. Version is checked and incremented on save.
type TrackingDocument struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	ProjectId          string          `gorm:"index;size:64;not null" json:"project_id"`
	CardId             int             `gorm:"index;not null" json:"card_id"`
	TargetQty          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"target_qty"`
	StartingDepartment Department      `gorm:"size:30;not null" json:"starting_department"`
	Version            int             `gorm:"not null;default:0" json:"version"`
	IsActive           *bool           `gorm:"not null;default:true" json:"is_active"`
	Rows               []TrackingRow   `gorm:"foreignKey:DocumentId" json:"rows"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TrackingRow is one item's state within one department. Counters are the
// source of truth for capacity checks; History is the audit trail and is
// never replayed to rebuild them.
type TrackingRow struct {
	ID                 int               `gorm:"primary_key" json:"id"`
	DocumentId         int               `gorm:"index;not null" json:"document_id"`
	Category           ItemCategory      `gorm:"size:20" json:"category"`
	ItemId             int               `gorm:"index" json:"item_id"`
	ItemKey            string            `gorm:"size:255;index;not null" json:"item_key"`
	Name               string            `gorm:"size:200;not null" json:"name"`
	Specification      string            `gorm:"size:200" json:"specification"`
	Unit               string            `gorm:"size:20" json:"unit"`
	Department         Department        `gorm:"size:30;index;not null" json:"department"`
	ReceivedQty        decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"received_qty"`
	CompletedQty       decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"completed_qty"`
	TransferredQty     decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"transferred_qty"`
	IssuedMaterialQty  decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"issued_material_qty"`
	ConsumptionPerUnit decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"consumption_per_unit"`
	ProducibleUnits    decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"producible_units"`
	History            []TrackingHistory `gorm:"foreignKey:RowId" json:"history"`
	CreatedAt          time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// TrackingHistory is append-only; rows are created and never updated.
type TrackingHistory struct {
	ID             int               `gorm:"primary_key" json:"id"`
	RowId          int               `gorm:"index;not null" json:"row_id"`
	EventType      TrackingEventType `gorm:"size:20;not null" json:"event_type"`
	Qty            decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"qty"`
	FromDepartment string            `gorm:"size:30" json:"from_department"`
	ToDepartment   string            `gorm:"size:30" json:"to_department"`
	Remark         string            `gorm:"size:255" json:"remark"`
	UserId         int               `json:"user_id"`
	UserName       string            `gorm:"size:100" json:"user_name"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

// Actor identifies who performed a mutation, for the history log.
type Actor struct {
	UserId   int
	UserName string
}

func actorFromContext(ctx context.Context) Actor {
	actor := Actor{}
	if userId, ok := utils.GetUserIdFromContext(ctx); ok {
		actor.UserId = userId
	}
	if userName, ok := utils.GetUserNameFromContext(ctx); ok {
		actor.UserName = userName
	}
	return actor
}

func (row *TrackingRow) appendEvent(eventType TrackingEventType, qty decimal.Decimal, from string, to string, remark string, actor Actor) {
	row.History = append(row.History, TrackingHistory{
		RowId:          row.ID,
		EventType:      eventType,
		Qty:            qty,
		FromDepartment: from,
		ToDepartment:   to,
		Remark:         remark,
		UserId:         actor.UserId,
		UserName:       actor.UserName,
		CreatedAt:      time.Now(),
	})
}

func (row *TrackingRow) computeProducible() decimal.Decimal {
	if row.ConsumptionPerUnit.IsPositive() {
		return row.IssuedMaterialQty.Div(row.ConsumptionPerUnit).Floor()
	}
	return decimal.Zero
}

// CreateTracking builds the tracking document for a card, seeding the
// starting department with the card's target quantity. Idempotent: when an
// active document already exists for the card it is returned unchanged.
func CreateTracking(ctx context.Context, cardId int) (*TrackingDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, trackingOpTimeout)
	defer cancel()

	if cardId <= 0 {
		return nil, utils.ValidationError("card id is required")
	}
	card, err := GetProductionCard(ctx, cardId)
	if err != nil {
		return nil, err
	}
	actor := actorFromContext(ctx)

	var doc *TrackingDocument
	err = withCardLock(ctx, cardId, func(tx *gorm.DB) error {
		existing, err := loadTrackingTx(tx, cardId)
		if err == nil {
			doc = existing
			return nil
		}
		if !errors.Is(err, utils.ErrorRecordNotFound) {
			return err
		}

		doc = buildTrackingDocument(card, actor)
		return tx.Create(doc).Error
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// buildTrackingDocument constructs the initial document in memory. Two card
// items resolving to the same identity key are merged into one row, taking
// the maximum of their issued-quantity snapshots (snapshots, not increments)
// and backfilling a missing category.
func buildTrackingDocument(card *ProductionCard, actor Actor) *TrackingDocument {
	items := card.SortedItemsByScanOrder()
	startingDept := startingDepartmentForCard(items)

	doc := &TrackingDocument{
		ProjectId:          card.ProjectId,
		CardId:             card.ID,
		TargetQty:          card.TargetQty,
		StartingDepartment: startingDept,
		IsActive:           utils.NewTrue(),
	}

	index := make(map[string]int)
	for _, item := range items {
		normalized := normalizeCardItem(item, startingDept)
		key := normalized.ItemKey
		if i, seen := index[key]; seen {
			row := &doc.Rows[i]
			if normalized.IssuedMaterialQty.GreaterThan(row.IssuedMaterialQty) {
				row.IssuedMaterialQty = normalized.IssuedMaterialQty
				row.ProducibleUnits = row.computeProducible()
			}
			if row.Category == "" {
				row.Category = normalized.Category
			}
			continue
		}

		if normalized.Department == startingDept {
			normalized.ReceivedQty = card.TargetQty
		}
		if normalized.ReceivedQty.IsPositive() {
			normalized.appendEvent(EventReceive, normalized.ReceivedQty, "", string(normalized.Department), "tracking start", actor)
		}
		doc.Rows = append(doc.Rows, normalized)
		index[key] = len(doc.Rows) - 1
	}
	return doc
}

// startingDepartmentForCard is the first department tag found in the fixed
// category scan order, defaulting to the topology's first stage.
func startingDepartmentForCard(items []CardItem) Department {
	for _, item := range items {
		if item.Department != "" {
			return NormalizeDepartmentOrFirst(item.Department)
		}
	}
	return FirstDepartment()
}

// GetTracking fetches a card's tracking, optionally filtered to one
// department: row detail for item-tracked departments, the pooled aggregate
// for aggregate departments.
func GetTracking(ctx context.Context, cardId int, dept *Department) (*TrackingView, error) {
	db := config.GetDB()
	doc, err := loadTrackingTx(db.WithContext(ctx), cardId)
	if err != nil {
		return nil, err
	}
	view := &TrackingView{Document: doc, Department: dept}
	if dept == nil {
		return view, nil
	}
	if !dept.IsValid() {
		return nil, utils.ValidationError("unknown department %q", string(*dept))
	}
	if dept.IsAggregate() {
		view.Aggregate = AggregateStage(doc, *dept)
	} else {
		for _, row := range doc.Rows {
			if row.Department == *dept {
				view.Rows = append(view.Rows, row)
			}
		}
	}
	return view, nil
}

type TrackingView struct {
	Document   *TrackingDocument `json:"document"`
	Department *Department       `json:"department,omitempty"`
	Rows       []TrackingRow     `json:"rows,omitempty"`
	Aggregate  *StageAggregate   `json:"aggregate,omitempty"`
}

type TrackedCardSummary struct {
	CardId             int             `json:"card_id"`
	CardNo             string          `json:"card_no"`
	TargetQty          decimal.Decimal `json:"target_qty"`
	StartingDepartment Department      `json:"starting_department"`
	CreatedAt          time.Time       `json:"created_at"`
}

// ListTrackedCards returns the cards of the ctx project that have an active
// tracking document.
func ListTrackedCards(ctx context.Context) ([]TrackedCardSummary, error) {
	projectId, ok := utils.GetProjectIdFromContext(ctx)
	if !ok || projectId == "" {
		return nil, utils.ValidationError("project id is required")
	}
	db := config.GetDB()
	var docs []TrackingDocument
	err := db.WithContext(ctx).
		Where("project_id = ? AND is_active = ?", projectId, true).
		Order("id").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	summaries := make([]TrackedCardSummary, 0, len(docs))
	for _, doc := range docs {
		summary := TrackedCardSummary{
			CardId:             doc.CardId,
			TargetQty:          doc.TargetQty,
			StartingDepartment: doc.StartingDepartment,
			CreatedAt:          doc.CreatedAt,
		}
		var card ProductionCard
		if err := db.WithContext(ctx).Select("card_no").First(&card, doc.CardId).Error; err == nil {
			summary.CardNo = card.CardNo
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// DeactivateTracking soft-deactivates a card's tracking document. Rows and
// history are kept for audit.
func DeactivateTracking(ctx context.Context, cardId int) error {
	db := config.GetDB()
	return deactivateTrackingTx(db.WithContext(ctx), cardId)
}

func deactivateTrackingTx(tx *gorm.DB, cardId int) error {
	return tx.Model(&TrackingDocument{}).
		Where("card_id = ? AND is_active = ?", cardId, true).
		Update("is_active", false).Error
}

// loadTrackingTx loads the full document (rows + history) for a card.
// (may return RecordNotFound)
func loadTrackingTx(tx *gorm.DB, cardId int) (*TrackingDocument, error) {
	var doc TrackingDocument
	err := tx.
		Preload("Rows", func(db *gorm.DB) *gorm.DB { return db.Order("tracking_rows.id") }).
		Preload("Rows.History", func(db *gorm.DB) *gorm.DB { return db.Order("tracking_histories.id") }).
		Where("card_id = ? AND is_active = ?", cardId, true).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("tracking for card %d", cardId)
		}
		return nil, err
	}
	return &doc, nil
}

// saveTrackingMutations writes every row and every new history event of a
// mutated document in the caller's transaction. The document version is the
// optimistic-concurrency token: a concurrent writer makes the version WHERE
// miss and the save fails with ErrorVersionConflict (retryable).
func saveTrackingMutations(tx *gorm.DB, doc *TrackingDocument) error {
	result := tx.Model(&TrackingDocument{}).
		Where("id = ? AND version = ?", doc.ID, doc.Version).
		Update("version", doc.Version+1)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.ErrorVersionConflict
	}
	doc.Version++

	for i := range doc.Rows {
		row := &doc.Rows[i]

		var newEvents []TrackingHistory
		existing := make([]TrackingHistory, 0, len(row.History))
		for _, event := range row.History {
			if event.ID == 0 {
				newEvents = append(newEvents, event)
			} else {
				existing = append(existing, event)
			}
		}

		if row.ID == 0 {
			row.DocumentId = doc.ID
			row.History = nil
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		} else {
			err := tx.Model(&TrackingRow{}).Where("id = ?", row.ID).Updates(map[string]interface{}{
				"category":             row.Category,
				"received_qty":         row.ReceivedQty,
				"completed_qty":        row.CompletedQty,
				"transferred_qty":      row.TransferredQty,
				"issued_material_qty":  row.IssuedMaterialQty,
				"consumption_per_unit": row.ConsumptionPerUnit,
				"producible_units":     row.ProducibleUnits,
			}).Error
			if err != nil {
				return err
			}
		}

		for j := range newEvents {
			newEvents[j].RowId = row.ID
			if err := tx.Create(&newEvents[j]).Error; err != nil {
				return err
			}
		}
		row.History = append(existing, newEvents...)
	}
	return nil
}
