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

// ItemCategory tags which bill-of-material list a card item came from.
// Advisory only: it never changes tracking behavior.
type ItemCategory string

const (
	CategoryUpper     ItemCategory = "upper"
	CategoryMaterial  ItemCategory = "material"
	CategoryComponent ItemCategory = "component"
	CategoryPackaging ItemCategory = "packaging"
	CategoryMisc      ItemCategory = "misc"
)

// categoryScanOrder is the fixed order used when deriving a card's starting
// department from its item tags.
var categoryScanOrder = []ItemCategory{
	CategoryUpper,
	CategoryMaterial,
	CategoryComponent,
	CategoryPackaging,
	CategoryMisc,
}

// ProductionCard is one production order/batch: a target quantity plus a
// bill of items grouped into category lists.
type ProductionCard struct {
	ID        int             `gorm:"primary_key" json:"id"`
	ProjectId string          `gorm:"index;size:64;not null" json:"project_id"`
	CardNo    string          `gorm:"size:100;not null" json:"card_no"`
	TargetQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"target_qty"`
	IsActive  *bool           `gorm:"not null;default:true" json:"is_active"`
	Items     []CardItem      `gorm:"foreignKey:CardId" json:"items"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type CardItem struct {
	ID            int             `gorm:"primary_key" json:"id"`
	CardId        int             `gorm:"index;not null" json:"card_id"`
	Category      ItemCategory    `gorm:"size:20;not null" json:"category"`
	ItemId        int             `gorm:"index" json:"item_id"`
	Name          string          `gorm:"size:200;not null" json:"name"`
	Specification string          `gorm:"size:200" json:"specification"`
	Unit          string          `gorm:"size:20" json:"unit"`
	Department    string          `gorm:"size:30" json:"department"`
	IssuedQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"issued_qty"`
}

type NewCardItem struct {
	ItemId        int             `json:"item_id"`
	Name          string          `json:"name" binding:"required"`
	Specification string          `json:"specification"`
	Unit          string          `json:"unit"`
	Department    string          `json:"department"`
	IssuedQty     decimal.Decimal `json:"issued_qty"`
}

type NewProductionCard struct {
	ProjectId      string          `json:"project_id" binding:"required"`
	CardNo         string          `json:"card_no" binding:"required"`
	TargetQty      decimal.Decimal `json:"target_qty" binding:"required"`
	UpperItems     []NewCardItem   `json:"upper_items"`
	MaterialItems  []NewCardItem   `json:"material_items"`
	ComponentItems []NewCardItem   `json:"component_items"`
	PackagingItems []NewCardItem   `json:"packaging_items"`
	MiscItems      []NewCardItem   `json:"misc_items"`
}

func (input *NewProductionCard) categoryLists() map[ItemCategory][]NewCardItem {
	return map[ItemCategory][]NewCardItem{
		CategoryUpper:     input.UpperItems,
		CategoryMaterial:  input.MaterialItems,
		CategoryComponent: input.ComponentItems,
		CategoryPackaging: input.PackagingItems,
		CategoryMisc:      input.MiscItems,
	}
}

func CreateProductionCard(ctx context.Context, input *NewProductionCard) (*ProductionCard, error) {
	if input.TargetQty.IsNegative() {
		return nil, utils.ValidationError("target quantity %s must not be negative", input.TargetQty)
	}
	card := ProductionCard{
		ProjectId: input.ProjectId,
		CardNo:    input.CardNo,
		TargetQty: input.TargetQty,
		IsActive:  utils.NewTrue(),
	}
	lists := input.categoryLists()
	for _, category := range categoryScanOrder {
		for _, item := range lists[category] {
			card.Items = append(card.Items, CardItem{
				Category:      category,
				ItemId:        item.ItemId,
				Name:          item.Name,
				Specification: item.Specification,
				Unit:          item.Unit,
				Department:    item.Department,
				IssuedQty:     item.IssuedQty,
			})
		}
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// GetProductionCard loads an active card with its items.
// (may return RecordNotFound)
func GetProductionCard(ctx context.Context, cardId int) (*ProductionCard, error) {
	db := config.GetDB()
	var card ProductionCard
	err := db.WithContext(ctx).
		Preload("Items").
		Where("is_active = ?", true).
		First(&card, cardId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("production card %d", cardId)
		}
		return nil, err
	}
	return &card, nil
}

// DeleteProductionCard soft-deletes the card and deactivates its tracking
// document if one exists. Tracking rows and history are never hard-deleted.
func DeleteProductionCard(ctx context.Context, cardId int) error {
	card, err := GetProductionCard(ctx, cardId)
	if err != nil {
		return err
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&ProductionCard{}).Where("id = ?", card.ID).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return deactivateTrackingTx(tx, card.ID)
	})
}

// SortedItemsByScanOrder returns the card's items grouped in the fixed
// category scan order, preserving input order inside each category.
func (card *ProductionCard) SortedItemsByScanOrder() []CardItem {
	out := make([]CardItem, 0, len(card.Items))
	for _, category := range categoryScanOrder {
		for _, item := range card.Items {
			if item.Category == category {
				out = append(out, item)
			}
		}
	}
	return out
}
