package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stridemfg/mfgtrack_backend/config"
	"github.com/stridemfg/mfgtrack_backend/utils"
)

// MaterialIssue is one snapshot of raw material handed out from the store
// against a card. Snapshot semantics: every entry carries the cumulative
// issued quantity per item, not a delta.
type MaterialIssue struct {
	ID        int                 `gorm:"primary_key" json:"id"`
	ProjectId string              `gorm:"index;size:64;not null" json:"project_id"`
	CardId    int                 `gorm:"index;not null" json:"card_id"`
	IssueNo   string              `gorm:"size:100" json:"issue_no"`
	IsActive  *bool               `gorm:"not null;default:true" json:"is_active"`
	Items     []MaterialIssueItem `gorm:"foreignKey:IssueId" json:"items"`
	CreatedAt time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type MaterialIssueItem struct {
	ID        int             `gorm:"primary_key" json:"id"`
	IssueId   int             `gorm:"index;not null" json:"issue_id"`
	Category  ItemCategory    `gorm:"size:20" json:"category"`
	ItemId    int             `gorm:"index;not null" json:"item_id"`
	IssuedQty decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"issued_qty"`
}

type NewMaterialIssueItem struct {
	Category  ItemCategory    `json:"category"`
	ItemId    int             `json:"item_id" binding:"required"`
	IssuedQty decimal.Decimal `json:"issued_qty"`
}

type NewMaterialIssue struct {
	ProjectId string                 `json:"project_id" binding:"required"`
	CardId    int                    `json:"card_id" binding:"required"`
	IssueNo   string                 `json:"issue_no"`
	Items     []NewMaterialIssueItem `json:"items" binding:"required"`
}

func CreateMaterialIssue(ctx context.Context, input *NewMaterialIssue) (*MaterialIssue, error) {
	for _, item := range input.Items {
		if item.IssuedQty.IsNegative() {
			return nil, utils.ValidationError("issued quantity %s for item %d must not be negative", item.IssuedQty, item.ItemId)
		}
	}
	issue := MaterialIssue{
		ProjectId: input.ProjectId,
		CardId:    input.CardId,
		IssueNo:   input.IssueNo,
		IsActive:  utils.NewTrue(),
	}
	for _, item := range input.Items {
		issue.Items = append(issue.Items, MaterialIssueItem{
			Category:  item.Category,
			ItemId:    item.ItemId,
			IssuedQty: item.IssuedQty,
		})
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&issue).Error; err != nil {
		return nil, err
	}
	return &issue, nil
}

func DeleteMaterialIssue(ctx context.Context, issueId int) error {
	db := config.GetDB()
	result := db.WithContext(ctx).Model(&MaterialIssue{}).
		Where("id = ? AND is_active = ?", issueId, true).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return utils.NotFoundError("material issue %d", issueId)
	}
	return nil
}

// GetLatestMaterialIssue returns the newest non-deleted snapshot for a card,
// or nil when the card has none yet.
func GetLatestMaterialIssue(ctx context.Context, cardId int) (*MaterialIssue, error) {
	db := config.GetDB()
	var issue MaterialIssue
	err := db.WithContext(ctx).
		Preload("Items").
		Where("card_id = ? AND is_active = ?", cardId, true).
		Order("id DESC").
		First(&issue).Error
	if err != nil {
		return nil, nil
	}
	return &issue, nil
}

// IssuedQtyByItem flattens the snapshot into itemId -> issued quantity,
// taking the maximum when an item appears in more than one category list.
func (issue *MaterialIssue) IssuedQtyByItem() map[int]decimal.Decimal {
	issued := make(map[int]decimal.Decimal, len(issue.Items))
	for _, item := range issue.Items {
		if item.ItemId <= 0 {
			continue
		}
		if prev, ok := issued[item.ItemId]; !ok || item.IssuedQty.GreaterThan(prev) {
			issued[item.ItemId] = item.IssuedQty
		}
	}
	return issued
}
