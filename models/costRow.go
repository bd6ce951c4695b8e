package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stridemfg/mfgtrack_backend/config"
	"github.com/stridemfg/mfgtrack_backend/utils"
	"gorm.io/gorm"
)

// CostRow is the per-item raw-material consumption figure maintained by the
// costing side. Tracking reads it lazily and caches the value on the row;
// it never writes back.
type CostRow struct {
	ID                 int             `gorm:"primary_key" json:"id"`
	ProjectId          string          `gorm:"index:idx_cost_proj_item;size:64;not null" json:"project_id"`
	ItemId             int             `gorm:"index:idx_cost_proj_item;not null" json:"item_id"`
	ConsumptionPerUnit decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"consumption_per_unit"`
	Unit               string          `gorm:"size:20" json:"unit"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCostRow struct {
	ProjectId          string          `json:"project_id" binding:"required"`
	ItemId             int             `json:"item_id" binding:"required"`
	ConsumptionPerUnit decimal.Decimal `json:"consumption_per_unit"`
	Unit               string          `json:"unit"`
}

func CreateCostRow(ctx context.Context, input *NewCostRow) (*CostRow, error) {
	costRow := CostRow{
		ProjectId:          input.ProjectId,
		ItemId:             input.ItemId,
		ConsumptionPerUnit: input.ConsumptionPerUnit,
		Unit:               input.Unit,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&costRow).Error; err != nil {
		return nil, err
	}
	_ = utils.RemoveRedis[CostRow](costRowCacheKey(input.ProjectId, input.ItemId))
	return &costRow, nil
}

func costRowCacheKey(projectId string, itemId int) string {
	return fmt.Sprintf("%s:%d", projectId, itemId)
}

// GetCostRow checks redis first, then db.
// (may return RecordNotFound)
func GetCostRow(ctx context.Context, projectId string, itemId int) (*CostRow, error) {
	key := costRowCacheKey(projectId, itemId)
	cached, err := utils.RetrieveRedis[CostRow](key)
	if err == nil && cached != nil {
		return cached, nil
	}
	db := config.GetDB()
	var costRow CostRow
	err = db.WithContext(ctx).
		Where("project_id = ? AND item_id = ?", projectId, itemId).
		Order("id DESC").
		First(&costRow).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("cost row for item %d", itemId)
		}
		return nil, err
	}
	_ = utils.StoreRedis(&costRow, key)
	return &costRow, nil
}
