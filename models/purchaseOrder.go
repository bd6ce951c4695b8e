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

// PurchaseOrder is the buyer-side order a production card fulfills. Read-only
// enrichment for dashboard responses.
type PurchaseOrder struct {
	ID           int             `gorm:"primary_key" json:"id"`
	ProjectId    string          `gorm:"index;size:64;not null" json:"project_id"`
	PONo         string          `gorm:"size:100;not null" json:"po_no"`
	Buyer        string          `gorm:"size:200" json:"buyer"`
	OrderQty     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"order_qty"`
	DeliveryDate *time.Time      `json:"delivery_date"`
	IsActive     *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPurchaseOrder struct {
	ProjectId    string          `json:"project_id" binding:"required"`
	PONo         string          `json:"po_no" binding:"required"`
	Buyer        string          `json:"buyer"`
	OrderQty     decimal.Decimal `json:"order_qty"`
	DeliveryDate *time.Time      `json:"delivery_date"`
}

func CreatePurchaseOrder(ctx context.Context, input *NewPurchaseOrder) (*PurchaseOrder, error) {
	po := PurchaseOrder{
		ProjectId:    input.ProjectId,
		PONo:         input.PONo,
		Buyer:        input.Buyer,
		OrderQty:     input.OrderQty,
		DeliveryDate: input.DeliveryDate,
		IsActive:     utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&po).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

// GetPurchaseOrderForProject returns the most recent active PO, or nil when
// the project has none. Dashboards tolerate the nil.
func GetPurchaseOrderForProject(ctx context.Context, projectId string) (*PurchaseOrder, error) {
	db := config.GetDB()
	var po PurchaseOrder
	err := db.WithContext(ctx).
		Where("project_id = ? AND is_active = ?", projectId, true).
		Order("id DESC").
		First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &po, nil
}
