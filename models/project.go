package models

import (
	"context"
	"errors"
	"time"

	"github.com/stridemfg/mfgtrack_backend/config"
	"github.com/stridemfg/mfgtrack_backend/utils"
	"gorm.io/gorm"
)

// Project is read-only enrichment for dashboard responses. Tracking itself
// only stores the project id.
type Project struct {
	ID        string    `gorm:"primary_key;size:64" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name" binding:"required"`
	Plant     string    `gorm:"size:100" json:"plant"`
	Brand     string    `gorm:"size:100" json:"brand"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProject struct {
	ID    string `json:"id" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Plant string `json:"plant"`
	Brand string `json:"brand"`
}

func CreateProject(ctx context.Context, input *NewProject) (*Project, error) {
	project := Project{
		ID:       input.ID,
		Name:     input.Name,
		Plant:    input.Plant,
		Brand:    input.Brand,
		IsActive: utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// GetProject checks redis first, then db.
func GetProject(ctx context.Context, projectId string) (*Project, error) {
	cached, err := utils.RetrieveRedis[Project](projectId)
	if err == nil && cached != nil {
		return cached, nil
	}
	db := config.GetDB()
	var project Project
	if err := db.WithContext(ctx).First(&project, "id = ?", projectId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFoundError("project %s", projectId)
		}
		return nil, err
	}
	_ = utils.StoreRedis(&project, projectId)
	return &project, nil
}
