package models

import (
	"log"

	"github.com/stridemfg/mfgtrack_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Project{}, &PurchaseOrder{},
		&ProductionCard{}, &CardItem{},
		&MaterialIssue{}, &MaterialIssueItem{},
		&CostRow{},
		&TrackingDocument{}, &TrackingRow{}, &TrackingHistory{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
