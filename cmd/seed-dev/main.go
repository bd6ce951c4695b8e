// seed-dev loads a small demo fixture into a fresh database: one project,
// cost rows, a production card with tracking started, and a first material
// issue already synced. Meant for local development against a disposable DB.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/stridemfg/mfgtrack_backend/config"
	"github.com/stridemfg/mfgtrack_backend/models"
	"github.com/stridemfg/mfgtrack_backend/utils"
)

const demoProjectID = "PRJ-DEMO"

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Seed")
	ctx = utils.SetProjectIdInContext(ctx, demoProjectID)

	if _, err := models.GetProject(ctx, demoProjectID); err == nil {
		fmt.Fprintln(os.Stderr, "demo project already exists; seed-dev expects a fresh database")
		os.Exit(2)
	}

	if _, err := models.CreateProject(ctx, &models.NewProject{
		ID:    demoProjectID,
		Name:  "Demo Runner SS26",
		Plant: "Plant A",
		Brand: "Stride",
	}); err != nil {
		fail("create project", err)
	}

	if _, err := models.CreatePurchaseOrder(ctx, &models.NewPurchaseOrder{
		ProjectId: demoProjectID,
		PONo:      "PO-SS26-001",
		Buyer:     "Northwind Outdoor",
		OrderQty:  decimal.NewFromInt(500),
	}); err != nil {
		fail("create purchase order", err)
	}

	costRows := []models.NewCostRow{
		{ProjectId: demoProjectID, ItemId: 101, ConsumptionPerUnit: decimal.NewFromFloat(0.45), Unit: "m"},
		{ProjectId: demoProjectID, ItemId: 102, ConsumptionPerUnit: decimal.NewFromInt(2), Unit: "pcs"},
		{ProjectId: demoProjectID, ItemId: 201, ConsumptionPerUnit: decimal.NewFromInt(1), Unit: "pair"},
	}
	for _, costRow := range costRows {
		if _, err := models.CreateCostRow(ctx, &costRow); err != nil {
			fail("create cost row", err)
		}
	}

	card, err := models.CreateProductionCard(ctx, &models.NewProductionCard{
		ProjectId: demoProjectID,
		CardNo:    "CARD-DEMO-01",
		TargetQty: decimal.NewFromInt(500),
		UpperItems: []models.NewCardItem{
			{ItemId: 101, Name: "Mesh", Specification: "3mm air", Unit: "m", Department: "cutting"},
			{ItemId: 102, Name: "Eyelet", Unit: "pcs", Department: "printing"},
		},
		ComponentItems: []models.NewCardItem{
			{ItemId: 201, Name: "Outsole", Specification: "EVA", Unit: "pair", Department: "cutting"},
		},
	})
	if err != nil {
		fail("create production card", err)
	}

	if _, err := models.CreateTracking(ctx, card.ID); err != nil {
		fail("start tracking", err)
	}

	if _, err := models.CreateMaterialIssue(ctx, &models.NewMaterialIssue{
		ProjectId: demoProjectID,
		CardId:    card.ID,
		IssueNo:   "MI-DEMO-01",
		Items: []models.NewMaterialIssueItem{
			{Category: models.CategoryUpper, ItemId: 101, IssuedQty: decimal.NewFromInt(90)},
			{Category: models.CategoryUpper, ItemId: 102, IssuedQty: decimal.NewFromInt(400)},
			{Category: models.CategoryComponent, ItemId: 201, IssuedQty: decimal.NewFromInt(150)},
		},
	}); err != nil {
		fail("create material issue", err)
	}
	if _, err := models.SyncIssuedFromLedger(ctx, card.ID); err != nil {
		fail("sync issued quantities", err)
	}

	fmt.Printf("seeded project %s with card %d (%s)\n", demoProjectID, card.ID, card.CardNo)
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", step, err)
	os.Exit(1)
}
