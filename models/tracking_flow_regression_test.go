package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stridemfg/mfgtrack_backend/config"
	"github.com/stridemfg/mfgtrack_backend/models"
	"github.com/stridemfg/mfgtrack_backend/utils"
)

func TestTrackingLifecycleAgainstRealDatabase(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := context.Background()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	// Wire env for config.Connect* helpers.
	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "mfgtrack_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	// History events record the acting user from context.
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetProjectIdInContext(ctx, "PRJ-IT-1")

	if _, err := models.CreateProject(ctx, &models.NewProject{
		ID:   "PRJ-IT-1",
		Name: "Integration Project",
	}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	// Costing knows 2 units of mesh go into one shoe.
	if _, err := models.CreateCostRow(ctx, &models.NewCostRow{
		ProjectId:          "PRJ-IT-1",
		ItemId:             101,
		ConsumptionPerUnit: decimal.NewFromInt(2),
	}); err != nil {
		t.Fatalf("CreateCostRow: %v", err)
	}

	card, err := models.CreateProductionCard(ctx, &models.NewProductionCard{
		ProjectId: "PRJ-IT-1",
		CardNo:    "CARD-0001",
		TargetQty: decimal.NewFromInt(100),
		MaterialItems: []models.NewCardItem{
			{ItemId: 101, Name: "Mesh", Unit: "m", Department: "cutting"},
			{ItemId: 102, Name: "Lace", Unit: "pair", Department: "printing"},
		},
	})
	if err != nil {
		t.Fatalf("CreateProductionCard: %v", err)
	}

	// Sync before a tracking document exists is a no-op, not an error.
	if synced, err := models.SyncIssuedFromLedger(ctx, card.ID); err != nil || synced != nil {
		t.Fatalf("sync without document: doc=%+v err=%v", synced, err)
	}

	doc, err := models.CreateTracking(ctx, card.ID)
	if err != nil {
		t.Fatalf("CreateTracking: %v", err)
	}
	if doc.StartingDepartment != models.DeptCutting {
		t.Fatalf("starting department = %s, want cutting", doc.StartingDepartment)
	}

	// Repeat create returns the existing document untouched.
	again, err := models.CreateTracking(ctx, card.ID)
	if err != nil {
		t.Fatalf("CreateTracking(repeat): %v", err)
	}
	if again.ID != doc.ID || again.Version != doc.Version {
		t.Fatalf("repeat create produced a different document: %+v vs %+v", again, doc)
	}

	// The starting department row is seeded with the card target; the other
	// department starts empty.
	mesh := findTrackingRow(doc, models.DeptCutting, 101)
	if mesh == nil || mesh.ReceivedQty.Cmp(decimal.NewFromInt(100)) != 0 {
		t.Fatalf("expected seeded cutting row received=100; got %+v", mesh)
	}
	lace := findTrackingRow(doc, models.DeptPrinting, 102)
	if lace == nil || !lace.ReceivedQty.IsZero() {
		t.Fatalf("expected empty printing row; got %+v", lace)
	}

	// Store hands out 80 m of mesh; sync picks up the snapshot and the cost
	// row, so producible becomes floor(80/2) = 40.
	if _, err := models.CreateMaterialIssue(ctx, &models.NewMaterialIssue{
		ProjectId: "PRJ-IT-1",
		CardId:    card.ID,
		IssueNo:   "MI-0001",
		Items: []models.NewMaterialIssueItem{
			{Category: models.CategoryMaterial, ItemId: 101, IssuedQty: decimal.NewFromInt(80)},
		},
	}); err != nil {
		t.Fatalf("CreateMaterialIssue: %v", err)
	}
	doc, err = models.SyncIssuedFromLedger(ctx, card.ID)
	if err != nil {
		t.Fatalf("SyncIssuedFromLedger: %v", err)
	}
	mesh = findTrackingRow(doc, models.DeptCutting, 101)
	if mesh == nil || mesh.IssuedMaterialQty.Cmp(decimal.NewFromInt(80)) != 0 {
		t.Fatalf("expected issued=80 after sync; got %+v", mesh)
	}
	if mesh.ProducibleUnits.Cmp(decimal.NewFromInt(40)) != 0 {
		t.Fatalf("expected producible=40 after sync; got %s", mesh.ProducibleUnits)
	}
	versionAfterSync := doc.Version
	if versionAfterSync == 0 {
		t.Fatalf("sync should have bumped the document version")
	}

	// A second sync against the same snapshot persists nothing.
	doc, err = models.SyncIssuedFromLedger(ctx, card.ID)
	if err != nil {
		t.Fatalf("SyncIssuedFromLedger(repeat): %v", err)
	}
	if doc.Version != versionAfterSync {
		t.Fatalf("unchanged sync bumped version %d -> %d", versionAfterSync, doc.Version)
	}

	// Work is capped by producible units, not the received quantity.
	_, err = models.ApplyWorkAndTransfer(ctx, &models.WorkTransferInput{
		CardId:     card.ID,
		Department: "cutting",
		ItemId:     101,
		WorkQty:    decimal.NewFromInt(41),
	})
	if !errors.Is(err, utils.ErrorCapacityLimit) {
		t.Fatalf("expected capacity error for work=41; got %v", err)
	}
	doc, err = models.ApplyWorkAndTransfer(ctx, &models.WorkTransferInput{
		CardId:     card.ID,
		Department: "cutting",
		ItemId:     101,
		WorkQty:    decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("ApplyWorkAndTransfer(work 40): %v", err)
	}
	mesh = findTrackingRow(doc, models.DeptCutting, 101)
	if mesh.CompletedQty.Cmp(decimal.NewFromInt(40)) != 0 {
		t.Fatalf("expected completed=40; got %s", mesh.CompletedQty)
	}

	// Transfer 30 downstream. The printing mesh row is created on arrival and
	// carries forward 30 * 2 = 60 of issued material.
	doc, err = models.ApplyWorkAndTransfer(ctx, &models.WorkTransferInput{
		CardId:      card.ID,
		Department:  "cutting",
		ItemId:      101,
		TransferQty: decimal.NewFromInt(30),
	})
	if err != nil {
		t.Fatalf("ApplyWorkAndTransfer(transfer 30): %v", err)
	}
	mesh = findTrackingRow(doc, models.DeptCutting, 101)
	if mesh.TransferredQty.Cmp(decimal.NewFromInt(30)) != 0 {
		t.Fatalf("expected transferred=30; got %s", mesh.TransferredQty)
	}
	downstream := findTrackingRow(doc, models.DeptPrinting, 101)
	if downstream == nil || downstream.ReceivedQty.Cmp(decimal.NewFromInt(30)) != 0 {
		t.Fatalf("expected printing mesh row received=30; got %+v", downstream)
	}
	if downstream.IssuedMaterialQty.Cmp(decimal.NewFromInt(60)) != 0 {
		t.Fatalf("expected carried issued=60; got %s", downstream.IssuedMaterialQty)
	}

	// Reload from scratch: counters and history survived the round trips.
	dept := models.DeptCutting
	view, err := models.GetTracking(ctx, card.ID, &dept)
	if err != nil {
		t.Fatalf("GetTracking: %v", err)
	}
	if view.Document.Version <= versionAfterSync {
		t.Fatalf("expected version > %d after two mutations; got %d", versionAfterSync, view.Document.Version)
	}
	reloaded := findTrackingRow(view.Document, models.DeptCutting, 101)
	if len(reloaded.History) < 3 {
		t.Fatalf("expected at least seed+issue+work+transfer events; got %d", len(reloaded.History))
	}
	for _, event := range reloaded.History {
		if event.EventType == models.EventWorkAdded && event.UserName != "Test" {
			t.Fatalf("history event lost the acting user: %+v", event)
		}
	}

	summaries, err := models.ListTrackedCards(ctx)
	if err != nil {
		t.Fatalf("ListTrackedCards: %v", err)
	}
	if len(summaries) != 1 || summaries[0].CardId != card.ID || summaries[0].CardNo != "CARD-0001" {
		t.Fatalf("unexpected tracked card list: %+v", summaries)
	}

	// Deleting the card deactivates tracking but keeps the audit trail.
	if err := models.DeleteProductionCard(ctx, card.ID); err != nil {
		t.Fatalf("DeleteProductionCard: %v", err)
	}
	if _, err := models.GetTracking(ctx, card.ID, nil); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected not-found after delete; got %v", err)
	}
	var historyCount int64
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&models.TrackingHistory{}).Count(&historyCount).Error; err != nil {
		t.Fatalf("count history: %v", err)
	}
	if historyCount == 0 {
		t.Fatalf("history rows should survive card deletion")
	}

	// Concurrent creation yields exactly one active document per card, on
	// both lock backends. The lock is held across the commit; releasing it
	// earlier would let a second writer miss the uncommitted row and insert
	// a duplicate.
	assertSingleDocumentUnderConcurrentCreate(t, ctx, "CARD-0002")
	os.Setenv("TRACKING_DB_LOCK", "1")
	assertSingleDocumentUnderConcurrentCreate(t, ctx, "CARD-0003")
	os.Unsetenv("TRACKING_DB_LOCK")
}

func assertSingleDocumentUnderConcurrentCreate(t *testing.T, ctx context.Context, cardNo string) {
	t.Helper()

	card, err := models.CreateProductionCard(ctx, &models.NewProductionCard{
		ProjectId: "PRJ-IT-1",
		CardNo:    cardNo,
		TargetQty: decimal.NewFromInt(50),
		MaterialItems: []models.NewCardItem{
			{ItemId: 101, Name: "Mesh", Unit: "m", Department: "cutting"},
		},
	})
	if err != nil {
		t.Fatalf("CreateProductionCard(%s): %v", cardNo, err)
	}

	const writers = 6
	ids := make(chan int, writers)
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc, err := models.CreateTracking(ctx, card.ID)
			if err != nil {
				errs <- err
				return
			}
			ids <- doc.ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Fatalf("CreateTracking(%s): %v", cardNo, err)
	}
	first := 0
	for id := range ids {
		if first == 0 {
			first = id
		} else if id != first {
			t.Fatalf("concurrent create returned documents %d and %d", first, id)
		}
	}

	var active int64
	db := config.GetDB()
	err = db.WithContext(ctx).Model(&models.TrackingDocument{}).
		Where("card_id = ? AND is_active = ?", card.ID, true).
		Count(&active).Error
	if err != nil {
		t.Fatalf("count documents for %s: %v", cardNo, err)
	}
	if active != 1 {
		t.Fatalf("active documents for %s = %d, want 1", cardNo, active)
	}
}

func findTrackingRow(doc *models.TrackingDocument, dept models.Department, itemId int) *models.TrackingRow {
	for i := range doc.Rows {
		if doc.Rows[i].Department == dept && doc.Rows[i].ItemId == itemId {
			return &doc.Rows[i]
		}
	}
	return nil
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("mfgtrack-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("mfgtrack-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=mfgtrack_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
