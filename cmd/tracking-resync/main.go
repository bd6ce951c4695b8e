// tracking-resync re-reads the latest material issue snapshot for tracked
// cards and folds any missed deltas into their tracking documents. Normally
// the sync endpoint keeps documents current; this exists for recovery after
// issues were entered while tracking was down.
//
// Usage:
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/tracking-resync
//   go run ./cmd/tracking-resync -card-id 42
//   go run ./cmd/tracking-resync -project-id PRJ-1001
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/stridemfg/mfgtrack_backend/config"
	"github.com/stridemfg/mfgtrack_backend/models"
	"github.com/stridemfg/mfgtrack_backend/utils"
)

func main() {
	cardID := flag.Int("card-id", 0, "Optional: resync only one card. If 0, resyncs every active tracking document.")
	projectID := flag.String("project-id", "", "Optional: resync only one project's cards.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "TrackingResync")

	// Listing documents crosses projects; the per-card sync below runs with
	// the document's own project in context.
	listCtx := utils.SetSkipProjectScopeInContext(ctx, true)

	var docs []models.TrackingDocument
	query := db.WithContext(listCtx).Model(&models.TrackingDocument{}).Where("is_active = ?", true)
	if *cardID > 0 {
		query = query.Where("card_id = ?", *cardID)
	}
	if strings.TrimSpace(*projectID) != "" {
		query = query.Where("project_id = ?", strings.TrimSpace(*projectID))
	}
	if err := query.Order("id").Find(&docs).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list tracking documents: %v\n", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		fmt.Fprintln(os.Stderr, "no active tracking documents matched")
		return
	}

	var failed int
	for _, doc := range docs {
		cardCtx := utils.SetProjectIdInContext(ctx, doc.ProjectId)
		if _, err := models.SyncIssuedFromLedger(cardCtx, doc.CardId); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "card %d (project %s): sync failed: %v\n", doc.CardId, doc.ProjectId, err)
			continue
		}
		fmt.Printf("card %d (project %s): synced\n", doc.CardId, doc.ProjectId)
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d documents failed\n", failed, len(docs))
		os.Exit(1)
	}
}
