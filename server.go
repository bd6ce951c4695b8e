package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stridemfg/mfgtrack_backend/config"
	"github.com/stridemfg/mfgtrack_backend/models"
	"github.com/stridemfg/mfgtrack_backend/utils"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "X-Project-Id", "X-User-Id", "X-User-Name", "X-Correlation-Id"},
	}))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(requestContext())
	registerRoutes(api)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// Start listening first, then connect dependencies (managed runtimes
	// require the container to bind $PORT quickly).
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()
	log.Printf("tracking backend ready on :%s", port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

// requestContext copies the caller identity headers into the request context
// the same way an auth layer would. Authentication itself is out of scope.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if projectId := c.GetHeader("X-Project-Id"); projectId != "" {
			ctx = utils.SetProjectIdInContext(ctx, projectId)
		}
		if userId, err := strconv.Atoi(c.GetHeader("X-User-Id")); err == nil {
			ctx = utils.SetUserIdInContext(ctx, userId)
		}
		if userName := c.GetHeader("X-User-Name"); userName != "" {
			ctx = utils.SetUserNameInContext(ctx, userName)
		}
		correlationId := c.GetHeader("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func registerRoutes(api *gin.RouterGroup) {
	api.POST("/projects", createProject)
	api.POST("/purchase-orders", createPurchaseOrder)
	api.POST("/cost-rows", createCostRow)

	api.POST("/cards", createCard)
	api.GET("/cards/:id", getCard)
	api.DELETE("/cards/:id", deleteCard)

	api.POST("/cards/:id/tracking", createTracking)
	api.GET("/cards/:id/tracking", getTracking)
	api.POST("/cards/:id/tracking/work", applyWorkAndTransfer)
	api.POST("/cards/:id/tracking/sync", syncTracking)
	api.PATCH("/cards/:id/tracking/consumption", editRowConsumption)
	api.GET("/tracking/cards", listTrackedCards)

	api.GET("/dashboard/:department", departmentDashboard)

	api.POST("/material-issues", createMaterialIssue)
	api.DELETE("/material-issues/:id", deleteMaterialIssue)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, utils.ErrorValidation):
		return http.StatusBadRequest
	case errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrorCapacityLimit):
		return http.StatusUnprocessableEntity
	case errors.Is(err, utils.ErrorVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

func abortWithBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": utils.ProcessValidationErrors(err)})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func createProject(c *gin.Context) {
	var input models.NewProject
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	project, err := models.CreateProject(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

func createPurchaseOrder(c *gin.Context) {
	var input models.NewPurchaseOrder
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	po, err := models.CreatePurchaseOrder(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, po)
}

func createCostRow(c *gin.Context) {
	var input models.NewCostRow
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	costRow, err := models.CreateCostRow(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, costRow)
}

func createCard(c *gin.Context) {
	var input models.NewProductionCard
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	card, err := models.CreateProductionCard(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func getCard(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	card, err := models.GetProductionCard(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func deleteCard(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	if err := models.DeleteProductionCard(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func createTracking(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	doc, err := models.CreateTracking(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func getTracking(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var deptFilter *models.Department
	if raw := c.Query("department"); raw != "" {
		dept, ok := models.NormalizeDepartment(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown department " + raw})
			return
		}
		deptFilter = &dept
	}
	view, err := models.GetTracking(c.Request.Context(), id, deptFilter)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func applyWorkAndTransfer(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input models.WorkTransferInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	input.CardId = id
	doc, err := models.ApplyWorkAndTransfer(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func syncTracking(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	doc, err := models.SyncIssuedFromLedger(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if doc == nil {
		c.JSON(http.StatusOK, gin.H{"synced": false, "reason": "no tracking document"})
		return
	}
	c.JSON(http.StatusOK, doc)
}

type editConsumptionInput struct {
	Department         string          `json:"department" binding:"required"`
	ItemKey            string          `json:"item_key" binding:"required"`
	ConsumptionPerUnit decimal.Decimal `json:"consumption_per_unit"`
}

func editRowConsumption(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	var input editConsumptionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	doc, err := models.EditRowConsumption(c.Request.Context(), id, input.Department, input.ItemKey, input.ConsumptionPerUnit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func listTrackedCards(c *gin.Context) {
	cards, err := models.ListTrackedCards(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func departmentDashboard(c *gin.Context) {
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "month is required"})
		return
	}
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year is required"})
		return
	}
	result, err := models.DepartmentDashboard(c.Request.Context(), c.Param("department"), month, year)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func createMaterialIssue(c *gin.Context) {
	var input models.NewMaterialIssue
	if err := c.ShouldBindJSON(&input); err != nil {
		abortWithBindError(c, err)
		return
	}
	issue, err := models.CreateMaterialIssue(c.Request.Context(), &input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, issue)
}

func deleteMaterialIssue(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	if err := models.DeleteMaterialIssue(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
