package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/weavetrack/erp-api/internal/middleware"
	"github.com/weavetrack/erp-api/internal/models"
	"github.com/weavetrack/erp-api/internal/services"
)

type BatchHandler struct {
	batchService      *services.BatchService
	transitionService *services.TransitionService
	auditService      *services.AuditService
	exportService     *services.ExportService
}

func NewBatchHandler(batchService *services.BatchService, transitionService *services.TransitionService, auditService *services.AuditService, exportService *services.ExportService) *BatchHandler {
	return &BatchHandler{
		batchService:      batchService,
		transitionService: transitionService,
		auditService:      auditService,
		exportService:     exportService,
	}
}

// BatchResponse is a batch with its derived totals.
type BatchResponse struct {
	*models.Batch
	TotalCost decimal.Decimal `json:"total_cost"`
}

func toResponse(b *models.Batch) BatchResponse {
	return BatchResponse{Batch: b, TotalCost: b.TotalCost()}
}

// currentCaller builds the audit identity of the request.
func currentCaller(c *gin.Context) services.Caller {
	return services.Caller{
		CompanyID: middleware.GetCompanyID(c),
		Actor:     middleware.CurrentActor(c),
		Request:   middleware.CurrentRequest(c),
	}
}

func parseBatchID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "Validation failed", map[string]string{"id": "must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

// firstQuery returns the first non-empty query value among names.
func firstQuery(c *gin.Context, names ...string) string {
	for _, n := range names {
		if v := c.Query(n); v != "" {
			return v
		}
	}
	return ""
}

func parseIntQuery(c *gin.Context, name string, fields map[string]string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fields[name] = "must be an integer"
	}
	return v
}

// parseDateQuery accepts RFC3339 or a plain date. A plain end date covers
// the whole day.
func parseDateQuery(c *gin.Context, field string, endOfDay bool, fields map[string]string, names ...string) *time.Time {
	raw := firstQuery(c, names...)
	if raw == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		fields[field] = "must be a date (YYYY-MM-DD) or RFC3339 timestamp"
		return nil
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t
}

// batchFilter reads the shared list/analytics/export query parameters.
func batchFilter(c *gin.Context) (services.BatchFilter, map[string]string) {
	fields := map[string]string{}
	filter := services.BatchFilter{
		CompanyID:   middleware.GetCompanyID(c),
		Status:      c.Query("status"),
		ProcessType: firstQuery(c, "processType", "process_type"),
		Page:        parseIntQuery(c, "page", fields),
		Limit:       parseIntQuery(c, "limit", fields),
		StartDate:   parseDateQuery(c, "startDate", false, fields, "startDate", "start_date"),
		EndDate:     parseDateQuery(c, "endDate", true, fields, "endDate", "end_date"),
	}
	return filter, fields
}

type MaterialRequest struct {
	MaterialID   string          `json:"material_id" binding:"required,max=64"`
	MaterialName string          `json:"material_name" binding:"max=255"`
	LotNumber    string          `json:"lot_number" binding:"max=64"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit" binding:"required,max=16"`
}

type CreateBatchRequest struct {
	ProcessType       string                    `json:"process_type" binding:"required"`
	ProductionOrderID *uuid.UUID                `json:"production_order_id"`
	InwardID          *uuid.UUID                `json:"inward_id"`
	PlannedStartTime  *time.Time                `json:"planned_start_time"`
	PlannedEndTime    *time.Time                `json:"planned_end_time"`
	InputMaterials    []MaterialRequest         `json:"input_materials" binding:"dive"`
	ProcessParameters []models.ProcessParameter `json:"process_parameters"`
	CostBreakdown     []models.CostItem         `json:"cost_breakdown"`
	Notes             string                    `json:"notes" binding:"max=2000"`
}

// @Summary Create Batch
// @Description Open a pre-processing batch in pending status
// @Tags PreProcessing
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pre-processing [post]
func (h *BatchHandler) Create(c *gin.Context) {
	var req CreateBatchRequest
	if err := BindNestedOrFlat(c, "batch", &req); err != nil {
		fail(c, http.StatusBadRequest, "Validation failed", bindingErrors(err))
		return
	}

	materials := make([]models.InputMaterial, 0, len(req.InputMaterials))
	for _, m := range req.InputMaterials {
		materials = append(materials, models.InputMaterial{
			MaterialID:   m.MaterialID,
			MaterialName: m.MaterialName,
			LotNumber:    m.LotNumber,
			Quantity:     m.Quantity,
			Unit:         m.Unit,
		})
	}

	batch, err := h.batchService.Create(c.Request.Context(), currentCaller(c), services.CreateBatchInput{
		ProcessType:       req.ProcessType,
		ProductionOrderID: req.ProductionOrderID,
		InwardID:          req.InwardID,
		PlannedStartTime:  req.PlannedStartTime,
		PlannedEndTime:    req.PlannedEndTime,
		InputMaterials:    materials,
		ProcessParameters: req.ProcessParameters,
		CostBreakdown:     req.CostBreakdown,
		Notes:             req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusCreated, toResponse(batch), "Batch created")
}

// @Summary List Batches
// @Description Paginated batches of the current company, newest first
// @Tags PreProcessing
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page (1-100)" default(10)
// @Param status query string false "Filter by status"
// @Param processType query string false "Filter by process type"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pre-processing [get]
func (h *BatchHandler) Index(c *gin.Context) {
	filter, fields := batchFilter(c)
	if len(fields) > 0 {
		fail(c, http.StatusBadRequest, "Validation failed", fields)
		return
	}

	page, err := h.batchService.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	responses := make([]BatchResponse, 0, len(page.Items))
	for i := range page.Items {
		responses = append(responses, toResponse(&page.Items[i]))
	}
	respondPage(c, responses, page.Page, page.Pages, page.Total)
}

// @Summary Batch Analytics
// @Description Per-status counts, completion rate and average efficiency
// @Tags PreProcessing
// @Produce json
// @Param startDate query string false "Start date"
// @Param endDate query string false "End date"
// @Success 200 {object} models.BatchAnalytics
// @Security BearerAuth
// @Router /pre-processing/analytics [get]
func (h *BatchHandler) Analytics(c *gin.Context) {
	filter, fields := batchFilter(c)
	if len(fields) > 0 {
		fail(c, http.StatusBadRequest, "Validation failed", fields)
		return
	}

	analytics, err := h.batchService.Analytics(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, analytics, "")
}

// @Summary Export Batches
// @Description Download the filtered batches as csv, xlsx or pdf
// @Tags PreProcessing
// @Produce octet-stream
// @Param format query string false "csv, xlsx or pdf" default(csv)
// @Security BearerAuth
// @Router /pre-processing/export [get]
func (h *BatchHandler) Export(c *gin.Context) {
	filter, fields := batchFilter(c)
	if len(fields) > 0 {
		fail(c, http.StatusBadRequest, "Validation failed", fields)
		return
	}

	file, err := h.exportService.Export(c.Request.Context(), filter, c.DefaultQuery("format", services.ExportFormatCSV))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// @Summary Get Batch
// @Tags PreProcessing
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pre-processing/{id} [get]
func (h *BatchHandler) Show(c *gin.Context) {
	id, ok := parseBatchID(c)
	if !ok {
		return
	}

	batch, err := h.batchService.Get(c.Request.Context(), middleware.GetCompanyID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toResponse(batch), "")
}

type UpdateBatchRequest struct {
	Version           *int                       `json:"version" binding:"omitempty,min=1"`
	ProcessType       *string                    `json:"process_type"`
	Progress          *int                       `json:"progress" binding:"omitempty,min=0,max=100"`
	Efficiency        *float64                   `json:"efficiency" binding:"omitempty,min=0,max=100"`
	PlannedStartTime  *time.Time                 `json:"planned_start_time"`
	PlannedEndTime    *time.Time                 `json:"planned_end_time"`
	ProcessParameters *[]models.ProcessParameter `json:"process_parameters"`
	CostBreakdown     *[]models.CostItem         `json:"cost_breakdown"`
	Note              *string                    `json:"note" binding:"omitempty,max=2000"`
}

// @Summary Update Batch
// @Description Field-level update. Status changes go through PATCH /status.
// @Tags PreProcessing
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pre-processing/{id} [put]
func (h *BatchHandler) Update(c *gin.Context) {
	id, ok := parseBatchID(c)
	if !ok {
		return
	}

	var req UpdateBatchRequest
	if err := BindNestedOrFlat(c, "batch", &req); err != nil {
		fail(c, http.StatusBadRequest, "Validation failed", bindingErrors(err))
		return
	}

	batch, err := h.batchService.Update(c.Request.Context(), currentCaller(c), id, services.UpdateBatchInput{
		Version:           req.Version,
		ProcessType:       req.ProcessType,
		Progress:          req.Progress,
		Efficiency:        req.Efficiency,
		PlannedStartTime:  req.PlannedStartTime,
		PlannedEndTime:    req.PlannedEndTime,
		ProcessParameters: req.ProcessParameters,
		CostBreakdown:     req.CostBreakdown,
		Note:              req.Note,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toResponse(batch), "Batch updated")
}

type UpdateStatusRequest struct {
	Status            string `json:"status" binding:"required"`
	ChangeReason      string `json:"change_reason" binding:"max=500"`
	ChangeReasonCamel string `json:"changeReason" binding:"max=500"`
	Notes             string `json:"notes" binding:"max=2000"`
}

// @Summary Change Batch Status
// @Description Move a batch to another status and record it in the audit log
// @Tags PreProcessing
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pre-processing/{id}/status [patch]
func (h *BatchHandler) UpdateStatus(c *gin.Context) {
	id, ok := parseBatchID(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Validation failed", bindingErrors(err))
		return
	}

	// Support changeReason (camelCase)
	if req.ChangeReason == "" && req.ChangeReasonCamel != "" {
		req.ChangeReason = req.ChangeReasonCamel
	}

	batch, err := h.transitionService.Transition(c.Request.Context(), services.TransitionCommand{
		Caller:  currentCaller(c),
		BatchID: id,
		Status:  req.Status,
		Reason:  req.ChangeReason,
		Notes:   req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respond(c, http.StatusOK, toResponse(batch), fmt.Sprintf("Batch status updated to %s", batch.Status))
}

type QualityCheckRequest struct {
	Parameter string `json:"parameter" binding:"required,max=128"`
	Expected  string `json:"expected" binding:"max=128"`
	Actual    string `json:"actual" binding:"required,max=128"`
	Result    string `json:"result" binding:"required,oneof=pass fail"`
	Remarks   string `json:"remarks" binding:"max=1000"`
}

// @Summary Add Quality Check
// @Tags PreProcessing
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Success 201 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pre-processing/{id}/quality-checks [post]
func (h *BatchHandler) AddQualityCheck(c *gin.Context) {
	id, ok := parseBatchID(c)
	if !ok {
		return
	}

	var req QualityCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Validation failed", bindingErrors(err))
		return
	}

	batch, err := h.batchService.AddQualityCheck(c.Request.Context(), currentCaller(c), id, services.QualityCheckInput{
		Parameter: req.Parameter,
		Expected:  req.Expected,
		Actual:    req.Actual,
		Result:    req.Result,
		Remarks:   req.Remarks,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, toResponse(batch), "Quality check recorded")
}

// @Summary Add Input Material
// @Tags PreProcessing
// @Accept json
// @Produce json
// @Param id path string true "Batch ID"
// @Success 201 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pre-processing/{id}/materials [post]
func (h *BatchHandler) AddMaterial(c *gin.Context) {
	id, ok := parseBatchID(c)
	if !ok {
		return
	}

	var req MaterialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Validation failed", bindingErrors(err))
		return
	}

	batch, err := h.batchService.AddInputMaterial(c.Request.Context(), currentCaller(c), id, services.InputMaterialInput{
		MaterialID:   req.MaterialID,
		MaterialName: req.MaterialName,
		LotNumber:    req.LotNumber,
		Quantity:     req.Quantity,
		Unit:         req.Unit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, toResponse(batch), "Material recorded")
}

// @Summary Batch History
// @Description Audit entries recorded for the batch, newest first
// @Tags PreProcessing
// @Produce json
// @Param id path string true "Batch ID"
// @Param logType query string false "Filter by log type"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pre-processing/{id}/history [get]
func (h *BatchHandler) History(c *gin.Context) {
	id, ok := parseBatchID(c)
	if !ok {
		return
	}

	fields := map[string]string{}
	filter := services.AuditFilter{
		CompanyID:       middleware.GetCompanyID(c),
		EntityType:      models.EntityTypeBatch,
		EntityID:        id.String(),
		LogType:         firstQuery(c, "logType", "log_type"),
		IncludeArchived: c.Query("includeArchived") == "true",
		Page:            parseIntQuery(c, "page", fields),
		Limit:           parseIntQuery(c, "limit", fields),
	}
	if len(fields) > 0 {
		fail(c, http.StatusBadRequest, "Validation failed", fields)
		return
	}

	page, err := h.auditService.QueryByEntity(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, page.Items, page.Page, page.Pages, page.Total)
}

// @Summary Rebuild Status Log
// @Description Rebuild the batch status change log from the audit log
// @Tags PreProcessing
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pre-processing/{id}/status-log/rebuild [post]
func (h *BatchHandler) RebuildStatusLog(c *gin.Context) {
	id, ok := parseBatchID(c)
	if !ok {
		return
	}

	batch, err := h.batchService.RebuildStatusLog(c.Request.Context(), middleware.GetCompanyID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, toResponse(batch), "Status log rebuilt")
}

// @Summary Delete Batch
// @Tags PreProcessing
// @Param id path string true "Batch ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /pre-processing/{id} [delete]
func (h *BatchHandler) Delete(c *gin.Context) {
	id, ok := parseBatchID(c)
	if !ok {
		return
	}

	if err := h.batchService.Delete(c.Request.Context(), currentCaller(c), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, nil, "Batch deleted")
}
