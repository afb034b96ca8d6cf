package tally

import (
	"errors"
	"net/http"
	"strconv"

	"bitbucket.org/synergymed/hims_backend/config"
	"bitbucket.org/synergymed/hims_backend/models"
	"bitbucket.org/synergymed/hims_backend/utils"
	"github.com/gin-gonic/gin"
)

// Handler exposes the sync engine over HTTP.
type Handler struct {
	syncer *Syncer
	store  models.LedgerStore
	cfg    config.TallyConfig
}

func NewHandler(syncer *Syncer, store models.LedgerStore, cfg config.TallyConfig) *Handler {
	return &Handler{syncer: syncer, store: store, cfg: cfg}
}

// RegisterRoutes mounts the engine under /tally.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/tally")
	group.POST("/sync/:type", h.TriggerSync)
	group.POST("/import", h.Import)
	group.POST("/vouchers/push", h.PushVoucher)
	group.GET("/status", h.Status)
	group.GET("/sync-history", h.SyncHistory)
	group.GET("/sync-history/:id/errors", h.SyncHistoryErrors)
	group.GET("/export", h.Export)
	group.POST("/pubsub/push", PubSubPushHandler(h.syncer))
}

type triggerSyncBody struct {
	FromDate string `json:"fromDate"`
	ToDate   string `json:"toDate"`
}

// TriggerSync starts a sync job. With Pub/Sub configured the job is queued
// and answered 202; otherwise it runs inline on the request.
func (h *Handler) TriggerSync(c *gin.Context) {
	syncType, err := models.ParseSyncType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var body triggerSyncBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	msg := SyncJobMessage{
		SyncType:      string(syncType),
		FromDate:      body.FromDate,
		ToDate:        body.ToDate,
		CorrelationId: correlationId,
	}

	if asyncDispatchEnabled() {
		messageId, err := PublishSyncJob(c.Request.Context(), msg)
		if err != nil {
			config.LogError(config.GetLogger(), moduleName, "TriggerSync", "publish job", msg, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue sync job"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": true, "messageId": messageId})
		return
	}

	status, err := runSyncJob(c.Request.Context(), h.syncer, msg)
	if err != nil {
		if errors.Is(err, ErrSyncAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		var fatal *JobFatalError
		if errors.As(err, &fatal) {
			// The status row already records the failure; report both.
			c.JSON(http.StatusBadGateway, gin.H{"error": fatal.Error(), "status": status})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Import accepts a pushed Tally export (XML) or a JSON record list.
func (h *Handler) Import(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.XML == "" && len(req.JSON) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either xml or json payload is required"})
		return
	}

	result, err := h.syncer.ImportFromTally(c.Request.Context(), req)
	if err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": protoErr.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// PushVoucher sends one voucher to the Tally server.
func (h *Handler) PushVoucher(c *gin.Context) {
	var voucher models.Voucher
	if err := c.ShouldBindJSON(&voucher); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.syncer.ImportVoucher(c.Request.Context(), &voucher); err != nil {
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": transportErr.Error()})
			return
		}
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": protoErr.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pushed": true})
}

// Status reports the configured server and whether it is reachable.
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"host":      h.cfg.Host,
		"port":      h.cfg.Port,
		"company":   h.cfg.Company,
		"connected": h.syncer.TestConnection(c.Request.Context()),
	})
}

func (h *Handler) SyncHistory(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	history, err := h.store.SyncHistory(c.Request.Context(), limit)
	if err != nil {
		config.LogError(config.GetLogger(), moduleName, "SyncHistory", "query history", nil, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

func (h *Handler) SyncHistoryErrors(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
		return
	}

	syncErrors, err := h.store.SyncErrors(c.Request.Context(), uint(id))
	if err != nil {
		config.LogError(config.GetLogger(), moduleName, "SyncHistoryErrors", "query errors", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync errors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": syncErrors})
}

// Export renders ledgers, vouchers or a financial report in the requested
// format.
func (h *Handler) Export(c *gin.Context) {
	req := ExportRequest{
		ExportType: models.ExportType(c.Query("exportType")),
		Format:     models.ExportFormat(c.DefaultQuery("format", string(models.ExportFormatJSON))),
		FromDate:   c.Query("fromDate"),
		ToDate:     c.Query("toDate"),
	}

	data, contentType, err := ExportData(c.Request.Context(), h.store, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Format == models.ExportFormatExcel {
		c.Header("Content-Disposition", `attachment; filename="`+string(req.ExportType)+`.xlsx"`)
	}
	c.Data(http.StatusOK, contentType, data)
}
