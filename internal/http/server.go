package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/VishwesGopal13/Automotive-Service/internal/apperr"
	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/models"
	"github.com/VishwesGopal13/Automotive-Service/internal/repository"
	"github.com/VishwesGopal13/Automotive-Service/internal/service"
)

// Server wraps the gin engine and collaborators needed to handle API requests.
type Server struct {
	Engine *gin.Engine
	orch   *service.Orchestrator
	log    logger.Logger
}

// NewServer constructs a new API server and registers routes. gatherer backs /metrics.
func NewServer(orch *service.Orchestrator, gatherer prometheus.Gatherer, allowedOrigins []string, log logger.Logger) *Server {
	router := gin.Default()
	router.Use(cors.New(corsConfig(allowedOrigins)))
	srv := &Server{Engine: router, orch: orch, log: log}
	srv.registerRoutes(gatherer)
	return srv
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cfg
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.Engine.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if gatherer != nil {
		s.Engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := s.Engine.Group("/api")
	api.GET("/service-centers", s.listServiceCenters)

	customer := api.Group("/customer")
	customer.POST("/job-cards", s.intake)
	customer.GET("/job-cards", s.listCustomerJobCards)
	customer.GET("/job-cards/:id", s.getJobCard)
	customer.POST("/job-cards/:id/cancel", s.cancel)

	technician := api.Group("/technician")
	technician.GET("/technicians", s.listTechnicians)
	technician.PUT("/technicians/:tid/availability", s.setAvailability)
	technician.GET("/technicians/:tid/job-cards", s.listTechnicianJobCards)
	technician.POST("/job-cards/:id/start", s.start)
	technician.POST("/job-cards/:id/report", s.submitReport)

	office := api.Group("/job-cards")
	office.GET("", s.listJobCards)
	office.GET("/:id", s.getJobCard)
	office.GET("/:id/report", s.auditReport)
	office.GET("/:id/invoice.xlsx", s.invoiceWorkbook)
	office.POST("/:id/generate", s.versioned(s.orch.Generate))
	office.POST("/:id/assign", s.versioned(s.orch.Assign))
	office.POST("/:id/validate", s.versioned(s.orch.Validate))
	office.POST("/:id/settle", s.versioned(s.orch.Settle))
	office.POST("/:id/close", s.versioned(s.orch.Close))
	office.POST("/:id/reassign", s.reassign)
	office.POST("/:id/invoice", s.invoice)
	office.POST("/:id/override", s.override)
}

// handleError maps domain errors to status codes. Unknown errors are logged and reported as 500.
func (s *Server) handleError(c *gin.Context, err error) {
	if e, ok := apperr.As(err); ok {
		body := gin.H{"error": e.Message, "kind": e.Kind.String()}
		if e.Details != nil {
			body["details"] = e.Details
		}
		if e.Kind == apperr.KindValidation && e.Err != nil {
			body["error"] = e.Error()
		}
		if e.Kind == apperr.KindInternal {
			s.log.Error("request failed", "path", c.FullPath(), "error", err)
		}
		c.JSON(e.HTTPStatus(), body)
		return
	}
	s.log.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "kind": apperr.KindInternal.String()})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

type versionPayload struct {
	Version int64 `json:"version" binding:"required,min=1"`
}

// versioned adapts a transition that needs only the expected version.
func (s *Server) versioned(fn func(ctx context.Context, id uuid.UUID, expected int64) (*models.JobCard, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var payload versionPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		card, err := fn(c.Request.Context(), id, payload.Version)
		if err != nil {
			s.handleError(c, err)
			return
		}
		c.JSON(http.StatusOK, card)
	}
}

func (s *Server) intake(c *gin.Context) {
	var complaint models.Complaint
	if err := c.ShouldBindJSON(&complaint); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := s.orch.Intake(c.Request.Context(), complaint)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (s *Server) getJobCard(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	card, err := s.orch.Get(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) listJobCards(c *gin.Context) {
	filter, ok := listFilter(c)
	if !ok {
		return
	}
	s.list(c, filter)
}

func (s *Server) listCustomerJobCards(c *gin.Context) {
	filter, ok := listFilter(c)
	if !ok {
		return
	}
	if filter.CustomerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customer_id is required"})
		return
	}
	s.list(c, filter)
}

func (s *Server) listTechnicianJobCards(c *gin.Context) {
	filter, ok := listFilter(c)
	if !ok {
		return
	}
	filter.TechnicianID = c.Param("tid")
	s.list(c, filter)
}

func (s *Server) list(c *gin.Context, filter repository.ListFilter) {
	cards, err := s.orch.List(c.Request.Context(), filter)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cards)
}

func listFilter(c *gin.Context) (repository.ListFilter, bool) {
	filter := repository.ListFilter{
		CustomerID:   c.Query("customer_id"),
		TechnicianID: c.Query("technician_id"),
		OldestFirst:  c.Query("order") == "oldest",
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, ok := models.ParseJobStatus(part)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + strconv.Quote(part)})
				return filter, false
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return filter, false
		}
		filter.Limit = n
	}
	return filter, true
}

func (s *Server) cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload struct {
		versionPayload
		service.CancelRequest
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := s.orch.Cancel(c.Request.Context(), id, payload.Version, payload.CancelRequest)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) start(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload struct {
		versionPayload
		TechnicianID string `json:"technician_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := s.orch.Start(c.Request.Context(), id, payload.Version, payload.TechnicianID)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) submitReport(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload struct {
		versionPayload
		TechnicianID string                  `json:"technician_id" binding:"required"`
		Report       models.TechnicianReport `json:"report"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := s.orch.SubmitReport(c.Request.Context(), id, payload.Version, payload.TechnicianID, payload.Report)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

type decisionPayload struct {
	versionPayload
	By     string `json:"by" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) reassign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload decisionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := s.orch.Reassign(c.Request.Context(), id, payload.Version, payload.By, payload.Reason)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) override(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload decisionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := s.orch.Override(c.Request.Context(), id, payload.Version, payload.By, payload.Reason)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) invoice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var payload struct {
		versionPayload
		WaiveOverageCapBy string `json:"waive_overage_cap_by"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := s.orch.Invoice(c.Request.Context(), id, payload.Version, service.InvoiceOptions{WaiveOverageCapBy: payload.WaiveOverageCapBy})
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) auditReport(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	report, err := s.orch.AuditReport(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) invoiceWorkbook(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	buf, filename, err := s.orch.InvoiceWorkbook(c.Request.Context(), id)
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (s *Server) listTechnicians(c *gin.Context) {
	techs, err := s.orch.ListTechnicians(c.Request.Context(), c.Query("service_center_id"))
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, techs)
}

func (s *Server) setAvailability(c *gin.Context) {
	var payload struct {
		Availability models.Availability `json:"availability" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.orch.SetAvailability(c.Request.Context(), c.Param("tid"), payload.Availability); err != nil {
		s.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listServiceCenters(c *gin.Context) {
	centers, err := s.orch.ListServiceCenters(c.Request.Context())
	if err != nil {
		s.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, centers)
}
