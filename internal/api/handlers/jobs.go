package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/storage"
)

// DocumentOpener reads back documents kept in the local artifact store.
type DocumentOpener interface {
	Open(ref string) (io.ReadCloser, error)
}

type UploadLimits struct {
	MaxBytes      int64
	AcceptedTypes []string
}

// Accepts reports whether name has one of the accepted extensions. An empty
// list accepts everything.
func (l UploadLimits) Accepts(name string) bool {
	if len(l.AcceptedTypes) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return slices.ContainsFunc(l.AcceptedTypes, func(t string) bool {
		return strings.EqualFold(t, ext)
	})
}

// AdminJob is a job as the dashboard shows it, with the status changes an
// operator may apply next.
type AdminJob struct {
	core.PrintJob
	Actions []core.JobStatus `json:"actions"`
}

type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type QuoteResponse struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type ListJobsQuery struct {
	Status string `form:"status"`
	Search string `form:"q"`
}

type JobHandler struct {
	jobs      *core.JobManager
	documents DocumentOpener
	limits    UploadLimits
	currency  string
}

// NewJobHandler wires the job endpoints. documents may be nil when uploads
// go to a remote store; those references are served by redirect.
func NewJobHandler(jobs *core.JobManager, documents DocumentOpener, limits UploadLimits, currency string) *JobHandler {
	return &JobHandler{
		jobs:      jobs,
		documents: documents,
		limits:    limits,
		currency:  currency,
	}
}

func (h *JobHandler) SubmitJob(c *gin.Context) {
	if h.limits.MaxBytes > 0 {
		// Leave room for the form fields and multipart framing.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.limits.MaxBytes+1<<20)
	}

	fh, err := c.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "document too large"})
			return
		}
		badRequest(c, "a document must be uploaded in the file field")
		return
	}

	if !h.limits.Accepts(fh.Filename) {
		badRequest(c, fmt.Sprintf("unsupported file type %q, accepted: %s", filepath.Ext(fh.Filename), strings.Join(h.limits.AcceptedTypes, ", ")))
		return
	}
	if h.limits.MaxBytes > 0 && fh.Size > h.limits.MaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "document too large"})
		return
	}

	cfg, err := printConfigFromForm(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	f, err := fh.Open()
	if err != nil {
		badRequest(c, "failed to read uploaded document")
		return
	}
	defer f.Close()

	job, err := h.jobs.Submit(c.Request.Context(), core.SubmitRequest{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Config:      cfg,
		Body:        f,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// printConfigFromForm starts from the form defaults and overrides every
// field the client sent.
func printConfigFromForm(c *gin.Context) (core.PrintConfig, error) {
	cfg := core.DefaultPrintConfig()

	if v := c.PostForm("copies"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("copies must be a whole number, got %q", v)
		}
		cfg.Copies = n
	}
	if v := c.PostForm("color_mode"); v != "" {
		cfg.ColorMode = core.ColorMode(v)
	}
	if v := c.PostForm("paper_size"); v != "" {
		cfg.PaperSize = core.PaperSize(v)
	}
	if v := c.PostForm("orientation"); v != "" {
		cfg.Orientation = core.Orientation(v)
	}
	if v := c.PostForm("double_sided"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("double_sided must be true or false, got %q", v)
		}
		cfg.DoubleSided = b
	}
	return cfg, nil
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) Quote(c *gin.Context) {
	cfg := core.DefaultPrintConfig()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		badRequest(c, err.Error())
		return
	}

	amount, err := h.jobs.Quote(cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, QuoteResponse{Amount: amount, Currency: h.currency})
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	var q ListJobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}
	if q.Status != "" && q.Status != core.StatusFilterAll && !core.JobStatus(q.Status).Valid() {
		badRequest(c, fmt.Sprintf("unknown status %q", q.Status))
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), q.Status, q.Search)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]AdminJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toAdminJob(job))
	}
	c.JSON(http.StatusOK, out)
}

func (h *JobHandler) GetJobStats(c *gin.Context) {
	stats, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *JobHandler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}
	target, err := core.ParseJobStatus(req.Status)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.applyTransition(c, target)
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	h.applyTransition(c, core.JobStatusCancelled)
}

func (h *JobHandler) applyTransition(c *gin.Context, target core.JobStatus) {
	job, err := h.jobs.Advance(c.Request.Context(), c.Param("id"), target)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAdminJob(*job))
}

func (h *JobHandler) GetHistory(c *gin.Context) {
	history, err := h.jobs.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *JobHandler) GetDocument(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if storage.IsRemote(job.DocumentRef) {
		c.Redirect(http.StatusFound, job.DocumentRef)
		return
	}
	if h.documents == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "document not available"})
		return
	}

	rc, err := h.documents.Open(job.DocumentRef)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	contentType := job.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": job.FileName})
	c.DataFromReader(http.StatusOK, job.FileSize, contentType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

func toAdminJob(job core.PrintJob) AdminJob {
	actions := core.OperatorActions(job.Status)
	if actions == nil {
		actions = []core.JobStatus{}
	}
	return AdminJob{PrintJob: job, Actions: actions}
}

// RegisterRoutes mounts the customer-facing endpoints.
func (h *JobHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/jobs", h.SubmitJob)
	r.GET("/jobs/:id", h.GetJob)
	r.POST("/quote", h.Quote)
}

// RegisterAdminRoutes mounts the operator endpoints; r must already require
// authentication.
func (h *JobHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/jobs", h.ListJobs)
	r.GET("/jobs/stats", h.GetJobStats)
	r.POST("/jobs/:id/status", h.UpdateStatus)
	r.POST("/jobs/:id/cancel", h.CancelJob)
	r.GET("/jobs/:id/history", h.GetHistory)
	r.GET("/jobs/:id/document", h.GetDocument)
}
