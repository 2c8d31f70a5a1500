// Package handlers exposes the pipeline's HTTP API: batch registration,
// status reads, manual re-drives and health.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/tenderhub/extraction-pipeline/internal/handlers/validator"
	"github.com/tenderhub/extraction-pipeline/internal/service"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

type Handler struct {
	svc       *service.BatchService
	validator *validator.Validator
}

func NewHandler(svc *service.BatchService) *Handler {
	v := validator.NewValidator()
	v.Register(validator.NewBatchValidationRules()...)
	return &Handler{svc: svc, validator: v}
}

func (h *Handler) RegisterApi(router chi.Router) {
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/batches", h.createBatch)
		r.Get("/batches/{id}", h.getBatchStatus)
		r.Post("/batches/{id}/aggregate", h.aggregateBatch)
		r.Post("/files/{docId}/process", h.processFile)
		r.Get("/runs/{runId}/summary", h.getRunSummary)
	})
	router.Get("/health", h.health)
}

type CreateBatchRequest struct {
	BatchID    string              `json:"batch_id" validate:"optional_identifier"`
	RunID      string              `json:"run_id" validate:"optional_identifier"`
	UploadedBy string              `json:"uploaded_by"`
	Files      []CreateFileRequest `json:"files" validate:"required,min=1,dive"`
}

type CreateFileRequest struct {
	DocID    string `json:"doc_id" validate:"required,identifier"`
	Filename string `json:"filename" validate:"required"`
	FileType string `json:"file_type" validate:"file_type"`
	Path     string `json:"path" validate:"required"`
}

func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		renderError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	form := service.CreateBatchForm{
		BatchID:    req.BatchID,
		RunID:      req.RunID,
		UploadedBy: req.UploadedBy,
	}
	for _, f := range req.Files {
		form.Files = append(form.Files, service.CreateFileForm{
			DocID:    f.DocID,
			Filename: f.Filename,
			FileType: f.FileType,
			Path:     f.Path,
		})
	}

	batch, err := h.svc.CreateBatch(r.Context(), form)
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	_ = render.Render(w, r, newBatchReply(batch))
}

func (h *Handler) getBatchStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.GetBatchStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	_ = render.Render(w, r, BatchStatusReply{
		BatchID:         status.Batch.BatchID,
		RunID:           status.Batch.EffectiveRunID(),
		Status:          status.Batch.Status,
		TotalFiles:      status.Total,
		Pending:         status.Counts.Pending,
		Processing:      status.Counts.Processing,
		Success:         status.Counts.Success,
		Failed:          status.Counts.Failed,
		ProgressPercent: status.ProgressPercent,
		Terminal:        status.Terminal,
		CreatedAt:       status.Batch.CreatedAt,
		CompletedAt:     status.Batch.CompletedAt,
	})
}

func (h *Handler) aggregateBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	if err := h.svc.EnqueueAggregation(r.Context(), batchID); err != nil {
		renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, AcceptedReply{Accepted: true, ID: batchID})
}

func (h *Handler) processFile(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docId")
	if err := h.svc.EnqueueFileProcessing(r.Context(), docID); err != nil {
		renderServiceError(w, r, err)
		return
	}
	render.Status(r, http.StatusAccepted)
	_ = render.Render(w, r, AcceptedReply{Accepted: true, ID: docID})
}

func (h *Handler) getRunSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.GetRunSummary(r.Context(), chi.URLParam(r, "runId"))
	if err != nil {
		renderServiceError(w, r, err)
		return
	}

	reply := RunSummaryReply{
		RunID:        summary.RunID,
		Status:       summary.Status,
		TotalFiles:   summary.TotalFiles,
		SuccessFiles: summary.SuccessFiles,
		FailedFiles:  summary.FailedFiles,
		UpdatedAt:    summary.UpdatedAt,
	}
	if summary.UIData != nil {
		reply.Data = summary.UIData.Data
	}
	if summary.SummaryData != nil {
		reply.Summary = summary.SummaryData.Data
	}
	_ = render.Render(w, r, reply)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	status := h.svc.Health(r.Context())
	if !status.Database || !status.Queue {
		render.Status(r, http.StatusServiceUnavailable)
	}
	_ = render.Render(w, r, HealthReply{
		Database:   status.Database,
		Queue:      status.Queue,
		QueueDepth: status.QueueDepth,
	})
}

func renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var notFound *service.ErrResourceNotFound
	var duplicate *service.ErrBatchAlreadyExists
	var invalid *service.ErrInvalidRequest

	switch {
	case errors.As(err, &notFound):
		renderError(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &duplicate):
		renderError(w, r, http.StatusConflict, err.Error())
	case errors.As(err, &invalid):
		renderError(w, r, http.StatusBadRequest, err.Error())
	default:
		zap.S().Named("handlers").Errorw("request failed", "error", err)
		renderError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func renderError(w http.ResponseWriter, r *http.Request, code int, message string) {
	render.Status(r, code)
	_ = render.Render(w, r, ErrorReply{Error: message})
}

type BatchReply struct {
	BatchID    string     `json:"batch_id"`
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"`
	TotalFiles int        `json:"total_files"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	UploadedBy string     `json:"uploaded_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newBatchReply(batch *model.Batch) BatchReply {
	return BatchReply{
		BatchID:     batch.BatchID,
		RunID:       batch.EffectiveRunID(),
		Status:      batch.Status,
		TotalFiles:  batch.TotalFiles,
		CreatedAt:   batch.CreatedAt,
		UpdatedAt:   batch.UpdatedAt,
		UploadedBy:  batch.UploadedBy,
		CompletedAt: batch.CompletedAt,
	}
}

type BatchStatusReply struct {
	BatchID         string     `json:"batch_id"`
	RunID           string     `json:"run_id"`
	Status          string     `json:"status"`
	TotalFiles      int64      `json:"total_files"`
	Pending         int64      `json:"pending"`
	Processing      int64      `json:"processing"`
	Success         int64      `json:"success"`
	Failed          int64      `json:"failed"`
	ProgressPercent int        `json:"progress_percent"`
	Terminal        bool       `json:"terminal"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type AcceptedReply struct {
	Accepted bool   `json:"accepted"`
	ID       string `json:"id"`
}

type RunSummaryReply struct {
	RunID        string         `json:"run_id"`
	Status       string         `json:"status"`
	TotalFiles   int            `json:"total_files"`
	SuccessFiles int            `json:"success_files"`
	FailedFiles  int            `json:"failed_files"`
	Data         map[string]any `json:"data,omitempty"`
	Summary      map[string]any `json:"summary,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type HealthReply struct {
	Database   bool  `json:"database"`
	Queue      bool  `json:"queue"`
	QueueDepth int64 `json:"queue_depth"`
}

type ErrorReply struct {
	Error string `json:"error"`
}

func (b BatchReply) Render(w http.ResponseWriter, r *http.Request) error       { return nil }
func (b BatchStatusReply) Render(w http.ResponseWriter, r *http.Request) error { return nil }
func (a AcceptedReply) Render(w http.ResponseWriter, r *http.Request) error    { return nil }
func (s RunSummaryReply) Render(w http.ResponseWriter, r *http.Request) error  { return nil }
func (h HealthReply) Render(w http.ResponseWriter, r *http.Request) error      { return nil }
func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error       { return nil }
