package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/docsage-ai/docsage/internal/domain"
	ingestuc "github.com/docsage-ai/docsage/internal/usecase/ingest"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// ChatService answers questions and serves chat history.
type ChatService interface {
	Query(ctx context.Context, projectID, question string, topK int) (domain.Answer, error)
	History(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error)
}

// IngestService runs the document ingestion pipeline.
type IngestService interface {
	IngestFiles(ctx context.Context, projectID string, files []ingestuc.File) []domain.FileResult
	IngestWeb(ctx context.Context, projectID, rawURL string) (domain.FileResult, error)
	DeleteDocument(ctx context.Context, documentID string) (int64, error)
}

// EmailService runs the email summarization pipeline.
type EmailService interface {
	Configure(ctx context.Context, cfg domain.EmailConfig) error
	Ingest(ctx context.Context, projectID string) (int, []string, error)
	Summarize(ctx context.Context, projectID string) ([]domain.EmailSummary, error)
	Summaries(ctx context.Context, projectID string) ([]domain.EmailSummary, error)
}

// Pinger reports dependency liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP API.
type Server struct {
	chat          ChatService
	ingest        IngestService
	email         EmailService
	checks        map[string]Pinger
	maxUploadSize int64
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. checks maps dependency names to
// liveness probes for the health endpoint.
func NewServer(
	chat ChatService,
	ingest IngestService,
	email EmailService,
	checks map[string]Pinger,
	maxUploadSize int64,
	logger *zap.Logger,
) *Server {
	s := &Server{
		chat:          chat,
		ingest:        ingest,
		email:         email,
		checks:        checks,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeBadRequest),
		sentinelHandler(domain.ErrUnsupportedSource, http.StatusBadRequest, CodeUnsupportedSource),
		sentinelHandler(domain.ErrExtraction, http.StatusUnprocessableEntity, CodeExtractionFailed),
		sentinelHandler(domain.ErrChunking, http.StatusUnprocessableEntity, CodeExtractionFailed),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrProjectNotFound, http.StatusNotFound, CodeProjectNotFound),
		sentinelHandler(domain.ErrEmailNotConfigured, http.StatusConflict, CodeEmailNotConfigured),
		sentinelHandler(domain.ErrNoRawEmails, http.StatusConflict, CodeNoRawEmails),
		sentinelHandler(domain.ErrEmbedding, http.StatusBadGateway, CodeEmbeddingProviderErr),
		sentinelHandler(domain.ErrEmbeddingTransient, http.StatusServiceUnavailable, CodeBackendUnavailable),
		sentinelHandler(domain.ErrGenerationUnavailable, http.StatusServiceUnavailable, CodeBackendUnavailable),
	}
	return s
}

// Register mounts all API routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat/query", s.ChatQuery)
		r.Get("/chat/history/{project_id}", s.ChatHistory)
		r.Post("/documents/upload", s.UploadDocuments)
		r.Post("/documents/web", s.IngestWeb)
		r.Delete("/documents/{document_id}", s.DeleteDocument)
		r.Post("/email/setup", s.EmailSetup)
		r.Post("/email/ingest", s.EmailIngest)
		r.Post("/email/summarize", s.EmailSummarize)
		r.Get("/email/summaries/{project_id}", s.EmailSummaries)
	})
	r.Get("/healthz", s.Health)
	r.Get("/metrics", s.Metrics)
}

// ChatQuery handles POST /api/v1/chat/query.
func (s *Server) ChatQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err))
		return
	}

	answer, err := s.chat.Query(r.Context(), req.ProjectID, req.Question, req.TopK)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// ChatHistory handles GET /api/v1/chat/history/{project_id}.
func (s *Server) ChatHistory(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	messages, err := s.chat.History(r.Context(), projectID, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{ProjectID: projectID, Messages: messages})
}

// UploadDocuments handles POST /api/v1/documents/upload. The body is
// multipart form data with a project_id field and one or more files.
func (s *Server) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(s.maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid multipart body: "+err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	projectID := r.FormValue("project_id")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "project_id is required")
		return
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "at least one file is required")
		return
	}

	files := make([]ingestuc.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "read upload "+h.Filename+": "+err.Error())
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "read upload "+h.Filename+": "+err.Error())
			return
		}
		files = append(files, ingestuc.File{Name: h.Filename, Data: data})
	}

	results := s.ingest.IngestFiles(r.Context(), projectID, files)

	success := true
	for _, res := range results {
		if !res.Succeeded() {
			success = false
			break
		}
	}

	writeJSON(w, http.StatusOK, UploadResponse{Success: success, Files: results})
}

// IngestWeb handles POST /api/v1/documents/web.
func (s *Server) IngestWeb(w http.ResponseWriter, r *http.Request) {
	var req WebIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err))
		return
	}

	result, err := s.ingest.IngestWeb(r.Context(), req.ProjectID, req.URL)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, WebIngestResponse{Success: true, File: result})
}

// DeleteDocument handles DELETE /api/v1/documents/{document_id}.
func (s *Server) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "document_id")

	removed, err := s.ingest.DeleteDocument(r.Context(), documentID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteDocumentResponse{
		DocumentID:    documentID,
		ChunksRemoved: removed,
	})
}

// EmailSetup handles POST /api/v1/email/setup.
func (s *Server) EmailSetup(w http.ResponseWriter, r *http.Request) {
	var req EmailSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err))
		return
	}

	err := s.email.Configure(r.Context(), domain.EmailConfig{
		ProjectID:       req.ProjectID,
		IMAPServer:      req.IMAPServer,
		EmailAddress:    req.Email,
		Password:        req.Password,
		SenderFilter:    req.SenderFilter,
		SubjectKeywords: req.SubjectKeywords,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EmailSetupResponse{
		Success: true,
		State:   string(domain.EmailConfigured),
	})
}

// EmailIngest handles POST /api/v1/email/ingest.
func (s *Server) EmailIngest(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeProjectRequest(w, r)
	if !ok {
		return
	}

	count, subjects, err := s.email.Ingest(r.Context(), req.ProjectID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if subjects == nil {
		subjects = []string{}
	}

	writeJSON(w, http.StatusOK, EmailIngestResponse{Count: count, Subjects: subjects})
}

// EmailSummarize handles POST /api/v1/email/summarize.
func (s *Server) EmailSummarize(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeProjectRequest(w, r)
	if !ok {
		return
	}

	summaries, err := s.email.Summarize(r.Context(), req.ProjectID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, EmailSummarizeResponse{
		Success:   true,
		Count:     len(summaries),
		Summaries: summaries,
	})
}

// EmailSummaries handles GET /api/v1/email/summaries/{project_id}.
func (s *Server) EmailSummaries(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")

	summaries, err := s.email.Summaries(r.Context(), projectID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if summaries == nil {
		summaries = []domain.EmailSummary{}
	}

	writeJSON(w, http.StatusOK, EmailSummariesResponse{ProjectID: projectID, Summaries: summaries})
}

// Health handles GET /healthz. Any failing dependency turns the status
// unhealthy and the code 503.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK
	checks := make(map[string]string, len(s.checks))

	for name, p := range s.checks {
		if err := p.Ping(r.Context()); err != nil {
			checks[name] = "error: " + err.Error()
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	writeJSON(w, httpStatus, HealthResponse{Status: status, Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decodeProjectRequest(w http.ResponseWriter, r *http.Request) (ProjectRequest, bool) {
	var req ProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return req, false
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, validationMessage(err))
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrUnsupportedSource,
		domain.ErrExtraction,
		domain.ErrChunking,
		domain.ErrDocumentNotFound,
		domain.ErrProjectNotFound,
		domain.ErrEmailNotConfigured,
		domain.ErrNoRawEmails,
		domain.ErrEmbedding,
		domain.ErrEmbeddingTransient,
		domain.ErrGenerationUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
