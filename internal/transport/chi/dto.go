package chi

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/docsage-ai/docsage/internal/domain"
)

// ErrorCode is a machine-readable error identifier returned to clients.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeUnauthorized         ErrorCode = "unauthorized"
	CodeUnsupportedSource    ErrorCode = "unsupported_source"
	CodeExtractionFailed     ErrorCode = "extraction_failed"
	CodeDocumentNotFound     ErrorCode = "document_not_found"
	CodeProjectNotFound      ErrorCode = "project_not_found"
	CodeEmailNotConfigured   ErrorCode = "email_not_configured"
	CodeNoRawEmails          ErrorCode = "no_raw_emails"
	CodeEmbeddingProviderErr ErrorCode = "embedding_provider_error"
	CodeBackendUnavailable   ErrorCode = "backend_unavailable"
	CodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

var validate = validator.New()

// validationMessage flattens validator errors into one client message.
func validationMessage(err error) string {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msg := ""
	for i, e := range errs {
		if i > 0 {
			msg += "; "
		}
		msg += fmt.Sprintf("%s failed on '%s'", e.Field(), e.Tag())
	}
	return msg
}

// QueryRequest is the body of POST /api/v1/chat/query.
type QueryRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	Question  string `json:"question" validate:"required"`
	TopK      int    `json:"top_k" validate:"gte=0"`
}

// HistoryResponse is the body of GET /api/v1/chat/history/{project_id}.
type HistoryResponse struct {
	ProjectID string               `json:"project_id"`
	Messages  []domain.ChatMessage `json:"messages"`
}

// UploadResponse is the body of POST /api/v1/documents/upload. Success is
// true only when every file in the batch ingested.
type UploadResponse struct {
	Success bool                `json:"success"`
	Files   []domain.FileResult `json:"files"`
}

// WebIngestRequest is the body of POST /api/v1/documents/web.
type WebIngestRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
	URL       string `json:"url" validate:"required"`
}

// WebIngestResponse is the body of POST /api/v1/documents/web.
type WebIngestResponse struct {
	Success bool              `json:"success"`
	File    domain.FileResult `json:"file"`
}

// DeleteDocumentResponse is the body of DELETE /api/v1/documents/{document_id}.
type DeleteDocumentResponse struct {
	DocumentID    string `json:"document_id"`
	ChunksRemoved int64  `json:"chunks_removed"`
}

// EmailSetupRequest is the body of POST /api/v1/email/setup. Dates are
// RFC 3339 and optional.
type EmailSetupRequest struct {
	ProjectID       string     `json:"project_id" validate:"required"`
	IMAPServer      string     `json:"imap_server" validate:"required"`
	Email           string     `json:"email" validate:"required,email"`
	Password        string     `json:"password" validate:"required"`
	SenderFilter    string     `json:"sender_filter"`
	SubjectKeywords []string   `json:"subject_keywords"`
	StartDate       *time.Time `json:"start_date"`
	EndDate         *time.Time `json:"end_date"`
}

// EmailSetupResponse is the body of POST /api/v1/email/setup.
type EmailSetupResponse struct {
	Success bool   `json:"success"`
	State   string `json:"state"`
}

// ProjectRequest is the body of the email ingest and summarize endpoints.
type ProjectRequest struct {
	ProjectID string `json:"project_id" validate:"required"`
}

// EmailIngestResponse is the body of POST /api/v1/email/ingest.
type EmailIngestResponse struct {
	Count    int      `json:"count"`
	Subjects []string `json:"subjects"`
}

// EmailSummarizeResponse is the body of POST /api/v1/email/summarize.
type EmailSummarizeResponse struct {
	Success   bool                  `json:"success"`
	Count     int                   `json:"count"`
	Summaries []domain.EmailSummary `json:"summaries"`
}

// EmailSummariesResponse is the body of GET /api/v1/email/summaries/{project_id}.
type EmailSummariesResponse struct {
	ProjectID string                `json:"project_id"`
	Summaries []domain.EmailSummary `json:"summaries"`
}

// HealthResponse reports service and dependency status.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
