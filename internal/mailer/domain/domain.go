package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Template is a named mail template, optionally scoped to an entity.
// Templates are managed by the CRUD surface and read-only for the dispatch
// pipeline.
type Template struct {
	ID        uuid.UUID  `json:"id"`
	EntityID  *uuid.UUID `json:"entityId,omitempty"`
	Name      string     `json:"name"`
	Subject   string     `json:"subject"`
	Body      string     `json:"body"`
	Category  string     `json:"category"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Message is the persisted record of one rendered notification.
// Body holds the fully rendered text and never changes after creation.
// SentAt moves from nil to a timestamp on delivery confirmation and is never
// cleared; repeated resends overwrite it with the latest attempt's time.
type Message struct {
	ID         uuid.UUID  `json:"id"`
	TemplateID *uuid.UUID `json:"template,omitempty"`
	EntityID   *uuid.UUID `json:"entityId,omitempty"`
	To         string     `json:"to"`
	From       string     `json:"from"`
	Subject    string     `json:"subject"`
	Body       string     `json:"body"`
	SentAt     *time.Time `json:"sentAt"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// AttachmentURL is the caller-supplied descriptor for the URL strategy.
type AttachmentURL struct {
	URL         string `json:"url"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// Attachment is the uniform descriptor consumed by the transport.
// Either Content carries the raw bytes (file-store strategy) or URL points at
// a remote resource the provider fetches itself (URL strategy).
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
	URL         string
}

// DispatchRequest is the input of the dispatch pipeline, consumed from a
// direct HTTP call or from a SEND_EMAIL event payload.
type DispatchRequest struct {
	Template          string         `json:"template"`
	To                string         `json:"to"`
	Subject           string         `json:"subject,omitempty"`
	Data              map[string]any `json:"data"`
	EmailUser         string         `json:"emailUser,omitempty"`
	EmailPassword     string         `json:"emailPassword,omitempty"`
	EntityID          *uuid.UUID     `json:"entityId,omitempty"`
	AttachmentURLs    []AttachmentURL `json:"attachmentUrls,omitempty"`
	AttachmentFileIDs []string        `json:"attachmentFileIds,omitempty"`
}

// DispatchResult reports the outcome of a dispatch or resend call.
type DispatchResult struct {
	Success       bool   `json:"success"`
	MailMessageID string `json:"mailMessageId,omitempty"`
	Info          string `json:"info,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Credentials is a resolved sender credential pair.
type Credentials struct {
	User     string
	Password string
}

// OutboundMail is a fully composed message handed to a transport provider.
type OutboundMail struct {
	From        string
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Sender delivers a composed mail and returns provider info (message id or
// equivalent) on success.
type Sender interface {
	Send(ctx context.Context, creds Credentials, mail OutboundMail) (string, error)
}

// FileDownload is the result of fetching one file from the remote store.
type FileDownload struct {
	Filename    string
	ContentType string
	Content     []byte
}

// FileStore fetches file content from the remote storage collaborator.
type FileStore interface {
	Download(ctx context.Context, fileID string) (FileDownload, error)
}

// TemplateRepository reads and manages templates. Resolve honors the
// three-tier fallback: entity-scoped match, then global (no entity), then a
// bare lookup by name for deployments that never adopted entity scoping.
type TemplateRepository interface {
	Resolve(ctx context.Context, name string, entityID *uuid.UUID) (Template, error)
	GetByID(ctx context.Context, id uuid.UUID) (Template, error)
	Create(ctx context.Context, t *Template) error
	Update(ctx context.Context, t *Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, q ListTemplatesQuery) ([]Template, int64, error)
}

// MessageRepository persists the audit record of each dispatch attempt.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id uuid.UUID) (Message, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	List(ctx context.Context, q ListMessagesQuery) ([]Message, int64, error)
}

// ListMessagesQuery mirrors the filtering and pagination of the messages
// listing endpoint.
type ListMessagesQuery struct {
	Page      int
	Limit     int
	Search    string
	Template  string
	From      string
	To        string
	SortBy    string
	SortOrder string
}

// ListTemplatesQuery mirrors the filtering and pagination of the templates
// listing endpoint.
type ListTemplatesQuery struct {
	Page      int
	Limit     int
	Search    string
	Category  string
	SortBy    string
	SortOrder string
}

// Service is the dispatch coordinator surface consumed by the HTTP layer and
// the event dispatcher.
type Service interface {
	SendFromTemplate(ctx context.Context, req DispatchRequest) (DispatchResult, error)
	Resend(ctx context.Context, messageID uuid.UUID, emailUser, emailPassword string) (DispatchResult, error)
}

// ErrCredentialsMissing signals that no usable sender credentials resolved
// from the call or the environment. Detected before template lookup.
var ErrCredentialsMissing = errors.New("email credentials are missing")

// ValidationError reports a required request field that is missing.
// Raised before any I/O.
type ValidationError struct {
	Field string
}

func (e ValidationError) Error() string { return e.Field + " is required but not provided" }

// TemplateNotFoundError reports a lookup miss after all fallback tiers.
type TemplateNotFoundError struct {
	Name string
}

func (e TemplateNotFoundError) Error() string {
	return "template '" + e.Name + "' not found"
}

// MessageNotFoundError reports an unknown message identifier on resend.
type MessageNotFoundError struct {
	ID uuid.UUID
}

func (e MessageNotFoundError) Error() string {
	return "mail message '" + e.ID.String() + "' not found"
}

// PersistenceError wraps a failed create or update of the audit record.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string { return "persistence failed (" + e.Op + "): " + e.Err.Error() }

func (e PersistenceError) Unwrap() error { return e.Err }
