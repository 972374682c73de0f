package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
	rl "github.com/programisto-labs/edrm-mailer/internal/platform/ratelimit"
	"github.com/programisto-labs/edrm-mailer/internal/platform/validation"
)

// Controller exposes the dispatch endpoints plus the message/template
// listing surface. Authorization is left to the deployment's gateway.
type Controller struct {
	svc       domain.Service
	messages  domain.MessageRepository
	templates domain.TemplateRepository
	rlStore   rl.Store
	log       zerolog.Logger
}

func New(svc domain.Service, messages domain.MessageRepository, templates domain.TemplateRepository) *Controller {
	return &Controller{svc: svc, messages: messages, templates: templates, log: zerolog.Nop()}
}

// WithRateLimit injects a shared Store for distributed rate limiting.
func (h *Controller) WithRateLimit(store rl.Store) *Controller { h.rlStore = store; return h }

// SetLogger sets the logger for the controller.
func (h *Controller) SetLogger(log zerolog.Logger) { h.log = log }

// RegisterV1 mounts the mailer endpoints under the given group.
func (h *Controller) RegisterV1(g *echo.Group) {
	sendPolicy := rl.Policy{Name: "mail:send", Window: time.Minute, Limit: 30, Key: rl.KeyEntityOrIP("mail:send")}
	resendPolicy := rl.Policy{Name: "mail:resend", Window: time.Minute, Limit: 10, Key: rl.KeyEntityOrIP("mail:resend")}

	var sendRL, resendRL echo.MiddlewareFunc
	if h.rlStore != nil {
		sendRL = rl.MiddlewareWithStore(sendPolicy, h.rlStore)
		resendRL = rl.MiddlewareWithStore(resendPolicy, h.rlStore)
	} else {
		sendRL = rl.Middleware(sendPolicy)
		resendRL = rl.Middleware(resendPolicy)
	}

	g.POST("/mail/send", h.send, sendRL)
	g.POST("/mail/messages/:id/resend", h.resend, resendRL)
	g.GET("/mail/messages", h.listMessages)
	g.GET("/mail/messages/:id", h.getMessage)

	g.GET("/mail/templates", h.listTemplates)
	g.GET("/mail/templates/:id", h.getTemplate)
	g.POST("/mail/templates", h.createTemplate)
	g.PUT("/mail/templates/:id", h.updateTemplate)
	g.DELETE("/mail/templates/:id", h.deleteTemplate)
}

type sendRequest struct {
	Template          string                 `json:"template" validate:"required"`
	To                string                 `json:"to" validate:"required"`
	Subject           string                 `json:"subject"`
	Data              map[string]any         `json:"data" validate:"required"`
	EmailUser         string                 `json:"emailUser"`
	EmailPassword     string                 `json:"emailPassword"`
	EntityID          *uuid.UUID             `json:"entityId"`
	AttachmentURLs    []domain.AttachmentURL `json:"attachmentUrls"`
	AttachmentFileIDs []string               `json:"attachmentFileIds"`
}

func (h *Controller) send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, validation.ErrorResponse(err))
	}

	result, err := h.svc.SendFromTemplate(c.Request().Context(), domain.DispatchRequest{
		Template:          req.Template,
		To:                req.To,
		Subject:           req.Subject,
		Data:              req.Data,
		EmailUser:         req.EmailUser,
		EmailPassword:     req.EmailPassword,
		EntityID:          req.EntityID,
		AttachmentURLs:    req.AttachmentURLs,
		AttachmentFileIDs: req.AttachmentFileIDs,
	})
	if err != nil {
		return h.preflightError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type resendRequest struct {
	EmailUser     string `json:"emailUser"`
	EmailPassword string `json:"emailPassword"`
}

func (h *Controller) resend(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message id"})
	}
	var req resendRequest
	// Body is optional; override credentials only when provided.
	_ = c.Bind(&req)

	result, err := h.svc.Resend(c.Request().Context(), id, req.EmailUser, req.EmailPassword)
	if err != nil {
		var notFound domain.MessageNotFoundError
		if errors.As(err, &notFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return h.preflightError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Controller) preflightError(c echo.Context, err error) error {
	var verr domain.ValidationError
	if errors.As(err, &verr) || errors.Is(err, domain.ErrCredentialsMissing) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	h.log.Error().Err(err).Msg("dispatch failed")
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

type paginationMeta struct {
	CurrentPage     int   `json:"currentPage"`
	TotalPages      int   `json:"totalPages"`
	TotalItems      int64 `json:"totalItems"`
	ItemsPerPage    int   `json:"itemsPerPage"`
	HasNextPage     bool  `json:"hasNextPage"`
	HasPreviousPage bool  `json:"hasPreviousPage"`
}

type listResponse struct {
	Data       any            `json:"data"`
	Pagination paginationMeta `json:"pagination"`
}

func paginate(page, limit int, total int64, data any) listResponse {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return listResponse{
		Data: data,
		Pagination: paginationMeta{
			CurrentPage:     page,
			TotalPages:      totalPages,
			TotalItems:      total,
			ItemsPerPage:    limit,
			HasNextPage:     page < totalPages,
			HasPreviousPage: page > 1,
		},
	}
}

func intQuery(c echo.Context, name string, def int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (h *Controller) listMessages(c echo.Context) error {
	q := domain.ListMessagesQuery{
		Page:      intQuery(c, "page", 1),
		Limit:     intQuery(c, "limit", 10),
		Search:    c.QueryParam("search"),
		Template:  c.QueryParam("template"),
		From:      c.QueryParam("from"),
		To:        c.QueryParam("to"),
		SortBy:    c.QueryParam("sortBy"),
		SortOrder: c.QueryParam("sortOrder"),
	}
	items, total, err := h.messages.List(c.Request().Context(), q)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list mail messages")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, paginate(q.Page, q.Limit, total, items))
}

func (h *Controller) getMessage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message id"})
	}
	m, err := h.messages.GetByID(c.Request().Context(), id)
	if err != nil {
		var notFound domain.MessageNotFoundError
		if errors.As(err, &notFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		h.log.Error().Err(err).Msg("failed to load mail message")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, m)
}

type templateRequest struct {
	Name     string     `json:"name" validate:"required"`
	Subject  string     `json:"subject" validate:"required"`
	Body     string     `json:"body" validate:"required"`
	Category string     `json:"category"`
	EntityID *uuid.UUID `json:"entityId"`
}

func (h *Controller) listTemplates(c echo.Context) error {
	q := domain.ListTemplatesQuery{
		Page:      intQuery(c, "page", 1),
		Limit:     intQuery(c, "limit", 10),
		Search:    c.QueryParam("search"),
		Category:  c.QueryParam("category"),
		SortBy:    c.QueryParam("sortBy"),
		SortOrder: c.QueryParam("sortOrder"),
	}
	items, total, err := h.templates.List(c.Request().Context(), q)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list mail templates")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, paginate(q.Page, q.Limit, total, items))
}

func (h *Controller) getTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid template id"})
	}
	t, err := h.templates.GetByID(c.Request().Context(), id)
	if err != nil {
		var notFound domain.TemplateNotFoundError
		if errors.As(err, &notFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		h.log.Error().Err(err).Msg("failed to load mail template")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Controller) createTemplate(c echo.Context) error {
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, validation.ErrorResponse(err))
	}
	t := domain.Template{
		Name:     req.Name,
		Subject:  req.Subject,
		Body:     req.Body,
		Category: req.Category,
		EntityID: req.EntityID,
	}
	if err := h.templates.Create(c.Request().Context(), &t); err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("failed to create mail template")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Controller) updateTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid template id"})
	}
	var req templateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, validation.ErrorResponse(err))
	}
	t := domain.Template{
		ID:       id,
		Name:     req.Name,
		Subject:  req.Subject,
		Body:     req.Body,
		Category: req.Category,
		EntityID: req.EntityID,
	}
	if err := h.templates.Update(c.Request().Context(), &t); err != nil {
		var notFound domain.TemplateNotFoundError
		if errors.As(err, &notFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		h.log.Error().Err(err).Str("name", req.Name).Msg("failed to update mail template")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Controller) deleteTemplate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid template id"})
	}
	if err := h.templates.Delete(c.Request().Context(), id); err != nil {
		var notFound domain.TemplateNotFoundError
		if errors.As(err, &notFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		h.log.Error().Err(err).Msg("failed to delete mail template")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
	return c.NoContent(http.StatusNoContent)
}
