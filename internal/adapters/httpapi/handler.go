package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atviraknyga/bookapi/internal/core/domain"
	"github.com/atviraknyga/bookapi/internal/core/usecase"
	"github.com/atviraknyga/bookapi/internal/requestctx"
)

const (
	timeFormat      = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize = 1 << 20
)

type Handler struct {
	bookService  *usecase.BookService
	auditService *usecase.AuditService
	authService  *usecase.AuthService
}

func NewHandler(bookService *usecase.BookService, auditService *usecase.AuditService, authService *usecase.AuthService) *Handler {
	return &Handler{bookService: bookService, auditService: auditService, authService: authService}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.bindRequestContext)
	r.Get("/healthz", h.healthz)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Post("/v1/auth/login", h.login)

		pr.Post("/v1/books", h.createBook)
		pr.Get("/v1/books", h.listBooks)
		pr.Get("/v1/books/{id}", h.getBook)
		pr.Patch("/v1/books/{id}", h.updateBook)
		pr.Delete("/v1/books/{id}", h.deleteBook)
		pr.Post("/v1/books/{id}/restore", h.restoreBook)

		pr.Get("/v1/audit", h.queryAudit)
		pr.Get("/v1/audit/entities", h.trackedEntities)
		pr.Get("/v1/audit/{id}", h.getAuditEntry)
	})

	return r
}

type createBookRequest struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	ISBN          string   `json:"isbn"`
	PublishedYear int      `json:"published_year"`
	Description   string   `json:"description"`
	InternalNotes string   `json:"internal_notes"`
}

type patchBookRequest struct {
	Title         *string   `json:"title"`
	Authors       *[]string `json:"authors"`
	ISBN          *string   `json:"isbn"`
	PublishedYear *int      `json:"published_year"`
	Description   *string   `json:"description"`
	InternalNotes *string   `json:"internal_notes"`
}

type bookResponse struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	ISBN          string   `json:"isbn,omitempty"`
	PublishedYear int      `json:"published_year,omitempty"`
	Description   string   `json:"description,omitempty"`
	InternalNotes string   `json:"internal_notes,omitempty"`
	CreatedByID   string   `json:"created_by_id"`
	UpdatedByID   string   `json:"updated_by_id"`
	IsDeleted     bool     `json:"is_deleted"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

type auditEntryResponse struct {
	ID            string       `json:"id"`
	Timestamp     string       `json:"timestamp"`
	Entity        string       `json:"entity"`
	EntityID      string       `json:"entity_id"`
	Action        string       `json:"action"`
	ActorID       string       `json:"actor_id"`
	RequestID     string       `json:"request_id,omitempty"`
	Diff          *domain.Diff `json:"diff,omitempty"`
	FieldsChanged []string     `json:"fields_changed,omitempty"`
}

type pageResponse struct {
	Items      any    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

func (h *Handler) createBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	book, err := h.bookService.Create(r.Context(), domain.Book{
		Title:         req.Title,
		Authors:       req.Authors,
		ISBN:          req.ISBN,
		PublishedYear: req.PublishedYear,
		Description:   req.Description,
		InternalNotes: req.InternalNotes,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toBookResponse(book))
}

func (h *Handler) getBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.bookService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(book))
}

func (h *Handler) updateBook(w http.ResponseWriter, r *http.Request) {
	var req patchBookRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	book, err := h.bookService.Update(r.Context(), chi.URLParam(r, "id"), domain.BookPatch{
		Title:         req.Title,
		Authors:       req.Authors,
		ISBN:          req.ISBN,
		PublishedYear: req.PublishedYear,
		Description:   req.Description,
		InternalNotes: req.InternalNotes,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toBookResponse(book))
}

func (h *Handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.bookService.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(book))
}

func (h *Handler) restoreBook(w http.ResponseWriter, r *http.Request) {
	book, err := h.bookService.Restore(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookResponse(book))
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	filter := domain.BookListFilter{
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
		Limit:          limit,
	}
	if cursor, ok := domain.DecodeCursor(r.URL.Query().Get("cursor")); ok {
		filter.Cursor = &cursor
	}

	page, err := h.bookService.List(r.Context(), filter)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	items := make([]bookResponse, 0, len(page.Items))
	for _, book := range page.Items {
		items = append(items, toBookResponse(book))
	}
	writeJSON(w, http.StatusOK, pageResponse{Items: items, NextCursor: page.NextCursor, HasMore: page.HasMore})
}

func (h *Handler) queryAudit(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := domain.AuditFilter{
		Entity:    q.Get("entity"),
		EntityID:  q.Get("entity_id"),
		ActorID:   q.Get("actor_id"),
		RequestID: q.Get("request_id"),
		Limit:     limit,
	}
	if raw := q.Get("action"); raw != "" {
		action, err := domain.ParseAction(raw)
		if err != nil {
			handleDomainError(w, err)
			return
		}
		filter.Action = action
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		filter.To = &to
	}
	if raw := strings.TrimSpace(q.Get("fields_changed")); raw != "" {
		for _, field := range strings.Split(raw, ",") {
			if field = strings.TrimSpace(field); field != "" {
				filter.FieldsChanged = append(filter.FieldsChanged, field)
			}
		}
	}
	if cursor, ok := domain.DecodeCursor(q.Get("cursor")); ok {
		filter.Cursor = &cursor
	}

	page, err := h.auditService.Query(r.Context(), filter)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	items := make([]auditEntryResponse, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, toAuditEntryResponse(entry))
	}
	writeJSON(w, http.StatusOK, pageResponse{Items: items, NextCursor: page.NextCursor, HasMore: page.HasMore})
}

func (h *Handler) getAuditEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.auditService.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditEntryResponse(entry))
}

func (h *Handler) trackedEntities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entities": h.auditService.TrackedEntities()})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	userID := requestctx.ActorID(r.Context())
	if _, err := h.authService.RecordLogin(r.Context(), userID); err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":    userID,
		"request_id": requestctx.RequestID(r.Context()),
	})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func toBookResponse(book domain.Book) bookResponse {
	return bookResponse{
		ID:            book.ID,
		Title:         book.Title,
		Authors:       book.Authors,
		ISBN:          book.ISBN,
		PublishedYear: book.PublishedYear,
		Description:   book.Description,
		InternalNotes: book.InternalNotes,
		CreatedByID:   book.CreatedByID,
		UpdatedByID:   book.UpdatedByID,
		IsDeleted:     book.IsDeleted,
		CreatedAt:     book.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:     book.UpdatedAt.UTC().Format(timeFormat),
	}
}

func toAuditEntryResponse(entry domain.AuditEntry) auditEntryResponse {
	return auditEntryResponse{
		ID:            entry.ID,
		Timestamp:     entry.Timestamp.UTC().Format(timeFormat),
		Entity:        entry.Entity,
		EntityID:      entry.EntityID,
		Action:        string(entry.Action),
		ActorID:       entry.ActorID,
		RequestID:     entry.RequestID,
		Diff:          entry.Diff,
		FieldsChanged: entry.FieldsChanged,
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		slog.Error("encode json response", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		slog.Error("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidBook), errors.Is(err, domain.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyDeleted), errors.Is(err, domain.ErrNotDeleted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, usecase.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	default:
		slog.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}
