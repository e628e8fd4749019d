package documents

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/barangaykms/barangaykms/internal/observability"
	"github.com/barangaykms/barangaykms/internal/platform/httpx"
	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
	"github.com/barangaykms/barangaykms/internal/view"
)

// Handler serves the document library pages and the JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	tenancyMW tenancy.Middleware
	metrics   *observability.Metrics
	maxBytes  int64
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, tenancyMW tenancy.Middleware, metrics *observability.Metrics, maxBytes int64) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, tenancyMW: tenancyMW, metrics: metrics, maxBytes: maxBytes}
}

type formErrors map[string]string

// MountRoutes registers the server-rendered routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}/download", h.download)
	r.Group(func(r chi.Router) {
		r.Use(h.tenancyMW.RequireModify)
		r.Get("/new", h.showForm)
		r.Post("/", h.upload)
		r.Get("/{id}/edit", h.showForm)
		r.Post("/{id}", h.update)
		r.Post("/{id}/archive", h.archive)
		r.Post("/{id}/restore", h.restore)
	})
}

// MountAPIRoutes registers the JSON API routes.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Get("/", h.apiList)
	r.Get("/{id}", h.apiGet)
	r.Get("/{id}/download", h.download)
	r.Group(func(r chi.Router) {
		r.Use(h.tenancyMW.RequireModifyAPI)
		r.Post("/", h.apiUpload)
		r.Put("/{id}", h.apiUpdate)
		r.Post("/{id}/archive", h.apiArchive)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	filters := ListFilters{
		Search:          r.URL.Query().Get("q"),
		Category:        Category(r.URL.Query().Get("category")),
		IncludeArchived: r.URL.Query().Get("archived") == "1",
		Page:            pageParam(r),
		PerPage:         20,
	}
	items, total, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("list documents", slog.Any("error", err))
		h.render(w, r, "pages/documents/list.html", map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}, "CategoryFilter": "", "Search": ""}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/documents/list.html", map[string]any{
		"Documents":      items,
		"Search":         filters.Search,
		"CategoryFilter": string(filters.Category),
		"ShowArchived":   filters.IncludeArchived,
		"CanModify":      tenancy.CanModify(p),
		"Pagination":     shared.NewPagination(filters.Page, filters.PerPage, total),
	}, http.StatusOK)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	d, rc, err := h.service.Open(r.Context(), p, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("open document", slog.Int64("id", id), slog.Any("error", err))
		http.Error(w, "download failed", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	ct := d.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(d.SizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": d.OriginalName}))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream document", slog.Int64("id", id), slog.Any("error", err))
	}
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	d := Document{Category: CategoryOther}
	action := "/documents"
	if raw := chi.URLParam(r, "id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		d, err = h.service.Get(r.Context(), p, id)
		if err != nil {
			h.redirectWithFlash(w, r, "/documents", "error", shared.UserSafeMessage(err))
			return
		}
		action = "/documents/" + raw
	}
	h.render(w, r, "pages/documents/form.html", map[string]any{
		"Document": d,
		"Action":   action,
		"IsEdit":   d.ID != 0,
		"Errors":   formErrors{},
	}, http.StatusOK)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.redirectWithFlash(w, r, "/documents/new", "error", "The upload is too large or the form is invalid.")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.redirectWithFlash(w, r, "/documents/new", "error", "Choose a file to upload.")
		return
	}
	defer file.Close()

	_, err = h.service.Upload(r.Context(), p, UploadInput{
		Title:        r.PostFormValue("title"),
		Category:     ParseCategory(r.PostFormValue("category")),
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Content:      file,
	})
	if err != nil {
		h.writeError(w, r, err, "/documents/new")
		return
	}
	h.redirectWithFlash(w, r, "/documents", "success", "Document uploaded")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.redirectWithFlash(w, r, "/documents", "error", "Invalid form submission.")
		return
	}
	_, err = h.service.UpdateMeta(r.Context(), p, id, MetaInput{
		Title:    r.PostFormValue("title"),
		Category: ParseCategory(r.PostFormValue("category")),
	})
	if err != nil {
		h.writeError(w, r, err, "/documents")
		return
	}
	h.redirectWithFlash(w, r, "/documents", "success", "Document updated")
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *Handler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if archived {
		err = h.service.Archive(r.Context(), p, id)
	} else {
		err = h.service.Restore(r.Context(), p, id)
	}
	if err != nil {
		h.writeError(w, r, err, "/documents")
		return
	}
	msg := "Document archived"
	if !archived {
		msg = "Document restored"
	}
	h.redirectWithFlash(w, r, "/documents", "success", msg)
}

// API

type metaPayload struct {
	Title    string `json:"title" validate:"required,max=200"`
	Category string `json:"category"`
}

func (h *Handler) apiList(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	filters := ListFilters{
		Search:          r.URL.Query().Get("q"),
		Category:        Category(r.URL.Query().Get("category")),
		IncludeArchived: r.URL.Query().Get("archived") == "1",
		Page:            pageParam(r),
		PerPage:         20,
	}
	items, total, err := h.service.List(r.Context(), p, filters)
	if err != nil {
		h.logger.Error("api list documents", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Document{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) apiGet(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	d, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

// apiUpload accepts the same multipart form as the HTML page.
func (h *Handler) apiUpload(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "upload exceeds the size limit")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	d, err := h.service.Upload(r.Context(), p, UploadInput{
		Title:        r.PostFormValue("title"),
		Category:     ParseCategory(r.PostFormValue("category")),
		OriginalName: header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Content:      file,
	})
	if err != nil {
		h.respondAPIError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) apiUpdate(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	var payload metaPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	d, err := h.service.UpdateMeta(r.Context(), p, id, MetaInput{
		Title:    payload.Title,
		Category: ParseCategory(payload.Category),
	})
	if err != nil {
		h.respondAPIError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) apiArchive(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	if err := h.service.Archive(r.Context(), p, id); err != nil {
		h.respondAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondAPIError(w http.ResponseWriter, err error) {
	var pe *tenancy.PermissionError
	if errors.As(err, &pe) {
		h.metrics.CountDeniedWrite(string(pe.Reason))
		httpx.Problem(w, http.StatusForbidden, "Forbidden", string(pe.Reason))
		return
	}
	if errors.Is(err, ErrFileTooLarge) {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "upload exceeds the size limit")
		return
	}
	httpx.RespondError(w, err)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, location string) {
	var pe *tenancy.PermissionError
	if errors.As(err, &pe) {
		h.metrics.CountDeniedWrite(string(pe.Reason))
		h.redirectWithFlash(w, r, location, "error", "You are not allowed to do that: "+string(pe.Reason))
		return
	}
	h.redirectWithFlash(w, r, location, "error", shared.UserSafeMessage(err))
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Documents", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func pageParam(r *http.Request) int {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	return page
}
