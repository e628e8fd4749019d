package knowledge

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/barangaykms/barangaykms/internal/observability"
	"github.com/barangaykms/barangaykms/internal/platform/httpx"
	"github.com/barangaykms/barangaykms/internal/shared"
	"github.com/barangaykms/barangaykms/internal/tenancy"
	"github.com/barangaykms/barangaykms/internal/view"
)

// Handler serves the knowledge pages and the JSON API. Every route is
// parameterised by kind so policies, best practices and lessons share one
// code path.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	templates   *view.Engine
	csrf        *shared.CSRFManager
	tenancyMW   tenancy.Middleware
	metrics     *observability.Metrics
	idempotency *shared.IdempotencyStore
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, tenancyMW tenancy.Middleware, metrics *observability.Metrics, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, tenancyMW: tenancyMW, metrics: metrics, idempotency: idempotency}
}

type formErrors map[string]string

// MountRoutes registers the server-rendered routes under /knowledge.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/{kind}", func(r chi.Router) {
		r.Use(h.requireKind)
		r.Get("/", h.list)
		r.Get("/{id}", h.detail)
		r.Group(func(r chi.Router) {
			r.Use(h.tenancyMW.RequireModify)
			r.Get("/new", h.showForm)
			r.Post("/", h.create)
			r.Get("/{id}/edit", h.showForm)
			r.Post("/{id}", h.update)
			r.Post("/{id}/approve", h.approve)
			r.Post("/{id}/reject", h.reject)
			r.Post("/{id}/archive", h.archive)
			r.Post("/{id}/restore", h.restore)
		})
	})
}

// MountAPIRoutes registers the JSON API routes.
func (h *Handler) MountAPIRoutes(r chi.Router) {
	r.Route("/{kind}", func(r chi.Router) {
		r.Use(h.requireKind)
		r.Get("/", h.apiList)
		r.Get("/{id}", h.apiGet)
		r.Get("/{id}/history", h.apiHistory)
		r.Group(func(r chi.Router) {
			r.Use(h.tenancyMW.RequireModifyAPI)
			r.Post("/", h.apiCreate)
			r.Put("/{id}", h.apiUpdate)
			r.Post("/{id}/approve", h.apiApprove)
			r.Post("/{id}/reject", h.apiReject)
			r.Post("/{id}/archive", h.apiArchive)
		})
	})
}

// requireKind rejects routes whose kind segment is not a known entry kind.
func (h *Handler) requireKind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ParseKind(chi.URLParam(r, "kind")); !ok {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func kindParam(r *http.Request) Kind {
	k, _ := ParseKind(chi.URLParam(r, "kind"))
	return k
}

func (h *Handler) basePath(r *http.Request) string {
	return "/knowledge/" + string(kindParam(r))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	kind := kindParam(r)
	filters := ListFilters{
		Search:          r.URL.Query().Get("q"),
		Status:          Status(r.URL.Query().Get("status")),
		IncludeArchived: r.URL.Query().Get("archived") == "1",
		Page:            pageParam(r),
		PerPage:         20,
	}
	items, total, err := h.service.List(r.Context(), p, kind, filters)
	if err != nil {
		h.logger.Error("list knowledge entries", slog.String("kind", string(kind)), slog.Any("error", err))
		h.render(w, r, "pages/knowledge/list.html", kind, map[string]any{"Errors": formErrors{"general": shared.UserSafeMessage(err)}, "Status": "", "Search": ""}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/knowledge/list.html", kind, map[string]any{
		"Entries":      items,
		"Search":       filters.Search,
		"StatusFilter": string(filters.Status),
		"ShowArchived": filters.IncludeArchived,
		"CanModify":    tenancy.CanModify(p),
		"Pagination":   shared.NewPagination(filters.Page, filters.PerPage, total),
	}, http.StatusOK)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	kind := kindParam(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	e, err := h.service.Get(r.Context(), p, kind, id)
	if err != nil {
		h.redirectWithFlash(w, r, h.basePath(r), "error", shared.UserSafeMessage(err))
		return
	}
	history, err := h.service.History(r.Context(), p, kind, id)
	if err != nil {
		h.logger.Warn("load review history", slog.Int64("id", id), slog.Any("error", err))
	}
	h.render(w, r, "pages/knowledge/detail.html", kind, map[string]any{
		"Entry":     e,
		"History":   history,
		"CanModify": tenancy.CanModify(p),
		"CanReview": CanReview(p) && e.Status == StatusPending,
	}, http.StatusOK)
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	kind := kindParam(r)
	e := Entry{Kind: kind}
	action := h.basePath(r)
	if raw := chi.URLParam(r, "id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		e, err = h.service.Get(r.Context(), p, kind, id)
		if err != nil {
			h.redirectWithFlash(w, r, h.basePath(r), "error", shared.UserSafeMessage(err))
			return
		}
		action = h.basePath(r) + "/" + raw
	}
	h.render(w, r, "pages/knowledge/form.html", kind, map[string]any{
		"Entry":     e,
		"Action":    action,
		"TagsValue": strings.Join(e.Tags, ", "),
		"Errors":    formErrors{},
	}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	kind := kindParam(r)
	in, errs := h.bindForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/knowledge/form.html", kind, map[string]any{"Entry": Entry{Kind: kind, Title: in.Title, Summary: in.Summary, Body: in.Body}, "Action": h.basePath(r), "TagsValue": strings.Join(in.Tags, ", "), "Errors": errs}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Create(r.Context(), p, kind, in); err != nil {
		h.writeError(w, r, err, h.basePath(r))
		return
	}
	h.redirectWithFlash(w, r, h.basePath(r), "success", kind.Label()+" submitted for review")
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	kind := kindParam(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	in, errs := h.bindForm(r)
	if len(errs) > 0 {
		h.render(w, r, "pages/knowledge/form.html", kind, map[string]any{"Entry": Entry{ID: id, Kind: kind, Title: in.Title, Summary: in.Summary, Body: in.Body}, "Action": r.URL.Path, "TagsValue": strings.Join(in.Tags, ", "), "Errors": errs}, http.StatusBadRequest)
		return
	}
	if _, err := h.service.Update(r.Context(), p, kind, id, in); err != nil {
		h.writeError(w, r, err, h.basePath(r))
		return
	}
	h.redirectWithFlash(w, r, h.basePath(r), "success", kind.Label()+" updated")
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.reviewAction(w, r, true)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.reviewAction(w, r, false)
}

func (h *Handler) reviewAction(w http.ResponseWriter, r *http.Request, approve bool) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	kind := kindParam(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	note := r.PostFormValue("note")
	detail := h.basePath(r) + "/" + chi.URLParam(r, "id")
	if approve {
		err = h.service.Approve(r.Context(), p, kind, id, note)
	} else {
		err = h.service.Reject(r.Context(), p, kind, id, note)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			h.redirectWithFlash(w, r, detail, "error", "Only pending entries can be reviewed.")
			return
		}
		h.writeError(w, r, err, detail)
		return
	}
	msg := kind.Label() + " approved"
	if !approve {
		msg = kind.Label() + " rejected"
	}
	h.redirectWithFlash(w, r, detail, "success", msg)
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *Handler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	kind := kindParam(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if archived {
		err = h.service.Archive(r.Context(), p, kind, id)
	} else {
		err = h.service.Restore(r.Context(), p, kind, id)
	}
	if err != nil {
		h.writeError(w, r, err, h.basePath(r))
		return
	}
	msg := kind.Label() + " archived"
	if !archived {
		msg = kind.Label() + " restored"
	}
	h.redirectWithFlash(w, r, h.basePath(r), "success", msg)
}

func (h *Handler) bindForm(r *http.Request) (Input, formErrors) {
	errs := formErrors{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Invalid form submission."
		return Input{}, errs
	}
	in := Input{
		Title:   r.PostFormValue("title"),
		Summary: r.PostFormValue("summary"),
		Body:    r.PostFormValue("body"),
		Tags:    splitTags(r.PostFormValue("tags")),
	}
	if strings.TrimSpace(in.Title) == "" {
		errs["Title"] = "Title is required."
	}
	if strings.TrimSpace(in.Body) == "" {
		errs["Body"] = "Body is required."
	}
	return in, errs
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// API

type entryPayload struct {
	Title   string   `json:"title" validate:"required,max=200"`
	Summary string   `json:"summary" validate:"max=500"`
	Body    string   `json:"body" validate:"required"`
	Tags    []string `json:"tags"`
}

type reviewPayload struct {
	Note string `json:"note"`
}

func (h *Handler) apiList(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	kind := kindParam(r)
	filters := ListFilters{
		Search:          r.URL.Query().Get("q"),
		Status:          Status(r.URL.Query().Get("status")),
		IncludeArchived: r.URL.Query().Get("archived") == "1",
		Page:            pageParam(r),
		PerPage:         20,
	}
	items, total, err := h.service.List(r.Context(), p, kind, filters)
	if err != nil {
		h.logger.Error("api list knowledge entries", slog.String("kind", string(kind)), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []Entry{}
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
	e, err := h.service.Get(r.Context(), p, kindParam(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) apiHistory(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	history, err := h.service.History(r.Context(), p, kindParam(r), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if history == nil {
		history = []shared.ApprovalLog{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": history})
}

func (h *Handler) apiCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	if key := r.Header.Get("Idempotency-Key"); key != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), key, "knowledge"); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	var payload entryPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	e, err := h.service.Create(r.Context(), p, kindParam(r), Input{
		Title:   payload.Title,
		Summary: payload.Summary,
		Body:    payload.Body,
		Tags:    payload.Tags,
	})
	if err != nil {
		h.respondAPIError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, e)
}

func (h *Handler) apiUpdate(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	var payload entryPayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	e, err := h.service.Update(r.Context(), p, kindParam(r), id, Input{
		Title:   payload.Title,
		Summary: payload.Summary,
		Body:    payload.Body,
		Tags:    payload.Tags,
	})
	if err != nil {
		h.respondAPIError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, e)
}

func (h *Handler) apiApprove(w http.ResponseWriter, r *http.Request) {
	h.apiReview(w, r, true)
}

func (h *Handler) apiReject(w http.ResponseWriter, r *http.Request) {
	h.apiReview(w, r, false)
}

func (h *Handler) apiReview(w http.ResponseWriter, r *http.Request, approve bool) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	var payload reviewPayload
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &payload); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
			return
		}
	}
	if approve {
		err = h.service.Approve(r.Context(), p, kindParam(r), id, payload.Note)
	} else {
		err = h.service.Reject(r.Context(), p, kindParam(r), id, payload.Note)
	}
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		h.respondAPIError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) apiArchive(w http.ResponseWriter, r *http.Request) {
	p, _ := tenancy.PrincipalFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "invalid id")
		return
	}
	if err := h.service.Archive(r.Context(), p, kindParam(r), id); err != nil {
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

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template string, kind Kind, data map[string]any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data["Kind"] = kind
	data["KindLabel"] = kind.Label()
	data["BasePath"] = "/knowledge/" + string(kind)
	viewData := view.TemplateData{Title: kind.Label(), CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
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
