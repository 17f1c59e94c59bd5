package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"tenderlens/internal/analytics"
	"tenderlens/internal/timewindow"
	"tenderlens/models"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

type PaginationParams struct {
	Page     int
	PageSize int
}

func (p PaginationParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// parsePaginationParams парсит page и pageSize из query, с дефолтами и ограничениями
func parsePaginationParams(r *http.Request) PaginationParams {
	params := PaginationParams{Page: 1, PageSize: defaultPageSize}

	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		params.Page = p
	}
	if s, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && s > 0 {
		params.PageSize = min(s, maxPageSize)
	}
	return params
}

func parseFilters(r *http.Request) analytics.Filters {
	q := r.URL.Query()
	area := q.Get("area")
	if area == "" {
		// старые клиенты присылают region
		area = q.Get("region")
	}
	return analytics.Filters{
		TimeRange: q.Get("timeRange"),
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		Area:      area,
		Industry:  q.Get("industry"),
	}.Normalize()
}

func tenantOf(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, ok := TenantFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return tenantID, ok
}

type dashboardResponse struct {
	Success bool              `json:"success"`
	Filters analytics.Filters `json:"filters"`
	*analytics.Result
}

// DashboardDataHandler обрабатывает GET /api/dashboard/data, все семь представлений
func (h *Handler) DashboardDataHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}
	filters := parseFilters(r)

	res, err := h.Dashboard.Get(r.Context(), tenantID, filters)
	if err != nil {
		h.writeDashboardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{Success: true, Filters: filters, Result: res})
}

// DashboardViewHandler обрабатывает GET /api/dashboard/views/{kind}
func (h *Handler) DashboardViewHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}
	kind, err := analytics.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	view, err := h.Dashboard.View(r.Context(), tenantID, parseFilters(r), kind)
	if err != nil {
		h.writeDashboardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) writeDashboardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, timewindow.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, analytics.ErrUnknownKind):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.Log.WithError(err).Error("dashboard request failed")
		writeError(w, http.StatusInternalServerError, "failed to load dashboard data")
	}
}

// ProjectView строка списка проектов
type ProjectView struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Area        string           `json:"area"`
	City        string           `json:"city"`
	Buyer       string           `json:"buyer"`
	Industry    string           `json:"industry"`
	Winner      string           `json:"winner"`
	PublishTime int64            `json:"publishTime"`
	PublishDate string           `json:"publishDate"`
	BidOpenTime *int64           `json:"bidOpenTime"`
	BidEndTime  *int64           `json:"bidEndTime"`
	Budget      *decimal.Decimal `json:"budget"`
	BidAmount   *decimal.Decimal `json:"bidAmount"`
}

type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

type projectsResponse struct {
	Projects   []ProjectView `json:"projects"`
	Pagination Pagination    `json:"pagination"`
}

func newPagination(p PaginationParams, total int) Pagination {
	totalPages := (total + p.PageSize - 1) / p.PageSize
	return Pagination{
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
		HasPrev:    p.Page > 1,
	}
}

func nullableAmount(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func toProjectView(rec models.TenderRecord, loc *time.Location) ProjectView {
	return ProjectView{
		ID:          rec.ID,
		Title:       rec.Title,
		Area:        rec.Area,
		City:        rec.City,
		Buyer:       rec.Buyer,
		Industry:    rec.Industry,
		Winner:      rec.Winner,
		PublishTime: rec.PublishTime,
		PublishDate: time.Unix(rec.PublishTime, 0).In(loc).Format("2006-01-02"),
		BidOpenTime: rec.BidOpenTime,
		BidEndTime:  rec.BidEndTime,
		Budget:      nullableAmount(rec.Budget),
		BidAmount:   nullableAmount(rec.BidAmount),
	}
}

// ProjectsHandler обрабатывает GET /api/dashboard/projects
func (h *Handler) ProjectsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}
	filters := parseFilters(r)
	win, err := h.Dashboard.Window(filters)
	if err != nil {
		h.writeDashboardError(w, err)
		return
	}
	params := parsePaginationParams(r)

	records, total, err := h.Store.ListTenders(r.Context(), models.ProjectFilter{
		TenantID: tenantID,
		From:     win.StartUnix(),
		To:       win.EndUnix(),
		Area:     filters.AreaFilter(),
		Industry: filters.IndustryFilter(),
		Search:   r.URL.Query().Get("search"),
		Limit:    params.PageSize,
		Offset:   params.Offset(),
	})
	if err != nil {
		h.Log.WithError(err).WithField("tenant_id", tenantID).Error("list projects failed")
		writeError(w, http.StatusInternalServerError, "failed to load projects")
		return
	}

	projects := make([]ProjectView, 0, len(records))
	for _, rec := range records {
		projects = append(projects, toProjectView(rec, win.Location()))
	}
	writeJSON(w, http.StatusOK, projectsResponse{
		Projects:   projects,
		Pagination: newPagination(params, total),
	})
}

// FiltersHandler обрабатывает GET /api/dashboard/filters
func (h *Handler) FiltersHandler(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantOf(w, r)
	if !ok {
		return
	}
	opts, err := h.Store.FilterOptions(r.Context(), tenantID)
	if err != nil {
		h.Log.WithError(err).WithField("tenant_id", tenantID).Error("load filter options failed")
		writeError(w, http.StatusInternalServerError, "failed to load filter options")
		return
	}
	writeJSON(w, http.StatusOK, opts)
}
