package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/platform/httpx"
	"github.com/inkwell-books/api/internal/services"
)

// AdminDashboardHandlers exposes the admin overview figures and the audit
// log browser.
type AdminDashboardHandlers struct {
	dashboard services.DashboardService
	audits    services.AuditLogService
	clock     func() time.Time
}

// NewAdminDashboardHandlers constructs the admin dashboard endpoints.
func NewAdminDashboardHandlers(dashboard services.DashboardService, audits services.AuditLogService) *AdminDashboardHandlers {
	return &AdminDashboardHandlers{
		dashboard: dashboard,
		audits:    audits,
		clock:     time.Now,
	}
}

// Routes registers the admin dashboard subtree.
func (h *AdminDashboardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/dashboard", func(rt chi.Router) {
		rt.Get("/summary", h.summary)
		rt.Get("/monthly-sales", h.monthlySales)
		rt.Get("/recent-orders", h.recentOrders)
	})
	r.Get("/audit-logs", h.listAuditLogs)
}

func (h *AdminDashboardHandlers) summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.dashboard == nil {
		writeDashboardUnavailable(w, r)
		return
	}

	summary, err := h.dashboard.Summary(ctx)
	if err != nil {
		writeDashboardError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, dashboardSummaryPayload{
		TotalProducts: summary.TotalProducts,
		TotalUsers:    summary.TotalUsers,
		TotalOrders:   summary.TotalOrders,
		TotalRevenue:  summary.TotalRevenue,
	})
}

func (h *AdminDashboardHandlers) monthlySales(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.dashboard == nil {
		writeDashboardUnavailable(w, r)
		return
	}

	year := queryInt(r, "year", h.clock().UTC().Year())
	buckets, err := h.dashboard.MonthlySales(ctx, year)
	if err != nil {
		writeDashboardError(w, r, err)
		return
	}

	items := make([]monthlySalesPayload, 0, len(buckets))
	for _, bucket := range buckets {
		items = append(items, monthlySalesPayload{
			Month:   int(bucket.Month),
			Orders:  bucket.Orders,
			Revenue: bucket.Revenue,
		})
	}
	writeJSONResponse(w, http.StatusOK, monthlySalesResponse{Year: year, Months: items})
}

func (h *AdminDashboardHandlers) recentOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.dashboard == nil {
		writeDashboardUnavailable(w, r)
		return
	}

	orders, err := h.dashboard.RecentPaidOrders(ctx, queryInt(r, "limit", 5))
	if err != nil {
		writeDashboardError(w, r, err)
		return
	}

	items := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, ""))
}

func (h *AdminDashboardHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audits == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_unavailable", "audit log service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	filter := services.AuditLogFilter{
		TargetRef:  strings.TrimSpace(query.Get("target")),
		Actor:      strings.TrimSpace(query.Get("actor")),
		Action:     strings.TrimSpace(query.Get("action")),
		Pagination: paginationFromQuery(r),
	}
	if raw := strings.TrimSpace(query.Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "since must be RFC 3339", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &since
	}
	if raw := strings.TrimSpace(query.Get("until")); raw != "" {
		until, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "until must be RFC 3339", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &until
	}

	page, err := h.audits.List(ctx, filter)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_error", "audit log request failed", http.StatusInternalServerError))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildAuditLogPayload(entry))
	}
	writeJSONResponse(w, http.StatusOK, newListResponse(items, page.NextPageToken))
}

func writeDashboardUnavailable(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("dashboard_unavailable", "dashboard service is unavailable", http.StatusServiceUnavailable))
}

func writeDashboardError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrDashboardInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDashboardUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("dashboard_unavailable", "dashboard service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("dashboard_error", "dashboard request failed", http.StatusInternalServerError))
	}
}

type dashboardSummaryPayload struct {
	TotalProducts int64   `json:"total_products"`
	TotalUsers    int64   `json:"total_users"`
	TotalOrders   int64   `json:"total_orders"`
	TotalRevenue  float64 `json:"total_revenue"`
}

type monthlySalesPayload struct {
	Month   int     `json:"month"`
	Orders  int     `json:"orders"`
	Revenue float64 `json:"revenue"`
}

type monthlySalesResponse struct {
	Year   int                   `json:"year"`
	Months []monthlySalesPayload `json:"months"`
}

type auditLogPayload struct {
	ID         string         `json:"id"`
	Actor      string         `json:"actor"`
	ActorType  string         `json:"actor_type,omitempty"`
	Action     string         `json:"action"`
	TargetRef  string         `json:"target_ref,omitempty"`
	Severity   string         `json:"severity,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt string         `json:"occurred_at,omitempty"`
	CreatedAt  string         `json:"created_at,omitempty"`
}

func buildAuditLogPayload(entry domain.AuditLogEntry) auditLogPayload {
	return auditLogPayload{
		ID:         entry.ID,
		Actor:      entry.Actor,
		ActorType:  entry.ActorType,
		Action:     entry.Action,
		TargetRef:  entry.TargetRef,
		Severity:   entry.Severity,
		RequestID:  entry.RequestID,
		Metadata:   entry.Metadata,
		OccurredAt: formatTime(entry.OccurredAt),
		CreatedAt:  formatTime(entry.CreatedAt),
	}
}
