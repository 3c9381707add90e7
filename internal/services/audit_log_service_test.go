package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

type stubAuditRepo struct {
	entries   []domain.AuditLogEntry
	appendErr error

	listFilter repositories.AuditLogFilter
	listResp   domain.CursorPage[domain.AuditLogEntry]
	listErr    error
}

func (s *stubAuditRepo) Append(_ context.Context, entry domain.AuditLogEntry) error {
	s.entries = append(s.entries, entry)
	return s.appendErr
}

func (s *stubAuditRepo) List(_ context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	s.listFilter = filter
	return s.listResp, s.listErr
}

type captureAuditLogger struct {
	warnings []string
}

func (c *captureAuditLogger) Warnf(format string, args ...any) {
	c.warnings = append(c.warnings, strings.TrimSpace(format))
}

func newAuditForTest(t *testing.T, repo *stubAuditRepo, logger AuditLogger, now time.Time) AuditLogService {
	t.Helper()
	svc, err := NewAuditLogService(AuditLogServiceDeps{
		Repository:  repo,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "audit_001" },
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("NewAuditLogService: %v", err)
	}
	return svc
}

func TestAuditLogRecordSanitizes(t *testing.T) {
	repo := &stubAuditRepo{}
	now := time.Date(2024, time.May, 5, 12, 0, 0, 0, time.UTC)
	svc := newAuditForTest(t, repo, nil, now)

	svc.Record(context.Background(), AuditLogRecord{
		Actor:     "  admin_1  ",
		ActorType: "Admin",
		Action:    " catalog.product.update ",
		TargetRef: "products/p1",
		Severity:  "WARNING",
		RequestID: "req-1",
		Metadata:  map[string]any{" note ": " price changed \x00"},
		Diff: map[string]AuditLogDiff{
			"isPromotion": {Before: false, After: true},
		},
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ID != "audit_001" {
		t.Fatalf("expected generated id, got %q", entry.ID)
	}
	if entry.Actor != "admin_1" || entry.Action != "catalog.product.update" {
		t.Fatalf("expected trimmed actor and action, got %+v", entry)
	}
	if entry.ActorType != "admin" || entry.Severity != "warn" {
		t.Fatalf("expected normalized actor type and severity, got %+v", entry)
	}
	if entry.OccurredAt != now || entry.CreatedAt != now {
		t.Fatalf("expected clock timestamps, got %+v", entry)
	}
	if entry.Metadata["note"] != "price changed" {
		t.Fatalf("expected sanitized metadata, got %#v", entry.Metadata)
	}
	diff, ok := entry.Metadata["diff"].(map[string]any)
	if !ok {
		t.Fatalf("expected diff folded into metadata, got %#v", entry.Metadata)
	}
	change, ok := diff["isPromotion"].(map[string]any)
	if !ok || change["before"] != false || change["after"] != true {
		t.Fatalf("unexpected diff payload: %#v", diff)
	}
}

func TestAuditLogRecordKeepsExplicitOccurredAt(t *testing.T) {
	repo := &stubAuditRepo{}
	now := time.Date(2024, time.May, 5, 12, 0, 0, 0, time.UTC)
	svc := newAuditForTest(t, repo, nil, now)

	occurred := time.Date(2024, time.May, 4, 8, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	svc.Record(context.Background(), AuditLogRecord{Action: "orders.mark_paid", OccurredAt: occurred})

	entry := repo.entries[0]
	if !entry.OccurredAt.Equal(occurred) || entry.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected explicit occurredAt in UTC, got %v", entry.OccurredAt)
	}
	if entry.ActorType != "system" || entry.Severity != "info" {
		t.Fatalf("expected defaults for absent fields, got %+v", entry)
	}
}

func TestAuditLogRecordSwallowsAppendErrors(t *testing.T) {
	repo := &stubAuditRepo{appendErr: errors.New("firestore down")}
	logger := &captureAuditLogger{}
	svc := newAuditForTest(t, repo, logger, time.Now())

	svc.Record(context.Background(), AuditLogRecord{Action: "cms.page.upsert"})

	if len(logger.warnings) != 1 {
		t.Fatalf("expected warning for failed append, got %#v", logger.warnings)
	}
}

func TestAuditLogList(t *testing.T) {
	repo := &stubAuditRepo{
		listResp: domain.CursorPage[domain.AuditLogEntry]{
			Items:         []domain.AuditLogEntry{{ID: "a1"}},
			NextPageToken: "tok",
		},
	}
	svc := newAuditForTest(t, repo, nil, time.Now())

	page, err := svc.List(context.Background(), AuditLogFilter{
		TargetRef:  " products/p1 ",
		Action:     "catalog.product.update",
		Pagination: Pagination{PageSize: 20},
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 1 || page.NextPageToken != "tok" {
		t.Fatalf("unexpected page: %+v", page)
	}
	if repo.listFilter.TargetRef != "products/p1" || repo.listFilter.Action != "catalog.product.update" {
		t.Fatalf("expected trimmed filter passthrough, got %+v", repo.listFilter)
	}
	if repo.listFilter.Pagination.PageSize != 20 {
		t.Fatalf("expected pagination passthrough, got %+v", repo.listFilter.Pagination)
	}
}
