package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/inkwell-books/api/internal/domain"
	"github.com/inkwell-books/api/internal/repositories"
)

const (
	defaultAuditSeverity = "info"
	defaultActorType     = "system"
)

// AuditLogger defines the logging contract used by the audit writer service.
type AuditLogger interface {
	Warnf(format string, args ...any)
}

type auditLogService struct {
	repo   repositories.AuditLogRepository
	clock  func() time.Time
	newID  func() string
	logger AuditLogger
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository  repositories.AuditLogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      AuditLogger
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, fmt.Errorf("audit log service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopAuditLogger{}
	}

	return &auditLogService{
		repo:   deps.Repository,
		clock:  func() time.Time { return clock().UTC() },
		newID:  idGen,
		logger: logger,
	}, nil
}

// Record persists an audit log entry after sanitising free-form fields.
// Repository failures are logged but never bubble up, so a broken audit sink
// cannot interrupt the mutation it was recording.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	if s == nil || s.repo == nil {
		return
	}
	entry := s.buildEntry(record)
	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.Warnf("audit log append failed: action=%s target=%s err=%v", entry.Action, entry.TargetRef, err)
	}
}

// List delegates to the repository to retrieve paginated audit logs.
func (s *auditLogService) List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	if s == nil || s.repo == nil {
		return domain.CursorPage[AuditLogEntry]{}, fmt.Errorf("audit log service: repository is required")
	}
	return s.repo.List(ctx, repositories.AuditLogFilter{
		TargetRef:  strings.TrimSpace(filter.TargetRef),
		Actor:      strings.TrimSpace(filter.Actor),
		Action:     strings.TrimSpace(filter.Action),
		DateRange:  filter.DateRange,
		Pagination: filter.Pagination,
	})
}

func (s *auditLogService) buildEntry(record AuditLogRecord) domain.AuditLogEntry {
	now := s.clock()
	occurred := record.OccurredAt
	if occurred.IsZero() {
		occurred = now
	} else {
		occurred = occurred.UTC()
	}

	entry := domain.AuditLogEntry{
		ID:         s.newID(),
		Actor:      sanitizeText(record.Actor, 160),
		ActorType:  normalizeActorType(record.ActorType),
		Action:     sanitizeText(record.Action, 120),
		TargetRef:  sanitizeText(record.TargetRef, 200),
		Severity:   normalizeSeverity(record.Severity),
		RequestID:  sanitizeText(record.RequestID, 128),
		OccurredAt: occurred,
		CreatedAt:  now,
	}

	meta := prepareAuditMetadata(record.Metadata)
	if diff := flattenAuditDiff(record.Diff); len(diff) > 0 {
		if meta == nil {
			meta = map[string]any{}
		}
		meta["diff"] = diff
	}
	if len(meta) > 0 {
		entry.Metadata = meta
	}

	return entry
}

func prepareAuditMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	result := make(map[string]any, len(metadata))
	for key, value := range metadata {
		trimmedKey := sanitizeText(key, 80)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = sanitizeMetadataValue(value)
	}
	return result
}

// flattenAuditDiff folds field-level before/after pairs into the metadata
// document. Firestore has no dedicated diff column, keeping the entry schema
// a single map.
func flattenAuditDiff(diff map[string]AuditLogDiff) map[string]any {
	if len(diff) == 0 {
		return nil
	}
	result := make(map[string]any, len(diff))
	for key, change := range diff {
		trimmedKey := sanitizeText(key, 80)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = map[string]any{
			"before": sanitizeMetadataValue(change.Before),
			"after":  sanitizeMetadataValue(change.After),
		}
	}
	return result
}

type noopAuditLogger struct{}

func (noopAuditLogger) Warnf(string, ...any) {}

func normalizeActorType(actorType string) string {
	switch strings.ToLower(strings.TrimSpace(actorType)) {
	case "user":
		return "user"
	case "admin", "staff":
		return "admin"
	case "system", "service":
		return "system"
	default:
		return defaultActorType
	}
}

func normalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return defaultAuditSeverity
	}
}

func sanitizeMetadataValue(value any) any {
	switch v := value.(type) {
	case string:
		return sanitizeText(v, 512)
	case fmt.Stringer:
		return sanitizeText(v.String(), 512)
	default:
		return v
	}
}

func sanitizeText(input string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		builder.WriteRune(r)
		if builder.Len() >= limit {
			break
		}
	}
	return builder.String()
}
