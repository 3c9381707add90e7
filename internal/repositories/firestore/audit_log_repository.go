package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/inkwell-books/api/internal/domain"
	pfirestore "github.com/inkwell-books/api/internal/platform/firestore"
	"github.com/inkwell-books/api/internal/repositories"
)

const auditLogsCollection = "auditLogs"

// AuditLogRepository persists immutable audit trail entries.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditLogDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection, nil, nil)
	return &AuditLogRepository{base: base}, nil
}

// Append writes a new audit entry. Entries are never updated or deleted.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r == nil || r.base == nil {
		return errors.New("audit log repository not initialised")
	}
	entryID := strings.TrimSpace(entry.ID)
	if entryID == "" {
		return errors.New("audit log repository: entry id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, entryID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeAuditLogDocument(entry)); err != nil {
		return pfirestore.WrapError("audit_logs.append", err)
	}
	return nil
}

// List returns audit entries newest first with cursor pagination.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("audit log repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeListToken(token)
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, fmt.Errorf("audit log repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	targetRef := strings.TrimSpace(filter.TargetRef)
	actor := strings.TrimSpace(filter.Actor)
	action := strings.TrimSpace(filter.Action)

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if targetRef != "" {
			q = q.Where("targetRef", "==", targetRef)
		}
		if actor != "" {
			q = q.Where("actor", "==", actor)
		}
		if action != "" {
			q = q.Where("action", "==", action)
		}
		if filter.DateRange.From != nil {
			q = q.Where("occurredAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("occurredAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("occurredAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		tokenTime := last.Data.OccurredAt
		if tokenTime.IsZero() {
			tokenTime = last.CreateTime
		}
		nextToken = encodeListToken(tokenTime, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.AuditLogEntry, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeAuditLogDocument(doc.ID, doc.Data, doc.CreateTime))
	}

	return domain.CursorPage[domain.AuditLogEntry]{Items: items, NextPageToken: nextToken}, nil
}

type auditLogDocument struct {
	Actor      string         `firestore:"actor"`
	ActorType  string         `firestore:"actorType,omitempty"`
	Action     string         `firestore:"action"`
	TargetRef  string         `firestore:"targetRef,omitempty"`
	Severity   string         `firestore:"severity,omitempty"`
	RequestID  string         `firestore:"requestId,omitempty"`
	Metadata   map[string]any `firestore:"metadata,omitempty"`
	OccurredAt time.Time      `firestore:"occurredAt"`
}

func encodeAuditLogDocument(entry domain.AuditLogEntry) auditLogDocument {
	return auditLogDocument{
		Actor:      strings.TrimSpace(entry.Actor),
		ActorType:  strings.TrimSpace(entry.ActorType),
		Action:     strings.TrimSpace(entry.Action),
		TargetRef:  strings.TrimSpace(entry.TargetRef),
		Severity:   strings.TrimSpace(entry.Severity),
		RequestID:  strings.TrimSpace(entry.RequestID),
		Metadata:   entry.Metadata,
		OccurredAt: entry.OccurredAt.UTC(),
	}
}

func decodeAuditLogDocument(id string, doc auditLogDocument, createTime time.Time) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:         id,
		Actor:      doc.Actor,
		ActorType:  doc.ActorType,
		Action:     doc.Action,
		TargetRef:  doc.TargetRef,
		Severity:   doc.Severity,
		RequestID:  doc.RequestID,
		Metadata:   doc.Metadata,
		OccurredAt: doc.OccurredAt,
		CreatedAt:  createTime,
	}
}

var _ repositories.AuditLogRepository = (*AuditLogRepository)(nil)
