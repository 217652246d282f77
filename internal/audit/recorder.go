package audit

import (
	"context"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/internal/model"
	"crm-service/internal/tenantdb"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// Recorder persists action_log events as AuditRecords.
type Recorder struct {
	store *tenantdb.Store

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewRecorder returns a Recorder writing through store.
func NewRecorder(store *tenantdb.Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// OnActionLog writes e. The action is only checked for being non-empty and
// at most model.MaxActionLength bytes.
func (r *Recorder) OnActionLog(ctx context.Context, e Event) error {
	const op = "audit.Record"

	action := strings.TrimSpace(e.Action)
	if action == "" || len(action) > model.MaxActionLength {
		return apperr.Invalid(op, "invalid audit action", map[string]string{
			"action": "must be 1 to 128 bytes",
		})
	}

	rec := &model.AuditRecord{
		UserID:    e.UserID,
		Action:    action,
		IPAddress: coerceIP(ctx, e.ClientIP),
		Timestamp: r.timestamp(),
	}

	if e.TenantID == nil {
		// platform action outside any tenant
		if err := r.store.CreateUnowned(ctx, rec); err != nil {
			return err
		}
	} else {
		scope, err := r.store.Scope(ctx)
		if err != nil {
			return err
		}
		rec.TenantID = e.TenantID
		if err := scope.Create(rec); err != nil {
			return err
		}
	}

	prometheus.RecordAuditRecord(action)
	return nil
}

// timestamp returns the current UTC time at the store's microsecond
// precision, strictly after every timestamp this recorder handed out before.
func (r *Recorder) timestamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.now().UTC().Truncate(time.Microsecond)
	if !t.After(r.last) {
		t = r.last.Add(time.Microsecond)
	}
	r.last = t
	return t
}

// coerceIP normalizes the extracted client IP for storage. Values that do
// not parse as an address are stored as NULL.
func coerceIP(ctx context.Context, raw string) *string {
	if raw == "" {
		return nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		logger.FromContext(ctx).Warn("Discarding malformed client IP", zap.String("client_ip", raw))
		return nil
	}
	s := addr.Unmap().WithZone("").String()
	return &s
}
