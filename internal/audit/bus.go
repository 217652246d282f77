// Package audit implements the bitácora: the append-only record of
// authenticated actions. Handlers publish action_log events on a Bus; the
// Recorder, its only subscriber, persists them.
package audit

import (
	"context"

	"go.uber.org/zap"

	"crm-service/internal/model"
	"crm-service/internal/requestctx"
	"crm-service/internal/tenantdb"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// Event is one action_log emission. The request fields are captured when the
// event is published.
type Event struct {
	TenantID  *uint
	UserID    *uint
	Action    string
	ClientIP  string
	RequestID string
}

// Subscriber receives action_log events.
type Subscriber interface {
	OnActionLog(ctx context.Context, e Event) error
}

// Bus delivers action_log events to its subscriber.
type Bus struct {
	sub Subscriber
}

// NewBus returns a Bus delivering to sub.
func NewBus(sub Subscriber) *Bus {
	return &Bus{sub: sub}
}

// Publish emits action_log(user, action, request) for the request bound to
// ctx. user may be nil.
//
// Inside a unit of work the event is delivered when the unit commits, within
// its transaction, so an aborted request leaves no record. Outside one it is
// delivered immediately and a failure is only logged.
func (b *Bus) Publish(ctx context.Context, user *model.Principal, action string) {
	e := Event{Action: action}
	if rc := requestctx.From(ctx); rc != nil {
		if id, ok := rc.TenantID(); ok {
			e.TenantID = &id
		}
		e.ClientIP = rc.ClientIP
		e.RequestID = rc.RequestID
	}
	if user != nil {
		id := user.UserID
		e.UserID = &id
	}

	queued := tenantdb.OnCommit(ctx, func(ctx context.Context) error {
		return b.sub.OnActionLog(ctx, e)
	})
	if queued {
		return
	}

	if err := b.sub.OnActionLog(ctx, e); err != nil {
		prometheus.RecordAuditFailure()
		logger.FromContext(ctx).Error("Failed to write audit record",
			zap.String("action", action), zap.String("request_id", e.RequestID), zap.Error(err))
	}
}
