package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"crm-service/internal/model"
)

func TestFrom_Empty(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, From(ctx))
	assert.Nil(t, Tenant(ctx))
	assert.Nil(t, Principal(ctx))

	var rc *RequestContext
	_, ok := rc.TenantID()
	assert.False(t, ok)
}

func TestWith_RoundTrip(t *testing.T) {
	rc := &RequestContext{RequestID: "req-1", ClientIP: "203.0.113.7"}
	ctx := With(context.Background(), rc)

	got := From(ctx)
	assert.Same(t, rc, got)

	_, ok := got.TenantID()
	assert.False(t, ok)

	got.Tenant = &model.Tenant{ID: 7, Domain: "acme.test"}
	got.Principal = &model.Principal{UserID: 3}

	id, ok := From(ctx).TenantID()
	assert.True(t, ok)
	assert.Equal(t, uint(7), id)
	assert.Equal(t, "acme.test", Tenant(ctx).Domain)
	assert.Equal(t, uint(3), Principal(ctx).UserID)
}
