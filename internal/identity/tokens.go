package identity

import (
	"context"

	"crm-service/internal/model"
)

// TokenService mints and verifies bearer tokens. The token format belongs to
// the implementation; the service only relies on Verify yielding the id of
// the user the access token was issued to.
type TokenService interface {
	Issue(ctx context.Context, p *model.Principal) (*model.TokenPair, error)
	Refresh(ctx context.Context, refresh string) (*model.TokenPair, error)
	Verify(ctx context.Context, access string) (uint, error)
}
