package service

import (
	"context"

	"korty/internal/apperr"
	"korty/internal/domain"
	"korty/internal/models"
)

// DefaultProvider is the gateway new intents settle through.
const DefaultProvider = "wayforpay"

// ResolveAccount picks the settlement account for a club: the club's own
// verified account wins, otherwise the owning organization's. Within a scope
// the most recently verified account is used. No account at either scope is
// a conflict the caller reports before writing anything, not a server fault.
func ResolveAccount(ctx context.Context, store domain.Store, club *models.Club, providerName string) (*models.PaymentAccount, error) {
	account, err := store.FindVerifiedAccount(ctx, models.AccountScopeClub, club.ID, providerName)
	if err != nil {
		return nil, apperr.Internal("failed to resolve payment account").WithCause(err)
	}
	if account == nil {
		account, err = store.FindVerifiedAccount(ctx, models.AccountScopeOrganization, club.OrganizationID, providerName)
		if err != nil {
			return nil, apperr.Internal("failed to resolve payment account").WithCause(err)
		}
	}
	if account == nil {
		return nil, apperr.Conflict("club %s cannot accept payments: no verified account", club.ID).
			WithMeta("club_id", club.ID)
	}
	return account, nil
}
