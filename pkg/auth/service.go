package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/agora-discourse/agora/pkg/services"
)

// Service performs the service-account token exchange: a verified identity
// token becomes a session token acting as the system user.
type Service struct {
	verifier  IdentityVerifier
	allowlist *Allowlist
	issuer    *TokenIssuer
	users     *services.UserService
}

// NewService wires the token exchange.
func NewService(verifier IdentityVerifier, allowlist *Allowlist, issuer *TokenIssuer, users *services.UserService) *Service {
	if verifier == nil {
		panic("verifier is required")
	}
	if allowlist == nil {
		panic("allowlist is required")
	}
	if issuer == nil {
		panic("issuer is required")
	}
	if users == nil {
		panic("users is required")
	}
	return &Service{verifier: verifier, allowlist: allowlist, issuer: issuer, users: users}
}

// Exchange validates the identity token, checks the allowlist, and issues a
// session token bound to the system user. Invalid tokens map to
// ErrUnauthorized, unlisted accounts to ErrForbidden; a missing system user
// row is an internal error.
func (s *Service) Exchange(ctx context.Context, identityToken string) (string, error) {
	email, err := s.verifier.Verify(ctx, identityToken)
	if err != nil {
		return "", fmt.Errorf("%w: %s", services.ErrUnauthorized, err)
	}
	if !s.allowlist.Contains(email) {
		return "", services.ErrForbidden
	}

	systemUser, err := s.users.GetSystemUser(ctx)
	if errors.Is(err, services.ErrNotFound) {
		return "", fmt.Errorf("system user row is missing")
	}
	if err != nil {
		return "", err
	}

	token, err := s.issuer.Issue(systemUser.ID, email, true)
	if err != nil {
		return "", err
	}
	return token, nil
}
