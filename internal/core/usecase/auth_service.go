package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/atviraknyga/bookapi/internal/core/domain"
	"github.com/atviraknyga/bookapi/internal/core/ports"
)

var ErrUnauthorized = errors.New("unauthorized")

type AuthService struct {
	repo  ports.APIKeyRepository
	audit *AuditService
}

func NewAuthService(repo ports.APIKeyRepository, audit *AuditService) *AuthService {
	return &AuthService{repo: repo, audit: audit}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (domain.APIKey, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.APIKey{}, ErrUnauthorized
	}

	hash := HashToken(token)
	apiKey, err := s.repo.FindByTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, ErrUnauthorized
		}
		return domain.APIKey{}, err
	}
	if !apiKey.Active {
		return domain.APIKey{}, ErrUnauthorized
	}
	return apiKey, nil
}

// RecordLogin writes the login audit entry for the already-authenticated
// actor bound to the ambient request context.
func (s *AuthService) RecordLogin(ctx context.Context, userID string) (*domain.AuditEntry, error) {
	return s.audit.RecordLogin(ctx, userID)
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}
