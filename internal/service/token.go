package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"stockledger-api/internal/cache"
	"stockledger-api/internal/model"
	"stockledger-api/internal/repository"
)

const (
	// TokenPrefix is the prefix for all session tokens
	TokenPrefix = "slt_"

	// DefaultTokenTTL is the default token lifetime
	DefaultTokenTTL = 8 * time.Hour
)

// TokenConfig holds session token settings.
type TokenConfig struct {
	// SigningKey authenticates tokens. An empty key is replaced by a random
	// one, which invalidates sessions on restart.
	SigningKey []byte
	// LoginKey is the shared secret required to obtain a token. Empty
	// disables login.
	LoginKey  string
	TTL       time.Duration
	KeyPrefix string
}

// TokenService issues and verifies signed session tokens. A token is
// "slt_" + hex(random) + "." + hex(HMAC-SHA256(random)); the session it
// names lives in the cache, so it can be revoked.
type TokenService struct {
	cache  cache.Cache
	users  repository.UserRepository
	policy Policy
	cfg    TokenConfig
	log    *zap.Logger
}

// NewTokenService creates a token service.
func NewTokenService(c cache.Cache, users repository.UserRepository, cfg TokenConfig, log *zap.Logger) (*TokenService, error) {
	log = log.With(zap.String("component", "TokenService"))
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "session:"
	}
	if len(cfg.SigningKey) == 0 {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		cfg.SigningKey = key
		log.Warn("no signing key configured, using an ephemeral key")
	}
	return &TokenService{cache: c, users: users, cfg: cfg, log: log}, nil
}

// Login exchanges the shared login key and a national identifier for a token.
func (s *TokenService) Login(ctx context.Context, loginKey, nationalID string) (string, *model.SessionData, error) {
	if s.cfg.LoginKey == "" || subtle.ConstantTimeCompare([]byte(loginKey), []byte(s.cfg.LoginKey)) != 1 {
		return "", nil, unauthenticated()
	}
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return "", nil, validationError("national_id", "is required")
	}

	user, err := s.users.GetUserByNationalID(ctx, nationalID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, unauthenticated()
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to get user: %w", err)
	}
	return s.GenerateToken(ctx, user.ID)
}

// GenerateToken creates a new session token for userID.
func (s *TokenService) GenerateToken(ctx context.Context, userID int64) (string, *model.SessionData, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}
	id := hex.EncodeToString(tokenBytes)
	token := TokenPrefix + id + "." + s.sign(id)

	now := time.Now().UTC()
	data := &model.SessionData{UserID: userID, CreatedAt: now, ExpiresAt: now.Add(s.cfg.TTL)}
	if err := s.store(ctx, id, data); err != nil {
		return "", nil, err
	}

	s.log.Info("token issued", zap.Int64("user_id", userID), zap.Time("expires_at", data.ExpiresAt))
	return token, data, nil
}

// ValidateToken verifies the signature and returns the live session.
func (s *TokenService) ValidateToken(ctx context.Context, token string) (*model.SessionData, error) {
	id, err := s.parse(token)
	if err != nil {
		return nil, err
	}

	raw, err := s.cache.Get(ctx, s.cfg.KeyPrefix+id)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, &Error{Kind: KindUnauthenticated, Message: "token not found or expired"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var data model.SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if time.Now().After(data.ExpiresAt) {
		_ = s.cache.Delete(ctx, s.cfg.KeyPrefix+id)
		return nil, &Error{Kind: KindUnauthenticated, Message: "token expired"}
	}
	return &data, nil
}

// Resolve validates token and builds the caller identity from the current
// user record, so role and warehouse changes apply immediately.
func (s *TokenService) Resolve(ctx context.Context, token string) (*model.Identity, error) {
	data, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUser(ctx, data.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &Error{Kind: KindUnauthenticated, Message: "user no longer exists"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	identity := model.IdentityOf(user)
	if err := s.policy.Authenticate(identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// RevokeToken ends the session named by token.
func (s *TokenService) RevokeToken(ctx context.Context, token string) error {
	id, err := s.parse(token)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, s.cfg.KeyPrefix+id)
}

// RefreshToken extends the lifetime of a live session.
func (s *TokenService) RefreshToken(ctx context.Context, token string) (*model.SessionData, error) {
	data, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	id, _ := s.parse(token)

	data.ExpiresAt = time.Now().UTC().Add(s.cfg.TTL)
	if err := s.store(ctx, id, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *TokenService) store(ctx context.Context, id string, data *model.SessionData) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	if err := s.cache.Set(ctx, s.cfg.KeyPrefix+id, jsonData, s.cfg.TTL); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// parse checks the token format and signature and returns the session id.
func (s *TokenService) parse(token string) (string, error) {
	invalid := &Error{Kind: KindUnauthenticated, Message: "invalid token"}
	if !strings.HasPrefix(token, TokenPrefix) {
		return "", invalid
	}
	id, mac, ok := strings.Cut(strings.TrimPrefix(token, TokenPrefix), ".")
	if !ok || id == "" {
		return "", invalid
	}
	if !hmac.Equal([]byte(mac), []byte(s.sign(id))) {
		return "", invalid
	}
	return id, nil
}

func (s *TokenService) sign(id string) string {
	h := hmac.New(sha256.New, s.cfg.SigningKey)
	h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil))
}
