package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmasson/giftwise-api/internal/models"
	"github.com/lmasson/giftwise-api/pkg/config"
	appErrors "github.com/lmasson/giftwise-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// AuthService provides credential authentication and access token minting.
type AuthService struct {
	repo      authUserRepository
	tokens    *TokenService
	hasher    secretHasher
	validator *validator.Validate
	logger    *zap.Logger
	jwtConfig config.JWTConfig

	// dummyHash is verified against when the email is unknown so both
	// login failure paths cost one argon2 computation.
	dummyHash string
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, tokens *TokenService, hasher secretHasher, validate *validator.Validate, logger *zap.Logger, jwtConfig config.JWTConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		logger.Warn("failed to precompute dummy hash", zap.Error(err))
	}
	return &AuthService{
		repo:      repo,
		tokens:    tokens,
		hasher:    hasher,
		validator: validate,
		logger:    logger,
		jwtConfig: jwtConfig,
		dummyHash: dummy,
	}
}

// NormalizeEmail lowercases and trims an address so lookups and uniqueness
// are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an unverified account. The caller is responsible for
// sending the verification challenge afterwards.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	req.Email = NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		user.Name = &name
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// Login authenticates credentials and opens a session. It returns the raw
// refresh token separately so the transport layer can place it in a cookie.
//
// Unknown email and wrong password are indistinguishable to the caller, and
// the verification gate is only reported once the password proved right.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, string, error) {
	req.Email = NormalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if s.dummyHash != "" {
				_, _ = s.hasher.Verify(req.Password, s.dummyHash)
			}
			return nil, "", appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	match, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil || !match {
		return nil, "", appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	if !user.IsVerified {
		return nil, "", appErrors.Clone(appErrors.ErrAccountUnverified, "")
	}

	rawRefresh, _, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}

	accessToken, err := s.mintAccessToken(user.ID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	return &models.LoginResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.jwtConfig.AccessExpiration.Seconds()),
		User:        models.InfoFromUser(user),
	}, rawRefresh, nil
}

// Refresh rotates the presented refresh token and mints a new access token
// for its owner.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (*models.LoginResponse, string, error) {
	newRaw, token, err := s.tokens.Rotate(ctx, rawRefresh)
	if err != nil {
		return nil, "", err
	}

	user, err := s.repo.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if revokeErr := s.tokens.RevokeAll(ctx, token.UserID); revokeErr != nil {
				s.logger.Warn("failed to clear sessions of deleted user", zap.Error(revokeErr))
			}
			return nil, "", appErrors.Clone(appErrors.ErrInvalidRefresh, "")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	accessToken, err := s.mintAccessToken(user.ID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	return &models.LoginResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.jwtConfig.AccessExpiration.Seconds()),
		User:        models.InfoFromUser(user),
	}, newRaw, nil
}

// Logout ends every session of the account behind the presented refresh
// token. Absent or bogus tokens are a silent no-op.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string) error {
	if rawRefresh == "" {
		return nil
	}
	return s.tokens.GlobalLogout(ctx, rawRefresh)
}

// ValidateAccessToken parses and validates an access token.
func (s *AuthService) ValidateAccessToken(tokenString string) (*models.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtConfig.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) mintAccessToken(userID string) (string, error) {
	issuedAt := time.Now().UTC()
	claims := &models.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.jwtConfig.AccessExpiration)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtConfig.Secret))
}
