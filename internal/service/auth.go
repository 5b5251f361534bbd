package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/quickchat/internal/logger"
	"github.com/quickchat/internal/media"
	"github.com/quickchat/internal/metrics"
	"github.com/quickchat/internal/model"
	"github.com/quickchat/internal/repository"
	"github.com/quickchat/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

// tokenClaims: {id, iat, exp}.
type tokenClaims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

type SignupRequest struct {
	FullName string `json:"fullName" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Bio      string `json:"bio" validate:"max=500"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	FullName   string `json:"fullName" validate:"required,max=100"`
	Bio        string `json:"bio" validate:"max=500"`
	ProfilePic string `json:"profilePic"`
}

// AuthResult is returned by Signup and Login.
type AuthResult struct {
	Token string
	User  model.UserPublic
}

// AuthService issues and verifies tokens and manages accounts.
type AuthService struct {
	users   UserStore
	limiter storage.LoginLimiter
	images  ImageStore
	secret  []byte
	ttl     time.Duration
}

func NewAuthService(users UserStore, limiter storage.LoginLimiter, images ImageStore, secret string, ttl time.Duration) *AuthService {
	return &AuthService{users: users, limiter: limiter, images: images, secret: []byte(secret), ttl: ttl}
}

// IssueToken signs an HS256 token for userID.
func (s *AuthService) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := &tokenClaims{
		ID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Authenticate maps a bearer token to the public identity of an existing user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.UserPublic, error) {
	if token == "" {
		return nil, ErrMissingCredential
	}
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: no id claim", ErrInvalidCredential)
	}
	return s.Principal(ctx, claims.ID)
}

// Principal resolves a user id without a token. Used by the dev-only socket fallback.
func (s *AuthService) Principal(ctx context.Context, userID string) (*model.UserPublic, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownPrincipal
		}
		return nil, fmt.Errorf("auth.Principal: %w", err)
	}
	pub := u.ToPublic()
	return &pub, nil
}

func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	req.Email = normalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth.Signup: %w", err)
	}
	now := time.Now().UTC()
	u := &model.User{
		ID:           uuid.New().String(),
		FullName:     req.FullName,
		Email:        req.Email,
		PasswordHash: string(hash),
		Bio:          strings.TrimSpace(req.Bio),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("auth.Signup: %w", err)
	}
	return s.result(u)
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	req.Email = normalizeEmail(req.Email)
	if err := validate.Struct(req); err != nil {
		return nil, ErrBadLogin
	}
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, req.Email)
		if err != nil {
			logger.Errorf("auth.Login: limiter: %v", err)
		} else if !ok {
			metrics.LoginRejected.WithLabelValues("rate_limited").Inc()
			return nil, ErrTooManyAttempts
		}
	}
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			metrics.LoginRejected.WithLabelValues("bad_credentials").Inc()
			return nil, ErrBadLogin
		}
		return nil, fmt.Errorf("auth.Login: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		metrics.LoginRejected.WithLabelValues("bad_credentials").Inc()
		return nil, ErrBadLogin
	}
	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, req.Email); err != nil {
			logger.Errorf("auth.Login: limiter reset: %v", err)
		}
	}
	return s.result(u)
}

// UpdateProfile replaces name and bio; profilePic, when given as a data URL, is stored
// through the image store. An empty profilePic keeps the current picture.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req UpdateProfileRequest) (*model.UserPublic, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	pic := req.ProfilePic
	var stored string
	switch {
	case pic == "":
	case media.IsDataURL(pic):
		url, err := saveImage(s.images, pic)
		if err != nil {
			return nil, err
		}
		pic, stored = url, url
	case !isRemoteURL(pic):
		return nil, fmt.Errorf("%w: profilePic must be a data URL", ErrInvalidPayload)
	}
	u, err := s.users.UpdateProfile(ctx, userID, req.FullName, strings.TrimSpace(req.Bio), pic)
	if err != nil {
		discardImage(s.images, stored)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknownPrincipal
		}
		return nil, fmt.Errorf("auth.UpdateProfile: %w", err)
	}
	pub := u.ToPublic()
	return &pub, nil
}

func (s *AuthService) result(u *model.User) (*AuthResult, error) {
	token, err := s.IssueToken(u.ID)
	if err != nil {
		return nil, fmt.Errorf("auth.IssueToken: %w", err)
	}
	return &AuthResult{Token: token, User: u.ToPublic()}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") || strings.HasPrefix(s, media.URLPrefix)
}
