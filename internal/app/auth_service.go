package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"samchat/internal/model"
	"samchat/internal/pkg/jwtutil"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmailDomain   = errors.New("email domain not allowed")
	ErrTokenInvalid  = errors.New("login token invalid or expired")
	ErrTokenMismatch = errors.New("login token issued for another email")
)

const (
	registerSentMessage  = "Token enviado por email"
	registerDebugMessage = "Token gerado (verifique os logs do servidor)"
	loginTokenBytes      = 32
)

type UserStore interface {
	EnsureByEmail(email string) (*model.User, error)
}

type LoginTokenStore interface {
	Save(ctx context.Context, token, email string) error
	Lookup(ctx context.Context, token string) (string, bool, error)
	Delete(ctx context.Context, token string) (bool, error)
}

type TokenMailer interface {
	SendLoginToken(ctx context.Context, to, token string) error
}

type AuthService struct {
	users         UserStore
	tokens        LoginTokenStore
	mailer        TokenMailer
	logger        *zap.Logger
	jwtSecret     string
	jwtExpiration time.Duration
	allowedDomain string
	debugTokens   bool
}

type AuthOptions struct {
	JWTSecret     string
	JWTExpiration time.Duration
	AllowedDomain string
	DebugTokens   bool
}

type RegisterResult struct {
	Message    string
	DebugToken string
}

type AuthResult struct {
	Token string
	Email string
}

func NewAuthService(users UserStore, tokens LoginTokenStore, mailer TokenMailer, logger *zap.Logger, opts AuthOptions) *AuthService {
	return &AuthService{
		users:         users,
		tokens:        tokens,
		mailer:        mailer,
		logger:        logger,
		jwtSecret:     opts.JWTSecret,
		jwtExpiration: opts.JWTExpiration,
		allowedDomain: strings.ToLower(strings.TrimSpace(opts.AllowedDomain)),
		debugTokens:   opts.DebugTokens,
	}
}

// DomainError is the message shown when an email outside the allowed domain
// tries to register.
func (s *AuthService) DomainError() string {
	return fmt.Sprintf("Only %s emails are allowed", s.allowedDomain)
}

// Register issues a one-time login token for email and sends it out of band.
func (s *AuthService) Register(ctx context.Context, email string) (*RegisterResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if s.allowedDomain != "" && !strings.HasSuffix(email, "@"+s.allowedDomain) {
		return nil, ErrEmailDomain
	}

	if _, err := s.users.EnsureByEmail(email); err != nil {
		return nil, err
	}

	token, err := newLoginToken()
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Save(ctx, token, email); err != nil {
		return nil, err
	}

	if err := s.mailer.SendLoginToken(ctx, email, token); err != nil {
		s.logger.Warn("login token not delivered", zap.String("email", email), zap.Error(err))
		if s.debugTokens {
			return &RegisterResult{Message: registerDebugMessage, DebugToken: token}, nil
		}
	}
	return &RegisterResult{Message: registerSentMessage}, nil
}

// Login exchanges a login token for an access token. A token issued for a
// different email is rejected without being consumed.
func (s *AuthService) Login(ctx context.Context, email, token string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}

	owner, found, err := s.tokens.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrTokenInvalid
	}
	if owner != email {
		return nil, ErrTokenMismatch
	}

	consumed, err := s.tokens.Delete(ctx, token)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, ErrTokenInvalid
	}

	accessToken, err := jwtutil.GenerateToken(s.jwtSecret, s.jwtExpiration, email)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", zap.String("email", email))
	return &AuthResult{Token: accessToken, Email: email}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrInvalidInput
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidInput
	}
	return email, nil
}

func newLoginToken() (string, error) {
	buf := make([]byte, loginTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate login token failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
