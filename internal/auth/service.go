package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sourceflow/backend/internal/email"
	"github.com/sourceflow/backend/internal/models"
	"github.com/sourceflow/backend/internal/repository"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidResetToken is returned when a reset token is unknown or expired.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
)

// AccountStore is the minimal account repository interface for auth.
type AccountStore interface {
	Create(ctx context.Context, a *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	SetPasswordReset(ctx context.Context, id uuid.UUID, token string, expiry time.Time) error
	GetByResetToken(ctx context.Context, token string) (*models.Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// BonusGranter credits the signup bonus through the ledger so the balance
// invariant holds from the account's first moment.
type BonusGranter interface {
	Credit(ctx context.Context, accountID uuid.UUID, amount int, kind models.LedgerEntryKind) (int, error)
}

// EnqueueEmailFunc inserts a password reset email job. Wired to River after
// the client is built.
type EnqueueEmailFunc func(ctx context.Context, args email.SendPasswordResetArgs) error

type Service interface {
	Register(ctx context.Context, emailAddr, password, country string) (*models.Account, string, error)
	Login(ctx context.Context, emailAddr, password string) (*models.Account, string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
	ForgotPassword(ctx context.Context, emailAddr string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

type service struct {
	accounts     AccountStore
	ledger       BonusGranter
	enqueueEmail EnqueueEmailFunc
	secret       []byte
	signupBonus  int
	appBaseURL   string

	now func() time.Time
}

func NewService(accounts AccountStore, ledger BonusGranter, enqueueEmail EnqueueEmailFunc, secret string, signupBonus int, appBaseURL string) Service {
	return &service{
		accounts:     accounts,
		ledger:       ledger,
		enqueueEmail: enqueueEmail,
		secret:       []byte(secret),
		signupBonus:  signupBonus,
		appBaseURL:   appBaseURL,
		now:          time.Now,
	}
}

var _ Service = (*service)(nil)

func (s *service) Register(ctx context.Context, emailAddr, password, country string) (*models.Account, string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}
	acc := &models.Account{
		ID:           uuid.New(),
		Email:        emailAddr,
		PasswordHash: string(hash),
		Country:      country,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, "", ErrDuplicateEmail
		}
		return nil, "", err
	}
	if s.signupBonus > 0 {
		newBalance, err := s.ledger.Credit(ctx, acc.ID, s.signupBonus, models.LedgerEntrySignupBonus)
		if err != nil {
			return nil, "", err
		}
		acc.CreditBalance = newBalance
	}
	token, err := s.issueToken(acc.ID)
	if err != nil {
		return nil, "", err
	}
	return acc, token, nil
}

func (s *service) Login(ctx context.Context, emailAddr, password string) (*models.Account, string, error) {
	acc, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		return nil, "", err
	}
	if acc == nil {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.issueToken(acc.ID)
	if err != nil {
		return nil, "", err
	}
	return acc, token, nil
}

func (s *service) issueToken(accountID uuid.UUID) (string, error) {
	c := jwt.RegisteredClaims{
		Subject:   accountID.String(),
		ExpiresAt: jwt.NewNumericDate(s.now().Add(7 * 24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(s.now()),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	c, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || !tok.Valid {
		return uuid.Nil, errors.New("invalid token")
	}
	return uuid.Parse(c.Subject)
}

// ForgotPassword always succeeds from the caller's perspective so email
// addresses cannot be enumerated.
func (s *service) ForgotPassword(ctx context.Context, emailAddr string) error {
	acc, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if acc == nil {
		return nil
	}
	token, err := randomToken()
	if err != nil {
		return err
	}
	if err := s.accounts.SetPasswordReset(ctx, acc.ID, token, s.now().Add(time.Hour)); err != nil {
		return err
	}
	return s.enqueueEmail(ctx, email.SendPasswordResetArgs{
		Email:     acc.Email,
		ResetLink: s.appBaseURL + "/reset-password?token=" + token,
	})
}

func (s *service) ResetPassword(ctx context.Context, token, newPassword string) error {
	acc, err := s.accounts.GetByResetToken(ctx, token)
	if err != nil {
		return err
	}
	if acc == nil {
		return ErrInvalidResetToken
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.accounts.UpdatePassword(ctx, acc.ID, string(hash))
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
