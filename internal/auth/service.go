package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/artspark/backend/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDuplicateEmail     = errors.New("an account with this email already exists")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const sessionTTL = 24 * time.Hour

// AccountStore is the account persistence the auth service needs.
type AccountStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, a *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// BonusLedger credits the signup bonus inside the registration transaction.
type BonusLedger interface {
	CreditTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, taskID *uuid.UUID, reference *string, entryType string, amount decimal.Decimal) (decimal.Decimal, error)
}

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service handles registration, login and session-token verification.
type Service interface {
	Register(ctx context.Context, email, displayName, password string) (*models.Account, string, error)
	Login(ctx context.Context, email, password string) (*models.Account, string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

type service struct {
	accounts AccountStore
	credits  BonusLedger
	db       TxBeginner
	secret   []byte
}

var _ Service = (*service)(nil)

func NewService(accounts AccountStore, credits BonusLedger, db TxBeginner, jwtSecret string) Service {
	return &service{accounts: accounts, credits: credits, db: db, secret: []byte(jwtSecret)}
}

// Register creates the account and credits the signup bonus in one
// transaction, so an account never exists without its welcome entry.
func (s *service) Register(ctx context.Context, email, displayName, password string) (*models.Account, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("invalid email %q", email)
	}
	if len(password) < 8 {
		return nil, "", errors.New("password must be at least 8 characters")
	}
	if displayName = strings.TrimSpace(displayName); displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin register tx: %w", err)
	}
	defer tx.Rollback(ctx)

	acc := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Balance:      decimal.Zero,
	}
	if err := s.accounts.CreateTx(ctx, tx, acc); err != nil {
		if isUniqueViolation(err) {
			return nil, "", ErrDuplicateEmail
		}
		return nil, "", fmt.Errorf("create account: %w", err)
	}

	ref := "signup:" + acc.ID.String()
	balance, err := s.credits.CreditTx(ctx, tx, acc.ID, nil, &ref, models.EntrySignupBonus, models.SignupBonus)
	if err != nil {
		return nil, "", fmt.Errorf("credit signup bonus: %w", err)
	}
	acc.Balance = balance

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit register tx: %w", err)
	}

	token, err := s.issueToken(acc.ID)
	if err != nil {
		return nil, "", err
	}
	return acc, token, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*models.Account, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		// Same answer for unknown email and wrong password.
		return nil, "", ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.issueToken(acc.ID)
	if err != nil {
		return nil, "", err
	}
	return acc, token, nil
}

func (s *service) ValidateToken(_ context.Context, raw string) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	claims, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

func (s *service) issueToken(accountID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
