package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/prok/internal/auth"
	"github.com/BradenHooton/prok/internal/models"
	pkgauth "github.com/BradenHooton/prok/pkg/auth"
	pkglogger "github.com/BradenHooton/prok/pkg/logger"
)

// AccountRepository is the user store collaborator
type AccountRepository interface {
	GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
}

// PasswordHasher hashes new passwords and verifies stored ones
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// TokenIssuer mints bearer tokens for authenticated accounts
type TokenIssuer interface {
	GenerateAccessToken(account *models.Account) (*auth.IssuedToken, error)
}

const notifyTimeout = 10 * time.Second

// dummyPassword is hashed once at startup. Logins for unknown identifiers
// verify against it so both failure paths cost one hash computation.
const dummyPassword = "prok-timing-equalizer-0"

// AuthService runs the signup and login flows
type AuthService struct {
	repo        AccountRepository
	hasher      PasswordHasher
	tokens      TokenIssuer
	lockout     *LockoutService
	notifier    LockoutNotifier
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	dummyHash   string
	pending     sync.WaitGroup
}

func NewAuthService(repo AccountRepository, hasher PasswordHasher, tokens TokenIssuer, lockout *LockoutService, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) (*AuthService, error) {
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}

	return &AuthService{
		repo:        repo,
		hasher:      hasher,
		tokens:      tokens,
		lockout:     lockout,
		notifier:    NoopLockoutNotifier{},
		timing:      auth.NoTimingDelay(),
		logger:      logger,
		auditLogger: auditLogger,
		dummyHash:   dummyHash,
	}, nil
}

// SetNotifier enables lockout notices
func (s *AuthService) SetNotifier(n LockoutNotifier) {
	s.notifier = n
}

// SetTimingDelay pads failed logins to a minimum latency
func (s *AuthService) SetTimingDelay(td *auth.TimingDelay) {
	s.timing = td
}

// Wait blocks until in-flight lockout notices have been sent
func (s *AuthService) Wait() {
	s.pending.Wait()
}

// LoginInput is a login request after decoding
type LoginInput struct {
	Identifier string
	Password   string
	Origin     string
}

// LoginResult is returned on successful authentication
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// Login authenticates an identifier/password pair.
//
// Errors: *models.ValidationError for missing fields, *models.LockoutError
// while locked, models.ErrInvalidCredentials for unknown identifier or wrong
// password, models.ErrInternalServer for collaborator failures.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	identifier := pkgauth.NormalizeIdentifier(in.Identifier)
	if identifier == "" || in.Password == "" {
		return nil, &models.ValidationError{Reason: string(pkgauth.ReasonMissingFields)}
	}

	if err := s.lockout.Check(ctx, identifier, in.Origin); err != nil {
		s.auditBlocked(err, identifier, in.Origin)
		return nil, err
	}

	start := time.Now()

	account, err := s.repo.GetByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to look up account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// The other identifier of the account shares its lockout
	aliases := accountAliases(account)
	if len(aliases) > 0 {
		if err := s.lockout.Check(ctx, "", "", aliases...); err != nil {
			s.auditBlocked(err, identifier, in.Origin)
			return nil, err
		}
	}

	if !s.verify(in.Password, account) {
		s.recordFailure(ctx, identifier, in.Origin, account)
		s.timing.WaitFrom(ctx, start)
		return nil, models.ErrInvalidCredentials
	}

	if err := s.lockout.RecordSuccess(ctx, identifier, in.Origin, aliases...); err != nil {
		s.logger.Error("failed to clear login attempts", slog.String("account_id", account.ID), slog.Any("error", err))
	}

	issued, err := s.tokens.GenerateAccessToken(account)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("account_id", account.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("account logged in", slog.String("account_id", account.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:  "login_success",
		AccountID:  account.ID,
		Identifier: identifier,
		IPAddress:  in.Origin,
		Success:    true,
	})

	return &LoginResult{
		Token:     issued.Token,
		ExpiresAt: issued.ExpiresAt,
		Account:   account,
	}, nil
}

// accountAliases lists every identifier an account can log in with
func accountAliases(account *models.Account) []string {
	if account == nil {
		return nil
	}
	return []string{account.Username, account.Email}
}

func (s *AuthService) auditBlocked(err error, identifier, origin string) {
	var lockErr *models.LockoutError
	if !errors.As(err, &lockErr) {
		return
	}
	until := lockErr.Until
	s.logger.Info("login blocked: locked out")
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_blocked",
		Identifier:    identifier,
		IPAddress:     origin,
		FailureReason: "account_locked",
		LockoutUntil:  &until,
	})
}

// verify checks the password, burning a hash against the dummy when the
// account is unknown. A corrupt stored hash counts as a mismatch.
func (s *AuthService) verify(password string, account *models.Account) bool {
	if account == nil {
		_, _ = s.hasher.Verify(password, s.dummyHash)
		return false
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash is unreadable",
			slog.String("account_id", account.ID),
			slog.Any("error", err))
		return false
	}
	return ok
}

func (s *AuthService) recordFailure(ctx context.Context, identifier, origin string, account *models.Account) {
	event := pkglogger.AuditEvent{
		EventType:     "login_failed",
		Identifier:    identifier,
		IPAddress:     origin,
		FailureReason: "invalid_credentials",
	}
	if account != nil {
		event.AccountID = account.ID
	}

	result, err := s.lockout.RecordFailure(ctx, identifier, origin, accountAliases(account)...)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
	}

	s.logger.Info("login failed: invalid credentials")
	s.auditLogger.LogAuthAttempt(event)

	if result.IdentifierLocked || result.OriginLocked {
		locked := event
		locked.EventType = "lockout_opened"
		locked.FailureReason = "too_many_failures"
		if result.IdentifierLocked {
			locked.LockoutUntil = result.Identifier.LockoutUntil
		} else {
			locked.LockoutUntil = result.Origin.LockoutUntil
		}
		s.auditLogger.LogAuthAttempt(locked)
	}

	if result.IdentifierLocked && account != nil {
		s.notifyLockout(account, *result.Identifier.LockoutUntil)
	}
}

// notifyLockout sends the notice in the background so the login response
// never waits on the mail provider
func (s *AuthService) notifyLockout(account *models.Account, until time.Time) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := s.notifier.NotifyLockout(ctx, account, until); err != nil {
			s.logger.Warn("lockout notice not delivered",
				slog.String("account_id", account.ID),
				slog.Any("error", err))
		}
	}()
}

// SignupInput is a signup request after decoding
type SignupInput struct {
	Username string
	Email    string
	Password string
	Name     string
	Origin   string
}

// Signup validates, hashes and stores a new account.
//
// Errors: *models.ValidationError (missing_fields, invalid_email,
// weak_password), models.ErrConflict for a taken username or email,
// models.ErrInternalServer otherwise.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*models.Account, error) {
	username := pkgauth.NormalizeIdentifier(in.Username)
	email := pkgauth.NormalizeIdentifier(in.Email)

	if reason, ok := pkgauth.ValidateSignup(username, email, in.Password); !ok {
		return nil, &models.ValidationError{Reason: string(reason)}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	name := in.Name
	if name == "" {
		name = username
	}

	account, err := s.repo.Create(ctx, &models.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Name:         name,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("signup rejected: duplicate account")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("account created", slog.String("account_id", account.ID))
	s.auditLogger.LogAccountAction("signup", account.ID, in.Origin)

	return account, nil
}

// Me returns the account behind a verified token subject
func (s *AuthService) Me(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to load account", slog.String("account_id", accountID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return account, nil
}
