package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/prok/internal/auth"
	"github.com/BradenHooton/prok/internal/models"
	"github.com/BradenHooton/prok/internal/repositories"
	pkgauth "github.com/BradenHooton/prok/pkg/auth"
	pkglogger "github.com/BradenHooton/prok/pkg/logger"
	"github.com/stretchr/testify/require"
)

// MockAccountRepository implements AccountRepository for testing.
// Without funcs set it serves the accounts it was seeded with.
type MockAccountRepository struct {
	mu       sync.Mutex
	accounts []*models.Account

	GetByIdentifierFunc func(ctx context.Context, identifier string) (*models.Account, error)
	GetByIDFunc         func(ctx context.Context, id string) (*models.Account, error)
	CreateFunc          func(ctx context.Context, account *models.Account) (*models.Account, error)
}

func NewMockAccountRepository(accounts ...*models.Account) *MockAccountRepository {
	return &MockAccountRepository{accounts: accounts}
}

func (m *MockAccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Account, error) {
	if m.GetByIdentifierFunc != nil {
		return m.GetByIdentifierFunc(ctx, identifier)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Username == identifier || a.Email == identifier {
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Usernames and emails share one namespace, as in the accounts schema
	for _, a := range m.accounts {
		for _, taken := range []string{a.Username, a.Email} {
			if taken == account.Username || taken == account.Email {
				return nil, models.ErrConflict
			}
		}
	}
	account.ID = "acct-" + account.Username
	m.accounts = append(m.accounts, account)
	return account, nil
}

// fakeHasher stores "plain:<password>" and counts Verify calls
type fakeHasher struct {
	verifyCalls atomic.Int32
	hashErr     error
}

func (h *fakeHasher) Hash(password string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "plain:" + password, nil
}

func (h *fakeHasher) Verify(password, encoded string) (bool, error) {
	h.verifyCalls.Add(1)
	if !strings.HasPrefix(encoded, "plain:") {
		return false, pkgauth.ErrInvalidHash
	}
	return encoded == "plain:"+password, nil
}

// calls reports how many verifications ran
func (h *fakeHasher) calls() int {
	return int(h.verifyCalls.Load())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier captures lockout notices
type recordingNotifier struct {
	mu      sync.Mutex
	notices []string
	err     error
}

func (n *recordingNotifier) NotifyLockout(ctx context.Context, account *models.Account, until time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, account.Email)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notices)
}

// failingStore is an AttemptStore whose backend is unreachable
type failingStore struct{}

var errStoreDown = errors.New("store unavailable")

func (failingStore) Check(ctx context.Context, key string, now time.Time) (*models.LoginAttemptRecord, error) {
	return nil, errStoreDown
}

func (failingStore) RecordFailure(ctx context.Context, key string, maxAttempts int, lockout time.Duration, now time.Time) (*models.LoginAttemptRecord, bool, error) {
	return nil, false, errStoreDown
}

func (failingStore) Reset(ctx context.Context, keys ...string) error { return errStoreDown }

func (failingStore) Get(ctx context.Context, key string) (*models.LoginAttemptRecord, error) {
	return nil, errStoreDown
}

func (failingStore) Sweep(ctx context.Context, now time.Time, staleAfter time.Duration) (int, error) {
	return 0, errStoreDown
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testPassword = "correct-horse1"

func NewTestAccount(id, username, email, password string) *models.Account {
	now := time.Now()
	return &models.Account{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: "plain:" + password,
		Name:         username,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// authFixture wires an AuthService over in-memory collaborators and a fake clock
type authFixture struct {
	service  *AuthService
	lockout  *LockoutService
	repo     *MockAccountRepository
	hasher   *fakeHasher
	clock    *fakeClock
	notifier *recordingNotifier
	tokens   *auth.TokenManager
}

func newAuthFixture(t *testing.T, store AttemptStore, cfg LockoutConfig, accounts ...*models.Account) *authFixture {
	t.Helper()

	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if store == nil {
		store = repositories.NewMemoryAttemptStore()
	}
	lockout := NewLockoutService(store, cfg, testLogger())
	lockout.SetClock(clock.Now)

	tokens, err := auth.NewTokenManager("test-secret-32-characters-long!!", time.Hour)
	require.NoError(t, err)
	tokens.SetClock(clock.Now)

	repo := NewMockAccountRepository(accounts...)
	hasher := &fakeHasher{}
	service, err := NewAuthService(repo, hasher, tokens, lockout, testLogger(), pkglogger.NewAuditLogger(testLogger()))
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	service.SetNotifier(notifier)

	return &authFixture{
		service:  service,
		lockout:  lockout,
		repo:     repo,
		hasher:   hasher,
		clock:    clock,
		notifier: notifier,
		tokens:   tokens,
	}
}

func (f *authFixture) login(identifier, password, origin string) (*LoginResult, error) {
	return f.service.Login(context.Background(), LoginInput{Identifier: identifier, Password: password, Origin: origin})
}
