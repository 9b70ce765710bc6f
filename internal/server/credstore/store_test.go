package credstore

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/heimdallr/internal/common"
	"github.com/dmitrijs2005/heimdallr/internal/dbx"
	"github.com/dmitrijs2005/heimdallr/internal/logging"
	"github.com/dmitrijs2005/heimdallr/internal/secrets"
	"github.com/dmitrijs2005/heimdallr/internal/server/auth"
	"github.com/dmitrijs2005/heimdallr/internal/server/models"
	"github.com/dmitrijs2005/heimdallr/internal/server/repositories/users"
)

const (
	testSecretEnv = "HEIMDALLR_TEST_SECRET"
	testSecret    = "supercalifragilisticexpialidocious"
)

// --- fakes ---

// memUsersRepo is an in-memory users.Repository with atomic duplicate
// detection on insert, mimicking the schema-level unique constraint.
type memUsersRepo struct {
	mu      sync.Mutex
	nextID  int64
	byEmail map[string]*models.User

	// skipPrecheck makes EmailExists always report false, forcing every
	// duplicate to be caught by Create, as in the cross-request race.
	skipPrecheck bool

	// existsErr makes EmailExists fail, simulating a query error on the
	// pinned connection.
	existsErr error

	existsCalls int
	createCalls int
}

func newMemUsersRepo() *memUsersRepo {
	return &memUsersRepo{byEmail: make(map[string]*models.User)}
}

func (r *memUsersRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.existsCalls++
	if r.existsErr != nil {
		return false, r.existsErr
	}
	if r.skipPrecheck {
		return false, nil
	}
	_, ok := r.byEmail[email]
	return ok, nil
}

func (r *memUsersRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if _, ok := r.byEmail[user.Email]; ok {
		return nil, common.ErrDuplicateEmail
	}
	r.nextID++
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	r.byEmail[user.Email] = &clone
	return user, nil
}

func (r *memUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	clone := *u
	return &clone, nil
}

type fakeRepoManager struct {
	repo users.Repository
}

func (m *fakeRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }

func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository { return m.repo }

// --- helpers ---

func newTestStoreMock(t *testing.T, repo users.Repository, secretValue string, workers int) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	t.Setenv(testSecretEnv, secretValue)
	sp := secrets.NewProvider(testSecretEnv)

	l := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	s := NewStore(db, &fakeRepoManager{repo: repo}, sp, l, workers, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		s.Wait()
	})
	require.NoError(t, s.Start(ctx))

	return s, mock
}

func newTestStore(t *testing.T, repo users.Repository, secretValue string) *Store {
	t.Helper()

	s, mock := newTestStoreMock(t, repo, secretValue, 4)

	// Every write opens a transaction on the worker's connection; repository
	// calls themselves go to the fake. Allow any interleaving of begins,
	// commits and rollbacks.
	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 64; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
		mock.ExpectRollback()
	}

	return s
}

// --- CreateUser ---

func TestCreateUser_Success(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, testSecret)

	u, err := s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), u.ID)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", u.UUID.String())
	assert.Equal(t, "a@example.com", u.Email)
	assert.NotEmpty(t, u.PasswordDigest)
	assert.NotEqual(t, "secret1", u.PasswordDigest, "digest must never be the raw password")
	assert.False(t, u.CreatedAt.IsZero())
}

func TestCreateUser_InvalidEmail(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, testSecret)

	_, err := s.CreateUser(context.Background(), CreateUser{Email: "not-an-email", Password: "secret1"})
	assert.True(t, errors.Is(err, common.ErrInvalidEmail), "got %v", err)
	assert.Zero(t, repo.existsCalls, "validation errors must not touch the store")
	assert.Zero(t, repo.createCalls)
}

func TestCreateUser_WeakPassword(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, testSecret)

	_, err := s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "abc"})
	assert.True(t, errors.Is(err, common.ErrWeakPassword), "got %v", err)
	assert.Zero(t, repo.existsCalls)
	assert.Zero(t, repo.createCalls)
}

func TestCreateUser_MinimumPasswordBoundary(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, testSecret)

	_, err := s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "abcd"})
	assert.NoError(t, err, "4-character password is the accepted minimum")
}

func TestCreateUser_DuplicateViaPrecheck(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, testSecret)

	_, err := s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, common.ErrDuplicateEmail), "got %v", err)
}

func TestCreateUser_DuplicateViaConstraint(t *testing.T) {
	// Pre-check passes, insert hits the unique constraint: the outcome must
	// be identical to the pre-check rejection.
	repo := newMemUsersRepo()
	repo.skipPrecheck = true
	s := newTestStore(t, repo, testSecret)

	_, err := s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, common.ErrDuplicateEmail), "got %v", err)
}

func TestCreateUser_ConcurrentSameEmail_OneWinner(t *testing.T) {
	repo := newMemUsersRepo()
	repo.skipPrecheck = true // force all duplicates through the insert path
	s := newTestStore(t, repo, testSecret)

	const n = 8
	results := make(chan error, n)

	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < n; i++ {
		go func() {
			start.Wait()
			_, err := s.CreateUser(context.Background(), CreateUser{Email: "race@example.com", Password: "secret1"})
			results <- err
		}()
	}
	start.Done()

	var successes, duplicates int
	for i := 0; i < n; i++ {
		err := <-results
		switch {
		case err == nil:
			successes++
		case errors.Is(err, common.ErrDuplicateEmail):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes, "exactly one concurrent CreateUser must win")
	assert.Equal(t, n-1, duplicates)
}

func TestCreateUser_MissingSecret(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, "")

	_, err := s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, common.ErrHashingFailed), "got %v", err)
	assert.Zero(t, repo.createCalls, "no record may be left behind on hash failure")
}

// --- UserLogin ---

func TestUserLogin_Success(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, testSecret)

	u, err := s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	token, err := s.UserLogin(context.Background(), UserLogin{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ParseClaims(token, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, u.UUID.String(), claims.Subject)
	assert.Equal(t, int64(3600), claims.ExpiresAt.Unix()-claims.IssuedAt.Unix())
}

func TestUserLogin_WrongPassword(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, testSecret)

	_, err := s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = s.UserLogin(context.Background(), UserLogin{Email: "a@example.com", Password: "wrong"})
	assert.True(t, errors.Is(err, common.ErrInvalidCredentials), "got %v", err)
}

func TestUserLogin_UnknownEmail_SameOutcome(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, testSecret)

	_, err := s.UserLogin(context.Background(), UserLogin{Email: "nobody@example.com", Password: "x"})
	assert.True(t, errors.Is(err, common.ErrInvalidCredentials),
		"unknown email must be indistinguishable from a wrong password, got %v", err)
}

func TestUserLogin_MalformedDigest(t *testing.T) {
	// Corrupted or tampered digest rows must look exactly like a wrong
	// password, including well-formed-looking ones with empty salt/key
	// fields.
	digests := map[string]string{
		"garbage":    "garbage",
		"empty tail": "$argon2id$v=19$m=65536,t=1,p=4$$",
	}

	for name, digest := range digests {
		t.Run(name, func(t *testing.T) {
			repo := newMemUsersRepo()
			s := newTestStore(t, repo, testSecret)

			repo.mu.Lock()
			repo.byEmail["broken@example.com"] = &models.User{ID: 1, Email: "broken@example.com", PasswordDigest: digest}
			repo.mu.Unlock()

			_, err := s.UserLogin(context.Background(), UserLogin{Email: "broken@example.com", Password: "whatever"})
			assert.True(t, errors.Is(err, common.ErrInvalidCredentials),
				"malformed digest must look like a wrong password, got %v", err)
		})
	}
}

// --- end to end ---

func TestEndToEndScenario(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, testSecret)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, CreateUser{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotEmpty(t, u.UUID.String())

	_, err = s.CreateUser(ctx, CreateUser{Email: "a@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, common.ErrDuplicateEmail))

	token, err := s.UserLogin(ctx, UserLogin{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = s.UserLogin(ctx, UserLogin{Email: "a@example.com", Password: "wrong"})
	assert.True(t, errors.Is(err, common.ErrInvalidCredentials))

	_, err = s.UserLogin(ctx, UserLogin{Email: "nobody@example.com", Password: "x"})
	assert.True(t, errors.Is(err, common.ErrInvalidCredentials))
}

func TestCreateUser_ExistenceCheckFailure(t *testing.T) {
	repo := newMemUsersRepo()
	repo.existsErr = errors.New("connection reset by peer")
	s := newTestStore(t, repo, testSecret)

	_, err := s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, common.ErrStoreWrite), "got %v", err)
	assert.Zero(t, repo.createCalls)
}

func TestCreateUser_RunsInOneTransaction(t *testing.T) {
	repo := newMemUsersRepo()
	s, mock := newTestStoreMock(t, repo, testSecret, 1)

	mock.ExpectBegin()
	mock.ExpectCommit()

	_, err := s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet(), "a successful create must begin and commit")

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = s.CreateUser(context.Background(), CreateUser{Email: "a@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, common.ErrDuplicateEmail), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet(), "a rejected create must roll back")
}

// panicRepo blows up on lookup, standing in for any unexpected repository
// bug a single request might trigger.
type panicRepo struct {
	*memUsersRepo
}

func (r *panicRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	panic("poisoned row")
}

func TestWorker_SurvivesPanickingOperation(t *testing.T) {
	repo := &panicRepo{memUsersRepo: newMemUsersRepo()}
	s := newTestStore(t, repo, testSecret)

	_, err := s.UserLogin(context.Background(), UserLogin{Email: "a@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, common.ErrorInternal), "got %v", err)

	// the pool must still be serving requests afterwards
	for i := 0; i < 8; i++ {
		_, err := s.CreateUser(context.Background(), CreateUser{Email: "not-an-email", Password: "secret1"})
		assert.True(t, errors.Is(err, common.ErrInvalidEmail), "got %v", err)
	}
}

func TestSubmit_CancelledContext(t *testing.T) {
	repo := newMemUsersRepo()
	s := newTestStore(t, repo, testSecret)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.CreateUser(ctx, CreateUser{Email: "a@example.com", Password: "secret1"})
	assert.True(t, errors.Is(err, common.ErrStoreUnavailable), "got %v", err)
}
