// Package credstore implements the credential store: the single component
// with access to persisted user records. Requests are dispatched to a fixed
// pool of workers through a mailbox channel; each worker pins one database
// connection for its lifetime, so connection usage is bounded by the pool
// size. Writes run inside a transaction on the worker's connection, so the
// duplicate pre-check and the insert are one atomic unit.
package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/heimdallr/internal/common"
	"github.com/dmitrijs2005/heimdallr/internal/dbx"
	"github.com/dmitrijs2005/heimdallr/internal/logging"
	"github.com/dmitrijs2005/heimdallr/internal/password"
	"github.com/dmitrijs2005/heimdallr/internal/secrets"
	"github.com/dmitrijs2005/heimdallr/internal/server/auth"
	"github.com/dmitrijs2005/heimdallr/internal/server/models"
	"github.com/dmitrijs2005/heimdallr/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/heimdallr/internal/validation"
)

// DefaultWorkers is the pool size used when the configuration does not
// specify one.
const DefaultWorkers = 5

// CreateUser is a request to register a new account.
type CreateUser struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserLogin is a request to authenticate and obtain a bearer token.
type UserLogin struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// response carries the outcome of one request back to its submitter.
type response struct {
	user  *models.User
	token string
	err   error
}

// conntx is the handle a worker gives each operation: the pinned connection,
// usable directly for reads and as a transaction root for writes. *sql.Conn
// satisfies it.
type conntx interface {
	dbx.DBTX
	dbx.TxBeginner
}

// envelope pairs an operation with its private response channel.
type envelope struct {
	exec func(ctx context.Context, conn conntx) response
	done chan response
}

// Store serializes all credential operations through its worker pool.
type Store struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	secrets  *secrets.Provider
	logger   logging.Logger
	tokenTTL time.Duration
	workers  int
	mailbox  chan envelope
	wg       sync.WaitGroup
}

// NewStore builds a Store. workers <= 0 falls back to DefaultWorkers.
func NewStore(db *sql.DB, rm repomanager.RepositoryManager, sp *secrets.Provider, l logging.Logger, workers int, tokenTTL time.Duration) *Store {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Store{
		db:       db,
		repos:    rm,
		secrets:  sp,
		logger:   l.With("module", "credstore"),
		tokenTTL: tokenTTL,
		workers:  workers,
		mailbox:  make(chan envelope),
	}
}

// Start pins one connection per worker and launches the pool. It fails with
// common.ErrStoreUnavailable if a connection cannot be obtained. Workers run
// until ctx is cancelled; use Wait to block until they have drained.
func (s *Store) Start(ctx context.Context) error {
	conns := make([]*sql.Conn, 0, s.workers)
	for i := 0; i < s.workers; i++ {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			for _, c := range conns {
				_ = c.Close()
			}
			return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
		}
		conns = append(conns, conn)
	}

	for i, conn := range conns {
		s.wg.Add(1)
		go s.worker(ctx, i, conn)
	}

	s.logger.Info(ctx, "credential store started", "workers", s.workers)
	return nil
}

// Wait blocks until all workers have exited.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) worker(ctx context.Context, id int, conn *sql.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()

	log := s.logger.With("worker", id)

	for {
		select {
		case <-ctx.Done():
			log.Debug(ctx, "worker stopping")
			return
		case env := <-s.mailbox:
			env.done <- s.run(ctx, env, conn)
		}
	}
}

// run executes one envelope, converting a panic into an internal error so a
// single poisoned request cannot kill the worker.
func (s *Store) run(ctx context.Context, env envelope, conn conntx) (resp response) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error(ctx, "credential operation panicked", "panic", p, "stack", string(debug.Stack()))
			resp = response{err: common.ErrorInternal}
		}
	}()
	return env.exec(ctx, conn)
}

// submit places an envelope in the mailbox and waits for the result. Both
// waits honor ctx, but an abandoned wait does not stop the operation: the
// done channel is buffered, so the worker never blocks on delivery.
func (s *Store) submit(ctx context.Context, exec func(ctx context.Context, conn conntx) response) response {
	env := envelope{exec: exec, done: make(chan response, 1)}

	select {
	case s.mailbox <- env:
	case <-ctx.Done():
		return response{err: fmt.Errorf("%w: %v", common.ErrStoreUnavailable, ctx.Err())}
	}

	select {
	case resp := <-env.done:
		return resp
	case <-ctx.Done():
		return response{err: fmt.Errorf("%w: %v", common.ErrStoreUnavailable, ctx.Err())}
	}
}

// CreateUser registers a new account. Validation errors are returned without
// touching the store. The existence pre-check and the insert run in one
// transaction on the worker's connection; the pre-check gives a fast
// rejection, while correctness under concurrent duplicates rests on the
// schema-level unique constraint, whose violation the repository reports as
// the same common.ErrDuplicateEmail.
func (s *Store) CreateUser(ctx context.Context, req CreateUser) (*models.User, error) {
	resp := s.submit(ctx, func(ctx context.Context, conn conntx) response {
		return s.createUser(ctx, conn, req)
	})
	return resp.user, resp.err
}

// UserLogin authenticates the credentials and returns a signed bearer token.
// An unknown email and a wrong password produce the same
// common.ErrInvalidCredentials; the distinction exists only in logs.
func (s *Store) UserLogin(ctx context.Context, req UserLogin) (string, error) {
	resp := s.submit(ctx, func(ctx context.Context, conn conntx) response {
		return s.userLogin(ctx, conn, req)
	})
	return resp.token, resp.err
}

func (s *Store) createUser(ctx context.Context, conn conntx, req CreateUser) response {
	if err := validation.ValidateEmail(req.Email); err != nil {
		return response{err: err}
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return response{err: err}
	}

	var created *models.User

	err := dbx.WithTx(ctx, conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.Users(tx)

		exists, err := repo.EmailExists(ctx, req.Email)
		if err != nil {
			s.logger.Error(ctx, "existence check failed", "error", err)
			return common.ErrStoreWrite
		}
		if exists {
			return common.ErrDuplicateEmail
		}

		secret, err := s.secrets.Resolve()
		if err != nil {
			s.logger.Error(ctx, "secret resolution failed", "error", err)
			return common.ErrHashingFailed
		}

		digest, err := password.Hash(req.Password, secret)
		if err != nil {
			s.logger.Error(ctx, "password hashing failed", "error", err)
			return common.ErrHashingFailed
		}

		user := &models.User{
			UUID:           uuid.New(),
			Email:          req.Email,
			PasswordDigest: digest,
		}

		created, err = repo.Create(ctx, user)
		if err != nil {
			if errors.Is(err, common.ErrDuplicateEmail) {
				// Lost the check-then-act race; same outcome as the pre-check.
				return common.ErrDuplicateEmail
			}
			s.logger.Error(ctx, "user insert failed", "error", err)
			return common.ErrStoreWrite
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrDuplicateEmail),
			errors.Is(err, common.ErrHashingFailed),
			errors.Is(err, common.ErrStoreWrite):
			return response{err: err}
		default:
			// begin/commit failure on the pinned connection
			s.logger.Error(ctx, "create transaction failed", "error", err)
			return response{err: common.ErrStoreWrite}
		}
	}

	s.logger.Info(ctx, "user created", "uuid", created.UUID.String())
	return response{user: created}
}

func (s *Store) userLogin(ctx context.Context, conn conntx, req UserLogin) response {
	repo := s.repos.Users(conn)

	user, err := repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Debug(ctx, "login for unknown email")
			return response{err: common.ErrInvalidCredentials}
		}
		s.logger.Error(ctx, "user lookup failed", "error", err)
		return response{err: common.ErrStoreUnavailable}
	}

	secret, err := s.secrets.Resolve()
	if err != nil {
		s.logger.Error(ctx, "secret resolution failed", "error", err)
		return response{err: common.ErrorInternal}
	}

	ok, err := password.Verify(req.Password, user.PasswordDigest, secret)
	if err != nil {
		// Structural digest problem; externally identical to a wrong password.
		s.logger.Warn(ctx, "digest verification failed structurally", "uuid", user.UUID.String(), "error", err)
		return response{err: common.ErrInvalidCredentials}
	}
	if !ok {
		return response{err: common.ErrInvalidCredentials}
	}

	token, err := auth.IssueToken(user.UUID.String(), []byte(secret), time.Now(), s.tokenTTL)
	if err != nil {
		s.logger.Error(ctx, "token issuance failed", "error", err)
		return response{err: common.ErrorInternal}
	}

	return response{token: token}
}
