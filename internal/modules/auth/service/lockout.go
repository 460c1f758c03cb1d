package service

import (
	"context"
	"errors"
	"math"
	"time"

	"anoa.com/studentrecords/internal/entity"
	"anoa.com/studentrecords/internal/modules/auth/repository"
	"anoa.com/studentrecords/pkg/database"
	"gorm.io/gorm"
)

const (
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 15 * time.Minute
)

// LockState is the lockout status of one username at a point in time.
type LockState struct {
	Locked            bool
	Remaining         time.Duration
	FailedAttempts    int
	AttemptsRemaining int
	// JustLocked is set when the failure being recorded crossed the threshold.
	JustLocked bool
}

// RemainingMinutes rounds the remaining lock time up to whole minutes.
func (s LockState) RemainingMinutes() int {
	return int(math.Ceil(s.Remaining.Minutes()))
}

type LockoutOption func(*LockoutTracker)

func WithMaxAttempts(n int) LockoutOption {
	return func(t *LockoutTracker) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

func WithLockoutDuration(d time.Duration) LockoutOption {
	return func(t *LockoutTracker) {
		if d > 0 {
			t.duration = d
		}
	}
}

func WithClock(now func() time.Time) LockoutOption {
	return func(t *LockoutTracker) {
		if now != nil {
			t.now = now
		}
	}
}

// LockoutTracker counts failed logins per submitted username and locks the
// username for a fixed duration once the threshold is reached.
type LockoutTracker struct {
	repo        repository.LockoutRepository
	transactor  database.Transactor
	bound       bool
	maxAttempts int
	duration    time.Duration
	now         func() time.Time
}

func NewLockoutTracker(repo repository.LockoutRepository, transactor database.Transactor, opts ...LockoutOption) *LockoutTracker {
	t := &LockoutTracker{
		repo:        repo,
		transactor:  transactor,
		maxAttempts: DefaultMaxAttempts,
		duration:    DefaultLockoutDuration,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithTx returns a tracker whose operations run inside tx instead of opening their own.
func (t *LockoutTracker) WithTx(tx *gorm.DB) *LockoutTracker {
	bound := *t
	bound.repo = t.repo.WithTx(tx)
	bound.bound = true
	return &bound
}

func (t *LockoutTracker) MaxAttempts() int {
	return t.maxAttempts
}

func (t *LockoutTracker) Duration() time.Duration {
	return t.duration
}

// Check reads the current state without creating a row. An expired lock
// reads as unlocked; the counter is left untouched.
func (t *LockoutTracker) Check(ctx context.Context, username string) (LockState, error) {
	lockout, err := t.repo.FindByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LockState{AttemptsRemaining: t.maxAttempts}, nil
	}
	if err != nil {
		return LockState{}, err
	}
	return t.stateOf(lockout), nil
}

// Acquire loads or creates the row for username and holds its lock for the
// rest of the transaction. Only meaningful on a tracker bound with WithTx.
func (t *LockoutTracker) Acquire(ctx context.Context, username string) (LockState, error) {
	var state LockState
	err := t.run(ctx, func(repo repository.LockoutRepository) error {
		lockout, err := repo.AcquireForUpdate(ctx, username)
		if err != nil {
			return err
		}
		state = t.stateOf(lockout)
		return nil
	})
	return state, err
}

// RecordFailure increments the counter and locks the username once it reaches the threshold.
func (t *LockoutTracker) RecordFailure(ctx context.Context, username string) (LockState, error) {
	var state LockState
	err := t.run(ctx, func(repo repository.LockoutRepository) error {
		lockout, err := repo.AcquireForUpdate(ctx, username)
		if err != nil {
			return err
		}

		now := t.now()
		lockout.FailedAttempts++
		lockout.LastFailed = &now

		justLocked := false
		if lockout.FailedAttempts >= t.maxAttempts {
			until := now.Add(t.duration)
			lockout.LockedUntil = &until
			justLocked = true
		}

		if err := repo.Save(ctx, lockout); err != nil {
			return err
		}

		state = t.stateOf(lockout)
		state.JustLocked = justLocked
		return nil
	})
	return state, err
}

// RecordSuccess clears the counter and any lock. It is a no-op when no row exists.
func (t *LockoutTracker) RecordSuccess(ctx context.Context, username string) error {
	return t.run(ctx, func(repo repository.LockoutRepository) error {
		return repo.Reset(ctx, username)
	})
}

func (t *LockoutTracker) run(ctx context.Context, fn func(repo repository.LockoutRepository) error) error {
	if t.bound || t.transactor == nil {
		return fn(t.repo)
	}
	return t.transactor.WithinTransaction(ctx, func(tx *gorm.DB) error {
		return fn(t.repo.WithTx(tx))
	})
}

func (t *LockoutTracker) stateOf(lockout *entity.AccountLockout) LockState {
	now := t.now()
	if lockout.LockedUntil != nil && now.Before(*lockout.LockedUntil) {
		return LockState{
			Locked:         true,
			Remaining:      lockout.LockedUntil.Sub(now),
			FailedAttempts: lockout.FailedAttempts,
		}
	}

	remaining := t.maxAttempts - lockout.FailedAttempts
	if remaining < 0 {
		remaining = 0
	}
	return LockState{
		FailedAttempts:    lockout.FailedAttempts,
		AttemptsRemaining: remaining,
	}
}
