package records

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"

	"reeler/internal/logging"
	"reeler/internal/services"
)

// Lock takes the cross-process store lock without waiting. It returns
// ErrLocked when another holder has it.
func (s *Store) Lock() error {
	ok, err := s.flock.TryLock()
	if err != nil {
		return services.Wrap(services.ErrIO, "records", "lock", s.flock.Path(), err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

// Unlock releases the cross-process store lock.
func (s *Store) Unlock() error {
	if err := s.flock.Unlock(); err != nil {
		return services.Wrap(services.ErrIO, "records", "unlock", s.flock.Path(), err)
	}
	return nil
}

// IsLocked reports whether anyone, this store included, holds the lock.
func (s *Store) IsLocked() (bool, error) {
	if s.flock.Locked() {
		return true, nil
	}
	probe := flock.New(s.flock.Path())
	ok, err := probe.TryLock()
	if err != nil {
		return false, services.Wrap(services.ErrIO, "records", "probe lock", s.flock.Path(), err)
	}
	if ok {
		_ = probe.Unlock()
		return false, nil
	}
	return true, nil
}

// WaitLock polls until the lock is acquired or ctx ends.
func (s *Store) WaitLock(ctx context.Context) error {
	ok, err := s.flock.TryLockContext(ctx, s.lockPoll)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrIO, "records", "wait lock", s.flock.Path(), err)
	}
	if !ok {
		return fmt.Errorf("wait lock %s: %w", s.flock.Path(), ErrLocked)
	}
	return nil
}

// WithLock runs fn as one read-modify-write cycle: it serializes callers in
// this process, takes the file lock, reloads, runs fn, and releases the lock.
func (s *Store) WithLock(ctx context.Context, fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := s.WaitLock(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.Unlock(); err != nil {
			s.logger.Warn("release store lock failed", logging.Error(err))
		}
	}()
	if err := s.Reload(); err != nil {
		return err
	}
	return fn()
}
