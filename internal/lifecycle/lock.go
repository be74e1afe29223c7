package lifecycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

// groupLocks serializes lifecycle operations per (project, group). Inside the daemon a
// buffered channel per key is the mutex; across daemons sharing a run tree an
// advisory flock on <dir>/<project>-<group>.lock is taken as well.
type groupLocks struct {
	dir string

	mu   sync.Mutex
	sems map[string]chan struct{}
}

func newGroupLocks(dir string) *groupLocks {
	return &groupLocks{dir: dir, sems: make(map[string]chan struct{})}
}

func lockKey(projectID int64, group string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, group)
	return fmt.Sprintf("%d-%s", projectID, safe)
}

func (l *groupLocks) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[key]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[key] = s
	}
	return s
}

// Lock blocks until the (project, group) lock is held or ctx is done.
func (l *groupLocks) Lock(ctx context.Context, projectID int64, group string) (func(), error) {
	key := lockKey(projectID, group)
	sem := l.sem(key)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if l.dir == "" {
		return func() { <-sem }, nil
	}

	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		<-sem
		return nil, fmt.Errorf("lock dir: %w", err)
	}
	fl := flock.New(filepath.Join(l.dir, key+".lock"))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		<-sem
		if err == nil {
			err = ctx.Err()
		}
		return nil, err
	}
	return func() {
		_ = fl.Unlock()
		<-sem
	}, nil
}
