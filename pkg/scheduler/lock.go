package scheduler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
)

// runLock is an exclusive lock file holding the owner pid and start time
type runLock struct {
	path string
}

// acquireLock creates the lock file. Returns false if another run holds it.
// A lock older than stale is considered left by a crashed run and replaced.
func acquireLock(path string, stale time.Duration, now time.Time) (*runLock, bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, false, fmt.Errorf("make lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		fh, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // path comes from config
		if err == nil {
			_, werr := fmt.Fprintf(fh, "%d %d\n", os.Getpid(), now.Unix())
			cerr := fh.Close()
			if werr != nil || cerr != nil {
				_ = os.Remove(path)
				return nil, false, fmt.Errorf("write lock %s: %w", path, errors.Join(werr, cerr))
			}
			return &runLock{path: path}, true, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, false, fmt.Errorf("create lock %s: %w", path, err)
		}

		pid, started := readLock(path)
		if stale <= 0 || now.Sub(started) < stale {
			lgr.Printf("[DEBUG] lock %s held by pid %d since %s", path, pid, started.Format(time.RFC3339))
			return nil, false, nil
		}
		lgr.Printf("[WARN] replacing stale lock %s of pid %d started %s", path, pid, started.Format(time.RFC3339))
		moved, err := takeOver(path, stale, now)
		if err != nil {
			return nil, false, err
		}
		if !moved {
			return nil, false, nil
		}
	}
	return nil, false, nil
}

// takeOver moves a stale lock aside with a rename, so two runs can't both remove it.
// The moved lock is checked again: if another run replaced the stale lock between the
// read and the rename, its fresh lock is linked back and false returned.
func takeOver(path string, stale time.Duration, now time.Time) (bool, error) {
	aside := fmt.Sprintf("%s.stale.%d", path, os.Getpid())
	if err := os.Rename(path, aside); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil // already gone, try to create
		}
		return false, fmt.Errorf("move stale lock %s: %w", path, err)
	}
	defer func() {
		if err := os.Remove(aside); err != nil && !errors.Is(err, fs.ErrNotExist) {
			lgr.Printf("[WARN] failed to remove %s: %v", aside, err)
		}
	}()

	if _, started := readLock(aside); now.Sub(started) >= stale {
		return true, nil
	}
	// fresh lock of another run, put it back unless a newer one already appeared
	if err := os.Link(aside, path); err != nil && !errors.Is(err, fs.ErrExist) {
		return false, fmt.Errorf("restore lock %s: %w", path, err)
	}
	return false, nil
}

// readLock returns lock owner and start time, falling back to file mtime for unreadable content
func readLock(path string) (pid int, started time.Time) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from config
	if err == nil {
		if fields := strings.Fields(string(data)); len(fields) == 2 {
			p, perr := strconv.Atoi(fields[0])
			ts, terr := strconv.ParseInt(fields[1], 10, 64)
			if perr == nil && terr == nil {
				return p, time.Unix(ts, 0)
			}
		}
	}
	if fi, err := os.Stat(path); err == nil {
		return 0, fi.ModTime()
	}
	return 0, time.Time{}
}

// release removes the lock file
func (l *runLock) release() {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		lgr.Printf("[WARN] failed to remove lock %s: %v", l.path, err)
	}
}
