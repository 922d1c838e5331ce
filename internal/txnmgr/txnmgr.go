// Package txnmgr implements C6, the transaction manager coordinating a
// single logical write across the filesystem artifact store, the audit
// backend, the relational metadata index, and the vector index: an
// exclusive cross-process advisory lock plus a filesystem WAL-style backup
// directory so a failed commit can be rolled back, grounded on
// untoldecay-BeadsLog's gofrs/flock usage (cmd/bd/sync.go) and akashi's
// background-loop error-handling idiom.
package txnmgr

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Manager guards one store root directory with a single advisory file lock,
// reentrant per goroutine-owning-thread call chain via a depth counter
// (§5 Locking: "per-thread reentrant locks").
type Manager struct {
	root     string
	lockPath string
	backupDir string

	fileLock *flock.Flock

	mu    sync.Mutex // guards depth/owner bookkeeping, not the cross-process lock itself
	depth int

	pollTick time.Duration
	timeout  time.Duration
}

// New constructs a Manager rooted at root: per §6's storage layout this is
// the repository's <root>/semantic/ directory, which also holds
// semantic_meta.db, the artifact files fsstore writes, and the audit
// backend's own directory, so a backed-up path's name relative to root
// matches the bare FID staged with the audit backend.
func New(root string, timeout, pollTick time.Duration) *Manager {
	lockPath := filepath.Join(root, ".lock")
	return &Manager{
		root:      root,
		lockPath:  lockPath,
		backupDir: filepath.Join(root, ".tx_backup"),
		fileLock:  flock.New(lockPath),
		pollTick:  pollTick,
		timeout:   timeout,
	}
}

// Begin acquires the cross-process lock (blocking with poll-retry up to
// Manager's timeout) and returns a Txn used to stage a rollback-capable
// write. Reentrant: a second Begin from the same Manager instance while one
// is already open just bumps the depth counter, matching §5's "per-thread
// reentrant locks" requirement for nested facade calls.
func (m *Manager) Begin(ctx context.Context) (*Txn, error) {
	m.mu.Lock()
	if m.depth > 0 {
		m.depth++
		m.mu.Unlock()
		return &Txn{mgr: m, reentrant: true}, nil
	}
	m.mu.Unlock()

	if err := m.acquire(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.depth = 1
	m.mu.Unlock()

	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		m.release()
		return nil, fmt.Errorf("txnmgr: create backup dir: %w", err)
	}
	return &Txn{mgr: m}, nil
}

func (m *Manager) acquire(ctx context.Context) error {
	deadline := time.Now().Add(m.timeout)
	for {
		locked, err := m.fileLock.TryLock()
		if err != nil {
			// PID-semaphore fallback: when the filesystem does not support
			// flock (e.g. some network filesystems), fall back to an
			// exclusive-create sentinel file keyed by this process's PID so
			// a crashed owner's lock can be recognized and reclaimed.
			if fallbackErr := m.acquireSemaphoreFallback(); fallbackErr == nil {
				return nil
			}
			return fmt.Errorf("txnmgr: acquire lock: %w", err)
		}
		if locked {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("txnmgr: timeout acquiring lock %s after %s", m.lockPath, m.timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.pollTick):
		}
	}
}

// acquireSemaphoreFallback writes a PID-stamped sentinel file exclusively;
// used only when flock itself is unavailable on the underlying filesystem.
func (m *Manager) acquireSemaphoreFallback() error {
	semPath := m.lockPath + ".pid"
	f, err := os.OpenFile(semPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			data, readErr := os.ReadFile(semPath)
			if readErr == nil && !processAlive(string(data)) {
				_ = os.Remove(semPath)
				return m.acquireSemaphoreFallback()
			}
		}
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d", os.Getpid())
	return err
}

func processAlive(pidStr string) bool {
	var pid int
	if _, err := fmt.Sscanf(pidStr, "%d", &pid); err != nil {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscallSignal0()) == nil
}

func (m *Manager) release() {
	m.mu.Lock()
	m.depth = 0
	m.mu.Unlock()
	_ = m.fileLock.Unlock()
	_ = os.Remove(m.lockPath + ".pid")
}

// Txn is a single coordinated write transaction. Callers stage filesystem
// writes via Backup before mutating a file, then call Commit on success or
// Rollback on failure.
type Txn struct {
	mgr       *Manager
	reentrant bool
	backedUp  []string // original paths backed up this transaction
}

// Backup snapshots path's current content into the transaction's backup
// directory before the caller overwrites it, so Rollback can restore it
// (§5: "filesystem WAL-style backup/restore"). Safe to call on a path that
// does not yet exist (nothing is snapshotted; Rollback will delete it).
func (t *Txn) Backup(path string) error {
	if t.reentrant {
		return nil // outer transaction owns the backup set
	}
	rel, err := filepath.Rel(t.mgr.root, path)
	if err != nil {
		return fmt.Errorf("txnmgr: backup: %w", err)
	}
	dst := filepath.Join(t.mgr.backupDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	src, err := os.Open(path)
	if os.IsNotExist(err) {
		t.backedUp = append(t.backedUp, rel)
		return nil
	}
	if err != nil {
		return fmt.Errorf("txnmgr: backup open %s: %w", path, err)
	}
	defer src.Close()

	dstF, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("txnmgr: backup create %s: %w", dst, err)
	}
	defer dstF.Close()
	if _, err := io.Copy(dstF, src); err != nil {
		return fmt.Errorf("txnmgr: backup copy %s: %w", path, err)
	}
	t.backedUp = append(t.backedUp, rel)
	return nil
}

// Commit discards the backup snapshot and releases the lock (on the
// outermost Txn only).
func (t *Txn) Commit() error {
	if t.reentrant {
		t.mgr.mu.Lock()
		t.mgr.depth--
		t.mgr.mu.Unlock()
		return nil
	}
	for _, rel := range t.backedUp {
		_ = os.RemoveAll(filepath.Join(t.mgr.backupDir, rel))
	}
	t.mgr.release()
	return nil
}

// Rollback restores every backed-up path from the snapshot and releases the
// lock (on the outermost Txn only); nested Txns defer to the outer one.
func (t *Txn) Rollback() error {
	if t.reentrant {
		t.mgr.mu.Lock()
		t.mgr.depth--
		t.mgr.mu.Unlock()
		return nil
	}
	var firstErr error
	for _, rel := range t.backedUp {
		src := filepath.Join(t.mgr.backupDir, rel)
		dst := filepath.Join(t.mgr.root, rel)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			if rmErr := os.Remove(dst); rmErr != nil && !os.IsNotExist(rmErr) && firstErr == nil {
				firstErr = rmErr
			}
			continue
		}
		if err := copyFile(src, dst); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, rel := range t.backedUp {
		_ = os.RemoveAll(filepath.Join(t.mgr.backupDir, rel))
	}
	t.mgr.release()
	return firstErr
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
