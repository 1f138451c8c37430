package repository

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// CopyOnWriteTx makes a set of writes to one session directory atomic. All
// writes go to a copy of the directory, which replaces the original on Commit.
type CopyOnWriteTx struct {
	dir       string // sessions/<id>/
	tempDir   string // sessions/<id>.tmp.<nanos>/
	backupDir string // sessions/<id>.backup.<nanos>/
	committed bool
}

// NewCopyOnWriteTx creates a transaction over dir.
func NewCopyOnWriteTx(dir string) *CopyOnWriteTx {
	stamp := time.Now().UnixNano()
	return &CopyOnWriteTx{
		dir:       dir,
		tempDir:   fmt.Sprintf("%s.tmp.%d", dir, stamp),
		backupDir: fmt.Sprintf("%s.backup.%d", dir, stamp),
	}
}

// Begin copies the session directory into the transaction's working copy.
// A missing directory starts the transaction empty.
func (tx *CopyOnWriteTx) Begin() error {
	if _, err := os.Stat(tx.dir); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(tx.tempDir, 0755); err != nil {
				return fmt.Errorf("create temp directory: %w", err)
			}
			return nil
		}
		return fmt.Errorf("stat session directory: %w", err)
	}

	// True copies, not hard links: a hard-linked working copy would share
	// inodes with the original and writes would leak through before Commit.
	if err := copyDirRecursive(tx.dir, tx.tempDir); err != nil {
		_ = os.RemoveAll(tx.tempDir)
		return fmt.Errorf("copy session directory: %w", err)
	}

	return nil
}

// WriteFile writes content to a file in the working copy.
func (tx *CopyOnWriteTx) WriteFile(relativePath string, content []byte) error {
	if tx.committed {
		return fmt.Errorf("transaction already committed")
	}

	fullPath := filepath.Join(tx.tempDir, relativePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}

// ReadFile reads a file from the working copy.
func (tx *CopyOnWriteTx) ReadFile(relativePath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(tx.tempDir, relativePath))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Commit swaps the working copy in place of the session directory.
func (tx *CopyOnWriteTx) Commit() error {
	if tx.committed {
		return fmt.Errorf("transaction already committed")
	}

	exists := true
	if _, err := os.Stat(tx.dir); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("stat session directory: %w", err)
		}
		exists = false
	}

	if !exists {
		if err := os.Rename(tx.tempDir, tx.dir); err != nil {
			return fmt.Errorf("commit session directory (new): %w", err)
		}
		tx.committed = true
		return nil
	}

	if err := os.Rename(tx.dir, tx.backupDir); err != nil {
		return fmt.Errorf("backup session directory: %w", err)
	}

	if err := os.Rename(tx.tempDir, tx.dir); err != nil {
		if rollbackErr := os.Rename(tx.backupDir, tx.dir); rollbackErr != nil {
			return fmt.Errorf("commit failed and rollback failed: commit error: %w, rollback error: %v", err, rollbackErr)
		}
		return fmt.Errorf("commit session directory (rolled back): %w", err)
	}

	if err := os.RemoveAll(tx.backupDir); err != nil {
		zap.L().Warn("failed to remove transaction backup",
			zap.String("dir", tx.backupDir),
			zap.Error(err),
		)
	}

	tx.committed = true
	return nil
}

// Rollback discards the working copy.
func (tx *CopyOnWriteTx) Rollback() error {
	if tx.committed {
		return fmt.Errorf("cannot rollback committed transaction")
	}
	if err := os.RemoveAll(tx.tempDir); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// TempDir returns the path of the working copy.
func (tx *CopyOnWriteTx) TempDir() string {
	return tx.tempDir
}

// rollback is the error-path helper: it rolls back and logs a failed rollback
// without masking the original error.
func (tx *CopyOnWriteTx) rollback() {
	if err := tx.Rollback(); err != nil {
		zap.L().Warn("rollback failed", zap.String("dir", tx.dir), zap.Error(err))
	}
}

func copyDirRecursive(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read directory: %w", err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDirRecursive(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("copy contents: %w", err)
	}

	return dstFile.Close()
}
