package extsort

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/jtr-bio/themisto/internal/logx"
)

// TempFileManager is a process-wide singleton tracking every run file
// created by a Sort call, so a SIGINT/SIGABRT can delete them all
// before the process exits.
type TempFileManager struct {
	mu    sync.Mutex
	files map[string]struct{}
}

var (
	mgrOnce sync.Once
	mgr     *TempFileManager
)

// Manager returns the process-wide TempFileManager, installing the
// signal handler on first use.
func Manager() *TempFileManager {
	mgrOnce.Do(func() {
		mgr = &TempFileManager{files: make(map[string]struct{})}
		mgr.installSignalHandler()
	})
	return mgr
}

func (m *TempFileManager) installSignalHandler() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGABRT)
	go func() {
		<-ch
		logx.Info("signal received, cleaning up temp files")
		m.CleanupAll()
		os.Exit(1)
	}()
}

// New creates, registers, and returns a fresh temp file under dir with
// the given name prefix.
func (m *TempFileManager) New(dir, prefix string) (*os.File, error) {
	f, err := os.CreateTemp(dir, prefix)
	if err != nil {
		return nil, fmt.Errorf("extsort: creating temp file in %s: %w", dir, err)
	}
	m.mu.Lock()
	m.files[f.Name()] = struct{}{}
	m.mu.Unlock()
	return f, nil
}

// Release deletes and unregisters a single temp file path.
func (m *TempFileManager) Release(path string) {
	m.mu.Lock()
	delete(m.files, path)
	m.mu.Unlock()
	os.Remove(filepath.Clean(path))
}

// CleanupAll deletes every currently registered temp file.
func (m *TempFileManager) CleanupAll() {
	m.mu.Lock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	m.files = make(map[string]struct{})
	m.mu.Unlock()
	for _, p := range paths {
		os.Remove(p)
	}
}
