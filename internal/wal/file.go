package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tuannm99/novasql/internal/rc"
)

const (
	filePrefix = "clog_"
	fileSuffix = ".log"
)

// FileWriter appends entries to one rolling log file until it reaches
// maxEntries, at which point Full reports true and the caller rolls to the
// next file via FileManager.Next.
type FileWriter struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	firstLSN   LSN
	lastLSN    LSN
	maxEntries int
	count      int
}

func openFileWriter(path string, firstLSN LSN, maxEntries int) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &FileWriter{file: f, path: path, firstLSN: firstLSN, maxEntries: maxEntries}, nil
}

func (w *FileWriter) Path() string { return w.path }

// Write appends one already-LSN-stamped entry.
func (w *FileWriter) Write(e *Entry) error {
	buf, err := e.Encode()
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(buf); err != nil {
		return fmt.Errorf("%w: %v", rc.ErrIOErrWrite, err)
	}
	w.lastLSN = e.LSN
	w.count++
	return nil
}

func (w *FileWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Sync()
}

// Full reports whether this file has reached its configured entry-count
// limit (log_file.h's file-full-by-entry-count policy).
func (w *FileWriter) Full() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count >= w.maxEntries
}

func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// ReadFile loads one log file's full contents and decodes every entry with
// an LSN at or above startLSN, stopping silently at the first decode
// error: a torn tail left by a crash mid-append is expected, not fatal.
func ReadFile(path string, startLSN LSN, visit func(*Entry) error) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", rc.ErrIOErrRead, err)
	}
	for len(buf) > 0 {
		entry, n, err := DecodeEntry(buf)
		if err != nil {
			return nil // torn tail, stop iterating this file
		}
		buf = buf[n:]
		if entry.LSN < startLSN {
			continue
		}
		if err := visit(entry); err != nil {
			return err
		}
	}
	return nil
}

// FileManager tracks every rolling log file under one directory, named
// clog_{first_lsn}.log, and hands out writers for the current tail file or
// a freshly rolled one.
type FileManager struct {
	mu         sync.Mutex
	dir        string
	maxEntries int
}

func NewFileManager(dir string, maxEntries int) (*FileManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: mkdir %s: %w", dir, err)
	}
	return &FileManager{dir: dir, maxEntries: maxEntries}, nil
}

// ListFiles returns every log file's path and first LSN, in ascending
// first-LSN order, restricted to files whose range can contain an entry
// with LSN >= startLSN.
func (fm *FileManager) ListFiles(startLSN LSN) ([]string, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	entries, err := os.ReadDir(fm.dir)
	if err != nil {
		return nil, fmt.Errorf("wal: readdir %s: %w", fm.dir, err)
	}

	type fileInfo struct {
		path     string
		firstLSN LSN
	}
	var files []fileInfo
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		lsn, ok := parseFirstLSN(de.Name())
		if !ok {
			continue
		}
		files = append(files, fileInfo{path: filepath.Join(fm.dir, de.Name()), firstLSN: lsn})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].firstLSN < files[j].firstLSN })

	// Keep every file whose first LSN could hold startLSN or later: that is
	// every file except ones strictly preceding the last file with
	// firstLSN <= startLSN.
	cut := 0
	for i, f := range files {
		if f.firstLSN <= startLSN {
			cut = i
		}
	}
	var out []string
	for i, f := range files {
		if i >= cut {
			out = append(out, f.path)
		}
	}
	return out, nil
}

func parseFirstLSN(name string) (LSN, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
		return 0, false
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	n, err := strconv.ParseUint(mid, 10, 64)
	if err != nil {
		return 0, false
	}
	return LSN(n), true
}

// LastFile opens the most recent log file for appending, creating the
// first one (named for LSN 1) if the directory is empty.
func (fm *FileManager) LastFile() (*FileWriter, error) {
	files, err := fm.ListFiles(0)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return fm.newFile(1)
	}
	last := files[len(files)-1]
	lsn, _ := parseFirstLSN(filepath.Base(last))
	return openFileWriter(last, lsn, fm.maxEntries)
}

// NextFile rolls to a new file named for nextFirstLSN, typically invoked
// once the current writer reports Full().
func (fm *FileManager) NextFile(nextFirstLSN LSN) (*FileWriter, error) {
	return fm.newFile(nextFirstLSN)
}

func (fm *FileManager) newFile(firstLSN LSN) (*FileWriter, error) {
	name := fmt.Sprintf("%s%d%s", filePrefix, firstLSN, fileSuffix)
	path := filepath.Join(fm.dir, name)
	return openFileWriter(path, firstLSN, fm.maxEntries)
}
