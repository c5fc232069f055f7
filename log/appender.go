package log

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogAppender is an output sink for encoded log lines.
type LogAppender interface {
	io.Writer
	// Refresh flushes buffered output.
	Refresh()
	// Close flushes and releases the sink.
	Close() error
}

// ConsoleAppender writes log lines to stdout.
type ConsoleAppender struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleAppender creates an appender writing to os.Stdout.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{out: os.Stdout}
}

func (a *ConsoleAppender) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out.Write(p)
}

func (a *ConsoleAppender) Refresh() {}

func (a *ConsoleAppender) Close() error { return nil }

const (
	_defaultAsyncCacheSize    = 1024
	_defaultAsyncWriteMillSec = 200
	_fileBufferSize           = 32 * 1024
)

// FileAppender appends log lines to a file, rotating it once it grows past
// FileSplitMB. In async mode lines are queued and written by a background
// goroutine every AsyncWriteMillSec.
type FileAppender struct {
	mu        sync.Mutex
	path      string
	splitSize int64
	file      *os.File
	w         *bufio.Writer
	size      int64

	async     bool
	queue     chan []byte
	done      chan struct{}
	stopped   sync.WaitGroup
	closeOnce sync.Once
	closing   bool
	closed    bool
}

// NewFileAppender opens (creating as needed) the file at cfg.LogPath.
// Failing to open the file is an error the caller is expected to treat as fatal.
func NewFileAppender(cfg *LogCfg) (*FileAppender, error) {
	if cfg.LogPath == "" {
		return nil, fmt.Errorf("log path is empty")
	}

	a := &FileAppender{
		path:      cfg.LogPath,
		splitSize: int64(cfg.FileSplitMB) * 1024 * 1024,
		async:     cfg.IsAsync,
	}
	if err := a.open(); err != nil {
		return nil, err
	}

	if a.async {
		size := cfg.AsyncCacheSize
		if size <= 0 {
			size = _defaultAsyncCacheSize
		}
		interval := cfg.AsyncWriteMillSec
		if interval <= 0 {
			interval = _defaultAsyncWriteMillSec
		}
		a.queue = make(chan []byte, size)
		a.done = make(chan struct{})
		a.stopped.Add(1)
		go a.loop(time.Duration(interval) * time.Millisecond)
	}
	return a, nil
}

func (a *FileAppender) open() error {
	if dir := filepath.Dir(a.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	a.file = f
	a.size = st.Size()
	a.w = bufio.NewWriterSize(f, _fileBufferSize)
	return nil
}

// Write queues p in async mode, otherwise writes it through immediately.
func (a *FileAppender) Write(p []byte) (int, error) {
	if a.async {
		line := make([]byte, len(p))
		copy(line, p)

		// enqueue under mu so Close cannot finish its final drain in between
		a.mu.Lock()
		if a.closing {
			a.mu.Unlock()
			return 0, os.ErrClosed
		}
		select {
		case a.queue <- line:
			a.mu.Unlock()
			return len(p), nil
		default:
			// queue full, fall back to a synchronous write
		}
		a.mu.Unlock()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	n, err := a.writeLocked(p)
	if err == nil && !a.async {
		err = a.w.Flush()
	}
	return n, err
}

func (a *FileAppender) writeLocked(p []byte) (int, error) {
	if a.closed {
		return 0, os.ErrClosed
	}
	if a.splitSize > 0 && a.size+int64(len(p)) > a.splitSize && a.size > 0 {
		if err := a.rotateLocked(); err != nil {
			return 0, err
		}
	}
	n, err := a.w.Write(p)
	a.size += int64(n)
	return n, err
}

func (a *FileAppender) rotateLocked() error {
	if err := a.w.Flush(); err != nil {
		return err
	}
	if err := a.file.Close(); err != nil {
		return err
	}
	rotated := fmt.Sprintf("%s.%s", a.path, time.Now().Format("20060102-150405.000000"))
	if err := os.Rename(a.path, rotated); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	return a.open()
}

func (a *FileAppender) loop(interval time.Duration) {
	defer a.stopped.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case line := <-a.queue:
			a.mu.Lock()
			_, _ = a.writeLocked(line)
			a.mu.Unlock()
		case <-ticker.C:
			a.Refresh()
		case <-a.done:
			a.Refresh()
			return
		}
	}
}

func (a *FileAppender) drainLocked() {
	for {
		select {
		case line := <-a.queue:
			_, _ = a.writeLocked(line)
		default:
			return
		}
	}
}

// Refresh writes every line queued so far and flushes the file buffer.
func (a *FileAppender) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.async {
		a.drainLocked()
	}
	_ = a.w.Flush()
}

// Close drains the async queue, flushes and closes the file.
func (a *FileAppender) Close() error {
	if a.async {
		a.closeOnce.Do(func() {
			a.mu.Lock()
			a.closing = true
			a.mu.Unlock()
			close(a.done)
			a.stopped.Wait()
		})
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.w.Flush(); err != nil {
		_ = a.file.Close()
		return err
	}
	return a.file.Close()
}
