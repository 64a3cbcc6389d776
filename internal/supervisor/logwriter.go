package supervisor

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// lineWriter stamps every complete line of process output with the time
// it was received before handing it to the rotating log.
type lineWriter struct {
	mu  sync.Mutex
	log *lumberjack.Logger
	buf []byte
	now func() time.Time
}

func newLineWriter(log *lumberjack.Logger) *lineWriter {
	return &lineWriter{log: log, now: time.Now}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if err := w.writeLine(w.buf[:i]); err != nil {
			return 0, err
		}
		w.buf = w.buf[i+1:]
	}

	return len(p), nil
}

// note writes a supervisor message, flushing any partial output first.
func (w *lineWriter) note(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		_ = w.writeLine(w.buf)
		w.buf = nil
	}
	_ = w.writeLine([]byte(msg))
}

func (w *lineWriter) writeLine(line []byte) error {
	stamped := make([]byte, 0, len(line)+40)
	stamped = append(stamped, '[')
	stamped = w.now().UTC().AppendFormat(stamped, time.RFC3339Nano)
	stamped = append(stamped, "] "...)
	stamped = append(stamped, line...)
	stamped = append(stamped, '\n')

	_, err := w.log.Write(stamped)
	return err
}

func (w *lineWriter) truncate(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Reopened on the next write with a fresh size count
	if err := w.log.Close(); err != nil {
		return err
	}

	if err := os.Truncate(path, 0); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrLogNotFound
		}
		return err
	}

	return nil
}
