// Package journal appends agent records as zstd-compressed JSON lines,
// one file per hour, stream and writer.
package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/abdel0909/mc-bot/internal/persistence/record"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// Write appends v as one line. Each line is flushed through the encoder
// so a crash loses at most the current frame.
func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	// A file is never reopened: a writer killed mid-frame leaves its file
	// to itself and the next writer takes the following sequence number.
	var f *os.File
	for seq := 1; ; seq++ {
		if seq > maxSeq {
			return fmt.Errorf("journal %s: no free file for hour %s", w.prefix, hour)
		}
		var err error
		f, err = os.OpenFile(w.PathFor(hour, seq), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 32*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

const maxSeq = 9999

// PathFor names the seq-th file of an hour. Names sort chronologically.
func (w *JSONLZstdWriter) PathFor(hour string, seq int) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s-%04d.jsonl.zst", w.prefix, hour, seq))
}

// Journal keeps one stream for connection lifecycle and one for commands.
type Journal struct {
	sessions *JSONLZstdWriter
	commands *JSONLZstdWriter
}

var _ record.Recorder = (*Journal)(nil)

func Open(dir string) *Journal {
	return &Journal{
		sessions: NewJSONLZstdWriter(dir, "sessions"),
		commands: NewJSONLZstdWriter(dir, "commands"),
	}
}

func (j *Journal) RecordSession(s record.Session) error { return j.sessions.Write(s) }
func (j *Journal) RecordCommand(c record.Command) error { return j.commands.Write(c) }

func (j *Journal) Close() error {
	err1 := j.sessions.Close()
	err2 := j.commands.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
