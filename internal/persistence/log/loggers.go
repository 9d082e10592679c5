package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelpush.ai/internal/sim/stage"
)

const hourlyLayout = "2006-01-02-15"

type LoggerOptions struct {
	// RotateLayout is a time layout; a new file starts whenever the
	// formatted UTC time changes. Empty means hourly.
	RotateLayout string
	// OnClose gets the path of every file the writer finishes.
	OnClose func(path string)
}

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	opts    LoggerOptions
	now     func() time.Time

	mu      sync.Mutex
	curKey  string
	curPath string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return NewJSONLZstdWriterWithOptions(baseDir, prefix, LoggerOptions{})
}

func NewJSONLZstdWriterWithOptions(baseDir, prefix string, opts LoggerOptions) *JSONLZstdWriter {
	if opts.RotateLayout == "" {
		opts.RotateLayout = hourlyLayout
	}
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		opts:    opts,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := w.now().UTC().Format(w.opts.RotateLayout)
	if key != w.curKey {
		if err := w.rotateLocked(key); err != nil {
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
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(key string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curKey = key
	w.curPath = path
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
	if w.curPath != "" && w.opts.OnClose != nil {
		w.opts.OnClose(w.curPath)
	}
	w.curPath = ""
	w.curKey = ""
	return err1
}

func (w *JSONLZstdWriter) pathFor(key string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, key))
}

// sinkErr keeps the first write error of an observer-driven logger, since
// observer callbacks cannot return one.
type sinkErr struct {
	mu  sync.Mutex
	err error
}

func (s *sinkErr) set(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *sinkErr) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// TurnLogger writes one JSONL entry per stage record (compressed). It is a
// stage.Observer.
type TurnLogger struct {
	stage.NopObserver
	sinkErr
	w *JSONLZstdWriter
}

func NewTurnLogger(sessionDir string) *TurnLogger {
	return NewTurnLoggerWithOptions(sessionDir, LoggerOptions{})
}

func NewTurnLoggerWithOptions(sessionDir string, opts LoggerOptions) *TurnLogger {
	return &TurnLogger{w: NewJSONLZstdWriterWithOptions(filepath.Join(sessionDir, "turns"), "turns", opts)}
}

func (l *TurnLogger) WriteRecord(r stage.Record) error { return l.w.Write(r) }
func (l *TurnLogger) OnRecord(r stage.Record)          { l.set(l.WriteRecord(r)) }
func (l *TurnLogger) Close() error                     { return l.w.Close() }

type AuditKind string

const (
	AuditFragile AuditKind = "FRAGILE_DESTROYED"
	AuditBurned  AuditKind = "BURNED"
	AuditRestart AuditKind = "RESTART"
	AuditLoad    AuditKind = "LOAD"
	AuditCleared AuditKind = "CLEARED"
	AuditLost    AuditKind = "LOST"
	AuditPlaced  AuditKind = "PLACED"
	AuditStarted AuditKind = "STARTED"
)

// AuditEntry is one mutation of the level outside plain movement.
type AuditEntry struct {
	Time    string    `json:"time"`
	Kind    AuditKind `json:"kind"`
	LevelID string    `json:"level_id"`
	Turn    uint64    `json:"turn"`
	Entity  uint32    `json:"id,omitempty"`
	Actor   string    `json:"actor,omitempty"`
	Pos     *[3]int   `json:"pos,omitempty"`
}

// AuditLogger writes audit JSONL entries (compressed). It is a
// stage.Observer.
type AuditLogger struct {
	stage.NopObserver
	sinkErr
	w *JSONLZstdWriter
}

func NewAuditLogger(sessionDir string) *AuditLogger {
	return NewAuditLoggerWithOptions(sessionDir, LoggerOptions{})
}

func NewAuditLoggerWithOptions(sessionDir string, opts LoggerOptions) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriterWithOptions(filepath.Join(sessionDir, "audit"), "audit", opts)}
}

func (l *AuditLogger) WriteAudit(e AuditEntry) error { return l.w.Write(e) }
func (l *AuditLogger) Close() error                  { return l.w.Close() }

func (l *AuditLogger) OnRecord(r stage.Record) {
	for _, e := range AuditEntries(r, l.w.now().UTC()) {
		l.set(l.WriteAudit(e))
	}
}

// AuditEntries lists the audit entries a record implies.
func AuditEntries(r stage.Record, at time.Time) []AuditEntry {
	ts := at.Format(time.RFC3339Nano)
	base := AuditEntry{Time: ts, LevelID: r.LevelID, Turn: r.Turn}
	var out []AuditEntry
	switch r.Kind {
	case stage.RecordRestart:
		e := base
		e.Kind = AuditRestart
		return append(out, e)
	case stage.RecordLoad:
		e := base
		e.Kind = AuditLoad
		return append(out, e)
	case stage.RecordPlace:
		if r.Setup == nil {
			return nil
		}
		e := base
		e.Kind = AuditPlaced
		pos := r.Setup.Pos
		e.Pos = &pos
		return append(out, e)
	case stage.RecordStart:
		e := base
		e.Kind = AuditStarted
		return append(out, e)
	case stage.RecordTurn:
	default:
		return nil
	}
	for _, p := range r.Fragile {
		e := base
		e.Kind = AuditFragile
		pos := p
		e.Pos = &pos
		out = append(out, e)
	}
	for _, b := range r.Burned {
		e := base
		e.Kind = AuditBurned
		e.Entity = b.Entity
		e.Actor = b.Kind
		pos := b.Pos
		e.Pos = &pos
		out = append(out, e)
	}
	if r.Lost {
		e := base
		e.Kind = AuditLost
		out = append(out, e)
	} else if r.GoalReached {
		e := base
		e.Kind = AuditCleared
		out = append(out, e)
	}
	return out
}
