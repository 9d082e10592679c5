package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voxelpush.ai/internal/persistence/snapshot"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/stage"
)

// dialect is the placeholder style of the driver. Statements are written
// with '?' and rebound for drivers that number their parameters.
type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) rebind(q string) string {
	if d != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type Option func(*options)

type options struct {
	session  string
	queueCap int
}

// WithSession tags every row written by this index with a session id.
func WithSession(id string) Option { return func(o *options) { o.session = id } }

func WithQueueCapacity(n int) Option { return func(o *options) { o.queueCap = n } }

func buildOptions(opts []Option) options {
	o := options{
		session:  time.Now().UTC().Format("20060102T150405Z"),
		queueCap: 65536,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type reqKind int

const (
	reqRecord reqKind = iota + 1
	reqSession
	reqClear
)

type req struct {
	kind reqKind

	record  stage.Record
	session sessionRow
	clear   clearRow
}

type sessionRow struct {
	Path       string
	LevelID    string
	Turn       uint64
	Cleared    bool
	RecordedAt string
}

type clearRow struct {
	LevelID     string
	Turn        uint64
	ArchivePath string
	RecordedAt  string
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropRecordTotal  uint64
	DropSessionTotal uint64
	DropClearTotal   uint64
	WriteFailTotal   uint64
}

// writer is the part shared by the sqlite and postgres indexes: a bounded
// queue drained by one goroutine that batches rows into transactions.
// Enqueueing never blocks; the JSONL turn log stays the source of truth.
type writer struct {
	stage.NopObserver

	db      *sql.DB
	dialect dialect
	session string

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropRecord  atomic.Uint64
	dropSession atomic.Uint64
	dropClear   atomic.Uint64
	writeFail   atomic.Uint64
}

func newWriter(db *sql.DB, d dialect, o options) *writer {
	return &writer{
		db:      db,
		dialect: d,
		session: o.session,
		ch:      make(chan req, o.queueCap),
	}
}

func (w *writer) start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop()
	}()
}

func (w *writer) Session() string { return w.session }

// DB exposes the handle for read queries.
func (w *writer) DB() *sql.DB { return w.db }

func (w *writer) Close() error {
	var err error
	w.once.Do(func() {
		w.closed.Store(true)
		close(w.ch)
		w.wg.Wait()
		err = w.db.Close()
	})
	return err
}

func (w *writer) enqueue(r req, drops *atomic.Uint64) {
	if w == nil || w.closed.Load() {
		return
	}
	select {
	case w.ch <- r:
	default:
		drops.Add(1)
	}
}

// OnRecord indexes a stage record. It makes the index a stage.Observer.
func (w *writer) OnRecord(r stage.Record) {
	w.enqueue(req{kind: reqRecord, record: r}, &w.dropRecord)
}

// RecordSession notes a saved session file.
func (w *writer) RecordSession(path string, h snapshot.Header) {
	w.enqueue(req{kind: reqSession, session: sessionRow{
		Path:       path,
		LevelID:    h.LevelID,
		Turn:       h.Turn,
		Cleared:    h.Cleared,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}}, &w.dropSession)
}

// RecordClear notes an archived cleared level.
func (w *writer) RecordClear(levelID string, turn uint64, archivePath string) {
	if levelID == "" || archivePath == "" {
		return
	}
	w.enqueue(req{kind: reqClear, clear: clearRow{
		LevelID:     levelID,
		Turn:        turn,
		ArchivePath: archivePath,
		RecordedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}}, &w.dropClear)
}

func (w *writer) Stats() Stats {
	st := Stats{
		DropRecordTotal:  w.dropRecord.Load(),
		DropSessionTotal: w.dropSession.Load(),
		DropClearTotal:   w.dropClear.Load(),
		WriteFailTotal:   w.writeFail.Load(),
	}
	if w.ch != nil {
		st.QueueDepth = len(w.ch)
		st.QueueCapacity = cap(w.ch)
	}
	return st
}

var schemaStmts = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS levels (
		level_id TEXT PRIMARY KEY,
		pack TEXT NOT NULL,
		ord INTEGER NOT NULL,
		file TEXT NOT NULL,
		trigger_mode TEXT NOT NULL,
		digest TEXT NOT NULL,
		layout TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		session TEXT NOT NULL,
		seq BIGINT NOT NULL,
		kind TEXT NOT NULL,
		level_id TEXT NOT NULL,
		turn BIGINT NOT NULL,
		digest TEXT NOT NULL,
		moves INTEGER NOT NULL,
		blocked INTEGER NOT NULL,
		goal_reached INTEGER NOT NULL,
		lost INTEGER NOT NULL,
		raw_json TEXT NOT NULL,
		PRIMARY KEY (session, seq)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_level_turn ON records(level_id, turn)`,
	`CREATE TABLE IF NOT EXISTS moves (
		session TEXT NOT NULL,
		seq BIGINT NOT NULL,
		idx INTEGER NOT NULL,
		entity BIGINT NOT NULL,
		kind TEXT NOT NULL,
		from_x INTEGER NOT NULL,
		from_y INTEGER NOT NULL,
		from_z INTEGER NOT NULL,
		to_x INTEGER NOT NULL,
		to_y INTEGER NOT NULL,
		to_z INTEGER NOT NULL,
		PRIMARY KEY (session, seq, idx)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_moves_entity ON moves(session, entity, seq)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		path TEXT PRIMARY KEY,
		session TEXT NOT NULL,
		level_id TEXT NOT NULL,
		turn BIGINT NOT NULL,
		cleared INTEGER NOT NULL,
		recorded_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS clears (
		session TEXT NOT NULL,
		level_id TEXT NOT NULL,
		turn BIGINT NOT NULL,
		archive_path TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (session, level_id, turn)
	)`,
}

func initSchema(db *sql.DB) error {
	for _, s := range schemaStmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	_, err := db.Exec(`INSERT INTO meta(key,value) VALUES('schema_version','1') ON CONFLICT (key) DO NOTHING`)
	return err
}

const (
	sqlInsertRecord = `INSERT INTO records(session,seq,kind,level_id,turn,digest,moves,blocked,goal_reached,lost,raw_json)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (session, seq) DO UPDATE SET kind=excluded.kind, level_id=excluded.level_id, turn=excluded.turn,
			digest=excluded.digest, moves=excluded.moves, blocked=excluded.blocked,
			goal_reached=excluded.goal_reached, lost=excluded.lost, raw_json=excluded.raw_json`
	sqlInsertMove = `INSERT INTO moves(session,seq,idx,entity,kind,from_x,from_y,from_z,to_x,to_y,to_z)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (session, seq, idx) DO NOTHING`
	sqlInsertSession = `INSERT INTO sessions(path,session,level_id,turn,cleared,recorded_at) VALUES(?,?,?,?,?,?)
		ON CONFLICT (path) DO UPDATE SET session=excluded.session, level_id=excluded.level_id, turn=excluded.turn,
			cleared=excluded.cleared, recorded_at=excluded.recorded_at`
	sqlInsertClear = `INSERT INTO clears(session,level_id,turn,archive_path,recorded_at) VALUES(?,?,?,?,?)
		ON CONFLICT (session, level_id, turn) DO UPDATE SET archive_path=excluded.archive_path, recorded_at=excluded.recorded_at`
)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (w *writer) loop() {
	ctx := context.Background()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := w.db.BeginTx(ctx, nil)
		if err != nil {
			w.writeFail.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			w.writeFail.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		w.writeFail.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(q string, args ...any) bool {
		if _, err := tx.Exec(w.dialect.rebind(q), args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range w.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqRecord:
			rec := r.record
			raw, _ := json.Marshal(rec)
			if !exec(sqlInsertRecord,
				w.session, int64(rec.Seq), string(rec.Kind), rec.LevelID, int64(rec.Turn), rec.Digest,
				len(rec.Moves), len(rec.Blocked), boolInt(rec.GoalReached), boolInt(rec.Lost), string(raw),
			) {
				continue
			}
			for i, m := range rec.Moves {
				if !exec(sqlInsertMove,
					w.session, int64(rec.Seq), i, int64(m.Entity), m.Kind,
					m.From[0], m.From[1], m.From[2], m.To[0], m.To[1], m.To[2],
				) {
					break
				}
			}

		case reqSession:
			se := r.session
			exec(sqlInsertSession, se.Path, w.session, se.LevelID, int64(se.Turn), boolInt(se.Cleared), se.RecordedAt)

		case reqClear:
			c := r.clear
			exec(sqlInsertClear, w.session, c.LevelID, int64(c.Turn), c.ArchivePath, c.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

// Index is what the server needs from either backend.
type Index interface {
	stage.Observer
	RecordSession(path string, h snapshot.Header)
	RecordClear(levelID string, turn uint64, archivePath string)
	UpsertLevels(ctx context.Context, m *level.Manifest) error
	Summaries(ctx context.Context) ([]LevelSummary, error)
	Records(ctx context.Context, levelID string, limit int) ([]RecordRow, error)
	Stats() Stats
	Session() string
	Close() error
}

// Open picks the backend from target: a postgres:// URL or a sqlite file
// path.
func Open(target string, opts ...Option) (Index, error) {
	if strings.HasPrefix(target, "postgres://") || strings.HasPrefix(target, "postgresql://") {
		idx, err := OpenPostgres(target, opts...)
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
	idx, err := OpenSQLite(target, opts...)
	if err != nil {
		return nil, err
	}
	return idx, nil
}
