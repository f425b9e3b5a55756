// Package indexdb keeps a queryable SQLite index of the agent's journal.
// The journal stays the source of truth; index writes are asynchronous and
// dropped when the writer falls behind.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abdel0909/mc-bot/internal/persistence/record"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropSession atomic.Uint64
	dropCommand atomic.Uint64
}

var _ record.Recorder = (*SQLiteIndex)(nil)

type reqKind int

const (
	reqSession reqKind = iota + 1
	reqCommand
)

type req struct {
	kind    reqKind
	session record.Session
	command record.Command
}

type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	DropSessionTotal uint64
	DropCommandTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

// OpenReadOnly opens an existing index for queries only. Nothing is
// created or migrated, and Record calls are ignored.
func OpenReadOnly(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s := &SQLiteIndex{db: db}
	s.closed.Store(true)
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			conn_id TEXT NOT NULL,
			attempt INTEGER NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT,
			retry_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_conn ON sessions(conn_id, id);`,
		`CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at TEXT NOT NULL,
			conn_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			command TEXT NOT NULL,
			args TEXT NOT NULL,
			outcome TEXT NOT NULL,
			detail TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_sender_at ON commands(sender, at);`,
		`CREATE INDEX IF NOT EXISTS idx_commands_command ON commands(command, outcome);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains queued writes and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		if s.ch != nil {
			close(s.ch)
		}
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropSessionTotal: s.dropSession.Load(),
		DropCommandTotal: s.dropCommand.Load(),
	}
}

func (s *SQLiteIndex) RecordSession(r record.Session) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqSession, session: r}:
	default:
		s.dropSession.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordCommand(r record.Command) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqCommand, command: r}:
	default:
		s.dropCommand.Add(1)
	}
	return nil
}

// UpsertConfig stores the effective value of a named configuration
// section as canonical JSON with its digest.
func (s *SQLiteIndex) UpsertConfig(ctx context.Context, name string, v any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		name, hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

type CommandCount struct {
	Command string
	Outcome string
	N       int
}

// CommandCounts summarizes dispatched commands, optionally for one sender.
func (s *SQLiteIndex) CommandCounts(ctx context.Context, sender string) ([]CommandCount, error) {
	q := `SELECT command, outcome, COUNT(*) FROM commands`
	var args []any
	if strings.TrimSpace(sender) != "" {
		q += ` WHERE sender = ?`
		args = append(args, sender)
	}
	q += ` GROUP BY command, outcome ORDER BY command, outcome`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommandCount
	for rows.Next() {
		var c CommandCount
		if err := rows.Scan(&c.Command, &c.Outcome, &c.N); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentSessions returns up to limit lifecycle rows, newest first.
func (s *SQLiteIndex) RecentSessions(ctx context.Context, limit int) ([]record.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT at, conn_id, attempt, kind, COALESCE(reason,''), retry_ms FROM sessions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []record.Session
	for rows.Next() {
		var (
			r  record.Session
			at string
		)
		if err := rows.Scan(&at, &r.ConnID, &r.Attempt, &r.Kind, &r.Reason, &r.RetryMS); err != nil {
			return nil, err
		}
		r.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT INTO sessions(at,conn_id,attempt,kind,reason,retry_ms) VALUES(?,?,?,?,?,?)`)
	insertCommand, _ := s.db.Prepare(`INSERT INTO commands(at,conn_id,sender,command,args,outcome,detail) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertSession != nil {
			_ = insertSession.Close()
		}
		if insertCommand != nil {
			_ = insertCommand.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
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
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqSession:
			se := r.session
			if insertSession == nil {
				break
			}
			if _, err := tx.Stmt(insertSession).Exec(
				se.At.UTC().Format(time.RFC3339Nano),
				se.ConnID,
				se.Attempt,
				se.Kind,
				se.Reason,
				se.RetryMS,
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqCommand:
			c := r.command
			if insertCommand == nil {
				break
			}
			args, _ := json.Marshal(c.Args)
			if _, err := tx.Stmt(insertCommand).Exec(
				c.At.UTC().Format(time.RFC3339Nano),
				c.ConnID,
				c.Sender,
				c.Command,
				string(args),
				c.Outcome,
				c.Detail,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		// Records arrive one at a time, so commit whenever the queue is
		// momentarily empty as well as on the size/age thresholds.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}
