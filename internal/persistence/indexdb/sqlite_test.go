package indexdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdel0909/mc-bot/internal/persistence/record"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqSession}

	_ = s.RecordSession(record.Session{Kind: record.KindSpawn})
	_ = s.RecordCommand(record.Command{Command: "pos"})
	_ = s.RecordCommand(record.Command{Command: "pos"})

	st := s.Stats()
	if st.DropSessionTotal != 1 {
		t.Fatalf("DropSessionTotal=%d want=1", st.DropSessionTotal)
	}
	if st.DropCommandTotal != 2 {
		t.Fatalf("DropCommandTotal=%d want=2", st.DropCommandTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_RecordsAndCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "agent.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_ = s.RecordSession(record.Session{At: at, ConnID: "c1", Attempt: 1, Kind: record.KindAttempt})
	_ = s.RecordSession(record.Session{At: at, ConnID: "c1", Attempt: 1, Kind: record.KindEnd, Reason: "closed", RetryMS: 5000})
	for _, c := range []record.Command{
		{At: at, ConnID: "c1", Sender: "alice", Command: "goto", Args: []string{"1", "2", "3"}, Outcome: "ok"},
		{At: at, ConnID: "c1", Sender: "alice", Command: "goto", Args: []string{"a"}, Outcome: "usage"},
		{At: at, ConnID: "c1", Sender: "alice", Command: "goto", Outcome: "usage"},
		{At: at, ConnID: "c1", Sender: "bob", Command: "pos", Outcome: "ok"},
	} {
		_ = s.RecordCommand(c)
	}
	if err := s.UpsertConfig(context.Background(), "tuning", map[string]int{"height": 10}); err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen to read what the writer committed.
	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	var sessions int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE conn_id='c1'`).Scan(&sessions); err != nil || sessions != 2 {
		t.Fatalf("sessions = %d err=%v", sessions, err)
	}
	var retry int64
	if err := s.db.QueryRow(`SELECT retry_ms FROM sessions WHERE kind='end'`).Scan(&retry); err != nil || retry != 5000 {
		t.Fatalf("retry_ms = %d err=%v", retry, err)
	}

	counts, err := s.CommandCounts(context.Background(), "alice")
	if err != nil {
		t.Fatalf("CommandCounts: %v", err)
	}
	want := []CommandCount{{Command: "goto", Outcome: "ok", N: 1}, {Command: "goto", Outcome: "usage", N: 2}}
	if len(counts) != len(want) {
		t.Fatalf("counts = %+v", counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("counts[%d] = %+v want %+v", i, counts[i], want[i])
		}
	}

	recent, err := s.RecentSessions(context.Background(), 1)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(recent) != 1 || recent[0].Kind != record.KindEnd || recent[0].Reason != "closed" || !recent[0].At.Equal(at) {
		t.Fatalf("recent = %+v", recent)
	}

	var digest string
	if err := s.db.QueryRow(`SELECT digest FROM config WHERE name='tuning'`).Scan(&digest); err != nil || len(digest) != 64 {
		t.Fatalf("tuning digest = %q err=%v", digest, err)
	}
}

func TestOpenReadOnly(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "index", "agent.sqlite")
	if s, err := OpenReadOnly(missing); err == nil {
		_ = s.Close()
		t.Fatalf("read-only open of a missing db succeeded")
	}
	if _, err := os.Stat(filepath.Dir(missing)); !os.IsNotExist(err) {
		t.Fatalf("read-only open created %s: %v", filepath.Dir(missing), err)
	}

	path := filepath.Join(dir, "agent.sqlite")
	w, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_ = w.RecordSession(record.Session{At: at, ConnID: "c1", Attempt: 1, Kind: record.KindSpawn})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly: %v", err)
	}
	defer r.Close()
	recent, err := r.RecentSessions(context.Background(), 5)
	if err != nil || len(recent) != 1 || recent[0].Kind != record.KindSpawn {
		t.Fatalf("recent = %+v err=%v", recent, err)
	}
	if err := r.UpsertConfig(context.Background(), "tuning", map[string]int{"height": 3}); err == nil {
		t.Fatalf("write through a read-only index succeeded")
	}
	_ = r.RecordSession(record.Session{At: at, ConnID: "c2", Kind: record.KindEnd})
}
