// Package journal keeps a SQLite record of the traffic relayed by the
// bridge.
package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dumacp/go-logs/pkg/logs"
	"github.com/dumacp/go-lorabridge/internal/events"
	_ "github.com/mattn/go-sqlite3"
)

const backlog = 256

// traffic lists the event kinds worth journaling.
var traffic = map[events.Kind]bool{
	events.KindEnqueued: true,
	events.KindDrop:     true,
	events.KindNotified: true,
	events.KindTx:       true,
	events.KindRx:       true,
	events.KindAckSent:  true,
	events.KindBeacon:   true,
}

// Journal is an events.Sink that writes traffic events asynchronously.
type Journal struct {
	db      *sql.DB
	ch      chan item
	done    chan struct{}
	once    sync.Once
	mux     sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// item is either an event to write or a flush marker.
type item struct {
	ev    events.Event
	flush chan struct{}
}

// Open opens (or creates) the SQLite file at path with WAL journal mode
// and starts the writer.
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ping: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	j := &Journal{
		db:   db,
		ch:   make(chan item, backlog),
		done: make(chan struct{}),
	}
	go j.writer()
	return j, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(ddlTraffic); err != nil {
		return fmt.Errorf("journal: migrate: %w", err)
	}
	return nil
}

const ddlTraffic = `
CREATE TABLE IF NOT EXISTS traffic (
    id       INTEGER PRIMARY KEY AUTOINCREMENT,
    at       INTEGER NOT NULL,          -- Unix milliseconds
    source   TEXT    NOT NULL,
    kind     TEXT    NOT NULL,
    queue    TEXT    NOT NULL DEFAULT '',
    msg_type TEXT    NOT NULL DEFAULT '',
    seq      INTEGER,
    message  TEXT    NOT NULL DEFAULT '',
    rssi     INTEGER NOT NULL DEFAULT 0,
    snr      INTEGER NOT NULL DEFAULT 0,
    bytes    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_traffic_at ON traffic (at DESC);
`

// Emit queues e for writing when it is a traffic event. It never blocks;
// events are dropped while the writer is behind.
func (j *Journal) Emit(e events.Event) {
	if !traffic[e.Kind] {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	j.mux.RLock()
	defer j.mux.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.ch <- item{ev: e}:
	default:
		if n := j.dropped.Add(1); n%50 == 1 {
			logs.LogWarn.Printf("journal backlog full, %d events dropped", n)
		}
	}
}

func (j *Journal) writer() {
	defer close(j.done)
	for it := range j.ch {
		if it.flush != nil {
			close(it.flush)
			continue
		}
		if err := j.insert(it.ev); err != nil {
			logs.LogError.Printf("journal insert error: %s", err)
		}
	}
}

func (j *Journal) insert(e events.Event) error {
	var seq sql.NullInt64
	if e.Seq != nil {
		seq = sql.NullInt64{Int64: int64(*e.Seq), Valid: true}
	}
	_, err := j.db.Exec(
		`INSERT INTO traffic (at, source, kind, queue, msg_type, seq, message, rssi, snr, bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UnixMilli(), e.Source, string(e.Kind), e.Queue, e.MsgType, seq, e.Message,
		e.RSSI, e.SNR, e.Bytes)
	return err
}

// Flush waits until every event queued so far is written.
func (j *Journal) Flush() {
	j.mux.RLock()
	if j.closed {
		j.mux.RUnlock()
		return
	}
	done := make(chan struct{})
	j.ch <- item{flush: done}
	j.mux.RUnlock()
	<-done
}

// Close stops the writer after the backlog is written and closes the
// database.
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.mux.Lock()
		j.closed = true
		close(j.ch)
		j.mux.Unlock()
		<-j.done
		err = j.db.Close()
	})
	return err
}

// Record is a journaled traffic event.
type Record struct {
	ID      int64
	Time    time.Time
	Source  string
	Kind    events.Kind
	Queue   string
	MsgType string
	Seq     *uint8
	Message string
	RSSI    int16
	SNR     int8
	Bytes   int
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(limit int) ([]Record, error) {
	rows, err := j.db.Query(
		`SELECT id, at, source, kind, queue, msg_type, seq, message, rssi, snr, bytes
		 FROM traffic ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r    Record
			at   int64
			kind string
			seq  sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &at, &r.Source, &kind, &r.Queue, &r.MsgType, &seq,
			&r.Message, &r.RSSI, &r.SNR, &r.Bytes); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		r.Time = time.UnixMilli(at)
		r.Kind = events.Kind(kind)
		if seq.Valid {
			s := uint8(seq.Int64)
			r.Seq = &s
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counts returns the number of journaled events per kind.
func (j *Journal) Counts() (map[events.Kind]int, error) {
	rows, err := j.db.Query(`SELECT kind, COUNT(*) FROM traffic GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	out := make(map[events.Kind]int)
	for rows.Next() {
		var (
			kind string
			n    int
		)
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		out[events.Kind(kind)] = n
	}
	return out, rows.Err()
}
