package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/pollen_dashboard/internal/telemetry"
)

const createMessagesTable = `
create table if not exists messages (
    id         integer primary key autoincrement,
    receivedAt integer not null,
    payload    text    not null
);
create index if not exists messages_receivedAt on messages(receivedAt);
`

// Archive stores every feed message in a SQLite file so history survives
// restarts and outlives the remote API.
type Archive struct {
	db    *sql.DB
	mutex sync.Mutex
}

// OpenArchive opens (creating if needed) the archive at path.
func OpenArchive(path string) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create archive dir %s", dir)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open archive %s", path)
	}
	// one writer at a time; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	a := &Archive{db: db}
	if err := a.db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping archive")
	}
	if _, err := a.db.Exec(createMessagesTable); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create messages table")
	}
	return a, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.db.Close()
}

// Record stores a raw message payload received at t.
func (a *Archive) Record(ctx context.Context, t time.Time, payload []byte) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	_, err := a.db.ExecContext(ctx,
		`insert into messages(receivedAt, payload) values (?, ?)`,
		t.UnixMilli(), string(payload))
	return errors.Wrap(err, "insert message")
}

// Recent returns up to limit messages, newest first, the same order the
// remote history API uses. Messages without their own timestamp get the
// time they were received. Rows that no longer decode are skipped.
func (a *Archive) Recent(ctx context.Context, limit int) ([]telemetry.Message, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	rows, err := a.db.QueryContext(ctx,
		`select receivedAt, payload from messages order by receivedAt desc, id desc limit ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query messages")
	}
	defer rows.Close()

	var msgs []telemetry.Message
	for rows.Next() {
		var (
			receivedAt int64
			payload    string
		)
		if err := rows.Scan(&receivedAt, &payload); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		m, err := telemetry.Decode([]byte(payload))
		if err != nil {
			log.WithField("err", err).Warn("archive: skipping undecodable row")
			continue
		}
		if m.Timestamp == nil {
			m.Timestamp = &receivedAt
		}
		msgs = append(msgs, m)
	}
	return msgs, errors.Wrap(rows.Err(), "iterate messages")
}

// Prune deletes messages received before t and returns how many went.
func (a *Archive) Prune(ctx context.Context, before time.Time) (int64, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	res, err := a.db.ExecContext(ctx, `delete from messages where receivedAt < ?`, before.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "prune messages")
	}
	return res.RowsAffected()
}
