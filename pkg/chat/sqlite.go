package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS chats (
	id         TEXT PRIMARY KEY,
	name       TEXT    NOT NULL,
	user_id    TEXT    NOT NULL,
	messages   TEXT    NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS chats_user_id_created_at_idx ON chats (user_id, created_at DESC)`

const sqliteColumns = `id, name, user_id, messages, created_at, updated_at`

// SQLiteStore keeps chats in a local SQLite file. Timestamps are stored as
// Unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path. ":memory:" gives a
// private in-memory store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat store: %w", err)
	}
	// One connection serialises writers and keeps ":memory:" a single database
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the chats table
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to migrate chat store: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM chats WHERE id = ?`, id)
	c, err := scanSQLiteChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *SQLiteStore) CountChats(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats WHERE user_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) CreateChat(ctx context.Context, create *Chat) (*Chat, error) {
	messages, err := transcript.Marshal(create.Messages)
	if err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, name, user_id, messages, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		create.ID, create.Name, create.UserID, string(messages),
		create.CreatedAt.UnixNano(), create.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrConflict
	}
	return create, nil
}

func (s *SQLiteStore) UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error) {
	set, args := []string{"updated_at = ?"}, []any{update.UpdatedAt.UnixNano()}
	if update.Messages != nil {
		messages, err := transcript.Marshal(update.Messages)
		if err != nil {
			return nil, err
		}
		set, args = append(set, "messages = ?"), append(args, string(messages))
	}
	if v := update.Name; v != nil {
		set, args = append(set, "name = ?"), append(args, *v)
	}
	args = append(args, update.ID)

	stmt := fmt.Sprintf(`UPDATE chats SET %s WHERE id = ? RETURNING %s`, strings.Join(set, ", "), sqliteColumns)
	c, err := scanSQLiteChat(s.db.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *SQLiteStore) ListChats(ctx context.Context, find *FindChat) ([]*Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM chats WHERE user_id = ? ORDER BY created_at DESC, id`,
		find.OwnerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*Chat{}
	for rows.Next() {
		c, err := scanSQLiteChat(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteChat(row scanner) (*Chat, error) {
	c := &Chat{}
	var messages string
	var created, updated int64
	if err := row.Scan(&c.ID, &c.Name, &c.UserID, &messages, &created, &updated); err != nil {
		return nil, err
	}
	decoded, err := transcript.Unmarshal([]byte(messages))
	if err != nil {
		return nil, fmt.Errorf("failed to decode messages of chat %s: %w", c.ID, err)
	}
	c.Messages = decoded
	c.CreatedAt = time.Unix(0, created).UTC()
	c.UpdatedAt = time.Unix(0, updated).UTC()
	return c, nil
}
