package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS chats (
	id         UUID PRIMARY KEY,
	name       TEXT        NOT NULL,
	user_id    TEXT        NOT NULL,
	messages   JSONB       NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS chats_user_id_created_at_idx ON chats (user_id, created_at DESC)`

const postgresColumns = `id::text, name, user_id, messages, created_at, updated_at`

// PostgresStore keeps chats in a Postgres table through a connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects to dsn and creates the chats table if needed
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat store pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach chat store: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the chats table
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate chat store: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChat(ctx context.Context, id string) (*Chat, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postgresColumns+` FROM chats WHERE id = $1`, id)
	c, err := scanPostgresChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *PostgresStore) CountChats(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chats WHERE user_id = $1`, ownerID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) CreateChat(ctx context.Context, create *Chat) (*Chat, error) {
	messages, err := transcript.Marshal(create.Messages)
	if err != nil {
		return nil, err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO chats (id, name, user_id, messages, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5, $6)
		 ON CONFLICT (id) DO NOTHING`,
		create.ID, create.Name, create.UserID, string(messages), create.CreatedAt, create.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrConflict
	}
	return create, nil
}

func (s *PostgresStore) UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error) {
	set, args := []string{"updated_at = $1"}, []any{update.UpdatedAt}
	if update.Messages != nil {
		messages, err := transcript.Marshal(update.Messages)
		if err != nil {
			return nil, err
		}
		args = append(args, string(messages))
		set = append(set, fmt.Sprintf("messages = $%d::jsonb", len(args)))
	}
	if v := update.Name; v != nil {
		args = append(args, *v)
		set = append(set, fmt.Sprintf("name = $%d", len(args)))
	}
	args = append(args, update.ID)

	stmt := fmt.Sprintf(`UPDATE chats SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(set, ", "), len(args), postgresColumns)
	c, err := scanPostgresChat(s.pool.QueryRow(ctx, stmt, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *PostgresStore) ListChats(ctx context.Context, find *FindChat) ([]*Chat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postgresColumns+` FROM chats WHERE user_id = $1 ORDER BY created_at DESC, id`,
		find.OwnerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*Chat{}
	for rows.Next() {
		c, err := scanPostgresChat(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgresChat(row pgx.Row) (*Chat, error) {
	c := &Chat{}
	var messages []byte
	if err := row.Scan(&c.ID, &c.Name, &c.UserID, &messages, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	decoded, err := transcript.Unmarshal(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to decode messages of chat %s: %w", c.ID, err)
	}
	c.Messages = decoded
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}
