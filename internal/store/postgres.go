package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxhound/voxhound/pkg/recognizer"
)

// Compile-time interface assertion.
var _ Store = (*Postgres)(nil)

const ddlSounds = `
CREATE TABLE IF NOT EXISTS sounds (
    id         BIGSERIAL PRIMARY KEY,
    guild_id   TEXT NOT NULL,
    prompt     TEXT NOT NULL,
    language   TEXT NOT NULL,
    file_name  TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (guild_id, prompt)
);
CREATE INDEX IF NOT EXISTS idx_sounds_guild ON sounds (guild_id);
`

// Postgres is the PostgreSQL-backed [Store]. It holds a single
// [pgxpool.Pool]. All operations are safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres establishes a connection pool to the database at dsn, pings it,
// and runs [Migrate] to ensure the sounds table exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// Migrate creates the sounds table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlSounds); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ListSounds implements [Store].
func (p *Postgres) ListSounds(ctx context.Context, guildID string) ([]Sound, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT prompt, language, file_name FROM sounds WHERE guild_id = $1 ORDER BY id`,
		guildID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list sounds: %w", err)
	}
	defer rows.Close()

	var sounds []Sound
	for rows.Next() {
		var (
			s    Sound
			lang string
		)
		if err := rows.Scan(&s.Prompt, &lang, &s.FileName); err != nil {
			return nil, fmt.Errorf("store: scan sound: %w", err)
		}
		s.GuildID = guildID
		s.Language, err = recognizer.ParseLanguage(lang)
		if err != nil {
			return nil, fmt.Errorf("store: sound %q: %w", s.Prompt, err)
		}
		sounds = append(sounds, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list sounds: %w", err)
	}
	return sounds, nil
}

// AddSound implements [Store].
func (p *Postgres) AddSound(ctx context.Context, s Sound) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO sounds (guild_id, prompt, language, file_name) VALUES ($1, $2, $3, $4)`,
		s.GuildID, s.Prompt, s.Language.String(), s.FileName,
	)
	if err != nil {
		return fmt.Errorf("store: add sound %q: %w", s.Prompt, err)
	}
	return nil
}

// RemoveSound implements [Store].
func (p *Postgres) RemoveSound(ctx context.Context, guildID, prompt string) (Sound, error) {
	var (
		s    Sound
		lang string
	)
	err := p.pool.QueryRow(ctx,
		`DELETE FROM sounds WHERE guild_id = $1 AND prompt = $2 RETURNING prompt, language, file_name`,
		guildID, prompt,
	).Scan(&s.Prompt, &lang, &s.FileName)
	if errors.Is(err, pgx.ErrNoRows) {
		return Sound{}, ErrNotFound
	}
	if err != nil {
		return Sound{}, fmt.Errorf("store: remove sound %q: %w", prompt, err)
	}
	s.GuildID = guildID
	s.Language, err = recognizer.ParseLanguage(lang)
	if err != nil {
		return Sound{}, fmt.Errorf("store: sound %q: %w", s.Prompt, err)
	}
	return s, nil
}
