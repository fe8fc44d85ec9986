package usersessionspgxstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jrazmi/taskdeck/core/repositories/usersessionsrepo"
	"github.com/jrazmi/taskdeck/infrastructure/postgresdb"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

type Store struct {
	log  *logger.Logger
	pool *postgresdb.Pool
}

func NewStore(log *logger.Logger, pool *postgresdb.Pool) *Store {
	return &Store{
		log:  log,
		pool: pool,
	}
}

func (s *Store) Create(ctx context.Context, cs usersessionsrepo.CreateSession) (usersessionsrepo.Session, error) {
	query := `INSERT INTO user_sessions (session_id, user_id, expires_at)
		VALUES (@session_id, @user_id, @expires_at)
		RETURNING session_id, user_id, expires_at, created_at, revoked_at`

	args := pgx.NamedArgs{
		"session_id": cs.SessionID,
		"user_id":    cs.UserID,
		"expires_at": cs.ExpiresAt,
	}

	rows, err := s.pool.Query(ctx, query, args)
	if err != nil {
		return usersessionsrepo.Session{}, postgresdb.HandlePgError(err)
	}
	defer rows.Close()

	session, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[usersessionsrepo.Session])
	if err != nil {
		return usersessionsrepo.Session{}, postgresdb.HandlePgError(err)
	}

	return session, nil
}

func (s *Store) GetByID(ctx context.Context, ID string) (usersessionsrepo.Session, error) {
	query := `SELECT session_id, user_id, expires_at, created_at, revoked_at
		FROM user_sessions
		WHERE session_id = @session_id`

	args := pgx.NamedArgs{
		"session_id": ID,
	}

	rows, err := s.pool.Query(ctx, query, args)
	if err != nil {
		return usersessionsrepo.Session{}, postgresdb.HandlePgError(err)
	}
	defer rows.Close()

	session, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[usersessionsrepo.Session])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return usersessionsrepo.Session{}, fmt.Errorf("%w", usersessionsrepo.ErrNotFound)
		}
		return usersessionsrepo.Session{}, postgresdb.HandlePgError(err)
	}

	return session, nil
}

func (s *Store) Revoke(ctx context.Context, ID string) error {
	query := `UPDATE user_sessions
		SET revoked_at = now()
		WHERE session_id = @session_id AND revoked_at IS NULL`

	args := pgx.NamedArgs{
		"session_id": ID,
	}

	tag, err := s.pool.Exec(ctx, query, args)
	if err != nil {
		return postgresdb.HandlePgError(err)
	}
	if tag.RowsAffected() == 0 {
		// Already revoked or never existed. Revocation is idempotent.
		return nil
	}

	return nil
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID string) ([]string, error) {
	query := `UPDATE user_sessions
		SET revoked_at = now()
		WHERE user_id = @user_id AND revoked_at IS NULL
		RETURNING session_id`

	args := pgx.NamedArgs{
		"user_id": userID,
	}

	rows, err := s.pool.Query(ctx, query, args)
	if err != nil {
		return nil, postgresdb.HandlePgError(err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, postgresdb.HandlePgError(err)
	}

	return ids, nil
}

func (s *Store) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM user_sessions
		WHERE expires_at < @before`

	args := pgx.NamedArgs{
		"before": before,
	}

	tag, err := s.pool.Exec(ctx, query, args)
	if err != nil {
		return 0, postgresdb.HandlePgError(err)
	}

	return tag.RowsAffected(), nil
}
