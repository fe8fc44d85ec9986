package userspgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jrazmi/taskdeck/core/repositories/usersrepo"
	"github.com/jrazmi/taskdeck/infrastructure/postgresdb"
	"github.com/jrazmi/taskdeck/sdk/logger"
)

// uniqueViolation is the postgres error code for unique constraint failures.
const uniqueViolation = "23505"

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

func (s *Store) Create(ctx context.Context, cu usersrepo.CreateUser) (usersrepo.User, error) {
	query := `INSERT INTO users (user_id, email, display_name, password_hash)
		VALUES (@user_id, @email, @display_name, @password_hash)
		RETURNING user_id, email, display_name, password_hash, created_at, updated_at`

	args := pgx.NamedArgs{
		"user_id":       uuid.NewString(),
		"email":         cu.Email,
		"display_name":  cu.DisplayName,
		"password_hash": cu.PasswordHash,
	}

	rows, err := s.pool.Query(ctx, query, args)
	if err != nil {
		return usersrepo.User{}, postgresdb.HandlePgError(err)
	}
	defer rows.Close()

	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[usersrepo.User])
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return usersrepo.User{}, usersrepo.ErrEmailTaken
		}
		return usersrepo.User{}, postgresdb.HandlePgError(err)
	}

	return user, nil
}

func (s *Store) GetByID(ctx context.Context, ID string) (usersrepo.User, error) {
	query := `SELECT user_id, email, display_name, password_hash, created_at, updated_at
		FROM users
		WHERE user_id = @user_id`

	args := pgx.NamedArgs{
		"user_id": ID,
	}

	return s.getOne(ctx, query, args)
}

func (s *Store) GetByEmail(ctx context.Context, email string) (usersrepo.User, error) {
	query := `SELECT user_id, email, display_name, password_hash, created_at, updated_at
		FROM users
		WHERE email = @email`

	args := pgx.NamedArgs{
		"email": email,
	}

	return s.getOne(ctx, query, args)
}

func (s *Store) getOne(ctx context.Context, query string, args pgx.NamedArgs) (usersrepo.User, error) {
	rows, err := s.pool.Query(ctx, query, args)
	if err != nil {
		return usersrepo.User{}, postgresdb.HandlePgError(err)
	}
	defer rows.Close()

	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[usersrepo.User])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return usersrepo.User{}, fmt.Errorf("%w", usersrepo.ErrNotFound)
		}
		return usersrepo.User{}, postgresdb.HandlePgError(err)
	}

	return user, nil
}
