package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamhive/account-service/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository    = (*PostgresUserRepo)(nil)
	_ ProfileRepository = (*PostgresProfileRepo)(nil)
)

const userColumns = `id, username, email, full_name, avatar_url, cover_image_url, password_hash, COALESCE(refresh_token, ''), created_at, updated_at`

// PostgresUserRepo implements UserRepository on a pgx pool.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

// IsNotFound reports whether err stems from an empty query result.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique-constraint violation,
// used to classify duplicate registrations that race past the existence
// pre-check.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	const query = `
INSERT INTO users (id, username, email, full_name, avatar_url, cover_image_url, password_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query,
		user.ID,
		user.Username,
		user.Email,
		user.FullName,
		user.AvatarURL,
		user.CoverImageURL,
		user.PasswordHash,
	)
	created, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, id int64) (domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) FindByUsernameOrEmail(ctx context.Context, username, email string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $2 LIMIT 1`
	row := r.db.QueryRow(ctx, query, username, email)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`,
		username, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresUserRepo) UpdateAccount(ctx context.Context, id int64, fullName, email string) (domain.User, error) {
	const query = `
UPDATE users SET full_name = $2, email = $3, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query, id, fullName, email)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("update account: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) UpdateAvatar(ctx context.Context, id int64, url string) (domain.User, error) {
	const query = `
UPDATE users SET avatar_url = $2, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query, id, url)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("update avatar: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) UpdateCoverImage(ctx context.Context, id int64, url string) (domain.User, error) {
	const query = `
UPDATE users SET cover_image_url = $2, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

	row := r.db.QueryRow(ctx, query, id, url)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("update cover image: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update password: %w", pgx.ErrNoRows)
	}
	return nil
}

func (r *PostgresUserRepo) GetRefreshToken(ctx context.Context, id int64) (string, error) {
	var value string
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(refresh_token, '') FROM users WHERE id = $1`,
		id,
	).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("get refresh slot: %w", err)
	}
	return value, nil
}

func (r *PostgresUserRepo) SetRefreshToken(ctx context.Context, id int64, value string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET refresh_token = $2, updated_at = now() WHERE id = $1`,
		id, value,
	)
	if err != nil {
		return fmt.Errorf("set refresh slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set refresh slot: %w", pgx.ErrNoRows)
	}
	return nil
}

func (r *PostgresUserRepo) ClearRefreshToken(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET refresh_token = NULL, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("clear refresh slot: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.AvatarURL,
		&u.CoverImageURL,
		&u.PasswordHash,
		&u.RefreshToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// PostgresProfileRepo implements ProfileRepository.
type PostgresProfileRepo struct {
	db *pgxpool.Pool
}

func NewPostgresProfileRepo(pool *pgxpool.Pool) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: pool}
}

func (r *PostgresProfileRepo) GetChannelProfile(ctx context.Context, username string, viewerID int64) (domain.ChannelProfile, error) {
	const query = `
SELECT u.id, u.username, u.full_name, u.email, u.avatar_url, u.cover_image_url,
       (SELECT count(*) FROM subscriptions s WHERE s.channel_id = u.id)    AS subscriber_count,
       (SELECT count(*) FROM subscriptions s WHERE s.subscriber_id = u.id) AS subscribed_to,
       EXISTS (SELECT 1 FROM subscriptions s WHERE s.channel_id = u.id AND s.subscriber_id = $2) AS is_subscribed
FROM users u
WHERE u.username = $1`

	var p domain.ChannelProfile
	err := r.db.QueryRow(ctx, query, username, viewerID).Scan(
		&p.UserID,
		&p.Username,
		&p.FullName,
		&p.Email,
		&p.AvatarURL,
		&p.CoverImageURL,
		&p.SubscriberCount,
		&p.SubscribedTo,
		&p.IsSubscribed,
	)
	if err != nil {
		return domain.ChannelProfile{}, fmt.Errorf("get channel profile: %w", err)
	}
	return p, nil
}

func (r *PostgresProfileRepo) GetWatchHistory(ctx context.Context, userID int64) ([]domain.WatchHistoryEntry, error) {
	const query = `
SELECT v.id, v.title, v.thumbnail_url, owner.username, wh.watched_at
FROM watch_history wh
JOIN videos v  ON v.id = wh.video_id
JOIN users owner ON owner.id = v.owner_id
WHERE wh.user_id = $1
ORDER BY wh.watched_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("get watch history: %w", err)
	}
	defer rows.Close()

	var entries []domain.WatchHistoryEntry
	for rows.Next() {
		var e domain.WatchHistoryEntry
		if err := rows.Scan(&e.VideoID, &e.Title, &e.ThumbnailURL, &e.OwnerUsername, &e.WatchedAt); err != nil {
			return nil, fmt.Errorf("scan watch history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get watch history: %w", err)
	}
	return entries, nil
}
