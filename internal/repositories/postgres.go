package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tweetbox/backend/internal/db"
	"github.com/tweetbox/backend/internal/models"
)

// querier is satisfied by pgx.Tx and *pgxpool.Conn.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, username, email, COALESCE(bio, ''), last_seen`

// PostgresUserRepository provides PostgreSQL-backed persistence for identities.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new identity. Any uniqueness violation on username,
// email or credential digest is reported as ErrConflict.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User, credentialDigest string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, classify("acquire connection", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO users (username, email, bio, api_key_digest)
        VALUES ($1, $2, NULLIF($3, ''), $4)
        RETURNING id, last_seen
    `, user.Username, user.Email, user.Bio, credentialDigest)

	if err := row.Scan(&user.ID, &user.LastSeen); err != nil {
		return models.User{}, classify("insert user", err)
	}
	user.LastSeen = user.LastSeen.UTC()

	return user, nil
}

// TouchByCredential bumps last_seen for the identity owning the digest and
// returns it, loading the relationship collections selected by hint within
// the same transaction.
func (r *PostgresUserRepository) TouchByCredential(ctx context.Context, credentialDigest string, hint models.LoadHint) (models.User, error) {
	var user models.User
	err := db.ExecTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            UPDATE users
            SET last_seen = $2
            WHERE api_key_digest = $1
            RETURNING `+userColumns, credentialDigest, time.Now().UTC())

		loaded, err := scanUser(row)
		if err != nil {
			return classify("touch user", err)
		}
		if err := loadRelations(ctx, tx, &loaded, hint); err != nil {
			return err
		}
		user = loaded
		return nil
	})
	if err != nil {
		return models.User{}, classify("touch user", err)
	}
	return user, nil
}

// FindByID fetches an identity and the relationship collections selected by hint.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64, hint models.LoadHint) (models.User, error) {
	var user models.User
	err := db.ExecTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)

		loaded, err := scanUser(row)
		if err != nil {
			return classify("select user", err)
		}
		if err := loadRelations(ctx, tx, &loaded, hint); err != nil {
			return err
		}
		user = loaded
		return nil
	})
	if err != nil {
		return models.User{}, classify("select user", err)
	}
	return user, nil
}

// List returns identities ordered by descending id.
func (r *PostgresUserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, classify("acquire connection", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+userColumns+`
        FROM users
        ORDER BY id DESC
        LIMIT $1 OFFSET $2
    `, limit, offset)
	if err != nil {
		return nil, classify("query users", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, classify("scan user", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, classify("iterate users", err)
	}

	return users, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Bio, &user.LastSeen); err != nil {
		return models.User{}, err
	}
	user.LastSeen = user.LastSeen.UTC()
	return user, nil
}

func loadRelations(ctx context.Context, q querier, user *models.User, hint models.LoadHint) error {
	if hint.WantsFollowers() {
		followers, err := querySummaries(ctx, q, `
            SELECT u.id, u.username
            FROM follows f
            JOIN users u ON u.id = f.follower_id
            WHERE f.followed_id = $1
            ORDER BY u.id
        `, user.ID)
		if err != nil {
			return classify("query followers", err)
		}
		user.Followers = followers
	}

	if hint.WantsFollowing() {
		following, err := querySummaries(ctx, q, `
            SELECT u.id, u.username
            FROM follows f
            JOIN users u ON u.id = f.followed_id
            WHERE f.follower_id = $1
            ORDER BY u.id
        `, user.ID)
		if err != nil {
			return classify("query following", err)
		}
		user.Following = following
	}

	return nil
}

func querySummaries(ctx context.Context, q querier, sql string, args ...any) ([]models.UserSummary, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.UserSummary{}
	for rows.Next() {
		var s models.UserSummary
		if err := rows.Scan(&s.ID, &s.Username); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// PostgresFollowRepository provides PostgreSQL-backed persistence for follow edges.
type PostgresFollowRepository struct {
	pool db.Pool
}

// NewPostgresFollowRepository constructs a follow repository backed by PostgreSQL.
func NewPostgresFollowRepository(pool db.Pool) *PostgresFollowRepository {
	return &PostgresFollowRepository{pool: pool}
}

// Follow inserts the edge unless it already exists. The composite primary key
// settles races between concurrent callers; the boolean reports whether this
// call created the edge.
func (r *PostgresFollowRepository) Follow(ctx context.Context, followerID, followedID int64) (bool, error) {
	var created bool
	err := db.ExecTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO follows (follower_id, followed_id)
            VALUES ($1, $2)
            ON CONFLICT (follower_id, followed_id) DO NOTHING
        `, followerID, followedID)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, classify("insert follow", err)
	}
	return created, nil
}

// Unfollow removes the edge if present; the boolean reports whether a row was deleted.
func (r *PostgresFollowRepository) Unfollow(ctx context.Context, followerID, followedID int64) (bool, error) {
	var removed bool
	err := db.ExecTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            DELETE FROM follows
            WHERE follower_id = $1 AND followed_id = $2
        `, followerID, followedID)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, classify("delete follow", err)
	}
	return removed, nil
}

// Exists reports whether followerID follows followedID.
func (r *PostgresFollowRepository) Exists(ctx context.Context, followerID, followedID int64) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, classify("acquire connection", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM follows WHERE follower_id = $1 AND followed_id = $2
        )
    `, followerID, followedID).Scan(&exists); err != nil {
		return false, classify("select follow", err)
	}
	return exists, nil
}

// Followers lists the identities following userID ordered by id.
func (r *PostgresFollowRepository) Followers(ctx context.Context, userID int64) ([]models.UserSummary, error) {
	return r.summaries(ctx, "query followers", `
        SELECT u.id, u.username
        FROM follows f
        JOIN users u ON u.id = f.follower_id
        WHERE f.followed_id = $1
        ORDER BY u.id
    `, userID)
}

// Following lists the identities userID follows ordered by id.
func (r *PostgresFollowRepository) Following(ctx context.Context, userID int64) ([]models.UserSummary, error) {
	return r.summaries(ctx, "query following", `
        SELECT u.id, u.username
        FROM follows f
        JOIN users u ON u.id = f.followed_id
        WHERE f.follower_id = $1
        ORDER BY u.id
    `, userID)
}

// CountFollowers counts edges pointing at userID without materialising them.
func (r *PostgresFollowRepository) CountFollowers(ctx context.Context, userID int64) (int64, error) {
	return r.count(ctx, "count followers", `SELECT count(*) FROM follows WHERE followed_id = $1`, userID)
}

// CountFollowing counts edges leaving userID without materialising them.
func (r *PostgresFollowRepository) CountFollowing(ctx context.Context, userID int64) (int64, error) {
	return r.count(ctx, "count following", `SELECT count(*) FROM follows WHERE follower_id = $1`, userID)
}

func (r *PostgresFollowRepository) summaries(ctx context.Context, op, sql string, userID int64) ([]models.UserSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, classify("acquire connection", err)
	}
	defer conn.Release()

	summaries, err := querySummaries(ctx, conn, sql, userID)
	if err != nil {
		return nil, classify(op, err)
	}
	return summaries, nil
}

func (r *PostgresFollowRepository) count(ctx context.Context, op, sql string, userID int64) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, classify("acquire connection", err)
	}
	defer conn.Release()

	var n int64
	if err := conn.QueryRow(ctx, sql, userID).Scan(&n); err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ FollowRepository = (*PostgresFollowRepository)(nil)
