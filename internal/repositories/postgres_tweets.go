package repositories

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/tweetbox/backend/internal/apperr"
	"github.com/tweetbox/backend/internal/db"
	"github.com/tweetbox/backend/internal/models"
)

// PostgresMediaRepository provides PostgreSQL-backed persistence for media rows.
type PostgresMediaRepository struct {
	pool db.Pool
}

// NewPostgresMediaRepository constructs a media repository backed by PostgreSQL.
func NewPostgresMediaRepository(pool db.Pool) *PostgresMediaRepository {
	return &PostgresMediaRepository{pool: pool}
}

// Create inserts an unbound media row in a single statement.
func (r *PostgresMediaRepository) Create(ctx context.Context, media models.Media) (models.Media, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Media{}, classify("acquire connection", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        INSERT INTO media (direct_url, remote_path)
        VALUES ($1, $2)
        RETURNING id, created_at
    `, media.DirectURL, media.RemotePath)

	if err := row.Scan(&media.ID, &media.CreatedAt); err != nil {
		return models.Media{}, classify("insert media", err)
	}
	media.TweetID = nil
	media.CreatedAt = media.CreatedAt.UTC()

	return media, nil
}

// FindByID fetches a media row regardless of its binding.
func (r *PostgresMediaRepository) FindByID(ctx context.Context, id int64) (models.Media, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Media{}, classify("acquire connection", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, direct_url, remote_path, tweet_id, created_at
        FROM media
        WHERE id = $1
    `, id)

	media, err := scanMedia(row)
	if err != nil {
		return models.Media{}, classify("select media", err)
	}
	return media, nil
}

func scanMedia(row pgx.Row) (models.Media, error) {
	var media models.Media
	if err := row.Scan(&media.ID, &media.DirectURL, &media.RemotePath, &media.TweetID, &media.CreatedAt); err != nil {
		return models.Media{}, err
	}
	media.CreatedAt = media.CreatedAt.UTC()
	return media, nil
}

// PostgresTweetRepository provides PostgreSQL-backed persistence for tweets.
type PostgresTweetRepository struct {
	pool db.Pool
}

// NewPostgresTweetRepository constructs a tweet repository backed by PostgreSQL.
func NewPostgresTweetRepository(pool db.Pool) *PostgresTweetRepository {
	return &PostgresTweetRepository{pool: pool}
}

// Create inserts the tweet and claims every requested media row in one
// transaction. Only unbound rows can be claimed; if any requested id is
// missing or already bound the whole transaction rolls back and a
// *apperr.MediaNotFoundError names the offending ids.
func (r *PostgresTweetRepository) Create(ctx context.Context, tweet models.Tweet, mediaIDs []int64) (models.Tweet, error) {
	ids := uniqueIDs(mediaIDs)

	var created models.Tweet
	err := db.ExecTx(ctx, r.pool, func(tx pgx.Tx) error {
		out := tweet
		out.Media = nil

		row := tx.QueryRow(ctx, `
            INSERT INTO tweets (body, user_id)
            VALUES (NULLIF($1, ''), $2)
            RETURNING id, created_at
        `, tweet.Body, tweet.AuthorID)
		if err := row.Scan(&out.ID, &out.CreatedAt); err != nil {
			return err
		}
		out.CreatedAt = out.CreatedAt.UTC()

		if len(ids) > 0 {
			bound, err := bindMedia(ctx, tx, out.ID, ids)
			if err != nil {
				return err
			}
			out.Media = bound
		}

		created = out
		return nil
	})
	if err != nil {
		return models.Tweet{}, classify("insert tweet", err)
	}
	return created, nil
}

// bindMedia claims unbound media rows for tweetID. The UPDATE takes row locks,
// so a concurrent claimer re-evaluates tweet_id IS NULL and sees the row as taken.
func bindMedia(ctx context.Context, tx pgx.Tx, tweetID int64, ids []int64) ([]models.Media, error) {
	rows, err := tx.Query(ctx, `
        UPDATE media
        SET tweet_id = $1
        WHERE id = ANY($2) AND tweet_id IS NULL
        RETURNING id, direct_url, remote_path, tweet_id, created_at
    `, tweetID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[int64]models.Media, len(ids))
	for rows.Next() {
		media, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		found[media.ID] = media
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []int64
	bound := make([]models.Media, 0, len(ids))
	for _, id := range ids {
		media, ok := found[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		bound = append(bound, media)
	}
	if len(missing) > 0 {
		return nil, apperr.NewMediaNotFound(missing)
	}

	return bound, nil
}

// DeleteOwned deletes the tweet if ownerID owns it and returns the remote
// paths of the media that were bound to it. Media rows and likes go with the
// tweet through ON DELETE CASCADE. A wrong id or a wrong owner is ErrNotFound.
func (r *PostgresTweetRepository) DeleteOwned(ctx context.Context, tweetID, ownerID int64) ([]string, error) {
	var paths []string
	err := db.ExecTx(ctx, r.pool, func(tx pgx.Tx) error {
		paths = nil

		var id int64
		if err := tx.QueryRow(ctx, `
            SELECT id FROM tweets
            WHERE id = $1 AND user_id = $2
            FOR UPDATE
        `, tweetID, ownerID).Scan(&id); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `
            SELECT remote_path FROM media
            WHERE tweet_id = $1
            ORDER BY id
        `, tweetID)
		if err != nil {
			return err
		}
		collected, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM tweets WHERE id = $1`, tweetID); err != nil {
			return err
		}

		paths = collected
		return nil
	})
	if err != nil {
		return nil, classify("delete tweet", err)
	}
	return paths, nil
}

// Like records the like edge. Liking twice is a no-op; the boolean reports
// whether this call created the edge.
func (r *PostgresTweetRepository) Like(ctx context.Context, userID, tweetID int64) (bool, error) {
	var created bool
	err := db.ExecTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockTweet(ctx, tx, tweetID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
            INSERT INTO likes (user_id, tweet_id)
            VALUES ($1, $2)
            ON CONFLICT (user_id, tweet_id) DO NOTHING
        `, userID, tweetID)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, classify("insert like", err)
	}
	return created, nil
}

// Unlike removes the like edge if present.
func (r *PostgresTweetRepository) Unlike(ctx context.Context, userID, tweetID int64) (bool, error) {
	var removed bool
	err := db.ExecTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockTweet(ctx, tx, tweetID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
            DELETE FROM likes
            WHERE user_id = $1 AND tweet_id = $2
        `, userID, tweetID)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, classify("delete like", err)
	}
	return removed, nil
}

// lockTweet holds a share lock on the tweet so it cannot be deleted while a
// like edge is being written.
func lockTweet(ctx context.Context, tx pgx.Tx, tweetID int64) error {
	var id int64
	return tx.QueryRow(ctx, `SELECT id FROM tweets WHERE id = $1 FOR SHARE`, tweetID).Scan(&id)
}

const tweetSelect = `
    SELECT t.id, COALESCE(t.body, ''), t.created_at, t.user_id, u.username
    FROM tweets t
    JOIN users u ON u.id = t.user_id
`

// FindByID returns the tweet with its author, attachments and likers.
func (r *PostgresTweetRepository) FindByID(ctx context.Context, tweetID int64) (models.Tweet, error) {
	var tweet models.Tweet
	err := db.ExecTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, tweetSelect+` WHERE t.id = $1`, tweetID)
		if err != nil {
			return err
		}
		tweets, err := collectTweets(rows)
		if err != nil {
			return err
		}
		if len(tweets) == 0 {
			return ErrNotFound
		}
		if err := loadTweetDetails(ctx, tx, tweets); err != nil {
			return err
		}
		tweet = tweets[0]
		return nil
	})
	if err != nil {
		return models.Tweet{}, classify("select tweet", err)
	}
	return tweet, nil
}

// ListByAuthors returns tweets written by any of authorIDs, newest first.
func (r *PostgresTweetRepository) ListByAuthors(ctx context.Context, authorIDs []int64, limit, offset int) ([]models.Tweet, error) {
	return r.list(ctx, "list tweets", tweetSelect+`
        WHERE t.user_id = ANY($1)
        ORDER BY t.created_at DESC, t.id DESC
        LIMIT $2 OFFSET $3
    `, uniqueIDs(authorIDs), limit, offset)
}

// Feed returns tweets written by identities userID follows, newest first.
func (r *PostgresTweetRepository) Feed(ctx context.Context, userID int64, limit, offset int) ([]models.Tweet, error) {
	return r.list(ctx, "feed tweets", tweetSelect+`
        WHERE t.user_id IN (SELECT followed_id FROM follows WHERE follower_id = $1)
        ORDER BY t.created_at DESC, t.id DESC
        LIMIT $2 OFFSET $3
    `, userID, limit, offset)
}

func (r *PostgresTweetRepository) list(ctx context.Context, op, sql string, args ...any) ([]models.Tweet, error) {
	var tweets []models.Tweet
	err := db.ExecTx(ctx, r.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		loaded, err := collectTweets(rows)
		if err != nil {
			return err
		}
		if err := loadTweetDetails(ctx, tx, loaded); err != nil {
			return err
		}
		tweets = loaded
		return nil
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return tweets, nil
}

func collectTweets(rows pgx.Rows) ([]models.Tweet, error) {
	defer rows.Close()

	tweets := []models.Tweet{}
	for rows.Next() {
		var t models.Tweet
		if err := rows.Scan(&t.ID, &t.Body, &t.CreatedAt, &t.AuthorID, &t.Author.Username); err != nil {
			return nil, err
		}
		t.Author.ID = t.AuthorID
		t.CreatedAt = t.CreatedAt.UTC()
		t.Media = []models.Media{}
		t.LikedBy = []models.UserSummary{}
		tweets = append(tweets, t)
	}
	return tweets, rows.Err()
}

// loadTweetDetails fills media and likers for every tweet with two batched
// queries instead of two per tweet.
func loadTweetDetails(ctx context.Context, q querier, tweets []models.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}

	ids := make([]int64, len(tweets))
	index := make(map[int64]int, len(tweets))
	for i, t := range tweets {
		ids[i] = t.ID
		index[t.ID] = i
	}

	mediaRows, err := q.Query(ctx, `
        SELECT id, direct_url, remote_path, tweet_id, created_at
        FROM media
        WHERE tweet_id = ANY($1)
        ORDER BY id
    `, ids)
	if err != nil {
		return err
	}
	defer mediaRows.Close()

	for mediaRows.Next() {
		media, err := scanMedia(mediaRows)
		if err != nil {
			return err
		}
		i := index[*media.TweetID]
		tweets[i].Media = append(tweets[i].Media, media)
	}
	if err := mediaRows.Err(); err != nil {
		return err
	}
	mediaRows.Close()

	likeRows, err := q.Query(ctx, `
        SELECT l.tweet_id, u.id, u.username
        FROM likes l
        JOIN users u ON u.id = l.user_id
        WHERE l.tweet_id = ANY($1)
        ORDER BY l.created_at, u.id
    `, ids)
	if err != nil {
		return err
	}
	defer likeRows.Close()

	for likeRows.Next() {
		var (
			tweetID int64
			liker   models.UserSummary
		)
		if err := likeRows.Scan(&tweetID, &liker.ID, &liker.Username); err != nil {
			return err
		}
		i := index[tweetID]
		tweets[i].LikedBy = append(tweets[i].LikedBy, liker)
	}
	return likeRows.Err()
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

var _ MediaRepository = (*PostgresMediaRepository)(nil)
var _ TweetRepository = (*PostgresTweetRepository)(nil)
