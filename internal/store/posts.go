package store

import (
	"context"
	"time"

	"example.com/livefeed/internal/logger"
	"example.com/livefeed/internal/models"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// timelineBucket is the single partition of posts_by_time. The feed is read
// newest-first across all users, so every post lands in the same partition.
const timelineBucket = "all"

// --- User operations ---

// CreateUser inserts a user with an empty post list and returns its id.
func (s *Store) CreateUser(ctx context.Context, name string) (string, error) {
	id := uuid.NewString()
	if err := s.Session.Query(`
		INSERT INTO users (user_id, name, post_ids)
		VALUES (?, ?, ?)`,
		id, name, []string{},
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to create user", err)
		return "", err
	}

	logg.Info("store", "User created", logger.F("user_id", id))
	return id, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.Session.Query(
		`SELECT user_id, name, post_ids FROM users WHERE user_id = ?`,
		userID,
	).WithContext(ctx).Scan(&u.ID, &u.Name, &u.PostIDs)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		logg.Error("store", "Failed to query user", err)
		return nil, err
	}
	return &u, nil
}

// AddUserPost adds postID to the user's post set. Cassandra updates are
// upserts, so the user row is checked first.
func (s *Store) AddUserPost(ctx context.Context, userID, postID string) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.Session.Query(
		`UPDATE users SET post_ids = post_ids + ? WHERE user_id = ?`,
		[]string{postID}, userID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to add post to user", err, logger.F("user_id", userID), logger.F("post_id", postID))
		return err
	}
	return nil
}

func (s *Store) RemoveUserPost(ctx context.Context, userID, postID string) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.Session.Query(
		`UPDATE users SET post_ids = post_ids - ? WHERE user_id = ?`,
		[]string{postID}, userID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to remove post from user", err, logger.F("user_id", userID), logger.F("post_id", postID))
		return err
	}
	return nil
}

// --- Post operations ---

func (s *Store) AddPost(ctx context.Context, post models.Post) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO posts (post_id, title, content, image_url, creator_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		post.ID, post.Title, post.Content, post.ImageURL, post.CreatorID, post.CreatedAt, post.UpdatedAt,
	)
	batch.Query(`INSERT INTO posts_by_time (bucket, created_at, post_id) VALUES (?, ?, ?)`,
		timelineBucket, post.CreatedAt, post.ID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add post", err, logger.F("post_id", post.ID))
		return err
	}

	logg.Info("store", "Post added", logger.F("post_id", post.ID))
	return nil
}

func (s *Store) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var p models.Post
	err := s.Session.Query(`
		SELECT post_id, title, content, image_url, creator_id, created_at, updated_at
		FROM posts WHERE post_id = ?`,
		postID,
	).WithContext(ctx).Scan(&p.ID, &p.Title, &p.Content, &p.ImageURL, &p.CreatorID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		logg.Error("store", "Failed to query post", err, logger.F("post_id", postID))
		return nil, err
	}
	return &p, nil
}

// UpdatePost overwrites title, content, image and updated_at of an existing post.
// It is the only conditional write here: a plain UPDATE upserts, so racing a
// delete would recreate a posts row with no posts_by_time entry. AddPost
// writes a fresh id and DeletePost is idempotent, so neither needs IF EXISTS.
func (s *Store) UpdatePost(ctx context.Context, post models.Post) error {
	applied, err := s.Session.Query(`
		UPDATE posts SET title = ?, content = ?, image_url = ?, updated_at = ?
		WHERE post_id = ? IF EXISTS`,
		post.Title, post.Content, post.ImageURL, post.UpdatedAt, post.ID,
	).WithContext(ctx).ScanCAS()
	if err != nil {
		logg.Error("store", "Failed to update post", err, logger.F("post_id", post.ID))
		return err
	}
	if !applied {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePost(ctx context.Context, postID string) error {
	var createdAt time.Time
	err := s.Session.Query(`SELECT created_at FROM posts WHERE post_id = ?`, postID).
		WithContext(ctx).Scan(&createdAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return ErrNotFound
		}
		return err
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`DELETE FROM posts WHERE post_id = ?`, postID)
	batch.Query(`DELETE FROM posts_by_time WHERE bucket = ? AND created_at = ? AND post_id = ?`,
		timelineBucket, createdAt, postID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete post", err, logger.F("post_id", postID))
		return err
	}

	logg.Info("store", "Post deleted", logger.F("post_id", postID))
	return nil
}

func (s *Store) CountPosts(ctx context.Context) (int, error) {
	var n int64
	if err := s.Session.Query(
		`SELECT COUNT(*) FROM posts_by_time WHERE bucket = ?`, timelineBucket,
	).WithContext(ctx).Scan(&n); err != nil {
		logg.Error("store", "Failed to count posts", err)
		return 0, err
	}
	return int(n), nil
}

// ListPosts returns up to limit posts, newest first, skipping offset.
// Cassandra has no OFFSET, so skipped rows are read and discarded.
func (s *Store) ListPosts(ctx context.Context, offset, limit int) ([]models.Post, error) {
	if limit <= 0 {
		return nil, nil
	}
	iter := s.Session.Query(
		`SELECT post_id FROM posts_by_time WHERE bucket = ?`, timelineBucket,
	).WithContext(ctx).PageSize(offset + limit).Iter()

	var ids []string
	var id string
	seen := 0
	for iter.Scan(&id) {
		seen++
		if seen <= offset {
			continue
		}
		ids = append(ids, id)
		if len(ids) == limit {
			break
		}
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to page timeline", err)
		return nil, err
	}

	res := make([]models.Post, 0, len(ids))
	for _, pid := range ids {
		p, err := s.GetPost(ctx, pid)
		if err == ErrNotFound {
			// deleted between the timeline read and the lookup
			continue
		}
		if err != nil {
			return nil, err
		}
		res = append(res, *p)
	}
	return res, nil
}
