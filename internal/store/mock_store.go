package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"example.com/livefeed/internal/models"
	"github.com/google/uuid"
)

// MockStore is an in-memory StoreInterface used by tests and the "memory"
// store driver.
type MockStore struct {
	mu    sync.Mutex
	Users map[string]*models.User
	Posts map[string]models.Post

	ShouldFail bool // flag to simulate failures

	// FailAddUserPost makes only AddUserPost fail, leaving the post write in
	// place, to exercise partially applied two-write sequences.
	FailAddUserPost bool
	// FailRemoveUserPost and FailUpdatePost fail only the named call.
	FailRemoveUserPost bool
	FailUpdatePost     bool
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users: make(map[string]*models.User),
		Posts: make(map[string]models.Post),
	}
}

func (m *MockStore) Close() {}

// CreateUser simulates creating a new user
func (m *MockStore) CreateUser(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return "", errors.New("mock: create user failed")
	}
	id := uuid.NewString()
	m.Users[id] = &models.User{ID: id, Name: name, PostIDs: []string{}}
	return id, nil
}

func (m *MockStore) GetUser(_ context.Context, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: get user failed")
	}
	u, ok := m.Users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	cp.PostIDs = append([]string(nil), u.PostIDs...)
	return &cp, nil
}

func (m *MockStore) AddUserPost(_ context.Context, userID, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail || m.FailAddUserPost {
		return errors.New("mock: add user post failed")
	}
	u, ok := m.Users[userID]
	if !ok {
		return ErrNotFound
	}
	if !u.HasPost(postID) {
		u.PostIDs = append(u.PostIDs, postID)
	}
	return nil
}

func (m *MockStore) RemoveUserPost(_ context.Context, userID, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail || m.FailRemoveUserPost {
		return errors.New("mock: remove user post failed")
	}
	u, ok := m.Users[userID]
	if !ok {
		return ErrNotFound
	}
	kept := u.PostIDs[:0]
	for _, id := range u.PostIDs {
		if id != postID {
			kept = append(kept, id)
		}
	}
	u.PostIDs = kept
	return nil
}

// AddPost simulates adding a post
func (m *MockStore) AddPost(_ context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: add post failed")
	}
	m.Posts[post.ID] = post
	return nil
}

func (m *MockStore) GetPost(_ context.Context, postID string) (*models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: get post failed")
	}
	p, ok := m.Posts[postID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MockStore) UpdatePost(_ context.Context, post models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail || m.FailUpdatePost {
		return errors.New("mock: update post failed")
	}
	existing, ok := m.Posts[post.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Title = post.Title
	existing.Content = post.Content
	existing.ImageURL = post.ImageURL
	existing.UpdatedAt = post.UpdatedAt
	m.Posts[post.ID] = existing
	return nil
}

func (m *MockStore) DeletePost(_ context.Context, postID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("mock: delete post failed")
	}
	if _, ok := m.Posts[postID]; !ok {
		return ErrNotFound
	}
	delete(m.Posts, postID)
	return nil
}

func (m *MockStore) CountPosts(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return 0, errors.New("mock: count posts failed")
	}
	return len(m.Posts), nil
}

// ListPosts returns posts newest first.
func (m *MockStore) ListPosts(_ context.Context, offset, limit int) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return nil, errors.New("mock: list posts failed")
	}
	all := make([]models.Post, 0, len(m.Posts))
	for _, p := range m.Posts {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) || limit <= 0 {
		return []models.Post{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(context.Context, string) (string, error) {
	return "", errors.New("mock store create user failed")
}

func (m *MockStoreFail) GetUser(context.Context, string) (*models.User, error) {
	return nil, errors.New("mock store get user failed")
}

func (m *MockStoreFail) AddUserPost(context.Context, string, string) error {
	return errors.New("mock store add user post failed")
}

func (m *MockStoreFail) RemoveUserPost(context.Context, string, string) error {
	return errors.New("mock store remove user post failed")
}

func (m *MockStoreFail) AddPost(context.Context, models.Post) error {
	return errors.New("mock store add post failed")
}

func (m *MockStoreFail) GetPost(context.Context, string) (*models.Post, error) {
	return nil, errors.New("mock store get post failed")
}

func (m *MockStoreFail) UpdatePost(context.Context, models.Post) error {
	return errors.New("mock store update post failed")
}

func (m *MockStoreFail) DeletePost(context.Context, string) error {
	return errors.New("mock store delete post failed")
}

func (m *MockStoreFail) CountPosts(context.Context) (int, error) {
	return 0, errors.New("mock store count posts failed")
}

func (m *MockStoreFail) ListPosts(context.Context, int, int) ([]models.Post, error) {
	return nil, errors.New("mock store list posts failed")
}
