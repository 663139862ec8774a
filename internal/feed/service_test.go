package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"example.com/livefeed/internal/models"
	"example.com/livefeed/internal/notify"
	"example.com/livefeed/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu        sync.Mutex
	events    []models.Event
	forwarded []models.Event
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Forward(_ context.Context, ev models.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forwarded = append(p.forwarded, ev)
}

func (p *recordingPublisher) relayed() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event(nil), p.forwarded...)
}

func (p *recordingPublisher) all() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event(nil), p.events...)
}

type recordingImages struct {
	deleted []string
	err     error
}

func (r *recordingImages) Delete(path string) error {
	r.deleted = append(r.deleted, path)
	return r.err
}

type fixture struct {
	svc    *Service
	store  *store.MockStore
	images *recordingImages
	pub    *recordingPublisher
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMock(),
		images: &recordingImages{},
		pub:    &recordingPublisher{},
		clock:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.store, f.images, f.pub)
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return f
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	id, err := f.store.CreateUser(context.Background(), name)
	require.NoError(t, err)
	return id
}

func (f *fixture) post(t *testing.T, owner, title string) *models.Post {
	t.Helper()
	p, _, err := f.svc.CreatePost(context.Background(), CreateInput{
		Title: title, Content: "body of " + title, ImagePath: "images/" + title + ".png",
	}, owner)
	require.NoError(t, err)
	return p
}

func TestIsOwner(t *testing.T) {
	p := &models.Post{CreatorID: "u1"}
	assert.True(t, IsOwner(p, "u1"))
	assert.True(t, IsOwner(p, " u1 "))
	assert.False(t, IsOwner(p, "u2"))
	assert.False(t, IsOwner(p, ""))
	assert.False(t, IsOwner(nil, "u1"))
}

func TestCreatePost_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "Max")

	post, creator, err := f.svc.CreatePost(ctx, CreateInput{
		Title: "  Hello  ", Content: "World", ImagePath: "images/a.png",
	}, uid)
	require.NoError(t, err)

	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, "images/a.png", post.ImageURL)
	assert.Equal(t, uid, post.CreatorID)
	assert.Equal(t, models.CreatorSummary{ID: uid, Name: "Max"}, creator)

	stored, err := f.store.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, *post, *stored)

	u, err := f.store.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, []string{post.ID}, u.PostIDs)

	events := f.pub.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.ActionCreate, events[0].Action)
	view, ok := events[0].Post.(models.PostWithCreator)
	require.True(t, ok)
	assert.Equal(t, post.ID, view.ID)
	assert.Equal(t, "Max", view.Creator.Name)
}

func TestCreatePost_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		in   CreateInput
		msg  string
	}{
		{"empty title", CreateInput{Title: "   ", Content: "c", ImagePath: "images/a.png"}, "Validation failed, incorrect data entered."},
		{"empty content", CreateInput{Title: "t", Content: "", ImagePath: "images/a.png"}, "Validation failed, incorrect data entered."},
		{"long title", CreateInput{Title: strings.Repeat("x", 201), Content: "c", ImagePath: "images/a.png"}, "Validation failed, incorrect data entered."},
		{"no image", CreateInput{Title: "t", Content: "c"}, "An image is required."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			uid := f.user(t, "Max")

			_, _, err := f.svc.CreatePost(context.Background(), tc.in, uid)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			var fe *Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.msg, fe.Message)

			assert.Empty(t, f.store.Posts)
			assert.Empty(t, f.pub.all())
		})
	}
}

func TestCreatePost_FieldErrors(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")

	_, _, err := f.svc.CreatePost(context.Background(), CreateInput{ImagePath: "images/a.png"}, uid)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	require.Len(t, fe.Data, 2)
	assert.Equal(t, FieldError{Field: "title", Message: "must not be empty"}, fe.Data[0])
	assert.Equal(t, "content", fe.Data[1].Field)
}

func TestCreatePost_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.CreatePost(context.Background(), CreateInput{Title: "t", Content: "c", ImagePath: "images/a.png"}, "ghost")
	assert.True(t, IsNotFound(err))
	assert.Empty(t, f.store.Posts)
}

func TestCreatePost_LinkFailureLeavesPost(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")
	f.store.FailAddUserPost = true

	_, _, err := f.svc.CreatePost(context.Background(), CreateInput{Title: "t", Content: "c", ImagePath: "images/a.png"}, uid)
	require.Error(t, err)
	assert.Equal(t, KindUnclassified, KindOf(err))

	assert.True(t, UploadKept(err))

	assert.Len(t, f.store.Posts, 1)
	assert.Empty(t, f.store.Users[uid].PostIDs)
	assert.Empty(t, f.pub.all())

	forwarded := f.pub.relayed()
	require.Len(t, forwarded, 1)
	assert.Equal(t, models.ActionCreate, forwarded[0].Action)
	assert.Equal(t, uid, forwarded[0].CreatorID)
	assert.Contains(t, f.store.Posts, forwarded[0].PostID)
}

func TestCreatePost_LinkFailureReachesRelay(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")
	f.store.FailAddUserPost = true

	relay := &recordingRelay{}
	n := notify.New(relay)
	n.Init(discardTransport{})
	f.svc.pub = n

	_, _, err := f.svc.CreatePost(context.Background(), CreateInput{Title: "t", Content: "c", ImagePath: "images/a.png"}, uid)
	require.Error(t, err)

	require.Len(t, relay.records, 1)
	assert.Equal(t, models.ActionCreate, relay.records[0].Action)
	assert.Equal(t, uid, relay.records[0].CreatorID)
	assert.Contains(t, f.store.Posts, relay.records[0].PostID)
}

func TestCreatePost_PublishFailureKeepsUpload(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")
	f.pub.err = errors.New("socket gone")

	_, _, err := f.svc.CreatePost(context.Background(), CreateInput{Title: "t", Content: "c", ImagePath: "images/a.png"}, uid)
	require.Error(t, err)
	assert.True(t, UploadKept(err))
	assert.Len(t, f.store.Posts, 1)
}

func TestCreatePost_EarlyFailureReleasesUpload(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.CreatePost(context.Background(), CreateInput{Title: "t", Content: "c", ImagePath: "images/a.png"}, "ghost")
	require.Error(t, err)
	assert.False(t, UploadKept(err))

	uid := f.user(t, "Max")
	f.store.ShouldFail = true
	_, _, err = f.svc.CreatePost(context.Background(), CreateInput{Title: "t", Content: "c", ImagePath: "images/a.png"}, uid)
	require.Error(t, err)
	assert.False(t, UploadKept(err))
}

func TestCreatePost_NotifierUninitialized(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")
	f.svc.pub = notify.New(nil)

	_, _, err := f.svc.CreatePost(context.Background(), CreateInput{Title: "t", Content: "c", ImagePath: "images/a.png"}, uid)
	require.Error(t, err)
	assert.Equal(t, KindUninitialized, KindOf(err))
	assert.ErrorIs(t, err, notify.ErrUninitialized)
	assert.True(t, UploadKept(err))
}

func TestGetPosts_Pagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "Max")
	var ids []string
	for i := 1; i <= 5; i++ {
		ids = append(ids, f.post(t, uid, fmt.Sprintf("p%d", i)).ID)
	}

	page, err := f.svc.GetPosts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalItems)
	require.Len(t, page.Posts, 2)
	assert.Equal(t, ids[4], page.Posts[0].ID)
	assert.Equal(t, ids[3], page.Posts[1].ID)
	assert.Equal(t, "Max", page.Posts[0].Creator.Name)

	page, err = f.svc.GetPosts(ctx, 3)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, ids[0], page.Posts[0].ID)

	page, err = f.svc.GetPosts(ctx, 4)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Equal(t, 5, page.TotalItems)
}

func TestGetPosts_InvalidPage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetPosts(context.Background(), 0)
	assert.True(t, IsValidation(err))
}

func TestGetPosts_MissingCreator(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	f.store.Posts["orphan"] = models.Post{ID: "orphan", CreatorID: "gone", ImageURL: `images\x.png`, CreatedAt: now}

	page, err := f.svc.GetPosts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, models.CreatorSummary{ID: "gone"}, page.Posts[0].Creator)
	assert.Equal(t, "images/x.png", page.Posts[0].ImageURL)
}

func TestGetPost(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")
	p := f.post(t, uid, "one")

	got, err := f.svc.GetPost(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Title, got.Title)

	_, err = f.svc.GetPost(context.Background(), "missing")
	assert.True(t, IsNotFound(err))
}

func TestGetPost_StoreFailure(t *testing.T) {
	svc := NewService(&store.MockStoreFail{}, &recordingImages{}, &recordingPublisher{})
	_, err := svc.GetPost(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, KindUnclassified, KindOf(err))
}

func TestEditPost_ReplacesImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "Max")
	p := f.post(t, uid, "one")

	updated, err := f.svc.EditPost(ctx, p.ID, EditInput{
		Title: "new", Content: "text", NewImagePath: "images/new.png", ExistingImageURL: p.ImageURL,
	}, uid)
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Title)
	assert.Equal(t, "images/new.png", updated.ImageURL)
	assert.Equal(t, []string{"images/one.png"}, f.images.deleted)

	stored, err := f.store.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", stored.Title)
	assert.Equal(t, p.CreatedAt, stored.CreatedAt)
	assert.True(t, stored.UpdatedAt.After(p.UpdatedAt))

	events := f.pub.all()
	require.Len(t, events, 2)
	assert.Equal(t, models.ActionUpdate, events[1].Action)
	view, ok := events[1].Post.(models.PostWithCreator)
	require.True(t, ok)
	assert.Equal(t, "new", view.Title)
	assert.Equal(t, models.CreatorSummary{ID: uid, Name: "Max"}, view.Creator)
}

func TestEditPost_UpdateFailureKeepsOldImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "Max")
	p := f.post(t, uid, "one")
	f.store.FailUpdatePost = true

	_, err := f.svc.EditPost(ctx, p.ID, EditInput{Title: "t", Content: "c", NewImagePath: "images/two.png"}, uid)
	require.Error(t, err)
	assert.False(t, UploadKept(err))
	assert.Empty(t, f.images.deleted)

	stored, err := f.store.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "images/one.png", stored.ImageURL)
}

func TestEditPost_PublishFailureKeepsUpload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "Max")
	p := f.post(t, uid, "one")
	f.pub.err = errors.New("socket gone")

	_, err := f.svc.EditPost(ctx, p.ID, EditInput{Title: "t", Content: "c", NewImagePath: "images/two.png"}, uid)
	require.Error(t, err)
	assert.True(t, UploadKept(err))

	stored, err := f.store.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "images/two.png", stored.ImageURL)
	assert.Equal(t, []string{"images/one.png"}, f.images.deleted)
}

func TestEditPost_CreatorMissingStillPublishes(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")
	p := f.post(t, uid, "one")
	delete(f.store.Users, uid)

	_, err := f.svc.EditPost(context.Background(), p.ID, EditInput{Title: "t", Content: "c", ExistingImageURL: p.ImageURL}, uid)
	require.NoError(t, err)

	events := f.pub.all()
	require.Len(t, events, 2)
	view, ok := events[1].Post.(models.PostWithCreator)
	require.True(t, ok)
	assert.Equal(t, models.CreatorSummary{ID: uid}, view.Creator)
}

func TestEditPost_KeepsImage(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")
	p := f.post(t, uid, "one")

	updated, err := f.svc.EditPost(context.Background(), p.ID, EditInput{
		Title: "t", Content: "c", ExistingImageURL: `images\one.png`,
	}, uid)
	require.NoError(t, err)
	assert.Equal(t, "images/one.png", updated.ImageURL)
	assert.Empty(t, f.images.deleted)
}

func TestEditPost_ImageDeleteFailureIsTolerated(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")
	p := f.post(t, uid, "one")
	f.images.err = errors.New("disk gone")

	_, err := f.svc.EditPost(context.Background(), p.ID, EditInput{
		Title: "t", Content: "c", NewImagePath: "images/two.png",
	}, uid)
	assert.NoError(t, err)
}

func TestEditPost_NoImage(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")
	p := f.post(t, uid, "one")

	_, err := f.svc.EditPost(context.Background(), p.ID, EditInput{Title: "t", Content: "c"}, uid)
	require.True(t, IsValidation(err))
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "No file picked.", fe.Message)
}

func TestEditPost_NotOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "Max")
	other := f.user(t, "Eve")
	p := f.post(t, owner, "one")

	_, err := f.svc.EditPost(ctx, p.ID, EditInput{Title: "hacked", Content: "c", NewImagePath: "images/x.png"}, other)
	assert.True(t, IsAuthorization(err))

	stored, err := f.store.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, *p, *stored)
	assert.Empty(t, f.images.deleted)
	assert.Len(t, f.pub.all(), 1)
}

func TestEditPost_Missing(t *testing.T) {
	f := newFixture(t)
	uid := f.user(t, "Max")
	_, err := f.svc.EditPost(context.Background(), "nope", EditInput{Title: "t", Content: "c", ExistingImageURL: "images/a.png"}, uid)
	assert.True(t, IsNotFound(err))
}

func TestDeletePost_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "Max")
	keep := f.post(t, uid, "keep")
	p := f.post(t, uid, "gone")

	require.NoError(t, f.svc.DeletePost(ctx, p.ID, uid))

	_, err := f.store.GetPost(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []string{"images/gone.png"}, f.images.deleted)

	u, err := f.store.GetUser(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, []string{keep.ID}, u.PostIDs)

	events := f.pub.all()
	require.Len(t, events, 3)
	assert.Equal(t, models.ActionDelete, events[2].Action)
	assert.Equal(t, p.ID, events[2].Post)
}

func TestDeletePost_UnlinkFailureIsForwarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	uid := f.user(t, "Max")
	p := f.post(t, uid, "gone")
	f.store.FailRemoveUserPost = true

	err := f.svc.DeletePost(ctx, p.ID, uid)
	require.Error(t, err)
	assert.Equal(t, KindUnclassified, KindOf(err))

	assert.NotContains(t, f.store.Posts, p.ID)
	assert.Equal(t, []string{p.ID}, f.store.Users[uid].PostIDs)
	assert.Len(t, f.pub.all(), 1)

	forwarded := f.pub.relayed()
	require.Len(t, forwarded, 1)
	assert.Equal(t, models.ActionDelete, forwarded[0].Action)
	assert.Equal(t, p.ID, forwarded[0].PostID)
	assert.Equal(t, uid, forwarded[0].CreatorID)
}

func TestDeletePost_NotOwner(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "Max")
	other := f.user(t, "Eve")
	p := f.post(t, owner, "one")

	err := f.svc.DeletePost(context.Background(), p.ID, other)
	assert.True(t, IsAuthorization(err))
	assert.Contains(t, f.store.Posts, p.ID)
	assert.Empty(t, f.images.deleted)
}

func TestDeletePost_MissingID(t *testing.T) {
	f := newFixture(t)
	err := f.svc.DeletePost(context.Background(), " ", "u1")
	require.True(t, IsNotFound(err))
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "No post ID", fe.Message)

	err = f.svc.DeletePost(context.Background(), "missing", "u1")
	assert.True(t, IsNotFound(err))
}

type recordingRelay struct {
	records []models.EventRecord
}

func (r *recordingRelay) Relay(_ context.Context, rec models.EventRecord) error {
	r.records = append(r.records, rec)
	return nil
}

type discardTransport struct{}

func (discardTransport) Broadcast(string, any) error { return nil }

func TestKindStatusCodes(t *testing.T) {
	assert.Equal(t, 422, KindValidation.StatusCode())
	assert.Equal(t, 403, KindAuthorization.StatusCode())
	assert.Equal(t, 404, KindNotFound.StatusCode())
	assert.Equal(t, 500, KindUninitialized.StatusCode())
	assert.Equal(t, 500, KindOf(errors.New("x")).StatusCode())
}
