// Package feed implements the post mutation workflow: create, edit and
// delete with ownership checks, image lifecycle and live broadcast.
package feed

import (
	"context"
	"errors"
	"strings"
	"time"

	"example.com/livefeed/internal/logger"
	"example.com/livefeed/internal/models"
	"example.com/livefeed/internal/notify"
	"example.com/livefeed/internal/store"
	"github.com/google/uuid"
)

var logg = logger.New()

// PageSize is the fixed number of posts per feed page.
const PageSize = 2

// ImageStore removes image files that posts no longer reference.
type ImageStore interface {
	Delete(path string) error
}

// Publisher broadcasts mutation events. Forward hands an event to the
// durable relay only; it is used for half-applied mutations that clients
// must not see but the reconciler must.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
	Forward(ctx context.Context, ev models.Event)
}

// CreateInput is a new post. ImagePath is empty when no acceptable image was
// uploaded.
type CreateInput struct {
	Title     string
	Content   string
	ImagePath string
}

// EditInput replaces a post. NewImagePath is a fresh upload; ExistingImageURL
// is the reference the client kept. The upload wins when both are set.
type EditInput struct {
	Title            string
	Content          string
	NewImagePath     string
	ExistingImageURL string
}

// Page is one page of the feed.
type Page struct {
	Posts      []models.PostWithCreator
	TotalItems int
}

// Service orchestrates the post repository, image store and publisher.
type Service struct {
	store  store.StoreInterface
	images ImageStore
	pub    Publisher
	now    func() time.Time
}

// NewService wires the workflow.
func NewService(st store.StoreInterface, images ImageStore, pub Publisher) *Service {
	return &Service{store: st, images: images, pub: pub, now: time.Now}
}

// CreatePost persists a post owned by callerID, appends it to the owner's
// post list and broadcasts it. The two writes are not atomic: if the second
// fails the post stays without an owner-list entry and the event is
// forwarded for reconciliation. Errors after the post write carry Stored.
func (s *Service) CreatePost(ctx context.Context, in CreateInput, callerID string) (*models.Post, models.CreatorSummary, error) {
	var none models.CreatorSummary

	text := newPostInput(in.Title, in.Content)
	if err := text.validate(); err != nil {
		return nil, none, err
	}
	if strings.TrimSpace(in.ImagePath) == "" {
		return nil, none, validationError("An image is required.")
	}

	callerID = strings.TrimSpace(callerID)
	user, err := s.store.GetUser(ctx, callerID)
	if err != nil {
		return nil, none, s.storeError(err, "No user found", "Failed to load user")
	}

	now := s.now().UTC()
	post := models.Post{
		ID:        uuid.NewString(),
		Title:     text.Title,
		Content:   text.Content,
		ImageURL:  in.ImagePath,
		CreatorID: user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.AddPost(ctx, post); err != nil {
		return nil, none, unclassified("Failed to save post", err)
	}
	creator := models.CreatorSummary{ID: user.ID, Name: user.Name}
	ev := models.Event{
		Action:    models.ActionCreate,
		Post:      models.PostWithCreator{Post: normalized(post), Creator: creator},
		PostID:    post.ID,
		CreatorID: user.ID,
	}
	if err := s.store.AddUserPost(ctx, user.ID, post.ID); err != nil {
		logg.Error("feed", "Post saved without owner list entry", err,
			logger.F("post_id", post.ID), logger.F("user_id", user.ID))
		s.pub.Forward(ctx, ev)
		return nil, none, markStored(unclassified("Failed to link post to user", err))
	}

	if err := s.publish(ctx, ev); err != nil {
		return nil, none, markStored(err)
	}

	logg.Info("feed", "Post created", logger.F("post_id", post.ID), logger.F("user_id", user.ID))
	return &post, creator, nil
}

// GetPost returns the post with forward-slash image URL.
func (s *Service) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, notFoundError("No post found")
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, s.storeError(err, "No post found", "Failed to load post")
	}
	p := normalized(*post)
	return &p, nil
}

// GetPosts returns page (1-based) of the feed, newest first, with creator
// summaries. TotalItems counts the whole collection.
func (s *Service) GetPosts(ctx context.Context, page int) (*Page, error) {
	if page < 1 {
		return nil, validationError("Invalid page.", FieldError{Field: "page", Message: "must be a positive integer"})
	}

	total, err := s.store.CountPosts(ctx)
	if err != nil {
		return nil, unclassified("Failed to count posts", err)
	}
	posts, err := s.store.ListPosts(ctx, (page-1)*PageSize, PageSize)
	if err != nil {
		return nil, unclassified("Failed to list posts", err)
	}

	names := make(map[string]string)
	out := make([]models.PostWithCreator, 0, len(posts))
	for _, p := range posts {
		name, ok := names[p.CreatorID]
		if !ok {
			u, err := s.store.GetUser(ctx, p.CreatorID)
			switch {
			case err == nil:
				name = u.Name
			case errors.Is(err, store.ErrNotFound):
			default:
				return nil, unclassified("Failed to load post creator", err)
			}
			names[p.CreatorID] = name
		}
		out = append(out, models.PostWithCreator{
			Post:    normalized(p),
			Creator: models.CreatorSummary{ID: p.CreatorID, Name: name},
		})
	}

	return &Page{Posts: out, TotalItems: total}, nil
}

// EditPost replaces title, content and image of a post owned by callerID.
// A replaced image file is removed best-effort once the update is stored.
func (s *Service) EditPost(ctx context.Context, postID string, in EditInput, callerID string) (*models.Post, error) {
	imageURL := strings.TrimSpace(in.NewImagePath)
	if imageURL == "" {
		imageURL = strings.TrimSpace(in.ExistingImageURL)
	}
	if imageURL == "" {
		return nil, validationError("No file picked.")
	}

	text := newPostInput(in.Title, in.Content)
	if err := text.validate(); err != nil {
		return nil, err
	}

	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, notFoundError("No post found")
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return nil, s.storeError(err, "No post found", "Failed to load post")
	}
	if !IsOwner(post, callerID) {
		logg.Info("feed", "Rejected edit by non-owner", logger.F("post_id", postID))
		return nil, authorizationError()
	}

	oldImage := post.ImageURL
	post.Title = text.Title
	post.Content = text.Content
	post.ImageURL = imageURL
	post.UpdatedAt = s.now().UTC()
	if err := s.store.UpdatePost(ctx, *post); err != nil {
		return nil, s.storeError(err, "No post found", "Failed to update post")
	}
	if normalizeURL(imageURL) != normalizeURL(oldImage) {
		s.clearImage(post.ID, oldImage)
	}

	updated := normalized(*post)
	if err := s.publish(ctx, models.Event{
		Action:    models.ActionUpdate,
		Post:      models.PostWithCreator{Post: updated, Creator: s.creator(ctx, post.CreatorID)},
		PostID:    post.ID,
		CreatorID: post.CreatorID,
	}); err != nil {
		return nil, markStored(err)
	}

	logg.Info("feed", "Post updated", logger.F("post_id", post.ID))
	return &updated, nil
}

// DeletePost removes a post owned by callerID, its image and its entry in
// the owner's post list, in that order. Nothing is rolled back if a later
// step fails; a failed unlink is forwarded for reconciliation.
func (s *Service) DeletePost(ctx context.Context, postID, callerID string) error {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return notFoundError("No post ID")
	}
	post, err := s.store.GetPost(ctx, postID)
	if err != nil {
		return s.storeError(err, "No post found", "Failed to load post")
	}
	if !IsOwner(post, callerID) {
		logg.Info("feed", "Rejected delete by non-owner", logger.F("post_id", postID))
		return authorizationError()
	}

	s.clearImage(post.ID, post.ImageURL)

	if err := s.store.DeletePost(ctx, postID); err != nil {
		return s.storeError(err, "No post found", "Failed to delete post")
	}
	ev := models.Event{
		Action:    models.ActionDelete,
		Post:      postID,
		PostID:    postID,
		CreatorID: post.CreatorID,
	}
	if err := s.store.RemoveUserPost(ctx, post.CreatorID, postID); err != nil {
		logg.Error("feed", "Post deleted but still listed on owner", err,
			logger.F("post_id", postID), logger.F("user_id", post.CreatorID))
		s.pub.Forward(ctx, ev)
		return unclassified("Failed to unlink post from user", err)
	}

	if err := s.publish(ctx, ev); err != nil {
		return err
	}

	logg.Info("feed", "Post deleted", logger.F("post_id", postID))
	return nil
}

func (s *Service) publish(ctx context.Context, ev models.Event) error {
	if err := s.pub.Publish(ctx, ev); err != nil {
		if errors.Is(err, notify.ErrUninitialized) {
			return &Error{Kind: KindUninitialized, Message: "Notifier not initialized", Err: err}
		}
		return unclassified("Failed to broadcast event", err)
	}
	return nil
}

// creator resolves the summary attached to update events. The post is already
// stored, so a failed lookup degrades to an id-only summary.
func (s *Service) creator(ctx context.Context, userID string) models.CreatorSummary {
	summary := models.CreatorSummary{ID: userID}
	u, err := s.store.GetUser(ctx, userID)
	switch {
	case err == nil:
		summary.Name = u.Name
	case !errors.Is(err, store.ErrNotFound):
		logg.Warn("feed", "Failed to load post creator", err, logger.F("user_id", userID))
	}
	return summary
}

// clearImage deletes an image file; failures are logged only.
func (s *Service) clearImage(postID, path string) {
	if path == "" {
		return
	}
	if err := s.images.Delete(path); err != nil {
		logg.Warn("feed", "Failed to delete image", err, logger.F("post_id", postID), logger.F("path", path))
	}
}

func (s *Service) storeError(err error, notFoundMsg, failMsg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError(notFoundMsg)
	}
	return unclassified(failMsg, err)
}

func normalizeURL(u string) string {
	return strings.ReplaceAll(u, `\`, "/")
}

func normalized(p models.Post) models.Post {
	p.ImageURL = normalizeURL(p.ImageURL)
	return p
}
