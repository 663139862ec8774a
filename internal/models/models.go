package models

import "time"

// Event actions carried on the "posts" channel.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

type User struct {
	ID      string   `json:"id" bson:"_id"`
	Name    string   `json:"name" bson:"name"`
	PostIDs []string `json:"postIds" bson:"posts"`
}

// HasPost reports whether postID is in the user's post list.
func (u *User) HasPost(postID string) bool {
	for _, id := range u.PostIDs {
		if id == postID {
			return true
		}
	}
	return false
}

type Post struct {
	ID        string    `json:"id" bson:"_id"`
	Title     string    `json:"title" bson:"title"`
	Content   string    `json:"content" bson:"content"`
	ImageURL  string    `json:"imageUrl" bson:"imageUrl"`
	CreatorID string    `json:"creatorId" bson:"creator"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// CreatorSummary is the public view of a post owner.
type CreatorSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PostWithCreator is a post with its owner summary inlined.
type PostWithCreator struct {
	Post
	Creator CreatorSummary `json:"creator"`
}

// Event is the payload broadcast to connected clients. Post holds a
// PostWithCreator for create and update, and the bare post id for delete.
type Event struct {
	Action string `json:"action"`
	Post   any    `json:"post"`

	PostID    string `json:"-"`
	CreatorID string `json:"-"`
}

// EventRecord is the relay form of an Event.
type EventRecord struct {
	Action     string    `json:"action"`
	PostID     string    `json:"postId"`
	CreatorID  string    `json:"creatorId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Record converts e into its relay form.
func (e Event) Record(at time.Time) EventRecord {
	return EventRecord{
		Action:     e.Action,
		PostID:     e.PostID,
		CreatorID:  e.CreatorID,
		OccurredAt: at,
	}
}
