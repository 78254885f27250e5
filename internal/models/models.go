package models

import "time"

// User represents a registered identity addressed by an opaque credential.
type User struct {
	ID        int64
	Username  string
	Email     string
	Bio       string
	LastSeen  time.Time
	Followers []UserSummary
	Following []UserSummary
}

// Summary returns the compact representation used inside other aggregates.
func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username}
}

// UserSummary is the compact identity embedded in relationship listings.
type UserSummary struct {
	ID       int64
	Username string
}

// LoadHint selects which relationship collections are fetched with a user.
type LoadHint string

const (
	LoadNone      LoadHint = "none"
	LoadFollowers LoadHint = "followers"
	LoadFollowing LoadHint = "following"
	LoadAll       LoadHint = "all"
)

// WantsFollowers reports whether the hint requests the followers collection.
func (h LoadHint) WantsFollowers() bool {
	return h == LoadFollowers || h == LoadAll
}

// WantsFollowing reports whether the hint requests the following collection.
func (h LoadHint) WantsFollowing() bool {
	return h == LoadFollowing || h == LoadAll
}

// Tweet is a posted content item together with its attachments and likes.
type Tweet struct {
	ID        int64
	Body      string
	CreatedAt time.Time
	AuthorID  int64
	Author    UserSummary
	Media     []Media
	LikedBy   []UserSummary
}

// Attachments returns the direct links of the bound media in id order.
func (t Tweet) Attachments() []string {
	links := make([]string, 0, len(t.Media))
	for _, m := range t.Media {
		links = append(links, m.DirectURL)
	}
	return links
}

// Media is an uploaded object published on the remote store.
// TweetID is nil until a tweet claims the row.
type Media struct {
	ID         int64
	DirectURL  string
	RemotePath string
	TweetID    *int64
	CreatedAt  time.Time
}

// Bound reports whether a tweet has claimed the media row.
func (m Media) Bound() bool {
	return m.TweetID != nil
}
