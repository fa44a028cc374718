package models

import "time"

// A topic is a thread: the aggregate of all posts sharing a
// (topic_id, group_id, site_id) key. NumPosts equals the count of post rows
// with this key. LastPostDate is a high-water mark across ingestion order:
// a backdated post increments NumPosts but never regresses the last-post
// pointer.
type Topic struct {
	TopicID string `db:"topic_id"`
	GroupID string `db:"group_id"`
	SiteID  string `db:"site_id"`

	OriginalSubject string `db:"original_subject"`

	FirstPostID  string    `db:"first_post_id"`
	LastPostID   string    `db:"last_post_id"`
	LastPostDate time.Time `db:"last_post_date"`
	NumPosts     int       `db:"num_posts"`
}
