package models

import "time"

// One archived email message within a topic. Created exactly once per
// inbound message and immutable thereafter, except for HasAttachments,
// which is flipped after attachment processing completes.
type Post struct {
	PostID  string `db:"post_id"`
	TopicID string `db:"topic_id"`
	GroupID string `db:"group_id"`
	SiteID  string `db:"site_id"`
	UserID  string `db:"user_id"`

	InReplyTo string    `db:"in_reply_to"`
	Subject   string    `db:"subject"`
	Date      time.Time `db:"date"`

	Body     string `db:"body"`
	HTMLBody string `db:"htmlbody"`
	Header   string `db:"header"`

	HasAttachments bool `db:"has_attachments"`
}
