package models

import "time"

// Metadata for one archived attachment. The blob store is the source of
// truth for the bytes; this row is the searchable metadata. Never updated;
// deleted only when the owning post is removed.
type File struct {
	FileID   string `db:"file_id"`
	MimeType string `db:"mime_type"`
	FileName string `db:"file_name"`
	FileSize int    `db:"file_size"`

	Date    time.Time `db:"date"`
	PostID  string    `db:"post_id"`
	TopicID string    `db:"topic_id"`
}
