package archive

import (
	"context"

	"git.listhouse.net/lhn/lhn/src/blobstore"
	"git.listhouse.net/lhn/lhn/src/db"
	"git.listhouse.net/lhn/lhn/src/email"
	"git.listhouse.net/lhn/lhn/src/logging"
	"git.listhouse.net/lhn/lhn/src/models"
	"git.listhouse.net/lhn/lhn/src/oops"
)

// Recorder is the relational side of archiving a post: the post row, the
// topic aggregates, and the attachment metadata rows.
type Recorder interface {
	RecordPost(ctx context.Context, post *models.Post) error
	RecordAttachments(ctx context.Context, post *models.Post, files []models.File) error
	// PostSeen reports whether this post id is already archived.
	PostSeen(ctx context.Context, postID string) (bool, error)
	// AttachmentSeen reports whether content with this file id was archived
	// before, in any post.
	AttachmentSeen(ctx context.Context, fileID string) (bool, error)
}

// PostgresRecorder runs the aggregation against the archive database.
type PostgresRecorder struct {
	Conn db.ConnOrTx
}

var _ Recorder = &PostgresRecorder{}

func (r *PostgresRecorder) RecordPost(ctx context.Context, post *models.Post) error {
	return RecordPost(ctx, r.Conn, post)
}

func (r *PostgresRecorder) RecordAttachments(ctx context.Context, post *models.Post, files []models.File) error {
	return RecordAttachments(ctx, r.Conn, post, files)
}

func (r *PostgresRecorder) PostSeen(ctx context.Context, postID string) (bool, error) {
	count, err := db.QueryOneScalar[int](ctx, r.Conn,
		`
		SELECT COUNT(*)
		FROM post
		WHERE post_id = $1
		`,
		postID,
	)
	if err != nil {
		return false, oops.New(err, "failed to look up post by id")
	}
	return count > 0, nil
}

func (r *PostgresRecorder) AttachmentSeen(ctx context.Context, fileID string) (bool, error) {
	count, err := db.QueryOneScalar[int](ctx, r.Conn,
		`
		SELECT COUNT(*)
		FROM file
		WHERE file_id = $1
		`,
		fileID,
	)
	if err != nil {
		return false, oops.New(err, "failed to look up attachment by file id")
	}
	return count > 0, nil
}

// PostStore archives one inbound message: the post row, the attachment
// blobs, and the attachment metadata rows, in that order.
type PostStore struct {
	Recorder Recorder
	Blobs    blobstore.Store
}

func NewPostStore(conn db.ConnOrTx, blobs blobstore.Store) *PostStore {
	return &PostStore{
		Recorder: &PostgresRecorder{Conn: conn},
		Blobs:    blobs,
	}
}

/*
Store archives the message and returns the post id plus the file ids of the
archived attachments, in part order.

Attachment bytes are committed to the blob store before the post's
relational transaction runs; a failure in between can leak an unreferenced
blob (picked up by the orphan sweep) but never leaves metadata pointing at
missing bytes. Metadata rows are written from what the blob store reports
back, not from the classifier's view: the blob store is authoritative for
what was actually persisted.
*/
func (s *PostStore) Store(ctx context.Context, msg *email.Message) (string, []string, error) {
	log := logging.ExtractLogger(ctx)
	log.Info().Str("post_id", msg.PostID).Msg("storing post")

	// Redelivery check before any blob is uploaded. RecordPost would reject
	// the duplicate anyway, but by then the attachment bytes would already
	// be in the blob store, with metadata, where no sweep can tell them
	// apart from the originals. A concurrent redelivery can still slip past
	// this check and hit the primary key instead.
	seen, err := s.Recorder.PostSeen(ctx, msg.PostID)
	if err != nil {
		return "", nil, err
	}
	if seen {
		return "", nil, &DuplicatePostError{PostID: msg.PostID}
	}

	decisions := Classify(ctx, msg)

	archiver := &Archiver{Blobs: s.Blobs}

	type archived struct {
		handle string
		fileID string
	}
	var blobs []archived
	for _, d := range decisions {
		if d.Kind != DecisionStore {
			continue
		}

		seen, err := s.Recorder.AttachmentSeen(ctx, d.Identity.ID)
		if err != nil {
			return "", nil, err
		}
		if seen {
			// Byte-identical resubmission. Detected but still archived
			// again; nothing references blobs by content id yet.
			log.Info().
				Str("file_id", d.Identity.ID).
				Str("filename", d.Filename).
				Msg("identical content was archived before; archiving again")
		}

		handle, err := archiver.Archive(ctx, ArchiveInput{
			Content:     d.Part.Content,
			Filename:    d.Filename,
			ContentType: d.Part.ContentType,
			TopicTitle:  msg.Subject,
			GroupID:     msg.GroupID,
			Creator:     msg.SenderID,
		})
		if err != nil {
			return "", nil, err
		}
		blobs = append(blobs, archived{handle: handle, fileID: d.Identity.ID})
	}

	post := &models.Post{
		PostID:    msg.PostID,
		TopicID:   msg.TopicID,
		GroupID:   msg.GroupID,
		SiteID:    msg.SiteID,
		UserID:    msg.SenderID,
		InReplyTo: msg.InReplyTo,
		Subject:   msg.Subject,
		Date:      msg.Date,
		Body:      msg.Body,
		HTMLBody:  msg.HTMLBody,
		Header:    msg.Header,
	}
	if err := s.Recorder.RecordPost(ctx, post); err != nil {
		return "", nil, err
	}

	var files []models.File
	var fileIDs []string
	for _, b := range blobs {
		blob, err := s.Blobs.Get(ctx, b.handle)
		if err != nil {
			return "", nil, oops.New(err, "failed to read back archived attachment")
		}
		files = append(files, models.File{
			FileID:   b.fileID,
			MimeType: blob.Metadata.ContentType,
			FileName: blob.Metadata.Title,
			FileSize: blob.Size,
			Date:     post.Date,
			PostID:   post.PostID,
			TopicID:  post.TopicID,
		})
		fileIDs = append(fileIDs, b.fileID)
	}

	if err := s.Recorder.RecordAttachments(ctx, post, files); err != nil {
		return "", nil, err
	}

	return post.PostID, fileIDs, nil
}
