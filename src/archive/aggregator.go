package archive

import (
	"context"
	"errors"
	"time"

	"git.listhouse.net/lhn/lhn/src/db"
	"git.listhouse.net/lhn/lhn/src/models"
	"git.listhouse.net/lhn/lhn/src/oops"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const topicColumns = `topic_id, group_id, site_id, original_subject, first_post_id, last_post_id, last_post_date, num_posts`

/*
RecordPost inserts the post row and creates or updates the owning topic's
running summary, all in one transaction. Two concurrent posts to the same
topic serialize on the topic row lock; neither update is lost.

Expected failure modes, reported as typed errors with the transaction
rolled back:

  - the post id is already archived: DuplicatePostError
  - two first posts of a new topic race on insert: DuplicateTopicError
    (retryable; the topic exists on retry and the update path applies)
*/
func RecordPost(ctx context.Context, conn db.ConnOrTx, post *models.Post) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`
		INSERT INTO post (post_id, topic_id, group_id, site_id, user_id, in_reply_to, subject, date, body, htmlbody, header, has_attachments)
		VALUES           ($1,      $2,       $3,       $4,      $5,      $6,          $7,      $8,   $9,   $10,      $11,    $12)
		`,
		post.PostID,
		post.TopicID,
		post.GroupID,
		post.SiteID,
		post.UserID,
		post.InReplyTo,
		post.Subject,
		post.Date,
		post.Body,
		post.HTMLBody,
		post.Header,
		post.HasAttachments,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &DuplicatePostError{PostID: post.PostID}
		}
		return oops.New(err, "failed to insert post")
	}

	topic, err := db.QueryOne[models.Topic](ctx, tx,
		`
		SELECT `+topicColumns+`
		FROM topic
		WHERE topic_id = $1 AND group_id = $2 AND site_id = $3
		FOR UPDATE
		`,
		post.TopicID, post.GroupID, post.SiteID,
	)
	if err != nil {
		if !errors.Is(err, db.NotFound) {
			return oops.New(err, "failed to look up topic")
		}

		// First post of a new topic.
		_, err = tx.Exec(ctx,
			`
			INSERT INTO topic (topic_id, group_id, site_id, original_subject, first_post_id, last_post_id, last_post_date, num_posts)
			VALUES            ($1,       $2,       $3,      $4,               $5,            $6,           $7,             1)
			`,
			post.TopicID,
			post.GroupID,
			post.SiteID,
			post.Subject,
			post.PostID,
			post.PostID,
			post.Date,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return &DuplicateTopicError{TopicID: post.TopicID, GroupID: post.GroupID, SiteID: post.SiteID}
			}
			return oops.New(err, "failed to insert topic")
		}
	} else {
		lastPostID, lastPostDate := advanceLastPost(topic, post)
		_, err = tx.Exec(ctx,
			`
			UPDATE topic
			SET num_posts = $1, last_post_id = $2, last_post_date = $3
			WHERE topic_id = $4 AND group_id = $5 AND site_id = $6
			`,
			topic.NumPosts+1,
			lastPostID,
			lastPostDate,
			post.TopicID,
			post.GroupID,
			post.SiteID,
		)
		if err != nil {
			return oops.New(err, "failed to update topic")
		}
	}

	err = tx.Commit(ctx)
	if err != nil {
		return oops.New(err, "failed to commit post")
	}
	return nil
}

// The topic's last-post pointer is a high-water mark: a post whose date is
// earlier than the recorded last-post date belongs earlier in a thread
// whose latest activity is already known, and the pointer stays put. This
// tolerates mis-set client clocks; it also means last_post_date is not a
// guaranteed true maximum if dates are adversarially crafted.
func advanceLastPost(topic *models.Topic, post *models.Post) (lastPostID string, lastPostDate time.Time) {
	if post.Date.Before(topic.LastPostDate) {
		return topic.LastPostID, topic.LastPostDate
	}
	return post.PostID, post.Date
}

// RecordAttachments inserts the metadata rows for a post's archived
// attachments and flags the post, so readers can skip the lookup. The blob
// bytes must already be committed to the blob store: a crash here leaks an
// unreferenced blob but never a row pointing at missing bytes.
func RecordAttachments(ctx context.Context, conn db.ConnOrTx, post *models.Post, files []models.File) error {
	if len(files) == 0 {
		return nil
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	rows := make([][]interface{}, len(files))
	for i, f := range files {
		rows[i] = []interface{}{f.FileID, f.MimeType, f.FileName, f.FileSize, f.Date, f.PostID, f.TopicID}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"file"},
		[]string{"file_id", "mime_type", "file_name", "file_size", "date", "post_id", "topic_id"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return oops.New(err, "failed to insert attachment metadata")
	}

	_, err = tx.Exec(ctx,
		`
		UPDATE post
		SET has_attachments = TRUE
		WHERE post_id = $1
		`,
		post.PostID,
	)
	if err != nil {
		return oops.New(err, "failed to flag post attachments")
	}

	err = tx.Commit(ctx)
	if err != nil {
		return oops.New(err, "failed to commit attachment metadata")
	}
	return nil
}

/*
RemovePost deletes the post row, and the topic row too when this was the
topic's only post. Attachment metadata rows go with the post.

Known gap, kept deliberately: removing a non-last post from a multi-post
topic does not decrement num_posts or move the last-post pointer. Run
FixTopicPostPointers afterwards if the aggregates matter.
*/
func RemovePost(ctx context.Context, conn db.ConnOrTx, post *models.Post) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return oops.New(err, "failed to start transaction")
	}
	defer tx.Rollback(ctx)

	topic, err := db.QueryOne[models.Topic](ctx, tx,
		`
		SELECT `+topicColumns+`
		FROM topic
		WHERE topic_id = $1 AND group_id = $2 AND site_id = $3
		FOR UPDATE
		`,
		post.TopicID, post.GroupID, post.SiteID,
	)
	if err != nil && !errors.Is(err, db.NotFound) {
		return oops.New(err, "failed to look up topic")
	}

	if topic != nil && topic.NumPosts == 1 {
		_, err = tx.Exec(ctx,
			`
			DELETE FROM topic
			WHERE topic_id = $1 AND group_id = $2 AND site_id = $3
			`,
			post.TopicID, post.GroupID, post.SiteID,
		)
		if err != nil {
			return oops.New(err, "failed to delete topic")
		}
	}

	_, err = tx.Exec(ctx,
		`
		DELETE FROM file
		WHERE post_id = $1
		`,
		post.PostID,
	)
	if err != nil {
		return oops.New(err, "failed to delete attachment metadata")
	}

	_, err = tx.Exec(ctx,
		`
		DELETE FROM post
		WHERE post_id = $1
		`,
		post.PostID,
	)
	if err != nil {
		return oops.New(err, "failed to delete post")
	}

	err = tx.Commit(ctx)
	if err != nil {
		return oops.New(err, "failed to commit post removal")
	}
	return nil
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
