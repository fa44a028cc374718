package archive

import (
	"context"
	"errors"

	"git.listhouse.net/lhn/lhn/src/db"
	"git.listhouse.net/lhn/lhn/src/models"
	"git.listhouse.net/lhn/lhn/src/oops"
)

const postColumns = `post_id, topic_id, group_id, site_id, user_id, in_reply_to, subject, date, body, htmlbody, header, has_attachments`
const fileColumns = `file_id, mime_type, file_name, file_size, date, post_id, topic_id`

type PostsQuery struct {
	TopicIDs []string // if empty, all topics
	GroupIDs []string // if empty, all groups
	SiteIDs  []string // if empty, all sites
	PostIDs  []string

	Limit, Offset  int // if empty, no pagination
	SortDescending bool
}

/*
Fetches posts according to the given query params, ordered by date. Provide
as much of the topic/group/site key as you have on hand.
*/
func FetchPosts(
	ctx context.Context,
	conn db.ConnOrTx,
	q PostsQuery,
) ([]*models.Post, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		SELECT ` + postColumns + `
		FROM post
		WHERE TRUE
		`,
	)
	if len(q.TopicIDs) > 0 {
		qb.Add(`AND topic_id = ANY ($?)`, q.TopicIDs)
	}
	if len(q.GroupIDs) > 0 {
		qb.Add(`AND group_id = ANY ($?)`, q.GroupIDs)
	}
	if len(q.SiteIDs) > 0 {
		qb.Add(`AND site_id = ANY ($?)`, q.SiteIDs)
	}
	if len(q.PostIDs) > 0 {
		qb.Add(`AND post_id = ANY ($?)`, q.PostIDs)
	}
	qb.Add(`ORDER BY date`)
	if q.SortDescending {
		qb.Add(`DESC`)
	}
	if q.Limit > 0 {
		qb.Add(`LIMIT $? OFFSET $?`, q.Limit, q.Offset)
	}

	posts, err := db.Query[models.Post](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return nil, oops.New(err, "failed to fetch posts")
	}
	return posts, nil
}

func CountPosts(
	ctx context.Context,
	conn db.ConnOrTx,
	q PostsQuery,
) (int, error) {
	var qb db.QueryBuilder
	qb.Add(
		`
		SELECT COUNT(*)
		FROM post
		WHERE TRUE
		`,
	)
	if len(q.TopicIDs) > 0 {
		qb.Add(`AND topic_id = ANY ($?)`, q.TopicIDs)
	}
	if len(q.GroupIDs) > 0 {
		qb.Add(`AND group_id = ANY ($?)`, q.GroupIDs)
	}
	if len(q.SiteIDs) > 0 {
		qb.Add(`AND site_id = ANY ($?)`, q.SiteIDs)
	}

	count, err := db.QueryOneScalar[int](ctx, conn, qb.String(), qb.Args()...)
	if err != nil {
		return 0, oops.New(err, "failed to count posts")
	}
	return count, nil
}

/*
Fetches a single topic by its full key.

Returns db.NotFound if no result is found.
*/
func FetchTopic(
	ctx context.Context,
	conn db.ConnOrTx,
	topicID, groupID, siteID string,
) (*models.Topic, error) {
	topic, err := db.QueryOne[models.Topic](ctx, conn,
		`
		SELECT `+topicColumns+`
		FROM topic
		WHERE topic_id = $1 AND group_id = $2 AND site_id = $3
		`,
		topicID, groupID, siteID,
	)
	if err != nil {
		if errors.Is(err, db.NotFound) {
			return nil, db.NotFound
		}
		return nil, oops.New(err, "failed to fetch topic")
	}
	return topic, nil
}

// Fetches the attachment metadata rows for a post, in insertion order.
func FetchPostFiles(
	ctx context.Context,
	conn db.ConnOrTx,
	postID string,
) ([]*models.File, error) {
	files, err := db.Query[models.File](ctx, conn,
		`
		SELECT `+fileColumns+`
		FROM file
		WHERE post_id = $1
		`,
		postID,
	)
	if err != nil {
		return nil, oops.New(err, "failed to fetch attachment metadata")
	}
	return files, nil
}

var errTopicEmpty = errors.New("topic contained no posts")

/*
Recomputes a topic's first/last post pointers, last-post date, and post
count from its post rows. This is the repair tool for the aggregate gap
RemovePost leaves behind; it is never called implicitly.

Returns errTopicEmpty if the topic has no posts left. You should probably
delete the topic row in that case.
*/
func FixTopicPostPointers(
	ctx context.Context,
	conn db.ConnOrTx,
	topicID, groupID, siteID string,
) error {
	posts, err := db.Query[models.Post](ctx, conn,
		`
		SELECT `+postColumns+`
		FROM post
		WHERE topic_id = $1 AND group_id = $2 AND site_id = $3
		`,
		topicID, groupID, siteID,
	)
	if err != nil {
		return oops.New(err, "failed to fetch posts when fixing up topic")
	}

	var firstPost, lastPost *models.Post
	for _, post := range posts {
		if firstPost == nil || post.Date.Before(firstPost.Date) {
			firstPost = post
		}
		if lastPost == nil || post.Date.After(lastPost.Date) {
			lastPost = post
		}
	}

	if firstPost == nil || lastPost == nil {
		return errTopicEmpty
	}

	_, err = conn.Exec(ctx,
		`
		UPDATE topic
		SET first_post_id = $1, last_post_id = $2, last_post_date = $3, num_posts = $4
		WHERE topic_id = $5 AND group_id = $6 AND site_id = $7
		`,
		firstPost.PostID,
		lastPost.PostID,
		lastPost.Date,
		len(posts),
		topicID, groupID, siteID,
	)
	if err != nil {
		return oops.New(err, "failed to update topic post pointers")
	}

	return nil
}
