package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"git.listhouse.net/lhn/lhn/src/db"
	"git.listhouse.net/lhn/lhn/src/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceLastPost(t *testing.T) {
	now := time.Now().UTC()
	topic := &models.Topic{
		LastPostID:   "post-old",
		LastPostDate: now,
	}

	t.Run("later post advances the pointer", func(t *testing.T) {
		post := &models.Post{PostID: "post-new", Date: now.Add(time.Hour)}
		id, date := advanceLastPost(topic, post)
		assert.Equal(t, "post-new", id)
		assert.Equal(t, post.Date, date)
	})

	t.Run("backdated post is retained but not promoted", func(t *testing.T) {
		post := &models.Post{PostID: "post-late", Date: now.Add(-time.Hour)}
		id, date := advanceLastPost(topic, post)
		assert.Equal(t, "post-old", id)
		assert.Equal(t, now, date)
	})

	t.Run("equal date advances the pointer", func(t *testing.T) {
		post := &models.Post{PostID: "post-same", Date: now}
		id, _ := advanceLastPost(topic, post)
		assert.Equal(t, "post-same", id)
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("not a pg error")))
}

func TestDuplicateErrors(t *testing.T) {
	var postErr error = &DuplicatePostError{PostID: "post-1"}
	assert.Contains(t, postErr.Error(), "post-1")

	var asPost *DuplicatePostError
	require.True(t, errors.As(postErr, &asPost))

	var topicErr error = &DuplicateTopicError{TopicID: "topic-1", GroupID: "g", SiteID: "s"}
	assert.Contains(t, topicErr.Error(), "topic-1")
}

// The tests below run the real SQL against a migrated database. Set
// LISTHOUSE_TEST_DSN (e.g. "user=lhn dbname=lhn_test host=localhost") to
// enable them.
func testConn(t *testing.T) db.ConnOrTx {
	t.Helper()
	dsn := os.Getenv("LISTHOUSE_TEST_DSN")
	if dsn == "" {
		t.Skip("set LISTHOUSE_TEST_DSN to run database tests")
	}
	conn, err := pgx.Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close(context.Background())
	})
	return conn
}

func testPost(topicID string) *models.Post {
	return &models.Post{
		PostID:  uuid.New().String(),
		TopicID: topicID,
		GroupID: "violence",
		SiteID:  "example",
		UserID:  "ethel@example.com",
		Subject: "Violence",
		Date:    time.Now().UTC(),
		Body:    "Tonight on Ethel the Frog we look at violence.",
	}
}

func TestRecordPostDatabase(t *testing.T) {
	conn := testConn(t)
	ctx := context.Background()
	topicID := uuid.New().String()

	first := testPost(topicID)
	require.NoError(t, RecordPost(ctx, conn, first))
	t.Cleanup(func() {
		_ = RemovePost(ctx, conn, first)
		// Earlier subtests leave the topic's aggregates stale, so the
		// single-post delete path may not fire; drop the row directly.
		_, _ = conn.Exec(ctx,
			`DELETE FROM topic WHERE topic_id = $1 AND group_id = $2 AND site_id = $3`,
			topicID, first.GroupID, first.SiteID,
		)
	})

	t.Run("first post seeds the topic", func(t *testing.T) {
		topic, err := FetchTopic(ctx, conn, topicID, first.GroupID, first.SiteID)
		require.NoError(t, err)
		assert.Equal(t, 1, topic.NumPosts)
		assert.Equal(t, first.PostID, topic.FirstPostID)
		assert.Equal(t, first.PostID, topic.LastPostID)
		assert.Equal(t, first.Subject, topic.OriginalSubject)
	})

	t.Run("duplicate post id is rejected", func(t *testing.T) {
		err := RecordPost(ctx, conn, first)
		var dup *DuplicatePostError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, first.PostID, dup.PostID)

		count, err := CountPosts(ctx, conn, PostsQuery{PostIDs: []string{first.PostID}})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("later post advances the topic", func(t *testing.T) {
		second := testPost(topicID)
		second.Date = first.Date.Add(time.Hour)
		require.NoError(t, RecordPost(ctx, conn, second))
		t.Cleanup(func() { _ = RemovePost(ctx, conn, second) })

		topic, err := FetchTopic(ctx, conn, topicID, first.GroupID, first.SiteID)
		require.NoError(t, err)
		assert.Equal(t, 2, topic.NumPosts)
		assert.Equal(t, second.PostID, topic.LastPostID)
		assert.Equal(t, first.PostID, topic.FirstPostID)
	})

	t.Run("backdated post counts but does not advance", func(t *testing.T) {
		backdated := testPost(topicID)
		backdated.Date = first.Date.Add(-time.Hour)
		require.NoError(t, RecordPost(ctx, conn, backdated))
		t.Cleanup(func() { _ = RemovePost(ctx, conn, backdated) })

		before, err := FetchTopic(ctx, conn, topicID, first.GroupID, first.SiteID)
		require.NoError(t, err)

		assert.NotEqual(t, backdated.PostID, before.LastPostID)
		assert.True(t, before.LastPostDate.After(backdated.Date))
	})
}

func TestRemovePostDatabase(t *testing.T) {
	conn := testConn(t)
	ctx := context.Background()
	topicID := uuid.New().String()

	only := testPost(topicID)
	require.NoError(t, RecordPost(ctx, conn, only))
	require.NoError(t, RemovePost(ctx, conn, only))

	_, err := FetchTopic(ctx, conn, topicID, only.GroupID, only.SiteID)
	assert.ErrorIs(t, err, db.NotFound)

	t.Run("non-last removal leaves stale aggregates", func(t *testing.T) {
		stale := uuid.New().String()
		a := testPost(stale)
		b := testPost(stale)
		b.Date = a.Date.Add(time.Hour)
		require.NoError(t, RecordPost(ctx, conn, a))
		require.NoError(t, RecordPost(ctx, conn, b))
		t.Cleanup(func() {
			_ = RemovePost(ctx, conn, b)
		})

		require.NoError(t, RemovePost(ctx, conn, a))

		// Known gap: the topic still claims two posts.
		topic, err := FetchTopic(ctx, conn, stale, a.GroupID, a.SiteID)
		require.NoError(t, err)
		assert.Equal(t, 2, topic.NumPosts)

		// The repair tool reconciles it.
		require.NoError(t, FixTopicPostPointers(ctx, conn, stale, a.GroupID, a.SiteID))
		topic, err = FetchTopic(ctx, conn, stale, a.GroupID, a.SiteID)
		require.NoError(t, err)
		assert.Equal(t, 1, topic.NumPosts)
		assert.Equal(t, b.PostID, topic.FirstPostID)
		assert.Equal(t, b.PostID, topic.LastPostID)
	})
}
