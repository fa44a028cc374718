package archive

import (
	"context"
	"strings"
	"testing"
	"time"

	"git.listhouse.net/lhn/lhn/src/blobstore"
	"git.listhouse.net/lhn/lhn/src/email"
	"git.listhouse.net/lhn/lhn/src/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRecorder aggregates in maps the way the database does, so the full
// store path can run without a database.
type memRecorder struct {
	posts  map[string]*models.Post
	topics map[string]*models.Topic
	files  []models.File
}

func newMemRecorder() *memRecorder {
	return &memRecorder{
		posts:  make(map[string]*models.Post),
		topics: make(map[string]*models.Topic),
	}
}

func topicKey(topicID, groupID, siteID string) string {
	return topicID + "\x00" + groupID + "\x00" + siteID
}

func (r *memRecorder) RecordPost(ctx context.Context, post *models.Post) error {
	if _, ok := r.posts[post.PostID]; ok {
		return &DuplicatePostError{PostID: post.PostID}
	}
	stored := *post
	r.posts[post.PostID] = &stored

	key := topicKey(post.TopicID, post.GroupID, post.SiteID)
	topic, ok := r.topics[key]
	if !ok {
		r.topics[key] = &models.Topic{
			TopicID:         post.TopicID,
			GroupID:         post.GroupID,
			SiteID:          post.SiteID,
			OriginalSubject: post.Subject,
			FirstPostID:     post.PostID,
			LastPostID:      post.PostID,
			LastPostDate:    post.Date,
			NumPosts:        1,
		}
		return nil
	}
	topic.NumPosts += 1
	topic.LastPostID, topic.LastPostDate = advanceLastPost(topic, post)
	return nil
}

func (r *memRecorder) RecordAttachments(ctx context.Context, post *models.Post, files []models.File) error {
	if len(files) == 0 {
		return nil
	}
	r.files = append(r.files, files...)
	r.posts[post.PostID].HasAttachments = true
	return nil
}

func (r *memRecorder) PostSeen(ctx context.Context, postID string) (bool, error) {
	_, ok := r.posts[postID]
	return ok, nil
}

func (r *memRecorder) AttachmentSeen(ctx context.Context, fileID string) (bool, error) {
	for _, f := range r.files {
		if f.FileID == fileID {
			return true, nil
		}
	}
	return false, nil
}

var _ Recorder = &memRecorder{}

const rawMessage = "From: Ethel the Frog <ethel@example.com>\r\n" +
	"To: violence@lists.example.com\r\n" +
	"Subject: Violence\r\n" +
	"Date: Tue, 7 Sep 2021 10:00:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Tonight on Ethel the Frog we look at violence.\r\n" +
	"--outer\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Disposition: attachment; filename=\"gangland.txt\"\r\n" +
	"\r\n" +
	"British gangland by night.\r\n" +
	"--outer--\r\n"

func parseFixture(t *testing.T, raw string) *email.Message {
	t.Helper()
	msg, err := email.Parse([]byte(raw), email.Origin{
		GroupID:     "violence",
		SiteID:      "example",
		ListTitle:   "Violence",
		UseMailDate: true,
	})
	require.NoError(t, err)
	return msg
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	recorder := newMemRecorder()
	blobs := blobstore.NewMemStore()
	store := &PostStore{Recorder: recorder, Blobs: blobs}

	msg := parseFixture(t, rawMessage)
	postID, fileIDs, err := store.Store(ctx, msg)
	require.NoError(t, err)

	t.Run("post row", func(t *testing.T) {
		post := recorder.posts[postID]
		require.NotNil(t, post)
		assert.Equal(t, "Violence", post.Subject)
		assert.Equal(t, "ethel@example.com", post.UserID)
		assert.Contains(t, post.Body, "we look at violence")
		assert.True(t, post.HasAttachments)
		assert.Equal(t, time.Date(2021, 9, 7, 10, 0, 0, 0, time.UTC), post.Date.UTC())
	})

	t.Run("topic row", func(t *testing.T) {
		topic := recorder.topics[topicKey(msg.TopicID, "violence", "example")]
		require.NotNil(t, topic)
		assert.Equal(t, 1, topic.NumPosts)
		assert.Equal(t, postID, topic.FirstPostID)
		assert.Equal(t, postID, topic.LastPostID)
	})

	t.Run("attachment metadata", func(t *testing.T) {
		require.Len(t, fileIDs, 1)
		require.Len(t, recorder.files, 1)

		file := recorder.files[0]
		assert.Equal(t, fileIDs[0], file.FileID)
		assert.Equal(t, "gangland.txt", file.FileName)
		assert.Equal(t, "text/plain", file.MimeType)
		assert.Equal(t, postID, file.PostID)
		assert.Equal(t, msg.TopicID, file.TopicID)
		assert.Greater(t, file.FileSize, 0)
	})

	t.Run("blob", func(t *testing.T) {
		handles, err := blobs.List(ctx)
		require.NoError(t, err)
		require.Len(t, handles, 1)

		blob, err := blobs.Get(ctx, handles[0])
		require.NoError(t, err)
		assert.Equal(t, "British gangland by night.", strings.TrimRight(string(blob.Content), "\r\n"))
		assert.Equal(t, "gangland.txt", blob.Metadata.Title)
		assert.Contains(t, blob.Metadata.Tags, "attachment")
		assert.Equal(t, "ethel@example.com", blob.Metadata.Creator)
		assert.Equal(t, "Violence", blob.Metadata.Topic)
		assert.Equal(t, []string{"violence"}, blob.Metadata.GroupIDs)
		assert.Equal(t, 1, blobs.ReindexCount(handles[0]))
	})

	t.Run("duplicate delivery is rejected before uploading", func(t *testing.T) {
		again := parseFixture(t, rawMessage)
		assert.Equal(t, postID, again.PostID)

		_, _, err := store.Store(ctx, again)
		var dup *DuplicatePostError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, postID, dup.PostID)

		// The redelivered attachment must not reach the blob store; a
		// duplicate upload would carry full metadata and be invisible to
		// the orphan sweep.
		handles, err := blobs.List(ctx)
		require.NoError(t, err)
		assert.Len(t, handles, 1)
	})

	t.Run("reply lands in the same topic", func(t *testing.T) {
		reply := parseFixture(t, strings.Replace(rawMessage,
			"Subject: Violence", "Subject: Re: Violence", 1))

		assert.NotEqual(t, msg.PostID, reply.PostID)
		assert.Equal(t, msg.TopicID, reply.TopicID)
	})
}

func TestStoreBodyOnlyMessage(t *testing.T) {
	ctx := context.Background()
	recorder := newMemRecorder()
	blobs := blobstore.NewMemStore()
	store := &PostStore{Recorder: recorder, Blobs: blobs}

	raw := "From: ethel@example.com\r\n" +
		"Subject: No enclosures\r\n" +
		"Date: Tue, 7 Sep 2021 10:00:00 +0000\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Just words.\r\n"

	postID, fileIDs, err := store.Store(ctx, parseFixture(t, raw))
	require.NoError(t, err)
	assert.Empty(t, fileIDs)

	post := recorder.posts[postID]
	require.NotNil(t, post)
	assert.False(t, post.HasAttachments)

	handles, err := blobs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestStoreResubmittedAttachment(t *testing.T) {
	ctx := context.Background()
	recorder := newMemRecorder()
	blobs := blobstore.NewMemStore()
	store := &PostStore{Recorder: recorder, Blobs: blobs}

	_, firstFiles, err := store.Store(ctx, parseFixture(t, rawMessage))
	require.NoError(t, err)
	require.Len(t, firstFiles, 1)

	// Same attachment bytes in a new message: seen before, but archived
	// again under a fresh blob handle.
	raw := strings.Replace(rawMessage,
		"Tonight on Ethel the Frog we look at violence.",
		"Same clip, different night.", 1)
	_, secondFiles, err := store.Store(ctx, parseFixture(t, raw))
	require.NoError(t, err)
	require.Len(t, secondFiles, 1)
	assert.Equal(t, firstFiles[0], secondFiles[0])

	handles, err := blobs.List(ctx)
	require.NoError(t, err)
	assert.Len(t, handles, 2)
}
