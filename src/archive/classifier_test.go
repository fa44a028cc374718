package archive

import (
	"context"
	"testing"

	"git.listhouse.net/lhn/lhn/src/email"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainBody(content string) email.Part {
	return email.Part{
		ContentType: "text/plain",
		MainType:    "text",
		SubType:     "plain",
		Content:     []byte(content),
	}
}

func htmlBody(content string) email.Part {
	return email.Part{
		ContentType: "text/html",
		MainType:    "text",
		SubType:     "html",
		Content:     []byte(content),
	}
}

func namedAttachment(filename, contentType string, content []byte) email.Part {
	return email.Part{
		Filename:    filename,
		ContentType: contentType,
		MainType:    "application",
		SubType:     "octet-stream",
		Content:     content,
	}
}

func messageWithParts(parts ...email.Part) *email.Message {
	return &email.Message{
		PostID:    "post-1",
		TopicID:   "topic-1",
		GroupID:   "violence",
		SiteID:    "example",
		SenderID:  "ethel@example.com",
		ListTitle: "Violence on British Television",
		Subject:   "Violence",
		Parts:     parts,
	}
}

func storeDecisions(decisions []Decision) []Decision {
	var stored []Decision
	for _, d := range decisions {
		if d.Kind == DecisionStore {
			stored = append(stored, d)
		}
	}
	return stored
}

func TestClassifyPlainBodyOnly(t *testing.T) {
	decisions := Classify(context.Background(), messageWithParts(
		plainBody("Tonight on Ethel the Frog we look at violence."),
	))

	require.Len(t, decisions, 1)
	assert.Equal(t, DecisionSkipPlainBody, decisions[0].Kind)
	assert.Empty(t, storeDecisions(decisions))
}

func TestClassifyAlternativeBodies(t *testing.T) {
	decisions := Classify(context.Background(), messageWithParts(
		plainBody("violence"),
		htmlBody("<p>violence</p>"),
	))

	require.Len(t, decisions, 2)
	assert.Equal(t, DecisionSkipPlainBody, decisions[0].Kind)
	assert.Equal(t, DecisionArchiveHTMLBody, decisions[1].Kind)
	assert.Empty(t, storeDecisions(decisions))
}

func TestClassifyNamedAttachments(t *testing.T) {
	decisions := Classify(context.Background(), messageWithParts(
		plainBody("violence"),
		htmlBody("<p>violence</p>"),
		namedAttachment("gangland.txt", "text/plain", []byte("the Piranha brothers")),
		namedAttachment("dinsdale.png", "image/png", []byte{0x89, 0x50, 0x4e, 0x47}),
	))

	stored := storeDecisions(decisions)
	require.Len(t, stored, 2)
	assert.Equal(t, "gangland.txt", stored[0].Filename)
	assert.Equal(t, "dinsdale.png", stored[1].Filename)
	assert.NotEmpty(t, stored[0].Identity.ID)
	assert.Equal(t, len("the Piranha brothers"), stored[0].Identity.Length)
}

func TestClassifyInlineContentID(t *testing.T) {
	t.Run("content-id without filename is dropped", func(t *testing.T) {
		part := email.Part{
			ContentType: "image/png",
			MainType:    "image",
			SubType:     "png",
			ContentID:   "<img1@example.com>",
			Content:     []byte{0x89, 0x50},
		}
		decisions := Classify(context.Background(), messageWithParts(part))
		require.Len(t, decisions, 1)
		assert.Equal(t, DecisionSkipInline, decisions[0].Kind)
	})

	t.Run("content-id with filename is still stored", func(t *testing.T) {
		part := namedAttachment("spiny.png", "image/png", []byte{0x89, 0x50})
		part.ContentID = "<img1@example.com>"
		decisions := Classify(context.Background(), messageWithParts(part))
		require.Len(t, decisions, 1)
		assert.Equal(t, DecisionStore, decisions[0].Kind)
	})
}

func TestClassifyEmptyAttachment(t *testing.T) {
	decisions := Classify(context.Background(), messageWithParts(
		namedAttachment("empty.bin", "application/octet-stream", nil),
	))

	require.Len(t, decisions, 1)
	assert.Equal(t, DecisionSkipEmpty, decisions[0].Kind)
	assert.Empty(t, storeDecisions(decisions))
}

func TestClassifyStripsPaths(t *testing.T) {
	decisions := Classify(context.Background(), messageWithParts(
		namedAttachment("../../etc/passwd", "text/plain", []byte("root:x:0:0")),
		namedAttachment(`C:\Users\doug\spanish.doc`, "application/msword", []byte("inquisition")),
	))

	stored := storeDecisions(decisions)
	require.Len(t, stored, 2)
	assert.Equal(t, "passwd", stored[0].Filename)
	assert.Equal(t, "spanish.doc", stored[1].Filename)
}

func TestStripPath(t *testing.T) {
	assert.Equal(t, "a.txt", stripPath("a.txt"))
	assert.Equal(t, "a.txt", stripPath("dir/a.txt"))
	assert.Equal(t, "a.txt", stripPath(`dir\a.txt`))
	assert.Equal(t, "", stripPath("dir/"))
}
