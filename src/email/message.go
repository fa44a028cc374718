package email

import (
	"strings"
	"time"
)

// One decomposed MIME part of an inbound message. Body parts carry no
// filename; inline resources referenced from the HTML body carry a
// content-id and typically no filename.
type Part struct {
	Filename    string
	ContentType string
	MainType    string
	SubType     string
	ContentID   string
	Charset     string
	Content     []byte
}

// An inbound mailing-list message, decomposed and ready for archiving.
// Constructed once per message by Parse and immutable from then on.
type Message struct {
	PostID  string
	TopicID string
	GroupID string
	SiteID  string

	SenderID  string
	ListTitle string

	Subject   string
	Date      time.Time
	InReplyTo string

	Body     string
	HTMLBody string
	Header   string

	Parts []Part
}

// NormalizeSubject reduces a subject line to its topic key form: reply and
// forward prefixes stripped, whitespace collapsed, case folded.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		lower := strings.ToLower(s)
		var stripped bool
		for _, prefix := range []string{"re:", "fw:", "fwd:"} {
			if strings.HasPrefix(lower, prefix) {
				s = strings.TrimSpace(s[len(prefix):])
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
