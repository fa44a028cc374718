package email

import (
	"bytes"
	"crypto/md5"
	"math/big"
	"mime"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"git.listhouse.net/lhn/lhn/src/oops"
	"github.com/jhillyerd/enmime"
)

// Origin carries the list context an inbound message arrived through. The
// message itself does not know which group or site it belongs to; the
// delivery layer does.
type Origin struct {
	GroupID   string
	SiteID    string
	ListTitle string

	// Sender id resolved by the membership layer. Falls back to the From
	// address when empty.
	SenderID string

	// Trust the message's own Date header instead of the ingestion time.
	// Client clocks are routinely wrong, so the default is ingestion time.
	UseMailDate bool
}

// Parse decomposes a raw RFC 5322 message into an immutable Message.
//
// Post and topic ids are derived deterministically: the post id from the
// sender, subject, bodies, and Message-ID, the topic id from the normalized
// subject and the group/site key. Redelivery carries the same Message-ID and
// therefore lands on the same post id, caught downstream as a primary-key
// conflict. A genuinely new message with an identical sender, subject, and
// body (a "+1" sent twice) differs in Message-ID and gets its own post.
// Messages with no Message-ID at all fall back to content alone.
func Parse(raw []byte, origin Origin) (*Message, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.New(err, "failed to parse message")
	}

	senderID := origin.SenderID
	if senderID == "" {
		senderID = fromAddress(env.GetHeader("From"))
	}

	subject := env.GetHeader("Subject")

	msg := &Message{
		GroupID:   origin.GroupID,
		SiteID:    origin.SiteID,
		SenderID:  senderID,
		ListTitle: origin.ListTitle,
		Subject:   subject,
		Date:      messageDate(env.GetHeader("Date"), origin.UseMailDate),
		InReplyTo: env.GetHeader("In-Reply-To"),
		Body:      env.Text,
		HTMLBody:  env.HTML,
		Header:    rawHeaderBlock(raw),
	}

	msg.Parts = append(msg.Parts, bodyPart("text/plain", env.Text))
	if env.HTML != "" {
		msg.Parts = append(msg.Parts, bodyPart("text/html", env.HTML))
	}
	for _, parts := range [][]*enmime.Part{env.Inlines, env.OtherParts, env.Attachments} {
		for _, p := range parts {
			msg.Parts = append(msg.Parts, decomposePart(p))
		}
	}

	msg.TopicID = deriveID(NormalizeSubject(subject), origin.GroupID, origin.SiteID)
	msg.PostID = deriveID(senderID, subject, env.Text, env.HTML, env.GetHeader("Message-ID"))

	return msg, nil
}

func bodyPart(contentType, content string) Part {
	main, sub := splitContentType(contentType)
	return Part{
		ContentType: contentType,
		MainType:    main,
		SubType:     sub,
		Charset:     "utf-8",
		Content:     []byte(content),
	}
}

func decomposePart(p *enmime.Part) Part {
	main, sub := splitContentType(p.ContentType)
	return Part{
		Filename:    p.FileName,
		ContentType: p.ContentType,
		MainType:    main,
		SubType:     sub,
		ContentID:   p.ContentID,
		Charset:     p.Charset,
		Content:     p.Content,
	}
}

func splitContentType(contentType string) (mainType, subType string) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	mainType, subType, _ = strings.Cut(mediaType, "/")
	return mainType, subType
}

// Date headers in the wild carry trailing zone comments like
// "Sat, 10 Mar 2007 22:47:20 +1300 (NZDT)" that break parsers; strip the
// comment before parsing.
var reDateComment = regexp.MustCompile(` \(.*?\)`)

func messageDate(header string, useMailDate bool) time.Time {
	if useMailDate {
		d := strings.TrimSpace(reDateComment.ReplaceAllString(header, ""))
		if d != "" {
			if parsed, err := mail.ParseDate(d); err == nil {
				return parsed
			}
		}
	}
	return time.Now().UTC()
}

func fromAddress(header string) string {
	addr, err := mail.ParseAddress(header)
	if err != nil {
		return strings.TrimSpace(header)
	}
	return addr.Address
}

// The post row stores the raw header block verbatim, decoded nowhere.
func rawHeaderBlock(raw []byte) string {
	for _, sep := range []string{"\r\n\r\n", "\n\n"} {
		if idx := bytes.Index(raw, []byte(sep)); idx >= 0 {
			return string(raw[:idx])
		}
	}
	return string(raw)
}

const base62Alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func deriveID(fields ...string) string {
	digest := md5.New()
	for _, f := range fields {
		digest.Write([]byte(f))
		digest.Write([]byte{0})
	}

	n := new(big.Int).SetBytes(digest.Sum(nil))
	if n.Sign() == 0 {
		return string(base62Alphabet[0])
	}
	base := big.NewInt(int64(len(base62Alphabet)))
	rem := new(big.Int)
	var buf [32]byte
	i := len(buf)
	for n.Sign() > 0 {
		n.DivMod(n, base, rem)
		i--
		buf[i] = base62Alphabet[rem.Int64()]
	}
	return string(buf[i:])
}
