package archive

import (
	"context"
	"strings"

	"git.listhouse.net/lhn/lhn/src/contentid"
	"git.listhouse.net/lhn/lhn/src/email"
	"git.listhouse.net/lhn/lhn/src/logging"
)

type DecisionKind int

const (
	// The plain text body. Lives on the post row, never archived as a blob.
	DecisionSkipPlainBody DecisionKind = iota + 1
	// The HTML body. Captured on the post row, not as a blob.
	DecisionArchiveHTMLBody
	// An unnamed part referenced by content-id, typically an image embedded
	// in the HTML body. Dropped.
	DecisionSkipInline
	// A named part with no bytes.
	DecisionSkipEmpty
	// A real attachment, to be archived in the blob store.
	DecisionStore
)

type Decision struct {
	Kind DecisionKind
	Part email.Part

	// Only set on DecisionStore.
	Filename string // path components stripped
	Identity contentid.Identity
}

// Classify decides, part by part, what to do with each decomposed part of
// the message. Decisions are logged but never errors; an unarchivable part
// is a normal condition.
func Classify(ctx context.Context, msg *email.Message) []Decision {
	log := logging.ExtractLogger(ctx)

	decisions := make([]Decision, 0, len(msg.Parts))
	for _, part := range msg.Parts {
		d := classifyPart(part)
		decisions = append(decisions, d)

		switch d.Kind {
		case DecisionSkipPlainBody:
			// The plain text body is already stored on the post; saving it
			// again as an attachment would double it.
		case DecisionArchiveHTMLBody:
			log.Info().
				Str("list", msg.ListTitle).
				Str("group", msg.GroupID).
				Msg("archiving HTML body with the post")
		case DecisionSkipInline:
			log.Info().
				Str("list", msg.ListTitle).
				Str("group", msg.GroupID).
				Str("type", part.MainType).
				Msg("stripped, but not archiving part; it appears to be part of an HTML message")
		case DecisionSkipEmpty:
			log.Warn().
				Str("list", msg.ListTitle).
				Str("group", msg.GroupID).
				Str("type", part.MainType).
				Str("filename", part.Filename).
				Msg("stripped, but not archiving attachment of zero size")
		case DecisionStore:
			log.Info().
				Str("list", msg.ListTitle).
				Str("group", msg.GroupID).
				Str("type", part.MainType).
				Str("filename", d.Filename).
				Str("file_id", d.Identity.ID).
				Msg("stripped and archiving attachment")
		}
	}
	return decisions
}

func classifyPart(part email.Part) Decision {
	switch {
	case part.Filename == "" && part.SubType == "plain":
		return Decision{Kind: DecisionSkipPlainBody, Part: part}
	case part.Filename == "" && part.SubType == "html":
		return Decision{Kind: DecisionArchiveHTMLBody, Part: part}
	case part.ContentID != "" && part.Filename == "":
		return Decision{Kind: DecisionSkipInline, Part: part}
	case len(part.Content) <= 0:
		return Decision{Kind: DecisionSkipEmpty, Part: part}
	default:
		return Decision{
			Kind:     DecisionStore,
			Part:     part,
			Filename: stripPath(part.Filename),
			Identity: contentid.Identify(part.Content, part.ContentType),
		}
	}
}

// stripPath drops any directory components from a client-supplied filename,
// so names like "../../etc/passwd" arrive as bare names.
func stripPath(filename string) string {
	if idx := strings.LastIndexAny(filename, `/\`); idx >= 0 {
		filename = filename[idx+1:]
	}
	return filename
}
