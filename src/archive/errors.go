package archive

import "fmt"

// Returned when a post with the same post id is already archived. This is
// an expected outcome under redelivery, not a system fault; callers decide
// whether to skip or report it.
type DuplicatePostError struct {
	PostID string
}

func (e *DuplicatePostError) Error() string {
	return fmt.Sprintf("post %s already exists in the archive", e.PostID)
}

// Returned when two first posts of the same topic race on insert. Expected
// and retryable: on retry the topic exists and the update path applies.
type DuplicateTopicError struct {
	TopicID string
	GroupID string
	SiteID  string
}

func (e *DuplicateTopicError) Error() string {
	return fmt.Sprintf("topic %s (group %s, site %s) already exists in the archive", e.TopicID, e.GroupID, e.SiteID)
}
