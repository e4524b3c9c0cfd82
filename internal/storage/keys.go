package storage

import "fmt"

// PageKey is the storage name of one raw markup page of a discussion.
func PageKey(discussionID, page int) string {
	return fmt.Sprintf("discussions/%d/page_%d.html", discussionID, page)
}

// DiscussionPrefix is the storage prefix holding every raw page of a
// discussion, used to clean up after parsing.
func DiscussionPrefix(discussionID int) string {
	return fmt.Sprintf("discussions/%d/", discussionID)
}
