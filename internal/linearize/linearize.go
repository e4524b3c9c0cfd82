// Package linearize turns a quality-filtered set of discussion entries into
// the single narration order consumed by the media steps: the post first,
// then comments best-first, with every reply preceded by its parent.
package linearize

import (
	"github.com/mikroblog/discussions/internal/models"
	"github.com/sirupsen/logrus"
)

// Entry is one element of the narration order: the post or a comment.
type Entry struct {
	Kind    models.EntryKind
	Post    *models.Post
	Comment *models.Comment
}

// Shared returns the fields common to both entry kinds.
func (e Entry) Shared() *models.Entry {
	if e.Kind == models.KindPost {
		return &e.Post.Entry
	}
	return &e.Comment.Entry
}

// FilterComments returns the comments worth narrating: everything except
// Bad, including promoted GoodCommentReply parents, preserving the input's
// rating-descending order.
func FilterComments(comments []*models.Comment) []*models.Comment {
	var kept []*models.Comment
	for _, c := range comments {
		if c.Quality != models.CommentBad {
			kept = append(kept, c)
		}
	}
	return kept
}

// Linearize produces the ordered entry list for a discussion. The post is
// always first. Comments are appended best-rating-first, except that an
// unplaced reply drags its unplaced ancestors in front of it, so a parent is
// always narrated before any of its replies that made the cut.
func Linearize(post *models.Post, comments []*models.Comment) []Entry {
	entries := make([]Entry, 0, len(comments)+1)
	entries = append(entries, Entry{Kind: models.KindPost, Post: post})

	byID := make(map[int]*models.Comment, len(comments))
	for _, c := range comments {
		byID[c.ID] = c
	}
	placed := make(map[int]bool, len(comments))

	for _, comment := range comments {
		if placed[comment.ID] {
			continue
		}

		chain := collectChain(comment, byID, placed, len(comments))

		// chain is reply-first; reverse so the root-most ancestor is
		// narrated before its replies.
		for i := len(chain) - 1; i >= 0; i-- {
			c := chain[i]
			if placed[c.ID] {
				continue
			}
			entries = append(entries, Entry{Kind: models.KindComment, Comment: c})
			placed[c.ID] = true
		}
	}

	return entries
}

// collectChain walks the parent links of an unplaced comment and returns the
// pending chain, starting with the comment itself and ending at the last
// ancestor that needs placing. The walk stops at chain roots (sentinel
// parents), at parents already in the output, and one step after pulling in
// a promoted GoodCommentReply parent, which is included only as context and
// never walked through. The walk is bounded by the comment count even though
// well-formed reply links cannot cycle.
func collectChain(comment *models.Comment, byID map[int]*models.Comment, placed map[int]bool, bound int) []*models.Comment {
	chain := []*models.Comment{comment}

	head := comment
	for steps := 0; steps <= bound; steps++ {
		if head.ReplyToCommentID <= 0 {
			return chain
		}

		parent, ok := byID[head.ReplyToCommentID]
		if !ok || placed[parent.ID] {
			return chain
		}

		chain = append(chain, parent)
		if parent.Quality == models.CommentGoodReply {
			return chain
		}
		head = parent
	}

	logrus.Errorf("Reply chain walk for comment %d exceeded %d steps, emitting partial chain", comment.ID, bound)
	return chain
}
