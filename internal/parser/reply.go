package parser

import "github.com/mikroblog/discussions/internal/models"

// resolveReplyTargets computes ReplyToCommentID for every comment from its
// raw author mention. Comments are scanned in extraction order, which is
// rating-descending, and the mention is matched against strictly earlier
// comments only, nearest first. Matching by author name is a heuristic: when
// two earlier comments share an author the nearest (highest-rated) one wins,
// which is not guaranteed to be the real thread parent.
func resolveReplyTargets(d *models.Discussion) {
	for i, comment := range d.Comments {
		if comment.ReplyToAuthor == "" {
			comment.ReplyToCommentID = models.ReplyToNone
			continue
		}

		comment.ReplyToCommentID = models.ReplyToUnknown

		found := false
		for j := i - 1; j >= 0; j-- {
			if d.Comments[j].Author == comment.ReplyToAuthor {
				comment.ReplyToCommentID = d.Comments[j].ID
				found = true
				break
			}
		}

		// No earlier comment by that author: either the comment replies to
		// the post itself, or the mentioned account is gone.
		if !found && comment.ReplyToAuthor == d.Post.Author {
			comment.ReplyToCommentID = models.ReplyToPost
		}
	}
}
