package quality

import (
	"github.com/mikroblog/discussions/internal/models"
	"github.com/sirupsen/logrus"
)

// Thresholds are the minimum ratings for a VeryGood post and a VeryGood
// comment at a given discussion age.
type Thresholds struct {
	Post    int
	Comment int
}

// OldestYear caps the age used for threshold lookup. Discussions older than
// this use the oldest bucket.
const OldestYear = 11

// goodRatio is the share of the VeryGood threshold that still counts as Good.
const goodRatio = 0.5

// Comments further down the rating-ordered list need less rating to qualify.
// A comment at position p gets its threshold discounted by min(p, limit)%.
const (
	handicapLimit      = 50
	handicapMultiplier = 1.0
)

// defaultThresholds maps discussion age in years to rating thresholds. Newer
// discussions had a larger active user base, so they need more upvotes to
// stand out.
var defaultThresholds = map[int]Thresholds{
	11: {Post: 50, Comment: 12},
	10: {Post: 60, Comment: 15},
	9:  {Post: 150, Comment: 30},
	8:  {Post: 300, Comment: 60},
	7:  {Post: 500, Comment: 100},
	6:  {Post: 500, Comment: 100},
	5:  {Post: 500, Comment: 100},
	4:  {Post: 600, Comment: 120},
	3:  {Post: 500, Comment: 100},
	2:  {Post: 500, Comment: 100},
	1:  {Post: 500, Comment: 100},
}

// Classifier assigns quality tiers to discussion entries using age-adjusted
// rating thresholds.
type Classifier struct {
	thresholds map[int]Thresholds
}

// NewClassifier creates a classifier with the default threshold table.
func NewClassifier() *Classifier {
	return &Classifier{thresholds: defaultThresholds}
}

// Classify runs the quality check on every discussion in the batch.
func (c *Classifier) Classify(discussions []*models.Discussion) {
	for _, d := range discussions {
		c.ClassifyDiscussion(d)
	}
}

// ClassifyDiscussion sets the quality of the post, every comment and the
// discussion itself.
func (c *Classifier) ClassifyDiscussion(d *models.Discussion) {
	clampAge(d)

	th := c.thresholds[d.YearsOld]

	c.classifyPost(d.Post, th)
	c.classifyComments(d, th)
	c.promoteRepliedParents(d)
	d.Quality = rollupQuality(d)

	logrus.Debugf("Discussion %d classified as %s (post %s, %d comments)",
		d.ID, d.Quality, d.Post.Quality, len(d.Comments))
}

// clampAge pins YearsOld into the configured table: at least 1 (a fresh
// discussion counts as one year old) and at most the oldest bucket.
func clampAge(d *models.Discussion) {
	if d.YearsOld < 1 {
		d.YearsOld = 1
	}
	if d.YearsOld > OldestYear {
		d.YearsOld = OldestYear
	}
}

func (c *Classifier) classifyPost(post *models.Post, th Thresholds) {
	switch r := float64(post.Rating); {
	case r >= float64(th.Post):
		post.Quality = models.PostVeryGood
	case r >= float64(th.Post)*goodRatio:
		post.Quality = models.PostGood
	default:
		post.Quality = models.PostBad
	}
}

// classifyComments grades each comment against its own handicapped
// threshold. Comments are in rating-descending order, so the zero-based
// position is the handicap input.
func (c *Classifier) classifyComments(d *models.Discussion, th Thresholds) {
	for pos, comment := range d.Comments {
		effective := effectiveThreshold(th.Comment, pos)

		switch r := float64(comment.Rating); {
		case r >= effective:
			comment.Quality = models.CommentVeryGood
		case r >= effective*goodRatio:
			comment.Quality = models.CommentGood
		default:
			comment.Quality = models.CommentBad
		}
	}
}

// effectiveThreshold applies the position handicap: min(pos, 50)% off,
// so a comment at position 50 or beyond only needs half the rating.
func effectiveThreshold(threshold, position int) float64 {
	h := position
	if h > handicapLimit {
		h = handicapLimit
	}
	discount := float64(h) / 100 * handicapMultiplier
	return float64(threshold) * (1 - discount)
}

// promoteRepliedParents lifts Bad comments that a Good or VeryGood comment
// replies to into CommentGoodReply, so the reply's context can be shown.
// Promoted comments stay invisible to the discussion rollup, and promotion
// does not cascade: a promoted parent does not promote its own parent.
func (c *Classifier) promoteRepliedParents(d *models.Discussion) {
	for _, comment := range d.Comments {
		if comment.Quality != models.CommentGood && comment.Quality != models.CommentVeryGood {
			continue
		}
		if comment.ReplyToCommentID <= 0 {
			continue
		}

		parent := d.CommentByID(comment.ReplyToCommentID)
		if parent != nil && parent.Quality == models.CommentBad {
			parent.Quality = models.CommentGoodReply
		}
	}
}

// rollupQuality combines post quality with the best genuine comment quality.
// The order of the cases is the precedence: both very good beats a very good
// post alone, which beats very good comments alone, and so on.
func rollupQuality(d *models.Discussion) models.DiscussionQuality {
	post := d.Post.Quality
	comments := bestCommentsQuality(d.Comments)

	switch {
	case post == models.PostVeryGood && comments == models.CommentVeryGood:
		return models.DiscussionVeryGood
	case post == models.PostVeryGood:
		return models.DiscussionVeryGoodPost
	case comments == models.CommentVeryGood:
		return models.DiscussionVeryGoodComments
	case post == models.PostGood && comments == models.CommentGood:
		return models.DiscussionGood
	case post == models.PostGood:
		return models.DiscussionGoodPost
	case comments == models.CommentGood:
		return models.DiscussionGoodComments
	default:
		return models.DiscussionBad
	}
}

// bestCommentsQuality is the top tier among comments. CommentGoodReply is a
// visibility tier, not an earned one, so it counts as Bad here.
func bestCommentsQuality(comments []*models.Comment) models.CommentQuality {
	best := models.CommentBad
	for _, c := range comments {
		switch c.Quality {
		case models.CommentVeryGood:
			return models.CommentVeryGood
		case models.CommentGood:
			best = models.CommentGood
		}
	}
	return best
}
