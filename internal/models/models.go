package models

import "time"

// EntryKind tags an Entry as the discussion's post or one of its comments.
type EntryKind int

const (
	KindPost EntryKind = iota
	KindComment
)

// PostQuality is the quality tier of a post.
type PostQuality int

const (
	PostBad PostQuality = iota
	PostGood
	PostVeryGood
)

func (q PostQuality) String() string {
	switch q {
	case PostGood:
		return "Good"
	case PostVeryGood:
		return "VeryGood"
	default:
		return "Bad"
	}
}

// CommentQuality is the quality tier of a comment. CommentGoodReply marks a
// comment that is bad on its own rating but has to be shown because a quality
// comment replies to it.
type CommentQuality int

const (
	CommentBad CommentQuality = iota
	CommentGood
	CommentGoodReply
	CommentVeryGood
)

func (q CommentQuality) String() string {
	switch q {
	case CommentGood:
		return "Good"
	case CommentGoodReply:
		return "GoodCommentReply"
	case CommentVeryGood:
		return "VeryGood"
	default:
		return "Bad"
	}
}

// DiscussionQuality is the combined tier of a post and its best comment.
type DiscussionQuality int

const (
	DiscussionBad DiscussionQuality = iota
	DiscussionGoodPost
	DiscussionGoodComments
	DiscussionGood
	DiscussionVeryGoodPost
	DiscussionVeryGoodComments
	DiscussionVeryGood
)

func (q DiscussionQuality) String() string {
	switch q {
	case DiscussionGoodPost:
		return "GoodPost"
	case DiscussionGoodComments:
		return "GoodComments"
	case DiscussionGood:
		return "Good"
	case DiscussionVeryGoodPost:
		return "VeryGoodPost"
	case DiscussionVeryGoodComments:
		return "VeryGoodComments"
	case DiscussionVeryGood:
		return "VeryGood"
	default:
		return "Bad"
	}
}

// Sentinel values for Comment.ReplyToCommentID.
const (
	// ReplyToNone means the comment is not a reply to anything.
	ReplyToNone = -1
	// ReplyToPost means the comment replies to the post's author.
	ReplyToPost = 0
	// ReplyToUnknown means the mentioned author was not found among loaded
	// comments (deleted account or unresolved).
	ReplyToUnknown = -2
)

// Entry holds the fields shared by posts and comments: the atomic unit that
// gets screenshotted and narrated.
type Entry struct {
	Kind          EntryKind `json:"kind"`
	Rating        int       `json:"rating"`
	Author        string    `json:"author"`
	IsAuthorMale  bool      `json:"is_author_male"`
	HTML          string    `json:"-"`
	NarrationText string    `json:"narration_text"`
}

// Post is the discussion's opening entry.
type Post struct {
	Entry
	Quality PostQuality `json:"quality"`
}

// Comment is a single comment in a discussion.
type Comment struct {
	Entry
	ID      int            `json:"id"`
	Quality CommentQuality `json:"quality"`

	// ReplyToAuthor is the raw author mention extracted from the markup,
	// empty when the comment is not a reply.
	ReplyToAuthor string `json:"reply_to_author"`

	// ReplyToCommentID is resolved from ReplyToAuthor: >0 is the ID of the
	// comment replied to, otherwise one of the ReplyTo* sentinels.
	ReplyToCommentID int `json:"reply_to_comment_id"`
}

// Discussion is a post plus its comments, parsed from one discussion ID.
// Comments keep extraction order, which is rating-descending on the source
// site, not narration order.
type Discussion struct {
	ID       int               `json:"id"`
	YearsOld int               `json:"years_old"`
	Quality  DiscussionQuality `json:"quality"`
	Post     *Post             `json:"post"`
	Comments []*Comment        `json:"comments"`
}

// RunSummary describes one completed pipeline run over an ID range, sent to
// the operator so curation can start.
type RunSummary struct {
	Mode      string         `json:"mode"`
	IDStart   int            `json:"id_start"`
	IDEnd     int            `json:"id_end"`
	Fetched   int            `json:"fetched"`
	Kept      int            `json:"kept"`
	ByQuality map[string]int `json:"by_quality"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// CommentByID returns the comment with the given ID or nil.
func (d *Discussion) CommentByID(id int) *Comment {
	for _, c := range d.Comments {
		if c.ID == id {
			return c
		}
	}
	return nil
}
