package parser

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mikroblog/discussions/internal/models"
	"github.com/mikroblog/discussions/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fixture builders mimicking the fixed shape of discussion pages.

type fixtureComment struct {
	nodeID  string
	author  string
	rating  string
	content string
	female  bool
	deleted bool
}

func postSection(author, date, rating, content string, female bool) string {
	figureClass := "avatar"
	if female {
		figureClass = "avatar female"
	}
	authorMarkup := ""
	if author != "" {
		authorMarkup = fmt.Sprintf(`<div class="left"><figure class="%s"></figure><span> %s </span></div>`, figureClass, author)
	}
	return fmt.Sprintf(`<section class="entry detailed" id="entry-1">
%s
<time class="date">%s</time>
<section class="rating-box"><ul><li class="plus">%s</li></ul></section>
<article><section class="entry-content"><div class="wrapper">%s</div></section></article>
</section>`, authorMarkup, date, rating, content)
}

func adultGatedPostSection() string {
	return `<section class="entry detailed" id="entry-1">
<section class="adult-placeholder entry">content for adults</section>
</section>`
}

func commentSection(c fixtureComment) string {
	classes := "entry reply"
	if c.deleted {
		classes += " deleted"
	}
	figureClass := "avatar"
	if c.female {
		figureClass = "avatar female"
	}
	authorMarkup := ""
	if c.author != "" {
		authorMarkup = fmt.Sprintf(`<div class="left"><figure class="%s"></figure><span>%s</span></div>`, figureClass, c.author)
	}
	return fmt.Sprintf(`<section class="%s" id="%s">
%s
<section class="rating-box"><ul><li class="plus">%s</li></ul></section>
<section class="entry-content"><div class="wrapper">%s</div></section>
</section>`, classes, c.nodeID, authorMarkup, c.rating, c.content)
}

func buildPage(post string, comments []fixtureComment, withPagination bool) string {
	var commentMarkup strings.Builder
	for _, c := range comments {
		commentMarkup.WriteString(commentSection(c))
		commentMarkup.WriteString("\n")
	}

	pagination := ""
	if withPagination {
		pagination = `<nav class="new-pagination"><a href="/page/2">2</a></nav>`
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>discussion</title></head><body>
<header class="header">site navigation</header>
<aside class="left-panel">left panel junk</aside>
<main>
<div class="content">
%s
<div id="entry-comments">
%s
</div>
%s
</div>
</main>
<section class="sidebar">sidebar junk</section>
</body></html>`, post, commentMarkup.String(), pagination)
}

func fixedNow() time.Time {
	return time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	p := New(store)
	p.now = fixedNow
	return p
}

func TestParse_FullDiscussion(t *testing.T) {
	page := buildPage(
		postSection("alice", "01.06.2015, 10:30:00", "+120", "Opening post text", false),
		[]fixtureComment{
			{nodeID: "comment-11", author: "bob", rating: "+40", content: `<a href="#">@alice</a> first reply`},
			{nodeID: "comment-12", author: "carol", rating: "20", content: "standalone remark"},
			{nodeID: "comment-13", author: "dave", rating: "10", content: `<a href="#">@bob</a> agreeing`},
			{nodeID: "comment-14", author: "eve", rating: "5", content: `<a href="#">@ghost</a> into the void`},
		},
		false,
	)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, 77, d.ID)
	assert.Equal(t, 8, d.YearsOld)

	assert.Equal(t, "alice", d.Post.Author)
	assert.Equal(t, 120, d.Post.Rating)
	assert.True(t, d.Post.IsAuthorMale)
	assert.Equal(t, "Opening post text", d.Post.NarrationText)

	require.Len(t, d.Comments, 4)
	assert.Equal(t, 11, d.Comments[0].ID)
	assert.Equal(t, "bob", d.Comments[0].Author)
	assert.Equal(t, 40, d.Comments[0].Rating)
	assert.Equal(t, "alice", d.Comments[0].ReplyToAuthor)

	// bob mentions the post author with no earlier comment by her.
	assert.Equal(t, models.ReplyToPost, d.Comments[0].ReplyToCommentID)
	// carol mentions nobody.
	assert.Equal(t, models.ReplyToNone, d.Comments[1].ReplyToCommentID)
	// dave mentions bob, whose comment is 11.
	assert.Equal(t, 11, d.Comments[2].ReplyToCommentID)
	// eve mentions an author that appears nowhere.
	assert.Equal(t, models.ReplyToUnknown, d.Comments[3].ReplyToCommentID)
}

func TestParse_PostHTMLIsReduced(t *testing.T) {
	page := buildPage(
		postSection("alice", "01.06.2015, 10:30:00", "+120", "Opening post text", false),
		[]fixtureComment{
			{nodeID: "comment-11", author: "bob", rating: "40", content: "a comment"},
		},
		false,
	)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Contains(t, d.Post.HTML, "Opening post text")
	assert.NotContains(t, d.Post.HTML, "sidebar junk")
	assert.NotContains(t, d.Post.HTML, "site navigation")
	assert.NotContains(t, d.Post.HTML, "a comment")

	// Comment fragments carry only their own comment, not the post body.
	require.Len(t, d.Comments, 1)
	assert.Contains(t, d.Comments[0].HTML, "a comment")
	assert.NotContains(t, d.Comments[0].HTML, "Opening post text")
	assert.NotContains(t, d.Comments[0].HTML, "sidebar junk")
}

func TestParse_FemaleAuthors(t *testing.T) {
	page := buildPage(
		postSection("alicja", "01.06.2015, 10:30:00", "120", "tekst", true),
		[]fixtureComment{
			{nodeID: "comment-11", author: "bogna", rating: "40", content: "odpowiedź", female: true},
			{nodeID: "comment-12", author: "bob", rating: "30", content: "reply"},
		},
		false,
	)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.False(t, d.Post.IsAuthorMale)
	assert.False(t, d.Comments[0].IsAuthorMale)
	assert.True(t, d.Comments[1].IsAuthorMale)
}

func TestParse_GenderIsPerEntry(t *testing.T) {
	// The post author's marker must not leak into the comments, nor a
	// comment's into the post.
	page := buildPage(
		postSection("adam", "01.06.2015, 10:30:00", "120", "tekst", false),
		[]fixtureComment{
			{nodeID: "comment-11", author: "celina", rating: "40", content: "odpowiedź", female: true},
			{nodeID: "comment-12", author: "bob", rating: "30", content: "reply"},
		},
		false,
	)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.True(t, d.Post.IsAuthorMale)
	assert.False(t, d.Comments[0].IsAuthorMale)
	assert.True(t, d.Comments[1].IsAuthorMale)
}

func TestDiscussionAge_ReadsOnlyThePostDate(t *testing.T) {
	// A post without a timestamp counts as new even when a comment carries
	// its own old date node.
	post := `<section class="entry detailed" id="entry-1">
<div class="left"><figure class="avatar"></figure><span>alice</span></div>
<section class="rating-box"><ul><li class="plus">120</li></ul></section>
<article><section class="entry-content"><div class="wrapper">text</div></section></article>
</section>`
	page := buildPage(post, []fixtureComment{
		{nodeID: "comment-11", author: "bob", rating: "40", content: `<time class="date">01.06.2010, 10:30:00</time> old quote`},
	}, false)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, 1, d.YearsOld)
}

func TestParse_AgeGatedDiscussionSkipped(t *testing.T) {
	page := buildPage(adultGatedPostSection(), nil, false)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})

	assert.NoError(t, err)
	assert.Nil(t, d)
}

func TestParse_DropsUnreadableComments(t *testing.T) {
	page := buildPage(
		postSection("alice", "01.06.2015, 10:30:00", "120", "text", false),
		[]fixtureComment{
			{nodeID: "comment-11", author: "bob", rating: "40", content: "kept"},
			{nodeID: "comment-12", author: "", rating: "30", content: "age-gated, no author"},
			{nodeID: "garbage", author: "carol", rating: "20", content: "bad node id"},
			{nodeID: "comment-14", author: "dave", rating: "10", content: "gone", deleted: true},
		},
		false,
	)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})
	require.NoError(t, err)
	require.NotNil(t, d)

	require.Len(t, d.Comments, 1)
	assert.Equal(t, 11, d.Comments[0].ID)
}

func TestParse_CommentsAcrossPages(t *testing.T) {
	page1 := buildPage(
		postSection("alice", "01.06.2015, 10:30:00", "120", "text", false),
		[]fixtureComment{
			{nodeID: "comment-11", author: "bob", rating: "40", content: "first page"},
		},
		true,
	)
	page2 := buildPage(
		postSection("alice", "01.06.2015, 10:30:00", "120", "text", false),
		[]fixtureComment{
			{nodeID: "comment-21", author: "carol", rating: "15", content: `<a href="#">@bob</a> second page`},
		},
		true,
	)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page1, page2})
	require.NoError(t, err)
	require.NotNil(t, d)

	require.Len(t, d.Comments, 2)
	assert.Equal(t, 11, d.Comments[0].ID)
	assert.Equal(t, 21, d.Comments[1].ID)
	assert.Equal(t, 11, d.Comments[1].ReplyToCommentID)
}

func TestParse_NarrationTextStripsQuotesAndMentions(t *testing.T) {
	page := buildPage(
		postSection("alice", "01.06.2015, 10:30:00", "120", "text", false),
		[]fixtureComment{
			{
				nodeID:  "comment-11",
				author:  "bob",
				rating:  "40",
				content: `<blockquote>quoted earlier words</blockquote><a href="#">@alice</a> the actual answer`,
			},
		},
		false,
	)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})
	require.NoError(t, err)
	require.NotNil(t, d)

	require.Len(t, d.Comments, 1)
	assert.Equal(t, "the actual answer", d.Comments[0].NarrationText)
}

func TestParse_NearestEarlierCommentWinsReplyResolution(t *testing.T) {
	page := buildPage(
		postSection("alice", "01.06.2015, 10:30:00", "120", "text", false),
		[]fixtureComment{
			{nodeID: "comment-11", author: "bob", rating: "40", content: "first by bob"},
			{nodeID: "comment-12", author: "bob", rating: "30", content: "second by bob"},
			{nodeID: "comment-13", author: "carol", rating: "20", content: `<a href="#">@bob</a> which one?`},
		},
		false,
	)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, 12, d.Comments[2].ReplyToCommentID)
}

func TestParse_FreshDiscussionAgeClampsToOne(t *testing.T) {
	page := buildPage(
		postSection("alice", "01.05.2023, 10:30:00", "120", "text", false),
		nil,
		false,
	)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})
	require.NoError(t, err)
	require.NotNil(t, d)

	assert.Equal(t, 1, d.YearsOld)
}

func TestParse_NoPagesIsAnError(t *testing.T) {
	p := newTestParser(t)
	_, err := p.Parse(77, nil)
	assert.Error(t, err)
}

func TestReadRange_LoadsAndCleansUp(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	page := buildPage(
		postSection("alice", "01.06.2015, 10:30:00", "120", "text", false),
		[]fixtureComment{
			{nodeID: "comment-11", author: "bob", rating: "40", content: "reply"},
		},
		false,
	)
	require.NoError(t, store.Store(storage.PageKey(5, 1), []byte(page)))

	p := New(store)
	p.now = fixedNow

	// ID 6 has no stored pages and is silently absent from the result.
	discussions := p.ReadRange(5, 7)

	require.Len(t, discussions, 1)
	assert.Equal(t, 5, discussions[0].ID)

	leftover, err := store.List(storage.DiscussionPrefix(5))
	require.NoError(t, err)
	assert.Empty(t, leftover)
}

func TestHasPagination(t *testing.T) {
	withMarker := buildPage(postSection("alice", "01.06.2015, 10:30:00", "120", "text", false), nil, true)
	withoutMarker := buildPage(postSection("alice", "01.06.2015, 10:30:00", "120", "text", false), nil, false)

	assert.True(t, HasPagination(withMarker))
	assert.False(t, HasPagination(withoutMarker))
}

func TestEntryProperties(t *testing.T) {
	page := buildPage(
		postSection("alice", "01.06.2015, 10:30:00", "120", "text", false),
		[]fixtureComment{
			{nodeID: "comment-11", author: "bogna", rating: "40", content: `<a href="#">@alice</a> saved fragment`, female: true},
		},
		false,
	)

	p := newTestParser(t)
	d, err := p.Parse(77, []string{page})
	require.NoError(t, err)
	require.Len(t, d.Comments, 1)

	text, isMale, err := EntryProperties(d.Comments[0].HTML)
	require.NoError(t, err)
	assert.Equal(t, "saved fragment", text)
	assert.False(t, isMale)
}

func TestParseCommentID(t *testing.T) {
	tests := []struct {
		nodeID  string
		want    int
		wantErr bool
	}{
		{nodeID: "comment-42", want: 42},
		{nodeID: "comment-", wantErr: true},
		{nodeID: "entry-42", wantErr: true},
		{nodeID: "", wantErr: true},
		{nodeID: "comment-abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.nodeID, func(t *testing.T) {
			got, err := parseCommentID(tt.nodeID)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRating(t *testing.T) {
	assert.Equal(t, 120, parseRating(" +120 "))
	assert.Equal(t, 40, parseRating("40"))
	assert.Equal(t, 0, parseRating("n/a"))
	assert.Equal(t, 0, parseRating(""))
}
