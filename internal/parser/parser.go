// Package parser turns raw discussion markup into structured Discussion
// records: age, post, comments, reply targets, screenshot-ready HTML
// fragments and narration text.
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mikroblog/discussions/internal/models"
	"github.com/mikroblog/discussions/internal/storage"
	"github.com/sirupsen/logrus"
)

// Timestamp format used on discussion pages.
const dateTimeFormat = "02.01.2006, 15:04:05"

// CSS selectors for the fixed document shape of the source site.
const (
	selPostSection    = "section.entry.detailed"
	selAdultGate      = "section.adult-placeholder.entry"
	selDate           = "time.date"
	selAuthor         = "div.left span"
	selRating         = "section.rating-box li.plus"
	selSidebar        = "section.sidebar"
	selLeftPanel      = "aside.left-panel"
	selStreamTop      = "header.stream-top"
	selTopHeader      = "header.header"
	selCommentsBlock  = "#entry-comments"
	selAds            = "section.pub-slot-wrapper"
	selPagination     = "nav.new-pagination"
	selComments       = "#entry-comments section.entry.reply:not(.deleted)"
	selContentWrapper = "section.entry-content div.wrapper"
	selFemaleFigure   = "div.left figure.female"
	selPostArticle    = "section.entry.detailed article"
	selMain           = "main"
	selContentDiv     = "div.content"
	selEntryContent   = "section.entry-content"
	selEntryPhoto     = "section.entry-photo figure"
)

const commentIDPrefix = "comment-"

// Parser reads raw discussion pages from storage and extracts Discussion
// records. Raw pages are deleted once a discussion has been handled, whether
// it parsed, was skipped as age-gated, or never existed.
type Parser struct {
	store storage.Interface
	now   func() time.Time
}

// New creates a parser reading raw pages from the given store.
func New(store storage.Interface) *Parser {
	return &Parser{store: store, now: time.Now}
}

// ReadRange parses every discussion in the half-open ID range [start, end).
// Discussions without stored pages or behind the age gate are left out.
func (p *Parser) ReadRange(start, end int) []*models.Discussion {
	logrus.Infof("Reading discussions %d-%d", start, end)

	var discussions []*models.Discussion

	for id := start; id < end; id++ {
		pages := p.loadPages(id)

		if pages != nil {
			d, err := p.Parse(id, pages)
			if err != nil {
				logrus.Errorf("Failed to parse discussion %d: %v", id, err)
			} else if d != nil {
				discussions = append(discussions, d)
			}
		}

		p.removeRawPages(id)
	}

	logrus.Infof("Read %d discussions from range %d-%d", len(discussions), start, end)
	return discussions
}

// loadPages retrieves consecutive stored pages for a discussion, stopping at
// the first missing one. A missing first page means the discussion was never
// fetched successfully and yields nil.
func (p *Parser) loadPages(id int) []string {
	var pages []string

	for page := 1; ; page++ {
		data, err := p.store.Retrieve(storage.PageKey(id, page))
		if err != nil {
			if page == 1 {
				return nil
			}
			break
		}
		pages = append(pages, string(data))
	}

	return pages
}

// removeRawPages deletes every stored raw page of a discussion. Raw markup
// is only needed until extraction is done, and dead IDs would otherwise
// accumulate on disk.
func (p *Parser) removeRawPages(id int) {
	names, err := p.store.List(storage.DiscussionPrefix(id))
	if err != nil {
		logrus.Errorf("Failed to list raw pages of discussion %d: %v", id, err)
		return
	}

	for _, name := range names {
		if err := p.store.Delete(name); err != nil {
			logrus.Errorf("Failed to delete raw page %s: %v", name, err)
		}
	}
}

// Parse extracts a Discussion from its raw pages. It returns (nil, nil) when
// the discussion is age-gated and cannot be read, which is a deliberate skip
// rather than an error.
func (p *Parser) Parse(id int, pages []string) (*models.Discussion, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("no pages for discussion %d", id)
	}

	firstPage, err := LoadDocument(pages[0])
	if err != nil {
		return nil, fmt.Errorf("failed to load first page of discussion %d: %w", id, err)
	}

	d := &models.Discussion{ID: id}
	d.YearsOld = p.discussionAge(firstPage)

	post, ok := p.readPost(id, firstPage)
	if !ok {
		logrus.Infof("Discussion %d is age-gated, skipping", id)
		return nil, nil
	}
	d.Post = post

	p.readComments(d, pages)
	resolveReplyTargets(d)

	return d, nil
}

// discussionAge computes how many years old the discussion is from the
// timestamp on the first page. A missing or unparsable timestamp counts as
// now, which clamps to one year.
func (p *Parser) discussionAge(doc Document) int {
	date := p.now()

	if section := doc.First(selPostSection); section != nil {
		if node := section.First(selDate); node != nil {
			parsed, err := time.Parse(dateTimeFormat, strings.TrimSpace(node.Text()))
			if err == nil {
				date = parsed
			}
		}
	}

	years := int(p.now().Sub(date).Hours() / 24 / 365)
	if years < 1 {
		years = 1
	}
	return years
}

// readPost extracts the post from the first page. It reports ok=false when
// the author marker is absent, which happens exactly when the discussion is
// behind the age gate.
func (p *Parser) readPost(id int, doc Document) (*models.Post, bool) {
	section := doc.First(selPostSection)
	if section == nil {
		return nil, false
	}
	if section.First(selAdultGate) != nil {
		return nil, false
	}

	authorNode := section.First(selAuthor)
	if authorNode == nil {
		return nil, false
	}

	post := &models.Post{
		Entry: models.Entry{
			Kind:         models.KindPost,
			Author:       strings.TrimSpace(authorNode.Text()),
			IsAuthorMale: true,
		},
	}

	if rating := section.First(selRating); rating != nil {
		post.Rating = parseRating(rating.Text())
	}

	// Reduce the page to just the post and style it for capture, then read
	// the gender marker and narration text off the reduced document.
	stripPageChrome(doc)
	if comments := doc.First(selCommentsBlock); comments != nil {
		comments.Remove()
	}
	applyCaptureStyling(doc, true)

	if doc.First(selFemaleFigure) != nil {
		post.IsAuthorMale = false
	}
	if wrapper := doc.First(selContentWrapper); wrapper != nil {
		post.NarrationText = strings.TrimSpace(wrapper.Text())
	}

	html, err := doc.HTML()
	if err != nil {
		logrus.Errorf("Failed to serialize post HTML of discussion %d: %v", id, err)
	}
	post.HTML = html

	return post, true
}

// readComments enumerates comment nodes across all pages and extracts each
// one. A comment without an author marker is individually age-gated and is
// dropped without affecting the discussion.
func (p *Parser) readComments(d *models.Discussion, pages []string) {
	for pageNo, page := range pages {
		doc, err := LoadDocument(page)
		if err != nil {
			logrus.Errorf("Failed to load page %d of discussion %d: %v", pageNo+1, d.ID, err)
			continue
		}

		for _, node := range doc.All(selComments) {
			comment, ok := p.readComment(d.ID, node)
			if !ok {
				continue
			}

			p.reduceCommentHTML(d.ID, comment, page)
			d.Comments = append(d.Comments, comment)
		}
	}
}

// readComment pulls the raw fields of a single comment out of its node.
func (p *Parser) readComment(discussionID int, node Node) (*models.Comment, bool) {
	id, err := parseCommentID(node.Attr("id"))
	if err != nil {
		logrus.Errorf("Discussion %d: skipping comment with bad node ID %q: %v", discussionID, node.Attr("id"), err)
		return nil, false
	}

	authorNode := node.First(selAuthor)
	if authorNode == nil {
		// Individually age-gated comment
		logrus.Debugf("Discussion %d: comment %d has no author, dropping", discussionID, id)
		return nil, false
	}

	comment := &models.Comment{
		Entry: models.Entry{
			Kind:         models.KindComment,
			Author:       strings.TrimSpace(authorNode.Text()),
			IsAuthorMale: true,
		},
		ID:               id,
		ReplyToCommentID: models.ReplyToNone,
	}

	// A leading @mention anchor inside the content marks a reply. Comments
	// can mention several authors; only the first one is treated as the
	// reply target.
	if wrapper := node.First(selContentWrapper); wrapper != nil {
		if mention := wrapper.First("a"); mention != nil {
			comment.ReplyToAuthor = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(mention.Text()), "@"))
		}
	}

	if rating := node.First(selRating); rating != nil {
		comment.Rating = parseRating(rating.Text())
	}

	return comment, true
}

// reduceCommentHTML rebuilds the page with everything except this one
// comment removed, styled for capture, and extracts the comment's gender
// marker and narration text from the isolated fragment.
func (p *Parser) reduceCommentHTML(discussionID int, comment *models.Comment, page string) {
	doc, err := LoadDocument(page)
	if err != nil {
		logrus.Errorf("Discussion %d: failed to reload page for comment %d: %v", discussionID, comment.ID, err)
		return
	}

	stripPageChrome(doc)
	if article := doc.First(selPostArticle); article != nil {
		article.Remove()
	}

	nodeID := commentIDPrefix + strconv.Itoa(comment.ID)
	for _, other := range doc.All(selComments) {
		if other.Attr("id") != nodeID {
			other.Remove()
		}
	}

	applyCaptureStyling(doc, false)

	// The post section's author marker is still in the document, so the
	// gender lookup has to stay inside the comments block.
	if block := doc.First(selCommentsBlock); block != nil && block.First(selFemaleFigure) != nil {
		comment.IsAuthorMale = false
	}

	comment.NarrationText = extractNarrationText(doc)

	html, err := doc.HTML()
	if err != nil {
		logrus.Errorf("Discussion %d: failed to serialize comment %d HTML: %v", discussionID, comment.ID, err)
		return
	}
	comment.HTML = html
}

// extractNarrationText reads the comment's plain text with quoted replies
// and mention links stripped, so the narration does not read usernames and
// quoted context aloud.
func extractNarrationText(doc Document) string {
	wrapper := doc.First(selContentWrapper)
	if wrapper == nil {
		return ""
	}

	if quote := wrapper.First("blockquote"); quote != nil {
		quote.Remove()
	}
	for _, anchor := range wrapper.All("a") {
		anchor.Remove()
	}

	return strings.TrimSpace(strings.ReplaceAll(wrapper.Text(), "@", ""))
}

// stripPageChrome removes navigation, sidebar, ad and pagination nodes so
// only entry content remains.
func stripPageChrome(doc Document) {
	for _, sel := range []string{selSidebar, selLeftPanel, selStreamTop, selTopHeader, selPagination} {
		if node := doc.First(sel); node != nil {
			node.Remove()
		}
	}
	for _, ad := range doc.All(selAds) {
		ad.Remove()
	}
}

// applyCaptureStyling inlines layout hints so the remaining entry renders
// centered and readable in the 1080x1920 capture viewport.
func applyCaptureStyling(doc Document, isPost bool) {
	if node := doc.First(selMain); node != nil {
		node.SetAttr("style", "max-width:100%; width:100%; display:flex; align-items:center; justify-content:center;")
	}
	if node := doc.First(selContentDiv); node != nil {
		node.SetAttr("style", "max-width:100%; width:100%;")
	}
	if node := doc.First(selEntryContent); node != nil {
		node.SetAttr("style", "font-size:32px; line-height:44px;")
	}
	if node := doc.First(selEntryPhoto); node != nil {
		node.SetAttr("style", "max-width:100%; width:100%;")
	}
	if isPost {
		if node := doc.First(selPostSection); node != nil {
			node.SetAttr("style", "margin:48px;")
		}
	}
}

// EntryProperties recovers narration text and the gender signal from a
// saved entry HTML fragment. Redo mode uses it so a single entry's audio can
// be regenerated without re-running the whole pipeline.
func EntryProperties(markup string) (text string, isMale bool, err error) {
	doc, err := LoadDocument(markup)
	if err != nil {
		return "", true, fmt.Errorf("failed to load entry markup: %w", err)
	}

	return extractNarrationText(doc), doc.First(selFemaleFigure) == nil, nil
}

// HasPagination reports whether first-page markup carries the marker that
// announces further comment pages. The fetcher uses it to decide which IDs
// need a second sweep.
func HasPagination(markup string) bool {
	doc, err := LoadDocument(markup)
	if err != nil {
		return false
	}
	return doc.First(selPagination) != nil
}

func parseCommentID(nodeID string) (int, error) {
	raw := strings.TrimPrefix(nodeID, commentIDPrefix)
	if raw == nodeID || raw == "" {
		return 0, fmt.Errorf("node ID %q does not carry a comment number", nodeID)
	}
	return strconv.Atoi(raw)
}

func parseRating(text string) int {
	rating, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "+")))
	if err != nil {
		return 0
	}
	return rating
}
