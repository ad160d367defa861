package notify

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/ItalyPaleAle/rss-notifier/models"
	"github.com/ItalyPaleAle/rss-notifier/utils"
)

// Maximum number of characters of an entry's body in a notification
const SummaryBudget = 200

// Maximum number of characters of a title in a notification
const TitleBudget = 256

// Telegram's limit for photo captions
const captionLimit = 1024

// Appended to text that was truncated
const ellipsis = "…"

// Format for publish dates
const dateFormat = "Mon, 02 Jan 2006 15:04:05 MST"

var titlePolicy = bluemonday.StrictPolicy()

// Message is a notification ready to be delivered
type Message struct {
	// Text in Telegram's HTML format
	Text string
	// URL of a photo to send with the text as caption, optional
	Photo string
}

// Sanitize converts a fragment of HTML to plain text
// Tags are removed (the content of script and style elements is dropped), entities are decoded,
// whitespace is collapsed with block elements becoming line breaks, and the result is truncated
// to SummaryBudget characters with an ellipsis
func Sanitize(raw string) string {
	return truncate(collapseWhitespace(stripTags(raw)), SummaryBudget)
}

// FormatUpdate renders a new entry of a feed as a notification
func FormatUpdate(feedTitle string, e *models.Entry) *Message {
	title := plainTitle(e.Title)
	if title == "" {
		title = "No title"
	}

	out := ""
	if feedTitle = plainTitle(feedTitle); feedTitle != "" {
		out += fmt.Sprintf("<b>%s</b>\n\n", utils.EscapeHTMLEntities(feedTitle))
	}
	out += fmt.Sprintf("<b>%s</b>\n", utils.EscapeHTMLEntities(title))

	switch {
	case e.PublishedParsed != nil && !e.PublishedParsed.IsZero():
		out += utils.EscapeHTMLEntities(e.PublishedParsed.UTC().Format(dateFormat)) + "\n"
	case e.Published != "":
		out += utils.EscapeHTMLEntities(truncate(strings.TrimSpace(e.Published), TitleBudget)) + "\n"
	}

	if summary := Sanitize(e.Content); summary != "" {
		out += "\n" + utils.EscapeHTMLEntities(summary) + "\n"
	}

	if e.Link != "" {
		out += fmt.Sprintf("\n<a href=\"%s\">Read more</a>", utils.EscapeHTMLEntities(e.Link))
	}

	msg := &Message{
		Text:  strings.TrimRight(out, "\n"),
		Photo: e.Photo,
	}

	// Captions are shorter than messages
	if msg.Photo != "" && utf8.RuneCountInString(msg.Text) > captionLimit {
		msg.Photo = ""
	}

	return msg
}

// Returns a title as plain text
func plainTitle(s string) string {
	s = html.UnescapeString(titlePolicy.Sanitize(s))
	return truncate(strings.Join(strings.Fields(s), " "), TitleBudget)
}

// Returns the text content of a fragment of HTML
func stripTags(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	b := strings.Builder{}
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// Includes io.EOF
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken, html.EndTagToken:
			name, _ := z.TagName()
			tag := atom.Lookup(name)
			if tag == atom.Script || tag == atom.Style {
				if tt == html.StartTagToken {
					skip++
				} else if tt == html.EndTagToken && skip > 0 {
					skip--
				}
			}
			if isBlock(tag) {
				b.WriteByte('\n')
			} else if tag == atom.Img || tt == html.SelfClosingTagToken {
				// Images still separate words
				b.WriteByte(' ')
			}
		}
	}
}

// Returns true for elements that start a new line
func isBlock(tag atom.Atom) bool {
	switch tag {
	case atom.P, atom.Br, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Blockquote, atom.Pre,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Tr, atom.Table, atom.Hr,
		atom.Section, atom.Article, atom.Header, atom.Footer, atom.Figure, atom.Figcaption:
		return true
	}
	return false
}

// Collapses runs of whitespace to a single space within a line, and removes empty lines
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	n := 0
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" {
			continue
		}
		lines[n] = l
		n++
	}
	return strings.Join(lines[:n], "\n")
}

// Truncates a string to max characters, adding an ellipsis if it was cut
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimRight(string(runes[:max]), " \n") + ellipsis
}
