package notify

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/ItalyPaleAle/rss-notifier/models"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"", ""},
		{"Plain text", "Plain text"},
		{"<p>Hello</p>", "Hello"},
		{"<b>Bold</b> and <i>italic</i>", "Bold and italic"},
		{"  lots   of \t space ", "lots of space"},
		{"<p>First</p><p>Second</p>", "First\nSecond"},
		{"Line<br>break", "Line\nbreak"},
		{"Line<br/>break", "Line\nbreak"},
		{"H<sub>2</sub>O", "H2O"},
		{"a<img src=\"x.png\">b", "a b"},
		{"Tom &amp; Jerry &lt;3", "Tom & Jerry <3"},
		{"<style>p { color: red }</style>Text", "Text"},
		{"Before<script>alert('hi')</script>After", "BeforeAfter"},
		{"<div><ul><li>One</li><li>Two</li></ul></div>", "One\nTwo"},
		// Broken markup
		{"<p>Unclosed <b>bold", "Unclosed bold"},
	}

	for _, el := range cases {
		assert.Equal(t, el.out, Sanitize(el.in), el.in)
	}
}

func TestSanitizeTruncate(t *testing.T) {
	res := Sanitize(strings.Repeat("a ", 150))
	assert.True(t, strings.HasSuffix(res, "…"))
	assert.LessOrEqual(t, utf8.RuneCountInString(res), SummaryBudget+1)
	assert.False(t, strings.HasSuffix(res, " …"))

	// Counted in characters, not bytes
	res = Sanitize(strings.Repeat("字", 300))
	assert.Equal(t, strings.Repeat("字", SummaryBudget)+"…", res)

	// Exactly at the limit
	res = Sanitize(strings.Repeat("b", SummaryBudget))
	assert.Equal(t, strings.Repeat("b", SummaryBudget), res)
}

func TestFormatUpdate(t *testing.T) {
	published := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e := &models.Entry{
		Title:           "Tom &amp; Jerry",
		Link:            "https://example.com/a?x=1&y=2",
		Published:       "Tue, 02 Jan 2024 03:04:05 +0000",
		PublishedParsed: &published,
		Content:         "<p>First paragraph</p><p>Second &amp; last</p><script>alert(1)</script>",
	}

	msg := FormatUpdate("My Feed", e)
	assert.Equal(t, "<b>My Feed</b>\n\n"+
		"<b>Tom &amp; Jerry</b>\n"+
		"Tue, 02 Jan 2024 03:04:05 UTC\n\n"+
		"First paragraph\nSecond &amp; last\n\n"+
		"<a href=\"https://example.com/a?x=1&amp;y=2\">Read more</a>", msg.Text)
	assert.Equal(t, "", msg.Photo)
}

func TestFormatUpdateMissingFields(t *testing.T) {
	msg := FormatUpdate("", &models.Entry{
		Published: "sometime last week",
	})
	assert.Equal(t, "<b>No title</b>\nsometime last week", msg.Text)

	msg = FormatUpdate("Feed", &models.Entry{
		Title: "  <em>Styled</em>   title ",
		Link:  "https://example.com/b",
	})
	assert.Equal(t, "<b>Feed</b>\n\n<b>Styled title</b>\n\n<a href=\"https://example.com/b\">Read more</a>", msg.Text)
}

func TestFormatUpdateEscapesContent(t *testing.T) {
	msg := FormatUpdate("A <b>feed</b>", &models.Entry{
		Title:   "1 < 2",
		Content: "x &lt; y &amp;&amp; y &gt; z",
	})
	assert.NotContains(t, msg.Text, "<b>feed</b>")
	assert.Contains(t, msg.Text, "<b>A feed</b>")
	assert.Contains(t, msg.Text, "x &lt; y &amp;&amp; y &gt; z")
}

func TestFormatUpdatePhoto(t *testing.T) {
	e := &models.Entry{
		Title: "With photo",
		Link:  "https://example.com/c",
		Photo: "https://example.com/c.png",
	}
	msg := FormatUpdate("Feed", e)
	assert.Equal(t, "https://example.com/c.png", msg.Photo)

	// Too long for a caption
	e.Link = "https://example.com/" + strings.Repeat("x", captionLimit)
	msg = FormatUpdate("Feed", e)
	assert.Equal(t, "", msg.Photo)
	assert.Contains(t, msg.Text, "With photo")
}

func TestFormatUpdateLongTitle(t *testing.T) {
	msg := FormatUpdate("Feed", &models.Entry{
		Title: strings.Repeat("t", 1000),
	})
	assert.Contains(t, msg.Text, strings.Repeat("t", TitleBudget)+"…")
	assert.NotContains(t, msg.Text, strings.Repeat("t", TitleBudget+1))
}
