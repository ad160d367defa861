package bot

import (
	"fmt"
	"strings"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/ItalyPaleAle/rss-notifier/utils"
)

// Handles /list commands
func (b *RSSBot) handleList(m *tb.Message) {
	// Get the list of subscriptions
	subs, err := b.feeds.ListSubscriptions(b.ctx, m.Chat.ID)
	if err != nil {
		b.respondToCommand(m, "An internal error occurred", nil)
		return
	}

	if len(subs) == 0 {
		b.respondToCommand(m, "This chat isn't subscribed to any feed. Use \"/subscribe <url>\" to add one.", nil)
		return
	}

	// Build the response
	out := strings.Builder{}
	out.WriteString("Here's the list of feeds this chat is subscribed to:\n")
	for i, s := range subs {
		title := s.FeedTitle
		if title == "" {
			title = "Untitled feed"
		}
		fmt.Fprintf(&out, "\n%d. <b>%s</b>\n%s\n", i+1, utils.EscapeHTMLEntities(title), utils.EscapeHTMLEntities(s.FeedURL))
	}
	b.respondToCommand(m, out.String(), htmlOpts())
}
