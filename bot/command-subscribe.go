package bot

import (
	"errors"
	"fmt"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/ItalyPaleAle/rss-notifier/feeds"
	"github.com/ItalyPaleAle/rss-notifier/models"
	"github.com/ItalyPaleAle/rss-notifier/notify"
	"github.com/ItalyPaleAle/rss-notifier/utils"
)

// Handles /subscribe commands
func (b *RSSBot) handleSubscribe(m *tb.Message) {
	// Get args
	args := GetArgs(m.Payload)
	if len(args) != 1 || args[0] == "" {
		b.respondToCommand(m, "Invalid arguments: need \"/subscribe <url>\"", nil)
		return
	}

	// Send a message that we're working on it
	wm, _ := b.respondToCommand(m, "Working on it…", nil)

	// Add the subscription
	res, err := b.feeds.AddSubscription(b.ctx, args[0], m.Chat.ID)
	if err != nil {
		b.editResponse(m, wm, subscribeErrorMessage(err), nil)
		return
	}

	title := res.Subscription.FeedTitle
	if title == "" {
		title = res.Subscription.FeedURL
	}
	if res.Latest == nil {
		b.editResponse(m, wm, fmt.Sprintf("Subscribed to <b>%s</b>. The feed doesn't have any post yet.", utils.EscapeHTMLEntities(title)), htmlOpts())
		return
	}
	b.editResponse(m, wm, fmt.Sprintf("Subscribed to <b>%s</b>. Here is the last post published:", utils.EscapeHTMLEntities(title)), htmlOpts())

	err = b.sendUpdate(m.Chat.ID, notify.FormatUpdate(title, res.Latest))
	if err != nil {
		b.log.Errorf("Error sending the last post of %s to chat %d: %s", res.Subscription.FeedURL, m.Chat.ID, err)
	}
}

// Returns the response for a subscription that failed
func subscribeErrorMessage(err error) string {
	var pe *feeds.ParseError
	switch {
	case errors.Is(err, feeds.ErrInvalidURL):
		return "Invalid URL: need an http or https address, such as \"/subscribe https://example.com/feed.xml\""
	case errors.Is(err, models.ErrAlreadySubscribed):
		return "This chat is already subscribed to the feed"
	case errors.As(err, &pe):
		return "The URL doesn't point to a valid RSS or Atom feed"
	case feeds.IsFetchFailure(err):
		return "Could not fetch the feed: please make sure the URL is correct and try again later"
	default:
		return "An internal error occurred"
	}
}
