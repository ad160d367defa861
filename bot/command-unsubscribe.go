package bot

import (
	"errors"
	"fmt"
	"strconv"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/ItalyPaleAle/rss-notifier/feeds"
	"github.com/ItalyPaleAle/rss-notifier/models"
)

// Handles /unsubscribe commands
// The argument is either the number of the subscription in /list or the feed's URL
func (b *RSSBot) handleUnsubscribe(m *tb.Message) {
	// Get args
	args := GetArgs(m.Payload)
	if len(args) != 1 || args[0] == "" {
		b.respondToCommand(m, "Invalid arguments: need \"/unsubscribe <number>\" or \"/unsubscribe <url>\"", nil)
		return
	}

	feedURL := args[0]
	name := feedURL
	if num, err := strconv.Atoi(args[0]); err == nil {
		if num < 1 {
			b.respondToCommand(m, "Invalid arguments: need \"/unsubscribe <number>\" or \"/unsubscribe <url>\"", nil)
			return
		}

		// Get the list of subscriptions
		subs, err := b.feeds.ListSubscriptions(b.ctx, m.Chat.ID)
		if err != nil {
			b.respondToCommand(m, "An internal error occurred", nil)
			return
		}

		// Check if the subscription exists
		if num > len(subs) {
			b.respondToCommand(m, "Subscription not found. Use /list to see the feeds this chat is subscribed to.", nil)
			return
		}
		feedURL = subs[num-1].FeedURL
		name = feedURL
		if subs[num-1].FeedTitle != "" {
			name = subs[num-1].FeedTitle
		}
	}

	// Delete the subscription
	err := b.feeds.RemoveSubscription(b.ctx, m.Chat.ID, feedURL)
	switch {
	case errors.Is(err, feeds.ErrInvalidURL):
		b.respondToCommand(m, "Invalid arguments: need \"/unsubscribe <number>\" or \"/unsubscribe <url>\"", nil)
	case errors.Is(err, models.ErrSubscriptionNotFound):
		b.respondToCommand(m, "Subscription not found. Use /list to see the feeds this chat is subscribed to.", nil)
	case err != nil:
		// Error is already logged
		b.respondToCommand(m, "An internal error occurred", nil)
	default:
		b.respondToCommand(m, fmt.Sprintf("Done, I've removed the subscription to %s", name), &tb.SendOptions{
			DisableWebPagePreview: true,
		})
	}
}
