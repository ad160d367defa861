package bot

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/ItalyPaleAle/rss-notifier/feeds"
	"github.com/ItalyPaleAle/rss-notifier/models"
)

// Timeout for long polling requests
const pollTimeout = 10 * time.Second

// Default timeout for requests sent to Telegram
const DefaultTimeout = 10 * time.Second

// FeedService contains the operations on subscriptions the bot exposes
type FeedService interface {
	AddSubscription(ctx context.Context, feedURL string, chatID int64) (*feeds.SubscribeResult, error)
	RemoveSubscription(ctx context.Context, chatID int64, feedURL string) error
	ListSubscriptions(ctx context.Context, chatID int64) ([]models.Subscription, error)
	CheckSubscriber(ctx context.Context, chatID int64) (*feeds.PassReport, error)
}

// Subset of the telebot API used by the bot
type telegramAPI interface {
	Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error)
	Edit(msg tb.Editable, what interface{}, options ...interface{}) (*tb.Message, error)
	Handle(endpoint interface{}, handler interface{})
	Start()
	Stop()
}

// Options for New
type Options struct {
	AuthToken    string
	APIDebug     bool
	AllowedUsers map[int64]bool
	// Timeout for requests sent to Telegram
	Timeout time.Duration
}

// RSSBot is the class that manages the bot
type RSSBot struct {
	log   *logrus.Entry
	api   telegramAPI
	feeds FeedService
	ctx   context.Context
}

// New returns a new RSSBot, connected to Telegram
func New(feeds FeedService, opts Options) (*RSSBot, error) {
	b := &RSSBot{
		log:   logrus.WithField("component", "bot"),
		feeds: feeds,
		ctx:   context.Background(),
	}

	// "token" is the default value in the sample config file
	if opts.AuthToken == "" || opts.AuthToken == "token" {
		return nil, errors.New("Telegram auth key not set. Please make sure that the 'TelegramAuthToken' option is present in the config file, or use the 'BOT_TELEGRAMAUTHTOKEN' environmental variable")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	// Poller
	var poller tb.Poller = &tb.LongPoller{Timeout: pollTimeout}

	// Check if we're restricting the bot to certain users only
	if len(opts.AllowedUsers) > 0 {
		poller = tb.NewMiddlewarePoller(poller, b.allowedUsersMiddleware(opts.AllowedUsers))
	}

	// Create the bot object
	// The same client is used for long polling, so it must allow requests longer than the poll timeout
	api, err := tb.NewBot(tb.Settings{
		Token:   opts.AuthToken,
		Poller:  poller,
		Verbose: opts.APIDebug,
		Client: &http.Client{
			Timeout: pollTimeout + opts.Timeout,
		},
	})
	if err != nil {
		return nil, err
	}
	b.api = api

	// Handle messages
	b.handleMessages()

	return b, nil
}

// Start the bot
// This blocks until the context is canceled
func (b *RSSBot) Start(ctx context.Context) error {
	b.ctx = ctx

	go func() {
		<-ctx.Done()
		b.log.Info("Bot stopping")
		b.api.Stop()
	}()

	b.log.Info("Bot starting")
	b.api.Start()
	return nil
}

// Registers the functions that handle all messages
func (b *RSSBot) handleMessages() {
	b.api.Handle("/start", b.handleStart)
	b.api.Handle("/help", b.handleHelp)
	b.api.Handle("/subscribe", b.handleSubscribe)
	b.api.Handle("/add", b.handleSubscribe)
	b.api.Handle("/unsubscribe", b.handleUnsubscribe)
	b.api.Handle("/remove", b.handleUnsubscribe)
	b.api.Handle("/delete", b.handleUnsubscribe)
	b.api.Handle("/list", b.handleList)
	b.api.Handle("/check", b.handleCheck)

	// Handle text messages that weren't captured by other handlers
	b.api.Handle(tb.OnText, func(m *tb.Message) {
		// In groups, the bot sees all messages
		if !m.Private() {
			return
		}
		b.respondToCommand(m, "Sorry, I didn't quite get that 😔 Send /help if you need directions.", nil)
	})
}

// Sends a response to a command
// For commands sent in private chats, this just sends a regular message
// In groups, this replies to a specific message
func (b *RSSBot) respondToCommand(m *tb.Message, text string, opts *tb.SendOptions) (*tb.Message, error) {
	if opts == nil {
		opts = &tb.SendOptions{}
	}
	if !m.Private() {
		opts.ReplyTo = m
	}

	out, err := b.api.Send(m.Chat, text, opts)
	if err != nil {
		// Log errors only
		b.log.Errorf("Error sending message to chat %d: %s", m.Chat.ID, err)
		return nil, err
	}
	return out, nil
}

// Replaces the "working on it" message with the final response
// If that message couldn't be sent, the response is sent as a new message
func (b *RSSBot) editResponse(m *tb.Message, wm *tb.Message, text string, opts *tb.SendOptions) {
	if wm == nil {
		_, _ = b.respondToCommand(m, text, opts)
		return
	}
	if opts == nil {
		opts = &tb.SendOptions{}
	}
	_, err := b.api.Edit(wm, text, opts)
	if err != nil {
		b.log.Errorf("Error while editing message in chat %d: %s", m.Chat.ID, err)
	}
}

// Returns the poller middleware that only allows messages from users in the allowlist
func (b *RSSBot) allowedUsersMiddleware(list map[int64]bool) func(u *tb.Update) bool {
	return func(u *tb.Update) bool {
		if u.Message == nil {
			return true
		}

		// Restrict to certain users only
		if u.Message.Sender == nil || u.Message.Sender.ID == 0 || !list[u.Message.Sender.ID] {
			if u.Message.Sender == nil {
				b.log.Debug("Ignoring message from empty sender")
			} else {
				b.log.Infof("Ignoring message from disallowed sender: %d", u.Message.Sender.ID)
			}
			return false
		}

		return true
	}
}

// Send options for messages formatted with HTML
func htmlOpts() *tb.SendOptions {
	return &tb.SendOptions{
		ParseMode:             tb.ModeHTML,
		DisableWebPagePreview: true,
	}
}

// Implements the tb.Recipient interface
type msgRecipient struct {
	R string
}

// Recipient returns the recipient of the message
func (m msgRecipient) Recipient() string {
	return m.R
}

// Returns a msgRecipient object from a chatId
func recipientFromChatID(chatID int64) msgRecipient {
	return msgRecipient{strconv.FormatInt(chatID, 10)}
}
