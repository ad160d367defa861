package bot

import (
	"context"
	"strings"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/ItalyPaleAle/rss-notifier/notify"
)

// Send delivers a notification to a chat
// The request is abandoned when the context is canceled, although telebot doesn't stop it
func (b *RSSBot) Send(ctx context.Context, recipient int64, msg *notify.Message) error {
	done := make(chan error, 1)
	go func() {
		done <- b.sendUpdate(recipient, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sends a message with a feed's entry
func (b *RSSBot) sendUpdate(chatID int64, msg *notify.Message) error {
	to := recipientFromChatID(chatID)

	// If there's a photo, send the photo and then the message as caption
	// Note that this might fail, for example if the image is too big (>5MB)
	if msg.Photo != "" {
		_, err := b.api.Send(to, &tb.Photo{
			File:    tb.FromURL(msg.Photo),
			Caption: msg.Text,
		}, htmlOpts())
		if err == nil {
			return nil
		}
		if !isPhotoError(err) {
			return err
		}

		// Re-send the message without any photo
		b.log.Warnf("Error sending photo %s to chat %d. Is the photo too big? Will re-send message without photo: %s", msg.Photo, chatID, err)
	}

	_, err := b.api.Send(to, msg.Text, htmlOpts())
	return err
}

// Returns true if Telegram couldn't use the photo at the URL
func isPhotoError(err error) bool {
	str := err.Error()
	return strings.Contains(str, "wrong file identifier/HTTP URL specified") ||
		strings.Contains(str, "failed to get HTTP URL content") ||
		strings.Contains(str, "wrong type of the web page content")
}
