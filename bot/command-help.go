package bot

import (
	tb "gopkg.in/tucnak/telebot.v2"
)

const helpMessage = `Available commands:
/subscribe <url> - Subscribe this chat to a feed
/list - List all feeds this chat is subscribed to
/unsubscribe <number|url> - Remove a subscription
/check - Check the feeds of this chat for new posts now
/help - Show this message`

// Handles /help commands
func (b *RSSBot) handleHelp(m *tb.Message) {
	b.respondToCommand(m, helpMessage, &tb.SendOptions{
		DisableWebPagePreview: true,
	})
}
