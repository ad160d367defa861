package bot

import (
	tb "gopkg.in/tucnak/telebot.v2"
)

// Handles /start commands
func (b *RSSBot) handleStart(m *tb.Message) {
	// Send the welcome message
	b.respondToCommand(m, "👋 Welcome! I can send you the new posts of RSS and Atom feeds.", nil)

	// Send the help message too
	b.handleHelp(m)
}
