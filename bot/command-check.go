package bot

import (
	"fmt"
	"strings"

	tb "gopkg.in/tucnak/telebot.v2"
)

// Handles /check commands, checking the feeds of the chat right away
func (b *RSSBot) handleCheck(m *tb.Message) {
	wm, _ := b.respondToCommand(m, "Checking your feeds…", nil)

	// New posts are sent while the check is running
	report, err := b.feeds.CheckSubscriber(b.ctx, m.Chat.ID)
	if err != nil {
		b.editResponse(m, wm, "An internal error occurred", nil)
		return
	}
	if report.Feeds == 0 {
		b.editResponse(m, wm, "This chat isn't subscribed to any feed. Use \"/subscribe <url>\" to add one.", nil)
		return
	}

	out := strings.Builder{}
	switch report.NewEntries {
	case 0:
		out.WriteString("Feed check completed: no new posts")
	case 1:
		out.WriteString("Feed check completed: found 1 new post")
	default:
		fmt.Fprintf(&out, "Feed check completed: found %d new posts", report.NewEntries)
	}
	if len(report.Failed) > 0 {
		out.WriteString("\n\nThese feeds could not be checked:")
		for _, f := range report.Failed {
			out.WriteString("\n" + f.URL)
		}
	}
	b.editResponse(m, wm, out.String(), &tb.SendOptions{
		DisableWebPagePreview: true,
	})
}
