// Package display renders the terminal status views. Rendering is pure
// string building over the shared session state; the run loops only clear
// the screen and reprint, which is why playback logs go to a file instead.
package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/syncread/syncread/internal/protocol"
)

// Clear the screen and home the cursor.
const clearScreen = "\x1b[2J\x1b[1;1H"

const (
	clientRefresh = time.Second
	serverRefresh = 500 * time.Millisecond
)

// ClientView renders the participant roster from this client's perspective:
// its own row is marked and relative page positions are summarized. Minimal
// mode drops the roster and keeps only the relative summary.
type ClientView struct {
	Session *protocol.SessionState
	UserID  string
	Minimal bool
}

// Run reprints the view every second until ctx is cancelled.
func (v *ClientView) Run(ctx context.Context, w io.Writer) {
	ticker := time.NewTicker(clientRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, clearScreen+v.Render())
		}
	}
}

func (v *ClientView) Render() string {
	users := v.Session.UsersSorted()
	if len(users) == 0 {
		return ""
	}

	relative := relativePositions(users, v.UserID)
	var b strings.Builder

	if v.Minimal {
		fmt.Fprintf(&b, "🎬 SyncRead Client (%s) - Minimal Mode\n", v.UserID)
		b.WriteString(strings.Repeat("=", 40) + "\n")
		if relative != "" {
			b.WriteString(relative + "\n")
		} else {
			b.WriteString("📍 You are the only user connected\n")
		}
		b.WriteString(strings.Repeat("=", 40) + "\n")
	} else {
		fmt.Fprintf(&b, "🎬 SyncRead Client (%s) - %d users connected\n", v.UserID, len(users))
		b.WriteString(strings.Repeat("=", 60) + "\n")
		for _, u := range users {
			marker := "   "
			if u.UserID == v.UserID {
				marker = "👤 "
			}
			b.WriteString(marker + u.DisplayLine() + "\n")
		}
		b.WriteString(strings.Repeat("=", 60) + "\n")
		if relative != "" {
			b.WriteString(relative + "\n")
		}
	}

	b.WriteString("Press 'q' in MPV to quit, or Ctrl+C here\n")
	return b.String()
}

// relativePositions summarizes where this user stands page-wise against
// everyone else. Empty when alone or not yet in the roster.
func relativePositions(users []protocol.UserState, userID string) string {
	if len(users) <= 1 {
		return ""
	}

	var self *protocol.UserState
	for i := range users {
		if users[i].UserID == userID {
			self = &users[i]
			break
		}
	}
	if self == nil {
		return ""
	}

	var samePage []string
	var lines []string

	for _, u := range users {
		if u.UserID == userID {
			continue
		}
		diff := self.PlaylistPos - u.PlaylistPos
		switch {
		case diff == 0:
			samePage = append(samePage, u.UserID)
		case diff > 0:
			lines = append(lines, fmt.Sprintf("⬆️  You are %d %s ahead of %s", diff, pageWord(diff), u.UserID))
		default:
			lines = append(lines, fmt.Sprintf("⬇️  You are %d %s behind %s", -diff, pageWord(-diff), u.UserID))
		}
	}

	var messages []string
	if len(samePage) > 0 {
		messages = append(messages, "📍 You are on the same page as "+strings.Join(samePage, ", "))
	}
	messages = append(messages, lines...)
	return strings.Join(messages, "\n")
}

func pageWord(n int) string {
	if n == 1 {
		return "page"
	}
	return "pages"
}

// ServerView renders the authoritative roster plus the sync summary.
// Tolerance is the configured maximum position spread still reported as
// in sync.
type ServerView struct {
	Session   *protocol.SessionState
	Tolerance int
}

// Run reprints the view twice a second until ctx is cancelled.
func (v *ServerView) Run(ctx context.Context, w io.Writer) {
	ticker := time.NewTicker(serverRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, clearScreen+v.Render())
		}
	}
}

func (v *ServerView) Render() string {
	users := v.Session.UsersSorted()
	var b strings.Builder

	if len(users) == 0 {
		b.WriteString("🎬 SyncRead Server\n")
		b.WriteString(strings.Repeat("=", 60) + "\n")
		b.WriteString("Waiting for clients to connect...\n")
		b.WriteString("Run client with: syncread client --server <IP>:8080 --user-id <name> <files...>\n")
	} else {
		fmt.Fprintf(&b, "🎬 SyncRead Server - %s\n", v.Session.SyncSummary(v.Tolerance))
		b.WriteString(strings.Repeat("=", 60) + "\n")
		for _, u := range users {
			b.WriteString(u.DisplayLine() + "\n")
		}
		b.WriteString(strings.Repeat("=", 60) + "\n")
	}

	b.WriteString("\nPress Ctrl+C to stop the server\n")
	return b.String()
}
