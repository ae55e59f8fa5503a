package devserver

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/youruser/chatc/internal/api"
)

// ReplyFunc produces the AI reply to message given the conversation so far.
type ReplyFunc func(history []api.Message, message string) string

// EchoReply answers deterministically, which keeps integration tests exact.
func EchoReply(history []api.Message, message string) string {
	turn := 1
	for _, m := range history {
		if m.Sender == api.SenderUser {
			turn++
		}
	}
	return fmt.Sprintf("You said: %s (turn %d)", strings.TrimSpace(message), turn)
}

// splitWords breaks s into pieces that concatenate back to s. Each piece is
// a word with its trailing whitespace.
func splitWords(s string) []string {
	var (
		pieces []string
		start  int
		inWord bool
	)
	for i, r := range s {
		space := unicode.IsSpace(r)
		if !space && !inWord && i > start {
			pieces = append(pieces, s[start:i])
			start = i
		}
		inWord = !space
	}
	if start < len(s) {
		pieces = append(pieces, s[start:])
	}
	return pieces
}
