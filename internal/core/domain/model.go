package domain

import (
	"strings"
	"time"
	"unicode"
)

// Message is an inbound chat message as seen by the dispatcher. It is built
// once by the transport adapter and passed by value from there on.
type Message struct {
	ID           string
	Sender       string
	SenderName   string
	Conversation string
	IsGroup      bool
	Body         string
	ReceivedAt   time.Time
}

// Query returns the body with the command word removed, and the trigger word
// as well for group messages.
func (m Message) Query() string {
	skip := 1
	if m.IsGroup {
		skip = 2
	}

	return skipFields(m.Body, skip)
}

// Args splits Query into whitespace separated words.
func (m Message) Args() []string {
	return strings.Fields(m.Query())
}

func skipFields(s string, n int) string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	for range n {
		i := strings.IndexFunc(s, unicode.IsSpace)
		if i < 0 {
			return ""
		}
		s = strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}

	return strings.TrimRightFunc(s, unicode.IsSpace)
}

type ModelResponse struct {
	Response string
	Metadata ResponseMetadata
}

type ResponseMetadata struct {
	Model string
}
