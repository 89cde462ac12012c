package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Query(t *testing.T) {
	type TestCase struct {
		description string
		message     Message
		want        string
	}

	testCases := []TestCase{
		{
			description: "direct message drops the command",
			message:     Message{Body: "remind in 10 minutes call mom"},
			want:        "in 10 minutes call mom",
		},
		{
			description: "group message drops trigger and command",
			message:     Message{Body: "BOT remind in 10 minutes", IsGroup: true},
			want:        "in 10 minutes",
		},
		{
			description: "inner spacing is kept",
			message:     Message{Body: "  ping   a  b  "},
			want:        "a  b",
		},
		{
			description: "empty on no args",
			message:     Message{Body: "ping"},
			want:        "",
		},
		{
			description: "empty on no input",
			message:     Message{Body: ""},
			want:        "",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			assert.Equal(t, testCase.want, testCase.message.Query())
		})
	}
}

func TestMessage_Args(t *testing.T) {
	msg := Message{Body: "BOT roll 2d6  + 3", IsGroup: true}
	assert.Equal(t, []string{"2d6", "+", "3"}, msg.Args())

	assert.Empty(t, Message{Body: "ping"}.Args())
}

func TestExitCode(t *testing.T) {
	code, ok := ExitCode(Exit(ExitRestart))
	assert.True(t, ok)
	assert.Equal(t, ExitRestart, code)

	_, ok = ExitCode(ErrHandlerFault)
	assert.False(t, ok)

	_, ok = ExitCode(nil)
	assert.False(t, ok)
}

func TestSentinelsWrapNotFound(t *testing.T) {
	assert.ErrorIs(t, ErrCommandNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrCommandDisabled, ErrNotFound)
	assert.ErrorIs(t, ErrJobNotFound, ErrNotFound)
}
