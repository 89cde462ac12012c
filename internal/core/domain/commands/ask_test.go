package commands

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
)

type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Answer(ctx context.Context, query string) (domain.ModelResponse, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(domain.ModelResponse), args.Error(1)
}

func TestAsk(t *testing.T) {
	tests := []struct {
		name      string
		alias     string
		msg       domain.Message
		setupMock func(m *MockAnswerer)
		wantReply string
	}{
		{
			name:  "answers",
			alias: "ASK",
			msg:   direct("1", "ask what is the capital of France"),
			setupMock: func(m *MockAnswerer) {
				m.On("Answer", mock.Anything, "what is the capital of France").
					Return(domain.ModelResponse{Response: "Paris."}, nil).Once()
			},
			wantReply: "Paris.",
		},
		{
			name:  "calc in group",
			alias: "CALC",
			msg:   group("1", "BOT calc 6 * 7"),
			setupMock: func(m *MockAnswerer) {
				m.On("Answer", mock.Anything, "6 * 7").
					Return(domain.ModelResponse{Response: "42"}, nil).Once()
			},
			wantReply: "42",
		},
		{
			name:      "empty question",
			alias:     "DEFINE",
			msg:       direct("1", "define"),
			setupMock: func(*MockAnswerer) {},
			wantReply: AskUsageReply,
		},
		{
			name:  "provider failure",
			alias: "ASK",
			msg:   direct("1", "ask anything"),
			setupMock: func(m *MockAnswerer) {
				m.On("Answer", mock.Anything, "anything").
					Return(domain.ModelResponse{}, errors.New("rate limited")).Once()
			},
			wantReply: AskFailedReply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answerer := new(MockAnswerer)
			tt.setupMock(answerer)

			registry := command.NewRegistry()
			require.NoError(t, NewAsk(answerer).Register(registry, event.NewBus()))

			reply, err := registry.Dispatch(t.Context(), tt.alias, tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.wantReply, reply)
			answerer.AssertExpectations(t)

			_, err = registry.Get(tt.alias)
			assert.NoError(t, err)
		})
	}
}

func TestAsk_RequiresProvider(t *testing.T) {
	registry := command.NewRegistry()

	loaded := command.LoadPlugins(registry, event.NewBus(), NewAsk(nil), NewDice())

	assert.Equal(t, []string{"dice"}, loaded)
	_, err := registry.Get("ask")
	assert.ErrorIs(t, err, domain.ErrCommandNotFound)
}
