package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"shelf/internal/events"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

var at = time.Date(2025, 7, 21, 9, 30, 0, 0, time.UTC)

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		event events.Event
		want  string
	}{
		{
			name: "transition",
			event: events.Event{
				Type: events.BookingReserved, BookingID: "b1", BookingName: "Shoot",
				ActorID: "u1", FromStatus: "DRAFT", ToStatus: "RESERVED", CreatedAt: at,
			},
			want: "Booking reserved: Shoot\nDRAFT → RESERVED\nBy: u1\n2025-07-21 09:30:00 UTC",
		},
		{
			name: "partial check-in without name",
			event: events.Event{
				Type: events.BookingPartialCheckin, BookingID: "b1",
				FromStatus: "ONGOING", ToStatus: "ONGOING", AssetIDs: []string{"a1", "a2"}, CreatedAt: at,
			},
			want: "Assets returned: b1\nAssets: 2\n2025-07-21 09:30:00 UTC",
		},
		{
			name:  "silent event",
			event: events.Event{Type: events.BookingUpdated, BookingID: "b1", CreatedAt: at},
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.event))
		})
	}
}

func TestHandleSends(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 42 && msg.Text != ""
	})).Return(tgbotapi.Message{}, nil).Once()

	n := NewTelegram(sender, 42, 0, 0, zerolog.Nop())
	err := n.Handle(context.Background(), events.Event{Type: events.BookingOverdue, BookingID: "b1", CreatedAt: at})
	assert.NoError(t, err)
	sender.AssertExpectations(t)
}

func TestHandleSkipsSilentEvents(t *testing.T) {
	sender := &mockSender{}
	n := NewTelegram(sender, 42, 0, 0, zerolog.Nop())
	assert.NoError(t, n.Handle(context.Background(), events.Event{Type: events.BookingCreated, BookingID: "b1"}))
	sender.AssertNotCalled(t, "Send", mock.Anything)
}

func TestHandleSwallowsSendError(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("chat not found"))

	n := NewTelegram(sender, 42, 0, 0, zerolog.Nop())
	assert.NoError(t, n.Handle(context.Background(), events.Event{Type: events.BookingCancelled, BookingID: "b1"}))
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestHandleDropsOverRateLimit(t *testing.T) {
	sender := &mockSender{}
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)
	n := NewTelegram(sender, 42, 0.001, 1, zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	for _, id := range []string{"b1", "b2", "b3"} {
		assert.NoError(t, n.Handle(ctx, events.Event{Type: events.BookingCancelled, BookingID: id}))
	}
	// The bucket refills in ~16 minutes; waiting for it would stall the bus.
	assert.Less(t, time.Since(start), time.Second)
	sender.AssertNumberOfCalls(t, "Send", 1)
}
