package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/deskbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func TestCatalog_Locale(t *testing.T) {
	c := NewCatalog("ru")

	testCases := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"en-GB", "en"},
		{"ru-RU", "ru"},
		{"", "ru"},
		{"not a tag!", "ru"},
		{"ja", "ru"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, c.Locale(tc.in), tc.in)
	}

	assert.Equal(t, "en", NewCatalog("en").Locale("ja"))
}

func TestCatalog_Render(t *testing.T) {
	c := NewCatalog("ru")
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	msg := c.Render(MessageEndingSoon, "en", FormatTime(at))
	assert.Equal(t, "Your booking ends soon", msg.Title)
	assert.Equal(t, "Your booking ends at 02.03.2026 10:00 UTC.", msg.Body)

	ru := c.Render(MessageEndingSoon, "", FormatTime(at))
	assert.Equal(t, "Бронирование скоро закончится", ru.Title)
}

func TestKafkaNotifier_Send(t *testing.T) {
	producer := &MockProducer{}
	n := NewKafkaNotifier(producer, "notifications")

	producer.On("Publish", mock.Anything, "notifications", "u1", mock.AnythingOfType("notify.Notification")).Return(nil).Once()
	assert.NoError(t, n.Send(context.Background(), Notification{AccountID: "u1", Title: "t"}))

	producer.On("Publish", mock.Anything, "notifications", "u2", mock.Anything).Return(errors.New("broker down")).Once()
	err := n.Send(context.Background(), Notification{AccountID: "u2"})

	var tErr *domain.TransportError
	assert.True(t, errors.As(err, &tErr))
	assert.Equal(t, "notification", tErr.Channel)
	producer.AssertExpectations(t)
}
