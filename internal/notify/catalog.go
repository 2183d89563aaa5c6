package notify

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

type MessageKey string

const (
	MessageOncoming       MessageKey = "oncoming"
	MessageActivationOpen MessageKey = "activation_open"
	MessageEndingSoon     MessageKey = "ending_soon"
	MessageStatusReport   MessageKey = "status_report"
	MessageGuestInvite    MessageKey = "guest_invite"
)

type Message struct {
	Title string
	Body  string
}

var templates = map[language.Tag]map[MessageKey]Message{
	language.Russian: {
		MessageOncoming:       {"Скоро начало бронирования", "Ваше бронирование начнётся в %s. Не забудьте подтвердить присутствие."},
		MessageActivationOpen: {"Можно подтвердить бронирование", "Подтвердите бронирование до %s, иначе оно будет отменено."},
		MessageEndingSoon:     {"Бронирование скоро закончится", "Ваше бронирование закончится в %s."},
		MessageStatusReport:   {"Отчёт о бронированиях", "Принудительно завершено бронирований: %d. %s"},
		MessageGuestInvite:    {"Приглашение на встречу", "%s, вас пригласили на встречу с %s до %s."},
	},
	language.English: {
		MessageOncoming:       {"Your booking starts soon", "Your booking starts at %s. Remember to confirm your presence."},
		MessageActivationOpen: {"You can confirm your booking", "Confirm your booking before %s or it will be canceled."},
		MessageEndingSoon:     {"Your booking ends soon", "Your booking ends at %s."},
		MessageStatusReport:   {"Booking status report", "Bookings forced to end: %d. %s"},
		MessageGuestInvite:    {"Meeting invitation", "%s, you are invited to a meeting from %s to %s."},
	},
}

// TimeLayout is used for every timestamp rendered into a message.
const TimeLayout = "02.01.2006 15:04 MST"

// Catalog renders localized messages. Unknown locales fall back to the configured one.
type Catalog struct {
	supported []language.Tag
	matcher   language.Matcher
	fallback  language.Tag
}

func NewCatalog(fallback string) *Catalog {
	supported := []language.Tag{language.Russian, language.English}
	c := &Catalog{
		supported: supported,
		matcher:   language.NewMatcher(supported),
		fallback:  language.Russian,
	}
	c.fallback = c.match(fallback, language.Russian)
	return c
}

func (c *Catalog) match(locale string, otherwise language.Tag) language.Tag {
	if locale == "" {
		return otherwise
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return otherwise
	}
	_, idx, confidence := c.matcher.Match(tag)
	if confidence == language.No {
		return otherwise
	}
	return c.supported[idx]
}

// Locale resolves a requested locale to a supported base language such as "ru" or "en".
func (c *Catalog) Locale(locale string) string {
	base, _ := c.match(locale, c.fallback).Base()
	return base.String()
}

func (c *Catalog) Render(key MessageKey, locale string, args ...any) Message {
	tmpl := templates[c.match(locale, c.fallback)][key]
	return Message{Title: tmpl.Title, Body: fmt.Sprintf(tmpl.Body, args...)}
}

// FormatTime renders t for message bodies.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
