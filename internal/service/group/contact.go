package group

import (
	"strings"

	"github.com/Domenick1991/deskbooking/internal/email"
	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

// ContactResolver decides how a guest can be reached. A contact is tried as an e-mail
// address first and as a phone number second.
type ContactResolver struct {
	validate *validator.Validate
	region   string
}

func NewContactResolver(defaultRegion string) *ContactResolver {
	return &ContactResolver{
		validate: validator.New(),
		region:   strings.ToUpper(defaultRegion),
	}
}

// Resolve returns the delivery channel and the normalized contact. Phone numbers come back
// in E.164 form. ok is false when the contact is neither.
func (r *ContactResolver) Resolve(contact string) (channel email.Channel, normalized string, ok bool) {
	contact = strings.TrimSpace(contact)
	if contact == "" {
		return "", "", false
	}
	if r.validate.Var(contact, "email") == nil {
		return email.ChannelEmail, strings.ToLower(contact), true
	}

	num, err := phonenumbers.Parse(contact, r.region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", "", false
	}
	return email.ChannelSMS, phonenumbers.Format(num, phonenumbers.E164), true
}
