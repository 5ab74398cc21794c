package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// messageCreator is the part of the Twilio REST client used to send SMS.
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Twilio sends alerts as SMS to a fixed recipient.
type Twilio struct {
	From string
	To   string
	api  messageCreator
}

func NewTwilio(accountSID, authToken, from, to string) *Twilio {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Twilio{From: from, To: to, api: client.Api}
}

// Send creates one message. The Twilio client has no context support, so ctx
// is only checked before the request.
func (t *Twilio) Send(ctx context.Context, message string) error {
	if t.From == "" || t.To == "" {
		return errors.New("twilio from and to numbers are required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(t.To)
	params.SetFrom(t.From)
	params.SetBody(message)

	resp, err := t.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send failed: %w", err)
	}
	if resp != nil && resp.ErrorMessage != nil && *resp.ErrorMessage != "" {
		return fmt.Errorf("twilio rejected message: %s", *resp.ErrorMessage)
	}
	return nil
}
