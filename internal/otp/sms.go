package otp

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender delivers codes by SMS through the Twilio messaging API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender builds a Twilio-backed SMS sender.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: from}
}

// Send texts the code to the recipient. The provider call carries no
// deadline of its own; the surrounding request context bounds it.
func (s *TwilioSender) Send(_ context.Context, to, code string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(fmt.Sprintf("Your OTP for TradeXcel Registration is %s. It is valid for 10 minutes.", code))

	_, err := s.client.Api.CreateMessage(params)
	return err
}
