package sms

import (
	"context"
	"errors"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type Sender interface {
	Send(ctx context.Context, to string, body string) error
	ProviderID() string
}

// MessageCreator is the slice of the Twilio REST client the sender uses.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type TwilioSender struct {
	api  MessageCreator
	from string
}

func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{api: client.Api, from: strings.TrimSpace(from)}
}

func (s *TwilioSender) ProviderID() string {
	return "twilio"
}

// Send posts one SMS. Numbers starting with "whatsapp:" are routed through the WhatsApp sender.
func (s *TwilioSender) Send(ctx context.Context, to string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("sms recipient is empty")
	}
	from := s.from
	if strings.HasPrefix(to, "whatsapp:") && !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)
	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return err
	}
	if resp.ErrorMessage != nil && *resp.ErrorMessage != "" {
		return errors.New(*resp.ErrorMessage)
	}
	return nil
}

type NoopSender struct{}

func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

func (s *NoopSender) ProviderID() string {
	return "sms-noop"
}

func (s *NoopSender) Send(_ context.Context, _ string, _ string) error {
	return nil
}
