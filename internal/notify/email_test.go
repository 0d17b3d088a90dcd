package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
)

func TestNewSendGridSenderNilWithoutAPIKey(t *testing.T) {
	if sender := NewSendGridSender(SendGridConfig{FromEmail: "vendas@example.com"}, nil); sender != nil {
		t.Fatalf("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSenderDefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "key", FromEmail: "vendas@example.com"}, nil)
	if sender == nil {
		t.Fatalf("expected sender")
	}
	if sender.fromName != defaultFromName {
		t.Fatalf("expected default from name, got %q", sender.fromName)
	}
}

func TestSendGridSenderNilClient(t *testing.T) {
	var sender *SendGridSender
	if err := sender.Send(context.Background(), EmailMessage{To: "a@example.com"}); err == nil {
		t.Fatalf("expected error for unconfigured sender")
	}
}

type stubSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (s *stubSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	s.input = params
	if s.err != nil {
		return nil, s.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSenderBuildsMessage(t *testing.T) {
	api := &stubSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "bot@example.com"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "vendas@example.com", Subject: "Oi", Body: "texto"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != "Atendimento Solar <bot@example.com>" {
		t.Fatalf("unexpected from %q", got)
	}
	if api.input.Content.Simple.Body.Html != nil || aws.ToString(api.input.Content.Simple.Body.Text.Data) != "texto" {
		t.Fatalf("unexpected body %+v", api.input.Content.Simple.Body)
	}
}

func TestSESSenderError(t *testing.T) {
	sender := NewSESSender(&stubSES{err: errors.New("throttled")}, SESConfig{FromEmail: "bot@example.com"}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "x@example.com"}); err == nil {
		t.Fatalf("expected error")
	}
	if NewSESSender(nil, SESConfig{FromEmail: "bot@example.com"}, nil) != nil {
		t.Fatalf("expected nil sender without client")
	}
}

func TestStubEmailSender(t *testing.T) {
	if err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "x@example.com"}); err != nil {
		t.Fatalf("stub sender should not fail: %v", err)
	}
}
