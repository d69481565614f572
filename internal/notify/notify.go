package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrNoRecipient = errors.New("recipient has no address for this channel")

type Recipient struct {
	UserID uuid.UUID
	Email  string
	Phone  string
}

// Notification is a rendered alert. Details carries the insight numbers
// for senders that can show them.
type Notification struct {
	Recipient Recipient
	Subject   string
	Summary   string
	Details   map[string]any
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// SESService and SNSService are the client methods the senders use, so
// tests can substitute them.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SESSender delivers alerts by email.
type SESSender struct {
	client    SESService
	fromEmail string
}

func NewSESSender(client SESService, fromEmail string) *SESSender {
	return &SESSender{client: client, fromEmail: fromEmail}
}

func (s *SESSender) Send(ctx context.Context, n Notification) error {
	if n.Recipient.Email == "" {
		return ErrNoRecipient
	}
	subject := n.Subject
	if subject == "" {
		subject = "Holiday price alert"
	}
	body := renderText(n)
	_, err := s.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{n.Recipient.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(s.fromEmail),
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

// SNSSender delivers alerts by SMS.
type SNSSender struct {
	client SNSService
}

func NewSNSSender(client SNSService) *SNSSender {
	return &SNSSender{client: client}
}

func (s *SNSSender) Send(ctx context.Context, n Notification) error {
	if n.Recipient.Phone == "" {
		return ErrNoRecipient
	}
	_, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(n.Recipient.Phone),
		Message:     aws.String(n.Summary),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

// MultiSender fans a notification out to every sender that has an address
// for the recipient. The first real failure is returned.
type MultiSender struct {
	senders []Sender
}

func NewMultiSender(senders ...Sender) *MultiSender {
	return &MultiSender{senders: senders}
}

func (m *MultiSender) Send(ctx context.Context, n Notification) error {
	delivered := false
	var firstErr error
	for _, s := range m.senders {
		err := s.Send(ctx, n)
		switch {
		case err == nil:
			delivered = true
		case errors.Is(err, ErrNoRecipient):
		case firstErr == nil:
			firstErr = err
		}
	}
	if firstErr != nil {
		return firstErr
	}
	if !delivered {
		return ErrNoRecipient
	}
	return nil
}

// LogSender writes notifications to the log. Used in development.
type LogSender struct {
	log *logrus.Entry
}

func NewLogSender() *LogSender {
	return &LogSender{log: logrus.WithField("component", "notify")}
}

func (l *LogSender) Send(ctx context.Context, n Notification) error {
	l.log.WithFields(logrus.Fields{
		"user_id": n.Recipient.UserID,
		"email":   n.Recipient.Email,
		"phone":   n.Recipient.Phone,
		"details": n.Details,
	}).Info(n.Summary)
	return nil
}

// NewAWSSenders builds SES and SNS senders from the default AWS credential chain.
func NewAWSSenders(ctx context.Context, region, fromEmail string) (*SESSender, *SNSSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewSESSender(ses.NewFromConfig(cfg), fromEmail), NewSNSSender(sns.NewFromConfig(cfg)), nil
}

func renderText(n Notification) string {
	var b strings.Builder
	b.WriteString(n.Summary)
	b.WriteString("\n")
	if len(n.Details) > 0 {
		b.WriteString("\n")
		for _, k := range sortedKeys(n.Details) {
			fmt.Fprintf(&b, "%s: %v\n", k, n.Details[k])
		}
	}
	return b.String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
