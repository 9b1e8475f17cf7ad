package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/John-CFO/chronocraft-api/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailService defines the interface for security notification emails
type EmailService interface {
	SendMFAEnabledNotification(ctx context.Context, email, name string) error
	SendMFADisabledNotification(ctx context.Context, email, name string) error
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESEmailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendMFAEnabledNotification tells the user two-factor authentication was
// just turned on for their account.
func (s *AWSSESEmailService) SendMFAEnabledNotification(ctx context.Context, email, name string) error {
	subject := "Two-factor authentication enabled"
	textBody := fmt.Sprintf(`Hi %s,

Two-factor authentication was just enabled on your ChronoCraft account.
From now on, signing in requires a code from your authenticator app.

Keep your recovery codes somewhere safe. Each one can be used once if
you lose access to your authenticator.

If you did not set this up, contact support immediately.

This is an automated message. Please do not reply to this email.
`, name)

	return s.send(ctx, email, subject, textBody)
}

// SendMFADisabledNotification tells the user two-factor authentication
// was removed from their account.
func (s *AWSSESEmailService) SendMFADisabledNotification(ctx context.Context, email, name string) error {
	subject := "Two-factor authentication disabled"
	textBody := fmt.Sprintf(`Hi %s,

Two-factor authentication was just disabled on your ChronoCraft account.
Signing in now only requires your password.

If you did not make this change, contact support immediately and
re-enable two-factor authentication from your account settings.

This is an automated message. Please do not reply to this email.
`, name)

	return s.send(ctx, email, subject, textBody)
}

func (s *AWSSESEmailService) send(ctx context.Context, email, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("security notification sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("message_id", *result.MessageId))

	return nil
}

// NoopEmailService is used when email delivery is not configured
type NoopEmailService struct {
	logger *slog.Logger
}

// NewNoopEmailService creates an email service that only logs
func NewNoopEmailService(logger *slog.Logger) *NoopEmailService {
	return &NoopEmailService{logger: logger}
}

func (s *NoopEmailService) SendMFAEnabledNotification(ctx context.Context, email, name string) error {
	s.logger.Info("email delivery disabled, skipping MFA enabled notification",
		slog.String("email", logger.SanitizedEmail(email)))
	return nil
}

func (s *NoopEmailService) SendMFADisabledNotification(ctx context.Context, email, name string) error {
	s.logger.Info("email delivery disabled, skipping MFA disabled notification",
		slog.String("email", logger.SanitizedEmail(email)))
	return nil
}
