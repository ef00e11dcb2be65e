package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/autopay/internal/models"
	"github.com/BradenHooton/autopay/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Notifier tells an account holder about scheduled payment problems
type Notifier interface {
	NotifyMandatePaymentFailed(ctx context.Context, sender *models.Account, mandate *models.Mandate, reason string) error
}

// SESAPI is the subset of the SES client used for notices
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier sends notices through AWS SES
type SESNotifier struct {
	client      SESAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESNotifier loads the default AWS config for region
func NewSESNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func NewSESNotifierWithClient(client SESAPI, fromAddress string, logger *slog.Logger) *SESNotifier {
	return &SESNotifier{client: client, fromAddress: fromAddress, logger: logger}
}

func (n *SESNotifier) NotifyMandatePaymentFailed(ctx context.Context, sender *models.Account, mandate *models.Mandate, reason string) error {
	subject := "Scheduled payment failed"
	textBody := fmt.Sprintf(`Hello %s,

Your scheduled %s payment of %s (mandate %s) could not be completed.

Reason: %s

The mandate stays active and will be attempted again at its next scheduled date.
Please make sure your balance covers the payment.

This is an automated message. Please do not reply to this email.
`, sender.Name, mandate.Frequency, mandate.AmountMax, mandate.ID, reason)

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <h2>Scheduled payment failed</h2>
    <p>Hello %s,</p>
    <p>Your scheduled <strong>%s</strong> payment of <strong>%s</strong> (mandate <code>%s</code>) could not be completed.</p>
    <p>Reason: %s</p>
    <p>The mandate stays active and will be attempted again at its next scheduled date.</p>
    <p style="color: #666; font-size: 12px;">This is an automated message. Please do not reply to this email.</p>
</body>
</html>
`, sender.Name, mandate.Frequency, mandate.AmountMax, mandate.ID, reason)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{sender.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send payment failure notice via SES",
			slog.String("email", logger.SanitizedEmail(sender.Email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("payment failure notice sent",
		slog.String("email", logger.SanitizedEmail(sender.Email)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogNotifier only logs. Used when SES is not configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyMandatePaymentFailed(_ context.Context, sender *models.Account, mandate *models.Mandate, reason string) error {
	n.logger.Info("mandate payment failed notice",
		slog.String("account_id", sender.ID),
		slog.String("mandate_id", mandate.ID),
		slog.String("reason", reason))
	return nil
}
