package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/prok/internal/models"
	pkglogger "github.com/BradenHooton/prok/pkg/logger"
)

// LockoutNotifier tells an account holder that their login was locked
type LockoutNotifier interface {
	NotifyLockout(ctx context.Context, account *models.Account, until time.Time) error
}

// SESAPI is the slice of the SES client the notifier uses
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESLockoutNotifier sends lockout notices through AWS SES
type SESLockoutNotifier struct {
	client      SESAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESLockoutNotifier loads the default AWS credential chain for region
func NewSESLockoutNotifier(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESLockoutNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSESLockoutNotifierWithClient(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func NewSESLockoutNotifierWithClient(client SESAPI, fromAddress string, logger *slog.Logger) *SESLockoutNotifier {
	return &SESLockoutNotifier{
		client:      client,
		fromAddress: fromAddress,
		logger:      logger,
	}
}

func (n *SESLockoutNotifier) NotifyLockout(ctx context.Context, account *models.Account, until time.Time) error {
	untilText := until.UTC().Format("15:04 MST on Jan 2, 2006")

	textBody := fmt.Sprintf(`Hi %s,

We noticed several failed sign-in attempts on your account and have paused sign-ins until %s.

If this was you, wait until then and try again.
If it was not you, consider changing your password once you can sign in.

This is an automated message. Please do not reply to this email.
`, displayName(account), untilText)

	input := &ses.SendEmailInput{
		Source: aws.String(n.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{account.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String("Sign-in temporarily locked"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		n.logger.Error("failed to send lockout notice via SES",
			slog.String("email", pkglogger.SanitizedEmail(account.Email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Info("lockout notice sent",
		slog.String("account_id", account.ID),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// NoopLockoutNotifier discards notices; used when no sender address is configured
type NoopLockoutNotifier struct{}

func (NoopLockoutNotifier) NotifyLockout(ctx context.Context, account *models.Account, until time.Time) error {
	return nil
}

func displayName(account *models.Account) string {
	if account.Name != "" {
		return account.Name
	}
	return account.Username
}
