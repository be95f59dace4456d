package services

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

type EmailService struct {
	Client *resend.Client
	From   string
	log    *zap.Logger
}

// NewEmailService returns nil when no Resend API key is configured; callers
// treat a nil service as "e-mail disabled".
func NewEmailService(apiKey, from string, log *zap.Logger) *EmailService {
	if apiKey == "" {
		log.Warn("RESEND_API_KEY is empty, payout e-mails disabled")
		return nil
	}
	log.Info("Email service initialized (Resend)", zap.String("from", from))
	return &EmailService{
		Client: resend.NewClient(apiKey),
		From:   from,
		log:    log,
	}
}

func (es *EmailService) Send(ctx context.Context, to, subject, htmlBody string) error {
	params := &resend.SendEmailRequest{
		From:    es.From,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	}

	sent, err := es.Client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	es.log.Info("Email sent", zap.String("to", to), zap.String("id", sent.Id))
	return nil
}

const payoutEmailTemplate = `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .amount-box { background-color: #f4f4f4; border: 2px dashed #28a745; padding: 20px; text-align: center; margin: 20px 0; border-radius: 5px; }
        .amount { font-size: 32px; font-weight: bold; color: #28a745; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h2>%s</h2>
        <p>%s</p>
        <div class="amount-box">
            <div class="amount">GHS %s</div>
        </div>
        <div class="footer">
            <p>This is an automated message, please do not reply.</p>
        </div>
    </div>
</body>
</html>
`

func payoutEmailBody(title, message, amount string) string {
	return fmt.Sprintf(payoutEmailTemplate, title, message, amount)
}
