package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/lead-pipeline/internal/config"
	"github.com/wolfman30/lead-pipeline/internal/messaging"
	"github.com/wolfman30/lead-pipeline/internal/notify"
	"github.com/wolfman30/lead-pipeline/pkg/logging"
)

// BuildOutboundSender returns the WhatsApp gateway sender, or a log-only sender when the
// gateway is not configured. The second value names the provider.
func BuildOutboundSender(cfg *appconfig.Config, logger *logging.Logger) (messaging.Sender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil || strings.TrimSpace(cfg.WhatsAppAPIURL) == "" || strings.TrimSpace(cfg.WhatsAppInstance) == "" {
		logger.Warn("whatsapp gateway not configured; outbound replies are only logged")
		return messaging.NewLogSender(logger), "log"
	}
	return messaging.NewWhatsAppSender(cfg.WhatsAppAPIURL, cfg.WhatsAppAPIKey, cfg.WhatsAppInstance, logger), "whatsapp"
}

// BuildEmailSender prefers SendGrid, then SES, then a stub that only logs.
func BuildEmailSender(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		logger.Info("handoff email via sendgrid")
		return sg
	}
	if strings.TrimSpace(cfg.SESFromEmail) != "" {
		if ses := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); ses != nil {
			logger.Info("handoff email via ses")
			return ses
		}
	}
	return notify.NewStubEmailSender(logger)
}
