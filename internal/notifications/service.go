package notifications

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mikroblog/discussions/internal/config"
	"github.com/mikroblog/discussions/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// Service sends run summaries via the configured channels: a JSON webhook
// and/or plain email. Both are optional; with neither configured the summary
// only lands in the log.
type Service struct {
	config *config.Config
	client *resty.Client
}

// Ensure Service implements Interface
var _ Interface = (*Service)(nil)

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
}

// SendRunSummary delivers the summary of one completed pipeline run.
func (s *Service) SendRunSummary(summary *models.RunSummary) error {
	logrus.Infof("Run %s over %d-%d kept %d of %d discussions",
		summary.Mode, summary.IDStart, summary.IDEnd, summary.Kept, summary.Fetched)

	var errors []string

	if s.config.WebhookURL != "" {
		if err := s.sendWebhook(summary); err != nil {
			logrus.Errorf("Failed to send webhook notification: %v", err)
			errors = append(errors, fmt.Sprintf("webhook: %v", err))
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(summary); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("email: %v", err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendWebhook(summary *models.RunSummary) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(summary).
		Post(s.config.WebhookURL)

	if err != nil {
		return fmt.Errorf("failed to post summary: %w", err)
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	return nil
}

func (s *Service) sendEmail(summary *models.RunSummary) error {
	subject := fmt.Sprintf("Discussions %s run %d-%d: %d kept",
		summary.Mode, summary.IDStart, summary.IDEnd, summary.Kept)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", buildEmailBody(summary))

	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func buildEmailBody(summary *models.RunSummary) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Mode:     %s\n", summary.Mode)
	fmt.Fprintf(&sb, "Range:    %d-%d\n", summary.IDStart, summary.IDEnd)
	fmt.Fprintf(&sb, "Fetched:  %d discussions\n", summary.Fetched)
	fmt.Fprintf(&sb, "Kept:     %d discussions\n", summary.Kept)
	fmt.Fprintf(&sb, "Started:  %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "Duration: %s\n", summary.Duration.Round(time.Second))

	if len(summary.ByQuality) > 0 {
		sb.WriteString("\nBy quality tier:\n")

		tiers := make([]string, 0, len(summary.ByQuality))
		for tier := range summary.ByQuality {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)

		for _, tier := range tiers {
			fmt.Fprintf(&sb, "  %-18s %d\n", tier, summary.ByQuality[tier])
		}
	}

	return sb.String()
}
