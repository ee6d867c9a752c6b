// Package notify sends operator alerts for failed scan runs.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/serpwatch/rankscan/internal/rank"
)

// maxFailureLines caps how many per-keyword failures a single alert lists.
const maxFailureLines = 10

// Config captures the SMTP parameters for the email notifier.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// To is a comma-separated list of recipient addresses.
	To string
}

// EmailNotifier sends a plain-text alert email when a scan run fails.
type EmailNotifier struct {
	cfg    Config
	to     []string
	send   func(...*gomail.Message) error
	logger *zap.Logger
}

// NewEmailNotifier creates an EmailNotifier from SMTP config.
func NewEmailNotifier(cfg Config, logger *zap.Logger) (*EmailNotifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp port is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	to := splitAddresses(cfg.To)
	if len(to) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &EmailNotifier{
		cfg:    cfg,
		to:     to,
		send:   dialer.DialAndSend,
		logger: logger,
	}, nil
}

// NotifyRunFailed emails the run summary to the configured recipients.
func (n *EmailNotifier) NotifyRunFailed(ctx context.Context, summary rank.RunSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.From)
	m.SetHeader("To", n.to...)
	m.SetHeader("Subject", fmt.Sprintf("Rank scan run %s failed", summary.RunID))
	m.SetBody("text/plain", buildFailureBody(summary))

	if err := n.send(m); err != nil {
		return fmt.Errorf("send failure alert: %w", err)
	}
	n.logger.Info("sent run failure alert",
		zap.String("run_id", summary.RunID),
		zap.Strings("to", n.to),
	)
	return nil
}

func buildFailureBody(summary rank.RunSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scan run %s failed.\n\n", summary.RunID)
	if summary.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n\n", summary.Error)
	}
	fmt.Fprintf(&b, "Started:   %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Finished:  %s\n", summary.FinishedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Considered: %d\n", summary.Considered)
	fmt.Fprintf(&b, "Scanned:    %d\n", summary.Scanned)
	fmt.Fprintf(&b, "Appended:   %d\n", summary.Appended)
	fmt.Fprintf(&b, "Skipped:    %d\n", summary.Skipped)
	fmt.Fprintf(&b, "Failed:     %d\n", summary.Failed)
	fmt.Fprintf(&b, "Data errors: %d\n", summary.DataErrors)

	if len(summary.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		limit := len(summary.Failures)
		if limit > maxFailureLines {
			limit = maxFailureLines
		}
		for _, f := range summary.Failures[:limit] {
			fmt.Fprintf(&b, "  - keyword %s: %s\n", f.KeywordID, f.Reason)
		}
		if len(summary.Failures) > limit {
			fmt.Fprintf(&b, "  ... and %d more\n", len(summary.Failures)-limit)
		}
	}
	return b.String()
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}
