// Package notify announces newly created incident tickets.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
)

// Message describes a created incident.
type Message struct {
	TicketKey string
	TicketURL string
	Summary   string
	Source    string
	Owner     string
	RunURL    string
	Mode      string
}

// Text renders m as Slack mrkdwn.
func (m Message) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, ":rotating_light: *New incident %s*: %s", m.TicketKey, m.Summary)
	fmt.Fprintf(&sb, "\n*Source:* %s", m.Source)
	if m.Owner != "" {
		fmt.Fprintf(&sb, "\n*Owner:* %s", m.Owner)
	}
	if m.TicketURL != "" {
		fmt.Fprintf(&sb, "\n*Ticket:* %s", m.TicketURL)
	}
	if m.RunURL != "" {
		fmt.Fprintf(&sb, "\n*Run:* %s", m.RunURL)
	}
	if m.Mode != "" && m.Mode != "network" {
		fmt.Fprintf(&sb, "\n_recorded locally (%s mode)_", m.Mode)
	}
	return sb.String()
}

// SlackConfig configures the Slack notifier. APIURL overrides the Web API base, which
// tests point at an httptest server.
type SlackConfig struct {
	Token   string
	Channel string
	APIURL  string
}

// Enabled reports whether both token and channel are set.
func (c SlackConfig) Enabled() bool {
	return c.Token != "" && c.Channel != ""
}

// Slack posts incident messages to one channel.
type Slack struct {
	client  *slack.Client
	channel string
	logger  *slog.Logger
}

// NewSlack returns nil when cfg is not enabled; a nil *Slack ignores notifications.
func NewSlack(cfg SlackConfig, logger *slog.Logger) *Slack {
	if !cfg.Enabled() {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	var options []slack.Option
	if cfg.APIURL != "" {
		options = append(options, slack.OptionAPIURL(strings.TrimRight(cfg.APIURL, "/")+"/"))
	}
	return &Slack{client: slack.New(cfg.Token, options...), channel: cfg.Channel, logger: logger}
}

// NotifyCreated posts m. Errors are returned for the caller to log; they never affect
// the ticket.
func (s *Slack) NotifyCreated(ctx context.Context, m Message) error {
	if s == nil {
		return nil
	}
	_, ts, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(m.Text(), false))
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	s.logger.Debug("incident announced", slog.String("channel", s.channel), slog.String("ts", ts))
	return nil
}
