package slack

import (
	"context"
	"log/slog"
	"time"

	"github.com/aion-systems/aion-core/pkg/model"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service delivers Proposal Manager notifications to Slack. Nil-safe: every
// method tolerates a nil receiver, the same contract proposal.Manager relies
// on for its optional ApprovalNotifier.
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyProposalCreated implements proposal.ApprovalNotifier. Fail-open:
// errors are logged, never returned, since a dropped Slack post must not
// block the Proposal itself from existing in "pending" state.
func (s *Service) NotifyProposalCreated(ctx context.Context, p model.Proposal) {
	if s == nil {
		return
	}

	threadTS, err := s.client.FindMessageByFingerprint(ctx, p.Title)
	if err != nil {
		s.logger.Warn("failed to find existing Slack thread for proposal",
			"proposal_id", p.ID, "error", err)
	}

	blocks := BuildProposalCreatedMessage(p, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 5*time.Second); err != nil {
		s.logger.Error("failed to send Slack proposal notification",
			"proposal_id", p.ID, "error", err)
	}
}
