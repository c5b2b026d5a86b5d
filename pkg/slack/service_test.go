package slack

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aion-systems/aion-core/pkg/model"
)

func TestService_NilReceiver(t *testing.T) {
	var s *Service

	t.Run("NotifyProposalCreated is no-op", func(_ *testing.T) {
		// Should not panic
		s.NotifyProposalCreated(context.Background(), model.Proposal{ID: "prop-1", Title: "t"})
	})
}

func TestNewService(t *testing.T) {
	t.Run("returns nil when token empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "", Channel: "C123"})
		assert.Nil(t, svc)
	})

	t.Run("returns nil when channel empty", func(t *testing.T) {
		svc := NewService(ServiceConfig{Token: "xoxb-test", Channel: ""})
		assert.Nil(t, svc)
	})

	t.Run("returns service when configured", func(t *testing.T) {
		svc := NewService(ServiceConfig{
			Token:        "xoxb-test",
			Channel:      "C123",
			DashboardURL: "https://example.com",
		})
		assert.NotNil(t, svc)
	})
}
