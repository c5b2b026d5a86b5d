package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/aion-systems/aion-core/pkg/apperr"
	"github.com/aion-systems/aion-core/pkg/custody"
	"github.com/aion-systems/aion-core/pkg/model"
)

// parseKind validates the :kind path param against the closed AgentKind set.
func parseKind(c *echo.Context) (model.AgentKind, error) {
	kind := model.AgentKind(c.Param("kind"))
	if !kind.Valid() {
		return "", apperr.New(apperr.KindValidation, "unknown agent kind")
	}
	return kind, nil
}

// agentsStatusHandler handles GET /agents/status.
func (s *Server) agentsStatusHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	views := make([]agentStatusView, 0, len(model.AllAgentKinds))
	for _, kind := range model.AllAgentKinds {
		m, err := s.store.MetricsGet(ctx, kind)
		if err != nil {
			return writeErr(c, err)
		}
		views = append(views, agentStatusView{
			Kind:          string(m.Kind),
			Status:        string(m.Status),
			Level:         m.Level,
			XP:            m.XP,
			LearningScore: m.LearningScore,
			SuccessRate:   m.SuccessRate,
			LastCycleAt:   m.LastCycleAt,
		})
	}
	return c.JSON(http.StatusOK, agentsStatusResponse{Agents: views})
}

// agentPauseHandler handles POST /agents/{kind}/pause.
func (s *Server) agentPauseHandler(c *echo.Context) error {
	kind, err := parseKind(c)
	if err != nil {
		return writeErr(c, err)
	}
	if err := s.scheduler.Pause(c.Request().Context(), kind); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// agentResumeHandler handles POST /agents/{kind}/resume.
func (s *Server) agentResumeHandler(c *echo.Context) error {
	kind, err := parseKind(c)
	if err != nil {
		return writeErr(c, err)
	}
	if err := s.scheduler.Resume(c.Request().Context(), kind); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// agentTriggerHandler handles POST /agents/{kind}/trigger: queues a custody
// cycle on the Scheduler's manual-trigger path and answers 202 with its
// cycle_id, bypassing cadence but not the Custody Engine's own per-kind
// in-flight guard. A conflict is returned when a trigger is already queued.
func (s *Server) agentTriggerHandler(c *echo.Context) error {
	kind, err := parseKind(c)
	if err != nil {
		return writeErr(c, err)
	}
	cycleID := uuid.NewString()
	if !s.scheduler.Trigger(kind, custody.TriggerOptions{CycleID: &cycleID}) {
		return writeErr(c, apperr.New(apperr.KindConflict, "a manual trigger is already queued for this kind"))
	}
	return c.JSON(http.StatusAccepted, map[string]string{"cycle_id": cycleID})
}
