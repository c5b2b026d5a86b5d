package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/aion-systems/aion-core/pkg/apperr"
	"github.com/aion-systems/aion-core/pkg/custody"
	"github.com/aion-systems/aion-core/pkg/model"
)

// custodyAnalyticsWindow bounds how many recent cycles/scores feed the
// aggregate analytics view; large enough for a meaningful distribution
// without scanning the whole history on every request.
const custodyAnalyticsWindow = 50

// custodyTestHandler handles POST /custody/test. The cycle itself always
// runs through the Scheduler's manual-trigger path (spec §8 invariant 2 is
// kept by the Custody Engine's per-kind in-flight guard), so this mints the
// cycle_id synchronously and hands the request off; it answers a conflict
// when a manual trigger is already queued for the kind.
func (s *Server) custodyTestHandler(c *echo.Context) error {
	var req custodyTestRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
	}
	kind := model.AgentKind(req.Kind)
	if !kind.Valid() {
		return writeErr(c, apperr.New(apperr.KindValidation, "unknown agent kind"))
	}

	opts := custody.TriggerOptions{}
	if req.Category != nil {
		cat := model.Category(*req.Category)
		opts.Category = &cat
	}
	if req.Complexity != nil {
		comp := model.Complexity(*req.Complexity)
		opts.Complexity = &comp
	}
	cycleID := uuid.NewString()
	opts.CycleID = &cycleID

	if !s.scheduler.Trigger(kind, opts) {
		return writeErr(c, apperr.New(apperr.KindConflict, "a manual trigger is already queued for this kind"))
	}
	return c.JSON(http.StatusAccepted, map[string]string{"cycle_id": cycleID})
}

// custodyAnalyticsHandler handles GET /custody/analytics?kind=.
func (s *Server) custodyAnalyticsHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	kind, err := parseKindQuery(c)
	if err != nil {
		return writeErr(c, err)
	}

	scores, err := s.store.ScoreRecent(ctx, kind, custodyAnalyticsWindow)
	if err != nil {
		return writeErr(c, err)
	}
	cycles, err := s.store.CycleRecent(ctx, kind, custodyAnalyticsWindow)
	if err != nil {
		return writeErr(c, err)
	}

	passCount := 0
	recentOverall := make([]float64, 0, len(scores))
	for _, sc := range scores {
		recentOverall = append(recentOverall, sc.Overall)
		if sc.Passed {
			passCount++
		}
	}
	passRate := 0.0
	if len(scores) > 0 {
		passRate = float64(passCount) / float64(len(scores))
	}

	dist := make(map[string]int)
	for _, cy := range cycles {
		if cat := categoryFromNotes(cy.Notes); cat != "" {
			dist[cat]++
		}
	}

	return c.JSON(http.StatusOK, custodyAnalyticsResponse{
		AgentKind:            string(kind),
		PassRate:             passRate,
		RecentScores:         recentOverall,
		CategoryDistribution: dist,
	})
}

// categoryFromNotes extracts the "category=X" token the Custody Engine
// stamps onto a successful cycle's Notes field, the only place a cycle's
// chosen Category is recorded (spec §4.8 point 5's free-text summary).
func categoryFromNotes(notes string) string {
	for _, field := range strings.Fields(notes) {
		if v, ok := strings.CutPrefix(field, "category="); ok {
			return v
		}
	}
	return ""
}

func parseKindQuery(c *echo.Context) (model.AgentKind, error) {
	raw := c.QueryParam("kind")
	kind := model.AgentKind(raw)
	if !kind.Valid() {
		return "", apperr.New(apperr.KindValidation, "unknown or missing agent kind")
	}
	return kind, nil
}
