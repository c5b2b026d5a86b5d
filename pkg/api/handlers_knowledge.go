package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/aion-systems/aion-core/pkg/model"
)

// defaultKnowledgeLimit bounds an unpaginated query response.
const defaultKnowledgeLimit = 100

// knowledgeQueryHandler handles GET /knowledge?owner=&label=&limit=.
func (s *Server) knowledgeQueryHandler(c *echo.Context) error {
	var owner *model.AgentKind
	if raw := c.QueryParam("owner"); raw != "" {
		k := model.AgentKind(raw)
		owner = &k
	}
	var label *model.PatternLabel
	if raw := c.QueryParam("label"); raw != "" {
		l := model.PatternLabel(raw)
		label = &l
	}
	limit := defaultKnowledgeLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	patterns, err := s.knowledge.Query(c.Request().Context(), owner, label, limit)
	if err != nil {
		return writeErr(c, err)
	}
	views := make([]knowledgePatternView, 0, len(patterns))
	for _, p := range patterns {
		views = append(views, newKnowledgePatternView(p))
	}
	return c.JSON(http.StatusOK, views)
}
