package api

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/aion-systems/aion-core/pkg/model"
)

var allProviders = []model.Provider{model.Primary, model.Secondary}

// tokensUsageHandler handles GET /tokens/usage?agent=&month= (spec §6.1):
// returns both providers' aggregates for the agent, since a request spend
// may fall back from Primary to Secondary mid-cycle. month defaults to the
// current UTC month when omitted.
func (s *Server) tokensUsageHandler(c *echo.Context) error {
	ctx := c.Request().Context()

	kind, err := parseKindQuery(c)
	if err != nil {
		return writeErr(c, err)
	}
	month := c.QueryParam("month")
	if month == "" {
		month = time.Now().UTC().Format("2006-01")
	}

	out := make([]tokenUsageResponse, 0, len(allProviders))
	for _, provider := range allProviders {
		usage, err := s.store.TokenAggregate(ctx, kind, provider, month)
		if err != nil {
			return writeErr(c, err)
		}
		pct, err := s.ledger.UsagePct(ctx, kind, provider, month)
		if err != nil {
			return writeErr(c, err)
		}
		out = append(out, tokenUsageResponse{
			AgentKind:    string(kind),
			Provider:     string(provider),
			Month:        month,
			TokensTotal:  usage.TokensTotal,
			RequestCount: usage.RequestCount,
			UsagePct:     pct,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// tokensResetHandler handles POST /tokens/reset (admin): archives every
// ledger entry outside the current month (spec §6.1).
func (s *Server) tokensResetHandler(c *echo.Context) error {
	if err := s.ledger.ResetAdmin(c.Request().Context()); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
