package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/aion-systems/aion-core/pkg/apperr"
	"github.com/aion-systems/aion-core/pkg/model"
)

// proposalsListHandler handles GET /proposals?status=.
func (s *Server) proposalsListHandler(c *echo.Context) error {
	var status *model.ProposalStatus
	if raw := c.QueryParam("status"); raw != "" {
		st := model.ProposalStatus(raw)
		status = &st
	}
	proposals, err := s.proposals.List(c.Request().Context(), status)
	if err != nil {
		return writeErr(c, err)
	}
	views := make([]proposalView, 0, len(proposals))
	for _, p := range proposals {
		views = append(views, newProposalView(p))
	}
	return c.JSON(http.StatusOK, views)
}

// proposalApproveHandler handles POST /proposals/{id}/approve.
func (s *Server) proposalApproveHandler(c *echo.Context) error {
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
	}
	who := req.Approver
	if who == "" {
		who = approver(c)
	}
	p, err := s.proposals.Approve(c.Request().Context(), c.Param("id"), who)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, newProposalView(p))
}

// proposalRejectHandler handles POST /proposals/{id}/reject.
func (s *Server) proposalRejectHandler(c *echo.Context) error {
	var req decisionRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
	}
	who := req.Approver
	if who == "" {
		who = approver(c)
	}
	p, err := s.proposals.Reject(c.Request().Context(), c.Param("id"), who, req.Reason)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, newProposalView(p))
}

// proposalExecuteHandler handles POST /proposals/{id}/execute. A failed
// action execution is still a 200 with the proposal's "failed" status and
// execution_result — only a rejected state transition or lookup failure is
// an HTTP error (spec §4.13: "at-most-once... executed or failed").
func (s *Server) proposalExecuteHandler(c *echo.Context) error {
	p, err := s.proposals.Execute(c.Request().Context(), c.Param("id"))
	if err != nil && p.ID == "" {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, newProposalView(p))
}
