package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/aion-systems/aion-core/pkg/apperr"
)

// sourcesListHandler handles GET /sources.
func (s *Server) sourcesListHandler(c *echo.Context) error {
	list := s.sources.List()
	views := make([]sourceView, 0, len(list))
	for _, src := range list {
		views = append(views, sourceView{URL: src.URL, Trusted: src.Trusted})
	}
	return c.JSON(http.StatusOK, views)
}

// sourcesAddHandler handles POST /sources {url, trusted?}.
func (s *Server) sourcesAddHandler(c *echo.Context) error {
	var req sourceRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
	}
	if req.URL == "" {
		return writeErr(c, apperr.New(apperr.KindValidation, "url is required"))
	}
	if err := s.sources.Add(c.Request().Context(), req.URL, req.Trusted); err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, sourceView{URL: req.URL, Trusted: req.Trusted})
}

// sourcesRemoveHandler handles DELETE /sources {url}.
func (s *Server) sourcesRemoveHandler(c *echo.Context) error {
	var req sourceRequest
	if err := c.Bind(&req); err != nil {
		return writeErr(c, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
	}
	if req.URL == "" {
		return writeErr(c, apperr.New(apperr.KindValidation, "url is required"))
	}
	if err := s.sources.Remove(c.Request().Context(), req.URL); err != nil {
		return writeErr(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
