package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/duynguyendang/outgassing/pkg/common/errors"
	"github.com/duynguyendang/outgassing/pkg/query"
)

// handleSearchMaterials fuzzy-searches by material name.
func (s *Server) handleSearchMaterials(c *gin.Context) {
	q := query.NameQuery{Material: c.Query("q")}

	var err error
	if q.MaxTML, err = floatParam(c, "max_tml"); err != nil {
		handleError(c, err)
		return
	}
	if q.MaxCVCM, err = floatParam(c, "max_cvcm"); err != nil {
		handleError(c, err)
		return
	}
	if q.Limit, err = intParam(c, "limit"); err != nil {
		handleError(c, err)
		return
	}
	if q.CompliantOnly, err = boolParam(c, "compliant_only"); err != nil {
		handleError(c, err)
		return
	}
	if q.IncludeDetails, err = boolParam(c, "details"); err != nil {
		handleError(c, err)
		return
	}

	res, err := s.engine.SearchByName(c.Request.Context(), q)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleGetMaterial returns one record by exact id.
func (s *Server) handleGetMaterial(c *gin.Context) {
	res, err := s.engine.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	if !res.Found {
		c.JSON(http.StatusNotFound, errors.ErrorPayload{Error: errors.KindNotFound, Message: res.Message})
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleApplications lists distinct material usages.
func (s *Server) handleApplications(c *gin.Context) {
	res, err := s.engine.Applications(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleSearchApplication returns compliant materials for an application.
func (s *Server) handleSearchApplication(c *gin.Context) {
	q := query.ApplicationQuery{Application: c.Query("q")}

	var err error
	if q.MaxTML, err = floatParam(c, "max_tml"); err != nil {
		handleError(c, err)
		return
	}
	if q.MaxCVCM, err = floatParam(c, "max_cvcm"); err != nil {
		handleError(c, err)
		return
	}
	if q.IncludeDetails, err = boolParam(c, "details"); err != nil {
		handleError(c, err)
		return
	}

	res, err := s.engine.SearchByApplication(c.Request.Context(), q)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSummary(c *gin.Context) {
	res, err := s.engine.Summary(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Helper to handle errors
func handleError(c *gin.Context, err error) {
	appErr := errors.MapError(err)
	c.JSON(appErr.Code, errors.Payload(appErr))
}

func floatParam(c *gin.Context, key string) (*float64, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number, got %q", errors.ErrInvalidInput, key, raw)
	}
	return &v, nil
}

func intParam(c *gin.Context, key string) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", errors.ErrInvalidInput, key, raw)
	}
	return v, nil
}

func boolParam(c *gin.Context, key string) (*bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be true or false, got %q", errors.ErrInvalidInput, key, raw)
	}
	return &v, nil
}
