package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"reeler/internal/coordinator"
	"reeler/internal/records"
	"reeler/internal/services"
)

func (s *Server) handleHealth(c echo.Context) error {
	entries, err := s.coord.Entries(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Records: len(entries)})
}

func (s *Server) handleEntries(c echo.Context) error {
	entries, err := s.coord.Entries(c.Request().Context())
	if err != nil {
		return err
	}
	out := make(map[string]records.Record, len(entries))
	for id, rec := range entries {
		out[strconv.FormatInt(id, 10)] = rec
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleEntry(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	rec, err := s.coord.Entry(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleCreateEntry(c echo.Context) error {
	var rec records.Record
	if err := decodeBody(c, &rec, false); err != nil {
		return err
	}
	created, err := s.coord.CreateEntry(c.Request().Context(), rec)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, created)
}

func (s *Server) handleMergeEntry(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var patch map[string]any
	if err := decodeBody(c, &patch, false); err != nil {
		return err
	}
	merged, err := s.coord.MergeEntry(c.Request().Context(), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, merged)
}

func (s *Server) handleNextDownload(c echo.Context) error {
	return claimResponse(c, s.coord.ClaimNextDownload)
}

func (s *Server) handleNextConversion(c echo.Context) error {
	return claimResponse(c, s.coord.ClaimNextConversion)
}

func claimResponse(c echo.Context, claim func(context.Context, string) (*records.Record, error)) error {
	host := strings.TrimSpace(c.QueryParam("host"))
	ctx := services.WithHost(c.Request().Context(), host)
	rec, err := claim(ctx, host)
	if err != nil {
		return err
	}
	if rec == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleDownloading(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var update coordinator.DownloadUpdate
	if err := decodeBody(c, &update, true); err != nil {
		return err
	}
	ctx := services.WithRecordID(c.Request().Context(), id)
	rec, err := s.coord.UpdateDownload(ctx, id, update)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleConverting(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var report ConversionReport
	if err := decodeBody(c, &report, true); err != nil {
		return err
	}
	ctx := services.WithRecordID(c.Request().Context(), id)
	ctx = services.WithHost(ctx, report.Host)
	rec, err := s.coord.ReportConversion(ctx, id, report.Host, report.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func pathID(c echo.Context) (int64, error) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "parse id", fmt.Sprintf("invalid record id %q", raw), nil)
	}
	return id, nil
}

// decodeBody reads a JSON body into v. An empty body is accepted only when
// allowEmpty is set.
func decodeBody(c echo.Context, v any, allowEmpty bool) error {
	body := c.Request().Body
	if body == nil {
		if allowEmpty {
			return nil
		}
		return services.Wrap(services.ErrValidation, "api", "decode body", "request body is empty", nil)
	}
	err := json.NewDecoder(body).Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		if allowEmpty {
			return nil
		}
		return services.Wrap(services.ErrValidation, "api", "decode body", "request body is empty", nil)
	default:
		return services.Wrap(services.ErrValidation, "api", "decode body", "malformed JSON", err)
	}
}
