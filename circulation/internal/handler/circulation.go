package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
)

func (h *Handler) IssueBook(c echo.Context) error {
	var req model.IssueBookRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	issue, err := h.circulationSvc.IssueBook(c.Request().Context(), req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, issue)
}

func (h *Handler) IssueByBarcode(c echo.Context) error {
	var req model.ScanIssueRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	issue, err := h.circulationSvc.IssueByBarcode(c.Request().Context(), req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, issue)
}

func (h *Handler) ReturnBook(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	view, err := h.circulationSvc.ReturnBook(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ReturnByBarcode(c echo.Context) error {
	var req model.ScanReturnRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	view, err := h.circulationSvc.ReturnByBarcode(c.Request().Context(), req.Token)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetIssue(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	view, err := h.circulationSvc.GetIssue(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) ListOpenIssues(c echo.Context) error {
	views, err := h.circulationSvc.ListOpenIssues(c.Request().Context())
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) ListStudentIssues(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	views, err := h.circulationSvc.ListStudentIssues(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, views)
}

// FineSummary refreshes stored fines of open issues before reporting.
func (h *Handler) FineSummary(c echo.Context) error {
	summary, err := h.circulationSvc.FineSummary(c.Request().Context())
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) EstimateFine(c echo.Context) error {
	var req model.EstimateFineRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	est, err := h.circulationSvc.EstimateFine(req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, est)
}

func (h *Handler) Stats(c echo.Context) error {
	st, err := h.circulationSvc.Stats(c.Request().Context())
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, st)
}
