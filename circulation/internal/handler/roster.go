package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Astemirdum/library-circulation/circulation/internal/model"
)

func (h *Handler) CreateStudent(c echo.Context) error {
	var req model.CreateStudentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	student, err := h.rosterSvc.CreateStudent(c.Request().Context(), req)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, student)
}

func (h *Handler) SearchStudents(c echo.Context) error {
	students, err := h.rosterSvc.SearchStudents(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, students)
}

func (h *Handler) GetStudent(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	student, err := h.rosterSvc.GetStudent(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, student)
}

func (h *Handler) DeleteStudent(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	if err := h.rosterSvc.DeleteStudent(c.Request().Context(), id); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
