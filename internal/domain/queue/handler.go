package queue

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/redisclient"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the staff endpoints on api and the display endpoint
// on public.
func (h *Handler) RegisterRoutes(api *echo.Group, public *echo.Group) {
	staff := api.Group("/queue", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RoleRegistrar))
	staff.GET("", h.List)
	staff.POST("", h.Add)
	staff.POST("/reset", h.ResetAll)
	staff.GET("/:id", h.Get)
	staff.PATCH("/:id", h.Update)
	staff.DELETE("/:id", h.Remove)
	staff.POST("/:id/start", h.StartConsultation)
	staff.POST("/:id/complete", h.CompleteConsultation)
	staff.POST("/:id/revert", h.RevertToWaiting)
	staff.PUT("/:id/status", h.ForceStatus, auth.RequireRole(auth.RoleAdmin))

	public.GET("/display", h.Display)
}

func (h *Handler) List(c echo.Context) error {
	entries, err := h.svc.List(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	e, ok, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "queue entry not found")
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Add(c echo.Context) error {
	var in NewEntry
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := h.svc.Add(c.Request().Context(), in)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patch
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return h.apply(c, func(ctx context.Context) (bool, error) { return h.svc.Update(ctx, id, p) })
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) ForceStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "status is required")
	}
	return h.apply(c, func(ctx context.Context) (bool, error) { return h.svc.ForceStatus(ctx, id, req.Status) })
}

func (h *Handler) Remove(c echo.Context) error {
	return h.applyByID(c, h.svc.Remove)
}

func (h *Handler) StartConsultation(c echo.Context) error {
	return h.applyByID(c, h.svc.StartConsultation)
}

func (h *Handler) CompleteConsultation(c echo.Context) error {
	return h.applyByID(c, h.svc.CompleteConsultation)
}

func (h *Handler) RevertToWaiting(c echo.Context) error {
	return h.applyByID(c, h.svc.RevertToWaiting)
}

func (h *Handler) ResetAll(c echo.Context) error {
	if _, err := h.svc.ResetAllInProgressToWaiting(c.Request().Context()); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Display answers 204 when no entry is waiting or in progress.
func (h *Handler) Display(c echo.Context) error {
	e, err := h.svc.Display(c.Request().Context())
	if err != nil {
		return serviceError(err)
	}
	if e == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) applyByID(c echo.Context, op func(context.Context, uuid.UUID) (bool, error)) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.apply(c, func(ctx context.Context) (bool, error) { return op(ctx, id) })
}

// apply answers 204 whether or not the id matched an entry.
func (h *Handler) apply(c echo.Context, op func(context.Context) (bool, error)) error {
	if _, err := op(c.Request().Context()); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func serviceError(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return echo.NewHTTPError(http.StatusConflict, "queue is busy, retry").SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "queue store unavailable").SetInternal(err)
}
