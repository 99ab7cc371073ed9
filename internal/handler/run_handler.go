package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/mailrunner/internal/domain"
	"github.com/kursadbilgin/mailrunner/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

// RunHistory is the read side of the run repository.
type RunHistory interface {
	GetByID(ctx context.Context, id string) (*domain.Run, error)
	List(ctx context.Context, params repository.RunListParams) ([]domain.Run, int64, error)
	ListDeliveries(ctx context.Context, runID string, failedOnly bool) ([]domain.Delivery, error)
}

type RunHandler struct {
	history RunHistory
}

func NewRunHandler(history RunHistory) (*RunHandler, error) {
	if history == nil {
		return nil, fmt.Errorf("run history is required")
	}
	return &RunHandler{history: history}, nil
}

func RegisterRunRoutes(router fiber.Router, history RunHistory) error {
	h, err := NewRunHandler(history)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/runs", h.ListRuns)
	v1.Get("/runs/:id", h.GetRun)
	v1.Get("/runs/:id/deliveries", h.ListDeliveries)

	return nil
}

type runResponse struct {
	ID              string     `json:"id"`
	Status          string     `json:"status"`
	TotalRecipients int        `json:"totalRecipients"`
	SuccessCount    int        `json:"successCount"`
	FailureCount    int        `json:"failureCount"`
	SuccessRate     *float64   `json:"successRate,omitempty"`
	Error           *string    `json:"error,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

type deliveryResponse struct {
	Position       int       `json:"position"`
	RecipientEmail string    `json:"recipientEmail"`
	RecipientName  string    `json:"recipientName"`
	Success        bool      `json:"success"`
	ErrorMessage   *string   `json:"errorMessage,omitempty"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (h *RunHandler) ListRuns(c *fiber.Ctx) error {
	params, err := parseRunListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	runs, total, err := h.history.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]runResponse, 0, len(runs))
	for i := range runs {
		items = append(items, toRunResponse(&runs[i]))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"items":    items,
		"page":     params.Page,
		"pageSize": params.PageSize,
		"total":    total,
	})
}

func (h *RunHandler) GetRun(c *fiber.Ctx) error {
	run, err := h.history.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toRunResponse(run))
}

func (h *RunHandler) ListDeliveries(c *fiber.Ctx) error {
	runID := c.Params("id")
	if _, err := h.history.GetByID(c.UserContext(), runID); err != nil {
		return toHTTPError(err)
	}

	failedOnly := c.QueryBool("failed", false)
	deliveries, err := h.history.ListDeliveries(c.UserContext(), runID, failedOnly)
	if err != nil {
		return toHTTPError(err)
	}

	items := make([]deliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		items = append(items, deliveryResponse{
			Position:       d.Position,
			RecipientEmail: d.RecipientEmail,
			RecipientName:  d.RecipientName,
			Success:        d.Success,
			ErrorMessage:   d.ErrorMessage,
			Attempts:       d.Attempts,
			CreatedAt:      d.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"runId": runID,
		"items": items,
	})
}

func parseRunListParams(c *fiber.Ctx) (repository.RunListParams, error) {
	params := repository.RunListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.RunListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.RunListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseRunStatusFromString(rawStatus)
		if err != nil {
			return repository.RunListParams{}, err
		}
		params.Status = &status
	}

	return params, nil
}

func toRunResponse(run *domain.Run) runResponse {
	resp := runResponse{
		ID:              run.ID,
		Status:          run.Status.String(),
		TotalRecipients: run.TotalRecipients,
		SuccessCount:    run.SuccessCount,
		FailureCount:    run.FailureCount,
		Error:           run.Error,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
	}

	summary := domain.RunSummary{
		Total:      run.SuccessCount + run.FailureCount,
		Successful: run.SuccessCount,
		Failed:     run.FailureCount,
	}
	if rate, ok := summary.SuccessRate(); ok {
		resp.SuccessRate = &rate
	}

	return resp
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
