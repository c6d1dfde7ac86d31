package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jobdeck/api/internal/lifecycle"
	"github.com/jobdeck/api/internal/model"
	"github.com/jobdeck/api/internal/runner"
	"github.com/jobdeck/api/internal/store"
	"github.com/jobdeck/api/pkg/response"
)

type JobHandler struct {
	store     *store.JobStore
	runner    *runner.Runner
	validator *validator.Validate
}

func NewJobHandler(s *store.JobStore, r *runner.Runner, v *validator.Validate) *JobHandler {
	return &JobHandler{
		store:     s,
		runner:    r,
		validator: v,
	}
}

// Create handles POST /jobs
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if req.TaskName == "" {
		return response.ValidationError(c, "taskName is required", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.store.Create(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, "Failed to create job")
	}

	return response.Created(c, job)
}

// List handles GET /jobs
func (h *JobHandler) List(c *fiber.Ctx) error {
	var filter model.ListJobsFilter

	if status := c.Query("status"); status != "" {
		filter.Status = model.JobStatus(status)
		if !filter.Status.IsValid() {
			return response.ValidationError(c, "Invalid status filter", nil)
		}
	}
	if priority := c.Query("priority"); priority != "" {
		filter.Priority = model.JobPriority(priority)
		if !filter.Priority.IsValid() {
			return response.ValidationError(c, "Invalid priority filter", nil)
		}
	}

	jobs, err := h.store.List(c.Context(), filter)
	if err != nil {
		return response.ServiceError(c, "Failed to fetch jobs")
	}

	return response.OK(c, jobs)
}

// GetByID handles GET /jobs/:id
func (h *JobHandler) GetByID(c *fiber.Ctx) error {
	job, err := h.store.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, "Failed to fetch job")
	}

	return response.OK(c, job)
}

// Run handles POST /run-job/:id
func (h *JobHandler) Run(c *fiber.Ctx) error {
	job, err := h.runner.Start(c.Context(), c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		var invalid *lifecycle.InvalidTransitionError
		if errors.As(err, &invalid) {
			return response.InvalidTransition(c, invalid.Error())
		}
		return response.ServiceError(c, "Failed to run job")
	}

	return response.Accepted(c, model.RunJobResponse{
		Message: "Job execution started",
		JobID:   job.ID,
		Status:  job.Status,
	})
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
