package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fusen-app/fusen/internal/permissions"
	"github.com/fusen-app/fusen/internal/services"
	apperrors "github.com/fusen-app/fusen/pkg/errors"
	"github.com/fusen-app/fusen/pkg/response"
)

// TaskHandler exposes task CRUD, status moves and batch reordering.
type TaskHandler struct {
	tasks *services.TaskService
	guard *permissions.Guard
}

// NewTaskHandler constructs a TaskHandler instance.
func NewTaskHandler(tasks *services.TaskService, guard *permissions.Guard) (*TaskHandler, error) {
	if tasks == nil {
		return nil, errors.New("task handler: task service is required")
	}
	if guard == nil {
		return nil, errors.New("task handler: guard is required")
	}
	return &TaskHandler{tasks: tasks, guard: guard}, nil
}

type createTaskRequest struct {
	BoardID     string     `json:"boardId" validate:"required"`
	Title       string     `json:"title" validate:"required,min=1,max=500"`
	Description string     `json:"description" validate:"max=5000"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	AssigneeID  *string    `json:"assigneeId"`
	DueDate     *time.Time `json:"dueDate"`
	TagColor    string     `json:"tagColor" validate:"max=32"`
	Position    *int       `json:"position"`
}

type updateTaskRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=500"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	Status      *string `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	// Raw values so an explicit null (clear) is distinguishable from an
	// absent key (leave unchanged).
	AssigneeID  json.RawMessage `json:"assigneeId"`
	DueDate     json.RawMessage `json:"dueDate"`
	TagColor    *string         `json:"tagColor" validate:"omitempty,max=32"`
	Position    *int            `json:"position"`
}

// optionalField decodes a raw JSON value into the double-pointer form the
// task service expects: nil for absent, pointer-to-nil for explicit null.
func optionalField[T any](raw json.RawMessage) (**T, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if string(raw) == "null" {
		var empty *T
		return &empty, nil
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	ptr := &value
	return &ptr, nil
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=todo in_progress done"`
}

type reorderRequest struct {
	BoardID string                   `json:"boardId" validate:"required"`
	Updates []services.ReorderUpdate `json:"updates" validate:"required,dive"`
}

// ListForBoard returns the board's tasks, lane by lane.
func (h *TaskHandler) ListForBoard(c *gin.Context) {
	ctx := requestContext(c)
	boardID := c.Param("boardId")

	if _, err := h.guard.RequireMember(ctx, currentUserID(c), boardID); err != nil {
		response.Error(c, err)
		return
	}

	tasks, err := h.tasks.ListForBoard(ctx, boardID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tasks": tasks})
}

// Create adds a task to a board the caller belongs to.
func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if !bindAndValidate(c, &req) {
		return
	}

	task, err := h.tasks.Create(requestContext(c), currentUserID(c), services.CreateTaskInput{
		BoardID:     req.BoardID,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
		TagColor:    req.TagColor,
		Position:    req.Position,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"task": task})
}

// Update patches a task's fields.
func (h *TaskHandler) Update(c *gin.Context) {
	var req updateTaskRequest
	if !bindAndValidate(c, &req) {
		return
	}

	assignee, err := optionalField[string](req.AssigneeID)
	if err != nil {
		response.Error(c, apperrors.NewValidation("assigneeId must be a string or null"))
		return
	}
	dueDate, err := optionalField[time.Time](req.DueDate)
	if err != nil {
		response.Error(c, apperrors.NewValidation("dueDate must be an RFC 3339 timestamp or null"))
		return
	}

	task, err := h.tasks.Update(requestContext(c), currentUserID(c), c.Param("taskId"), services.UpdateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		AssigneeID:  assignee,
		DueDate:     dueDate,
		TagColor:    req.TagColor,
		Position:    req.Position,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"task": task})
}

// SetStatus moves a task into another lane.
func (h *TaskHandler) SetStatus(c *gin.Context) {
	var req setStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	task, err := h.tasks.SetStatus(requestContext(c), currentUserID(c), c.Param("taskId"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"task": task})
}

// Reorder applies a batch of lane/position moves atomically.
func (h *TaskHandler) Reorder(c *gin.Context) {
	var req reorderRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.tasks.Reorder(requestContext(c), currentUserID(c), req.BoardID, req.Updates)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "tasks reordered"})
}

// Delete removes a task.
func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.tasks.Delete(requestContext(c), currentUserID(c), c.Param("taskId")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "task deleted"})
}
