package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fusen-app/fusen/internal/models"
	"github.com/fusen-app/fusen/internal/permissions"
	apperrors "github.com/fusen-app/fusen/pkg/errors"
)

// TaskView decorates a task with its assignee's display fields, matching
// the shape of task list and mutation responses.
type TaskView struct {
	models.Task
	AssigneeName  string `json:"assignee_name,omitempty"`
	AssigneeEmail string `json:"assignee_email,omitempty"`
}

// CreateTaskInput captures new task fields. Status defaults to todo and
// Position to the end of the target lane when omitted.
type CreateTaskInput struct {
	BoardID     string
	Title       string
	Description string
	Status      string
	AssigneeID  *string
	DueDate     *time.Time
	TagColor    string
	Position    *int
}

// UpdateTaskInput describes mutable task fields; nil means "leave as is".
// AssigneeID distinguishes "not supplied" (nil) from "clear the assignee"
// (pointer to nil).
type UpdateTaskInput struct {
	Title       *string
	Description *string
	Status      *string
	AssigneeID  **string
	DueDate     **time.Time
	TagColor    *string
	Position    *int
}

// ReorderUpdate moves one task to a lane position.
type ReorderUpdate struct {
	TaskID   string `json:"taskId"`
	Status   string `json:"status"`
	Position int    `json:"position"`
}

// TaskService owns task persistence, lane positioning and the batch
// reorder protocol.
type TaskService struct {
	db    *gorm.DB
	guard *permissions.Guard
}

// NewTaskService constructs a TaskService instance.
func NewTaskService(db *gorm.DB, guard *permissions.Guard) (*TaskService, error) {
	if db == nil {
		return nil, errors.New("task service: db is required")
	}
	if guard == nil {
		return nil, errors.New("task service: guard is required")
	}
	return &TaskService{db: db, guard: guard}, nil
}

// Create inserts a task after checking the caller's and assignee's board
// membership. Position defaults to max(position)+1 within the (board,
// status) lane, 0 for an empty lane.
func (s *TaskService) Create(ctx context.Context, callerID string, input CreateTaskInput) (*TaskView, error) {
	ctx = ensureContext(ctx)

	if _, err := s.guard.RequireMember(ctx, callerID, input.BoardID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidation("task title is required")
	}

	status := input.Status
	if status == "" {
		status = models.StatusTodo
	}
	if !models.ValidStatus(status) {
		return nil, apperrors.NewValidation("invalid task status")
	}

	if input.AssigneeID != nil && *input.AssigneeID != "" {
		if !s.guard.IsMember(ctx, *input.AssigneeID, input.BoardID) {
			return nil, apperrors.ErrInvalidAssignee
		}
	}

	position := 0
	if input.Position != nil {
		position = *input.Position
	} else {
		next, err := s.nextPosition(ctx, input.BoardID, status)
		if err != nil {
			return nil, err
		}
		position = next
	}

	task := &models.Task{
		BoardID:     input.BoardID,
		Title:       title,
		Description: input.Description,
		Status:      status,
		AssigneeID:  normaliseAssignee(input.AssigneeID),
		DueDate:     input.DueDate,
		TagColor:    input.TagColor,
		Position:    position,
		CreatedBy:   callerID,
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("task service: create task: %w", err)
	}

	return s.view(ctx, task.ID)
}

// ListForBoard returns the board's tasks ordered by lane, position, then
// creation time as the tie-breaker.
func (s *TaskService) ListForBoard(ctx context.Context, boardID string) ([]TaskView, error) {
	ctx = ensureContext(ctx)

	var rows []TaskView
	err := s.db.WithContext(ctx).
		Model(&models.Task{}).
		Select("tasks.*, users.name AS assignee_name, users.email AS assignee_email").
		Joins("LEFT JOIN users ON users.id = tasks.assignee_id").
		Where("tasks.board_id = ?", boardID).
		Order("tasks.status, tasks.position, tasks.created_at").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("task service: list tasks: %w", err)
	}

	if rows == nil {
		rows = []TaskView{}
	}
	return rows, nil
}

// Update applies a partial patch. The board is re-derived from the task
// row, never taken from the caller. An empty patch returns the current row
// without touching updated_at.
func (s *TaskService) Update(ctx context.Context, callerID, taskID string, input UpdateTaskInput) (*TaskView, error) {
	ctx = ensureContext(ctx)

	task, _, err := s.guard.RequireTaskMember(ctx, callerID, taskID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, apperrors.NewValidation("task title cannot be empty")
		}
		updates["title"] = title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Status != nil {
		if !models.ValidStatus(*input.Status) {
			return nil, apperrors.NewValidation("invalid task status")
		}
		updates["status"] = *input.Status
	}
	if input.AssigneeID != nil {
		assignee := *input.AssigneeID
		if assignee != nil && *assignee != "" {
			if !s.guard.IsMember(ctx, *assignee, task.BoardID) {
				return nil, apperrors.ErrInvalidAssignee
			}
			updates["assignee_id"] = *assignee
		} else {
			updates["assignee_id"] = nil
		}
	}
	if input.DueDate != nil {
		updates["due_date"] = *input.DueDate
	}
	if input.TagColor != nil {
		updates["tag_color"] = *input.TagColor
	}
	if input.Position != nil {
		updates["position"] = *input.Position
	}

	if len(updates) == 0 {
		return s.view(ctx, task.ID)
	}

	if err := s.db.WithContext(ctx).Model(task).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("task service: update task: %w", err)
	}

	return s.view(ctx, task.ID)
}

// SetStatus moves a task to another lane without renumbering positions;
// reorder batches own position maintenance.
func (s *TaskService) SetStatus(ctx context.Context, callerID, taskID, status string) (*TaskView, error) {
	ctx = ensureContext(ctx)

	if !models.ValidStatus(status) {
		return nil, apperrors.NewValidation("invalid task status")
	}

	task, _, err := s.guard.RequireTaskMember(ctx, callerID, taskID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(task).Update("status", status).Error; err != nil {
		return nil, fmt.Errorf("task service: set status: %w", err)
	}

	return s.view(ctx, task.ID)
}

// Reorder applies every (task, status, position) triple in one
// transaction. Each row update is additionally scoped by board id, so a
// task belonging to a different board is skipped rather than moved; any
// database failure rolls back the whole batch.
func (s *TaskService) Reorder(ctx context.Context, callerID, boardID string, updates []ReorderUpdate) error {
	ctx = ensureContext(ctx)

	if _, err := s.guard.RequireMember(ctx, callerID, boardID); err != nil {
		return err
	}

	for _, update := range updates {
		if !models.ValidStatus(update.Status) {
			return apperrors.NewValidation("invalid task status in reorder batch")
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, update := range updates {
			err := tx.Model(&models.Task{}).
				Where("id = ? AND board_id = ?", update.TaskID, boardID).
				Updates(map[string]any{
					"status":   update.Status,
					"position": update.Position,
				}).Error
			if err != nil {
				return fmt.Errorf("move task %s: %w", update.TaskID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("task service: reorder: %w", err)
	}

	return nil
}

// Delete removes a task after the caller's membership of its board checks out.
func (s *TaskService) Delete(ctx context.Context, callerID, taskID string) error {
	ctx = ensureContext(ctx)

	task, _, err := s.guard.RequireTaskMember(ctx, callerID, taskID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(task).Error; err != nil {
		return fmt.Errorf("task service: delete task: %w", err)
	}

	return nil
}

func (s *TaskService) nextPosition(ctx context.Context, boardID, status string) (int, error) {
	var next int
	err := s.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("board_id = ? AND status = ?", boardID, status).
		Select("COALESCE(MAX(position), -1) + 1").
		Scan(&next).Error
	if err != nil {
		return 0, fmt.Errorf("task service: next position: %w", err)
	}
	return next, nil
}

func (s *TaskService) view(ctx context.Context, taskID string) (*TaskView, error) {
	var row TaskView
	err := s.db.WithContext(ctx).
		Model(&models.Task{}).
		Select("tasks.*, users.name AS assignee_name, users.email AS assignee_email").
		Joins("LEFT JOIN users ON users.id = tasks.assignee_id").
		Where("tasks.id = ?", taskID).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("task service: load task: %w", err)
	}
	if row.ID == "" {
		return nil, apperrors.ErrNotFound
	}
	return &row, nil
}

func normaliseAssignee(assignee *string) *string {
	if assignee == nil || *assignee == "" {
		return nil
	}
	return assignee
}
