package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/fusen-app/fusen/internal/models"
	apperrors "github.com/fusen-app/fusen/pkg/errors"
)

// Guard resolves a caller's membership role for a board and enforces the
// graduated role checks. Authentication failures are never produced here;
// a missing membership row is Forbidden, a missing nested resource NotFound.
type Guard struct {
	db *gorm.DB
}

// NewGuard constructs a Guard backed by the provided database handle.
func NewGuard(db *gorm.DB) (*Guard, error) {
	if db == nil {
		return nil, errors.New("permissions: db is required")
	}
	return &Guard{db: db}, nil
}

// RequireMember loads the caller's membership for the board, failing with
// Forbidden when no row exists.
func (g *Guard) RequireMember(ctx context.Context, userID, boardID string) (*models.BoardMember, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(userID) == "" || strings.TrimSpace(boardID) == "" {
		return nil, apperrors.ErrForbidden
	}

	var membership models.BoardMember
	err := g.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("permissions: load membership: %w", err)
	}

	return &membership, nil
}

// RequireAdmin succeeds only for owner or admin roles.
func (g *Guard) RequireAdmin(ctx context.Context, userID, boardID string) (*models.BoardMember, error) {
	membership, err := g.RequireMember(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	if !membership.IsAdmin() {
		return nil, apperrors.ErrForbidden
	}
	return membership, nil
}

// RequireOwner succeeds only for the owner role. Board deletion is gated on
// this, stricter than the generic admin check.
func (g *Guard) RequireOwner(ctx context.Context, userID, boardID string) (*models.BoardMember, error) {
	membership, err := g.RequireMember(ctx, userID, boardID)
	if err != nil {
		return nil, err
	}
	if membership.Role != models.RoleOwner {
		return nil, apperrors.ErrForbidden
	}
	return membership, nil
}

// RequireTaskMember re-derives the board from the task row before checking
// membership, so a caller cannot pass a board id they belong to while
// targeting a task from another board. A missing task is NotFound; a task
// on a board the caller does not belong to is also NotFound to avoid
// leaking its existence.
func (g *Guard) RequireTaskMember(ctx context.Context, userID, taskID string) (*models.Task, *models.BoardMember, error) {
	ctx = ensureContext(ctx)

	var task models.Task
	err := g.db.WithContext(ctx).First(&task, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("permissions: load task: %w", err)
	}

	membership, err := g.RequireMember(ctx, userID, task.BoardID)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr == apperrors.ErrForbidden {
			return nil, nil, apperrors.ErrNotFound
		}
		return nil, nil, err
	}

	return &task, membership, nil
}

// IsMember reports membership without surfacing an error value; used by the
// realtime layer when re-validating room joins.
func (g *Guard) IsMember(ctx context.Context, userID, boardID string) bool {
	_, err := g.RequireMember(ctx, userID, boardID)
	return err == nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
