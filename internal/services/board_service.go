package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/fusen-app/fusen/internal/models"
	apperrors "github.com/fusen-app/fusen/pkg/errors"
)

// BoardWithRole pairs a board with the requesting user's membership role.
type BoardWithRole struct {
	models.Board
	Role string `json:"role"`
}

// MemberInfo is the member listing shape exposed by board detail responses.
type MemberInfo struct {
	UserID   string    `json:"id"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// UpdateBoardInput describes mutable board fields; nil means "leave as is".
type UpdateBoardInput struct {
	Name        *string
	Description *string
}

// BoardService handles board lifecycle. Role gating happens in the handlers
// via the permissions guard; this layer owns persistence semantics.
type BoardService struct {
	db *gorm.DB
}

// NewBoardService constructs a BoardService instance.
func NewBoardService(db *gorm.DB) (*BoardService, error) {
	if db == nil {
		return nil, errors.New("board service: db is required")
	}
	return &BoardService{db: db}, nil
}

// Create registers a board and its owner membership in one transaction;
// neither row is visible unless both writes succeed.
func (s *BoardService) Create(ctx context.Context, ownerID, name, description string) (*models.Board, error) {
	ctx = ensureContext(ctx)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidation("board name is required")
	}

	board := &models.Board{
		Name:        name,
		Description: strings.TrimSpace(description),
		OwnerID:     ownerID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(board).Error; err != nil {
			return fmt.Errorf("create board: %w", err)
		}

		membership := &models.BoardMember{
			BoardID: board.ID,
			UserID:  ownerID,
			Role:    models.RoleOwner,
		}
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("board service: %w", err)
	}

	return board, nil
}

// ListForUser returns every board the user belongs to, newest-created
// first, annotated with the user's role.
func (s *BoardService) ListForUser(ctx context.Context, userID string) ([]BoardWithRole, error) {
	ctx = ensureContext(ctx)

	var rows []BoardWithRole
	err := s.db.WithContext(ctx).
		Model(&models.Board{}).
		Select("boards.*, board_members.role").
		Joins("JOIN board_members ON board_members.board_id = boards.id").
		Where("board_members.user_id = ?", userID).
		Order("boards.created_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("board service: list boards: %w", err)
	}

	if rows == nil {
		rows = []BoardWithRole{}
	}
	return rows, nil
}

// Get loads a board by identifier.
func (s *BoardService) Get(ctx context.Context, boardID string) (*models.Board, error) {
	ctx = ensureContext(ctx)

	var board models.Board
	err := s.db.WithContext(ctx).First(&board, "id = ?", boardID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("board service: load board: %w", err)
	}

	return &board, nil
}

// ListMembers returns the board's members joined with account details.
func (s *BoardService) ListMembers(ctx context.Context, boardID string) ([]MemberInfo, error) {
	ctx = ensureContext(ctx)

	var rows []MemberInfo
	err := s.db.WithContext(ctx).
		Model(&models.BoardMember{}).
		Select("users.id AS user_id, users.email, users.name, board_members.role, board_members.joined_at").
		Joins("JOIN users ON users.id = board_members.user_id").
		Where("board_members.board_id = ?", boardID).
		Order("board_members.joined_at ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("board service: list members: %w", err)
	}

	if rows == nil {
		rows = []MemberInfo{}
	}
	return rows, nil
}

// Update applies a partial patch. An empty patch returns the current row
// without touching updated_at.
func (s *BoardService) Update(ctx context.Context, boardID string, input UpdateBoardInput) (*models.Board, error) {
	ctx = ensureContext(ctx)

	board, err := s.Get(ctx, boardID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewValidation("board name cannot be empty")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}

	if len(updates) == 0 {
		return board, nil
	}

	if err := s.db.WithContext(ctx).Model(board).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("board service: update board: %w", err)
	}

	if err := s.db.WithContext(ctx).First(board, "id = ?", boardID).Error; err != nil {
		return nil, fmt.Errorf("board service: reload board: %w", err)
	}

	return board, nil
}

// Delete removes the board; memberships, tasks and invitations cascade.
func (s *BoardService) Delete(ctx context.Context, boardID string) error {
	ctx = ensureContext(ctx)

	board, err := s.Get(ctx, boardID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(board).Error; err != nil {
		return fmt.Errorf("board service: delete board: %w", err)
	}

	return nil
}
