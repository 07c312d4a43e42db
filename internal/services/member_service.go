package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/fusen-app/fusen/internal/models"
	"github.com/fusen-app/fusen/internal/permissions"
	apperrors "github.com/fusen-app/fusen/pkg/errors"
)

// MemberService manages board roster changes: role promotion and
// demotion, removal by an admin, and voluntary departure.
type MemberService struct {
	db    *gorm.DB
	guard *permissions.Guard
}

// NewMemberService constructs a MemberService instance.
func NewMemberService(db *gorm.DB, guard *permissions.Guard) (*MemberService, error) {
	if db == nil {
		return nil, errors.New("member service: db is required")
	}
	if guard == nil {
		return nil, errors.New("member service: guard is required")
	}
	return &MemberService{db: db, guard: guard}, nil
}

// ChangeRole sets a member's role to admin or member. Callers need the
// admin role, cannot change their own role, and the owner row is
// immutable.
func (s *MemberService) ChangeRole(ctx context.Context, callerID, boardID, targetUserID, role string) (*models.BoardMember, error) {
	ctx = ensureContext(ctx)

	if _, err := s.guard.RequireAdmin(ctx, callerID, boardID); err != nil {
		return nil, err
	}

	if role != models.RoleAdmin && role != models.RoleMember {
		return nil, apperrors.NewValidation("role must be admin or member")
	}
	if targetUserID == callerID {
		return nil, apperrors.New("CANNOT_CHANGE_OWN_ROLE", "You cannot change your own role", 400)
	}

	target, err := s.loadMember(ctx, boardID, targetUserID)
	if err != nil {
		return nil, err
	}
	if target.Role == models.RoleOwner {
		return nil, apperrors.New("CANNOT_CHANGE_OWNER_ROLE", "The board owner's role cannot be changed", 400)
	}

	if err := s.db.WithContext(ctx).Model(target).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("member service: change role: %w", err)
	}

	return target, nil
}

// Remove takes a member off the board. Callers need the admin role and the
// owner cannot be removed.
func (s *MemberService) Remove(ctx context.Context, callerID, boardID, targetUserID string) error {
	ctx = ensureContext(ctx)

	if _, err := s.guard.RequireAdmin(ctx, callerID, boardID); err != nil {
		return err
	}

	target, err := s.loadMember(ctx, boardID, targetUserID)
	if err != nil {
		return err
	}
	if target.Role == models.RoleOwner {
		return apperrors.New("CANNOT_REMOVE_OWNER", "The board owner cannot be removed", 400)
	}

	if err := s.db.WithContext(ctx).Delete(target).Error; err != nil {
		return fmt.Errorf("member service: remove member: %w", err)
	}

	return nil
}

// Leave removes the caller's own membership. The owner cannot leave; they
// delete the board instead.
func (s *MemberService) Leave(ctx context.Context, callerID, boardID string) error {
	ctx = ensureContext(ctx)

	member, err := s.guard.RequireMember(ctx, callerID, boardID)
	if err != nil {
		return err
	}
	if member.Role == models.RoleOwner {
		return apperrors.New("OWNER_CANNOT_LEAVE", "The board owner cannot leave; delete the board instead", 400)
	}

	if err := s.db.WithContext(ctx).Delete(member).Error; err != nil {
		return fmt.Errorf("member service: leave board: %w", err)
	}

	return nil
}

func (s *MemberService) loadMember(ctx context.Context, boardID, userID string) (*models.BoardMember, error) {
	var member models.BoardMember
	err := s.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("member service: load member: %w", err)
	}
	return &member, nil
}
