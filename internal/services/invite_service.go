package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fusen-app/fusen/internal/models"
	"github.com/fusen-app/fusen/internal/permissions"
	"github.com/fusen-app/fusen/pkg/crypto"
	apperrors "github.com/fusen-app/fusen/pkg/errors"
)

const (
	inviteTokenBytes = 32
	// DefaultInviteTTL bounds how long an invitation stays redeemable.
	DefaultInviteTTL = 24 * time.Hour
)

// CreatedInvitation is returned from Create with the one-time token and a
// ready-to-share link. The token is never shown again afterwards.
type CreatedInvitation struct {
	Invitation models.Invitation `json:"invitation"`
	Token      string            `json:"token"`
	InviteLink string            `json:"invite_link"`
}

// AcceptedInvitation reports the membership granted by redeeming a token.
type AcceptedInvitation struct {
	BoardID string `json:"board_id"`
	Board   string `json:"board_name"`
	Role    string `json:"role"`
}

// InviteOptions configures invitation issuance.
type InviteOptions struct {
	// TTL overrides DefaultInviteTTL when positive.
	TTL time.Duration
	// LinkBase is prefixed to "/invite/<token>" when building InviteLink.
	LinkBase string
	// Clock supplies the current time; defaults to time.Now.
	Clock func() time.Time
}

// InviteService issues and redeems board invitations.
type InviteService struct {
	db    *gorm.DB
	guard *permissions.Guard
	opts  InviteOptions
}

// NewInviteService constructs an InviteService instance.
func NewInviteService(db *gorm.DB, guard *permissions.Guard, opts InviteOptions) (*InviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	if guard == nil {
		return nil, errors.New("invite service: guard is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultInviteTTL
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &InviteService{db: db, guard: guard, opts: opts}, nil
}

// Create issues a fresh single-use invitation for the board. Callers need
// the admin role. A non-positive ttl falls back to the configured default.
// The plaintext token is only returned here.
func (s *InviteService) Create(ctx context.Context, callerID, boardID string, ttl time.Duration) (*CreatedInvitation, error) {
	ctx = ensureContext(ctx)

	if _, err := s.guard.RequireAdmin(ctx, callerID, boardID); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.opts.TTL
	}

	token, err := crypto.GenerateToken(inviteTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("invite service: generate token: %w", err)
	}

	invitation := models.Invitation{
		BoardID:   boardID,
		Token:     token,
		CreatedBy: callerID,
		ExpiresAt: s.opts.Clock().Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(&invitation).Error; err != nil {
		return nil, fmt.Errorf("invite service: create invitation: %w", err)
	}

	return &CreatedInvitation{
		Invitation: invitation,
		Token:      token,
		InviteLink: s.opts.LinkBase + "/invite/" + token,
	}, nil
}

// Accept redeems a token for the calling user, granting the member role.
// Unknown, expired and already-used tokens all collapse into the same
// invalid-invitation error; existing members get a distinct response. The
// membership insert and the used_at stamp commit together.
func (s *InviteService) Accept(ctx context.Context, callerID, token string) (*AcceptedInvitation, error) {
	ctx = ensureContext(ctx)

	if token == "" {
		return nil, apperrors.ErrInvalidInvitation
	}

	var result AcceptedInvitation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invitation models.Invitation
		err := tx.Where("token = ?", token).First(&invitation).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrInvalidInvitation
			}
			return fmt.Errorf("load invitation: %w", err)
		}
		if !invitation.Usable(s.opts.Clock()) {
			return apperrors.ErrInvalidInvitation
		}

		var existing int64
		err = tx.Model(&models.BoardMember{}).
			Where("board_id = ? AND user_id = ?", invitation.BoardID, callerID).
			Count(&existing).Error
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if existing > 0 {
			return apperrors.ErrAlreadyMember
		}

		member := models.BoardMember{
			BoardID: invitation.BoardID,
			UserID:  callerID,
			Role:    models.RoleMember,
		}
		if err := tx.Create(&member).Error; err != nil {
			// Two redemptions can race past the count; the composite
			// unique index settles it.
			if isUniqueConstraintError(err) {
				return apperrors.ErrAlreadyMember
			}
			return fmt.Errorf("create membership: %w", err)
		}

		now := s.opts.Clock()
		err = tx.Model(&invitation).Update("used_at", &now).Error
		if err != nil {
			return fmt.Errorf("mark invitation used: %w", err)
		}

		var board models.Board
		if err := tx.First(&board, "id = ?", invitation.BoardID).Error; err != nil {
			return fmt.Errorf("load board: %w", err)
		}

		result = AcceptedInvitation{
			BoardID: board.ID,
			Board:   board.Name,
			Role:    member.Role,
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("invite service: accept: %w", err)
	}

	return &result, nil
}

// PurgeExpired deletes unused invitations whose expiry lies more than
// retain in the past. Redeemed rows are kept for audit.
func (s *InviteService) PurgeExpired(ctx context.Context, retain time.Duration) (int64, error) {
	ctx = ensureContext(ctx)

	cutoff := s.opts.Clock().Add(-retain)
	res := s.db.WithContext(ctx).
		Where("used_at IS NULL AND expires_at < ?", cutoff).
		Delete(&models.Invitation{})
	if res.Error != nil {
		return 0, fmt.Errorf("invite service: purge expired: %w", res.Error)
	}
	return res.RowsAffected, nil
}
