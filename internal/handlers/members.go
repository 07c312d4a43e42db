package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fusen-app/fusen/internal/services"
	"github.com/fusen-app/fusen/pkg/response"
)

// MemberHandler exposes invitations and roster management endpoints.
type MemberHandler struct {
	members *services.MemberService
	invites *services.InviteService
}

// NewMemberHandler constructs a MemberHandler instance.
func NewMemberHandler(members *services.MemberService, invites *services.InviteService) (*MemberHandler, error) {
	if members == nil {
		return nil, errors.New("member handler: member service is required")
	}
	if invites == nil {
		return nil, errors.New("member handler: invite service is required")
	}
	return &MemberHandler{members: members, invites: invites}, nil
}

type inviteRequest struct {
	BoardID string `json:"boardId" validate:"required"`
	// ExpiresIn is the validity window in hours; zero means the default.
	ExpiresIn int `json:"expiresIn" validate:"omitempty,min=1,max=720"`
}

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member"`
}

// Invite issues a shareable single-use invitation link. Admin role required.
func (h *MemberHandler) Invite(c *gin.Context) {
	var req inviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	created, err := h.invites.Create(requestContext(c), currentUserID(c), req.BoardID, time.Duration(req.ExpiresIn)*time.Hour)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"inviteLink": created.InviteLink,
		"token":      created.Token,
		"expiresAt":  created.Invitation.ExpiresAt,
	})
}

// AcceptInvite redeems an invitation token for the caller.
func (h *MemberHandler) AcceptInvite(c *gin.Context) {
	accepted, err := h.invites.Accept(requestContext(c), currentUserID(c), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"board": accepted})
}

// ChangeRole promotes or demotes a member. Admin role required.
func (h *MemberHandler) ChangeRole(c *gin.Context) {
	var req changeRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	member, err := h.members.ChangeRole(requestContext(c), currentUserID(c), c.Param("boardId"), c.Param("memberId"), req.Role)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "role updated", "member": member})
}

// Remove takes a member off the board. Admin role required.
func (h *MemberHandler) Remove(c *gin.Context) {
	err := h.members.Remove(requestContext(c), currentUserID(c), c.Param("boardId"), c.Param("memberId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "member removed"})
}

// Leave drops the caller's own membership.
func (h *MemberHandler) Leave(c *gin.Context) {
	if err := h.members.Leave(requestContext(c), currentUserID(c), c.Param("boardId")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "left board"})
}
