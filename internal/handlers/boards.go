package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fusen-app/fusen/internal/permissions"
	"github.com/fusen-app/fusen/internal/services"
	"github.com/fusen-app/fusen/pkg/response"
)

// BoardHandler exposes board CRUD endpoints.
type BoardHandler struct {
	boards *services.BoardService
	guard  *permissions.Guard
}

// NewBoardHandler constructs a BoardHandler instance.
func NewBoardHandler(boards *services.BoardService, guard *permissions.Guard) (*BoardHandler, error) {
	if boards == nil {
		return nil, errors.New("board handler: board service is required")
	}
	if guard == nil {
		return nil, errors.New("board handler: guard is required")
	}
	return &BoardHandler{boards: boards, guard: guard}, nil
}

type createBoardRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type updateBoardRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// List returns every board the caller belongs to together with their role.
func (h *BoardHandler) List(c *gin.Context) {
	boards, err := h.boards.ListForUser(requestContext(c), currentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"boards": boards})
}

// Create makes a board with the caller as its owner.
func (h *BoardHandler) Create(c *gin.Context) {
	var req createBoardRequest
	if !bindAndValidate(c, &req) {
		return
	}

	board, err := h.boards.Create(requestContext(c), currentUserID(c), req.Name, req.Description)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"board": board})
}

// Get returns a single board together with its member roster.
func (h *BoardHandler) Get(c *gin.Context) {
	ctx := requestContext(c)
	boardID := c.Param("boardId")

	if _, err := h.guard.RequireMember(ctx, currentUserID(c), boardID); err != nil {
		response.Error(c, err)
		return
	}

	board, err := h.boards.Get(ctx, boardID)
	if err != nil {
		response.Error(c, err)
		return
	}

	members, err := h.boards.ListMembers(ctx, boardID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"board": board, "members": members})
}

// Update patches board name/description. Admin role required.
func (h *BoardHandler) Update(c *gin.Context) {
	ctx := requestContext(c)
	boardID := c.Param("boardId")

	if _, err := h.guard.RequireAdmin(ctx, currentUserID(c), boardID); err != nil {
		response.Error(c, err)
		return
	}

	var req updateBoardRequest
	if !bindAndValidate(c, &req) {
		return
	}

	board, err := h.boards.Update(ctx, boardID, services.UpdateBoardInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"board": board})
}

// Delete removes a board and everything attached to it. Owner only.
func (h *BoardHandler) Delete(c *gin.Context) {
	ctx := requestContext(c)
	boardID := c.Param("boardId")

	if _, err := h.guard.RequireOwner(ctx, currentUserID(c), boardID); err != nil {
		response.Error(c, err)
		return
	}

	if err := h.boards.Delete(ctx, boardID); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "board deleted"})
}
