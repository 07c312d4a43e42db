package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fusen-app/fusen/internal/database/testutil"
	"github.com/fusen-app/fusen/internal/models"
	"github.com/fusen-app/fusen/internal/permissions"
)

type testEnv struct {
	db      *gorm.DB
	guard   *permissions.Guard
	users   *UserService
	boards  *BoardService
	tasks   *TaskService
	members *MemberService
	invites *InviteService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	guard, err := permissions.NewGuard(db)
	require.NoError(t, err)

	users, err := NewUserService(db)
	require.NoError(t, err)
	boards, err := NewBoardService(db)
	require.NoError(t, err)
	tasks, err := NewTaskService(db, guard)
	require.NoError(t, err)
	members, err := NewMemberService(db, guard)
	require.NoError(t, err)
	invites, err := NewInviteService(db, guard, InviteOptions{})
	require.NoError(t, err)

	return &testEnv{
		db:      db,
		guard:   guard,
		users:   users,
		boards:  boards,
		tasks:   tasks,
		members: members,
		invites: invites,
	}
}

func (e *testEnv) createUser(t *testing.T, email, name string) models.User {
	t.Helper()

	user := models.User{Email: email, PasswordHash: "x", Name: name}
	require.NoError(t, e.db.Create(&user).Error)
	return user
}

func (e *testEnv) addMember(t *testing.T, boardID, userID, role string) {
	t.Helper()

	member := models.BoardMember{BoardID: boardID, UserID: userID, Role: role}
	require.NoError(t, e.db.Create(&member).Error)
}
