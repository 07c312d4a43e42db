package models

import "time"

// Task statuses: each value names a board lane.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Task is a sticky note on a board. Position orders tasks within their
// status lane; ties fall back to creation order when listing.
type Task struct {
	BaseModel

	BoardID     string     `gorm:"type:uuid;not null;index" json:"board_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	Status      string     `gorm:"not null;default:todo;index" json:"status"`
	AssigneeID  *string    `gorm:"type:uuid;index" json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
	TagColor    string     `json:"tag_color"`
	Position    int        `gorm:"not null;default:0" json:"position"`
	CreatedBy   string     `gorm:"type:uuid" json:"created_by"`

	Assignee *User `gorm:"foreignKey:AssigneeID;constraint:OnDelete:SET NULL" json:"assignee,omitempty"`
}

// ValidStatus reports whether status is one of the known lane values.
func ValidStatus(status string) bool {
	switch status {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}
