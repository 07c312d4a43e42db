package models

// Board is the aggregate root: memberships, tasks and invitations belong to
// it and are removed with it.
type Board struct {
	BaseModel

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	OwnerID     string `gorm:"type:uuid;index;not null" json:"owner_id"`

	Owner       *User         `gorm:"foreignKey:OwnerID" json:"-"`
	Members     []BoardMember `gorm:"foreignKey:BoardID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	Tasks       []Task        `gorm:"foreignKey:BoardID;constraint:OnDelete:CASCADE" json:"-"`
	Invitations []Invitation  `gorm:"foreignKey:BoardID;constraint:OnDelete:CASCADE" json:"-"`
}
