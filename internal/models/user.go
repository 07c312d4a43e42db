package models

// User is a registered account. The password hash never leaves the server.
type User struct {
	BaseModel

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	Name         string `gorm:"not null" json:"name"`

	Memberships []BoardMember `gorm:"foreignKey:UserID" json:"-"`
}
