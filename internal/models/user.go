package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User backs the demo host application's login flow. The interceptor only
// ever sees the username as the authenticated-subject identifier.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	UUID         string    `json:"uuid" gorm:"uniqueIndex"`
	Username     string    `json:"username" gorm:"uniqueIndex"`
	PasswordHash string    `json:"-"` // Never serialize password hash
	Enabled      bool      `json:"enabled" gorm:"default:true"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SetPassword hashes and sets the user's password.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares the provided password with the stored hash.
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}
