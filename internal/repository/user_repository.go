package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"samchat/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByEmail(email string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by email failed: %w", err)
	}
	return &user, nil
}

// EnsureByEmail returns the user with the given email, creating it on first
// registration. Registering twice is not an error.
func (r *UserRepository) EnsureByEmail(email string) (*model.User, error) {
	user := model.User{Email: email}
	if err := r.db.Where(model.User{Email: email}).FirstOrCreate(&user).Error; err != nil {
		return nil, fmt.Errorf("ensure user failed: %w", err)
	}
	return &user, nil
}
