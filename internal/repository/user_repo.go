package repository

import (
	"context"

	"cryptopulse/internal/models"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithContext scopes every query of the returned repository to ctx.
func (r *UserRepository) WithContext(ctx context.Context) *UserRepository {
	return &UserRepository{db: r.db.WithContext(ctx)}
}

func (r *UserRepository) Create(u *models.User) error {
	return r.db.Create(u).Error
}

func (r *UserRepository) GetByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(email string) (*models.User, error) {
	var u models.User
	if err := r.db.Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UsernameTaken reports whether another user than exceptID holds username.
func (r *UserRepository) UsernameTaken(username string, exceptID uint) (bool, error) {
	var n int64
	err := r.db.Model(&models.User{}).Where("username = ? AND id <> ?", username, exceptID).Count(&n).Error
	return n > 0, err
}

func (r *UserRepository) Update(u *models.User) error {
	return r.db.Save(u).Error
}

// DeleteAccount removes the user and everything they own in one transaction.
func (r *UserRepository) DeleteAccount(id uint) (bool, error) {
	var deleted bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, owned := range []any{
			&models.Favorite{},
			&models.NotificationRule{},
			&models.DeliveryLog{},
			&models.PushToken{},
		} {
			if err := tx.Where("user_id = ?", id).Delete(owned).Error; err != nil {
				return err
			}
		}
		res := tx.Where("id = ?", id).Delete(&models.User{})
		deleted = res.RowsAffected > 0
		return res.Error
	})
	return deleted, err
}
