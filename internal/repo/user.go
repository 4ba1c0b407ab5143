package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/authsvc/internal/models"
)

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return r.duplicateKind(ctx, u)
		}
		return err
	}
	return nil
}

// duplicateKind tells which unique column a failed insert collided on.
func (r *GormRepo) duplicateKind(ctx context.Context, u *models.User) error {
	if _, err := r.FindUserByEmail(ctx, u.Email); err == nil {
		return ErrDuplicateEmail
	}
	return ErrDuplicateLogin
}

func (r *GormRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findUser(ctx, "email = ?", email)
}

func (r *GormRepo) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	return r.findUser(ctx, "login = ?", login)
}

func (r *GormRepo) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.findUser(ctx, "id = ?", id)
}

func (r *GormRepo) FindUserByActivationLink(ctx context.Context, link string) (*models.User, error) {
	if link == "" {
		return nil, ErrNotFound
	}
	return r.findUser(ctx, "activation_link = ?", link)
}

func (r *GormRepo) findUser(ctx context.Context, query string, arg any) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SaveActivation persists the activation flag and the (possibly cleared) activation link.
func (r *GormRepo) SaveActivation(ctx context.Context, u *models.User) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", u.ID).
		Updates(map[string]any{
			"is_activated":    u.IsActivated,
			"activation_link": u.ActivationLink,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) SaveRoles(ctx context.Context, u *models.User) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", u.ID).
		Update("roles", u.Roles)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return nil
}

func (r *GormRepo) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Order("created_at, email").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}
