package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/authsvc/internal/models"
)

// UpsertSession replaces the session of userID in a single statement. Last writer wins.
func (r *GormRepo) UpsertSession(ctx context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time) error {
	session := models.RefreshSession{
		UserID:    userID,
		TokenHash: TokenHash(refreshToken),
		ExpiresAt: expiresAt.UTC(),
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token_hash", "expires_at", "updated_at"}),
	}).Create(&session).Error
}

// RotateSession swaps oldToken for newToken only while oldToken is still the stored one.
func (r *GormRepo) RotateSession(ctx context.Context, userID uuid.UUID, oldToken, newToken string, expiresAt time.Time) error {
	res := r.DB.WithContext(ctx).Model(&models.RefreshSession{}).
		Where("user_id = ? AND token_hash = ?", userID, TokenHash(oldToken)).
		Updates(map[string]any{
			"token_hash": TokenHash(newToken),
			"expires_at": expiresAt.UTC(),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) FindSessionByToken(ctx context.Context, refreshToken string) (*models.RefreshSession, error) {
	var session models.RefreshSession
	err := r.DB.WithContext(ctx).Where("token_hash = ?", TokenHash(refreshToken)).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (r *GormRepo) DeleteSessionByToken(ctx context.Context, refreshToken string) (int64, error) {
	res := r.DB.WithContext(ctx).
		Where("token_hash = ?", TokenHash(refreshToken)).
		Delete(&models.RefreshSession{})
	return res.RowsAffected, res.Error
}
