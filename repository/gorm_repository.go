package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/curatorlabs/curator/models"
	"gorm.io/gorm"
)

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Deck{},
		&models.Card{},
		&models.ChatMessage{},
		&models.SRSAction{},
		&models.PackageFile{},
	)
}

// User operations
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		slog.Error("Failed to create user", "error", err)
		return err
	}
	slog.Info("User created", "user_id", user.ID, "name", user.Name)
	return nil
}

func (r *GORMRepository) GetUserByName(ctx context.Context, name string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by name", "error", err, "name", name)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by ID", "error", err, "user_id", id)
		return nil, err
	}
	return &user, nil
}

// GetOrCreateUserByName resolves the user named in an event payload, creating
// the row on first contact. Events are keyed by display name.
func (r *GORMRepository) GetOrCreateUserByName(ctx context.Context, name string) (*models.User, error) {
	user, err := r.GetUserByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user = &models.User{Name: name}
	if err := r.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Token operations
func (r *GORMRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, time.Now()).First(&refreshToken).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get refresh token", "error", err)
		return nil, err
	}
	return &refreshToken, nil
}

func (r *GORMRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) DeleteAllUserTokens(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete user refresh tokens", "error", err, "user_id", userID)
		return err
	}
	return nil
}

// Package file operations
func (r *GORMRepository) CreatePackageFile(ctx context.Context, file *models.PackageFile) error {
	if err := r.db.WithContext(ctx).Create(file).Error; err != nil {
		slog.Error("Failed to create package file", "error", err)
		return err
	}
	slog.Info("Package file created", "file_id", file.ID, "name", file.Name, "size", file.Size)
	return nil
}

func (r *GORMRepository) GetPackageFile(ctx context.Context, fileID string) (*models.PackageFile, error) {
	var file models.PackageFile
	if err := r.db.WithContext(ctx).Where("id = ?", fileID).First(&file).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get package file", "error", err, "file_id", fileID)
		return nil, err
	}
	return &file, nil
}

func (r *GORMRepository) DeletePackageFile(ctx context.Context, fileID string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", fileID).Delete(&models.PackageFile{}).Error; err != nil {
		slog.Error("Failed to delete package file", "error", err, "file_id", fileID)
		return err
	}
	return nil
}
