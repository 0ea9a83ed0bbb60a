package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/curatorlabs/curator/models"
	"github.com/curatorlabs/curator/repository"
)

// FileStore keeps exported and uploaded .apkg packages on disk, with their
// metadata in the package_files table.
type FileStore struct {
	dir  string
	repo *repository.GORMRepository
	mu   sync.Mutex
}

func NewFileStore(dir string, repo *repository.GORMRepository) *FileStore {
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("Failed to create storage directory", "dir", dir, "error", err)
	}
	return &FileStore{dir: dir, repo: repo}
}

func (fs *FileStore) path(fileID string) string {
	return filepath.Join(fs.dir, fileID+".apkg")
}

// Save writes package data to disk and records it. The returned file carries
// the generated id clients use to download it.
func (fs *FileStore) Save(ctx context.Context, userID, name string, data []byte) (*models.PackageFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	sum := sha256.Sum256(data)
	file := &models.PackageFile{
		ID:     uuid.New().String(),
		UserID: userID,
		Name:   name,
		Size:   int64(len(data)),
		SHA256: hex.EncodeToString(sum[:]),
	}
	file.Path = fs.path(file.ID)

	if err := os.WriteFile(file.Path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write package file: %w", err)
	}
	if err := fs.repo.CreatePackageFile(ctx, file); err != nil {
		os.Remove(file.Path)
		return nil, err
	}

	slog.Info("Package file stored", "file_id", file.ID, "name", name, "size", file.Size)
	return file, nil
}

// Get resolves a package file of the user.
func (fs *FileStore) Get(ctx context.Context, userID, fileID string) (*models.PackageFile, error) {
	file, err := fs.repo.GetPackageFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil || file.UserID != userID {
		return nil, fmt.Errorf("package file not found: %s", fileID)
	}
	return file, nil
}

// Open returns the metadata and an open handle for streaming the package.
func (fs *FileStore) Open(ctx context.Context, userID, fileID string) (*models.PackageFile, *os.File, error) {
	file, err := fs.Get(ctx, userID, fileID)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open package file: %w", err)
	}
	return file, f, nil
}

// Delete removes a package from disk and from the table.
func (fs *FileStore) Delete(ctx context.Context, userID, fileID string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	file, err := fs.Get(ctx, userID, fileID)
	if err != nil {
		return err
	}

	if err := os.Remove(file.Path); err != nil && !os.IsNotExist(err) {
		slog.Error("Failed to remove package file", "path", file.Path, "error", err)
	}
	return fs.repo.DeletePackageFile(ctx, fileID)
}

// Stats reports how many packages are on disk and their combined size.
func (fs *FileStore) Stats() (int, int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return 0, 0, err
	}

	var totalSize int64
	fileCount := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".apkg" {
			continue
		}
		fileCount++
		if info, err := entry.Info(); err == nil {
			totalSize += info.Size()
		}
	}
	return fileCount, totalSize, nil
}
