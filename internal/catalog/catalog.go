// Package catalog records where corpus images came from.
//
// The catalog is a SQLite database with one row per image, keyed by the
// image path relative to the image root. It is optional: search works
// without it, but results can then not link back to the archive.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for unknown paths.
var ErrNotFound = errors.New("image not in catalog")

// Image is a catalog entry.
type Image struct {
	Path      string    `gorm:"primaryKey" json:"path"`
	URL       string    `json:"url,omitempty"`
	Date      string    `json:"date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog is an open catalog database.
type Catalog struct {
	db *gorm.DB
}

// Open opens or creates the catalog at path. The pure-Go SQLite driver is
// used, so no C toolchain is required.
func Open(path string) (*Catalog, error) {
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: path}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Image{}); err != nil {
		return nil, fmt.Errorf("migrate catalog %s: %w", path, err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Add inserts images, replacing URL and date of existing paths.
func (c *Catalog) Add(images ...Image) error {
	if len(images) == 0 {
		return nil
	}
	for i := range images {
		images[i].Path = filepath.ToSlash(images[i].Path)
	}
	return c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"url", "date"}),
	}).Create(&images).Error
}

// AddFolder adds every image below dir. Paths are stored relative to root,
// which must contain dir. Paths already in the catalog are left as they
// are. It returns the number of images found.
func (c *Catalog) AddFolder(root, dir string) (int, error) {
	var images []Image
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isImage(p) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if strings.HasPrefix(rel, "..") {
			return fmt.Errorf("%s is outside %s", p, root)
		}
		images = append(images, Image{Path: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(images) == 0 {
		return 0, nil
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Path < images[j].Path })

	err = c.db.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&images, 200).Error
	if err != nil {
		return 0, err
	}
	return len(images), nil
}

// Get looks up an image by path.
func (c *Catalog) Get(path string) (*Image, error) {
	var img Image
	err := c.db.Where("path = ?", filepath.ToSlash(path)).Take(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// List returns all images ordered by path.
func (c *Catalog) List() ([]Image, error) {
	var images []Image
	err := c.db.Order("path").Find(&images).Error
	return images, err
}

// Count is the number of images.
func (c *Catalog) Count() (int64, error) {
	var n int64
	err := c.db.Model(&Image{}).Count(&n).Error
	return n, err
}

func isImage(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
