package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Storage handles all database operations using SQLite
type Storage struct {
	DB *gorm.DB
}

// NewStorage opens the SQLite database inside dir, creating it as
// needed.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	dbPath := filepath.Join(dir, "spider.db")

	// Open SQLite with Glebarez (Pure Go, no CGO)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA cache_size=10000;")

	// Auto-migrate tables
	err = db.AutoMigrate(
		&GalleryRecord{},
		&DailyStat{},
		&AppSetting{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{DB: db}, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Checkpoint forces a WAL checkpoint to ensure durability
func (s *Storage) Checkpoint() error {
	return s.DB.Exec("PRAGMA wal_checkpoint(TRUNCATE);").Error
}

// ============= Gallery Records =============

// SaveGallery creates or updates a gallery record (upsert)
func (s *Storage) SaveGallery(rec GalleryRecord) error {
	rec.UpdatedAt = time.Now().Format(time.RFC3339)
	if rec.CreatedAt == "" {
		rec.CreatedAt = rec.UpdatedAt
	}
	return s.DB.Save(&rec).Error
}

// GetGallery retrieves a gallery record by gid
func (s *Storage) GetGallery(gid uint64) (GalleryRecord, error) {
	var rec GalleryRecord
	err := s.DB.First(&rec, "gid = ?", gid).Error
	return rec, err
}

// GetAllGalleries returns all gallery records, newest first
func (s *Storage) GetAllGalleries() ([]GalleryRecord, error) {
	var recs []GalleryRecord
	err := s.DB.Order("updated_at desc").Find(&recs).Error
	return recs, err
}

// DeleteGallery removes a gallery record
func (s *Storage) DeleteGallery(gid uint64) error {
	return s.DB.Delete(&GalleryRecord{}, "gid = ?", gid).Error
}

// UpdateGalleryStatus updates just the status field
func (s *Storage) UpdateGalleryStatus(gid uint64, status string) error {
	return s.DB.Model(&GalleryRecord{}).Where("gid = ?", gid).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().Format(time.RFC3339),
	}).Error
}

// IncrementGalleryFinished bumps the finished page counter
func (s *Storage) IncrementGalleryFinished(gid uint64) error {
	return s.DB.Model(&GalleryRecord{}).Where("gid = ?", gid).Updates(map[string]interface{}{
		"finished_pages": gorm.Expr("finished_pages + 1"),
		"updated_at":     time.Now().Format(time.RFC3339),
	}).Error
}

// ============= Statistics (SQL Analytics) =============

// IncrementDailyBytes adds bytes to today's stats
func (s *Storage) IncrementDailyBytes(bytes int64) error {
	today := time.Now().Format("2006-01-02")
	return s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"bytes": gorm.Expr("bytes + ?", bytes),
		}),
	}).Create(&DailyStat{Date: today, Bytes: bytes}).Error
}

// IncrementDailyPages adds a page count to today's stats
func (s *Storage) IncrementDailyPages() error {
	today := time.Now().Format("2006-01-02")
	return s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"pages": gorm.Expr("pages + 1"),
		}),
	}).Create(&DailyStat{Date: today, Pages: 1}).Error
}

// GetTotalLifetime returns total bytes downloaded all-time using SQL SUM
func (s *Storage) GetTotalLifetime() (int64, error) {
	var total int64
	err := s.DB.Model(&DailyStat{}).Select("IFNULL(SUM(bytes), 0)").Row().Scan(&total)
	return total, err
}

// GetTotalPages returns total pages downloaded all-time using SQL SUM
func (s *Storage) GetTotalPages() (int64, error) {
	var total int64
	err := s.DB.Model(&DailyStat{}).Select("IFNULL(SUM(pages), 0)").Row().Scan(&total)
	return total, err
}

// GetDailyHistory returns the last N days of stats
func (s *Storage) GetDailyHistory(days int) ([]DailyStat, error) {
	var stats []DailyStat
	err := s.DB.Order("date desc").Limit(days).Find(&stats).Error
	return stats, err
}

// ============= App Settings =============

// GetString retrieves a string setting by key
func (s *Storage) GetString(key string) (string, error) {
	var setting AppSetting
	err := s.DB.First(&setting, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	return setting.Value, err
}

// SetString stores a string setting
func (s *Storage) SetString(key, value string) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&AppSetting{Key: key, Value: value}).Error
}
