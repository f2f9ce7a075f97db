package storage

// GalleryRecord tracks one gallery's download bookkeeping in the
// database.
type GalleryRecord struct {
	GID           uint64 `gorm:"primaryKey;column:gid" json:"gid"`
	Token         string `json:"token"`
	Title         string `json:"title"`
	Pages         int    `json:"pages"`
	FinishedPages int    `json:"finished_pages"`
	Status        string `gorm:"index" json:"status"` // reading, downloading, finished, error
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// TableName specifies the table name for GalleryRecord
func (GalleryRecord) TableName() string {
	return "gallery_records"
}

// DailyStat tracks daily transfer statistics for analytics
type DailyStat struct {
	Date  string `gorm:"primaryKey"` // Format: "YYYY-MM-DD"
	Bytes int64  `gorm:"default:0"`  // Total bytes for this day
	Pages int64  `gorm:"default:0"`  // Pages completed this day
}

// TableName specifies the table name for DailyStat
func (DailyStat) TableName() string {
	return "daily_stats"
}

// AppSetting stores key-value application settings
type AppSetting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// TableName specifies the table name for AppSetting
func (AppSetting) TableName() string {
	return "app_settings"
}
