package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/keagan/clipbot/internal/media"
)

// DefaultDBFile is used when no path is configured.
const DefaultDBFile = "clipbot.sqlite3"

const errStoreNil = "store is nil"

// Store persists extracted feature frames and batch run history.
type Store struct {
	DB *gorm.DB
	db *sql.DB
}

// FrameSet is the cached extraction of one asset version. Analysis is the
// extractor fingerprint the frames were produced with.
type FrameSet struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Path      string `gorm:"uniqueIndex:idx_frames_key,priority:1"`
	ModTime   int64  `gorm:"uniqueIndex:idx_frames_key,priority:2"`
	Size      int64  `gorm:"uniqueIndex:idx_frames_key,priority:3"`
	WindowNS  int64  `gorm:"uniqueIndex:idx_frames_key,priority:4"`
	Analysis  string `gorm:"type:varchar(64);uniqueIndex:idx_frames_key,priority:5"`
	Count     int
	Frames    []byte
	CreatedAt time.Time
}

// FrameKey identifies one analysis of one asset version.
type FrameKey struct {
	Window   time.Duration
	Analysis string
}

// Run is one batch invocation.
type Run struct {
	ID         string `gorm:"primaryKey;type:varchar(26)"`
	Input      string
	Output     string
	StartedAt  time.Time `gorm:"index:idx_run_started"`
	FinishedAt time.Time
	Processed  int
	Completed  int
	Skipped    int
	Failed     int
	Clips      int
	Outcomes   []Outcome `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

// Outcome is the result recorded for one asset of a run.
type Outcome struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	RunID     string `gorm:"type:varchar(26);index:idx_outcome_run"`
	Seq       int
	AssetID   string
	Path      string
	Status    string
	Reason    string
	Clips     int
	Truncated bool
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultDBFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// workers share one writer
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&FrameSet{}, &Run{}, &Outcome{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{DB: db, db: sqlDB}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func frameSet(asset media.Asset, key FrameKey) FrameSet {
	return FrameSet{
		Path:     asset.Path,
		ModTime:  asset.ModTime.UnixNano(),
		Size:     asset.Size,
		WindowNS: int64(key.Window),
		Analysis: key.Analysis,
	}
}

// LoadFrames returns the cached frames of asset analyzed under key. The
// boolean is false on a miss, including when the file changed since.
func (s *Store) LoadFrames(asset media.Asset, key FrameKey) ([]media.FeatureFrame, bool, error) {
	if s == nil || s.DB == nil {
		return nil, false, errors.New(errStoreNil)
	}

	k := frameSet(asset, key)
	var set FrameSet
	err := s.DB.Where("path = ? AND mod_time = ? AND size = ? AND window_ns = ? AND analysis = ?",
		k.Path, k.ModTime, k.Size, k.WindowNS, k.Analysis).First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("querying frames: %w", err)
	}

	var frames []media.FeatureFrame
	if err := json.Unmarshal(set.Frames, &frames); err != nil {
		return nil, false, fmt.Errorf("decoding cached frames: %w", err)
	}
	if len(frames) != set.Count {
		return nil, false, nil
	}
	return frames, true, nil
}

// SaveFrames replaces every cached version of asset under key with frames.
func (s *Store) SaveFrames(asset media.Asset, key FrameKey, frames []media.FeatureFrame) error {
	if s == nil || s.DB == nil {
		return errors.New(errStoreNil)
	}

	data, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("encoding frames: %w", err)
	}
	set := frameSet(asset, key)
	set.Count = len(frames)
	set.Frames = data

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("path = ? AND window_ns = ? AND analysis = ?", set.Path, set.WindowNS, set.Analysis).Delete(&FrameSet{}).Error; err != nil {
			return fmt.Errorf("clearing stale frames: %w", err)
		}
		if err := tx.Create(&set).Error; err != nil {
			return fmt.Errorf("storing frames: %w", err)
		}
		return nil
	})
}

// SaveRun stores a run and its outcomes.
func (s *Store) SaveRun(run *Run) error {
	if s == nil || s.DB == nil {
		return errors.New(errStoreNil)
	}
	if run.ID == "" {
		return errors.New("run id is required")
	}
	for i := range run.Outcomes {
		run.Outcomes[i].RunID = run.ID
		run.Outcomes[i].Seq = i
	}
	if err := s.DB.Create(run).Error; err != nil {
		return fmt.Errorf("storing run: %w", err)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first, with their outcomes in
// report order. A limit <= 0 returns every run.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New(errStoreNil)
	}

	q := s.DB.Order("started_at DESC").
		Preload("Outcomes", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") })
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []Run
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}
