package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"GreenCorridor/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const stampLayout = "20060102_150405"

// Snapshotter writes every row of table T to a timestamped JSON file and can
// load the newest one back. It is driver independent, so an in-memory sqlite
// directory survives restarts.
type Snapshotter[T any] struct {
	db     *gorm.DB
	dir    string
	prefix string
	// number of snapshot files kept; older ones are removed after each run
	keep int
	now  func() time.Time
}

func NewSnapshotter[T any](db *gorm.DB, dir, prefix string, keep int) *Snapshotter[T] {
	if keep <= 0 {
		keep = 5
	}
	return &Snapshotter[T]{db: db, dir: dir, prefix: prefix, keep: keep, now: time.Now}
}

// Run is the scheduled job. Failures are logged.
func (s *Snapshotter[T]) Run(ctx context.Context) {
	path, n, err := s.Snapshot(ctx)
	if err != nil {
		logger.Warn("backup failed", zap.String("prefix", s.prefix), zap.Error(err))
		return
	}
	logger.Info("backup completed", zap.String("file", path), zap.Int("rows", n))
}

// Snapshot 执行备份 and prunes old files.
func (s *Snapshotter[T]) Snapshot(ctx context.Context) (string, int, error) {
	var rows []T
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return "", 0, fmt.Errorf("read rows: %w", err)
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create backup directory: %w", err)
	}
	dst := filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", s.prefix, s.now().Format(stampLayout)))
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		return "", 0, err
	}
	s.prune()
	return dst, len(rows), nil
}

// RestoreLatest upserts the rows of the newest snapshot. No snapshot is not an error.
func (s *Snapshotter[T]) RestoreLatest(ctx context.Context) (int, error) {
	files := s.files()
	if len(files) == 0 {
		return 0, nil
	}
	latest := files[len(files)-1]
	data, err := os.ReadFile(latest)
	if err != nil {
		return 0, err
	}
	var rows []T
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("decode %s: %w", latest, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
		return 0, fmt.Errorf("restore %s: %w", latest, err)
	}
	return len(rows), nil
}

// files lists this snapshotter's files oldest first; the timestamp sorts lexically.
func (s *Snapshotter[T]) files() []string {
	matches, _ := filepath.Glob(filepath.Join(s.dir, s.prefix+"_*.json"))
	out := matches[:0]
	for _, m := range matches {
		if !strings.HasSuffix(m, ".tmp") {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Snapshotter[T]) prune() {
	files := s.files()
	for len(files) > s.keep {
		if err := os.Remove(files[0]); err != nil {
			logger.Warn("remove old backup", zap.String("file", files[0]), zap.Error(err))
		}
		files = files[1:]
	}
}
