package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"intraday/internal/store"
	"intraday/internal/store/model"
	"intraday/internal/types"
)

// GormStore 基于 Gorm + SQLite 实现 store.Store。
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 数据库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&model.SessionModel{},
		&model.TradeModel{},
		&model.IntentModel{},
		&model.ErrorModel{},
		&model.BacktestRunModel{},
	); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 引擎单线程写，HTTP 并发读；WAL 下两个连接足够。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Tx(ctx context.Context, fn func(tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// --------------------------- Sessions ------------------------------

func (s *GormStore) Load(ctx context.Context) ([]types.Session, error) {
	return s.List(ctx, "")
}

func (s *GormStore) List(ctx context.Context, status types.SessionStatus) ([]types.Session, error) {
	var rows []model.SessionModel
	q := s.db.WithContext(ctx).Order("id ASC")
	if status != "" {
		q = q.Where("status = ?", string(status))
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, sessionFromModel(row))
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, id string) (types.Session, error) {
	var row model.SessionModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Session{}, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return types.Session{}, err
	}
	return sessionFromModel(row), nil
}

func (s *GormStore) Save(ctx context.Context, sess types.Session) error {
	row, err := sessionToModel(sess)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&row).Error
}

// --------------------------- Trades ------------------------------

func (s *GormStore) SaveTrade(ctx context.Context, trade types.Trade) error {
	row := tradeToModel(trade)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&row).Error
}

func (s *GormStore) GetTrade(ctx context.Context, id string) (types.Trade, error) {
	var row model.TradeModel
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Trade{}, fmt.Errorf("trade %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return types.Trade{}, err
	}
	return tradeFromModel(row), nil
}

func (s *GormStore) ListTrades(ctx context.Context, sessionID string) ([]types.Trade, error) {
	var rows []model.TradeModel
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("entry_time ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.Trade, 0, len(rows))
	for _, row := range rows {
		out = append(out, tradeFromModel(row))
	}
	return out, nil
}

// --------------------------- Intents ------------------------------

func (s *GormStore) SaveIntent(ctx context.Context, intent types.TradeIntent) error {
	row := intentToModel(intent)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&row).Error
}

func (s *GormStore) PendingIntents(ctx context.Context) ([]types.TradeIntent, error) {
	var rows []model.IntentModel
	if err := s.db.WithContext(ctx).
		Where("status = ?", string(types.IntentPending)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.TradeIntent, 0, len(rows))
	for _, row := range rows {
		out = append(out, intentFromModel(row))
	}
	return out, nil
}

// --------------------------- Errors ------------------------------

func (s *GormStore) RecordError(ctx context.Context, rec types.ErrorRecord) error {
	row := model.ErrorModel{
		SessionID: rec.SessionID,
		Kind:      rec.Kind,
		Message:   rec.Message,
		At:        unixMilli(rec.At),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) ListErrors(ctx context.Context, sessionID string, limit int) ([]types.ErrorRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.ErrorModel
	q := s.db.WithContext(ctx).Order("at DESC, id DESC").Limit(limit)
	if sessionID != "" {
		q = q.Where("session_id = ?", sessionID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.ErrorRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.ErrorRecord{
			SessionID: row.SessionID,
			Kind:      row.Kind,
			Message:   row.Message,
			At:        fromMilli(row.At),
		})
	}
	return out, nil
}

// --------------------------- Backtest runs ------------------------------

func (s *GormStore) SaveBacktestRun(ctx context.Context, run store.BacktestRun) error {
	row := backtestToModel(run)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(&row).Error
}

func (s *GormStore) ListBacktestRuns(ctx context.Context, limit int) ([]store.BacktestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []model.BacktestRunModel
	if err := s.db.WithContext(ctx).Order("created_at DESC, id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.BacktestRun, 0, len(rows))
	for _, row := range rows {
		out = append(out, backtestFromModel(row))
	}
	return out, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return b
}
