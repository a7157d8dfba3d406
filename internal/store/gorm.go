package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/gridsync/internal/grid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gridRecord is the table row. Cells are kept as one JSONB document; the
// dimensions are denormalised so listing does not decode every grid.
type gridRecord struct {
	ID        string    `gorm:"primaryKey;type:text"`
	Owner     string    `gorm:"index;not null"`
	Rows      int       `gorm:"not null"`
	Cols      int       `gorm:"not null"`
	Cells     grid.Grid `gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

func (gridRecord) TableName() string { return "grids" }

func (r gridRecord) toPackage() grid.Package {
	return grid.Package{ID: r.ID, Owner: r.Owner, Grid: r.Cells, UpdatedAt: r.UpdatedAt}
}

// GormStore is the Postgres-backed Store.
type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

func OpenPostgres(dsn string, log *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return NewGormStore(db, log)
}

// NewGormStore migrates the grids table on db.
func NewGormStore(db *gorm.DB, log *zap.Logger) (*GormStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&gridRecord{}); err != nil {
		return nil, fmt.Errorf("migrate grids: %w", err)
	}
	return &GormStore{db: db, log: log.Named("store")}, nil
}

func (s *GormStore) Save(ctx context.Context, p grid.Package) (grid.Package, error) {
	if err := validate(p); err != nil {
		return grid.Package{}, err
	}

	rec := gridRecord{
		ID:    p.ID,
		Owner: p.Owner,
		Rows:  p.Grid.Height(),
		Cols:  p.Grid.Width(),
		Cells: p.Grid,
	}

	db := s.db.WithContext(ctx)
	if rec.ID == "" {
		rec.ID = newID()
		if err := db.Create(&rec).Error; err != nil {
			return grid.Package{}, fmt.Errorf("insert grid: %w", err)
		}
		s.log.Debug("grid created", zap.String("grid_id", rec.ID), zap.String("owner", rec.Owner))
		return rec.toPackage(), nil
	}

	res := db.Model(&gridRecord{ID: rec.ID}).Select("owner", "rows", "cols", "cells", "updated_at").Updates(&rec)
	if res.Error != nil {
		return grid.Package{}, fmt.Errorf("update grid %s: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return grid.Package{}, ErrNotFound
	}
	return s.Get(ctx, rec.ID)
}

func (s *GormStore) Get(ctx context.Context, id string) (grid.Package, error) {
	var rec gridRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return grid.Package{}, ErrNotFound
	}
	if err != nil {
		return grid.Package{}, fmt.Errorf("load grid %s: %w", id, err)
	}
	return rec.toPackage(), nil
}

func (s *GormStore) List(ctx context.Context, owner string) ([]grid.Summary, error) {
	var recs []gridRecord
	q := s.db.WithContext(ctx).Model(&gridRecord{}).
		Select("id", "owner", "rows", "cols", "updated_at").
		Order("updated_at DESC")
	if owner != "" {
		q = q.Where("owner = ?", owner)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list grids: %w", err)
	}

	list := make([]grid.Summary, 0, len(recs))
	for _, r := range recs {
		list = append(list, grid.Summary{ID: r.ID, Owner: r.Owner, Rows: r.Rows, Cols: r.Cols, UpdatedAt: r.UpdatedAt})
	}
	return list, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
