// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hectormc-main/casa-playgroundServer/models"
)

// GormStore keeps the snapshot as rows of state_records through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormPostgreSQL connects to PostgreSQL through GORM.
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
	return NewGormStore(postgres.Open(dsn))
}

// NewGormStore opens a store on any GORM dialector and migrates the schema.
func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// saves are serialized by the state manager; a small pool covers loads alongside them
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.StateRecord{}); err != nil {
		return nil, err
	}

	return &GormStore{db: db}, nil
}

// Load reads every state record and rebuilds the snapshot.
func (p *GormStore) Load(ctx context.Context) (*models.Snapshot, error) {
	var rows []models.StateRecord
	if err := p.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load state records: %w", err)
	}

	records := make([]record, 0, len(rows))
	for _, row := range rows {
		records = append(records, record{key: row.Key, data: row.Data, version: row.Version})
	}
	return joinRecords(records)
}

// Save upserts both records in one transaction.
func (p *GormStore) Save(ctx context.Context, snapshot *models.Snapshot) error {
	records, err := splitSnapshot(snapshot)
	if err != nil {
		return err
	}

	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, r := range records {
			row := models.StateRecord{Key: r.key, Data: r.data, Version: r.version, UpdatedAt: now}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "record_key"}},
				DoUpdates: clause.AssignmentColumns([]string{"data", "version", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Close closes the underlying connection pool.
func (p *GormStore) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
