package db

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/VishwesGopal13/Automotive-Service/internal/logger"
	"github.com/VishwesGopal13/Automotive-Service/internal/repository"
)

const sqlitePrefix = "sqlite:"

// New opens a database from a URL. "sqlite:<path>" selects the embedded driver; anything
// else is handed to postgres as a DSN.
func New(url string, log logger.Logger) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	if path, ok := strings.CutPrefix(url, sqlitePrefix); ok {
		db, err = gorm.Open(sqlite.Open(path), cfg)
	} else {
		db, err = gorm.Open(postgres.Open(url), cfg)
	}
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if db.Dialector.Name() == "sqlite" {
		// one writer at a time; avoids SQLITE_BUSY under concurrent transitions
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
	}

	log.Info("connected to database", "dialect", db.Dialector.Name())
	return db, nil
}

// Migrate creates or updates the job card and catalog tables.
func Migrate(db *gorm.DB) error {
	return errors.Wrap(db.AutoMigrate(repository.Records()...), "auto migrate")
}
