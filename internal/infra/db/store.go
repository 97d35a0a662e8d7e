package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reconledger/internal/config"
	"reconledger/internal/infra/logging"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	sqlitePrefix     = "sqlite:"
	defaultSQLiteDSN = "file:reconledger.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
)

type Store struct {
	DB *gorm.DB

	Tickets       *TicketRepository
	PaymentAudits *PaymentAuditRepository
	CashBags      *CashBagRepository
}

func NewStore(cfg config.DatabaseConfig, log *zap.Logger) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		log.Warn("POSTGRES_DSN not set; using local sqlite database", zap.String("dsn", defaultSQLiteDSN))
		dsn = sqlitePrefix + defaultSQLiteDSN
	}

	var dialector gorm.Dialector
	sqliteMode := strings.HasPrefix(dsn, sqlitePrefix)
	if sqliteMode {
		dialector = sqlite.Open(strings.TrimPrefix(dsn, sqlitePrefix))
	} else {
		dialector = postgres.Open(dsn)
	}

	gdb, err := Open(dialector, log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("db handle: %w", err)
	}
	if sqliteMode {
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}
	return NewStoreFromDB(gdb), nil
}

// Open connects through gorm with zap logging and driver error translation.
func Open(dialector gorm.Dialector, log *zap.Logger) (*gorm.DB, error) {
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logging.NewGormLogger(log),
		TranslateError: true,
		NowFunc:        func() time.Time { return normalizeTime(time.Now()) },
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", dialector.Name(), err)
	}
	return gdb, nil
}

func NewStoreFromDB(gdb *gorm.DB) *Store {
	return &Store{
		DB:            gdb,
		Tickets:       NewTicketRepository(gdb),
		PaymentAudits: NewPaymentAuditRepository(gdb),
		CashBags:      NewCashBagRepository(gdb),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	if s.DB == nil {
		return errDBUnavailable
	}
	if err := s.DB.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.DB == nil {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
