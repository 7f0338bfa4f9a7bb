package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"deltauid-backend-go/internal/config"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// 支持的数据库驱动
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Database struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
}

func NewDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*Database, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Driver {
	case DriverSQLite:
		db, err = sql.Open(DriverSQLite, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("打开数据库连接失败: %w", err)
		}
		// SQLite 单写者
		db.SetMaxOpenConns(1)
	case DriverMySQL, "":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User,
			cfg.Password,
			cfg.Host,
			cfg.Port,
			cfg.DBName,
		)
		db, err = sql.Open(DriverMySQL, dsn)
		if err != nil {
			return nil, fmt.Errorf("打开数据库连接失败: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(time.Hour)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DriverMySQL
	}

	d := &Database{
		db:     db,
		driver: driver,
		logger: logger,
	}
	if err := d.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("✅ 数据库连接成功",
		zap.String("driver", driver),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName))

	return d, nil
}

func (d *Database) GetDB() *sql.DB {
	return d.db
}

func (d *Database) Driver() string {
	return d.driver
}

func (d *Database) Close() error {
	return d.db.Close()
}

// 健康检查
func (d *Database) Ping() error {
	return d.db.Ping()
}

// Migrate 创建凭据表
func (d *Database) Migrate(ctx context.Context) error {
	var ddl string
	if d.driver == DriverSQLite {
		ddl = `CREATE TABLE IF NOT EXISTS df_credentials (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			bot_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			group_id TEXT NOT NULL DEFAULT '',
			platform TEXT NOT NULL,
			open_id TEXT NOT NULL,
			access_token TEXT NOT NULL,
			is_valid BOOLEAN NOT NULL DEFAULT 1,
			last_check_at DATETIME NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (bot_id, user_id)
		)`
	} else {
		ddl = `CREATE TABLE IF NOT EXISTS df_credentials (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			bot_id VARCHAR(64) NOT NULL,
			user_id VARCHAR(64) NOT NULL,
			group_id VARCHAR(64) NOT NULL DEFAULT '',
			platform VARCHAR(8) NOT NULL,
			open_id VARCHAR(128) NOT NULL,
			access_token VARCHAR(512) NOT NULL,
			is_valid BOOLEAN NOT NULL DEFAULT TRUE,
			last_check_at DATETIME NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uk_bot_user (bot_id, user_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	}

	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("创建凭据表失败: %w", err)
	}
	return nil
}
