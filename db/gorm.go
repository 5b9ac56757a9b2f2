package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	mysqldrv "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"AzzKaraoke/config"
	"AzzKaraoke/logger"
	"AzzKaraoke/model"
)

// GormDB 是全局 GORM 连接，db_driver 为 none 时为 nil
var GormDB *gorm.DB

// MySQLDSN builds the go-sql-driver DSN for cfg.
func MySQLDSN(cfg *config.Config, withDatabase bool) string {
	c := mysqldrv.NewConfig()
	c.User = cfg.DBUser
	c.Passwd = cfg.DBPassword
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%s", cfg.DBHost, cfg.DBPort)
	if withDatabase {
		c.DBName = cfg.DBName
	}
	c.ParseTime = true
	c.Loc = time.Local
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		// 禁用外键约束
		DisableForeignKeyConstraintWhenMigrating: true,
	}
}

// ConnectGormDB opens the configured database and migrates the schema.
func ConnectGormDB(cfg *config.Config) (*gorm.DB, error) {
	var (
		gdb *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "mysql":
		if err := EnsureMySQLDatabase(cfg); err != nil {
			return nil, err
		}
		gdb, err = gorm.Open(gormmysql.Open(MySQLDSN(cfg, true)), gormConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to connect database with GORM: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	case "sqlite":
		gdb, err = OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("database driver %q has no connection", cfg.DBDriver)
	}

	if err := AutoMigrate(gdb); err != nil {
		return nil, err
	}
	GormDB = gdb

	logger.Info("数据库连接成功", logger.String("driver", cfg.DBDriver))
	return gdb, nil
}

// OpenSQLite opens (creating if needed) a pure-Go SQLite database. The path
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite 单写者；内存库每个连接都是独立数据库
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

// AutoMigrate creates or updates the tables of the persisted models.
func AutoMigrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&model.KaraokeSession{}); err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	return nil
}

// CloseGormDB 关闭 GORM 数据库连接
func CloseGormDB(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
