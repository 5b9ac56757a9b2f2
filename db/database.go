package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"AzzKaraoke/config"
	"AzzKaraoke/logger"
)

// EnsureMySQLDatabase connects without selecting a schema and creates the
// configured database when it does not exist yet.
func EnsureMySQLDatabase(cfg *config.Config) error {
	name := cfg.DBName
	if name == "" || strings.ContainsAny(name, "`;") {
		return fmt.Errorf("invalid database name %q", name)
	}

	conn, err := sql.Open("mysql", MySQLDSN(cfg, false))
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", name)
	if _, err := conn.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}

	logger.Debug("数据库已就绪", logger.String("database", name))
	return nil
}
