package config

import (
	"errors"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var PostgresDB *gorm.DB

func InitPostgres() error {
	uri := os.Getenv("POSTGRES_URI")
	if uri == "" {
		return errors.New("POSTGRES_URI environment variable is not set")
	}
	db, err := gorm.Open(postgres.Open(uri), &gorm.Config{})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	// pool sizing per instance; the room core holds no connection across
	// a session, so the defaults stay modest
	sqlDB.SetMaxIdleConns(envInt("POSTGRES_MAX_IDLE_CONNS", 10))
	sqlDB.SetMaxOpenConns(envInt("POSTGRES_MAX_OPEN_CONNS", 100))
	sqlDB.SetConnMaxLifetime(envSeconds("POSTGRES_CONN_MAX_LIFETIME_SECONDS", 1800))
	sqlDB.SetConnMaxIdleTime(envSeconds("POSTGRES_CONN_MAX_IDLE_SECONDS", 300))

	PostgresDB = db
	return nil
}
