package db

import (
	"fmt"
	"os"

	"Gin_postgres_redis_lending/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSNFromEnv builds the postgres DSN from DB_* variables.
func DSNFromEnv() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_PORT"),
	)
}

func Connect(dsn string) (*gorm.DB, error) {
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return conn, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Item{}, &models.Accessory{}, &models.Transaction{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// Open withdrawals are looked up on every withdraw/return. Not unique: a
	// new withdraw is stored before the previous one is closed.
	if err := db.Exec(fmt.Sprintf(`
	  CREATE INDEX IF NOT EXISTS %s_open_withdraw_item
	  ON %s (item_id, borrow_date DESC)
	  WHERE action = 'withdraw' AND closed = FALSE AND return_date IS NULL;
	`, models.TransactionTable, models.TransactionTable)).Error; err != nil {
		return fmt.Errorf("create open withdraw index: %w", err)
	}

	return nil
}
