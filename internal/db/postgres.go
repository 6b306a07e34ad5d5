package db

import (
  "fmt"

  "gorm.io/driver/postgres"
  "gorm.io/gorm"

  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/logger"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/types"
  "github.com/brian-alan-huynh/BearFrom-Intelligent-Search-Engine/internal/utils"
)

type PostgresService struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  log.Info("Loading environment variables...")
  postgresHost := utils.GetEnv("RDS_HOST", "localhost", log)
  postgresPort := utils.GetEnv("RDS_PORT", "5432", log)
  postgresUser := utils.GetEnv("RDS_USER", "postgres", log)
  postgresPassword := utils.GetEnv("RDS_PASS", "", log)
  postgresName := utils.GetEnv("RDS_NAME", "bearfrom", log)
  log.Debug("Environment variables loaded")

  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

  log.Info("Connecting to Postgres...")
  db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    log.Error("Failed to connect to Postgres", "error", err)
    return nil, fmt.Errorf("Failed to connect to Postgres: %w", err)
  }

  return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Auto migrating postgres tables...")
  err := s.db.AutoMigrate(
    &types.User{},
    &types.UserPreferences{},
    &types.UserSearchHistory{},
  )
  if err != nil {
    s.log.Error("Auto migration failed for postgres tables", "error", err)
    return err
  }
  s.log.Info("Configuring foreign key relationships for postgres tables...")
  if err := s.db.Exec(`
    ALTER TABLE "user_preferences"
    ADD CONSTRAINT "fk_user_preferences_user_id"
    FOREIGN KEY ("user_id")
    REFERENCES "users"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
    return fmt.Errorf("Failed to add fk_user_preferences_user_id: %w", err)
  }
  if err := s.db.Exec(`
    ALTER TABLE "user_search_history"
    ADD CONSTRAINT "fk_user_search_history_user_id"
    FOREIGN KEY ("user_id")
    REFERENCES "users"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
    return fmt.Errorf("Failed to add fk_user_search_history_user_id: %w", err)
  }
  return nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}
