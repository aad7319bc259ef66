package store

import (
	"fmt"
	"strconv"

	"github.com/smukkama/weather-pipeline/internal/database"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"github.com/smukkama/weather-pipeline/pkg/config"
	"go.uber.org/zap"
)

// Open returns the store selected by cfg.StoreBackend. The postgres store
// is migrated before it is returned.
func Open(cfg *config.Config, logger *zap.Logger) (weather.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		logger.Info("Using in-memory store")
		return NewMemoryStore(), nil
	case config.StoreBackendPostgres:
		db, err := database.Connect(cfg.Database.ConnectionString())
		if err != nil {
			return nil, err
		}
		if err := db.RunMigrations(logger); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Connected to PostgreSQL",
			zap.String("host", cfg.Database.Host),
			zap.String("database", cfg.Database.DBName))
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
