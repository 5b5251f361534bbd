package startup

import (
	"fmt"
	"os"
	"path/filepath"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/quickchat/internal/logger"
)

const (
	embeddedPort     = 5432
	embeddedUser     = "quickchat"
	embeddedPassword = "quickchat_secret"
	embeddedDatabase = "quickchat"
)

// StartEmbeddedPostgres поднимает локальный PostgreSQL для -dev и возвращает его DSN.
func StartEmbeddedPostgres(dataDir string) (*embeddedpostgres.EmbeddedPostgres, string, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create pgdata dir: %w", err)
	}
	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(embeddedPort).
			Username(embeddedUser).
			Password(embeddedPassword).
			Database(embeddedDatabase).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "quickchat-pg-runtime")),
	)
	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, "", fmt.Errorf("start: %w", err)
	}
	dsn := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		embeddedUser, embeddedPassword, embeddedPort, embeddedDatabase)
	logger.Infof("embedded PostgreSQL running on port %d", embeddedPort)
	return db, dsn, nil
}
