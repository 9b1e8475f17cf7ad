package integration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/John-CFO/chronocraft-api/internal/auth"
	"github.com/John-CFO/chronocraft-api/internal/database"
	"github.com/John-CFO/chronocraft-api/internal/models"
	"github.com/John-CFO/chronocraft-api/internal/repositories"
)

// TestDB manages a PostgreSQL testcontainer and database operations
type TestDB struct {
	Container  testcontainers.Container
	ConnString string
	Pool       *pgxpool.Pool
	DB         *database.DB
}

// SetupTestDatabase creates a PostgreSQL testcontainer, runs migrations, returns TestDB
func SetupTestDatabase(ctx context.Context) (*TestDB, error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("chronocraft"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	db := database.NewFromPool(pool, logger)

	// Schema comes from the embedded goose migrations, same path as production
	if err := db.Migrate(); err != nil {
		pool.Close()
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &TestDB{
		Container:  container,
		ConnString: connStr,
		Pool:       pool,
		DB:         db,
	}, nil
}

// Teardown stops the container and closes the connection pool
func (db *TestDB) Teardown(ctx context.Context) error {
	if db.Pool != nil {
		db.Pool.Close()
	}
	if db.Container != nil {
		return db.Container.Terminate(ctx)
	}
	return nil
}

// CleanupTables truncates all tables for test isolation
func (db *TestDB) CleanupTables(ctx context.Context) error {
	tables := []string{
		"mfa_pending_enrollments",
		"mfa_credentials",
		"rate_limit_counters",
		"users",
	}

	for _, table := range tables {
		if _, err := db.Pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return nil
}

// InitializeRepositories creates all repository instances from the database wrapper
func InitializeRepositories(db *database.DB) (
	repositories.UserRepository,
	repositories.PendingEnrollmentRepository,
	repositories.MFACredentialRepository,
	repositories.RateLimitRepository,
) {
	return repositories.NewUserRepository(db),
		repositories.NewPendingEnrollmentRepository(db),
		repositories.NewMFACredentialRepository(db),
		repositories.NewRateLimitRepository(db)
}

// SeedUser inserts a test user
func SeedUser(ctx context.Context, pool *pgxpool.Pool, email, name string) (*models.User, error) {
	query := `
		INSERT INTO users (email, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, email, name, mfa_enabled, created_at, updated_at
	`

	var user models.User
	err := pool.QueryRow(ctx, query, email, name).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.MFAEnabled,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return &user, nil
}

// SeedEnabledCredential enrolls a user directly at the storage level: inserts
// an enabled credential holding the encrypted secret and flips the user flag.
// Returns the plaintext Base32 secret for driving the authenticator side.
func SeedEnabledCredential(ctx context.Context, pool *pgxpool.Pool, cipher *auth.SecretCipher, userID string) (string, error) {
	secret, err := auth.GenerateSecret(20)
	if err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}

	encrypted, err := cipher.Encrypt(secret)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt secret: %w", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO mfa_credentials (user_id, encrypted_secret, enabled, recovery_codes, created_at)
		VALUES ($1, $2, TRUE, '[]', NOW())
	`, userID, encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to insert credential: %w", err)
	}

	_, err = pool.Exec(ctx, `
		UPDATE users SET mfa_enabled = TRUE, mfa_enrolled_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, userID)
	if err != nil {
		return "", fmt.Errorf("failed to flag user: %w", err)
	}

	return secret, nil
}
