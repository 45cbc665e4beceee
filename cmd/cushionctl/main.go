// cushionctl is the operator CLI: admin account creation, account
// suspension and expired-token sweeps against the server's database.
// Предполагается запуск на той же машине, что и сервер.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/cushion-app/cushion-server/internal/crypto"
	"github.com/cushion-app/cushion-server/internal/models"
	"github.com/cushion-app/cushion-server/internal/server"
	"github.com/cushion-app/cushion-server/internal/server/config"
	"github.com/cushion-app/cushion-server/internal/server/storage"
	"github.com/cushion-app/cushion-server/internal/server/storage/boltdb"
	"github.com/cushion-app/cushion-server/internal/server/storage/sqlite"
	"github.com/cushion-app/cushion-server/internal/validation"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Cushion operator CLI")
	fmt.Println()
	fmt.Println("Usage: cushionctl <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  create-admin   create an administrator account")
	fmt.Println("  suspend        suspend an account by email")
	fmt.Println("  activate       re-activate an account by email")
	fmt.Println("  sweep          delete expired refresh-token ledger entries")
	fmt.Println()
	fmt.Println("Common flags:")
	fmt.Println("  -storage string   storage backend, sqlite or bolt (default sqlite)")
	fmt.Println("  -d string         database file path (default cushion.db)")
}

func run(command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	backend := fs.String("storage", config.BackendSqlite, "storage backend (sqlite or bolt)")
	dbPath := fs.String("d", "cushion.db", "database file path")
	email := fs.String("email", "", "account email")

	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openStore(ctx, *backend, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	switch command {
	case "create-admin":
		return createAdmin(ctx, store, *email)
	case "suspend":
		return setStatus(ctx, store, *email, models.StatusSuspended)
	case "activate":
		return setStatus(ctx, store, *email, models.StatusActive)
	case "sweep":
		return sweep(ctx, store)
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func openStore(ctx context.Context, backend, dbPath string) (server.Store, error) {
	switch backend {
	case config.BackendBolt:
		return boltdb.New(ctx, dbPath)
	case config.BackendSqlite:
		return sqlite.New(ctx, dbPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// readPassword запрашивает пароль без эха в терминале
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pwBytes), nil
}

func createAdmin(ctx context.Context, store server.Store, email string) error {
	if err := validation.ValidateEmail(email); err != nil {
		return err
	}

	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}

	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:        uuid.New().String(),
		Email:     email,
		Password:  hash,
		Role:      models.RoleAdmin,
		Status:    models.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	fmt.Printf("Created admin %s (%s)\n", email, user.ID)
	return nil
}

func setStatus(ctx context.Context, store server.Store, email string, status models.Status) error {
	if email == "" {
		return fmt.Errorf("-email is required")
	}

	user, err := store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}

	if err := store.UpdateStatus(ctx, user.ID, status); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	// Заблокированная учетная запись не должна сохранять живые refresh токены
	if status != models.StatusActive {
		count, err := store.RevokeUserTokens(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("failed to revoke tokens: %w", err)
		}
		fmt.Printf("Revoked %d refresh token(s)\n", count)
	}

	fmt.Printf("Account %s is now %s\n", email, status)
	return nil
}

func sweep(ctx context.Context, store storage.TokenStorage) error {
	count, err := store.DeleteExpiredTokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to sweep tokens: %w", err)
	}

	fmt.Printf("Deleted %d expired token(s)\n", count)
	return nil
}
