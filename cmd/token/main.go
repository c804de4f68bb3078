// Command token provisions a user in the configured store and prints a
// bearer token for it. Store and secret settings come from the same
// environment variables as the server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/jengzang/drivesense-backend/internal/auth"
	"github.com/jengzang/drivesense-backend/internal/config"
	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
	"github.com/jengzang/drivesense-backend/internal/storage"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		email string
		name  string
		ttl   time.Duration
	)
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	fs.StringVar(&email, "email", "", "account email (created when missing)")
	fs.StringVar(&name, "name", "", "full name for a new account")
	fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if email == "" {
		return errors.New("--email is required")
	}

	cfg, err := config.Load(nil)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx := context.Background()
	stores, closeStores, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores(ctx)

	user, err := stores.Users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		user = &models.User{
			ID:               uuid.NewString(),
			Email:            email,
			FullName:         name,
			RegistrationDate: time.Now().UTC().Truncate(time.Millisecond),
		}
		if err := stores.Users.Create(ctx, user); err != nil {
			return err
		}
		logger.Info("user created", "user_id", user.ID, "email", email)
	} else if err != nil {
		return err
	}

	token, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer).Mint(user.ID, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
