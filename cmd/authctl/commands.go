package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/payflow-auth/cmd/authctl/ui"
	"github.com/redmonkez12/payflow-auth/internal/auth"
	"github.com/redmonkez12/payflow-auth/internal/config"
	"github.com/redmonkez12/payflow-auth/internal/database"
	"github.com/redmonkez12/payflow-auth/internal/delivery"
	"github.com/redmonkez12/payflow-auth/internal/logging"
	"github.com/redmonkez12/payflow-auth/internal/otp"
	"github.com/redmonkez12/payflow-auth/internal/user"
)

type env struct {
	cfg    *config.Config
	db     *bun.DB
	logger *logging.Logger
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &env{cfg: cfg, db: db, logger: logging.NewLogger(cfg.Server.IsDevelopment())}, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.db.Close()

	applied, err := database.Migrate(cmd.Context(), e.db)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	version, err := database.MigrationVersion(cmd.Context(), e.db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	ui.PrintSuccess(fmt.Sprintf("Applied %d migration(s), schema at version %d", applied, version))
	return nil
}

func runOTPSweep(cmd *cobra.Command, _ []string) error {
	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.db.Close()

	sweeper := otp.NewSweeper(otp.NewRepository(e.db, nil), e.cfg.OTP.SweepInterval, e.logger)
	swept, _, err := sweeper.SweepOnce(cmd.Context())
	if err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Deleted %d expired OTP record(s)", swept))
	return nil
}

func runSetPassword(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	fromStdin, _ := cmd.Flags().GetBool("password-stdin")

	var (
		password string
		err      error
	)
	if fromStdin {
		password, err = readPassword(cmd.InOrStdin())
	} else {
		password, err = ui.PromptPassword(user.CanonicalEmail(email))
	}
	if err != nil {
		return err
	}

	e, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer e.db.Close()

	service, err := newService(e)
	if err != nil {
		return err
	}

	if err := service.SetPassword(cmd.Context(), email, password); err != nil {
		return err
	}

	ui.PrintSuccess("Password updated for " + user.CanonicalEmail(email))
	return nil
}

func newService(e *env) (*auth.Service, error) {
	hasher, err := auth.NewMultiHasher(e.cfg.Auth.PasswordHasher, auth.DefaultArgon2Params, e.cfg.Auth.BcryptCost)
	if err != nil {
		return nil, err
	}

	key := e.cfg.Auth.PasetoKey
	if e.cfg.Auth.TokenFormat == auth.TokenFormatJWT {
		key = e.cfg.Auth.JWTSecret
	}
	tokens, err := auth.NewTokenService(e.cfg.Auth.TokenFormat, []byte(key), nil)
	if err != nil {
		return nil, err
	}

	return auth.NewService(
		user.NewRepository(e.db, nil),
		otp.NewRepository(e.db, nil),
		hasher,
		tokens,
		delivery.ResponseDeliverer{},
		nil,
		auth.Options{TokenTTL: e.cfg.Auth.TokenTTL, OTPTTL: e.cfg.OTP.TTL},
	), nil
}

// readPassword returns the first line of r without its line ending
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("no password on stdin")
	}
	if !user.IsStrongPassword(password) {
		return "", errors.New(ui.PasswordPolicy)
	}
	return password, nil
}
