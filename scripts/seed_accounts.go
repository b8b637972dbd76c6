// Seeds payment accounts from a YAML file, sealing merchant credentials
// before they touch the database. Plaintext secrets stay in the environment:
// the YAML may reference them as ${VAR}.
//
// Usage:
//
//	PAYMENTS_BOX_KEY=<hex key> go run scripts/seed_accounts.go -accounts configs/accounts.yaml -db ./data/korty.db
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"korty/internal/database"
	"korty/internal/models"
	"korty/internal/secrets"
	"korty/internal/service"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type accountSpec struct {
	ID             string `yaml:"id"`
	Provider       string `yaml:"provider"`
	Scope          string `yaml:"scope"`
	OwnerID        string `yaml:"owner_id"`
	Status         string `yaml:"status"`
	MerchantLogin  string `yaml:"merchant_login"`
	MerchantSecret string `yaml:"merchant_secret"`
}

type accountsFile struct {
	Accounts []accountSpec `yaml:"accounts"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		accountsPath = flag.String("accounts", "configs/accounts.yaml", "path to accounts.yaml")
		dbPath       = flag.String("db", "./data/korty.db", "path to sqlite db")
	)
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}

	box, err := secrets.NewBox(os.Getenv("PAYMENTS_BOX_KEY"))
	if err != nil {
		return fmt.Errorf("init secret box: %w", err)
	}

	data, err := os.ReadFile(*accountsPath)
	if err != nil {
		return fmt.Errorf("read accounts: %w", err)
	}
	var cfg accountsFile
	if err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return fmt.Errorf("parse accounts: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created := 0
	skipped := 0
	for _, spec := range cfg.Accounts {
		if spec.OwnerID == "" || spec.MerchantLogin == "" || spec.MerchantSecret == "" {
			return fmt.Errorf("account %q: owner_id, merchant_login and merchant_secret are required", spec.ID)
		}

		account, err := buildAccount(box, spec)
		if err != nil {
			return fmt.Errorf("seal %s: %w", spec.ID, err)
		}

		_, err = db.GetPaymentAccount(ctx, account.ID)
		if err == nil {
			skipped++
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("get %s: %w", account.ID, err)
		}
		if err = db.InsertPaymentAccount(ctx, account); err != nil {
			return fmt.Errorf("insert %s: %w", account.ID, err)
		}
		created++
	}

	fmt.Printf("done: created=%d skipped=%d\n", created, skipped)
	return nil
}

func buildAccount(box *secrets.Box, spec accountSpec) (*models.PaymentAccount, error) {
	merchantSealed, err := box.SealString(spec.MerchantLogin)
	if err != nil {
		return nil, err
	}
	secretSealed, err := box.SealString(spec.MerchantSecret)
	if err != nil {
		return nil, err
	}

	account := &models.PaymentAccount{
		ID:             spec.ID,
		Provider:       spec.Provider,
		Scope:          spec.Scope,
		OwnerID:        spec.OwnerID,
		Status:         spec.Status,
		MerchantSealed: merchantSealed,
		SecretSealed:   secretSealed,
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Provider == "" {
		account.Provider = service.DefaultProvider
	}
	if account.Scope == "" {
		account.Scope = models.AccountScopeClub
	}
	if account.Status == "" {
		account.Status = models.AccountStatusPending
	}
	if account.Status == models.AccountStatusVerified {
		now := time.Now().UTC()
		account.VerifiedAt = &now
	}
	return account, nil
}
