package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vilass86/cardgame/internal/db"
	"github.com/vilass86/cardgame/internal/logger"
	"github.com/vilass86/cardgame/internal/repository"
	"github.com/vilass86/cardgame/internal/service"

	"github.com/joho/godotenv"
)

// fund_account credits an account and prints a token for it. Local setups only.
func main() {
	address := flag.String("address", "", "account address")
	amount := flag.Int64("amount", 1000, "units to credit")
	ref := flag.String("ref", "fund_account", "reference recorded in the audit log")
	flag.Parse()

	_ = godotenv.Load()
	logger.Init(os.Getenv("LOG_LEVEL"), false)

	if *address == "" {
		logger.Fatal("-address is required")
	}
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	pool := db.Connect(dsn)
	defer pool.Close()

	ctx := context.Background()
	balances := service.NewBalanceService(repository.NewStore(pool))
	audit := service.NewAuditService(repository.NewAuditRepository(pool))

	bal, err := balances.Deposit(ctx, *address, *amount, map[string]interface{}{"reference": *ref})
	if err != nil {
		logger.Fatal("deposit failed", "error", err)
	}
	audit.LogDeposit(ctx, *address, *amount, *ref)
	logger.Info("account funded", "address", *address, "amount", *amount, "balance", bal)

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		service.InitJWT(secret)
		token, err := service.GenerateJWT(*address, 24*time.Hour)
		if err != nil {
			logger.Fatal("failed to generate token", "error", err)
		}
		fmt.Println(token)
	}
}
