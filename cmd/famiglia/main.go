// Command famiglia logs into the family ledger, syncs the visible expenses
// and budgets, and prints a spending summary or a CSV export.
//
// Credentials come from FAMIGLIA_EMAIL and FAMIGLIA_PASSWORD; everything
// else from the usual configuration environment.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"famiglia/internal/amqp"
	"famiglia/internal/backend"
	"famiglia/internal/config"
	"famiglia/internal/core"
	"famiglia/internal/ledger"
	"famiglia/internal/log"
	"famiglia/internal/session"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	exportCSV := flag.Bool("export", false, "print visible expenses as CSV instead of a summary")
	flag.Parse()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	email := os.Getenv("FAMIGLIA_EMAIL")
	password := os.Getenv("FAMIGLIA_PASSWORD")
	if email == "" || password == "" {
		logger.Error("FAMIGLIA_EMAIL and FAMIGLIA_PASSWORD must be set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(),
			log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err.Error())
			}
		}()
	}

	// AMQP is optional: init failure degrades to local-only operation.
	var events *amqp.Client
	if cfg.AMQPURL != "" {
		events, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events",
				log.FieldError, err.Error())
			events = nil
		} else {
			defer events.Close()
		}
	}

	sessions := session.NewManager(result.Identity, events, logger)

	ledgerCfg := ledger.DefaultConfig()
	ledgerCfg.Retry.MaxAttempts = cfg.FetchRetries
	ledgerCfg.Retry.Delay = cfg.FetchDelay
	ledgerCfg.Cooldown = cfg.FetchCooldown
	books := ledger.New(sessions, result.Expenses, result.Budgets, events, logger, ledgerCfg)

	account, err := sessions.Login(ctx, email, password)
	if err != nil {
		logger.Error("Login failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer sessions.Logout(context.Background())

	expenses, err := books.FetchExpenses(ctx)
	if err != nil {
		logger.Error("Expense sync failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	budgets, err := books.FetchBudgets(ctx)
	if err != nil {
		logger.Error("Budget sync failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	if *exportCSV {
		if err := ledger.WriteCSV(os.Stdout, expenses); err != nil {
			logger.Error("CSV export failed", log.FieldError, err.Error())
			os.Exit(1)
		}
		return
	}

	printSummary(account, expenses, budgets)
}

func printSummary(account core.Account, expenses []core.Expense, budgets []core.Budget) {
	fmt.Printf("%s (%s): %d visible expenses\n\n", account.Name, account.Role, len(expenses))

	totals := ledger.CategoryTotals(expenses)
	for _, cat := range core.Categories() {
		if total, ok := totals[cat]; ok {
			fmt.Printf("  %-15s %10s\n", cat, total.Decimal())
		}
	}

	now := time.Now()
	for _, b := range budgets {
		usage := ledger.Usage(b, expenses, now)
		status := "ok"
		if usage.Over {
			status = "OVER"
		}
		fmt.Printf("\nBudget %s (%s): %s of %s spent (%.0f%%) [%s]\n",
			b.UserID, b.Period, usage.Spent.Decimal(), usage.Limit.Decimal(), usage.Percent, status)
	}
}
