// Package main generates one wallet statement and prints it as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/wallet-statement/internal/app"
	"github.com/wallet-statement/internal/config"
	"github.com/wallet-statement/internal/logging"
	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/service"
	"github.com/wallet-statement/internal/types"
)

func main() {
	var (
		wallet  = flag.String("wallet", "", "Wallet address (required)")
		year    = flag.Int("year", 0, "Statement year (with -month)")
		month   = flag.Int("month", 0, "Statement month 1-12 (with -year)")
		start   = flag.String("start", "", "Period start YYYY-MM-DD (with -end)")
		end     = flag.String("end", "", "Period end YYYY-MM-DD, inclusive")
		chains  = flag.String("chains", "", "Comma-separated chain ids (default: enabled chains)")
		assets  = flag.String("assets", "", "Comma-separated asset symbols (default: all tracked)")
		name    = flag.String("name", "", "Account holder name")
		address = flag.String("address", "", "Account holder postal address")
		save    = flag.Bool("save", false, "Save the statement (requires POSTGRES_ENABLED)")
		out     = flag.String("out", "", "Write JSON to this file instead of stdout")
		timeout = flag.Duration("timeout", 10*time.Minute, "Overall timeout")
	)
	flag.Parse()

	if *wallet == "" {
		fmt.Fprintln(os.Stderr, "Error: -wallet is required")
		flag.Usage()
		os.Exit(2)
	}

	period, err := parsePeriod(*year, *month, *start, *end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// One-shot runs draw from the shared compute pool unless told otherwise
	if os.Getenv("ALCHEMY_CU_PRIORITY") == "" {
		cfg.Providers.AlchemyCUPriority = "batch"
	}

	// Logs go to stderr so stdout stays valid JSON
	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger.SetOutput(os.Stderr)
	defer func() { _ = logger.Sync() }()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}
	defer application.Close()

	selected := application.Chains
	if *chains != "" {
		selected, err = types.ParseChainIDs(splitList(*chains))
		if err != nil {
			logger.WithError(err).Fatal("Invalid -chains")
		}
	}

	resolved, err := application.Statements.ResolveAssets(selected, splitList(*assets))
	if err != nil {
		logger.WithError(err).Fatal("Invalid -assets")
	}

	input := service.GenerateStatementInput{
		WalletAddress: *wallet,
		Period:        period,
		Assets:        resolved,
	}
	for _, c := range selected {
		input.Chains = append(input.Chains, c.ID)
	}
	if *name != "" || *address != "" {
		input.AccountHolder = &models.AccountHolder{Name: *name, Address: *address}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stmt, err := application.Statements.GenerateStatement(ctx, input)
	if err != nil {
		logger.WithError(err).Error("Statement generation failed")
		os.Exit(1)
	}

	if *save {
		if err := application.Statements.SaveStatement(ctx, stmt); err != nil {
			logger.WithError(err).Error("Failed to save statement")
			os.Exit(1)
		}
		logger.WithField("statement_id", stmt.ID).Info("Statement saved")
	}

	data, err := json.MarshalIndent(stmt, "", "  ")
	if err != nil {
		logger.WithError(err).Fatal("Failed to encode statement")
	}
	data = append(data, '\n')

	if *out == "" {
		_, _ = os.Stdout.Write(data)
	} else if err := os.WriteFile(*out, data, 0o600); err != nil {
		logger.WithError(err).Fatal("Failed to write output")
	}

	if failed := stmt.FailedChains(); len(failed) > 0 {
		logger.WithField("failed_chains", failed).Warn("Statement is missing chains")
	}
}

func parsePeriod(year, month int, start, end string) (models.StatementPeriod, error) {
	if year != 0 || month != 0 {
		if month < 1 || month > 12 || year < 2009 {
			return models.StatementPeriod{}, fmt.Errorf("invalid -year/-month %d/%d", year, month)
		}
		return models.MonthPeriod(year, time.Month(month)), nil
	}

	if start == "" || end == "" {
		return models.StatementPeriod{}, fmt.Errorf("either -year/-month or -start/-end is required")
	}
	from, err := time.Parse("2006-01-02", start)
	if err != nil {
		return models.StatementPeriod{}, fmt.Errorf("invalid -start: %w", err)
	}
	to, err := time.Parse("2006-01-02", end)
	if err != nil {
		return models.StatementPeriod{}, fmt.Errorf("invalid -end: %w", err)
	}

	period := models.StatementPeriod{Start: from, End: to.Add(24*time.Hour - time.Second)}
	return period, period.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
