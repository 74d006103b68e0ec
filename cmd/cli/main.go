package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/family-bank/internal/app"
	"github.com/dvloznov/family-bank/internal/config"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// EnvHousehold names the environment variable holding the default household.
const EnvHousehold = "FAMILY_BANK_HOUSEHOLD"

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	commands := map[string]func(zerolog.Logger, []string){
		"members":      runMembers,
		"add-member":   runAddMember,
		"deposit":      runDeposit,
		"withdraw":     runWithdraw,
		"balance":      runBalance,
		"history":      runHistory,
		"settle":       runSettle,
		"rates":        runRates,
		"set-rates":    runSetRates,
		"projection":   runProjection,
		"export":       runExport,
		"fetch-export": runFetchExport,
		"sync-notion":  runSyncNotion,
	}

	switch cmd := os.Args[1]; cmd {
	case "help", "-h", "--help":
		printUsage()
	default:
		run, ok := commands[cmd]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
			printUsage()
			os.Exit(1)
		}
		run(log, os.Args[2:])
	}
}

func printUsage() {
	fmt.Println("Family Bank CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  members       List household members and balances")
	fmt.Println("  add-member    Create a member")
	fmt.Println("  deposit       Record a deposit for a member")
	fmt.Println("  withdraw      Record a withdrawal for a member")
	fmt.Println("  balance       Show a member's balance and projection")
	fmt.Println("  history       List a member's transactions")
	fmt.Println("  settle        Credit accrued interest to a member now")
	fmt.Println("  rates         Show household rates (applies market drift when due)")
	fmt.Println("  set-rates     Set base and bonus rates manually")
	fmt.Println("  projection    Project future value of a savings plan")
	fmt.Println("  export        Export the household to Cloud Storage")
	fmt.Println("  fetch-export  Show a previous export or list them")
	fmt.Println("  sync-notion   Mirror the household ledger to Notion")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nEvery command accepts --config and --household (or set " + EnvHousehold + ").")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// common holds the flags shared by every command.
type common struct {
	configPath string
	household  string
}

func newFlagSet(name string) (*pflag.FlagSet, *common) {
	fs := pflag.NewFlagSet(name, pflag.ExitOnError)
	c := &common{}
	fs.StringVar(&c.configPath, "config", "", "Path to the YAML config file (or set "+config.EnvConfigPath+")")
	fs.StringVar(&c.household, "household", os.Getenv(EnvHousehold), "Household ID")
	return fs, c
}

// open loads config and wires the services. The caller closes the app and
// cancels the context.
func (c *common) open(log zerolog.Logger, timeout time.Duration) (*app.App, context.Context, context.CancelFunc) {
	if c.household == "" {
		log.Fatal().Msg("Error: --household is required")
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log = log.Level(logLevel(cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = logger.WithContext(ctx, log)

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	return a, ctx, cancel
}

func logLevel(name string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
