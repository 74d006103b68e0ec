package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/dvloznov/family-bank/internal/domain"
	"github.com/dvloznov/family-bank/internal/ledger"
	"github.com/dvloznov/family-bank/internal/members"
	"github.com/dvloznov/family-bank/internal/rates"
	"github.com/dvloznov/family-bank/internal/worker"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

const commandTimeout = time.Minute

func runMembers(log zerolog.Logger, args []string) {
	fs, c := newFlagSet("members")
	fs.Parse(args)

	a, ctx, cancel := c.open(log, commandTimeout)
	defer cancel()
	defer a.Close()

	list, err := a.Members.List(ctx, c.household)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list members")
	}
	txs, err := a.Repo.ListTransactions(ctx, c.household)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list transactions")
	}

	if len(list) == 0 {
		fmt.Println("No members.")
		return
	}
	fmt.Printf("%-36s  %-20s  %-7s  %12s\n", "ID", "NAME", "AVATAR", "BALANCE")
	for _, m := range list {
		fmt.Printf("%-36s  %-20s  %-7s  %12s\n", m.ID, m.Name, m.Avatar, ledger.Fold(txs, m.ID).StringFixed(2))
	}
}

func runAddMember(log zerolog.Logger, args []string) {
	fs, c := newFlagSet("add-member")
	name := fs.String("name", "", "Member name (required)")
	avatar := fs.String("avatar", "", "Avatar reference (default: first avatar)")
	pin := fs.String("pin", "", "Four digit PIN (required)")
	fs.Parse(args)

	if *name == "" || *pin == "" {
		log.Fatal().Msg("Usage: cli add-member --household ID --name NAME --pin 1234")
	}

	a, ctx, cancel := c.open(log, commandTimeout)
	defer cancel()
	defer a.Close()

	m, err := a.Members.Create(ctx, c.household, members.Profile{Name: *name, Avatar: *avatar, PIN: *pin})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create member")
	}
	fmt.Printf("Created member %s (%s)\n", m.Name, m.ID)
}

func runDeposit(log zerolog.Logger, args []string) {
	record(log, "deposit", domain.TypeIncome, args)
}

func runWithdraw(log zerolog.Logger, args []string) {
	record(log, "withdraw", domain.TypeExpense, args)
}

func record(log zerolog.Logger, name string, typ domain.TransactionType, args []string) {
	fs, c := newFlagSet(name)
	memberID := fs.String("member", "", "Member ID (required)")
	amountStr := fs.String("amount", "", "Amount, e.g. 12.50 (required)")
	note := fs.String("note", "", "Note")
	by := fs.String("by", "parent", "Who records the entry")
	fs.Parse(args)

	if *memberID == "" || *amountStr == "" {
		log.Fatal().Msgf("Usage: cli %s --household ID --member ID --amount 12.50", name)
	}
	amount, err := decimal.NewFromString(*amountStr)
	if err != nil {
		log.Fatal().Err(err).Str("amount", *amountStr).Msg("Error: invalid amount")
	}

	a, ctx, cancel := c.open(log, commandTimeout)
	defer cancel()
	defer a.Close()

	if _, err := a.Members.Get(ctx, c.household, *memberID); err != nil {
		log.Fatal().Err(err).Str("member_id", *memberID).Msg("Failed to load member")
	}

	tx, err := a.Ledger.Record(ctx, c.household, ledger.Entry{
		MemberID:   *memberID,
		Type:       typ,
		Amount:     amount,
		Note:       *note,
		RecordedBy: *by,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to record transaction")
	}

	balance, err := a.Ledger.Balance(ctx, c.household, *memberID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read balance")
	}
	fmt.Printf("Recorded %s of %s (%s). Balance: %s\n", tx.Type, tx.Amount.StringFixed(2), tx.Note, balance.StringFixed(2))
}

func runBalance(log zerolog.Logger, args []string) {
	fs, c := newFlagSet("balance")
	memberID := fs.String("member", "", "Member ID (required)")
	fs.Parse(args)

	if *memberID == "" {
		log.Fatal().Msg("Error: --member is required")
	}

	a, ctx, cancel := c.open(log, commandTimeout)
	defer cancel()
	defer a.Close()

	m, err := a.Members.Get(ctx, c.household, *memberID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load member")
	}
	txs, err := a.Ledger.Transactions(ctx, c.household, m.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transactions")
	}
	rate, err := a.Rates.EffectiveRate(ctx, c.household)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load rates")
	}

	balance := ledger.Fold(txs, m.ID)
	fmt.Printf("%s (%s)\n", m.Name, m.ID)
	fmt.Printf("  Balance:            %s\n", balance.StringFixed(2))
	fmt.Printf("  Effective rate:     %s%%\n", rate.Shift(2).StringFixed(2))
	fmt.Printf("  Monthly projection: %s\n", rates.MonthlyProjection(balance, rate).StringFixed(2))
	fmt.Printf("  Interest settled:   %s\n", time.UnixMilli(m.LastInterestDate).Format(time.RFC3339))
	for _, ach := range ledger.Achievements(txs, m.ID) {
		if ach.Unlocked {
			fmt.Printf("  Achievement:        %s\n", ach.Name)
		}
	}
}

func runHistory(log zerolog.Logger, args []string) {
	fs, c := newFlagSet("history")
	memberID := fs.String("member", "", "Member ID (required)")
	limit := fs.Int("limit", 20, "Show at most this many entries, newest first")
	fs.Parse(args)

	if *memberID == "" {
		log.Fatal().Msg("Error: --member is required")
	}

	a, ctx, cancel := c.open(log, commandTimeout)
	defer cancel()
	defer a.Close()

	txs, err := a.Ledger.Transactions(ctx, c.household, *memberID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load transactions")
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Timestamp > txs[j].Timestamp
	})
	if *limit > 0 && len(txs) > *limit {
		txs = txs[:*limit]
	}
	for _, tx := range txs {
		fmt.Printf("%s  %-8s  %10s  %s\n",
			time.UnixMilli(tx.Timestamp).Format("2006-01-02 15:04"),
			tx.Type,
			tx.Signed().StringFixed(2),
			tx.Note,
		)
	}
}

func runSettle(log zerolog.Logger, args []string) {
	fs, c := newFlagSet("settle")
	memberID := fs.String("member", "", "Member ID (default: every member)")
	fs.Parse(args)

	a, ctx, cancel := c.open(log, commandTimeout)
	defer cancel()
	defer a.Close()

	ids := []string{*memberID}
	if *memberID == "" {
		list, err := a.Members.List(ctx, c.household)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list members")
		}
		ids = ids[:0]
		for _, m := range list {
			ids = append(ids, m.ID)
		}
	}

	for _, id := range ids {
		res, err := worker.Settle(ctx, a.Repo, a.Ledger, a.Rates, a.Engine, a.Guard, c.household, id)
		if err != nil {
			log.Error().Err(err).Str("member_id", id).Msg("Settlement failed")
			continue
		}
		fmt.Printf("%s: %s", id, res.Outcome)
		if res.Transaction != nil {
			fmt.Printf(" +%s over %d days", res.Earned.StringFixed(2), res.ElapsedDays)
		}
		fmt.Println()
	}
}

func runRates(log zerolog.Logger, args []string) {
	fs, c := newFlagSet("rates")
	auto := fs.String("auto", "", "Turn market drift on or off (on|off)")
	fs.Parse(args)

	a, ctx, cancel := c.open(log, commandTimeout)
	defer cancel()
	defer a.Close()

	switch *auto {
	case "":
	case "on", "off":
		if _, err := a.Rates.SetAutoMode(ctx, c.household, *auto == "on"); err != nil {
			log.Fatal().Err(err).Msg("Failed to set auto mode")
		}
	default:
		log.Fatal().Str("auto", *auto).Msg("Error: --auto must be on or off")
	}

	r, drifted, err := a.Rates.Refresh(ctx, c.household)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load rates")
	}
	printRates(r)
	if drifted {
		fmt.Println("  (market drift applied)")
	}
}

func runSetRates(log zerolog.Logger, args []string) {
	fs, c := newFlagSet("set-rates")
	baseStr := fs.String("base", "", "Base rate as a fraction, e.g. 0.03 (required)")
	bonusStr := fs.String("bonus", "0", "Bonus rate as a fraction, may be negative")
	fs.Parse(args)

	base, err := decimal.NewFromString(*baseStr)
	if err != nil {
		log.Fatal().Err(err).Str("base", *baseStr).Msg("Error: invalid base rate")
	}
	bonus, err := decimal.NewFromString(*bonusStr)
	if err != nil {
		log.Fatal().Err(err).Str("bonus", *bonusStr).Msg("Error: invalid bonus rate")
	}

	a, ctx, cancel := c.open(log, commandTimeout)
	defer cancel()
	defer a.Close()

	r, err := a.Rates.SetManual(ctx, c.household, base, bonus)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set rates")
	}
	printRates(r)
}

func printRates(r *domain.Rates) {
	fmt.Printf("Base:      %s%%\n", r.BaseRate.Shift(2).StringFixed(2))
	fmt.Printf("Bonus:     %s%%\n", r.BonusRate.Shift(2).StringFixed(2))
	fmt.Printf("Effective: %s%%\n", r.Effective().Shift(2).StringFixed(2))
	fmt.Printf("Auto mode: %t\n", r.IsAutoMode)
	fmt.Printf("News:      %s\n", r.NewsText)
}

func runProjection(log zerolog.Logger, args []string) {
	fs := pflag.NewFlagSet("projection", pflag.ExitOnError)
	principal := fs.String("principal", "0", "Starting amount")
	monthly := fs.String("monthly", "0", "Monthly contribution")
	rateStr := fs.String("rate", "0.05", "Annual rate as a fraction")
	years := fs.Int("years", 10, "Years to project (1-50)")
	fs.Parse(args)

	if *years < 1 || *years > 50 {
		log.Fatal().Int("years", *years).Msg("Error: --years must be between 1 and 50")
	}
	values := make([]decimal.Decimal, 3)
	for i, s := range []string{*principal, *monthly, *rateStr} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			log.Fatal().Err(err).Str("value", s).Msg("Error: invalid number")
		}
		values[i] = d
	}

	fv := rates.FutureValue(values[0], values[1], values[2], *years)
	invested := rates.TotalInvested(values[0], values[1], *years)
	fmt.Printf("Future value:   %s\n", fv.StringFixed(2))
	fmt.Printf("Total invested: %s\n", invested.StringFixed(2))
	fmt.Printf("Interest:       %s\n", fv.Sub(invested).StringFixed(2))
}
