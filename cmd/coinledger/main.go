/*
main.go - Operator CLI over a coin ledger directory

PURPOSE:
  Inspect and repair a ledger directory without the host application:
  look up players and accounts, move coins by hand, register machines, and
  query or rebuild the transaction index.

STARTUP SEQUENCE:
  1. Load config from the environment (config.Load)
  2. Apply global flags over it
  3. Open the record store, machine registry, journal and (optional) index
  4. Run one command

COMMANDS:
  player <player-id>                        show a player record
  create <player-id> <name>                 open the player's primary account
  balance <number>                          show an account balance
  deposit [-machine id] <number> <amount>   credit an account
  withdraw [-machine id] <number> <amount>  debit an account
  machine-new [flags] <owner-id> <name>     register a vendor machine
  machine-show <machine-id>                 show a machine record
  reindex                                   rebuild the index from the journal
  history [-machine id] [-limit n] [number] query the index

GLOBAL FLAGS:
  -dir     record store base directory (env COINLEDGER_DIR, default ./data)
  -index   SQLite index path, "off" to disable (env COINLEDGER_INDEX)

EXAMPLES:
  coinledger -dir=/srv/world/coins create 0b7c1f7e-55a4-4b42-9f39-41c8d0e8c2b9 Main
  coinledger deposit -machine 44444444-4444-4444-8444-444444444444 123.456.789-01 500
  coinledger history -limit 20 123.456.789-01

SEE ALSO:
  - config/config.go: environment variables
  - ledger/ledger.go, journal/journal.go, machine/registry.go
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/warp/coin-ledger/config"
	"github.com/warp/coin-ledger/journal"
	"github.com/warp/coin-ledger/ledger"
	"github.com/warp/coin-ledger/machine"
	"github.com/warp/coin-ledger/record"
	"github.com/warp/coin-ledger/store/sqlite"
	"github.com/warp/coin-ledger/txn"
)

var errUsage = errors.New("usage: coinledger [-dir D] [-index P] <player|create|balance|deposit|withdraw|machine-new|machine-show|reindex|history> [args]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := log.New(os.Stderr, cfg.LogPrefix, log.LstdFlags)

	if err := run(ctx, cfg, os.Args[1:], os.Stdout, logger); err != nil {
		logger.Fatal(err)
	}
}

// =============================================================================
// WIRING
// =============================================================================

type app struct {
	ledger   *ledger.Ledger
	journal  *journal.Journal
	registry *machine.Registry
	index    *sqlite.Index // nil when disabled
	out      io.Writer
}

func run(ctx context.Context, cfg config.Config, args []string, out io.Writer, logger *log.Logger) error {
	global := flag.NewFlagSet("coinledger", flag.ContinueOnError)
	global.SetOutput(io.Discard)
	global.StringVar(&cfg.Dir, "dir", cfg.Dir, "record store base directory")
	global.StringVar(&cfg.Index, "index", cfg.Index, `SQLite index path ("off" to disable)`)
	if err := global.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	args = global.Args()
	if len(args) == 0 {
		return errUsage
	}

	store, err := record.NewFileStore(cfg.Dir)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}

	a := &app{out: out, registry: machine.NewRegistry(store)}
	jopts := []journal.Option{journal.WithLogger(logger)}
	if path := cfg.IndexPath(); path != "" {
		idx, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("failed to open index: %w", err)
		}
		defer idx.Close()
		a.index = idx
		jopts = append(jopts, journal.WithIndex(idx))
	}
	a.journal = journal.New(store, a.registry, jopts...)
	a.ledger = ledger.New(store,
		ledger.WithJournal(a.journal),
		ledger.WithLogger(logger),
		ledger.WithNumberGenerator(ledger.RandomNumber, cfg.NumberAttempts),
	)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "player":
		return a.player(ctx, rest)
	case "create":
		return a.create(ctx, rest)
	case "balance":
		return a.balance(ctx, rest)
	case "deposit":
		return a.move(ctx, cmd, rest)
	case "withdraw":
		return a.move(ctx, cmd, rest)
	case "machine-new":
		return a.machineNew(ctx, rest)
	case "machine-show":
		return a.machineShow(ctx, rest)
	case "reindex":
		return a.reindex(ctx)
	case "history":
		return a.history(ctx, rest)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

// =============================================================================
// ACCOUNT COMMANDS
// =============================================================================

func (a *app) player(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: player <player-id>", errUsage)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("bad player id: %w", err)
	}
	p, err := a.ledger.PlayerData(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "player:  %s\nversion: %d\n", p.Player, p.Version)
	if p.Primary == nil {
		fmt.Fprintln(a.out, "primary: none")
	} else {
		fmt.Fprintf(a.out, "primary: %s (%s)\n", p.Primary.Number, p.Primary.Name)
	}
	for _, alt := range p.Alternates {
		fmt.Fprintf(a.out, "alternate: %s (%s)\n", alt.Number, alt.Name)
	}
	return nil
}

func (a *app) create(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: create <player-id> <name>", errUsage)
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("bad player id: %w", err)
	}
	addr, err := a.ledger.CreatePrimaryAccount(ctx, id, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, addr.Number)
	return nil
}

func (a *app) balance(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: balance <number>", errUsage)
	}
	bal, err := a.ledger.AccountBalance(ctx, args[0])
	if err != nil {
		return err
	}
	if bal == ledger.NotFound {
		return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, args[0])
	}
	fmt.Fprintln(a.out, bal)
	return nil
}

// move runs deposit and withdraw. With -machine the transaction is
// attributed to that machine and journaled.
func (a *app) move(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	machineID := fs.String("machine", "", "machine mediating the transaction")
	if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
		return fmt.Errorf("%w: %s [-machine id] <number> <amount>", errUsage, cmd)
	}
	number := fs.Arg(0)
	amount, err := strconv.ParseInt(fs.Arg(1), 10, 32)
	if err != nil {
		return fmt.Errorf("bad amount: %w", err)
	}

	acct, ok, err := a.ledger.Account(ctx, number)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ledger.ErrAccountNotFound, number)
	}

	op := txn.OpDepositToAccount
	if cmd == "withdraw" {
		op = txn.OpWithdrawFromAccount
	}
	tx := txn.New(op, txn.PlayerOperator(acct.Owner))
	tx.Quantity = 1
	tx.Price = int32(amount)
	tx.TotalPrice = int32(amount)
	if *machineID != "" {
		mr, ok, err := a.registry.Load(ctx, *machineID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("machine %s not found", *machineID)
		}
		tx.Machine = machine.Stored{Record: mr}
	}

	after := acct.Balance + int32(amount)
	if cmd == "withdraw" {
		after = acct.Balance - int32(amount)
	}
	tx.UserSource = txn.AccountSource(txn.AccountAddress{Number: number, Owner: acct.Owner}, nil, acct.Balance, after)

	var bal int32
	if cmd == "withdraw" {
		bal, err = a.ledger.TakeFromAccount(ctx, number, int32(amount), tx)
	} else {
		bal, err = a.ledger.DepositToAccount(ctx, number, int32(amount), tx)
	}
	if err != nil {
		return err
	}
	if cmd == "deposit" && amount > 0 && bal == 0 {
		return fmt.Errorf("deposit of %d rejected: balance %d would overflow", amount, acct.Balance)
	}
	fmt.Fprintln(a.out, bal)
	return nil
}

// =============================================================================
// MACHINE COMMANDS
// =============================================================================

func (a *app) machineNew(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("machine-new", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	price := fs.Int("price", 0, "unit price")
	sell := fs.Bool("sell", false, "machine buys from players instead of selling")
	infinite := fs.Bool("infinite", false, "unlimited stock")
	placed := fs.Bool("placed", false, "record a world location")
	dim := fs.Int("dim", 0, "dimension")
	x := fs.Int("x", 0, "block x")
	y := fs.Int("y", 0, "block y")
	z := fs.Int("z", 0, "block z")
	block := fs.String("block", "universalcoins:blockVendor", "block id")
	if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
		return fmt.Errorf("%w: machine-new [-price n] [-sell] [-infinite] [-placed -dim d -x x -y y -z z -block id] <owner-id> <owner-name>", errUsage)
	}
	owner, err := uuid.Parse(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("bad owner id: %w", err)
	}

	var loc *txn.Location
	if *placed {
		loc = &txn.Location{Dimension: *dim, X: *x, Y: *y, Z: *z, Block: *block}
	}
	v := machine.NewVendor(owner, fs.Arg(1), loc)
	v.Price = int32(*price)
	v.Sell = *sell
	v.Infinite = *infinite
	v.Validate()

	if err := a.registry.SaveNewMachine(ctx, v); err != nil {
		return err
	}
	fmt.Fprintln(a.out, v.ID)
	return nil
}

func (a *app) machineShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: machine-show <machine-id>", errUsage)
	}
	mr, ok, err := a.registry.Load(ctx, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("machine %s not found", args[0])
	}
	fmt.Fprintf(a.out, "machine:      %s\n", mr.ID)
	fmt.Fprintf(a.out, "created:      %s\n", mr.Created.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(a.out, "transactions: %d\n", mr.Transactions)
	if mr.LastTransaction != uuid.Nil {
		fmt.Fprintf(a.out, "last:         %s\n", mr.LastTransaction)
	}
	fmt.Fprintf(a.out, "details:     %s\n", machine.Details(machine.Stored{Record: mr}))
	for _, k := range record.Record(mr.State).Keys() {
		fmt.Fprintf(a.out, "  %s=%s\n", k, mr.State[k])
	}
	return nil
}

// =============================================================================
// INDEX COMMANDS
// =============================================================================

var errNoIndex = errors.New("index is disabled")

func (a *app) reindex(ctx context.Context) error {
	if a.index == nil {
		return errNoIndex
	}
	n, err := a.index.Rebuild(ctx, a.journal)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "indexed %d transactions\n", n)
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	if a.index == nil {
		return errNoIndex
	}
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	machineID := fs.String("machine", "", "list a machine's transactions")
	limit := fs.Int("limit", 50, "maximum entries, 0 for all")
	if err := fs.Parse(args); err != nil || (*machineID == "") == (fs.NArg() == 0) {
		return fmt.Errorf("%w: history [-limit n] (-machine id | <number>)", errUsage)
	}

	var (
		entries []sqlite.Entry
		err     error
	)
	if *machineID != "" {
		entries, err = a.index.ByMachine(ctx, *machineID, *limit)
	} else {
		entries, err = a.index.ByAccount(ctx, fs.Arg(0), *limit)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(a.out, "%s %s %-22s total=%d", e.Time.Format("2006-01-02 15:04:05"), e.ID, e.Operation, e.TotalPrice)
		if e.Side != "" {
			fmt.Fprintf(a.out, " %s %d->%d", e.Side, e.BalanceBefore, e.BalanceAfter)
		}
		if e.MachineID != "" {
			fmt.Fprintf(a.out, " machine=%s", e.MachineID)
		}
		fmt.Fprintln(a.out)
	}
	return nil
}
