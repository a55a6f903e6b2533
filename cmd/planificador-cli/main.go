// Command planificador-cli is a terminal client for a local backend. It
// signs in, keeps the transaction list in a reconciling store and mirrors
// the realtime feed to stdout, which makes it handy for poking at sqlite
// or postgres data without the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/CharlyBGood/planificadorfinanciero/internal/backend"
	"github.com/CharlyBGood/planificadorfinanciero/internal/config"
	"github.com/CharlyBGood/planificadorfinanciero/internal/core"
	"github.com/CharlyBGood/planificadorfinanciero/internal/gateway"
	"github.com/CharlyBGood/planificadorfinanciero/internal/log"
	"github.com/CharlyBGood/planificadorfinanciero/internal/session"
	"github.com/CharlyBGood/planificadorfinanciero/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	email := flag.String("email", os.Getenv("PLANIFICADOR_EMAIL"), "account email")
	password := flag.String("password", os.Getenv("PLANIFICADOR_PASSWORD"), "account password")
	register := flag.Bool("register", false, "create the account before signing in")
	flag.Parse()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: planificador-cli -email ... -password ... [-register] <list|add|delete|watch> [args]")
		os.Exit(2)
	}
	args := flag.Args()
	if len(args) == 0 {
		args = []string{"list"}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *email, *password, *register, args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, email, password string, register bool, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}

	result, err := backend.NewFactory(nil).CreateBackend(ctx, backendConfig)
	if err != nil {
		return err
	}
	defer func() {
		if result.Cleanup != nil {
			_ = result.Cleanup()
		}
	}()

	if register {
		if _, err := result.Auth.RegisterUser(ctx, email, password); err != nil {
			return fmt.Errorf("register: %w", err)
		}
	}
	if _, err := result.Auth.SignIn(ctx, email, password); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	guard := session.New(result.Gateway)
	defer guard.Close()
	if err := guard.Resolve(ctx); err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	user := guard.CurrentUser()
	if user == nil {
		return core.ErrNoUser
	}

	st := store.New(result.Gateway, store.Config{Strategy: store.WriteStrategy(cfg.WriteStrategy)})
	defer st.Close()
	if err := st.Initialize(ctx, user.ID); err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	switch args[0] {
	case "list":
		return printTransactions(st.Snapshot())
	case "add":
		return addTransaction(ctx, st, args[1:])
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("delete needs a transaction id")
		}
		return st.Delete(ctx, args[1])
	case "watch":
		return watch(ctx, result.Gateway, user.ID)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func addTransaction(ctx context.Context, st *store.Store, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	desc := fs.String("desc", "", "description")
	amount := fs.String("amount", "", "amount, negative for expenses")
	category := fs.String("category", "", "objective id to link")
	if err := fs.Parse(args); err != nil {
		return err
	}

	value, err := decimal.NewFromString(*amount)
	if err != nil {
		return fmt.Errorf("parse amount %q: %w", *amount, err)
	}

	tx, err := st.Add(ctx, *desc, value, *category)
	if err != nil {
		return err
	}
	fmt.Printf("added %s  %s %s\n", tx.ID, tx.Description, tx.Amount)
	return nil
}

func printTransactions(snap store.Snapshot) error {
	if snap.Err != "" {
		return fmt.Errorf("%s", snap.Err)
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tDESCRIPTION\tAMOUNT\tCATEGORY\tCREATED")
	for _, tx := range snap.Transactions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Description, tx.Amount, tx.CategoryID,
			tx.CreatedAt.Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("balance: %s\n", core.Balance(snap.Transactions))
	return nil
}

// watch prints realtime changes until interrupted.
func watch(ctx context.Context, gw gateway.TransactionStore, userID string) error {
	events, cancel := gw.SubscribeTransactions(userID)
	defer cancel()

	fmt.Println("watching for changes, ctrl-c to stop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, open := <-events:
			if !open {
				return nil
			}
			fmt.Printf("%s  %s  %s %s\n", ev.Kind, ev.Transaction.ID, ev.Transaction.Description, ev.Transaction.Amount)
		}
	}
}
