// digiturno-seed applies the schema and loads the records a fresh install
// needs: the main site, its default visit reasons, one module and an admin.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Gabrielda2002/Back-end-digiturno/internal/store/postgres"
	"github.com/Gabrielda2002/Back-end-digiturno/migrations"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var dsn string
	var migrate bool
	var opts seedOptions

	flagSet := pflag.NewFlagSet("digiturno-seed", pflag.ContinueOnError)
	flagSet.StringVar(&dsn, "dsn", os.Getenv("DB_DSN"), "postgres connection string (default: $DB_DSN)")
	flagSet.BoolVar(&migrate, "migrate", false, "apply the embedded SQL migrations before seeding")
	flagSet.StringVar(&opts.SiteCode, "site-code", "PRINCIPAL", "code of the site to create")
	flagSet.StringVar(&opts.SiteName, "site-name", "Sede Principal", "name of the site to create")
	flagSet.StringVar(&opts.AdminEmail, "admin-email", "admin@example.com", "email of the admin account")
	flagSet.StringVar(&opts.AdminPassword, "admin-password", os.Getenv("SEED_ADMIN_PASSWORD"), "password for a new admin account (default: $SEED_ADMIN_PASSWORD)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintln(os.Stderr, "usage: digiturno-seed [flags]")
		flagSet.PrintDefaults()
		return nil
	}
	if dsn == "" {
		return fmt.Errorf("--dsn or DB_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	if migrate {
		if err := migrations.Apply(ctx, pool); err != nil {
			return err
		}
		log.Printf("migrations applied")
	}
	return seed(ctx, postgres.NewStore(pool), opts)
}
