// Package main manages the schema of the sebal configuration database. The
// migrations are the ones compiled into the sebal binary, so the schema a
// deployment runs is always the one this build expects.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	_ "modernc.org/sqlite"

	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/pkg/config"
	"github.com/chrissnell/sebal/pkg/migrate"
)

const defaultConfigDB = "config.db"

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s [flags] <command> [version]

Commands:
  status        list configuration schema migrations and whether they are applied
  up            apply every pending migration
  to <version>  migrate up or down to a version
  down <version>
                roll back to a version (0 removes the schema)

Flags:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	configDB := flag.String("config-db", defaultConfigDB, "Path to the sebal SQLite configuration database")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Usage = usage
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(*configDB, flag.Args()); err != nil {
		log.Errorf("%s: %v", flag.Arg(0), err)
		os.Exit(1)
	}
}

func run(configDB string, args []string) error {
	if _, err := os.Stat(configDB); err != nil {
		return fmt.Errorf("configuration database: %w", err)
	}
	db, err := sql.Open("sqlite", configDB)
	if err != nil {
		return err
	}
	defer db.Close()

	migrations, err := config.Migrations()
	if err != nil {
		return err
	}
	m := migrate.NewMigrator(db, migrations)

	switch args[0] {
	case "status":
		return printStatus(m, configDB)
	case "up":
		return m.MigrateUp()
	case "to", "down":
		if len(args) != 2 {
			return fmt.Errorf("a target version is required")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid target version %q", args[1])
		}
		if args[0] == "down" {
			return m.MigrateDown(v)
		}
		return m.MigrateTo(v)
	default:
		return fmt.Errorf("unknown command")
	}
}

func printStatus(m *migrate.Migrator, configDB string) error {
	current, st, err := m.Status()
	if err != nil {
		return err
	}

	fmt.Printf("%s: schema version %d (table %s)\n\n", configDB, current, config.MigrationTable)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, s := range st {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Fprintf(tw, "%03d\t%s\t%s\n", s.Version, s.Name, state)
	}
	return tw.Flush()
}
