package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	_ "modernc.org/sqlite"

	"court_bot/migrations"
)

var usage = map[string]string{
	"up":      "Migrate to the latest version",
	"up-one":  "Migrate one version up",
	"down":    "Roll back one version",
	"status":  "Show migration status",
	"version": "Show current version",
	"reset":   "Roll back all migrations",
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "migrate",
		Usage: "Manage the court bot database schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Value:   "./data/bot.db",
				EnvVars: []string{"DATABASE_PATH"},
				Usage:   "path to sqlite database",
			},
		},
	}
	for _, name := range migrations.Commands {
		app.Commands = append(app.Commands, migrationCmd(name))
	}
	return app
}

func migrationCmd(name string) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage[name],
		Action: func(c *cli.Context) error {
			db, err := sql.Open("sqlite", c.String("db"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			return migrations.Exec(c.Context, db, name)
		},
	}
}
