package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"quizhub/internal/app"
	"quizhub/internal/db"
	"quizhub/internal/importer"
	"quizhub/internal/logger"

	"github.com/joho/godotenv"
)

const usage = "usage: importquiz <file.csv|file.xlsx>"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New(usage)
	}
	path := args[0]

	cfg := app.LoadConfig()
	lg, err := logger.New(cfg.AppEnv)
	if err != nil {
		return err
	}
	defer lg.Sync()

	conn, err := db.OpenPostgresWithConfig(ctx, cfg.DBDSN, cfg.PostgresConfig())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer conn.Close()

	if cfg.DBAutoMigrate {
		if err := db.EnsureSchema(ctx, conn); err != nil {
			return err
		}
	}

	report, err := importer.New(conn, lg).ImportFile(ctx, path)
	if err != nil {
		return err
	}

	printReport(out, report)
	return nil
}

func printReport(out io.Writer, r *importer.Report) {
	fmt.Fprintln(out, "Import complete")
	fmt.Fprintf(out, "  rows:       %d\n", r.Rows)
	fmt.Fprintf(out, "  categories: %d created\n", r.CategoriesCreated)
	fmt.Fprintf(out, "  quizzes:    %d created\n", r.QuizzesCreated)
	fmt.Fprintf(out, "  questions:  %d created\n", r.QuestionsCreated)
	fmt.Fprintf(out, "  choices:    %d created\n", r.ChoicesCreated)
	if len(r.NoCorrectLines) > 0 {
		fmt.Fprintf(out, "  warning: no correct choice on rows %v\n", r.NoCorrectLines)
	}
}
