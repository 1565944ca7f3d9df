package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/FlatDrop/internal/database"
	"github.com/dharsanguruparan/FlatDrop/internal/repository"
)

type recordGetter interface {
	Get(ctx context.Context, id string) (*repository.Record, error)
}

func newHistoryCmd() *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "history <artifact-id>",
		Short: "Show the journaled lifecycle of an artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				dsn = os.Getenv("DATABASE_URL")
			}
			if dsn == "" {
				return errors.New("no database configured (set --database or DATABASE_URL)")
			}
			pool, err := database.Connect(cmd.Context(), dsn)
			if err != nil {
				return err
			}
			defer pool.Close()
			return printHistory(cmd.Context(), cmd.OutOrStdout(), repository.NewArtifactRepository(pool), args[0])
		},
	}
	cmd.Flags().StringVar(&dsn, "database", "", "Postgres DSN (default $DATABASE_URL)")
	return cmd
}

func printHistory(ctx context.Context, out io.Writer, repo recordGetter, id string) error {
	rec, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "id:      %s\n", rec.ID)
	fmt.Fprintf(out, "store:   %s\n", rec.Store)
	fmt.Fprintf(out, "pages:   %d\n", rec.Pages)
	fmt.Fprintf(out, "bytes:   %d\n", rec.Size)
	fmt.Fprintf(out, "created: %s\n", rec.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "expires: %s\n", rec.ExpiresAt.UTC().Format(time.RFC3339))
	if rec.ExpiredAt != nil {
		fmt.Fprintf(out, "expired: %s\n", rec.ExpiredAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(out, "expired: no")
	}
	return nil
}
