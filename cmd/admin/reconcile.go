package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"carteira/internal/domain/invoice"
)

var (
	reconcileUserIDs string
	reconcileAll     bool
	reconcileWorkers int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute invoices from installments and recurring charges",
	Long: `Recompute invoices for the given users, or for every user with an active card.

Examples:
  admin reconcile --user-id=1
  admin reconcile --user-id=1,2,3
  admin reconcile --all --workers=8 --timeout=1h`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&reconcileUserIDs, "user-id", "", "user ID(s), comma separated")
	reconcileCmd.Flags().BoolVar(&reconcileAll, "all", false, "reconcile every user with an active card")
	reconcileCmd.Flags().IntVar(&reconcileWorkers, "workers", 4, "number of users reconciled concurrently")
	reconcileCmd.MarkFlagsMutuallyExclusive("user-id", "all")
	reconcileCmd.MarkFlagsOneRequired("user-id", "all")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	svc, err := openServices(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	var userIDs []int64
	if reconcileAll {
		if userIDs, err = svc.cards.ListUserIDsWithActiveCards(ctx); err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		log.Info().Int("users", len(userIDs)).Msg("Found users with active cards")
	} else if userIDs, err = parseUserIDs(reconcileUserIDs); err != nil {
		return err
	}

	if len(userIDs) == 0 {
		fmt.Println("No users to process")
		return nil
	}

	start := time.Now()
	results := svc.invoices.ReconcileUsers(ctx, userIDs, reconcileWorkers)
	failed := printReconcileResults(os.Stdout, results)
	log.Info().Int("users", len(userIDs)).Dur("elapsed", time.Since(start)).Msg("Reconciliation finished")

	if failed > 0 {
		return fmt.Errorf("%d user(s) failed", failed)
	}
	return nil
}

// printReconcileResults writes one row per user, ordered by id, and returns
// how many users had errors.
func printReconcileResults(out io.Writer, results map[int64]invoice.UserReconcile) int {
	ids := make([]int64, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tCREATED\tUPDATED\tUNCHANGED\tSTATUS\tERRORS")

	failed := 0
	for _, id := range ids {
		r := results[id]
		if r.Err != nil || r.Result == nil {
			failed++
			err := r.Err
			if err == nil {
				err = errors.New("no result")
			}
			fmt.Fprintf(w, "%d\t-\t-\t-\t-\t%v\n", id, err)
			continue
		}
		if len(r.Result.Errors) > 0 {
			failed++
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\n", id,
			r.Result.Created, r.Result.Updated, r.Result.Unchanged, r.Result.StatusChanged, len(r.Result.Errors))
	}
	w.Flush()

	return failed
}
