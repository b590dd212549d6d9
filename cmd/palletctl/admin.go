package main

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/solaius/pallet-registry/pkg/archive"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Administrative status commands",
}

var statusSetCmd = &cobra.Command{
	Use:   "set NUMBER STATUS",
	Short: "Override the status of a pallet (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"numPalette": args[0], "statut": args[1]}
		var p pallet.Pallet
		if err := newClient().postJSON("/admin/statut", body, &p); err != nil {
			return err
		}
		return render(p, func() { printPallets([]pallet.Pallet{p}) })
	},
}

var (
	purgeStatuses []string
	purgeDays     int
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Move finished pallets to the archive (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{}
		if len(purgeStatuses) > 0 {
			body["statuts"] = purgeStatuses
		}
		if cmd.Flags().Changed("older-than-days") {
			body["olderThanDays"] = purgeDays
		}
		var result archive.PurgeResult
		if err := newClient().postJSON("/admin/purge", body, &result); err != nil {
			return err
		}
		return render(result, func() {
			fmt.Fprintf(out, "%d pallets archived (cutoff %s)\n", result.Archived, result.Cutoff.Local().Format("2006-01-02"))
			for _, n := range result.Numbers {
				fmt.Fprintln(out, "  "+n)
			}
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore NUMBER...",
	Short: "Restore archived pallets (admin)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result archive.RestoreResult
		if err := newClient().postJSON("/admin/restore", map[string]any{"numbers": args}, &result); err != nil {
			return err
		}
		return render(result, func() {
			rows := make([][]string, 0, len(result.Outcomes))
			for _, o := range result.Outcomes {
				rows = append(rows, []string{o.Number, strconv.FormatBool(o.Restored), strconv.FormatBool(o.LocationCleared), orDash(o.Reason)})
			}
			printTable([]string{"Number", "Restored", "Location Cleared", "Reason"}, rows)
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect and expire the pallet archive (admin)",
}

var (
	archiveNumber string
	archiveClient string
	archiveStatus string
	archiveLimit  int
	archiveCSV    string
)

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived pallets",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		setIf(q, "numPalette", archiveNumber)
		setIf(q, "nomClient", archiveClient)
		setIf(q, "statut", archiveStatus)
		if archiveLimit > 0 {
			q.Set("limit", strconv.Itoa(archiveLimit))
		}
		c := newClient()

		if archiveCSV != "" {
			q.Set("format", "csv")
			data, err := c.send(http.MethodGet, "/admin/archives", q, nil)
			if err != nil {
				return err
			}
			if err := os.WriteFile(archiveCSV, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", archiveCSV, err)
			}
			fmt.Fprintf(out, "Archive written to %s\n", archiveCSV)
			return nil
		}

		var rows []pallet.ArchivedPallet
		if err := c.getJSON("/admin/archives", q, &rows); err != nil {
			return err
		}
		return render(rows, func() { printArchived(rows) })
	},
}

var (
	expireYears        int
	expireOut          string
	expireYes          bool
	expireServerExport bool
)

var archiveExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Export and delete archive rows past the retention period",
	Long: `Selects the archive rows older than the retention period, writes them to
a ';'-delimited CSV file and, once confirmed, deletes them from the
archive. With --server-export the server writes the export to its own
sink and deletes in one call.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()

		if expireServerExport {
			body := map[string]any{}
			if expireYears > 0 {
				body["years"] = expireYears
			}
			var resp struct {
				Deleted int64     `json:"deleted"`
				Cutoff  time.Time `json:"cutoff"`
				Export  string    `json:"export"`
			}
			if err := c.do(http.MethodDelete, "/admin/archives/expired", nil, body, &resp); err != nil {
				return err
			}
			return render(resp, func() {
				fmt.Fprintf(out, "%d archive rows deleted, export stored at %s\n", resp.Deleted, orDash(resp.Export))
			})
		}

		q := url.Values{}
		if expireYears > 0 {
			q.Set("years", strconv.Itoa(expireYears))
		}
		var expired archive.Expired
		if err := c.getJSON("/admin/archives/expired", q, &expired); err != nil {
			return err
		}
		if len(expired.Rows) == 0 {
			fmt.Fprintf(out, "No archive rows older than %s\n", expired.Cutoff.Local().Format("2006-01-02"))
			return nil
		}

		path := expireOut
		if path == "" {
			path = archive.ExportName(time.Now())
		}
		if err := writeExport(path, expired.Rows); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d rows older than %s exported to %s\n",
			len(expired.Rows), expired.Cutoff.Local().Format("2006-01-02"), path)

		if !expireYes {
			if !confirm(cmd, fmt.Sprintf("Delete %d archive rows?", len(expired.Rows))) {
				fmt.Fprintln(out, "Aborted; nothing deleted")
				return nil
			}
		}

		body := map[string]any{"numbers": expired.Numbers(), "cutoff": expired.Cutoff}
		var resp struct {
			Deleted int64 `json:"deleted"`
		}
		if err := c.do(http.MethodDelete, "/admin/archives/expired", nil, body, &resp); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d archive rows deleted\n", resp.Deleted)
		return nil
	},
}

func init() {
	statusCmd.AddCommand(statusSetCmd)

	purgeCmd.Flags().StringSliceVar(&purgeStatuses, "status", nil, "Statuses to purge (server default when empty)")
	purgeCmd.Flags().IntVar(&purgeDays, "older-than-days", 0, "Minimum age of the last status change in days")

	archiveCmd.AddCommand(archiveListCmd, archiveExpireCmd)

	archiveListCmd.Flags().StringVar(&archiveNumber, "number", "", "Pallet number pattern")
	archiveListCmd.Flags().StringVar(&archiveClient, "client", "", "Client pattern")
	archiveListCmd.Flags().StringVar(&archiveStatus, "status", "", "Exact status")
	archiveListCmd.Flags().IntVar(&archiveLimit, "limit", 0, "Maximum rows")
	archiveListCmd.Flags().StringVar(&archiveCSV, "csv", "", "Write the rows as CSV to this file")

	archiveExpireCmd.Flags().IntVar(&expireYears, "years", 0, "Retention in years (server default when 0)")
	archiveExpireCmd.Flags().StringVar(&expireOut, "out", "", "Export file (generated name when empty)")
	archiveExpireCmd.Flags().BoolVarP(&expireYes, "yes", "y", false, "Delete without asking")
	archiveExpireCmd.Flags().BoolVar(&expireServerExport, "server-export", false, "Let the server export and delete")
}

// writeExport writes rows to path in the archive CSV format.
func writeExport(path string, rows []pallet.ArchivedPallet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	if err := archive.WriteCSV(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("write export: %w", err)
	}
	return f.Close()
}

// confirm asks a yes/no question on stdin; anything but yes is a no.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "o", "oui":
		return true
	}
	return false
}

func printArchived(rows []pallet.ArchivedPallet) {
	table := make([][]string, 0, len(rows))
	for _, p := range rows {
		table = append(table, []string{
			p.Number,
			orDash(p.Client),
			orDash(truncate(p.Article, 30)),
			intPtr(p.Quantity),
			orDash(string(p.Status)),
			timePtr(p.StatusChangedAt),
		})
	}
	printTable([]string{"Number", "Client", "Article", "Qty", "Status", "Status changed"}, table)
}
