package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

var locationsState string

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "List warehouse locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		setIf(q, "etat", locationsState)
		var locs []pallet.Location
		if err := newClient().getJSON("/emplacements", q, &locs); err != nil {
			return err
		}
		return render(locs, func() {
			rows := make([][]string, 0, len(locs))
			for _, l := range locs {
				rows = append(rows, []string{l.Code, string(l.State)})
			}
			printTable([]string{"Location", "State"}, rows)
		})
	},
}

type statsResponse struct {
	Statuses []struct {
		Status pallet.Status `json:"statut"`
		Count  int64         `json:"total"`
	} `json:"statuts"`
	Total int64 `json:"total"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count pallets per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats statsResponse
		if err := newClient().getJSON("/stats", nil, &stats); err != nil {
			return err
		}
		return render(stats, func() {
			rows := make([][]string, 0, len(stats.Statuses)+1)
			for _, s := range stats.Statuses {
				rows = append(rows, []string{string(s.Status), strconv.FormatInt(s.Count, 10)})
			}
			rows = append(rows, []string{"Total", strconv.FormatInt(stats.Total, 10)})
			printTable([]string{"Status", "Pallets"}, rows)
		})
	},
}

var alertsDays int

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List pallets without movement for a number of days",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if alertsDays > 0 {
			q.Set("days", strconv.Itoa(alertsDays))
		}
		var resp struct {
			Days    int             `json:"days"`
			Cutoff  time.Time       `json:"cutoff"`
			Pallets []pallet.Pallet `json:"palettes"`
		}
		if err := newClient().getJSON("/alertes", q, &resp); err != nil {
			return err
		}
		return render(resp, func() {
			fmt.Fprintf(out, "No movement since %s (%d days)\n\n", resp.Cutoff.Local().Format("2006-01-02"), resp.Days)
			printPallets(resp.Pallets)
		})
	},
}

func init() {
	locationsCmd.Flags().StringVar(&locationsState, "state", "", "Only locations in this state (Libre or Occupé)")
	alertsCmd.Flags().IntVar(&alertsDays, "days", 0, "Inactivity threshold in days (server default when 0)")
}
