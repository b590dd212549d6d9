package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/solaius/pallet-registry/pkg/lifecycle"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

var getCmd = &cobra.Command{
	Use:   "get NUMBER",
	Short: "Show a pallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p pallet.Pallet
		if err := newClient().getJSON("/palettes/"+url.PathEscape(args[0]), nil, &p); err != nil {
			return err
		}
		return render(p, func() { printPallets([]pallet.Pallet{p}) })
	},
}

var (
	searchNumber   string
	searchClient   string
	searchArticle  string
	searchLocation string
	searchStatus   string
	searchFilter   string
	searchLimit    int
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search pallets",
	Long: `Searches pallets. --number, --client, --article and --location are LIKE
patterns (use % as wildcard); --status matches exactly. --filter takes an
expression such as:

  client LIKE "ACME%" AND status = "En stock" AND quantity >= 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		setIf(q, "numPalette", searchNumber)
		setIf(q, "nomClient", searchClient)
		setIf(q, "article", searchArticle)
		setIf(q, "emplacement", searchLocation)
		setIf(q, "statut", searchStatus)
		setIf(q, "filter", searchFilter)
		if searchLimit > 0 {
			q.Set("limit", strconv.Itoa(searchLimit))
		}

		var pallets []pallet.Pallet
		if err := newClient().getJSON("/consultation", q, &pallets); err != nil {
			return err
		}
		return render(pallets, func() { printPallets(pallets) })
	},
}

var historyMovements bool

var historyCmd = &cobra.Command{
	Use:   "history NUMBER",
	Short: "Show the status history of a pallet (--movements for moves)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		base := "/palettes/" + url.PathEscape(args[0])
		if historyMovements {
			var events []pallet.MovementEvent
			if err := c.getJSON(base+"/mouvements", nil, &events); err != nil {
				return err
			}
			return render(events, func() {
				rows := make([][]string, 0, len(events))
				for _, ev := range events {
					rows = append(rows, []string{ev.MovedAt.Local().Format("2006-01-02 15:04"), ev.Zone})
				}
				printTable([]string{"Date", "Zone"}, rows)
			})
		}

		var events []pallet.StatusEvent
		if err := c.getJSON(base+"/statuts", nil, &events); err != nil {
			return err
		}
		return render(events, func() {
			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				rows = append(rows, []string{
					ev.ChangedAt.Local().Format("2006-01-02 15:04"), string(ev.Status), orDash(ev.ChangedBy),
				})
			}
			printTable([]string{"Date", "Status", "By"}, rows)
		})
	},
}

var intakeReason string

var intakeCmd = &cobra.Command{
	Use:   "intake NUMBER LOCATION",
	Short: "Put a pallet into stock at a location",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"numPalette": args[0], "emplacement": args[1]}
		if intakeReason != "" {
			body["motif"] = intakeReason
		}
		var p pallet.Pallet
		if err := newClient().postJSON("/entree", body, &p); err != nil {
			return err
		}
		return render(p, func() { printPallets([]pallet.Pallet{p}) })
	},
}

var moveCmd = &cobra.Command{
	Use:   "move NUMBER LOCATION",
	Short: "Relocate a stocked pallet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"numPalette": args[0], "emplacement": args[1]}
		var p pallet.Pallet
		if err := newClient().do(http.MethodPatch, "/emplacements/palette", nil, body, &p); err != nil {
			return err
		}
		return render(p, func() { printPallets([]pallet.Pallet{p}) })
	},
}

var (
	registerNumber    string
	registerClient    string
	registerArticle   string
	registerQuantity  int
	registerOperation string
	registerOpNumber  string
	registerAction    string
	registerEmployee  string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new pallet (number allocated when omitted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := lifecycle.Registration{
			Number:          registerNumber,
			Client:          registerClient,
			Article:         registerArticle,
			OperationNumber: registerOpNumber,
			Operation:       registerOperation,
			ClientAction:    registerAction,
			Employee:        registerEmployee,
		}
		if cmd.Flags().Changed("quantity") {
			reg.Quantity = &registerQuantity
		}
		var p pallet.Pallet
		if err := newClient().postJSON("/palettes", reg, &p); err != nil {
			return err
		}
		return render(p, func() { printPallets([]pallet.Pallet{p}) })
	},
}

var nextNumberCmd = &cobra.Command{
	Use:   "next-number",
	Short: "Show the next free pallet number",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Number string `json:"numPalette"`
		}
		if err := newClient().getJSON("/palettes:next-number", nil, &resp); err != nil {
			return err
		}
		return render(resp, func() { fmt.Fprintln(out, resp.Number) })
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchNumber, "number", "", "Pallet number pattern")
	searchCmd.Flags().StringVar(&searchClient, "client", "", "Client pattern")
	searchCmd.Flags().StringVar(&searchArticle, "article", "", "Article pattern")
	searchCmd.Flags().StringVar(&searchLocation, "location", "", "Location pattern")
	searchCmd.Flags().StringVar(&searchStatus, "status", "", "Exact status")
	searchCmd.Flags().StringVar(&searchFilter, "filter", "", "Filter expression")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "Maximum rows (server default when 0)")

	historyCmd.Flags().BoolVar(&historyMovements, "movements", false, "Show movements instead of statuses")

	intakeCmd.Flags().StringVar(&intakeReason, "reason", "", "Intake reason")

	registerCmd.Flags().StringVar(&registerNumber, "number", "", "Pallet number")
	registerCmd.Flags().StringVar(&registerClient, "client", "", "Client name")
	registerCmd.Flags().StringVar(&registerArticle, "article", "", "Article")
	registerCmd.Flags().IntVar(&registerQuantity, "quantity", 0, "Quantity")
	registerCmd.Flags().StringVar(&registerOperation, "operation", "", "Operation label")
	registerCmd.Flags().StringVar(&registerOpNumber, "operation-number", "", "Operation number")
	registerCmd.Flags().StringVar(&registerAction, "client-action", "", "Client action")
	registerCmd.Flags().StringVar(&registerEmployee, "employee", "", "Employee")
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func printPallets(pallets []pallet.Pallet) {
	rows := make([][]string, 0, len(pallets))
	for _, p := range pallets {
		rows = append(rows, []string{
			p.Number,
			orDash(p.Client),
			orDash(truncate(p.Article, 30)),
			intPtr(p.Quantity),
			strPtr(p.Location),
			orDash(string(p.Status)),
			timePtr(p.LastMovementAt),
		})
	}
	printTable([]string{"Number", "Client", "Article", "Qty", "Location", "Status", "Last move"}, rows)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
