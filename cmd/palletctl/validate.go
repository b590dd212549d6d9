package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/solaius/pallet-registry/pkg/lifecycle"
	"github.com/solaius/pallet-registry/pkg/pallet"
)

var (
	validateFile     string
	validateQuantity float64
	validateStatus   string
	validateLocation string
	validateList     bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate an inventory or exit batch",
	Long: `Validates a batch of pallets for one workflow. Items come from the
positional pallet numbers, or from --file holding a JSON array of
{"numPalette", "quantite", "statut", "emplacement"} objects ("-" reads
stdin). --list shows the pallets awaiting the workflow instead.`,
}

type workflow struct {
	use, short, listPath, validatePath string
}

var workflows = []workflow{
	{"inventory", "Validate counted pallets", "/inventaire", "/inventaire/valider"},
	{"destruction", "Validate destroyed pallets", "/sorties/destruction", "/sorties/destruction/valider"},
	{"return", "Validate returned pallets", "/sorties/renvoi", "/sorties/renvoi/valider"},
	{"production", "Validate pallets sent to production", "/sorties/production", "/sorties/production/valider"},
}

func init() {
	for _, wf := range workflows {
		validateCmd.AddCommand(newValidateCmd(wf))
	}
}

func newValidateCmd(wf workflow) *cobra.Command {
	cmd := &cobra.Command{
		Use:   wf.use + " [NUMBER...]",
		Short: wf.short,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			if validateList {
				var rows []pallet.Summary
				if err := c.getJSON(wf.listPath, nil, &rows); err != nil {
					return err
				}
				return render(rows, func() { printSummaries(rows) })
			}

			items, err := batchItems(cmd, args)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("no items: pass pallet numbers or --file")
			}
			var result lifecycle.BatchResult
			if err := c.postJSON(wf.validatePath, map[string]any{"items": items}, &result); err != nil {
				return err
			}
			return render(result, func() { printBatchResult(result) })
		},
	}
	cmd.Flags().StringVarP(&validateFile, "file", "f", "", "JSON file with the batch items")
	cmd.Flags().Float64Var(&validateQuantity, "quantity", 0, "Quantity applied to every positional item")
	cmd.Flags().BoolVar(&validateList, "list", false, "List the pallets awaiting this workflow")
	if wf.use == "inventory" {
		cmd.Flags().StringVar(&validateStatus, "status", "", "Status applied to every positional item")
		cmd.Flags().StringVar(&validateLocation, "location", "", "Location applied to every positional item")
	}
	return cmd
}

// batchItems builds the batch from --file and the positional numbers.
func batchItems(cmd *cobra.Command, args []string) ([]lifecycle.Item, error) {
	var items []lifecycle.Item
	if validateFile != "" {
		var r io.Reader
		if validateFile == "-" {
			r = cmd.InOrStdin()
		} else {
			f, err := os.Open(validateFile)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		if err := json.NewDecoder(r).Decode(&items); err != nil {
			return nil, fmt.Errorf("parse %s: %w", validateFile, err)
		}
	}

	for _, n := range args {
		it := lifecycle.Item{Number: n, Status: validateStatus, Location: validateLocation}
		if cmd.Flags().Changed("quantity") {
			q := validateQuantity
			it.Quantity = &q
		}
		items = append(items, it)
	}
	return items, nil
}

func printSummaries(rows []pallet.Summary) {
	table := make([][]string, 0, len(rows))
	for _, s := range rows {
		table = append(table, []string{s.Number, orDash(s.Client), orDash(truncate(s.Article, 30)), intPtr(s.Quantity), strPtr(s.Location)})
	}
	printTable([]string{"Number", "Client", "Article", "Qty", "Location"}, table)
}

func printBatchResult(result lifecycle.BatchResult) {
	rows := make([][]string, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		rows = append(rows, []string{
			strconv.Itoa(o.Index), o.Number, string(o.Outcome), orDash(string(o.Reason)), orDash(o.Detail),
		})
	}
	printTable([]string{"#", "Number", "Outcome", "Reason", "Detail"}, rows)
	fmt.Fprintf(out, "\n%d applied, %d skipped\n", result.Applied, result.Skipped)
}
