package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/solaius/pallet-registry/pkg/pallet"
)

// CSVHeader is the header row of an archive export, in SPR_Palette column
// order.
var CSVHeader = []string{
	"NumPalette", "NomClient", "Article", "Quantite", "Emplacement",
	"Date_Dernier_MVT", "Statut", "Date_Modif_Statut", "Utilisateur_Modif_Statut",
	"NumOperation", "Operation", "ActionClient", "Employe", "Date_Entree_Reliquat",
}

const exportTimeLayout = "2006-01-02 15:04:05"

// WriteCSV writes rows as a semicolon-separated export with a header line.
func WriteCSV(w io.Writer, rows []pallet.ArchivedPallet) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for i := range rows {
		if err := cw.Write(csvRecord(&rows[i])); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRecord(a *pallet.ArchivedPallet) []string {
	qty := ""
	if a.Quantity != nil {
		qty = strconv.Itoa(*a.Quantity)
	}
	loc := ""
	if a.Location != nil {
		loc = *a.Location
	}
	return []string{
		a.Number, a.Client, a.Article, qty, loc,
		formatTime(a.LastMovementAt), string(a.Status), formatTime(a.StatusChangedAt), a.StatusChangedBy,
		a.OperationNumber, a.Operation, a.ClientAction, a.Employee, formatTime(a.RegisteredAt),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(exportTimeLayout)
}

// Sink stores an export file and returns where it was written.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// FileSink writes exports into a local directory.
type FileSink struct {
	Dir string
}

// Put writes the file, creating the directory when needed.
func (s FileSink) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export %s: %w", path, err)
	}
	return path, nil
}

// ExportName returns a unique file name for an export taken at t.
func ExportName(t time.Time) string {
	return fmt.Sprintf("archive-export-%s-%s.csv", t.UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// ExportConfirm returns a ConfirmFunc that writes the rows to sink as CSV.
// The deletion proceeds only once the export is stored.
func ExportConfirm(sink Sink, clock func() time.Time, onStored func(location string)) ConfirmFunc {
	if clock == nil {
		clock = time.Now
	}
	return func(ctx context.Context, rows []pallet.ArchivedPallet) error {
		var buf bytes.Buffer
		if err := WriteCSV(&buf, rows); err != nil {
			return fmt.Errorf("encode archive export: %w", err)
		}
		location, err := sink.Put(ctx, ExportName(clock()), buf.Bytes())
		if err != nil {
			return err
		}
		if onStored != nil {
			onStored(location)
		}
		return nil
	}
}
