package audit

import (
	"context"
	"fmt"
	"io"
	"time"
)

var activityColumns = []string{
	"Time (UTC)", "Booking ID", "Booking", "Event", "Actor", "From", "To", "Assets",
}

// Exporter renders activity to a workbook.
type Exporter struct {
	store Store
}

func NewExporter(store Store) *Exporter {
	return &Exporter{store: store}
}

// Export writes the organization's activity in [from, to) as xlsx to out.
func (e *Exporter) Export(ctx context.Context, orgID string, from, to time.Time, out io.Writer) (int, error) {
	xw, n, err := e.build(ctx, orgID, from, to)
	if err != nil {
		return 0, err
	}
	defer xw.Close()
	if err := xw.Save(out); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return n, nil
}

// ExportToFile is Export writing to path.
func (e *Exporter) ExportToFile(ctx context.Context, orgID string, from, to time.Time, path string) (int, error) {
	xw, n, err := e.build(ctx, orgID, from, to)
	if err != nil {
		return 0, err
	}
	defer xw.Close()
	if err := xw.SaveToFile(path); err != nil {
		return 0, fmt.Errorf("save workbook: %w", err)
	}
	return n, nil
}

func (e *Exporter) build(ctx context.Context, orgID string, from, to time.Time) (*ExcelWriter, int, error) {
	rows, err := e.store.ListActivity(ctx, orgID, from, to)
	if err != nil {
		return nil, 0, fmt.Errorf("list activity: %w", err)
	}
	xw := NewExcelWriter()
	if err := xw.AddSheet("Activity"); err != nil {
		xw.Close()
		return nil, 0, err
	}
	if err := xw.WriteHeader(activityColumns); err != nil {
		xw.Close()
		return nil, 0, err
	}
	for _, a := range rows {
		if err := xw.WriteRow([]any{
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.BookingID,
			a.BookingName,
			a.Type,
			a.ActorID,
			a.FromStatus,
			a.ToStatus,
			a.AssetCount,
		}); err != nil {
			xw.Close()
			return nil, 0, err
		}
	}
	return xw, len(rows), nil
}

// MonthRange returns the first instant of t's month and of the next one.
func MonthRange(t time.Time) (time.Time, time.Time) {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// Filename names a monthly export, e.g. "activity_2025-07.xlsx".
func Filename(t time.Time) string {
	return fmt.Sprintf("activity_%s.xlsx", t.UTC().Format("2006-01"))
}
