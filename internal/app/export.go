package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"market-pulse-alerts/internal/alert"
	"market-pulse-alerts/internal/storage"
)

// Export renders alert history as CSV and/or an alerts-per-bucket PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-7 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := store.ListBetween(ctx, from, to, storage.QueryFilter{})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no alerts found for export window")
		return nil
	}
	if len(records) > opts.MaxPoints {
		records = records[len(records)-opts.MaxPoints:]
	}

	a.Logger.Info().Int("exported", len(records)).Msg("exporting alerts")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, records); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeAlertsPNG(opts.PNGPath, records, a.Config.Export.BucketSize); err != nil {
			return err
		}
	}

	return nil
}

func writeAlertsCSV(path string, records []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"ts", "kind", "source", "subject", "title", "status"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		row := []string{
			rec.Timestamp.Format(time.RFC3339),
			string(rec.Kind),
			rec.Source,
			rec.Subject,
			rec.Title,
			string(rec.Status),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	return writer.Error()
}

// writeAlertsPNG charts sent vs suppressed alert counts per time bucket.
func writeAlertsPNG(path string, records []storage.AlertRecord, bucketSize time.Duration) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if bucketSize <= 0 {
		bucketSize = time.Hour
	}

	type counts struct {
		sent       float64
		suppressed float64
	}
	buckets := make(map[time.Time]*counts)
	for _, rec := range records {
		bucket := rec.Timestamp.UTC().Truncate(bucketSize)
		c, ok := buckets[bucket]
		if !ok {
			c = &counts{}
			buckets[bucket] = c
		}
		if rec.Status == alert.StatusSuppressed {
			c.suppressed++
		} else {
			c.sent++
		}
	}

	keys := make([]time.Time, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	x := make([]time.Time, len(keys))
	sent := make([]float64, len(keys))
	suppressed := make([]float64, len(keys))
	for i, k := range keys {
		x[i] = k
		sent[i] = buckets[k].sent
		suppressed[i] = buckets[k].suppressed
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Alerts per bucket",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Dispatched",
				XValues: x,
				YValues: sent,
			},
			chart.TimeSeries{
				Name:    "Suppressed",
				XValues: x,
				YValues: suppressed,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
