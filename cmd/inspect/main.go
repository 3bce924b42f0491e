// Command inspect is an operator tool for the dashboard's static datasets.
// It loads one file the same way the service does and prints a column
// summary, a drought selection or a year ranking. It can also announce a
// replaced file on the refresh topic so running services drop their copy.
//
// Usage:
//
//	go run ./cmd/inspect -file data/rmetric_gdf.shp -fields Zone-ID,LReport,l_metric,loss_abs,loss_rel
//	go run ./cmd/inspect -file data/rmetric_gdf.shp -level "Insurance Zone" -metric PML
//	go run ./cmd/inspect -file data/year_rank.csv -years 3
//	go run ./cmd/inspect -file data/df_all_eigenvalues.parquet.gzip -dump
//	KAFKA_BROKERS=localhost:9092 go run ./cmd/inspect -notify data/year_rank.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	kafkaadapter "github.com/bdu-carp/risk-dashboard/internal/adapter/kafka"
	"github.com/bdu-carp/risk-dashboard/internal/config"
	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/loader"
	"github.com/bdu-carp/risk-dashboard/internal/pipeline"
	"github.com/bdu-carp/risk-dashboard/internal/render"
)

type options struct {
	file      string
	fields    string
	level     string
	metric    string
	years     string
	dump      bool
	notify    string
	notifyAll bool
	timeout   time.Duration
}

func main() {
	var o options
	flag.StringVar(&o.file, "file", "", "dataset file to load")
	flag.StringVar(&o.fields, "fields", "", "comma-separated attribute columns to read from a shapefile")
	flag.StringVar(&o.level, "level", "", "reporting level for a drought selection")
	flag.StringVar(&o.metric, "metric", "", "metric type for a drought selection")
	flag.StringVar(&o.years, "years", "", `rank years for a zone code, or "all" across zones`)
	flag.BoolVar(&o.dump, "dump", false, "dump the loaded table")
	flag.StringVar(&o.notify, "notify", "", "publish a dataset notice for this path")
	flag.BoolVar(&o.notifyAll, "notify-all", false, "publish a notice that clears every cached dataset")
	flag.DurationVar(&o.timeout, "timeout", time.Minute, "overall deadline")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if err := run(ctx, o, logger); err != nil {
		logger.Error("inspect failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, logger *slog.Logger) error {
	if o.notify != "" || o.notifyAll {
		return notify(ctx, o, logger)
	}
	if o.file == "" {
		flag.Usage()
		return errors.New("-file is required")
	}

	t, err := loader.New(logger).Load(ctx, loader.Spec{Path: o.file, Fields: splitList(o.fields)})
	if err != nil {
		return err
	}
	p := message.NewPrinter(language.English)

	switch {
	case o.dump:
		spew.Dump(t)
		return nil
	case o.level != "" || o.metric != "":
		return printSelection(os.Stdout, p, t, o.level, o.metric)
	case o.years != "":
		return printYears(os.Stdout, p, t, o.years)
	default:
		printSummary(os.Stdout, p, t)
		return nil
	}
}

func printSummary(w io.Writer, p *message.Printer, t *domain.Table) {
	p.Fprintf(w, "%s: %d rows, %d columns\n\n", t.Source, t.Len(), len(t.Columns))
	p.Fprintf(w, "%-24s %8s %8s %14s %14s %14s\n", "column", "numbers", "nulls", "min", "max", "mean")
	for _, c := range t.Columns {
		nulls := 0
		for _, v := range t.Column(c) {
			if v.IsNull() {
				nulls++
			}
		}
		vals := t.Floats(c)
		if len(vals) == 0 {
			p.Fprintf(w, "%-24s %8d %8d %14s %14s %14s\n", c, 0, nulls, "-", "-", "-")
			continue
		}
		mean, _ := domain.ColumnMean(t, c)
		p.Fprintf(w, "%-24s %8d %8d %14.3f %14.3f %14.3f\n", c, len(vals), nulls, slices.Min(vals), slices.Max(vals), mean)
	}
}

func printSelection(w io.Writer, p *message.Printer, t *domain.Table, level, metric string) error {
	cols := domain.DefaultZoneColumns()
	if err := t.Require(cols.Names()...); err != nil {
		return err
	}
	derived, err := domain.DeriveExposure(t, cols)
	if err != nil {
		return err
	}
	selected, err := domain.FilterByLevelAndMetric(derived, cols, level, metric)
	if err != nil {
		return err
	}
	ranked, err := domain.TopN(selected, domain.ColYieldLossPct, false, 0)
	if err != nil {
		return err
	}

	p.Fprintf(w, "%s / %s: %d zones\n\n", level, metric, ranked.Len())
	p.Fprintf(w, "%-12s %14s %10s %14s %8s\n", "zone", "loss_abs", "loss_rel", "exposure", "yield")
	for i, r := range ranked.Rows {
		p.Fprintf(w, "%02d. %-8s %14s %10s %14s %8s\n", i+1, r.Text(cols.ID),
			cell(p, r.Get(cols.LossAbs), "%.0f"),
			cell(p, r.Get(cols.LossRel), "%.3f"),
			cell(p, r.Get(domain.ColExposure), "%.0f"),
			yieldPct(r.Get(domain.ColYieldLossPct)),
		)
	}
	r := domain.RangeOf(ranked, domain.ColYieldLossPct)
	if !r.Empty {
		p.Fprintf(w, "\nyield loss range: %s to %s\n", render.Percent(r.Min), render.Percent(r.Max))
	}
	return nil
}

func printYears(w io.Writer, p *message.Printer, t *domain.Table, years string) error {
	var zone *int
	if years != "all" {
		n, err := strconv.Atoi(years)
		if err != nil {
			return fmt.Errorf("-years must be a zone code or \"all\": %w", err)
		}
		zone = &n
	}
	ranking, err := domain.RankYears(t, pipeline.DefaultOptions().YearZoneColumn, zone, nil)
	if err != nil {
		return err
	}

	p.Fprintf(w, "%-6s %10s    %-6s %10s\n", "bad", "rank", "good", "rank")
	for i := range ranking.BadYears {
		bad, good := ranking.BadYears[i], ranking.GoodYears[i]
		p.Fprintf(w, "%-6s %10s    %-6s %10s\n",
			bad.Year, cell(p, bad.Rank, "%.3f"),
			good.Year, cell(p, good.Rank, "%.3f"))
	}
	return nil
}

func yieldPct(v domain.Value) string {
	if f, ok := v.Float(); ok {
		return render.Percent(f)
	}
	return "-"
}

func cell(p *message.Printer, v domain.Value, format string) string {
	if f, ok := v.Float(); ok {
		return p.Sprintf(format, f)
	}
	if v.IsNull() {
		return "-"
	}
	return v.Text()
}

func notify(ctx context.Context, o options, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.RefreshEnabled() {
		return errors.New("KAFKA_BROKERS is not set")
	}
	notice := domain.DatasetNotice{PublishedAt: time.Now().UTC()}
	if !o.notifyAll {
		notice.Path = o.notify
	}

	pub := kafkaadapter.NewPublisher(cfg, logger)
	defer pub.Close()
	if err := pub.Publish(ctx, notice); err != nil {
		return err
	}
	fmt.Printf("published notice to %s: path=%q\n", cfg.KafkaRefreshTopic, notice.Path)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
