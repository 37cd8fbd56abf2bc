package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"

	v1 "github.com/zetareticula/kvfeast/api/v1"
	"github.com/zetareticula/kvfeast/internal/onlinestore"
	"github.com/zetareticula/kvfeast/internal/store"
)

// Writes two driver_stats rows, reads them back and removes them again.
// Connection settings come from --config and are overridden by flags.
func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "online store YAML config")
		storeType  = pflag.String("type", "", "store type: aerospike, redis, cassandra or memory")
		host       = pflag.String("host", "", "store host")
		port       = pflag.Int("port", 0, "store port")
		namespace  = pflag.String("namespace", "aura_universal_user_profile", "namespace for driver_stats when not configured")
		set        = pflag.String("set", "profiles", "set for driver_stats when not configured")
		keyMode    = pflag.String("key-mode", "", "primary key mode: digest or scalar")
		keep       = pflag.Bool("keep", false, "leave the demo rows in the store")
		timeout    = pflag.Duration("timeout", 30*time.Second, "overall deadline")
		verbose    = pflag.BoolP("verbose", "v", false, "debug logging")
	)
	pflag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := logr.FromSlogHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := onlinestore.DefaultConfig()
	if *configPath != "" {
		loaded, err := onlinestore.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	cfg.Merge(&onlinestore.Config{
		Type:       *storeType,
		Connection: store.Config{Host: *host, Port: *port},
		Key:        onlinestore.KeyConfig{Mode: *keyMode},
	})
	if _, err := cfg.FeatureView(driverStats.Name); err != nil {
		cfg.Merge(&onlinestore.Config{FeatureViews: map[string]onlinestore.FeatureViewConfig{
			driverStats.Name: {Namespace: *namespace, SetName: *set, ShortName: "driveSt"},
		}})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	s, err := onlinestore.New(cfg, onlinestore.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create online store: %v", err)
	}

	rows := []v1.WriteItem{
		driverRow("1004", 539, 0.85, "test"),
		driverRow("1005", 12, 0.4, "test2"),
	}
	written := 0
	report, err := s.OnlineWriteBatch(ctx, driverStats, rows, func(n int) { written += n })
	if err != nil {
		log.Fatalf("Failed to write: %v", err)
	}
	if err := report.Err(); err != nil {
		log.Printf("Some rows were not written: %v", err)
	}
	fmt.Printf("Wrote %d of %d rows\n", written, len(rows))

	keys := make([]v1.EntityKey, len(rows))
	for i, row := range rows {
		keys[i] = row.EntityKey
	}
	results, err := s.OnlineRead(ctx, driverStats, keys, []string{"avg_daily_trips", "conv_rate", "string_feature"})
	if err != nil {
		log.Fatalf("Failed to read: %v", err)
	}
	for i, r := range results {
		printResult(keys[i], r)
	}

	if *keep {
		return
	}
	if report, err = s.OnlineDelete(ctx, driverStats, keys); err != nil {
		log.Fatalf("Failed to remove: %v", err)
	}
	if err := report.Err(); err != nil {
		log.Printf("Some rows were not removed: %v", err)
	}
	fmt.Printf("Removed %d rows\n", report.Written)
}

var driverStats = v1.FeatureView{
	Name: "driver_stats",
	Features: []v1.Field{
		{Name: "avg_daily_trips", Type: v1.ValueTypeInt64},
		{Name: "conv_rate", Type: v1.ValueTypeFloat},
		{Name: "string_feature", Type: v1.ValueTypeString},
	},
}

func driverRow(id string, trips int64, convRate float32, label string) v1.WriteItem {
	return v1.WriteItem{
		EntityKey: v1.NewEntityKey("driver_id", v1.StringValue(id)),
		Values: map[string]v1.Value{
			"avg_daily_trips": v1.Int64Value(trips),
			"conv_rate":       v1.FloatValue(convRate),
			"string_feature":  v1.StringValue(label),
		},
		EventTime: time.Now().UTC(),
	}
}

func printResult(key v1.EntityKey, r v1.ReadResult) {
	switch r.Status {
	case v1.ReadFailed:
		fmt.Printf("%s: failed: %v\n", key, r.Err)
		return
	case v1.ReadNotFound:
		fmt.Printf("%s: not found\n", key)
		return
	}

	names := make([]string, 0, len(r.Features))
	for name := range r.Features {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("%s:\n", key)
	for _, name := range names {
		fmt.Printf("  %s = %s\n", name, r.Features[name])
	}
}
