package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"awical/internal/config"
	"awical/internal/importer"
	appLog "awical/internal/log"
	"awical/internal/status"
	"awical/internal/storage/awclient"
	"awical/internal/storage/sqlite"
	"awical/internal/watch"
	"awical/internal/web"
)

type flagConfig struct {
	configPath string
	dataPath   string
	listen     string
	once       bool
}

// bucketStore is a Store that can also create its bucket.
type bucketStore interface {
	importer.Store
	EnsureBucket(ctx context.Context, bucket string) error
}

func main() {
	flags := parseFlags()

	if flags.configPath == "" {
		p, err := config.DefaultPath()
		if err != nil {
			appLog.Error("failed to resolve config path", err)
			os.Exit(1)
		}
		flags.configPath = p
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.dataPath != "" {
		conf.DataPath = flags.dataPath
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", conf.Timezone)
		os.Exit(1)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	bucket := conf.BucketName(hostname)

	appLog.Info("effective config",
		"data_path", conf.DataPath,
		"storage", conf.Storage,
		"bucket", bucket,
		"timezone", conf.Timezone,
		"rescan", conf.Rescan,
		"listen", conf.Listen,
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(conf, hostname)
	if err != nil {
		appLog.Error("failed to open storage", err, "storage", conf.Storage)
		os.Exit(1)
	}
	defer closeStore()

	if err := store.EnsureBucket(ctx, bucket); err != nil {
		appLog.Error("failed to create bucket", err, "bucket", bucket)
		os.Exit(1)
	}

	reporter := status.NewReporter(os.Stdout)
	imp := importer.New(store, bucket,
		importer.WithLocation(loc),
		importer.WithMaxOccurrences(conf.MaxOccurrences),
		importer.WithReporter(reporter),
	)
	w := watch.New(conf.DataPath, imp, watch.WithRescan(conf.Rescan))

	if flags.once {
		if err := w.ProcessPending(ctx); err != nil {
			appLog.Error("import failed", err, "data_path", conf.DataPath)
			os.Exit(1)
		}
		return
	}

	if conf.Listen != "" {
		srv := web.NewServer(bucket, conf.DataPath, reporter)
		go func() {
			if err := srv.ListenAndServe(ctx, conf.Listen); err != nil {
				appLog.Error("HTTP server stopped", err, "listen", conf.Listen)
			}
		}()
	}

	if err := w.Run(ctx); err != nil {
		appLog.Error("watcher stopped", err, "data_path", conf.DataPath)
		os.Exit(1)
	}
	appLog.Info("aw-importer-ical exiting")
}

func openStore(conf *config.Config, hostname string) (bucketStore, func(), error) {
	switch conf.Storage {
	case config.StorageSQLite:
		s, err := sqlite.New(conf.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		c := awclient.New(conf.EffectiveServerURL(), config.WatcherName, hostname)
		return c, func() {}, nil
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "", "Path to config file (default: XDG config dir)")
	flag.StringVar(&cfg.dataPath, "data-path", "", "Directory with calendar exports (overrides config if set)")
	flag.StringVar(&cfg.listen, "listen", "", "Status HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Import pending files and exit")

	flag.Parse()

	return cfg
}
