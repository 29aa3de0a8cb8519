// hubjobs runs the meetup notification job processor once and exits. It is
// the cron-invocable equivalent of the daemon's resident loop and the HTTP
// trigger endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/activityhub/activityhub/internal/config"
	"github.com/activityhub/activityhub/internal/logging"
	"github.com/activityhub/activityhub/internal/paths"
	"github.com/activityhub/activityhub/internal/push"
	"github.com/activityhub/activityhub/internal/scheduler"
	"github.com/activityhub/activityhub/internal/storage"
)

func main() {
	configFlag := flag.String("config", "", "config file path (overrides ~/.activityhub/config.toml)")
	flag.Parse()

	if err := run(*configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	if err := paths.EnsureDirs(); err != nil {
		return err
	}
	if configPath == "" {
		configPath = paths.ConfigPath()
	}
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(paths.LogPath(), "hubjobs")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	db, err := storage.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if _, err := db.Migrate(); err != nil {
		return err
	}

	var gateway push.Gateway = push.NewExpoGateway(logger)
	if !cfg.Push.Enabled {
		gateway = push.NewNopGateway(logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	processor := scheduler.NewProcessor(db, gateway, logger, cfg.JobBatchSize())
	count, err := processor.Run(ctx)
	if err != nil {
		return err
	}

	result := map[string]any{"message": "Processed jobs", "count": count}
	if count == 0 {
		result = map[string]any{"message": "No jobs due"}
	}
	return json.NewEncoder(os.Stdout).Encode(result)
}
