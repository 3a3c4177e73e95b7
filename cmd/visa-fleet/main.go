/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/visafleet/pkg/config"
	"github.com/carverauto/visafleet/pkg/fleet"
	"github.com/carverauto/visafleet/pkg/lifecycle"
	"github.com/carverauto/visafleet/pkg/logger"
	"github.com/carverauto/visafleet/pkg/models"
	"github.com/carverauto/visafleet/pkg/natsutil"
	"github.com/carverauto/visafleet/pkg/version"
	"github.com/carverauto/visafleet/pkg/visa"
)

const shutdownTimeout = 10 * time.Second

var (
	errFailedToLoadConfig = errors.New("failed to load config")
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/visa-fleet/fleet.json", "Path to fleet config file")
	once := flag.Bool("once", false, "Run a single scan, export the tables and exit")
	showVersion := flag.Bool("version", false, "Print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetFullVersion())

		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgLoader := config.NewConfig(nil)

	cfg := models.DefaultFleetConfig()
	if err := cfgLoader.LoadAndValidate(ctx, *configPath, cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	fleetLogger, err := lifecycle.CreateComponentLogger("visa-fleet", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	fleetLogger.Info().Str("version", version.GetFullVersion()).Msg("Starting fleet manager")

	rm := visa.NewResourceManager(fleetLogger, visa.WithPorts(cfg.VXI11Port, cfg.SCPIPort))

	var opts []fleet.ManagerOption

	var publisher *natsutil.FleetPublisher

	if cfg.NATS.Enabled {
		publisher, err = natsutil.Connect(ctx, cfg.NATS, fleetLogger)
		if err != nil {
			return err
		}

		opts = append(opts, fleet.WithBridge(publisher), fleet.WithObserver(publisher))
	}

	mgr, err := fleet.NewManager(cfg, rm, fleetLogger, opts...)
	if err != nil {
		return err
	}

	mgr.Start()

	if *once {
		return scanOnce(ctx, mgr, fleetLogger)
	}

	if publisher != nil {
		if err := publisher.SubscribeCommands(mgr.HandleCommand); err != nil {
			stopManager(mgr, fleetLogger)

			return err
		}
	}

	go func() {
		n, err := mgr.TriggerScan(ctx)
		if err != nil {
			fleetLogger.Warn().Err(err).Msg("Initial scan did not run")

			return
		}

		fleetLogger.Info().Int("devices", n).Msg("Initial scan complete")
	}()

	go mgr.RunPeriodicScans(ctx, cfg.ScanInterval.Std())

	<-ctx.Done()

	fleetLogger.Info().Msg("Shutting down fleet manager")

	stopManager(mgr, fleetLogger)

	return nil
}

func scanOnce(ctx context.Context, mgr *fleet.Manager, log logger.Logger) error {
	defer stopManager(mgr, log)

	n, err := mgr.TriggerScan(ctx)
	if err != nil {
		return err
	}

	tables, err := mgr.ExportTables()
	if err != nil {
		return err
	}

	log.Info().Int("devices", n).Int("tables", tables).Msg("Scan complete")

	return nil
}

func stopManager(mgr *fleet.Manager, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := mgr.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("Fleet manager did not stop cleanly")
	}
}
