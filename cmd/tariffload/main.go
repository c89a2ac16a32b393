// Command tariffload loads a directory of captured tariff responses into a
// relational table with an inferred schema.
//
// Usage:
//
//	tariffload load ./captures
//	tariffload load --backend sqlite --dsn file:tariff.db --clear-db ./captures
//	tariffload print-config
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"tariffload/internal/config"
	"tariffload/internal/metrics"
	"tariffload/internal/metrics/datadog"
	"tariffload/internal/pipeline"
	_ "tariffload/internal/storage/all"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "tariffload",
		Usage:   "Load captured tariff JSON responses into a relational table",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file (defaults apply when omitted)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "load",
				Usage:     "Run one load over a capture directory",
				ArgsUsage: "<input-dir>",
				Action:    runLoad,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "backend",
						Usage: "Storage backend: postgres, sqlite, or mssql",
					},
					&cli.StringFlag{
						Name:  "dsn",
						Usage: "Target database DSN",
					},
					&cli.StringFlag{
						Name:  "table",
						Usage: "Destination table name",
					},
					&cli.BoolFlag{
						Name:  "keep-structured",
						Usage: "Keep nested objects/arrays as JSON columns",
					},
					&cli.BoolFlag{
						Name:  "clear-db",
						Usage: "Drop every table in the target database before loading",
					},
					&cli.BoolFlag{
						Name:  "skip-optimize",
						Usage: "Skip the post-load column pruning pass",
					},
					&cli.StringFlag{
						Name:  "metrics-backend",
						Usage: "Metrics backend: datadog or none",
					},
				},
			},
			{
				Name:   "print-config",
				Usage:  "Print the effective configuration as YAML and exit",
				Action: printConfig,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}

	// Flag overrides.
	if c.IsSet("backend") {
		cfg.DB.Kind = c.String("backend")
	}
	if c.IsSet("dsn") {
		cfg.DB.DSN = c.String("dsn")
	}
	if c.IsSet("table") {
		cfg.DB.Table = c.String("table")
	}
	if c.IsSet("keep-structured") {
		cfg.Extract.KeepStructured = c.Bool("keep-structured")
	}
	if c.IsSet("skip-optimize") {
		cfg.Optimize.Enabled = !c.Bool("skip-optimize")
	}
	if c.IsSet("metrics-backend") {
		cfg.Metrics.Backend = c.String("metrics-backend")
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "config: %v\n", e)
		}
		return cfg, fmt.Errorf("invalid configuration (%d problems)", len(errs))
	}
	return cfg, nil
}

func runLoad(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected exactly one input directory argument")
	}
	inputDir := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	closeMetrics, err := initMetrics(cfg.Metrics)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer closeMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, aborting run...")
		cancel()
	}()

	p := pipeline.New(cfg, log.Default())
	p.ClearDB = c.Bool("clear-db")

	_, err = p.Run(ctx, inputDir)
	return err
}

func printConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}

// initMetrics wires the configured metrics backend into the metrics package
// and returns a closer for the end of the run.
func initMetrics(cfg config.MetricsConfig) (func(), error) {
	switch cfg.Backend {
	case "", "none":
		return func() {}, nil
	case "datadog":
		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    "tariffload",
			Tags:       cfg.Tags,
			FlushEvery: time.Duration(cfg.FlushSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Printf("metrics: datadog close error: %v", err)
			}
		}, nil
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", cfg.Backend)
	}
}
