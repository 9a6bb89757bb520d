// Command bse runs market sessions: populations of algorithmic traders
// working customer orders against a central limit order book, with the
// trade tape, quote stream and per-type balances written out as CSV for
// offline analysis.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"

	"github.com/davecliff/BristolStockExchange/pkg/config"
	"github.com/davecliff/BristolStockExchange/pkg/metrics"
	"github.com/davecliff/BristolStockExchange/pkg/session"
	"github.com/davecliff/BristolStockExchange/pkg/stream"
)

func main() {
	var (
		configPath  = flag.String("config", "", "TOML config file (defaults used when empty)")
		ticks       = flag.Int("ticks", 0, "override ticks per trading day")
		days        = flag.Int("days", 0, "override number of trading days")
		seed        = flag.Int64("seed", 0, "override base RNG seed")
		outDir      = flag.String("out", "", "override output directory")
		logLevel    = flag.String("log-level", "", "override log level")
		metricsAddr = flag.String("metrics-addr", "", "override metrics listen address")
		streamAddr  = flag.String("stream-addr", "", "override trade feed listen address")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bse: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(&cfg, *ticks, *days, *seed, *outDir, *logLevel, *metricsAddr, *streamAddr)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "bse: invalid config: %v\n", err)
		os.Exit(1)
	}

	level, _ := log.ToLevel(cfg.LogLevel)
	logger := log.NewTestLogger(level)

	if err := run(cfg, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	return config.Load(path)
}

func applyOverrides(cfg *config.Config, ticks, days int, seed int64, outDir, logLevel, metricsAddr, streamAddr string) {
	if ticks > 0 {
		cfg.Session.Ticks = ticks
	}
	if days > 0 {
		cfg.Session.Days = days
	}
	if seed != 0 {
		cfg.Session.Seed = seed
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if metricsAddr != "" {
		cfg.Output.MetricsAddr = metricsAddr
	}
	if streamAddr != "" {
		cfg.Output.StreamAddr = streamAddr
	}
}

func run(cfg config.Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	m := metrics.New("bse", logger)
	if cfg.Output.MetricsAddr != "" {
		go func() {
			if err := m.Serve(cfg.Output.MetricsAddr); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	var feed *stream.Server
	if cfg.Output.StreamAddr != "" {
		feed = stream.NewServer(logger)
		go func() {
			if err := feed.Serve(cfg.Output.StreamAddr); err != nil {
				logger.Error("trade feed stopped", "error", err)
			}
		}()
		defer feed.Stop()
	}

	logger.Info("starting experiment",
		"days", cfg.Session.Days,
		"ticks", cfg.Session.Ticks,
		"seed", cfg.Session.Seed,
		"parallel", parallelism(cfg))

	sessions := make([]*session.Session, cfg.Session.Days)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism(cfg))
	for day := 0; day < cfg.Session.Days; day++ {
		day := day
		g.Go(func() error {
			s, err := session.New(cfg, day, logger, m)
			if err != nil {
				return fmt.Errorf("day %d: %w", day, err)
			}
			if feed != nil {
				s.OnTrade = feed.PublishTrade
			}
			sessions[day] = s
			if err := s.Run(gctx); err != nil {
				return fmt.Errorf("day %d: %w", day, err)
			}
			return nil
		})
	}

	runErr := g.Wait()

	// completed days get written out even when a later day was interrupted,
	// so a stopped experiment still yields usable data
	for day, s := range sessions {
		if s == nil || s.State() != session.Closed {
			continue
		}
		if err := writeDay(cfg.Output.Dir, day, s); err != nil {
			logger.Error("write output failed", "day", day, "error", err)
			if runErr == nil {
				runErr = err
			}
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("experiment complete", "days", cfg.Session.Days, "out", cfg.Output.Dir)
	return nil
}

func parallelism(cfg config.Config) int {
	if cfg.Session.Parallel > 0 {
		return cfg.Session.Parallel
	}
	return 1
}

func writeDay(dir string, day int, s *session.Session) error {
	if err := writeFile(filepath.Join(dir, fmt.Sprintf("transactions_day%03d.csv", day)), s.Tape().WriteTradesCSV); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, fmt.Sprintf("quotes_day%03d.csv", day)), s.Tape().WriteQuotesCSV); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, fmt.Sprintf("balances_day%03d.csv", day)), func(w io.Writer) error {
		return session.WriteBalancesCSV(w, s.ID(), s.Day(), s.Balances())
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
