/*
Package main implements the cityserve lookup server and CLI [DBG] application.

cityserve loads a list of cities once at startup into an in-memory prefix
index and answers "which cities start with ..." queries. It can operate as a
MessagePack IPC server for integration with other processes, or as a CLI
application for testing and debugging.

# Usage

Start the server with default settings:

	cityserve

Use a custom city list and enable debug mode:

	cityserve -data /path/to/cities.json -d

Run in CLI mode for interactive testing:

	cityserve -c -limit 10

Load from a prebuilt snapshot instead of parsing JSON, or write one. Snapshot
paths end in .snap or .msgpack:

	cityserve -data data/cities.json -write-snapshot data/cities.snap
	cityserve -snapshot data/cities.snap

The city list is a JSON array of objects:

	{"country":"UA","name":"Hurzuf","_id":707860,"coord":{"lon":34.283333,"lat":44.549999}}

# Configuration

Runtime configuration lives in a TOML file, created with defaults under the
user config directory if it doesn't exist:

	[server]
	max_limit = 64
	default_limit = 20
	max_prefix = 60

	[data]
	path = "data/cities.json"
	snapshot = ""

	[cache]
	max_entries = 2048

	[metrics]
	addr = ""

Flags given on the command line win over the file. -rebuild-config resets the
file to the defaults.

# IPC Protocol

See package server. In short:

	{"id": "q1", "p": "al", "l": 3}

is answered with

	{"id": "q1", "r": [{"i": 1279064, "c": "IN", "n": "Alandur", ...}], "c": 3019, "t": 41}

# Metrics

Setting metrics.addr (or -metrics) serves Prometheus metrics on /metrics and
health probes on /healthz and /readyz.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bastiangx/cityserve/internal/cli"
	"github.com/bastiangx/cityserve/internal/logger"
	"github.com/bastiangx/cityserve/internal/observability"
	"github.com/bastiangx/cityserve/internal/utils"
	"github.com/bastiangx/cityserve/pkg/config"
	"github.com/bastiangx/cityserve/pkg/repository"
	"github.com/bastiangx/cityserve/pkg/server"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const (
	Version = "0.3.0"
	gh      = "https://github.com/bastiangx/cityserve"
)

// exitGrace is how long a signal waits for run to unwind before forcing exit.
const exitGrace = 2 * time.Second

// sigHandler cancels the run context on SIGINT or SIGTERM. A run blocked on a
// read that cancel cannot interrupt is ended after exitGrace.
func sigHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		cancel()
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		time.Sleep(exitGrace)
		os.Exit(0)
	}()
}

func main() {
	os.Exit(run())
}

// run wires config, the repository and either the IPC server or the CLI, and
// returns the process exit code.
func run() int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigHandler(cancel)

	defaultConfig := config.DefaultConfig()

	showVersion := flag.Bool("version", false, "Show current version")
	configPath := flag.String("config", "", "Path to a config.toml (default: user config dir)")
	rebuildConfig := flag.Bool("rebuild-config", false, "Overwrite the default config.toml with defaults and exit")
	dataPath := flag.String("data", defaultConfig.Data.Path, "JSON city list to load")
	snapshotPath := flag.String("snapshot", "", "Load from a msgpack snapshot instead of -data")
	writeSnapshot := flag.String("write-snapshot", "", "Write a snapshot (.snap or .msgpack) of the loaded index to this path and exit")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	limit := flag.Int("limit", defaultConfig.CLI.DefaultLimit, "Number of cities to print in CLI mode")
	minPrefix := flag.Int("prmin", defaultConfig.CLI.MinPrefix, "Minimum prefix length in CLI mode")
	maxPrefix := flag.Int("prmax", defaultConfig.CLI.MaxPrefix, "Maximum prefix length in CLI mode")
	noFilter := flag.Bool("no-filter", false, "Disable CLI input filtering (DBG only)")
	cacheSize := flag.Int("cache", defaultConfig.Cache.MaxEntries, "Prefix cache entries (0 disables)")
	metricsAddr := flag.String("metrics", "", "Serve /metrics, /healthz and /readyz on this address")

	flag.Parse()

	if *showVersion {
		printVersion()
		return 0
	}

	logger.Configure(*debugMode)

	if *rebuildConfig {
		path, err := config.RebuildConfigFile()
		if err != nil {
			log.Errorf("Failed to rebuild config: %v", err)
			return 1
		}
		log.Infof("Wrote default config to %s", path)
		return 0
	}

	if *writeSnapshot != "" && !repository.HasExtension(*writeSnapshot, repository.FormatSnapshot) {
		info, _ := repository.GetFormatInfo(repository.FormatSnapshot)
		log.Errorf("Snapshot path %s must end in one of %v to be loadable with -snapshot", *writeSnapshot, info.Extensions)
		return 2
	}

	cfg, activeConfig := config.LoadConfigWithPriority(*configPath)
	log.Debugf("Using config: %s", config.GetActiveConfigPath(activeConfig))

	// The IPC config action writes back what came from the file, not the flags.
	fileConfig := *cfg

	// Flags given explicitly override the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.Data.Path = *dataPath
		case "snapshot":
			cfg.Data.Snapshot = *snapshotPath
		case "limit":
			cfg.CLI.DefaultLimit = *limit
		case "prmin":
			cfg.CLI.MinPrefix = *minPrefix
		case "prmax":
			cfg.CLI.MaxPrefix = *maxPrefix
		case "cache":
			cfg.Cache.MaxEntries = *cacheSize
		case "metrics":
			cfg.Metrics.Addr = *metricsAddr
		}
	})
	cfg.Sanitize()

	pathResolver, err := utils.NewPathResolver()
	if err != nil {
		log.Errorf("Failed to initialize path resolver: %v", err)
		return 1
	}

	sourcePath := cfg.Data.Path
	if cfg.Data.Snapshot != "" {
		sourcePath = cfg.Data.Snapshot
	}
	resolvedSource, err := pathResolver.ResolveDataFile(sourcePath)
	if err != nil {
		log.Errorf("City data not found at %s (also looked next to the binary and in %s)", resolvedSource, pathResolver.ConfigDir())
		return 1
	}
	log.Debugf("Using city data at: %s", resolvedSource)

	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		metrics = observability.NewMetrics()
	}

	repo := repository.New(repository.NewFileSource(resolvedSource),
		repository.WithCacheSize(cfg.Cache.MaxEntries),
		repository.WithMetrics(metrics),
		repository.WithLogger(logger.New("Repository")))

	if metrics != nil {
		httpSrv := observability.NewHTTPServer(cfg.Metrics.Addr, repo, logger.New("Metrics"))
		go func() {
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = httpSrv.Shutdown(shutdownCtx)
		}()
	}

	if err := repo.Load(); err != nil {
		log.Errorf("Failed to load cities: %v", err)
		return 1
	}

	if *writeSnapshot != "" {
		err := utils.WriteFileAtomic(*writeSnapshot, func(f *os.File) error {
			return repo.Snapshot(f)
		})
		if err != nil {
			log.Errorf("Failed to write snapshot: %v", err)
			return 1
		}
		log.Infof("Wrote snapshot to %s", utils.GetAbsolutePath(*writeSnapshot))
		return 0
	}

	// CLI would be mainly used for testing and dbg purposes.
	if *cliMode {
		log.Debug("Input info:",
			"minPrefix", cfg.CLI.MinPrefix,
			"maxPrefix", cfg.CLI.MaxPrefix,
			"limit", cfg.CLI.DefaultLimit,
			"noFilter", *noFilter)

		inputHandler := cli.NewInputHandler(repo, cfg.CLI, os.Stdin, log.Default(), *noFilter)
		if err := inputHandler.Start(); err != nil {
			log.Errorf("CLI error: %v", err)
			return 1
		}
		return 0
	}

	log.Debug("spawning IPC")
	srv := server.NewServer(repo, cfg.Server, server.WithConfigFile(&fileConfig, activeConfig))
	showStartupInfo(repo, resolvedSource)

	if err := srv.Start(ctx); err != nil {
		log.Errorf("Server stopped: %v", err)
		return 1
	}
	return 0
}

func printVersion() {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	l.SetStyles(styles)

	l.Print("")
	l.Print("[ cityserve ] Finds cities by the first letters of their name")
	l.Print("", "version", Version)
	l.Print("")
	l.Print("use -h or --help to see available options")
	l.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the load on stderr.
func showStartupInfo(repo *repository.Repository, source string) {
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)
	defer log.SetLevel(currentLevel)

	stats, err := repo.Stats()
	if err != nil {
		log.Errorf("Index not ready: %v", err)
		return
	}

	fmt.Fprintln(os.Stderr, "===========")
	fmt.Fprintln(os.Stderr, " cityserve ")
	fmt.Fprintln(os.Stderr, "===========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", os.Getpid())
	log.Infof("cities: %s (%s names)", utils.FormatWithCommas(stats.Records), utils.FormatWithCommas(stats.Names))
	log.Infof("source: ( %s )", source)
	log.Info("status: ready")
	fmt.Fprintln(os.Stderr, "===========")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit")
}
