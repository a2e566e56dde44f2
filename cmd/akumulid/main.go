package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akumuli/akumulid-edge/internal/cliutil"
	"github.com/akumuli/akumulid-edge/internal/config"
	"github.com/akumuli/akumulid-edge/internal/engine"
	"github.com/akumuli/akumulid-edge/internal/logging"
	"github.com/akumuli/akumulid-edge/internal/model"
	"github.com/akumuli/akumulid-edge/internal/server"
)

// version is stamped for --version; no build-time ldflags are assumed in
// this tree, so it stays a literal.
const version = "akumulid 0.1.0"

const ciVolumeSize = 2 << 20 // 2 MiB, per --CI

func main() {
	if err := run(os.Args[1:]); err != nil {
		cliutil.Fail(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values. Commands are mutually
// exclusive; their absence means "run server".
type cliFlags struct {
	configPath string

	help              bool
	showVersion       bool
	init              bool
	initExpandable    bool
	disableWAL        bool
	create            bool
	allocate          bool
	ci                bool
	delete            bool
	debugDump         string
	debugRecoveryDump string
}

func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("akumulid", flag.ContinueOnError)
	var f cliFlags
	fs.StringVar(&f.configPath, "config", "", "override config file location")
	fs.BoolVar(&f.help, "help", false, "print help, exit 0")
	fs.BoolVar(&f.showVersion, "version", false, "print version, exit 0")
	fs.BoolVar(&f.init, "init", false, "create default config at ~/.akumulid, exit 0")
	fs.BoolVar(&f.initExpandable, "init-expandable", false, "same, but nvolumes=0")
	fs.BoolVar(&f.disableWAL, "disable-wal", false, "(with init flags) omit WAL section in generated config")
	fs.BoolVar(&f.create, "create", false, "create database files per config")
	fs.BoolVar(&f.allocate, "allocate", false, "(with --create) preallocate volumes on disk")
	fs.BoolVar(&f.ci, "CI", false, "create database with a 2 MiB test volume size")
	fs.BoolVar(&f.delete, "delete", false, "delete database files per config")
	fs.StringVar(&f.debugDump, "debug-dump", "", `dump engine debug report to <file|"stdout">`)
	fs.StringVar(&f.debugRecoveryDump, "debug-recovery-dump", "", `dump post-recovery debug report to <file|"stdout">`)
	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return f, nil
}

func run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}

	switch {
	case f.help:
		printHelp(os.Stdout)
		return nil
	case f.showVersion:
		fmt.Fprintln(os.Stdout, version)
		return nil
	case f.init || f.initExpandable:
		return runInit(f)
	case f.create:
		return runCreate(f)
	case f.delete:
		return runDelete(f)
	case f.debugDump != "":
		return runDebugDump(f, f.debugDump, "engine debug report")
	case f.debugRecoveryDump != "":
		return runDebugDump(f, f.debugRecoveryDump, "post-recovery debug report")
	default:
		return runServer(f)
	}
}

func printHelp(w *os.File) {
	fmt.Fprintln(w, version)
	fmt.Fprintln(w, "Usage: akumulid [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  --help                         print help, exit 0")
	fmt.Fprintln(w, "  --version                      print version, exit 0")
	fmt.Fprintln(w, "  --config <path>                override config file location")
	fmt.Fprintln(w, "  --init                          create default config at ~/.akumulid, exit 0")
	fmt.Fprintln(w, "  --init-expandable               same, but nvolumes=0")
	fmt.Fprintln(w, "  --disable-wal                   (with init flags) omit WAL section in generated config")
	fmt.Fprintln(w, "  --create                        create database files per config")
	fmt.Fprintln(w, `  --allocate                      (with --create) preallocate volumes on disk`)
	fmt.Fprintln(w, "  --CI                            create database with a 2 MiB test volume size")
	fmt.Fprintln(w, "  --delete                        delete database files per config")
	fmt.Fprintln(w, `  --debug-dump <file|"stdout">    dump engine debug report`)
	fmt.Fprintln(w, `  --debug-recovery-dump <file|"stdout">  dump post-recovery debug report`)
}

func defaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".akumulid"), nil
}

func runInit(f cliFlags) error {
	path, err := defaultConfigPath()
	if err != nil {
		return err
	}
	ini := config.DefaultINI(f.initExpandable)
	if f.disableWAL {
		ini = config.StripWALSection(ini)
	}
	if err := os.WriteFile(path, []byte(ini), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	cliutil.Status(os.Stdout, "wrote default config to %s", path)
	return nil
}

func loadConfig(f cliFlags) (*config.Config, error) {
	path := config.ResolveConfigPath(f.configPath)
	return config.Load(path)
}

func runCreate(f cliFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	wal := model.WALSettings{}
	if !cfg.WAL.Disabled && cfg.WAL.NVolumes > 0 {
		wal = model.WALSettings{Path: cfg.WAL.Path, NVolumes: cfg.WAL.NVolumes, VolumeSize: cfg.WAL.VolumeSize}
	}

	volumeSize := cfg.VolumeSize
	if f.ci {
		volumeSize = ciVolumeSize
	}

	if err := engine.Create(cfg.Path, wal, f.allocate, volumeSize); err != nil {
		return err
	}
	cliutil.Status(os.Stdout, "created database at %s", cfg.Path)
	return nil
}

func runDelete(f cliFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if err := engine.Delete(cfg.Path); err != nil {
		return err
	}
	cliutil.Status(os.Stdout, "deleted database at %s", cfg.Path)
	return nil
}

func runDebugDump(f cliFlags, dest, heading string) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	conn, err := engine.Open(cfg.Path)
	if err != nil {
		return err
	}
	defer conn.Close()

	body, err := conn.StatsText()
	if err != nil {
		return err
	}

	if dest == "stdout" {
		cliutil.Dump(os.Stdout, heading, body)
		return nil
	}
	return os.WriteFile(dest, []byte(body), 0o644)
}

func runServer(f cliFlags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if !engine.ManifestExists(cfg.Path) {
		return fmt.Errorf("no database at %s; run --create first", cfg.Path)
	}

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})
	if cfg.WAL.Disabled && cfg.WAL.DisabledReason != "" {
		logger.Warn("WAL disabled", "reason", cfg.WAL.DisabledReason)
	}

	runner, err := server.NewRunner(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("akumulid starting",
		"path", cfg.Path,
		"http", cfg.HTTP.Port,
		"tcp", cfg.TCP.Port,
		"udp", cfg.UDP.Port,
		"opentsdb", cfg.OpenTSDB.Port,
	)
	cliutil.Status(os.Stdout, "akumulid server started")

	return runner.Run(context.Background())
}
