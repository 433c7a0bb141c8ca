/*
dealerdiff compares the vehicle prices published on a manufacturer website
with the ones on a dealer website and reports every mismatch.

See config.example.yaml for an annotated configuration.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"slices"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/dealerdiff/dealerdiff/internal/compare"
	"github.com/dealerdiff/dealerdiff/internal/config"
	"github.com/dealerdiff/dealerdiff/internal/history"
	"github.com/dealerdiff/dealerdiff/internal/log"
	"github.com/dealerdiff/dealerdiff/internal/metrics"
	"github.com/dealerdiff/dealerdiff/internal/output"
	"github.com/dealerdiff/dealerdiff/internal/server"
	"github.com/dealerdiff/dealerdiff/internal/session"
	"github.com/dealerdiff/dealerdiff/internal/utils"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
)

var version = "dev"

const name = "dealerdiff"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug'."`

	Compare  CompareCmd  `cmd:"" help:"Compare manufacturer and dealer prices once and write the report"`
	List     ListCmd     `cmd:"" help:"List the vehicles in the given configuration file"`
	Validate ValidateCmd `cmd:"" help:"Validate the given configuration file"`
	History  HistoryCmd  `cmd:"" help:"Show the most recent runs"`
	Serve    ServeCmd    `cmd:"" help:"Serve the run history and the latest report over http"`
}

type CompareCmd struct {
	Config  string `short:"c" default:"./config.yaml" help:"The location of the configuration file."`
	Vehicle string `short:"n" help:"The model of the vehicle to be compared, if only one of the configured ones should be compared."`
	Stdout  bool   `short:"o" help:"If set to true the report will be written to stdout despite any other existing writer configurations."`
	DryRun  bool   `short:"D" help:"If set to true the report will not be posted anywhere (only has an effect on the APIWriter)."`
}

func (cc *CompareCmd) Run() error {
	cfg, err := loadConfig(cc.Config)
	if err != nil {
		return err
	}

	vehicles := cfg.EnabledVehicles()
	if cc.Vehicle != "" {
		v, found := cfg.Vehicle(cc.Vehicle)
		if !found {
			err := fmt.Errorf("no vehicle found for model %s", cc.Vehicle)
			slog.Error(err.Error())
			return err
		}
		vehicles = []config.Vehicle{v}
	}

	if cc.Stdout {
		cfg.Writers = []config.WriterConfig{{Type: output.STDOUT_WRITER_TYPE}}
	}
	if cc.DryRun {
		for i := range cfg.Writers {
			cfg.Writers[i].DryRun = true
		}
	}

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			slog.Error(fmt.Sprintf("%v", err))
			return err
		}
		defer store.Close()
	}

	writers, err := output.NewWriters(cfg.Writers, output.Deps{
		Credentials: cfg.Credentials,
		History:     store,
		AppName:     name,
	})
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	m := metrics.New()
	mgr, err := session.New(sessionOptions(cfg.Global))
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer mgr.Close()
	mgr.OnInvalidate = func(error) { m.IncRecreation() }

	runner, err := compare.NewRunner(cfg, mgr, m)
	if err != nil {
		slog.Error(err.Error())
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info(fmt.Sprintf("comparing %d vehicles", len(vehicles)))
	rep, runErr := runner.Run(ctx, vehicles)

	var writeErrs []error
	for _, w := range writers {
		if runErr != nil {
			writeErrs = append(writeErrs, w.WriteError(ctx, runErr))
		} else {
			writeErrs = append(writeErrs, w.Write(ctx, rep))
		}
	}
	if err := m.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		slog.Warn(err.Error())
	}

	if runErr != nil {
		slog.Error(fmt.Sprintf("comparison failed: %v", runErr))
		return runErr
	}
	if err := errors.Join(writeErrs...); err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	if rep.HasMismatch() {
		slog.Info("mismatches found")
	} else {
		slog.Info("all prices match")
	}
	return nil
}

type ListCmd struct {
	Config string `short:"c" default:"./config.yaml" help:"The location of the configuration file."`
	All    bool   `short:"a" help:"Also list the vehicles that are skipped."`
}

func (lc *ListCmd) Run() error {
	cfg, err := config.NewConfig(lc.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	vehicles := cfg.EnabledVehicles()
	if lc.All {
		vehicles = cfg.Vehicles
	}
	names := make([]string, 0, len(vehicles))
	for _, v := range vehicles {
		names = append(names, v.Model)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

type ValidateCmd struct {
	Config string `short:"c" default:"./config.yaml" help:"The location of the configuration file."`
}

func (vc *ValidateCmd) Run() error {
	cfg, err := loadConfig(vc.Config)
	if err != nil {
		return err
	}
	fmt.Printf("%s is valid: %d vehicles enabled, %d writers\n", vc.Config, len(cfg.EnabledVehicles()), len(cfg.Writers))
	return nil
}

type HistoryCmd struct {
	Config string `short:"c" default:"./config.yaml" help:"The location of the configuration file."`
	Limit  int    `short:"l" default:"20" help:"The maximum number of runs to show."`
}

func (hc *HistoryCmd) Run() error {
	store, err := openHistory(hc.Config)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(context.Background(), hc.Limit)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Generated At", "Status", "Mismatches", "Error")
	for _, r := range runs {
		row := []string{
			strconv.FormatInt(r.ID, 10),
			r.GeneratedAt.Local().Format("2006-01-02 15:04:05"),
			r.Status,
			strconv.Itoa(r.Mismatches),
			utils.ShortenString(r.Error, 60),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

type ServeCmd struct {
	Config string `short:"c" default:"./config.yaml" help:"The location of the configuration file."`
	Addr   string `short:"a" default:":8080" help:"The address to listen on."`
}

func (sc *ServeCmd) Run() error {
	store, err := openHistory(sc.Config)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(store, prometheus.DefaultGatherer)
	if err := srv.ListenAndServe(ctx, sc.Addr); err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	return nil
}

// loadConfig reads and validates the configuration at path.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewConfig(path)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return nil, err
	}
	return cfg, nil
}

func openHistory(configPath string) (*history.Store, error) {
	cfg, err := config.NewConfig(configPath)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return nil, err
	}
	if cfg.History.Path == "" {
		err := errors.New("history.path is not configured")
		slog.Error(err.Error())
		return nil, err
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return nil, err
	}
	return store, nil
}

func sessionOptions(g config.GlobalConfig) session.Options {
	opts := session.DefaultOptions(session.DriverKind(g.DriverKind))
	opts.Headless = g.Headless
	opts.ExecPath = g.ExecPath
	opts.UserAgent = g.UserAgent
	opts.MaxRetries = g.MaxRetries
	return opts
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}
	ctx := kong.Parse(&cli,
		kong.Name(name),
		kong.Vars{
			"version": string(cli.Version),
		})
	log.Debug = cli.Debug
	// the default logger depends on log.Debug, so it can only be set up
	// after parsing the flags
	log.InitializeDefaultLogger()
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
