package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pwci/pw-ci/internal/cimon"
	"github.com/pwci/pw-ci/internal/config"
	"github.com/pwci/pw-ci/internal/monitor"
	"github.com/pwci/pw-ci/internal/patchwork"
	"github.com/pwci/pw-ci/internal/provider"
	"github.com/pwci/pw-ci/internal/report"
	"github.com/pwci/pw-ci/internal/scripts"
	"github.com/pwci/pw-ci/internal/seriesdb"
	"github.com/pwci/pw-ci/internal/watch"
)

var watchCron string

func init() {
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the review-tracker passes once",
		RunE:  runMonitor,
	}
	rootCmd.AddCommand(monitorCmd)

	ciMonitorCmd := &cobra.Command{
		Use:   "ci-monitor",
		Short: "Poll CI providers and report finished builds",
		RunE:  runCIMonitor,
	}
	rootCmd.AddCommand(ciMonitorCmd)

	seriesInfoCmd := &cobra.Command{
		Use:   "series-info SERIES_ID",
		Short: "Show the tracked state of one series",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeriesInfo,
	}
	rootCmd.AddCommand(seriesInfoCmd)

	listSeriesCmd := &cobra.Command{
		Use:   "list-series",
		Short: "List tracked series",
		RunE:  runListSeries,
	}
	rootCmd.AddCommand(listSeriesCmd)

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run monitor and ci-monitor cycles on a schedule",
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&watchCron, "cron", "", "cron schedule (default from config)")
	rootCmd.AddCommand(watchCmd)
}

func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolvedConfigPath())
}

func openStore(cfg *config.Config) (*seriesdb.Store, error) {
	return seriesdb.New(config.ExpandPath(cfg.General.DatabasePath))
}

func newTrackerClient(cfg *config.Config) *patchwork.Client {
	return patchwork.NewClient(cfg.Patchwork.Instance, cfg.Patchwork.Credentials)
}

func buildProviders(cfg *config.Config, store *seriesdb.Store) ([]provider.Provider, error) {
	var providers []provider.Provider
	for _, name := range cfg.CI.EnabledProviders() {
		opts := provider.Options{}
		if name == "github" {
			opts.APIBase = cfg.CI.GitHubAPIBase
		}

		p, err := provider.New(name, cfg.CI.Token(name), store, opts)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func buildCIMon(cfg *config.Config, store *seriesdb.Store, client *patchwork.Client) (*cimon.CIMon, error) {
	providers, err := buildProviders(cfg, store)
	if err != nil {
		return nil, err
	}

	c := &cimon.CIMon{
		Client:    client,
		Providers: providers,
		Composer: &report.Composer{
			From: cfg.Report.From,
			To:   cfg.Report.To,
			Statuses: report.StatusStrings{
				Success: cfg.Report.Success,
				Failure: cfg.Report.Failure,
				Warning: cfg.Report.Warning,
			},
		},
		Notifier:        &report.GitSendEmail{DryRun: cfg.Report.DryRun},
		FetchLogs:       cfg.CI.FetchLogs,
		PostResult:      cfg.CI.PostResult,
		PostResultExtra: cfg.CI.PostResultExtra,
		URLFilter:       cfg.CI.PatchURLFilter,
	}
	if cfg.CI.FetchLogs || cfg.CI.PostResult {
		c.Scripts = scripts.NewRunner(config.ExpandPath(cfg.CI.ScriptsDir))
	}
	return c, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateMonitor(); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	m := monitor.New(store, newTrackerClient(cfg), cfg.Patchwork.Project)
	return m.RunFullCheck(cfg.CI.RecheckFilters)
}

func runCIMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateCIMon(); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := buildCIMon(cfg, store, newTrackerClient(cfg))
	if err != nil {
		return err
	}
	return c.Run(cfg.Patchwork.Project)
}

func runSeriesInfo(cmd *cobra.Command, args []string) error {
	seriesID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid series id %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateMonitor(); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	info, found, err := store.GetSeriesInfo(cfg.Patchwork.Instance, seriesID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("series %d is not tracked", seriesID)
	}

	fmt.Printf("Series id:  %d\n", info.SeriesID)
	fmt.Printf("Project:    %s\n", info.Project)
	fmt.Printf("URL:        %s\n", info.URL)
	fmt.Printf("Submitter:  %s <%s>\n", info.Submitter, info.Email)
	fmt.Printf("Completed:  %v\n", info.Completed)
	fmt.Printf("Submitted:  %v\n", info.Submitted)
	if info.Branch != "" {
		fmt.Printf("Branch:     %s\n", info.Branch)
		fmt.Printf("Repo:       %s\n", info.Repo)
	}
	return nil
}

func runListSeries(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateMonitor(); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.ListSeries(cfg.Patchwork.Instance, cfg.Patchwork.Project)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBMITTER\tCOMPLETED\tSUBMITTED\tBRANCH")
	for _, s := range list {
		branch := s.Branch
		if branch == "" {
			branch = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%v\t%v\t%s\n",
			s.SeriesID, s.Submitter, s.Completed, s.Submitted, branch)
	}
	w.Flush()

	return nil
}

// runCycle is one watch-mode iteration: tracker passes first, then the CI
// side when it is configured
func runCycle(cfg *config.Config) error {
	if err := cfg.ValidateMonitor(); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	client := newTrackerClient(cfg)
	m := monitor.New(store, client, cfg.Patchwork.Project)

	firstErr := m.RunFullCheck(cfg.CI.RecheckFilters)

	if err := cfg.ValidateCIMon(); err != nil {
		// monitor-only watch setups are fine
		return firstErr
	}

	c, err := buildCIMon(cfg, store, client)
	if err != nil {
		return err
	}
	if err := c.Run(cfg.Patchwork.Project); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateMonitor(); err != nil {
		return err
	}

	schedule := watchCron
	if schedule == "" {
		schedule = cfg.Watch.Cron
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := &watch.Watcher{
		ConfigPath: resolvedConfigPath(),
		Schedule:   schedule,
		Run:        runCycle,
	}
	return w.Start(ctx)
}
