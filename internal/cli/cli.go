// Package cli implements the osmaddr-index command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eunmann/osm-addr-index/internal/config"
	"github.com/eunmann/osm-addr-index/internal/logctx"
	"github.com/eunmann/osm-addr-index/pkg/addrexport"
	"github.com/eunmann/osm-addr-index/pkg/extract"
	"github.com/eunmann/osm-addr-index/pkg/hnrstore"
	"github.com/eunmann/osm-addr-index/pkg/logging"
	"github.com/eunmann/osm-addr-index/pkg/memdiag"
	"github.com/eunmann/osm-addr-index/pkg/region"
	"github.com/eunmann/osm-addr-index/pkg/s3fetch"
)

// Run executes the CLI with the given arguments.
func Run(ctx context.Context, args []string) error {
	root := NewRootCommand()
	// cobra reads os.Args when given nil.
	root.SetArgs(append([]string{}, args...))
	return root.ExecuteContext(ctx)
}

type rootOptions struct {
	configFile string
	debug      bool
	human      bool

	cfg *config.Config
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "osmaddr-index",
		Short:         "Extract postal addresses and house number ranges from OSM PBF extracts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.cfg = cfg
			logging.Init(cfg.Log.Debug || opts.debug, cfg.Log.Human || opts.human)
			return nil
		},
		RunE: func(*cobra.Command, []string) error {
			return errors.New("usage: osmaddr-index <extract|regions|stats> [flags]")
		},
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./osmaddr.yaml if present)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&opts.human, "human", false, "human-friendly log output")

	root.AddCommand(
		newExtractCommand(opts),
		newRegionsCommand(),
		newStatsCommand(opts),
	)
	return root
}

type extractOptions struct {
	region string
	db     string
	out    string
	limit  int
	print  bool
}

func newExtractCommand(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract <file.osm.pbf | s3://bucket/key>",
		Short: "Stream addresses from an extract and merge house number ranges into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd.Context(), cmd.OutOrStdout(), root.cfg, opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.region, "region", "", "world region slug or abbreviation, e.g. us-california or US-CA (required)")
	cmd.Flags().StringVar(&opts.db, "db", "", "SQLite store path (default from config store.path)")
	cmd.Flags().StringVar(&opts.out, "out", "", "write addresses to this Parquet file")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "stop after this many addresses (0 = no limit)")
	cmd.Flags().BoolVar(&opts.print, "print", false, "print addresses to stdout")
	_ = cmd.MarkFlagRequired("region")
	return cmd
}

func runExtract(ctx context.Context, stdout io.Writer, cfg *config.Config, opts *extractOptions, input string) error {
	if opts.limit < 0 {
		return errors.New("--limit must be non-negative")
	}
	r, err := region.Parse(opts.region)
	if err != nil {
		return err
	}

	storeCfg := cfg.StoreConfig()
	if opts.db != "" {
		storeCfg.Path = opts.db
	}
	store, err := hnrstore.OpenSQLite(storeCfg, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var client *s3fetch.Client
	if s3fetch.IsS3URI(input) {
		if client, err = s3fetch.NewClient(ctx, cfg.DownloaderConfig()); err != nil {
			return err
		}
	}

	tracker := memdiag.NewTracker(cfg.DiagConfig())
	tracker.Start()
	defer tracker.Stop()

	ctx = logctx.WithStr(ctx, "command", "extract")
	stream, err := extract.AddressesFromPBFFileWithHouseNumbers(ctx, input, r, store,
		extract.WithConfig(cfg.ExtractConfig()),
		extract.WithOpener(s3fetch.Opener(client)),
		extract.WithTracker(tracker),
	)
	if err != nil {
		return err
	}
	defer stream.Close()

	var export *addrexport.Writer
	if opts.out != "" {
		if export, err = addrexport.Create(opts.out); err != nil {
			return fmt.Errorf("create export: %w", err)
		}
		defer export.Abort()
	}

	var n int
	for addr, err := range stream.All() {
		if err != nil {
			return err
		}
		if export != nil {
			if err := export.Write(addr); err != nil {
				return err
			}
		}
		if opts.print {
			fmt.Fprintln(stdout, addr.String())
		}
		n++
		if opts.limit > 0 && n >= opts.limit {
			break
		}
	}

	sum, err := stream.Wait()
	if err != nil {
		return fmt.Errorf("store house number ranges: %w", err)
	}
	if export != nil {
		if err := export.Close(); err != nil {
			return err
		}
	}

	fmt.Fprintf(stdout, "%s: %d addresses, %d ranges over %d streets stored\n",
		sum.Region, n, sum.RangesAggregated, sum.StreetsStored)
	return nil
}

func newRegionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List supported world regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REGION\tABBREV\tCOUNTRY\tNAME")
			for _, info := range region.Default().All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Region, info.Abbrev, info.Country.Alpha2(), info.Name)
			}
			return tw.Flush()
		},
	}
}

func newStatsCommand(root *rootOptions) *cobra.Command {
	var db, regionFlag string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count stored house number range keys per region",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			storeCfg := root.cfg.StoreConfig()
			if db != "" {
				storeCfg.Path = db
			}
			prefix := hnrstore.KeyPrefix
			if regionFlag != "" {
				r, err := region.Parse(regionFlag)
				if err != nil {
					return err
				}
				abbr, err := region.Default().Abbreviation(r)
				if err != nil {
					return err
				}
				prefix = hnrstore.RegionPrefix(abbr)
			}

			store, err := hnrstore.OpenSQLite(storeCfg, nil)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer store.Close()

			keys, err := store.Keys(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			return writeStats(cmd.OutOrStdout(), keys)
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "SQLite store path (default from config store.path)")
	cmd.Flags().StringVar(&regionFlag, "region", "", "only count keys of this region")
	return cmd
}

func writeStats(w io.Writer, keys []string) error {
	counts := make(map[string]int)
	for _, k := range keys {
		abbr, _, ok := strings.Cut(strings.TrimPrefix(k, hnrstore.KeyPrefix), ":")
		if !ok {
			continue
		}
		counts[abbr]++
	}
	abbrs := make([]string, 0, len(counts))
	for a := range counts {
		abbrs = append(abbrs, a)
	}
	sort.Strings(abbrs)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ABBREV\tSTREETS")
	for _, a := range abbrs {
		fmt.Fprintf(tw, "%s\t%d\n", a, counts[a])
	}
	fmt.Fprintf(tw, "TOTAL\t%d\n", len(keys))
	return tw.Flush()
}
