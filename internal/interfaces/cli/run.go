package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/turtacn/KeyIP-MMP/internal/application/pipeline"
	"github.com/turtacn/KeyIP-MMP/internal/config"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/chem/graphkit"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/database/redis"
	"github.com/turtacn/KeyIP-MMP/internal/infrastructure/monitoring/logging"
	grpciface "github.com/turtacn/KeyIP-MMP/internal/interfaces/grpc"
	"github.com/turtacn/KeyIP-MMP/pkg/errors"
	"github.com/turtacn/KeyIP-MMP/pkg/types/mmp"
)

// Runner executes one run, locally or against a server.
type Runner interface {
	Run(ctx context.Context, req mmp.RunRequest) (*mmp.RunResponse, error)
}

type runFlags struct {
	input       string
	output      string
	unprocessed string
	format      string
	remote      string

	cutRule               string
	customPattern         string
	maxCuts               int
	addHydrogens          bool
	trackCutConnectivity  bool
	maxChangingHeavyAtoms int
	minUnchangedRatio     float64
	minSimilarity         float64

	reverse       bool
	reaction      bool
	key           bool
	heavyAtoms    bool
	ratios        bool
	acyclic       bool
	ignoreIDs     bool
	matchDist     bool
	concurrency   int
	useCache      bool
	remoteTimeout time.Duration
}

// NewRunCmd builds "mmp run".
func NewRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fragment structures and emit matched-pair transforms",
		Long: "Reads one structure per line (structure text, then identifier) and writes\n" +
			"a tab-separated transform table.  Structures that cannot be fragmented go\n" +
			"to the --unprocessed table, or to stderr when it is not set.",
		Example: "  mmp run --input series.smi --output transforms.tsv --reverse --max-cuts 2",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runRun(cmd, cliCtx, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "-", "input structures file, - for stdin")
	fl.StringVarP(&f.output, "output", "o", "-", "transform table file, - for stdout")
	fl.StringVar(&f.unprocessed, "unprocessed", "", "file for structures that could not be processed")
	fl.StringVar(&f.format, "format", "tsv", "output format: tsv|json")
	fl.StringVar(&f.remote, "remote", "", "gRPC address of an mmp server; runs locally when empty")
	fl.DurationVar(&f.remoteTimeout, "remote-dial-timeout", 10*time.Second, "timeout for connecting to --remote")

	fl.StringVar(&f.cutRule, "cut-rule", "", "SINGLE_ACYCLIC|SINGLE_ACYCLIC_NON_H|RING_SUBSTITUENT|MATSY|CUSTOM")
	fl.StringVar(&f.customPattern, "custom-pattern", "", "bond pattern used with --cut-rule CUSTOM")
	fl.IntVar(&f.maxCuts, "max-cuts", 1, "maximum bonds cut per fragmentation")
	fl.BoolVar(&f.addHydrogens, "add-hydrogens", false, "make hydrogens explicit before single cuts")
	fl.BoolVar(&f.trackCutConnectivity, "track-cut-connectivity", false, "keep attachment labels distinct per cut bond")
	fl.IntVar(&f.maxChangingHeavyAtoms, "max-changing-heavy-atoms", 0, "drop values with more heavy atoms")
	fl.Float64Var(&f.minUnchangedRatio, "min-unchanged-ratio", 0, "drop values whose key holds a smaller share of heavy atoms")
	fl.Float64Var(&f.minSimilarity, "min-environment-similarity", 0, "enable the environment fingerprint gate at this threshold")

	fl.BoolVar(&f.reverse, "reverse", false, "also emit each pair with sides swapped")
	fl.BoolVar(&f.reaction, "reaction", false, "add the reaction pattern column")
	fl.BoolVar(&f.key, "key", false, "add the key column")
	fl.BoolVar(&f.heavyAtoms, "heavy-atoms", false, "add the changing heavy atom columns")
	fl.BoolVar(&f.ratios, "ratios", false, "add the unchanged ratio columns")
	fl.BoolVar(&f.acyclic, "acyclic-single", false, "require acyclic single bonds at attachments")
	fl.BoolVar(&f.ignoreIDs, "ignore-ids", false, "pair values regardless of which structures they came from")
	fl.BoolVar(&f.matchDist, "match-attachment-distances", false, "pair multi-cut values only when attachment distances agree")
	fl.IntVar(&f.concurrency, "concurrency", 0, "fragmentation workers (default from config)")
	fl.BoolVar(&f.useCache, "cache", false, "use the redis fragment cache from config")
	return cmd
}

// runOptions converts the explicitly set flags into per-run overrides.
func (f *runFlags) runOptions(cmd *cobra.Command) *mmp.RunOptions {
	changed := cmd.Flags().Changed
	o := &mmp.RunOptions{}
	if changed("cut-rule") {
		o.CutRule = &f.cutRule
	}
	if changed("custom-pattern") {
		o.CustomPattern = &f.customPattern
		if !changed("cut-rule") {
			custom := "CUSTOM"
			o.CutRule = &custom
		}
	}
	if changed("max-cuts") {
		o.MaxCuts = &f.maxCuts
	}
	if changed("add-hydrogens") {
		o.AddHydrogens = &f.addHydrogens
	}
	if changed("track-cut-connectivity") {
		o.TrackCutConnectivity = &f.trackCutConnectivity
	}
	if changed("max-changing-heavy-atoms") {
		o.MaxChangingHeavyAtoms = &f.maxChangingHeavyAtoms
	}
	if changed("min-unchanged-ratio") {
		o.MinUnchangedRatio = &f.minUnchangedRatio
	}
	if changed("min-environment-similarity") {
		o.MinEnvironmentSimilarity = &f.minSimilarity
	}
	if changed("reverse") {
		o.IncludeReverseTransforms = &f.reverse
	}
	if changed("reaction") {
		o.IncludeReactionPattern = &f.reaction
	}
	if changed("acyclic-single") {
		o.RequireAcyclicSingleBondAttachments = &f.acyclic
	}
	return o
}

// applyColumns sets the config-only options.
func (f *runFlags) applyColumns(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("key") {
		cfg.MMP.IncludeKey = f.key
	}
	if changed("heavy-atoms") {
		cfg.MMP.IncludeHeavyAtomCounts = f.heavyAtoms
	}
	if changed("ratios") {
		cfg.MMP.IncludeRatios = f.ratios
	}
	if changed("ignore-ids") {
		cfg.MMP.IgnoreIDs = f.ignoreIDs
	}
	if changed("match-attachment-distances") {
		cfg.MMP.MatchAttachmentDistances = f.matchDist
	}
	if f.concurrency > 0 {
		cfg.Worker.Concurrency = f.concurrency
		cfg.Worker.PairingConcurrency = f.concurrency
	}
}

func runRun(cmd *cobra.Command, cliCtx *CLIContext, f *runFlags) error {
	if f.format != "tsv" && f.format != "json" {
		return errors.InvalidParam(fmt.Sprintf("unknown format %q", f.format))
	}
	cfg := *cliCtx.Config
	f.applyColumns(cmd, &cfg)

	opts := f.runOptions(cmd)
	settings, err := pipeline.Resolve(cfg.MMP, opts)
	if err != nil {
		return err
	}

	in, closeIn, err := openInput(cmd, f.input)
	if err != nil {
		return err
	}
	structures, err := ReadStructures(in)
	closeIn()
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidParam, "cannot read input")
	}

	runner, closeRunner, err := newRunner(cmd.Context(), &cfg, f, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer closeRunner()

	start := time.Now()
	resp, err := runner.Run(cmd.Context(), mmp.RunRequest{Structures: structures, Options: opts})
	if err != nil && resp == nil {
		return err
	}
	cliCtx.Logger.Info("run finished",
		logging.RunID(resp.RunID),
		logging.Int("structures", len(structures)),
		logging.Int("transforms", len(resp.Rows)),
		logging.Int("unprocessed", len(resp.Unprocessed)),
		logging.Duration("elapsed", time.Since(start)),
	)

	if werr := writeResults(cmd, f, resp, settings); werr != nil {
		return werr
	}
	return err
}

func newRunner(ctx context.Context, cfg *config.Config, f *runFlags, logger logging.Logger) (Runner, func(), error) {
	if f.remote != "" {
		dialCtx, cancel := context.WithTimeout(ctx, f.remoteTimeout)
		defer cancel()
		conn, err := grpc.DialContext(dialCtx, f.remote,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithBlock(),
		)
		if err != nil {
			return nil, nil, errors.Wrap(err, errors.ErrCodeServiceUnavailable, "cannot reach mmp server").WithDetail(f.remote)
		}
		return remoteRunner{client: grpciface.NewRunClient(conn)}, func() { _ = conn.Close() }, nil
	}

	opts := []pipeline.Option[*graphkit.Mol]{pipeline.WithLogger[*graphkit.Mol](logger)}
	closeFn := func() {}
	if f.useCache && cfg.Redis.Addr != "" {
		client, err := redis.NewClient(cfg.Redis, logger)
		if err != nil {
			logger.Warn("fragment cache unavailable, running uncached", logging.Err(err))
		} else {
			cache := redis.NewFragmentCache(client, logger, redis.WithPrefix(cfg.Redis.KeyPrefix), redis.WithTTL(cfg.Redis.TTL))
			opts = append(opts, pipeline.WithFragmentCache[*graphkit.Mol](cache))
			closeFn = func() { _ = client.Close() }
		}
	}
	return pipeline.NewService[*graphkit.Mol](graphkit.New(), cfg.MMP, cfg.Worker, opts...), closeFn, nil
}

type remoteRunner struct {
	client *grpciface.RunClient
}

// Run streams the result so that large runs are not bound by the message
// size limit.
func (r remoteRunner) Run(ctx context.Context, req mmp.RunRequest) (*mmp.RunResponse, error) {
	resp := &mmp.RunResponse{}
	err := r.client.RunStream(ctx, &req, func(ev *grpciface.RunEvent) error {
		switch {
		case ev.Row != nil:
			resp.Rows = append(resp.Rows, *ev.Row)
		case ev.Unprocessed != nil:
			resp.Unprocessed = append(resp.Unprocessed, *ev.Unprocessed)
		case ev.Failure != nil:
			resp.Failures = append(resp.Failures, *ev.Failure)
		case ev.Summary != nil:
			resp.Summary = *ev.Summary
			resp.RunID = ev.Summary.RunID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func writeResults(cmd *cobra.Command, f *runFlags, resp *mmp.RunResponse, settings pipeline.Settings) error {
	out, closeOut, err := openOutput(cmd, f.output)
	if err != nil {
		return err
	}
	defer closeOut()

	if f.format == "json" {
		return writeJSON(out, resp)
	}
	if err := pipeline.WriteTransformsTSV(out, resp.Rows, settings.Pairing); err != nil {
		return fmt.Errorf("write transforms: %w", err)
	}
	if len(resp.Unprocessed) == 0 {
		return nil
	}

	side := cmd.ErrOrStderr()
	if f.unprocessed != "" {
		file, err := os.Create(f.unprocessed)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.unprocessed, err)
		}
		defer file.Close()
		side = file
	}
	return pipeline.WriteUnprocessedTSV(side, resp.Unprocessed)
}

func openInput(cmd *cobra.Command, path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.InvalidParam("cannot open input").WithDetail(err.Error())
	}
	return file, func() { _ = file.Close() }, nil
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return file, func() { _ = file.Close() }, nil
}
