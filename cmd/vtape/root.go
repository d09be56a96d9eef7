package main

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kmirek/vtape/internal/audit"
	"github.com/kmirek/vtape/internal/config"
	"github.com/kmirek/vtape/internal/debug"
	"github.com/kmirek/vtape/internal/metrics"
	"github.com/kmirek/vtape/internal/pipeline"
)

// timeUnit is the rounding applied to durations shown to the user.
const timeUnit = 10 * time.Millisecond

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	logLevel    string
	metricsAddr string
	auditPath   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "vtape",
		Short:         "Store arbitrary files as lossless video streams",
		Long: `vtape turns any byte file into a lossless grayscale video and back.
The stream is fountain-coded and checksummed, so it survives packet loss,
and optionally encrypted chunk by chunk with a password.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file (flags override it)")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.metricsAddr, "metrics-addr", "", "expose /metrics and /healthz on this address while running")
	pf.StringVar(&opts.auditPath, "audit-log", "", "append JSON audit events to this file")

	cmd.AddCommand(newEncodeCmd(opts))
	cmd.AddCommand(newDecodeCmd(opts))
	cmd.AddCommand(newRoundtripCmd(opts))
	return cmd
}

// newLogger builds the process logger from the persistent flags.
func newLogger(opts *rootOptions) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
	}
	logger.SetLevel(level)
	debug.InitFromLogLevel(opts.logLevel)
	return logger, nil
}

// codecFlags is the per-subcommand codec parameter surface. Only flags the
// user actually set override the config file.
type codecFlags struct {
	width               int
	height              int
	fps                 int
	bitsPerBlock        int
	coefficientStrength float64
	chunkSize           int
	repairOverhead      float64
	symbolSize          int
	ffmpegPath          string
	workers             int
}

func addCodecFlags(cmd *cobra.Command, f *codecFlags, includeEncodeOnly bool) {
	fl := cmd.Flags()
	fl.IntVar(&f.width, "width", config.DefaultWidth, "frame width in pixels (multiple of 8)")
	fl.IntVar(&f.height, "height", config.DefaultHeight, "frame height in pixels (multiple of 8)")
	fl.IntVar(&f.bitsPerBlock, "bits-per-block", config.DefaultBitsPerBlock, "data bits per 8x8 block (1-3)")
	fl.Float64Var(&f.coefficientStrength, "coefficient-strength", config.DefaultCoefficientStrength, "DCT coefficient amplitude per bit")
	fl.IntVar(&f.symbolSize, "symbol-size", config.DefaultSymbolSize, "payload bytes per symbol")
	fl.StringVar(&f.ffmpegPath, "ffmpeg", "ffmpeg", "path to the ffmpeg binary")
	fl.IntVar(&f.workers, "workers", config.Default().Workers, "worker goroutines")
	if includeEncodeOnly {
		fl.IntVar(&f.fps, "fps", config.DefaultFPS, "frame rate of the produced video")
		fl.IntVar(&f.chunkSize, "chunk-size", config.DefaultChunkSize, "source chunk size in bytes")
		fl.Float64Var(&f.repairOverhead, "repair-overhead", config.DefaultRepairOverhead, "fountain output ratio (>= 1.0)")
	}
}

// resolveConfig layers: defaults, then the config file, then explicit
// flags.
func resolveConfig(cmd *cobra.Command, opts *rootOptions, f *codecFlags) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return cfg, err
		}
	}

	set := cmd.Flags().Changed
	if set("width") {
		cfg.Width = f.width
	}
	if set("height") {
		cfg.Height = f.height
	}
	if set("fps") {
		cfg.FPS = f.fps
	}
	if set("bits-per-block") {
		cfg.BitsPerBlock = f.bitsPerBlock
	}
	if set("coefficient-strength") {
		cfg.CoefficientStrength = f.coefficientStrength
	}
	if set("chunk-size") {
		cfg.ChunkSize = f.chunkSize
	}
	if set("repair-overhead") {
		cfg.RepairOverhead = f.repairOverhead
	}
	if set("symbol-size") {
		cfg.SymbolSize = f.symbolSize
	}
	if set("ffmpeg") {
		cfg.FFmpegPath = f.ffmpegPath
	}
	if set("workers") {
		cfg.Workers = f.workers
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if opts.auditPath != "" {
		cfg.AuditPath = opts.auditPath
	}
	return cfg, cfg.Validate()
}

// runtime bundles the ambient services a subcommand runs with.
type runtime struct {
	logger *logrus.Logger
	met    *metrics.Metrics
	aud    audit.Logger
	server *metrics.Server
}

// newRuntime wires logging, metrics and audit from the resolved config.
func newRuntime(opts *rootOptions, cfg config.Config) (*runtime, error) {
	logger, err := newLogger(opts)
	if err != nil {
		return nil, err
	}

	rt := &runtime{logger: logger, aud: audit.NewNopLogger()}

	reg := prometheus.NewRegistry()
	rt.met = metrics.NewWithRegistry(reg)
	if cfg.MetricsAddr != "" {
		handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		rt.server = metrics.NewServer(cfg.MetricsAddr, handler, logger)
		rt.server.Start()
		logger.WithField("addr", cfg.MetricsAddr).Info("metrics listener started")
	}

	if cfg.AuditPath != "" {
		if rt.aud, err = audit.NewFileLogger(cfg.AuditPath); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) close() {
	if rt.server != nil {
		rt.server.Shutdown()
	}
	if err := rt.aud.Close(); err != nil {
		rt.logger.WithError(err).Warn("failed to close audit log")
	}
}

// newCodec builds the pipeline codec with the runtime's services and a
// progress bar attached.
func (rt *runtime) newCodec(cfg config.Config, progress func(op string, done, total int64)) *pipeline.Codec {
	codecOpts := []pipeline.Option{
		pipeline.WithLogger(rt.logger),
		pipeline.WithMetrics(rt.met),
		pipeline.WithAudit(rt.aud),
	}
	if progress != nil {
		codecOpts = append(codecOpts, pipeline.WithProgress(progress))
	}
	return pipeline.New(cfg, codecOpts...)
}
