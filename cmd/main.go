// Copyright (c) 2025 A Bit of Help, Inc.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abitofhelp/compresso/pkg/codec"
	"github.com/abitofhelp/compresso/pkg/compression"
	"github.com/abitofhelp/compresso/pkg/config"
	"github.com/abitofhelp/compresso/pkg/encryption"
	customErrors "github.com/abitofhelp/compresso/pkg/errors"
	"github.com/abitofhelp/compresso/pkg/logger"
	"github.com/abitofhelp/compresso/pkg/pipeline"
	"github.com/abitofhelp/compresso/pkg/shutdown"
	"github.com/abitofhelp/compresso/pkg/stats"
	"github.com/dustin/go-humanize"
	"github.com/google/tink/go/tink"
	"go.uber.org/zap"
)

const usage = `Usage:
  compresso compress [flags] <file>     race every codec round after round and write <file>.cmpo
  compresso decompress [flags] <file>   restore the original from a container
  compresso inspect [flags] <file>      print a container header
  compresso keygen <keyset-file>        write a new AEAD keyset for -keyset

Run "compresso <command> -h" for the flags of a command.`

// ExitFunc is a function that exits the program with a given status code
type ExitFunc func(int)

// DefaultExitFunc is the default implementation of ExitFunc
var DefaultExitFunc = os.Exit

// LoggerFunc builds the logger once the verbosity flag is known
type LoggerFunc func(verbose bool) *zap.Logger

// CompressFunc is a function type for compressing a file
type CompressFunc func(ctx context.Context, log *zap.Logger, inputPath, outputPath string,
	registry *codec.Registry, opts *config.Options, aead tink.AEAD) (*stats.Stats, error)

// DecompressFunc is a function type for decompressing a file
type DecompressFunc func(ctx context.Context, log *zap.Logger, inputPath, outputPath string,
	registry *codec.Registry, aead tink.AEAD) (*stats.Stats, error)

// InspectFunc is a function type for inspecting a container
type InspectFunc func(ctx context.Context, log *zap.Logger, inputPath string,
	registry *codec.Registry, aead tink.AEAD) (*pipeline.Inspection, error)

// KeygenFunc is a function type for writing a new keyset
type KeygenFunc func(log *zap.Logger, path string) error

// Commands holds the operations behind each subcommand, replaced in tests
type Commands struct {
	Compress   CompressFunc
	Decompress DecompressFunc
	Inspect    InspectFunc
	Keygen     KeygenFunc
}

// DefaultCommands returns the real file-level operations
func DefaultCommands() Commands {
	return Commands{
		Compress:   pipeline.CompressFile,
		Decompress: pipeline.DecompressFile,
		Inspect:    pipeline.InspectFile,
		Keygen:     encryption.GenerateKeysetFile,
	}
}

// commonFlags are shared by every subcommand that reads a container
type commonFlags struct {
	output  string
	keyset  string
	verbose bool
}

func (c *commonFlags) register(fs *flag.FlagSet, withOutput bool) {
	if withOutput {
		fs.StringVar(&c.output, "o", "", "output file (shorthand)")
		fs.StringVar(&c.output, "output", "", "output file")
	}
	fs.StringVar(&c.keyset, "keyset", "", "cleartext JSON AEAD keyset used to seal or open the container")
	fs.BoolVar(&c.verbose, "v", false, "enable debug logging")
}

// secondsOrDuration is a flag value that takes a whole number of seconds or a
// time.ParseDuration string
type secondsOrDuration time.Duration

func (d *secondsOrDuration) String() string {
	return time.Duration(*d).String()
}

func (d *secondsOrDuration) Set(s string) error {
	if n, err := strconv.Atoi(s); err == nil {
		*d = secondsOrDuration(time.Duration(n) * time.Second)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: want seconds or a value like 500ms", s)
	}
	*d = secondsOrDuration(v)
	return nil
}

// parseInterspersed parses flags that may appear before or after positional arguments
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

// run is the main logic of the application, extracted for testability
func run(args []string, out io.Writer, exit ExitFunc, newLogger LoggerFunc, cmds Commands) {
	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		exit(1)
		return
	}

	var code int
	switch args[0] {
	case "compress":
		code = runCompress(args[1:], out, newLogger, cmds.Compress)
	case "decompress":
		code = runDecompress(args[1:], out, newLogger, cmds.Decompress)
	case "inspect":
		code = runInspect(args[1:], out, newLogger, cmds.Inspect)
	case "keygen":
		code = runKeygen(args[1:], out, newLogger, cmds.Keygen)
	case "-h", "-help", "--help", "help":
		fmt.Fprintln(out, usage)
	default:
		fmt.Fprintf(out, "unknown command %q\n\n%s\n", args[0], usage)
		code = 1
	}

	if code != 0 {
		exit(code)
	}
}

func runCompress(args []string, out io.Writer, newLogger LoggerFunc, compress CompressFunc) int {
	fs := flag.NewFlagSet("compress", flag.ContinueOnError)
	fs.SetOutput(out)

	var common commonFlags
	common.register(fs, true)

	var (
		configPath  string
		workers     int
		timeout     time.Duration
		maxRounds   int
		gracePeriod time.Duration
		verify      bool
	)
	fs.StringVar(&configPath, "config", "", "YAML options file; flags override its values")
	fs.IntVar(&workers, "T", 0, "number of concurrent codec workers (0 = number of CPUs)")
	fs.IntVar(&workers, "num-threads", 0, "number of concurrent codec workers")
	timeout = config.NoTimeBudget
	fs.Var((*secondsOrDuration)(&timeout), "t", "time budget per round in seconds or as a duration, e.g. 15 or 500ms (negative = none)")
	fs.Var((*secondsOrDuration)(&timeout), "worker-timeout", "time budget per round")
	fs.IntVar(&maxRounds, "r", config.Unlimited, "maximum number of rounds (negative = until no improvement)")
	fs.IntVar(&maxRounds, "max-rounds", config.Unlimited, "maximum number of rounds")
	fs.DurationVar(&gracePeriod, "grace", config.DefaultGracePeriod, "how long to wait for stragglers when shutting down")
	fs.BoolVar(&verify, "verify", false, "decode the container and compare digests before writing it")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return usageCode(err)
	}
	if len(positional) != 1 {
		fmt.Fprintln(out, "compress requires exactly one input file")
		return 1
	}
	inputPath := positional[0]

	log := newLogger(common.verbose)
	defer logger.SafeSync(log)

	opts := config.DefaultOptions()
	if configPath != "" {
		opts, err = config.Load(configPath)
		if err != nil {
			log.Error("Failed to load config", zap.String("path", configPath), zap.Error(err))
			return 1
		}
	}

	// Explicit flags win over the config file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "T", "num-threads":
			opts.WorkerCount = workers
		case "t", "worker-timeout":
			opts.TimeBudget = timeout
		case "r", "max-rounds":
			opts.MaxRounds = maxRounds
		case "grace":
			opts.GracePeriod = gracePeriod
		case "verify":
			opts.Verify = verify
		}
	})
	if err := opts.Validate(); err != nil {
		log.Error("Invalid options", zap.Error(err))
		return 1
	}

	outputPath := common.output
	if outputPath == "" {
		outputPath = pipeline.DefaultCompressedPath(inputPath)
	}

	aead, err := loadKeyset(log, common.keyset)
	if err != nil {
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanup := shutdown.SetupGracefulShutdown(cancel, log, shutdown.DefaultForceTimeout)
	defer cleanup()

	runStats, err := compress(ctx, log, inputPath, outputPath, compression.DefaultRegistry(), opts, aead)
	if err != nil {
		logRunError(log, err)
		return 1
	}

	runStats.DisplaySummary(out, log, inputPath, outputPath)
	return 0
}

func runDecompress(args []string, out io.Writer, newLogger LoggerFunc, decompress DecompressFunc) int {
	fs := flag.NewFlagSet("decompress", flag.ContinueOnError)
	fs.SetOutput(out)

	var common commonFlags
	common.register(fs, true)

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return usageCode(err)
	}
	if len(positional) != 1 {
		fmt.Fprintln(out, "decompress requires exactly one input file")
		return 1
	}
	inputPath := positional[0]

	log := newLogger(common.verbose)
	defer logger.SafeSync(log)

	outputPath := common.output
	if outputPath == "" {
		outputPath = pipeline.DefaultDecompressedPath(inputPath)
	}

	aead, err := loadKeyset(log, common.keyset)
	if err != nil {
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleanup := shutdown.SetupGracefulShutdown(cancel, log, shutdown.DefaultForceTimeout)
	defer cleanup()

	runStats, err := decompress(ctx, log, inputPath, outputPath, compression.DefaultRegistry(), aead)
	if err != nil {
		logRunError(log, err)
		return 1
	}

	runStats.DisplaySummary(out, log, inputPath, outputPath)
	return 0
}

func runInspect(args []string, out io.Writer, newLogger LoggerFunc, inspect InspectFunc) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(out)

	var common commonFlags
	common.register(fs, false)

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return usageCode(err)
	}
	if len(positional) != 1 {
		fmt.Fprintln(out, "inspect requires exactly one input file")
		return 1
	}
	inputPath := positional[0]

	log := newLogger(common.verbose)
	defer logger.SafeSync(log)

	aead, err := loadKeyset(log, common.keyset)
	if err != nil {
		return 1
	}

	ins, err := inspect(context.Background(), log, inputPath, compression.DefaultRegistry(), aead)
	if err != nil {
		logRunError(log, err)
		return 1
	}

	printInspection(out, inputPath, ins)
	return 0
}

func runKeygen(args []string, out io.Writer, newLogger LoggerFunc, keygen KeygenFunc) int {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(out)

	var verbose bool
	fs.BoolVar(&verbose, "v", false, "enable debug logging")

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return usageCode(err)
	}
	if len(positional) != 1 {
		fmt.Fprintln(out, "keygen requires exactly one keyset file path")
		return 1
	}

	log := newLogger(verbose)
	defer logger.SafeSync(log)

	if err := keygen(log, positional[0]); err != nil {
		logRunError(log, err)
		return 1
	}

	fmt.Fprintf(out, "Keyset written to %s\n", positional[0])
	return 0
}

func loadKeyset(log *zap.Logger, path string) (tink.AEAD, error) {
	if path == "" {
		return nil, nil
	}
	aead, err := encryption.LoadAEAD(log, path)
	if err != nil {
		log.Error("Failed to load keyset", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	return aead, nil
}

func printInspection(out io.Writer, inputPath string, ins *pipeline.Inspection) {
	fmt.Fprintf(out, "File: %s (%s)\n", inputPath, humanize.Bytes(uint64(ins.FileSize)))
	if ins.Sealed && !ins.Opened {
		fmt.Fprintln(out, "Sealed: yes (use -keyset to read the header)")
		return
	}
	if ins.Sealed {
		fmt.Fprintln(out, "Sealed: yes")
	}

	fmt.Fprintf(out, "Format version: %d\n", ins.Version)
	if len(ins.Algorithms) == 0 {
		fmt.Fprintln(out, "Algorithms: none (stored uncompressed)")
	} else {
		steps := make([]string, len(ins.Algorithms))
		for i, id := range ins.Algorithms {
			steps[i] = fmt.Sprintf("%s(%d)", ins.Names[i], id)
		}
		fmt.Fprintf(out, "Algorithms (%d, decompression order): %s\n", len(ins.Algorithms), strings.Join(steps, " -> "))
	}
	fmt.Fprintf(out, "Header: %d bytes\n", ins.HeaderSize)
	fmt.Fprintf(out, "Payload: %s (%d bytes)\n", humanize.Bytes(uint64(ins.PayloadSize)), ins.PayloadSize)
}

func usageCode(err error) int {
	if err == flag.ErrHelp {
		return 0
	}
	return 1
}

func logRunError(log *zap.Logger, err error) {
	switch {
	case customErrors.IsCancellationError(err):
		log.Warn("Processing was canceled", zap.Error(err))
	case customErrors.IsTimeoutError(err):
		log.Error("Processing timed out", zap.Error(err))
	case customErrors.IsFormatError(err):
		log.Error("Input is not a readable container", zap.Error(err))
	case customErrors.IsIOError(err):
		log.Error("I/O error during processing", zap.Error(err))
	default:
		log.Error("Failed to process file", zap.Error(err))
	}
}

func main() {
	run(os.Args[1:], os.Stdout, DefaultExitFunc, logger.InitLogger, DefaultCommands())
}
