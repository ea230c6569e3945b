package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/emofalling/img2arr/internal/config"
	"github.com/emofalling/img2arr/internal/pipeline"
	"github.com/emofalling/img2arr/internal/pluginapi"
	"github.com/emofalling/img2arr/internal/preprocess"
	"github.com/emofalling/img2arr/internal/registry"
	"github.com/emofalling/img2arr/internal/workerpool"
)

// pluginCategory is the category img2arr's own plug-ins are published
// under. The core treats category as an opaque string; this CLI only
// ever looks plug-ins up under one.
const pluginCategory = "img"

var (
	runInput   string
	runPre     string
	runCode    string
	runOut     string
	runThreads int
	runMode    string
	runOutput  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Decode an image and run it through a preprocessing, code, and output plug-in chain",
	Long: `run decodes --input, runs it through the ordered --pre preprocessing
chain, encodes the result with --code, formats it with --out, and writes
the output bytes to --output ("-" for stdout).`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "input image path (required)")
	runCmd.Flags().StringVar(&runPre, "pre", "", "ordered preprocessing chain, comma-separated plug-in keys (empty slot = disabled)")
	runCmd.Flags().StringVar(&runCode, "code", "", "code-stage plug-in key (required)")
	runCmd.Flags().StringVar(&runOut, "out", "", "output-stage plug-in key (required)")
	runCmd.Flags().IntVar(&runThreads, "threads", 0, "worker pool size, 0 = logical cores")
	runCmd.Flags().StringVar(&runMode, "mode", "default", "pipeline mode: default, speed, memory")
	runCmd.Flags().StringVar(&runOutput, "output", "-", `output file path, "-" for stdout`)
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	if runInput == "" {
		return usageError(fmt.Errorf("--input is required"))
	}
	if runCode == "" {
		return usageError(fmt.Errorf("--code is required"))
	}
	if runOut == "" {
		return usageError(fmt.Errorf("--out is required"))
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return usageError(fmt.Errorf("loading config: %w", err))
	}

	modeName := cfg.Pipeline.Mode
	if cmd.Flags().Changed("mode") {
		modeName = runMode
	}
	mode, err := preprocess.ParseMode(strings.ToLower(modeName))
	if err != nil {
		return usageError(err)
	}

	threads := cfg.Pipeline.Threads
	if cmd.Flags().Changed("threads") {
		threads = runThreads
	}
	if threads < 0 {
		return usageError(fmt.Errorf("--threads must be >= 0"))
	}

	logger := slog.Default()

	reg, scanErrs := registry.Scan(cfg.Plugins.Root, []registry.Feature{registry.FeatureNative}, logger)
	for _, se := range scanErrs {
		logger.Warn("run: dropped plugin during scan", slog.String("error", se.Error()))
	}

	chain, err := resolveChain(reg, runPre)
	if err != nil {
		return loadError(err)
	}
	codeDesc, err := reg.Get(pluginapi.StageCode, pluginCategory, runCode)
	if err != nil {
		return loadError(err)
	}
	outDesc, err := reg.Get(pluginapi.StageOut, pluginCategory, runOut)
	if err != nil {
		return loadError(err)
	}

	pool, err := workerpool.New(threads)
	if err != nil {
		return loadError(fmt.Errorf("starting worker pool: %w", err))
	}

	p, err := pipeline.Open(pipeline.OpenParams{
		Path: runInput, Pool: pool, Logger: logger, Mode: mode,
		MaxOutputSize: cfg.Output.MaxSize.Bytes(),
	})
	if err != nil {
		return ioError(fmt.Errorf("opening %s: %w", runInput, err))
	}
	defer p.Close()

	p.SetChain(chain)
	ctx := context.Background()

	if _, err := p.RunPre(ctx, 0); err != nil {
		return dispatchError(err)
	}
	if _, err := p.Code(ctx, runCode, codeDesc.Native, nil); err != nil {
		return dispatchError(err)
	}
	if _, err := p.Out(ctx, runOut, outDesc.Native, nil); err != nil {
		return dispatchError(err)
	}

	if err := writeOutput(runOutput, p.OutBuffer().Data); err != nil {
		return ioError(err)
	}
	return nil
}

// resolveChain looks up each comma-separated --pre name in the prep stage.
// An empty name is a disabled slot: an identity node with no native
// module, which the preprocessing iterator treats as a virtual pass-through.
func resolveChain(reg *registry.Registry, spec string) ([]pipeline.Node, error) {
	if spec == "" {
		return nil, nil
	}

	names := strings.Split(spec, ",")
	chain := make([]pipeline.Node, 0, len(names))
	for _, name := range names {
		if name == "" {
			chain = append(chain, pipeline.Node{})
			continue
		}
		desc, err := reg.Get(pluginapi.StagePrep, pluginCategory, name)
		if err != nil {
			return nil, err
		}
		chain = append(chain, pipeline.Node{Name: name, Native: desc.Native})
	}
	return chain, nil
}

func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
