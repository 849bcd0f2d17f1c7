// Command bandseq builds a dual-axis band-sequence stack, runs it on a random
// [B, K, T, N] batch and reports shapes and parameter counts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openfluke/bandseq/gpu"
	"github.com/openfluke/bandseq/nn"
)

type options struct {
	configPath string
	batch      int
	bands      int
	steps      int
	weights    string
	save       string
	useGPU     bool
	workers    int
	blueprint  bool
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "JSON stack config (default: N=128, H=256, 12 bidirectional LSTM layers)")
	flag.IntVar(&opts.batch, "b", 4, "batch size B")
	flag.IntVar(&opts.bands, "k", 41, "number of bands K")
	flag.IntVar(&opts.steps, "t", 259, "number of time steps T")
	flag.StringVar(&opts.weights, "weights", "", "safetensors file to load parameters from")
	flag.StringVar(&opts.save, "save", "", "write parameters to this safetensors file")
	flag.BoolVar(&opts.useGPU, "gpu", false, "run residual and gate scaling on the GPU")
	flag.IntVar(&opts.workers, "workers", 1, "number of batch items processed concurrently")
	flag.BoolVar(&opts.blueprint, "blueprint", false, "print the stack blueprint as JSON and exit")
	flag.BoolVar(&opts.verbose, "v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(opts); err != nil {
		slog.Error("bandseq failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg := nn.DefaultStackConfig(128, 256)
	if opts.configPath != "" {
		var err error
		if cfg, err = nn.LoadStackConfig(opts.configPath); err != nil {
			return err
		}
	}

	stack, err := nn.NewDualAxisStack(cfg)
	if err != nil {
		return err
	}
	slog.Info("built stack",
		"layers", stack.Config.NumLayers,
		"kind", stack.Config.RecurrenceKind,
		"feature_width", stack.Config.FeatureWidth,
		"hidden_width", stack.Config.HiddenWidth,
		"bidirectional", stack.Config.IsBidirectional())

	if opts.blueprint {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stack.Blueprint())
	}

	if opts.weights != "" {
		if err := stack.LoadWeights(opts.weights); err != nil {
			return fmt.Errorf("load weights: %w", err)
		}
		slog.Info("loaded weights", "path", opts.weights)
	}
	if opts.save != "" {
		if err := stack.SaveWeights(opts.save); err != nil {
			return fmt.Errorf("save weights: %w", err)
		}
		slog.Info("saved weights", "path", opts.save)
	}

	if opts.useGPU {
		acc, err := gpu.NewAccelerator()
		if err != nil {
			return fmt.Errorf("gpu: %w", err)
		}
		defer acc.Release()
		stack.SetAccelerator(acc)
	}
	if opts.verbose {
		stack.SetObserver(nn.ObserverFunc(func(desc nn.BlockDescriptor, stage nn.Stage, shape []int) {
			slog.Debug("stage done", "layer", desc.Layer, "orientation", desc.Orientation, "stage", stage, "shape", shape)
		}))
	}

	x := randomInput(cfg.Seed, opts.batch, opts.bands, opts.steps, cfg.FeatureWidth)
	start := time.Now()
	y, err := forwardBatched(stack, x, opts.workers)
	if err != nil {
		return err
	}
	slog.Info("forward pass complete", "elapsed", time.Since(start))

	fmt.Printf("input shape:  %v\n", x.Shape)
	fmt.Printf("output shape: %v\n", y.Shape)
	fmt.Printf("total parameters: %d\n", stack.ParameterCount())
	return nil
}

func randomInput(seed int64, shape ...int) *nn.Tensor {
	rng := rand.New(rand.NewSource(seed + 1))
	x := nn.NewTensor(shape...)
	for i := range x.Data {
		x.Data[i] = float32(rng.NormFloat64())
	}
	return x
}

// forwardBatched splits x along the batch axis into at most workers
// contiguous chunks, runs them concurrently and stitches the outputs.
func forwardBatched(stack *nn.DualAxisStack, x *nn.Tensor, workers int) (*nn.Tensor, error) {
	if err := stack.CheckInput(x); err != nil {
		return nil, err
	}
	chunks := splitBatch(x, workers)
	if len(chunks) <= 1 {
		return stack.Forward(x)
	}

	outs := make([]*nn.Tensor, len(chunks))
	var g errgroup.Group
	for i, chunk := range chunks {
		g.Go(func() error {
			y, err := stack.Forward(chunk)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			outs[i] = y
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return joinBatch(outs), nil
}

// splitBatch returns views of x covering consecutive batch ranges.
func splitBatch(x *nn.Tensor, parts int) []*nn.Tensor {
	b := x.Shape[0]
	if parts > b {
		parts = b
	}
	if parts < 1 {
		parts = 1
	}
	item := x.Size() / max(b, 1)
	chunks := make([]*nn.Tensor, 0, parts)
	start := 0
	for p := 0; p < parts; p++ {
		n := b / parts
		if p < b%parts {
			n++
		}
		shape := append([]int{n}, x.Shape[1:]...)
		chunks = append(chunks, nn.NewTensorFromSlice(x.Data[start*item:(start+n)*item], shape...))
		start += n
	}
	return chunks
}

// joinBatch concatenates tensors along the batch axis.
func joinBatch(parts []*nn.Tensor) *nn.Tensor {
	b := 0
	for _, p := range parts {
		b += p.Shape[0]
	}
	shape := append([]int{b}, parts[0].Shape[1:]...)
	out := nn.NewTensor(shape...)
	off := 0
	for _, p := range parts {
		off += copy(out.Data[off:], p.Data)
	}
	return out
}
