package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/openfluke/bandseq/nn"
	"github.com/openfluke/webgpu/wgpu"
)

var _ nn.Accelerator = (*Accelerator)(nil)

// ErrReleased is returned by calls made after Release.
var ErrReleased = errors.New("gpu accelerator released")

// Accelerator runs the stack's residual sums and channel scaling on the GPU.
// Pipelines are compiled once; each call uploads its operands, dispatches,
// and reads the result back. Calls are serialized on the shared queue.
type Accelerator struct {
	ctx *Context

	mu       sync.Mutex
	residual *wgpu.ComputePipeline
	scale    *wgpu.ComputePipeline
}

// NewAccelerator initializes the GPU context and compiles both kernels.
func NewAccelerator() (*Accelerator, error) {
	c, err := GetContext()
	if err != nil {
		return nil, err
	}
	a := &Accelerator{ctx: c}
	if a.residual, err = compile(c, "residual_add", residualAddShader); err != nil {
		return nil, err
	}
	if a.scale, err = compile(c, "scale_channels", scaleChannelsShader); err != nil {
		a.residual.Release()
		return nil, err
	}
	return a, nil
}

func compile(c *Context, label, code string) (*wgpu.ComputePipeline, error) {
	module, err := c.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label + "_shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", label, err)
	}
	defer module.Release()

	pipeline, err := c.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   label + "_pipe",
		Compute: wgpu.ProgrammableStageDescriptor{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pipeline: %w", label, err)
	}
	return pipeline, nil
}

// ResidualAdd returns x + skip.
func (a *Accelerator) ResidualAdd(x, skip []float32) ([]float32, error) {
	if len(x) != len(skip) {
		return nil, fmt.Errorf("%w: residual operands differ in size: %d vs %d", nn.ErrShapeMismatch, len(x), len(skip))
	}
	if len(x) == 0 {
		return []float32{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.residual == nil {
		return nil, ErrReleased
	}

	in, err := newStorageBuffer(a.ctx, "residual_in", x, 0)
	if err != nil {
		return nil, err
	}
	defer in.Destroy()
	sk, err := newStorageBuffer(a.ctx, "residual_skip", skip, 0)
	if err != nil {
		return nil, err
	}
	defer sk.Destroy()

	return a.run(a.residual, len(x), in, sk)
}

// ScaleChannels returns x[r, c, l] * gate[r, c] for x laid out [rows, channels, length].
func (a *Accelerator) ScaleChannels(x, gate []float32, rows, channels, length int) ([]float32, error) {
	if len(x) != rows*channels*length || len(gate) != rows*channels {
		return nil, fmt.Errorf("%w: channel scaling of %d values by %d gates does not fit [%d, %d, %d]",
			nn.ErrShapeMismatch, len(x), len(gate), rows, channels, length)
	}
	if len(x) == 0 {
		return []float32{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scale == nil {
		return nil, ErrReleased
	}

	in, err := newStorageBuffer(a.ctx, "scale_in", x, 0)
	if err != nil {
		return nil, err
	}
	defer in.Destroy()
	g, err := newStorageBuffer(a.ctx, "scale_gate", gate, 0)
	if err != nil {
		return nil, err
	}
	defer g.Destroy()
	params, err := newStorageBuffer(a.ctx, "scale_params", []uint32{uint32(length)}, 0)
	if err != nil {
		return nil, err
	}
	defer params.Destroy()

	return a.run(a.scale, len(x), in, g, params)
}

// run binds inputs to bindings 0..len(inputs)-1 and a fresh n-float output
// buffer to the next binding, dispatches pipeline, and reads the output.
func (a *Accelerator) run(pipeline *wgpu.ComputePipeline, n int, inputs ...*wgpu.Buffer) ([]float32, error) {
	if pipeline == nil {
		return nil, ErrReleased
	}
	c := a.ctx
	out, err := newOutputBuffer(c, "output", n)
	if err != nil {
		return nil, err
	}
	defer out.Destroy()

	entries := make([]wgpu.BindGroupEntry, 0, len(inputs)+1)
	for i, buf := range append(inputs, out) {
		entries = append(entries, wgpu.BindGroupEntry{Binding: uint32(i), Buffer: buf, Size: buf.GetSize()})
	}
	layout := pipeline.GetBindGroupLayout(0)
	defer layout.Release()
	bg, err := c.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bind group: %w", err)
	}
	defer bg.Release()

	enc, err := c.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create command encoder: %w", err)
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bg, nil)
	gx, gy := dispatchGrid(n)
	pass.DispatchWorkgroups(gx, gy, 1)
	pass.End()
	cmd, err := enc.Finish(nil)
	enc.Release()
	if err != nil {
		return nil, fmt.Errorf("failed to finish dispatch: %w", err)
	}
	c.Queue.Submit(cmd)
	cmd.Release()

	return readFloats(c, out, n)
}

// Release frees the compiled pipelines. The shared context stays alive;
// later calls fail with ErrReleased.
func (a *Accelerator) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.residual != nil {
		a.residual.Release()
		a.residual = nil
	}
	if a.scale != nil {
		a.scale.Release()
		a.scale = nil
	}
}
