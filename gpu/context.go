package gpu

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/openfluke/webgpu/wgpu"
)

// AdapterEnv names an environment variable holding a substring of the
// adapter name or vendor to prefer. When unset, NVIDIA adapters win.
const AdapterEnv = "BANDSEQ_GPU_ADAPTER"

// Context holds the process-wide WebGPU device.
type Context struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
}

var (
	ctx     Context
	ctxOnce sync.Once
	ctxErr  error
)

// GetContext returns the singleton GPU context, initializing it on first use.
// A failed initialization is remembered and returned on every later call.
func GetContext() (*Context, error) {
	ctxOnce.Do(func() {
		ctxErr = ctx.init()
	})
	if ctxErr != nil {
		return nil, ctxErr
	}
	return &ctx, nil
}

func (c *Context) init() error {
	c.Instance = wgpu.CreateInstance(nil)
	if c.Instance == nil {
		return fmt.Errorf("failed to create WebGPU instance")
	}

	preferred := strings.ToLower(os.Getenv(AdapterEnv))
	if preferred == "" {
		preferred = "nvidia"
	}
	for _, a := range c.Instance.EnumerateAdapters(nil) {
		info := a.GetInfo()
		slog.Debug("found GPU adapter", "name", info.Name, "vendor", info.VendorName,
			"device_id", fmt.Sprintf("0x%X", info.DeviceId), "type", info.AdapterType)
		if strings.Contains(strings.ToLower(info.Name), preferred) ||
			strings.Contains(strings.ToLower(info.VendorName), preferred) {
			c.Adapter = a
			break
		}
	}

	var err error
	for _, opts := range []*wgpu.RequestAdapterOptions{
		{PowerPreference: wgpu.PowerPreferenceHighPerformance},
		{PowerPreference: wgpu.PowerPreferenceLowPower},
		nil,
	} {
		if c.Adapter != nil {
			break
		}
		c.Adapter, err = c.Instance.RequestAdapter(opts)
		if err != nil {
			slog.Debug("adapter request failed", "options", opts, "error", err)
		}
	}
	if c.Adapter == nil {
		return fmt.Errorf("all adapter attempts failed: %v", err)
	}

	info := c.Adapter.GetInfo()
	slog.Info("using GPU adapter", "name", info.Name, "vendor", info.VendorName)

	c.Device, err = c.Adapter.RequestDevice(nil)
	if err != nil {
		return fmt.Errorf("failed to request device: %w", err)
	}
	c.Queue = c.Device.GetQueue()
	if c.Queue == nil {
		return fmt.Errorf("WebGPU queue not initialized")
	}
	return nil
}
