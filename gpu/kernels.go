package gpu

// Elementwise kernels. Both run 256 invocations per workgroup on a 2D grid so
// tensors larger than 65535 workgroups still fit; the flat index is
// gid.y * (num_workgroups.x * 256) + gid.x.

const workgroupSize = 256

// maxWorkgroupsPerDim is the WebGPU default limit for one dispatch dimension.
const maxWorkgroupsPerDim = 65535

// residualAddShader computes output = input + skip.
const residualAddShader = `
@group(0) @binding(0) var<storage, read> input : array<f32>;
@group(0) @binding(1) var<storage, read> skip : array<f32>;
@group(0) @binding(2) var<storage, read_write> output : array<f32>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
	let idx = gid.y * nwg.x * 256u + gid.x;
	if (idx >= arrayLength(&output)) { return; }
	output[idx] = input[idx] + skip[idx];
}
`

// scaleChannelsShader computes output[r, c, l] = input[r, c, l] * gate[r, c]
// with params[0] holding the length of the innermost axis.
const scaleChannelsShader = `
@group(0) @binding(0) var<storage, read> input : array<f32>;
@group(0) @binding(1) var<storage, read> gate : array<f32>;
@group(0) @binding(2) var<storage, read> params : array<u32>;
@group(0) @binding(3) var<storage, read_write> output : array<f32>;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>,
        @builtin(num_workgroups) nwg: vec3<u32>) {
	let idx = gid.y * nwg.x * 256u + gid.x;
	if (idx >= arrayLength(&output)) { return; }
	output[idx] = input[idx] * gate[idx / params[0]];
}
`

// dispatchGrid splits n invocations into an (x, y) workgroup grid.
func dispatchGrid(n int) (x, y uint32) {
	groups := (n + workgroupSize - 1) / workgroupSize
	if groups <= maxWorkgroupsPerDim {
		return uint32(groups), 1
	}
	rows := (groups + maxWorkgroupsPerDim - 1) / maxWorkgroupsPerDim
	return maxWorkgroupsPerDim, uint32(rows)
}
