package halgpu

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/pushbuf"
	"github.com/gogpu/matsys/shadercache"
	"github.com/gogpu/wgpu/hal"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// spirvWords converts little-endian SPIR-V bytes to words.
func spirvWords(code []byte) ([]uint32, error) {
	if len(code) < 20 || len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrNotSPIRV, len(code))
	}
	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: magic %#08x", ErrNotSPIRV, words[0])
	}
	return words, nil
}

// CreateShader creates a shader module from SPIR-V words.
func (d *Device) CreateShader(stage gputypes.ShaderStage, spirv []uint32, label string) (pushbuf.Handle, error) {
	return d.createShader(stage, spirv, label, 0)
}

func (d *Device) createShader(stage gputypes.ShaderStage, spirv []uint32, label string, centroidMask uint32) (pushbuf.Handle, error) {
	module, err := d.gpu.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return pushbuf.NoHandle, fmt.Errorf("halgpu: create %s shader %q: %w", stage, label, err)
	}
	h := d.res.add(&resource{
		kind:         kindShader,
		label:        label,
		module:       module,
		stage:        stage,
		centroidMask: centroidMask,
	})
	return h, nil
}

// DestroyShader releases a shader module.
func (d *Device) DestroyShader(h pushbuf.Handle) error {
	r, err := d.res.remove(h, kindShader)
	if err != nil {
		return err
	}
	d.gpu.DestroyShaderModule(r.module)
	return nil
}

// ShaderStage reports the stage a shader handle was created for.
func (d *Device) ShaderStage(h pushbuf.Handle) (gputypes.ShaderStage, error) {
	r, err := d.res.get(h, kindShader)
	if err != nil {
		return 0, err
	}
	return r.stage, nil
}

// CentroidMask reports the centroid mask recorded for a shader handle.
func (d *Device) CentroidMask(h pushbuf.Handle) (uint32, error) {
	r, err := d.res.get(h, kindShader)
	if err != nil {
		return 0, err
	}
	return r.centroidMask, nil
}

// Shaders returns a shadercache.ShaderFactory that creates modules on d.
// Combo code must be a SPIR-V module.
func (d *Device) Shaders() *ShaderFactory {
	return &ShaderFactory{dev: d}
}

// ShaderFactory creates hal shader modules for the shader cache. Shader
// ids equal device handles.
type ShaderFactory struct {
	dev *Device
}

var _ shadercache.ShaderFactory = (*ShaderFactory)(nil)

// CreateShader implements shadercache.ShaderFactory.
func (f *ShaderFactory) CreateShader(stage gputypes.ShaderStage, code []byte, centroidMask uint32) (shadercache.ShaderID, error) {
	words, err := spirvWords(code)
	if err != nil {
		return shadercache.InvalidShader, err
	}
	h, err := f.dev.createShader(stage, words, "", centroidMask)
	if err != nil {
		return shadercache.InvalidShader, err
	}
	slogger().Debug("halgpu: combo shader created", "handle", h, "stage", stage, "words", len(words), "centroid", centroidMask)
	return shadercache.ShaderID(h), nil
}

// DestroyShader implements shadercache.ShaderFactory.
func (f *ShaderFactory) DestroyShader(id shadercache.ShaderID) {
	if err := f.dev.DestroyShader(pushbuf.Handle(id)); err != nil {
		slogger().Warn("halgpu: destroy shader", "id", id, "err", err)
	}
}
