package matsys

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/matsys/backend/halgpu"
	"github.com/gogpu/matsys/pushbuf"
	"github.com/gogpu/matsys/shadercache"
)

// ErrClosed is returned by operations on a closed System.
var ErrClosed = errors.New("matsys: system closed")

// System wires a hal device, the push-buffer engine in front of it and a
// shader combo cache creating shaders on the same device.
//
// Like the push-buffer engine, a System is driven from one producer
// goroutine. Stats is safe for concurrent use.
type System struct {
	opts options

	hal     *halgpu.Device
	device  *pushbuf.AsyncDevice
	shaders *shadercache.Cache
	loader  *shadercache.PoolLoader
	watcher *shadercache.Watcher

	cancel    context.CancelFunc
	watchDone chan struct{}
	closed    bool
}

// New creates a System on gpu, loading shader files from fsys. The worker
// does not run until Start.
func New(gpu halgpu.GPU, fsys fs.FS, opts ...Option) (*System, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &System{opts: o, hal: halgpu.NewDevice(gpu)}
	s.device = pushbuf.NewAsyncDevice(s.hal, o.pushbuf...)

	cacheOpts := o.shaders
	if o.loadWorkers > 0 {
		s.loader = shadercache.NewPoolLoader(fsys, o.loadWorkers)
		cacheOpts = append(cacheOpts[:len(cacheOpts):len(cacheOpts)], shadercache.WithQueuedLoader(s.loader))
	}
	s.shaders = shadercache.New(fsys, s.hal.Shaders(), cacheOpts...)

	if len(o.watchDirs) > 0 {
		w, err := shadercache.NewWatcher(o.watchDirs...)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("matsys: %w", err)
		}
		s.watcher = w
	}

	Logger().Debug("matsys: system created",
		"async", o.async, "loadWorkers", o.loadWorkers, "watch", len(o.watchDirs))
	return s, nil
}

// HAL returns the device adapter, for creating buffers and shaders
// outside the cache.
func (s *System) HAL() *halgpu.Device { return s.hal }

// Device returns the push-buffer device all rendering calls go through.
func (s *System) Device() *pushbuf.AsyncDevice { return s.device }

// Shaders returns the shader combo cache.
func (s *System) Shaders() *shadercache.Cache { return s.shaders }

// Start enables async replay when configured and starts the shader
// watcher. Cancelling ctx stops both.
func (s *System) Start(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	if s.opts.async {
		if err := s.device.Enable(ctx); err != nil {
			cancel()
			return fmt.Errorf("matsys: start: %w", err)
		}
	}
	s.cancel = cancel
	if s.watcher != nil {
		s.watchDone = make(chan struct{})
		go func() {
			defer close(s.watchDone)
			if err := s.watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				Logger().Warn("matsys: shader watcher stopped", "err", err)
			}
		}()
	}
	Logger().Info("matsys: started", "async", s.device.IsEnabled())
	return nil
}

// Stop drains recorded work and returns to immediate replay.
func (s *System) Stop() {
	if s.cancel == nil {
		return
	}
	s.device.Disable()
	s.cancel()
	s.cancel = nil
	if s.watchDone != nil {
		<-s.watchDone
		s.watchDone = nil
	}
}

// FindShader looks up a shader file's static combo. The handle stays
// valid when loading fails; binding it then yields the fallback shader.
func (s *System) FindShader(name string, stage gputypes.ShaderStage, staticCombo uint32) (shadercache.Handle, error) {
	if s.closed {
		return shadercache.InvalidHandle, ErrClosed
	}
	return s.shaders.FindOrCreate(name, stage, staticCombo)
}

// BindShader binds one dynamic combo of h to its pipeline stage. When
// the combo cannot be bound the fallback shader is bound and the reason
// returned.
func (s *System) BindShader(h shadercache.Handle, dynamicCombo int) error {
	stage, err := s.shaders.Stage(h)
	if err != nil {
		return err
	}
	id, bindErr := s.shaders.Bind(h, dynamicCombo)
	switch stage {
	case gputypes.ShaderStageVertex:
		s.device.SetVertexShader(pushbuf.Handle(id))
	case gputypes.ShaderStageFragment:
		s.device.SetPixelShader(pushbuf.Handle(id))
	}
	return bindErr
}

// EndFrame hands recorded work to the device, applies finished queued
// loads and reloads shaders whose files changed.
func (s *System) EndFrame() {
	if s.device.IsBuffered() {
		s.device.ExecuteAllWork()
	} else {
		s.device.SubmitIfNotBusy()
	}
	if s.loader != nil {
		s.shaders.ProcessCompletedLoads()
	}
	if s.watcher != nil && s.watcher.Changed() {
		s.device.Synchronize()
		n := s.shaders.FlushShaders()
		Logger().Info("matsys: shaders reloaded", "lookups", n)
	}
	if err := s.device.WorkerErr(); err != nil {
		Logger().Warn("matsys: push-buffer worker", "err", err)
	}
}

// WaitForLoads blocks until queued shader reads finish and applies them.
// It returns the number of lookups completed.
func (s *System) WaitForLoads() int {
	if s.loader == nil {
		return 0
	}
	s.loader.Wait()
	return s.shaders.ProcessCompletedLoads()
}

// PurgeUnusedShaders synchronizes the device and destroys every lookup
// without references.
func (s *System) PurgeUnusedShaders() int {
	s.device.Synchronize()
	return s.shaders.PurgeUnusedShaders()
}

// Close stops the System and releases every device object.
func (s *System) Close() {
	if s.closed {
		return
	}
	s.Stop()
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.loader != nil {
		s.loader.Close()
	}
	s.shaders.Close()
	s.hal.Close()
	s.closed = true
}
