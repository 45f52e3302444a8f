// Command matsysdemo drives the push-buffer engine and the shader cache
// against the wgpu hal noop device.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gogpu/matsys"
	"github.com/gogpu/matsys/metrics"
	"github.com/gogpu/matsys/pushbuf"
	"github.com/gogpu/matsys/shadercache"
)

// shaderRef is a -shader flag value: name:stage:static.
type shaderRef struct {
	name   string
	stage  gputypes.ShaderStage
	static uint32
}

type shaderFlags []shaderRef

func (s *shaderFlags) String() string { return fmt.Sprint(*s) }

func (s *shaderFlags) Set(v string) error {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return fmt.Errorf("want name:vs|ps:static, got %q", v)
	}
	ref := shaderRef{name: parts[0]}
	switch parts[1] {
	case "vs":
		ref.stage = gputypes.ShaderStageVertex
	case "ps":
		ref.stage = gputypes.ShaderStageFragment
	default:
		return fmt.Errorf("unknown stage %q", parts[1])
	}
	static, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return err
	}
	ref.static = uint32(static)
	*s = append(*s, ref)
	return nil
}

func main() {
	var (
		configPath  = flag.String("config", "", "TOML or YAML config file")
		frames      = flag.Int("frames", 600, "frames to run")
		metricsAddr = flag.String("metrics", "", "serve Prometheus metrics on this address, e.g. :9090")
		shaders     shaderFlags
	)
	flag.Var(&shaders, "shader", "shader combo to bind every frame, name:vs|ps:static (repeatable)")
	flag.Parse()

	if err := run(*configPath, *frames, *metricsAddr, shaders); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string, frames int, metricsAddr string, refs []shaderRef) error {
	cfg := matsys.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = matsys.LoadConfig(configPath); err != nil {
			return err
		}
		if !filepath.IsAbs(cfg.ShaderRoot) {
			cfg.ShaderRoot = filepath.Join(filepath.Dir(configPath), cfg.ShaderRoot)
		}
	}
	logger, err := cfg.Logger(os.Stderr)
	if err != nil {
		return err
	}
	matsys.SetLogger(logger)

	gpu, cleanup, err := openNoopDevice()
	if err != nil {
		return err
	}
	defer cleanup()

	fsys := os.DirFS(cfg.ShaderRoot)
	opts, err := cfg.Options(fsys)
	if err != nil {
		return err
	}
	sys, err := matsys.New(gpu, fsys, opts...)
	if err != nil {
		return err
	}
	defer sys.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := sys.Start(ctx); err != nil {
		return err
	}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(sys))
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	handles := make([]shadercache.Handle, 0, len(refs))
	for _, ref := range refs {
		h, err := sys.FindShader(ref.name, ref.stage, ref.static)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}

	const vertices = 3 * 64
	const stride = 16
	vb, err := sys.HAL().CreateBuffer(pushbuf.VertexBuffer, vertices*stride, "demo vertices")
	if err != nil {
		return err
	}

	start := time.Now()
	dev := sys.Device()
	for frame := 0; frame < frames && ctx.Err() == nil; frame++ {
		dev.BeginScene()
		dev.SetViewport(pushbuf.Viewport{Width: 1280, Height: 720, MaxZ: 1})
		dev.Clear(nil, 1, 0xff202020, 1, 0)

		mem, lctx, err := dev.AsyncLock(pushbuf.VertexBuffer, vb, 0, vertices*stride, 0)
		if err != nil {
			return err
		}
		fillVertices(mem, frame)
		if err := dev.AsyncUnlock(pushbuf.VertexBuffer, vb, lctx, 0); err != nil {
			return err
		}
		dev.SetStreamSource(0, vb, 0, stride)

		for i, h := range handles {
			dyn := frame % max(sys.Shaders().DynamicCombos(h), 1)
			if err := sys.BindShader(h, dyn); err != nil && frame == 0 {
				log.Printf("%s: %v", refs[i].name, err)
			}
		}
		dev.DrawPrimitive(gputypes.PrimitiveTopologyTriangleList, 0, vertices/3)
		dev.EndScene()
		dev.Present(nil, nil, pushbuf.NoHandle)
		sys.EndFrame()
	}
	dev.Synchronize()
	elapsed := time.Since(start)

	st := sys.Stats()
	log.Printf("%d frames in %v", st.Device.Presents, elapsed.Round(time.Millisecond))
	log.Printf("push buffers: %d submitted, %d forced, %d commands, %d/%d staged in buffer/heap",
		st.PushBuffers.Submitted, st.PushBuffers.ForcedSubmits, st.PushBuffers.Executed,
		st.PushBuffers.PushBufferStage, st.PushBuffers.HeapStage)
	log.Printf("device: %d draws, %d primitives, %d locks, %d invalid binds",
		st.Device.Draws, st.Device.Primitives, st.Device.Locks, st.Device.InvalidBinds)
	log.Printf("shaders: %d lookups, %d vs + %d ps created, %d failed, %d compiled",
		st.Shaders.Lookups, st.Shaders.VertexShadersCreated, st.Shaders.PixelShadersCreated,
		st.Shaders.FailedLoads, st.Shaders.DynamicCompiles)
	return nil
}

// openNoopDevice opens the noop hal backend.
func openNoopDevice() (hal.Device, func(), error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, errors.New("no adapter")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, fmt.Errorf("open device: %w", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, cleanup, nil
}

// fillVertices writes a ring of triangles, rotated by frame, as x, y, z,
// w float32 positions.
func fillVertices(mem []byte, frame int) {
	const stride = 16
	n := len(mem) / stride
	phase := float64(frame) * 0.01
	for i := range n {
		a := phase + 2*math.Pi*float64(i)/float64(n)
		r := 0.5 + 0.25*float64(i%3)
		v := [4]float32{float32(r * math.Cos(a)), float32(r * math.Sin(a)), 0, 1}
		for j, f := range v {
			binary.LittleEndian.PutUint32(mem[i*stride+j*4:], math.Float32bits(f))
		}
	}
}
