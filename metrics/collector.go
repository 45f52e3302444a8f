package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gogpu/matsys"
)

const namespace = "matsys"

// Source provides the counters to export. *matsys.System implements it.
type Source interface {
	Stats() matsys.Stats
}

// SourceFunc adapts a function to Source.
type SourceFunc func() matsys.Stats

// Stats implements Source.
func (f SourceFunc) Stats() matsys.Stats { return f() }

func newDesc(subsystem, name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
}

var (
	submittedDesc     = newDesc("pushbuf", "submitted_total", "Push buffers handed to the worker.")
	forcedDesc        = newDesc("pushbuf", "forced_submits_total", "Submits forced by push buffer pool exhaustion.")
	executedDesc      = newDesc("pushbuf", "commands_executed_total", "Commands replayed on the device.")
	stagedDesc        = newDesc("pushbuf", "async_locks_staged_total", "Async locks by staging memory.", "staging")
	queuedDesc        = newDesc("pushbuf", "queued_buffers", "Push buffers waiting for the worker.")
	lookupsDesc       = newDesc("shader", "lookups", "Live shader combo lookups.")
	pendingDesc       = newDesc("shader", "pending_loads", "Lookups waiting for a queued load.")
	createdDesc       = newDesc("shader", "created_total", "Device shaders created from combo code.", "stage")
	failedDesc        = newDesc("shader", "failed_loads_total", "Lookups marked failed.")
	compilesDesc      = newDesc("shader", "dynamic_compiles_total", "Combos compiled from source.")
	retriesDesc       = newDesc("shader", "compile_retries_total", "Compile attempts that failed and were retried.")
	fileEntriesDesc   = newDesc("shader", "file_cache_entries", "Shader file directories held in memory.")
	fileRequestsDesc  = newDesc("shader", "file_cache_requests_total", "Shader file directory lookups.", "result")
	drawsDesc         = newDesc("device", "draws_total", "Draw calls replayed.", "kind")
	primitivesDesc    = newDesc("device", "primitives_total", "Primitives drawn.")
	scenesDesc        = newDesc("device", "scenes_total", "Scenes ended.")
	presentsDesc      = newDesc("device", "presents_total", "Present calls.")
	locksDesc         = newDesc("device", "buffer_locks_total", "Buffer locks mapped on the device.")
	invalidBindsDesc  = newDesc("device", "invalid_binds_total", "Shader binds naming no shader of the stage.")
	liveResourcesDesc = newDesc("device", "live_resources", "Live device objects.", "type")
)

var allDescs = []*prometheus.Desc{
	submittedDesc, forcedDesc, executedDesc, stagedDesc, queuedDesc,
	lookupsDesc, pendingDesc, createdDesc, failedDesc, compilesDesc, retriesDesc,
	fileEntriesDesc, fileRequestsDesc,
	drawsDesc, primitivesDesc, scenesDesc, presentsDesc, locksDesc, invalidBindsDesc,
	liveResourcesDesc,
}

// Collector is a prometheus.Collector over a Source.
type Collector struct {
	src Source
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector reading src on every scrape.
func NewCollector(src Source) *Collector {
	return &Collector{src: src}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range allDescs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v int, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v), labels...)
	}

	pb := s.PushBuffers
	counter(submittedDesc, pb.Submitted)
	counter(forcedDesc, pb.ForcedSubmits)
	counter(executedDesc, pb.Executed)
	counter(stagedDesc, pb.PushBufferStage, "push_buffer")
	counter(stagedDesc, pb.HeapStage, "heap")
	gauge(queuedDesc, pb.Queued)

	sh := s.Shaders
	gauge(lookupsDesc, sh.Lookups)
	gauge(pendingDesc, sh.PendingLoads)
	counter(createdDesc, sh.VertexShadersCreated, "vertex")
	counter(createdDesc, sh.PixelShadersCreated, "pixel")
	counter(failedDesc, sh.FailedLoads)
	counter(compilesDesc, sh.DynamicCompiles)
	counter(retriesDesc, sh.CompileRetries)
	gauge(fileEntriesDesc, sh.FileCacheEntries)
	counter(fileRequestsDesc, sh.FileCacheHits, "hit")
	counter(fileRequestsDesc, sh.FileCacheMisses, "miss")

	dev := s.Device
	counter(drawsDesc, dev.Draws, "primitive")
	counter(drawsDesc, dev.IndexedDraws, "indexed")
	counter(primitivesDesc, dev.Primitives)
	counter(scenesDesc, dev.Scenes)
	counter(presentsDesc, dev.Presents)
	counter(locksDesc, dev.Locks)
	counter(invalidBindsDesc, dev.InvalidBinds)
	gauge(liveResourcesDesc, s.Buffers, "buffer")
	gauge(liveResourcesDesc, s.DeviceShaders, "shader")
}
