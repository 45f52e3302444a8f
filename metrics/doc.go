// Package metrics exports matsys counters to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewCollector(sys))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// The collector reads a [matsys.Stats] snapshot on every scrape, so it
// never blocks the producer goroutine.
package metrics
