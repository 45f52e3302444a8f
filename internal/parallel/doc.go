// Package parallel provides the goroutine pool behind the background
// shader file loader.
//
// Each worker owns a buffered job queue and steals from its siblings when
// its own queue is empty, so one slow read does not hold back the jobs
// queued behind it.
package parallel
