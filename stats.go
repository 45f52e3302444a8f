package matsys

import (
	"github.com/gogpu/matsys/backend/halgpu"
	"github.com/gogpu/matsys/pushbuf"
	"github.com/gogpu/matsys/shadercache"
)

// Stats is a snapshot of every counter of a System.
type Stats struct {
	PushBuffers   pushbuf.Stats
	Shaders       shadercache.Stats
	Device        halgpu.Counters
	Buffers       int // Live device buffers
	DeviceShaders int // Live device shaders
}

// Stats returns a snapshot of the counters. Safe for concurrent use.
func (s *System) Stats() Stats {
	st := s.hal.Snapshot()
	return Stats{
		PushBuffers:   s.device.Stats(),
		Shaders:       s.shaders.Stats(),
		Device:        st.Counters,
		Buffers:       st.Buffers,
		DeviceShaders: st.Shaders,
	}
}
