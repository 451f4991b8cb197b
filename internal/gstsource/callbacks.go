package gstsource

import (
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// frameSlot holds the latest decoded RGBA frame. The appsink callback writes
// it, ReadFrame copies out of it. Older frames are overwritten.
type frameSlot struct {
	mu        sync.RWMutex
	pix       []byte
	width     int
	height    int
	updatedAt time.Time

	received  atomic.Uint64
	bytesRead atomic.Uint64
	malformed atomic.Uint64
}

// store copies data into the slot, reusing its backing array.
// Returns false when data does not cover width×height RGBA pixels.
func (s *frameSlot) store(data []byte, width, height int) bool {
	n := width * height * 4
	if width <= 0 || height <= 0 || len(data) < n {
		s.malformed.Add(1)
		return false
	}

	s.mu.Lock()
	if cap(s.pix) >= n {
		s.pix = s.pix[:n]
	} else {
		s.pix = make([]byte, n)
	}
	copy(s.pix, data[:n])
	s.width, s.height = width, height
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.received.Add(1)
	s.bytesRead.Add(uint64(n))
	return true
}

// dimensions returns (0, 0) while the slot is empty.
func (s *frameSlot) dimensions() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// clear drops the current frame and its storage (pipeline restarting).
func (s *frameSlot) clear() {
	s.mu.Lock()
	s.pix = nil
	s.width, s.height = 0, 0
	s.mu.Unlock()
}

func (s *frameSlot) lastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// onNewSample is called by GStreamer on its streaming thread for every frame
// reaching the appsink. The buffer is copied: GStreamer reuses it.
func onNewSample(sink *app.Sink, slot *frameSlot, width, height int) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// One bad sample must not kill the pipeline.
		slog.Warn("gstsource: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	if width <= 0 || height <= 0 {
		width, height = capsDimensions(sample.GetCaps())
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstsource: failed to get buffer from sample, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	ok := slot.store(data, width, height)
	buffer.Unmap()

	if !ok {
		slog.Debug("gstsource: malformed frame dropped",
			"size_bytes", len(data),
			"width", width,
			"height", height,
		)
	}
	return gst.FlowOK
}

// capsDimensions reads width and height from negotiated caps.
func capsDimensions(caps *gst.Caps) (int, int) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0
	}
	structure := caps.GetStructureAt(0)

	var width, height int
	if val, err := structure.GetValue("width"); err == nil {
		width, _ = val.(int)
	}
	if val, err := structure.GetValue("height"); err == nil {
		height, _ = val.(int)
	}
	return width, height
}

// onPadAdded links the first video pad of uridecodebin to videoconvert.
// Audio and other pads are ignored.
func onPadAdded(srcPad *gst.Pad, converter *gst.Element) {
	name := srcPad.GetName()

	if caps := srcPad.GetCurrentCaps(); caps != nil && caps.GetSize() > 0 {
		media := caps.GetStructureAt(0).Name()
		if !strings.HasPrefix(media, "video/") {
			slog.Debug("gstsource: ignoring non-video pad", "pad", name, "media", media)
			return
		}
	}

	sinkPad := converter.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("gstsource: failed to get sink pad from videoconvert")
		return
	}
	if sinkPad.IsLinked() {
		slog.Debug("gstsource: videoconvert already linked, ignoring pad", "pad", name)
		return
	}

	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("gstsource: failed to link pads",
			"src_pad", name,
			"sink_pad", sinkPad.GetName(),
			"ret", ret,
		)
		return
	}

	slog.Debug("gstsource: pads linked", "src_pad", name)
}
