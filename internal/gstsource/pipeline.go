package gstsource

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

var gstInit sync.Once

// pipelineConfig contains what the pipeline needs to be built.
type pipelineConfig struct {
	URI    string
	Width  int // 0 keeps the decoded width
	Height int // 0 keeps the decoded height
	FPS    int // 0 keeps the decoded rate
}

// pipelineElements holds the elements needed by callbacks and teardown.
type pipelineElements struct {
	Pipeline  *gst.Pipeline
	Decode    *gst.Element
	Converter *gst.Element
	AppSink   *app.Sink
}

// createPipeline builds, but does not start, the decode pipeline:
//
//	uridecodebin → videoconvert → videoscale → videorate → capsfilter(RGBA) → appsink
//
// uridecodebin has dynamic pads; the caller links them with onPadAdded.
func createPipeline(cfg pipelineConfig) (*pipelineElements, error) {
	gstInit.Do(func() { gst.Init(nil) })

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	decode, err := gst.NewElement("uridecodebin")
	if err != nil {
		return nil, fmt.Errorf("failed to create uridecodebin: %w", err)
	}
	decode.SetProperty("uri", cfg.URI)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0) // auto-detect cores

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsStr := buildCaps(cfg.Width, cfg.Height, cfg.FPS)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // real time, no clock sync
	appsink.SetProperty("max-buffers", 1) // keep only the latest frame
	appsink.SetProperty("drop", true)
	appsink.SetProperty("qos", true)

	if err := pipeline.AddMany(decode, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}
	if err := gst.ElementLinkMany(converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Debug("gstsource: pipeline created", "uri", cfg.URI, "caps", capsStr)

	return &pipelineElements{
		Pipeline:  pipeline,
		Decode:    decode,
		Converter: converter,
		AppSink:   appsink,
	}, nil
}

// destroyPipeline sets the pipeline to NULL, releasing its resources.
// Safe on nil.
func destroyPipeline(elements *pipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildCaps builds the appsink caps. Zero width/height/fps leave that field
// to negotiation.
//
//	buildCaps(640, 480, 30) = "video/x-raw,format=RGBA,width=640,height=480,framerate=30/1"
func buildCaps(width, height, fps int) string {
	var b strings.Builder
	b.WriteString("video/x-raw,format=RGBA")
	if width > 0 && height > 0 {
		fmt.Fprintf(&b, ",width=%d,height=%d,pixel-aspect-ratio=1/1", width, height)
	}
	if fps > 0 {
		fmt.Fprintf(&b, ",framerate=%d/1", fps)
	}
	return b.String()
}

// normalizeURI turns plain file paths into file:// URIs for uridecodebin.
func normalizeURI(uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("gstsource: URI is required")
	}
	if strings.Contains(uri, "://") {
		return uri, nil
	}
	abs, err := filepath.Abs(uri)
	if err != nil {
		return "", fmt.Errorf("gstsource: invalid path %q: %w", uri, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
