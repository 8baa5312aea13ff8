// Package gstreamer implements capture.Device with a GStreamer pipeline over a
// V4L2 camera.
//
// Pipeline structure:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter → tee
//	  tee → queue → valve(rec) → vp8enc → webmmux → appsink(encsink)
//	  tee → queue(leaky) → videoconvert → RGBA caps → appsink(framesink)
//
// With audio enabled, autoaudiosrc → valve(arec) → vorbisenc joins the muxer.
// The valves stay closed until StartEncoding so the camera can preview
// (snapshots) before and after recording.
package gstreamer

import (
	"fmt"
	"strings"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/capture"
)

const (
	encSinkName   = "encsink"
	frameSinkName = "framesink"
	videoValve    = "rec"
	audioValve    = "arec"

	mimeWebM = "video/webm"
)

// launchString builds the gst-launch description for c.
func launchString(c capture.Constraints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "v4l2src device=%s ! videoconvert ! videoscale ! videorate ! ", c.Device)
	fmt.Fprintf(&b, "video/x-raw,width=%d,height=%d,framerate=%d/1 ! tee name=t ", c.Width, c.Height, c.FPS)

	fmt.Fprintf(&b, "t. ! queue ! valve name=%s drop=true ! videoconvert ! vp8enc deadline=1 ! ", videoValve)
	fmt.Fprintf(&b, "webmmux name=mux streamable=true ! appsink name=%s sync=false emit-signals=false ", encSinkName)

	b.WriteString("t. ! queue leaky=downstream max-size-buffers=1 ! videoconvert ! video/x-raw,format=RGBA ! ")
	fmt.Fprintf(&b, "appsink name=%s sync=false max-buffers=1 drop=true", frameSinkName)

	if c.Audio {
		fmt.Fprintf(&b, " autoaudiosrc ! queue ! valve name=%s drop=true ! audioconvert ! audioresample ! vorbisenc ! mux.", audioValve)
	}
	return b.String()
}
