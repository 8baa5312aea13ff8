package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/annotate"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/capture"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/geo"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/session"
	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/testutil"
)

func f(v float64) *float64 { return &v }

func stopped(points []session.TrackPoint, photos []session.Photo) session.Session {
	return session.Session{
		ID:          "s1",
		State:       session.Stopped,
		TrackPoints: points,
		Photos:      photos,
		Media:       &capture.Media{Data: []byte("webm-bytes"), MIMEType: "video/webm"},
		StoppedAt:   time.Date(2025, 5, 1, 10, 5, 0, 0, time.UTC),
	}
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	out := make(map[string][]byte)
	for _, file := range zr.File {
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("opening %s: %v", file.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("reading %s: %v", file.Name, err)
		}
		out[file.Name] = b
	}
	return out
}

func TestTrackLogLayout(t *testing.T) {
	points := []session.TrackPoint{
		{Lat: 12.9, Lon: 77.6, CapturedAt: time.Date(2025, 5, 1, 10, 0, 1, 250e6, time.UTC)},
		{Lat: 12.91, Lon: 77.61, CapturedAt: time.Date(2025, 5, 1, 15, 30, 3, 0, time.FixedZone("IST", 5*3600+1800))},
	}
	got, err := TrackLog(points)
	if err != nil {
		t.Fatalf("TrackLog failed: %v", err)
	}

	want := `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="PotholeApp" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>Pothole Path</name>
    <trkseg>
      <trkpt lat="12.9" lon="77.6">
        <time>2025-05-01T10:00:01.250Z</time>
      </trkpt>
      <trkpt lat="12.91" lon="77.61">
        <time>2025-05-01T10:00:03.000Z</time>
      </trkpt>
    </trkseg>
  </trk>
</gpx>
`
	if string(got) != want {
		t.Errorf("TrackLog =\n%s\nwant\n%s", got, want)
	}
}

func TestEmptySessionExports(t *testing.T) {
	b, err := Build(stopped(nil, nil))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if n := strings.Count(string(b.Track.Data), "<trkpt"); n != 0 {
		t.Errorf("trkpt count = %d, want 0", n)
	}
	if !strings.Contains(string(b.Track.Data), "<trkseg>") {
		t.Errorf("track log should still carry a segment:\n%s", b.Track.Data)
	}

	data, err := b.Archive()
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	files := readZip(t, data)
	if len(files) != 2 {
		t.Errorf("archive entries = %d, want 2", len(files))
	}
	for name := range files {
		if strings.HasSuffix(name, ".jpg") {
			t.Errorf("unexpected photo entry %s", name)
		}
	}
}

func TestBuildRequiresStoppedWithMedia(t *testing.T) {
	tests := []struct {
		name string
		s    session.Session
	}{
		{"idle", session.Session{State: session.Idle}},
		{"recording", session.Session{State: session.Recording, Media: &capture.Media{}}},
		{"stopped without media", session.Session{State: session.Stopped}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(tt.s); !errors.Is(err, ErrNothingToExport) {
				t.Errorf("Build error = %v, want ErrNothingToExport", err)
			}
		})
	}
}

func TestPhotoEntryNames(t *testing.T) {
	photos := []session.Photo{
		{Image: []byte("a"), Lat: f(12.971599), Lon: f(77.594566)},
		{Image: []byte("b")},
		{Image: []byte("c"), Lat: f(-1.5), Lon: nil},
	}
	b, err := Build(stopped(nil, photos))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	want := []string{
		"photo_1_12.9716_77.5946.jpg",
		"photo_2_unknownLat_unknownLon.jpg",
		"photo_3_-1.5000_unknownLon.jpg",
	}
	if len(b.Photos) != len(want) {
		t.Fatalf("len(Photos) = %d, want %d", len(b.Photos), len(want))
	}
	for i, w := range want {
		if b.Photos[i].Name != w {
			t.Errorf("Photos[%d].Name = %q, want %q", i, b.Photos[i].Name, w)
		}
	}

	data, err := b.Archive()
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	files := readZip(t, data)
	var names []string
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	wantNames := append([]string{"pothole_locations.gpx", "pothole_video.webm"}, want...)
	sort.Strings(wantNames)
	if strings.Join(names, ",") != strings.Join(wantNames, ",") {
		t.Errorf("archive names = %v, want %v", names, wantNames)
	}
	if string(files["photo_2_unknownLat_unknownLon.jpg"]) != "b" {
		t.Errorf("photo 2 payload = %q, want %q", files["photo_2_unknownLat_unknownLon.jpg"], "b")
	}
	if string(files["pothole_video.webm"]) != "webm-bytes" {
		t.Errorf("media payload = %q", files["pothole_video.webm"])
	}
}

func TestPhotoNamesKeepCaptureIndex(t *testing.T) {
	photos := []session.Photo{
		{Index: 1, Image: []byte("a"), Lat: f(12.9), Lon: f(77.6)},
		{Index: 3, Image: []byte("c")},
	}
	b, err := Build(stopped(nil, photos))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := []string{"photo_1_12.9000_77.6000.jpg", "photo_3_unknownLat_unknownLon.jpg"}
	for i, w := range want {
		if b.Photos[i].Name != w {
			t.Errorf("Photos[%d].Name = %q, want %q", i, b.Photos[i].Name, w)
		}
	}
}

func TestTrackEntry(t *testing.T) {
	b, err := Build(stopped(nil, nil))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if b.Track.Name != "pothole_locations.gpx" {
		t.Errorf("Track.Name = %q, want pothole_locations.gpx", b.Track.Name)
	}
	if !strings.Contains(string(b.Track.Data), "<name>Pothole Path</name>") {
		t.Errorf("track log missing track name:\n%s", b.Track.Data)
	}
}

func TestMediaName(t *testing.T) {
	tests := map[string]string{
		"video/webm":             "pothole_video.webm",
		"video/webm;codecs=vp8":  "pothole_video.webm",
		"video/mp4":              "pothole_video.mp4",
		"application/x-whatever": "pothole_video.bin",
		"":                       "pothole_video.bin",
	}
	for in, want := range tests {
		if got := MediaName(in); got != want {
			t.Errorf("MediaName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteToMatchesArchive(t *testing.T) {
	b, _ := Build(stopped([]session.TrackPoint{{Lat: 1, Lon: 2, CapturedAt: time.Unix(0, 0)}}, nil))
	want, err := b.Archive()
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	var buf bytes.Buffer
	n, err := b.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if n != int64(len(want)) || !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("WriteTo wrote %d bytes, want the %d-byte archive", n, len(want))
	}
}

func newController(t *testing.T, provider *testutil.Provider) *session.Controller {
	t.Helper()
	a, err := annotate.New(annotate.Options{})
	if err != nil {
		t.Fatalf("annotate.New: %v", err)
	}
	c := session.New(session.Deps{Provider: provider, Device: &testutil.Device{}, Annotator: a}, session.DefaultOptions())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestControllerStartStopExport(t *testing.T) {
	c := newController(t, &testutil.Provider{})
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	b, err := Build(c.Snapshot())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(b.Photos) != 0 || strings.Contains(string(b.Track.Data), "<trkpt") {
		t.Errorf("empty session exported %d photos and track:\n%s", len(b.Photos), b.Track.Data)
	}

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := Build(c.Snapshot()); !errors.Is(err, ErrNothingToExport) {
		t.Errorf("Build after reset error = %v, want ErrNothingToExport", err)
	}
}

func TestControllerUnknownPhotoName(t *testing.T) {
	provider := &testutil.Provider{Current: func(_ context.Context, call int) (geo.Fix, error) {
		if call == 1 {
			return testutil.DefaultFix, nil
		}
		return geo.Fix{}, geo.ErrFixUnavailable
	}}
	c := newController(t, provider)
	_ = c.Start(context.Background())
	for i := 0; i < 2; i++ {
		if _, err := c.CapturePhoto(context.Background()); err != nil {
			t.Fatalf("CapturePhoto failed: %v", err)
		}
	}
	_ = c.Stop(context.Background())
	_ = c.WaitPhotos(context.Background())

	b, err := Build(c.Snapshot())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	want := []string{"photo_1_unknownLat_unknownLon.jpg", "photo_2_unknownLat_unknownLon.jpg"}
	if len(b.Photos) != 2 {
		t.Fatalf("len(Photos) = %d, want 2", len(b.Photos))
	}
	for i := range want {
		if b.Photos[i].Name != want[i] {
			t.Errorf("Photos[%d].Name = %q, want %q", i, b.Photos[i].Name, want[i])
		}
	}
}
