// Package export turns a stopped session into a GPX track log, a media
// entry and annotated photo entries, and packages them as one zip archive.
package export

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"time"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/session"
)

// ErrNothingToExport is returned for sessions that are not stopped or hold
// no media.
var ErrNothingToExport = errors.New("nothing to export")

const (
	mediaBase = "pothole_video"
	trackName = "pothole_locations.gpx"
)

// Entry is one named file of the archive.
type Entry struct {
	Name string
	Data []byte
	// Compress selects deflate; already compressed payloads are stored.
	Compress bool
}

// Bundle holds every entry derived from one session.
type Bundle struct {
	Media    Entry
	Track    Entry
	Photos   []Entry
	Modified time.Time
}

// Build derives a Bundle from s. s must be Stopped with media attached.
func Build(s session.Session) (*Bundle, error) {
	if s.State != session.Stopped || s.Media == nil {
		return nil, fmt.Errorf("%w: session is %s", ErrNothingToExport, s.State)
	}

	track, err := TrackLog(s.TrackPoints)
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Media:    Entry{Name: MediaName(s.Media.MIMEType), Data: s.Media.Data},
		Track:    Entry{Name: trackName, Data: track, Compress: true},
		Modified: s.StoppedAt,
	}
	for i, p := range s.Photos {
		index := p.Index
		if index == 0 {
			index = i + 1
		}
		b.Photos = append(b.Photos, Entry{Name: PhotoName(index, p), Data: p.Image})
	}
	return b, nil
}

// Entries lists the archive contents in write order.
func (b *Bundle) Entries() []Entry {
	out := make([]Entry, 0, 2+len(b.Photos))
	out = append(out, b.Media, b.Track)
	return append(out, b.Photos...)
}

// Archive packages all entries into one zip held in memory.
func (b *Bundle) Archive() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, e := range b.Entries() {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Store}
		if e.Compress {
			hdr.Method = zip.Deflate
		}
		if !b.Modified.IsZero() {
			hdr.Modified = b.Modified.UTC()
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("adding %s: %w", e.Name, err)
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, fmt.Errorf("writing %s: %w", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteTo writes the archive to w. The archive is built completely before
// the first byte is written, so a failing build emits nothing.
func (b *Bundle) WriteTo(w io.Writer) (int64, error) {
	data, err := b.Archive()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// MediaName picks the media entry name from its MIME type.
func MediaName(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = mimeType
	}
	switch mt {
	case "video/webm", "audio/webm":
		return mediaBase + ".webm"
	case "video/mp4":
		return mediaBase + ".mp4"
	}
	return mediaBase + ".bin"
}

// PhotoName is photo_<index>_<lat>_<lon>.jpg with 4-decimal coordinates, or
// unknownLat/unknownLon when the position is missing.
func PhotoName(index int, p session.Photo) string {
	lat, lon := "unknownLat", "unknownLon"
	if p.Lat != nil {
		lat = fmt.Sprintf("%.4f", *p.Lat)
	}
	if p.Lon != nil {
		lon = fmt.Sprintf("%.4f", *p.Lon)
	}
	return fmt.Sprintf("photo_%d_%s_%s.jpg", index, lat, lon)
}
