package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"

	"github.com/safi-is-coding/Pothole-Recording-With-GPX/internal/session"
)

// GPXTimeLayout is ISO-8601 UTC with milliseconds.
const GPXTimeLayout = "2006-01-02T15:04:05.000Z"

const (
	gpxVersion   = "1.1"
	gpxCreator   = "PotholeApp"
	gpxNamespace = "http://www.topografix.com/GPX/1/1"
	gpxTrackName = "Pothole Path"
)

type gpxDoc struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Xmlns   string   `xml:"xmlns,attr"`
	Track   gpxTrack `xml:"trk"`
}

type gpxTrack struct {
	Name    string     `xml:"name"`
	Segment gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat  string `xml:"lat,attr"`
	Lon  string `xml:"lon,attr"`
	Time string `xml:"time"`
}

// TrackLog serializes points, in order, as a single-segment GPX 1.1 track.
func TrackLog(points []session.TrackPoint) ([]byte, error) {
	doc := gpxDoc{
		Version: gpxVersion,
		Creator: gpxCreator,
		Xmlns:   gpxNamespace,
		Track:   gpxTrack{Name: gpxTrackName},
	}
	for _, p := range points {
		doc.Track.Segment.Points = append(doc.Track.Segment.Points, gpxPoint{
			Lat:  formatCoord(p.Lat),
			Lon:  formatCoord(p.Lon),
			Time: p.CapturedAt.UTC().Format(GPXTimeLayout),
		})
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding gpx: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// formatCoord prints the shortest decimal that round-trips.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
