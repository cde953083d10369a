// Package metadata provides EXIF metadata extraction functionality.
package metadata

import (
	"fmt"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
)

func init() {
	// Register maker note parsers for better camera support
	exif.RegisterParsers(mknote.All...)
}

// Record holds the extracted EXIF metadata of one image: a flat tag-name to
// value mapping, the GPS sub-directory as its own mapping, and the derived
// signed decimal coordinates.
type Record struct {
	// Tags maps tag names to decoded values. Unknown tags keep their
	// numeric id as the key (goexif names them by hex id).
	Tags map[string]interface{}

	// GPS holds the raw GPS sub-directory tags (DMS triplets, refs,
	// bearing) keyed by tag name.
	GPS map[string]interface{}

	// Signed decimal degrees, hemisphere reference already applied.
	Latitude  *float64
	Longitude *float64

	// Camera bearing in degrees (GPSImgDirection), informational only.
	Bearing *float64
}

// HasGPS returns true if a decimal GPS fix was derived.
func (r *Record) HasGPS() bool {
	return r != nil && r.Latitude != nil && r.Longitude != nil
}

// Payload returns the record in its boundary JSON shape: the flat tag map
// plus a GPSData sub-mapping and top-level GPSLatitude/GPSLongitude
// convenience fields carrying the signed decimals.
func (r *Record) Payload() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Tags)+3)
	for k, v := range r.Tags {
		out[k] = v
	}
	if len(r.GPS) > 0 {
		out["GPSData"] = r.GPS
	}
	if r.HasGPS() {
		out["GPSLatitude"] = *r.Latitude
		out["GPSLongitude"] = *r.Longitude
	}
	return out
}

// Extractor extracts EXIF metadata from image files.
type Extractor struct {
	logger *logger.Logger
}

// NewExtractor creates a new metadata extractor.
func NewExtractor(log *logger.Logger) *Extractor {
	return &Extractor{
		logger: log.WithField("component", "exif-extractor"),
	}
}

// Extract reads the image container at path and returns its tag directory.
// Any container-parsing failure is returned as an error with no partial
// data; callers fold it into an error-only metadata record.
func (e *Extractor) Extract(path string) (*Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	x, err := exif.Decode(file)
	if err != nil {
		e.logger.WithError(err).WithField("path", path).Debug("failed to decode EXIF")
		return nil, err
	}

	rec := &Record{
		Tags: make(map[string]interface{}),
		GPS:  make(map[string]interface{}),
	}

	// goexif flattens the GPS IFD into the main directory; route its tags
	// into the nested GPS mapping by name prefix.
	walker := walkFunc(func(name exif.FieldName, tag *tiff.Tag) error {
		key := string(name)
		if strings.HasPrefix(key, "GPS") {
			rec.GPS[key] = tagValue(tag)
		} else {
			rec.Tags[key] = tagValue(tag)
		}
		return nil
	})
	if err := x.Walk(walker); err != nil {
		return nil, err
	}

	rec.Latitude, rec.Longitude = decimalCoordinates(x)
	rec.Bearing = rationalTag(x, exif.GPSImgDirection)

	return rec, nil
}

// walkFunc adapts a function to the goexif Walker interface.
type walkFunc func(exif.FieldName, *tiff.Tag) error

func (f walkFunc) Walk(name exif.FieldName, tag *tiff.Tag) error {
	return f(name, tag)
}

// decimalCoordinates derives signed decimal degrees from the GPS DMS
// triplets and hemisphere reference tags. Both pointers are nil unless
// latitude and longitude are present and well-formed.
func decimalCoordinates(x *exif.Exif) (lat, lon *float64) {
	latDMS, err := dmsTriplet(x, exif.GPSLatitude)
	if err != nil {
		return nil, nil
	}
	lonDMS, err := dmsTriplet(x, exif.GPSLongitude)
	if err != nil {
		return nil, nil
	}

	la := signed(dmsToDecimal(latDMS[0], latDMS[1], latDMS[2]), refTag(x, exif.GPSLatitudeRef), "S")
	lo := signed(dmsToDecimal(lonDMS[0], lonDMS[1], lonDMS[2]), refTag(x, exif.GPSLongitudeRef), "W")
	return &la, &lo
}

// dmsToDecimal converts a degrees/minutes/seconds triplet to decimal degrees.
func dmsToDecimal(d, m, s float64) float64 {
	return d + m/60.0 + s/3600.0
}

// signed negates value when the hemisphere reference matches negativeRef.
func signed(value float64, ref, negativeRef string) float64 {
	if ref == negativeRef {
		return -value
	}
	return value
}

// dmsTriplet reads the three rational components of a GPS coordinate tag.
func dmsTriplet(x *exif.Exif, name exif.FieldName) ([3]float64, error) {
	var out [3]float64
	tag, err := x.Get(name)
	if err != nil {
		return out, err
	}
	if tag.Count < 3 {
		return out, fmt.Errorf("%s: expected 3 rationals, got %d", name, tag.Count)
	}
	for i := 0; i < 3; i++ {
		num, den, err := tag.Rat2(i)
		if err != nil || den == 0 {
			return out, fmt.Errorf("%s: bad rational at %d", name, i)
		}
		out[i] = float64(num) / float64(den)
	}
	return out, nil
}

// refTag reads a hemisphere reference tag ("N", "S", "E", "W").
func refTag(x *exif.Exif, name exif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	val, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(val)
}

// rationalTag reads a single-rational tag as a float, or nil when absent.
func rationalTag(x *exif.Exif, name exif.FieldName) *float64 {
	tag, err := x.Get(name)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}
	val := float64(num) / float64(den)
	return &val
}

// tagValue converts a tiff tag to a JSON-friendly value. Byte-valued tags
// are decoded as text when printable, otherwise stringified.
func tagValue(tag *tiff.Tag) interface{} {
	switch tag.Format() {
	case tiff.StringVal:
		if s, err := tag.StringVal(); err == nil {
			return strings.TrimRight(strings.TrimSpace(s), "\x00")
		}
	case tiff.IntVal:
		if tag.Count == 1 {
			if v, err := tag.Int(0); err == nil {
				return v
			}
			break
		}
		vals := make([]int, 0, tag.Count)
		for i := 0; i < int(tag.Count); i++ {
			v, err := tag.Int(i)
			if err != nil {
				break
			}
			vals = append(vals, v)
		}
		return vals
	case tiff.RatVal:
		if tag.Count == 1 {
			if num, den, err := tag.Rat2(0); err == nil && den != 0 {
				return float64(num) / float64(den)
			}
			break
		}
		vals := make([]float64, 0, tag.Count)
		for i := 0; i < int(tag.Count); i++ {
			num, den, err := tag.Rat2(i)
			if err != nil || den == 0 {
				break
			}
			vals = append(vals, float64(num)/float64(den))
		}
		return vals
	case tiff.FloatVal:
		if v, err := tag.Float(0); err == nil {
			return v
		}
	case tiff.UndefVal, tiff.OtherVal:
		if s := string(tag.Val); isPrintable(s) {
			return strings.TrimRight(s, "\x00")
		}
	}
	return tag.String()
}

// isPrintable reports whether s decodes cleanly as readable text.
func isPrintable(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range strings.TrimRight(s, "\x00") {
		if r == '�' || (r < 0x20 && r != '\t' && r != '\n' && r != '\r') {
			return false
		}
	}
	return true
}
