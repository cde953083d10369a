// Package multipart recovers an uploaded file from a raw multipart/form-data
// request body without a parsing library. The decoder is a small state
// machine over byte spans: it walks the body from boundary delimiter to
// boundary delimiter, splitting each part into a header block and a content
// block at the first blank line.
package multipart

import (
	"bytes"
	"errors"
	"strings"
)

// ErrNotMultipart is returned when the Content-Type header does not declare
// a multipart/form-data body with a boundary token.
var ErrNotMultipart = errors.New("expected multipart/form-data")

// ErrMissingFile is returned when the body contains no well-formed part
// carrying a filename.
var ErrMissingFile = errors.New("no image file provided")

// Boundary extracts the boundary token from a Content-Type header value.
// It must be called before any body parsing is attempted.
func Boundary(contentType string) (string, error) {
	if !strings.Contains(contentType, "multipart/form-data") {
		return "", ErrNotMultipart
	}
	idx := strings.Index(contentType, "boundary=")
	if idx < 0 {
		return "", ErrNotMultipart
	}
	b := contentType[idx+len("boundary="):]
	if i := strings.IndexByte(b, ';'); i >= 0 {
		b = b[:i]
	}
	b = strings.Trim(strings.TrimSpace(b), `"`)
	if b == "" {
		return "", ErrNotMultipart
	}
	return b, nil
}

// Decode scans the raw body for parts delimited by "--boundary" and returns
// the filename and payload of the first part declaring a filename attribute.
// The filename is stripped of quotes and line breaks before being returned,
// so it is safe to use as a path component after a final filepath.Base.
func Decode(body []byte, boundary string) (string, []byte, error) {
	d := &decoder{body: body, delim: []byte("--" + boundary)}
	for {
		p, ok := d.next()
		if !ok {
			break
		}
		name, found := fileName(p.header)
		if !found {
			continue
		}
		// First file-bearing part wins; a malformed one fails the upload.
		if name == "" || !p.valid {
			return "", nil, ErrMissingFile
		}
		return name, p.content, nil
	}
	return "", nil, ErrMissingFile
}

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

// decoder states.
type state int

const (
	stateDelimiter state = iota // scanning for the next boundary delimiter
	statePart                   // positioned at the start of a part
	stateDone                   // terminal delimiter or end of body reached
)

// part is one decoded span between two boundary delimiters.
type part struct {
	header  []byte
	content []byte
	// valid reports whether the header/content split (CRLFCRLF) was found.
	valid bool
}

// decoder walks the body one part at a time.
type decoder struct {
	body  []byte
	delim []byte
	pos   int
	state state
}

// next advances to the next part. ok is false once the body is exhausted.
func (d *decoder) next() (part, bool) {
	for {
		switch d.state {
		case stateDelimiter:
			idx := bytes.Index(d.body[d.pos:], d.delim)
			if idx < 0 {
				d.state = stateDone
				continue
			}
			d.pos += idx + len(d.delim)
			// "--" after the delimiter marks the terminal boundary.
			if bytes.HasPrefix(d.body[d.pos:], []byte("--")) {
				d.state = stateDone
				continue
			}
			if bytes.HasPrefix(d.body[d.pos:], crlf) {
				d.pos += len(crlf)
			}
			d.state = statePart

		case statePart:
			span := d.body[d.pos:]
			end := bytes.Index(span, d.delim)
			if end < 0 {
				end = len(span)
			}
			span = span[:end]
			d.pos += end
			d.state = stateDelimiter

			split := bytes.Index(span, crlfcrlf)
			if split < 0 {
				return part{header: span}, true
			}
			content := span[split+len(crlfcrlf):]
			// The part delimiter owns the trailing CRLF, not the payload.
			content = bytes.TrimSuffix(content, crlf)
			return part{header: span[:split], content: content, valid: true}, true

		default:
			return part{}, false
		}
	}
}

// fileName extracts the filename attribute from a part's header block.
// found is false when the part does not declare a filename at all.
func fileName(header []byte) (name string, found bool) {
	text := string(header)
	if !strings.Contains(text, "Content-Disposition") {
		return "", false
	}
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, "filename=")
		if idx < 0 {
			continue
		}
		raw := strings.TrimSpace(line[idx+len("filename="):])
		raw = strings.Trim(raw, `"`)
		raw = strings.Trim(raw, `'`)
		return sanitizeName(strings.TrimSpace(raw)), true
	}
	return "", false
}

// sanitizeName removes characters that could be abused for path or header
// injection when the name is used to build a storage path.
func sanitizeName(name string) string {
	r := strings.NewReplacer(`"`, "", `'`, "", "\n", "", "\r", "")
	return r.Replace(name)
}
