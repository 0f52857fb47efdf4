package records

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// charsetDecoder resolves a caller-declared character set name. Empty means
// UTF-8, which needs no transformation.
func charsetDecoder(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "latin-1", "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "iso-8859-15":
		return charmap.ISO8859_15.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "utf-16", "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder(), nil
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported charset %q", name)
	}
}

// Decoder streams rows of one uploaded file, decoding the declared charset
// and skipping the header row when the mapping declares one.
type Decoder struct {
	csv    *csv.Reader
	header []string
}

// NewDecoder wraps the raw byte stream with charset decoding and csv parsing
// per the mapping. The header row, when declared, is consumed immediately.
func NewDecoder(r io.Reader, m Mapping) (*Decoder, error) {
	dec, err := charsetDecoder(m.Charset)
	if err != nil {
		return nil, err
	}
	if dec != nil {
		r = transform.NewReader(r, dec)
	}

	cr := csv.NewReader(bufio.NewReader(r))
	cr.Comma = m.separator()
	cr.FieldsPerRecord = -1 // ragged rows tolerated, mapping guards indexing
	cr.LazyQuotes = true

	d := &Decoder{csv: cr}
	if m.Header {
		header, err := cr.Read()
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("read header row: %w", err)
		}
		d.header = header
	}
	return d, nil
}

// Header returns the consumed header row, nil when the mapping has none.
func (d *Decoder) Header() []string { return d.header }

// Read returns the next data row, io.EOF at the end of the stream.
func (d *Decoder) Read() ([]string, error) {
	return d.csv.Read()
}

// CountRows counts line terminators in one streaming pass. A trailing
// unterminated line still counts as a row.
func CountRows(r io.Reader) (int64, error) {
	var count int64
	buf := make([]byte, 64*1024)
	lastByte := byte('\n')
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				count++
			}
		}
		if n > 0 {
			lastByte = buf[n-1]
		}
		if err == io.EOF {
			if lastByte != '\n' {
				count++
			}
			return count, nil
		}
		if err != nil {
			return 0, fmt.Errorf("count rows: %w", err)
		}
	}
}
