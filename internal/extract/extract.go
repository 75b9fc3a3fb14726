// Package extract turns uploaded documents into plain text for analysis.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrUnsupported is returned for formats that cannot be read as text.
var ErrUnsupported = errors.New("extract: unsupported format")

// MaxDocumentXML caps how much of word/document.xml is read.
const MaxDocumentXML = 32 << 20

// Text extracts trimmed plain text from data. The format is chosen by the
// file name's extension: .docx is unpacked, .pdf is refused, and anything
// else is decoded as text.
func Text(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".docx":
		text, err := docxText(data)
		if err != nil {
			return "", fmt.Errorf("extract: %s: %w", name, err)
		}
		return strings.TrimSpace(text), nil
	case ".pdf":
		return "", fmt.Errorf("%w: %s", ErrUnsupported, name)
	default:
		return strings.TrimSpace(decodeText(data)), nil
	}
}

// decodeText honours a UTF-8 or UTF-16 byte order mark, and falls back to
// Windows-1252 when the bytes are not valid UTF-8.
func decodeText(data []byte) string {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		out = data
	}
	if utf8.Valid(out) {
		return string(out)
	}
	latin, err := charmap.Windows1252.NewDecoder().Bytes(out)
	if err != nil {
		return strings.ToValidUTF8(string(out), "�")
	}
	return string(latin)
}

// ---------------------------------------------------------------------------
// DOCX
// ---------------------------------------------------------------------------

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		defer rc.Close()
		return documentXMLText(io.LimitReader(rc, MaxDocumentXML))
	}
	return "", errors.New("word/document.xml not found")
}

// documentXMLText concatenates w:t runs, ending each w:p with a newline and
// mapping w:tab and w:br to their whitespace.
func documentXMLText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		b      strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
