package ingest

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
)

// cpgAliases maps code page labels seen in .cpg files to IANA names.
var cpgAliases = map[string]string{
	"1251":      "windows-1251",
	"cp1251":    "windows-1251",
	"ansi 1251": "windows-1251",
	"1252":      "windows-1252",
	"cp1252":    "windows-1252",
	"866":       "ibm866",
	"cp866":     "ibm866",
	"utf8":      "utf-8",
	"65001":     "utf-8",
}

// LookupEncoding resolves a .cpg label to an encoding.
func LookupEncoding(label string) (encoding.Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(label))
	if alias, ok := cpgAliases[name]; ok {
		name = alias
	}
	if name == "" {
		return nil, fmt.Errorf("empty encoding label")
	}
	if name == "utf-8" {
		return unicode.UTF8, nil
	}
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc, nil
}

// detectEncoding reads the .cpg companion of base, falling back to DefaultEncoding.
func (i *Ingestor) detectEncoding(base string) encoding.Encoding {
	data, err := os.ReadFile(base + ".cpg")
	if err != nil {
		return DefaultEncoding
	}
	enc, err := LookupEncoding(string(data))
	if err != nil {
		i.log.Warnw("Ignoring shapefile code page", "file", base+".cpg", "error", err)
		return DefaultEncoding
	}
	return enc
}

// decodeAttribute converts a raw DBF value to UTF-8 and trims padding.
func decodeAttribute(enc encoding.Encoding, raw string) string {
	raw = strings.Trim(raw, " \x00")
	if raw == "" {
		return ""
	}
	s, err := enc.NewDecoder().String(raw)
	if err != nil {
		return raw
	}
	return strings.TrimSpace(s)
}
