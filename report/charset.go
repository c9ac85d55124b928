package report

import (
	"fmt"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/unicode/norm"
)

// charsetAliases are names neither index registers.
var charsetAliases = map[string]string{
	"ascii": "us-ascii",
}

// lookupCharset resolves charset by its IANA name first. The web labels of
// htmlindex are only a fallback since they fold latin-1 and ascii into
// windows-1252.
func lookupCharset(charset string) (encoding.Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(charset))
	if name == "" {
		name = "utf-8"
	}
	if alias, ok := charsetAliases[name]; ok {
		name = alias
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		if enc, err = htmlindex.Get(name); err != nil {
			return nil, fmt.Errorf("unknown csv charset %q: %w", charset, err)
		}
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported csv charset %q", charset)
	}
	return enc, nil
}

// fitCharset returns s with every rune enc cannot represent replaced by
// its ASCII transliteration ("€" becomes "EUR").
func fitCharset(enc encoding.Encoding, s string) string {
	e := enc.NewEncoder()
	if _, err := e.String(s); err == nil {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range norm.NFC.String(s) {
		if _, err := e.String(string(r)); err == nil {
			b.WriteRune(r)
			continue
		}
		b.WriteString(unidecode.Unidecode(string(r)))
	}
	return b.String()
}
