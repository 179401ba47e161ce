package rawmail

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

type charsetDecoder struct {
	name   string
	decode func([]byte) (string, bool)
}

// Mail clients lie about charsets, so the declared one is ignored and these
// are tried in order instead.
var charsets = []charsetDecoder{
	{name: "ascii", decode: decodeASCII},
	{name: "utf-8", decode: decodeUTF8},
	{name: "windows-1252", decode: decodeWindows1252},
}

// Decode converts raw body bytes to a string using the first charset that
// accepts them.
func Decode(raw []byte) (string, error) {
	for _, cs := range charsets {
		if s, ok := cs.decode(raw); ok {
			return s, nil
		}
	}
	return "", ErrDecode
}

func decodeASCII(b []byte) (string, bool) {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return "", false
		}
	}
	return string(b), true
}

func decodeUTF8(b []byte) (string, bool) {
	if !utf8.Valid(b) {
		return "", false
	}
	return string(b), true
}

// Bytes with no Windows-1252 mapping. The charmap decoder turns them into
// U+FFFD instead of failing.
const windows1252Undefined = "\x81\x8d\x8f\x90\x9d"

func decodeWindows1252(b []byte) (string, bool) {
	for _, c := range b {
		if strings.IndexByte(windows1252Undefined, c) >= 0 {
			return "", false
		}
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// Sanitize turns a decoded body into plain text. The second normalization is
// needed because unescaping entities can produce composed characters again.
func Sanitize(s string) (string, error) {
	s = norm.NFKD.String(s)
	s = html.UnescapeString(s)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return "", errors.Wrap(err, "strip markup")
	}
	return norm.NFKD.String(doc.Text()), nil
}
