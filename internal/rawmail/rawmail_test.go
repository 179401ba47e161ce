package rawmail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) string {
	return strings.ReplaceAll(s, "\n", "\r\n")
}

func TestReadHeaders(t *testing.T) {
	m, err := Read(strings.NewReader(crlf(`From: Reporter <reporter@example.com>
To: crashreport@newpipe.net
Date: Tue, 01 Mar 2022 10:00:00 +0000
Content-Type: text/plain; charset=utf-8

hello
`)))
	require.NoError(t, err)

	assert.Equal(t, "Reporter <reporter@example.com>", m.Sender)
	assert.Equal(t, "crashreport@newpipe.net", m.Recipient)

	date, err := m.Header.Date()
	require.NoError(t, err)
	assert.Equal(t, 2022, date.Year())
}

func TestExtractBody(t *testing.T) {
	cases := []struct {
		name string
		mail string
		want string
	}{
		{
			name: "single plain part",
			mail: `From: a@example.com
To: b@example.com
Content-Type: text/plain; charset=us-ascii

Crash {"a": 1}
`,
			want: `Crash {"a": 1}`,
		},
		{
			name: "first text part wins",
			mail: `From: a@example.com
To: b@example.com
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary="XYZ"

--XYZ
Content-Type: text/plain; charset=utf-8

plain version
--XYZ
Content-Type: text/html; charset=utf-8

<p>html version</p>
--XYZ--
`,
			want: "plain version",
		},
		{
			name: "html part behind attachment",
			mail: `From: a@example.com
To: b@example.com
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="XYZ"

--XYZ
Content-Type: application/octet-stream; name="dump.bin"

binary
--XYZ
Content-Type: text/html; charset=utf-8

<div><b>Error</b> &amp; {"x": "y"}</div>
--XYZ--
`,
			want: `Error & {"x": "y"}`,
		},
		{
			name: "nested multipart",
			mail: `From: a@example.com
To: b@example.com
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="OUTER"

--OUTER
Content-Type: multipart/alternative; boundary="INNER"

--INNER
Content-Type: text/plain; charset=utf-8

nested text
--INNER--
--OUTER--
`,
			want: "nested text",
		},
		{
			name: "base64 transfer encoding",
			mail: `From: a@example.com
To: b@example.com
Content-Type: text/plain; charset=utf-8
Content-Transfer-Encoding: base64

eyJ0aW1lIjogIjIwMjIifQ==
`,
			want: `{"time": "2022"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Read(strings.NewReader(crlf(tc.mail)))
			require.NoError(t, err)

			body, err := ExtractBody(m)
			require.NoError(t, err)
			assert.Equal(t, tc.want, strings.TrimSpace(body))
		})
	}
}

func TestExtractBodyNoTextPart(t *testing.T) {
	m, err := Read(strings.NewReader(crlf(`From: a@example.com
To: b@example.com
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="XYZ"

--XYZ
Content-Type: image/png

notreallyapng
--XYZ--
`)))
	require.NoError(t, err)

	_, err = ExtractBody(m)
	assert.ErrorIs(t, err, ErrNoBodyFound)
}

func TestExtractBodyWindows1252(t *testing.T) {
	raw := crlf("From: a@example.com\nTo: b@example.com\nContent-Type: text/plain; charset=windows-1252\n\ncaf") + "\xe9\r\n"
	m, err := Read(strings.NewReader(raw))
	require.NoError(t, err)

	body, err := ExtractBody(m)
	require.NoError(t, err)
	assert.Equal(t, "cafe\u0301", strings.TrimSpace(body))
}

func TestDecodeOrder(t *testing.T) {
	s, err := Decode([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", s)

	s, err = Decode([]byte("caf\xc3\xa9"))
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", s)

	s, err = Decode([]byte("caf\xe9"))
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", s)

	for _, undefined := range []byte{0x81, 0x8d, 0x8f, 0x90, 0x9d} {
		_, err = Decode([]byte{'x', undefined})
		assert.ErrorIs(t, err, ErrDecode, "byte %#x", undefined)
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "strips tags keeps text", in: `<p class="x">Hello <b>world</b></p>`, want: "Hello world"},
		{name: "unescapes entities", in: "a &lt;b&gt; &amp; c", want: "a  & c"},
		{name: "compatibility decomposition", in: "ﬁle", want: "file"},
		{name: "decomposes composed characters", in: "&eacute;", want: "e\u0301"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Sanitize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
