package igd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cursorDoc = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <u:GetExternalIPAddressResponse xmlns:u="urn:schemas-upnp-org:service:WANIPConnection:2">
      <NewExternalIPAddress>
        203.0.113.7
      </NewExternalIPAddress>
      <Empty></Empty>
    </u:GetExternalIPAddressResponse>
  </s:Body>
</s:Envelope>`

func TestCursor(t *testing.T) {
	doc, err := parseDocument([]byte(cursorDoc))
	require.NoError(t, err)

	t.Run("fixed path lookup ignores prefixes and trims text", func(t *testing.T) {
		text, ok := doc.Path("Envelope", "Body", "GetExternalIPAddressResponse", "NewExternalIPAddress").Text()
		assert.True(t, ok)
		assert.Equal(t, "203.0.113.7", text)
	})

	t.Run("missing intermediate propagates absence", func(t *testing.T) {
		c := doc.Descend("Envelope").Descend("Header").Descend("Anything").Descend("Deeper")
		assert.False(t, c.Exists())
		_, ok := c.Text()
		assert.False(t, ok)
		assert.Empty(t, c.Descendants("service"))
	})

	t.Run("only direct children are matched", func(t *testing.T) {
		assert.False(t, doc.Descend("Envelope").Descend("NewExternalIPAddress").Exists())
	})

	t.Run("element without text", func(t *testing.T) {
		c := doc.Path("Envelope", "Body", "GetExternalIPAddressResponse", "Empty")
		assert.True(t, c.Exists())
		_, ok := c.Text()
		assert.False(t, ok)
	})

	t.Run("zero cursor is empty", func(t *testing.T) {
		var c Cursor
		assert.False(t, c.Descend("x").Exists())
	})
}

func TestCursorDescendants(t *testing.T) {
	doc, err := parseDocument([]byte(`<root>
<service><id>1</id></service>
<deviceList><device><service><id>2</id><service><id>3</id></service></service></device></deviceList>
<service><id>4</id></service>
</root>`))
	require.NoError(t, err)

	var ids []string
	for _, s := range doc.Descendants("service") {
		id, _ := s.Descend("id").Text()
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
}

func TestParseDocumentErrors(t *testing.T) {
	for name, body := range map[string][]byte{
		"unclosed element": []byte("<root><a></root>"),
		"not xml":          []byte("hello"),
		"empty":            nil,
		"invalid utf-8":    []byte("<root>\xff\xfe</root>"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseDocument(body)
			assert.True(t, errors.Is(err, ErrDecode))
		})
	}
}
