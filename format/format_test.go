package format

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplates(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, ParseTemplate(TableTemplate).Execute(&out, struct {
		ID          uint8
		Collections int
	}{5, 2}))
	require.Contains(t, out.String(), "5")

	out.Reset()
	require.NoError(t, ParseTemplate(ItemTemplate).Execute(&out, struct {
		Name  string
		Value string
	}{"counter", "3"}))
	require.Contains(t, out.String(), "counter")
	require.Equal(t, "abcdefgh", FuncMap["shorten"].(func(string) string)("abcdefghij"))
	require.Equal(t, "abc", FuncMap["shorten"].(func(string) string)("abc"))
}
