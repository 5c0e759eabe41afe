package providers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList("Anthropic|groq:batch| openai : key2 |")
	require.Len(t, refs, 3)
	require.Equal(t, "anthropic", refs[0].Name)
	require.Equal(t, ProviderRef{Raw: "groq:batch", Name: "groq", KeyAlias: "batch"}, refs[1])
	require.Equal(t, "openai", refs[2].Name)
	require.Equal(t, "key2", refs[2].KeyAlias)
	require.Equal(t, "openai:key2", refs[2].String())

	require.Equal(t, []ProviderRef{{Raw: "mock", Name: "mock"}}, ParseProviderList("  "))
}

func TestParseProviderListCommasAndDuplicates(t *testing.T) {
	refs := ParseProviderList("ollama, groq ,ollama,:orphan")
	require.Len(t, refs, 2)
	require.Equal(t, "ollama", refs[0].String())
	require.Equal(t, "groq", refs[1].String())

	_, ok := ParseProviderRef(" ")
	require.False(t, ok)
}
