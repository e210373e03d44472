package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAddress = "UQBFzLtQ9Bd2rlddYzGhfnZZcrztNRWB771tXH6LmaoLUM9Gab"
	testTxHash  = "a3c5f9e2d18b7640c2e4f6a8b0d2c4e6f8a0b2c4d6e8f0a1b3c5d7e9f1a3b5c7"
)

func TestParseExtractionBareObject(t *testing.T) {
	parsed := ParseExtraction(`{"addresses":["` + testAddress + `"],"transaction_hashes":[],"block_numbers":[],"intent":"analyze_address"}`)

	require.Len(t, parsed.Addresses, 1)
	assert.Equal(t, testAddress, parsed.Addresses[0])
	assert.Equal(t, "analyze_address", parsed.Intent)
	assert.True(t, parsed.HasTargets())
}

func TestParseExtractionCodeFence(t *testing.T) {
	parsed := ParseExtraction("```json\n{\"transaction_hashes\":[\"" + testTxHash + "\"],\"intent\":\"get_transaction_details\"}\n```")

	require.Len(t, parsed.TransactionHashes, 1)
	assert.Equal(t, testTxHash, parsed.TransactionHashes[0])
}

func TestParseExtractionProseWrappedObject(t *testing.T) {
	parsed := ParseExtraction(`Here is the extraction you asked for: {"addresses":["` + testAddress + `"],"intent":"analyze_address"} hope that helps`)

	require.Len(t, parsed.Addresses, 1)
	assert.Equal(t, testAddress, parsed.Addresses[0])
}

func TestParseExtractionContentBlocks(t *testing.T) {
	parsed := ParseExtraction(`[{"type":"text","text":"{\"addresses\":[\"` + testAddress + `\"],\"intent\":\"analyze_address\"}"}]`)

	require.Len(t, parsed.Addresses, 1)
	assert.Equal(t, testAddress, parsed.Addresses[0])
}

func TestParseExtractionSingularKeys(t *testing.T) {
	parsed := ParseExtraction(`{"address":"` + testAddress + `","transaction_hash":"` + testTxHash + `"}`)

	require.Len(t, parsed.Addresses, 1)
	require.Len(t, parsed.TransactionHashes, 1)
	assert.Equal(t, testAddress, parsed.Addresses[0])
	assert.Equal(t, testTxHash, parsed.TransactionHashes[0])
}

func TestParseExtractionMalformedYieldsEmpty(t *testing.T) {
	for _, content := range []string{
		"",
		"not json at all",
		`{"addresses": [unterminated`,
		"[1, 2, 3]",
	} {
		parsed := ParseExtraction(content)
		assert.True(t, parsed.IsEmpty(), "content %q should parse to empty", content)
		assert.False(t, parsed.HasTargets())
	}
}

func TestParseExtractionBlockNumbers(t *testing.T) {
	parsed := ParseExtraction(`{"block_numbers":[12345678],"intent":"block_info"}`)

	require.Len(t, parsed.BlockNumbers, 1)
	assert.Equal(t, int64(12345678), parsed.BlockNumbers[0])
	// Block numbers alone are not an actionable target.
	assert.False(t, parsed.HasTargets())
	assert.False(t, parsed.IsEmpty())
}
