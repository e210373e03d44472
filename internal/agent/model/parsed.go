package model

// ParsedPrompt is the structured record the extraction model produces from a
// free-text prompt. Any subset of the fields may be missing; an entirely empty
// value means extraction failed and the heuristic fallback takes over.
type ParsedPrompt struct {
	Addresses         []string `json:"addresses,omitempty"`
	TransactionHashes []string `json:"transaction_hashes,omitempty"`
	BlockNumbers      []int64  `json:"block_numbers,omitempty"`
	Intent            string   `json:"intent,omitempty"`
}

// HasTargets reports whether the extraction carries anything a tool could be
// invoked on.
func (p *ParsedPrompt) HasTargets() bool {
	if p == nil {
		return false
	}
	return len(p.Addresses) > 0 || len(p.TransactionHashes) > 0
}

// IsEmpty reports whether the extraction produced nothing usable at all.
func (p *ParsedPrompt) IsEmpty() bool {
	if p == nil {
		return true
	}
	return !p.HasTargets() && len(p.BlockNumbers) == 0 && p.Intent == ""
}
