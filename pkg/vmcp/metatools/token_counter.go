// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package metatools

import (
	"encoding/json"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// TokenCounter estimates how many tokens a tool definition consumes when
// sent to an LLM.
type TokenCounter interface {
	CountTokens(tool vmcp.Tool) int
}

// JSONByteDivisionCounter estimates tokens as the JSON byte length of the
// full tool definition divided by a fixed divisor.
type JSONByteDivisionCounter struct {
	Divisor int
}

// CountTokens returns len(json(tool)) / divisor, or 0 when the divisor is
// non-positive or serialisation fails.
func (c JSONByteDivisionCounter) CountTokens(tool vmcp.Tool) int {
	if c.Divisor <= 0 {
		return 0
	}
	data, err := json.Marshal(tool)
	if err != nil {
		return 0
	}
	return len(data) / c.Divisor
}

// NewJSONByteCounter returns a counter with a divisor of 4, a reasonable
// approximation for most LLM tokenizers.
func NewJSONByteCounter() TokenCounter {
	return JSONByteDivisionCounter{Divisor: 4}
}

// TokenMetrics reports the token savings of a search result set relative
// to advertising the whole catalog.
type TokenMetrics struct {
	// BaselineTokens is the estimated cost of sending every tool.
	BaselineTokens int `json:"baseline_tokens"`

	// ReturnedTokens is the estimated cost of the returned tools only.
	ReturnedTokens int `json:"returned_tokens"`

	// SavingsPercent is the relative saving, 0 to 100.
	SavingsPercent float64 `json:"savings_percent"`
}

// computeTokenMetrics compares the precomputed baseline against the matched
// tool names.
func computeTokenMetrics(baselineTokens int, tokenCounts map[string]int, matchedNames []string) TokenMetrics {
	if baselineTokens == 0 {
		return TokenMetrics{}
	}

	var returned int
	for _, name := range matchedNames {
		returned += tokenCounts[name]
	}

	return TokenMetrics{
		BaselineTokens: baselineTokens,
		ReturnedTokens: returned,
		SavingsPercent: float64(baselineTokens-returned) / float64(baselineTokens) * 100,
	}
}
