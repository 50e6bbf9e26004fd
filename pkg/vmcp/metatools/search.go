// SPDX-FileCopyrightText: Copyright 2025 Virtual MCP Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package metatools

import (
	"sort"
	"strings"
	"unicode"

	"github.com/virtualmcp/gateway/pkg/vmcp"
)

// maxSearchResults caps the ranked list SEARCH_TOOLS returns.
const maxSearchResults = 10

// Scoring weights. A name substring hit outranks any description hit, and
// token overlap breaks ties among partial matches.
const (
	nameSubstringWeight        = 2.0
	descriptionSubstringWeight = 1.0
	tokenOverlapWeight         = 1.0
)

// rankTools scores every catalog tool against the query and returns the top
// matches in descending score order, ties broken by name. Tools with a zero
// score are excluded.
func rankTools(tools []vmcp.Tool, query string) []SearchResult {
	queryLower := strings.ToLower(query)
	queryTokens := tokenize(queryLower)

	results := make([]SearchResult, 0, len(tools))
	for _, tool := range tools {
		score := scoreTool(tool.Name, tool.Description, queryLower, queryTokens)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			Name:        tool.Name,
			Description: tool.Description,
			Score:       score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Name < results[j].Name
	})

	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}
	return results
}

func scoreTool(name, description, queryLower string, queryTokens []string) float64 {
	nameLower := strings.ToLower(name)
	descLower := strings.ToLower(description)

	var score float64
	if strings.Contains(nameLower, queryLower) {
		score += nameSubstringWeight
	}
	if descLower != "" && strings.Contains(descLower, queryLower) {
		score += descriptionSubstringWeight
	}

	if len(queryTokens) > 0 {
		toolTokens := tokenSet(tokenize(nameLower + " " + descLower))
		matched := 0
		for _, qt := range queryTokens {
			if toolTokens[qt] {
				matched++
			}
		}
		score += tokenOverlapWeight * float64(matched) / float64(len(queryTokens))
	}

	return score
}

// tokenize splits on any non-letter, non-digit rune, so snake_case and
// kebab-case names decompose into searchable words.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
