// Package recommend separates the assistant's prose from the machine-readable
// list of offers it actually recommended.
package recommend

import (
	"encoding/json"
	"regexp"
	"strings"

	"property-agent/internal/domain"
)

// IDsField is the key of the fenced JSON object holding recommended offer ids.
const IDsField = "recommended_offer_ids"

var fencedJSON = regexp.MustCompile("(?is)```json\\s*(.*?)```")

// Result is the assistant text with the fenced block removed plus the ids it
// carried.
type Result struct {
	CleanedText    string   `json:"cleanedText"`
	RecommendedIDs []string `json:"recommendedIds"`
}

// Extract looks for the first ```json fenced block. When it holds a JSON
// object the block is removed from the text and any string array under
// recommended_offer_ids becomes RecommendedIDs. A missing or unparsable block
// leaves the text untouched apart from trimming.
func Extract(raw string) Result {
	loc := fencedJSON.FindStringSubmatchIndex(raw)
	if loc == nil {
		return Result{CleanedText: strings.TrimSpace(raw)}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw[loc[2]:loc[3]]), &obj); err != nil || obj == nil {
		return Result{CleanedText: strings.TrimSpace(raw)}
	}

	cleaned := strings.TrimSpace(raw[:loc[0]] + raw[loc[1]:])

	var ids []string
	if field, ok := obj[IDsField]; ok {
		if err := json.Unmarshal(field, &ids); err != nil {
			ids = nil
		}
	}
	return Result{CleanedText: cleaned, RecommendedIDs: dedupe(ids)}
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Select applies the offer selection policy: with recommended ids only the
// matching documents are kept, in retrieval order; without ids every
// retrieved document is a candidate.
func Select(docs []domain.Document, ids []string) []domain.Document {
	if len(ids) == 0 {
		return docs
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]domain.Document, 0, len(ids))
	for _, d := range docs {
		if _, ok := want[d.Offer.ID]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Offers returns the offers carried by docs.
func Offers(docs []domain.Document) []domain.Offer {
	out := make([]domain.Offer, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Offer)
	}
	return out
}
