// Package handler holds the built-in job handlers shipped with the queue.
package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/policy"
)

// CSVCleanType is the job type for scraped-menu CSV cleanup.
const CSVCleanType = "clean-menu-csv"

// CSVCleanSchema validates the clean-menu-csv payload at enqueue time.
const CSVCleanSchema = `{
  "type": "object",
  "required": ["csv"],
  "properties": {
    "csv": {"type": "string", "minLength": 1},
    "dropImageURL": {"type": "boolean"}
  }
}`

// Scraper UI artifacts that leak into menu item names and tags.
var unwantedPhrases = []string{
	"Plus small",
	"Thumb up outline",
	"No. 1 most liked",
	"No. 2 most liked",
	"No. 3 most liked",
}

var unwantedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+%`),    // like percentages: "93%"
	regexp.MustCompile(`\(\d+\)`), // vote counts: "(30)"
}

var (
	dupSemicolons = regexp.MustCompile(`;\s*;`)
	dupCommas     = regexp.MustCompile(`,\s*,`)
	multiSpace    = regexp.MustCompile(`\s{2,}`)
)

type csvCleanPayload struct {
	CSV          string `json:"csv"`
	DropImageURL bool   `json:"dropImageURL"`
}

type csvCleanResult struct {
	CSV          string `json:"csv"`
	Rows         int    `json:"rows"`
	CellsChanged int    `json:"cellsChanged"`
	DroppedCol   string `json:"droppedColumn,omitempty"`
}

// CleanMenuCSV strips scraper artifacts from every column of a menu CSV
// and optionally drops the trailing imageURL column.
func CleanMenuCSV(ctx context.Context, job *model.Job) (json.RawMessage, error) {
	var p csvCleanPayload
	if err := json.Unmarshal(job.InputPayload, &p); err != nil {
		return nil, policy.Fatal(model.KindValidation, fmt.Errorf("decode payload: %w", err))
	}
	if strings.TrimSpace(p.CSV) == "" {
		return nil, policy.Fatal(model.KindValidation, fmt.Errorf("csv field is empty"))
	}

	r := csv.NewReader(strings.NewReader(p.CSV))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, policy.Fatal(model.KindValidation, fmt.Errorf("parse csv: %w", err))
	}
	if len(records) == 0 {
		return nil, policy.Fatal(model.KindValidation, fmt.Errorf("csv has no rows"))
	}

	res := csvCleanResult{Rows: len(records) - 1}

	dropCol := -1
	if p.DropImageURL {
		header := records[0]
		if n := len(header); n > 0 && strings.EqualFold(strings.TrimSpace(header[n-1]), "imageURL") {
			dropCol = n - 1
			res.DroppedCol = header[n-1]
		}
	}

	out := make([][]string, 0, len(records))
	for i, rec := range records {
		if dropCol >= 0 && dropCol < len(rec) {
			rec = append(rec[:dropCol:dropCol], rec[dropCol+1:]...)
		}
		for c := range rec {
			if i == 0 {
				continue
			}
			cleaned := cleanField(rec[c])
			if cleaned != rec[c] {
				res.CellsChanged++
				rec[c] = cleaned
			}
		}
		out = append(out, rec)

		if i%500 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(out); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	res.CSV = buf.String()

	return json.Marshal(res)
}

// cleanField removes unwanted phrases and patterns from a cell while
// keeping legitimate content intact.
func cleanField(v string) string {
	if v == "" {
		return v
	}

	trimmed := strings.TrimSpace(v)
	for _, phrase := range unwantedPhrases {
		if trimmed == phrase {
			return ""
		}
	}

	cleaned := v
	hadArtifact := false
	for _, phrase := range unwantedPhrases {
		if strings.Contains(cleaned, phrase) {
			cleaned = strings.ReplaceAll(cleaned, phrase, "")
			hadArtifact = true
		}
	}
	for _, pat := range unwantedPatterns {
		cleaned = pat.ReplaceAllString(cleaned, "")
	}

	// Separator cleanup only where it looks like a tags field, so prose
	// punctuation survives.
	if strings.Contains(v, ";") || hadArtifact {
		cleaned = dupSemicolons.ReplaceAllString(cleaned, ";")
		cleaned = dupCommas.ReplaceAllString(cleaned, ",")
		cleaned = strings.Trim(cleaned, "; ,")
	}
	cleaned = multiSpace.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}
