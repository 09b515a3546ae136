package handler

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/policy"
)

func runClean(t *testing.T, payload string) csvCleanResult {
	t.Helper()
	job := &model.Job{InputPayload: json.RawMessage(payload)}
	out, err := CleanMenuCSV(context.Background(), job)
	require.NoError(t, err)
	var res csvCleanResult
	require.NoError(t, json.Unmarshal(out, &res))
	return res
}

func TestCleanMenuCSVStripsArtifacts(t *testing.T) {
	csvIn := strings.Join([]string{
		`name,tags,description`,
		`"Pad Thai","Thumb up outline; Popular; 93%","No. 1 most liked noodle dish (30)"`,
		`"Green Curry","Spicy","Classic curry"`,
	}, "\n")
	payload, _ := json.Marshal(map[string]any{"csv": csvIn})

	res := runClean(t, string(payload))
	assert.Equal(t, 2, res.Rows)
	assert.NotContains(t, res.CSV, "Thumb up outline")
	assert.NotContains(t, res.CSV, "93%")
	assert.NotContains(t, res.CSV, "(30)")
	assert.NotContains(t, res.CSV, "No. 1 most liked")
	assert.Contains(t, res.CSV, "Popular")
	assert.Contains(t, res.CSV, "Green Curry")
	assert.Contains(t, res.CSV, "Classic curry")
	assert.Greater(t, res.CellsChanged, 0)
}

func TestCleanMenuCSVCellThatIsOnlyArtifact(t *testing.T) {
	csvIn := "name,tags\nBurger,Plus small\n"
	payload, _ := json.Marshal(map[string]any{"csv": csvIn})

	res := runClean(t, string(payload))
	assert.Contains(t, res.CSV, "Burger")
	assert.NotContains(t, res.CSV, "Plus small")
}

func TestCleanMenuCSVDropsImageURLColumn(t *testing.T) {
	csvIn := "name,tags,imageURL\nBurger,Beef,https://cdn.example.com/b.png\n"
	payload, _ := json.Marshal(map[string]any{"csv": csvIn, "dropImageURL": true})

	res := runClean(t, string(payload))
	assert.Equal(t, "imageURL", res.DroppedCol)
	assert.NotContains(t, res.CSV, "imageURL")
	assert.NotContains(t, res.CSV, "cdn.example.com")
	assert.Contains(t, res.CSV, "Burger")
}

func TestCleanMenuCSVKeepsImageURLWithoutFlag(t *testing.T) {
	csvIn := "name,imageURL\nBurger,https://cdn.example.com/b.png\n"
	payload, _ := json.Marshal(map[string]any{"csv": csvIn})

	res := runClean(t, string(payload))
	assert.Empty(t, res.DroppedCol)
	assert.Contains(t, res.CSV, "imageURL")
}

func TestCleanMenuCSVHeaderRowUntouched(t *testing.T) {
	// A header that happens to contain a cleanable pattern stays as is.
	csvIn := "name,votes (1)\nBurger,12\n"
	payload, _ := json.Marshal(map[string]any{"csv": csvIn})

	res := runClean(t, string(payload))
	assert.Contains(t, res.CSV, "votes (1)")
}

func TestCleanMenuCSVBadPayloadIsFatal(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"csv":`},
		{"empty csv", `{"csv": "  "}`},
		{"unparseable csv", `{"csv": "a,\"b\nc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &model.Job{InputPayload: json.RawMessage(tt.payload)}
			_, err := CleanMenuCSV(context.Background(), job)
			require.Error(t, err)
			kind, retryable := policy.Classify(err)
			assert.Equal(t, model.KindValidation, kind)
			assert.False(t, retryable)
		})
	}
}
