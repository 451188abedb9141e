package progress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deepresearch/research-agent/pkg/models"
)

const (
	queryPreviewLen  = 60
	valuePreviewLen  = 50
	resultPreviewLen = 500
)

// InputPreview is a one-line summary of a tool call's input: the quoted
// query when there is one, otherwise the first field.
func InputPreview(input json.RawMessage) string {
	fields, ok := orderedFields(input)
	if !ok {
		return "No input"
	}
	for _, f := range fields {
		if f.key == "query" && truthy(f.value) {
			return `"` + truncate(valueText(f.value), queryPreviewLen) + `"`
		}
	}
	if len(fields) > 0 && truthy(fields[0].value) {
		return fields[0].key + ": " + truncate(valueText(fields[0].value), valuePreviewLen)
	}
	return "View details"
}

// ResultPreview renders a tool result for display, truncated.
func ResultPreview(result json.RawMessage) string {
	if len(result) == 0 {
		return ""
	}

	var text string
	if json.Unmarshal(result, &text) != nil {
		// content block list: join the text blocks
		var blocks models.Blocks
		if json.Unmarshal(result, &blocks) == nil && len(blocks) > 0 {
			var parts []string
			for _, b := range blocks {
				if b.Type == models.BlockText {
					parts = append(parts, b.Text)
				}
			}
			text = strings.Join(parts, "\n")
		}
		if text == "" {
			var buf bytes.Buffer
			if json.Indent(&buf, result, "", "  ") == nil {
				text = buf.String()
			} else {
				text = string(result)
			}
		}
	}
	return truncate(text, resultPreviewLen)
}

// FormatDuration renders milliseconds as "42s" or "3m 5s".
func FormatDuration(ms int64) string {
	seconds := ms / 1000
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

// FormatCost renders a USD amount with three decimals.
func FormatCost(usd float64) string {
	return fmt.Sprintf("$%.3f", usd)
}

// ReportSummary is the metadata line shown with the final report.
func ReportSummary(report models.Event) string {
	return fmt.Sprintf("%s · %s · %d turns",
		FormatDuration(report.DurationMs), FormatCost(report.TotalCostUSD), report.NumTurns)
}

type field struct {
	key   string
	value json.RawMessage
}

// orderedFields returns the members of a JSON object in document order.
func orderedFields(data json.RawMessage) ([]field, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		fields = append(fields, field{key: key, value: value})
	}
	return fields, true
}

func truthy(v json.RawMessage) bool {
	switch strings.TrimSpace(string(v)) {
	case "", "null", "false", "0", `""`:
		return false
	}
	return true
}

func valueText(v json.RawMessage) string {
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	return string(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
