package forecast

import (
	"strings"

	"github.com/kiranshivaraju/futurework/internal/sheets"
	"github.com/kiranshivaraju/futurework/pkg/models"
)

// normalize is the key comparison form of a cell.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// matches reports whether cells hold the identity key of in.
func matches(cells []string, in models.JobInput) bool {
	if len(cells) < 3 {
		return false
	}
	return normalize(cells[0]) == normalize(in.Industry) &&
		normalize(cells[1]) == normalize(in.Country) &&
		normalize(cells[2]) == normalize(in.Role)
}

// findRow scans rows top to bottom, skipping the header, and returns the
// 1-based sheet row number of the first match.
func findRow(rows [][]string, in models.JobInput) (int, sheets.Row, bool) {
	for i := 1; i < len(rows); i++ {
		if matches(rows[i], in) {
			return i + 1, sheets.DecodeRow(rows[i]), true
		}
	}
	return 0, sheets.Row{}, false
}
