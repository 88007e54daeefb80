package sheets

import (
	"time"

	"github.com/kiranshivaraju/futurework/pkg/models"
)

// DateLayout is the format of the Last Updated column.
const DateLayout = "2006-01-02"

// Header is the first row of the predictions sheet, columns A through K.
var Header = []string{
	"Industry",
	"Country",
	"Role",
	"Description",
	"Prediction Date",
	"Confidence",
	"Replacement Tech",
	"Transferable Skills",
	"Future Job",
	"Steps to Start",
	"Last Updated",
}

// Column indexes within a row.
const (
	colIndustry = iota
	colCountry
	colRole
	colDescription
	colPredictionDate
	colConfidence
	colReplacementTech
	colSkills
	colFutureJob
	colSteps
	colLastUpdated
	columnCount
)

// Row is one cached prediction as stored in the sheet.
type Row struct {
	models.Prediction
	LastUpdated string
}

// NewRow stamps p with today's date in UTC.
func NewRow(p models.Prediction, now time.Time) Row {
	return Row{Prediction: p, LastUpdated: now.UTC().Format(DateLayout)}
}

// Values returns the row's cells in column order.
func (r Row) Values() []string {
	return []string{
		r.Industry,
		r.Country,
		r.Role,
		r.JobDescription,
		r.PredictionDate,
		r.Confidence,
		r.ReplacementTechnology,
		r.SkillsText(),
		r.FutureJob,
		r.StepsToStart,
		r.LastUpdated,
	}
}

// DecodeRow maps raw cells back to a Row. The API omits trailing empty
// cells, so short rows decode with empty fields.
func DecodeRow(cells []string) Row {
	cell := func(i int) string {
		if i < len(cells) {
			return cells[i]
		}
		return ""
	}
	return Row{
		Prediction: models.Prediction{
			Industry:              cell(colIndustry),
			Country:               cell(colCountry),
			Role:                  cell(colRole),
			JobDescription:        cell(colDescription),
			PredictionDate:        cell(colPredictionDate),
			Confidence:            cell(colConfidence),
			ReplacementTechnology: cell(colReplacementTech),
			TransferableSkills:    models.SplitSkills(cell(colSkills)),
			FutureJob:             cell(colFutureJob),
			StepsToStart:          cell(colSteps),
		},
		LastUpdated: cell(colLastUpdated),
	}
}
