// Package export renders predictions as the downloadable CSV file and reads
// such files back.
package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kiranshivaraju/futurework/pkg/models"
)

// Filename is the suggested name of the download.
const Filename = "job_predictions.csv"

// ContentType is the MIME type of an encoded file.
const ContentType = "text/csv;charset=utf-8"

// Header is the first line of the file, written unquoted.
var Header = []string{
	"Industry",
	"Country",
	"Role",
	"One-Sentence Job Description",
	"Predicted Replacement (Year-Month)",
	"Confidence",
	"What It Will Be Replaced With",
	"Transferable Skills",
	"Job to Aim For",
	"Steps to Start",
}

var ErrMalformed = errors.New("malformed prediction csv")

// Encode renders preds. Every data field is a JSON string literal, so commas,
// quotes and newlines inside values survive. Lines are joined by "\n" with no
// trailing newline.
func Encode(preds []models.Prediction) (string, error) {
	lines := make([]string, 0, len(preds)+1)
	lines = append(lines, strings.Join(Header, ","))
	for _, p := range preds {
		fields := fieldsOf(p)
		quoted := make([]string, len(fields))
		for i, f := range fields {
			q, err := quote(f)
			if err != nil {
				return "", err
			}
			quoted[i] = q
		}
		lines = append(lines, strings.Join(quoted, ","))
	}
	return strings.Join(lines, "\n"), nil
}

// WriteCSV writes Encode(preds) to w.
func WriteCSV(w io.Writer, preds []models.Prediction) error {
	s, err := Encode(preds)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s)
	return err
}

// Decode parses a file produced by Encode.
func Decode(data string) ([]models.Prediction, error) {
	lines := strings.Split(data, "\n")
	if lines[0] != strings.Join(Header, ",") {
		return nil, fmt.Errorf("%w: unexpected header", ErrMalformed)
	}

	preds := make([]models.Prediction, 0, len(lines)-1)
	for n, line := range lines[1:] {
		fields, err := splitQuoted(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+2, err)
		}
		if len(fields) != len(Header) {
			return nil, fmt.Errorf("%w: line %d has %d fields", ErrMalformed, n+2, len(fields))
		}
		preds = append(preds, models.Prediction{
			Industry:              fields[0],
			Country:               fields[1],
			Role:                  fields[2],
			JobDescription:        fields[3],
			PredictionDate:        fields[4],
			Confidence:            fields[5],
			ReplacementTechnology: fields[6],
			TransferableSkills:    models.SplitSkills(fields[7]),
			FutureJob:             fields[8],
			StepsToStart:          fields[9],
		})
	}
	return preds, nil
}

func fieldsOf(p models.Prediction) []string {
	return []string{
		p.Industry,
		p.Country,
		p.Role,
		p.JobDescription,
		p.PredictionDate,
		p.Confidence,
		p.ReplacementTechnology,
		p.SkillsText(),
		p.FutureJob,
		p.StepsToStart,
	}
}

// quote returns s as a JSON string literal without HTML escaping.
func quote(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// splitQuoted reads a comma-separated sequence of JSON string literals.
func splitQuoted(line string) ([]string, error) {
	var fields []string
	i := 0
	for {
		if i >= len(line) || line[i] != '"' {
			return nil, fmt.Errorf("%w: expected quoted field at offset %d", ErrMalformed, i)
		}
		end := i + 1
		for ; end < len(line); end++ {
			if line[end] == '\\' {
				end++
				continue
			}
			if line[end] == '"' {
				break
			}
		}
		if end >= len(line) {
			return nil, fmt.Errorf("%w: unterminated field at offset %d", ErrMalformed, i)
		}
		var s string
		if err := json.Unmarshal([]byte(line[i:end+1]), &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		fields = append(fields, s)

		i = end + 1
		if i == len(line) {
			return fields, nil
		}
		if line[i] != ',' {
			return nil, fmt.Errorf("%w: expected comma at offset %d", ErrMalformed, i)
		}
		i++
	}
}
