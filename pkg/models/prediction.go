package models

import "strings"

// JobInput is the industry/country/role triple a user submits.
type JobInput struct {
	Industry string `json:"industry"`
	Country  string `json:"country"`
	Role     string `json:"role"`
}

// Prediction is one job-automation assessment.
// TransferableSkills is a list here; it is joined into a single
// comma-separated string only where it crosses a wire or store boundary.
type Prediction struct {
	Industry              string   `json:"industry"`
	Country               string   `json:"country"`
	Role                  string   `json:"role"`
	JobDescription        string   `json:"job_description"`
	PredictionDate        string   `json:"prediction_date"`
	Confidence            string   `json:"confidence"`
	ReplacementTechnology string   `json:"replacement_technology"`
	TransferableSkills    []string `json:"transferable_skills"`
	FutureJob             string   `json:"future_job"`
	StepsToStart          string   `json:"steps_to_start"`
}

// SkillsText returns the transferable skills in their stored form.
func (p Prediction) SkillsText() string {
	return JoinSkills(p.TransferableSkills)
}

// SplitSkills splits a comma-separated skills string, trimming each segment.
// Empty segments are dropped. Returns an empty (non-nil) slice for empty input.
func SplitSkills(s string) []string {
	skills := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			skills = append(skills, part)
		}
	}
	return skills
}

// JoinSkills is the inverse of SplitSkills.
func JoinSkills(skills []string) string {
	return strings.Join(skills, ", ")
}
