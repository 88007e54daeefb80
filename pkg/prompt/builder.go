package prompt

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kiranshivaraju/futurework/pkg/models"
)

// BulkRoleCount is how many at-risk roles a bulk prompt asks for.
const BulkRoleCount = 5

// Builder constructs prompt strings for the prediction model.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type Builder struct{}

// BuildSingle returns the prompt that assesses one role in one market.
func (b Builder) BuildSingle(in models.JobInput) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following job role specifically:\n")
	fmt.Fprintf(&sb, "Industry: %s\n", b.clean(in.Industry))
	fmt.Fprintf(&sb, "Country: %s\n", b.clean(in.Country))
	fmt.Fprintf(&sb, "Role: %s\n\n", b.clean(in.Role))
	sb.WriteString("Provide a detailed prediction about when this specific role might be significantly impacted ")
	sb.WriteString("or replaced by AI/automation in this specific market.\n")
	sb.WriteString("Be realistic based on current technological trends.")
	return sb.String()
}

// BuildBulk returns the prompt that names and assesses the roles at highest
// automation risk in an industry.
func (b Builder) BuildBulk(industry string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Identify %d common job roles in the %q industry that are at high risk of automation ",
		BulkRoleCount, b.clean(industry))
	sb.WriteString("or AI displacement in the next 10 years.\n")
	sb.WriteString("Provide predictions for each. Assumed context is global or major tech hubs if unspecified.")
	return sb.String()
}

// clean trims user input, collapses control characters and whitespace runs
// into single spaces, and swaps double quotes for single quotes so input
// cannot break out of the prompt's quoting.
func (b Builder) clean(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '"':
			return '\''
		case unicode.IsControl(r):
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
