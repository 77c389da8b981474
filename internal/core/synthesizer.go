package core

import (
	"strings"

	"medassist/pkg"
)

const (
	bullet        = "• "
	maxFollowUps  = 2
	urgencyNotice = "⚠️ Your symptoms may require urgent medical attention.\n"
)

// Synthesize renders the final answer from the assessment and, on the
// facility branch, the lookup result.  It is deterministic and never calls a
// model.
func Synthesize(a *pkg.Assessment, facility *pkg.FacilityResult) string {
	if a == nil || a.Failed() {
		return ApologyMessage
	}

	severity := a.Severity()
	var parts []string

	if severity.Urgent() {
		parts = append(parts, urgencyNotice)
	}

	top := a.TopCondition()
	if top != nil {
		parts = append(parts,
			"Based on your symptoms, one possible condition is **"+top.Name+"**.\n",
			top.Reason+"\n",
		)
	}

	parts = appendList(parts, "\nWhat you should do:", a.NextSteps)

	if severity == pkg.SeverityModerate || severity.Urgent() {
		parts = appendList(parts, "\nSeek immediate care if you notice:", a.RedFlags)
	}

	// no conditions means no medications to list
	if top != nil {
		parts = appendList(parts, "\nMedications that may be considered (if appropriate):", top.PossibleMedications)
	}

	parts = appendList(parts, "\nGeneral precautions:", a.Precautions)

	if severity.Urgent() && facility != nil && !facility.Failed() {
		parts = append(parts,
			"\nNearest recommended hospital:",
			facility.Name,
			facility.Address,
			"Contact: "+facility.Contact,
		)
	}

	if severity == pkg.SeverityLow || severity == pkg.SeverityModerate {
		qs := a.FollowUpQuestions
		if len(qs) > maxFollowUps {
			qs = qs[:maxFollowUps]
		}
		parts = appendList(parts, "\nTo better understand your condition:", qs)
	}

	parts = append(parts, "\n\n"+Disclaimer)
	return strings.Join(parts, "\n")
}

func appendList(parts []string, header string, items []string) []string {
	if len(items) == 0 {
		return parts
	}
	parts = append(parts, header)
	for _, it := range items {
		parts = append(parts, bullet+it)
	}
	return parts
}
