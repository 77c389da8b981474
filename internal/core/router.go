package core

import (
	"strings"

	"medassist/pkg"
)

// Stage is a state of the per-turn pipeline.
type Stage string

const (
	StageReasoning      Stage = "REASONING"
	StageRouting        Stage = "ROUTING"
	StageClarification  Stage = "CLARIFICATION"
	StageFacilityLookup Stage = "FACILITY_LOOKUP"
	StageSynthesis      Stage = "SYNTHESIS"
	StageDone           Stage = "DONE"
)

// facilityPhrases mark a request for somewhere to seek care.
var facilityPhrases = []string{
	"hospital",
	"clinic",
	"medical facility",
	"where should i go",
	"which hospital",
	"recommend hospital",
	"which doctor",
	"who should i consult",
	"which clinic",
	"where can i go",
	"nearby hospital",
	"doctor",
}

// AsksForFacility reports whether message contains a facility phrase.
func AsksForFacility(message string) bool {
	m := strings.ToLower(message)
	for _, p := range facilityPhrases {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}

// Route picks the branch after reasoning.  An explicit facility request wins;
// otherwise only urgent severities need a facility.  Either way the city must
// be known first.
func Route(message string, severity pkg.Severity, cityKnown bool) Stage {
	if AsksForFacility(message) || severity.Urgent() {
		if !cityKnown {
			return StageClarification
		}
		return StageFacilityLookup
	}
	return StageSynthesis
}
