package pkg

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role describes who authored a turn.  Only two roles are stored: the user
// asking the question and the assistant whose content is the serialised
// assessment.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single stored message in a session.  Turns are immutable once
// written and are always read back in creation order.
type Turn struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is the rolling summary of older user turns.  There is at most one
// per session and it is overwritten rather than appended to.
type Summary struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Severity is the ordinal urgency classification of an assessment.
type Severity string

const (
	SeverityLow       Severity = "low"
	SeverityModerate  Severity = "moderate"
	SeverityHigh      Severity = "high"
	SeverityEmergency Severity = "emergency"
)

// StringList is a list of strings that also accepts a single string, null
// or a list of scalars when decoded.  Models drift between these shapes.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*l = nil
	case string:
		if strings.TrimSpace(x) == "" {
			*l = nil
		} else {
			*l = StringList{x}
		}
	case []any:
		out := make(StringList, 0, len(x))
		for _, it := range x {
			switch it := it.(type) {
			case nil:
			case string:
				out = append(out, it)
			case map[string]any, []any:
				// nested structures carry no renderable text
			default:
				out = append(out, fmt.Sprint(it))
			}
		}
		*l = out
	default:
		*l = nil
	}
	return nil
}

// Urgent reports whether the severity is high or emergency.
func (s Severity) Urgent() bool {
	return s == SeverityHigh || s == SeverityEmergency
}

// Condition is one candidate diagnosis in an assessment.
type Condition struct {
	Name                string     `json:"name"`
	Likelihood          string     `json:"likelihood"`
	Reason              string     `json:"reason"`
	RecommendedAction   string     `json:"recommended_action"`
	PossibleMedications StringList `json:"possible_medications"`
}

// Assessment is the structured judgment produced by the reasoning model for
// one turn.  PossibleConditions is ordered most likely first.  When the model
// call or decoding fails, Error is set and RawResponse may carry the literal
// model output.
type Assessment struct {
	SeverityLevel          Severity    `json:"severity_level,omitempty"`
	PossibleConditions     []Condition `json:"possible_conditions,omitempty"`
	Precautions            StringList  `json:"precautions,omitempty"`
	NextSteps              StringList  `json:"next_steps,omitempty"`
	RecommendedSpecialists StringList  `json:"recommended_specialists,omitempty"`
	RedFlags               StringList  `json:"red_flags,omitempty"`
	FollowUpQuestions      StringList  `json:"follow_up_questions,omitempty"`
	Disclaimer             string      `json:"disclaimer,omitempty"`

	Error       string `json:"error,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
}

// Failed reports whether the assessment is error-tagged.
func (a *Assessment) Failed() bool { return a.Error != "" }

// Severity returns the lower-cased severity level, defaulting to low when the
// model left it blank.
func (a *Assessment) Severity() Severity {
	s := Severity(strings.ToLower(strings.TrimSpace(string(a.SeverityLevel))))
	if s == "" {
		return SeverityLow
	}
	return s
}

// TopCondition returns the highest ranked condition, or nil when there is none.
func (a *Assessment) TopCondition() *Condition {
	if len(a.PossibleConditions) == 0 {
		return nil
	}
	return &a.PossibleConditions[0]
}

// JSON serialises the assessment the way it is stored as an assistant turn.
func (a *Assessment) JSON() string {
	b, err := json.Marshal(a)
	if err != nil {
		return `{"error":"unserialisable assessment"}`
	}
	return string(b)
}

// FacilityResult is the answer of the facility lookup tool.  An error-tagged
// result only carries Error.
type FacilityResult struct {
	Name               string   `json:"name,omitempty"`
	Address            string   `json:"address,omitempty"`
	Contact            string   `json:"contact,omitempty"`
	Specialties        []string `json:"specialties,omitempty"`
	EmergencyAvailable bool     `json:"emergency_available,omitempty"`

	Error string `json:"error,omitempty"`
}

// Failed reports whether the lookup returned an error instead of a facility.
func (f *FacilityResult) Failed() bool { return f.Error != "" }

// DrugRecord is the free-form record returned by the drug information tool.
type DrugRecord map[string]any

// ChatRequest is the body accepted by the chat endpoint.
type ChatRequest struct {
	SessionID string  `json:"session_id"`
	Message   string  `json:"message"`
	City      *string `json:"city,omitempty"`
}
