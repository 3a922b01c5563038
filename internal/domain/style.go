package domain

// Style signal bounds and defaults. Signals missing from storage fall back
// to the neutral default rather than zero.
const (
	styleSignalDefault = 0.5

	CadenceMaxSeconds = 86400
	cadenceDefault    = 300

	MessageLengthMax     = 4096
	messageLengthDefault = 80
)

// StyleProfile carries the numeric communication-style signals computed for
// a target. All ratio signals live in [0, 1].
type StyleProfile struct {
	Humor           float64 `json:"humor"`
	Formality       float64 `json:"formality"`
	Empathy         float64 `json:"empathy"`
	QuestionRate    float64 `json:"question_rate"`
	Engagement      float64 `json:"engagement"`
	CadenceSeconds   float64 `json:"cadence_seconds"`
	AvgMessageRunes  float64 `json:"avg_message_runes"`
	PreferredOpening string  `json:"preferred_opening,omitempty"`
}

// DefaultStyleProfile returns the profile used when no signals have been
// computed for a target yet.
func DefaultStyleProfile() StyleProfile {
	return StyleProfile{
		Humor:           styleSignalDefault,
		Formality:       styleSignalDefault,
		Empathy:         styleSignalDefault,
		QuestionRate:    styleSignalDefault,
		Engagement:      styleSignalDefault,
		CadenceSeconds:  cadenceDefault,
		AvgMessageRunes: messageLengthDefault,
	}
}

// Normalize clamps every signal to its valid range and substitutes defaults
// for unset values.
func (p StyleProfile) Normalize() StyleProfile {
	p.Humor = clampSignal(p.Humor)
	p.Formality = clampSignal(p.Formality)
	p.Empathy = clampSignal(p.Empathy)
	p.QuestionRate = clampSignal(p.QuestionRate)
	p.Engagement = clampSignal(p.Engagement)

	if p.CadenceSeconds <= 0 {
		p.CadenceSeconds = cadenceDefault
	} else if p.CadenceSeconds > CadenceMaxSeconds {
		p.CadenceSeconds = CadenceMaxSeconds
	}

	if p.AvgMessageRunes < 1 {
		p.AvgMessageRunes = messageLengthDefault
	} else if p.AvgMessageRunes > MessageLengthMax {
		p.AvgMessageRunes = MessageLengthMax
	}

	return p
}

func clampSignal(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
