package dtc

import "time"

// Kind classifies where a DTC was read from. Stored, Pending, and
// Permanent are mutually exclusive for a given code at a given time; a
// DTC read as one kind doesn't carry information about the others.
type Kind int

const (
	KindStored Kind = iota
	KindPending
	KindPermanent
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindStored:
		return "Stored"
	case KindPending:
		return "Pending"
	case KindPermanent:
		return "Permanent"
	case KindSnapshot:
		return "Snapshot"
	default:
		return "Unknown"
	}
}

// DTC is a fully decoded trouble code as read from one ECU.
type DTC struct {
	Code   string
	Kind   Kind
	Status Status // meaningful only when HasStatus is true
	HasStatus bool

	FreezeFrame *FreezeFrame // nil unless a freeze frame was captured with this code

	ECUAddress uint32
	HasECU     bool

	FirstOccurrence time.Time
	LastOccurrence  time.Time
	OccurrenceCount int
}

// Severity is the advisory heuristic derived from the code alone; callers with a real
// knowledge base should prefer its verdict.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "Low"
	case SeverityMedium:
		return "Medium"
	case SeverityHigh:
		return "High"
	case SeverityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// SeverityOf derives an advisory severity from the code's system letter
// and numeric range: misfires and fuel trim run High, catalyst/emissions
// Medium, transmission High, chassis safety and airbag codes Critical.
// Everything else is Unknown, which is not the same as Low — it means no
// heuristic fired, not that the condition is benign.
func SeverityOf(code string) Severity {
	if !CodeRegex.MatchString(code) {
		return SeverityUnknown
	}
	system := code[0]
	numeric := code[1:]

	switch {
	case system == 'P' && numeric[0] == '0' && numeric[1] == '3':
		return SeverityHigh // misfire range P03xx
	case system == 'P' && numeric[0] == '0' && numeric[1] == '4' && numeric[2] == '2':
		return SeverityMedium // catalyst/emissions P042x
	case system == 'P' && numeric[0] == '0' && numeric[1] == '7':
		return SeverityHigh // transmission P07xx
	case system == 'P' && numeric[0] == '0' && numeric[1] == '1' && numeric[2] == '7':
		return SeverityHigh // fuel trim P017x
	case system == 'C' && len(numeric) >= 2 && numeric[:2] == "00":
		return SeverityCritical
	case system == 'B' && len(numeric) >= 2 && numeric[:2] == "00":
		return SeverityCritical // airbag B00xx
	default:
		return SeverityUnknown
	}
}

// Info is what a knowledge base returns for a code.
type Info struct {
	Description string
	Causes      []string
	Symptoms    []string
	DiagnosticSteps []string
}

// Describer is the DTC knowledge base external collaborator: a lookup
// function from code to human-facing information. The core must operate
// correctly when it returns ok=false.
type Describer interface {
	Describe(code string) (Info, bool)
}

// DefaultDescriber is the core's built-in fallback: when the real
// knowledge base has nothing, it derives a minimal description from the
// code's system letter and subsystem digit so callers never see an empty
// description.
type DefaultDescriber struct{}

var systemNames = map[byte]string{
	'P': "Powertrain",
	'C': "Chassis",
	'B': "Body",
	'U': "Network",
}

var subsystemNames = map[byte]string{
	'0': "Generic (SAE)",
	'1': "Generic (SAE)",
	'2': "Manufacturer-specific",
	'3': "Manufacturer-specific",
}

func (DefaultDescriber) Describe(code string) (Info, bool) {
	if !CodeRegex.MatchString(code) {
		return Info{}, false
	}
	system := systemNames[code[0]]
	subsystem := subsystemNames[code[1]]
	return Info{Description: system + " - " + subsystem + " fault (" + code + ")"}, true
}
