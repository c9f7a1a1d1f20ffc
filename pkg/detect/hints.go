package detect

import "obdcore.dev/pkg/protocoltype"

// Make sets used to refine the candidate order. These are small, fixed
// lookup tables rather than a live vehicle database — callers needing
// richer make/model knowledge layer it on top via Hints.PreferredProtocol.
var (
	gmMakes = map[string]bool{"chevrolet": true, "gmc": true, "buick": true, "cadillac": true}
	fordMakes = map[string]bool{"ford": true, "lincoln": true, "mercury": true}
	europeanMakes = map[string]bool{
		"bmw": true, "mercedes-benz": true, "volkswagen": true, "audi": true,
		"porsche": true, "volvo": true, "fiat": true, "peugeot": true,
	}
	asianMakes = map[string]bool{
		"toyota": true, "honda": true, "nissan": true, "mazda": true,
		"subaru": true, "mitsubishi": true, "hyundai": true, "kia": true,
	}
	heavyDutyMakes = map[string]bool{"freightliner": true, "kenworth": true, "peterbilt": true, "international": true}
)

// Hints refines the detector's default candidate order using whatever the
// caller already knows about the vehicle.
type Hints struct {
	ModelYear int    // 0 means unknown
	Make      string // case-insensitive; matched against the sets above

	PreferredProtocol   protocoltype.Type
	HasPreferredProtocol bool

	SkipSet map[protocoltype.Type]bool

	// EnableJ1939 opts the detector into probing J1939 as a final
	// candidate after the default candidate sweep, since it's not in
	// any vehicle's default order.
	EnableJ1939 bool
}
