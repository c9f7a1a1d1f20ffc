package detect

import (
	"strings"

	"obdcore.dev/pkg/protocoltype"
)

// canOnly is the CAN-only subset used for 2008+ model years, where every
// vehicle sold in the US is required to support ISO 15765-4.
var canOnly = []protocoltype.Type{
	protocoltype.ISO157654CAN11Bit500K, protocoltype.ISO157654CAN29Bit500K,
	protocoltype.ISO157654CAN11Bit250K, protocoltype.ISO157654CAN29Bit250K,
}

func defaultOrder() []protocoltype.Type {
	return []protocoltype.Type{
		protocoltype.ISO157654CAN11Bit500K, protocoltype.ISO157654CAN29Bit500K,
		protocoltype.ISO157654CAN11Bit250K, protocoltype.ISO157654CAN29Bit250K,
		protocoltype.ISO142304KWPFast, protocoltype.ISO91412,
		protocoltype.SAEJ1850VPW, protocoltype.SAEJ1850PWM,
	}
}

func contains(list []protocoltype.Type, t protocoltype.Type) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}

func moveToFront(order []protocoltype.Type, t protocoltype.Type) []protocoltype.Type {
	if !contains(order, t) {
		return order
	}
	out := make([]protocoltype.Type, 0, len(order))
	out = append(out, t)
	for _, v := range order {
		if v != t {
			out = append(out, v)
		}
	}
	return out
}

// insertBefore moves `mover` immediately ahead of `anchor`, leaving the
// rest of the order untouched. Used for the VPW/PWM/KWP/ISO9141 make
// hints, which should jump ahead of the non-CAN tail without disturbing
// the CAN-first default.
func insertBefore(order []protocoltype.Type, mover, anchor protocoltype.Type) []protocoltype.Type {
	if !contains(order, mover) || !contains(order, anchor) {
		return order
	}
	out := make([]protocoltype.Type, 0, len(order))
	for _, v := range order {
		if v == mover {
			continue
		}
		if v == anchor {
			out = append(out, mover)
		}
		out = append(out, v)
	}
	return out
}

// BuildCandidateOrder applies the hint-based reordering rules to the
// default candidate order.
func BuildCandidateOrder(hints Hints) []protocoltype.Type {
	order := defaultOrder()

	if hints.ModelYear >= 2008 {
		order = canOnly
	}

	make := strings.ToLower(strings.TrimSpace(hints.Make))
	switch {
	case gmMakes[make]:
		order = insertBefore(order, protocoltype.SAEJ1850VPW, protocoltype.ISO142304KWPFast)
	case fordMakes[make]:
		order = insertBefore(order, protocoltype.SAEJ1850PWM, protocoltype.ISO142304KWPFast)
	case europeanMakes[make]:
		order = insertBefore(order, protocoltype.ISO142304KWPFast, protocoltype.SAEJ1850VPW)
	case asianMakes[make]:
		order = insertBefore(order, protocoltype.ISO91412, protocoltype.ISO142304KWPFast)
	case heavyDutyMakes[make]:
		order = moveToFront(order, protocoltype.ISO157654CAN29Bit500K)
	}

	if hints.HasPreferredProtocol && !hints.SkipSet[hints.PreferredProtocol] {
		order = moveToFront(order, hints.PreferredProtocol)
	}

	if len(hints.SkipSet) > 0 {
		filtered := order[:0:0]
		for _, t := range order {
			if !hints.SkipSet[t] {
				filtered = append(filtered, t)
			}
		}
		order = filtered
	}

	if hints.EnableJ1939 {
		order = append(order, protocoltype.J1939)
	}

	return order
}
