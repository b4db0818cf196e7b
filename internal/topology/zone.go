// Package topology layers governance zones and message gating on top of
// the protocol engine. A node's running governance cost classifies it into
// a zone; zone escalation is monotonic until the node is reset.
package topology

// Zone is a governance classification derived from engine cost.
type Zone int

const (
	ZoneAutonomous Zone = iota
	ZoneWarning
	ZoneGovernance
)

// Zone thresholds over governance cost. Cost at or below AutonomousMax is
// autonomous, at or below WarningMax is warning, above is governance.
const (
	AutonomousMax = 0.5
	WarningMax    = 0.6
)

// ZoneFor classifies a governance cost value.
func ZoneFor(cost float64) Zone {
	switch {
	case cost <= AutonomousMax:
		return ZoneAutonomous
	case cost <= WarningMax:
		return ZoneWarning
	default:
		return ZoneGovernance
	}
}

func (z Zone) String() string {
	switch z {
	case ZoneAutonomous:
		return "autonomous"
	case ZoneWarning:
		return "warning"
	case ZoneGovernance:
		return "governance"
	default:
		return "unknown"
	}
}
