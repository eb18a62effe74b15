package motor

import (
	"fmt"
	"sort"
)

// Entry is one catalog motor: a display name plus its parameter set.
type Entry struct {
	Name        string
	Description string
	Params      Params
}

// Catalog maps motor ids to predefined parameter sets. The 2 kW 48 V machine
// is the default; the others bracket it for small and large rigs.
var Catalog = map[string]Entry{
	"bldc_2kw_48v": {
		Name:        "BLDC 2kW 48V",
		Description: "standard 2 kW brushless DC motor",
		Params: Params{
			Resistance:      0.08,
			Inductance:      0.0015,
			Kt:              0.169,
			Ke:              0.169,
			PolePairs:       4,
			Inertia:         0.001,
			Damping:         0.001,
			StaticFriction:  0.02,
			RatedVoltage:    48.0,
			RatedCurrent:    45.0,
			MaxCurrent:      67.5,
			RatedSpeedRPM:   3000,
			MaxSpeedRPM:     6000,
			RatedTorque:     7.6,
			MaxTorque:       15.0,
			AmbientTemp:     25.0,
			MaxTemp:         150.0,
			ThermalRes:      2.0,
			ThermalCapacity: 100.0,
		},
	},
	"bldc_500w_24v": {
		Name:        "BLDC 500W 24V",
		Description: "small hub motor for light-duty rigs",
		Params: Params{
			Resistance:      0.25,
			Inductance:      0.0008,
			Kt:              0.078,
			Ke:              0.078,
			PolePairs:       7,
			Inertia:         0.0002,
			Damping:         0.0004,
			StaticFriction:  0.008,
			RatedVoltage:    24.0,
			RatedCurrent:    22.0,
			MaxCurrent:      33.0,
			RatedSpeedRPM:   2500,
			MaxSpeedRPM:     4500,
			RatedTorque:     1.9,
			MaxTorque:       4.2,
			AmbientTemp:     25.0,
			MaxTemp:         130.0,
			ThermalRes:      3.5,
			ThermalCapacity: 40.0,
		},
	},
	"bldc_10kw_96v": {
		Name:        "BLDC 10kW 96V",
		Description: "traction-class motor for dynamometer benches",
		Params: Params{
			Resistance:      0.02,
			Inductance:      0.0009,
			Kt:              0.31,
			Ke:              0.31,
			PolePairs:       5,
			Inertia:         0.012,
			Damping:         0.004,
			StaticFriction:  0.09,
			RatedVoltage:    96.0,
			RatedCurrent:    120.0,
			MaxCurrent:      180.0,
			RatedSpeedRPM:   4000,
			MaxSpeedRPM:     7000,
			RatedTorque:     24.0,
			MaxTorque:       55.0,
			AmbientTemp:     25.0,
			MaxTemp:         160.0,
			ThermalRes:      0.8,
			ThermalCapacity: 900.0,
		},
	},
}

// DefaultMotorID is used when no motor is selected.
const DefaultMotorID = "bldc_2kw_48v"

// FromCatalog builds a motor by catalog id.
func FromCatalog(id string) (*Motor, error) {
	entry, ok := Catalog[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMotor, id)
	}
	return New(entry.Params)
}

// CatalogIDs returns the known motor ids in stable order.
func CatalogIDs() []string {
	ids := make([]string, 0, len(Catalog))
	for id := range Catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
