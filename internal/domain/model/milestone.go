package model

// Category groups milestones for aggregation.
type Category string

const (
	CategoryCapability Category = "capability"
	CategoryAgentic    Category = "agentic"
	CategoryInput      Category = "input"
	CategorySecurity   Category = "security"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryCapability, CategoryAgentic, CategoryInput, CategorySecurity}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Direction tells whether progress means the observed value rising or falling.
type Direction string

const (
	Increasing Direction = "increasing"
	Decreasing Direction = "decreasing"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool { return d == Increasing || d == Decreasing }

// Milestone is a measurable progress marker ("signpost").
type Milestone struct {
	Code        string    `db:"code" json:"code" yaml:"code"`
	Name        string    `db:"name" json:"name" yaml:"name"`
	Description string    `db:"description" json:"description,omitempty" yaml:"description"`
	Category    Category  `db:"category" json:"category" yaml:"category"`
	Unit        string    `db:"unit" json:"unit,omitempty" yaml:"unit"`
	Baseline    float64   `db:"baseline" json:"baseline" yaml:"baseline"`
	Target      float64   `db:"target" json:"target" yaml:"target"`
	Direction   Direction `db:"direction" json:"direction" yaml:"direction"`
	Primary     bool      `db:"is_primary" json:"is_primary" yaml:"primary"`
	MonitorOnly bool      `db:"monitor_only" json:"monitor_only" yaml:"monitor_only"`
}

// Weight is the milestone's weight inside its category.
func (m *Milestone) Weight() float64 {
	if m.Primary {
		return 2
	}
	return 1
}
