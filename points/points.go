// Package points parses, classifies and validates the names of points on the
// robot's operating floor.
//
// Naming grammar:
//
//	<digits>_load[_docking]        shelf point, floor taken from the digits
//	pick-up..._load[_docking]      pickup point
//	drop-off..._load[_docking]     dropoff point
//	charger...                     charger point
//
// Anything else is unknown.
package points

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

type Category string

const (
	CategoryShelfLoad      Category = "shelf_load"
	CategoryShelfDocking   Category = "shelf_docking"
	CategoryPickup         Category = "pickup"
	CategoryPickupDocking  Category = "pickup_docking"
	CategoryDropoff        Category = "dropoff"
	CategoryDropoffDocking Category = "dropoff_docking"
	CategoryCharger        Category = "charger"
	CategoryUnknown        Category = "unknown"
)

const (
	loadSuffix    = "_load"
	dockingSuffix = "_docking"
)

var (
	shelfPattern   = regexp.MustCompile(`^(\d+)_load(_docking)?$`)
	pickupPattern  = regexp.MustCompile(`^pick-up.*_load(_docking)?$`)
	dropoffPattern = regexp.MustCompile(`^drop-off.*_load(_docking)?$`)
)

// Point is a named location with its pose on the floor map.
type Point struct {
	ID       string   `json:"id"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Theta    float64  `json:"theta"`
	Category Category `json:"category"`
}

// Classify returns the category of a point id.
func Classify(id string) Category {
	switch {
	case shelfPattern.MatchString(id):
		if strings.HasSuffix(id, dockingSuffix) {
			return CategoryShelfDocking
		}
		return CategoryShelfLoad
	case pickupPattern.MatchString(id):
		if strings.HasSuffix(id, dockingSuffix) {
			return CategoryPickupDocking
		}
		return CategoryPickup
	case dropoffPattern.MatchString(id):
		if strings.HasSuffix(id, dockingSuffix) {
			return CategoryDropoffDocking
		}
		return CategoryDropoff
	case strings.HasPrefix(id, "charger"):
		return CategoryCharger
	}
	return CategoryUnknown
}

// IsDocking reports whether the category is a docking standoff.
func (c Category) IsDocking() bool {
	return c == CategoryShelfDocking || c == CategoryPickupDocking || c == CategoryDropoffDocking
}

// IsLoad reports whether the category is a point where a rack is engaged.
func (c Category) IsLoad() bool {
	return c == CategoryShelfLoad || c == CategoryPickup || c == CategoryDropoff
}

// IsShelf reports whether the category belongs to a numbered shelf.
func (c Category) IsShelf() bool {
	return c == CategoryShelfLoad || c == CategoryShelfDocking
}

// Floor extracts the floor number from a shelf point id. The leading digit
// group encodes floor and slot: the last two digits are the slot, everything
// before them the floor ("104_load" is floor 1, "1203_load" floor 12).
// One- and two-digit groups carry no slot and use their first digit.
func Floor(id string) (int, bool) {
	m := shelfPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	digits := m[1]
	if len(digits) >= 3 {
		digits = digits[:len(digits)-2]
	} else {
		digits = digits[:1]
	}
	floor, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return floor, true
}

// ToDocking returns the docking variant of a load point id. Ids that are
// already docking ids, and ids without a load suffix, are returned unchanged.
func ToDocking(id string) string {
	if strings.HasSuffix(id, dockingSuffix) {
		return id
	}
	if strings.HasSuffix(id, loadSuffix) {
		return id + dockingSuffix
	}
	return id
}

// ToBase strips the docking suffix, returning the load point id.
func ToBase(id string) string {
	return strings.TrimSuffix(id, dockingSuffix)
}

// Validate checks an id against the naming rules and returns every rule it
// violates. An empty result means the id is compliant.
func Validate(id string) []string {
	var violations []string
	if id == "" {
		return []string{"point id is empty"}
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		violations = append(violations, "point id contains whitespace")
	}
	if strings.IndexFunc(id, unicode.IsUpper) >= 0 {
		violations = append(violations, "point id contains uppercase characters")
	}
	if strings.IndexFunc(id, invalidRune) >= 0 {
		violations = append(violations, "point id contains characters outside [a-z0-9_-]")
	}
	if strings.Contains(id, dockingSuffix+dockingSuffix) {
		violations = append(violations, "point id repeats the _docking suffix")
	}
	if strings.Contains(id, dockingSuffix) && !strings.HasSuffix(id, loadSuffix+dockingSuffix) && !strings.HasPrefix(id, "charger") {
		violations = append(violations, "docking point id must end in _load_docking")
	}
	if Classify(id) == CategoryUnknown {
		violations = append(violations, "point id does not match any known point pattern")
	}
	return violations
}

func invalidRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		return false
	case unicode.IsUpper(r) || unicode.IsSpace(r):
		// reported by their own rules
		return false
	}
	return true
}

// GroupByFloor groups shelf point ids by floor. Ids without a floor are
// returned separately in input order.
func GroupByFloor(ids []string) (map[int][]string, []string) {
	groups := make(map[int][]string)
	var unassigned []string
	for _, id := range ids {
		floor, ok := Floor(id)
		if !ok {
			unassigned = append(unassigned, id)
			continue
		}
		groups[floor] = append(groups[floor], id)
	}
	for floor := range groups {
		sort.Strings(groups[floor])
	}
	return groups, unassigned
}
