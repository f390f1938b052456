package coordinator

import "strings"

// Family is a group of device models that share hardware features
type Family int

const (
	FamilyAmcrestDoorbell Family = iota
	FamilyDoorbell
	FamilyFloodLight
	FamilySiren
	FamilySecurityLight
	FamilyFloodLightMode
	FamilyAmcrestSmartMotion
	// models whose lighting config is not an infrared light
	FamilyNoInfrared
)

var familyNames = map[Family]string{
	FamilyAmcrestDoorbell:    "amcrest-doorbell",
	FamilyDoorbell:           "doorbell",
	FamilyFloodLight:         "flood-light",
	FamilySiren:              "siren",
	FamilySecurityLight:      "security-light",
	FamilyFloodLightMode:     "flood-light-mode",
	FamilyAmcrestSmartMotion: "amcrest-smart-motion",
	FamilyNoInfrared:         "no-infrared",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return "unknown"
}

type matcher func(model string) bool

// Matching is case-insensitive unless the matcher name says otherwise
func hasPrefix(p string) matcher {
	p = strings.ToUpper(p)
	return func(model string) bool { return strings.HasPrefix(strings.ToUpper(model), p) }
}

func contains(s string) matcher {
	s = strings.ToUpper(s)
	return func(model string) bool { return strings.Contains(strings.ToUpper(model), s) }
}

func hasPrefixExact(p string) matcher {
	return func(model string) bool { return strings.HasPrefix(model, p) }
}

func containsExact(s string) matcher {
	return func(model string) bool { return strings.Contains(model, s) }
}

func equalsExact(s string) matcher {
	return func(model string) bool { return model == s }
}

func allOf(ms ...matcher) matcher {
	return func(model string) bool {
		for _, m := range ms {
			if !m(model) {
				return false
			}
		}
		return true
	}
}

func anyOf(ms ...matcher) matcher {
	return func(model string) bool {
		for _, m := range ms {
			if m(model) {
				return true
			}
		}
		return false
	}
}

func not(m matcher) matcher {
	return func(model string) bool { return !m(model) }
}

var amcrestDoorbell = anyOf(hasPrefix("AD"), hasPrefix("DB6"))

// modelRules maps each family to the model patterns that belong to it.  A
// model is in a family when any of its matchers accepts it.
var modelRules = map[Family][]matcher{
	FamilyAmcrestDoorbell: {amcrestDoorbell},
	FamilyDoorbell: {
		hasPrefix("VTO"),
		hasPrefix("DH-VTO"),
		allOf(hasPrefix("DHI"), not(contains("NVR"))),
		amcrestDoorbell,
	},
	FamilyFloodLight: {
		hasPrefix("ASH26"),
		contains("L26N"),
		contains("L46N"),
		hasPrefix("V261LC"),
		hasPrefix("W452ASD"),
	},
	FamilySiren: {
		contains("-AS-PV"),
		contains("L46N"),
		hasPrefix("W452ASD"),
	},
	FamilySecurityLight: {
		containsExact("-AS-PV"),
		equalsExact("AD410"),
		hasPrefixExact("DB61i"),
		hasPrefixExact("IP8M-2796E"),
	},
	FamilyFloodLightMode: {
		hasPrefix("W452ASD"),
		contains("L46N"),
	},
	FamilyAmcrestSmartMotion: {
		equalsExact("AD410"),
		hasPrefixExact("DB61i"),
	},
	FamilyNoInfrared: {
		contains("-AS-PV"),
		contains("-AS-NI"),
		contains("-LED-S2"),
	},
}

// Classification is the set of families a model belongs to
type Classification map[Family]bool

// Classify evaluates every rule against model
func Classify(model string) Classification {
	c := make(Classification)
	for family, matchers := range modelRules {
		if anyOf(matchers...)(model) {
			c[family] = true
		}
	}
	return c
}

func (c Classification) Is(f Family) bool {
	return c[f]
}

// Families lists the families in declaration order
func (c Classification) Families() []string {
	var names []string
	for f := FamilyAmcrestDoorbell; f <= FamilyNoInfrared; f++ {
		if c[f] {
			names = append(names, f.String())
		}
	}
	return names
}
