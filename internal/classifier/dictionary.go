package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joshsymonds/advisor/pkg/pathutil"
)

// Terms is the tunable keyword list, one regular expression per entry.
// Patterns are matched case-insensitively.
type Terms struct {
	Version     string   `yaml:"version"`
	Reservation []string `yaml:"reservation"`
	SavingsPlan []string `yaml:"savings_plan"`
	OneYear     []string `yaml:"one_year"`
	ThreeYear   []string `yaml:"three_year"`
}

// DefaultTerms returns the built-in keyword list.
func DefaultTerms() Terms {
	return Terms{
		Reservation: []string{
			`\breserved\s+(vm\s+)?instances?\b`,
			`\breservations?\b`,
			`\breserved\s+(capacity|virtual\s+machines?)\b`,
		},
		SavingsPlan: []string{
			`\bsavings?\s+plans?\b`,
		},
		OneYear: []string{
			`\b(1|one)[\s-]*(years?|yrs?)\b`,
			`\b12[\s-]*months?\b`,
			`\bp1y\b`,
		},
		ThreeYear: []string{
			`\b(3|three)[\s-]*(years?|yrs?)\b`,
			`\b36[\s-]*months?\b`,
			`\bp3y\b`,
		},
	}
}

// Dictionary is a compiled keyword list.
type Dictionary struct {
	version     string
	reservation []*regexp.Regexp
	savingsPlan []*regexp.Regexp
	oneYear     []*regexp.Regexp
	threeYear   []*regexp.Regexp
}

// NewDictionary compiles terms. When terms carry no version one is derived
// from the patterns, so cached classifications never outlive a keyword change.
func NewDictionary(terms Terms) (*Dictionary, error) {
	d := &Dictionary{version: terms.Version}
	if d.version == "" {
		d.version = fingerprint(terms)
	}

	groups := []struct {
		dst  *[]*regexp.Regexp
		name string
		src  []string
	}{
		{&d.reservation, "reservation", terms.Reservation},
		{&d.savingsPlan, "savings_plan", terms.SavingsPlan},
		{&d.oneYear, "one_year", terms.OneYear},
		{&d.threeYear, "three_year", terms.ThreeYear},
	}
	for _, g := range groups {
		if len(g.src) == 0 {
			return nil, fmt.Errorf("dictionary group %s is empty", g.name)
		}
		for _, pattern := range g.src {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("compiling %s pattern %q: %w", g.name, pattern, err)
			}
			*g.dst = append(*g.dst, re)
		}
	}
	return d, nil
}

// DefaultDictionary returns the compiled built-in keyword list.
func DefaultDictionary() *Dictionary {
	d, err := NewDictionary(DefaultTerms())
	if err != nil {
		panic(err)
	}
	return d
}

// LoadDictionary reads a YAML keyword file.
func LoadDictionary(path string) (*Dictionary, error) {
	validPath, err := pathutil.ValidateConfigPath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid dictionary path: %w", err)
	}

	data, err := os.ReadFile(validPath) // #nosec G304 - path is validated
	if err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}

	var terms Terms
	if err := yaml.Unmarshal(data, &terms); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	return NewDictionary(terms)
}

// Version identifies the keyword list.
func (d *Dictionary) Version() string {
	return d.version
}

// Signals extracts keyword signals from the given texts.
func (d *Dictionary) Signals(texts ...string) Signals {
	text := strings.Join(texts, "\n")
	s := Signals{
		Reservation: matchAny(d.reservation, text),
		SavingsPlan: matchAny(d.savingsPlan, text),
	}
	// Three years wins when both terms are mentioned.
	switch {
	case matchAny(d.threeYear, text):
		s.Term = 3
	case matchAny(d.oneYear, text):
		s.Term = 1
	}
	return s
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func fingerprint(terms Terms) string {
	h := sha256.New()
	for _, group := range [][]string{terms.Reservation, terms.SavingsPlan, terms.OneYear, terms.ThreeYear} {
		h.Write([]byte(strings.Join(group, "\x00")))
		h.Write([]byte{0xff})
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}
