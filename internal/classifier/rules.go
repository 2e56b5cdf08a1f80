package classifier

import "github.com/joshsymonds/advisor/internal/models"

// Signals are the keyword facts a rule is evaluated against.
type Signals struct {
	Reservation bool
	SavingsPlan bool
	// Term is 1 or 3 when a term keyword was found, 0 otherwise.
	Term int
}

// Signal names one boolean keyword fact.
type Signal int

// Keyword signals.
const (
	SignalReservation Signal = iota
	SignalSavingsPlan
)

func (s Signals) has(sig Signal) bool {
	switch sig {
	case SignalReservation:
		return s.Reservation
	case SignalSavingsPlan:
		return s.SavingsPlan
	}
	return false
}

// Rule is one entry of the ordered classification table. A rule matches when
// every Requires signal is present and no Forbids signal is.
type Rule struct {
	Resolve  func(s Signals, defaultTerm int) Classification
	Name     string
	Requires []Signal
	Forbids  []Signal
}

// Matches reports whether the rule applies to s.
func (r Rule) Matches(s Signals) bool {
	for _, sig := range r.Requires {
		if !s.has(sig) {
			return false
		}
	}
	for _, sig := range r.Forbids {
		if s.has(sig) {
			return false
		}
	}
	return true
}

// Rule names.
const (
	RuleCombined        = "combined_reservation_savings_plan"
	RuleSavingsPlanOnly = "savings_plan_only"
	RuleReservationOnly = "reservation_only"
	RuleNoCommitment    = "no_commitment"
)

// DefaultRules returns the classification table in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     RuleCombined,
			Requires: []Signal{SignalReservation, SignalSavingsPlan},
			Resolve: func(s Signals, defaultTerm int) Classification {
				term, defaulted := resolveTerm(s, defaultTerm)
				category := models.CommitmentCombinedSP3Y
				if term == 1 {
					category = models.CommitmentCombinedSP1Y
				}
				return Classification{
					Category:      category,
					IsCommitment:  true,
					IsSavingsPlan: true,
					TermYears:     &term,
					TermDefaulted: defaulted,
				}
			},
		},
		{
			Name:     RuleSavingsPlanOnly,
			Requires: []Signal{SignalSavingsPlan},
			Forbids:  []Signal{SignalReservation},
			Resolve: func(s Signals, _ int) Classification {
				c := Classification{
					Category:      models.CommitmentPureSavingsPlan,
					IsCommitment:  true,
					IsSavingsPlan: true,
				}
				if s.Term != 0 {
					term := s.Term
					c.TermYears = &term
				}
				return c
			},
		},
		{
			Name:     RuleReservationOnly,
			Requires: []Signal{SignalReservation},
			Forbids:  []Signal{SignalSavingsPlan},
			Resolve: func(s Signals, defaultTerm int) Classification {
				term, defaulted := resolveTerm(s, defaultTerm)
				category := models.CommitmentPureReservation3Y
				if term == 1 {
					category = models.CommitmentPureReservation1Y
				}
				return Classification{
					Category:      category,
					IsCommitment:  true,
					TermYears:     &term,
					TermDefaulted: defaulted,
				}
			},
		},
		{
			Name: RuleNoCommitment,
			Resolve: func(Signals, int) Classification {
				return Classification{Category: models.CommitmentUncategorized}
			},
		},
	}
}

func resolveTerm(s Signals, defaultTerm int) (int, bool) {
	if s.Term != 0 {
		return s.Term, false
	}
	return defaultTerm, true
}
