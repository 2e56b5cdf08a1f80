// Package classifier assigns the commitment taxonomy to recommendations.
//
// Classification is a pure function of the recommendation text and the
// potential benefits text: an ordered rule table is evaluated over keyword
// signals extracted by a tunable Dictionary. The first matching rule wins.
package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/joshsymonds/advisor/internal/cache"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/pkg/logger"
)

// DefaultTermYears is applied when a commitment is detected without a term keyword.
const DefaultTermYears = 3

// Classification is the derived commitment data of one recommendation.
type Classification struct {
	TermYears     *int                      `json:"term_years,omitempty"`
	Category      models.CommitmentCategory `json:"category"`
	Rule          string                    `json:"rule"`
	IsCommitment  bool                      `json:"is_commitment"`
	IsSavingsPlan bool                      `json:"is_savings_plan"`
	TermDefaulted bool                      `json:"term_defaulted"`
}

// Apply writes the derived fields onto rec. Source text is never touched.
func (c Classification) Apply(rec *models.Recommendation) {
	rec.CommitmentCategory = c.Category
	rec.IsCommitment = c.IsCommitment
	rec.IsSavingsPlan = c.IsSavingsPlan
	if c.TermYears != nil {
		term := *c.TermYears
		rec.CommitmentTermYears = &term
	} else {
		rec.CommitmentTermYears = nil
	}
}

// Differs reports whether applying c would change any stored field of rec.
func (c Classification) Differs(rec *models.Recommendation) bool {
	if rec.CommitmentCategory != c.Category ||
		rec.IsCommitment != c.IsCommitment ||
		rec.IsSavingsPlan != c.IsSavingsPlan {
		return true
	}
	switch {
	case rec.CommitmentTermYears == nil && c.TermYears == nil:
		return false
	case rec.CommitmentTermYears == nil || c.TermYears == nil:
		return true
	default:
		return *rec.CommitmentTermYears != *c.TermYears
	}
}

// Classifier evaluates the rule table.
type Classifier struct {
	dict        *Dictionary
	log         logger.Logger
	rules       []Rule
	defaultTerm int
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithDictionary replaces the built-in keyword list.
func WithDictionary(d *Dictionary) Option {
	return func(c *Classifier) {
		if d != nil {
			c.dict = d
		}
	}
}

// WithRules replaces the built-in rule table.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		c.rules = rules
	}
}

// WithDefaultTerm sets the term applied when no term keyword is present.
func WithDefaultTerm(years int) Option {
	return func(c *Classifier) {
		if years == 1 || years == 3 {
			c.defaultTerm = years
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Classifier) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a classifier with the built-in dictionary and rules unless overridden.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		dict:        DefaultDictionary(),
		rules:       DefaultRules(),
		defaultTerm: DefaultTermYears,
		log:         logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Version identifies everything that influences the result.
func (c *Classifier) Version() string {
	return fmt.Sprintf("%s/t%d/r%s", c.dict.Version(), c.defaultTerm, ruleFingerprint(c.rules))
}

// ruleFingerprint hashes rule names and signal constraints in evaluation order.
func ruleFingerprint(rules []Rule) string {
	h := sha256.New()
	for _, r := range rules {
		fmt.Fprintf(h, "%s\x00%v\x00%v\xff", r.Name, r.Requires, r.Forbids)
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

// Rules returns the rule table in evaluation order.
func (c *Classifier) Rules() []Rule {
	return c.rules
}

// Classify returns the classification of one recommendation.
func (c *Classifier) Classify(recommendation, benefits string) Classification {
	signals := c.dict.Signals(recommendation, benefits)
	for _, rule := range c.rules {
		if !rule.Matches(signals) {
			continue
		}
		out := rule.Resolve(signals, c.defaultTerm)
		out.Rule = rule.Name
		if out.TermDefaulted {
			c.log.Debug("Commitment term not stated, using default",
				"rule", rule.Name,
				"default_term_years", c.defaultTerm)
		}
		return out
	}
	return Classification{Category: models.CommitmentUncategorized, Rule: RuleNoCommitment}
}

// ClassifyContext is Classify; it lets Classifier and CachedClassifier share callers.
func (c *Classifier) ClassifyContext(_ context.Context, recommendation, benefits string) Classification {
	return c.Classify(recommendation, benefits)
}

// CachedClassifier memoizes classifications in a shared cache.
// Cache failures are logged and never change the result.
type CachedClassifier struct {
	inner *Classifier
	cache cache.Cache
	log   logger.Logger
	ttl   time.Duration
}

// NewCached wraps inner with c.
func NewCached(inner *Classifier, c cache.Cache, ttl time.Duration, log logger.Logger) *CachedClassifier {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &CachedClassifier{inner: inner, cache: c, ttl: ttl, log: log}
}

// ClassifyContext returns the cached classification or computes and stores it.
func (cc *CachedClassifier) ClassifyContext(ctx context.Context, recommendation, benefits string) Classification {
	key := cache.Key("classify", cc.inner.Version(), recommendation, benefits)

	var out Classification
	found, err := cache.GetJSON(ctx, cc.cache, key, &out)
	if err != nil {
		cc.log.Warn("Classification cache read failed", "error", err)
	} else if found {
		return out
	}

	out = cc.inner.Classify(recommendation, benefits)
	if err := cache.SetJSON(ctx, cc.cache, key, out, cc.ttl); err != nil {
		cc.log.Warn("Classification cache write failed", "error", err)
	}
	return out
}
