package analysis

import (
	"math"
	"sort"
	"strings"

	"github.com/joshsymonds/advisor/internal/models"
)

var roadmapPhases = []struct {
	name   string
	window string
	effort Effort
}{
	{"Quick wins", "0-30 days", EffortLow},
	{"Planned improvements", "30-90 days", EffortMedium},
	{"Strategic initiatives", "90+ days", EffortHigh},
}

func (b *Builder) executive(items []Item, s *Summary) *ExecutiveView {
	v := &ExecutiveView{QuickWinPercentile: b.opts.QuickWinPercentile}

	var savings []float64
	for _, item := range items {
		if item.HasSavings() {
			savings = append(savings, *item.Savings)
		}
	}
	if len(savings) > 0 {
		v.QuickWinThreshold = Percentile(savings, b.opts.QuickWinPercentile)
		for _, item := range items {
			if item.Impact == models.ImpactHigh && item.HasSavings() && *item.Savings >= v.QuickWinThreshold {
				v.QuickWins = append(v.QuickWins, item)
				v.QuickWinSavings += *item.Savings
			}
		}
		sortBySavings(v.QuickWins)
	}

	for i, p := range roadmapPhases {
		phase := Phase{Number: i + 1, Name: p.name, Window: p.window, Effort: p.effort}
		for _, item := range items {
			if item.Effort == p.effort {
				phase.Items = append(phase.Items, item)
				phase.Savings += item.SavingsValue()
			}
		}
		sortBySavings(phase.Items)
		v.Roadmap = append(v.Roadmap, phase)
	}

	high := 0
	for _, c := range s.Impacts {
		if c.Key == string(models.ImpactHigh) {
			high = c.Count
		}
	}
	commitments := 0
	for _, c := range s.Commitments {
		if c.Key != string(models.CommitmentUncategorized) {
			commitments += c.Count
		}
	}
	v.KeyFindings = []KeyFinding{
		{Label: "Recommendations analysed", Kind: FindingCount, Value: float64(s.TotalCount)},
		{Label: "High impact recommendations", Kind: FindingCount, Value: float64(high)},
		{Label: "Annual savings potential", Kind: FindingCurrency, Value: s.AnnualSavings},
		{Label: "Quick win savings", Kind: FindingCurrency, Value: v.QuickWinSavings},
		{Label: "Commitment opportunities", Kind: FindingCount, Value: float64(commitments)},
	}
	if s.TotalCount > 0 {
		v.KeyFindings = append(v.KeyFindings, KeyFinding{
			Label: "Recommendations with savings data",
			Kind:  FindingPercent,
			Value: float64(s.WithSavings) / float64(s.TotalCount) * 100,
		})
	}
	return v
}

func (b *Builder) cost(items []Item, s *Summary) *CostView {
	v := &CostView{}
	for _, item := range items {
		if item.Category == models.CategoryCost || item.HasSavings() {
			v.Items = append(v.Items, item)
		}
	}
	sortBySavings(v.Items)

	commitments := make(map[string]*Count)
	for _, item := range v.Items {
		if item.Commitment == models.CommitmentUncategorized {
			continue
		}
		c, ok := commitments[string(item.Commitment)]
		if !ok {
			c = &Count{}
			commitments[string(item.Commitment)] = c
		}
		c.Count++
		c.Savings += item.SavingsValue()
		v.CommitmentSavings += item.SavingsValue()
	}
	for _, cat := range models.CommitmentCategories() {
		if cat == models.CommitmentUncategorized {
			continue
		}
		c := ordered(commitments, string(cat), cat.Label(), len(v.Items))
		v.Commitments = append(v.Commitments, c)
	}

	v.ByResourceType = groupSavings(v.Items, func(i Item) string { return i.ResourceType }, b.opts.TopN)
	v.BySubscription = groupSavings(v.Items, func(i Item) string {
		if i.SubscriptionName != "" {
			return i.SubscriptionName
		}
		return i.SubscriptionID
	}, b.opts.TopN)

	v.ROI = b.roi(v.Items, s.AnnualSavings)
	return v
}

func (b *Builder) roi(items []Item, annual float64) ROI {
	r := ROI{
		HourlyRate:     b.opts.HourlyRate,
		Multiplier:     b.opts.CostMultiplier,
		AnnualSavings:  annual,
		MonthlySavings: annual / 12,
	}
	for _, item := range items {
		r.EffortHours += b.opts.EffortHours[item.Effort]
	}
	r.ImplementationCost = r.EffortHours * r.HourlyRate * r.Multiplier
	r.NetAnnualBenefit = r.AnnualSavings - r.ImplementationCost
	r.ThreeYearProjection = r.AnnualSavings*3 - r.ImplementationCost

	if r.MonthlySavings != 0 {
		months := r.ImplementationCost / r.MonthlySavings
		r.PaybackMonths = &months
	}
	if r.ImplementationCost != 0 {
		pct := r.NetAnnualBenefit / r.ImplementationCost * 100
		r.ROIPercent = &pct
	}
	return r
}

var remediationSLA = map[string]string{
	models.SeverityCritical: "24 hours",
	models.SeverityHigh:     "1 week",
	models.SeverityMedium:   "1 month",
	models.SeverityLow:      "Backlog",
}

func (b *Builder) security(items []Item) *SecurityView {
	v := &SecurityView{}
	counts := make(map[string]int)
	for _, item := range items {
		if item.Category != models.CategorySecurity {
			continue
		}
		v.Findings = append(v.Findings, item)
		counts[item.Severity]++
	}

	for _, sev := range models.Severities() {
		weight := b.opts.SecurityWeights[sev]
		v.SLABuckets = append(v.SLABuckets, SLABucket{
			Severity: sev,
			SLA:      remediationSLA[sev],
			Count:    counts[sev],
			Weight:   weight,
		})
		v.Deduction += weight * float64(counts[sev])
	}
	v.Score = math.Max(0, math.Min(100, 100-v.Deduction))

	sort.SliceStable(v.Findings, func(i, j int) bool {
		ri, rj := models.SeverityRank(v.Findings[i].Severity), models.SeverityRank(v.Findings[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return v.Findings[i].SourceRow < v.Findings[j].SourceRow
	})
	return v
}

var automationThemes = []struct {
	key   string
	label string
	terms []string
}{
	{"backup", "Backup & recovery", []string{"backup", "restore", "recovery", "snapshot", "geo-redundan", "replica", "disaster"}},
	{"monitoring", "Monitoring & alerting", []string{"monitor", "alert", "diagnostic", "logging", "log analytics", "metric", "insights"}},
	{"scaling", "Scaling", []string{"autoscal", "scale", "scaling", "capacity", "availability zone", "zone redundan"}},
	{"patching", "Patching & updates", []string{"patch", "update", "upgrade", "version", "retire", "end of support"}},
	{"governance", "Governance & tagging", []string{"tag", "policy", "governance", "naming", "resource lock", "rbac"}},
	{"networking", "Networking", []string{"network", "vnet", "subnet", "dns", "load balancer", "gateway", "firewall", "nsg", "private endpoint"}},
}

func automationTheme(item Item) int {
	text := strings.ToLower(item.Title + " " + item.Description)
	for i, theme := range automationThemes {
		for _, term := range theme.terms {
			if strings.Contains(text, term) {
				return i
			}
		}
	}
	return len(automationThemes)
}

func (b *Builder) operations(items []Item) *OperationsView {
	v := &OperationsView{}
	buckets := make([]AutomationBucket, len(automationThemes)+1)
	for i, theme := range automationThemes {
		buckets[i] = AutomationBucket{Key: theme.key, Label: theme.label}
	}
	buckets[len(automationThemes)] = AutomationBucket{Key: "other", Label: "Other"}

	for _, item := range items {
		switch item.Category {
		case models.CategoryReliability:
			v.Reliability++
		case models.CategoryPerformance:
			v.Performance++
		case models.CategoryOperational:
			v.Operational++
		default:
			continue
		}

		bucket := &buckets[automationTheme(item)]
		bucket.Items = append(bucket.Items, item)
		bucket.Count++
		if item.Effort == EffortLow {
			bucket.Automatable++
			v.AutomatableTotal++
		}
	}
	v.Buckets = buckets
	return v
}

func (b *Builder) detailed(items []Item) *DetailedView {
	v := &DetailedView{}
	for _, cat := range models.Categories() {
		group := CategoryGroup{Category: cat, Label: Label(string(cat))}
		for _, item := range items {
			if item.Category == cat {
				group.Items = append(group.Items, item)
				group.Savings += item.SavingsValue()
			}
		}
		group.Count = len(group.Items)
		sortBySavings(group.Items)
		v.Groups = append(v.Groups, group)
	}
	return v
}
