package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/tabular"
)

func parse(t *testing.T, input string) *tabular.Result {
	t.Helper()
	res, err := tabular.New(tabular.Options{}, nil).Parse([]byte(input))
	require.NoError(t, err)
	return res
}

func TestBindAliases(t *testing.T) {
	n := New("")
	b := n.Bind([]string{"CATEGORY", "Business_Impact", "recommendation-text", "Potential Annual Cost Savings", "Resource Group Name", "Ignored"})

	tests := map[string]string{
		FieldCategory:       "CATEGORY",
		FieldImpact:         "Business_Impact",
		FieldRecommendation: "recommendation-text",
		FieldSavings:        "Potential Annual Cost Savings",
		FieldResourceGroup:  "Resource Group Name",
	}
	for field, header := range tests {
		got, ok := b.Column(field)
		assert.True(t, ok, field)
		assert.Equal(t, header, got, field)
	}
	assert.Empty(t, b.Missing())

	_, ok := b.Column(FieldCurrency)
	assert.False(t, ok)
}

func TestNormalizeRow(t *testing.T) {
	res := parse(t, "Category,Business Impact,Recommendation,Potential Benefits,Subscription ID,Resource Group,Resource Name,Resource Type,Potential Annual Cost Savings,Currency\n"+
		"Cost,High,Buy reserved instances,3 year commitment,sub-1,rg-prod,vm-01,virtualMachines,\"1,200.50\",eur\n")

	b := New("USD").Bind(res.Headers)
	rec, rerr := b.Normalize(res.Rows[0], res.Rows[0].Line)
	require.Nil(t, rerr)

	assert.Equal(t, models.CategoryCost, rec.Category)
	assert.Equal(t, models.ImpactHigh, rec.BusinessImpact)
	assert.Equal(t, models.SeverityHigh, rec.Severity)
	assert.Equal(t, "Buy reserved instances", rec.Recommendation)
	assert.Equal(t, "3 year commitment", rec.PotentialBenefits)
	assert.Equal(t, "vm-01", rec.ResourceName)
	assert.Equal(t, 2, rec.SourceRowNumber)
	require.NotNil(t, rec.PotentialSavings)
	assert.InDelta(t, 1200.50, *rec.PotentialSavings, 1e-9)
	assert.Equal(t, "EUR", rec.Currency)
}

func TestNormalizeImpactAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		impact   string
		severity string
		want     models.Impact
		wantSev  string
	}{
		{name: "critical impact", impact: "Critical", want: models.ImpactHigh, wantSev: models.SeverityCritical},
		{name: "missing impact defaults medium", impact: "", want: models.ImpactMedium, wantSev: models.SeverityMedium},
		{name: "low impact", impact: "low", want: models.ImpactLow, wantSev: models.SeverityLow},
		{name: "explicit severity wins", impact: "Low", severity: "High", want: models.ImpactLow, wantSev: models.SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parse(t, "Category,Impact,Severity,Recommendation\nSecurity,"+tt.impact+","+tt.severity+",Enable MFA\n")
			rec, rerr := New("").Bind(res.Headers).Normalize(res.Rows[0], 2)
			require.Nil(t, rerr)
			assert.Equal(t, tt.want, rec.BusinessImpact)
			assert.Equal(t, tt.wantSev, rec.Severity)
		})
	}
}

func TestNormalizeSavingsAndCurrency(t *testing.T) {
	tests := []struct {
		name     string
		savings  string
		currency string
		want     *float64
		wantCur  string
	}{
		{name: "empty stays nil", savings: "", wantCur: "GBP"},
		{name: "non numeric stays nil", savings: "n/a", wantCur: "GBP"},
		{name: "symbol sets currency", savings: "$25", want: ptr(25.0), wantCur: "USD"},
		{name: "column beats symbol", savings: "$25", currency: "CAD", want: ptr(25.0), wantCur: "CAD"},
		{name: "default currency", savings: "40", want: ptr(40.0), wantCur: "GBP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := parse(t, "Category,Recommendation,Savings,Currency\nCost,Resize,"+tt.savings+","+tt.currency+"\n")
			rec, rerr := New("gbp").Bind(res.Headers).Normalize(res.Rows[0], 2)
			require.Nil(t, rerr)
			if tt.want == nil {
				assert.Nil(t, rec.PotentialSavings)
			} else {
				require.NotNil(t, rec.PotentialSavings)
				assert.InDelta(t, *tt.want, *rec.PotentialSavings, 1e-9)
			}
			assert.Equal(t, tt.wantCur, rec.Currency)
		})
	}
}

func TestNormalizeMonthlySavingsAnnualized(t *testing.T) {
	res := parse(t, "Category,Recommendation,Monthly Savings\nCost,Resize,100\n")
	rec, rerr := New("").Bind(res.Headers).Normalize(res.Rows[0], 2)
	require.Nil(t, rerr)
	require.NotNil(t, rec.PotentialSavings)
	assert.InDelta(t, 1200.0, *rec.PotentialSavings, 1e-9)
}

func TestNormalizeAllPartialSuccess(t *testing.T) {
	res := parse(t, "Category,Impact,Recommendation\n"+
		"Cost,High,Right-size VM\n"+
		"Security,High,\n"+
		"Spaceship,Low,Launch\n"+
		"Operational Excellence,Low,Add tags\n")

	recs, skipped := New("").NormalizeAll(res)
	require.Len(t, recs, 2)
	assert.Equal(t, models.CategoryOperational, recs[1].Category)

	require.Len(t, skipped, 2)
	assert.Equal(t, 3, skipped[0].Row)
	assert.Equal(t, FieldRecommendation, skipped[0].Field)
	assert.True(t, errors.Is(&skipped[0], ErrMissingField))
	assert.Equal(t, 4, skipped[1].Row)
	assert.ErrorIs(t, &skipped[1], ErrInvalidValue)
	assert.Contains(t, skipped[1].Error(), `unknown category "Spaceship"`)
}

func TestNormalizeMissingRequiredColumn(t *testing.T) {
	res := parse(t, "Impact,Recommendation\nHigh,Resize\n")
	n := New("")
	assert.Equal(t, []string{FieldCategory}, n.Bind(res.Headers).Missing())

	recs, skipped := n.NormalizeAll(res)
	assert.Empty(t, recs)
	require.Len(t, skipped, 1)
	assert.Equal(t, FieldCategory, skipped[0].Field)
}

func ptr[T any](v T) *T { return &v }
