package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRuleIDs(t *testing.T) {
	cat := New()

	t.Run("ids are unique", func(t *testing.T) {
		assert.Equal(t, len(staticRules), cat.Size())
	})

	t.Run("every rule set is represented", func(t *testing.T) {
		families := make(map[Family]int)
		for _, r := range cat.All() {
			families[r.Family]++
		}
		assert.Len(t, families, 6)
		for family, count := range families {
			assert.GreaterOrEqual(t, count, 1, "family %s", family)
		}
	})

	t.Run("known ids resolve", func(t *testing.T) {
		for _, id := range []string{
			RulePlatformStateSupremacy,
			RuleApprovedDisclosures,
			RuleIssuerBoundaries,
			RuleAdminReasonRequired,
			RuleInvestorGuards,
			RuleSnapshotFreeze,
		} {
			_, ok := cat.Get(id)
			assert.True(t, ok, "missing rule %s", id)
		}
	})

	t.Run("unknown id misses", func(t *testing.T) {
		_, ok := cat.Get("RULE_9_9_NOT_A_RULE")
		assert.False(t, ok)
	})

	t.Run("severity lookup is exact and sorted", func(t *testing.T) {
		critical := cat.BySeverity(SeverityCritical)
		require.NotEmpty(t, critical)
		for i, r := range critical {
			assert.Equal(t, SeverityCritical, r.Severity)
			if i > 0 {
				assert.Less(t, critical[i-1].ID, r.ID)
			}
		}
		assert.Empty(t, cat.BySeverity(SeverityLow))
	})
}

func TestForActorScoping(t *testing.T) {
	cat := New()

	ruleIDs := func(rules []Rule) []string {
		ids := make([]string, 0, len(rules))
		for _, r := range rules {
			ids = append(ids, r.ID)
		}
		return ids
	}

	t.Run("issuer sees issuer and wildcard rules only", func(t *testing.T) {
		ids := ruleIDs(cat.ForActor(ActorIssuer))
		assert.Contains(t, ids, RuleIssuerBoundaries)
		assert.Contains(t, ids, RulePlatformStateSupremacy)
		assert.NotContains(t, ids, RuleInvestorBoundaries)
		assert.NotContains(t, ids, RulePublicReadOnly)
		assert.NotContains(t, ids, RuleAdminReasonRequired)
	})

	t.Run("public is scoped to the read-only rule", func(t *testing.T) {
		ids := ruleIDs(cat.ForActor(ActorPublic))
		assert.Contains(t, ids, RulePublicReadOnly)
		assert.NotContains(t, ids, RuleIssuerBoundaries)
		assert.NotContains(t, ids, RuleOpenPhaseOnly)
	})

	t.Run("exceptions remove wildcard rules", func(t *testing.T) {
		ids := ruleIDs(cat.ForActor(ActorSystemEnforcement))
		assert.NotContains(t, ids, RulePlatformStateSupremacy)
		assert.NotContains(t, ids, RuleContextRecalc)
		assert.Contains(t, ids, RuleInvestmentSnapshots)
	})

	t.Run("result is sorted by id", func(t *testing.T) {
		ids := ruleIDs(cat.ForActor(ActorInvestor))
		require.NotEmpty(t, ids)
		for i := 1; i < len(ids); i++ {
			assert.Less(t, ids[i-1], ids[i])
		}
	})

	t.Run("same actor always yields the same rules", func(t *testing.T) {
		first := ruleIDs(cat.ForActor(ActorInvestor))
		second := ruleIDs(cat.ForActor(ActorInvestor))
		assert.Equal(t, first, second)
	})
}

func TestCatalogImmutability(t *testing.T) {
	cat := New()

	all := cat.All()
	delete(all, RuleIssuerBoundaries)
	all[RulePublicReadOnly] = Rule{ID: RulePublicReadOnly, Severity: SeverityLow}

	fresh, ok := cat.Get(RuleIssuerBoundaries)
	require.True(t, ok)
	assert.Equal(t, SeverityCritical, fresh.Severity)

	public, ok := cat.Get(RulePublicReadOnly)
	require.True(t, ok)
	assert.Equal(t, SeverityHigh, public.Severity)
}

func TestRuleHelpers(t *testing.T) {
	t.Run("wildcard applies to every real actor", func(t *testing.T) {
		rule := Rule{AppliesTo: []ActorType{ActorAll}}
		for _, actor := range []ActorType{ActorIssuer, ActorInvestor, ActorPublic, ActorAdminJudgment} {
			assert.True(t, rule.AppliesToActor(actor))
		}
	})

	t.Run("exception wins over wildcard", func(t *testing.T) {
		rule := Rule{
			AppliesTo:  []ActorType{ActorAll},
			Exceptions: []ActorType{ActorSystemEnforcement},
		}
		assert.False(t, rule.AppliesToActor(ActorSystemEnforcement))
		assert.True(t, rule.AppliesToActor(ActorInvestor))
	})

	t.Run("empty action list matches everything", func(t *testing.T) {
		rule := Rule{}
		assert.True(t, rule.HasAction("suspend_company"))

		scoped := Rule{Actions: []string{"suspend_company"}}
		assert.True(t, scoped.HasAction("suspend_company"))
		assert.False(t, scoped.HasAction("read"))
	})
}
