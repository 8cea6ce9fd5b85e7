package substitution

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrisdamba/foodmarket/internal/models"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func item(id, price string) models.MenuItem {
	return models.MenuItem{ID: id, Name: id, Price: money(price), Available: true}
}

func line(id, price string, qty int) models.CartLine {
	return models.CartLine{ItemID: id, Name: id, Price: money(price), Quantity: qty}
}

func rule(original string, sub models.MenuItem, auto bool) *models.SubstitutionRule {
	return &models.SubstitutionRule{OriginalItemID: original, Substitute: sub, AutoApply: auto}
}

var decidedAt = time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC)

func newTestEngine(t *testing.T, lines ...models.CartLine) *Engine {
	t.Helper()
	logger, _ := test.NewNullLogger()
	seq := 0
	return NewEngine(
		models.Cart{ID: "cart-1", CustomerID: "cust-1", RestaurantID: "rest-1", Lines: lines},
		WithNow(func() time.Time { return decidedAt }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("dec-%d", seq)
		}),
		WithLogger(logger),
	)
}

func TestResolve_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		line      models.CartLine
		rule      *models.SubstitutionRule
		want      Outcome
		wantDelta string
	}{
		{
			name:      "no rule",
			line:      line("pad-thai", "12.00", 1),
			want:      OutcomeNone,
			wantDelta: "0",
		},
		{
			name:      "auto apply within tolerance",
			line:      line("pad-thai", "12.00", 1),
			rule:      rule("pad-thai", item("pad-see-ew", "12.60"), true),
			want:      OutcomeAutoSwap,
			wantDelta: "5",
		},
		{
			name:      "manual rule within tolerance prompts",
			line:      line("pad-thai", "12.00", 1),
			rule:      rule("pad-thai", item("pad-see-ew", "12.60"), false),
			want:      OutcomePrompt,
			wantDelta: "5",
		},
		{
			name:      "exactly at tolerance is allowed",
			line:      line("burger", "10.00", 1),
			rule:      rule("burger", item("double", "11.50"), true),
			want:      OutcomeAutoSwap,
			wantDelta: "15",
		},
		{
			name:      "just over tolerance is unresolved",
			line:      line("burger", "10.00", 1),
			rule:      rule("burger", item("double", "11.51"), true),
			want:      OutcomeNone,
			wantDelta: "15.1",
		},
		{
			name:      "cheaper substitute",
			line:      line("burger", "10.00", 1),
			rule:      rule("burger", item("slider", "6.00"), false),
			want:      OutcomePrompt,
			wantDelta: "-40",
		},
		{
			name:      "free original never divides by zero",
			line:      line("water", "0", 1),
			rule:      rule("water", item("soda", "2.50"), true),
			want:      OutcomeAutoSwap,
			wantDelta: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Resolve(tt.line, tt.rule, DefaultAllowedDeltaPct)
			assert.Equal(t, tt.want, res.Outcome)
			assert.True(t, money(tt.wantDelta).Equal(res.PriceDeltaPct), "delta %s", res.PriceDeltaPct)
		})
	}
}

func TestResolve_RuleToleranceOverridesDefault(t *testing.T) {
	r := rule("burger", item("double", "12.00"), true)
	r.MaxPriceDeltaPct = decimal.NewNullDecimal(decimal.NewFromInt(20))

	res := Resolve(line("burger", "10.00", 1), r, DefaultAllowedDeltaPct)
	assert.Equal(t, OutcomeAutoSwap, res.Outcome)
	assert.True(t, res.AllowedPct.Equal(decimal.NewFromInt(20)))

	r.MaxPriceDeltaPct = decimal.NewNullDecimal(decimal.Zero)
	res = Resolve(line("burger", "10.00", 1), r, DefaultAllowedDeltaPct)
	assert.Equal(t, OutcomeNone, res.Outcome)
}

func TestEngine_HandleUnavailableAutoSwaps(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.00", 2), line("fries", "3.00", 1))

	res, err := e.HandleUnavailable("burger", rule("burger", item("double", "11.00"), true))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAutoSwap, res.Outcome)

	cart := e.Cart()
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, "double", cart.Lines[0].ItemID)
	assert.Equal(t, 2, cart.Lines[0].Quantity)
	assert.Equal(t, "burger", cart.Lines[0].SubstitutedFrom)
	assert.False(t, cart.Lines[0].Unavailable)

	decisions := e.Decisions()
	require.Len(t, decisions, 1)
	assert.Equal(t, models.DecisionAccept, decisions[0].Decision)
	assert.True(t, decisions[0].Auto)
	assert.True(t, money("2.00").Equal(decisions[0].PriceDelta))
	require.NotNil(t, decisions[0].SubstituteItemID)
	assert.Equal(t, "double", *decisions[0].SubstituteItemID)
}

func TestEngine_HandleUnavailablePromptLeavesCartAlone(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.00", 1))

	res, err := e.HandleUnavailable("burger", rule("burger", item("double", "11.00"), false))
	require.NoError(t, err)
	assert.Equal(t, OutcomePrompt, res.Outcome)

	cart := e.Cart()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "burger", cart.Lines[0].ItemID)
	assert.True(t, cart.Lines[0].Unavailable)
	assert.Empty(t, e.Decisions())
}

func TestEngine_OverToleranceStaysFlagged(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.00", 1))

	res, err := e.HandleUnavailable("burger", rule("burger", item("wagyu", "25.00"), true))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNone, res.Outcome)
	assert.True(t, e.Cart().Lines[0].Unavailable)
	assert.Empty(t, e.Decisions())
	assert.True(t, e.Cart().Total().IsZero(), "unavailable lines are not charged")
}

func TestEngine_HandleUnavailableUnknownLine(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.00", 1))

	_, err := e.HandleUnavailable("pizza", nil)
	assert.ErrorIs(t, err, ErrLineNotFound)
}

func TestEngine_AcceptMergesIntoExistingSubstituteLine(t *testing.T) {
	e := newTestEngine(t, line("double", "11.00", 1), line("burger", "10.00", 2))

	sub := item("double", "11.00")
	d, err := e.ApplySubstitutionChoice("burger", &sub, false, models.DecisionAccept)
	require.NoError(t, err)

	cart := e.Cart()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "double", cart.Lines[0].ItemID)
	assert.Equal(t, 3, cart.Lines[0].Quantity)
	assert.True(t, money("2.00").Equal(d.PriceDelta))
	assert.Equal(t, 2, d.Quantity)
	assert.Equal(t, decidedAt, d.DecidedAt)
}

func TestEngine_AcceptIsFinalForOriginalItem(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.00", 1))

	sub := item("double", "11.00")
	_, err := e.ApplySubstitutionChoice("burger", &sub, false, models.DecisionAccept)
	require.NoError(t, err)

	_, err = e.ApplySubstitutionChoice("burger", nil, false, models.DecisionDecline)
	assert.ErrorIs(t, err, ErrLineNotFound)

	cart := e.Cart()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "double", cart.Lines[0].ItemID)
	assert.Equal(t, "burger", cart.Lines[0].SubstitutedFrom)
	require.Len(t, e.Decisions(), 1)
	assert.Equal(t, models.DecisionAccept, e.Decisions()[0].Decision)
}

func TestEngine_AcceptWithoutSubstitute(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.00", 1))

	_, err := e.ApplySubstitutionChoice("burger", nil, false, models.DecisionAccept)
	assert.ErrorIs(t, err, ErrNoSubstitute)
	assert.Len(t, e.Cart().Lines, 1)
	assert.Empty(t, e.Decisions())
}

func TestEngine_DeclineRefundsLine(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.50", 3), line("fries", "3.00", 1))

	d, err := e.ApplySubstitutionChoice("burger", nil, false, models.DecisionDecline)
	require.NoError(t, err)

	assert.True(t, money("-31.50").Equal(d.PriceDelta))
	assert.Nil(t, d.SubstituteItemID)
	cart := e.Cart()
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "fries", cart.Lines[0].ItemID)
}

func TestEngine_ChatRecordsWithoutMutating(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.00", 1))
	_, err := e.HandleUnavailable("burger", rule("burger", item("double", "11.00"), false))
	require.NoError(t, err)

	sub := item("double", "11.00")
	d, err := e.ApplySubstitutionChoice("burger", &sub, false, models.DecisionChat)
	require.NoError(t, err)

	assert.True(t, d.PriceDelta.IsZero())
	cart := e.Cart()
	require.Len(t, cart.Lines, 1)
	assert.True(t, cart.Lines[0].Unavailable)
	require.Len(t, e.Decisions(), 1)
}

func TestEngine_LedgerKeepsLatestPerOriginal(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.00", 1), line("shake", "5.00", 1), line("fries", "3.00", 1))

	_, err := e.ApplySubstitutionChoice("burger", nil, false, models.DecisionChat)
	require.NoError(t, err)
	_, err = e.ApplySubstitutionChoice("shake", nil, false, models.DecisionDecline)
	require.NoError(t, err)
	_, err = e.ApplySubstitutionChoice("burger", nil, false, models.DecisionChat)
	require.NoError(t, err)
	_, err = e.ApplySubstitutionChoice("burger", nil, false, models.DecisionDecline)
	require.NoError(t, err)

	decisions := e.Decisions()
	require.Len(t, decisions, 2)
	assert.Equal(t, "burger", decisions[0].OriginalItemID)
	assert.Equal(t, models.DecisionDecline, decisions[0].Decision)
	assert.Equal(t, "dec-4", decisions[0].ID)
	assert.Equal(t, "shake", decisions[1].OriginalItemID)
}

func TestEngine_RejectsUnknownDecision(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.00", 1))

	_, err := e.ApplySubstitutionChoice("burger", nil, false, models.Decision("refund"))
	assert.ErrorIs(t, err, ErrInvalidDecision)
}

func TestEngine_OrderPayload(t *testing.T) {
	e := newTestEngine(t, line("burger", "10.00", 2), line("fries", "3.00", 1))
	_, err := e.HandleUnavailable("burger", rule("burger", item("double", "11.00"), true))
	require.NoError(t, err)

	payload := e.OrderPayload("order-9")

	assert.Equal(t, "order-9", payload.OrderID)
	assert.Equal(t, "cust-1", payload.CustomerID)
	assert.Equal(t, "rest-1", payload.RestaurantID)
	assert.True(t, money("25.00").Equal(payload.Total))
	require.Len(t, payload.Substitutions, 1)
	assert.Equal(t, "order-9", payload.Substitutions[0].OrderID)
	assert.Empty(t, e.Decisions()[0].OrderID, "ledger itself is not stamped")
}

func TestEngine_CartIsACopy(t *testing.T) {
	lines := []models.CartLine{line("burger", "10.00", 1)}
	e := newTestEngine(t, lines...)

	_, err := e.ApplySubstitutionChoice("burger", nil, false, models.DecisionDecline)
	require.NoError(t, err)

	assert.Equal(t, "burger", lines[0].ItemID)
	assert.Empty(t, e.Cart().Lines)
}
