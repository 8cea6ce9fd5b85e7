// Package substitution decides what happens to a cart line whose item ran out,
// using the merchant's substitution rules, and keeps the ledger of customer
// decisions that is submitted with the order.
package substitution

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lucsky/cuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/foodmarket/internal/models"
)

var (
	ErrLineNotFound    = errors.New("cart line not found")
	ErrNoSubstitute    = errors.New("accept decision requires a substitute")
	ErrInvalidDecision = errors.New("invalid substitution decision")
)

// DefaultAllowedDeltaPct is the price increase a customer tolerates without
// being asked, when the rule does not set its own.
var DefaultAllowedDeltaPct = decimal.NewFromInt(15)

var hundred = decimal.NewFromInt(100)

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomePrompt
	OutcomeAutoSwap
)

func (o Outcome) String() string {
	switch o {
	case OutcomePrompt:
		return "prompt"
	case OutcomeAutoSwap:
		return "auto_swap"
	default:
		return "none"
	}
}

// PromptChoices are offered whenever the outcome is OutcomePrompt.
var PromptChoices = []models.Decision{models.DecisionAccept, models.DecisionDecline, models.DecisionChat}

type Resolution struct {
	Outcome       Outcome
	PriceDeltaPct decimal.Decimal
	AllowedPct    decimal.Decimal
	Rule          *models.SubstitutionRule
}

// PriceDeltaPct is the substitute's price change relative to the original,
// in percent. A free original yields zero.
func PriceDeltaPct(original, substitute decimal.Decimal) decimal.Decimal {
	if original.IsZero() {
		return decimal.Zero
	}
	return substitute.Sub(original).Div(original).Mul(hundred)
}

// Resolve picks the outcome for line under rule. A nil rule, or a substitute
// priced beyond tolerance, leaves the line unresolved.
func Resolve(line models.CartLine, rule *models.SubstitutionRule, defaultAllowed decimal.Decimal) Resolution {
	res := Resolution{Outcome: OutcomeNone, PriceDeltaPct: decimal.Zero, AllowedPct: defaultAllowed}
	if rule == nil {
		return res
	}
	if rule.MaxPriceDeltaPct.Valid {
		res.AllowedPct = rule.MaxPriceDeltaPct.Decimal
	}
	res.Rule = rule
	res.PriceDeltaPct = PriceDeltaPct(line.Price, rule.Substitute.Price)

	if res.PriceDeltaPct.GreaterThan(res.AllowedPct) {
		return res
	}
	if rule.AutoApply {
		res.Outcome = OutcomeAutoSwap
	} else {
		res.Outcome = OutcomePrompt
	}
	return res
}

// Engine owns one cart and its decision ledger. It is safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	cart    models.Cart
	ledger  []models.SubstitutionDecision
	allowed decimal.Decimal

	now    func() time.Time
	newID  func() string
	logger logrus.FieldLogger
}

type Option func(*Engine)

func WithAllowedDeltaPct(pct decimal.Decimal) Option {
	return func(e *Engine) { e.allowed = pct }
}

func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine takes a copy of cart; read it back with Cart.
func NewEngine(cart models.Cart, opts ...Option) *Engine {
	e := &Engine{
		cart:    cloneCart(cart),
		allowed: DefaultAllowedDeltaPct,
		now:     time.Now,
		newID:   cuid.New,
		logger:  logrus.StandardLogger().WithField("component", "substitution"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Resolve(line models.CartLine, rule *models.SubstitutionRule) Resolution {
	return Resolve(line, rule, e.allowed)
}

// HandleUnavailable flags the line as unavailable and resolves it. An
// auto-swap is applied before returning; a prompt leaves the cart untouched
// until ApplySubstitutionChoice is called with the customer's answer.
func (e *Engine) HandleUnavailable(itemID string, rule *models.SubstitutionRule) (Resolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.findLine(itemID)
	if idx < 0 {
		return Resolution{}, fmt.Errorf("%w: %s", ErrLineNotFound, itemID)
	}
	e.cart.Lines[idx].Unavailable = true
	res := Resolve(e.cart.Lines[idx], rule, e.allowed)

	log := e.logger.WithFields(logrus.Fields{
		"cart_id":         e.cart.ID,
		"item_id":         itemID,
		"outcome":         res.Outcome.String(),
		"price_delta_pct": res.PriceDeltaPct.String(),
	})
	if res.Outcome != OutcomeAutoSwap {
		log.Debug("unavailable item needs customer input")
		return res, nil
	}
	sub := rule.Substitute
	if _, err := e.apply(idx, &sub, true, models.DecisionAccept); err != nil {
		return res, err
	}
	log.Info("substitute applied automatically")
	return res, nil
}

// ApplySubstitutionChoice records the customer's (or rule's) decision for the
// line holding itemID and mutates the cart to match.
//
// An accept is final for the original item: the line then carries the
// substitute's id (with SubstitutedFrom pointing back), so a later call with
// the original id returns ErrLineNotFound.
func (e *Engine) ApplySubstitutionChoice(itemID string, substitute *models.MenuItem, auto bool, decision models.Decision) (models.SubstitutionDecision, error) {
	if !decision.Valid() {
		return models.SubstitutionDecision{}, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.findLine(itemID)
	if idx < 0 {
		return models.SubstitutionDecision{}, fmt.Errorf("%w: %s", ErrLineNotFound, itemID)
	}
	return e.apply(idx, substitute, auto, decision)
}

// apply must be called with the lock held.
func (e *Engine) apply(idx int, substitute *models.MenuItem, auto bool, decision models.Decision) (models.SubstitutionDecision, error) {
	line := e.cart.Lines[idx]
	qty := decimal.NewFromInt(int64(line.Quantity))

	d := models.SubstitutionDecision{
		ID:             e.newID(),
		OriginalItemID: line.ItemID,
		Decision:       decision,
		Auto:           auto,
		PriceDelta:     decimal.Zero,
		Quantity:       line.Quantity,
		DecidedAt:      e.now().UTC(),
	}
	if substitute != nil {
		id := substitute.ID
		d.SubstituteItemID = &id
	}

	switch decision {
	case models.DecisionAccept:
		if substitute == nil {
			return models.SubstitutionDecision{}, ErrNoSubstitute
		}
		d.PriceDelta = substitute.Price.Sub(line.Price).Mul(qty)
		if existing := e.findLine(substitute.ID); existing >= 0 && existing != idx {
			e.cart.Lines[existing].Quantity += line.Quantity
			e.removeLine(idx)
		} else {
			e.cart.Lines[idx] = models.CartLine{
				ItemID:          substitute.ID,
				Name:            substitute.Name,
				Price:           substitute.Price,
				Quantity:        line.Quantity,
				SubstitutedFrom: line.ItemID,
			}
		}
	case models.DecisionDecline:
		d.PriceDelta = line.Price.Mul(qty).Neg()
		e.removeLine(idx)
	case models.DecisionChat:
	}

	e.record(d)
	return d, nil
}

// record keeps one decision per original item; a later decision takes the
// earlier one's place.
func (e *Engine) record(d models.SubstitutionDecision) {
	for i := range e.ledger {
		if e.ledger[i].OriginalItemID == d.OriginalItemID {
			e.ledger[i] = d
			return
		}
	}
	e.ledger = append(e.ledger, d)
}

func (e *Engine) findLine(itemID string) int {
	for i, line := range e.cart.Lines {
		if line.ItemID == itemID {
			return i
		}
	}
	return -1
}

func (e *Engine) removeLine(idx int) {
	e.cart.Lines = append(e.cart.Lines[:idx], e.cart.Lines[idx+1:]...)
}

func (e *Engine) Cart() models.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneCart(e.cart)
}

func (e *Engine) Decisions() []models.SubstitutionDecision {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.SubstitutionDecision(nil), e.ledger...)
}

// OrderPayload builds the placement sent at checkout. Decisions are stamped
// with orderID.
func (e *Engine) OrderPayload(orderID string) models.OrderPlacement {
	e.mu.Lock()
	defer e.mu.Unlock()

	decisions := make([]models.SubstitutionDecision, len(e.ledger))
	for i, d := range e.ledger {
		d.OrderID = orderID
		decisions[i] = d
	}
	cart := cloneCart(e.cart)
	return models.OrderPlacement{
		OrderID:       orderID,
		CustomerID:    cart.CustomerID,
		RestaurantID:  cart.RestaurantID,
		Lines:         cart.Lines,
		Total:         cart.Total(),
		Substitutions: decisions,
	}
}

func cloneCart(c models.Cart) models.Cart {
	c.Lines = append([]models.CartLine(nil), c.Lines...)
	return c
}
