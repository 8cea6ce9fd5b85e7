// Package checkout assembles an order at checkout time: it settles the
// substitutions for items that ran out, prices the delivery promise and hands
// the result to storage and the audit trail.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lucsky/cuid"
	"github.com/sirupsen/logrus"

	"github.com/chrisdamba/foodmarket/internal/audit"
	"github.com/chrisdamba/foodmarket/internal/eta"
	"github.com/chrisdamba/foodmarket/internal/models"
	"github.com/chrisdamba/foodmarket/internal/repositories"
	"github.com/chrisdamba/foodmarket/internal/substitution"
)

// Prompt is a substitution the customer still has to answer.
type Prompt struct {
	ItemID        string            `json:"item_id"`
	Substitute    models.MenuItem   `json:"substitute"`
	PriceDeltaPct string            `json:"price_delta_pct"`
	Choices       []models.Decision `json:"choices"`
}

type Result struct {
	Order   models.OrderPlacement `json:"order"`
	Band    eta.Band              `json:"band"`
	Prompts []Prompt              `json:"prompts,omitempty"`
}

// MessageWriter is satisfied by every output destination.
type MessageWriter interface {
	WriteMessage(topic string, msg []byte) error
}

type Service struct {
	etaCfg       models.EtaConfig
	allowedDelta substitution.Option

	ledger   repositories.DecisionRepository
	archive  MessageWriter
	recorder *audit.Recorder

	now    func() time.Time
	newID  func() string
	logger logrus.FieldLogger
}

type Option func(*Service)

func WithLedger(repo repositories.DecisionRepository) Option {
	return func(s *Service) { s.ledger = repo }
}

func WithArchive(w MessageWriter) Option {
	return func(s *Service) { s.archive = w }
}

func WithRecorder(r *audit.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(cfg *models.Config, opts ...Option) *Service {
	s := &Service{
		etaCfg: cfg.Eta,
		now:    time.Now,
		newID:  cuid.New,
		logger: logrus.StandardLogger().WithField("component", "checkout"),
	}
	if !cfg.Substitution.DefaultMaxPriceDeltaPct.IsZero() {
		s.allowedDelta = substitution.WithAllowedDeltaPct(cfg.Substitution.DefaultMaxPriceDeltaPct)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout settles req and places the order. Unavailable lines with an
// auto-apply rule inside tolerance are swapped, prompts with an answer in
// req.Choices are applied and the rest are returned unanswered.
func (s *Service) Checkout(ctx context.Context, req models.CheckoutRequest) (*Result, error) {
	now := s.now()
	engineOpts := []substitution.Option{
		substitution.WithNow(s.now),
		substitution.WithLogger(s.logger),
	}
	if s.allowedDelta != nil {
		engineOpts = append(engineOpts, s.allowedDelta)
	}
	engine := substitution.NewEngine(req.Cart, engineOpts...)

	var prompts []Prompt
	for _, itemID := range req.Unavailable {
		rule := req.RuleFor(itemID)
		res, err := engine.HandleUnavailable(itemID, rule)
		if errors.Is(err, substitution.ErrLineNotFound) {
			s.logger.WithField("item_id", itemID).Warn("unavailable item is not in the cart")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", itemID, err)
		}
		if res.Outcome != substitution.OutcomePrompt {
			continue
		}
		if choice, ok := req.Choices[itemID]; ok {
			if _, err := engine.ApplySubstitutionChoice(itemID, &rule.Substitute, false, choice); err != nil {
				return nil, fmt.Errorf("apply choice for %s: %w", itemID, err)
			}
			continue
		}
		prompts = append(prompts, Prompt{
			ItemID:        itemID,
			Substitute:    rule.Substitute,
			PriceDeltaPct: res.PriceDeltaPct.StringFixed(2),
			Choices:       substitution.PromptChoices,
		})
	}

	band, err := s.EstimateBand(req)
	if err != nil {
		return nil, err
	}
	promise := eta.TimestampsFromNow(band, now)

	orderID := s.newID()
	order := engine.OrderPayload(orderID)
	order.Promise = &models.DeliveryPromise{
		PromisedAt: promise.Promised,
		EarliestAt: promise.Low,
		LatestAt:   promise.High,
		Trusted:    band.Trusted,
	}

	if len(prompts) > 0 {
		// the order is not placed until every prompt is answered
		return &Result{Order: order, Band: band, Prompts: prompts}, nil
	}

	if s.ledger != nil {
		if err := s.ledger.SaveLedger(ctx, orderID, order.Substitutions); err != nil {
			return nil, fmt.Errorf("save substitution ledger: %w", err)
		}
	}
	if err := s.archiveDecisions(order.Substitutions); err != nil {
		return nil, err
	}
	if err := s.recordPlaced(order); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":      orderID,
		"total":         order.Total.StringFixed(2),
		"substitutions": len(order.Substitutions),
		"eta_minutes":   band.EtaMinutes,
		"trusted":       band.Trusted,
	}).Info("order placed")
	return &Result{Order: order, Band: band}, nil
}

// EstimateBand derives estimator inputs from the restaurant's recent orders.
// Without history the restaurant's average prep time stands in for both
// percentiles and the data is reported stale.
func (s *Service) EstimateBand(req models.CheckoutRequest) (eta.Band, error) {
	weather, err := eta.ParseWeather(req.Weather)
	if err != nil {
		return eta.Band{}, err
	}

	recent := req.RecentOrders
	if window := s.etaCfg.HistoryWindow; window > 0 && len(recent) > window {
		recent = recent[:window]
	}
	samples := eta.PrepMinutes(recent)

	p50, p90 := req.Restaurant.AvgPrepTime, req.Restaurant.AvgPrepTime
	if len(samples) > 0 {
		p50, p90 = eta.PrepPercentiles(samples)
	}

	speed := s.etaCfg.CourierSpeedKmh
	if speed <= 0 {
		speed = 18
	}
	in := eta.NewInput(p50, p90, eta.TravelMinutes(req.Restaurant.Location, req.CustomerLocation, speed))
	in.Weather = weather
	if s.etaCfg.BufferMinutes > 0 {
		in.BufferMinutes = s.etaCfg.BufferMinutes
	}
	if len(samples) > 0 {
		in.ReliabilityScore = eta.ReliabilityFromOrders(recent)
	} else {
		in.DataFresh = false
		if s.etaCfg.DefaultReliability > 0 {
			in.ReliabilityScore = s.etaCfg.DefaultReliability
		}
	}
	return eta.ComputeBand(in), nil
}

func (s *Service) archiveDecisions(decisions []models.SubstitutionDecision) error {
	if s.archive == nil {
		return nil
	}
	for _, d := range decisions {
		msg, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal decision %s: %w", d.ID, err)
		}
		if err := s.archive.WriteMessage(models.TopicSubstitutionDecisions, msg); err != nil {
			return fmt.Errorf("archive decision %s: %w", d.ID, err)
		}
	}
	return nil
}

func (s *Service) recordPlaced(order models.OrderPlacement) error {
	if s.recorder == nil {
		return nil
	}
	placed, err := audit.NewRecord(models.AuditEventOrderPlaced, order.CustomerID, "order", order.OrderID,
		audit.DeriveIdempotencyKey("order", order.OrderID), order)
	if err != nil {
		return err
	}
	s.recorder.Record(placed)

	if order.Promise == nil {
		return nil
	}
	shown, err := audit.NewRecord(models.AuditEventPromiseDisplayed, order.CustomerID, "order", order.OrderID,
		audit.DeriveIdempotencyKey("promise", order.OrderID), order.Promise)
	if err != nil {
		return err
	}
	s.recorder.Record(shown)
	return nil
}
