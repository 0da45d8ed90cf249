// Package checkout flattens the cart into the order payload the shop
// backend expects and drives order placement plus the follow-up
// subscription calls.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/planthaus/storefront/internal/auth"
	"github.com/planthaus/storefront/internal/domain/cart"
	"github.com/planthaus/storefront/internal/domain/catalog"
	"github.com/planthaus/storefront/internal/engine"
)

var ErrEmptyCart = errors.New("cart is empty, nothing to checkout")

// ShippingDetails is the checkout form's shipping section.
type ShippingDetails struct {
	FullName   string `json:"full_name"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

// PaymentDetails carries the tokenized payment selection. Raw card data
// never reaches this layer.
type PaymentDetails struct {
	Method    string `json:"method"`
	CardToken string `json:"card_token,omitempty"`
}

// OrderLine is one flattened cart line. The order-processing service
// discriminates line type by the null/non-null pattern: plant lines carry
// plant and pot fields with the subscription fields null, subscription lines
// the reverse. The pointers therefore serialize explicit nulls and must not
// gain omitempty.
type OrderLine struct {
	Amount               int             `json:"amount"`
	UnitPrice            decimal.Decimal `json:"unit_price"`
	Subscription         bool            `json:"subscription"`
	PlantID              *int64          `json:"plant_id"`
	PlantName            *string         `json:"plant_name"`
	PotID                *int64          `json:"pot_id"`
	PotName              *string         `json:"pot_name"`
	SubscriptionPlanID   *int64          `json:"subscription_plan_id"`
	SubscriptionPlanName *string         `json:"subscription_plan_name"`
}

// Order is assembled from the cart at submission time and never mutated
// afterwards.
type Order struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Shipping       ShippingDetails `json:"shipping"`
	Payment        PaymentDetails  `json:"payment"`
	Lines          []OrderLine     `json:"lines"`
	Total          decimal.Decimal `json:"total"`
}

// AssembleOrder flattens the given lines into an order payload.
func AssembleOrder(items []cart.Item, shipping ShippingDetails, payment PaymentDetails) (Order, error) {
	if len(items) == 0 {
		return Order{}, ErrEmptyCart
	}

	order := Order{
		IdempotencyKey: uuid.NewString(),
		Shipping:       shipping,
		Payment:        payment,
		Lines:          make([]OrderLine, 0, len(items)),
	}
	total := decimal.Zero
	for _, item := range items {
		line := OrderLine{
			Amount:       item.Quantity,
			UnitPrice:    item.UnitPrice,
			Subscription: item.Kind == cart.KindSubscription,
		}
		if item.Kind == cart.KindSubscription {
			planID, planName := item.Plan.ID, item.Plan.Name
			line.SubscriptionPlanID = &planID
			line.SubscriptionPlanName = &planName
		} else {
			plantID, plantName := item.Plant.ID, item.Plant.Name
			line.PlantID = &plantID
			line.PlantName = &plantName
			if item.Pot != nil {
				potID, potName := item.Pot.ID, item.Pot.Name
				line.PotID = &potID
				line.PotName = &potName
			}
		}
		order.Lines = append(order.Lines, line)
		total = total.Add(item.LineTotal())
	}
	order.Total = total
	return order, nil
}

// PlanFailure names one plan whose subscribe call failed after the order
// itself was placed.
type PlanFailure struct {
	PlanID   int64
	PlanName string
	Err      error
}

// PartialError reports a placed order whose follow-up subscribe calls did
// not all succeed. The cart is still cleared because the order went through;
// the caller must surface the failed plans.
type PartialError struct {
	Failures []PlanFailure
}

func (e *PartialError) Error() string {
	names := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		names = append(names, fmt.Sprintf("%s (plan %d)", f.PlanName, f.PlanID))
	}
	return "order placed but subscriptions failed: " + strings.Join(names, ", ")
}

// OrderService is the remote side of checkout.
type OrderService interface {
	PlaceOrder(ctx context.Context, order Order) error
	Subscribe(ctx context.Context, planID int64, intervalDays int) error
}

// Checkout drives one checkout flow against the cart engine and the remote
// order service.
type Checkout struct {
	remote  OrderService
	engine  *engine.Engine
	session *auth.Session
	log     *zap.Logger
}

func New(remote OrderService, eng *engine.Engine, session *auth.Session, log *zap.Logger) *Checkout {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checkout{remote: remote, engine: eng, session: session, log: log}
}

// Place submits the current cart as an order. Subscription lines each
// trigger one subscribe call after the order resolves, all issued
// concurrently; the checkout succeeds only once every call has resolved.
// Subscribe failures after a placed order surface as *PartialError with the
// cart already cleared.
func (c *Checkout) Place(ctx context.Context, shipping ShippingDetails, payment PaymentDetails) error {
	items := c.engine.Items()
	order, err := AssembleOrder(items, shipping, payment)
	if err != nil {
		return err
	}

	var plans []catalog.SubscriptionPlan
	for _, item := range items {
		if item.Kind == cart.KindSubscription {
			plans = append(plans, *item.Plan)
		}
	}
	// Subscribing needs a logged-in user; fail before any network call
	// rather than strand a placed order without its subscriptions.
	if len(plans) > 0 && !c.session.Live() {
		return auth.ErrAuthRequired
	}

	if err := c.remote.PlaceOrder(ctx, order); err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []PlanFailure
	)
	for _, plan := range plans {
		wg.Add(1)
		go func(plan catalog.SubscriptionPlan) {
			defer wg.Done()
			interval := catalog.PlanIntervalDays(plan.ID)
			if err := c.remote.Subscribe(ctx, plan.ID, interval); err != nil {
				c.log.Warn("subscribe after order failed",
					zap.Int64("plan_id", plan.ID),
					zap.Error(err))
				mu.Lock()
				failures = append(failures, PlanFailure{PlanID: plan.ID, PlanName: plan.Name, Err: err})
				mu.Unlock()
			}
		}(plan)
	}
	wg.Wait()

	// The backend consumed the cart with the order; drop the local mirror
	// even when some subscriptions failed, because the order itself stands.
	c.engine.Reset()

	if len(failures) > 0 {
		return &PartialError{Failures: failures}
	}
	return nil
}
