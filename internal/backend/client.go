// Package backend is the HTTP consumer of the remote shop service. It maps
// the wire shapes onto the domain types and attaches the bearer credential
// where a call requires one. All business logic lives on the other side of
// this client.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/planthaus/storefront/internal/auth"
	"github.com/planthaus/storefront/internal/checkout"
	"github.com/planthaus/storefront/internal/domain/cart"
	"github.com/planthaus/storefront/internal/domain/catalog"
)

// DefaultTimeout bounds every remote call. The backend publishes no timeout
// contract, so expiry is treated like any other remote failure.
const DefaultTimeout = 15 * time.Second

// APIError is a non-2xx response decoded from the backend's error envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Client talks to the shop backend. It satisfies the cart engine's
// CartService and the checkout's OrderService.
type Client struct {
	baseURL string
	http    *http.Client
	session *auth.Session
	log     *zap.Logger
}

func NewClient(baseURL string, session *auth.Session, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		session: session,
		log:     log,
	}
}

// SetSession swaps the credential after login or logout (nil).
func (c *Client) SetSession(session *auth.Session) {
	c.session = session
}

func (c *Client) Session() *auth.Session {
	return c.session
}

// cartLine is the wire shape of one cart line.
type cartLine struct {
	ID        string                    `json:"id"`
	Kind      string                    `json:"kind"`
	Amount    int                       `json:"amount"`
	UnitPrice decimal.Decimal           `json:"unit_price"`
	Plant     *catalog.Plant            `json:"plant,omitempty"`
	Pot       *catalog.Pot              `json:"pot,omitempty"`
	Plan      *catalog.SubscriptionPlan `json:"plan,omitempty"`
}

func (l cartLine) toItem() cart.Item {
	return cart.Item{
		ID:        l.ID,
		Kind:      cart.Kind(l.Kind),
		Quantity:  l.Amount,
		UnitPrice: l.UnitPrice,
		Plant:     l.Plant,
		Pot:       l.Pot,
		Plan:      l.Plan,
	}
}

// FetchCart returns the authoritative cart for the current user.
func (c *Client) FetchCart(ctx context.Context) ([]cart.Item, error) {
	var resp struct {
		Items []cartLine `json:"items"`
	}
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &resp, false); err != nil {
		return nil, fmt.Errorf("fetch cart: %w", err)
	}
	items := make([]cart.Item, 0, len(resp.Items))
	for _, line := range resp.Items {
		items = append(items, line.toItem())
	}
	return items, nil
}

// AddLine creates or increments a remote cart line. The response carries the
// server-assigned line id and unit price, which override the optimistic
// values.
func (c *Client) AddLine(ctx context.Context, item cart.Item, amount int) (string, decimal.Decimal, error) {
	req := struct {
		UserID       string `json:"user_id"`
		ItemID       int64  `json:"item_id"`
		Amount       int    `json:"amount"`
		CartItemID   string `json:"cart_item_id"`
		Subscription bool   `json:"subscription"`
		PotID        *int64 `json:"pot_id,omitempty"`
	}{
		UserID:       c.userID(),
		ItemID:       item.RefID(),
		Amount:       amount,
		CartItemID:   item.ID,
		Subscription: item.Kind == cart.KindSubscription,
	}
	if item.Pot != nil {
		// The pot rides along so the server can key the line by selection.
		req.PotID = &item.Pot.ID
	}
	var resp struct {
		ID        string          `json:"id"`
		UnitPrice decimal.Decimal `json:"unit_price"`
	}
	if err := c.do(ctx, http.MethodPost, "/cart/items", req, &resp, false); err != nil {
		return "", decimal.Zero, fmt.Errorf("add cart line: %w", err)
	}
	return resp.ID, resp.UnitPrice, nil
}

// UpdateLineQuantity sets the absolute quantity of a line.
func (c *Client) UpdateLineQuantity(ctx context.Context, item cart.Item, amount int) error {
	req := struct {
		UserID string `json:"user_id"`
		ItemID int64  `json:"item_id"`
		Amount int    `json:"amount"`
	}{
		UserID: c.userID(),
		ItemID: item.RefID(),
		Amount: amount,
	}
	if err := c.do(ctx, http.MethodPut, "/cart/items", req, nil, false); err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	return nil
}

// RemoveLine deletes a line by its cart-item id.
func (c *Client) RemoveLine(ctx context.Context, lineID string) error {
	if err := c.do(ctx, http.MethodDelete, "/cart/items/"+lineID, nil, nil, false); err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}
	return nil
}

// CartTotal returns the server-computed total, available as a cross-check
// against the engine's own derived total.
func (c *Client) CartTotal(ctx context.Context) (decimal.Decimal, error) {
	var resp struct {
		Total decimal.Decimal `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, "/cart/total", nil, &resp, false); err != nil {
		return decimal.Zero, fmt.Errorf("cart total: %w", err)
	}
	return resp.Total, nil
}

// PlaceOrder submits a checkout order.
func (c *Client) PlaceOrder(ctx context.Context, order checkout.Order) error {
	if err := c.do(ctx, http.MethodPost, "/orders", order, nil, false); err != nil {
		return fmt.Errorf("place order: %w", err)
	}
	return nil
}

// Subscribe enrolls the logged-in user in a plan. Requires a live session;
// the precondition fails client-side, nothing is sent.
func (c *Client) Subscribe(ctx context.Context, planID int64, intervalDays int) error {
	req := struct {
		PlanID       int64 `json:"plan_id"`
		IntervalDays int   `json:"interval_days"`
	}{PlanID: planID, IntervalDays: intervalDays}
	if err := c.do(ctx, http.MethodPost, "/subscriptions", req, nil, true); err != nil {
		return fmt.Errorf("subscribe to plan %d: %w", planID, err)
	}
	return nil
}

// Login exchanges credentials for a session and installs it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	req := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{Email: email, Password: password}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp, false); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	session, err := auth.NewSession(resp.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.session = session
	return session, nil
}

// ListPlants returns the plant catalog.
func (c *Client) ListPlants(ctx context.Context) ([]catalog.Plant, error) {
	var plants []catalog.Plant
	if err := c.do(ctx, http.MethodGet, "/plants", nil, &plants, false); err != nil {
		return nil, fmt.Errorf("list plants: %w", err)
	}
	return plants, nil
}

func (c *Client) GetPlant(ctx context.Context, id int64) (catalog.Plant, error) {
	var plant catalog.Plant
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/plants/%d", id), nil, &plant, false); err != nil {
		return catalog.Plant{}, fmt.Errorf("get plant %d: %w", id, err)
	}
	return plant, nil
}

func (c *Client) ListPots(ctx context.Context) ([]catalog.Pot, error) {
	var pots []catalog.Pot
	if err := c.do(ctx, http.MethodGet, "/pots", nil, &pots, false); err != nil {
		return nil, fmt.Errorf("list pots: %w", err)
	}
	return pots, nil
}

func (c *Client) ListPlans(ctx context.Context) ([]catalog.SubscriptionPlan, error) {
	var plans []catalog.SubscriptionPlan
	if err := c.do(ctx, http.MethodGet, "/plans", nil, &plans, false); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

func (c *Client) ListReviews(ctx context.Context, plantID int64) ([]catalog.Review, error) {
	var reviews []catalog.Review
	path := fmt.Sprintf("/plants/%d/reviews", plantID)
	if err := c.do(ctx, http.MethodGet, path, nil, &reviews, false); err != nil {
		return nil, fmt.Errorf("list reviews for plant %d: %w", plantID, err)
	}
	return reviews, nil
}

// PostReview publishes a review under the logged-in user.
func (c *Client) PostReview(ctx context.Context, review catalog.Review) error {
	path := fmt.Sprintf("/plants/%d/reviews", review.PlantID)
	if err := c.do(ctx, http.MethodPost, path, review, nil, true); err != nil {
		return fmt.Errorf("post review: %w", err)
	}
	return nil
}

// Profile is the user's account details as served by the backend.
type Profile struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

func (c *Client) GetProfile(ctx context.Context) (Profile, error) {
	var profile Profile
	if err := c.do(ctx, http.MethodGet, "/profile", nil, &profile, true); err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

func (c *Client) UpdateProfile(ctx context.Context, profile Profile) error {
	if err := c.do(ctx, http.MethodPut, "/profile", profile, nil, true); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func (c *Client) userID() string {
	if c.session.Live() {
		return c.session.UserID()
	}
	return ""
}

// do runs one request. When authRequired is set and no live session exists
// the call fails before anything is sent.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authRequired bool) error {
	if authRequired && !c.session.Live() {
		return auth.ErrAuthRequired
	}

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.session.Live() {
		c.session.Decorate(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
		}
		c.log.Debug("backend call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
