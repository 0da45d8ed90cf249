// Command storefront is a smoke client for the shop backend: it logs in
// when credentials are configured, loads the catalog and the cart, and
// prints a short summary. Useful for checking connectivity and the wire
// contract against a running backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/planthaus/storefront/internal/backend"
	"github.com/planthaus/storefront/internal/domain/catalog"
	"github.com/planthaus/storefront/internal/engine"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	baseURL := getEnv("SHOP_API_URL", "http://localhost:8080")
	email := os.Getenv("SHOP_EMAIL")
	password := os.Getenv("SHOP_PASSWORD")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := backend.NewClient(baseURL, nil, logger)
	logger.Info("storefront client starting", zap.String("backend", baseURL))

	if email != "" && password != "" {
		session, err := client.Login(ctx, email, password)
		if err != nil {
			logger.Fatal("login failed", zap.Error(err))
		}
		logger.Info("logged in", zap.String("user_id", session.UserID()))
	}

	eng := engine.New(client, logger)
	if err := eng.Load(ctx); err != nil {
		logger.Warn("cart unavailable, continuing with empty cart", zap.Error(err))
	}

	plants, err := client.ListPlants(ctx)
	if err != nil {
		logger.Fatal("catalog unavailable", zap.Error(err))
	}
	logger.Info("catalog loaded", zap.Int("plants", len(plants)))

	plans, err := client.ListPlans(ctx)
	if err != nil {
		logger.Fatal("plans unavailable", zap.Error(err))
	}
	for _, plan := range plans {
		fmt.Printf("plan %d: %s at %s, bills %s\n",
			plan.ID, plan.Name, plan.Price.StringFixed(2),
			catalog.IntervalLabel(catalog.PlanIntervalDays(plan.ID)))
	}

	items := eng.Items()
	fmt.Printf("cart: %d line(s), total %s\n", len(items), eng.TotalPrice().StringFixed(2))
	for _, item := range items {
		name := ""
		switch {
		case item.Plant != nil:
			name = item.Plant.Name
			if item.Pot != nil {
				name += " + " + item.Pot.Name
			}
		case item.Plan != nil:
			name = item.Plan.Name
		}
		fmt.Printf("  %dx %s @ %s\n", item.Quantity, name, item.UnitPrice.StringFixed(2))
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
