package fiber

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/gopurchase/pkg/platform/memory"
	"github.com/mihaimyh/gopurchase/pkg/purchase"
)

// Test helper to create an initialized manager over a memory platform
func setupTestManager(t *testing.T) (*purchase.Manager, *memory.Platform) {
	t.Helper()

	platform := memory.New()
	platform.AddProduct(purchase.ProductDescriptor{Identifier: "pro_upgrade", Kind: purchase.KindNonConsumable})

	manager, err := purchase.NewManager(platform, purchase.Config{ProductIdentifiers: []string{"pro_upgrade"}})
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}
	if err := manager.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize manager: %v", err)
	}
	t.Cleanup(func() { _ = manager.Close() })

	return manager, platform
}

func setupApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Use(RequireEntitlement(cfg))
	app.Get("/premium/:product", func(c *fiber.Ctx) error {
		productID, _ := c.Locals(ProductIDKey).(string)
		return c.SendString(productID)
	})
	return app
}

func TestRequireEntitlement_Success(t *testing.T) {
	manager, _ := setupTestManager(t)
	if _, ok := manager.Purchase(context.Background(), "pro_upgrade").(purchase.Success); !ok {
		t.Fatal("Expected purchase to succeed")
	}

	app := setupApp(Config{Manager: manager, GetProductID: FromHeader("X-Product-ID")})

	req := httptest.NewRequest(http.MethodGet, "/premium/x", http.NoBody)
	req.Header.Set("X-Product-ID", "pro_upgrade")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "pro_upgrade" {
		t.Errorf("Expected 'pro_upgrade', got %s", string(body))
	}
}

func TestRequireEntitlement_NotEntitled(t *testing.T) {
	manager, _ := setupTestManager(t)
	app := setupApp(Config{Manager: manager, GetProductID: FixedProduct("pro_upgrade")})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/premium/x", http.NoBody))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("Expected status 402, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"product_id":"pro_upgrade"`) {
		t.Errorf("Expected product_id in body, got %s", string(body))
	}
}

func TestRequireEntitlement_CustomStatus(t *testing.T) {
	manager, _ := setupTestManager(t)
	app := setupApp(Config{
		Manager:               manager,
		GetProductID:          FixedProduct("pro_upgrade"),
		NotEntitledStatusCode: http.StatusForbidden,
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/premium/x", http.NoBody))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.StatusCode)
	}
}

func TestRequireEntitlement_MissingProduct(t *testing.T) {
	manager, _ := setupTestManager(t)

	var gotErr error
	app := setupApp(Config{
		Manager:      manager,
		GetProductID: FromQuery("product"),
		OnError: func(c *fiber.Ctx, err error) error {
			gotErr = err
			return c.SendStatus(http.StatusTeapot)
		},
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/premium/x", http.NoBody))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", resp.StatusCode)
	}
	if !errors.Is(gotErr, ErrMissingProductID) {
		t.Errorf("Expected ErrMissingProductID, got %v", gotErr)
	}
}

func TestRequireEntitlement_DefaultMissingProduct(t *testing.T) {
	manager, _ := setupTestManager(t)
	app := setupApp(Config{Manager: manager, GetProductID: FromQuery("product")})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/premium/x", http.NoBody))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.StatusCode)
	}
}

func TestRequireEntitlement_PanicsWithoutExtractor(t *testing.T) {
	manager, _ := setupTestManager(t)
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for missing extractor")
		}
	}()
	RequireEntitlement(Config{Manager: manager})
}
