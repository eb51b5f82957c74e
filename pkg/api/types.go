package api

import "github.com/mihaimyh/gopurchase/pkg/purchase"

// PurchaseRequest is the body of a purchase request
type PurchaseRequest struct {
	ProductID string `json:"product_id"`
}

// ProductsResponse lists resolved products
type ProductsResponse struct {
	Products []purchase.ProductDescriptor `json:"products"`
}

// EntitlementResponse reports the entitlement state of one product
type EntitlementResponse struct {
	ProductID string `json:"product_id"`
	Entitled  bool   `json:"entitled"`
}

// EntitlementsResponse lists every entitled product
type EntitlementsResponse struct {
	Entitlements []string `json:"entitlements"`
}
