package ucp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// LineItem is one product line of a new checkout session.
type LineItem struct {
	Item     Item `json:"item"`
	Quantity int  `json:"quantity"`
}

type Item struct {
	ID string `json:"id"`
}

type CreateCheckoutRequest struct {
	LineItems []LineItem `json:"line_items"`
	Currency  string     `json:"currency,omitempty"`
}

// PostalAddress follows the schema.org field names used by UCP.
type PostalAddress struct {
	Name            string `json:"name,omitempty"`
	StreetAddress   string `json:"street_address,omitempty"`
	AddressLocality string `json:"address_locality,omitempty"`
	AddressRegion   string `json:"address_region,omitempty"`
	PostalCode      string `json:"postal_code,omitempty"`
	AddressCountry  string `json:"address_country,omitempty"`
}

type Fulfillment struct {
	AddressID   string         `json:"address_id,omitempty"`
	Destination *PostalAddress `json:"destination,omitempty"`
}

type Discounts struct {
	Codes []string `json:"codes"`
}

type UpdateCheckoutRequest struct {
	Discounts   *Discounts   `json:"discounts,omitempty"`
	Fulfillment *Fulfillment `json:"fulfillment,omitempty"`
}

type PaymentCredential struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type PaymentData struct {
	HandlerID  string            `json:"handler_id"`
	Credential PaymentCredential `json:"credential"`
}

type CompleteCheckoutRequest struct {
	PaymentData PaymentData `json:"payment_data"`
}

var errEmptyCheckoutID = errors.New("ucp: empty checkout session id")

func checkoutPath(id string, suffix string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errEmptyCheckoutID
	}
	return "/checkout-sessions/" + url.PathEscape(id) + suffix, nil
}

func (c *Client) Products(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/products")
}

func (c *Client) DiscountCodes(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/discount-codes")
}

// User returns the demo shopper's profile including saved addresses.
func (c *Client) User(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/user")
}

// DiscoverMerchant fetches the merchant's UCP profile: capabilities and
// accepted payment handlers.
func (c *Client) DiscoverMerchant(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/.well-known/ucp")
}

func (c *Client) CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (json.RawMessage, error) {
	if len(req.LineItems) == 0 {
		return nil, errors.New("ucp: checkout needs at least one line item")
	}
	return c.do(ctx, http.MethodPost, "/checkout-sessions", req)
}

func (c *Client) UpdateCheckout(ctx context.Context, id string, req UpdateCheckoutRequest) (json.RawMessage, error) {
	path, err := checkoutPath(id, "")
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPut, path, req)
}

func (c *Client) ApplyDiscount(ctx context.Context, id, code string) (json.RawMessage, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("ucp: empty discount code")
	}
	return c.UpdateCheckout(ctx, id, UpdateCheckoutRequest{Discounts: &Discounts{Codes: []string{code}}})
}

func (c *Client) SetShippingAddress(ctx context.Context, id string, f Fulfillment) (json.RawMessage, error) {
	if f.AddressID == "" && f.Destination == nil {
		return nil, errors.New("ucp: shipping needs an address id or a destination")
	}
	return c.UpdateCheckout(ctx, id, UpdateCheckoutRequest{Fulfillment: &f})
}

func (c *Client) CompleteCheckout(ctx context.Context, id string, req CompleteCheckoutRequest) (json.RawMessage, error) {
	path, err := checkoutPath(id, "/complete")
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, req)
}
