package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"

	"github.com/sealor/shop-assistant/pkg/ucp"
)

// Shop is the subset of the UCP client the tools call.
type Shop interface {
	Products(ctx context.Context) (json.RawMessage, error)
	DiscountCodes(ctx context.Context) (json.RawMessage, error)
	User(ctx context.Context) (json.RawMessage, error)
	DiscoverMerchant(ctx context.Context) (json.RawMessage, error)
	CreateCheckout(ctx context.Context, req ucp.CreateCheckoutRequest) (json.RawMessage, error)
	ApplyDiscount(ctx context.Context, id, code string) (json.RawMessage, error)
	SetShippingAddress(ctx context.Context, id string, f ucp.Fulfillment) (json.RawMessage, error)
	CompleteCheckout(ctx context.Context, id string, req ucp.CompleteCheckoutRequest) (json.RawMessage, error)
}

type NoArguments struct{}

type CartItem struct {
	ProductID string `json:"product_id" jsonschema_description:"Product id as listed by get_available_products."`
	Quantity  int    `json:"quantity" jsonschema_description:"Number of units, at least 1."`
}

type CreateCartArguments struct {
	Items    []CartItem `json:"items" jsonschema_description:"Products to put in the cart."`
	Currency string     `json:"currency,omitempty" jsonschema_description:"ISO 4217 currency code, defaults to the merchant currency."`
}

type ApplyDiscountArguments struct {
	CartID string `json:"cart_id" jsonschema_description:"Checkout session id returned by create_cart."`
	Code   string `json:"code" jsonschema_description:"Discount code to apply."`
}

type SetShippingAddressArguments struct {
	CartID        string `json:"cart_id" jsonschema_description:"Checkout session id returned by create_cart."`
	AddressID     string `json:"address_id,omitempty" jsonschema_description:"Id of a saved address from get_your_user. Takes precedence over the address fields."`
	Name          string `json:"name,omitempty" jsonschema_description:"Recipient name."`
	StreetAddress string `json:"street_address,omitempty"`
	City          string `json:"city,omitempty"`
	Region        string `json:"region,omitempty" jsonschema_description:"State or region."`
	PostalCode    string `json:"postal_code,omitempty"`
	Country       string `json:"country,omitempty" jsonschema_description:"ISO 3166-1 alpha-2 country code."`
}

type CompletePurchaseArguments struct {
	CartID           string `json:"cart_id" jsonschema_description:"Checkout session id returned by create_cart."`
	PaymentHandlerID string `json:"payment_handler_id,omitempty" jsonschema_description:"Payment handler id from discover_merchant."`
	PaymentToken     string `json:"payment_token,omitempty" jsonschema_description:"Payment credential token."`
}

const (
	defaultPaymentHandler = "mock_payment_handler"
	defaultPaymentToken   = "success_token"
)

type handler func(ctx context.Context, shop Shop, arguments string) (json.RawMessage, error)

type tool struct {
	param   openai.ChatCompletionToolUnionParam
	handler handler
}

var tools = []struct {
	name string
	tool tool
}{
	{"get_available_products", tool{
		functionTool("get_available_products", "List the products the merchant sells, with ids and prices.", GenerateSchema[NoArguments]()),
		func(ctx context.Context, shop Shop, _ string) (json.RawMessage, error) { return shop.Products(ctx) },
	}},
	{"get_available_discount_codes", tool{
		functionTool("get_available_discount_codes", "List discount codes the shopper may apply to a cart.", GenerateSchema[NoArguments]()),
		func(ctx context.Context, shop Shop, _ string) (json.RawMessage, error) { return shop.DiscountCodes(ctx) },
	}},
	{"get_your_user", tool{
		functionTool("get_your_user", "Get the shopper's profile and saved shipping addresses.", GenerateSchema[NoArguments]()),
		func(ctx context.Context, shop Shop, _ string) (json.RawMessage, error) { return shop.User(ctx) },
	}},
	{"discover_merchant", tool{
		functionTool("discover_merchant", "Get the merchant's profile, capabilities and accepted payment handlers.", GenerateSchema[NoArguments]()),
		func(ctx context.Context, shop Shop, _ string) (json.RawMessage, error) { return shop.DiscoverMerchant(ctx) },
	}},
	{"create_cart", tool{
		functionTool("create_cart", "Create a shopping cart (checkout session) with the given products.", GenerateSchema[CreateCartArguments]()),
		createCart,
	}},
	{"apply_discount", tool{
		functionTool("apply_discount", "Apply a discount code to a cart.", GenerateSchema[ApplyDiscountArguments]()),
		applyDiscount,
	}},
	{"set_shipping_address", tool{
		functionTool("set_shipping_address", "Set the delivery address of a cart, either a saved address id or a full address.", GenerateSchema[SetShippingAddressArguments]()),
		setShippingAddress,
	}},
	{"complete_purchase", tool{
		functionTool("complete_purchase", "Complete the checkout of a cart. Only call after the shopper confirmed.", GenerateSchema[CompletePurchaseArguments]()),
		completePurchase,
	}},
}

func decode[T any](name, arguments string) (T, error) {
	var args T
	if strings.TrimSpace(arguments) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return args, fmt.Errorf("%s: invalid arguments: %w", name, err)
	}
	return args, nil
}

func createCart(ctx context.Context, shop Shop, arguments string) (json.RawMessage, error) {
	args, err := decode[CreateCartArguments]("create_cart", arguments)
	if err != nil {
		return nil, err
	}
	if len(args.Items) == 0 {
		return nil, errors.New("create_cart: items is empty")
	}
	req := ucp.CreateCheckoutRequest{Currency: strings.ToUpper(strings.TrimSpace(args.Currency))}
	for _, item := range args.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, errors.New("create_cart: product_id is empty")
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("create_cart: quantity of %s must be at least 1", item.ProductID)
		}
		req.LineItems = append(req.LineItems, ucp.LineItem{Item: ucp.Item{ID: item.ProductID}, Quantity: item.Quantity})
	}
	return shop.CreateCheckout(ctx, req)
}

func applyDiscount(ctx context.Context, shop Shop, arguments string) (json.RawMessage, error) {
	args, err := decode[ApplyDiscountArguments]("apply_discount", arguments)
	if err != nil {
		return nil, err
	}
	if args.CartID == "" {
		return nil, errors.New("apply_discount: cart_id is empty")
	}
	return shop.ApplyDiscount(ctx, args.CartID, args.Code)
}

func setShippingAddress(ctx context.Context, shop Shop, arguments string) (json.RawMessage, error) {
	args, err := decode[SetShippingAddressArguments]("set_shipping_address", arguments)
	if err != nil {
		return nil, err
	}
	if args.CartID == "" {
		return nil, errors.New("set_shipping_address: cart_id is empty")
	}
	f := ucp.Fulfillment{AddressID: strings.TrimSpace(args.AddressID)}
	if f.AddressID == "" {
		if args.StreetAddress == "" || args.City == "" || args.Country == "" {
			return nil, errors.New("set_shipping_address: give address_id or street_address, city and country")
		}
		f.Destination = &ucp.PostalAddress{
			Name:            args.Name,
			StreetAddress:   args.StreetAddress,
			AddressLocality: args.City,
			AddressRegion:   args.Region,
			PostalCode:      args.PostalCode,
			AddressCountry:  strings.ToUpper(args.Country),
		}
	}
	return shop.SetShippingAddress(ctx, args.CartID, f)
}

func completePurchase(ctx context.Context, shop Shop, arguments string) (json.RawMessage, error) {
	args, err := decode[CompletePurchaseArguments]("complete_purchase", arguments)
	if err != nil {
		return nil, err
	}
	if args.CartID == "" {
		return nil, errors.New("complete_purchase: cart_id is empty")
	}
	data := ucp.PaymentData{
		HandlerID:  args.PaymentHandlerID,
		Credential: ucp.PaymentCredential{Type: "token", Token: args.PaymentToken},
	}
	if data.HandlerID == "" {
		data.HandlerID = defaultPaymentHandler
	}
	if data.Credential.Token == "" {
		data.Credential.Token = defaultPaymentToken
	}
	return shop.CompleteCheckout(ctx, args.CartID, ucp.CompleteCheckoutRequest{PaymentData: data})
}
