// Package contracts defines the payloads carried on each bus topic. Errors
// travel in bus.Envelope.Error, never inside these payloads.
package contracts

import (
	"strings"

	"github.com/sgandhi15/ecommerce-api/internal/domain"

	"github.com/shopspring/decimal"
)

type UserLookupRequest struct {
	Email string `json:"email"`
}

// UserLookupReply carries a nil User when nobody has that email.
type UserLookupReply struct {
	User *domain.User `json:"user"`
}

type ProductLookupRequest struct {
	ProductID string `json:"productId"`
}

type ProductLookupReply struct {
	Product *domain.Product `json:"product"`
}

type StockItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type StockValidationRequest struct {
	Items []StockItem `json:"items"`
}

type StockValidationResult struct {
	ProductID         string `json:"productId"`
	IsValid           bool   `json:"isValid"`
	AvailableStock    int    `json:"availableStock"`
	RequestedQuantity int    `json:"requestedQuantity"`
	Error             string `json:"error,omitempty"`
}

type StockValidationReply struct {
	ValidationResults []StockValidationResult `json:"validationResults"`
	AllValid          bool                    `json:"allValid"`
}

// FailureReasons joins the error of every invalid line with "; ".
func (r StockValidationReply) FailureReasons() string {
	var reasons []string
	for _, res := range r.ValidationResults {
		if !res.IsValid && res.Error != "" {
			reasons = append(reasons, res.Error)
		}
	}
	return strings.Join(reasons, "; ")
}

type CartLookupRequest struct {
	UserEmail string `json:"userEmail"`
}

type CartLookupReply struct {
	Cart *domain.Cart `json:"cart"`
}

type CartClearRequest struct {
	UserEmail string `json:"userEmail"`
}

type CartClearReply struct {
	Success bool `json:"success"`
}

type OrderCreatedLine struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// OrderCreated is broadcast once an order is persisted. Nobody replies to it.
type OrderCreated struct {
	OrderID     string             `json:"orderId"`
	UserID      string             `json:"userId"`
	OrderNumber string             `json:"orderNumber"`
	Items       []OrderCreatedLine `json:"items"`
	TotalAmount decimal.Decimal    `json:"totalAmount"`
}

func NewOrderCreated(o *domain.Order) OrderCreated {
	items := make([]OrderCreatedLine, 0, len(o.Items))
	for _, l := range o.Items {
		items = append(items, OrderCreatedLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return OrderCreated{
		OrderID:     o.ID,
		UserID:      o.UserID,
		OrderNumber: o.OrderNumber,
		Items:       items,
		TotalAmount: o.TotalAmount,
	}
}

// StockItemsFromCart turns cart lines into a stock validation request.
func StockItemsFromCart(c *domain.Cart) []StockItem {
	items := make([]StockItem, 0, len(c.Items))
	for _, l := range c.Items {
		items = append(items, StockItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}
