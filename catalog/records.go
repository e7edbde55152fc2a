package catalog

import (
	"slices"
	"strings"
)

// Product is a catalog item.
type Product struct {
	Meta
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
	Stock       int      `json:"stock,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Validate requires a name and a positive price.
func (p *Product) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" || p.Price <= 0 {
		return required("name", "price")
	}
	if p.Stock < 0 {
		return &ValidationError{Fields: []string{"stock"}, Reason: "must not be negative"}
	}
	return nil
}

func (p *Product) clone() Product {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	return c
}

// Client is a customer account.
type Client struct {
	Meta
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// Validate requires a name and an email address.
func (c *Client) Validate() error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Name == "" || c.Email == "" {
		return required("name", "email")
	}
	if !strings.Contains(c.Email, "@") {
		return &ValidationError{Fields: []string{"email"}, Reason: "is invalid"}
	}
	return nil
}

// Order statuses.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name,omitempty"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

// Totals are derived from the items on every write.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
}

// Order is a purchase by a client.
type Order struct {
	Meta
	ClientID string      `json:"clientId"`
	Items    []OrderItem `json:"items"`
	Totals   Totals      `json:"totals"`
	Status   string      `json:"status"`
	Notes    string      `json:"notes,omitempty"`
}

func (o *Order) clone() Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	return c
}

// Validate requires a client and at least one item with a positive
// quantity and a non-negative price.
func (o *Order) Validate() error {
	if o.ClientID == "" || len(o.Items) == 0 {
		return required("clientId", "items")
	}
	for _, it := range o.Items {
		if it.ProductID == "" || it.Quantity < 1 || it.Price < 0 {
			return &ValidationError{Fields: []string{"items"}, Reason: "need a productId, a quantity of at least 1 and a non-negative price"}
		}
	}
	switch o.Status {
	case "", OrderPending, OrderConfirmed, OrderShipped, OrderDelivered, OrderCancelled:
	default:
		return &ValidationError{Fields: []string{"status"}, Reason: "is not a known order status"}
	}
	return nil
}

// Normalize computes item subtotals and order totals and defaults the
// status to pending.
func (o *Order) Normalize() {
	var sub float64
	for i := range o.Items {
		o.Items[i].Subtotal = o.Items[i].Price * float64(o.Items[i].Quantity)
		sub += o.Items[i].Subtotal
	}
	o.Totals.Subtotal = sub
	o.Totals.Total = sub + o.Totals.Tax + o.Totals.Shipping
	if o.Status == "" {
		o.Status = OrderPending
	}
}

// SeedClients is the fallback client list served when the upstream client
// service is unavailable.
func SeedClients() []*Client {
	return []*Client{
		{Name: "Alice Johnson", Email: "alice@example.com", Username: "alice", Phone: "+1-555-0123"},
		{Name: "Bob Smith", Email: "bob@example.com", Username: "bob", Phone: "+1-555-0456"},
		{Name: "Maria García", Email: "maria@example.com", Username: "maria", Phone: "+52-555-0789"},
	}
}

// SeedProducts is the fallback product list served when the upstream
// product service is unavailable.
func SeedProducts() []*Product {
	return []*Product{
		{Name: "Laptop Gaming", Price: 1500},
		{Name: "Mouse Inalámbrico", Price: 50},
		{Name: "Teclado Mecánico", Price: 120},
	}
}
