package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"storefront-checkout/internal/models"
	"storefront-checkout/internal/util"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Field names as the storefront sends them.
const (
	FieldProductID = "id_producto"
	FieldUnitPrice = "precio"
	FieldQuantity  = "quantity"
	FieldUserID    = "id_usuario"
)

// ProductCatalog is the read-only catalog lookup the assembler needs.
type ProductCatalog interface {
	GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error)
}

// CartLineInput is one raw line as posted by the browser.
type CartLineInput struct {
	ProductID string
	UnitPrice string
	Quantity  string
}

// CartLine is a validated line. UnitPrice is the price captured when the
// item was added, not the live catalog price.
type CartLine struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

// Total is quantity times unit price.
func (l CartLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Cart is the priced result of assembling a checkout.
type Cart struct {
	UserID   string
	Lines    []CartLine
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// ProductIDs returns the distinct product ids in ascending order.
func (c *Cart) ProductIDs() []int64 {
	seen := make(map[int64]bool, len(c.Lines))
	ids := make([]int64, 0, len(c.Lines))
	for _, l := range c.Lines {
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CartAssembler validates cart lines and prices them.
type CartAssembler struct {
	catalog  ProductCatalog
	shipping decimal.Decimal
}

func NewCartAssembler(catalog ProductCatalog, shipping decimal.Decimal) *CartAssembler {
	return &CartAssembler{catalog: catalog, shipping: shipping}
}

// Assemble validates every line before touching the catalog and fails on
// the first bad line. Nothing is partially accepted.
func (a *CartAssembler) Assemble(ctx context.Context, userID string, in []CartLineInput) (*Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartAssembler.Assemble", attribute.Int("lines", len(in)))
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &ValidationError{Code: CodeInvalidUser, Line: -1, Field: FieldUserID, Reason: "is required"}
	}
	if len(in) == 0 {
		return nil, &ValidationError{Code: CodeEmptyCart, Line: -1, Field: "cartItems", Reason: "cart is empty"}
	}

	lines := make([]CartLine, 0, len(in))
	for i, raw := range in {
		line, err := parseLine(i, raw)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	cart := &Cart{UserID: userID, Lines: lines}
	if err := a.checkCatalog(ctx, cart); err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}
	cart.Subtotal = subtotal.Round(2)
	cart.Shipping = a.shipping.Round(2)
	cart.Total = cart.Subtotal.Add(cart.Shipping)
	return cart, nil
}

func (a *CartAssembler) checkCatalog(ctx context.Context, cart *Cart) error {
	products, err := a.catalog.GetProductsByIDs(ctx, cart.ProductIDs())
	if err != nil {
		return &PersistenceError{Op: "catalog lookup", Err: err}
	}

	known := make(map[int64]bool, len(products))
	for _, p := range products {
		known[p.ID] = true
	}
	for i, l := range cart.Lines {
		if !known[l.ProductID] {
			return &ValidationError{
				Code:   CodeProductNotFound,
				Line:   i,
				Field:  FieldProductID,
				Reason: fmt.Sprintf("product %d does not exist", l.ProductID),
			}
		}
	}
	return nil
}

func parseLine(i int, raw CartLineInput) (CartLine, error) {
	invalid := func(field, reason string) error {
		return &ValidationError{Code: CodeInvalidItem, Line: i, Field: field, Reason: reason}
	}

	id, err := strconv.ParseInt(strings.TrimSpace(raw.ProductID), 10, 64)
	if err != nil || id <= 0 {
		return CartLine{}, invalid(FieldProductID, "must be a positive integer")
	}

	price, err := decimal.NewFromString(strings.TrimSpace(raw.UnitPrice))
	if err != nil {
		return CartLine{}, invalid(FieldUnitPrice, "must be a number")
	}
	if !price.IsPositive() {
		return CartLine{}, invalid(FieldUnitPrice, "must be positive")
	}
	if !price.Equal(price.Round(2)) {
		return CartLine{}, invalid(FieldUnitPrice, "must have at most 2 decimal places")
	}

	qty, err := decimal.NewFromString(strings.TrimSpace(raw.Quantity))
	if err != nil {
		return CartLine{}, invalid(FieldQuantity, "must be a number")
	}
	if !qty.IsPositive() {
		return CartLine{}, invalid(FieldQuantity, "must be positive")
	}
	if !qty.IsInteger() {
		return CartLine{}, invalid(FieldQuantity, "must be a whole number")
	}
	if qty.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return CartLine{}, invalid(FieldQuantity, "is too large")
	}

	return CartLine{ProductID: id, Quantity: int(qty.IntPart()), UnitPrice: price}, nil
}
