package shipping

import (
	cartsvc "github.com/cactilia/cactilia-backend/internal/cart"
	shippingsvc "github.com/cactilia/cactilia-backend/internal/shipping"
)

// QuoteRequest is the body of the quote and grouping endpoints. Storefronts send the
// destination either as "address" or "shippingAddress".
type QuoteRequest struct {
	Items           []cartsvc.LineItemPayload `json:"items" validate:"dive"`
	Address         *cartsvc.AddressPayload   `json:"address"`
	ShippingAddress *cartsvc.AddressPayload   `json:"shippingAddress"`
	Exhaustive      bool                      `json:"exhaustive"`
}

func (r QuoteRequest) address() shippingsvc.Address {
	switch {
	case r.Address != nil:
		return cartsvc.NormalizeAddress(*r.Address)
	case r.ShippingAddress != nil:
		return cartsvc.NormalizeAddress(*r.ShippingAddress)
	}
	return shippingsvc.Address{}
}

func (r QuoteRequest) toQuoteInput() (shippingsvc.QuoteInput, error) {
	items, err := cartsvc.NormalizeItems(r.Items)
	if err != nil {
		return shippingsvc.QuoteInput{}, err
	}
	return shippingsvc.QuoteInput{
		Items:      items,
		Address:    r.address(),
		Exhaustive: r.Exhaustive,
	}, nil
}

func (r QuoteRequest) toGroupInput() (shippingsvc.GroupInput, error) {
	items, err := cartsvc.NormalizeItems(r.Items)
	if err != nil {
		return shippingsvc.GroupInput{}, err
	}
	return shippingsvc.GroupInput{Items: items, Address: r.address()}, nil
}
