package stripe

import (
	"github.com/stripe/stripe-go/v82"

	"github.com/rl1809/storefront/internal/core/domain"
)

// Expandable fields decode to a stub holding only the ID unless the API
// expanded them, in which case Object is set.
func expanded(object string) bool {
	return object != ""
}

func productToDomain(p *stripe.Product) domain.RemoteProduct {
	product := domain.RemoteProduct{
		ID:       p.ID,
		Name:     p.Name,
		Active:   p.Active,
		Images:   p.Images,
		Metadata: p.Metadata,
	}
	if p.DefaultPrice == nil {
		return product
	}

	product.DefaultPriceID = p.DefaultPrice.ID
	if expanded(p.DefaultPrice.Object) {
		price := priceToDomain(p.DefaultPrice)
		product.DefaultPrice = &price
	}
	return product
}

func priceToDomain(p *stripe.Price) domain.RemotePrice {
	amount := p.UnitAmount
	price := domain.RemotePrice{
		ID:         p.ID,
		UnitAmount: &amount,
		Currency:   string(p.Currency),
		Active:     p.Active,
	}
	if p.Product == nil {
		return price
	}

	price.ProductID = p.Product.ID
	if expanded(p.Product.Object) {
		product := productToDomain(p.Product)
		price.Product = &product
	}
	return price
}
