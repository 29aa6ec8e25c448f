package domain

import (
	"testing"

	"github.com/adfinitum/storefront/internal/pricing"
	"github.com/stretchr/testify/assert"
)

func validShipping() ShippingDetails {
	return ShippingDetails{
		FirstName:      "Jane",
		LastName:       "Wanjiku",
		Email:          "jane@example.com",
		Phone:          "254712345678",
		Address:        "123 Moi Avenue",
		City:           "Nairobi",
		PostalCode:     "00100",
		DeliveryMethod: pricing.DeliveryStandard,
	}
}

func TestShippingDetails_ValidPasses(t *testing.T) {
	assert.Nil(t, validShipping().Validate())

	// Notes are optional.
	d := validShipping()
	d.Notes = "leave at the gate"
	assert.Nil(t, d.Validate())
}

func TestShippingDetails_RequiredFields(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*ShippingDetails)
	}{
		{"first_name", func(d *ShippingDetails) { d.FirstName = "" }},
		{"last_name", func(d *ShippingDetails) { d.LastName = "  " }},
		{"email", func(d *ShippingDetails) { d.Email = "" }},
		{"phone", func(d *ShippingDetails) { d.Phone = "" }},
		{"address", func(d *ShippingDetails) { d.Address = "" }},
		{"city", func(d *ShippingDetails) { d.City = "" }},
		{"postal_code", func(d *ShippingDetails) { d.PostalCode = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			d := validShipping()
			tt.mutate(&d)
			errs := d.Validate()
			assert.Contains(t, errs, tt.field)
		})
	}
}

func TestShippingDetails_EmailShape(t *testing.T) {
	d := validShipping()
	d.Email = "not-an-email"
	assert.Contains(t, d.Validate(), "email")
}

func TestShippingDetails_DeliveryMethodEnum(t *testing.T) {
	d := validShipping()
	d.DeliveryMethod = "drone"
	assert.Contains(t, d.Validate(), "delivery_method")

	for _, m := range []pricing.DeliveryMethod{pricing.DeliveryStandard, pricing.DeliveryExpress, pricing.DeliveryPickup} {
		d.DeliveryMethod = m
		assert.Nil(t, d.Validate())
	}
}
