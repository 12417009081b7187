package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addressRequest struct {
	Name    string `json:"name" validate:"required"`
	Pincode string `json:"pincode" validate:"required,len=6,number"`
}

type checkoutRequest struct {
	Email   string         `json:"email" validate:"required,email"`
	Method  string         `json:"paymentMethod" validate:"required,oneof=razorpay cod"`
	Items   []string       `json:"items" validate:"min=1"`
	Address addressRequest `json:"shippingAddress"`
}

func decodeRequest(body string) (*checkoutRequest, error) {
	req := httptest.NewRequest(http.MethodPost, "/api/orders/create", strings.NewReader(body))
	var out checkoutRequest
	err := DecodeAndValidate(req, &out)
	return &out, err
}

func TestDecodeAndValidate_Valid(t *testing.T) {
	out, err := decodeRequest(`{"email":"asha@example.com","paymentMethod":"cod","items":["a"],"shippingAddress":{"name":"Asha","pincode":"560001"}}`)

	require.NoError(t, err)
	assert.Equal(t, "560001", out.Address.Pincode)
}

func TestDecodeAndValidate_MessagesUseJSONPaths(t *testing.T) {
	_, err := decodeRequest(`{"email":"nope","paymentMethod":"upi","items":[],"shippingAddress":{"pincode":"56A"}}`)
	require.Error(t, err)

	errs := FormatValidationErrors(err)
	messages := make(map[string]string, len(errs))
	for _, e := range errs {
		messages[e.Field] = e.Message
	}

	assert.Equal(t, "email must be a valid email address", messages["email"])
	assert.Equal(t, "paymentMethod must be one of: razorpay, cod", messages["paymentMethod"])
	assert.Equal(t, "items must contain at least 1 item(s)", messages["items"])
	assert.Equal(t, "shippingAddress.name is required", messages["shippingAddress.name"])
	assert.Equal(t, "shippingAddress.pincode must be exactly 6 characters", messages["shippingAddress.pincode"])
	assert.Equal(t, "email must be a valid email address", errs[0].Message)
}

func TestRespondWithRequestError(t *testing.T) {
	_, err := decodeRequest(`{not json`)
	require.Error(t, err)
	assert.Nil(t, FormatValidationErrors(err))

	w := httptest.NewRecorder()
	RespondWithRequestError(w, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", decodeError(t, w).Error)
}

// Feature: storefront, Property: pincodes pass validation only as exactly six digits
func TestProperty_PincodeValidation(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("six digit strings are the only valid pincodes", prop.ForAll(
		func(pincode string) bool {
			err := ValidateRequest(addressRequest{Name: "Asha", Pincode: pincode})
			valid := len(pincode) == 6 && strings.Trim(pincode, "0123456789") == ""
			return (err == nil) == valid
		},
		gen.OneGenOf(gen.NumString(), gen.AlphaNumString()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
