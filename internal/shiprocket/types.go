package shiprocket

import (
	"encoding/json"
	"fmt"
)

// OrderItem is a line of an adhoc order
type OrderItem struct {
	Name         string  `json:"name"`
	SKU          string  `json:"sku"`
	Units        int     `json:"units"`
	SellingPrice float64 `json:"selling_price"`
	Discount     float64 `json:"discount"`
	Tax          float64 `json:"tax"`
	HSN          string  `json:"hsn,omitempty"`
}

// OrderPayload is the body of POST /orders/create/adhoc
type OrderPayload struct {
	OrderID               string      `json:"order_id"`
	OrderDate             string      `json:"order_date"`
	PickupLocation        string      `json:"pickup_location"`
	Comment               string      `json:"comment,omitempty"`
	BillingCustomerName   string      `json:"billing_customer_name"`
	BillingLastName       string      `json:"billing_last_name,omitempty"`
	BillingAddress        string      `json:"billing_address"`
	BillingAddress2       string      `json:"billing_address_2,omitempty"`
	BillingISDCode        string      `json:"billing_isd_code,omitempty"`
	BillingCity           string      `json:"billing_city"`
	BillingPincode        string      `json:"billing_pincode"`
	BillingState          string      `json:"billing_state"`
	BillingCountry        string      `json:"billing_country"`
	BillingEmail          string      `json:"billing_email"`
	BillingPhone          string      `json:"billing_phone"`
	ShippingIsBilling     bool        `json:"shipping_is_billing"`
	OrderItems            []OrderItem `json:"order_items"`
	PaymentMethod         string      `json:"payment_method"`
	ShippingCharges       float64     `json:"shipping_charges"`
	GiftwrapCharges       float64     `json:"giftwrap_charges,omitempty"`
	TransactionCharges    float64     `json:"transaction_charges,omitempty"`
	TotalDiscount         float64     `json:"total_discount"`
	SubTotal              float64     `json:"sub_total"`
	Length                float64     `json:"length"`
	Breadth               float64     `json:"breadth"`
	Height                float64     `json:"height"`
	Weight                float64     `json:"weight"`
}

// CreatedOrder is the normalized result of an adhoc order creation
type CreatedOrder struct {
	OrderID        int64  `json:"order_id"`
	ShipmentID     int64  `json:"shipment_id"`
	AWBCode        string `json:"awb_code"`
	ChannelOrderID string `json:"channel_order_id"`
	Status         string `json:"status"`
	StatusCode     int    `json:"status_code"`
	CourierName    string `json:"courier_name"`
}

// TrackQuery selects the identifier used for tracking. The first non-empty of
// ShipmentID, AWBCode and ChannelOrderID wins.
type TrackQuery struct {
	ShipmentID     int64
	AWBCode        string
	ChannelOrderID string
	ChannelID      string
}

// ServiceabilityParams are the query parameters of GET /courier/serviceability/
type ServiceabilityParams struct {
	PickupPostcode   string  `json:"pickup_postcode" validate:"required,len=6,number"`
	DeliveryPostcode string  `json:"delivery_postcode" validate:"required,len=6,number"`
	COD              bool    `json:"cod"`
	Weight           string  `json:"weight,omitempty"`
	Length           int     `json:"length,omitempty"`
	Breadth          int     `json:"breadth,omitempty"`
	Height           int     `json:"height,omitempty"`
	DeclaredValue    float64 `json:"declared_value,omitempty"`
	Mode             string  `json:"mode,omitempty" validate:"omitempty,oneof=Surface Air"`
}

// CourierCompany is one courier quote from the serviceability check
type CourierCompany struct {
	CourierCompanyID      int     `json:"courier_company_id"`
	CourierName           string  `json:"courier_name"`
	Rate                  float64 `json:"rate"`
	FreightCharge         float64 `json:"freight_charge,omitempty"`
	CODCharges            float64 `json:"cod_charges,omitempty"`
	EstimatedDeliveryDays string  `json:"estimated_delivery_days,omitempty"`
	ETD                   string  `json:"etd,omitempty"`
	COD                   int     `json:"cod"`
	Rating                float64 `json:"rating,omitempty"`
}

// Serviceability is the data block of a serviceability response
type Serviceability struct {
	AvailableCourierCompanies   []CourierCompany `json:"available_courier_companies"`
	RecommendedCourierCompanyID int              `json:"recommended_courier_company_id"`
}

type serviceabilityEnvelope struct {
	Status int            `json:"status"`
	Data   Serviceability `json:"data"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// apiErrorBody covers the error shapes the provider returns
type apiErrorBody struct {
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

// APIError is a non-2xx provider response
type APIError struct {
	StatusCode         int
	Message            string
	AvailableLocations []string
}

func (e *APIError) Error() string {
	return e.Message
}

// statusError is the fallback message when the provider sends none
func statusError(op string, status int) string {
	return fmt.Sprintf("Failed to %s: %d", op, status)
}
