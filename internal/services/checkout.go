package services

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// CheckoutAccount identifies the payment inside the Payme checkout.
type CheckoutAccount struct {
	PaymentID   string `json:"payment_id"`
	ApartmentID string `json:"apartment_id"`
}

// CheckoutParams is the JSON blob Payme decodes from the checkout URL.
type CheckoutParams struct {
	MerchantID  string          `json:"m"`
	Account     CheckoutAccount `json:"ac"`
	Amount      int64           `json:"a"`
	Locale      string          `json:"l"`
	CallbackURL string          `json:"c"`
}

// CheckoutBuilder renders Payme checkout URLs.
type CheckoutBuilder struct {
	merchantID string
	baseURL    string
	locale     string
}

func NewCheckoutBuilder(merchantID, baseURL string) *CheckoutBuilder {
	return &CheckoutBuilder{
		merchantID: merchantID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		locale:     "ru",
	}
}

// Build returns the checkout URL and the raw parameters encoded into it.
// amount is in sum; the URL carries tiyin.
func (b *CheckoutBuilder) Build(paymentID, apartmentID string, amount int64) (string, []byte, error) {
	params := CheckoutParams{
		MerchantID: b.merchantID,
		Account: CheckoutAccount{
			PaymentID:   paymentID,
			ApartmentID: apartmentID,
		},
		Amount:      amount * 100,
		Locale:      b.locale,
		CallbackURL: b.baseURL + "/pay",
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", nil, fmt.Errorf("marshal checkout params: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(raw)
	return fmt.Sprintf("%s/%s", b.baseURL, encoded), raw, nil
}
