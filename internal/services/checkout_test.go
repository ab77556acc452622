package services

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutBuilderBuild(t *testing.T) {
	b := NewCheckoutBuilder("merchant-1", "https://checkout.test.paycom.uz/")

	url, raw, err := b.Build("PAY_1", "A-12", 850000)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(url, "https://checkout.test.paycom.uz/"))
	encoded := strings.TrimPrefix(url, "https://checkout.test.paycom.uz/")

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(decoded))

	var params CheckoutParams
	require.NoError(t, json.Unmarshal(decoded, &params))
	assert.Equal(t, "merchant-1", params.MerchantID)
	assert.Equal(t, "PAY_1", params.Account.PaymentID)
	assert.Equal(t, "A-12", params.Account.ApartmentID)
	assert.Equal(t, int64(85000000), params.Amount)
	assert.Equal(t, "ru", params.Locale)
	assert.Equal(t, "https://checkout.test.paycom.uz/pay", params.CallbackURL)
}

func TestCheckoutParamsFieldOrder(t *testing.T) {
	b := NewCheckoutBuilder("m", "https://c")

	_, raw, err := b.Build("p", "a", 1)
	require.NoError(t, err)

	assert.Equal(t, `{"m":"m","ac":{"payment_id":"p","apartment_id":"a"},"a":100,"l":"ru","c":"https://c/pay"}`, string(raw))
}
