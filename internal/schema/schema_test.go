package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVendorData(t *testing.T) {
	assert.NoError(t, CreditGuardVendorData.Validate([]byte(`{"username":"u","password":"p","mid":938}`)))
	assert.NoError(t, PayPlusVendorData.Validate([]byte(`{"api_key":"k","secret_key":"s"}`)))
	assert.NoError(t, DorixVendorData.Validate([]byte(`{"branchId":"b-1"}`)))

	// a PayPlus blob is not a CreditGuard blob
	err := CreditGuardVendorData.Validate([]byte(`{"api_key":"k","secret_key":"s"}`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.NotEmpty(t, ve.Problems)
}

func TestValidate_NotJSON(t *testing.T) {
	assert.Error(t, DorixVendorData.Validate([]byte(`branch=1`)))
	assert.Error(t, DorixVendorData.Validate(nil))
}

func TestPaymentCallback(t *testing.T) {
	assert.NoError(t, PaymentCallback.Validate([]byte(`{"transaction":{"status_code":"000","uid":"99","more_info":"42"}}`)))
	assert.NoError(t, PaymentCallback.Validate([]byte(`{"transaction":{"status_code":"000","uid":"99","userData1":"42"}}`)))
	assert.Error(t, PaymentCallback.Validate([]byte(`{"transaction":{"status_code":"000","uid":"99"}}`)))
	assert.Error(t, PaymentCallback.Validate([]byte(`{"transaction":{"status_code":0,"uid":"99","more_info":"42"}}`)))
}
