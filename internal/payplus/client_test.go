package payplus

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/renu-clearing/internal/breaker"
	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/orders"
	"github.com/ariefcatur/renu-clearing/internal/transport"
)

type capture struct {
	path string
	auth string
	body map[string]any
}

func newServer(t *testing.T, status int, respond string) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.path = r.URL.Path
		c.auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &c.body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respond))
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func testEnv(base string) Env {
	return Env{
		Transport:   transport.New(time.Second),
		Breakers:    breaker.NewRegistry(breaker.Settings{}),
		BaseURL:     base + "/api/v1.0",
		Credentials: Credentials{APIKey: "key", SecretKey: "secret"},
		CallbackURL: "https://renu/api/payments/callback",
		Now:         func() time.Time { return time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC) },
	}
}

func order42() *orders.Order {
	return &orders.Order{ID: 42, VenueID: 7, Items: []orders.Item{
		{ItemID: 1, Name: "Shakshuka", Quantity: 2, Price: 1300},
		{ItemID: 2, Name: "Lemonade", Quantity: 1, Price: 900, Modifiers: []orders.Modifier{
			orders.OneOf{Name: "Size", Choice: "L", Price: 250},
		}},
	}}
}

func TestGeneratePageLink(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, `{"results":{"status":"success","code":0,"description":"ok"},
		"data":{"page_request_uid":"p-1","payment_page_link":"https://payplus/pay/p-1"}}`)

	link, err := GeneratePageLink(context.Background(), testEnv(srv.URL), PageParams{Terminal: "page-uid", Order: order42()})
	require.NoError(t, err)
	assert.Equal(t, "https://payplus/pay/p-1", link)

	assert.Equal(t, "/api/v1.0/PaymentPages/generateLink", c.path)
	assert.JSONEq(t, `{"api_key":"key","secret_key":"secret"}`, c.auth)
	assert.Equal(t, "page-uid", c.body["payment_page_uid"])
	assert.Equal(t, "ILS", c.body["currency_code"])
	assert.Equal(t, "42", c.body["more_info"])
	assert.Equal(t, "7", c.body["more_info_1"])
	assert.NotEmpty(t, c.body["expiry_datetime"])
	assert.EqualValues(t, 2600+1150, c.body["amount"])

	items := c.body["items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	assert.Equal(t, "Shakshuka", first["name"])
	assert.EqualValues(t, 2, first["quantity"])
	assert.EqualValues(t, 1300, first["price"])
	assert.EqualValues(t, 0, first["vat_type"])
	assert.EqualValues(t, 1150, items[1].(map[string]any)["price"])
}

func TestGeneratePageLink_Failures(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"results":{"status":"error","code":1,"description":"page uid unknown"}}`)
	_, err := GeneratePageLink(context.Background(), testEnv(srv.URL), PageParams{Order: order42()})
	var rc *failure.ResponseCode
	require.ErrorAs(t, err, &rc)
	assert.Equal(t, "page uid unknown", rc.Message)

	srv, _ = newServer(t, http.StatusOK, `{"results":{"status":"success"},"data":{}}`)
	_, err = GeneratePageLink(context.Background(), testEnv(srv.URL), PageParams{Order: order42()})
	assert.Equal(t, failure.KindMalformedResponse, failure.KindOf(err))

	srv, _ = newServer(t, http.StatusOK, `<html>maintenance</html>`)
	_, err = GeneratePageLink(context.Background(), testEnv(srv.URL), PageParams{Order: order42()})
	assert.Equal(t, failure.KindMalformedResponse, failure.KindOf(err))

	srv, _ = newServer(t, http.StatusUnauthorized, `{}`)
	_, err = GeneratePageLink(context.Background(), testEnv(srv.URL), PageParams{Order: order42()})
	assert.Equal(t, failure.KindBadStatus, failure.KindOf(err))
}

func TestValidateTransaction_RequiresTxID(t *testing.T) {
	err := ValidateTransaction(context.Background(), testEnv("http://unused"), order42())
	var nt *failure.NoTxID
	require.ErrorAs(t, err, &nt)
	assert.Equal(t, int64(42), nt.OrderID)
}

func TestValidateTransaction_AllInvoicesSuccessful(t *testing.T) {
	srv, c := newServer(t, http.StatusOK, `{"invoices":[{"status":"success","original_doc_url":"https://doc/1"},{"status":"success","original_doc_url":"https://doc/2"}]}`)
	o := order42()
	o.TxID = "tx-99"

	require.NoError(t, ValidateTransaction(context.Background(), testEnv(srv.URL), o))
	assert.Equal(t, "/api/v1.0/Invoice/GetDocuments", c.path)
	assert.Equal(t, "tx-99", c.body["transaction_uid"])
	filter := c.body["filter"].(map[string]any)
	assert.Equal(t, "2026-10-18", filter["fromDate"])
	assert.Equal(t, "2026-10-20", filter["toDate"])
}

func TestValidateTransaction_InvoiceNotSuccessful(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"invoices":[{"status":"success","original_doc_url":"https://doc/1"},{"status":"failed","original_doc_url":"https://doc/2"}]}`)
	o := order42()
	o.TxID = "tx-99"

	err := ValidateTransaction(context.Background(), testEnv(srv.URL), o)
	var ins *failure.InvoiceNotSuccessful
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, "https://doc/2", ins.DocURL)
	assert.Contains(t, err.Error(), "https://doc/2")
}

func TestValidateTransaction_NotFound(t *testing.T) {
	bodies := []string{
		`"cannot-find-invoice-for-this-transaction"`,
		`cannot-find-invoice-for-this-transaction`,
		`{"results":{"status":"error","description":"cannot-find-invoice-for-this-transaction"}}`,
		`{"invoices":[]}`,
	}
	for _, body := range bodies {
		srv, _ := newServer(t, http.StatusOK, body)
		o := order42()
		o.TxID = "tx-99"

		err := ValidateTransaction(context.Background(), testEnv(srv.URL), o)
		assert.Equal(t, failure.KindTransactionNotFound, failure.KindOf(err), body)
	}
}

func TestParseCredentials(t *testing.T) {
	c, err := ParseCredentials(&orders.ClearingIntegration{Provider: orders.ClearingPayPlus, VendorData: json.RawMessage(`{"api_key":"k","secret_key":"s"}`)})
	require.NoError(t, err)
	assert.Equal(t, Credentials{APIKey: "k", SecretKey: "s"}, c)

	_, err = ParseCredentials(&orders.ClearingIntegration{Provider: orders.ClearingPayPlus, VendorData: json.RawMessage(`{"username":"u","password":"p","mid":"1"}`)})
	assert.Equal(t, failure.KindProviderMismatch, failure.KindOf(err))
}
