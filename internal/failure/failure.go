// Package failure is the closed error taxonomy shared by the clearing and POS clients.
// Every variant implements Error; callers switch on Kind() or use errors.As.
package failure

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindRequestFailed        Kind = "REQUEST_FAILED"
	KindBadStatus            Kind = "BAD_STATUS"
	KindMalformedResponse    Kind = "MALFORMED_RESPONSE"
	KindResponseCode         Kind = "RESPONSE_CODE"
	KindInvoiceNotSuccessful Kind = "INVOICE_NOT_SUCCESSFUL"
	KindTransactionNotFound  Kind = "TRANSACTION_NOT_FOUND"
	KindReportOrderFailed    Kind = "REPORT_ORDER_FAILED"
	KindProviderMismatch     Kind = "PROVIDER_MISMATCH"
	KindMissingConfig        Kind = "MISSING_CONFIG"
	KindNoTxID               Kind = "NO_TX_ID"
	KindBreakerOpen          Kind = "BREAKER_OPEN"
	KindRecordNotFound       Kind = "RECORD_NOT_FOUND"
	KindRecordInvalid        Kind = "RECORD_INVALID"
	KindInternal             Kind = "INTERNAL"
)

// Error is implemented only by the variants in this package.
type Error interface {
	error
	Kind() Kind
	sealed()
}

// ---- transport ----

type RequestFailed struct {
	URL string
	Err error
}

func (e *RequestFailed) Error() string { return fmt.Sprintf("request %s failed: %v", e.URL, e.Err) }
func (e *RequestFailed) Unwrap() error { return e.Err }
func (*RequestFailed) Kind() Kind      { return KindRequestFailed }
func (*RequestFailed) sealed()         {}

type BadStatus struct {
	URL    string
	Status int
	Body   string
}

func (e *BadStatus) Error() string {
	return fmt.Sprintf("request %s returned status %d: %s", e.URL, e.Status, e.Body)
}
func (*BadStatus) Kind() Kind { return KindBadStatus }
func (*BadStatus) sealed()    {}

type MalformedResponse struct {
	Provider string
	Reason   string
	Err      error
}

func (e *MalformedResponse) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: malformed response: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: malformed response: %s", e.Provider, e.Reason)
}
func (e *MalformedResponse) Unwrap() error { return e.Err }
func (*MalformedResponse) Kind() Kind      { return KindMalformedResponse }
func (*MalformedResponse) sealed()         {}

// ---- protocol / business ----

type ResponseCode struct {
	Provider string
	Code     string
	Message  string
}

func (e *ResponseCode) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: response code %q: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: response code %q", e.Provider, e.Code)
}
func (*ResponseCode) Kind() Kind { return KindResponseCode }
func (*ResponseCode) sealed()    {}

type InvoiceNotSuccessful struct {
	TxID   string
	Status string
	DocURL string
}

func (e *InvoiceNotSuccessful) Error() string {
	return fmt.Sprintf("invoice for transaction %s has status %q: %s", e.TxID, e.Status, e.DocURL)
}
func (*InvoiceNotSuccessful) Kind() Kind { return KindInvoiceNotSuccessful }
func (*InvoiceNotSuccessful) sealed()    {}

type TransactionNotFound struct {
	Provider string
	TxID     string
}

func (e *TransactionNotFound) Error() string {
	return fmt.Sprintf("%s: transaction %s not found", e.Provider, e.TxID)
}
func (*TransactionNotFound) Kind() Kind { return KindTransactionNotFound }
func (*TransactionNotFound) sealed()    {}

type ReportOrderFailed struct {
	Provider string
	OrderID  int64
	Message  string
}

func (e *ReportOrderFailed) Error() string {
	return fmt.Sprintf("%s: report of order %d rejected: %s", e.Provider, e.OrderID, e.Message)
}
func (*ReportOrderFailed) Kind() Kind { return KindReportOrderFailed }
func (*ReportOrderFailed) sealed()    {}

// ---- configuration ----

type ProviderMismatch struct {
	Expected string
	Actual   string
	Reason   string
}

func (e *ProviderMismatch) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("integration for provider %s used as %s: %s", e.Actual, e.Expected, e.Reason)
	}
	return fmt.Sprintf("integration for provider %s used as %s", e.Actual, e.Expected)
}
func (*ProviderMismatch) Kind() Kind { return KindProviderMismatch }
func (*ProviderMismatch) sealed()    {}

type MissingConfig struct {
	Key string
}

func (e *MissingConfig) Error() string { return fmt.Sprintf("missing configuration: %s", e.Key) }
func (*MissingConfig) Kind() Kind      { return KindMissingConfig }
func (*MissingConfig) sealed()         {}

type NoTxID struct {
	OrderID int64
}

func (e *NoTxID) Error() string { return fmt.Sprintf("order %d has no transaction id", e.OrderID) }
func (*NoTxID) Kind() Kind      { return KindNoTxID }
func (*NoTxID) sealed()         {}

// ---- resilience ----

type BreakerOpen struct {
	Provider string
}

func (e *BreakerOpen) Error() string { return fmt.Sprintf("%s: circuit breaker is open", e.Provider) }
func (*BreakerOpen) Kind() Kind      { return KindBreakerOpen }
func (*BreakerOpen) sealed()         {}

// ---- persistence ----

type RecordNotFound struct {
	Entity string
	ID     string
}

func (e *RecordNotFound) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }
func (*RecordNotFound) Kind() Kind      { return KindRecordNotFound }
func (*RecordNotFound) sealed()         {}

type RecordInvalid struct {
	Entity string
	Reason string
}

func (e *RecordInvalid) Error() string { return fmt.Sprintf("invalid %s: %s", e.Entity, e.Reason) }
func (*RecordInvalid) Kind() Kind      { return KindRecordInvalid }
func (*RecordInvalid) sealed()         {}

// KindOf returns the kind of the most specific taxonomy error in err's chain,
// or KindInternal when err carries none.
func KindOf(err error) Kind {
	var fe Error
	if errors.As(err, &fe) {
		return fe.Kind()
	}
	return KindInternal
}

// IsBusiness reports whether err is a well-formed provider answer that declares
// failure. Such answers mean the upstream is healthy.
func IsBusiness(err error) bool {
	switch KindOf(err) {
	case KindResponseCode, KindInvoiceNotSuccessful, KindTransactionNotFound, KindReportOrderFailed:
		return true
	}
	return false
}
