package creditguard

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/ariefcatur/renu-clearing/internal/failure"
)

// ashrait is the envelope of every relay request.
type ashrait struct {
	XMLName xml.Name `xml:"ashrait"`
	Request request  `xml:"request"`
}

type request struct {
	Version             string   `xml:"version"`
	Language            string   `xml:"language"`
	DateTime            string   `xml:"dateTime"`
	Command             string   `xml:"command"`
	DoDeal              *doDeal  `xml:"doDeal,omitempty"`
	InquireTransactions *inquire `xml:"inquireTransactions,omitempty"`
}

type doDeal struct {
	TerminalNumber  string       `xml:"terminalNumber"`
	CardNo          string       `xml:"cardNo"`
	Total           string       `xml:"total"`
	TransactionType string       `xml:"transactionType"`
	CreditType      string       `xml:"creditType"`
	Currency        string       `xml:"currency"`
	TransactionCode string       `xml:"transactionCode"`
	Validation      string       `xml:"validation"`
	Mid             string       `xml:"mid"`
	UniqueID        string       `xml:"uniqueid"`
	MpiValidation   string       `xml:"mpiValidation"`
	SuccessURL      string       `xml:"successUrl"`
	ErrorURL        string       `xml:"errorUrl"`
	CancelURL       string       `xml:"cancelUrl"`
	CustomerData    customerData `xml:"customerData"`
}

type customerData struct {
	UserData1 string `xml:"userData1"`
	UserData2 string `xml:"userData2"`
}

type inquire struct {
	TerminalNumber   string `xml:"terminalNumber"`
	QueryName        string `xml:"queryName"`
	Mid              string `xml:"mid"`
	MpiTransactionID string `xml:"mpiTransactionId"`
}

const (
	version        = "2000"
	language       = "HEB"
	successCode    = "000"
	cmdDoDeal      = "doDeal"
	cmdInquire     = "inquireTransactions"
	queryMpiTx     = "mpiTransaction"
	cardNoMPI      = "CGMPI"
	txTypeDebit    = "Debit"
	creditRegular  = "RegularCredit"
	txCodeInternet = "Internet"
	validationTxn  = "TxnSetup"
	mpiAutoComm    = "AutoComm"
)

func encode(req request) (string, error) {
	b, err := xml.Marshal(ashrait{Request: req})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// scan collects the text of the first occurrence of each wanted element,
// wherever it sits in the response tree.
func scan(body []byte, wanted ...string) (map[string]string, error) {
	want := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		want[w] = true
	}
	found := map[string]string{}

	dec := xml.NewDecoder(bytes.NewReader(body))
	sawElement := false
	var (
		current string
		text    strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &failure.MalformedResponse{Provider: Name, Reason: "invalid xml", Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			sawElement = true
			if _, done := found[t.Name.Local]; want[t.Name.Local] && !done && current == "" {
				current = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if current != "" {
				text.Write(t)
			}
		case xml.EndElement:
			if current != "" && t.Name.Local == current {
				found[current] = strings.TrimSpace(text.String())
				current = ""
			}
		}
	}
	if !sawElement {
		return nil, &failure.MalformedResponse{Provider: Name, Reason: "response is not an xml document"}
	}
	return found, nil
}
