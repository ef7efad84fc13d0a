package creditguard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/ariefcatur/renu-clearing/internal/breaker"
	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/money"
	"github.com/ariefcatur/renu-clearing/internal/orders"
	"github.com/ariefcatur/renu-clearing/internal/schema"
	"github.com/ariefcatur/renu-clearing/internal/transport"
)

// Name keys the CreditGuard breaker.
const Name = "CreditGuard"

type Credentials struct {
	Username string
	Password string
	Mid      string
}

// Env is everything one relay call needs. Nothing is read from globals.
type Env struct {
	Transport   *transport.Client
	Breakers    *breaker.Registry
	URL         string
	Credentials Credentials
}

type ClearParams struct {
	OrderID    int64
	VenueID    int64
	Terminal   string
	Total      int64 // minor units
	UniqueID   string
	SuccessURL string
	ErrorURL   string
	CancelURL  string
}

type StatusParams struct {
	Terminal string
	TxID     string
}

// ParseCredentials reads {username, password, mid} from a CREDIT_GUARD integration.
func ParseCredentials(ci *orders.ClearingIntegration) (Credentials, error) {
	if ci.Provider != orders.ClearingCreditGuard {
		return Credentials{}, &failure.ProviderMismatch{Expected: string(orders.ClearingCreditGuard), Actual: string(ci.Provider)}
	}
	if err := schema.CreditGuardVendorData.Validate(ci.VendorData); err != nil {
		return Credentials{}, &failure.ProviderMismatch{Expected: string(orders.ClearingCreditGuard), Actual: string(ci.Provider), Reason: err.Error()}
	}
	var raw struct {
		Username string          `json:"username"`
		Password string          `json:"password"`
		Mid      json.RawMessage `json:"mid"`
	}
	if err := json.Unmarshal(ci.VendorData, &raw); err != nil {
		return Credentials{}, &failure.ProviderMismatch{Expected: string(orders.ClearingCreditGuard), Actual: string(ci.Provider), Reason: err.Error()}
	}
	return Credentials{
		Username: raw.Username,
		Password: raw.Password,
		Mid:      strings.Trim(string(raw.Mid), `"`),
	}, nil
}

func (env Env) post(ctx context.Context, intIn string) (*transport.Response, error) {
	if env.URL == "" {
		return nil, &failure.MissingConfig{Key: "CREDITGUARD_URL"}
	}
	res, err := env.Transport.Request(ctx, env.URL, transport.Options{
		Method: http.MethodPost,
		Form: url.Values{
			"user":     {env.Credentials.Username},
			"password": {env.Credentials.Password},
			"int_in":   {intIn},
		},
	})
	if err != nil {
		return nil, err
	}
	if err := res.ExpectOK(); err != nil {
		return nil, err
	}
	return res, nil
}

// ClearCard opens a hosted payment page (doDeal) and returns its URL.
func ClearCard(ctx context.Context, env Env, p ClearParams) (string, error) {
	intIn, err := encode(request{
		Version:  version,
		Language: language,
		DateTime: time.Now().Format("2006-01-02 15:04:05"),
		Command:  cmdDoDeal,
		DoDeal: &doDeal{
			TerminalNumber:  p.Terminal,
			CardNo:          cardNoMPI,
			Total:           money.Major(p.Total).String(),
			TransactionType: txTypeDebit,
			CreditType:      creditRegular,
			Currency:        money.Currency,
			TransactionCode: txCodeInternet,
			Validation:      validationTxn,
			Mid:             env.Credentials.Mid,
			UniqueID:        p.UniqueID,
			MpiValidation:   mpiAutoComm,
			SuccessURL:      p.SuccessURL,
			ErrorURL:        p.ErrorURL,
			CancelURL:       p.CancelURL,
			CustomerData: customerData{
				UserData1: strconv.FormatInt(p.OrderID, 10),
				UserData2: strconv.FormatInt(p.VenueID, 10),
			},
		},
	})
	if err != nil {
		return "", err
	}

	return breaker.Execute(env.Breakers, Name, func() (string, error) {
		res, err := env.post(ctx, intIn)
		if err != nil {
			return "", err
		}
		f, err := scan(res.Bytes(), "mpiHostedPageUrl", "result", "status", "message")
		if err != nil {
			return "", err
		}
		if link := f["mpiHostedPageUrl"]; link != "" {
			return link, nil
		}
		for _, k := range []string{"result", "status"} {
			if code, ok := f[k]; ok && code != successCode {
				return "", &failure.ResponseCode{Provider: Name, Code: code, Message: f["message"]}
			}
		}
		return "", &failure.MalformedResponse{Provider: Name, Reason: "missing mpiHostedPageUrl"}
	})
}

// GetStatus queries an MPI transaction and returns CreditGuard's unique id for it.
func GetStatus(ctx context.Context, env Env, p StatusParams) (int64, error) {
	intIn, err := encode(request{
		Version:  version,
		Language: language,
		DateTime: time.Now().Format("2006-01-02 15:04:05"),
		Command:  cmdInquire,
		InquireTransactions: &inquire{
			TerminalNumber:   p.Terminal,
			QueryName:        queryMpiTx,
			Mid:              env.Credentials.Mid,
			MpiTransactionID: p.TxID,
		},
	})
	if err != nil {
		return 0, err
	}

	return breaker.Execute(env.Breakers, Name, func() (int64, error) {
		res, err := env.post(ctx, intIn)
		if err != nil {
			return 0, err
		}
		f, err := scan(res.Bytes(), "cgGatewayResponseCode", "cgGatewayResponseText", "uniqueid")
		if err != nil {
			return 0, err
		}
		code, ok := f["cgGatewayResponseCode"]
		if !ok {
			return 0, &failure.MalformedResponse{Provider: Name, Reason: "missing cgGatewayResponseCode"}
		}
		if code != successCode {
			return 0, &failure.ResponseCode{Provider: Name, Code: code, Message: f["cgGatewayResponseText"]}
		}
		raw, ok := f["uniqueid"]
		if !ok || raw == "" {
			return 0, &failure.MalformedResponse{Provider: Name, Reason: "missing uniqueid"}
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, &failure.MalformedResponse{Provider: Name, Reason: "uniqueid is not numeric", Err: err}
		}
		return id, nil
	})
}

// Clearing adapts the relay calls to the clearing registry. Credentials come
// from each venue's integration; everything else is process config.
type Clearing struct {
	Transport  *transport.Client
	Breakers   *breaker.Registry
	URL        string
	SuccessURL string
	ErrorURL   string
	CancelURL  string
	IDs        *snowflake.Node
}

func (c *Clearing) env(ci *orders.ClearingIntegration) (Env, error) {
	creds, err := ParseCredentials(ci)
	if err != nil {
		return Env{}, err
	}
	return Env{Transport: c.Transport, Breakers: c.Breakers, URL: c.URL, Credentials: creds}, nil
}

func (c *Clearing) PageLink(ctx context.Context, o *orders.Order, ci *orders.ClearingIntegration) (string, error) {
	env, err := c.env(ci)
	if err != nil {
		return "", err
	}
	if c.IDs == nil {
		return "", &failure.MissingConfig{Key: "NODE_ID"}
	}
	return ClearCard(ctx, env, ClearParams{
		OrderID:    o.ID,
		VenueID:    o.VenueID,
		Terminal:   ci.Terminal,
		Total:      o.Total(),
		UniqueID:   c.IDs.Generate().String(),
		SuccessURL: c.SuccessURL,
		ErrorURL:   c.ErrorURL,
		CancelURL:  c.CancelURL,
	})
}

func (c *Clearing) Validate(ctx context.Context, o *orders.Order, ci *orders.ClearingIntegration) error {
	if o.TxID == "" {
		return &failure.NoTxID{OrderID: o.ID}
	}
	env, err := c.env(ci)
	if err != nil {
		return err
	}
	_, err = GetStatus(ctx, env, StatusParams{Terminal: ci.Terminal, TxID: o.TxID})
	return err
}
