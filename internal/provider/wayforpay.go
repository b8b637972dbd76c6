// Package provider talks to the wayforpay payment gateway: invoice creation
// for checkout and signature verification for settlement callbacks. Merchant
// credentials arrive here already decrypted and are never stored on the
// client; every call receives them explicitly.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"korty/internal/config"

	"github.com/rs/zerolog"
)

const (
	reasonCodeOK = 1100

	merchantAuthType = "SimpleSignature"
	apiVersion       = 1
)

var (
	ErrSignatureMismatch = errors.New("wayforpay: signature mismatch")
	ErrGatewayRejected   = errors.New("wayforpay: gateway rejected request")
)

// Credentials are the decrypted merchant identifiers for one settlement
// account. Callers unseal them immediately before the call and drop them
// right after.
type Credentials struct {
	MerchantLogin  string
	MerchantSecret string
}

// Invoice describes one checkout to create. Amount is in minor units and is
// rendered to the gateway's canonical decimal form on the wire.
type Invoice struct {
	OrderReference string
	OrderDate      int64
	Amount         int64
	Currency       string
	ProductName    string
	ServiceURL     string
	ReturnURL      string
}

// Checkout is the gateway's answer to a created invoice.
type Checkout struct {
	URL string
}

type Client struct {
	apiURL         string
	merchantDomain string
	httpClient     *http.Client
	logger         *zerolog.Logger
}

func NewClient(cfg config.ProviderConfig, logger *zerolog.Logger) *Client {
	return &Client{
		apiURL:         cfg.APIURL,
		merchantDomain: cfg.MerchantDomain,
		httpClient:     &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:         logger,
	}
}

type invoiceRequest struct {
	TransactionType    string   `json:"transactionType"`
	MerchantAccount    string   `json:"merchantAccount"`
	MerchantDomainName string   `json:"merchantDomainName"`
	MerchantAuthType   string   `json:"merchantAuthType"`
	MerchantSignature  string   `json:"merchantSignature"`
	APIVersion         int      `json:"apiVersion"`
	OrderReference     string   `json:"orderReference"`
	OrderDate          int64    `json:"orderDate"`
	Amount             string   `json:"amount"`
	Currency           string   `json:"currency"`
	ProductName        []string `json:"productName"`
	ProductPrice       []string `json:"productPrice"`
	ProductCount       []int    `json:"productCount"`
	ServiceURL         string   `json:"serviceUrl,omitempty"`
	ReturnURL          string   `json:"returnUrl,omitempty"`
}

type invoiceResponse struct {
	Reason     string `json:"reason"`
	ReasonCode int    `json:"reasonCode"`
	InvoiceURL string `json:"invoiceUrl"`
}

// CreateInvoice registers the order with the gateway and returns the hosted
// checkout URL. The request is signed over
// merchantAccount;merchantDomainName;orderReference;orderDate;amount;currency;
// productName;productCount;productPrice with the merchant secret. The
// context bounds the call together with the client timeout.
func (c *Client) CreateInvoice(ctx context.Context, creds Credentials, inv Invoice) (*Checkout, error) {
	amount := FormatAmount(inv.Amount)
	signature := Sign(creds.MerchantSecret,
		creds.MerchantLogin,
		c.merchantDomain,
		inv.OrderReference,
		strconv.FormatInt(inv.OrderDate, 10),
		amount,
		inv.Currency,
		inv.ProductName,
		"1",
		amount,
	)

	body := invoiceRequest{
		TransactionType:    "CREATE_INVOICE",
		MerchantAccount:    creds.MerchantLogin,
		MerchantDomainName: c.merchantDomain,
		MerchantAuthType:   merchantAuthType,
		MerchantSignature:  signature,
		APIVersion:         apiVersion,
		OrderReference:     inv.OrderReference,
		OrderDate:          inv.OrderDate,
		Amount:             amount,
		Currency:           inv.Currency,
		ProductName:        []string{inv.ProductName},
		ProductPrice:       []string{amount},
		ProductCount:       []int{1},
		ServiceURL:         inv.ServiceURL,
		ReturnURL:          inv.ReturnURL,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invoice request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to build invoice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoice request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d", ErrGatewayRejected, resp.StatusCode)
	}

	var out invoiceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode invoice response: %w", err)
	}
	if out.ReasonCode != reasonCodeOK || out.InvoiceURL == "" {
		c.logger.Warn().
			Str("order_reference", inv.OrderReference).
			Int("reason_code", out.ReasonCode).
			Str("reason", out.Reason).
			Msg("Gateway refused invoice")
		return nil, fmt.Errorf("%w: %s (%d)", ErrGatewayRejected, out.Reason, out.ReasonCode)
	}

	return &Checkout{URL: out.InvoiceURL}, nil
}
