package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxBodyBytes = 1 << 20

// ChapaClient talks to a Chapa-compatible REST API.
type ChapaClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewChapaClient returns a client for baseURL (for example
// https://api.chapa.co/v1).  A zero timeout means 10 seconds.
func NewChapaClient(baseURL, secret string, timeout time.Duration) *ChapaClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ChapaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}
}

type initializeBody struct {
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Email         string            `json:"email"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	TxRef         string            `json:"tx_ref"`
	CallbackURL   string            `json:"callback_url"`
	ReturnURL     string            `json:"return_url"`
	Customization map[string]string `json:"customization,omitempty"`
}

type envelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initiate opens a checkout.  Any outcome other than an explicit provider
// "success" with a checkout URL is reported as *InitiationError.
func (c *ChapaClient) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	body := initializeBody{
		Amount:      req.Amount.StringFixed(2),
		Currency:    req.Currency,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		TxRef:       req.TxRef,
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
	}
	if req.Title != "" {
		body.Customization = map[string]string{"title": req.Title}
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return InitiateResult{}, &InitiationError{Reason: "encode request: " + err.Error()}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(buf))
	if err != nil {
		return InitiateResult{}, &InitiationError{Reason: "build request: " + err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	status, raw, err := c.do(httpReq)
	if err != nil {
		return InitiateResult{}, &InitiationError{Reason: err.Error()}
	}
	details := decodeDetails(raw)

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return InitiateResult{}, &InitiationError{Reason: fmt.Sprintf("unreadable response (http %d)", status), Details: details}
	}
	if status/100 != 2 || !strings.EqualFold(env.Status, "success") {
		return InitiateResult{}, &InitiationError{Reason: fmt.Sprintf("provider rejected checkout (http %d)", status), Details: details}
	}
	var data struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CheckoutURL == "" {
		return InitiateResult{}, &InitiationError{Reason: "provider returned no checkout url", Details: details}
	}
	return InitiateResult{CheckoutURL: data.CheckoutURL}, nil
}

// Verify asks the provider for the transaction's current status.
func (c *ChapaClient) Verify(ctx context.Context, txRef string) (Status, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/transaction/verify/"+url.PathEscape(txRef), nil)
	if err != nil {
		return StatusPending, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	status, raw, err := c.do(httpReq)
	if err != nil {
		return StatusPending, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch {
	case status >= 500, status == http.StatusTooManyRequests:
		return StatusPending, fmt.Errorf("%w: http %d", ErrUnavailable, status)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		// Our credentials were refused; says nothing about the transaction.
		return StatusPending, fmt.Errorf("%w: credentials rejected (http %d)", ErrUnavailable, status)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return StatusPending, fmt.Errorf("%w: unreadable response (http %d)", ErrUnavailable, status)
	}
	var data struct {
		Status string `json:"status"`
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return StatusPending, fmt.Errorf("%w: unreadable data (http %d)", ErrUnavailable, status)
		}
	}
	if data.Status != "" {
		return mapStatus(data.Status), nil
	}
	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		// No record of a payment under txRef yet, e.g. the checkout is
		// still open.
		return StatusPending, nil
	default:
		return StatusPending, fmt.Errorf("%w: no transaction status (http %d)", ErrUnavailable, status)
	}
}

// mapStatus folds the transaction status reported in the response data into
// the three outcomes callers act on.  Anything that is neither success nor
// still in progress is a definitive failure.
func mapStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "successful", "completed":
		return StatusSuccess
	case "pending", "processing":
		return StatusPending
	default:
		return StatusFailed
	}
}

func (c *ChapaClient) do(req *http.Request) (int, []byte, error) {
	req.Header.Set("Authorization", "Bearer "+c.secret)
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, raw, nil
}

func decodeDetails(raw []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"body": string(raw)}
	}
	return m
}
