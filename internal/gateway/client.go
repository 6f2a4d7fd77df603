package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"course-service/internal/util"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const breakerName = "payment-gateway"

// ErrNotConfigured is returned when no gateway secret key is set
var ErrNotConfigured = errors.New("payment gateway not configured")

// Client creates and retires hosted payment links
type Client interface {
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error)
	DeactivatePaymentLink(ctx context.Context, linkID string) error
}

// PaymentLinkRequest describes the single line item a link charges for.
// Metadata is copied by the gateway onto every checkout session the link
// spawns and comes back in webhooks.
type PaymentLinkRequest struct {
	ProductName        string
	ProductDescription string
	Amount             int64 // minor units
	Currency           string
	RedirectURL        string
	Metadata           map[string]string
}

// PaymentLink is the hosted checkout created by the gateway
type PaymentLink struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// HTTPClient talks to a Stripe-compatible REST API
type HTTPClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
	cb        *gobreaker.CircuitBreaker[*PaymentLink]
	logger    *zap.Logger
}

// NewHTTPClient creates a gateway client
func NewHTTPClient(baseURL, secretKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      &http.Client{Timeout: 15 * time.Second},
		cb:        util.NewCircuitBreaker[*PaymentLink](breakerName, 30*time.Second),
		logger:    util.GetLogger(),
	}
}

// CreatePaymentLink creates product, price and payment link in sequence
func (c *HTTPClient) CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error) {
	if c.secretKey == "" {
		return nil, ErrNotConfigured
	}

	ctx, span := util.StartSpan(ctx, "Gateway.CreatePaymentLink")
	defer span.End()

	link, err := c.cb.Execute(func() (*PaymentLink, error) {
		return c.createPaymentLink(ctx, req)
	})
	util.ObserveBreakerResult(breakerName, err)
	if err != nil {
		c.logger.Error("Payment link creation failed", zap.Error(err))
		return nil, err
	}
	return link, nil
}

// DeactivatePaymentLink stops a link from starting new checkouts
func (c *HTTPClient) DeactivatePaymentLink(ctx context.Context, linkID string) error {
	if c.secretKey == "" {
		return ErrNotConfigured
	}

	ctx, span := util.StartSpan(ctx, "Gateway.DeactivatePaymentLink")
	defer span.End()

	_, err := c.cb.Execute(func() (*PaymentLink, error) {
		var link PaymentLink
		if err := c.post(ctx, "/v1/payment_links/"+url.PathEscape(linkID), url.Values{"active": {"false"}}, &link); err != nil {
			return nil, fmt.Errorf("deactivate payment link: %w", err)
		}
		return &link, nil
	})
	util.ObserveBreakerResult(breakerName, err)
	return err
}

func (c *HTTPClient) createPaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error) {
	var product struct {
		ID string `json:"id"`
	}
	productForm := url.Values{"name": {req.ProductName}}
	if req.ProductDescription != "" {
		productForm.Set("description", req.ProductDescription)
	}
	if err := c.post(ctx, "/v1/products", productForm, &product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	var price struct {
		ID string `json:"id"`
	}
	priceForm := url.Values{
		"currency":    {req.Currency},
		"unit_amount": {strconv.FormatInt(req.Amount, 10)},
		"product":     {product.ID},
	}
	if err := c.post(ctx, "/v1/prices", priceForm, &price); err != nil {
		return nil, fmt.Errorf("create price: %w", err)
	}

	linkForm := url.Values{
		"line_items[0][price]":    {price.ID},
		"line_items[0][quantity]": {"1"},
	}
	for k, v := range req.Metadata {
		linkForm.Set("metadata["+k+"]", v)
	}
	if req.RedirectURL != "" {
		linkForm.Set("after_completion[type]", "redirect")
		linkForm.Set("after_completion[redirect][url]", req.RedirectURL)
	}

	var link PaymentLink
	if err := c.post(ctx, "/v1/payment_links", linkForm, &link); err != nil {
		return nil, fmt.Errorf("create payment link: %w", err)
	}
	if link.URL == "" {
		return nil, errors.New("gateway returned payment link without url")
	}
	return &link, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, apiErr.Error.Message)
	}

	return json.Unmarshal(body, out)
}
