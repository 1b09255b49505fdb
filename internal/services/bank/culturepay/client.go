package culturepay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"cultureticks/internal/status"

	"github.com/shopspring/decimal"
)

type ClientConfig struct {
	BaseURL   string `json:"baseUrl" mapstructure:"base_url"`
	PartnerID string `json:"partnerId" mapstructure:"partner_id"`
	ClientID  string `json:"clientId" mapstructure:"client_id"`
	ClientKey string `json:"clientKey" mapstructure:"client_key"`
	HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`
}

type Client struct {
	// baseURL is the base url of the CulturePay backend.
	baseURL string

	// partnerID identifies this merchant to CulturePay.
	partnerID string

	// clientID and clientKey authenticate the merchant.
	clientID  string
	clientKey string

	// hmacKey signs every request body.
	hmacKey string

	// accessToken authenticates follow-up calls.
	accessToken string

	// mu guards accessToken.
	mu sync.Mutex

	// toggleTokenRefresher notifies the refresher on a 401.
	toggleTokenRefresher chan struct{}

	// hc is the http client.
	hc *http.Client
}

func newClient(_ context.Context, c *ClientConfig) *Client {
	return &Client{
		baseURL:   c.BaseURL,
		partnerID: c.PartnerID,
		clientID:  c.ClientID,
		clientKey: c.ClientKey,
		hmacKey:   c.HMACKey,

		// buffered so a 401 handler never blocks.
		toggleTokenRefresher: make(chan struct{}, 1),

		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// notifyAccessTokenExpired renews the token on a fixed period or when a
// call hits a 401, with exponential backoff on renewal failure.
func (c *Client) notifyAccessTokenExpired(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return

		case <-ticker.C:

		case <-c.toggleTokenRefresher:
			log.Println("notifyAccessTokenExpired: toggleTokenRefresher => token refreshed")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := c.connect(ctx)
			switch err {
			case nil:
				c.setAccessToken(token)

				break Retry

			default:
				log.Printf("notifyAccessTokenExpired: %v", err)
				select {
				case <-ctx.Done():
					return

				case <-time.After(backOff):
					backOff *= 2
				}
			}
		}
	}
}

func (c *Client) setAccessToken(accessToken string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = accessToken
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// connect authenticates with the CulturePay backend.
func (c *Client) connect(ctx context.Context) (string, error) {
	number, err := randomNumber()
	if err != nil {
		return "", fmt.Errorf("connect: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"partnerId":%q,"clientId":%q,"clientSecret":%q}`, number, c.partnerID, c.clientID, c.clientKey)

	resp, err := c.post(ctx, "/api/partner/authenticate", body, false)
	if err != nil {
		return "", fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	var reply struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AccessToken string `json:"accessToken"`
			TokenType   string `json:"tokenType"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", fmt.Errorf("connect: json.Decode: %v", err)
	}
	if reply.Status != "OK" {
		return "", fmt.Errorf("connect: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return fmt.Sprintf("%s %s", reply.Data.TokenType, reply.Data.AccessToken), nil
}

// authorize starts a charge and returns the transaction id plus the
// payment QR the buyer scans.
func (c *Client) authorize(ctx context.Context, reference string, amount decimal.Decimal, currency, description string, expiryMinutes int) (string, string, error) {
	number, err := randomNumber()
	if err != nil {
		return "", "", fmt.Errorf("authorize: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"partnerId":%q,"txnAmount":%s,"currency":%q,"billNumber":%q,"description":%q,"expiryMinutes":%d}`,
		number, c.partnerID, amount, currency, reference, description, expiryMinutes)

	resp, err := c.post(ctx, "/api/partner/authorize", body, true)
	if err != nil {
		return "", "", fmt.Errorf("authorize: %w", err)
	}
	defer resp.Body.Close()

	var reply struct {
		Message string `json:"message"`
		Status  string `json:"status"`
		Data    struct {
			TransactionID string `json:"transactionId"`
			EmvCode       string `json:"emv"`
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return "", "", fmt.Errorf("authorize: json.Decode: %w", err)
	}
	if reply.Status != "OK" {
		return "", "", fmt.Errorf("authorize: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	return reply.Data.TransactionID, reply.Data.EmvCode, nil
}

// checkTransaction polls a transaction's status by reference.
func (c *Client) checkTransaction(ctx context.Context, reference string) (*status.Transaction, error) {
	number, err := randomNumber()
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: randomNumber: %v", err)
	}

	body := fmt.Sprintf(`{"requestId":%q,"billNumber":%q}`, number, reference)

	resp, err := c.post(ctx, "/api/partner/checkTransaction", body, true)
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: %w", err)
	}
	defer resp.Body.Close()

	var reply struct {
		Message string `json:"message"`
		Status  string `json:"status"`
		Data    struct {
			payload
		} `json:"data"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkTransaction: json.Decode: %v", err)
	}
	if reply.Status != "OK" {
		if reply.Status == "NOT_FOUND" {
			return nil, status.ErrFailedPayment
		}
		return nil, fmt.Errorf("checkTransaction: reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}

	transaction, err := reply.Data.payload.ToDomain()
	if err != nil {
		return nil, fmt.Errorf("checkTransaction: reply.Data: %v", err)
	}

	return transaction, nil
}

// post sends a signed request. A 401 wakes the token refresher.
func (c *Client) post(ctx context.Context, path, body string, authed bool) (*http.Response, error) {
	base, _ := url.Parse(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String()+path, bytes.NewReader([]byte(body)))
	if err != nil {
		return nil, fmt.Errorf("http.NewReq: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SignedHash", Hmac256([]byte(body), []byte(c.hmacKey)))
	if authed {
		req.Header.Set("Authorization", c.getAccessToken())
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http.Do: %v", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		select {
		case c.toggleTokenRefresher <- struct{}{}:
		default:
		}
		return nil, errors.New("resp.StatusCode: 401 => Unauthorized")
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("resp.StatusCode: %d", resp.StatusCode)
	}

	return resp, nil
}
