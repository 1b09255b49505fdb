package culturepay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"cultureticks/internal/services/bank"
	"cultureticks/internal/status"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

type (
	Config struct {
		BaseURL string `json:"baseUrl" mapstructure:"base_url"`

		PartnerID string `json:"partnerId" mapstructure:"partner_id"`
		ClientID  string `json:"clientId" mapstructure:"client_id"`
		ClientKey string `json:"clientKey" mapstructure:"client_key"`
		HMACKey   string `json:"hmacKey" mapstructure:"hmac_key"`

		PNSubKey    string `json:"pn_subkey" mapstructure:"pn_subkey"`
		PNSubSecret string `json:"pn_subsecret" mapstructure:"pn_subsecret"`
		PNUUID      string `json:"pn_uuid" mapstructure:"pn_uuid"`
		PNChannel   string `json:"pn_channel" mapstructure:"pn_channel"`
		PNCipherKey string `json:"pn_cipherKey" mapstructure:"pn_cipherkey"`
	}

	// CulturePay is the hosted payment backend. Charges resolve
	// asynchronously over a PubNub settlement channel keyed by partner
	// id and payment reference.
	CulturePay struct {
		partnerID string

		pnSubKey    string
		pnSubSecret string
		pnUUID      string
		pnCipherKey string

		sub *subscribe

		client *Client
	}
)

type payload struct {
	TransactionID string          `json:"transactionId"`
	Reference     string          `json:"billNumber"`
	Status        string          `json:"txnStatus"`
	Amount        decimal.Decimal `json:"txnAmount"`
	Currency      string          `json:"currency"`
	CreatedAt     string          `json:"txnDateTime"`
}

// New returns a connected CulturePay instance.
func New(ctx context.Context, cfg *Config) (*CulturePay, error) {
	client := newClient(ctx, &ClientConfig{
		BaseURL:   cfg.BaseURL,
		PartnerID: cfg.PartnerID,
		ClientID:  cfg.ClientID,
		ClientKey: cfg.ClientKey,
		HMACKey:   cfg.HMACKey,
	})

	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	go client.notifyAccessTokenExpired(ctx)

	cp := &CulturePay{
		partnerID: cfg.PartnerID,

		pnSubKey:    cfg.PNSubKey,
		pnSubSecret: cfg.PNSubSecret,
		pnUUID:      cfg.PNUUID,
		pnCipherKey: cfg.PNCipherKey,

		client: client,
	}

	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cp.pnUUID))
	pnCfg.SubscribeKey = cp.pnSubKey
	pnCfg.CipherKey = cp.pnCipherKey
	pnCfg.SecretKey = cp.pnSubSecret

	sub := &subscribe{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}
	sub.pn.AddListener(sub.lis)
	go sub.processSubscription(ctx)
	cp.sub = sub

	return cp, nil
}

type subscribe struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener
	ch  chan *status.Transaction
}

func (s *subscribe) processSubscription(ctx context.Context) {
	for {
		select {
		case st := <-s.lis.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				log.Println("connected to pubnub")

			case pubnub.PNReconnectedCategory:
				log.Println("reconnected to pubnub")

			case pubnub.PNDisconnectedCategory:
				log.Println("disconnected from pubnub")

			default:
				log.Printf("pubnub status category: %v", st.Category)
			}

		case message := <-s.lis.Message:
			var p payload
			dec := json.NewDecoder(strings.NewReader(fmt.Sprint(message.Message)))
			if err := dec.Decode(&p); err != nil {
				log.Println(err)
				continue
			}

			tran, err := p.ToDomain()
			if err != nil {
				log.Println(err)
				continue
			}
			if s.ch != nil {
				s.ch <- tran
			}

		case <-ctx.Done():
			log.Println("close subscribe")
			return
		}
	}
}

func (p *payload) ToDomain() (*status.Transaction, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.CreatedAt, time.Local)
	if err != nil {
		return nil, err
	}

	return &status.Transaction{
		RefID:     p.TransactionID,
		Reference: p.Reference,
		Status:    p.Status,
		Amount:    p.Amount,
		Currency:  p.Currency,
		CreatedAt: ts,
	}, nil
}

// settlement channel for one reference, replaying the last 2 minutes so
// a notification sent before the subscribe call is not lost.
func (cp *CulturePay) addChannel(reference string) {
	channel := fmt.Sprintf("%s_%s", cp.partnerID, reference)
	tt := time.Now().Add(-2*time.Minute).Unix() * 10000
	cp.sub.pn.Subscribe().Channels([]string{channel}).Timetoken(tt).Execute()
}

func (cp *CulturePay) removeChannel(reference string) {
	cp.sub.pn.Unsubscribe().Channels([]string{fmt.Sprintf("%s_%s", cp.partnerID, reference)}).Execute()
}

func (cp *CulturePay) GetProvider() bank.Provider {
	return bank.ProviderCulturePay
}

func (cp *CulturePay) Authorize(ctx context.Context, req *bank.PaymentRequest) (*bank.Authorization, error) {
	txnID, emv, err := cp.client.authorize(ctx, req.Reference, req.Amount, req.Currency, req.Description, req.ExpiryMinutes)
	if err != nil {
		return nil, err
	}

	cp.addChannel(req.Reference)

	return &bank.Authorization{
		TransactionID: txnID,
		QRCode:        emv,
	}, nil
}

func (cp *CulturePay) CheckTransaction(ctx context.Context, reference string) (*status.Transaction, error) {
	return cp.client.checkTransaction(ctx, reference)
}

func (cp *CulturePay) SetTransactionChannel(ch chan *status.Transaction) {
	cp.sub.ch = ch
}

func (cp *CulturePay) Close(ctx context.Context) error {
	cp.sub.pn.UnsubscribeAll()
	cp.sub.pn.Destroy()
	return nil
}
