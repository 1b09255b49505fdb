package services

import (
	"context"
	"fmt"

	"cultureticks/config"
	"cultureticks/internal/services/bank"
	"cultureticks/internal/services/bank/culturepay"
	"cultureticks/internal/services/bank/mockpay"
)

// NewPaymentProvider builds the configured payment backend.
func NewPaymentProvider(ctx context.Context, cfg *config.Config) (bank.PaymentProvider, error) {
	switch bank.Provider(cfg.PaymentProvider) {
	case bank.ProviderCulturePay:
		return culturepay.New(ctx, &culturepay.Config{
			BaseURL:   cfg.PaymentBaseURL,
			PartnerID: cfg.PaymentPartnerID,
			ClientID:  cfg.PaymentClientID,
			ClientKey: cfg.PaymentClientKey,
			HMACKey:   cfg.PaymentHMACKey,

			PNSubKey:    cfg.PubNubSubscribeKey,
			PNSubSecret: cfg.PubNubSecretKey,
			PNUUID:      cfg.PubNubUUID,
			PNCipherKey: cfg.PubNubCipherKey,
		})

	case bank.ProviderMockPay:
		return mockpay.New(ctx), nil

	default:
		return nil, fmt.Errorf("unsupported payment provider: %q", cfg.PaymentProvider)
	}
}
