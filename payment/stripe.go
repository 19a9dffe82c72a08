package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

// Intent クライアントに返す支払い情報
type Intent struct {
	ID           string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type StripeProvider struct {
	currency string
}

// NewStripeProvider stripe.Key はプロセス全体の設定
func NewStripeProvider(secretKey, currency string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{currency: currency}
}

// CreateIntent 支払いインテント作成。VND などゼロ小数通貨はそのままの金額を渡す
func (p *StripeProvider) CreateIntent(ctx context.Context, amount int64, metadata map[string]string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(p.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	// メタデータに投稿IDなどを入れておく（管理画面で見やすいように）
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Amount: pi.Amount, Currency: string(pi.Currency)}, nil
}
