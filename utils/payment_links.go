package utils

import (
	"fmt"
	"net/url"

	"github.com/tonkeeper/tongo"
)

// PaymentLinks are deep links that open a wallet with the transfer prefilled.
type PaymentLinks struct {
	TON       string `json:"ton"`
	Tonkeeper string `json:"tonkeeper"`
}

// FriendlyAddress renders the deposit wallet in the non-bounceable user-friendly form wallets expect.
func FriendlyAddress(wallet tongo.AccountID, testnet bool) string {
	return wallet.ToHuman(false, testnet)
}

func BuildPaymentLinks(wallet tongo.AccountID, amountNano int64, comment string, testnet bool) PaymentLinks {
	addr := FriendlyAddress(wallet, testnet)
	q := url.Values{}
	q.Set("amount", fmt.Sprintf("%d", amountNano))
	q.Set("text", comment)
	query := q.Encode()
	return PaymentLinks{
		TON:       "ton://transfer/" + addr + "?" + query,
		Tonkeeper: "https://app.tonkeeper.com/transfer/" + addr + "?" + query,
	}
}
