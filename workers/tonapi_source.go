package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"order-of-ash/config"

	"github.com/avast/retry-go"
	"github.com/tonkeeper/tonapi-go"
	"go.uber.org/zap"
)

const (
	textCommentOp = "text_comment"
	maxPages      = 5
)

// bearerClient attaches the tonapi key to every request.
type bearerClient struct {
	header string
	http   *http.Client
}

func (c bearerClient) Do(r *http.Request) (*http.Response, error) {
	r.Header.Set("Authorization", c.header)
	return c.http.Do(r)
}

// TonapiSource reads the deposit wallet's transactions from tonapi.io.
type TonapiSource struct {
	client  *tonapi.Client
	account string
	logger  *zap.Logger
}

func NewTonapiSource(cfg config.TONConfig, logger *zap.Logger) (*TonapiSource, error) {
	httpClient := &http.Client{Timeout: 15 * time.Second}
	opts := []tonapi.ClientOption{tonapi.WithClient(httpClient)}
	if cfg.APIToken != "" {
		opts = []tonapi.ClientOption{tonapi.WithClient(bearerClient{header: "Bearer " + cfg.APIToken, http: httpClient})}
	}
	client, err := tonapi.NewClient(cfg.APIURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("tonapi client: %w", err)
	}
	return &TonapiSource{client: client, account: cfg.DepositWallet.ToRaw(), logger: logger}, nil
}

func (s *TonapiSource) page(ctx context.Context, params tonapi.GetBlockchainAccountTransactionsParams) (*tonapi.Transactions, error) {
	var res *tonapi.Transactions
	err := retry.Do(func() error {
		var err error
		res, err = s.client.GetBlockchainAccountTransactions(ctx, params)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("retrying tonapi request", zap.Uint("attempt", n), zap.Error(err))
		}),
	)
	return res, err
}

// InboundTransfers pages backwards from beforeLt (or the newest transaction) towards afterLt.
// The batch is incomplete when maxPages full pages were read without reaching afterLt.
// Without a cursor only the most recent pages are read and the batch counts as complete.
func (s *TonapiSource) InboundTransfers(ctx context.Context, afterLt, beforeLt int64, limit int) (TransferBatch, error) {
	var batch TransferBatch
	for i := 0; i < maxPages; i++ {
		params := tonapi.GetBlockchainAccountTransactionsParams{
			AccountID: s.account,
			Limit:     tonapi.NewOptInt32(int32(limit)),
		}
		if afterLt > 0 {
			params.AfterLt = tonapi.NewOptInt64(afterLt)
		}
		if beforeLt > 0 {
			params.BeforeLt = tonapi.NewOptInt64(beforeLt)
		}
		page, err := s.page(ctx, params)
		if err != nil {
			return TransferBatch{}, err
		}
		for _, tx := range page.Transactions {
			if beforeLt == 0 || tx.Lt < beforeLt {
				beforeLt = tx.Lt
			}
			if tx.Lt > batch.NewestLt {
				batch.NewestLt = tx.Lt
			}
			if t, ok := inboundTransfer(tx); ok {
				batch.Transfers = append(batch.Transfers, t)
			}
		}
		batch.OldestLt = beforeLt
		if len(page.Transactions) < limit {
			batch.Complete = true
			return batch, nil
		}
	}
	batch.Complete = afterLt == 0
	if !batch.Complete {
		s.logger.Info("inbound transfers truncated, resuming next cycle",
			zap.Int64("after_lt", afterLt), zap.Int64("oldest_lt", batch.OldestLt))
	}
	return batch, nil
}

// inboundTransfer extracts a successful, non-bounced inbound payment with its text comment.
func inboundTransfer(tx tonapi.Transaction) (Transfer, bool) {
	if !tx.Success {
		return Transfer{}, false
	}
	msg, ok := tx.InMsg.Get()
	if !ok || msg.Bounced || msg.Value <= 0 {
		return Transfer{}, false
	}
	t := Transfer{
		Hash:       tx.Hash,
		Lt:         tx.Lt,
		AmountNano: msg.Value,
		Utime:      tx.Utime,
	}
	if src, ok := msg.Source.Get(); ok {
		t.Sender = src.Address
	}
	if op, ok := msg.DecodedOpName.Get(); ok && op == textCommentOp && len(msg.DecodedBody) > 0 {
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg.DecodedBody, &body); err == nil {
			t.Comment = body.Text
		}
	}
	return t, true
}
