package workers

import (
	"context"
	"strings"

	"order-of-ash/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	watcherPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ash_watcher_polls_total",
		Help: "Payment watcher cycles by result",
	}, []string{"result"})
	watcherTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ash_watcher_transfers_total",
		Help: "Inbound transfers seen by the payment watcher, by match result",
	}, []string{"result"})
)

// Transfer is an inbound payment to the deposit wallet.
type Transfer struct {
	Hash       string
	Lt         int64
	Sender     string
	AmountNano int64
	Comment    string
	Utime      int64
}

// TransferBatch is one read of the deposit wallet between two logical times.
// OldestLt and NewestLt cover every transaction read, not only the inbound transfers.
// Complete is false when older transactions above the cursor are still unread.
type TransferBatch struct {
	Transfers []Transfer
	OldestLt  int64
	NewestLt  int64
	Complete  bool
}

// TransferSource lists inbound transfers with afterLt < lt < beforeLt, newest first.
// A zero beforeLt starts from the newest transaction.
type TransferSource interface {
	InboundTransfers(ctx context.Context, afterLt, beforeLt int64, limit int) (TransferBatch, error)
}

// InvoiceLedger is the slice of the invoice service the watcher needs.
type InvoiceLedger interface {
	PendingByComment(ctx context.Context) (map[string]models.Invoice, error)
	MarkPaid(ctx context.Context, invoiceID, txHash string) (bool, error)
}

// PaymentWatcher matches transfers to pending invoices by comment and minimum amount.
type PaymentWatcher struct {
	Source   TransferSource
	Invoices InvoiceLedger
	Logger   *zap.Logger
	Batch    int

	lastLt int64
	// set while a truncated read is being resumed
	resumeBeforeLt int64
	sweepMaxLt     int64
}

func NewPaymentWatcher(source TransferSource, invoices InvoiceLedger, batch int, logger *zap.Logger) *PaymentWatcher {
	if batch <= 0 {
		batch = 50
	}
	return &PaymentWatcher{Source: source, Invoices: invoices, Logger: logger, Batch: batch}
}

// Poll runs one watch cycle and returns how many invoices it marked paid.
// The cursor only advances when every matched transfer was recorded, so failed marks are retried.
// A truncated read keeps the cursor and continues below the oldest transaction seen on the next cycle.
func (w *PaymentWatcher) Poll(ctx context.Context) (int, error) {
	pending, err := w.Invoices.PendingByComment(ctx)
	if err != nil {
		watcherPolls.WithLabelValues("error").Inc()
		return 0, err
	}
	if len(pending) == 0 {
		watcherPolls.WithLabelValues("idle").Inc()
		return 0, nil
	}

	batch, err := w.Source.InboundTransfers(ctx, w.lastLt, w.resumeBeforeLt, w.Batch)
	if err != nil {
		watcherPolls.WithLabelValues("error").Inc()
		w.Logger.Warn("fetching inbound transfers failed", zap.Error(err))
		return 0, err
	}

	marked := 0
	maxLt := max(w.lastLt, w.sweepMaxLt, batch.NewestLt)
	failed := false
	for _, t := range batch.Transfers {
		if t.Lt > maxLt {
			maxLt = t.Lt
		}
		inv, ok := pending[strings.TrimSpace(t.Comment)]
		if !ok {
			watcherTransfers.WithLabelValues("unmatched").Inc()
			continue
		}
		if t.AmountNano < inv.AmountNano {
			watcherTransfers.WithLabelValues("underpaid").Inc()
			w.Logger.Warn("transfer below invoice amount",
				zap.String("invoice_id", inv.ID),
				zap.String("tx_hash", t.Hash),
				zap.Int64("amount_nano", t.AmountNano),
				zap.Int64("expected_nano", inv.AmountNano))
			continue
		}
		changed, err := w.Invoices.MarkPaid(ctx, inv.ID, t.Hash)
		if err != nil {
			failed = true
			w.Logger.Error("marking invoice paid failed", zap.String("invoice_id", inv.ID), zap.Error(err))
			continue
		}
		watcherTransfers.WithLabelValues("matched").Inc()
		if changed {
			marked++
		}
		delete(pending, inv.Comment)
	}
	w.sweepMaxLt = maxLt
	switch {
	case failed:
		// same window again next cycle
	case !batch.Complete:
		w.resumeBeforeLt = batch.OldestLt
	default:
		w.lastLt = maxLt
		w.resumeBeforeLt = 0
		w.sweepMaxLt = 0
	}
	watcherPolls.WithLabelValues("ok").Inc()
	if marked > 0 {
		w.Logger.Info("payments detected", zap.Int("marked", marked), zap.Int64("last_lt", w.lastLt))
	}
	return marked, nil
}
