package core

import (
	"context"
	"sync"
	"time"

	"equiploan/pkg/domain"
)

// SweepOverdue marks every Borrowed transaction past its due date as Overdue and
// reports how many changed. Item status is left alone.
func (s *Service) SweepOverdue(ctx context.Context) (int, domain.Result, error) {
	var marked int
	res, err := s.run(ctx, "sweep_overdue", func(tx domain.Tx) error {
		marked = 0
		now := tx.Now()
		for _, t := range tx.View().ListTransactions() {
			if t.Status != domain.TransactionBorrowed || !t.DueDate.Before(now) {
				continue
			}
			if _, err := tx.UpdateTransaction(t.ID, func(u *domain.Transaction) error {
				u.Status = domain.TransactionOverdue
				return nil
			}); err != nil {
				return err
			}
			marked++
		}
		if marked > 0 {
			s.audit(tx, domain.AuditOverdue, "", "Marked %d transaction(s) overdue", marked)
		}
		return nil
	})
	return marked, res, err
}

// OverdueSweeper periodically runs SweepOverdue until stopped.
type OverdueSweeper struct {
	svc      *Service
	interval time.Duration
	logger   Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewOverdueSweeper constructs a sweeper. A non-positive interval defaults to one minute.
func NewOverdueSweeper(svc *Service, interval time.Duration, logger Logger) *OverdueSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &OverdueSweeper{svc: svc, interval: interval, logger: logger}
}

// Start sweeps once immediately and then on every tick until ctx ends or Stop is called.
func (w *OverdueSweeper) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true
	go w.loop(ctx, w.done)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (w *OverdueSweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	cancel, done := w.cancel, w.done
	w.running = false
	w.mu.Unlock()
	cancel()
	<-done
}

func (w *OverdueSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *OverdueSweeper) sweep(ctx context.Context) {
	n, _, err := w.svc.SweepOverdue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("overdue sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		w.logger.Info("overdue sweep marked transactions", "count", n)
	}
}
