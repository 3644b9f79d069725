/*
scheduler.go - Automated stock audit scheduler

PURPOSE:
  Periodically replays every product's movement chain and compares the
  result against the denormalized stock_quantity column. The ledger is
  the source of truth; a mismatch means the denormalized column drifted
  (a bug, or someone touched the products table by hand) and must be
  investigated.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Replays the full chain per product (ledger.Aggregator.ReplayStock)
  - Logs every discrepancy and every broken chain link
  - Also logs the low-stock report so the day's restock needs surface
    without anyone opening the dashboard

CONFIGURATION:
  - CheckInterval: How often to audit (default: 1 hour)
  - Enabled: Whether the auditor is active (default: true)

USAGE:
  auditor := NewStockAuditor(store)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - ledger/aggregator.go: ReplayStock, the chain verification
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/fulfillment-engine/ledger"
)

// StockAuditor periodically verifies the denormalized stock column
// against the ledger.
type StockAuditor struct {
	Store         ledger.Store
	CheckInterval time.Duration
	Enabled       bool

	agg    *ledger.Aggregator
	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewStockAuditor creates a new auditor over the given store.
func NewStockAuditor(store ledger.Store) *StockAuditor {
	return &StockAuditor{
		Store:         store,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		agg:           ledger.NewAggregator(store),
		stop:          make(chan bool),
	}
}

// Start begins the audit loop.
func (a *StockAuditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.Enabled {
		log.Println("[Auditor] Disabled, not starting")
		return
	}

	a.ticker = time.NewTicker(a.CheckInterval)
	a.wg.Add(1)

	go a.run()

	log.Printf("[Auditor] Started with check interval: %v", a.CheckInterval)
}

// Stop stops the audit loop.
func (a *StockAuditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker != nil {
		a.ticker.Stop()
		close(a.stop)
		a.wg.Wait()
		log.Println("[Auditor] Stopped")
	}
}

func (a *StockAuditor) run() {
	defer a.wg.Done()

	// Run immediately on start
	a.audit()

	for {
		select {
		case <-a.ticker.C:
			a.audit()
		case <-a.stop:
			return
		}
	}
}

func (a *StockAuditor) audit() {
	ctx := context.Background()

	products, err := a.Store.ListProducts(ctx)
	if err != nil {
		log.Printf("[Auditor] Error listing products: %v", err)
		return
	}

	checked := 0
	drifted := 0
	var lowStock []string

	for _, p := range products {
		movements, err := a.Store.ListByProduct(ctx, p.ID)
		if err != nil {
			log.Printf("[Auditor] Error listing movements for %s: %v", p.ID, err)
			continue
		}
		if len(movements) == 0 {
			// Initial stock with no movements yet: nothing to replay.
			if p.LowOnStock() {
				lowStock = append(lowStock, p.Name)
			}
			continue
		}

		replayed, err := a.agg.ReplayStock(ctx, p.ID)
		if err != nil {
			drifted++
			log.Printf("[Auditor] Broken movement chain for %s (%s): %v", p.Name, p.ID, err)
			continue
		}
		checked++

		if replayed != p.StockQuantity {
			drifted++
			log.Printf("[Auditor] Stock drift for %s (%s): ledger says %d, products table says %d",
				p.Name, p.ID, replayed, p.StockQuantity)
		}
		if p.LowOnStock() {
			lowStock = append(lowStock, p.Name)
		}
	}

	if drifted > 0 {
		log.Printf("[Auditor] Completed: %d products checked, %d discrepancies", checked, drifted)
	}
	if len(lowStock) > 0 {
		log.Printf("[Auditor] Low stock: %v", lowStock)
	}
}

// RunNow triggers an immediate audit (for testing/admin).
func (a *StockAuditor) RunNow() {
	a.audit()
}

// GetNextRunTime returns when the next scheduled audit will occur.
func (a *StockAuditor) GetNextRunTime() time.Time {
	return time.Now().Add(a.CheckInterval)
}
