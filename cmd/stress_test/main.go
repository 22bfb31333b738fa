// Stress drives concurrent allocations against one lot and checks that the
// committed ledger always matches the lot's final quantity.
package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/lotkeeper/lotkeeper/internal/adapter/storage"
	"github.com/lotkeeper/lotkeeper/internal/core/domain"
	"github.com/lotkeeper/lotkeeper/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	initialStock  = 20
	totalRequests = 50
)

func main() {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("failed to connect redis")
	}
	defer rdb.Close()

	store := storage.NewMemoryAdapter()
	cache := storage.NewRedisAdapter(rdb)

	catalog := service.NewCatalogService(store)
	allocation := service.NewAllocationService(store, cache)

	product, err := catalog.CreateProduct(ctx, "stress-product")
	if err != nil {
		log.WithError(err).Fatal("failed to create product")
	}
	lot, err := catalog.CreateLot(ctx, product.ID, "stress lot")
	if err != nil {
		log.WithError(err).Fatal("failed to create lot")
	}

	if _, err := allocation.CreateTransaction(ctx, service.CreateTransactionRequest{
		ProductID: product.ID,
		LotID:     lot.ID,
		Delta:     decimal.NewFromInt(initialStock),
		Policy:    domain.PolicyFIFO,
	}); err != nil {
		log.WithError(err).Fatal("failed to seed stock")
	}

	var successCount, conflictCount, insufficientCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := allocation.CreateTransaction(ctx, service.CreateTransactionRequest{
				RequestID: fmt.Sprintf("stress-%d", i),
				ProductID: product.ID,
				Delta:     decimal.NewFromInt(-1),
				Policy:    domain.PolicyFIFO,
			})
			switch err {
			case nil:
				successCount.Add(1)
			case domain.ErrConflict:
				conflictCount.Add(1)
			case domain.ErrInsufficientQuantity:
				insufficientCount.Add(1)
			default:
				log.WithError(err).Error("unexpected failure")
			}
		}(i)
	}

	wg.Wait()

	balance, err := allocation.LotBalance(ctx, lot.ID)
	if err != nil {
		log.WithError(err).Fatal("failed to read balance")
	}
	updated, err := catalog.GetLot(ctx, lot.ID)
	if err != nil {
		log.WithError(err).Fatal("failed to read lot")
	}

	log.WithFields(log.Fields{
		"successes":    successCount.Load(),
		"conflicts":    conflictCount.Load(),
		"insufficient": insufficientCount.Load(),
		"quantity":     updated.Quantity.String(),
		"ledger_sum":   balance.String(),
	}).Info("stress run complete")

	if !updated.Quantity.Equal(balance) {
		log.Fatal("accounting identity violated: quantity diverged from ledger")
	}
	if int(successCount.Load()) > initialStock {
		log.Fatal("oversold: more successes than initial stock")
	}
}
