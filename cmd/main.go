package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx"

	"github.com/code-payments/unistore/config"
	"github.com/code-payments/unistore/ledger"
	ledger_memory "github.com/code-payments/unistore/ledger/memory"
	ledger_postgres "github.com/code-payments/unistore/ledger/postgres"
	"github.com/code-payments/unistore/store"
	"github.com/code-payments/unistore/storefront/sandbox"
	"github.com/code-payments/unistore/validator"
	"github.com/code-payments/unistore/validator/cache"
	"github.com/code-payments/unistore/validator/memory"
)

var catalog = []store.Product{
	{ID: "coin_100", Title: "100 Coins", Type: store.ProductTypeConsumable, Price: "$0.99", Amount: decimal.RequireFromString("0.99"), Currency: "USD"},
	{ID: "coin_500", Title: "500 Coins", Type: store.ProductTypeConsumable, Price: "$3.99", Amount: decimal.RequireFromString("3.99"), Currency: "USD"},
	{ID: "no_ads", Title: "Remove Ads", Type: store.ProductTypeNonConsumable, Price: "$2.99", Amount: decimal.RequireFromString("2.99"), Currency: "USD"},
	{ID: "vip_monthly", Title: "VIP Pass", Type: store.ProductTypeSubscription, Price: "$4.99", Amount: decimal.RequireFromString("4.99"), Currency: "USD"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	zapCfg := zap.NewDevelopmentConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	ctx := context.Background()

	driverName := "pgx"
	if cfg.NewRelicLicense != "" {
		app, err := newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.AppName),
			newrelic.ConfigLicense(cfg.NewRelicLicense),
		)
		if err != nil {
			logger.Fatal("Failed to start new relic", zap.Error(err))
		}
		defer app.Shutdown(5 * time.Second)

		txn := app.StartTransaction("purchase-session")
		defer txn.End()
		ctx = newrelic.NewContext(ctx, txn)
		driverName = "nrpgx"
	}

	purchases, err := newLedger(ctx, cfg, driverName)
	if err != nil {
		logger.Fatal("Failed to set up ledger", zap.Error(err))
	}

	pub, priv, err := memory.GenerateKeyPair()
	if err != nil {
		logger.Fatal("Failed to generate key", zap.Error(err))
	}

	var v validator.Validator = memory.NewValidator(pub)
	if cfg.ValidationCacheTTL > 0 {
		cached := cache.NewInCache(v, cfg.ValidationCacheTTL)
		defer cached.Close()
		v = cached
	}

	storefront := sandbox.NewStorefront(logger, priv, purchases, sandbox.Options{Async: cfg.SandboxAsync})
	controller, err := store.NewController(logger, catalog, storefront, v)
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}

	stream := controller.Stream("cli", 16)
	defer stream.Close()

	productIDs := os.Args[1:]
	if len(productIDs) == 0 {
		productIDs = []string{"coin_100"}
	}

	for _, productID := range productIDs {
		if _, err := controller.Buy(ctx, productID); err != nil {
			fmt.Printf("%s: %v\n", productID, err)
			continue
		}

		for done := false; !done; {
			select {
			case e := <-stream.Channel():
				switch e.Type {
				case store.EventPurchaseStarted:
					fmt.Printf("%s: started at %s\n", e.Info.ProductID, e.Info.Price)
				case store.EventPurchaseSucceeded:
					fmt.Printf("%s: succeeded (receipt %s)\n", e.Info.ProductID, e.Receipt)
					done = true
				case store.EventPurchaseFailed:
					fmt.Printf("%s: failed: %v\n", e.Info.ProductID, e.Reason)
					done = true
				}
			case <-time.After(10 * time.Second):
				fmt.Printf("%s: timed out\n", productID)
				done = true
			}
		}
	}

	controller.TryRestorePurchases(ctx, func(ok bool) {
		fmt.Println("Restore:", ok)
	})

	for _, product := range controller.Products() {
		owned, err := controller.IsPurchased(ctx, product.ID)
		if err != nil {
			logger.Warn("Failed to check ownership", zap.String("product_id", product.ID), zap.Error(err))
			continue
		}
		fmt.Printf("%s owned=%v\n", product.ID, owned)
	}
}

func newLedger(ctx context.Context, cfg config.Config, driverName string) (ledger.Store, error) {
	if cfg.DatabaseURL == "" {
		return ledger_memory.NewInMemory(), nil
	}

	db, err := sql.Open(driverName, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	if err := ledger_postgres.EnsureSchema(ctx, db); err != nil {
		return nil, err
	}

	return ledger_postgres.NewInPostgres(db), nil
}
