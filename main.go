package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	appcart "github.com/nativebites/checkout/internal/application/cart"
	"github.com/nativebites/checkout/internal/application/checkout"
	domcatalog "github.com/nativebites/checkout/internal/domain/catalog"
	dompayment "github.com/nativebites/checkout/internal/domain/payment"
	"github.com/nativebites/checkout/internal/infrastructure/id"
	"github.com/nativebites/checkout/internal/infrastructure/memory"
	"github.com/nativebites/checkout/internal/infrastructure/observability/oteltrace"
	"github.com/nativebites/checkout/internal/infrastructure/observability/prometrics"
	"github.com/nativebites/checkout/internal/infrastructure/observability/telemetry"
	"github.com/nativebites/checkout/internal/infrastructure/observability/zaplogger"
	"github.com/nativebites/checkout/internal/infrastructure/outbox"
	infrapayment "github.com/nativebites/checkout/internal/infrastructure/payment"
	"github.com/nativebites/checkout/internal/observability"
	httppresentation "github.com/nativebites/checkout/internal/presentation/http"
	"github.com/nativebites/checkout/internal/presentation/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	serviceName := getenvDefault("SERVICE_NAME", "checkout")
	env := getenvDefault("ENV", "dev")

	logger := zaplogger.New(
		observability.F("service", serviceName),
		observability.F("env", env),
	)

	registry := prometrics.New(serviceName, "")
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests: registry.Counter(
			string(observability.MUsecaseRequests),
			"Total number of use case invocations.",
			"use_case", "outcome",
		),
		observability.MHTTPRequests: registry.Counter(
			string(observability.MHTTPRequests),
			"Total number of HTTP requests.",
			"method", "route", "status",
		),
		observability.MExternalRequests: registry.Counter(
			string(observability.MExternalRequests),
			"Total number of calls to external collaborators.",
			"peer", "endpoint", "outcome",
		),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration: registry.Histogram(
			string(observability.MUsecaseDuration),
			"Duration of use case execution in seconds.",
			prometheus.DefBuckets,
			"use_case",
		),
		observability.MHTTPRequestDuration: registry.Histogram(
			string(observability.MHTTPRequestDuration),
			"Duration of HTTP requests in seconds.",
			prometheus.DefBuckets,
			"method", "route", "status",
		),
		observability.MExternalRequestDuration: registry.Histogram(
			string(observability.MExternalRequestDuration),
			"Duration of external calls in seconds.",
			prometheus.DefBuckets,
			"peer", "endpoint",
		),
	}
	tel := telemetry.New(oteltrace.New(serviceName), logger, counters, histograms)

	orderRepo := memory.NewOrderRepository()
	inventoryRepo := memory.NewInventoryRepository()
	cartRepo := memory.NewCartRepository()
	catalogRepo := memory.NewCatalogRepository()
	idGenerator := id.NewUUIDGenerator()

	seedCatalog(catalogRepo, inventoryRepo)

	var gateway dompayment.Gateway = infrapayment.NewSimulatedGateway()
	if gatewayURL := os.Getenv("PAYMENT_GATEWAY_URL"); gatewayURL != "" {
		timeout := time.Duration(getenvInt("GATEWAY_TIMEOUT_MS", 5000)) * time.Millisecond
		gateway = infrapayment.NewHTTPGateway(gatewayURL, timeout)
	}

	bus := outbox.NewBus(tel.Logger())
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	checkoutService := checkout.NewService(orderRepo, inventoryRepo, cartRepo, gateway, bus, idGenerator, tel)
	cartService := appcart.NewService(cartRepo, catalogRepo, tel)

	auditWorker := worker.NewAuditWorker(bus, tel)
	auditWorker.Start()

	sweepInterval := time.Duration(getenvInt("SWEEP_INTERVAL_MS", 30000)) * time.Millisecond
	sweeper := checkout.NewSweeper(checkoutService, orderRepo, sweepInterval, tel.Logger())
	sweeper.Start(context.Background())
	defer sweeper.Stop(context.Background())

	handler := httppresentation.NewHandler(checkoutService, cartService, tel)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:    getenvDefault("ADDR", ":8080"),
		Handler: mux,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	systemLogger := tel.Logger().With(observability.F("component", "main"))

	go func() {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error", observability.F("error", err.Error()))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err.Error()))
	} else {
		systemLogger.Info("http_server_stopped")
	}
}

// seedCatalog loads a small demo catalog so the service is usable out of the
// box; a real deployment would source products from the catalog service.
func seedCatalog(catalog *memory.CatalogRepository, inventory *memory.InventoryRepository) {
	ctx := context.Background()
	products := []domcatalog.Product{
		{ID: "p-espresso", Name: "Espresso Beans 1kg", Price: 1850, Stock: 40},
		{ID: "p-grinder", Name: "Burr Grinder", Price: 7900, Stock: 12},
		{ID: "p-kettle", Name: "Gooseneck Kettle", Price: 4500, Stock: 25},
	}
	for i := range products {
		_ = catalog.PutProduct(ctx, &products[i])
		_ = inventory.Restock(ctx, products[i].ID, products[i].Stock)
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
