// Package metrics tracks the bot's order flow and account state in
// Prometheus collectors and serves them on a scrape endpoint.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridbot/internal/core"
)

// registry holds every collector the bot exports. A dedicated registry
// keeps the scrape surface to the bot's own series plus the standard
// process and runtime collectors.
var registry = newRegistry()

func newRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewGoCollector())
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

var factory = promauto.With(registry)

var (
	// OrdersPlaced counts submitted orders by side and type.
	OrdersPlaced = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_orders_placed_total",
		Help: "Orders submitted to the exchange",
	}, []string{"side", "type"})

	// OrdersFilled counts completed fills by side.
	OrdersFilled = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_orders_filled_total",
		Help: "Orders that filled completely",
	}, []string{"side"})

	// OrdersCancelled counts cancelled orders.
	OrdersCancelled = factory.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_orders_cancelled_total",
		Help: "Orders cancelled before filling",
	})

	// OrderFailures counts placement failures.
	OrderFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_order_failures_total",
		Help: "Order placements that failed after retries",
	})

	// OpenOrders tracks the limit orders currently resting on the grid.
	OpenOrders = factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridbot_open_orders",
		Help: "Limit orders currently resting on grid levels",
	}, []string{"side"})

	// AccountValue tracks the account value in quote terms.
	AccountValue = factory.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_account_value_quote",
		Help: "Account value in quote currency at the last price",
	})

	// CurrentPrice tracks the last observed pair price.
	CurrentPrice = factory.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_price_quote",
		Help: "Last observed pair price",
	})
)

// Handler returns the scrape handler over the bot's registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Server exposes the registry over HTTP for Prometheus to scrape.
type Server struct {
	port   int
	logger core.ILogger
	srv    *http.Server
}

// NewServer creates a scrape server on the given port.
func NewServer(port int, logger core.ILogger) *Server {
	return &Server{
		port:   port,
		logger: logger.WithField("component", "metrics_server"),
	}
}

// Start begins serving /metrics in the background.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		s.logger.Info("metrics endpoint listening", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
}

// Stop shuts the scrape server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("stopping metrics server")
	return s.srv.Shutdown(ctx)
}
