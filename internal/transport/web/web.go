package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/booking"
	"github.com/avstrong/rentals/internal/catalog"
	"github.com/avstrong/rentals/internal/entitlement"
	"github.com/avstrong/rentals/internal/logger"
)

type bookingManager interface {
	ListVisiblePackages(ctx context.Context, propertyID string, tier entitlement.Tier) ([]catalog.Descriptor, error)
	ListPackagesForCustomer(ctx context.Context, propertyID, customerID string) ([]catalog.Descriptor, error)
	ListVisibleAddons(ctx context.Context, propertyID string) ([]catalog.Descriptor, error)
	ResolvePackage(ctx context.Context, propertyID, ref string) (*catalog.Descriptor, error)
	CheckAvailability(ctx context.Context, input *booking.AvailabilityInput) (*availability.Result, error)
	Quote(ctx context.Context, input *booking.QuoteInput) (*booking.Estimate, error)
	ConfirmPayment(ctx context.Context, input *booking.ConfirmInput) (*booking.Booking, error)
	CancelEstimate(ctx context.Context, estimateID string) (*booking.Estimate, error)
	RescheduleBooking(ctx context.Context, input *booking.RescheduleInput) (*booking.Booking, error)
}

type Server struct {
	srv      *http.Server
	router   *http.ServeMux
	l        *logger.Logger
	conf     Conf
	bManager bookingManager
	validate *validator.Validate
}

type Conf struct {
	L                 *logger.Logger
	ServerLogger      *log.Logger
	Host              string
	Port              string
	ReadHeaderTimeout time.Duration
	LivenessEndpoint  string
	// Gatherer backs /metrics. The endpoint is not registered when nil.
	Gatherer prometheus.Gatherer
}

func New(ctx context.Context, conf Conf, bookingManager bookingManager) (*Server, error) {
	mux := http.NewServeMux()

	//nolint:exhaustruct
	srv := &http.Server{
		Addr:              net.JoinHostPort(conf.Host, conf.Port),
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		ErrorLog:          conf.ServerLogger,
		Handler:           mux,
		BaseContext: func(listener net.Listener) context.Context {
			return ctx
		},
	}

	if conf.LivenessEndpoint == "" {
		conf.LivenessEndpoint = "/liveness"
	}

	l := conf.L
	if l == nil {
		l = logger.Nop()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonName)

	server := &Server{
		srv:      srv,
		router:   mux,
		l:        l,
		conf:     conf,
		bManager: bookingManager,
		validate: validate,
	}

	server.addRoutes(mux)

	return server, nil
}

func (s *Server) Srv() *http.Server {
	return s.srv
}

// Handler exposes the routed handler without a listener. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
