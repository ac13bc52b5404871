package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avstrong/rentals/internal/availability"
	"github.com/avstrong/rentals/internal/booking"
	"github.com/avstrong/rentals/internal/catalog"
	"github.com/avstrong/rentals/internal/entitlement"
	"github.com/avstrong/rentals/internal/pricing"
)

const maxBodyBytes = 1 << 20

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.LogErrorf("Could not encode response: %v", err.Error())
	}
}

// writeError maps domain errors onto HTTP statuses. Only unexpected errors are logged.
func (s *Server) writeError(w http.ResponseWriter, action string, err error) {
	if inputErr := booking.IsInputError(err); inputErr != nil {
		s.writeJSON(w, http.StatusBadRequest, inputErr.Fields())

		return
	}

	if conflictErr := availability.IsConflictError(err); conflictErr != nil {
		s.writeJSON(w, http.StatusConflict, conflictView{
			Error:       "requested dates are not available",
			PropertyID:  conflictErr.PropertyID,
			Requested:   conflictErr.Requested,
			Conflicts:   conflictErr.Conflicts,
			Suggestions: conflictErr.Suggestions,
		})

		return
	}

	switch {
	case errors.Is(err, catalog.ErrPackageNotFound),
		errors.Is(err, pricing.ErrDateRangeInvalid),
		errors.Is(err, availability.ErrInvalidRange),
		errors.Is(err, entitlement.ErrUnknownTier),
		errors.Is(err, ErrBadDate):
		s.writeJSON(w, http.StatusBadRequest, errorView{Error: err.Error()})
	case errors.Is(err, booking.ErrRecordNotFound), errors.Is(err, catalog.ErrPropertyNotFound):
		s.writeJSON(w, http.StatusNotFound, errorView{Error: err.Error()})
	case errors.Is(err, booking.ErrInvalidTransition), errors.Is(err, booking.ErrConcurrentUpdate):
		s.writeJSON(w, http.StatusConflict, errorView{Error: err.Error()})
	case errors.Is(err, catalog.ErrCatalogUnavailable):
		s.writeJSON(w, http.StatusServiceUnavailable, errorView{Error: err.Error()})
	default:
		s.l.LogErrorf("Could not %s: %v", action, err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// decodeRequest reads and validates a JSON body. An empty body is accepted when allowEmpty is set.
// It writes the 400 response itself and reports false on failure.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)

	switch {
	case errors.Is(err, io.EOF) && allowEmpty:
	case errors.Is(err, io.EOF):
		s.writeJSON(w, http.StatusBadRequest, errorView{Error: ErrEmptyBody.Error()})

		return false
	case err != nil:
		s.writeJSON(w, http.StatusBadRequest, errorView{Error: fmt.Sprintf("decode request: %v", err)})

		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, validationFields(err))

		return false
	}

	return true
}

func (s *Server) listPackagesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID := r.PathValue("propertyID")

	var (
		descriptors []catalog.Descriptor
		err         error
	)

	if customerID := r.URL.Query().Get("customer_id"); customerID != "" {
		descriptors, err = s.bManager.ListPackagesForCustomer(ctx, propertyID, customerID)
	} else {
		var tier entitlement.Tier

		tier, err = entitlement.ParseTier(r.URL.Query().Get("tier"))
		if err == nil {
			descriptors, err = s.bManager.ListVisiblePackages(ctx, propertyID, tier)
		}
	}

	if err != nil {
		s.writeError(w, "list packages", err)

		return
	}

	s.writeJSON(w, http.StatusOK, newPackageViews(descriptors))
}

func (s *Server) listAddonsHandler(w http.ResponseWriter, r *http.Request) {
	descriptors, err := s.bManager.ListVisibleAddons(r.Context(), r.PathValue("propertyID"))
	if err != nil {
		s.writeError(w, "list addons", err)

		return
	}

	s.writeJSON(w, http.StatusOK, newPackageViews(descriptors))
}

func (s *Server) resolvePackageHandler(w http.ResponseWriter, r *http.Request) {
	d, err := s.bManager.ResolvePackage(r.Context(), r.PathValue("propertyID"), r.PathValue("ref"))
	if err != nil {
		s.writeError(w, "resolve package", err)

		return
	}

	s.writeJSON(w, http.StatusOK, newPackageView(*d))
}

func (s *Server) availabilityHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, err := parseDate(query.Get("from"))
	if err != nil {
		s.writeError(w, "check availability", err)

		return
	}

	to, err := parseDate(query.Get("to"))
	if err != nil {
		s.writeError(w, "check availability", err)

		return
	}

	result, err := s.bManager.CheckAvailability(r.Context(), &booking.AvailabilityInput{
		PropertyID:       r.PathValue("propertyID"),
		From:             from,
		To:               to,
		ExcludeBookingID: query.Get("exclude_booking_id"),
		PackageRef:       query.Get("package"),
	})
	if err != nil {
		s.writeError(w, "check availability", err)

		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) quoteHandler(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest

	if !s.decodeRequest(w, r, &req, false) {
		return
	}

	input, err := req.input()
	if err != nil {
		s.writeError(w, "quote", err)

		return
	}

	estimate, err := s.bManager.Quote(r.Context(), input)
	if err != nil {
		s.writeError(w, "quote", err)

		return
	}

	s.writeJSON(w, http.StatusOK, estimate)
}

func (s *Server) confirmHandler(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest

	if !s.decodeRequest(w, r, &req, true) {
		return
	}

	b, err := s.bManager.ConfirmPayment(r.Context(), &booking.ConfirmInput{
		EstimateID: r.PathValue("estimateID"),
		Guests:     req.Guests,
	})
	if err != nil {
		s.writeError(w, "confirm payment", err)

		return
	}

	s.writeJSON(w, http.StatusCreated, b)
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	estimate, err := s.bManager.CancelEstimate(r.Context(), r.PathValue("estimateID"))
	if err != nil {
		s.writeError(w, "cancel estimate", err)

		return
	}

	s.writeJSON(w, http.StatusOK, estimate)
}

func (s *Server) rescheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest

	if !s.decodeRequest(w, r, &req, false) {
		return
	}

	from, err := parseDate(req.From)
	if err != nil {
		s.writeError(w, "reschedule booking", err)

		return
	}

	to, err := parseDate(req.To)
	if err != nil {
		s.writeError(w, "reschedule booking", err)

		return
	}

	b, err := s.bManager.RescheduleBooking(r.Context(), &booking.RescheduleInput{
		BookingID: r.PathValue("bookingID"),
		From:      from,
		To:        to,
	})
	if err != nil {
		s.writeError(w, "reschedule booking", err)

		return
	}

	s.writeJSON(w, http.StatusOK, b)
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handle(r *http.ServeMux, pattern string, h http.HandlerFunc) {
	r.Handle(pattern, s.applyMiddlewares(h, s.loggerMiddleware(), s.traceMiddleware(pattern), s.recoverMiddleware()))
}

func (s *Server) addRoutes(r *http.ServeMux) {
	s.handle(r, "GET /api/properties/{propertyID}/packages", s.listPackagesHandler)
	s.handle(r, "GET /api/properties/{propertyID}/packages/{ref}", s.resolvePackageHandler)
	s.handle(r, "GET /api/properties/{propertyID}/addons", s.listAddonsHandler)
	s.handle(r, "GET /api/properties/{propertyID}/availability", s.availabilityHandler)
	s.handle(r, "POST /api/estimates/v1", s.quoteHandler)
	s.handle(r, "POST /api/estimates/v1/{estimateID}/confirm", s.confirmHandler)
	s.handle(r, "POST /api/estimates/v1/{estimateID}/cancel", s.cancelHandler)
	s.handle(r, "POST /api/bookings/v1/{bookingID}/reschedule", s.rescheduleHandler)
	s.handle(r, fmt.Sprintf("GET %s", s.conf.LivenessEndpoint), s.livenessHandler)

	if s.conf.Gatherer != nil {
		//nolint:exhaustruct
		r.Handle("GET /metrics", promhttp.HandlerFor(s.conf.Gatherer, promhttp.HandlerOpts{}))
	}
}
