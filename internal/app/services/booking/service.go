// Package booking is the client-side data store for the service catalog,
// bookings, and payment methods. Reads cache into memory with a staleness
// guard so an overtaken response can never clobber a newer one; read-only
// listings degrade to a built-in dataset when the network is unavailable.
package booking

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/afrobizconnect/client-go/internal/api"
	"github.com/afrobizconnect/client-go/internal/app/domain/booking"
	"github.com/afrobizconnect/client-go/pkg/logger"
)

// Service is the booking and catalog data store.
type Service struct {
	api *api.Client
	log *logger.Logger

	mu             sync.RWMutex
	services       []booking.Service
	featured       []booking.Service
	bookings       []booking.Booking
	paymentMethods []booking.PaymentMethod
	selected       *booking.Service
	current        *booking.Booking
	pagination     *api.Pagination

	// Monotonic load sequences. A response commits only when its sequence is
	// still the newest issued for that collection.
	servicesSeq uint64
	featuredSeq uint64
	bookingsSeq uint64
	methodsSeq  uint64

	loadingServices bool
	loadingBookings bool
	lastErr         error
}

// New constructs the booking data store.
func New(client *api.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("booking")
	}
	return &Service{api: client, log: log}
}

// LoadServices fetches one catalog page. On network unavailability the
// built-in dataset is served instead; every other failure is returned.
func (s *Service) LoadServices(ctx context.Context, filters booking.ServiceFilters) ([]booking.Service, error) {
	seq := s.beginServices()

	env, err := s.api.Get(ctx, "/services"+serviceQuery(filters), false)
	if err != nil {
		if api.IsUnavailable(err) {
			s.log.WithError(err).Warn("catalog unavailable, serving built-in dataset")
			list := fallbackServices(filters)
			s.commitServices(seq, list, nil)
			return list, nil
		}
		s.finishServices(seq, err)
		return nil, err
	}

	var list []booking.Service
	if err := api.DecodeData(env, &list); err != nil {
		s.finishServices(seq, err)
		return nil, err
	}
	var page *api.Pagination
	if env.Meta != nil {
		page = env.Meta.Pagination
	}
	s.commitServices(seq, list, page)
	return list, nil
}

// SearchServices is LoadServices with a free-text query.
func (s *Service) SearchServices(ctx context.Context, query string, filters booking.ServiceFilters) ([]booking.Service, error) {
	filters.Search = strings.TrimSpace(query)
	return s.LoadServices(ctx, filters)
}

// LoadFeaturedServices fetches the curated front-page listing.
func (s *Service) LoadFeaturedServices(ctx context.Context) ([]booking.Service, error) {
	s.mu.Lock()
	s.featuredSeq++
	seq := s.featuredSeq
	s.mu.Unlock()

	env, err := s.api.Get(ctx, "/services/featured", false)
	if err != nil {
		if api.IsUnavailable(err) {
			s.log.WithError(err).Warn("featured listing unavailable, serving built-in dataset")
			list := fallbackFeatured()
			s.commitFeatured(seq, list)
			return list, nil
		}
		s.failSeq(err, seq, &s.featuredSeq)
		return nil, err
	}

	var list []booking.Service
	if err := api.DecodeData(env, &list); err != nil {
		s.failSeq(err, seq, &s.featuredSeq)
		return nil, err
	}
	s.commitFeatured(seq, list)
	return list, nil
}

// GetService fetches one catalog entry and selects it.
func (s *Service) GetService(ctx context.Context, id string) (*booking.Service, error) {
	if id == "" {
		return nil, fmt.Errorf("booking: service id is required")
	}
	env, err := s.api.Get(ctx, "/services/"+url.PathEscape(id), false)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	var svc booking.Service
	if err := api.DecodeData(env, &svc); err != nil {
		s.fail(err)
		return nil, err
	}
	s.mu.Lock()
	s.selected = &svc
	s.mu.Unlock()
	return &svc, nil
}

// CheckAvailability asks for open slots on a service.
func (s *Service) CheckAvailability(ctx context.Context, q booking.AvailabilityQuery) (*booking.AvailabilityResult, error) {
	if q.ServiceID == "" {
		return nil, fmt.Errorf("booking: service id is required")
	}
	env, err := s.api.Post(ctx, "/services/"+url.PathEscape(q.ServiceID)+"/availability", q, false)
	if err != nil {
		return nil, err
	}
	var result booking.AvailabilityResult
	if err := api.DecodeData(env, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ServiceReviews fetches a service's reviews.
func (s *Service) ServiceReviews(ctx context.Context, serviceID string, page, limit int) ([]booking.Review, error) {
	if serviceID == "" {
		return nil, fmt.Errorf("booking: service id is required")
	}
	endpoint := "/services/" + url.PathEscape(serviceID) + "/reviews" + pageQuery(page, limit)
	env, err := s.api.Get(ctx, endpoint, false)
	if err != nil {
		return nil, err
	}
	var reviews []booking.Review
	if err := api.DecodeData(env, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// LoadBookings fetches the signed-in user's bookings.
func (s *Service) LoadBookings(ctx context.Context, filters booking.BookingFilters) ([]booking.Booking, error) {
	s.mu.Lock()
	s.bookingsSeq++
	seq := s.bookingsSeq
	s.loadingBookings = true
	s.mu.Unlock()

	env, err := s.api.Get(ctx, "/bookings"+bookingQuery(filters), true)
	if err != nil {
		s.mu.Lock()
		if seq == s.bookingsSeq {
			s.loadingBookings = false
			s.lastErr = err
		}
		s.mu.Unlock()
		return nil, err
	}

	var list []booking.Booking
	if err := api.DecodeData(env, &list); err != nil {
		s.fail(err)
		return nil, err
	}

	s.mu.Lock()
	if seq == s.bookingsSeq {
		s.bookings = list
		s.loadingBookings = false
		s.lastErr = nil
	}
	s.mu.Unlock()
	return list, nil
}

// GetBooking fetches one booking and makes it current.
func (s *Service) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	if id == "" {
		return nil, fmt.Errorf("booking: booking id is required")
	}
	env, err := s.api.Get(ctx, "/bookings/"+url.PathEscape(id), true)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	var b booking.Booking
	if err := api.DecodeData(env, &b); err != nil {
		s.fail(err)
		return nil, err
	}
	s.mu.Lock()
	s.current = &b
	s.mergeBookingLocked(b)
	s.mu.Unlock()
	return &b, nil
}

// CreateBooking places a booking. The server's confirmed record is merged
// into the cache; the client never invents booking state.
func (s *Service) CreateBooking(ctx context.Context, req booking.Request) (*booking.Booking, error) {
	if req.ServiceID == "" {
		return nil, fmt.Errorf("booking: service id is required")
	}
	if req.Date == "" || req.TimeSlot.Start == "" {
		return nil, fmt.Errorf("booking: date and time slot are required")
	}
	env, err := s.api.Post(ctx, "/bookings", req, true)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	var b booking.Booking
	if err := api.DecodeData(env, &b); err != nil {
		s.fail(err)
		return nil, err
	}
	s.mu.Lock()
	s.current = &b
	s.mergeBookingLocked(b)
	s.lastErr = nil
	s.mu.Unlock()
	return &b, nil
}

// UpdateBookingStatus transitions a booking and merges the server's answer.
func (s *Service) UpdateBookingStatus(ctx context.Context, id string, status booking.Status, notes string) (*booking.Booking, error) {
	if id == "" {
		return nil, fmt.Errorf("booking: booking id is required")
	}
	body := map[string]any{"status": status}
	if notes != "" {
		body["notes"] = notes
	}
	env, err := s.api.Patch(ctx, "/bookings/"+url.PathEscape(id)+"/status", body, true)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	return s.mergeBookingEnvelope(env)
}

// CancelBooking cancels a booking with an optional reason.
func (s *Service) CancelBooking(ctx context.Context, id, reason string) (*booking.Booking, error) {
	if id == "" {
		return nil, fmt.Errorf("booking: booking id is required")
	}
	body := map[string]string{}
	if reason != "" {
		body["reason"] = reason
	}
	env, err := s.api.Patch(ctx, "/bookings/"+url.PathEscape(id)+"/cancel", body, true)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	return s.mergeBookingEnvelope(env)
}

// ProcessPayment charges the booking with the given method.
func (s *Service) ProcessPayment(ctx context.Context, bookingID string, method booking.PaymentMethod) (*booking.Booking, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("booking: booking id is required")
	}
	env, err := s.api.Post(ctx, "/bookings/"+url.PathEscape(bookingID)+"/payment", method, true)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	return s.mergeBookingEnvelope(env)
}

// RequestRefund asks for a refund on a paid booking.
func (s *Service) RequestRefund(ctx context.Context, bookingID, reason string, amount float64) (*booking.Refund, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("booking: booking id is required")
	}
	body := map[string]any{"reason": reason}
	if amount > 0 {
		body["amount"] = amount
	}
	env, err := s.api.Post(ctx, "/bookings/"+url.PathEscape(bookingID)+"/refund", body, true)
	if err != nil {
		return nil, err
	}
	var refund booking.Refund
	if err := api.DecodeData(env, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

// SubmitReview rates a completed booking.
func (s *Service) SubmitReview(ctx context.Context, bookingID string, rating int, comment string, images []string) (*booking.Review, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("booking: booking id is required")
	}
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("booking: rating must be between 1 and 5")
	}
	body := map[string]any{"rating": rating}
	if comment != "" {
		body["comment"] = comment
	}
	if len(images) > 0 {
		body["images"] = images
	}
	env, err := s.api.Post(ctx, "/bookings/"+url.PathEscape(bookingID)+"/review", body, true)
	if err != nil {
		return nil, err
	}
	var review booking.Review
	if err := api.DecodeData(env, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// LoadPaymentMethods fetches the saved payment methods, degrading to the
// built-in dataset when the network is unavailable.
func (s *Service) LoadPaymentMethods(ctx context.Context) ([]booking.PaymentMethod, error) {
	s.mu.Lock()
	s.methodsSeq++
	seq := s.methodsSeq
	s.mu.Unlock()

	env, err := s.api.Get(ctx, "/payment-methods", true)
	if err != nil {
		if api.IsUnavailable(err) {
			s.log.WithError(err).Warn("payment methods unavailable, serving built-in dataset")
			list := fallbackPaymentMethods()
			s.commitMethods(seq, list)
			return list, nil
		}
		s.failSeq(err, seq, &s.methodsSeq)
		return nil, err
	}

	var list []booking.PaymentMethod
	if err := api.DecodeData(env, &list); err != nil {
		s.failSeq(err, seq, &s.methodsSeq)
		return nil, err
	}
	s.commitMethods(seq, list)
	return list, nil
}

// SavePaymentMethod stores a new payment method server-side. Mutations never
// fall back: a method the server has not accepted does not exist.
func (s *Service) SavePaymentMethod(ctx context.Context, method booking.PaymentMethod) (*booking.PaymentMethod, error) {
	if method.Type == "" {
		return nil, fmt.Errorf("booking: payment method type is required")
	}
	env, err := s.api.Post(ctx, "/payment-methods", method, true)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	var saved booking.PaymentMethod
	if err := api.DecodeData(env, &saved); err != nil {
		s.fail(err)
		return nil, err
	}
	s.mu.Lock()
	s.paymentMethods = append(s.paymentMethods, saved)
	s.lastErr = nil
	s.mu.Unlock()
	return &saved, nil
}

// DeletePaymentMethod removes a saved payment method.
func (s *Service) DeletePaymentMethod(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("booking: payment method token is required")
	}
	if _, err := s.api.Delete(ctx, "/payment-methods/"+url.PathEscape(token), true); err != nil {
		s.fail(err)
		return err
	}
	s.mu.Lock()
	kept := s.paymentMethods[:0]
	for _, m := range s.paymentMethods {
		if m.Token != token {
			kept = append(kept, m)
		}
	}
	s.paymentMethods = kept
	s.lastErr = nil
	s.mu.Unlock()
	return nil
}

// Services returns the cached catalog page.
func (s *Service) Services() []booking.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]booking.Service(nil), s.services...)
}

// FeaturedServices returns the cached featured listing.
func (s *Service) FeaturedServices() []booking.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]booking.Service(nil), s.featured...)
}

// Bookings returns the cached booking list.
func (s *Service) Bookings() []booking.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]booking.Booking(nil), s.bookings...)
}

// PaymentMethods returns the cached payment methods.
func (s *Service) PaymentMethods() []booking.PaymentMethod {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]booking.PaymentMethod(nil), s.paymentMethods...)
}

// SelectedService returns the most recently fetched catalog entry.
func (s *Service) SelectedService() *booking.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// CurrentBooking returns the most recently fetched or created booking.
func (s *Service) CurrentBooking() *booking.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Pagination returns the catalog pagination from the latest committed load.
func (s *Service) Pagination() *api.Pagination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pagination
}

// IsLoadingServices reports whether a catalog load is in flight.
func (s *Service) IsLoadingServices() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadingServices
}

// IsLoadingBookings reports whether a booking load is in flight.
func (s *Service) IsLoadingBookings() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadingBookings
}

// LastError returns the most recent operation failure.
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClearError discards the stored failure.
func (s *Service) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

func (s *Service) beginServices() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servicesSeq++
	s.loadingServices = true
	return s.servicesSeq
}

func (s *Service) commitServices(seq uint64, list []booking.Service, page *api.Pagination) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.servicesSeq {
		return
	}
	s.services = list
	s.pagination = page
	s.loadingServices = false
	s.lastErr = nil
}

func (s *Service) finishServices(seq uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq == s.servicesSeq {
		s.loadingServices = false
		s.lastErr = err
	}
}

func (s *Service) commitFeatured(seq uint64, list []booking.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.featuredSeq {
		return
	}
	s.featured = list
	s.lastErr = nil
}

func (s *Service) commitMethods(seq uint64, list []booking.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.methodsSeq {
		return
	}
	s.paymentMethods = list
	s.lastErr = nil
}

func (s *Service) mergeBookingEnvelope(env *api.Envelope) (*booking.Booking, error) {
	var b booking.Booking
	if err := api.DecodeData(env, &b); err != nil {
		s.fail(err)
		return nil, err
	}
	s.mu.Lock()
	s.mergeBookingLocked(b)
	if s.current != nil && s.current.ID == b.ID {
		s.current = &b
	}
	s.lastErr = nil
	s.mu.Unlock()
	return &b, nil
}

// mergeBookingLocked replaces the cached booking with the same id, or appends.
func (s *Service) mergeBookingLocked(b booking.Booking) {
	for i := range s.bookings {
		if s.bookings[i].ID == b.ID {
			s.bookings[i] = b
			return
		}
	}
	s.bookings = append(s.bookings, b)
}

func (s *Service) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// failSeq records a load error only while seq is still the collection's
// newest load, so an overtaken request cannot clobber a fresher result.
func (s *Service) failSeq(err error, seq uint64, latest *uint64) {
	s.mu.Lock()
	if seq == *latest {
		s.lastErr = err
	}
	s.mu.Unlock()
}

func serviceQuery(f booking.ServiceFilters) string {
	q := url.Values{}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.PriceMin > 0 {
		q.Set("priceMin", strconv.FormatFloat(f.PriceMin, 'f', -1, 64))
	}
	if f.PriceMax > 0 {
		q.Set("priceMax", strconv.FormatFloat(f.PriceMax, 'f', -1, 64))
	}
	if f.Rating > 0 {
		q.Set("rating", strconv.FormatFloat(f.Rating, 'f', -1, 64))
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func bookingQuery(f booking.BookingFilters) string {
	q := url.Values{}
	for _, st := range f.Statuses {
		q.Add("status", string(st))
	}
	if f.DateFrom != "" {
		q.Set("dateFrom", f.DateFrom)
	}
	if f.DateTo != "" {
		q.Set("dateTo", f.DateTo)
	}
	if f.ServiceID != "" {
		q.Set("serviceId", f.ServiceID)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func pageQuery(page, limit int) string {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
