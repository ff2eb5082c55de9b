package booking

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/afrobizconnect/client-go/internal/api"
	"github.com/afrobizconnect/client-go/internal/app/domain/booking"
	"github.com/afrobizconnect/client-go/internal/storage"
)

func newTestService(t *testing.T, handler http.Handler) *Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := api.New(api.Config{BaseURL: srv.URL, Storage: storage.NewMemory()})
	if err != nil {
		t.Fatalf("api.New() error: %v", err)
	}
	return New(client, nil)
}

func jsonHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	})
}

func TestLoadServices_CommitsCacheAndPagination(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusOK, `{
		"success": true,
		"data": [{"id":"s1","name":"Braiding","category":"Beauty","price":{"amount":100,"currency":"NAD","type":"fixed"}}],
		"meta": {"pagination":{"page":1,"limit":20,"total":1,"totalPages":1}}
	}`))

	list, err := svc.LoadServices(context.Background(), booking.ServiceFilters{})
	if err != nil {
		t.Fatalf("LoadServices() error: %v", err)
	}
	if len(list) != 1 || list[0].ID != "s1" {
		t.Errorf("services = %+v", list)
	}
	if cached := svc.Services(); len(cached) != 1 || cached[0].ID != "s1" {
		t.Errorf("cached services = %+v", cached)
	}
	if p := svc.Pagination(); p == nil || p.Total != 1 {
		t.Errorf("pagination = %+v", p)
	}
	if svc.IsLoadingServices() {
		t.Error("loading flag should clear after commit")
	}
}

func TestLoadServices_FallbackOnNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client, err := api.New(api.Config{BaseURL: srv.URL, Storage: storage.NewMemory()})
	if err != nil {
		t.Fatalf("api.New() error: %v", err)
	}
	srv.Close() // every request now fails at the socket
	svc := New(client, nil)

	list, err := svc.LoadServices(context.Background(), booking.ServiceFilters{})
	if err != nil {
		t.Fatalf("LoadServices() should fall back, got %v", err)
	}
	if len(list) == 0 {
		t.Fatal("fallback dataset should not be empty")
	}

	filtered, err := svc.LoadServices(context.Background(), booking.ServiceFilters{Category: "Beauty"})
	if err != nil {
		t.Fatalf("filtered fallback error: %v", err)
	}
	for _, s := range filtered {
		if s.Category != "Beauty" {
			t.Errorf("fallback filter leaked category %s", s.Category)
		}
	}
	if len(filtered) == 0 {
		t.Error("fallback should contain a Beauty service")
	}

	searched, err := svc.SearchServices(context.Background(), "catering", booking.ServiceFilters{})
	if err != nil {
		t.Fatalf("search fallback error: %v", err)
	}
	if len(searched) != 1 {
		t.Errorf("search 'catering' = %d services, want 1", len(searched))
	}
}

func TestLoadServices_ServerErrorFallsBack(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusServiceUnavailable, `{"success":false,"message":"maintenance"}`))
	list, err := svc.LoadServices(context.Background(), booking.ServiceFilters{})
	if err != nil || len(list) == 0 {
		t.Errorf("5xx should serve the fallback, got %d services, %v", len(list), err)
	}
}

func TestLoadServices_ClientErrorDoesNotFallBack(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusBadRequest, `{"success":false,"message":"bad filter"}`))
	if _, err := svc.LoadServices(context.Background(), booking.ServiceFilters{}); err == nil {
		t.Error("4xx must propagate, never mask with the fallback")
	}
	if svc.LastError() == nil {
		t.Error("failure should be recorded")
	}
	svc.ClearError()
	if svc.LastError() != nil {
		t.Error("ClearError() should discard the failure")
	}
}

func TestStalenessGuard_OvertakenResponseDiscarded(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusOK, `{"success":true,"data":[]}`))

	slow := svc.beginServices()
	fast := svc.beginServices()

	svc.commitServices(fast, []booking.Service{{ID: "fresh"}}, nil)
	svc.commitServices(slow, []booking.Service{{ID: "stale"}}, nil)

	cached := svc.Services()
	if len(cached) != 1 || cached[0].ID != "fresh" {
		t.Errorf("cache = %+v, want the fresh load only", cached)
	}
}

func TestCreateBooking_MergesServerRecord(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusOK, `{
		"success": true,
		"data": {"id":"b1","serviceId":"s1","status":"pending","confirmationCode":"ABC123"}
	}`))

	req := booking.Request{
		ServiceID: "s1",
		Date:      "2026-09-01",
		TimeSlot:  booking.TimeSlot{Start: "10:00", End: "11:00"},
	}
	b, err := svc.CreateBooking(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateBooking() error: %v", err)
	}
	if b.Status != booking.StatusPending || b.ConfirmationCode != "ABC123" {
		t.Errorf("booking = %+v", b)
	}
	if current := svc.CurrentBooking(); current == nil || current.ID != "b1" {
		t.Errorf("CurrentBooking() = %+v", current)
	}
	if cached := svc.Bookings(); len(cached) != 1 {
		t.Errorf("bookings cache = %+v", cached)
	}
}

func TestCreateBooking_Validation(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusOK, `{"success":true,"data":{}}`))
	ctx := context.Background()

	if _, err := svc.CreateBooking(ctx, booking.Request{}); err == nil {
		t.Error("CreateBooking() without service id should fail")
	}
	if _, err := svc.CreateBooking(ctx, booking.Request{ServiceID: "s1"}); err == nil {
		t.Error("CreateBooking() without date/slot should fail")
	}
}

func TestUpdateBookingStatus_ReplacesById(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusOK, `{
		"success": true,
		"data": {"id":"b1","serviceId":"s1","status":"confirmed","confirmationCode":"ABC123"}
	}`))

	svc.mu.Lock()
	svc.bookings = []booking.Booking{
		{ID: "b1", Status: booking.StatusPending},
		{ID: "b2", Status: booking.StatusCompleted},
	}
	svc.mu.Unlock()

	updated, err := svc.UpdateBookingStatus(context.Background(), "b1", booking.StatusConfirmed, "")
	if err != nil {
		t.Fatalf("UpdateBookingStatus() error: %v", err)
	}
	if updated.Status != booking.StatusConfirmed {
		t.Errorf("status = %s, want confirmed", updated.Status)
	}

	cached := svc.Bookings()
	if len(cached) != 2 {
		t.Fatalf("bookings = %d, want 2 (merge by id, no append)", len(cached))
	}
	for _, b := range cached {
		if b.ID == "b1" && b.Status != booking.StatusConfirmed {
			t.Errorf("b1 status = %s, want confirmed", b.Status)
		}
		if b.ID == "b2" && b.Status != booking.StatusCompleted {
			t.Errorf("b2 must be untouched, got %s", b.Status)
		}
	}
}

func TestPaymentMethods_FallbackAndDelete(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusBadGateway, `{"success":false,"message":"down"}`))

	methods, err := svc.LoadPaymentMethods(context.Background())
	if err != nil {
		t.Fatalf("LoadPaymentMethods() should fall back, got %v", err)
	}
	if len(methods) != 2 {
		t.Errorf("fallback methods = %d, want 2", len(methods))
	}

	// Mutations must never fall back.
	if _, err := svc.SavePaymentMethod(context.Background(), booking.PaymentMethod{Type: "credit_card"}); err == nil {
		t.Error("SavePaymentMethod() against a dead server must fail")
	}
}

func TestSubmitReview_Validation(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusOK, `{"success":true,"data":{"id":"rv1","rating":5}}`))
	ctx := context.Background()

	if _, err := svc.SubmitReview(ctx, "b1", 0, "", nil); err == nil {
		t.Error("rating 0 should fail")
	}
	if _, err := svc.SubmitReview(ctx, "b1", 6, "", nil); err == nil {
		t.Error("rating 6 should fail")
	}
	review, err := svc.SubmitReview(ctx, "b1", 5, "great", nil)
	if err != nil {
		t.Fatalf("SubmitReview() error: %v", err)
	}
	if review.Rating != 5 {
		t.Errorf("review = %+v", review)
	}
}

func TestGetService_SelectsResult(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusOK, `{"success":true,"data":{"id":"s9","name":"Tailoring"}}`))

	got, err := svc.GetService(context.Background(), "s9")
	if err != nil {
		t.Fatalf("GetService() error: %v", err)
	}
	if got.ID != "s9" {
		t.Errorf("service = %+v", got)
	}
	if sel := svc.SelectedService(); sel == nil || sel.ID != "s9" {
		t.Errorf("SelectedService() = %+v", sel)
	}
}

func TestGetService_NotFoundKind(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusNotFound, `{"success":false,"message":"service not found"}`))
	_, err := svc.GetService(context.Background(), "nope")
	if !api.IsNotFound(err) {
		t.Errorf("error = %v, want not-found kind", err)
	}
}

func TestCancelBooking_PatchesCancelEndpoint(t *testing.T) {
	var gotMethod, gotPath string
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":{"id":"b1","serviceId":"s1","status":"cancelled"}}`)
	}))

	b, err := svc.CancelBooking(context.Background(), "b1", "schedule conflict")
	if err != nil {
		t.Fatalf("CancelBooking() error: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/api/v1/bookings/b1/cancel" {
		t.Errorf("request = %s %s, want PATCH /api/v1/bookings/b1/cancel", gotMethod, gotPath)
	}
	if b.Status != booking.StatusCancelled {
		t.Errorf("status = %s, want cancelled", b.Status)
	}
}

func TestPaymentMethods_EndpointPaths(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))
	ctx := context.Background()

	if _, err := svc.LoadPaymentMethods(ctx); err != nil {
		t.Fatalf("LoadPaymentMethods() error: %v", err)
	}
	if err := svc.DeletePaymentMethod(ctx, "tok-1"); err != nil {
		t.Fatalf("DeletePaymentMethod() error: %v", err)
	}

	want := []call{
		{http.MethodGet, "/api/v1/payment-methods"},
		{http.MethodDelete, "/api/v1/payment-methods/tok-1"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s %s, want %s %s", i, calls[i].method, calls[i].path, want[i].method, want[i].path)
		}
	}
}

func TestStalenessGuard_OvertakenErrorDiscarded(t *testing.T) {
	svc := newTestService(t, jsonHandler(http.StatusOK, `{"success":true,"data":[]}`))

	slow := svc.beginServices()
	fast := svc.beginServices()

	svc.commitServices(fast, []booking.Service{{ID: "fresh"}}, nil)
	svc.finishServices(slow, fmt.Errorf("request aborted"))

	if err := svc.LastError(); err != nil {
		t.Errorf("LastError() = %v, want nil (overtaken failure must not clobber a fresh load)", err)
	}
	if cached := svc.Services(); len(cached) != 1 || cached[0].ID != "fresh" {
		t.Errorf("cache = %+v, want the fresh load only", cached)
	}
}
