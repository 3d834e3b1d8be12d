package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidmarket/checkout-system/shared/events"
	"github.com/bidmarket/checkout-system/shared/models"
)

// journalStub serves canned events per aggregate.
type journalStub struct {
	byAggregate map[models.ID][]*events.Event
	err         error
}

func (s *journalStub) Append(_ context.Context, _ ...*events.Event) error { return nil }

func (s *journalStub) ByAggregate(_ context.Context, aggregateID models.ID) ([]*events.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byAggregate[aggregateID], nil
}

func newEventsRouter(journal events.Journal) chi.Router {
	router := chi.NewRouter()
	NewOrderHandlers(nil, journal).RegisterRoutes(router)
	return router
}

func TestListOrderEventsReturnsJournalledEvents(t *testing.T) {
	orderID := models.GenerateUUID()
	recorded := []*events.Event{
		events.NewEvent(orderID, events.AuctionCheckoutStartedEvent, map[string]string{"step": "started"}),
		events.NewEvent(orderID, events.CheckoutSuccessfulEvent, map[string]string{"step": "done"}),
	}
	router := newEventsRouter(&journalStub{byAggregate: map[models.ID][]*events.Event{orderID: recorded}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String()+"/events", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body orderEventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 2)
	assert.Equal(t, events.AuctionCheckoutStartedEvent, body.Events[0].EventType)
	assert.Equal(t, events.CheckoutSuccessfulEvent, body.Events[1].EventType)
}

func TestListOrderEventsRejectsMalformedOrderID(t *testing.T) {
	router := newEventsRouter(&journalStub{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/not-a-uuid/events", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrderEventsReportsJournalErrors(t *testing.T) {
	router := newEventsRouter(&journalStub{err: errors.New("journal unavailable")})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+models.GenerateUUID().String()+"/events", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
