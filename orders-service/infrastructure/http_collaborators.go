package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/bidmarket/checkout-system/orders-service/domain"
	"github.com/bidmarket/checkout-system/shared/models"
)

// collaboratorClient is a small JSON-over-HTTP client shared by the
// collaborator implementations.
type collaboratorClient struct {
	baseURL string
	client  *http.Client
}

func newCollaboratorClient(baseURL string) collaboratorClient {
	return collaboratorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c collaboratorClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "calling %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &statusError{
			status:  resp.StatusCode,
			message: fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, string(payload)),
		}
	}
	if out == nil {
		return nil
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decoding response body")
}

// HTTPCartService implements domain.CartService against the cart service API
type HTTPCartService struct {
	collaboratorClient
}

func NewHTTPCartService(baseURL string) *HTTPCartService {
	return &HTTPCartService{newCollaboratorClient(baseURL)}
}

func (s *HTTPCartService) GetCart(ctx context.Context, userID models.ID) (*domain.Cart, error) {
	var cart domain.Cart
	if err := s.do(ctx, http.MethodGet, "/api/v1/carts/"+userID.String(), nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *HTTPCartService) DeactivateCart(ctx context.Context, userID models.ID) error {
	return s.do(ctx, http.MethodPost, "/api/v1/carts/"+userID.String()+"/deactivate", nil, nil)
}

func (s *HTTPCartService) ActivateCart(ctx context.Context, userID models.ID) error {
	return s.do(ctx, http.MethodPost, "/api/v1/carts/"+userID.String()+"/activate", nil, nil)
}

func (s *HTTPCartService) ClearCart(ctx context.Context, userID models.ID) error {
	return s.do(ctx, http.MethodPost, "/api/v1/carts/"+userID.String()+"/clear", nil, nil)
}

// HTTPInventoryService implements domain.InventoryService against the
// inventory service API
type HTTPInventoryService struct {
	collaboratorClient
}

func NewHTTPInventoryService(baseURL string) *HTTPInventoryService {
	return &HTTPInventoryService{newCollaboratorClient(baseURL)}
}

type reservationRequest struct {
	IdempotencyKey models.ID                `json:"idempotency_key"`
	OrderID        models.ID                `json:"order_id"`
	Items          []domain.ReservationItem `json:"items,omitempty"`
	ReservationIDs []models.ID              `json:"reservation_ids,omitempty"`
}

type reservationResponse struct {
	ReservationIDs []models.ID `json:"reservation_ids"`
}

func (s *HTTPInventoryService) Reserve(ctx context.Context, idempotencyKey, orderID models.ID, items []domain.ReservationItem) ([]models.ID, error) {
	req := reservationRequest{IdempotencyKey: idempotencyKey, OrderID: orderID, Items: items}
	var resp reservationResponse
	if err := s.do(ctx, http.MethodPost, "/api/v1/reservations", req, &resp); err != nil {
		return nil, err
	}
	return resp.ReservationIDs, nil
}

func (s *HTTPInventoryService) Confirm(ctx context.Context, idempotencyKey, orderID models.ID, reservationIDs []models.ID) error {
	req := reservationRequest{IdempotencyKey: idempotencyKey, OrderID: orderID, ReservationIDs: reservationIDs}
	return s.do(ctx, http.MethodPost, "/api/v1/reservations/confirm", req, nil)
}

func (s *HTTPInventoryService) Release(ctx context.Context, idempotencyKey, orderID models.ID, reservationIDs []models.ID) error {
	req := reservationRequest{IdempotencyKey: idempotencyKey, OrderID: orderID, ReservationIDs: reservationIDs}
	return s.do(ctx, http.MethodPost, "/api/v1/reservations/release", req, nil)
}

// HTTPPaymentService implements domain.PaymentService against the payments
// service API. A 402 response is mapped to ErrPaymentDeclined so workflows
// compensate instead of retrying.
type HTTPPaymentService struct {
	collaboratorClient
}

func NewHTTPPaymentService(baseURL string) *HTTPPaymentService {
	return &HTTPPaymentService{newCollaboratorClient(baseURL)}
}

type paymentRequest struct {
	OrderID         models.ID `json:"order_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	IdempotencyKey  models.ID `json:"idempotency_key,omitempty"`
}

func (s *HTTPPaymentService) Capture(ctx context.Context, orderID models.ID, paymentIntentID string) error {
	err := s.do(ctx, http.MethodPost, "/api/v1/payments/capture", paymentRequest{
		OrderID:         orderID,
		PaymentIntentID: paymentIntentID,
	}, nil)
	return mapDecline(err)
}

func (s *HTTPPaymentService) CancelIntent(ctx context.Context, orderID models.ID, paymentIntentID string) error {
	return s.do(ctx, http.MethodPost, "/api/v1/payments/cancel", paymentRequest{
		OrderID:         orderID,
		PaymentIntentID: paymentIntentID,
	}, nil)
}

func (s *HTTPPaymentService) Refund(ctx context.Context, idempotencyKey, orderID models.ID, paymentIntentID string) error {
	return s.do(ctx, http.MethodPost, "/api/v1/payments/refund", paymentRequest{
		OrderID:         orderID,
		PaymentIntentID: paymentIntentID,
		IdempotencyKey:  idempotencyKey,
	}, nil)
}

type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string { return e.message }

func mapDecline(err error) error {
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusPaymentRequired {
		return errors.Wrap(domain.ErrPaymentDeclined, se.message)
	}
	return err
}

// HTTPUserService implements domain.UserService against the users service API
type HTTPUserService struct {
	collaboratorClient
}

func NewHTTPUserService(baseURL string) *HTTPUserService {
	return &HTTPUserService{newCollaboratorClient(baseURL)}
}

func (s *HTTPUserService) GetEmail(ctx context.Context, userID models.ID) (string, error) {
	var resp struct {
		Email string `json:"email"`
	}
	if err := s.do(ctx, http.MethodGet, "/api/v1/users/"+userID.String(), nil, &resp); err != nil {
		return "", err
	}
	return resp.Email, nil
}

// HTTPProductService implements domain.ProductService against the catalog API
type HTTPProductService struct {
	collaboratorClient
}

func NewHTTPProductService(baseURL string) *HTTPProductService {
	return &HTTPProductService{newCollaboratorClient(baseURL)}
}

func (s *HTTPProductService) GetProductsByIDs(ctx context.Context, ids []models.ID) ([]domain.Product, error) {
	req := struct {
		IDs []models.ID `json:"ids"`
	}{IDs: ids}
	var resp struct {
		Products []domain.Product `json:"products"`
	}
	if err := s.do(ctx, http.MethodPost, "/api/v1/products/batch", req, &resp); err != nil {
		return nil, err
	}
	return resp.Products, nil
}
