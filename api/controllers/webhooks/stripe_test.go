package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/harukimori/fleamarket-backend/pkg/errors"
)

type fakeWebhookService struct {
	calls int
	err   error
}

func (f *fakeWebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) error {
	f.calls++
	return f.err
}

func postWebhook(handler http.HandlerFunc, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStripeWebhook_acksProcessedEvent(t *testing.T) {
	service := &fakeWebhookService{}
	handler := StripeWebhook(service, nil)

	rec := postWebhook(handler, []byte(`{"id":"evt_1"}`), "t=1,v1=sig")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, service.calls)
}

func TestStripeWebhook_requiresSignatureHeader(t *testing.T) {
	service := &fakeWebhookService{}
	handler := StripeWebhook(service, nil)

	rec := postWebhook(handler, []byte(`{}`), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, service.calls)
}

func TestStripeWebhook_propagatesRetryableFailureStatus(t *testing.T) {
	service := &fakeWebhookService{
		err: pkgerrors.New(pkgerrors.CodeGateway, "stripe unavailable"),
	}
	handler := StripeWebhook(service, nil)

	rec := postWebhook(handler, []byte(`{}`), "t=1,v1=sig")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStripeWebhook_missingServiceIsInternalError(t *testing.T) {
	handler := StripeWebhook(nil, nil)

	rec := postWebhook(handler, []byte(`{}`), "t=1,v1=sig")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
