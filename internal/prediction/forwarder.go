// Package prediction forwards prediction requests to the external
// prediction service.
package prediction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/pkg/logger"
	"crm-service/prometheus"
)

// HeaderTenantID tells the prediction service which tenant is asking.
const HeaderTenantID = "X-Tenant-ID"

// maxResponseSize bounds the upstream body kept in memory.
const maxResponseSize = 4 << 20

// Response is the upstream answer relayed to the client as is.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Forwarder performs one-shot forwards to the prediction service.
type Forwarder struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewForwarder creates a forwarder for the service at baseURL. Every call is
// bounded by timeout.
func NewForwarder(baseURL string, timeout time.Duration) *Forwarder {
	return &Forwarder{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Forward posts body to the prediction endpoint on behalf of tenantID.
// Transport failures and 5xx answers are reported as upstream unavailable;
// any other answer, 4xx included, is returned for the caller to relay.
func (f *Forwarder) Forward(ctx context.Context, tenantID uint, contentType string, body []byte) (*Response, error) {
	const op = "prediction.Forward"
	log := logger.FromContext(ctx)
	start := time.Now()

	if f.BaseURL == "" {
		prometheus.RecordPrediction("unconfigured", time.Since(start))
		return nil, apperr.Unavailable(op, "prediction service unavailable", errors.New("PREDICTION_SERVICE_URL is not set"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(HeaderTenantID, strconv.FormatUint(uint64(tenantID), 10))

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		prometheus.RecordPrediction("unavailable", time.Since(start))
		log.Warn("Prediction service call failed", zap.Error(err))
		return nil, apperr.Unavailable(op, "prediction service unavailable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		prometheus.RecordPrediction("unavailable", time.Since(start))
		return nil, apperr.Unavailable(op, "prediction service unavailable", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		prometheus.RecordPrediction("unavailable", time.Since(start))
		log.Warn("Prediction service answered with an error", zap.Int("status", resp.StatusCode))
		return nil, apperr.Unavailable(op, "prediction service unavailable", fmt.Errorf("upstream status %d", resp.StatusCode))
	}

	outcome := "ok"
	if resp.StatusCode >= http.StatusBadRequest {
		outcome = "rejected"
	}
	prometheus.RecordPrediction(outcome, time.Since(start))
	log.Info("Prediction forwarded", zap.Int("status", resp.StatusCode), zap.Duration("latency", time.Since(start)))

	return &Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        payload,
	}, nil
}
