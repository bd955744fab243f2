package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/riskboard/pkg/common/config"
	"github.com/synaptica-ai/riskboard/pkg/common/httpclient"
	"github.com/synaptica-ai/riskboard/pkg/common/logger"
	"github.com/synaptica-ai/riskboard/pkg/common/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const maxResponseBytes = 1 << 20

// Client scores one request against the prediction service. Implementations
// make a single attempt and return *Error on failure.
type Client interface {
	Submit(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error)
}

// HTTPClient talks to the scoring service over JSON/HTTP.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    client,
	}
}

// NewFromConfig builds a client for the configured service, using OAuth2
// client credentials when a token endpoint is configured.
func NewFromConfig(cfg *config.Config) *HTTPClient {
	client := httpclient.New(cfg.PredictionTimeout)
	if cfg.PredictionAuthEnabled() {
		cc := clientcredentials.Config{
			ClientID:     cfg.PredictionClientID,
			ClientSecret: cfg.PredictionClientSecret,
			TokenURL:     cfg.PredictionTokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		authed := cc.Client(ctx)
		authed.Timeout = cfg.PredictionTimeout
		client = authed
	}
	return NewHTTPClient(cfg.PredictionBaseURL, client)
}

// Submit posts the flattened feature snapshot to /predict. There are no
// retries; a cancelled ctx surfaces as KindUnreachable.
func (c *HTTPClient) Submit(ctx context.Context, req models.PredictionRequest) (*models.PredictionResult, error) {
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, &Error{Kind: KindValidation, Err: fmt.Errorf("patient id is required")}
	}

	payload := make(map[string]interface{}, len(req.Features)+1)
	for key, value := range req.Features {
		payload[key] = value
	}
	payload["patient_id"] = req.PatientID

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Err: fmt.Errorf("failed to encode request: %w", err)}
	}

	var result models.PredictionResult
	if err := c.do(ctx, http.MethodPost, "/predict", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}
	if err := result.Validate(); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Err: err}
	}
	return &result, nil
}

// Health reports whether the service answers its health probe.
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// ModelInfo fetches metadata about the deployed model.
func (c *HTTPClient) ModelInfo(ctx context.Context) (*models.ModelInfo, error) {
	var info models.ModelInfo
	if err := c.do(ctx, http.MethodGet, "/model/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &Error{Kind: KindValidation, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		timeout := httpclient.IsTimeout(err)
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"path":    path,
			"timeout": timeout,
		}).Warn("Prediction service call failed")
		return &Error{Kind: KindUnreachable, Timeout: timeout, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return &Error{Kind: KindServiceError, Status: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return &Error{Kind: KindMalformedResponse, Err: err}
	}
	return nil
}
