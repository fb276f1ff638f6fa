package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/datamorph-io/forcetap/constants"
	"github.com/datamorph-io/forcetap/drivers/abstract"
	"github.com/datamorph-io/forcetap/types"
	"github.com/datamorph-io/forcetap/utils"
	"github.com/datamorph-io/forcetap/utils/logger"
	"github.com/datamorph-io/forcetap/utils/safego"
)

const (
	apiVersion      = "52.0"
	loginEndpoint   = "https://login.salesforce.com/services/oauth2/token"
	sandboxEndpoint = "https://test.salesforce.com/services/oauth2/token"

	// outbound request pacing
	requestsPerSecond = 5
)

type Salesforce struct {
	config *Config
	state  *types.State

	client  *http.Client
	limiter *rate.Limiter

	mu          sync.Mutex
	accessToken string
	instanceURL string
	restCalls   int
	jobsDone    int

	closeOnce sync.Once
	closeCh   chan struct{}
}

func (s *Salesforce) GetConfigRef() any {
	s.config = &Config{}
	return s.config
}

func (s *Salesforce) Type() string {
	return "salesforce"
}

func (s *Salesforce) Spec() map[string]any {
	return map[string]any{
		"type":                 "object",
		"required":             []string{"refresh_token", "client_id", "client_secret", "start_date", "api_type", "source_type"},
		"additionalProperties": false,
		"properties": map[string]any{
			"refresh_token":            map[string]any{"type": "string"},
			"client_id":                map[string]any{"type": "string"},
			"client_secret":            map[string]any{"type": "string"},
			"is_sandbox":               map[string]any{"type": "boolean"},
			"start_date":               map[string]any{"type": "string", "format": "date-time"},
			"api_type":                 map[string]any{"type": "string", "enum": []string{"BULK", "REST"}},
			"source_type":              map[string]any{"type": "string", "enum": []string{SourceTypeObject, SourceTypeReport}},
			"object_name":              map[string]any{"type": "string"},
			"report_id":                map[string]any{"type": "string"},
			"select_fields_by_default": map[string]any{"type": "boolean"},
			"quota_percent_total":      map[string]any{"type": "number"},
			"quota_percent_per_run":    map[string]any{"type": "number"},
			"pk_chunking":              map[string]any{"type": "boolean"},
			"filters":                  map[string]any{"type": "object"},
			"error_file_path":          map[string]any{"type": "string"},
		},
	}
}

func (s *Salesforce) SetupState(state *types.State) {
	s.state = state
}

func (s *Salesforce) DefaultStartDate() time.Time {
	return s.config.StartDate()
}

// Setup validates the config, performs the OAuth login and starts the token
// refresh timer; refresh tokens expire after 15 minutes at the minimum.
func (s *Salesforce) Setup(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("failed to validate config: %s", err)
	}

	s.client = &http.Client{Timeout: constants.DefaultHTTPTimeout}
	s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)

	err := utils.RetryOnBackoff(ctx, constants.DefaultRetryCount, constants.DefaultRetryDelay, func() error {
		return s.login(ctx)
	})
	if err != nil {
		return err
	}

	s.closeCh = make(chan struct{})
	safego.RunWithRestart(func() {
		ticker := time.NewTicker(constants.TokenRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.login(context.Background()); err != nil {
					logger.Errorf("token refresh failed: %s", err)
				}
			case <-s.closeCh:
				return
			}
		}
	})

	return nil
}

func (s *Salesforce) Close() error {
	s.closeOnce.Do(func() {
		if s.closeCh != nil {
			close(s.closeCh)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.restCalls > 0 {
			logger.Debugf("This job used %d REST requests towards the Salesforce quota.", s.restCalls)
		}
		if s.jobsDone > 0 {
			logger.Debugf("Replication used %d Bulk API jobs towards the Salesforce quota.", s.jobsDone)
		}
	})
	return nil
}

func (s *Salesforce) Discover(ctx context.Context) ([]*types.Stream, error) {
	switch s.config.SourceType {
	case SourceTypeReport:
		return s.discoverReport(ctx)
	default:
		return s.discoverObject(ctx)
	}
}

func (s *Salesforce) NewExtractor(stream types.StreamInterface) (abstract.Extractor, error) {
	if s.config.SourceType == SourceTypeReport {
		return &reportExtractor{sf: s, stream: stream}, nil
	}

	switch s.config.APIType {
	case BulkAPI:
		return &bulkExtractor{sf: s, stream: stream}, nil
	case RestAPI:
		return &restExtractor{sf: s, stream: stream}, nil
	default:
		return nil, fmt.Errorf("api_type should be REST or BULK was: %s", s.config.APIType)
	}
}

func (s *Salesforce) login(ctx context.Context) error {
	endpoint := loginEndpoint
	if s.config.IsSandbox {
		endpoint = sandboxEndpoint
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", s.config.ClientID)
	form.Set("client_secret", s.config.ClientSecret)
	form.Set("refresh_token", s.config.RefreshToken)

	logger.Info("Attempting login via OAuth2")

	data, err := s.request(ctx, http.MethodPost, endpoint,
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		[]byte(form.Encode()))
	if err != nil {
		// a structured rejection means bad credentials, not a flaky link
		classified := &types.ClassifiedError{}
		if errors.As(err, &classified) {
			return fmt.Errorf("OAuth2 login failed: %w: %w", constants.ErrNonRetryable, err)
		}
		return fmt.Errorf("OAuth2 login failed: %w", err)
	}

	auth := struct {
		AccessToken string `json:"access_token"`
		InstanceURL string `json:"instance_url"`
	}{}
	if err := json.Unmarshal(data, &auth); err != nil {
		return fmt.Errorf("failed to parse OAuth2 response: %s", err)
	}

	s.mu.Lock()
	s.accessToken = auth.AccessToken
	s.instanceURL = auth.InstanceURL
	s.mu.Unlock()

	logger.Info("OAuth2 login successful")
	return nil
}

func (s *Salesforce) token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

func (s *Salesforce) instanceBase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instanceURL
}

func (s *Salesforce) dataURL(endpoint string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s/services/data/v%s/%s", s.instanceURL, apiVersion, endpoint)
}

func (s *Salesforce) bulkURL(endpoint string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s/services/async/%s/%s", s.instanceURL, apiVersion, endpoint)
}

func (s *Salesforce) standardHeaders() map[string]string {
	return map[string]string{"Authorization": fmt.Sprintf("Bearer %s", s.token())}
}

func (s *Salesforce) bulkHeaders() map[string]string {
	return map[string]string{
		"X-SFDC-Session": s.token(),
		"Content-Type":   "application/json",
	}
}

// do performs one paced HTTP request, retrying transport-level failures with
// exponential backoff. HTTP error statuses are never retried here.
func (s *Salesforce) do(ctx context.Context, method, reqURL string, headers map[string]string, body []byte) (*http.Response, error) {
	var resp *http.Response
	var lastErr error
	sleep := constants.DefaultRequestDelay

	for attempt := 0; attempt < constants.DefaultRequestRetry; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		logger.Debugf("Making %s request to %s", method, reqURL)
		resp, lastErr = s.client.Do(req)
		if lastErr == nil {
			return resp, nil
		}

		logger.Infof("Connection error detected, triggering backoff: %d try", attempt+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
			sleep = sleep * 2
		}
	}

	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", reqURL, constants.DefaultRequestRetry, lastErr)
}

// request performs the call and returns the response body; it surfaces
// structured API errors and runs the quota governor on every response.
func (s *Salesforce) request(ctx context.Context, method, reqURL string, headers map[string]string, body []byte) ([]byte, error) {
	resp, err := s.do(ctx, method, reqURL, headers, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, parseAPIError(resp.StatusCode, data)
	}

	if err := s.checkQuota(resp.Header); err != nil {
		return nil, err
	}

	return data, nil
}

// requestStream is request for large result downloads; the caller owns the
// returned body.
func (s *Salesforce) requestStream(ctx context.Context, method, reqURL string, headers map[string]string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, method, reqURL, headers, nil)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, parseAPIError(resp.StatusCode, data)
	}

	if err := s.checkQuota(resp.Header); err != nil {
		resp.Body.Close()
		return nil, err
	}

	return resp.Body, nil
}
