// Package recordstore talks to the REST API that owns application records.
package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"jobchaja-interviews/internal/common/config"
	apperrors "jobchaja-interviews/internal/common/errors"
	commonhttp "jobchaja-interviews/internal/common/http"
	"jobchaja-interviews/internal/common/logger"
	"jobchaja-interviews/internal/common/observability"
	"jobchaja-interviews/internal/models"
)

// Endpoint labels used for metrics and logs.
const (
	EndpointListMyJobs      = "jobs.my.list"
	EndpointJobApplications = "applications.job"
	EndpointUpdateStatus    = "applications.status"
)

type Client struct {
	baseURL    string
	httpClient *commonhttp.Client
	logger     logger.Logger
	obs        *observability.Observability
}

func NewClient(cfg config.RecordStoreConfig, log logger.Logger, obs *observability.Observability) *Client {
	return NewClientWithHTTP(cfg.BaseURL, commonhttp.NewClient(config.GetDuration(cfg.Timeout)), log, obs)
}

// NewClientWithHTTP is NewClient with an explicit transport. obs may be nil.
func NewClientWithHTTP(baseURL string, hc *commonhttp.Client, log logger.Logger, obs *observability.Observability) *Client {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: hc,
		logger:     log,
		obs:        obs,
	}
}

// ListMyJobs returns the job postings owned by the credential's employer.
func (c *Client) ListMyJobs(ctx context.Context, cred models.Credential) ([]models.Job, error) {
	body, err := c.do(ctx, cred, http.MethodGet, "/jobs/my/list", EndpointListMyJobs, nil)
	if err != nil {
		return nil, err
	}

	jobs, err := decodeList[models.Job](body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode job list: %w", err)
	}
	return jobs, nil
}

// ListJobApplications returns every application to jobID, whatever its status.
func (c *Client) ListJobApplications(ctx context.Context, cred models.Credential, jobID string) ([]models.ApplicationRecord, error) {
	path := "/applications/job/" + url.PathEscape(jobID)
	body, err := c.do(ctx, cred, http.MethodGet, path, EndpointJobApplications, nil)
	if err != nil {
		return nil, err
	}

	records, err := decodeList[models.ApplicationRecord](body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode applications of job %s: %w", jobID, err)
	}
	return records, nil
}

// UpdateStatus writes status and note (plus optional date and rejection
// reason) in a single request.
func (c *Client) UpdateStatus(ctx context.Context, cred models.Credential, applicationID string, update models.StatusUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal status update: %w", err)
	}

	path := "/applications/" + url.PathEscape(applicationID) + "/status"
	_, err = c.do(ctx, cred, http.MethodPut, path, EndpointUpdateStatus, payload)
	return err
}

func (c *Client) do(ctx context.Context, cred models.Credential, method, path, endpoint string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.DoWithContext(ctx, req, cred.Token)
	if err != nil {
		c.obs.RecordStoreRequest(ctx, endpoint, 0, time.Since(start))
		c.logger.Warn("record store unreachable", map[string]interface{}{
			"method":   method,
			"endpoint": endpoint,
			"error":    err,
		})
		return nil, apperrors.NewRecordStoreUnavailableError(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	c.obs.RecordStoreRequest(ctx, endpoint, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, apperrors.NewRecordStoreUnavailableError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := failureMessage(body)
		c.logger.Warn("record store rejected request", map[string]interface{}{
			"method":      method,
			"endpoint":    endpoint,
			"status_code": resp.StatusCode,
			"message":     msg,
		})
		return nil, apperrors.NewRecordStoreError(resp.StatusCode, msg)
	}

	c.logger.Debug("record store request completed", map[string]interface{}{
		"method":      method,
		"endpoint":    endpoint,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return body, nil
}

// failureMessage extracts {message} from an error body; anything else yields "".
func failureMessage(body []byte) string {
	var failure struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &failure); err != nil {
		return ""
	}
	return failure.Message
}

// decodeList accepts either a bare JSON array or a {"data": [...]} envelope.
// An empty body is an empty list.
func decodeList[T any](body []byte) ([]T, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}

	if body[0] == '[' {
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var envelope struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
