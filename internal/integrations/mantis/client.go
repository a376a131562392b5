package mantis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"supportbot/internal/domain"
)

// Client talks to the Mantis REST API. Every call is bounded by the
// timeout of the http.Client it was built with.
type Client struct {
	baseURL      string
	token        string
	projectID    int
	categoryName string
	http         *http.Client
	logger       *zap.Logger
}

type Config struct {
	BaseURL      string
	APIToken     string
	ProjectID    int
	CategoryName string
}

func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.APIToken,
		projectID:    cfg.ProjectID,
		categoryName: cfg.CategoryName,
		http:         httpClient,
		logger:       logger,
	}
}

// Create opens a ticket. Any failure wraps domain.ErrTicketCreateFailed.
func (c *Client) Create(ctx context.Context, req domain.TicketRequest) (domain.RemoteTicket, error) {
	payload := issue{
		Summary:               buildSummary(req.Category, req.Summary),
		Description:           req.Summary,
		AdditionalInformation: reporterLine(req.ReporterID),
		Project:               &named{ID: int64(c.projectID)},
		Category:              &named{Name: c.categoryName},
		Severity:              &named{Name: severityName(req.Severity)},
		Tags:                  []named{{Name: categoryTag + string(req.Category)}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.RemoteTicket{}, fmt.Errorf("%w: encoding request: %w", domain.ErrTicketCreateFailed, err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/issues", body)
	if err != nil {
		return domain.RemoteTicket{}, fmt.Errorf("%w: %w", domain.ErrTicketCreateFailed, err)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return domain.RemoteTicket{}, fmt.Errorf("%w: Mantis API returned %d: %s", domain.ErrTicketCreateFailed, status, truncate(respBody, 300))
	}

	var created createResponse
	if err := json.Unmarshal(respBody, &created); err != nil {
		return domain.RemoteTicket{}, fmt.Errorf("%w: parsing response: %w", domain.ErrTicketCreateFailed, err)
	}
	if created.Issue.ID == 0 {
		return domain.RemoteTicket{}, fmt.Errorf("%w: response carried no issue id", domain.ErrTicketCreateFailed)
	}

	ticket := toRemoteTicket(created.Issue)
	// A create response may omit fields we sent.
	if ticket.ReporterID == "" {
		ticket.ReporterID = req.ReporterID
	}
	if ticket.Status == domain.StatusUnknown {
		ticket.Status = domain.StatusOpen
	}
	ticket.Category = req.Category
	ticket.Severity = req.Severity
	c.logger.Info("mantis issue created",
		zap.String("remote_id", ticket.ID),
		zap.String("reporter", req.ReporterID),
		zap.String("category", string(req.Category)))
	return ticket, nil
}

// Fetch loads one ticket. A missing ticket wraps domain.ErrTicketNotFound;
// other failures wrap domain.ErrTrackerUnavailable.
func (c *Client) Fetch(ctx context.Context, remoteID string) (domain.RemoteTicket, error) {
	if _, err := strconv.ParseInt(remoteID, 10, 64); err != nil {
		return domain.RemoteTicket{}, fmt.Errorf("%w: invalid ticket id %q", domain.ErrTicketNotFound, remoteID)
	}

	status, body, err := c.do(ctx, http.MethodGet, "/issues/"+url.PathEscape(remoteID), nil)
	if err != nil {
		return domain.RemoteTicket{}, fmt.Errorf("%w: %w", domain.ErrTrackerUnavailable, err)
	}
	if status == http.StatusNotFound {
		return domain.RemoteTicket{}, fmt.Errorf("%w: issue %s", domain.ErrTicketNotFound, remoteID)
	}
	if status != http.StatusOK {
		return domain.RemoteTicket{}, fmt.Errorf("%w: Mantis API returned %d: %s", domain.ErrTrackerUnavailable, status, truncate(body, 300))
	}

	var resp issuesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.RemoteTicket{}, fmt.Errorf("%w: parsing response: %w", domain.ErrTrackerUnavailable, err)
	}
	if len(resp.Issues) == 0 {
		return domain.RemoteTicket{}, fmt.Errorf("%w: issue %s", domain.ErrTicketNotFound, remoteID)
	}
	return toRemoteTicket(resp.Issues[0]), nil
}

// ListByReporter returns the project's tickets carrying reporterID's
// marker, as found on the first page of the project listing.
func (c *Client) ListByReporter(ctx context.Context, reporterID string) ([]domain.RemoteTicket, error) {
	path := fmt.Sprintf("/issues?project_id=%d&page_size=50", c.projectID)
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTrackerUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: Mantis API returned %d: %s", domain.ErrTrackerUnavailable, status, truncate(body, 300))
	}

	var resp issuesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parsing response: %w", domain.ErrTrackerUnavailable, err)
	}
	var out []domain.RemoteTicket
	for _, is := range resp.Issues {
		t := toRemoteTicket(is)
		if t.ReporterID == reporterID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug("mantis request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)))
	return resp.StatusCode, respBody, nil
}

func toRemoteTicket(is issue) domain.RemoteTicket {
	t := domain.RemoteTicket{
		ID:         strconv.FormatInt(is.ID, 10),
		Status:     domain.StatusUnknown,
		Category:   categoryFromTags(is.Tags),
		Severity:   domain.SeverityMedium,
		Summary:    is.Summary,
		ReporterID: reporterFromInfo(is.AdditionalInformation),
	}
	if is.Status != nil {
		t.Status = domain.NormalizeStatus(is.Status.Name)
	}
	if is.Severity != nil {
		t.Severity = severityFromName(is.Severity.Name)
	}
	if is.CreatedAt != "" {
		if created, err := time.Parse(time.RFC3339, is.CreatedAt); err == nil {
			t.CreatedAt = created.UTC()
		}
	}
	return t
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
