package repo

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

	"github.com/miradorstack/mirador-relay/internal/document"
	"github.com/miradorstack/mirador-relay/internal/models"
)

const maxErrorBody = 64 << 10

// JiraConfig holds connection parameters for Jira Cloud.
type JiraConfig struct {
	BaseURL string
	Email   string
	Token   string
	Project string
	// RichText selects REST v3 with Atlassian Document Format bodies; otherwise v2
	// with plain-text bodies is used.
	RichText bool
	Timeout  time.Duration
}

// HasCredentials reports whether the config can authenticate.
func (c JiraConfig) HasCredentials() bool {
	return c.BaseURL != "" && c.Email != "" && c.Token != ""
}

// APIError carries a non-2xx Jira response, body included for diagnosis.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// JiraClient wraps the Jira REST endpoints the relay needs.
type JiraClient struct {
	baseURL    string
	email      string
	token      string
	project    string
	richText   bool
	httpClient *http.Client
}

// NewJiraClient constructs a client targeting the configured Jira site.
func NewJiraClient(cfg JiraConfig) *JiraClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &JiraClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		email:    cfg.Email,
		token:    cfg.Token,
		project:  cfg.Project,
		richText: cfg.RichText,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Project returns the configured project key.
func (c *JiraClient) Project() string { return c.project }

// BrowseURL is the human link for an issue key.
func (c *JiraClient) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

// CreateIssue opens a ticket and returns its key.
func (c *JiraClient) CreateIssue(ctx context.Context, ticket models.Ticket, description document.Document) (models.TicketRef, error) {
	fields := map[string]any{
		"project":     map[string]string{"key": firstNonEmpty(ticket.Project, c.project)},
		"summary":     ticket.Summary,
		"description": c.body(description),
		"issuetype":   map[string]string{"name": ticket.IssueType},
		"labels":      ticket.Labels,
	}
	if ticket.Priority != "" {
		fields["priority"] = map[string]string{"name": ticket.Priority}
	}
	if ticket.Assignee != "" {
		fields["assignee"] = map[string]string{"accountId": ticket.Assignee}
	}

	var response struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodPost, c.api("/issue"), nil, map[string]any{"fields": fields}, &response); err != nil {
		return models.TicketRef{}, err
	}
	if response.Key == "" {
		return models.TicketRef{}, fmt.Errorf("jira create returned no issue key")
	}
	return models.TicketRef{Key: response.Key, URL: c.BrowseURL(response.Key)}, nil
}

// AddComment annotates an existing ticket.
func (c *JiraClient) AddComment(ctx context.Context, key string, body document.Document) error {
	return c.do(ctx, http.MethodPost, c.api("/issue/"+url.PathEscape(key)+"/comment"), nil, map[string]any{"body": c.body(body)}, nil)
}

// SearchByLabel finds open tickets carrying label, created within the given window and
// ordered oldest first.
func (c *JiraClient) SearchByLabel(ctx context.Context, label string, within time.Duration) ([]models.TicketRef, error) {
	jql := fmt.Sprintf(`labels = "%s" AND statusCategory != Done`, strings.ReplaceAll(label, `"`, `\"`))
	if c.project != "" {
		jql = fmt.Sprintf(`project = "%s" AND %s`, c.project, jql)
	}
	if minutes := int64(within / time.Minute); minutes > 0 {
		jql += " AND created >= -" + strconv.FormatInt(minutes, 10) + "m"
	}
	jql += " ORDER BY created ASC"

	query := url.Values{}
	query.Set("jql", jql)
	query.Set("fields", "key")
	query.Set("maxResults", "5")

	path := c.api("/search")
	if c.richText {
		path = c.api("/search/jql")
	}
	var response struct {
		Issues []struct {
			Key string `json:"key"`
		} `json:"issues"`
	}
	if err := c.do(ctx, http.MethodGet, path, query, nil, &response); err != nil {
		return nil, err
	}
	refs := make([]models.TicketRef, 0, len(response.Issues))
	for _, issue := range response.Issues {
		refs = append(refs, models.TicketRef{Key: issue.Key, URL: c.BrowseURL(issue.Key)})
	}
	return refs, nil
}

// FindAccountID resolves an email to an account id through user search. An exact email
// match wins. Otherwise the first active user whose email is hidden by privacy settings
// is taken; a user with a different visible email is never a match.
func (c *JiraClient) FindAccountID(ctx context.Context, email string) (string, bool, error) {
	query := url.Values{}
	query.Set("query", email)
	var users []struct {
		AccountID    string `json:"accountId"`
		EmailAddress string `json:"emailAddress"`
		Active       bool   `json:"active"`
	}
	if err := c.do(ctx, http.MethodGet, c.api("/user/search"), query, nil, &users); err != nil {
		return "", false, err
	}
	for _, u := range users {
		if u.AccountID != "" && strings.EqualFold(u.EmailAddress, email) {
			return u.AccountID, true, nil
		}
	}
	for _, u := range users {
		if u.AccountID != "" && u.Active && u.EmailAddress == "" {
			return u.AccountID, true, nil
		}
	}
	return "", false, nil
}

// CheckProject verifies the credentials can see the configured project.
func (c *JiraClient) CheckProject(ctx context.Context) (string, error) {
	var response struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	if err := c.do(ctx, http.MethodGet, c.api("/project/"+url.PathEscape(c.project)), nil, nil, &response); err != nil {
		return "", err
	}
	return response.Name, nil
}

func (c *JiraClient) api(path string) string {
	if c.richText {
		return "/rest/api/3" + path
	}
	return "/rest/api/2" + path
}

func (c *JiraClient) body(doc document.Document) any {
	if c.richText {
		return document.ADF(doc)
	}
	return document.PlainText(doc)
}

func (c *JiraClient) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c == nil {
		return fmt.Errorf("jira client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("jira base URL not configured")
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
