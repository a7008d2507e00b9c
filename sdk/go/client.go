package spycatsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Spy Cat Agency HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Cat struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	YearsOfExperience int       `json:"years_of_experience"`
	Breed             string    `json:"breed"`
	Salary            float64   `json:"salary"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type Target struct {
	ID        string    `json:"id"`
	MissionID string    `json:"mission_id"`
	Name      string    `json:"name"`
	Country   string    `json:"country"`
	Notes     string    `json:"notes"`
	Complete  bool      `json:"complete"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Mission carries targets only when returned by MissionDetail or
// UpdateTarget.
type Mission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CatID     *string   `json:"cat_id"`
	Complete  bool      `json:"complete"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Targets   []Target  `json:"targets,omitempty"`
}

// Page is one window of a list endpoint.
type Page[T any] struct {
	Items      []T `json:"items"`
	Count      int `json:"count"`
	TotalPages int `json:"total_pages"`
	PerPage    int `json:"per_page"`
}

type NewCat struct {
	Name              string  `json:"name"`
	YearsOfExperience int     `json:"years_of_experience"`
	Breed             string  `json:"breed"`
	Salary            float64 `json:"salary"`
}

type NewTarget struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Notes   string `json:"notes"`
}

type NewMission struct {
	Name    string      `json:"name"`
	Targets []NewTarget `json:"targets"`
}

// TargetPatch leaves nil fields unchanged.
type TargetPatch struct {
	Notes       *string `json:"notes,omitempty"`
	IsCompleted *bool   `json:"is_completed,omitempty"`
}

// APIError wraps non-2xx responses. Msg and Alias are decoded from the
// error envelope when present.
type APIError struct {
	StatusCode int
	Msg        string `json:"msg"`
	Alias      string `json:"alias"`
	Body       string `json:"-"`
}

func (e *APIError) Error() string {
	if e.Alias != "" {
		return fmt.Sprintf("api error: status=%d alias=%s msg=%s", e.StatusCode, e.Alias, e.Msg)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ListCats returns one page of cats. Zero page or perPage use the server
// defaults.
func (c *Client) ListCats(ctx context.Context, page, perPage int) (Page[Cat], error) {
	var resp Page[Cat]
	err := c.do(ctx, http.MethodGet, pagePath("api/cats", page, perPage), nil, &resp)
	return resp, err
}

// CreateCat hires a cat.
func (c *Client) CreateCat(ctx context.Context, in NewCat) (Cat, error) {
	var resp Cat
	err := c.do(ctx, http.MethodPost, "api/cat", in, &resp)
	return resp, err
}

// Cat fetches a cat by id.
func (c *Client) Cat(ctx context.Context, id string) (Cat, error) {
	var resp Cat
	err := c.do(ctx, http.MethodGet, "api/cat/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateCatSalary changes a cat's salary.
func (c *Client) UpdateCatSalary(ctx context.Context, id string, salary float64) (Cat, error) {
	var resp Cat
	body := map[string]any{"salary": salary}
	err := c.do(ctx, http.MethodPatch, "api/cat/"+url.PathEscape(id), body, &resp)
	return resp, err
}

// DeleteCat removes a cat.
func (c *Client) DeleteCat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api/cat/"+url.PathEscape(id), nil, nil)
}

// ListMissions returns one page of missions, without targets.
func (c *Client) ListMissions(ctx context.Context, page, perPage int) (Page[Mission], error) {
	var resp Page[Mission]
	err := c.do(ctx, http.MethodGet, pagePath("api/missions", page, perPage), nil, &resp)
	return resp, err
}

// CreateMission creates a mission together with its targets.
func (c *Client) CreateMission(ctx context.Context, in NewMission) (Mission, error) {
	var resp Mission
	if in.Targets == nil {
		in.Targets = []NewTarget{}
	}
	err := c.do(ctx, http.MethodPost, "api/mission", in, &resp)
	return resp, err
}

// MissionDetail fetches a mission with its targets.
func (c *Client) MissionDetail(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodGet, "api/mission/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// DeleteMission removes an unassigned mission.
func (c *Client) DeleteMission(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "api/mission/"+url.PathEscape(id), nil, nil)
}

// AssignCat assigns a cat to a mission that has none.
func (c *Client) AssignCat(ctx context.Context, missionID, catID string) (Mission, error) {
	var resp Mission
	body := map[string]any{"cat_id": catID}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("api/mission/%s/assign-cat", url.PathEscape(missionID)), body, &resp)
	return resp, err
}

// UpdateTarget edits a target's notes or completion and returns the mission
// with its targets.
func (c *Client) UpdateTarget(ctx context.Context, missionID, targetID string, patch TargetPatch) (Mission, error) {
	var resp Mission
	endpoint := fmt.Sprintf("api/mission/%s/target/%s", url.PathEscape(missionID), url.PathEscape(targetID))
	err := c.do(ctx, http.MethodPatch, endpoint, patch, &resp)
	return resp, err
}

// Health reports the server health status.
func (c *Client) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	err := c.do(ctx, http.MethodGet, "health", nil, &resp)
	return resp.Status, err
}

func pagePath(p string, page, perPage int) string {
	q := url.Values{}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if perPage > 0 {
		q.Set("per_page", fmt.Sprint(perPage))
	}
	if len(q) == 0 {
		return p
	}
	return p + "?" + q.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		_ = json.Unmarshal(b, apiErr)
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
