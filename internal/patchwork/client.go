package patchwork

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a read-only client for a Patchwork instance
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// NewClient creates a client for the given instance URL. Credentials, when
// present, are "user:pass" for basic auth.
func NewClient(instanceURL, credentials string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(instanceURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	if credentials != "" {
		parts := strings.SplitN(credentials, ":", 2)
		if len(parts) == 2 {
			c.username = parts[0]
			c.password = parts[1]
		}
	}
	return c
}

// BaseURL returns the instance URL the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Person is a submitter reference
type Person struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PatchRef is the abbreviated patch entry embedded in a series
type PatchRef struct {
	ID   int    `json:"id"`
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Series is the series detail returned by /api/series/{id}/
type Series struct {
	ID          int        `json:"id"`
	URL         string     `json:"url"`
	Name        string     `json:"name"`
	Submitter   Person     `json:"submitter"`
	ReceivedAll bool       `json:"received_all"`
	Patches     []PatchRef `json:"patches"`
}

// Patch is the patch detail returned by a patch URL
type Patch struct {
	ID        int    `json:"id"`
	URL       string `json:"url"`
	Name      string `json:"name"`
	State     string `json:"state"`
	MessageID string `json:"msgid"`
	Submitter Person `json:"submitter"`
	Comments  string `json:"comments"`
}

// Comment is a patch review comment
type Comment struct {
	Content string `json:"content"`
}

// Event is a tracker event; only the series reference is consumed
type Event struct {
	Category string `json:"category"`
	Payload  struct {
		Series struct {
			ID int `json:"id"`
		} `json:"series"`
	} `json:"payload"`
}

func (c *Client) get(rawURL string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "(pw-ci) go-client")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("patchwork returned %d for %s", resp.StatusCode, rawURL)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// GetSeriesEvents returns series-created events for a project since the
// given time. A zero since omits the filter.
func (c *Client) GetSeriesEvents(project string, since time.Time) ([]Event, error) {
	params := url.Values{}
	params.Set("category", "series-created")
	params.Set("project", project)
	if !since.IsZero() {
		params.Set("since", since.Format("2006-01-02 15:04:05"))
	}

	var events []Event
	err := c.get(c.baseURL+"/api/events/?"+params.Encode(), &events)
	return events, err
}

// GetSeries fetches series detail by ID
func (c *Client) GetSeries(seriesID int) (*Series, error) {
	var s Series
	if err := c.get(fmt.Sprintf("%s/api/series/%d/", c.baseURL, seriesID), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSeriesList returns series matching the given states, newest first
func (c *Client) GetSeriesList(project string, states []string, archived bool, order string) ([]Series, error) {
	params := url.Values{}
	params.Set("project", project)
	params.Set("archived", fmt.Sprintf("%v", archived))
	params.Set("order", order)
	for _, s := range states {
		params.Add("state", s)
	}

	var list []Series
	err := c.get(c.baseURL+"/api/series/?"+params.Encode(), &list)
	return list, err
}

// GetPatch fetches patch detail from its canonical URL
func (c *Client) GetPatch(patchURL string) (*Patch, error) {
	var p Patch
	if err := c.get(patchURL, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPatchComments fetches the comments of a patch from its comments URL
func (c *Client) GetPatchComments(commentsURL string) ([]Comment, error) {
	var comments []Comment
	err := c.get(commentsURL, &comments)
	return comments, err
}
