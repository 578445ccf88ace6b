package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultGoogleBooksURL = "https://www.googleapis.com/books/v1"

// GoogleBooksClient fetches book metadata from the Google Books volumes API.
type GoogleBooksClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	userAgent  string
}

// NewGoogleBooksClient creates a client allowing perSecond requests per second.
func NewGoogleBooksClient(baseURL string, perSecond float64, userAgent string) *GoogleBooksClient {
	if baseURL == "" {
		baseURL = DefaultGoogleBooksURL
	}
	return &GoogleBooksClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    newLimiter(perSecond),
		userAgent:  userAgent,
	}
}

func (c *GoogleBooksClient) Name() string {
	return "googlebooks"
}

func (c *GoogleBooksClient) LookupISBN(ctx context.Context, isbn13 string) (*BookMetadata, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/volumes?q=%s", c.baseURL, url.QueryEscape("isbn:"+isbn13))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch volumes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result googleVolumes
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if result.TotalItems == 0 || len(result.Items) == 0 {
		return nil, ErrNotFound
	}

	return convertVolume(result.Items[0].VolumeInfo, isbn13), nil
}

func convertVolume(info googleVolumeInfo, requested string) *BookMetadata {
	meta := &BookMetadata{
		Title:       info.Title,
		Publisher:   info.Publisher,
		Description: info.Description,
		PageCount:   info.PageCount,
		Source:      "googlebooks",
	}
	if info.Subtitle != "" {
		meta.Title = info.Title + ": " + info.Subtitle
	}
	if len(info.Authors) > 0 {
		meta.Author = strings.Join(info.Authors, ", ")
	}
	if info.PublishedDate != "" {
		meta.PublicationYear = extractYear(info.PublishedDate)
	}

	for _, id := range info.IndustryIdentifiers {
		switch id.Type {
		case "ISBN_13":
			meta.ISBN13 = id.Identifier
		case "ISBN_10":
			meta.ISBN10 = id.Identifier
		}
	}
	if meta.ISBN13 == "" {
		meta.ISBN13 = requested
	}

	thumb := info.ImageLinks.SmallThumbnail
	if thumb == "" {
		thumb = info.ImageLinks.Thumbnail
	}
	meta.Thumbnail = secureURL(thumb)

	return meta
}

// Google Books API response types (internal)

type googleVolumes struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo googleVolumeInfo `json:"volumeInfo"`
	} `json:"items"`
}

type googleVolumeInfo struct {
	Title               string   `json:"title"`
	Subtitle            string   `json:"subtitle"`
	Authors             []string `json:"authors"`
	Publisher           string   `json:"publisher"`
	PublishedDate       string   `json:"publishedDate"`
	Description         string   `json:"description"`
	PageCount           int      `json:"pageCount"`
	IndustryIdentifiers []struct {
		Type       string `json:"type"`
		Identifier string `json:"identifier"`
	} `json:"industryIdentifiers"`
	ImageLinks struct {
		SmallThumbnail string `json:"smallThumbnail"`
		Thumbnail      string `json:"thumbnail"`
	} `json:"imageLinks"`
}
