package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultOpenLibraryURL = "https://openlibrary.org"

// OpenLibraryClient fetches book metadata from the OpenLibrary API.
type OpenLibraryClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	userAgent  string
}

// newLimiter allows perSecond requests per second; zero or less disables
// limiting.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), int(math.Max(1, math.Ceil(perSecond))))
}

// NewOpenLibraryClient creates a new OpenLibrary API client with rate limiting.
func NewOpenLibraryClient(baseURL string, perSecond float64, userAgent string) *OpenLibraryClient {
	if baseURL == "" {
		baseURL = DefaultOpenLibraryURL
	}
	return &OpenLibraryClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    newLimiter(perSecond),
		userAgent:  userAgent,
	}
}

func (c *OpenLibraryClient) Name() string {
	return "openlibrary"
}

// LookupISBN looks up a book by its ISBN and returns metadata.
func (c *OpenLibraryClient) LookupISBN(ctx context.Context, isbn13 string) (*BookMetadata, error) {
	var bookData openLibraryBook
	status, err := c.getJSON(ctx, fmt.Sprintf("%s/isbn/%s.json", c.baseURL, isbn13), &bookData)
	if err != nil {
		return nil, fmt.Errorf("fetch ISBN data: %w", err)
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", status)
	}

	metadata := convertBook(&bookData, isbn13)

	// Fetch additional author info if we have author references
	if len(bookData.Authors) > 0 {
		if name, err := c.fetchAuthorName(ctx, bookData.Authors[0].Key); err == nil {
			metadata.Author = name
		}
	}

	return metadata, nil
}

func (c *OpenLibraryClient) fetchAuthorName(ctx context.Context, authorKey string) (string, error) {
	if authorKey == "" {
		return "", fmt.Errorf("empty author key")
	}

	var authorData struct {
		Name string `json:"name"`
	}
	status, err := c.getJSON(ctx, fmt.Sprintf("%s%s.json", c.baseURL, authorKey), &authorData)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("status: %d", status)
	}
	return authorData.Name, nil
}

// getJSON decodes a 200 response into out and reports the status.
func (c *OpenLibraryClient) getJSON(ctx context.Context, url string, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func convertBook(book *openLibraryBook, isbn13 string) *BookMetadata {
	metadata := &BookMetadata{
		Title:     book.Title,
		ISBN13:    isbn13,
		PageCount: book.NumberOfPages,
		Source:    "openlibrary",
		Thumbnail: fmt.Sprintf("https://covers.openlibrary.org/b/isbn/%s-M.jpg", isbn13),
	}
	if book.Subtitle != "" {
		metadata.Title = book.Title + ": " + book.Subtitle
	}
	if len(book.ISBN10) > 0 {
		metadata.ISBN10 = book.ISBN10[0]
	}
	if book.PublishDate != "" {
		metadata.PublicationYear = extractYear(book.PublishDate)
	}
	if len(book.Publishers) > 0 {
		metadata.Publisher = book.Publishers[0]
	}

	switch v := book.Description.(type) {
	case string:
		metadata.Description = v
	case map[string]any:
		if val, ok := v["value"].(string); ok {
			metadata.Description = val
		}
	}

	return metadata
}

// extractYear tries to extract a 4-digit year from a date string.
func extractYear(dateStr string) int {
	dateStr = strings.TrimSpace(dateStr)
	if len(dateStr) < 4 {
		return 0
	}

	formats := []string{
		"2006",
		"January 2, 2006",
		"Jan 2, 2006",
		"2006-01-02",
		"2006-01",
		"January 2006",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t.Year()
		}
	}

	// Last resort: find 4 consecutive digits
	for i := 0; i <= len(dateStr)-4; i++ {
		if dateStr[i] >= '0' && dateStr[i] <= '9' {
			yearStr := dateStr[i : i+4]
			var year int
			if _, err := fmt.Sscanf(yearStr, "%d", &year); err == nil && year > 1000 && year < 3000 {
				return year
			}
		}
	}

	return 0
}

// OpenLibrary API response types (internal)

type openLibraryBook struct {
	Key           string      `json:"key"`
	Title         string      `json:"title"`
	Subtitle      string      `json:"subtitle"`
	Authors       []authorRef `json:"authors"`
	Publishers    []string    `json:"publishers"`
	PublishDate   string      `json:"publish_date"`
	NumberOfPages int         `json:"number_of_pages"`
	Description   any         `json:"description"` // Can be string or {type, value}
	ISBN10        []string    `json:"isbn_10"`
}

type authorRef struct {
	Key string `json:"key"`
}
