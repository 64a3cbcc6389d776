// Package omdb looks up movie details on the OMDb API (omdbapi.com).
package omdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"movielib/internal/storage"
)

const (
	DefaultBaseURL = "http://www.omdbapi.com/"

	rateLimitMessage = "Request limit reached!"
	maxResponseSize  = 1 << 20
)

// ErrRateLimited means the API key has used up its request allowance.
var ErrRateLimited = errors.New("omdb request limit reached")

// ProviderError is a non-2xx response other than a rate limit.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("omdb returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type apiResponse struct {
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Rated      string `json:"Rated"`
	Released   string `json:"Released"`
	Runtime    string `json:"Runtime"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Writer     string `json:"Writer"`
	Actors     string `json:"Actors"`
	Plot       string `json:"Plot"`
	Language   string `json:"Language"`
	Country    string `json:"Country"`
	Awards     string `json:"Awards"`
	Poster     string `json:"Poster"`
	Metascore  string `json:"Metascore"`
	ImdbRating string `json:"imdbRating"`
	ImdbVotes  string `json:"imdbVotes"`
	ImdbID     string `json:"imdbID"`
	Type       string `json:"Type"`
	DVD        string `json:"DVD"`
	BoxOffice  string `json:"BoxOffice"`
	Production string `json:"Production"`
	Website    string `json:"Website"`
	Response   string `json:"Response"`
	Error      string `json:"Error"`
	Ratings    []struct {
		Source string `json:"Source"`
		Value  string `json:"Value"`
	} `json:"Ratings"`
}

// Lookup fetches the movie matching title and, when known, year.
//
// A "movie not found" answer is not an error: the returned data has
// Response "False" and Error set, so callers can store it and avoid asking
// again.
func (c *Client) Lookup(ctx context.Context, title string, year *int) (*storage.OmdbData, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse omdb base url: %w", err)
	}

	q := u.Query()
	q.Set("t", title)
	q.Set("r", "json")
	q.Set("apikey", c.apiKey)
	if year != nil {
		q.Set("y", strconv.Itoa(*year))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("omdb request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read omdb response: %w", err)
	}

	var payload apiResponse
	decodeErr := json.Unmarshal(body, &payload)

	// OMDb reports an exhausted key with a 401 and an error body
	if decodeErr == nil && payload.Error == rateLimitMessage {
		return nil, ErrRateLimited
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := payload.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &ProviderError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode omdb response: %w", decodeErr)
	}

	if payload.Response == "False" {
		c.logger.Debug().Str("title", title).Str("error", payload.Error).Msg("omdb has no match")
	}

	return normalize(&payload), nil
}

func normalize(r *apiResponse) *storage.OmdbData {
	data := &storage.OmdbData{
		Title:      r.Title,
		Year:       r.Year,
		Rated:      r.Rated,
		Released:   r.Released,
		Runtime:    r.Runtime,
		Genre:      r.Genre,
		Genres:     splitList(r.Genre),
		Director:   r.Director,
		Writer:     r.Writer,
		Actors:     r.Actors,
		Plot:       r.Plot,
		Language:   r.Language,
		Country:    r.Country,
		Awards:     r.Awards,
		Poster:     r.Poster,
		Metascore:  r.Metascore,
		ImdbRating: r.ImdbRating,
		ImdbVotes:  r.ImdbVotes,
		ImdbID:     r.ImdbID,
		Type:       r.Type,
		DVD:        r.DVD,
		BoxOffice:  r.BoxOffice,
		Production: r.Production,
		Website:    r.Website,
		Response:   r.Response,
		Error:      r.Error,
	}

	for _, rating := range r.Ratings {
		data.Ratings = append(data.Ratings, storage.Rating{Source: rating.Source, Value: rating.Value})
	}

	if v, err := strconv.ParseFloat(r.ImdbRating, 64); err == nil {
		data.ImdbScore = &v
	}
	if v, err := strconv.Atoi(strings.ReplaceAll(r.ImdbVotes, ",", "")); err == nil {
		data.ImdbVoteCount = &v
	}
	if v, err := strconv.Atoi(r.Metascore); err == nil {
		data.MetascoreValue = &v
	}

	return data
}

// splitList turns "Action, Crime, Drama" into its elements. "N/A" and
// empty values give nil.
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return nil
	}

	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
