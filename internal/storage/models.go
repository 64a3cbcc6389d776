package storage

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateVideo = errors.New("a video with the same name, alt name and year already exists")
)

// Video is a single movie in the library. Its identity for scanning
// purposes is the (Name, AltName, MovieYear) triple.
type Video struct {
	ID          string    `json:"id"`
	DateCreated time.Time `json:"dateCreated"`
	Name        string    `json:"name"`
	AltName     *string   `json:"altName"`
	Actors      []string  `json:"actors"`
	MovieYear   *int      `json:"movieYear"`
	Filepath    string    `json:"filepath"` // relative to the video base path
	OmdbData    *OmdbData `json:"omdbData"`
}

// OmdbData is the normalized enrichment payload for a video. String fields
// carry the provider's values untouched, "N/A" included.
type OmdbData struct {
	Title      string   `json:"title,omitempty"`
	Year       string   `json:"year,omitempty"`
	Rated      string   `json:"rated,omitempty"`
	Released   string   `json:"released,omitempty"`
	Runtime    string   `json:"runtime,omitempty"`
	Genre      string   `json:"genre,omitempty"`
	Genres     []string `json:"genres,omitempty"`
	Director   string   `json:"director,omitempty"`
	Writer     string   `json:"writer,omitempty"`
	Actors     string   `json:"actors,omitempty"`
	Plot       string   `json:"plot,omitempty"`
	Language   string   `json:"language,omitempty"`
	Country    string   `json:"country,omitempty"`
	Awards     string   `json:"awards,omitempty"`
	Poster     string   `json:"poster,omitempty"`
	Metascore  string   `json:"metascore,omitempty"`
	ImdbRating string   `json:"imdbRating,omitempty"`
	ImdbVotes  string   `json:"imdbVotes,omitempty"`
	ImdbID     string   `json:"imdbID,omitempty"`
	Type       string   `json:"type,omitempty"`
	DVD        string   `json:"dvd,omitempty"`
	BoxOffice  string   `json:"boxOffice,omitempty"`
	Production string   `json:"production,omitempty"`
	Website    string   `json:"website,omitempty"`
	Response   string   `json:"response,omitempty"`
	Error      string   `json:"error,omitempty"`
	Ratings    []Rating `json:"ratings,omitempty"`

	// Parsed numeric forms of ImdbRating, ImdbVotes and Metascore
	ImdbScore      *float64 `json:"imdbScore,omitempty"`
	ImdbVoteCount  *int     `json:"imdbVoteCount,omitempty"`
	MetascoreValue *int     `json:"metascoreValue,omitempty"`
}

type Rating struct {
	Source string `json:"source"`
	Value  string `json:"value"`
}

type AppSettings struct {
	ID            int       `db:"id" json:"id"`
	VideoBasePath string    `db:"video_base_path" json:"videoBasePath"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// VideoFilter narrows ListVideos. Zero values match everything.
type VideoFilter struct {
	Year        *int
	Query       string // substring of name or alt name
	MissingOmdb bool
}

// JSONColumn stores a value as JSON text. A NULL column scans to
// Valid == false.
type JSONColumn[T any] struct {
	Val   T
	Valid bool
}

func NewJSONColumn[T any](v T) JSONColumn[T] {
	return JSONColumn[T]{Val: v, Valid: true}
}

func (c *JSONColumn[T]) Scan(src any) error {
	var zero T
	switch v := src.(type) {
	case nil:
		c.Val, c.Valid = zero, false
		return nil
	case string:
		return c.unmarshal([]byte(v))
	case []byte:
		return c.unmarshal(v)
	default:
		return fmt.Errorf("cannot scan %T into JSON column", src)
	}
}

func (c *JSONColumn[T]) unmarshal(data []byte) error {
	if err := json.Unmarshal(data, &c.Val); err != nil {
		return fmt.Errorf("decode JSON column: %w", err)
	}
	c.Valid = true
	return nil
}

func (c JSONColumn[T]) Value() (driver.Value, error) {
	if !c.Valid {
		return nil, nil
	}
	data, err := json.Marshal(c.Val)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// videoRow mirrors the videos table; Video is the shape handed to callers.
type videoRow struct {
	ID          string               `db:"id"`
	DateCreated time.Time            `db:"date_created"`
	Name        string               `db:"name"`
	AltName     *string              `db:"alt_name"`
	Actors      JSONColumn[[]string] `db:"actors"`
	MovieYear   *int                 `db:"movie_year"`
	Filepath    string               `db:"filepath"`
	OmdbData    JSONColumn[OmdbData] `db:"omdb_data"`
}

func (r *videoRow) toVideo() Video {
	v := Video{
		ID:          r.ID,
		DateCreated: r.DateCreated,
		Name:        r.Name,
		AltName:     r.AltName,
		Actors:      r.Actors.Val,
		MovieYear:   r.MovieYear,
		Filepath:    r.Filepath,
	}
	if v.Actors == nil {
		v.Actors = []string{}
	}
	if r.OmdbData.Valid {
		data := r.OmdbData.Val
		v.OmdbData = &data
	}
	return v
}

func rowFromVideo(v *Video) videoRow {
	actors := v.Actors
	if actors == nil {
		actors = []string{}
	}
	row := videoRow{
		ID:          v.ID,
		DateCreated: v.DateCreated,
		Name:        v.Name,
		AltName:     v.AltName,
		Actors:      NewJSONColumn(actors),
		MovieYear:   v.MovieYear,
		Filepath:    v.Filepath,
	}
	if v.OmdbData != nil {
		row.OmdbData = NewJSONColumn(*v.OmdbData)
	}
	return row
}
