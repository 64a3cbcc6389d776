package api

import (
	"movielib/internal/media"
	"movielib/internal/storage"
)

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// VideoRequest is the body of POST /videos and PUT /videos/{id}.
type VideoRequest struct {
	Name      string   `json:"name" validate:"required"`
	AltName   *string  `json:"altName"`
	Actors    []string `json:"actors"`
	MovieYear *int     `json:"movieYear" validate:"omitempty,gte=1000,lte=9999"`
	Filepath  string   `json:"filepath" validate:"required"`
}

func (req *VideoRequest) apply(v *storage.Video) {
	v.Name = req.Name
	v.AltName = req.AltName
	v.Actors = req.Actors
	if v.Actors == nil {
		v.Actors = []string{}
	}
	v.MovieYear = req.MovieYear
	v.Filepath = req.Filepath
}

type VideoListResponse struct {
	Videos []storage.Video `json:"videos"`
}

type SettingsRequest struct {
	VideoBasePath string `json:"videoBasePath" validate:"required"`
}

type ScanEndEvent struct {
	Message string `json:"message"`
	*media.ScanResult
}

type EnrichEndEvent struct {
	Message string `json:"message"`
	*media.EnrichResult
}

// ErrorEvent is the payload of a stream's terminal error event.
type ErrorEvent struct {
	Error string `json:"error"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
