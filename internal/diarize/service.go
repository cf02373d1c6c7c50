package diarize

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Service sends recordings to an HTTP diarization endpoint. The endpoint
// receives the file as multipart field "file" with a bearer token and
// answers {"turns":[{"start":0.0,"end":1.5,"speaker":"SPEAKER_00"}]}.
type Service struct {
	client   *resty.Client
	endpoint string
}

var _ Diarizer = (*Service)(nil)

func NewService(endpoint, token string) *Service {
	return &Service{
		client: resty.New().
			SetTimeout(60 * time.Minute).
			SetAuthToken(token),
		endpoint: endpoint,
	}
}

type serviceResponse struct {
	Turns []Turn `json:"turns"`
}

func (s *Service) Diarize(ctx context.Context, audioPath string) ([]Turn, error) {
	var out serviceResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetFile("file", audioPath).
		SetResult(&out).
		ForceContentType("application/json").
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("diarization request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("diarization http %d: %s", resp.StatusCode(), resp.String())
	}
	return out.Turns, nil
}
