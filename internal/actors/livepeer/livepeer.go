package livepeer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rbroggi/slotcast/internal/core/model"
	"github.com/rbroggi/slotcast/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// DefaultEndpoint is the base url of the Livepeer Studio API.
const DefaultEndpoint = "https://livepeer.studio/api"

// Profile is a transcoding rendition requested for every stream.
type Profile struct {
	Name    string `json:"name"`
	Bitrate int    `json:"bitrate"`
	FPS     int    `json:"fps"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// DefaultProfiles is the 720p/480p/360p ladder.
var DefaultProfiles = []Profile{
	{Name: "720p", Bitrate: 2_000_000, FPS: 30, Width: 1280, Height: 720},
	{Name: "480p", Bitrate: 1_000_000, FPS: 30, Width: 854, Height: 480},
	{Name: "360p", Bitrate: 500_000, FPS: 30, Width: 640, Height: 360},
}

// Client is a Livepeer adapter for provisioning live streams.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	profiles   []Profile
}

// ClientArgs are the mandatory arguments for the creation of a Client.
type ClientArgs struct {
	// HTTPClient performs the calls. Timeouts are driven by the caller's context.
	HTTPClient *http.Client

	// APIKey authorizes the calls.
	APIKey string
}

// ClientOptArgs are the optional arguments for building a Client.
type ClientOptArgs = func(*Client)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) ClientOptArgs {
	return func(c *Client) {
		c.endpoint = strings.TrimSuffix(endpoint, "/")
	}
}

// WithProfiles overrides DefaultProfiles.
func WithProfiles(profiles []Profile) ClientOptArgs {
	return func(c *Client) {
		c.profiles = profiles
	}
}

// NewClient creates a new Client.
func NewClient(args ClientArgs, optArgs ...ClientOptArgs) *Client {
	c := &Client{
		httpClient: args.HTTPClient,
		endpoint:   DefaultEndpoint,
		apiKey:     args.APIKey,
		profiles:   DefaultProfiles,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	for _, opt := range optArgs {
		opt(c)
	}
	return c
}

var _ ports.StreamProvider = (*Client)(nil)

type createStreamRequest struct {
	Name     string    `json:"name"`
	Profiles []Profile `json:"profiles"`
}

// CreateStream provisions a stream named sessionName.
func (c *Client) CreateStream(ctx context.Context, sessionName string) (*model.StreamHandle, error) {
	if sessionName == "" {
		return nil, errors.New("stream name must not be empty")
	}
	body, err := json.Marshal(createStreamRequest{Name: sessionName, Profiles: c.profiles})
	if err != nil {
		return nil, fmt.Errorf("error encoding stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error building stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling livepeer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp)
	}

	details := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("error decoding livepeer response: %w", err)
	}
	key, _ := details["streamKey"].(string)
	id, _ := details["id"].(string)
	return &model.StreamHandle{Key: key, ID: id, Details: details}, nil
}

// DeleteStream tears the stream down. A stream the provider no longer knows counts as deleted.
func (c *Client) DeleteStream(ctx context.Context, streamID string) error {
	if streamID == "" {
		return errors.New("stream id must not be empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint+"/stream/"+url.PathEscape(streamID), nil)
	if err != nil {
		return fmt.Errorf("error building stream request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error calling livepeer: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		log.WithField("stream-id", streamID).Warn("livepeer stream already gone")
		return nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return statusError(resp)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("livepeer answered %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
