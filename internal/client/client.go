// Package client talks to a running homeostat daemon.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lazypower/homeostat/internal/checkpoint"
	"github.com/lazypower/homeostat/internal/engine"
	"github.com/lazypower/homeostat/internal/executive"
	"github.com/lazypower/homeostat/internal/regulator"
	"github.com/lazypower/homeostat/internal/server"
)

const (
	httpTimeout   = 5 * time.Second
	healthTimeout = 500 * time.Millisecond
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Unwrap maps 402 to engine.ErrInsufficientEnergy.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusPaymentRequired {
		return engine.ErrInsufficientEnergy
	}
	return nil
}

// Client talks to the homeostat server.
type Client struct {
	http    *http.Client
	baseURL string
}

// New creates a client for the daemon at baseURL. Oracle-backed routes
// (perceive, consolidate, refine) can take far longer than state routes, so
// the timeout applies per request through the context instead.
func New(baseURL string) *Client {
	return &Client{http: &http.Client{}, baseURL: baseURL}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		msg := string(bytes.TrimSpace(data))
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	return c.do(ctx, http.MethodPost, path, in, out)
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}

// Manifest ticks the daemon and returns its manifest.
func (c *Client) Manifest(ctx context.Context) (engine.Manifest, error) {
	var m engine.Manifest
	err := c.get(ctx, "/api/manifest", &m)
	return m, err
}

// State returns the daemon's full state and counters.
func (c *Client) State(ctx context.Context) (server.StateResponse, error) {
	var s server.StateResponse
	err := c.get(ctx, "/api/state", &s)
	return s, err
}

// Tick advances the daemon to its current time.
func (c *Client) Tick(ctx context.Context) (server.TickResponse, error) {
	var t server.TickResponse
	err := c.post(ctx, "/api/tick", nil, &t)
	return t, err
}

// Stimulate applies a stimulus.
func (c *Client) Stimulate(ctx context.Context, kind string, intensity float64) (engine.StimulusResult, error) {
	var res engine.StimulusResult
	err := c.post(ctx, "/api/stimulate", server.StimulusRequest{Kind: kind, Intensity: &intensity}, &res)
	return res, err
}

// Visual applies a visual input.
func (c *Client) Visual(ctx context.Context, in engine.VisualInput) (engine.VisualResult, error) {
	var res engine.VisualResult
	err := c.post(ctx, "/api/visual", in, &res)
	return res, err
}

// Intervene applies an intervention.
func (c *Client) Intervene(ctx context.Context, kind string) error {
	return c.post(ctx, "/api/interventions", server.InterventionRequest{Kind: kind}, nil)
}

// ApplyDeltas applies drive deltas.
func (c *Client) ApplyDeltas(ctx context.Context, deltas []engine.Delta) (engine.DeltaResult, error) {
	var res engine.DeltaResult
	err := c.post(ctx, "/api/deltas", server.DeltasRequest{Deltas: deltas}, &res)
	return res, err
}

// UseSkill spends energy on a skill. Refusals match
// engine.ErrInsufficientEnergy with errors.Is.
func (c *Client) UseSkill(ctx context.Context, skill string, cost float64) (engine.SkillOutcome, error) {
	var out engine.SkillOutcome
	err := c.post(ctx, "/api/skills/"+skill+"/use", server.SkillRequest{Cost: &cost}, &out)
	return out, err
}

// UseResource charges a resource class.
func (c *Client) UseResource(ctx context.Context, class string) (engine.ResourceOutcome, error) {
	var out engine.ResourceOutcome
	err := c.post(ctx, "/api/resources/"+class+"/use", nil, &out)
	return out, err
}

// Consolidate runs a sleep cycle on the daemon.
func (c *Client) Consolidate(ctx context.Context) (regulator.SleepReport, error) {
	var rep regulator.SleepReport
	err := c.do(ctx, http.MethodPost, "/api/consolidate", nil, &rep)
	return rep, err
}

// Perceive classifies text and applies the result.
func (c *Client) Perceive(ctx context.Context, text string) (regulator.Perception, error) {
	var p regulator.Perception
	err := c.do(ctx, http.MethodPost, "/api/perceive", server.PerceiveRequest{Text: text}, &p)
	return p, err
}

// Refine runs a draft through the executive filter.
func (c *Client) Refine(ctx context.Context, draft string) (executive.Result, error) {
	var res executive.Result
	err := c.do(ctx, http.MethodPost, "/api/refine", server.RefineRequest{Draft: draft}, &res)
	return res, err
}

// Journal returns up to limit journal entries, newest first.
func (c *Client) Journal(ctx context.Context, limit int) (server.JournalResponse, error) {
	var resp server.JournalResponse
	err := c.get(ctx, "/api/journal?limit="+strconv.Itoa(limit), &resp)
	return resp, err
}

// Checkpoints lists the daemon's checkpoints.
func (c *Client) Checkpoints(ctx context.Context) ([]checkpoint.Checkpoint, error) {
	var list []checkpoint.Checkpoint
	err := c.get(ctx, "/api/checkpoints", &list)
	return list, err
}

// SaveCheckpoint flushes the daemon's state and archives it.
func (c *Client) SaveCheckpoint(ctx context.Context) (checkpoint.Report, error) {
	var rep checkpoint.Report
	err := c.post(ctx, "/api/checkpoints", nil, &rep)
	return rep, err
}

// IsUnavailable reports whether err means no daemon answered, as opposed
// to the daemon refusing the request.
func IsUnavailable(err error) bool {
	var se *StatusError
	return err != nil && !errors.As(err, &se)
}
