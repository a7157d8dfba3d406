package store

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

	"github.com/DoyleJ11/gridsync/internal/grid"
)

// RemoteStore talks to the grid REST API served by cmd/server.
type RemoteStore struct {
	base   string
	client *http.Client
}

func NewRemoteStore(baseURL string, client *http.Client) *RemoteStore {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteStore{base: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *RemoteStore) Save(ctx context.Context, p grid.Package) (grid.Package, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return grid.Package{}, fmt.Errorf("encode grid: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/api/grids", bytes.NewReader(body))
	if err != nil {
		return grid.Package{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var saved grid.Package
	if err := s.do(req, &saved); err != nil {
		return grid.Package{}, err
	}
	return saved, nil
}

func (s *RemoteStore) Get(ctx context.Context, id string) (grid.Package, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/api/grids/"+url.PathEscape(id), nil)
	if err != nil {
		return grid.Package{}, err
	}
	var p grid.Package
	if err := s.do(req, &p); err != nil {
		return grid.Package{}, err
	}
	return p, nil
}

func (s *RemoteStore) List(ctx context.Context, owner string) ([]grid.Summary, error) {
	u := s.base + "/api/grids"
	if owner != "" {
		u += "?owner=" + url.QueryEscape(owner)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var list []grid.Summary
	if err := s.do(req, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *RemoteStore) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", ErrInvalidGrid, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, apiErr.Error)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}
