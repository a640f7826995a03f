package archive

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	userAgent = "preservicaUploader"
	pageSize  = 100

	defaultSecurityTag = "open"
)

// headerInjector sets fixed headers on every request.
type headerInjector struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t *headerInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.next.RoundTrip(req)
}

// Client talks to the archive's entity and ingest APIs.
type Client struct {
	baseURL     string
	session     *Session
	api         *http.Client
	upload      *http.Client
	securityTag string
}

type Option func(*Client)

// WithHTTPClient replaces both HTTP clients, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.api = hc
		c.upload = hc
	}
}

// WithUploadTimeout bounds a single direct upload.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) { c.upload.Timeout = d }
}

// WithSecurityTag sets the tag applied to created folders.
func WithSecurityTag(tag string) Option {
	return func(c *Client) { c.securityTag = tag }
}

// NewClient creates a client for the archive at baseURL.
func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	transport := &headerInjector{
		headers: map[string]string{"User-Agent": userAgent},
		next:    http.DefaultTransport,
	}
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		api:         &http.Client{Timeout: 60 * time.Second, Transport: transport},
		upload:      &http.Client{Timeout: 30 * time.Minute, Transport: transport},
		securityTag: defaultSecurityTag,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.session = NewSession(c.baseURL, creds, c.api)
	return c
}

// Session exposes the shared session, e.g. to log in eagerly at startup.
func (c *Client) Session() *Session {
	return c.session
}

// Login authenticates now instead of on the first call.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.session.Token(ctx)
	return err
}

// do is the single gateway for authenticated calls. A 401 triggers one
// session refresh and a retry. newReq is called once per try.
func (c *Client) do(ctx context.Context, op string, hc *http.Client, newReq func(try int) (*http.Request, error)) (*http.Response, error) {
	for try := 0; ; try++ {
		token, err := c.session.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		req, err := newReq(try)
		if err != nil {
			return nil, err
		}
		req.Header.Set(TokenHeader, token)

		start := time.Now()
		resp, err := hc.Do(req)
		if err != nil {
			slog.Debug("Archive request failed", "op", op, "error", err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		slog.Debug("Archive request", "op", op, "status", resp.StatusCode, "duration", time.Since(start))

		if resp.StatusCode == http.StatusUnauthorized && try == 0 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if _, err := c.session.Refresh(ctx, token); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			defer resp.Body.Close()
			return nil, newAPIError(op, resp)
		}
		return resp, nil
	}
}

func (c *Client) get(ctx context.Context, op, path string, out any) error {
	resp, err := c.do(ctx, op, c.api, func(int) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s request: %w", op, err)
		}
		req.Header.Set("Accept", "application/xml")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

func childrenPath(parentRef string) string {
	if parentRef == "" {
		return "/api/entity/root/children"
	}
	return "/api/entity/structural-objects/" + url.PathEscape(parentRef) + "/children"
}

// Children lists the direct children of parentRef, or of the root when it is
// empty, following pagination.
func (c *Client) Children(ctx context.Context, parentRef string) ([]Entity, error) {
	var out []Entity
	for start := 0; ; {
		q := url.Values{}
		q.Set("start", strconv.Itoa(start))
		q.Set("max", strconv.Itoa(pageSize))

		var page childrenResponse
		if err := c.get(ctx, "list children", childrenPath(parentRef)+"?"+q.Encode(), &page); err != nil {
			return nil, err
		}
		for _, ch := range page.Children {
			out = append(out, Entity{
				Ref:    ch.Ref,
				Title:  ch.Title,
				Type:   EntityType(ch.Type),
				Parent: parentRef,
			})
		}

		if page.Paging.Next == "" || len(page.Children) == 0 {
			return out, nil
		}
		start += len(page.Children)
	}
}

// Folders lists only the folder children of parentRef.
func (c *Client) Folders(ctx context.Context, parentRef string) ([]Entity, error) {
	children, err := c.Children(ctx, parentRef)
	if err != nil {
		return nil, err
	}
	folders := children[:0]
	for _, e := range children {
		if e.IsFolder() {
			folders = append(folders, e)
		}
	}
	return folders, nil
}

// Folder fetches one folder by reference.
func (c *Client) Folder(ctx context.Context, ref string) (Entity, error) {
	var resp entityResponse
	if err := c.get(ctx, "get folder", "/api/entity/structural-objects/"+url.PathEscape(ref), &resp); err != nil {
		return Entity{}, err
	}
	return Entity{
		Ref:    resp.Object.Ref,
		Title:  resp.Object.Title,
		Type:   TypeFolder,
		Parent: resp.Object.Parent,
	}, nil
}

// FindFolder looks for a child folder of parentRef titled title.
func (c *Client) FindFolder(ctx context.Context, parentRef, title string) (string, bool, error) {
	children, err := c.Children(ctx, parentRef)
	if err != nil {
		return "", false, err
	}
	for _, e := range children {
		if e.IsFolder() && e.Title == title {
			return e.Ref, true, nil
		}
	}
	return "", false, nil
}

// CreateFolder creates a folder titled title under parentRef.
func (c *Client) CreateFolder(ctx context.Context, parentRef, title string) (string, error) {
	ref := uuid.New().String()
	body, err := xml.Marshal(structuralObject{
		Ref:         ref,
		Title:       title,
		Description: title,
		SecurityTag: c.securityTag,
		Parent:      parentRef,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal folder: %w", err)
	}

	resp, err := c.do(ctx, "create folder", c.api, func(int) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/entity/structural-objects", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create folder request: %w", err)
		}
		req.Header.Set("Content-Type", "application/xml;charset=UTF-8")
		req.Header.Set("Accept", "application/xml")
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var created entityResponse
	if err := xml.NewDecoder(resp.Body).Decode(&created); err == nil && created.Object.Ref != "" {
		ref = created.Object.Ref
	}
	slog.Debug("Created archive folder", "title", title, "parent", parentRef, "ref", ref)
	return ref, nil
}
