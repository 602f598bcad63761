// Package github talks to the GitHub REST API: workflow dispatches that
// trigger remote package builds, plus the few branch and ref calls the
// build flow needs. Nothing here touches the local working tree.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/big-comm/bigbuild/pkg/git"
	cerr "github.com/cockroachdb/errors"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.github.com"

// Client is an authenticated GitHub API client scoped to one organization.
type Client struct {
	baseURL      string
	token        string
	organization string
	workflowRepo string
	httpClient   *http.Client
}

// Option adjusts a Client at construction time.
type Option func(*Client)

// WithBaseURL points the client at a different API endpoint, used by tests.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a client for the organization's workflow repository.
func NewClient(token, organization, workflowRepo string, opts ...Option) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		token:        token,
		organization: organization,
		workflowRepo: workflowRepo,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// dispatchPayload is the client_payload the build-package workflow expects.
type dispatchPayload struct {
	Branch     string `json:"branch"`
	BranchType string `json:"branch_type"`
	BuildEnv   string `json:"build_env"`
	URL        string `json:"url"`
	Tmate      bool   `json:"tmate"`
}

type dispatchBody struct {
	EventType     string          `json:"event_type"`
	ClientPayload dispatchPayload `json:"client_payload"`
}

// TriggerBuild fires a repository_dispatch event that starts the package
// build workflow. Implements the executor's Dispatcher.
func (c *Client) TriggerBuild(ctx context.Context, req git.DispatchRequest) (*git.DispatchReceipt, error) {
	logger := otelzap.Ctx(ctx)

	body := dispatchBody{
		EventType: req.Package,
		ClientPayload: dispatchPayload{
			Branch:     req.Ref,
			BranchType: req.Channel,
			BuildEnv:   req.Channel,
			URL:        fmt.Sprintf("https://github.com/%s/%s", req.Organization, req.Package),
		},
	}

	path := fmt.Sprintf("/repos/%s/%s/dispatches", req.Organization, c.workflowRepo)
	status, _, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusNoContent {
		return &git.DispatchReceipt{Accepted: false}, nil
	}

	runURL := fmt.Sprintf("https://github.com/%s/%s/actions", req.Organization, c.workflowRepo)
	logger.Info("Workflow dispatch accepted",
		zap.String("package", req.Package),
		zap.String("channel", req.Channel),
		zap.String("ref", req.Ref))

	return &git.DispatchReceipt{Accepted: true, RunURL: runURL}, nil
}

// TriggerAURBuild dispatches a build for an AUR package. AUR builds carry
// the package name in the payload URL instead of an organization repo.
func (c *Client) TriggerAURBuild(ctx context.Context, organization, packageName string, tmate bool) (*git.DispatchReceipt, error) {
	logger := otelzap.Ctx(ctx)

	body := dispatchBody{
		EventType: "aur-" + packageName,
		ClientPayload: dispatchPayload{
			Branch:     "main",
			BranchType: "aur",
			BuildEnv:   "aur",
			URL:        fmt.Sprintf("https://aur.archlinux.org/%s.git", packageName),
			Tmate:      tmate,
		},
	}

	path := fmt.Sprintf("/repos/%s/%s/dispatches", organization, c.workflowRepo)
	status, _, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusNoContent {
		return &git.DispatchReceipt{Accepted: false}, nil
	}

	logger.Info("AUR workflow dispatch accepted", zap.String("package", packageName))
	return &git.DispatchReceipt{
		Accepted: true,
		RunURL:   fmt.Sprintf("https://github.com/%s/%s/actions", organization, c.workflowRepo),
	}, nil
}

type refObject struct {
	SHA string `json:"sha"`
}

type refResponse struct {
	Ref    string    `json:"ref"`
	Object refObject `json:"object"`
}

// BranchSHA returns the head commit of a branch in the given repository,
// falling back to main when the branch does not exist remotely.
func (c *Client) BranchSHA(ctx context.Context, repo, branch string) (string, error) {
	sha, err := c.refSHA(ctx, repo, branch)
	if err == nil {
		return sha, nil
	}
	if !cerr.Is(err, errRefNotFound) {
		return "", err
	}
	sha, err = c.refSHA(ctx, repo, "main")
	if err != nil {
		return "", cerr.Wrapf(err, "neither %s nor main exists in %s", branch, repo)
	}
	return sha, nil
}

var errRefNotFound = cerr.New("ref not found")

func (c *Client) refSHA(ctx context.Context, repo, branch string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/git/ref/heads/%s", c.organization, repo, branch)
	status, data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", errRefNotFound
	}
	if status != http.StatusOK {
		return "", cerr.Newf("fetching ref %s in %s: HTTP %d", branch, repo, status)
	}

	var ref refResponse
	if err := json.Unmarshal(data, &ref); err != nil {
		return "", cerr.Wrap(err, "decoding ref response")
	}
	return ref.Object.SHA, nil
}

type createRefBody struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

// CreateBranch creates a remote branch pointing at the given commit.
func (c *Client) CreateBranch(ctx context.Context, repo, branch, sha string) error {
	logger := otelzap.Ctx(ctx)

	path := fmt.Sprintf("/repos/%s/%s/git/refs", c.organization, repo)
	status, data, err := c.do(ctx, http.MethodPost, path, createRefBody{
		Ref: "refs/heads/" + branch,
		SHA: sha,
	})
	if err != nil {
		return err
	}
	if status == http.StatusUnprocessableEntity {
		// Already exists; treat as success so retried flows stay idempotent.
		logger.Debug("Remote branch already exists", zap.String("branch", branch))
		return nil
	}
	if status != http.StatusCreated {
		return cerr.Newf("creating branch %s in %s: HTTP %d: %s", branch, repo, status, strings.TrimSpace(string(data)))
	}

	logger.Info("Remote branch created", zap.String("repo", repo), zap.String("branch", branch))
	return nil
}

// DeleteBranch removes a remote branch. Missing branches are not an error.
func (c *Client) DeleteBranch(ctx context.Context, repo, branch string) error {
	path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", c.organization, repo, branch)
	status, data, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusNotFound {
		return cerr.Newf("deleting branch %s in %s: HTTP %d: %s", branch, repo, status, strings.TrimSpace(string(data)))
	}
	return nil
}

type branchEntry struct {
	Name string `json:"name"`
}

// LatestDevBranch returns the lexically newest remote dev-* branch of the
// repository, or empty when none exists. Timestamped names sort
// chronologically, so lexical order is commit order.
func (c *Client) LatestDevBranch(ctx context.Context, repo string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/branches?per_page=100", c.organization, repo)
	status, data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", cerr.Newf("listing branches of %s: HTTP %d", repo, status)
	}

	var branches []branchEntry
	if err := json.Unmarshal(data, &branches); err != nil {
		return "", cerr.Wrap(err, "decoding branch list")
	}

	var devs []string
	for _, b := range branches {
		if b.Name == "dev" || strings.HasPrefix(b.Name, "dev-") {
			devs = append(devs, b.Name)
		}
	}
	if len(devs) == 0 {
		return "", nil
	}
	sort.Strings(devs)
	return devs[len(devs)-1], nil
}

type pullRequestBody struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body,omitempty"`
}

// PullRequest is the subset of the API response the merge flow reports.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// CreatePullRequest opens a pull request merging head into base.
func (c *Client) CreatePullRequest(ctx context.Context, repo, head, base, title, body string) (*PullRequest, error) {
	logger := otelzap.Ctx(ctx)

	path := fmt.Sprintf("/repos/%s/%s/pulls", c.organization, repo)
	status, data, err := c.do(ctx, http.MethodPost, path, pullRequestBody{
		Title: title,
		Head:  head,
		Base:  base,
		Body:  body,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, cerr.Newf("creating pull request %s into %s in %s: HTTP %d: %s",
			head, base, repo, status, strings.TrimSpace(string(data)))
	}

	var pr PullRequest
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, cerr.Wrap(err, "decoding pull request response")
	}

	logger.Info("Pull request created",
		zap.String("repo", repo),
		zap.String("head", head),
		zap.Int("number", pr.Number))
	return &pr, nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, cerr.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, cerr.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, cerr.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, cerr.Wrap(err, "reading response body")
	}
	return resp.StatusCode, data, nil
}
