package github

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/big-comm/bigbuild/pkg/git"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerBuild(t *testing.T) {
	var captured dispatchBody
	var gotAuth, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient("tok123", "big-comm", "build-package", WithBaseURL(srv.URL))
	receipt, err := client.TriggerBuild(context.Background(), git.DispatchRequest{
		Organization: "big-comm",
		Channel:      "testing",
		Ref:          "testing-vcastro",
		Package:      "big-store",
	})
	require.NoError(t, err)

	assert.True(t, receipt.Accepted)
	assert.Contains(t, receipt.RunURL, "big-comm/build-package/actions")
	assert.Equal(t, "Bearer tok123", gotAuth)
	assert.Equal(t, "/repos/big-comm/build-package/dispatches", gotPath)
	assert.Equal(t, "big-store", captured.EventType)
	assert.Equal(t, "testing-vcastro", captured.ClientPayload.Branch)
	assert.Equal(t, "testing", captured.ClientPayload.BranchType)
	assert.Equal(t, "https://github.com/big-comm/big-store", captured.ClientPayload.URL)
}

func TestTriggerBuildRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient("bad", "big-comm", "build-package", WithBaseURL(srv.URL))
	receipt, err := client.TriggerBuild(context.Background(), git.DispatchRequest{
		Organization: "big-comm",
		Channel:      "stable",
		Ref:          "stable",
		Package:      "big-store",
	})
	require.NoError(t, err)
	assert.False(t, receipt.Accepted)
}

func TestTriggerAURBuild(t *testing.T) {
	var captured dispatchBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient("tok", "big-comm", "build-package", WithBaseURL(srv.URL))
	receipt, err := client.TriggerAURBuild(context.Background(), "big-comm", "yay", true)
	require.NoError(t, err)

	assert.True(t, receipt.Accepted)
	assert.Equal(t, "aur-yay", captured.EventType)
	assert.Equal(t, "aur", captured.ClientPayload.BranchType)
	assert.Equal(t, "https://aur.archlinux.org/yay.git", captured.ClientPayload.URL)
	assert.True(t, captured.ClientPayload.Tmate)
}

func TestBranchSHA(t *testing.T) {
	t.Run("branch exists", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/repos/big-comm/big-store/git/ref/heads/dev", r.URL.Path)
			_ = json.NewEncoder(w).Encode(refResponse{Object: refObject{SHA: "abc123"}})
		}))
		defer srv.Close()

		client := NewClient("tok", "big-comm", "build-package", WithBaseURL(srv.URL))
		sha, err := client.BranchSHA(context.Background(), "big-store", "dev")
		require.NoError(t, err)
		assert.Equal(t, "abc123", sha)
	})

	t.Run("falls back to main", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/repos/big-comm/big-store/git/ref/heads/main" {
				_ = json.NewEncoder(w).Encode(refResponse{Object: refObject{SHA: "def456"}})
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewClient("tok", "big-comm", "build-package", WithBaseURL(srv.URL))
		sha, err := client.BranchSHA(context.Background(), "big-store", "dev-25.08.29-1432")
		require.NoError(t, err)
		assert.Equal(t, "def456", sha)
	})

	t.Run("neither exists", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client := NewClient("tok", "big-comm", "build-package", WithBaseURL(srv.URL))
		_, err := client.BranchSHA(context.Background(), "big-store", "dev")
		require.Error(t, err)
	})
}

func TestCreateBranch(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		var captured createRefBody
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &captured))
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		client := NewClient("tok", "big-comm", "build-package", WithBaseURL(srv.URL))
		require.NoError(t, client.CreateBranch(context.Background(), "big-store", "testing-vcastro", "abc123"))
		assert.Equal(t, "refs/heads/testing-vcastro", captured.Ref)
		assert.Equal(t, "abc123", captured.SHA)
	})

	t.Run("already exists is not an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		client := NewClient("tok", "big-comm", "build-package", WithBaseURL(srv.URL))
		require.NoError(t, client.CreateBranch(context.Background(), "big-store", "testing-vcastro", "abc123"))
	})
}

func TestDeleteBranch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient("tok", "big-comm", "build-package", WithBaseURL(srv.URL))
	require.NoError(t, client.DeleteBranch(context.Background(), "big-store", "dev-25.08.27-0910"))
}

func TestCreatePullRequest(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		var captured pullRequestBody
		var gotPath string

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &captured))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(PullRequest{
				Number:  42,
				HTMLURL: "https://github.com/big-comm/big-store/pull/42",
			})
		}))
		defer srv.Close()

		client := NewClient("tok", "big-comm", "build-package", WithBaseURL(srv.URL))
		pr, err := client.CreatePullRequest(context.Background(),
			"big-store", "dev-25.08.29-1432", "main", "Merge dev-25.08.29-1432 into main", "")
		require.NoError(t, err)

		assert.Equal(t, "/repos/big-comm/big-store/pulls", gotPath)
		assert.Equal(t, "dev-25.08.29-1432", captured.Head)
		assert.Equal(t, "main", captured.Base)
		assert.Equal(t, 42, pr.Number)
		assert.Contains(t, pr.HTMLURL, "/pull/42")
	})

	t.Run("rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"No commits between main and dev"}`))
		}))
		defer srv.Close()

		client := NewClient("tok", "big-comm", "build-package", WithBaseURL(srv.URL))
		_, err := client.CreatePullRequest(context.Background(), "big-store", "dev", "main", "Merge dev", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 422")
	})
}

func TestLatestDevBranch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]branchEntry{
			{Name: "main"},
			{Name: "dev-25.08.27-0910"},
			{Name: "dev-25.08.29-1432"},
			{Name: "testing-vcastro"},
		})
	}))
	defer srv.Close()

	client := NewClient("tok", "big-comm", "build-package", WithBaseURL(srv.URL))
	name, err := client.LatestDevBranch(context.Background(), "big-store")
	require.NoError(t, err)
	assert.Equal(t, "dev-25.08.29-1432", name)
}
