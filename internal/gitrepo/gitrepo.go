// Package gitrepo clones and refreshes remote repositories so they can be
// analyzed like any local tree. Checkouts are shallow and live under a base
// directory keyed by owner and name, so repeated analyses of the same
// repository reuse the same path.
package gitrepo

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/pkg/model"
)

// RepoInfo identifies a remote repository parsed from a user-supplied URL.
type RepoInfo struct {
	Host     string
	Owner    string
	Name     string
	URL      string
	CloneURL string
	Branch   string
}

// CloneResult describes a checkout on disk.
type CloneResult struct {
	Path      string
	CommitSHA string
	Branch    string
}

// ParseRepoURL extracts host, owner, and name from an https URL or an
// scp-style ssh URL (git@host:owner/repo.git). The clone URL is normalized
// to https so a single token credential covers both forms. The branch
// defaults to main; callers may override it before cloning.
func ParseRepoURL(rawURL string) (*RepoInfo, error) {
	rawURL = strings.TrimSpace(rawURL)
	if strings.HasPrefix(rawURL, "git@") {
		return parseSCPURL(rawURL)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid repository URL %q: %w", rawURL, err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, fmt.Errorf("unsupported repository URL %q (want https://host/owner/repo or git@host:owner/repo)", rawURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("repository URL %q has no host", rawURL)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("repository URL %q must include owner and name", rawURL)
	}
	name := strings.TrimSuffix(parts[1], ".git")
	if name == "" {
		return nil, fmt.Errorf("repository URL %q must include owner and name", rawURL)
	}
	return repoInfo(parsed.Host, parts[0], name), nil
}

func parseSCPURL(rawURL string) (*RepoInfo, error) {
	host, path, ok := strings.Cut(strings.TrimPrefix(rawURL, "git@"), ":")
	if !ok || host == "" {
		return nil, fmt.Errorf("invalid ssh repository URL %q (want git@host:owner/repo)", rawURL)
	}
	parts := strings.Split(strings.Trim(strings.TrimSuffix(path, ".git"), "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("ssh repository URL %q must include owner and name", rawURL)
	}
	return repoInfo(host, parts[0], parts[1]), nil
}

func repoInfo(host, owner, name string) *RepoInfo {
	return &RepoInfo{
		Host:     host,
		Owner:    owner,
		Name:     name,
		URL:      fmt.Sprintf("https://%s/%s/%s", host, owner, name),
		CloneURL: fmt.Sprintf("https://%s/%s/%s.git", host, owner, name),
		Branch:   "main",
	}
}

// Service manages shallow checkouts under a base directory.
type Service struct {
	baseDir string
	token   string
}

// NewService returns a Service storing checkouts under baseDir. The token,
// when non-empty, authenticates https access to private repositories.
func NewService(baseDir, token string) *Service {
	return &Service{baseDir: baseDir, token: token}
}

// LocalPath returns where a repository is (or would be) checked out.
func (s *Service) LocalPath(info *RepoInfo) string {
	return filepath.Join(s.baseDir, info.Owner, info.Name)
}

// Sync brings the checkout for info up to date, cloning when absent and
// pulling when present. Shallow checkouts sometimes refuse to pull, so a
// failed pull falls back to a fresh clone.
func (s *Service) Sync(ctx context.Context, info *RepoInfo) (*CloneResult, error) {
	path := s.LocalPath(info)
	if _, err := os.Stat(filepath.Join(path, ".git")); err != nil {
		return s.Clone(ctx, info)
	}
	res, err := s.Pull(ctx, info)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		log.Warn().Err(err).Str("path", path).Msg("pull failed, recloning")
		return s.Clone(ctx, info)
	}
	return res, nil
}

// Clone makes a fresh shallow checkout, replacing any previous one. When the
// requested branch does not exist on the remote the clone retries on the
// remote default branch.
func (s *Service) Clone(ctx context.Context, info *RepoInfo) (*CloneResult, error) {
	path := s.LocalPath(info)
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("removing stale checkout: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating checkout directory: %w", err)
	}

	opts := &git.CloneOptions{URL: info.CloneURL, Depth: 1}
	if s.token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "git", Password: s.token}
	}
	if info.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(info.Branch)
		opts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, path, false, opts)
	if err != nil && info.Branch != "" && strings.Contains(err.Error(), "reference not found") {
		_ = os.RemoveAll(path)
		opts.ReferenceName = ""
		opts.SingleBranch = false
		repo, err = git.PlainCloneContext(ctx, path, false, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("cloning %s: %w", info.CloneURL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("reading HEAD of %s: %w", path, err)
	}
	sha := head.Hash().String()
	log.Info().
		Str("repo", info.Owner+"/"+info.Name).
		Str("branch", head.Name().Short()).
		Str("commit", sha[:8]).
		Msg("cloned repository")

	return &CloneResult{Path: path, CommitSHA: sha, Branch: head.Name().Short()}, nil
}

// Pull refreshes an existing checkout. An already current checkout is not
// an error.
func (s *Service) Pull(ctx context.Context, info *RepoInfo) (*CloneResult, error) {
	path := s.LocalPath(info)
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("opening checkout %s: %w", path, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("reading worktree of %s: %w", path, err)
	}

	pullOpts := &git.PullOptions{}
	if s.token != "" {
		pullOpts.Auth = &githttp.BasicAuth{Username: "git", Password: s.token}
	}
	if err := wt.PullContext(ctx, pullOpts); err != nil && err != git.NoErrAlreadyUpToDate {
		return nil, fmt.Errorf("pulling %s: %w", path, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("reading HEAD of %s: %w", path, err)
	}
	return &CloneResult{Path: path, CommitSHA: head.Hash().String(), Branch: head.Name().Short()}, nil
}

// censusSkipDirs mirrors the directories an analysis excludes, so the
// census sees the same files the analyzer would.
var censusSkipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"build":        true,
	"dist":         true,
	"target":       true,
	"out":          true,
	"venv":         true,
}

// DetectLanguages counts analyzable source files per language under root.
// Test files are left out so a repository whose tests outnumber its code
// still reports the right primary language.
func DetectLanguages(root string) (map[model.Language]int, error) {
	counts := make(map[model.Language]int)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return filepath.SkipDir
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || censusSkipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if isTestPath(path) {
			return nil
		}
		if lang := model.DetectLanguage(path); lang != model.LanguageUnknown {
			counts[lang]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func isTestPath(path string) bool {
	p := strings.ToLower(filepath.ToSlash(path))
	if strings.Contains(p, "/test/") || strings.Contains(p, "/tests/") {
		return true
	}
	base := p
	if i := strings.LastIndex(p, "/"); i >= 0 {
		base = p[i+1:]
	}
	return strings.HasPrefix(base, "test_") ||
		strings.Contains(base, "_test.") ||
		strings.Contains(base, ".test.") ||
		strings.Contains(base, ".spec.")
}

// Primary picks the language an auto-detected analysis should run with.
// TypeScript counts pool with JavaScript because a javascript analysis
// already covers .ts and .tsx sources. Returns false when nothing under
// root is analyzable.
func Primary(counts map[model.Language]int) (model.Language, bool) {
	pooled := make(map[model.Language]int, len(counts))
	for lang, n := range counts {
		if lang == model.LanguageTypeScript {
			lang = model.LanguageJavaScript
		}
		pooled[lang] += n
	}

	langs := make([]model.Language, 0, len(pooled))
	for lang := range pooled {
		langs = append(langs, lang)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })

	best, bestCount := model.LanguageUnknown, 0
	for _, lang := range langs {
		if pooled[lang] > bestCount {
			best, bestCount = lang, pooled[lang]
		}
	}
	if bestCount == 0 {
		return model.LanguageUnknown, false
	}
	return best, true
}
