package github

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// Location points at a file or directory in a repository.
type Location struct {
	Owner string
	Repo  string
	Path  string
	Ref   string // Branch, tag or commit; empty for the default branch
}

func (l Location) String() string {
	s := l.Owner + "/" + l.Repo + "/" + l.Path
	if l.Ref != "" {
		s += "@" + l.Ref
	}
	return s
}

// ParseLocation accepts "owner/repo/path[@ref]" or a github.com URL of the
// form https://github.com/owner/repo/blob/ref/path (or /tree/ for
// directories).
func ParseLocation(s string) (Location, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://") {
		u, err := url.Parse(s)
		if err != nil {
			return Location{}, fmt.Errorf("invalid GitHub URL %q: %w", s, err)
		}
		if u.Host != "github.com" && u.Host != "www.github.com" {
			return Location{}, fmt.Errorf("not a github.com URL: %q", s)
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 5 || (parts[2] != "blob" && parts[2] != "tree") {
			return Location{}, fmt.Errorf("expected https://github.com/owner/repo/blob/ref/path, got %q", s)
		}
		return Location{Owner: parts[0], Repo: parts[1], Ref: parts[3], Path: strings.Join(parts[4:], "/")}, nil
	}

	var ref string
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s, ref = s[:i], s[i+1:]
	}
	parts := strings.SplitN(strings.Trim(s, "/"), "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Location{}, fmt.Errorf("expected owner/repo/path[@ref], got %q", s)
	}
	return Location{Owner: parts[0], Repo: parts[1], Path: parts[2], Ref: ref}, nil
}

// File is a document downloaded from GitHub.
type File struct {
	Path    string // Path within the repository
	Name    string // Base name, used as the display name
	Content []byte
	SHA     string // Git blob SHA
	URL     string // Browser URL
}

// Fetcher downloads documents from GitHub.
type Fetcher struct {
	client *Client
}

// NewFetcher creates a new document fetcher.
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

func (f *Fetcher) options(loc Location) *github.RepositoryContentGetOptions {
	if loc.Ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: loc.Ref}
}

// FetchFile downloads a single file.
func (f *Fetcher) FetchFile(ctx context.Context, loc Location) (*File, error) {
	fileContent, dirContent, _, err := f.client.Repositories.GetContents(
		ctx, loc.Owner, loc.Repo, loc.Path, f.options(loc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", loc, err)
	}
	if fileContent == nil {
		if dirContent != nil {
			return nil, fmt.Errorf("%s is a directory", loc)
		}
		return nil, fmt.Errorf("no file content returned for %s", loc)
	}

	var content []byte
	// Files over 1 MB come back without inline content.
	if fileContent.GetEncoding() == "none" || (fileContent.Content == nil && fileContent.GetSize() > 0) {
		content, err = f.download(ctx, loc)
	} else {
		var text string
		text, err = fileContent.GetContent()
		content = []byte(text)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", loc, err)
	}

	return &File{
		Path:    fileContent.GetPath(),
		Name:    path.Base(fileContent.GetPath()),
		Content: content,
		SHA:     fileContent.GetSHA(),
		URL:     fileContent.GetHTMLURL(),
	}, nil
}

func (f *Fetcher) download(ctx context.Context, loc Location) ([]byte, error) {
	rc, _, err := f.client.Repositories.DownloadContents(ctx, loc.Owner, loc.Repo, loc.Path, f.options(loc))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// ListFiles recursively lists the files under a directory whose extension is
// in exts (for example ".pdf"). Paths are relative to the repository root.
func (f *Fetcher) ListFiles(ctx context.Context, loc Location, exts ...string) ([]string, error) {
	var files []string
	if err := f.listRecursive(ctx, loc, loc.Path, exts, &files); err != nil {
		return nil, err
	}
	return files, nil
}

func (f *Fetcher) listRecursive(ctx context.Context, loc Location, dir string, exts []string, files *[]string) error {
	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, loc.Owner, loc.Repo, dir, f.options(loc))
	if err != nil {
		return fmt.Errorf("failed to get contents of %s: %w", dir, err)
	}

	for _, item := range dirContents {
		itemPath := path.Join(dir, item.GetName())
		switch item.GetType() {
		case "file":
			if hasExt(item.GetName(), exts) {
				*files = append(*files, itemPath)
			}
		case "dir":
			if err := f.listRecursive(ctx, loc, itemPath, exts, files); err != nil {
				return err
			}
		}
	}
	return nil
}

func hasExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}
