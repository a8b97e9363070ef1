package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// FetchedDoc represents a document fetched from GitHub
type FetchedDoc struct {
	Source  Source // Where the file lives
	Content string // Full file content
	SHA     string // File's Git blob SHA
	URL     string // GitHub raw URL
}

// Fetcher handles fetching documents from GitHub repositories
type Fetcher struct {
	client *Client
}

// NewFetcher creates a new document fetcher
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

func contentOptions(src Source) *github.RepositoryContentGetOptions {
	if src.Ref == "" {
		return nil
	}
	return &github.RepositoryContentGetOptions{Ref: src.Ref}
}

// ListDocs lists files under src. A file source lists itself; a directory
// is walked recursively. Only files whose extension is accepted by match
// are returned; a nil match accepts everything.
func (f *Fetcher) ListDocs(ctx context.Context, src Source, match func(name string) bool) ([]Source, error) {
	fileContent, dirContents, _, err := f.client.Repositories.GetContents(
		ctx,
		src.Owner,
		src.Repo,
		src.Path,
		contentOptions(src),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", src, err)
	}
	if fileContent != nil {
		return []Source{src}, nil
	}

	var docs []Source
	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemPath := path.Join(src.Path, *item.Name)

		switch *item.Type {
		case "file":
			if match == nil || match(*item.Name) {
				docs = append(docs, src.At(itemPath))
			}

		case "dir":
			subDocs, err := f.ListDocs(ctx, src.At(itemPath), match)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// FetchDoc fetches the content of a single file
func (f *Fetcher) FetchDoc(ctx context.Context, src Source) (*FetchedDoc, error) {
	fileContent, _, _, err := f.client.Repositories.GetContents(
		ctx,
		src.Owner,
		src.Repo,
		src.Path,
		contentOptions(src),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", src, err)
	}

	if fileContent == nil || fileContent.Content == nil {
		return nil, fmt.Errorf("no file content returned for %s", src)
	}

	// The contents API wraps base64 at 60 columns.
	encoded := strings.ReplaceAll(*fileContent.Content, "\n", "")
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", src, err)
	}

	ref := src.Ref
	if ref == "" {
		ref = "HEAD"
	}
	rawURL := fmt.Sprintf(
		"https://raw.githubusercontent.com/%s/%s/%s/%s",
		src.Owner,
		src.Repo,
		ref,
		src.Path,
	)

	return &FetchedDoc{
		Source:  src,
		Content: string(content),
		SHA:     fileContent.GetSHA(),
		URL:     rawURL,
	}, nil
}
