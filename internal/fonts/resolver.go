// Package fonts locates a CJK-capable font file from an ordered list of candidates.
package fonts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/pdfannotator/internal/gcp"
)

var (
	// ErrFetchFailure marks a candidate that could not be retrieved or was implausibly small.
	ErrFetchFailure = errors.New("font fetch failure")
	// ErrLocalFileOrigin is reported when candidates would be resolved against a file: origin.
	ErrLocalFileOrigin = errors.New("font base is a local file origin, fetching skipped")
)

// Asset is a resolved font file. A nil *Asset means "use the fallback font".
type Asset struct {
	Source string
	Data   []byte
}

// Present reports whether font bytes are available.
func (a *Asset) Present() bool {
	return a != nil && len(a.Data) > 0
}

// ObjectReader fetches gs:// candidates.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, error)
}

// GCSReader reads candidates from Cloud Storage.
type GCSReader struct {
	Client *storage.Client
}

func (g GCSReader) ReadObject(ctx context.Context, bucket, object string) ([]byte, error) {
	return gcp.ReadObject(ctx, g.Client.Bucket(bucket), object)
}

// Resolver tries each candidate in order and accepts the first one larger than MinBytes.
// Candidates may be http(s):// or gs:// URIs, or paths. Paths are resolved against
// BaseURL when it is set and read from disk otherwise.
type Resolver struct {
	Candidates []string
	BaseURL    string
	MinBytes   int64
	HTTPClient *http.Client
	Objects    ObjectReader
}

// Resolve returns the first acceptable font and every failure met on the way.
// Running out of candidates is not an error: the asset is simply nil.
func (r *Resolver) Resolve(ctx context.Context) (*Asset, []error) {
	logCtx := slog.With("baseUrl", r.BaseURL)

	base, err := r.base()
	if err != nil {
		logCtx.Warn("Invalid font base URL, using fallback font.", "error", err)
		return nil, []error{fmt.Errorf("%w: %v", ErrFetchFailure, err)}
	}
	if base != nil && base.Scheme == "file" {
		logCtx.Warn("Font base is a local file origin; serve the fonts over HTTP to enable CJK embedding.")
		return nil, []error{ErrLocalFileOrigin}
	}

	var failures []error
	for _, candidate := range r.Candidates {
		data, err := r.fetch(ctx, base, candidate)
		if err == nil && int64(len(data)) <= r.MinBytes {
			err = fmt.Errorf("payload of %d bytes is not larger than %d bytes, probably not a complete font", len(data), r.MinBytes)
		}
		if err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrFetchFailure, candidate, err)
			logCtx.Warn("Font candidate rejected.", "source", candidate, "error", err)
			failures = append(failures, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		logCtx.Info("Font resolved.", "source", candidate, "sizeKB", len(data)/1024)
		return &Asset{Source: candidate, Data: data}, failures
	}

	logCtx.Warn("No font candidate accepted, using fallback font.", "tried", len(r.Candidates))
	return nil, failures
}

func (r *Resolver) base() (*url.URL, error) {
	if r.BaseURL == "" {
		return nil, nil
	}
	return url.Parse(r.BaseURL)
}

func (r *Resolver) fetch(ctx context.Context, base *url.URL, candidate string) ([]byte, error) {
	switch {
	case strings.HasPrefix(candidate, "gs://"):
		return r.fetchObject(ctx, candidate)
	case strings.HasPrefix(candidate, "http://"), strings.HasPrefix(candidate, "https://"):
		return r.fetchHTTP(ctx, candidate)
	case base != nil:
		ref, err := url.Parse(candidate)
		if err != nil {
			return nil, err
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme == "gs" {
			return r.fetchObject(ctx, resolved.String())
		}
		return r.fetchHTTP(ctx, resolved.String())
	default:
		return os.ReadFile(candidate)
	}
}

func (r *Resolver) fetchHTTP(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (r *Resolver) fetchObject(ctx context.Context, uri string) ([]byte, error) {
	if r.Objects == nil {
		return nil, fmt.Errorf("no storage client configured for %s", uri)
	}
	bucket, object, err := gcp.ParseGSURI(uri)
	if err != nil {
		return nil, err
	}
	return r.Objects.ReadObject(ctx, bucket, object)
}
