package imagefetch

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
)

var (
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46, 0x49, 0x46}, bytes.Repeat([]byte{0x42}, 64)...)
	pngBytes  = append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0x17}, 64)...)
)

// The tests below patch the default transport, so none of them run in
// parallel.
func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func newTestFetcher(t *testing.T, configure ...func(*conf.Settings)) *Fetcher {
	t.Helper()

	settings := &conf.Settings{}
	settings.ImageFetch.MaxSizeMB = 1
	settings.ImageFetch.Timeout = 2
	settings.ImageFetch.RequestsPerSecond = 500
	for _, fn := range configure {
		fn(settings)
	}
	return New(settings, nil)
}

func imageResponder(contentType string, body []byte) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewBytesResponse(http.StatusOK, body)
		if contentType != "" {
			resp.Header.Set("Content-Type", contentType)
		}
		return resp, nil
	}
}

func htmlResponder(page string) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusOK, page)
		resp.Header.Set("Content-Type", "text/html; charset=utf-8")
		return resp, nil
	}
}

type recordingBlobStore struct {
	calls       int
	id          string
	blob        []byte
	contentType string
	err         error
}

func (s *recordingBlobStore) CacheImageBlob(id string, blob []byte, contentType string) error {
	s.calls++
	s.id = id
	s.blob = blob
	s.contentType = contentType
	return s.err
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	f := New(nil, nil)
	assert.Equal(t, int64(defaultMaxSizeMB)<<20, f.maxBytes)
	assert.Equal(t, defaultTimeout, f.timeout)
	assert.Equal(t, defaultUserAgent, f.userAgent)
	require.NotNil(t, f.client)
	assert.Equal(t, defaultTimeout, f.client.Timeout)
	require.NotNil(t, f.limiter)

	settings := &conf.Settings{}
	settings.ImageFetch.MaxSizeMB = 2
	settings.ImageFetch.Timeout = 7
	settings.ImageFetch.UserAgent = "custom-agent/2.0"
	configured := New(settings, nil)
	assert.Equal(t, int64(2)<<20, configured.maxBytes)
	assert.Equal(t, 7*time.Second, configured.timeout)
	assert.Equal(t, "custom-agent/2.0", configured.userAgent)
}

func TestFetch_DirectImage(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const imageURL = "https://images.test/photo.jpg"
	var gotAgent, gotAccept string
	httpmock.RegisterResponder("GET", imageURL, func(req *http.Request) (*http.Response, error) {
		gotAgent = req.Header.Get("User-Agent")
		gotAccept = req.Header.Get("Accept")
		resp := httpmock.NewBytesResponse(http.StatusOK, jpegBytes)
		resp.Header.Set("Content-Type", "image/jpeg")
		return resp, nil
	})

	img, err := f.Fetch(context.Background(), imageURL)
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, img.Data)
	assert.Equal(t, "image/jpeg", img.ContentType)
	assert.Equal(t, imageURL, img.SourceURL)
	assert.Equal(t, defaultUserAgent, gotAgent)
	assert.Contains(t, gotAccept, "image/*")
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestFetch_SniffsTypeWhenHeaderMissing(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const imageURL = "https://images.test/bare.png"
	httpmock.RegisterResponder("GET", imageURL, imageResponder("", pngBytes))

	img, err := f.Fetch(context.Background(), imageURL)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
	assert.Equal(t, pngBytes, img.Data)
}

func TestFetch_ResolvesOGImage(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const pageURL = "https://example.test/article"
	const imageURL = "https://cdn.example.test/cat.jpg"
	page := `<html><head><meta property="og:image" content="` + imageURL + `"><title>cat</title></head><body></body></html>`
	httpmock.RegisterResponder("GET", pageURL, htmlResponder(page))
	httpmock.RegisterResponder("GET", imageURL, imageResponder("image/jpeg", jpegBytes))

	img, err := f.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.ContentType)
	assert.Equal(t, jpegBytes, img.Data)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["GET "+pageURL])
	assert.Equal(t, 1, info["GET "+imageURL])
}

func TestFetch_ResolvesRelativeOGImage(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const pageURL = "https://example.test/post/42"
	page := `<html><head><meta property="og:image" content="/media/cat.png"></head></html>`
	httpmock.RegisterResponder("GET", pageURL, htmlResponder(page))
	httpmock.RegisterResponder("GET", "https://example.test/media/cat.png", imageResponder("image/png", pngBytes))

	img, err := f.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)
}

func TestFetch_FallsBackToTwitterImage(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const pageURL = "https://example.test/card"
	const imageURL = "https://cdn.example.test/card.jpg"
	page := `<html><head><meta name="twitter:image" content="` + imageURL + `"></head></html>`
	httpmock.RegisterResponder("GET", pageURL, htmlResponder(page))
	httpmock.RegisterResponder("GET", imageURL, imageResponder("image/jpeg", jpegBytes))

	img, err := f.Fetch(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, img.Data)
}

func TestFetch_PrefersOGImageOverTwitterCard(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const pageURL = "https://example.test/both"
	const ogURL = "https://cdn.example.test/og.jpg"
	const twitterURL = "https://cdn.example.test/twitter.jpg"
	page := `<html><head>` +
		`<meta name="twitter:image" content="` + twitterURL + `">` +
		`<meta property="og:image" content="` + ogURL + `">` +
		`</head></html>`
	httpmock.RegisterResponder("GET", pageURL, htmlResponder(page))
	httpmock.RegisterResponder("GET", ogURL, imageResponder("image/jpeg", jpegBytes))
	httpmock.RegisterResponder("GET", twitterURL, imageResponder("image/jpeg", pngBytes))

	_, err := f.Fetch(context.Background(), pageURL)
	require.NoError(t, err)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["GET "+ogURL])
	assert.Zero(t, info["GET "+twitterURL])
}

func TestFetch_PageWithoutOGImage(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const pageURL = "https://example.test/plain"
	httpmock.RegisterResponder("GET", pageURL, htmlResponder(`<html><head><title>plain</title></head><body>text</body></html>`))

	_, err := f.Fetch(context.Background(), pageURL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoImage), "expected ErrNoImage, got %v", err)
	assert.True(t, errors.IsCategory(err, errors.CategoryImageFetch))
}

func TestFetch_DoesNotChainHTMLPages(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const firstURL = "https://example.test/first"
	const secondURL = "https://example.test/second"
	httpmock.RegisterResponder("GET", firstURL,
		htmlResponder(`<html><head><meta property="og:image" content="`+secondURL+`"></head></html>`))
	httpmock.RegisterResponder("GET", secondURL,
		htmlResponder(`<html><head><meta property="og:image" content="https://example.test/third"></head></html>`))

	_, err := f.Fetch(context.Background(), firstURL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedType), "second hop must not resolve html again, got %v", err)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["GET "+firstURL])
	assert.Equal(t, 1, info["GET "+secondURL])
	assert.Zero(t, info["GET https://example.test/third"])
}

func TestFetch_RejectsOversizedBody(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)
	f.maxBytes = 64

	const imageURL = "https://images.test/huge.jpg"
	body := append([]byte{0xFF, 0xD8, 0xFF}, bytes.Repeat([]byte{0x00}, 100)...)
	httpmock.RegisterResponder("GET", imageURL, imageResponder("image/jpeg", body))

	_, err := f.Fetch(context.Background(), imageURL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLarge), "expected ErrTooLarge, got %v", err)
}

func TestFetch_RejectsAdvertisedLength(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const imageURL = "https://images.test/advertised.jpg"
	httpmock.RegisterResponder("GET", imageURL, func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewBytesResponse(http.StatusOK, nil)
		resp.Header.Set("Content-Type", "image/jpeg")
		resp.ContentLength = 10 << 20
		return resp, nil
	})

	_, err := f.Fetch(context.Background(), imageURL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTooLarge), "expected ErrTooLarge, got %v", err)
}

func TestFetch_RejectsUnsupportedType(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const fileURL = "https://files.test/doc.pdf"
	httpmock.RegisterResponder("GET", fileURL, imageResponder("application/pdf", []byte("%PDF-1.7")))

	_, err := f.Fetch(context.Background(), fileURL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedType), "expected ErrUnsupportedType, got %v", err)
	assert.Contains(t, err.Error(), "application/pdf")
}

func TestFetch_ServerErrors(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	httpmock.RegisterResponder("GET", "https://images.test/missing.jpg",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))
	httpmock.RegisterResponder("GET", "https://images.test/broken.jpg",
		httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

	_, err := f.Fetch(context.Background(), "https://images.test/missing.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.True(t, errors.IsCategory(err, errors.CategoryImageFetch))

	_, err = f.Fetch(context.Background(), "https://images.test/broken.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestFetch_BadURLDoesNotHitNetwork(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	_, err := f.Fetch(context.Background(), "http://localhost/internal.jpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadURL), "expected ErrBadURL, got %v", err)
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestValidateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		rawURL string
		ok     bool
	}{
		{"https", "https://images.test/a.jpg", true},
		{"http", "http://images.test/a.jpg", true},
		{"public literal ip", "https://8.8.8.8/a.jpg", true},
		{"empty", "", false},
		{"ftp scheme", "ftp://host/a.jpg", false},
		{"missing host", "https:///a.jpg", false},
		{"localhost", "http://localhost/a.jpg", false},
		{"mdns suffix", "http://printer.local/a.jpg", false},
		{"loopback", "http://127.0.0.1/a.jpg", false},
		{"ipv6 loopback", "http://[::1]/a.jpg", false},
		{"rfc1918 ten", "http://10.1.2.3/a.jpg", false},
		{"rfc1918 sixteen", "http://192.168.0.5/a.jpg", false},
		{"link local", "http://169.254.9.9/a.jpg", false},
		{"unspecified", "http://0.0.0.0/a.jpg", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			u, err := validateURL(tt.rawURL)
			if tt.ok {
				require.NoError(t, err)
				require.NotNil(t, u)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBadURL), "expected ErrBadURL, got %v", err)
		})
	}
}

func TestExtractOGImage(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.test/post/1")
	require.NoError(t, err)

	tests := []struct {
		name string
		page string
		want string
		ok   bool
	}{
		{
			"absolute og image",
			`<html><head><meta property="og:image" content="https://cdn.test/a.jpg"></head></html>`,
			"https://cdn.test/a.jpg", true,
		},
		{
			"root relative og image",
			`<html><head><meta property="og:image" content="/m/a.png"></head></html>`,
			"https://example.test/m/a.png", true,
		},
		{
			"path relative og image",
			`<html><head><meta property="og:image" content="m/a.png"></head></html>`,
			"https://example.test/post/m/a.png", true,
		},
		{
			"twitter card fallback",
			`<html><head><meta name="twitter:image" content="https://cdn.test/t.jpg"></head></html>`,
			"https://cdn.test/t.jpg", true,
		},
		{
			"og image preferred",
			`<head><meta name="twitter:image" content="https://cdn.test/t.jpg"><meta property="og:image" content="https://cdn.test/o.jpg"></head>`,
			"https://cdn.test/o.jpg", true,
		},
		{
			"truncated document",
			`<head><meta property="og:image" content="https://cdn.test/u.jpg"><p>cut off`,
			"https://cdn.test/u.jpg", true,
		},
		{
			"empty content", `<meta property="og:image" content="">`, "", false,
		},
		{
			"missing content attr", `<meta property="og:image">`, "", false,
		},
		{
			"no meta tags", `<html><body>hello</body></html>`, "", false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := extractOGImage([]byte(tt.page), base)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetch_CollapsesConcurrentFetches(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const imageURL = "https://images.test/shared.jpg"
	var calls atomic.Int32
	httpmock.RegisterResponder("GET", imageURL, func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		time.Sleep(200 * time.Millisecond)
		resp := httpmock.NewBytesResponse(http.StatusOK, jpegBytes)
		resp.Header.Set("Content-Type", "image/jpeg")
		return resp, nil
	})

	const goroutines = 8
	var wg sync.WaitGroup
	wg.Add(goroutines)
	images := make([]*Image, goroutines)
	errs := make([]error, goroutines)
	for i := range goroutines {
		go func() {
			defer wg.Done()
			images[i], errs[i] = f.Fetch(context.Background(), imageURL)
		}()
	}
	wg.Wait()

	for i := range goroutines {
		require.NoError(t, errs[i], "goroutine %d failed", i)
		require.NotNil(t, images[i], "goroutine %d got nil image", i)
		assert.Equal(t, jpegBytes, images[i].Data, "goroutine %d got different bytes", i)
	}
	assert.Equal(t, int32(1), calls.Load(), "concurrent fetches of one url must collapse into a single download")
}

func TestFetch_RateLimiterDelaysBurst(t *testing.T) {
	setupHTTPMock(t)

	registry := prometheus.NewRegistry()
	fetchMetrics, err := metrics.NewImageFetchMetrics(registry)
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.ImageFetch.MaxSizeMB = 1
	settings.ImageFetch.Timeout = 2
	f := New(settings, fetchMetrics)
	f.limiter = rate.NewLimiter(rate.Limit(50), 1)

	const imageURL = "https://images.test/limited.jpg"
	httpmock.RegisterResponder("GET", imageURL, imageResponder("image/jpeg", jpegBytes))

	start := time.Now()
	for range 3 {
		_, err := f.Fetch(context.Background(), imageURL)
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond, "second and third fetch must wait for tokens")
	assert.Equal(t, float64(2), counterValue(t, registry, "image_fetch_rate_limit_waits_total", nil))
}

func TestFetchForDetection_ServesBlobWithoutNetwork(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	detection := &datastore.Detection{
		ID:               "det-blob",
		ImageBlob:        jpegBytes,
		ImageContentType: "image/jpeg",
		ImageURL:         "https://images.test/never-fetched.jpg",
	}
	store := &recordingBlobStore{}

	img, err := f.FetchForDetection(context.Background(), store, detection)
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, img.Data)
	assert.Equal(t, "image/jpeg", img.ContentType)
	assert.Zero(t, store.calls, "blob hit must not write back")
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestFetchForDetection_FetchesAndCaches(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const imageURL = "https://images.test/fresh.jpg"
	httpmock.RegisterResponder("GET", imageURL, imageResponder("image/jpeg", jpegBytes))

	detection := &datastore.Detection{ID: "det-fresh", ImageURL: imageURL}
	store := &recordingBlobStore{}

	img, err := f.FetchForDetection(context.Background(), store, detection)
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, img.Data)

	assert.Equal(t, 1, store.calls)
	assert.Equal(t, "det-fresh", store.id)
	assert.Equal(t, jpegBytes, store.blob)
	assert.Equal(t, "image/jpeg", store.contentType)
}

func TestFetchForDetection_WriteBackFailureStillServes(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const imageURL = "https://images.test/flaky-store.jpg"
	httpmock.RegisterResponder("GET", imageURL, imageResponder("image/jpeg", jpegBytes))

	detection := &datastore.Detection{ID: "det-flaky", ImageURL: imageURL}
	store := &recordingBlobStore{err: assert.AnError}

	img, err := f.FetchForDetection(context.Background(), store, detection)
	require.NoError(t, err, "write-back failure must not fail the fetch")
	assert.Equal(t, jpegBytes, img.Data)
	assert.Equal(t, 1, store.calls)
}

func TestFetchForDetection_NilStore(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	const imageURL = "https://images.test/nostore.jpg"
	httpmock.RegisterResponder("GET", imageURL, imageResponder("image/jpeg", jpegBytes))

	img, err := f.FetchForDetection(context.Background(), nil, &datastore.Detection{ID: "det-ns", ImageURL: imageURL})
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, img.Data)
}

func TestFetchForDetection_NoSource(t *testing.T) {
	setupHTTPMock(t)
	f := newTestFetcher(t)

	_, err := f.FetchForDetection(context.Background(), nil, &datastore.Detection{ID: "det-empty"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoImage), "expected ErrNoImage, got %v", err)

	_, err = f.FetchForDetection(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestFetchForDetection_RecordsCacheMetrics(t *testing.T) {
	setupHTTPMock(t)

	registry := prometheus.NewRegistry()
	fetchMetrics, err := metrics.NewImageFetchMetrics(registry)
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.ImageFetch.MaxSizeMB = 1
	settings.ImageFetch.Timeout = 2
	settings.ImageFetch.RequestsPerSecond = 500
	f := New(settings, fetchMetrics)

	const imageURL = "https://images.test/metrics.jpg"
	httpmock.RegisterResponder("GET", imageURL, imageResponder("image/jpeg", jpegBytes))

	withBlob := &datastore.Detection{ID: "det-m1", ImageBlob: jpegBytes, ImageContentType: "image/jpeg"}
	_, err = f.FetchForDetection(context.Background(), nil, withBlob)
	require.NoError(t, err)

	withoutBlob := &datastore.Detection{ID: "det-m2", ImageURL: imageURL}
	_, err = f.FetchForDetection(context.Background(), nil, withoutBlob)
	require.NoError(t, err)

	assert.Equal(t, float64(1), counterValue(t, registry, "image_fetch_cache_hits_total", nil))
	assert.Equal(t, float64(1), counterValue(t, registry, "image_fetch_cache_misses_total", nil))
}

func TestFetch_RecordsMetrics(t *testing.T) {
	setupHTTPMock(t)

	registry := prometheus.NewRegistry()
	fetchMetrics, err := metrics.NewImageFetchMetrics(registry)
	require.NoError(t, err)

	settings := &conf.Settings{}
	settings.ImageFetch.MaxSizeMB = 1
	settings.ImageFetch.Timeout = 2
	settings.ImageFetch.RequestsPerSecond = 500
	f := New(settings, fetchMetrics)
	f.maxBytes = 256

	httpmock.RegisterResponder("GET", "https://images.test/ok.jpg", imageResponder("image/jpeg", jpegBytes))
	httpmock.RegisterResponder("GET", "https://pages.test/article",
		htmlResponder(`<html><head><meta property="og:image" content="https://images.test/og.jpg"></head></html>`))
	httpmock.RegisterResponder("GET", "https://images.test/og.jpg", imageResponder("image/jpeg", jpegBytes))
	httpmock.RegisterResponder("GET", "https://images.test/huge.jpg",
		imageResponder("image/jpeg", append([]byte{0xFF, 0xD8, 0xFF}, bytes.Repeat([]byte{0x00}, 300)...)))
	httpmock.RegisterResponder("GET", "https://files.test/doc.pdf", imageResponder("application/pdf", []byte("%PDF-1.7")))
	httpmock.RegisterResponder("GET", "https://pages.test/bare",
		htmlResponder(`<html><body>nothing here</body></html>`))
	httpmock.RegisterResponder("GET", "https://images.test/down.jpg",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))

	ctx := context.Background()
	_, err = f.Fetch(ctx, "https://images.test/ok.jpg")
	require.NoError(t, err)
	_, err = f.Fetch(ctx, "https://pages.test/article")
	require.NoError(t, err)
	_, err = f.Fetch(ctx, "https://images.test/huge.jpg")
	require.Error(t, err)
	_, err = f.Fetch(ctx, "https://files.test/doc.pdf")
	require.Error(t, err)
	_, err = f.Fetch(ctx, "https://pages.test/bare")
	require.Error(t, err)
	_, err = f.Fetch(ctx, "https://images.test/down.jpg")
	require.Error(t, err)
	_, err = f.Fetch(ctx, "http://localhost/private.jpg")
	require.Error(t, err)

	assert.Equal(t, float64(2), counterValue(t, registry, "image_fetch_downloads_total", nil))
	assert.Equal(t, float64(1), counterValue(t, registry, "image_fetch_og_resolutions_total", nil))
	assert.Equal(t, float64(1), counterValue(t, registry, "image_fetch_og_resolution_errors_total", nil))
	assert.Equal(t, float64(1), counterValue(t, registry, "image_fetch_download_errors_total", nil))
	assert.Equal(t, float64(1), counterValue(t, registry, "image_fetch_rejected_total", map[string]string{"reason": "too_large"}))
	assert.Equal(t, float64(1), counterValue(t, registry, "image_fetch_rejected_total", map[string]string{"reason": "bad_type"}))
	assert.Equal(t, float64(1), counterValue(t, registry, "image_fetch_rejected_total", map[string]string{"reason": "bad_url"}))

	sizes := gatherFamily(t, registry, "image_fetch_download_size_bytes")
	assert.Equal(t, uint64(2), sizes.GetMetric()[0].GetHistogram().GetSampleCount())
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for key, want := range labels {
				found := false
				for _, pair := range m.GetLabel() {
					if pair.GetName() == key && pair.GetValue() == want {
						found = true
						break
					}
				}
				if !found {
					continue metric
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	t.Fatalf("counter %s%v not found in registry", name, labels)
	return 0
}

func gatherFamily(t *testing.T, registry *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			require.NotEmpty(t, mf.GetMetric())
			return mf
		}
	}
	t.Fatalf("metric family %q not gathered", name)
	return nil
}
