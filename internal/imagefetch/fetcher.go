// Package imagefetch downloads remote images under an outbound rate limit
// and a hard size cap. HTML landing pages are resolved to their og:image
// target, and concurrent fetches of the same URL are collapsed so a burst
// of page views costs a single download.
package imagefetch

import (
	"bytes"
	"context"
	"io"
	"log"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/undetectableai/truthscan-twitter-bot/internal/conf"
	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
	"github.com/undetectableai/truthscan-twitter-bot/internal/logging"
	"github.com/undetectableai/truthscan-twitter-bot/internal/observability/metrics"
)

// Package-level logger specific to image fetching
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "imagefetch.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "imagefetch", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize imagefetch file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "imagefetch")
		closeLogger = func() error { return nil }
	}
}

// Fetch failure taxonomy. ErrTooLarge and ErrUnsupportedType mean the
// remote content can never be served, ErrBadURL that the URL itself was
// refused, and ErrNoImage that there was nothing to download at all.
var (
	ErrTooLarge        = errors.NewStd("image too large")
	ErrUnsupportedType = errors.NewStd("unsupported content type")
	ErrBadURL          = errors.NewStd("invalid image url")
	ErrNoImage         = errors.NewStd("no image available")
)

const (
	defaultMaxSizeMB = 15
	defaultTimeout   = 20 * time.Second
	defaultRate      = 5.0
	defaultUserAgent = "truthscan/1.0 (+https://truthscan.com)"

	maxRedirects = 6
)

// Image is a downloaded image with the media type the origin reported.
// Collapsed concurrent fetches share one Image, so callers must treat
// Data as read-only.
type Image struct {
	Data        []byte
	ContentType string
	SourceURL   string // final URL after redirects
}

// BlobStore is the write-back surface for opportunistic blob caching.
// The datastore never overwrites an existing blob, so racing write-backs
// are harmless.
type BlobStore interface {
	CacheImageBlob(id string, blob []byte, contentType string) error
}

// Fetcher retrieves remote images for page rendering and direct
// submissions. All outbound requests share one rate limiter.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	group     singleflight.Group
	maxBytes  int64
	timeout   time.Duration
	userAgent string
	metrics   *metrics.ImageFetchMetrics
	debug     bool
}

// New creates a fetcher from the imagefetch settings section. Zero or
// missing values fall back to defaults. fetchMetrics may be nil.
func New(settings *conf.Settings, fetchMetrics *metrics.ImageFetchMetrics) *Fetcher {
	maxSizeMB := defaultMaxSizeMB
	timeout := defaultTimeout
	rps := defaultRate
	userAgent := defaultUserAgent
	debug := false

	if settings != nil {
		if settings.ImageFetch.MaxSizeMB > 0 {
			maxSizeMB = settings.ImageFetch.MaxSizeMB
		}
		if settings.ImageFetch.Timeout > 0 {
			timeout = time.Duration(settings.ImageFetch.Timeout) * time.Second
		}
		if settings.ImageFetch.RequestsPerSecond > 0 {
			rps = settings.ImageFetch.RequestsPerSecond
		}
		if settings.ImageFetch.UserAgent != "" {
			userAgent = settings.ImageFetch.UserAgent
		}
		debug = settings.Debug
	}

	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	f := &Fetcher{
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		maxBytes:  int64(maxSizeMB) << 20,
		timeout:   timeout,
		userAgent: userAgent,
		metrics:   fetchMetrics,
		debug:     debug,
	}

	f.client = &http.Client{
		// Transport stays nil so the default transport's connection pool
		// is shared with the rest of the process.
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Newf("stopped after %d redirects", maxRedirects).
					Category(errors.CategoryImageFetch).
					Component("imagefetch").
					Context("operation", "follow_redirect").
					Build()
			}
			if _, err := validateURL(req.URL.String()); err != nil {
				return err
			}
			return nil
		},
	}

	logger.Info("image fetcher initialized",
		"max_bytes", f.maxBytes,
		"timeout", timeout,
		"requests_per_second", rps,
		"burst", burst)

	return f
}

// Close releases the service log file.
func (f *Fetcher) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing imagefetch logger: %v", err)
		}
	}
}

// Fetch downloads the image at rawURL. An HTML response is resolved
// through its og:image meta tag before the image itself is downloaded.
// Concurrent calls for one URL are collapsed into a single download and
// all callers receive the same Image.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	v, err, shared := f.group.Do(rawURL, func() (any, error) {
		return f.fetch(ctx, rawURL, true)
	})
	if err != nil {
		return nil, err
	}
	if shared && f.debug {
		logger.Debug("image fetch shared with concurrent caller", "url", rawURL)
	}
	return v.(*Image), nil
}

// FetchForDetection returns the detection's cached blob when present and
// otherwise downloads its imageUrl, writing the bytes back through store
// so later reads stay local. Write-back failure is logged only; the
// caller still gets the bytes.
func (f *Fetcher) FetchForDetection(ctx context.Context, store BlobStore, detection *datastore.Detection) (*Image, error) {
	if detection == nil {
		return nil, errors.Newf("detection is nil").
			Category(errors.CategoryValidation).
			Component("imagefetch").
			Context("operation", "fetch_for_detection").
			Build()
	}

	if detection.HasBlob() {
		if f.metrics != nil {
			f.metrics.IncrementCacheHits()
		}
		return &Image{
			Data:        detection.ImageBlob,
			ContentType: detection.ImageContentType,
			SourceURL:   detection.ImageURL,
		}, nil
	}
	if f.metrics != nil {
		f.metrics.IncrementCacheMisses()
	}

	if detection.ImageURL == "" {
		return nil, errors.Newf("%w: detection has neither blob nor url", ErrNoImage).
			Category(errors.CategoryImageFetch).
			Component("imagefetch").
			Context("detection_id", detection.ID).
			Build()
	}

	img, err := f.Fetch(ctx, detection.ImageURL)
	if err != nil {
		return nil, err
	}

	if store != nil {
		if cacheErr := store.CacheImageBlob(detection.ID, img.Data, img.ContentType); cacheErr != nil {
			logger.Warn("image blob write-back failed",
				"detection_id", detection.ID,
				"size_bytes", len(img.Data),
				"error", cacheErr)
		} else if f.debug {
			logger.Debug("image blob cached",
				"detection_id", detection.ID,
				"size_bytes", len(img.Data),
				"content_type", img.ContentType)
		}
	}

	return img, nil
}

// fetch performs a single rate-limited download. resolveHTML permits one
// hop through an HTML page's og:image tag; the hop itself fetches with
// resolveHTML false so page chains cannot recurse.
func (f *Fetcher) fetch(ctx context.Context, rawURL string, resolveHTML bool) (*Image, error) {
	target, err := validateURL(rawURL)
	if err != nil {
		if f.metrics != nil {
			f.metrics.RecordRejectedImage("bad_url")
		}
		return nil, err
	}

	if err := f.waitLimiter(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), http.NoBody)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryImageFetch).
			Component("imagefetch").
			Context("operation", "build_request").
			Build()
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/*, text/html;q=0.5")

	if f.debug {
		logger.Debug("downloading image", "url", target.String(), "resolve_html", resolveHTML)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if f.metrics != nil {
			f.metrics.IncrementDownloadErrors()
		}
		return nil, errors.New(err).
			Category(errors.CategoryImageFetch).
			Component("imagefetch").
			NetworkContext(target.String(), f.timeout).
			Context("operation", "download_image").
			Build()
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if f.metrics != nil {
			f.metrics.IncrementDownloadErrors()
		}
		return nil, errors.Newf("image fetch returned status %d", resp.StatusCode).
			Category(errors.CategoryImageFetch).
			Component("imagefetch").
			Context("operation", "download_image").
			Context("status_code", resp.StatusCode).
			Build()
	}

	// Reject on the advertised length before reading anything.
	if resp.ContentLength > f.maxBytes {
		if f.metrics != nil {
			f.metrics.RecordRejectedImage("too_large")
		}
		return nil, errors.Newf("%w: %d bytes advertised, limit %d", ErrTooLarge, resp.ContentLength, f.maxBytes).
			Category(errors.CategoryImageFetch).
			Component("imagefetch").
			Context("operation", "download_image").
			Build()
	}

	mediaType := ""
	if ctype := resp.Header.Get("Content-Type"); ctype != "" {
		if mt, _, parseErr := mime.ParseMediaType(ctype); parseErr == nil {
			mediaType = mt
		}
	}

	data, err := f.readCapped(resp.Body)
	if err != nil {
		return nil, err
	}

	if mediaType == "" && len(data) > 0 {
		mediaType = http.DetectContentType(data)
	}

	// Redirects may land somewhere other than the requested URL.
	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		duration := time.Since(start)
		if f.metrics != nil {
			f.metrics.IncrementImageDownloads()
			f.metrics.ObserveDownloadDuration(duration.Seconds())
			f.metrics.ObserveDownloadSize(float64(len(data)))
		}
		logger.Info("image downloaded",
			"content_type", mediaType,
			"size_bytes", len(data),
			"duration_ms", duration.Milliseconds())
		return &Image{Data: data, ContentType: mediaType, SourceURL: finalURL.String()}, nil

	case mediaType == "text/html" && resolveHTML:
		imageURL, ok := extractOGImage(data, finalURL)
		if !ok {
			if f.metrics != nil {
				f.metrics.IncrementOGResolutionErrors()
			}
			return nil, errors.Newf("%w: page has no og:image", ErrNoImage).
				Category(errors.CategoryImageFetch).
				Component("imagefetch").
				Context("operation", "resolve_og_image").
				Build()
		}
		if f.metrics != nil {
			f.metrics.IncrementOGResolutions()
		}
		if f.debug {
			logger.Debug("resolved page to og:image", "image_url", imageURL)
		}
		return f.fetch(ctx, imageURL, false)

	default:
		if f.metrics != nil {
			f.metrics.RecordRejectedImage("bad_type")
		}
		return nil, errors.Newf("%w: %s", ErrUnsupportedType, mediaType).
			Category(errors.CategoryImageFetch).
			Component("imagefetch").
			Context("operation", "download_image").
			Context("content_type", mediaType).
			Build()
	}
}

// waitLimiter blocks until the outbound rate limiter admits one request.
// Allow consumes nothing when it returns false, so the follow-up Wait is
// the only reservation on the slow path.
func (f *Fetcher) waitLimiter(ctx context.Context) error {
	if f.limiter.Allow() {
		return nil
	}
	if f.metrics != nil {
		f.metrics.IncrementRateLimitWaits()
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return errors.New(err).
			Category(errors.CategoryImageFetch).
			Component("imagefetch").
			Context("operation", "rate_limiter_wait").
			Build()
	}
	return nil
}

// readCapped reads at most maxBytes and fails on the first byte over.
func (f *Fetcher) readCapped(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		if f.metrics != nil {
			f.metrics.IncrementDownloadErrors()
		}
		return nil, errors.New(err).
			Category(errors.CategoryImageFetch).
			Component("imagefetch").
			Context("operation", "read_body").
			Build()
	}
	if int64(len(data)) > f.maxBytes {
		if f.metrics != nil {
			f.metrics.RecordRejectedImage("too_large")
		}
		return nil, errors.Newf("%w: body exceeds %d bytes", ErrTooLarge, f.maxBytes).
			Category(errors.CategoryImageFetch).
			Component("imagefetch").
			Context("operation", "read_body").
			Build()
	}
	return data, nil
}

// validateURL accepts absolute http(s) URLs with a public-looking host.
// Literal private, loopback and link-local addresses are refused, as are
// localhost and .local names. Hostnames are not resolved here; this is a
// parse-level check, not full SSRF protection.
func validateURL(rawURL string) (*url.URL, error) {
	reject := func(reason string) error {
		return errors.Newf("%w: %s", ErrBadURL, reason).
			Category(errors.CategoryImageFetch).
			Component("imagefetch").
			Context("operation", "validate_url").
			Context("reason", reason).
			Build()
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, reject("unparseable url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, reject("scheme must be http or https")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, reject("missing host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return nil, reject("local host refused")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
			return nil, reject("private address refused")
		}
	}
	return u, nil
}

// extractOGImage pulls the og:image URL out of an HTML document,
// falling back to twitter:image, and resolves it against base.
func extractOGImage(body []byte, base *url.URL) (string, bool) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	var ogImage, twitterImage string
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "meta" {
			var property, name, content string
			for _, attr := range node.Attr {
				switch attr.Key {
				case "property":
					property = attr.Val
				case "name":
					name = attr.Val
				case "content":
					content = attr.Val
				}
			}
			switch {
			case property == "og:image" && ogImage == "":
				ogImage = content
			case name == "twitter:image" && twitterImage == "":
				twitterImage = content
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			traverse(child)
		}
	}
	traverse(doc)

	picked := ogImage
	if picked == "" {
		picked = twitterImage
	}
	picked = strings.TrimSpace(picked)
	if picked == "" {
		return "", false
	}

	ref, err := url.Parse(picked)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}
