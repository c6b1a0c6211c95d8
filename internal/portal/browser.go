package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"reeler/internal/config"
	"reeler/internal/logging"
	"reeler/internal/services"
)

const (
	loginSettle  = time.Second
	logoutPath   = "/login.php?log=out"
	playScript   = `(() => { const v = document.querySelector('video'); if (!v) { return false; } v.muted = true; v.play(); return true; })()`
	defaultPause = 500 * time.Millisecond
)

// BrowserSession implements Session over a chromedp-controlled browser.
type BrowserSession struct {
	baseURL     string
	galleryPath string
	username    string
	password    string
	timeout     time.Duration
	logger      *slog.Logger

	capture     *capture
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// NewBrowserSession starts a browser for the configured portal.
func NewBrowserSession(cfg *config.Config, logger *slog.Logger) (*BrowserSession, error) {
	if err := cfg.RequirePortal(); err != nil {
		return nil, err
	}
	pattern, err := regexp.Compile(cfg.Portal.SegmentPattern)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "portal", "segment pattern", cfg.Portal.SegmentPattern, err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "portal")

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Portal.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("mute-audio", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithErrorf(func(format string, args ...any) {
		logger.Debug("browser error", logging.String("detail", fmt.Sprintf(format, args...)))
	}))

	s := &BrowserSession{
		baseURL:     cfg.Portal.BaseURL,
		galleryPath: cfg.Portal.GalleryPath,
		username:    cfg.Portal.Username,
		password:    cfg.Portal.Password,
		timeout:     cfg.PageTimeout(),
		logger:      logger,
		capture:     newCapture(pattern),
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}

	chromedp.ListenTarget(tabCtx, func(ev any) {
		if req, ok := ev.(*network.EventRequestWillBeSent); ok && req.Request != nil {
			if s.capture.observe(req.Request.URL) {
				logger.Debug("stream trigger captured", logging.String("url", req.Request.URL))
			}
		}
	})

	// The first Run starts the browser; it must use the long-lived tab context.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		s.Close()
		return nil, services.Wrap(services.ErrExternalTool, "portal", "start browser", "", err)
	}
	return s, nil
}

// run executes actions bounded by the page timeout and the caller's ctx.
func (s *BrowserSession) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := context.WithTimeout(s.tabCtx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "portal", "page", "", err)
	}
	return services.Wrap(services.ErrNetwork, "portal", "page", "", err)
}

func (s *BrowserSession) load(ctx context.Context, url string) (string, error) {
	var html string
	err := s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

// Authenticate logs in unless the configured user already is.
func (s *BrowserSession) Authenticate(ctx context.Context) error {
	html, err := s.load(ctx, s.baseURL+"/")
	if err != nil {
		return err
	}
	if IsAuthenticated(html) {
		current := Username(html)
		if current == "" || strings.EqualFold(current, s.username) {
			s.logger.Info("portal session already authenticated", logging.String("user", current))
			return nil
		}
		s.logger.Info("switching portal user", logging.String("from", current), logging.String("to", s.username))
		if html, err = s.load(ctx, s.baseURL+logoutPath); err != nil {
			return err
		}
		if !strings.Contains(html, "form1") {
			if html, err = s.load(ctx, s.baseURL+"/"); err != nil {
				return err
			}
		}
	}

	if err := CheckLoginForm(html); err != nil {
		return err
	}
	form := selectorLoginForm + " "
	err = s.run(ctx,
		chromedp.SetValue(form+selectorLoginUser, s.username, chromedp.ByQuery),
		chromedp.SetValue(form+selectorLoginPassword, s.password, chromedp.ByQuery),
		chromedp.Click(form+selectorLoginSubmit, chromedp.ByQuery),
		chromedp.Sleep(loginSettle),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return err
	}
	if !IsAuthenticated(html) {
		return fmt.Errorf("%w: user %s", ErrAuthentication, s.username)
	}
	s.logger.Info("portal login succeeded", logging.String("user", s.username))
	return nil
}

// LastVideoID reads the newest id from the gallery.
func (s *BrowserSession) LastVideoID(ctx context.Context) (int64, error) {
	html, err := s.load(ctx, s.baseURL+s.galleryPath)
	if err != nil {
		return 0, err
	}
	return ParseLastVideoID(html)
}

// Metadata loads and parses the video page for id.
func (s *BrowserSession) Metadata(ctx context.Context, id int64) (*Metadata, error) {
	pageURL := VideoURL(s.baseURL, id)
	html, err := s.load(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return ParseMetadata(html, pageURL, id)
}

// Play opens the video page, arms the segment capture, and starts playback.
func (s *BrowserSession) Play(ctx context.Context, id int64) (<-chan string, error) {
	ch := s.capture.arm()
	var started bool
	err := s.run(ctx,
		chromedp.Navigate(VideoURL(s.baseURL, id)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(defaultPause),
		chromedp.Evaluate(playScript, &started),
	)
	if err != nil {
		s.capture.disarm()
		return nil, err
	}
	if !started {
		s.capture.disarm()
		return nil, structureErr("video", "no video element on page for id %d", id)
	}
	return ch, nil
}

// Reload reloads the current page and restarts playback.
func (s *BrowserSession) Reload(ctx context.Context) error {
	var started bool
	return s.run(ctx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(defaultPause),
		chromedp.Evaluate(playScript, &started),
	)
}

// SegmentHeader copies the browser cookies that apply to url into a Cookie
// header.
func (s *BrowserSession) SegmentHeader(ctx context.Context, url string) (http.Header, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{url}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return CookieHeader(cookies), nil
}

// CookieHeader renders cookies as a request header.
func CookieHeader(cookies []*network.Cookie) http.Header {
	header := http.Header{}
	pairs := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		pairs = append(pairs, (&http.Cookie{Name: c.Name, Value: c.Value}).String())
	}
	if len(pairs) > 0 {
		header.Set("Cookie", strings.Join(pairs, "; "))
	}
	return header
}

// Close shuts the browser down.
func (s *BrowserSession) Close() error {
	s.capture.disarm()
	if s.tabCancel != nil {
		s.tabCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	return nil
}

var _ Session = (*BrowserSession)(nil)
