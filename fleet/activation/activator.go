// Package activation completes the platform's device-code sign-in for
// mining accounts. A miner that needs activation writes its code to the
// workspace; the watcher picks it up and drives a headless browser
// through the activate-and-login flow.
package activation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const activateURL = "https://www.twitch.tv/activate"

// Activator drives the twitch.tv/activate flow in headless Chrome.
type Activator struct {
	logger  *slog.Logger
	timeout time.Duration
}

func NewActivator(timeout time.Duration) *Activator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Activator{
		logger:  slog.With(slog.String("service", "activation")),
		timeout: timeout,
	}
}

// Activate enters the device code, then signs the account in. The
// password travels straight into the form and is never logged.
func (a *Activator) Activate(ctx context.Context, username, password, code string) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.WindowSize(1920, 1080),
		// Separate profile dirs keep concurrent activations from
		// fighting over Chrome's singleton lock.
		chromedp.UserDataDir(filepath.Join(os.TempDir(), "chrome_"+username)),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, a.timeout)
	defer cancelTimeout()

	a.logger.Info("Starting activation", slog.String("account", username))

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(activateURL),
		chromedp.WaitVisible(`input[placeholder="Enter Code"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[placeholder="Enter Code"]`, code, chromedp.ByQuery),
		chromedp.Click(`//button[contains(., 'Activate')]`, chromedp.BySearch),
	); err != nil {
		return fmt.Errorf("failed to submit activation code: %w", err)
	}
	a.logger.Info("Submitted activation code", slog.String("account", username))

	if err := chromedp.Run(browserCtx,
		chromedp.WaitVisible("#login-username", chromedp.ByID),
		chromedp.SendKeys("#login-username", username, chromedp.ByID),
		chromedp.SendKeys("#password-input", password, chromedp.ByID),
		chromedp.Click(`//button[contains(., 'Log In')]`, chromedp.BySearch),
	); err != nil {
		return fmt.Errorf("failed to sign in: %w", err)
	}

	var location string
	if err := chromedp.Run(browserCtx,
		chromedp.Sleep(3*time.Second),
		chromedp.Location(&location),
	); err != nil {
		return fmt.Errorf("failed to confirm sign-in: %w", err)
	}
	if !strings.Contains(location, "twitch.tv") {
		return fmt.Errorf("unexpected location after sign-in: %s", location)
	}

	a.logger.Info("Activation completed", slog.String("account", username))
	return nil
}
