package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/tfx/internal/server"
	"github.com/desertthunder/tfx/internal/services"
	"github.com/desertthunder/tfx/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the OAuth2 authorization code flow with a local callback listener on the host
// and port of remote.redirect_uri. The token is saved to remote.token_path.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	drive, err := services.NewDriveService(r.config.Remote)
	if err != nil {
		return err
	}

	redirect, err := url.Parse(drive.OAuthConfig().RedirectURL)
	if err != nil || redirect.Host == "" {
		return fmt.Errorf("%w: remote.redirect_uri must be an absolute URL", shared.ErrInvalidConfig)
	}

	state := shared.GenerateID()
	oauthHandler := server.NewOAuthHandler(drive, state)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	srv := server.NewServer(redirect.Host, router, r.logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL := drive.AuthURL(state)
	r.writePlain("→ Opening browser for Google Drive...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	timeout := cmd.Duration("timeout")
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case <-timer.C:
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}
	if result.Token == nil {
		return fmt.Errorf("%w: no token received", shared.ErrAuthFailed)
	}

	r.logger.Info("token saved", "path", r.config.Remote.TokenPath)
	return r.writePlain("✓ Logged in, token saved to %s\n", r.config.Remote.TokenPath)
}

// AuthStatus loads the saved token and asks Drive who it belongs to.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	drive, err := services.NewDriveService(r.config.Remote)
	if err != nil {
		return err
	}
	if err := drive.Authenticate(ctx); err != nil {
		return err
	}

	user, err := drive.About(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach Google Drive: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}
	return r.writePlain("✓ Authenticated as %s <%s>\n", user.DisplayName, user.EmailAddress)
}
