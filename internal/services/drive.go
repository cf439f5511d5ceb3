// Google Drive implementation of [Remote]
//
// Drive v3 response types based on https://developers.google.com/drive/api/reference/rest/v3/files
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
	"golang.org/x/oauth2"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
	driveBaseURL   = "https://www.googleapis.com/drive/v3"
	driveScope     = "https://www.googleapis.com/auth/drive.readonly"

	driveFolderMime = "application/vnd.google-apps.folder"
	drivePageSize   = 100
)

// DriveFile is a file resource as returned by files.list and files.get.
type DriveFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     string `json:"size"` // int64 encoded as a string
}

// DriveFileList is one page of files.list.
type DriveFileList struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []DriveFile `json:"files"`
}

// DriveUser is the authenticated account as returned by about.get.
type DriveUser struct {
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// RemoteItem converts the file into a [models.RemoteItem].
func (f DriveFile) RemoteItem() models.RemoteItem {
	size, _ := strconv.ParseInt(f.Size, 10, 64)
	return models.RemoteItem{
		ID:       f.ID,
		Name:     f.Name,
		Size:     size,
		IsFolder: f.MimeType == driveFolderMime,
	}
}

// DriveService implements the Remote interface for Google Drive.
// Uses [oauth2] for authentication with refreshed tokens written back to the token file.
type DriveService struct {
	config    *oauth2.Config
	tokenPath string
	rateLimit float64
	api       *APIService
}

// NewDriveService creates a new Drive service from the remote configuration.
func NewDriveService(cfg shared.RemoteConfig) (*DriveService, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: remote.client_id and remote.client_secret are required", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://127.0.0.1:8383/callback"
	}

	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{driveScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: googleTokenURL,
		},
	}

	return &DriveService{
		config:    config,
		tokenPath: cfg.TokenPath,
		rateLimit: cfg.RateLimit,
	}, nil
}

// NewDriveServiceWithAPI creates a Drive service that talks to api directly, skipping OAuth.
func NewDriveServiceWithAPI(api *APIService) *DriveService {
	return &DriveService{api: api}
}

func (s *DriveService) Name() string {
	return "Google Drive"
}

// OAuthConfig exposes the OAuth2 configuration for the login callback handler.
func (s *DriveService) OAuthConfig() *oauth2.Config {
	return s.config
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *DriveService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and persists it.
func (s *DriveService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to exchange auth code: %w", shared.ErrAuthFailed, err)
	}
	if err := s.SaveToken(token); err != nil {
		return nil, err
	}
	return token, nil
}

// SaveToken writes token as JSON to the configured token path.
func (s *DriveService) SaveToken(token *oauth2.Token) error {
	if s.tokenPath == "" {
		return fmt.Errorf("%w: remote.token_path is empty", shared.ErrInvalidConfig)
	}
	if dir := filepath.Dir(s.tokenPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create token directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(s.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// LoadToken reads the persisted token.
func (s *DriveService) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.tokenPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: no token at %s, run `tfx auth login`", shared.ErrNotAuthenticated, s.tokenPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("%w: failed to decode token: %v", shared.ErrNotAuthenticated, err)
	}
	return &token, nil
}

// Authenticate loads the persisted token and builds the authenticated client.
func (s *DriveService) Authenticate(ctx context.Context) error {
	token, err := s.LoadToken()
	if err != nil {
		return err
	}

	source := &savingTokenSource{
		base: s.config.TokenSource(ctx, token),
		last: token.AccessToken,
		save: s.SaveToken,
	}
	client := oauth2.NewClient(ctx, source)
	s.api = NewAPIService(driveBaseURL, client, NewLimiter(s.rateLimit))
	return nil
}

func (s *DriveService) ready() error {
	if s.api == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}
	return nil
}

// About returns the account the token belongs to.
func (s *DriveService) About(ctx context.Context) (*DriveUser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var about struct {
		User DriveUser `json:"user"`
	}
	query := url.Values{"fields": {"user(displayName,emailAddress)"}}
	if err := s.api.GetJSON(ctx, "/about", query, &about); err != nil {
		return nil, err
	}
	return &about.User, nil
}

// List returns every non-trashed item directly inside folderID, following nextPageToken.
func (s *DriveService) List(ctx context.Context, folderID string) ([]models.RemoteItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if folderID == "" {
		return nil, fmt.Errorf("%w: folder id", shared.ErrMissingArgument)
	}

	var items []models.RemoteItem
	pageToken := ""

	for {
		query := url.Values{
			"q":        {fmt.Sprintf("'%s' in parents and trashed = false", folderID)},
			"fields":   {"nextPageToken, files(id, name, mimeType, size)"},
			"pageSize": {strconv.Itoa(drivePageSize)},
			"orderBy":  {"name"},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var page DriveFileList
		if err := s.api.GetJSON(ctx, "/files", query, &page); err != nil {
			return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
		}

		for _, f := range page.Files {
			items = append(items, f.RemoteItem())
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return items, nil
}

// Download opens the content of file id. Metadata supplies the name and, when known, the size.
func (s *DriveService) Download(ctx context.Context, id string) (*Download, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	path := "/files/" + url.PathEscape(id)

	var meta DriveFile
	if err := s.api.GetJSON(ctx, path, url.Values{"fields": {"id, name, size"}}, &meta); err != nil {
		return nil, fmt.Errorf("failed to get file %s: %w", id, err)
	}

	body, length, err := s.api.Stream(ctx, path, url.Values{"alt": {"media"}})
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", id, err)
	}

	size := meta.RemoteItem().Size
	if size <= 0 {
		size = length
	}

	return &Download{Name: meta.Name, Size: size, Body: body}, nil
}

// savingTokenSource persists each newly refreshed token.
type savingTokenSource struct {
	mu   sync.Mutex
	base oauth2.TokenSource
	last string
	save func(*oauth2.Token) error
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := s.save(token); err != nil {
			return nil, err
		}
	}
	return token, nil
}
