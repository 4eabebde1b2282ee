package drive

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drivev3 "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Scope is the only Drive permission requested: files created by this app.
const Scope = drivev3.DriveFileScope

// Provider is the OAuth authorization server.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error)
}

// Uploader stores a file in the user's cloud drive.
type Uploader interface {
	Upload(ctx context.Context, tok *oauth2.Token, name, mimeType string, content []byte) (UploadResult, error)
}

// UploadResult identifies the uploaded file.
type UploadResult struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Link   string `json:"link,omitempty"`
}

// GoogleProvider implements Provider with an oauth2.Config.
type GoogleProvider struct {
	cfg *oauth2.Config
}

func NewGoogleProvider(cfg *oauth2.Config) *GoogleProvider {
	return &GoogleProvider{cfg: cfg}
}

// GoogleProviderFromJSON builds a provider from a downloaded client secret file.
func GoogleProviderFromJSON(clientJSON []byte, redirectURL string) (*GoogleProvider, error) {
	cfg, err := google.ConfigFromJSON(clientJSON, Scope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client: %w", err)
	}
	if redirectURL != "" {
		cfg.RedirectURL = redirectURL
	}
	return NewGoogleProvider(cfg), nil
}

// AuthCodeURL requests offline access so a refresh token is issued.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.cfg.Exchange(ctx, code)
}

func (p *GoogleProvider) Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	return p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken}).Token()
}

// DriveUploader uploads through the Drive v3 API.
type DriveUploader struct {
	opts []option.ClientOption
}

// NewDriveUploader accepts extra client options such as a custom endpoint.
func NewDriveUploader(opts ...option.ClientOption) *DriveUploader {
	return &DriveUploader{opts: opts}
}

func (u *DriveUploader) Upload(ctx context.Context, tok *oauth2.Token, name, mimeType string, content []byte) (UploadResult, error) {
	opts := append([]option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(tok))}, u.opts...)
	svc, err := drivev3.NewService(ctx, opts...)
	if err != nil {
		return UploadResult{}, fmt.Errorf("create drive service: %w", err)
	}

	f, err := svc.Files.Create(&drivev3.File{Name: name, MimeType: mimeType}).
		Media(bytes.NewReader(content), googleapi.ContentType(mimeType)).
		Fields("id", "name", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{FileID: f.Id, Name: f.Name, Link: f.WebViewLink}, nil
}
