package drive

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"voucherpipe/internal"
	"voucherpipe/internal/config"
)

var reFolderID = regexp.MustCompile(`folders/([A-Za-z0-9_-]+)`)

// ExtractFolderID accepts either a bare folder id or a Drive folder URL.
func ExtractFolderID(input string) string {
	if m := reFolderID.FindStringSubmatch(input); len(m) > 1 {
		return m[1]
	}
	return strings.TrimSpace(input)
}

type Connector struct {
	service *drive.Service
}

// NewConnector authenticates against the Drive API. Publicly shared folders
// only need an API key; a refresh token unlocks private folders.
func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	if cfg.DriveRefreshToken != "" {
		if err := cfg.Require("DRIVE_CLIENT_ID", cfg.DriveClientID); err != nil {
			return nil, err
		}
		if err := cfg.Require("DRIVE_CLIENT_SECRET", cfg.DriveClientSecret); err != nil {
			return nil, err
		}

		oauthCfg := &oauth2.Config{
			ClientID:     cfg.DriveClientID,
			ClientSecret: cfg.DriveClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  cfg.DriveRedirectURI,
			Scopes:       []string{drive.DriveReadonlyScope},
		}
		tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.DriveRefreshToken})
		svc, err := drive.NewService(ctx, option.WithTokenSource(tokenSource))
		if err != nil {
			return nil, err
		}
		return &Connector{service: svc}, nil
	}

	if err := cfg.Require("DRIVE_API_KEY", cfg.DriveAPIKey); err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, option.WithAPIKey(cfg.DriveAPIKey))
	if err != nil {
		return nil, err
	}
	return &Connector{service: svc}, nil
}

func (c *Connector) ListFolder(ctx context.Context, folderID string) ([]internal.RemoteFile, error) {
	query := fmt.Sprintf("'%s' in parents and mimeType = 'application/pdf' and trashed = false", folderID)

	out := make([]internal.RemoteFile, 0)
	pageToken := ""
	for {
		call := c.service.Files.List().
			Context(ctx).
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, size)").
			PageSize(100)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("list drive folder %s: %w", folderID, err)
		}

		for _, f := range resp.Files {
			out = append(out, internal.RemoteFile{
				ID:       f.Id,
				Name:     f.Name,
				MimeType: f.MimeType,
				Size:     f.Size,
			})
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Connector) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download drive file %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
