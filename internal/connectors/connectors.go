package connectors

import (
	"context"

	"voucherpipe/internal"
)

type DriveConnector interface {
	ListFolder(ctx context.Context, folderID string) ([]internal.RemoteFile, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
}
