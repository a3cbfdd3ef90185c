package domain

import (
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	FavoriteTag = "favoris"
	TrashFolder = "corbeille"
)

// Video is a media item listed from the media host.
type Video struct {
	PublicID    string
	URL         string
	CreatedAt   time.Time
	IsFavorite  bool
	Title       *string
	Description *string
}

// Namespace is the media host folder owned by this deployment.
type Namespace struct {
	prefix string
}

// NewNamespace normalizes a folder prefix such as "storybird1/".
func NewNamespace(prefix string) (Namespace, error) {
	normalized := strings.TrimSuffix(strings.TrimSpace(prefix), "/")
	if normalized == "" {
		return Namespace{}, fmt.Errorf("%w: media prefix is required", ErrValidation)
	}
	return Namespace{prefix: normalized}, nil
}

func (n Namespace) Prefix() string { return n.prefix }

// ListPrefix is the prefix used when listing resources.
func (n Namespace) ListPrefix() string { return n.prefix + "/" }

// Owns reports whether publicID lives under the namespace.
func (n Namespace) Owns(publicID string) bool {
	if n.prefix == "" || publicID == "" {
		return false
	}
	return publicID == n.prefix || strings.HasPrefix(publicID, n.prefix+"/")
}

func (n Namespace) TrashPrefix() string {
	return n.prefix + "/" + TrashFolder + "/"
}

func (n Namespace) InTrash(publicID string) bool {
	return strings.HasPrefix(publicID, n.TrashPrefix())
}

// TrashID maps a public id to its location in the trash folder.
func (n Namespace) TrashID(publicID string) string {
	return n.TrashPrefix() + path.Base(publicID)
}
