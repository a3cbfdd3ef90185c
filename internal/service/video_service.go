package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/media"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	videoListCacheKey      = "videos"
	defaultVideoCacheTTL   = 30 * time.Second
	videoCacheCleanupEvery = 5 * time.Minute
)

// VideoLibrary is the media host port.
type VideoLibrary interface {
	ListVideos(ctx context.Context, prefix string) ([]media.Resource, error)
	AddTag(ctx context.Context, publicID, tag string) error
	RemoveTag(ctx context.Context, publicID, tag string) error
	UpdateContext(ctx context.Context, publicID, title, description string) error
	Rename(ctx context.Context, fromPublicID, toPublicID string) error
}

// VideoService lists and edits the videos of one namespace.
type VideoService struct {
	library   VideoLibrary
	namespace domain.Namespace
	cache     *cache.Cache
	logger    *zap.Logger
}

func NewVideoService(library VideoLibrary, namespace domain.Namespace, cacheTTL time.Duration, logger *zap.Logger) (*VideoService, error) {
	if library == nil {
		return nil, fmt.Errorf("video library is required")
	}
	if namespace.Prefix() == "" {
		return nil, fmt.Errorf("%w: namespace is required", domain.ErrValidation)
	}
	if cacheTTL <= 0 {
		cacheTTL = defaultVideoCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &VideoService{
		library:   library,
		namespace: namespace,
		cache:     cache.New(cacheTTL, videoCacheCleanupEvery),
		logger:    logger,
	}, nil
}

// List returns the videos outside the trash folder, newest first.
func (s *VideoService) List(ctx context.Context) ([]domain.Video, error) {
	if cached, ok := s.cache.Get(videoListCacheKey); ok {
		return cloneVideos(cached.([]domain.Video)), nil
	}

	resources, err := s.library.ListVideos(ctx, s.namespace.ListPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}

	videos := make([]domain.Video, 0, len(resources))
	for _, resource := range resources {
		if !s.namespace.Owns(resource.PublicID) || s.namespace.InTrash(resource.PublicID) {
			continue
		}
		videos = append(videos, videoFromResource(resource))
	}
	sort.SliceStable(videos, func(i, j int) bool {
		return videos[i].CreatedAt.After(videos[j].CreatedAt)
	})

	s.cache.SetDefault(videoListCacheKey, videos)
	return cloneVideos(videos), nil
}

// SetFavorite adds or removes the favourite tag.
func (s *VideoService) SetFavorite(ctx context.Context, publicID string, favorite bool) error {
	if err := s.checkOwnership(publicID); err != nil {
		return err
	}

	var err error
	if favorite {
		err = s.library.AddTag(ctx, publicID, domain.FavoriteTag)
	} else {
		err = s.library.RemoveTag(ctx, publicID, domain.FavoriteTag)
	}
	if err != nil {
		return s.mediaError("update favorite", publicID, err)
	}

	s.invalidate()
	return nil
}

// UpdateDetails sets title and description; empty strings clear them.
func (s *VideoService) UpdateDetails(ctx context.Context, publicID, title, description string) error {
	if err := s.checkOwnership(publicID); err != nil {
		return err
	}

	if err := s.library.UpdateContext(ctx, publicID, strings.TrimSpace(title), strings.TrimSpace(description)); err != nil {
		return s.mediaError("update details", publicID, err)
	}

	s.invalidate()
	return nil
}

// MoveToTrash renames the video into the trash folder and returns its new id.
func (s *VideoService) MoveToTrash(ctx context.Context, publicID string) (string, error) {
	if err := s.checkOwnership(publicID); err != nil {
		return "", err
	}
	if s.namespace.InTrash(publicID) {
		return "", fmt.Errorf("%w: video is already in the trash", domain.ErrValidation)
	}

	target := s.namespace.TrashID(publicID)
	if err := s.library.Rename(ctx, publicID, target); err != nil {
		return "", s.mediaError("move to trash", publicID, err)
	}

	s.invalidate()
	s.logger.Info("video moved to trash",
		zap.String("publicId", publicID),
		zap.String("target", target),
	)
	return target, nil
}

func (s *VideoService) checkOwnership(publicID string) error {
	if strings.TrimSpace(publicID) == "" {
		return fmt.Errorf("%w: public id is required", domain.ErrValidation)
	}
	if !s.namespace.Owns(publicID) {
		return fmt.Errorf("%w: video %q is outside %s", domain.ErrForbidden, publicID, s.namespace.Prefix())
	}
	return nil
}

func (s *VideoService) invalidate() {
	s.cache.Delete(videoListCacheKey)
}

func (s *VideoService) mediaError(operation, publicID string, err error) error {
	s.logger.Error("media host call failed",
		zap.String("operation", operation),
		zap.String("publicId", publicID),
		zap.Error(err),
	)
	if media.IsNotFound(err) {
		return fmt.Errorf("%w: video %q", domain.ErrNotFound, publicID)
	}
	return fmt.Errorf("failed to %s: %w", operation, err)
}

func videoFromResource(resource media.Resource) domain.Video {
	video := domain.Video{
		PublicID:   resource.PublicID,
		URL:        resource.SecureURL,
		CreatedAt:  resource.CreatedAt,
		IsFavorite: resource.HasTag(domain.FavoriteTag),
	}
	if title, ok := resource.ContextValue("title"); ok && title != "" {
		video.Title = &title
	}
	if description, ok := resource.ContextValue("description"); ok && description != "" {
		video.Description = &description
	}
	return video
}

func cloneVideos(videos []domain.Video) []domain.Video {
	out := make([]domain.Video, len(videos))
	copy(out, videos)
	return out
}
