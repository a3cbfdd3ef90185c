package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kursadbilgin/storybird/internal/domain"
)

// FileSubscriptionStore keeps subscriptions as a JSON array in a single file.
// Every mutation rewrites the file through a temp file and a rename.
type FileSubscriptionStore struct {
	path string
	mu   sync.Mutex
}

func NewFileSubscriptionStore(path string) (*FileSubscriptionStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: subscription file path is required", domain.ErrValidation)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create subscription dir: %v", domain.ErrStorage, err)
	}
	return &FileSubscriptionStore{path: path}, nil
}

func (s *FileSubscriptionStore) Add(_ context.Context, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.read()
	if err != nil {
		return err
	}

	replaced := false
	for i := range subs {
		if subs[i].Endpoint == sub.Endpoint {
			subs[i] = sub
			replaced = true
			break
		}
	}
	if !replaced {
		subs = append(subs, sub)
	}

	return s.write(subs)
}

func (s *FileSubscriptionStore) Remove(ctx context.Context, endpoint string) error {
	return s.RemoveMany(ctx, []string{endpoint})
}

func (s *FileSubscriptionStore) RemoveMany(_ context.Context, endpoints []string) error {
	if len(endpoints) == 0 {
		return nil
	}

	drop := make(map[string]struct{}, len(endpoints))
	for _, endpoint := range endpoints {
		drop[endpoint] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subs, err := s.read()
	if err != nil {
		return err
	}

	kept := subs[:0]
	for _, sub := range subs {
		if _, ok := drop[sub.Endpoint]; ok {
			continue
		}
		kept = append(kept, sub)
	}
	if len(kept) == len(subs) {
		return nil
	}

	return s.write(kept)
}

func (s *FileSubscriptionStore) List(_ context.Context) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read()
}

func (s *FileSubscriptionStore) read() ([]domain.Subscription, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.Subscription{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read subscriptions: %v", domain.ErrStorage, err)
	}
	if len(data) == 0 {
		return []domain.Subscription{}, nil
	}

	var blobs []json.RawMessage
	if err := json.Unmarshal(data, &blobs); err != nil {
		return nil, fmt.Errorf("%w: decode subscriptions: %v", domain.ErrStorage, err)
	}
	return decodeSubscriptions(blobs), nil
}

func (s *FileSubscriptionStore) write(subs []domain.Subscription) error {
	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode subscriptions: %v", domain.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".subscriptions-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrStorage, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write subscriptions: %v", domain.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: sync subscriptions: %v", domain.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close subscriptions: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: replace subscriptions: %v", domain.ErrStorage, err)
	}
	return nil
}
