package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kursadbilgin/storybird/internal/domain"
	"github.com/kursadbilgin/storybird/internal/media"
	"github.com/kursadbilgin/storybird/internal/provider"
	"github.com/kursadbilgin/storybird/internal/queue"
)

type memoryStore struct {
	mu   sync.Mutex
	subs map[string]domain.Subscription

	listCalls    int
	listFn       func(ctx context.Context) error
	removeManyFn func(ctx context.Context, endpoints []string) error
}

func newMemoryStore(endpoints ...string) *memoryStore {
	s := &memoryStore{subs: make(map[string]domain.Subscription)}
	for _, endpoint := range endpoints {
		sub, err := domain.ParseSubscription([]byte(fmt.Sprintf(`{"endpoint":%q,"keys":{"p256dh":"p","auth":"a"}}`, endpoint)))
		if err != nil {
			panic(err)
		}
		s.subs[endpoint] = sub
	}
	return s
}

func (s *memoryStore) Add(ctx context.Context, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.Endpoint] = sub
	return nil
}

func (s *memoryStore) Remove(ctx context.Context, endpoint string) error {
	return s.RemoveMany(ctx, []string{endpoint})
}

func (s *memoryStore) RemoveMany(ctx context.Context, endpoints []string) error {
	if s.removeManyFn != nil {
		if err := s.removeManyFn(ctx, endpoints); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, endpoint := range endpoints {
		delete(s.subs, endpoint)
	}
	return nil
}

func (s *memoryStore) List(ctx context.Context) ([]domain.Subscription, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()

	if s.listFn != nil {
		if err := s.listFn(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out, nil
}

func (s *memoryStore) endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subs))
	for endpoint := range s.subs {
		out = append(out, endpoint)
	}
	sort.Strings(out)
	return out
}

type fakePusher struct {
	pushFn func(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error)
}

func (f *fakePusher) Push(ctx context.Context, sub domain.Subscription, message []byte) (*provider.ProviderResponse, error) {
	if f.pushFn == nil {
		return &provider.ProviderResponse{StatusCode: 201}, nil
	}
	return f.pushFn(ctx, sub, message)
}

type fakeRecorder struct {
	mu     sync.Mutex
	cycles []domain.DispatchCycle
	err    error
}

func (f *fakeRecorder) Record(ctx context.Context, c *domain.DispatchCycle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles = append(f.cycles, *c)
	return f.err
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.DispatchMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.DispatchMessage) error {
	if f.publishFn == nil {
		return nil
	}
	return f.publishFn(ctx, queueName, msg)
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn == nil {
		<-ctx.Done()
		return nil
	}
	return f.consumeFn(ctx, queueName, handler)
}

func (f *fakeConsumer) Close() error { return nil }

type fakeRunner struct {
	mu       sync.Mutex
	calls    []string
	payloads []domain.NotificationPayload
	report   domain.DispatchReport
}

func (f *fakeRunner) Dispatch(ctx context.Context, trigger string, payload domain.NotificationPayload) domain.DispatchReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trigger)
	f.payloads = append(f.payloads, payload)
	return f.report
}

type fakeLibrary struct {
	listFn          func(ctx context.Context, prefix string) ([]media.Resource, error)
	addTagFn        func(ctx context.Context, publicID, tag string) error
	removeTagFn     func(ctx context.Context, publicID, tag string) error
	updateContextFn func(ctx context.Context, publicID, title, description string) error
	renameFn        func(ctx context.Context, from, to string) error
	listCalls       int
}

func (f *fakeLibrary) ListVideos(ctx context.Context, prefix string) ([]media.Resource, error) {
	f.listCalls++
	if f.listFn == nil {
		return nil, nil
	}
	return f.listFn(ctx, prefix)
}

func (f *fakeLibrary) AddTag(ctx context.Context, publicID, tag string) error {
	if f.addTagFn == nil {
		return nil
	}
	return f.addTagFn(ctx, publicID, tag)
}

func (f *fakeLibrary) RemoveTag(ctx context.Context, publicID, tag string) error {
	if f.removeTagFn == nil {
		return nil
	}
	return f.removeTagFn(ctx, publicID, tag)
}

func (f *fakeLibrary) UpdateContext(ctx context.Context, publicID, title, description string) error {
	if f.updateContextFn == nil {
		return nil
	}
	return f.updateContextFn(ctx, publicID, title, description)
}

func (f *fakeLibrary) Rename(ctx context.Context, from, to string) error {
	if f.renameFn == nil {
		return nil
	}
	return f.renameFn(ctx, from, to)
}
