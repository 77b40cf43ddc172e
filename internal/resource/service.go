package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lumenpress/lumenpress/internal/kv"
	log "github.com/sirupsen/logrus"
)

// Empty values returned when a resource was never written.
var (
	emptyList   = json.RawMessage(`[]`)
	emptyObject = json.RawMessage(`{}`)
)

// Service performs CRUD over resources stored in a kv.Store.
type Service struct {
	store     kv.Store         // Whole-value persistence.
	keyPrefix string           // Optional namespace prepended to store keys.
	now       func() time.Time // Clock used for createdAt/updatedAt.
}

// Option customizes a Service.
type Option func(*Service)

// WithKeyPrefix namespaces every store key, e.g. "blog:" → "blog:articles".
func WithKeyPrefix(prefix string) Option {
	return func(s *Service) { s.keyPrefix = strings.TrimSpace(prefix) }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service over store.
func NewService(store kv.Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve looks up an allow-listed resource by name.
func (s *Service) Resolve(name string) (Resource, error) {
	res, ok := Lookup(name)
	if !ok {
		return Resource{}, fmt.Errorf("%w: %s", ErrUnknownResource, name)
	}
	return res, nil
}

// Ping checks the underlying store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// List returns the whole stored value, or an empty list/object when absent.
func (s *Service) List(ctx context.Context, res Resource) (json.RawMessage, error) {
	raw, found, err := s.store.Get(ctx, s.key(res))
	if err != nil {
		return nil, fmt.Errorf("resource: load %s: %w", res.Name, err)
	}
	if !found || isJSONNull(raw) {
		return s.empty(res), nil
	}
	return raw, nil
}

// Get returns one item by id. Singletons ignore id and return the whole object.
func (s *Service) Get(ctx context.Context, res Resource, id string) (any, error) {
	if res.Kind == KindSingleton {
		if id != "" {
			log.Debugf("resource: id %q ignored for singleton %s", id, res.Name)
		}
		return s.loadSingleton(ctx, res)
	}

	items, err := s.loadList(ctx, res)
	if err != nil {
		return nil, err
	}
	idx := indexOf(items, id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, res.Name, id)
	}
	return items[idx], nil
}

// Create appends a new item with a server-assigned id and createdAt.
// For singletons the body replaces the whole object.
func (s *Service) Create(ctx context.Context, res Resource, body Item) (Item, error) {
	if res.Kind == KindSingleton {
		return s.replaceSingleton(ctx, res, body)
	}

	items, err := s.loadList(ctx, res)
	if err != nil {
		return nil, err
	}
	record := body.clone()
	record[FieldID] = nextID(items)
	record[FieldCreatedAt] = formatTimestamp(s.now())

	items = append(items, record)
	if errSave := s.save(ctx, res, items); errSave != nil {
		return nil, errSave
	}
	return record, nil
}

// Update merges patch onto the item with the given id and stamps updatedAt.
// For singletons the patch replaces the whole object.
func (s *Service) Update(ctx context.Context, res Resource, id string, patch Item) (Item, error) {
	if res.Kind == KindSingleton {
		return s.replaceSingleton(ctx, res, patch)
	}
	if id == "" {
		return nil, ErrMissingID
	}

	items, err := s.loadList(ctx, res)
	if err != nil {
		return nil, err
	}
	idx := indexOf(items, id)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, res.Name, id)
	}

	merged := items[idx].clone()
	for k, v := range patch {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		merged[k] = v
	}
	merged[FieldUpdatedAt] = formatTimestamp(s.now())
	items[idx] = merged

	if errSave := s.save(ctx, res, items); errSave != nil {
		return nil, errSave
	}
	return merged, nil
}

// Delete removes every item with the given id. Singletons cannot be deleted.
func (s *Service) Delete(ctx context.Context, res Resource, id string) error {
	if res.Kind == KindSingleton {
		return ErrSingletonDelete
	}
	if id == "" {
		return ErrMissingID
	}

	items, err := s.loadList(ctx, res)
	if err != nil {
		return err
	}
	kept := make([]Item, 0, len(items))
	for _, item := range items {
		if item.ID() == id {
			continue
		}
		kept = append(kept, item)
	}
	if len(kept) == len(items) {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, res.Name, id)
	}
	return s.save(ctx, res, kept)
}

// Replace overwrites the whole resource with a payload from DecodeBatch and
// returns the number of records written.
func (s *Service) Replace(ctx context.Context, res Resource, payload any) (int, error) {
	switch v := payload.(type) {
	case []Item:
		if res.Kind != KindList {
			return 0, fmt.Errorf("%w: %s expects an object", ErrInvalidBody, res.Name)
		}
		if err := s.save(ctx, res, v); err != nil {
			return 0, err
		}
		return len(v), nil
	case Item:
		if res.Kind != KindSingleton {
			return 0, fmt.Errorf("%w: %s expects an array", ErrInvalidBody, res.Name)
		}
		if err := s.save(ctx, res, v); err != nil {
			return 0, err
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: unsupported payload %T", ErrInvalidBody, payload)
	}
}

// replaceSingleton overwrites a singleton and returns the stored object.
func (s *Service) replaceSingleton(ctx context.Context, res Resource, body Item) (Item, error) {
	if body == nil {
		body = Item{}
	}
	if err := s.save(ctx, res, body); err != nil {
		return nil, err
	}
	return body, nil
}

// loadList decodes a list resource; an absent key is an empty list.
func (s *Service) loadList(ctx context.Context, res Resource) ([]Item, error) {
	raw, found, err := s.store.Get(ctx, s.key(res))
	if err != nil {
		return nil, fmt.Errorf("resource: load %s: %w", res.Name, err)
	}
	if !found || isJSONNull(raw) {
		return []Item{}, nil
	}
	var items []Item
	if errDecode := decodeStored(raw, &items); errDecode != nil {
		return nil, fmt.Errorf("resource: decode %s: stored value is not a list of objects: %w", res.Name, errDecode)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// loadSingleton decodes a singleton resource; an absent key is an empty object.
func (s *Service) loadSingleton(ctx context.Context, res Resource) (Item, error) {
	raw, found, err := s.store.Get(ctx, s.key(res))
	if err != nil {
		return nil, fmt.Errorf("resource: load %s: %w", res.Name, err)
	}
	if !found || isJSONNull(raw) {
		return Item{}, nil
	}
	var obj Item
	if errDecode := decodeStored(raw, &obj); errDecode != nil {
		return nil, fmt.Errorf("resource: decode %s: stored value is not an object: %w", res.Name, errDecode)
	}
	if obj == nil {
		obj = Item{}
	}
	return obj, nil
}

// save writes the whole resource value.
func (s *Service) save(ctx context.Context, res Resource, value any) error {
	raw, err := encode(value)
	if err != nil {
		return fmt.Errorf("resource: encode %s: %w", res.Name, err)
	}
	if errSet := s.store.Set(ctx, s.key(res), raw); errSet != nil {
		return fmt.Errorf("resource: save %s: %w", res.Name, errSet)
	}
	return nil
}

// key maps a resource to its store key.
func (s *Service) key(res Resource) string {
	return s.keyPrefix + res.Name
}

// empty returns the value reported for a never-written resource.
func (s *Service) empty(res Resource) json.RawMessage {
	if res.Kind == KindSingleton {
		return emptyObject
	}
	return emptyList
}

// indexOf returns the position of the first item whose id equals id, or -1.
func indexOf(items []Item, id string) int {
	for i, item := range items {
		if item.ID() == id {
			return i
		}
	}
	return -1
}

// decodeStored decodes a stored value keeping numbers exact.
func decodeStored(raw json.RawMessage, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
