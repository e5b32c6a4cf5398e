package preview

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/docshelf/docshelf/internal/metrics"
)

// ObjectURLPrefix is where image objects are served from.
const ObjectURLPrefix = "/api/v1/objects/"

// ErrObjectNotFound is returned for unknown or revoked objects.
var ErrObjectNotFound = errors.New("object not found")

// Object is an in-memory blob with its MIME type.
type Object struct {
	ID          string
	Data        []byte
	MIME        string
	Orientation int
}

// ObjectStore holds image blobs behind revocable URLs.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string]*Object
}

// NewObjectStore creates an empty store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string]*Object)}
}

// Create stores a blob and returns it with a fresh id.
func (s *ObjectStore) Create(data []byte, mimeType string, orientation int) *Object {
	obj := &Object{ID: uuid.NewString(), Data: data, MIME: mimeType, Orientation: orientation}
	s.mu.Lock()
	s.objects[obj.ID] = obj
	n := len(s.objects)
	s.mu.Unlock()
	metrics.SetObjectsLive(n)
	return obj
}

// Get returns a live object.
func (s *ObjectStore) Get(id string) (*Object, error) {
	s.mu.RLock()
	obj, ok := s.objects[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}
	return obj, nil
}

// Revoke releases an object. Unknown ids are ignored.
func (s *ObjectStore) Revoke(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	delete(s.objects, id)
	n := len(s.objects)
	s.mu.Unlock()
	metrics.SetObjectsLive(n)
}

// Len returns the number of live objects.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// ObjectURL returns the URL an object is served at.
func ObjectURL(id string) string {
	return ObjectURLPrefix + id
}
