package contributions

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"schedule-backend/internal/extraction"
	"schedule-backend/internal/locations"
	"schedule-backend/internal/queue"
	"schedule-backend/internal/routes"
	"schedule-backend/internal/shared/storage/object"
	"schedule-backend/internal/workerpool"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
	openErr error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Save(ctx context.Context, submitterID, fileName string, r io.Reader) (string, int64, string, error) {
	if s.saveErr != nil {
		return "", 0, "", s.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", err
	}
	key, err := object.NewKey(submitterID, fileName)
	if err != nil {
		return "", 0, "", err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return key, int64(len(data)), http.DetectContentType(data), nil
}

func (s *memStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, object.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) remove(key string) {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
}

type scriptedExtractor struct {
	mu       sync.Mutex
	result   extraction.Result
	err      error
	panicMsg string
	calls    int
	hints    []string
}

func (e *scriptedExtractor) Extract(ctx context.Context, image []byte, mimeType string) (extraction.Result, error) {
	e.mu.Lock()
	e.calls++
	hint, _ := extraction.HintFromContext(ctx)
	e.hints = append(e.hints, hint)
	res, err, panicMsg := e.result, e.err, e.panicMsg
	e.mu.Unlock()
	if panicMsg != "" {
		panic(panicMsg)
	}
	return res, err
}

func (e *scriptedExtractor) set(res extraction.Result, err error) {
	e.mu.Lock()
	e.result, e.err, e.panicMsg = res, err, ""
	e.mu.Unlock()
}

// fakeBackend lets tests drive a real extraction.Chain.
type fakeBackend struct {
	name   string
	result extraction.Result
	err    error
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Extract(ctx context.Context, image []byte, mimeType string) (extraction.Result, error) {
	return b.result, b.err
}

// manualScheduler records tasks and runs them when the test says so.
type manualScheduler struct {
	mu    sync.Mutex
	keys  []string
	tasks []workerpool.Task
	err   error
}

func (m *manualScheduler) Submit(key string, task workerpool.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.keys = append(m.keys, key)
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *manualScheduler) runAll(ctx context.Context) int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.tasks) == 0 {
			m.mu.Unlock()
			return ran
		}
		task := m.tasks[0]
		m.tasks = m.tasks[1:]
		m.mu.Unlock()
		task(ctx)
		ran++
	}
}

type recordingQueue struct {
	mu       sync.Mutex
	messages []queue.Message
}

func (q *recordingQueue) Send(ctx context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, msg)
	return nil
}

type testEnv struct {
	svc        *Service
	repo       *MemoryRepo
	candidates *routes.MemoryRepo
	store      *memStore
	extractor  *scriptedExtractor
	scheduler  *manualScheduler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	engine := routes.NewEngine(locations.NewResolver(locations.StaticRegistry{}, locations.Options{}))
	engine.Now = func() time.Time { return fixed }

	env := &testEnv{
		repo:       NewMemoryRepo(),
		candidates: routes.NewMemoryRepo(),
		store:      newMemStore(),
		extractor:  &scriptedExtractor{},
		scheduler:  &manualScheduler{},
	}
	env.svc = &Service{
		Repo:       env.repo,
		Candidates: env.candidates,
		Store:      env.store,
		Extractor:  env.extractor,
		Expander:   engine,
		Pool:       env.scheduler,
		Now:        func() time.Time { return fixed },
	}
	return env
}

func (e *testEnv) submit(t *testing.T, submitterID string) Contribution {
	t.Helper()
	c, err := e.svc.Submit(context.Background(), SubmitInput{
		SubmitterID: submitterID,
		FileName:    "board.png",
		MimeType:    "image/png",
		Size:        int64(len(pngHeader)),
		Body:        bytes.NewReader(pngHeader),
		Location:    "Chennai",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return c
}

func (e *testEnv) get(t *testing.T, id string) Contribution {
	t.Helper()
	c, err := e.repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return c
}

func chennaiCoimbatore(confidence float64) extraction.Result {
	return extraction.Result{
		Backend: "vision",
		Payload: extraction.FromBundles("Chennai", []extraction.Bundle{{
			Origin:         "Chennai",
			Destination:    "Coimbatore",
			RouteNumber:    "460",
			DepartureTimes: []string{"06:00", "14:00", "22:00"},
		}}),
		Confidence: confidence,
	}
}
