package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/Lllllllleong/scanproof/internal/gcp"
	"github.com/Lllllllleong/scanproof/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memGateway is an in-memory Gateway. Listing is lexicographic like GCS
// unless listOrder is set.
type memGateway struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleted   []string
	listOrder []string
	failPut   error
}

func newMemGateway() *memGateway {
	return &memGateway{objects: make(map[string][]byte)}
}

func objKey(bucket, key string) string { return bucket + "/" + key }

func (g *memGateway) Put(_ context.Context, bucket, key string, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failPut != nil {
		return g.failPut
	}
	g.objects[objKey(bucket, key)] = append([]byte(nil), data...)
	return nil
}

func (g *memGateway) List(_ context.Context, bucket, prefix string) iter.Seq2[models.ObjectHandle, error] {
	return func(yield func(models.ObjectHandle, error) bool) {
		g.mu.Lock()
		var names []string
		if g.listOrder != nil {
			names = append(names, g.listOrder...)
		} else {
			for k := range g.objects {
				names = append(names, k)
			}
			sort.Strings(names)
		}
		var matched []models.ObjectHandle
		full := objKey(bucket, prefix)
		for _, k := range names {
			data, ok := g.objects[k]
			if !ok || len(k) < len(full) || k[:len(full)] != full {
				continue
			}
			matched = append(matched, models.ObjectHandle{Name: k[len(bucket)+1:], Size: int64(len(data))})
		}
		g.mu.Unlock()
		for _, h := range matched {
			if !yield(h, nil) {
				return
			}
		}
	}
}

func (g *memGateway) Get(_ context.Context, bucket, key string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.objects[objKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrObjectNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

func (g *memGateway) Delete(_ context.Context, bucket, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.objects, objKey(bucket, key))
	g.deleted = append(g.deleted, key)
	return nil
}

func (g *memGateway) has(bucket, key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.objects[objKey(bucket, key)]
	return ok
}

func (g *memGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.objects)
}

// fragmentJSON renders a Vision result file with one response per text.
func fragmentJSON(startPage int, texts ...string) []byte {
	out := `{"inputConfig":{"mimeType":"application/pdf"},"responses":[`
	for i, t := range texts {
		if i > 0 {
			out += ","
		}
		out += `{"fullTextAnnotation":{"text":` + strconv.Quote(t) + `},"context":{"uri":"gs://in/doc.pdf","pageNumber":` + strconv.Itoa(startPage+i) + `}}`
	}
	return []byte(out + `]}`)
}

// fakeOperation reports done after doneAfter polls.
type fakeOperation struct {
	name      string
	doneAfter int
	never     bool
	// hang blocks every poll until its context ends.
	hang      bool
	pollErr   error
	failErr   error
	onDone    func()
	polls     atomic.Int32
}

func (o *fakeOperation) Name() string { return o.name }

func (o *fakeOperation) Poll(ctx context.Context) (bool, error) {
	n := int(o.polls.Add(1))
	if o.hang {
		<-ctx.Done()
		return false, ctx.Err()
	}
	if o.never {
		return false, o.pollErr
	}
	if n < o.doneAfter {
		return false, o.pollErr
	}
	if o.failErr != nil {
		return true, o.failErr
	}
	if o.onDone != nil {
		o.onDone()
	}
	return true, nil
}

// fakeAnnotator returns canned sync pages and a scripted async operation.
type fakeAnnotator struct {
	pages     []models.OcrResultPage
	syncErr   error
	startErr  error
	op        *fakeOperation
	syncCalls atomic.Int32
	jobs      []*models.OcrJob
	// results is written under the job's destination prefix when the
	// operation completes.
	gateway *memGateway
	results map[string][]byte
	// partial is written as soon as the job is submitted.
	partial map[string][]byte
}

func (a *fakeAnnotator) DetectDocumentText(context.Context, []byte, models.MediaType) ([]models.OcrResultPage, error) {
	a.syncCalls.Add(1)
	return a.pages, a.syncErr
}

func (a *fakeAnnotator) StartFileAnnotation(_ context.Context, job *models.OcrJob) (gcp.Operation, error) {
	if a.startErr != nil {
		return nil, a.startErr
	}
	a.jobs = append(a.jobs, job)
	op := a.op
	if op == nil {
		op = &fakeOperation{doneAfter: 1}
	}
	op.name = "operations/" + job.ID
	for name, data := range a.partial {
		_ = a.gateway.Put(context.Background(), job.Bucket, job.DestinationPrefix+name, data)
	}
	if a.gateway != nil && op.onDone == nil {
		op.onDone = func() {
			for name, data := range a.results {
				_ = a.gateway.Put(context.Background(), job.Bucket, job.DestinationPrefix+name, data)
			}
		}
	}
	return op, nil
}

// fakeGenerator replays scripted replies. The last reply repeats.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   int
	prompts []gcp.Prompt
	block   chan struct{}
	waiting atomic.Int32
}

type fakeReply struct {
	text string
	err  error
}

func (g *fakeGenerator) Generate(ctx context.Context, p gcp.Prompt) (string, error) {
	if g.block != nil {
		g.waiting.Add(1)
		select {
		case <-g.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := min(g.calls, len(g.replies)-1)
	g.calls++
	g.prompts = append(g.prompts, p)
	r := g.replies[idx]
	return r.text, r.err
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// memDocumentStore is an in-memory DocumentStore.
type memDocumentStore struct {
	mu      sync.Mutex
	records map[string]models.DocumentRecord
	nextID  int
	failOn  string
}

func newMemDocumentStore() *memDocumentStore {
	return &memDocumentStore{records: make(map[string]models.DocumentRecord)}
}

func (s *memDocumentStore) FindByHash(_ context.Context, fileHash string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if r.FileHash == fileHash {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *memDocumentStore) Create(_ context.Context, rec models.DocumentRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("doc%03d", s.nextID)
	s.records[id] = rec
	return id, nil
}

func (s *memDocumentStore) UpdateStatus(_ context.Context, id, state, errDetails, textURI string, pageCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == s.failOn {
		return errors.New("update rejected")
	}
	r := s.records[id]
	r.Status = state
	if errDetails != "" {
		r.ErrorDetails = errDetails
	}
	if textURI != "" {
		r.TextURI = textURI
	}
	if pageCount > 0 {
		r.PageCount = pageCount
	}
	s.records[id] = r
	return nil
}
