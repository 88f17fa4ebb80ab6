package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-catalog-backend/internal/models"
	"product-catalog-backend/internal/pipeline"
)

// fakeStore fails keys ending in a registered suffix. With failTimes set for
// that suffix it fails only that many attempts and then succeeds.
type fakeStore struct {
	mu        sync.Mutex
	fail      map[string]error
	failTimes map[string]int
	attempts  map[string]int
	stored    []string
	deleted   []string
}

func (s *fakeStore) Store(_ context.Context, key string, _ []byte, _ string) (pipeline.StoredImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts == nil {
		s.attempts = make(map[string]int)
	}
	s.attempts[key]++
	for suffix, err := range s.fail {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		if limit, ok := s.failTimes[suffix]; !ok || s.attempts[key] <= limit {
			return pipeline.StoredImage{}, err
		}
	}
	s.stored = append(s.stored, key)
	return pipeline.StoredImage{Key: key, URL: "https://cdn.test/" + key}, nil
}

func (s *fakeStore) attemptsFor(suffix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, n := range s.attempts {
		if strings.HasSuffix(key, suffix) {
			return n
		}
	}
	return 0
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	return nil
}

type extractFunc func(ctx context.Context, attempt int) (models.Candidate, error)

type fakeExtractor struct {
	mu       sync.Mutex
	byName   map[string]extractFunc
	attempts map[string]int
}

func newFakeExtractor(byName map[string]extractFunc) *fakeExtractor {
	return &fakeExtractor{byName: byName, attempts: make(map[string]int)}
}

func (e *fakeExtractor) Extract(ctx context.Context, img models.UploadedImage) (models.Candidate, error) {
	e.mu.Lock()
	attempt := e.attempts[img.Filename]
	e.attempts[img.Filename]++
	fn := e.byName[img.Filename]
	e.mu.Unlock()

	if fn == nil {
		return models.Candidate{}, nil
	}
	return fn(ctx, attempt)
}

func (e *fakeExtractor) calls(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[name]
}

type fakePrices struct {
	result models.PriceResult
	query  []string
	lookup func(ctx context.Context) models.PriceResult
}

func (p *fakePrices) Lookup(ctx context.Context, name, manufacturer string) models.PriceResult {
	p.query = []string{name, manufacturer}
	if p.lookup != nil {
		return p.lookup(ctx)
	}
	return p.result
}

type fakeRecords struct {
	err     error
	created *models.Product
	images  []models.ProductImage
}

func (r *fakeRecords) CreateProduct(_ context.Context, p *models.Product, images []models.ProductImage) (*models.Product, error) {
	if r.err != nil {
		return nil, r.err
	}
	saved := *p
	saved.ID = 42
	r.created = &saved
	r.images = images
	return &saved, nil
}

func (r *fakeRecords) AddImages(_ context.Context, productID int64, images []models.ProductImage) ([]models.ProductImage, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]models.ProductImage, len(images))
	for i, img := range images {
		img.ID = int64(100 + i)
		img.ProductID = productID
		out[i] = img
	}
	r.images = append(r.images, out...)
	return out, nil
}

type fakePublisher struct {
	published []*models.Product
}

func (p *fakePublisher) PublishProductCreated(_ context.Context, product *models.Product) error {
	p.published = append(p.published, product)
	return nil
}

// heicToJPEG stands in for the imaging normalizer: it relabels HEIC uploads
// as JPEG and records what extraction was handed.
type heicToJPEG struct {
	mu        sync.Mutex
	extracted []string
}

func (n *heicToJPEG) Convert(img models.UploadedImage) models.UploadedImage {
	if img.ContentType != "image/heic" {
		return img
	}
	img.ContentType = "image/jpeg"
	img.Filename = strings.TrimSuffix(img.Filename, ".heic") + ".jpg"
	img.Data = []byte("converted-" + img.Filename)
	return img
}

func (n *heicToJPEG) Normalize(img models.UploadedImage) models.UploadedImage {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.extracted = append(n.extracted, img.ContentType)
	return img
}

func (n *heicToJPEG) TakenAt([]byte) *time.Time { return nil }

type stateRecorder struct {
	mu     sync.Mutex
	states []pipeline.State
}

func (s *stateRecorder) record(_ string, state pipeline.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
}

func (s *stateRecorder) last() pipeline.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[len(s.states)-1]
}

func jpeg(name string) models.UploadedImage {
	data := []byte("not-really-a-jpeg-" + name)
	return models.UploadedImage{Data: data, ContentType: "image/jpeg", Size: int64(len(data)), Filename: name}
}

type harness struct {
	store      *fakeStore
	extractor  *fakeExtractor
	prices     *fakePrices
	records    *fakeRecords
	publisher  *fakePublisher
	states     *stateRecorder
	normalizer pipeline.ImageNormalizer
}

func newHarness(byName map[string]extractFunc) *harness {
	return &harness{
		store:     &fakeStore{},
		extractor: newFakeExtractor(byName),
		prices:    &fakePrices{result: models.PriceResult{PriceInfo: models.PriceTBD}},
		records:   &fakeRecords{},
		publisher: &fakePublisher{},
		states:    &stateRecorder{},
	}
}

func (h *harness) orchestrator(mutate ...func(*pipeline.Options)) *pipeline.Orchestrator {
	opts := pipeline.DefaultOptions()
	opts.RetryBackoff = time.Millisecond
	opts.Timeout = 2 * time.Second
	opts.OnStateChange = h.states.record
	for _, m := range mutate {
		m(&opts)
	}
	return pipeline.New(pipeline.Dependencies{
		Store:      h.store,
		Extractor:  h.extractor,
		Prices:     h.prices,
		Records:    h.records,
		Publisher:  h.publisher,
		Normalizer: h.normalizer,
	}, opts)
}

func returns(c models.Candidate) extractFunc {
	return func(context.Context, int) (models.Candidate, error) { return c, nil }
}

func fails(reason pipeline.ExtractionReason) extractFunc {
	return func(context.Context, int) (models.Candidate, error) {
		return models.Candidate{}, &pipeline.ExtractionError{Reason: reason}
	}
}

func TestRun_ChocoBarScenario(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"front.jpg": returns(models.Candidate{ProductName: str("Choco Bar"), Category: cat(models.CategoryChocolate)}),
		"back.jpg": returns(models.Candidate{
			Ingredients: []string{"cocoa", "sugar"},
			Nutrition:   map[string]string{"energy": "200kcal"},
		}),
	})
	h.prices.result = models.PriceResult{PriceInfo: "¥150"}

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("front.jpg"), jpeg("back.jpg")})

	require.NoError(t, err)
	assert.Equal(t, "Choco Bar", *product.ProductName)
	assert.Equal(t, models.CategoryChocolate, product.Category)
	assert.Equal(t, []string{"cocoa", "sugar"}, product.Ingredients)
	assert.Equal(t, map[string]string{"energy": "200kcal"}, product.Nutrition)
	assert.Equal(t, "¥150", product.PriceInfo)
	assert.Len(t, product.ImagePaths, 2)
	assert.Equal(t, product.ImagePaths[0], *product.ImagePath)
	assert.Equal(t, []string{"Choco Bar", ""}, h.prices.query)
	assert.Equal(t, pipeline.StateDone, h.states.last())

	require.Len(t, h.records.images, 2)
	assert.True(t, h.records.images[0].IsPrimary)
	assert.False(t, h.records.images[1].IsPrimary)
	assert.Equal(t, 1, h.records.images[1].DisplayOrder)
	assert.Len(t, h.publisher.published, 1)
}

func TestRun_MergeOrderIgnoresCompletionOrder(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"slow.jpg": func(ctx context.Context, _ int) (models.Candidate, error) {
			time.Sleep(50 * time.Millisecond)
			return models.Candidate{ProductName: str("Primary Name")}, nil
		},
		"fast.jpg": returns(models.Candidate{ProductName: str("Secondary Name")}),
	})

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("slow.jpg"), jpeg("fast.jpg")})

	require.NoError(t, err)
	assert.Equal(t, "Primary Name", *product.ProductName)
	assert.Contains(t, product.ImagePaths[0], "/00.jpg")
}

func TestRun_CorruptResponseDoesNotSuppressOthers(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"a.jpg": returns(models.Candidate{ProductName: str("Gummy Bears")}),
		"b.jpg": fails(pipeline.ExtractionMalformed),
		"c.jpg": returns(models.Candidate{Ingredients: []string{"gelatin"}, Category: cat(models.CategoryGummy)}),
	})

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg"), jpeg("b.jpg"), jpeg("c.jpg")})

	require.NoError(t, err)
	assert.Equal(t, "Gummy Bears", *product.ProductName)
	assert.Equal(t, []string{"gelatin"}, product.Ingredients)
	assert.Equal(t, models.CategoryGummy, product.Category)
	assert.Len(t, product.ImagePaths, 3)
	assert.Equal(t, 2, h.extractor.calls("b.jpg"), "malformed responses get exactly one retry")
}

func TestRun_AllExtractionsFailStillPersists(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"a.jpg": fails(pipeline.ExtractionUnavailable),
		"b.jpg": fails(pipeline.ExtractionUnavailable),
	})

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg"), jpeg("b.jpg")})

	require.NoError(t, err)
	assert.Nil(t, product.ProductName)
	assert.Equal(t, models.CategoryOther, product.Category)
	assert.Len(t, product.ImagePaths, 2)
	assert.Equal(t, models.PriceTBD, product.PriceInfo)
	assert.Equal(t, 1, h.extractor.calls("a.jpg"), "unavailable upstream is not retried")
	assert.Equal(t, pipeline.StateDone, h.states.last())
}

func TestRun_RateLimitedIsRetried(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"a.jpg": func(_ context.Context, attempt int) (models.Candidate, error) {
			if attempt < 2 {
				return models.Candidate{}, &pipeline.ExtractionError{Reason: pipeline.ExtractionRateLimited}
			}
			return models.Candidate{ProductName: str("Third Time")}, nil
		},
	})

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg")})

	require.NoError(t, err)
	assert.Equal(t, "Third Time", *product.ProductName)
	assert.Equal(t, 3, h.extractor.calls("a.jpg"))
}

func TestRun_RetriesAreBounded(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"a.jpg": fails(pipeline.ExtractionRateLimited),
	})

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg")})

	require.NoError(t, err)
	assert.Nil(t, product.ProductName)
	assert.Equal(t, 3, h.extractor.calls("a.jpg"), "one call plus two retries")
}

func TestRun_PriceFailureKeepsDone(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"a.jpg": returns(models.Candidate{ProductName: str("Ramen")}),
	})
	h.prices.result = models.PriceResult{}

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg")})

	require.NoError(t, err)
	assert.Equal(t, models.PriceTBD, product.PriceInfo)
	assert.Nil(t, product.ProductURL)
	assert.Equal(t, pipeline.StateDone, h.states.last())
}

func TestRun_PartialStorageFailureDropsImage(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"a.jpg": returns(models.Candidate{ProductName: str("Kept")}),
	})
	h.store.fail = map[string]error{
		"/01.jpg": &pipeline.StorageError{Reason: pipeline.StorageInvalidPayload},
	}

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg"), jpeg("b.jpg"), jpeg("c.jpg")})

	require.NoError(t, err)
	assert.Len(t, product.ImagePaths, 2)
	assert.Equal(t, 0, h.extractor.calls("b.jpg"), "unstored images are not extracted")
	assert.Equal(t, 1, h.extractor.calls("c.jpg"))
}

func TestRun_TotalStorageFailureFails(t *testing.T) {
	h := newHarness(nil)
	quota := &pipeline.StorageError{Reason: pipeline.StorageQuotaExceeded}
	h.store.fail = map[string]error{"/00.jpg": quota, "/01.jpg": quota}

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg"), jpeg("b.jpg")})

	require.Error(t, err)
	assert.Nil(t, product)

	var storageErr *pipeline.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, pipeline.StorageQuotaExceeded, storageErr.Reason)
	assert.Nil(t, h.records.created)
	assert.Equal(t, 0, h.extractor.calls("a.jpg"))
	assert.Equal(t, pipeline.StateFailed, h.states.last())
}

func TestRun_PersistenceFailureFailsAndCleansUp(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"a.jpg": returns(models.Candidate{ProductName: str("Lost")}),
	})
	h.records.err = fmt.Errorf("connection reset")

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg"), jpeg("b.jpg")})

	require.Error(t, err)
	assert.Nil(t, product)

	var persistErr *pipeline.PersistenceError
	assert.True(t, errors.As(err, &persistErr))
	assert.ElementsMatch(t, h.store.stored, h.store.deleted)
	assert.Empty(t, h.publisher.published)
	assert.Equal(t, pipeline.StateFailed, h.states.last())
}

func TestRun_ValidationRejectsBeforeExternalCalls(t *testing.T) {
	tests := []struct {
		name   string
		images []models.UploadedImage
	}{
		{name: "empty batch", images: nil},
		{name: "not an image", images: []models.UploadedImage{{Data: []byte("%PDF"), ContentType: "application/pdf", Filename: "doc.pdf"}}},
		{name: "missing content type", images: []models.UploadedImage{{Data: []byte("x"), Filename: "x"}}},
		{name: "too large", images: []models.UploadedImage{jpeg("a.jpg"), {Data: make([]byte, 11<<20), ContentType: "image/png", Filename: "big.png"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(nil)
			_, err := h.orchestrator().Run(context.Background(), tt.images)

			var validationErr *pipeline.ValidationError
			require.True(t, errors.As(err, &validationErr), "got %v", err)
			assert.Empty(t, h.store.stored)
			assert.Nil(t, h.records.created)
		})
	}
}

func TestRun_BatchDeadlineDegradesPendingExtraction(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	h := newHarness(map[string]extractFunc{
		"a.jpg": returns(models.Candidate{ProductName: str("On Time")}),
		"b.jpg": func(context.Context, int) (models.Candidate, error) {
			<-release
			return models.Candidate{ProductName: str("Too Late")}, nil
		},
	})
	o := h.orchestrator(func(opts *pipeline.Options) {
		opts.Timeout = 100 * time.Millisecond
	})

	start := time.Now()
	product, err := o.Run(context.Background(), []models.UploadedImage{jpeg("a.jpg"), jpeg("b.jpg")})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, "On Time", *product.ProductName)
	assert.Len(t, product.ImagePaths, 2)
	assert.Equal(t, pipeline.StateDone, h.states.last())
}

func TestRun_StateSequence(t *testing.T) {
	h := newHarness(nil)

	_, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg")})
	require.NoError(t, err)

	assert.Equal(t, []pipeline.State{
		pipeline.StateReceived,
		pipeline.StateStoring,
		pipeline.StateExtracting,
		pipeline.StateMerging,
		pipeline.StateEnriching,
		pipeline.StatePersisting,
		pipeline.StateDone,
	}, h.states.states)
}

func TestAttach_StoresWithoutExtraction(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"extra.jpg": returns(models.Candidate{ProductName: str("ignored")}),
	})
	h.store.fail = map[string]error{"/01.png": &pipeline.StorageError{Reason: pipeline.StorageTransientIO}}

	bad := jpeg("broken.png")
	bad.ContentType = "image/png"
	added, dropped, err := h.orchestrator().Attach(context.Background(), 7, []models.UploadedImage{jpeg("extra.jpg"), bad})

	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, int64(7), added[0].ProductID)
	require.Len(t, dropped, 1)
	assert.Equal(t, "broken.png", dropped[0].Filename)
	assert.Equal(t, 0, h.extractor.calls("extra.jpg"))
}

func TestRun_PriceFoundBeforeDeadlineSurvivesStalledSupplement(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"a.jpg": returns(models.Candidate{ProductName: str("Choco Bar")}),
	})
	h.prices.lookup = func(ctx context.Context) models.PriceResult {
		// The primary price is in hand; the tax-excluded search stalls
		// until the lookup deadline.
		<-ctx.Done()
		return models.PriceResult{PriceInfo: "¥150", ProductURL: str("https://shop.example.jp/choco")}
	}
	o := h.orchestrator(func(opts *pipeline.Options) {
		opts.PriceTimeout = 200 * time.Millisecond
	})

	product, err := o.Run(context.Background(), []models.UploadedImage{jpeg("a.jpg")})

	require.NoError(t, err)
	assert.Equal(t, "¥150", product.PriceInfo)
	require.NotNil(t, product.ProductURL)
	assert.Equal(t, "https://shop.example.jp/choco", *product.ProductURL)
}

func TestRun_PriceLookupIgnoringDeadlineIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	h := newHarness(map[string]extractFunc{
		"a.jpg": returns(models.Candidate{ProductName: str("Choco Bar")}),
	})
	h.prices.lookup = func(context.Context) models.PriceResult {
		<-release
		return models.PriceResult{PriceInfo: "¥999"}
	}
	o := h.orchestrator(func(opts *pipeline.Options) {
		opts.PriceTimeout = 50 * time.Millisecond
	})

	start := time.Now()
	product, err := o.Run(context.Background(), []models.UploadedImage{jpeg("a.jpg")})

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, models.PriceTBD, product.PriceInfo)
	assert.Equal(t, pipeline.StateDone, h.states.last())
}

func TestRun_StorageRetriesByReason(t *testing.T) {
	tests := []struct {
		reason       pipeline.StorageReason
		wantAttempts int
	}{
		{pipeline.StorageTransientIO, 2},
		{pipeline.StorageQuotaExceeded, 2},
		{pipeline.StorageInvalidPayload, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			h := newHarness(nil)
			h.store.fail = map[string]error{"/01.jpg": &pipeline.StorageError{Reason: tt.reason}}

			product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg"), jpeg("b.jpg")})

			require.NoError(t, err)
			assert.Len(t, product.ImagePaths, 1)
			assert.Equal(t, tt.wantAttempts, h.store.attemptsFor("/01.jpg"))
			assert.Equal(t, 1, h.store.attemptsFor("/00.jpg"))
		})
	}
}

func TestRun_TransientStorageFailureThenSuccessKeepsImage(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"b.jpg": returns(models.Candidate{Ingredients: []string{"sugar"}}),
	})
	h.store.fail = map[string]error{"/01.jpg": &pipeline.StorageError{Reason: pipeline.StorageTransientIO}}
	h.store.failTimes = map[string]int{"/01.jpg": 1}

	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{jpeg("a.jpg"), jpeg("b.jpg")})

	require.NoError(t, err)
	assert.Len(t, product.ImagePaths, 2)
	assert.Contains(t, product.ImagePaths[1], "/01.jpg")
	assert.Equal(t, 2, h.store.attemptsFor("/01.jpg"))
	assert.Equal(t, 1, h.extractor.calls("b.jpg"))
	assert.Equal(t, []string{"sugar"}, product.Ingredients)
}

func TestRun_TooManyFilesRejected(t *testing.T) {
	h := newHarness(nil)
	o := h.orchestrator(func(opts *pipeline.Options) {
		opts.MaxFiles = 2
	})

	_, err := o.Run(context.Background(), []models.UploadedImage{jpeg("a.jpg"), jpeg("b.jpg"), jpeg("c.jpg")})

	var validationErr *pipeline.ValidationError
	require.True(t, errors.As(err, &validationErr), "got %v", err)
	assert.Empty(t, h.store.stored)
}

func TestMaxRequestBytes(t *testing.T) {
	o := newHarness(nil).orchestrator(func(opts *pipeline.Options) {
		opts.MaxFiles = 3
		opts.MaxUploadBytes = 1 << 20
	})

	assert.Equal(t, int64(3<<20+1<<20), o.MaxRequestBytes())
	assert.Greater(t, o.MaxRequestBytes(), int64(3)*o.MaxUploadBytes())
}

func TestRun_HEICConvertedBeforeStore(t *testing.T) {
	h := newHarness(map[string]extractFunc{
		"IMG_0001.jpg": returns(models.Candidate{ProductName: str("Converted")}),
	})
	normalizer := &heicToJPEG{}
	h.normalizer = normalizer

	heic := models.UploadedImage{Data: []byte("ftypheic"), ContentType: "image/heic", Size: 8, Filename: "IMG_0001.heic"}
	product, err := h.orchestrator().Run(context.Background(), []models.UploadedImage{heic, jpeg("b.jpg")})

	require.NoError(t, err)
	assert.Equal(t, "Converted", *product.ProductName)
	require.Len(t, h.store.stored, 2)
	for _, key := range h.store.stored {
		assert.False(t, strings.HasSuffix(key, ".heic"), key)
	}
	assert.True(t, strings.HasSuffix(product.ImagePaths[0], "/00.jpg"), product.ImagePaths[0])
	assert.Equal(t, []string{"image/jpeg", "image/jpeg"}, normalizer.extracted)
}
