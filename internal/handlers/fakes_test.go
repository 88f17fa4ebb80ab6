package handlers_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"product-catalog-backend/internal/database"
	"product-catalog-backend/internal/handlers"
	"product-catalog-backend/internal/models"
)

// fakeStore is an in-memory ProductStore.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	products map[int64]*models.Product
	images   map[int64][]models.ProductImage
	filters  []database.ProductFilter
	failWith error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nextID:   1,
		products: make(map[int64]*models.Product),
		images:   make(map[int64][]models.ProductImage),
	}
}

func (s *fakeStore) seed(p models.Product, images ...models.ProductImage) int64 {
	saved, _ := s.CreateProduct(context.Background(), &p, images)
	return saved.ID
}

func (s *fakeStore) CreateProduct(_ context.Context, product *models.Product, images []models.ProductImage) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}

	saved := *product
	saved.ID = s.nextID
	s.nextID++
	for i := range images {
		images[i].ID = saved.ID*100 + int64(i)
		images[i].ProductID = saved.ID
	}
	s.products[saved.ID] = &saved
	s.images[saved.ID] = images
	out := saved
	return &out, nil
}

func (s *fakeStore) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *fakeStore) ListProducts(_ context.Context, filter database.ProductFilter) ([]models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.filters = append(s.filters, filter)

	var out []models.Product
	for _, p := range s.products {
		if filter.Category != nil && p.Category != *filter.Category {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *fakeStore) UpdateProduct(_ context.Context, product *models.Product) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[product.ID]; !ok {
		return nil, database.ErrNotFound
	}
	saved := *product
	s.products[product.ID] = &saved
	out := saved
	return &out, nil
}

func (s *fakeStore) DeleteProduct(_ context.Context, id int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return nil, database.ErrNotFound
	}
	var keys []string
	for _, img := range s.images[id] {
		keys = append(keys, img.StorageKey)
	}
	delete(s.products, id)
	delete(s.images, id)
	return keys, nil
}

func (s *fakeStore) ListImages(_ context.Context, productID int64) ([]models.ProductImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ProductImage{}, s.images[productID]...), nil
}

func (s *fakeStore) DeleteImage(_ context.Context, productID, imageID int64) (*models.ProductImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	images := s.images[productID]
	for i, img := range images {
		if img.ID == imageID {
			s.images[productID] = append(images[:i:i], images[i+1:]...)
			return &img, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) ReorderImages(_ context.Context, productID int64, imageIDs []int64) ([]models.ProductImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[int64]models.ProductImage)
	for _, img := range s.images[productID] {
		byID[img.ID] = img
	}
	if len(byID) == 0 {
		return nil, database.ErrNotFound
	}
	if len(imageIDs) != len(byID) {
		return nil, database.ErrImageSetMismatch
	}

	reordered := make([]models.ProductImage, 0, len(imageIDs))
	for i, id := range imageIDs {
		img, ok := byID[id]
		if !ok {
			return nil, database.ErrImageSetMismatch
		}
		img.DisplayOrder = i
		img.IsPrimary = i == 0
		reordered = append(reordered, img)
	}
	s.images[productID] = reordered
	return reordered, nil
}

type fakeObjects struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (o *fakeObjects) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deleted = append(o.deleted, key)
	return o.err
}

type fakePipeline struct {
	got        []models.UploadedImage
	productID  int64
	maxRequest int64
	run       func([]models.UploadedImage) (*models.Product, error)
	attach    func(int64, []models.UploadedImage) ([]models.ProductImage, []models.UploadErrorInfo, error)
}

func (p *fakePipeline) Run(_ context.Context, images []models.UploadedImage) (*models.Product, error) {
	p.got = images
	if p.run == nil {
		return nil, errors.New("unexpected run")
	}
	return p.run(images)
}

func (p *fakePipeline) Attach(_ context.Context, productID int64, images []models.UploadedImage) ([]models.ProductImage, []models.UploadErrorInfo, error) {
	p.got = images
	p.productID = productID
	if p.attach == nil {
		return nil, nil, errors.New("unexpected attach")
	}
	return p.attach(productID, images)
}

func (p *fakePipeline) MaxRequestBytes() int64 { return p.maxRequest }

type testServer struct {
	router   *gin.Engine
	store    *fakeStore
	objects  *fakeObjects
	pipeline *fakePipeline
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		router:   gin.New(),
		store:    newFakeStore(),
		objects:  &fakeObjects{},
		pipeline: &fakePipeline{},
	}
	handlers.RegisterRoutes(ts.router.Group("/api/v1"), handlers.Handlers{
		Upload:   handlers.NewUploadHandler(ts.pipeline),
		Products: handlers.NewProductsHandler(ts.store, ts.objects),
		Images:   handlers.NewImagesHandler(ts.store, ts.objects, ts.pipeline),
	})
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

type formFile struct {
	field    string
	filename string
	data     []byte
}

// multipartRequest builds a multipart/form-data request. CreateFormFile
// declares every part as application/octet-stream.
func multipartRequest(t *testing.T, method, target string, files ...formFile) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.filename)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
