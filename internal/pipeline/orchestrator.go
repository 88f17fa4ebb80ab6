package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"product-catalog-backend/internal/metrics"
	"product-catalog-backend/internal/models"
)

// priceGrace is how long a price lookup may run past PriceTimeout to hand
// back a partial result.
const priceGrace = time.Second

const multipartOverhead = 1 << 20

type Options struct {
	MaxUploadBytes int64
	MaxFiles       int
	// Timeout bounds storing and extraction of a whole batch. Extractions
	// still pending when it expires degrade to empty candidates.
	Timeout        time.Duration
	StoreTimeout   time.Duration
	ExtractTimeout time.Duration
	PriceTimeout   time.Duration
	Concurrency    int
	StoreRetries   int
	ExtractRetries int
	RetryBackoff   time.Duration
	KeyPrefix      string

	// OnStateChange is called on every state transition of a run.
	OnStateChange func(runID string, state State)
}

func DefaultOptions() Options {
	return Options{
		MaxUploadBytes: DefaultMaxUploadBytes,
		MaxFiles:       20,
		Timeout:        60 * time.Second,
		StoreTimeout:   30 * time.Second,
		ExtractTimeout: 30 * time.Second,
		PriceTimeout:   10 * time.Second,
		Concurrency:    4,
		StoreRetries:   1,
		ExtractRetries: 2,
		RetryBackoff:   time.Second,
		KeyPrefix:      "products",
	}
}

// Dependencies are the collaborators of an Orchestrator. Normalizer and
// Publisher are optional.
type Dependencies struct {
	Store      ImageStore
	Extractor  Extractor
	Prices     PriceSearcher
	Records    RecordStore
	Normalizer ImageNormalizer
	Publisher  EventPublisher
}

// Orchestrator runs upload batches through store, extract, merge, enrich and persist.
type Orchestrator struct {
	deps Dependencies
	opts Options
}

func New(deps Dependencies, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = def.MaxUploadBytes
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = def.MaxFiles
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = def.StoreTimeout
	}
	if opts.ExtractTimeout <= 0 {
		opts.ExtractTimeout = def.ExtractTimeout
	}
	if opts.PriceTimeout <= 0 {
		opts.PriceTimeout = def.PriceTimeout
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = def.Concurrency
	}
	if opts.StoreRetries < 0 {
		opts.StoreRetries = 0
	}
	if opts.ExtractRetries < 0 {
		opts.ExtractRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = def.KeyPrefix
	}

	return &Orchestrator{deps: deps, opts: opts}
}

// MaxUploadBytes is the per-file ceiling enforced by Validate.
func (o *Orchestrator) MaxUploadBytes() int64 {
	return o.opts.MaxUploadBytes
}

// MaxRequestBytes bounds a whole multipart request: a full batch of
// maximum-size files plus room for part headers and boundaries.
func (o *Orchestrator) MaxRequestBytes() int64 {
	return int64(o.opts.MaxFiles)*o.opts.MaxUploadBytes + multipartOverhead
}

func (o *Orchestrator) validate(images []models.UploadedImage) error {
	if len(images) > o.opts.MaxFiles {
		return &ValidationError{
			Field:  "images",
			Reason: fmt.Sprintf("%d files uploaded, limit is %d", len(images), o.opts.MaxFiles),
		}
	}
	return Validate(images, o.opts.MaxUploadBytes)
}

type slot struct {
	image     models.UploadedImage
	stored    *StoredImage
	storeErr  error
	takenAt   *time.Time
	candidate models.Candidate
}

type run struct {
	id      string
	state   State
	entered time.Time
	logger  *log.Entry
	notify  func(string, State)
}

func (o *Orchestrator) newRun() *run {
	id := uuid.NewString()
	r := &run{
		id:      id,
		state:   StateReceived,
		entered: time.Now(),
		logger:  log.WithFields(log.Fields{"component": "pipeline", "run_id": id}),
		notify:  o.opts.OnStateChange,
	}
	if r.notify != nil {
		r.notify(id, StateReceived)
	}
	return r
}

func (r *run) enter(next State) {
	metrics.StageDurationSeconds.WithLabelValues(r.state.String()).Observe(time.Since(r.entered).Seconds())
	r.logger.WithFields(log.Fields{"from": r.state.String(), "to": next.String()}).Debug("pipeline transition")
	r.state = next
	r.entered = time.Now()
	if r.notify != nil {
		r.notify(r.id, next)
	}
}

func (r *run) fail(err error) {
	r.logger.WithField("stage", r.state.String()).WithError(err).Error("pipeline failed")
	r.enter(StateFailed)
	metrics.PipelineRunsTotal.WithLabelValues("failed").Inc()
}

// Run turns one upload batch into a persisted product. Only validation
// errors, total storage failure and persistence failure are returned;
// every other failure degrades the result instead.
func (o *Orchestrator) Run(ctx context.Context, images []models.UploadedImage) (*models.Product, error) {
	r := o.newRun()

	if err := o.validate(images); err != nil {
		r.logger.WithError(err).Warn("rejecting upload batch")
		metrics.PipelineRunsTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}
	r.logger.WithField("images", len(images)).Info("upload batch received")

	batchCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	slots := make([]slot, len(images))
	for i, img := range images {
		img.Position = i
		slots[i].image = img
	}

	r.enter(StateStoring)
	if o.storeAll(batchCtx, r, slots) == 0 {
		err := &StorageError{
			Reason: StorageReasonOf(slots[0].storeErr),
			Err:    fmt.Errorf("all %d images failed to store: %w", len(slots), slots[0].storeErr),
		}
		r.fail(err)
		return nil, err
	}

	r.enter(StateExtracting)
	o.extractAll(batchCtx, r, slots)

	r.enter(StateMerging)
	candidates := make([]models.Candidate, 0, len(slots))
	for _, s := range slots {
		if s.stored != nil {
			candidates = append(candidates, s.candidate)
		}
	}
	fields := Merge(candidates)

	r.enter(StateEnriching)
	price := o.lookupPrice(ctx, r, fields)

	r.enter(StatePersisting)
	product := models.NewProduct(fields, price)
	productImages := imagesFromSlots(slots)
	for _, img := range productImages {
		product.ImagePaths = append(product.ImagePaths, img.ImagePath)
	}
	product.ImagePath = models.StringPtr(product.ImagePaths[0])

	saved, err := o.deps.Records.CreateProduct(ctx, product, productImages)
	if err != nil {
		perr := &PersistenceError{Err: err}
		r.fail(perr)
		o.discard(ctx, r, slots)
		return nil, perr
	}

	r.enter(StateDone)
	metrics.PipelineRunsTotal.WithLabelValues("done").Inc()
	r.logger.WithFields(log.Fields{
		"product_id": saved.ID,
		"images":     len(productImages),
		"category":   saved.Category,
	}).Info("product created")

	o.publish(ctx, r, saved)

	return saved, nil
}

// Attach stores additional images for an existing product without running
// extraction. Images that cannot be stored are reported and skipped.
func (o *Orchestrator) Attach(ctx context.Context, productID int64, images []models.UploadedImage) ([]models.ProductImage, []models.UploadErrorInfo, error) {
	r := o.newRun()
	if err := o.validate(images); err != nil {
		return nil, nil, err
	}

	batchCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	slots := make([]slot, len(images))
	for i, img := range images {
		img.Position = i
		slots[i].image = img
	}

	r.enter(StateStoring)
	stored := o.storeAll(batchCtx, r, slots)

	var dropped []models.UploadErrorInfo
	for _, s := range slots {
		if s.storeErr != nil {
			dropped = append(dropped, models.UploadErrorInfo{
				Filename: s.image.Filename,
				Error:    s.storeErr.Error(),
				Stage:    StateStoring.String(),
			})
		}
	}
	if stored == 0 {
		err := &StorageError{Reason: StorageReasonOf(slots[0].storeErr), Err: slots[0].storeErr}
		r.fail(err)
		return nil, dropped, err
	}

	r.enter(StatePersisting)
	added, err := o.deps.Records.AddImages(ctx, productID, imagesFromSlots(slots))
	if err != nil {
		perr := &PersistenceError{Err: err}
		r.fail(perr)
		o.discard(ctx, r, slots)
		return nil, dropped, perr
	}

	r.enter(StateDone)
	return added, dropped, nil
}

func (o *Orchestrator) storeAll(ctx context.Context, r *run, slots []slot) int {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)

	for i := range slots {
		s := &slots[i]
		g.Go(func() error {
			if o.deps.Normalizer != nil {
				s.image = o.deps.Normalizer.Convert(s.image)
			}
			key := o.objectKey(r.id, s.image)

			var ref StoredImage
			err := retryWithBackoff(gctx, o.opts.StoreRetries, o.opts.RetryBackoff, func() error {
				callCtx, cancel := context.WithTimeout(gctx, o.opts.StoreTimeout)
				defer cancel()

				stored, err := callWithContext(callCtx, func(c context.Context) (StoredImage, error) {
					return o.deps.Store.Store(c, key, s.image.Data, s.image.ContentType)
				})
				if err != nil {
					return err
				}
				ref = stored
				return nil
			}, func(err error, _ int) bool {
				return StorageReasonOf(err) != StorageInvalidPayload
			})

			if err != nil {
				reason := StorageReasonOf(err)
				s.storeErr = err
				metrics.StorageFailuresTotal.WithLabelValues(string(reason)).Inc()
				r.logger.WithFields(log.Fields{
					"position": s.image.Position,
					"filename": s.image.Filename,
					"reason":   reason,
				}).WithError(err).Warn("dropping image that could not be stored")
				return nil
			}

			s.stored = &ref
			if o.deps.Normalizer != nil {
				s.takenAt = o.deps.Normalizer.TakenAt(s.image.Data)
			}
			return nil
		})
	}
	_ = g.Wait()

	stored := 0
	for _, s := range slots {
		if s.stored != nil {
			stored++
		}
	}
	return stored
}

// extractAll fills each stored slot's candidate. Results are written by
// position, so merge order never depends on completion order.
func (o *Orchestrator) extractAll(ctx context.Context, r *run, slots []slot) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)

	for i := range slots {
		s := &slots[i]
		if s.stored == nil {
			continue
		}
		g.Go(func() error {
			img := s.image
			if o.deps.Normalizer != nil {
				img = o.deps.Normalizer.Normalize(img)
			}

			candidate, err := o.extract(gctx, img)
			if err != nil {
				reason := ExtractionReasonOf(err)
				if gctx.Err() != nil {
					reason = ExtractionTimeout
				}
				metrics.ExtractionTotal.WithLabelValues(string(reason)).Inc()
				r.logger.WithFields(log.Fields{
					"position": s.image.Position,
					"filename": s.image.Filename,
					"reason":   reason,
				}).WithError(err).Warn("extraction degraded to empty candidate")
				s.candidate = models.Candidate{}
				return nil
			}

			metrics.ExtractionTotal.WithLabelValues("ok").Inc()
			s.candidate = candidate
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) extract(ctx context.Context, img models.UploadedImage) (models.Candidate, error) {
	var candidate models.Candidate
	err := retryWithBackoff(ctx, o.opts.ExtractRetries, o.opts.RetryBackoff, func() error {
		callCtx, cancel := context.WithTimeout(ctx, o.opts.ExtractTimeout)
		defer cancel()

		c, err := callWithContext(callCtx, func(c context.Context) (models.Candidate, error) {
			return o.deps.Extractor.Extract(c, img)
		})
		if err != nil {
			var ee *ExtractionError
			if !errors.As(err, &ee) && callCtx.Err() != nil {
				err = &ExtractionError{Reason: ExtractionTimeout, Err: err}
			}
			return err
		}
		candidate = c
		return nil
	}, retryableExtraction)

	return candidate, err
}

// Rate limits and timeouts are retried. A malformed response gets one more
// attempt; an unavailable upstream gets none.
func retryableExtraction(err error, attempt int) bool {
	switch ExtractionReasonOf(err) {
	case ExtractionRateLimited, ExtractionTimeout:
		return true
	case ExtractionMalformed:
		return attempt == 0
	default:
		return false
	}
}

func (o *Orchestrator) lookupPrice(ctx context.Context, r *run, fields models.Candidate) models.PriceResult {
	placeholder := models.PriceResult{PriceInfo: models.PriceTBD}
	if o.deps.Prices == nil {
		return placeholder
	}

	callCtx, cancel := context.WithTimeout(ctx, o.opts.PriceTimeout)
	defer cancel()

	// Lookup keeps whatever it found before callCtx expired, so the wait
	// runs slightly past that deadline to collect it.
	waitCtx, waitCancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PriceTimeout+priceGrace)
	defer waitCancel()

	result, err := callWithContext(waitCtx, func(context.Context) (models.PriceResult, error) {
		return o.deps.Prices.Lookup(callCtx, deref(fields.ProductName), deref(fields.Manufacturer)), nil
	})
	if err != nil {
		r.logger.WithError(&PriceLookupError{Reason: PriceSearchUnavailable, Err: err}).Warn("price lookup abandoned")
		metrics.PriceLookupTotal.WithLabelValues(string(PriceSearchUnavailable)).Inc()
		return placeholder
	}
	if result.PriceInfo == "" {
		result.PriceInfo = models.PriceTBD
	}

	outcome := "found"
	if result.PriceInfo == models.PriceTBD {
		outcome = "placeholder"
	}
	metrics.PriceLookupTotal.WithLabelValues(outcome).Inc()

	return result
}

// discard removes stored objects after a failed write so they are not orphaned.
func (o *Orchestrator) discard(ctx context.Context, r *run, slots []slot) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.StoreTimeout)
	defer cancel()

	for _, s := range slots {
		if s.stored == nil {
			continue
		}
		if err := o.deps.Store.Delete(cleanupCtx, s.stored.Key); err != nil {
			r.logger.WithField("key", s.stored.Key).WithError(err).Warn("failed to remove stored image")
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, r *run, product *models.Product) {
	if o.deps.Publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := o.deps.Publisher.PublishProductCreated(pubCtx, product); err != nil {
		metrics.EventPublishErrorsTotal.Inc()
		r.logger.WithError(err).Warn("failed to publish product.created")
	}
}

func (o *Orchestrator) objectKey(runID string, img models.UploadedImage) string {
	ext := strings.ToLower(path.Ext(img.Filename))
	if ext == "" || len(ext) > 6 {
		ext = extensionFor(img.ContentType)
	}
	return fmt.Sprintf("%s/%s/%02d%s", o.opts.KeyPrefix, runID, img.Position, ext)
}

func extensionFor(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	default:
		return ".jpg"
	}
}

func imagesFromSlots(slots []slot) []models.ProductImage {
	var images []models.ProductImage
	for _, s := range slots {
		if s.stored == nil {
			continue
		}
		order := len(images)
		images = append(images, models.ProductImage{
			ImagePath:    s.stored.URL,
			StorageKey:   s.stored.Key,
			IsPrimary:    order == 0,
			DisplayOrder: order,
			TakenAt:      s.takenAt,
		})
	}
	return images
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
