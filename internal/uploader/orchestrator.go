// Package uploader moves files from a client into the object store and
// records them with the ingestion server. Bytes go straight to the store
// under a short-lived credential; the server only sees metadata.
package uploader

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mdshare/internal/cos"
	"mdshare/internal/domain"
)

const DefaultUploadTimeout = 2 * time.Minute

type Recorder interface {
	Record(ctx context.Context, req domain.RecordRequest) (*domain.RecordResult, error)
}

// Prober reports image dimensions when it can determine them.
type Prober func(mimeType string, data []byte) (width, height *int)

type Options struct {
	MaxSize       int64
	AllowedTypes  []string
	UploadTimeout time.Duration
	// Domain overrides the default object store domain in derived URLs.
	Domain string
	Prober Prober
	// OnProgress receives the percentage sent for a file.
	OnProgress func(name string, percent int)
}

func (o Options) withDefaults() Options {
	if o.MaxSize <= 0 {
		o.MaxSize = DefaultMaxSize
	}
	if len(o.AllowedTypes) == 0 {
		o.AllowedTypes = DefaultAllowedTypes
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = DefaultUploadTimeout
	}
	return o
}

type Result struct {
	Asset *domain.Asset
	URLs  domain.DerivedURLs
}

type Orchestrator struct {
	cache     *CredentialCache
	transport Transport
	recorder  Recorder
	opts      Options
	log       *zap.Logger
}

func NewOrchestrator(cache *CredentialCache, transport Transport, recorder Recorder, opts Options, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cache:     cache,
		transport: transport,
		recorder:  recorder,
		opts:      opts.withDefaults(),
		log:       log.Named("uploader"),
	}
}

// Upload validates f locally, stores it remotely and records it. Nothing is
// recorded unless the bytes were stored. A failed record leaves an orphaned
// object behind for the sweeper.
func (o *Orchestrator) Upload(ctx context.Context, f File, postID *string) (*Result, error) {
	if err := validate(f, o.opts.MaxSize, o.opts.AllowedTypes); err != nil {
		return nil, err
	}

	cred, err := o.cache.GetOrRefresh(ctx)
	if err != nil {
		return nil, err
	}

	filename := RandomFilename(f.Name)
	key := cred.PathPrefix + filename

	var width, height *int
	if o.opts.Prober != nil {
		width, height = o.opts.Prober(f.MIMEType, f.Data)
	}

	if err := o.put(ctx, cred, key, f); err != nil {
		return nil, err
	}

	res, err := o.recorder.Record(ctx, domain.RecordRequest{
		Filename:     filename,
		OriginalName: f.Name,
		StorageKey:   key,
		SizeBytes:    f.Size(),
		MIMEType:     f.MIMEType,
		Width:        width,
		Height:       height,
		PostID:       postID,
	})
	if err != nil {
		o.log.Warn("object stored but not recorded",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil, err
	}

	urls := cos.NewURLBuilder(cred.Bucket, cred.Region, o.opts.Domain).Derive(key)
	o.log.Debug("uploaded",
		zap.String("key", key),
		zap.Int64("size", f.Size()),
	)
	return &Result{Asset: res.File, URLs: urls}, nil
}

func (o *Orchestrator) put(ctx context.Context, cred *domain.UploadCredential, key string, f File) error {
	ctx, cancel := context.WithTimeout(ctx, o.opts.UploadTimeout)
	defer cancel()

	obj := Object{ContentType: f.MIMEType, Data: f.Data}
	if o.opts.OnProgress != nil {
		obj.Progress = func(sent, total int64) {
			percent := 100
			if total > 0 {
				percent = int(sent * 100 / total)
			}
			o.opts.OnProgress(f.Name, percent)
		}
	}

	err := o.transport.Put(ctx, cred, key, obj)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCredentialRejected) {
		o.cache.Invalidate()
	}
	if domain.ConfigError.Has(err) {
		return err
	}
	return domain.TransportError.Wrap(err)
}

// UploadMany uploads files in order and stops at the first failure,
// returning what completed before it.
func (o *Orchestrator) UploadMany(ctx context.Context, files []File, postID *string) ([]*Result, error) {
	results := make([]*Result, 0, len(files))
	for _, f := range files {
		res, err := o.Upload(ctx, f, postID)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
