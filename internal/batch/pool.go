package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/karmi/pn-transcriptions/internal/common"
	"github.com/karmi/pn-transcriptions/internal/entity"
	"github.com/karmi/pn-transcriptions/internal/ledger"
	"github.com/karmi/pn-transcriptions/internal/objstore"
	"github.com/karmi/pn-transcriptions/internal/transcription"
)

// Pool runs the per-item transcription workflow over a fixed set of workers.
// Workers share nothing but the dispatch channel and the ledger's atomic
// operations.
type Pool struct {
	transcriber transcription.Transcriber
	store       objstore.Store // nil when no bucket items can occur
	ledger      ledger.Ledger
	logger      *slog.Logger

	workers      int
	pollInterval time.Duration
	itemTimeout  time.Duration
	presignTTL   time.Duration
	onItemDone   func(identifier string, elapsed time.Duration, err error)

	failOnce sync.Once
	failCh   chan struct{} // closed once the remote service rejects credentials
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func WithItemTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.itemTimeout = d
		}
	}
}

func WithPresignTTL(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.presignTTL = d
		}
	}
}

// WithOnItemDone installs a callback invoked after every item that reaches a
// terminal outcome, with a nil err for completions. Workers call it
// concurrently; abandoned items do not report.
func WithOnItemDone(f func(identifier string, elapsed time.Duration, err error)) Option {
	return func(p *Pool) {
		p.onItemDone = f
	}
}

func NewPool(t transcription.Transcriber, store objstore.Store, led ledger.Ledger, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		transcriber:  t,
		store:        store,
		ledger:       led,
		logger:       logger,
		workers:      5,
		pollInterval: 2 * time.Second,
		itemTimeout:  time.Hour,
		presignTTL:   time.Hour,
		failCh:       make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run dispatches items to the workers in enumeration order and blocks until
// every started item reached an outcome. It returns how many completed and
// how many failed; items never dispatched (cancellation, fail-fast) are in
// neither count and stay pending in the ledger.
func (p *Pool) Run(ctx context.Context, items []entity.WorkItem) (completed, failed int) {
	ch := make(chan entity.WorkItem)
	var wg sync.WaitGroup
	var completedN, failedN atomic.Int64

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.logger.Info("worker started", "worker_id", workerID)

			for item := range ch {
				select {
				case <-p.failCh:
					// Already-dispatched items are not started once
					// credentials are known to be bad.
					p.logger.Warn("item not started: authentication rejected", "identifier", item.Identifier)
					continue
				default:
				}

				started := time.Now()
				err := p.processItem(common.WithItemID(ctx, item.Identifier), item)
				elapsed := time.Since(started)
				switch {
				case err == nil:
					completedN.Add(1)
					p.logger.Info("item completed", "worker_id", workerID, "identifier", item.Identifier, "elapsed_ms", elapsed.Milliseconds())
					if p.onItemDone != nil {
						p.onItemDone(item.Identifier, elapsed, nil)
					}
				case errors.Is(err, context.Canceled):
					p.logger.Warn("item abandoned in flight", "worker_id", workerID, "identifier", item.Identifier)
				default:
					failedN.Add(1)
					p.logger.Error("item failed", "worker_id", workerID, "identifier", item.Identifier, "error", err)
					if p.onItemDone != nil {
						p.onItemDone(item.Identifier, elapsed, err)
					}
				}
			}

			p.logger.Info("worker stopped", "worker_id", workerID)
		}(i + 1)
	}

dispatch:
	for _, item := range items {
		select {
		case <-ctx.Done():
			p.logger.Warn("stopping dispatch: run cancelled", "identifier", item.Identifier)
			break dispatch
		case <-p.failCh:
			p.logger.Warn("stopping dispatch: authentication rejected", "identifier", item.Identifier)
			break dispatch
		case ch <- item:
		}
	}
	close(ch)
	wg.Wait()

	return int(completedN.Load()), int(failedN.Load())
}

// processItem walks one item through mark in_flight → resolve audio URL →
// submit → poll → persist outcome. Every failure is converted into ledger
// state here; only cancellation escapes without a terminal mark, leaving the
// entry in_flight for the next run.
func (p *Pool) processItem(ctx context.Context, item entity.WorkItem) error {
	id := item.Identifier

	if err := p.ledger.MarkInFlight(ctx, id); err != nil {
		p.logger.Error("ledger.write.error", "identifier", id, "error", err)
		p.markError(ctx, id, "", "ledger write failed: "+err.Error())
		return err
	}

	audioURL, err := p.resolveAudioURL(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		p.noteAuthFailure(err)
		p.markError(ctx, id, "", err.Error())
		return err
	}

	jobID, err := p.transcriber.Submit(ctx, audioURL)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		p.noteAuthFailure(err)
		p.markError(ctx, id, "", err.Error())
		return err
	}
	p.logger.Info("item submitted", "identifier", id, "job_id", jobID)

	return p.poll(ctx, id, jobID)
}

// poll watches the remote job until it terminates or the per-item wait is
// exhausted.
func (p *Pool) poll(ctx context.Context, id, jobID string) error {
	deadline := time.Now().Add(p.itemTimeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
		}

		st, err := p.transcriber.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			p.noteAuthFailure(err)
			p.markError(ctx, id, jobID, err.Error())
			return err
		}

		switch st.State {
		case transcription.StateCompleted:
			return p.persistCompleted(ctx, id, jobID)

		case transcription.StateError:
			msg := st.Error
			if msg == "" {
				msg = "transcription failed without detail"
			}
			p.markError(ctx, id, jobID, msg)
			return errors.New(msg)

		default:
			if time.Now().After(deadline) {
				msg := fmt.Sprintf("timed out after %s waiting for transcription", p.itemTimeout)
				p.markError(ctx, id, jobID, msg)
				return errors.New(msg)
			}
		}
	}
}

func (p *Pool) persistCompleted(ctx context.Context, id, jobID string) error {
	result, err := p.transcriber.Result(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		p.noteAuthFailure(err)
		p.markError(ctx, id, jobID, err.Error())
		return err
	}

	// Subtitle exports are best-effort: a completed transcript is not lost
	// because one rendering failed.
	artifacts := ledger.Artifacts{}
	if vtt, err := p.transcriber.Subtitles(ctx, jobID, transcription.SubtitleVTT); err == nil {
		artifacts.VTT = vtt
	} else {
		p.logger.Warn("transcribe.subtitles.skip", "identifier", id, "format", "vtt", "error", err)
	}
	if srt, err := p.transcriber.Subtitles(ctx, jobID, transcription.SubtitleSRT); err == nil {
		artifacts.SRT = srt
	} else {
		p.logger.Warn("transcribe.subtitles.skip", "identifier", id, "format", "srt", "error", err)
	}

	if err := p.ledger.MarkCompleted(ctx, id, jobID, result, artifacts); err != nil {
		// The remote transcript exists but the local record does not.
		p.logger.Error("ledger.write.error", "identifier", id, "job_id", jobID, "error", err)
		p.markError(ctx, id, jobID, "ledger write failed: "+err.Error())
		return err
	}
	return nil
}

// resolveAudioURL turns the item's audio reference into a URL the
// transcription service can fetch.
func (p *Pool) resolveAudioURL(ctx context.Context, item entity.WorkItem) (string, error) {
	switch item.Audio.Kind {
	case entity.RefURL:
		return item.Audio.URL, nil

	case entity.RefLocal:
		f, err := os.Open(item.Audio.Path)
		if err != nil {
			return "", fmt.Errorf("open audio file: %w", err)
		}
		defer f.Close()
		return p.transcriber.Upload(ctx, f)

	case entity.RefObject:
		if p.store == nil {
			return "", fmt.Errorf("no object store configured for %s", item.Identifier)
		}
		return p.store.PresignGet(ctx, item.Audio.Bucket, item.Audio.Key, p.presignTTL)

	default:
		return "", fmt.Errorf("unknown audio reference kind %q", item.Audio.Kind)
	}
}

func (p *Pool) markError(ctx context.Context, id, jobID, msg string) {
	if err := p.ledger.MarkError(ctx, id, jobID, msg); err != nil {
		p.logger.Error("ledger.write.error", "identifier", id, "error", err)
	}
}

func (p *Pool) noteAuthFailure(err error) {
	if !common.IsAuthError(err) {
		return
	}
	p.failOnce.Do(func() {
		p.logger.Error("authentication rejected, stopping new dispatch")
		close(p.failCh)
	})
}
