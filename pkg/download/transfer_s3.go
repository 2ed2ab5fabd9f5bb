package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/skyforge/fitsflow/internal/logger"
)

// S3API is the slice of the AWS S3 client the engine needs to fetch
// source objects. Satisfied by *s3.Client and by in-memory test fakes.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// DefaultS3PartConcurrency is the ranged-GET fan-out per file.
const DefaultS3PartConcurrency = 4

// transferS3 downloads an S3-source object with ranged multipart GETs.
// S3 transfers never resume: any existing partial is discarded and the
// object restarts from zero. Chunks are fetched concurrently in bounded
// batches and appended strictly in offset order.
func (e *Engine) transferS3(ctx context.Context, gate *Gate, loc Locator, pf *partFile,
	onTotal func(int64), onChunk func(int64)) error {
	if e.s3 == nil {
		return permanent("no s3 source configured for %s", loc.String())
	}

	attempt := 1
	for {
		err := e.s3Attempt(ctx, gate, loc, pf, onTotal, onChunk)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCancelled) || isPermanent(err) {
			return err
		}
		if attempt > e.cfg.MaxRetries {
			return fmt.Errorf("retries exhausted after %d attempts: %w", e.cfg.MaxRetries, err)
		}

		backoff := e.cfg.RetryBase * time.Duration(1<<(attempt-1))
		logger.WarnCtx(ctx, "s3 transfer attempt failed, retrying",
			logger.KeyRemote, loc.String(),
			logger.KeyAttempt, attempt,
			logger.KeyMaxRetries, e.cfg.MaxRetries,
			"backoff", backoff.String(),
			logger.KeyError, err.Error())
		if e.metrics != nil {
			e.metrics.RetryScheduled(attempt)
		}
		attempt++

		select {
		case <-time.After(backoff):
		case <-gate.cancelCh:
			return ErrCancelled
		case <-ctx.Done():
			return ErrCancelled
		}
	}
}

// s3Attempt performs one full-object multipart download.
func (e *Engine) s3Attempt(ctx context.Context, gate *Gate, loc Locator, pf *partFile,
	onTotal func(int64), onChunk func(int64)) error {
	if err := gate.Wait(ctx); err != nil {
		return err
	}

	// Discard any partial from a previous attempt or interrupted run
	if pf.Size() > 0 {
		discarded := pf.Size()
		if err := pf.Truncate(); err != nil {
			return err
		}
		onChunk(-discarded)
	}

	head, err := e.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return fmt.Errorf("failed to head s3://%s/%s: %w", loc.Bucket, loc.Key, err)
	}
	total := aws.ToInt64(head.ContentLength)
	onTotal(total)

	if total == 0 {
		return nil
	}

	chunkSize := int64(e.cfg.ChunkSize)
	numChunks := (total + chunkSize - 1) / chunkSize
	concurrency := e.cfg.S3PartConcurrency
	if concurrency <= 0 {
		concurrency = DefaultS3PartConcurrency
	}

	// Fetch a batch of ranges concurrently, then append the batch in
	// offset order so the partial never has holes.
	for batchStart := int64(0); batchStart < numChunks; batchStart += int64(concurrency) {
		if err := gate.Wait(ctx); err != nil {
			return err
		}

		batchEnd := batchStart + int64(concurrency)
		if batchEnd > numChunks {
			batchEnd = numChunks
		}
		parts := make([][]byte, batchEnd-batchStart)

		var wg sync.WaitGroup
		errCh := make(chan error, len(parts))
		for i := batchStart; i < batchEnd; i++ {
			wg.Add(1)
			go func(idx int64) {
				defer wg.Done()

				start := idx * chunkSize
				end := start + chunkSize - 1
				if end >= total {
					end = total - 1
				}
				data, err := e.fetchRange(ctx, loc, start, end)
				if err != nil {
					errCh <- err
					return
				}
				parts[idx-batchStart] = data
			}(i)
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			return err
		}

		for _, data := range parts {
			if err := gate.Wait(ctx); err != nil {
				return err
			}
			if err := pf.Append(data); err != nil {
				return err
			}
			onChunk(int64(len(data)))
			if e.metrics != nil {
				e.metrics.ChunkTransferred(int64(len(data)))
			}
		}
	}

	if pf.Size() != total {
		return fmt.Errorf("incomplete s3 download: got %d of %d bytes", pf.Size(), total)
	}
	return nil
}

// fetchRange reads one byte range of the source object into memory.
func (e *Engine) fetchRange(ctx context.Context, loc Locator, start, end int64) ([]byte, error) {
	out, err := e.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch range %d-%d: %w", start, end, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read range %d-%d: %w", start, end, err)
	}
	return data, nil
}
