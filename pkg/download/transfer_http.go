package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skyforge/fitsflow/internal/logger"
)

// permanentError marks a failure that must not be retried (4xx other
// than 416/429).
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(format string, args ...any) error {
	return &permanentError{err: fmt.Errorf(format, args...)}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// newHTTPClient builds the transfer client. The connect timeout bounds
// dial, TLS, and response headers; body reads are bounded per chunk by a
// watchdog in the transfer loop.
func newHTTPClient(connectTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   connectTimeout,
			ResponseHeaderTimeout: connectTimeout,
			MaxIdleConns:          32,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// httpAttemptResult reports what a single attempt achieved.
type httpAttemptResult struct {
	// progressed is true when at least one chunk landed; it resets the
	// retry counter
	progressed bool

	// complete is true when the file is fully downloaded
	complete bool
}

// transferHTTP runs the retrying HTTP transfer for one file. onTotal is
// called when the total size is first learned; onChunk after every chunk
// append with the byte delta. Returns nil on completion, ErrCancelled on
// gate cancellation, a permanent or retry-exhausted error otherwise.
func (e *Engine) transferHTTP(ctx context.Context, gate *Gate, loc Locator, pf *partFile,
	onTotal func(int64), onChunk func(int64)) error {
	attempt := 1
	for {
		res, err := e.httpAttempt(ctx, gate, loc, pf, onTotal, onChunk)
		if err == nil {
			if res.complete {
				return nil
			}
			// Connection ended early without an error; treat as transient
			err = fmt.Errorf("connection closed before transfer completed")
		}
		if errors.Is(err, ErrCancelled) || isPermanent(err) {
			return err
		}

		// Any successful chunk resets the retry budget
		if res.progressed {
			attempt = 1
		}
		if attempt > e.cfg.MaxRetries {
			return fmt.Errorf("retries exhausted after %d attempts: %w", e.cfg.MaxRetries, err)
		}

		backoff := e.cfg.RetryBase * time.Duration(1<<(attempt-1))
		logger.WarnCtx(ctx, "transfer attempt failed, retrying",
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

// httpAttempt performs one request/stream cycle from the current resume
// offset.
func (e *Engine) httpAttempt(ctx context.Context, gate *Gate, loc Locator, pf *partFile,
	onTotal func(int64), onChunk func(int64)) (httpAttemptResult, error) {
	var res httpAttemptResult

	if err := gate.Wait(ctx); err != nil {
		return res, err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, loc.URL, nil)
	if err != nil {
		return res, permanent("failed to build request: %w", err)
	}
	offset := pf.Size()
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return res, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// The partial already covers the whole object
		res.complete = true
		return res, nil
	case resp.StatusCode == http.StatusOK && offset > 0:
		// Origin ignored the Range header; start over from zero
		logger.WarnCtx(ctx, "origin ignored range request, restarting file",
			logger.KeyRemote, loc.URL,
			logger.KeyOffset, offset)
		if err := pf.Truncate(); err != nil {
			return res, err
		}
		onChunk(-offset)
		offset = 0
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return res, fmt.Errorf("transient origin failure: %s", resp.Status)
	default:
		return res, permanent("origin rejected request: %s", resp.Status)
	}

	total := totalFromHeaders(resp, offset)
	if total > 0 {
		onTotal(total)
	}

	// The watchdog cancels the request if a chunk stalls past the read
	// timeout; each completed chunk rearms it.
	watchdog := time.AfterFunc(e.cfg.ReadTimeout, cancel)
	defer watchdog.Stop()

	buf := make([]byte, e.cfg.ChunkSize)
	for {
		n, readErr := io.ReadFull(resp.Body, buf)
		if n > 0 {
			// Suspend the watchdog at the gate so a long pause does not
			// count as a stalled read
			watchdog.Stop()
			if err := gate.Wait(ctx); err != nil {
				return res, err
			}
			if err := pf.Append(buf[:n]); err != nil {
				return res, err
			}
			res.progressed = true
			onChunk(int64(n))
			if e.metrics != nil {
				e.metrics.ChunkTransferred(int64(n))
			}
			watchdog.Reset(e.cfg.ReadTimeout)
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			if total > 0 && pf.Size() < total {
				return res, fmt.Errorf("short body: got %d of %d bytes", pf.Size(), total)
			}
			res.complete = true
			return res, nil
		}
		if readErr != nil {
			if reqCtx.Err() != nil && ctx.Err() == nil {
				return res, fmt.Errorf("read timed out after %s: %w", e.cfg.ReadTimeout, readErr)
			}
			return res, fmt.Errorf("read failed: %w", readErr)
		}
	}
}

// totalFromHeaders learns the object's total size from Content-Range
// (authoritative on 206) or Content-Length plus the resume offset.
func totalFromHeaders(resp *http.Response, offset int64) int64 {
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		// Format: bytes <start>-<end>/<total>
		if idx := strings.LastIndex(cr, "/"); idx >= 0 {
			if total, err := strconv.ParseInt(cr[idx+1:], 10, 64); err == nil {
				return total
			}
		}
	}
	if resp.ContentLength > 0 {
		if resp.StatusCode == http.StatusPartialContent {
			return offset + resp.ContentLength
		}
		return resp.ContentLength
	}
	return 0
}
