package contributions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"schedule-backend/internal/extraction"
	"schedule-backend/internal/queue"
	"schedule-backend/internal/routes"
	"schedule-backend/internal/shared/metrics"
	"schedule-backend/internal/shared/storage/object"
	"schedule-backend/internal/shared/telemetry"
	"schedule-backend/internal/workerpool"
)

const (
	DefaultAutoThreshold   = 0.6
	DefaultReviewThreshold = 0.3
)

// Extractor produces an extraction result from image bytes.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string) (extraction.Result, error)
}

// Expander turns bundles into route candidates.
type Expander interface {
	ExpandAll(ctx context.Context, contributionID string, bundles []extraction.Bundle, status routes.Status) routes.Expansion
}

// Scheduler runs processing tasks off the request path.
type Scheduler interface {
	Submit(key string, run workerpool.Task) error
}

// Service orchestrates contribution intake and processing.
type Service struct {
	Repo       Repo
	Candidates routes.Repo
	Store      object.ObjectStore
	Extractor  Extractor
	Expander   Expander
	// Pool runs processing in-process. Ignored when Queue is set.
	Pool Scheduler
	// Queue hands processing to an external worker.
	Queue queue.Client

	AutoThreshold   float64
	ReviewThreshold float64
	Now             func() time.Time

	bundlesSkipped atomic.Int64
}

// SubmitInput is one uploaded schedule image with its optional metadata.
type SubmitInput struct {
	SubmitterID string
	FileName    string
	MimeType    string
	Size        int64
	Body        io.Reader
	Description string
	Location    string
	RouteName   string
}

// Submit stores the image, records the contribution and schedules
// processing. Storage failures are recorded as UPLOAD_FAILED and returned
// without error; validation failures return ErrInvalidInput.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Contribution, error) {
	if strings.TrimSpace(in.SubmitterID) == "" {
		return Contribution{}, eris.Wrap(ErrInvalidInput, "submitter is required")
	}
	if in.Body == nil {
		return Contribution{}, eris.Wrap(ErrInvalidInput, "image is required")
	}
	if err := extraction.ValidateImage(in.MimeType, in.Size); err != nil {
		return Contribution{}, eris.Wrap(ErrInvalidInput, err.Error())
	}

	now := s.now()
	c := Contribution{
		ID:              uuid.NewString(),
		SubmitterID:     in.SubmitterID,
		FileName:        in.FileName,
		MimeType:        in.MimeType,
		SizeBytes:       in.Size,
		Description:     strings.TrimSpace(in.Description),
		LocationHint:    strings.TrimSpace(in.Location),
		RouteNameHint:   strings.TrimSpace(in.RouteName),
		AdditionalNotes: fmt.Sprintf("Original filename: %s, Size: %d bytes", in.FileName, in.Size),
		Attempts:        1,
		SubmittedAt:     now,
		UpdatedAt:       now,
	}
	if c.Description == "" {
		c.Description = defaultDescription
	}
	metrics.IncSubmitted()

	key, size, detected, err := s.Store.Save(ctx, in.SubmitterID, in.FileName, in.Body)
	if err != nil {
		c.Status = StatusUploadFailed
		c.ValidationMessage = truncate("Upload failed: " + sanitizeError(err))
		c.ProcessedAt = &now
		if createErr := s.Repo.Create(ctx, c); createErr != nil {
			return Contribution{}, createErr
		}
		metrics.IncFinished(string(c.Status))
		s.logStatus(ctx, c, "new->"+string(c.Status))
		return c, nil
	}
	c.ImageRef = key
	if size > 0 {
		c.SizeBytes = size
	}
	if strings.HasPrefix(detected, "image/") {
		c.MimeType = detected
	}
	c.Status = StatusProcessing
	c.ValidationMessage = msgQueued
	if err := s.Repo.Create(ctx, c); err != nil {
		return Contribution{}, err
	}
	s.logStatus(ctx, c, "new->"+string(c.Status))

	if err := s.dispatch(ctx, c, queue.KindProcess); err != nil {
		return s.rejectDispatch(ctx, c, err)
	}
	return c, nil
}

// Get returns a contribution by ID.
func (s *Service) Get(ctx context.Context, id string) (Contribution, error) {
	if strings.TrimSpace(id) == "" {
		return Contribution{}, eris.Wrap(ErrInvalidInput, "id is required")
	}
	return s.Repo.GetByID(ctx, id)
}

// List returns a submitter's contributions newest first.
func (s *Service) List(ctx context.Context, submitterID string, limit, offset int) ([]Contribution, error) {
	if strings.TrimSpace(submitterID) == "" {
		return nil, eris.Wrap(ErrInvalidInput, "submitter is required")
	}
	return s.Repo.ListBySubmitter(ctx, submitterID, limit, offset)
}

// ListCandidates returns the route candidates derived from a contribution.
func (s *Service) ListCandidates(ctx context.Context, id string) ([]routes.Candidate, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Candidates.ListByContribution(ctx, id)
}

// Process runs the pipeline for a PROCESSING contribution. Extraction and
// persistence problems end as PROCESSING_FAILED; the returned error only
// reports that the contribution could not be loaded or written.
func (s *Service) Process(ctx context.Context, id string) error {
	return s.run(ctx, id, queue.KindProcess)
}

// RunJob executes a scheduled task of the given kind.
func (s *Service) RunJob(ctx context.Context, id string, kind queue.Kind) error {
	if kind == queue.KindRetry {
		return s.RunRetry(ctx, id)
	}
	return s.Process(ctx, id)
}

func (s *Service) run(ctx context.Context, id string, kind queue.Kind) (err error) {
	if ctx.Err() != nil {
		return s.abandon(ctx, id)
	}
	c, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return s.abandon(ctx, id)
		}
		return err
	}
	if c.Status != StatusProcessing {
		telemetry.Info("contribution.skip", map[string]any{
			"request_id":      requestIDFromContext(ctx),
			"contribution_id": id,
			"status":          string(c.Status),
			"kind":            string(kind),
		})
		return nil
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = s.failContribution(ctx, c, eris.Errorf("panic: %v", r))
		}
		metrics.ObserveProcessing(time.Since(start))
	}()

	image, err := s.loadImage(ctx, c.ImageRef)
	if err != nil {
		if kind == queue.KindRetry && imageGone(err) {
			telemetry.Warn("contribution.retry_image_missing", map[string]any{
				"request_id":      requestIDFromContext(ctx),
				"contribution_id": c.ID,
				"error":           err.Error(),
			})
			return s.finish(ctx, c, Outcome{Status: StatusManualReview, Message: msgRetryNoImage})
		}
		return s.failContribution(ctx, c, eris.Wrap(err, "load image"))
	}

	res, err := s.Extractor.Extract(extraction.WithHint(ctx, hintFor(c)), image, c.MimeType)
	if err != nil {
		return s.failContribution(ctx, c, err)
	}
	out, err := s.classify(ctx, c, res)
	if err != nil {
		return s.failContribution(ctx, c, err)
	}
	return s.finish(ctx, c, out)
}

// classify maps confidence to an outcome, expanding and saving candidates
// for confident results.
func (s *Service) classify(ctx context.Context, c Contribution, res extraction.Result) (Outcome, error) {
	confidence := extraction.ClampConfidence(res.Confidence)
	out := Outcome{
		Backend:    res.Backend,
		Confidence: &confidence,
		Payload:    encodePayload(res),
	}
	auto, review := s.thresholds()

	if confidence >= auto {
		x := s.Expander.ExpandAll(ctx, c.ID, res.Payload.Bundles(), routes.StatusPendingReview)
		s.bundlesSkipped.Add(int64(x.SkippedTotal()))
		if len(x.Candidates) > 0 {
			if err := s.Candidates.InsertBatch(ctx, x.Candidates); err != nil {
				return Outcome{}, eris.Wrap(err, "save route candidates")
			}
			metrics.AddCandidates(len(x.Candidates))
			out.Status = StatusProcessed
			out.Message = successMessage(x.Candidates)
			return out, nil
		}
		telemetry.Info("contribution.no_candidates", map[string]any{
			"request_id":      requestIDFromContext(ctx),
			"contribution_id": c.ID,
			"bundles":         x.Expanded + x.SkippedTotal(),
			"skipped":         x.SkippedTotal(),
		})
	}

	if confidence >= review {
		out.Status = StatusManualReview
		out.Message = msgMediumConfidence
		return out, nil
	}
	out.Status = StatusLowConfidence
	out.Message = msgLowConfidence
	return out, nil
}

func (s *Service) finish(ctx context.Context, c Contribution, out Outcome) error {
	out.FinishedAt = s.now()
	if err := s.Repo.Finish(context.WithoutCancel(ctx), c.ID, out); err != nil {
		if errors.Is(err, ErrStaleTransition) {
			telemetry.Warn("contribution.stale_finish", map[string]any{
				"request_id":      requestIDFromContext(ctx),
				"contribution_id": c.ID,
				"status":          string(out.Status),
			})
			return nil
		}
		return err
	}
	metrics.IncFinished(string(out.Status))
	c.Status = out.Status
	s.logStatus(ctx, c, string(StatusProcessing)+"->"+string(out.Status))
	return nil
}

// abandon finishes a contribution whose task was cancelled before it could
// run, so it does not stay PROCESSING and can be retried.
func (s *Service) abandon(ctx context.Context, id string) error {
	c, err := s.Repo.GetByID(context.WithoutCancel(ctx), id)
	if err != nil {
		return err
	}
	if c.Status != StatusProcessing {
		return nil
	}
	telemetry.Warn("contribution.cancelled", map[string]any{
		"request_id":      requestIDFromContext(ctx),
		"contribution_id": id,
		"error":           context.Cause(ctx).Error(),
	})
	return s.finish(ctx, c, Outcome{Status: StatusFailed, Message: msgCancelled})
}

func (s *Service) failContribution(ctx context.Context, c Contribution, cause error) error {
	telemetry.Error("contribution.failed", map[string]any{
		"request_id":      requestIDFromContext(ctx),
		"contribution_id": c.ID,
		"error":           cause.Error(),
	})
	return s.finish(ctx, c, Outcome{
		Status:  StatusFailed,
		Message: truncate("Processing failed: " + sanitizeError(cause)),
	})
}

// dispatch hands processing to the queue when configured, else to the pool.
func (s *Service) dispatch(ctx context.Context, c Contribution, kind queue.Kind) error {
	requestID := requestIDFromContext(ctx)
	if s.Queue != nil {
		return s.Queue.Send(ctx, queue.Message{
			ContributionID: c.ID,
			RequestID:      requestID,
			EnqueuedAt:     s.now().Format(time.RFC3339),
			Version:        queue.MessageVersion,
			Kind:           kind,
		})
	}
	if s.Pool == nil {
		return ErrNoScheduler
	}
	id := c.ID
	return s.Pool.Submit(id+"#"+strconv.Itoa(c.Attempts), func(taskCtx context.Context) {
		if err := s.RunJob(withRequestID(taskCtx, requestID), id, kind); err != nil {
			telemetry.Error("contribution.job_failed", map[string]any{
				"request_id":      requestID,
				"contribution_id": id,
				"kind":            string(kind),
				"error":           err.Error(),
			})
		}
	})
}

// rejectDispatch closes out a contribution whose task could not be scheduled.
func (s *Service) rejectDispatch(ctx context.Context, c Contribution, cause error) (Contribution, error) {
	if err := s.failContribution(ctx, c, eris.Wrap(cause, "schedule processing")); err != nil {
		return Contribution{}, err
	}
	return s.Repo.GetByID(context.WithoutCancel(ctx), c.ID)
}

func (s *Service) loadImage(ctx context.Context, key string) ([]byte, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errNoStoredImage
	}
	body, err := s.Store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := io.ReadAll(io.LimitReader(body, extraction.MaxImageBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "read image")
	}
	if len(data) == 0 {
		return nil, eris.New("stored image is empty")
	}
	return data, nil
}

const maxMessageBytes = 500

var errNoStoredImage = eris.New("no stored image")

// imageGone reports whether the original upload no longer exists. Other
// store errors are treated as transient processing failures.
func imageGone(err error) bool {
	return errors.Is(err, errNoStoredImage) || errors.Is(err, object.ErrNotFound)
}

func (s *Service) logStatus(ctx context.Context, c Contribution, transition string) {
	telemetry.Info("contribution.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"submitter_id":      c.SubmitterID,
		"contribution_id":   c.ID,
		"status":            string(c.Status),
		"status_transition": transition,
	})
}

func (s *Service) thresholds() (auto, review float64) {
	auto, review = s.AutoThreshold, s.ReviewThreshold
	if auto <= 0 {
		auto = DefaultAutoThreshold
	}
	if review <= 0 {
		review = DefaultReviewThreshold
	}
	if review > auto {
		review = auto
	}
	return auto, review
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// hintFor joins the submitter's metadata into extraction context.
func hintFor(c Contribution) string {
	var parts []string
	if c.LocationHint != "" {
		parts = append(parts, "Location: "+c.LocationHint)
	}
	if c.RouteNameHint != "" {
		parts = append(parts, "Route: "+c.RouteNameHint)
	}
	if c.Description != "" && c.Description != defaultDescription {
		parts = append(parts, "Description: "+c.Description)
	}
	return strings.Join(parts, "\n")
}

func successMessage(candidates []routes.Candidate) string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return fmt.Sprintf("Successfully extracted %d route(s). Route IDs: %s", len(candidates), strings.Join(ids, ", "))
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	return strings.TrimSpace(msg)
}

// truncate caps msg at maxMessageBytes without splitting a UTF-8 sequence.
func truncate(msg string) string {
	if len(msg) <= maxMessageBytes {
		return msg
	}
	cut := maxMessageBytes
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
