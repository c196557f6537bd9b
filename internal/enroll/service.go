package enroll

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/vision"
)

// Options wires a Service. Objects and Notifier are optional.
type Options struct {
	Store     storage.RecordStore
	Objects   storage.ObjectStore
	Readiness *vision.Readiness
	Matching  config.MatchingConfig
	Notifier  Notifier
	Gate      *Gate
}

// Service enrolls identities and verifies live captures against them.
type Service struct {
	store     storage.RecordStore
	objects   storage.ObjectStore
	readiness *vision.Readiness
	matcher   *biometric.Matcher
	cfg       config.MatchingConfig
	notifier  Notifier
	gate      *Gate
	now       func() time.Time
}

func NewService(opts Options) *Service {
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Gate == nil {
		opts.Gate = NewGate()
	}
	if opts.Readiness == nil {
		opts.Readiness = vision.Pending()
	}
	if opts.Matching.DescriptorLength <= 0 {
		opts.Matching.DescriptorLength = biometric.DefaultDescriptorLength
	}
	if opts.Matching.ThumbnailSize <= 0 {
		opts.Matching.ThumbnailSize = 128
	}
	if opts.Matching.ThumbnailQuality <= 0 {
		opts.Matching.ThumbnailQuality = 75
	}
	return &Service{
		store:     opts.Store,
		objects:   opts.Objects,
		readiness: opts.Readiness,
		matcher:   biometric.NewMatcher(opts.Matching.Threshold),
		cfg:       opts.Matching,
		notifier:  opts.Notifier,
		gate:      opts.Gate,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Threshold is the distance cut-off in use.
func (s *Service) Threshold() float64 { return s.matcher.Threshold }

// Ready reports whether the face models are loaded.
func (s *Service) Ready() bool { return s.readiness.Ready() }

type EnrollRequest struct {
	Session    string
	Identity   string
	FullName   string
	Phone      string
	Address    string
	EnrolledBy string
	Flags      models.RecordFlags
	Mode       models.EnrollMode
	Image      image.Image
}

type EnrollResult struct {
	Record       *models.EnrollmentRecord
	FaceDetected bool
}

// Enroll stores a record for req.Identity. An image without a detectable
// face is still enrolled, without a descriptor.
func (s *Service) Enroll(ctx context.Context, req EnrollRequest) (*EnrollResult, error) {
	release, err := s.gate.Acquire(req.Session)
	if err != nil {
		return nil, err
	}
	defer release()

	rec := &models.EnrollmentRecord{
		Identity:   req.Identity,
		FullName:   req.FullName,
		Phone:      req.Phone,
		Address:    req.Address,
		EnrolledBy: req.EnrolledBy,
		Flags:      req.Flags,
	}
	rec.Normalize()
	if err := rec.Validate(0); err != nil {
		return nil, err
	}
	if req.Image == nil {
		return nil, fmt.Errorf("%w: image is required", models.ErrInvalidRecord)
	}
	mode := req.Mode
	if mode == "" {
		mode = models.EnrollReplace
	}

	img := capture.Downscale(req.Image, s.cfg.EnrollWidth)
	face, err := s.detect(ctx, img)
	if err != nil {
		return nil, err
	}

	var box image.Rectangle
	if face != nil {
		rec.Descriptor = face.Descriptor
		box = face.Box
	}
	if err := rec.Validate(s.cfg.DescriptorLength); err != nil {
		slog.Error("descriptor from provider rejected", "identity", rec.Identity, "error", err)
		return nil, err
	}

	existing, err := s.store.Get(ctx, rec.Identity)
	if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		return nil, fmt.Errorf("load existing record: %w", err)
	}

	if s.objects != nil {
		thumb, err := capture.Thumbnail(img, box, s.cfg.ThumbnailSize, s.cfg.ThumbnailQuality)
		if err != nil {
			return nil, fmt.Errorf("build thumbnail: %w", err)
		}
		// Each enrollment gets its own key, so the stored record keeps a valid
		// thumbnail until the new record replaces it.
		key := storage.ThumbnailKey(rec.Identity, uuid.NewString())
		if err := s.objects.PutObject(ctx, key, thumb, "image/jpeg"); err != nil {
			return nil, fmt.Errorf("upload thumbnail: %w", err)
		}
		rec.ThumbnailKey = key
	}

	rec.EnrolledAt = s.now()
	stored := mode.Combine(existing, rec)
	if err := s.store.Put(ctx, stored); err != nil {
		s.deleteThumbnail(ctx, stored.Identity, stored.ThumbnailKey)
		return nil, fmt.Errorf("store record: %w", err)
	}
	if existing != nil && existing.ThumbnailKey != stored.ThumbnailKey {
		s.deleteThumbnail(ctx, existing.Identity, existing.ThumbnailKey)
	}

	faceLabel := "no"
	if face != nil {
		faceLabel = "yes"
	}
	observability.Enrollments.WithLabelValues(string(mode), faceLabel).Inc()
	slog.Info("record enrolled",
		"identity", stored.Identity,
		"mode", mode,
		"face_detected", face != nil,
		"replaced", existing != nil,
	)
	s.notify(ctx, models.Event{Type: models.EventEnrolled, Identity: stored.Identity, Timestamp: stored.EnrolledAt})

	return &EnrollResult{Record: stored, FaceDetected: face != nil}, nil
}

// Verify compares the face in img with the record enrolled under identity.
// Missing records, missing faces and records without a descriptor all yield
// an Undetermined outcome rather than an error.
func (s *Service) Verify(ctx context.Context, session, identity string, img image.Image) (*models.Outcome, error) {
	return s.verify(ctx, session, identity, img, nil)
}

func (s *Service) verify(ctx context.Context, session, identity string, img image.Image, taskID *uuid.UUID) (*models.Outcome, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", models.ErrInvalidRecord)
	}
	if img == nil {
		return nil, capture.ErrEmptyFrame
	}
	release, err := s.lock(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	out := s.newOutcome(models.TaskVerify, session, taskID)
	out.Claimed = identity

	rec, err := s.store.Get(ctx, identity)
	if errors.Is(err, storage.ErrRecordNotFound) {
		out.Reason = models.ReasonRecordNotFound
		return s.finish(ctx, out), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	out.FullName = rec.FullName

	face, err := s.detect(ctx, capture.Downscale(img, s.cfg.VerifyWidth))
	if err != nil {
		return nil, err
	}
	if face == nil {
		out.Reason = models.ReasonNoFaceDetected
		return s.finish(ctx, out), nil
	}
	if !rec.HasDescriptor() {
		out.Reason = models.ReasonNoStoredDescriptor
		return s.finish(ctx, out), nil
	}

	res, err := s.matcher.VerifyAgainst(face.Descriptor, rec.Descriptor)
	if err != nil {
		slog.Error("descriptor comparison failed", "identity", identity, "error", err)
		return nil, fmt.Errorf("verify %q: %w", identity, err)
	}
	res.Identity = identity
	out.Result = res
	return s.finish(ctx, out), nil
}

// Identify searches every enrolled record for the nearest descriptor.
func (s *Service) Identify(ctx context.Context, session string, img image.Image) (*models.Outcome, error) {
	return s.identify(ctx, session, img, nil)
}

func (s *Service) identify(ctx context.Context, session string, img image.Image, taskID *uuid.UUID) (*models.Outcome, error) {
	if img == nil {
		return nil, capture.ErrEmptyFrame
	}
	release, err := s.lock(ctx, session, taskID)
	if err != nil {
		return nil, err
	}
	defer release()

	out := s.newOutcome(models.TaskIdentify, session, taskID)

	face, err := s.detect(ctx, capture.Downscale(img, s.cfg.VerifyWidth))
	if err != nil {
		return nil, err
	}
	if face == nil {
		out.Reason = models.ReasonNoFaceDetected
		return s.finish(ctx, out), nil
	}

	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	observability.Records.Set(float64(len(records)))

	candidates := make([]biometric.Candidate, 0, len(records))
	for i := range records {
		candidates = append(candidates, records[i].Candidate())
	}
	res, err := s.matcher.IdentifyBest(face.Descriptor, candidates)
	if err != nil {
		slog.Error("descriptor comparison failed", "error", err)
		return nil, fmt.Errorf("identify: %w", err)
	}
	if !res.Determined() {
		out.Reason = models.ReasonNoCandidates
		return s.finish(ctx, out), nil
	}

	out.Result = res
	for i := range records {
		if records[i].Identity == res.Identity {
			out.FullName = records[i].FullName
			break
		}
	}
	return s.finish(ctx, out), nil
}

// Process runs a station capture task. The station id is the session key;
// overlapping tasks from one station run one after another.
func (s *Service) Process(ctx context.Context, task models.CaptureTask, img image.Image) (*models.Outcome, error) {
	id := task.ID
	switch task.Kind {
	case models.TaskVerify:
		return s.verify(ctx, task.StationID, task.Identity, img, &id)
	case models.TaskIdentify:
		return s.identify(ctx, task.StationID, img, &id)
	default:
		return nil, fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

func (s *Service) Get(ctx context.Context, identity string) (*models.EnrollmentRecord, error) {
	return s.store.Get(ctx, strings.TrimSpace(identity))
}

func (s *Service) List(ctx context.Context) ([]models.EnrollmentRecord, error) {
	records, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	observability.Records.Set(float64(len(records)))
	return records, nil
}

// Delete removes the record and its thumbnail.
func (s *Service) Delete(ctx context.Context, identity string) error {
	identity = strings.TrimSpace(identity)
	rec, err := s.store.Get(ctx, identity)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, identity); err != nil {
		return err
	}
	s.deleteThumbnail(ctx, identity, rec.ThumbnailKey)
	slog.Info("record deleted", "identity", identity)
	s.notify(ctx, models.Event{Type: models.EventDeleted, Identity: identity, Timestamp: s.now()})
	return nil
}

// Thumbnail returns the JPEG stored for identity.
func (s *Service) Thumbnail(ctx context.Context, identity string) ([]byte, error) {
	rec, err := s.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if s.objects == nil || rec.ThumbnailKey == "" {
		return nil, storage.ErrObjectNotFound
	}
	return s.objects.GetObject(ctx, rec.ThumbnailKey)
}

func (s *Service) detect(ctx context.Context, img image.Image) (*vision.Face, error) {
	provider, err := s.readiness.Provider()
	if err != nil {
		return nil, err
	}
	face, err := provider.DetectSingleFace(ctx, img)
	if errors.Is(err, vision.ErrNoFaceDetected) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("detect face: %w", err)
	}
	return face, nil
}

func (s *Service) deleteThumbnail(ctx context.Context, identity, key string) {
	if s.objects == nil || key == "" {
		return
	}
	if err := s.objects.DeleteObject(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		slog.Warn("delete thumbnail", "identity", identity, "key", key, "error", err)
	}
}

// lock reserves session. Queued tasks (those with a task id) wait for the
// session; interactive callers are turned away with ErrOperationInFlight.
func (s *Service) lock(ctx context.Context, session string, taskID *uuid.UUID) (func(), error) {
	if taskID != nil {
		return s.gate.Wait(ctx, session)
	}
	return s.gate.Acquire(session)
}

func (s *Service) newOutcome(kind models.TaskKind, session string, taskID *uuid.UUID) *models.Outcome {
	return &models.Outcome{
		ID:        uuid.New(),
		Kind:      kind,
		Session:   session,
		TaskID:    taskID,
		Result:    biometric.ComparisonResult{Decision: biometric.Undetermined},
		Timestamp: s.now(),
	}
}

func (s *Service) finish(ctx context.Context, out *models.Outcome) *models.Outcome {
	observability.Decisions.WithLabelValues(string(out.Kind), string(out.Result.Decision)).Inc()
	if out.Result.Determined() {
		observability.MatchDistance.WithLabelValues(string(out.Kind)).Observe(out.Result.Distance)
	}
	slog.Info("verification",
		"kind", out.Kind,
		"session", out.Session,
		"claimed", out.Claimed,
		"decision", out.Result.Decision,
		"distance", out.Result.Distance,
		"identity", out.Result.Identity,
		"reason", out.Reason,
	)
	s.notify(ctx, models.Event{
		Type:      models.EventVerification,
		Identity:  out.Result.Identity,
		Outcome:   out,
		Timestamp: out.Timestamp,
	})
	return out
}

func (s *Service) notify(ctx context.Context, ev models.Event) {
	if err := s.notifier.Notify(ctx, ev); err != nil {
		slog.Warn("publish event", "type", ev.Type, "identity", ev.Identity, "error", err)
	}
}
