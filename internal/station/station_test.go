package station_test

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/facegate/internal/capture"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/station"
	"github.com/your-org/facegate/internal/storage"
)

type fakeCamera struct {
	src  capture.Source
	err  error
	stop int
}

func (c *fakeCamera) Start(ctx context.Context) (capture.Source, error) { return c.src, c.err }
func (c *fakeCamera) Stop() error {
	c.stop++
	return nil
}

type fakePublisher struct {
	mu    sync.Mutex
	tasks []models.CaptureTask
	err   error
}

func (p *fakePublisher) PublishCapture(ctx context.Context, task models.CaptureTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.tasks = append(p.tasks, task)
	return nil
}

func TestHandle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started station with a 1280x720 camera", t, func() {
		cam := &fakeCamera{src: capture.NewImageSource(image.NewRGBA(image.Rect(0, 0, 1280, 720)))}
		objects := storage.NewMemoryStore()
		pub := &fakePublisher{}
		st := station.New("lobby", cam, objects, pub, capture.StillOptions{TargetWidth: 480, ReadyTimeout: 100 * time.Millisecond})
		So(st.Start(ctx), ShouldBeNil)

		Convey("When a verify command arrives", func() {
			task, err := st.Handle(ctx, models.StationCommand{Kind: models.TaskVerify, Identity: "c-1"})
			So(err, ShouldBeNil)

			Convey("Then a downscaled frame is uploaded and the task queued", func() {
				So(task.Width, ShouldEqual, 480)
				So(task.Height, ShouldEqual, 270)
				So(task.StationID, ShouldEqual, "lobby")
				So(task.Identity, ShouldEqual, "c-1")

				data, err := objects.GetObject(ctx, task.FrameRef)
				So(err, ShouldBeNil)
				img, err := capture.Decode(data)
				So(err, ShouldBeNil)
				So(img.Bounds().Dx(), ShouldEqual, 480)

				So(pub.tasks, ShouldHaveLength, 1)
				So(pub.tasks[0].ID, ShouldEqual, task.ID)
			})
		})

		Convey("When a verify command has no identity", func() {
			_, err := st.Handle(ctx, models.StationCommand{Kind: models.TaskVerify})

			Convey("Then nothing is captured", func() {
				So(err, ShouldNotBeNil)
				So(pub.tasks, ShouldBeEmpty)
			})
		})

		Convey("When publishing fails", func() {
			pub.err = errors.New("nats down")
			_, err := st.Handle(ctx, models.StationCommand{Kind: models.TaskIdentify})

			Convey("Then the error is returned", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When the station is stopped", func() {
			So(st.Stop(), ShouldBeNil)
			_, err := st.Handle(ctx, models.StationCommand{Kind: models.TaskIdentify})

			Convey("Then captures fail with camera unavailable", func() {
				So(errors.Is(err, capture.ErrCameraUnavailable), ShouldBeTrue)
				So(cam.stop, ShouldEqual, 1)
			})
		})
	})

	Convey("Given a camera that never reports dimensions", t, func() {
		cam := &fakeCamera{src: capture.NewImageSource(image.NewRGBA(image.Rect(0, 0, 0, 0)))}
		st := station.New("lobby", cam, storage.NewMemoryStore(), &fakePublisher{}, capture.StillOptions{ReadyTimeout: 50 * time.Millisecond})
		So(st.Start(ctx), ShouldBeNil)

		Convey("Then the capture reports an empty frame after the wait", func() {
			_, err := st.Handle(ctx, models.StationCommand{Kind: models.TaskIdentify})
			So(errors.Is(err, capture.ErrEmptyFrame), ShouldBeTrue)
		})
	})
}

func TestPrune(t *testing.T) {
	ctx := context.Background()

	Convey("Given five captures for a station and one for another", t, func() {
		objects := storage.NewMemoryStore()
		base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		var keys []string
		for i := 0; i < 5; i++ {
			key := storage.CaptureKey("lobby", station.CaptureName(base.Add(time.Duration(i)*time.Second), uuid.New()))
			keys = append(keys, key)
			So(objects.PutObject(ctx, key, []byte{1}, "image/jpeg"), ShouldBeNil)
		}
		other := storage.CaptureKey("dock", station.CaptureName(base, uuid.New()))
		So(objects.PutObject(ctx, other, []byte{1}, "image/jpeg"), ShouldBeNil)

		st := station.New("lobby", &fakeCamera{}, objects, &fakePublisher{}, capture.StillOptions{})

		Convey("When pruning to two", func() {
			deleted, err := st.Prune(ctx, objects, 2)
			So(err, ShouldBeNil)

			Convey("Then only the two newest remain", func() {
				So(deleted, ShouldEqual, 3)
				remaining, _ := objects.ListObjects(ctx, storage.CapturePrefix("lobby"))
				So(remaining, ShouldResemble, keys[3:])
				_, err := objects.GetObject(ctx, other)
				So(err, ShouldBeNil)
			})
		})

		Convey("Then a zero retention keeps everything", func() {
			deleted, err := st.Prune(ctx, objects, 0)
			So(err, ShouldBeNil)
			So(deleted, ShouldEqual, 0)
		})
	})
}
