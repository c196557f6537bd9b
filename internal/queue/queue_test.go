package queue

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/models"
)

func TestSubjects(t *testing.T) {
	if got := CaptureSubject("lobby"); got != "captures.lobby" {
		t.Errorf("CaptureSubject = %q", got)
	}
	if got := EventSubject(models.EventVerification); got != "events.verification" {
		t.Errorf("EventSubject = %q", got)
	}
	if got := ControlSubject("lobby"); got != "station.lobby.control" {
		t.Errorf("ControlSubject = %q", got)
	}
}

func TestStreamConfigs(t *testing.T) {
	cfgs := StreamConfigs()
	byName := map[string]jetstream.StreamConfig{}
	for _, c := range cfgs {
		byName[c.Name] = c
	}

	captures, ok := byName[CapturesStreamName]
	if !ok {
		t.Fatal("missing captures stream")
	}
	if captures.Retention != jetstream.WorkQueuePolicy {
		t.Errorf("captures retention = %v, want work queue", captures.Retention)
	}
	if !strings.HasPrefix(CaptureSubject("x"), strings.TrimSuffix(captures.Subjects[0], ">")) {
		t.Errorf("capture subject not covered by %v", captures.Subjects)
	}

	events, ok := byName[EventsStreamName]
	if !ok {
		t.Fatal("missing events stream")
	}
	if events.Retention != jetstream.InterestPolicy {
		t.Errorf("events retention = %v, want interest", events.Retention)
	}
}

func TestDecodeCapture(t *testing.T) {
	valid := models.CaptureTask{
		ID:         uuid.New(),
		StationID:  "lobby",
		Kind:       models.TaskVerify,
		Identity:   "c-1",
		FrameRef:   "captures/lobby/x.jpg",
		CapturedAt: time.Now().UTC(),
	}
	encode := func(task models.CaptureTask) []byte {
		data, _ := json.Marshal(task)
		return data
	}

	got, err := DecodeCapture(encode(valid))
	if err != nil {
		t.Fatalf("DecodeCapture() error: %v", err)
	}
	if got.ID != valid.ID || got.Identity != "c-1" {
		t.Errorf("DecodeCapture() = %+v", got)
	}

	noFrame := valid
	noFrame.FrameRef = ""
	noIdentity := valid
	noIdentity.Identity = ""
	badKind := valid
	badKind.Kind = "enroll"
	identify := valid
	identify.Kind, identify.Identity = models.TaskIdentify, ""

	tests := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"garbage", []byte("{"), true},
		{"unknown field", []byte(`{"kind":"identify","frame_ref":"captures/lobby/x.jpg","priority":1}`), true},
		{"missing frame", encode(noFrame), true},
		{"verify without identity", encode(noIdentity), true},
		{"unknown kind", encode(badKind), true},
		{"identify without identity", encode(identify), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCapture(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRedeliveryDelay(t *testing.T) {
	tests := []struct {
		delivered uint64
		want      time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{6, 32 * time.Second},
		{50, 32 * time.Second},
	}
	for _, tt := range tests {
		if got := redeliveryDelay(tt.delivered); got != tt.want {
			t.Errorf("redeliveryDelay(%d) = %v, want %v", tt.delivered, got, tt.want)
		}
	}
}
