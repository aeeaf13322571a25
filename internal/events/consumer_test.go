package events

import (
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/marigold-hq/marigold/internal/state"
)

func newTestConsumer() (*Consumer, *state.State) {
	st := state.New()
	return New(nil, st, Config{}, nil), st
}

func TestHandleAppliesEvent(t *testing.T) {
	c, st := newTestConsumer()
	c.handle(&nats.Msg{
		Subject: "marigold.events.worker",
		Data:    []byte(`{"type":"worker-online","hostname":"w1","timestamp":100,"pid":5}`),
	})
	c.handle(&nats.Msg{
		Subject: "marigold.events.task",
		Data:    []byte(`{"type":"task-started","hostname":"w1"}`),
	})

	rec, ok := st.Worker("w1")
	if !ok {
		t.Fatal("worker-online did not register w1")
	}
	if !rec.IsAlive() {
		t.Error("w1 should be alive")
	}
	if got := st.Counters("w1")[state.EventTaskStarted]; got != 1 {
		t.Errorf("task-started count = %d, want 1", got)
	}
}

func TestHandleDropsBadPayloads(t *testing.T) {
	c, st := newTestConsumer()
	c.handle(&nats.Msg{Data: []byte(`not json`)})
	c.handle(&nats.Msg{Data: []byte(`{"hostname":"w1"}`)})
	c.handle(&nats.Msg{Data: []byte(`{"type":"task-started"}`)})

	if got := len(st.CounterNames()); got != 0 {
		t.Errorf("state gained %d workers from bad payloads, want 0", got)
	}
}

func TestRecordReply(t *testing.T) {
	c, st := newTestConsumer()
	c.recordReply([]byte(`{"hostname":"w2","loadavg":[0.1,0.2,0.3]}`))

	rec, ok := st.Worker("w2")
	if !ok {
		t.Fatal("ping reply did not register w2")
	}
	if !rec.IsAlive() {
		t.Error("ping reply without alive flag should register as alive")
	}
	if _, ok := rec.(state.LooseWorker); !ok {
		t.Errorf("record type = %T, want state.LooseWorker", rec)
	}
}

func TestRecordReplyIgnoresNameless(t *testing.T) {
	c, st := newTestConsumer()
	c.recordReply([]byte(`{"pid":1}`))
	c.recordReply([]byte(`garbage`))
	if got := len(st.WorkerNames()); got != 0 {
		t.Errorf("registry gained %d workers, want 0", got)
	}
}

func TestConfigDefaults(t *testing.T) {
	c := New(nil, state.New(), Config{}, nil)
	if c.cfg.Subject != DefaultSubject {
		t.Errorf("subject = %q, want %q", c.cfg.Subject, DefaultSubject)
	}
	if c.cfg.PingSubject != DefaultPingSubject {
		t.Errorf("ping subject = %q, want %q", c.cfg.PingSubject, DefaultPingSubject)
	}
}
