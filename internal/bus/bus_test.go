package bus

import (
	"fmt"
	"testing"

	"github.com/hollowdong/chatbridge/internal/bridge"
)

// fakeRecorder assigns sequential ids without touching disk.
type fakeRecorder struct {
	n     int
	fail  bool
	forms []bridge.SendForm
}

func (r *fakeRecorder) Save(form bridge.SendForm) (string, error) {
	if r.fail {
		return "", fmt.Errorf("store unavailable")
	}
	r.n++
	r.forms = append(r.forms, form)
	return fmt.Sprintf("m-%d", r.n), nil
}

func plainForm(text string) bridge.SendForm {
	return bridge.SendForm{
		SenderID: "u-1",
		Chain:    bridge.Chain{bridge.Plain{Text: text}},
		Origin:   bridge.Ref{Platform: bridge.PlatformQQ, OriginID: "1"},
	}
}

func TestBusFanOutExcludesSender(t *testing.T) {
	rec := &fakeRecorder{}
	b := New(rec)
	qq, _ := b.Register("qq")
	dc, _ := b.Register("discord")
	tg, _ := b.Register("telegram")

	id, err := qq.Send(plainForm("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if id != "m-1" {
		t.Errorf("Send returned id %q, want m-1", id)
	}

	for _, peer := range []*Client{dc, tg} {
		select {
		case msg := <-peer.Recv():
			if msg.ID != "m-1" {
				t.Errorf("%s got id %q, want m-1", peer.Name(), msg.ID)
			}
			if msg.Chain.FirstPlain() != "hello" {
				t.Errorf("%s got text %q", peer.Name(), msg.Chain.FirstPlain())
			}
		default:
			t.Errorf("%s received nothing", peer.Name())
		}
	}

	select {
	case msg := <-qq.Recv():
		t.Errorf("sender received its own message %q", msg.ID)
	default:
	}
}

func TestBusRecordsBeforeFanOut(t *testing.T) {
	rec := &fakeRecorder{fail: true}
	b := New(rec)
	qq, _ := b.Register("qq")
	dc, _ := b.Register("discord")

	if _, err := qq.Send(plainForm("hello")); err == nil {
		t.Fatal("Send should fail when the recorder fails")
	}
	select {
	case <-dc.Recv():
		t.Error("no delivery should happen when recording fails")
	default:
	}
}

func TestBusDuplicateRegister(t *testing.T) {
	b := New(&fakeRecorder{})
	if _, err := b.Register("qq"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Register("qq"); err == nil {
		t.Error("second registration of the same name should fail")
	}
}

func TestBusOverflowDropsOldestKeepsOrder(t *testing.T) {
	rec := &fakeRecorder{}
	b := New(rec)
	qq, _ := b.Register("qq")
	dc, _ := b.Register("discord")

	total := SubscriberQueueSize + 5
	for i := 0; i < total; i++ {
		if _, err := qq.Send(plainForm(fmt.Sprintf("msg-%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	// The oldest 5 were dropped; what remains is the newest window in
	// publish order.
	for i := 5; i < total; i++ {
		select {
		case msg := <-dc.Recv():
			want := fmt.Sprintf("msg-%d", i)
			if got := msg.Chain.FirstPlain(); got != want {
				t.Fatalf("position %d: got %q, want %q", i, got, want)
			}
		default:
			t.Fatalf("queue exhausted at position %d", i)
		}
	}
	select {
	case msg := <-dc.Recv():
		t.Errorf("unexpected extra message %q", msg.Chain.FirstPlain())
	default:
	}
}
