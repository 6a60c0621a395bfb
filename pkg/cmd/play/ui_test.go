package play

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/igolaizola/tunequiz/pkg/catalog"
	"github.com/igolaizola/tunequiz/pkg/quiz"
	"github.com/igolaizola/tunequiz/pkg/shuffle"
	"github.com/igolaizola/tunequiz/pkg/transport"
)

type buffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *buffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *buffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

type fetcher struct {
	pool catalog.Pool
	err  error
}

func (f *fetcher) FetchPool(ctx context.Context, q catalog.Query) (catalog.Pool, error) {
	return f.pool, f.err
}

func newTestUI(t *testing.T, f catalog.Fetcher) (*ui, *buffer) {
	t.Helper()
	out := &buffer{}
	u := newUI(out)
	controller := transport.NewController(nil, false)
	e := quiz.New(&quiz.Config{
		Fetcher:   f,
		Query:     catalog.Query{Keyword: "Music", MaxResults: 10},
		Transport: controller,
		Shuffle:   shuffle.New(3),
		Notify:    u.notify,
	})
	u.engine = e
	unsubscribe := controller.Subscribe(u.playback)
	t.Cleanup(func() {
		unsubscribe()
		e.Close()
	})
	return u, out
}

func testPool(n int) catalog.Pool {
	var pool catalog.Pool
	for i := 0; i < n; i++ {
		pool = append(pool, &catalog.Track{ID: fmt.Sprintf("id%d", i), Title: fmt.Sprintf("Song %d", i)})
	}
	return pool
}

func correctOption(t *testing.T, u *ui) string {
	t.Helper()
	v := u.engine.View()
	for i, o := range v.Round.Options {
		if o == v.Round.CorrectAnswer {
			return strconv.Itoa(i + 1)
		}
	}
	t.Fatal("correct answer not in options")
	return ""
}

func TestHandleGuesses(t *testing.T) {
	u, out := newTestUI(t, &fetcher{pool: testPool(4)})
	if err := u.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	u.printRound(u.engine.View())
	if !strings.Contains(out.String(), "Round 1") {
		t.Fatalf("output = %q; want round 1", out.String())
	}

	if u.handle(correctOption(t, u)) {
		t.Fatal("handle(option) quit")
	}
	if s := out.String(); !strings.Contains(s, "Correct!") || !strings.Contains(s, "Round 2 (score 1/1)") {
		t.Fatalf("output = %q; want correct and round 2", s)
	}

	answer := u.engine.View().Round.CorrectAnswer
	u.handle("certainly not a title")
	if s := out.String(); !strings.Contains(s, fmt.Sprintf("Incorrect, it was %q", answer)) {
		t.Fatalf("output = %q; want incorrect feedback", s)
	}

	answer = u.engine.View().Round.CorrectAnswer
	u.handle("=" + strings.ToUpper(answer))
	if got := u.engine.View().Score; got.Correct != 2 || got.Total != 3 {
		t.Fatalf("score = %+v; want 2/3", got)
	}

	u.handle("9")
	if s := out.String(); !strings.Contains(s, "Error:") {
		t.Fatalf("output = %q; want invalid option error", s)
	}
	if got := u.engine.View().Score.Total; got != 3 {
		t.Fatalf("total = %d after invalid option; want 3", got)
	}
}

func TestHandleTransport(t *testing.T) {
	u, out := newTestUI(t, &fetcher{pool: testPool(4)})
	if err := u.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	u.handle("+")
	if got := u.engine.View().Playback.Volume; got != transport.DefaultVolume+volumeStep {
		t.Fatalf("volume = %d; want %d", got, transport.DefaultVolume+volumeStep)
	}
	u.handle("-")
	u.handle("-")
	if got := u.engine.View().Playback.Volume; got != transport.DefaultVolume-volumeStep {
		t.Fatalf("volume = %d; want %d", got, transport.DefaultVolume-volumeStep)
	}
	for _, cmd := range []string{"p", ">", "<", "i", "h", ""} {
		if u.handle(cmd) {
			t.Fatalf("handle(%q) quit", cmd)
		}
	}
	round := u.engine.View().Round.Number
	u.handle("n")
	if got := u.engine.View().Round.Number; got != round+1 {
		t.Fatalf("round = %d after skip; want %d", got, round+1)
	}
	if got := u.engine.View().Score.Total; got != 0 {
		t.Fatalf("total = %d after skip; want 0", got)
	}
	if !strings.Contains(out.String(), "volume 40") {
		t.Fatalf("output = %q; want status line", out.String())
	}
	if !u.handle("q") {
		t.Fatal("handle(q) didn't quit")
	}
}

func TestHandleNotReady(t *testing.T) {
	u, out := newTestUI(t, &fetcher{err: catalog.ErrUnavailable})
	u.handle("p")
	u.handle("1")
	if s := out.String(); strings.Count(s, "Still loading") != 2 {
		t.Fatalf("output = %q; want loading notices", s)
	}
	u.handle("i")
	if s := out.String(); !strings.Contains(s, "is loading") {
		t.Fatalf("output = %q; want loading status", s)
	}
}

func TestRun(t *testing.T) {
	u, out := newTestUI(t, &fetcher{pool: testPool(2)})
	done := make(chan error, 1)
	go func() {
		done <- u.run(context.Background(), strings.NewReader("h\nq\n"))
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run() didn't return on quit")
	}
	if !strings.Contains(out.String(), "Loading tracks...") {
		t.Fatalf("output = %q; want loading notice", out.String())
	}
}

func TestRunStopsOnContext(t *testing.T) {
	u, _ := newTestUI(t, &fetcher{err: catalog.ErrConfiguration})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	// Never returns any input
	r, w := io.Pipe()
	defer w.Close()
	go func() {
		done <- u.run(ctx, r)
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run() didn't return on cancel")
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"}, {-3, "0:00"}, {9.9, "0:09"}, {61, "1:01"}, {3600, "60:00"},
	}
	for _, tt := range tests {
		if got := formatTime(tt.in); got != tt.want {
			t.Errorf("formatTime(%v) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenAnswered(t *testing.T) {
	u, out := newTestUI(t, &fetcher{pool: testPool(4)})
	var opened []string
	u.open = func(url string) error {
		opened = append(opened, url)
		return nil
	}
	if err := u.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	u.handle("o")
	if len(opened) != 0 || !strings.Contains(out.String(), "Nothing answered yet") {
		t.Fatalf("opened = %v, output = %q; want nothing opened", opened, out.String())
	}
	id := u.engine.View().Playback.TrackID
	u.handle("1")
	u.handle("o")
	want := "https://www.youtube.com/watch?v=" + id
	if len(opened) != 1 || opened[0] != want {
		t.Fatalf("opened = %v; want [%s]", opened, want)
	}
}
