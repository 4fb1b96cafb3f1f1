package framecollector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"
)

var testStart = time.Date(2025, 11, 5, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock only moves when told to (by a read or a backoff sleep)
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock { return &fakeClock{now: testStart} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSource produces frames from a generator; every read advances the clock by step
type fakeSource struct {
	clock *fakeClock
	step  time.Duration

	// next returns the frame for the n-th read (1-based)
	next func(n int) (Frame, error)
	// openErr returns the error for the n-th open (1-based), nil for success
	openErr func(n int) error
	// onRead runs before each read
	onRead func(n int)

	opens, releases, reads int
	open                   bool
}

func (s *fakeSource) Open(ctx context.Context) error {
	s.opens++
	if s.openErr != nil {
		if err := s.openErr(s.opens); err != nil {
			return err
		}
	}
	s.open = true
	return nil
}

func (s *fakeSource) Read(ctx context.Context) (Frame, error) {
	s.reads++
	if s.onRead != nil {
		s.onRead(s.reads)
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if !s.open {
		return Frame{}, ErrReadFailed
	}
	s.clock.advance(s.step)

	f, err := s.next(s.reads)
	if err != nil {
		return Frame{}, err
	}
	f.Seq = uint64(s.reads)
	f.Timestamp = s.clock.Now()
	return f, nil
}

func (s *fakeSource) Release() error {
	if s.open {
		s.releases++
	}
	s.open = false
	return nil
}

func (s *fakeSource) Describe() string { return "fake://camera" }

// recordingSink keeps every event
type recordingSink struct {
	saved   []SavedFrameRecord
	summary []Summary
}

func (r *recordingSink) FrameSaved(ctx context.Context, rec SavedFrameRecord) error {
	r.saved = append(r.saved, rec)
	return nil
}

func (r *recordingSink) SessionCompleted(ctx context.Context, sum Summary) error {
	r.summary = append(r.summary, sum)
	return nil
}

func solidFrame(w, h int, level byte) Frame {
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = level
	}
	return Frame{Width: w, Height: h, Data: data, SourceStream: "test"}
}

func staticScene(n int) (Frame, error) { return solidFrame(16, 16, 128), nil }

func alternatingScene(n int) (Frame, error) {
	if n%2 == 1 {
		return solidFrame(16, 16, 0), nil
	}
	return solidFrame(16, 16, 255), nil
}

type testRig struct {
	clock     *fakeClock
	source    *fakeSource
	archiver  *Archiver
	sink      *recordingSink
	collector *Collector
	root      string
}

func newRig(t *testing.T, next func(int) (Frame, error), mutate func(*Config)) *testRig {
	t.Helper()

	clock := newFakeClock()
	source := &fakeSource{clock: clock, step: 250 * time.Millisecond, next: next}
	root := filepath.Join(t.TempDir(), "raw")

	archiver, err := NewArchiver(root, 0, discardLogger())
	if err != nil {
		t.Fatalf("NewArchiver() failed: %v", err)
	}
	sink := &recordingSink{}

	cfg := Config{
		Source:   source,
		Archiver: archiver,
		Events:   sink,
		Logger:   discardLogger(),
		Clock:    clock,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	collector, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	return &testRig{
		clock:     clock,
		source:    source,
		archiver:  archiver,
		sink:      sink,
		collector: collector,
		root:      root,
	}
}

func TestCollect_StaticSceneSavesOnlyFirstFrame(t *testing.T) {
	rig := newRig(t, staticScene, nil)

	sum, err := rig.collector.Collect(context.Background(), ContinuousOptions{
		Interval:  time.Second,
		Threshold: 0.05,
		Duration:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if sum.FramesSaved != 1 {
		t.Errorf("FramesSaved = %d, want 1", sum.FramesSaved)
	}
	if sum.FramesRead != 40 {
		t.Errorf("FramesRead = %d, want 40 (10s at 4 fps)", sum.FramesRead)
	}
	if sum.StopReason != StopDuration {
		t.Errorf("StopReason = %v, want %v", sum.StopReason, StopDuration)
	}
	if rig.source.releases != 1 {
		t.Errorf("releases = %d, want 1", rig.source.releases)
	}
	if rig.collector.Phase() != PhaseClosed {
		t.Errorf("Phase() = %v, want closed", rig.collector.Phase())
	}
}

func TestCollect_AlternatingSceneRespectsInterval(t *testing.T) {
	rig := newRig(t, alternatingScene, nil)

	sum, err := rig.collector.Collect(context.Background(), ContinuousOptions{
		Interval:  time.Second,
		Threshold: 0.05,
		Duration:  10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	// 4 fps, 0/255 alternation: a read is interval-eligible 1s after a save
	// but carries the baseline's level, so the next save lands 1.25s later
	// on reads 1, 6, 11, ... 36.
	if sum.FramesSaved != 8 {
		t.Errorf("FramesSaved = %d, want 8", sum.FramesSaved)
	}
	if len(rig.sink.saved) != int(sum.FramesSaved) {
		t.Fatalf("saved events = %d, want %d", len(rig.sink.saved), sum.FramesSaved)
	}

	for i, rec := range rig.sink.saved {
		if want := uint64(1 + 5*i); rec.FrameSeq != want {
			t.Errorf("record %d frame seq = %d, want %d", i, rec.FrameSeq, want)
		}
		if i == 0 {
			continue
		}
		gap := rec.CaptureTime.Sub(rig.sink.saved[i-1].CaptureTime)
		if gap != 1250*time.Millisecond {
			t.Errorf("records %d and %d are %s apart, want 1.25s", i-1, i, gap)
		}
		if rec.Difference < 0.05 {
			t.Errorf("record %d difference = %.3f, want >= 0.05", i, rec.Difference)
		}
	}

	// Continuous sessions do not accumulate records.
	if len(sum.Records) != 0 {
		t.Errorf("len(Records) = %d, want 0", len(sum.Records))
	}
}

// finiteScene yields frames 1..count at level(n), then end of stream
func finiteScene(count int, level func(n int) byte) func(int) (Frame, error) {
	return func(n int) (Frame, error) {
		if n > count {
			return Frame{}, ErrEndOfStream
		}
		return solidFrame(16, 16, level(n)), nil
	}
}

// runFiniteScene collects a 10-frame scene at interval 0, threshold 0.05.
// Read 11 hits end of stream; read 12 cancels the session.
func runFiniteScene(t *testing.T, level func(n int) byte) (*testRig, *Summary) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rig := newRig(t, finiteScene(10, level), nil)
	rig.source.onRead = func(n int) {
		if n == 12 {
			cancel()
		}
	}

	sum, err := rig.collector.Collect(ctx, ContinuousOptions{Interval: 0, Threshold: 0.05})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if sum.StopReason != StopCancelled {
		t.Errorf("StopReason = %v, want %v", sum.StopReason, StopCancelled)
	}
	if sum.FramesRead != 10 {
		t.Errorf("FramesRead = %d, want 10", sum.FramesRead)
	}
	if sum.ReadFailures != 1 {
		t.Errorf("ReadFailures = %d, want 1 (end of stream)", sum.ReadFailures)
	}
	if rig.source.releases != 1 {
		t.Errorf("releases = %d, want 1", rig.source.releases)
	}
	return rig, sum
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) failed: %v", dir, err)
	}
	return len(entries)
}

func TestCollect_TenIdenticalFramesSaveOne(t *testing.T) {
	rig, sum := runFiniteScene(t, func(n int) byte { return 128 })

	if sum.FramesSaved != 1 {
		t.Errorf("FramesSaved = %d, want 1", sum.FramesSaved)
	}
	dateDir := filepath.Join(rig.root, testStart.Format("2006-01-02"))
	if got := countFiles(t, dateDir); got != 1 {
		t.Errorf("files on disk = %d, want 1", got)
	}
	if len(rig.sink.saved) != 1 || rig.sink.saved[0].FrameSeq != 1 {
		t.Errorf("saved events = %+v, want only frame 1", rig.sink.saved)
	}
}

func TestCollect_AlternatingFramesSaveEveryFrame(t *testing.T) {
	rig, sum := runFiniteScene(t, func(n int) byte {
		if n%2 == 1 {
			return 0
		}
		return 128
	})

	if sum.FramesSaved != 10 {
		t.Errorf("FramesSaved = %d, want 10", sum.FramesSaved)
	}
	dateDir := filepath.Join(rig.root, testStart.Format("2006-01-02"))
	if got := countFiles(t, dateDir); got != 10 {
		t.Errorf("files on disk = %d, want 10", got)
	}
	if len(rig.sink.saved) != 10 {
		t.Fatalf("saved events = %d, want 10", len(rig.sink.saved))
	}

	if d := rig.sink.saved[0].Difference; d != 1.0 {
		t.Errorf("first difference = %.3f, want 1.0", d)
	}
	for i, rec := range rig.sink.saved[1:] {
		if rec.Difference < 0.45 || rec.Difference > 0.55 {
			t.Errorf("record %d difference = %.3f, want about 0.5", i+1, rec.Difference)
		}
	}
}

func TestCollect_NonTransientReadErrorIsFatal(t *testing.T) {
	broken := errors.New("decoder crashed")
	rig := newRig(t, func(n int) (Frame, error) {
		if n == 3 {
			return Frame{}, broken
		}
		return alternatingScene(n)
	}, nil)

	sum, err := rig.collector.Collect(context.Background(), ContinuousOptions{Threshold: 0.05})
	if !errors.Is(err, ErrSourceUnavailable) || !errors.Is(err, broken) {
		t.Fatalf("Collect() error = %v, want ErrSourceUnavailable wrapping the read error", err)
	}
	if sum.StopReason != StopError {
		t.Errorf("StopReason = %v, want %v", sum.StopReason, StopError)
	}
	if sum.FramesRead != 2 || sum.ReadFailures != 0 {
		t.Errorf("frames read/read failures = %d/%d, want 2/0", sum.FramesRead, sum.ReadFailures)
	}
	if len(rig.clock.slept) != 0 {
		t.Errorf("backoff sleeps = %d, want 0", len(rig.clock.slept))
	}
	if rig.source.releases != 1 {
		t.Errorf("releases = %d, want 1", rig.source.releases)
	}
}

func TestCollect_MaxFrames(t *testing.T) {
	rig := newRig(t, alternatingScene, nil)

	sum, err := rig.collector.Collect(context.Background(), ContinuousOptions{
		Threshold: 0.05,
		MaxFrames: 3,
	})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if sum.FramesSaved != 3 {
		t.Errorf("FramesSaved = %d, want 3", sum.FramesSaved)
	}
	if sum.FramesRead != 3 {
		t.Errorf("FramesRead = %d, want 3", sum.FramesRead)
	}
	if sum.StopReason != StopMaxFrames {
		t.Errorf("StopReason = %v, want %v", sum.StopReason, StopMaxFrames)
	}
}

func TestCollectRandomSamples_ExactCount(t *testing.T) {
	rig := newRig(t, staticScene, nil)

	records, sum, err := rig.collector.CollectRandomSamples(context.Background(), RandomOptions{
		Duration: 10 * time.Second,
		Samples:  3,
		Rand:     rand.New(rand.NewSource(42)),
	})
	if err != nil {
		t.Fatalf("CollectRandomSamples() failed: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	if sum.StopReason != StopScheduleExhausted {
		t.Errorf("StopReason = %v, want %v", sum.StopReason, StopScheduleExhausted)
	}

	name := regexp.MustCompile(`^frame_\d{6}_\d{6}\.jpg$`)
	dateDir := filepath.Join(rig.root, testStart.Format("2006-01-02"))

	for i, rec := range records {
		if rec.Sequence != uint64(i+1) {
			t.Errorf("record %d sequence = %d, want %d", i, rec.Sequence, i+1)
		}
		if i > 0 && !rec.CaptureTime.After(records[i-1].CaptureTime) {
			t.Errorf("record %d capture time not after record %d", i, i-1)
		}
		if filepath.Dir(rec.Path) != dateDir {
			t.Errorf("record %d dir = %s, want %s", i, filepath.Dir(rec.Path), dateDir)
		}
		if !name.MatchString(filepath.Base(rec.Path)) {
			t.Errorf("record %d name = %s, want frame_HHMMSS_NNNNNN.jpg", i, filepath.Base(rec.Path))
		}
		if _, err := os.Stat(rec.Path); err != nil {
			t.Errorf("record %d file missing: %v", i, err)
		}
		if rec.SessionID != sum.SessionID || rec.Fingerprint == "" {
			t.Errorf("record %d missing session id or fingerprint: %+v", i, rec)
		}
	}
}

func TestRun_RandomSamplesFollowSchedule(t *testing.T) {
	rig := newRig(t, staticScene, nil)

	policy, err := NewRandomPolicy(RandomOptions{
		Duration: 20 * time.Second,
		Samples:  5,
		Rand:     rand.New(rand.NewSource(7)),
	})
	if err != nil {
		t.Fatalf("NewRandomPolicy() failed: %v", err)
	}
	offsets := policy.Offsets()

	sum, err := rig.collector.Run(context.Background(), policy)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(sum.Records) != len(offsets) {
		t.Fatalf("len(Records) = %d, want %d", len(sum.Records), len(offsets))
	}

	for i, rec := range sum.Records {
		elapsed := rec.CaptureTime.Sub(testStart)
		if elapsed < time.Duration(offsets[i])*time.Second {
			t.Errorf("record %d captured at %s, before offset %ds", i, elapsed, offsets[i])
		}
	}
}

func TestCollect_OpenFailureIsFatal(t *testing.T) {
	rig := newRig(t, staticScene, nil)
	rig.source.openErr = func(n int) error { return errors.New("connection refused") }

	sum, err := rig.collector.Collect(context.Background(), DefaultContinuousOptions())
	if !errors.Is(err, ErrStreamOpen) {
		t.Fatalf("Collect() error = %v, want ErrStreamOpen", err)
	}
	if sum.StopReason != StopOpenFailed {
		t.Errorf("StopReason = %v, want %v", sum.StopReason, StopOpenFailed)
	}
	if sum.FramesRead != 0 || sum.FramesSaved != 0 {
		t.Errorf("frames read/saved = %d/%d, want 0/0", sum.FramesRead, sum.FramesSaved)
	}
	if rig.source.reads != 0 {
		t.Errorf("reads = %d, want 0", rig.source.reads)
	}
	if rig.source.releases != 0 {
		t.Errorf("releases = %d, want 0", rig.source.releases)
	}
	if _, statErr := os.Stat(rig.root); !os.IsNotExist(statErr) {
		t.Errorf("output root exists after open failure (stat err = %v)", statErr)
	}
}

func TestCollectRandomSamples_OpenFailureReturnsNoRecords(t *testing.T) {
	rig := newRig(t, staticScene, nil)
	rig.source.openErr = func(n int) error { return errors.New("404 not found") }

	records, _, err := rig.collector.CollectRandomSamples(context.Background(), RandomOptions{
		Duration: 10 * time.Second,
		Samples:  3,
	})
	if !errors.Is(err, ErrStreamOpen) {
		t.Fatalf("error = %v, want ErrStreamOpen", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func TestCollect_CancellationIsGraceful(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rig := newRig(t, alternatingScene, nil)
	rig.source.onRead = func(n int) {
		if n == 6 {
			cancel()
		}
	}

	sum, err := rig.collector.Collect(ctx, ContinuousOptions{Threshold: 0.05})
	if err != nil {
		t.Fatalf("Collect() error = %v, want nil on cancellation", err)
	}
	if sum.StopReason != StopCancelled {
		t.Errorf("StopReason = %v, want %v", sum.StopReason, StopCancelled)
	}
	if sum.FramesRead != 5 {
		t.Errorf("FramesRead = %d, want 5", sum.FramesRead)
	}
	if rig.source.releases != 1 {
		t.Errorf("releases = %d, want 1", rig.source.releases)
	}
	if len(rig.sink.summary) != 1 {
		t.Errorf("summary events = %d, want 1", len(rig.sink.summary))
	}
}

func TestCollect_TransientReadFailuresAreRetried(t *testing.T) {
	rig := newRig(t, func(n int) (Frame, error) {
		if n >= 2 && n <= 4 {
			return Frame{}, ErrReadFailed
		}
		return alternatingScene(n)
	}, nil)

	sum, err := rig.collector.Collect(context.Background(), ContinuousOptions{
		Threshold: 0.05,
		MaxFrames: 2,
	})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if sum.ReadFailures != 3 {
		t.Errorf("ReadFailures = %d, want 3", sum.ReadFailures)
	}
	if sum.FramesSaved != 2 {
		t.Errorf("FramesSaved = %d, want 2", sum.FramesSaved)
	}
	if len(rig.clock.slept) != 3 {
		t.Fatalf("backoff sleeps = %d, want 3", len(rig.clock.slept))
	}
	for _, d := range rig.clock.slept {
		if d != DefaultContinuousRetryDelay {
			t.Errorf("backoff = %s, want %s", d, DefaultContinuousRetryDelay)
		}
	}
}

func TestCollect_EndOfStreamTreatedAsReadFailure(t *testing.T) {
	rig := newRig(t, func(n int) (Frame, error) {
		if n == 1 {
			return Frame{}, ErrEndOfStream
		}
		return staticScene(n)
	}, nil)

	sum, err := rig.collector.Collect(context.Background(), ContinuousOptions{MaxFrames: 1})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if sum.ReadFailures != 1 || sum.FramesSaved != 1 {
		t.Errorf("read failures/saved = %d/%d, want 1/1", sum.ReadFailures, sum.FramesSaved)
	}
}

func TestCollect_ReopenAfterConsecutiveFailures(t *testing.T) {
	rig := newRig(t, nil, func(cfg *Config) {
		cfg.ReconnectAfter = 3
	})
	rig.source.next = func(n int) (Frame, error) {
		if rig.source.opens == 1 {
			return Frame{}, ErrReadFailed
		}
		return staticScene(n)
	}

	sum, err := rig.collector.Collect(context.Background(), ContinuousOptions{MaxFrames: 1})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if sum.Reopens != 1 {
		t.Errorf("Reopens = %d, want 1", sum.Reopens)
	}
	if rig.source.opens != 2 || rig.source.releases != 2 {
		t.Errorf("opens/releases = %d/%d, want 2/2", rig.source.opens, rig.source.releases)
	}
	if sum.FramesSaved != 1 {
		t.Errorf("FramesSaved = %d, want 1", sum.FramesSaved)
	}
}

func TestCollect_SourceUnavailableAfterReopenExhausted(t *testing.T) {
	rig := newRig(t, func(n int) (Frame, error) { return Frame{}, ErrReadFailed }, func(cfg *Config) {
		cfg.ReconnectAfter = 3
		cfg.ReopenMaxRetries = 2
	})
	rig.source.openErr = func(n int) error {
		if n > 1 {
			return errors.New("host unreachable")
		}
		return nil
	}

	sum, err := rig.collector.Collect(context.Background(), DefaultContinuousOptions())
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("Collect() error = %v, want ErrSourceUnavailable", err)
	}
	if sum.StopReason != StopError {
		t.Errorf("StopReason = %v, want %v", sum.StopReason, StopError)
	}
	// 1 initial open + 3 reopen attempts (first try + 2 retries)
	if rig.source.opens != 4 {
		t.Errorf("opens = %d, want 4", rig.source.opens)
	}
	if rig.source.releases != 1 {
		t.Errorf("releases = %d, want 1", rig.source.releases)
	}
}

// flakyArchiver fails the first n saves with a per-item error
type flakyArchiver struct {
	inner FrameArchiver
	fail  int
	calls int
}

func (a *flakyArchiver) Save(f *Frame, captureTime time.Time, sequence uint64) (SavedFrameRecord, error) {
	a.calls++
	if a.calls <= a.fail {
		return SavedFrameRecord{}, errors.New("disk full")
	}
	return a.inner.Save(f, captureTime, sequence)
}

func TestCollect_SaveFailureSkipsFrame(t *testing.T) {
	rig := newRig(t, staticScene, func(cfg *Config) {
		cfg.Archiver = &flakyArchiver{inner: cfg.Archiver, fail: 1}
	})

	sum, err := rig.collector.Collect(context.Background(), ContinuousOptions{
		Interval:  time.Second,
		Threshold: 0.05,
		MaxFrames: 1,
	})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	if sum.SaveFailures != 1 {
		t.Errorf("SaveFailures = %d, want 1", sum.SaveFailures)
	}
	if sum.FramesSaved != 1 {
		t.Errorf("FramesSaved = %d, want 1", sum.FramesSaved)
	}
	// The failed frame did not become the baseline, so the very next frame
	// is still novel.
	if sum.FramesRead != 2 {
		t.Errorf("FramesRead = %d, want 2", sum.FramesRead)
	}
	if rig.sink.saved[0].Sequence != 1 {
		t.Errorf("first saved sequence = %d, want 1", rig.sink.saved[0].Sequence)
	}
}

func TestCollect_OutputUnavailableIsFatal(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	rig := newRig(t, staticScene, func(cfg *Config) {
		archiver, err := NewArchiver(filepath.Join(blocker, "raw"), 0, discardLogger())
		if err != nil {
			t.Fatalf("NewArchiver() failed: %v", err)
		}
		cfg.Archiver = archiver
	})

	sum, err := rig.collector.Collect(context.Background(), DefaultContinuousOptions())
	if !errors.Is(err, ErrOutputUnavailable) {
		t.Fatalf("Collect() error = %v, want ErrOutputUnavailable", err)
	}
	if sum.StopReason != StopError {
		t.Errorf("StopReason = %v, want %v", sum.StopReason, StopError)
	}
	if rig.source.releases != 1 {
		t.Errorf("releases = %d, want 1", rig.source.releases)
	}
}

func TestCollect_InvalidOptionsDoNotOpenSource(t *testing.T) {
	tests := []struct {
		name string
		opts ContinuousOptions
	}{
		{"negative interval", ContinuousOptions{Interval: -time.Second}},
		{"threshold above 1", ContinuousOptions{Threshold: 1.5}},
		{"negative threshold", ContinuousOptions{Threshold: -0.1}},
		{"negative duration", ContinuousOptions{Duration: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newRig(t, staticScene, nil)
			if _, err := rig.collector.Collect(context.Background(), tt.opts); err == nil {
				t.Fatal("Collect() succeeded, want error")
			}
			if rig.source.opens != 0 {
				t.Errorf("opens = %d, want 0", rig.source.opens)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	archiver, err := NewArchiver(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatalf("NewArchiver() failed: %v", err)
	}
	source := &fakeSource{clock: newFakeClock(), next: staticScene}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Source: source, Archiver: archiver}, false},
		{"missing source", Config{Archiver: archiver}, true},
		{"missing archiver", Config{Source: source}, true},
		{"negative reconnect-after", Config{Source: source, Archiver: archiver, ReconnectAfter: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun_SummaryEventPublishedOnce(t *testing.T) {
	rig := newRig(t, alternatingScene, nil)

	sum, err := rig.collector.Collect(context.Background(), ContinuousOptions{MaxFrames: 2, Threshold: 0.05})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if len(rig.sink.summary) != 1 {
		t.Fatalf("summary events = %d, want 1", len(rig.sink.summary))
	}
	if got := rig.sink.summary[0]; got.SessionID != sum.SessionID || got.FramesSaved != 2 {
		t.Errorf("summary event = %+v, want session %s with 2 saved", got, sum.SessionID)
	}
}
