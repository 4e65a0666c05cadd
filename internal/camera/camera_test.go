package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/docscan/internal/dispatch"
	"github.com/jackzampolin/docscan/internal/imageproc"
	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/mediastore"
	"github.com/jackzampolin/docscan/internal/orientation"
	"github.com/jackzampolin/docscan/internal/providers"
)

func grayJPEG(t *testing.T, w, h int, level uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeCameraFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "camera.jpg")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeUI struct {
	mu      sync.Mutex
	text    *string
	copy    bool
	dismiss bool
	notices []string
}

func (u *fakeUI) SetRecognizedText(text string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.text = &text
}

func (u *fakeUI) SetCopyVisible() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.copy = true
}

func (u *fakeUI) SetDismissVisible() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.dismiss = true
}

func (u *fakeUI) Notify(message string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notices = append(u.notices, message)
}

func TestDisplayName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 4, 42*int(time.Millisecond), time.UTC)
	if got, want := DisplayName(ts), "2024-03-09-07-05-04-042"; got != want {
		t.Errorf("DisplayName() = %q, want %q", got, want)
	}
}

func TestParseOptions(t *testing.T) {
	if f, err := ParseLensFacing("BACK"); err != nil || f != LensBack {
		t.Errorf("ParseLensFacing(BACK) = %q, %v", f, err)
	}
	if _, err := ParseLensFacing("side"); err == nil {
		t.Error("ParseLensFacing(side) should fail")
	}
	if m, err := ParseFlashMode("auto"); err != nil || m != FlashAuto {
		t.Errorf("ParseFlashMode(auto) = %q, %v", m, err)
	}
	if _, err := ParseFlashMode("torch"); err == nil {
		t.Error("ParseFlashMode(torch) should fail")
	}
	if r, err := ParseAspectRatio("16:9"); err != nil || r != Ratio16x9 {
		t.Errorf("ParseAspectRatio(16:9) = %q, %v", r, err)
	}
	if _, err := ParseAspectRatio("1:1"); err == nil {
		t.Error("ParseAspectRatio(1:1) should fail")
	}
	if b, err := ParseBackpressure("keep-only-latest"); err != nil || b != KeepOnlyLatest {
		t.Errorf("ParseBackpressure() = %q, %v", b, err)
	}
}

func TestFileDevice(t *testing.T) {
	data := grayJPEG(t, 4, 4, 10)
	d := &FileDevice{Lens: LensBack, Path: writeCameraFile(t, data)}

	got, err := d.Capture(context.Background(), Settings{})
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Capture() returned different bytes")
	}

	bad := &FileDevice{Path: writeCameraFile(t, []byte("not a jpeg"))}
	if _, err := bad.Capture(context.Background(), Settings{}); err == nil {
		t.Error("expected error for non-JPEG file")
	}
}

func TestCommandDevice(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := writeCameraFile(t, grayJPEG(t, 4, 4, 10))

	t.Run("stdout is the frame", func(t *testing.T) {
		d := &CommandDevice{Command: []string{"cat", path}}
		data, err := d.Capture(context.Background(), Settings{Flash: FlashAuto})
		if err != nil {
			t.Fatalf("Capture() error = %v", err)
		}
		if !bytes.HasPrefix(data, jpegSOI) {
			t.Error("expected JPEG data")
		}
	})

	t.Run("placeholders are substituted", func(t *testing.T) {
		d := &CommandDevice{Command: []string{"sh", "-c", "echo flash={flash} aspect={aspect} >&2; exit 3"}}
		_, err := d.Capture(context.Background(), Settings{Flash: FlashOn, Aspect: Ratio4x3})
		if err == nil || !strings.Contains(err.Error(), "flash=on aspect=4:3") {
			t.Errorf("error = %v, want stderr with substituted settings", err)
		}
	})

	t.Run("non-JPEG output", func(t *testing.T) {
		d := &CommandDevice{Command: []string{"echo", "hello"}}
		if _, err := d.Capture(context.Background(), Settings{}); err == nil {
			t.Error("expected error for non-JPEG output")
		}
	})

	t.Run("empty command", func(t *testing.T) {
		d := &CommandDevice{}
		if _, err := d.Capture(context.Background(), Settings{}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestProvider(t *testing.T) {
	device := &FileDevice{Lens: LensBack, Path: writeCameraFile(t, grayJPEG(t, 8, 8, 200))}

	t.Run("no matching camera", func(t *testing.T) {
		p := NewProvider(ProviderConfig{Devices: []Device{device}})
		err := p.BindToLifecycle(context.Background(), Selector{LensFacing: LensFront}, NewPreview())
		if !errors.Is(err, ErrNoCamera) {
			t.Errorf("error = %v, want ErrNoCamera", err)
		}
	})

	t.Run("finished owner", func(t *testing.T) {
		p := NewProvider(ProviderConfig{Devices: []Device{device}})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := p.BindToLifecycle(ctx, DefaultBackCamera, NewPreview()); err == nil {
			t.Error("expected error for cancelled owner")
		}
	})

	t.Run("frames reach preview and analysis", func(t *testing.T) {
		p := NewProvider(ProviderConfig{Devices: []Device{device}, FrameInterval: 5 * time.Millisecond})
		preview := NewPreview()
		fb := &FrameBuffer{}
		preview.SetSurface(fb)
		analysis := NewImageAnalysis(ImageAnalysisConfig{})
		luma := NewLumaAnalyzer(nil)
		analysis.SetAnalyzer(luma)

		if err := p.BindToLifecycle(context.Background(), DefaultBackCamera, preview, analysis); err != nil {
			t.Fatalf("BindToLifecycle() error = %v", err)
		}
		defer p.UnbindAll()

		eventually(t, "preview frame", func() bool { _, ok := fb.Latest(); return ok })
		eventually(t, "analysed frame", func() bool { return luma.Stats().Frames > 0 })

		if err := p.BindToLifecycle(context.Background(), DefaultBackCamera, preview); err == nil {
			t.Error("binding an already bound use case should fail")
		}
	})

	t.Run("owner cancellation unbinds", func(t *testing.T) {
		p := NewProvider(ProviderConfig{Devices: []Device{device}})
		capture := NewImageCapture(ImageCaptureConfig{})
		ctx, cancel := context.WithCancel(context.Background())
		if err := p.BindToLifecycle(ctx, DefaultBackCamera, capture); err != nil {
			t.Fatal(err)
		}
		if !capture.Bound() || !p.Bound() {
			t.Fatal("expected bound")
		}
		cancel()
		eventually(t, "unbind", func() bool { return !p.Bound() && !capture.Bound() })
	})

	t.Run("unbind all", func(t *testing.T) {
		p := NewProvider(ProviderConfig{Devices: []Device{device}, FrameInterval: time.Millisecond})
		capture := NewImageCapture(ImageCaptureConfig{})
		if err := p.BindToLifecycle(context.Background(), DefaultBackCamera, capture, NewPreview()); err != nil {
			t.Fatal(err)
		}
		p.UnbindAll()
		if p.Bound() || capture.Bound() {
			t.Error("expected nothing bound after UnbindAll")
		}
	})
}

func TestImageCapture_TakePicture(t *testing.T) {
	store := mediastore.New(t.TempDir(), nil)
	opts := OutputOptions{Store: store, Values: mediastore.ContentValues{
		DisplayName:  "shot",
		MIMEType:     CaptureMIMEType,
		RelativePath: DefaultRelativePath,
	}}

	capture := NewImageCapture(ImageCaptureConfig{TargetRotation: 90})
	if _, err := capture.TakePicture(context.Background(), opts); !errors.Is(err, ErrNotBound) {
		t.Fatalf("unbound TakePicture() error = %v, want ErrNotBound", err)
	}

	capture.attach(&FileDevice{Path: writeCameraFile(t, grayJPEG(t, 4, 4, 50))})
	ref, err := capture.TakePicture(context.Background(), opts)
	if err != nil {
		t.Fatalf("TakePicture() error = %v", err)
	}
	if !strings.HasSuffix(string(ref), "Pictures/Doc-Scanner/shot.jpg") {
		t.Errorf("reference = %s", ref)
	}

	path, _ := ref.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if o, ok := orientation.Read(data); !ok || o != orientation.Rotate90 {
		t.Errorf("stored orientation = %v, %v; want rotate-90", o, ok)
	}
}

type blockingAnalyzer struct {
	release chan struct{}
}

func (b *blockingAnalyzer) Analyze(Frame) { <-b.release }

func TestImageAnalysis_KeepOnlyLatest(t *testing.T) {
	a := NewImageAnalysis(ImageAnalysisConfig{Backpressure: KeepOnlyLatest})
	blocker := &blockingAnalyzer{release: make(chan struct{})}
	a.SetAnalyzer(blocker)
	a.attach(nil)
	defer a.detach()
	defer close(blocker.release)

	for i := 0; i < 10; i++ {
		a.deliver(context.Background(), Frame{Seq: uint64(i)})
	}
	// The consumer holds at most one frame and the queue one more.
	if got := a.Dropped(); got < 8 {
		t.Errorf("Dropped() = %d, want at least 8", got)
	}
}

func TestLumaAnalyzer(t *testing.T) {
	a := NewLumaAnalyzer(nil)
	a.Analyze(Frame{Data: grayJPEG(t, 16, 16, 128), Timestamp: time.Now()})
	a.Analyze(Frame{Data: []byte("garbage")})

	stats := a.Stats()
	if stats.Frames != 1 || stats.Failures != 1 {
		t.Errorf("frames/failures = %d/%d, want 1/1", stats.Frames, stats.Failures)
	}
	if stats.MeanLuma < 120 || stats.MeanLuma > 136 {
		t.Errorf("MeanLuma = %.1f, want about 128", stats.MeanLuma)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			rgba.Set(x, y, color.White)
		}
	}
	if got := meanLuma(rgba); got != 255 {
		t.Errorf("meanLuma(white) = %.1f, want 255", got)
	}
}

type repoFixture struct {
	repo  *Repository
	rec   *providers.MockRecognizer
	store *mediastore.Store
}

func newRepoFixture(t *testing.T, device Device) *repoFixture {
	t.Helper()
	executor := dispatch.New(dispatch.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	go executor.Run(ctx)
	t.Cleanup(cancel)

	store := mediastore.New(t.TempDir(), nil)
	rec := providers.NewMockRecognizer("INVOICE #123")
	proc := imageproc.New(imageproc.Config{
		Resolver:           store,
		Recognizer:         func() (providers.Recognizer, error) { return rec, nil },
		Executor:           executor,
		RequireOrientation: true,
	})

	var devices []Device
	if device != nil {
		devices = append(devices, device)
	}
	repo := NewRepository(RepositoryConfig{
		Provider:  NewProvider(ProviderConfig{Devices: devices}),
		Store:     store,
		Processor: proc,
		Executor:  executor,
		Now:       func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 6e6, time.UTC) },
	})
	t.Cleanup(repo.UnbindPreview)
	return &repoFixture{repo: repo, rec: rec, store: store}
}

func waitTask(t *testing.T, task *jobs.Task) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	select {
	case <-task.Done():
	case <-ctx.Done():
		t.Fatalf("task did not finish, phase %s", task.Phase())
	}
}

func TestRepository_CaptureAndProcess(t *testing.T) {
	device := &FileDevice{Lens: LensBack, Path: writeCameraFile(t, grayJPEG(t, 8, 8, 30))}
	f := newRepoFixture(t, device)

	if got := f.repo.Phase(); got != jobs.PhaseIdle {
		t.Errorf("initial Phase() = %s, want idle", got)
	}
	if err := f.repo.BindPreview(context.Background(), &FrameBuffer{}); err != nil {
		t.Fatalf("BindPreview() error = %v", err)
	}
	if !f.repo.Bound() {
		t.Fatal("expected capture to be bound")
	}

	ui := &fakeUI{}
	task := f.repo.CaptureAndProcess(context.Background(), ui)
	waitTask(t, task)

	if task.Phase() != jobs.PhaseDone {
		t.Fatalf("phase = %s, want done (err %v)", task.Phase(), task.Err())
	}
	eventually(t, "ui update", func() bool {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		return ui.text != nil
	})
	ui.mu.Lock()
	if *ui.text != "INVOICE #123" || !ui.copy || !ui.dismiss || len(ui.notices) != 0 {
		t.Errorf("ui = %q copy=%v dismiss=%v notices=%v", *ui.text, ui.copy, ui.dismiss, ui.notices)
	}
	ui.mu.Unlock()

	items, err := f.store.List(DefaultRelativePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Name != "2024-01-02-03-04-05-006" {
		t.Errorf("stored items = %+v, want one capture named by timestamp", items)
	}
	if f.rec.Calls() != 1 {
		t.Errorf("recognizer calls = %d, want 1", f.rec.Calls())
	}
	if got := f.repo.Phase(); got != jobs.PhaseDone {
		t.Errorf("Phase() = %s, want done", got)
	}
}

func TestRepository_CaptureFailureNotice(t *testing.T) {
	f := newRepoFixture(t, nil)
	ui := &fakeUI{}

	task := f.repo.CaptureAndProcess(context.Background(), ui)
	waitTask(t, task)

	if task.Phase() != jobs.PhaseFailed || !errors.Is(task.Err(), ErrNotBound) {
		t.Fatalf("phase = %s err = %v, want failed/ErrNotBound", task.Phase(), task.Err())
	}
	eventually(t, "notice", func() bool {
		ui.mu.Lock()
		defer ui.mu.Unlock()
		return len(ui.notices) == 1
	})
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if want := "error message: " + ErrNotBound.Error(); ui.notices[0] != want {
		t.Errorf("notice = %q, want %q", ui.notices[0], want)
	}
	if ui.text != nil || ui.copy || ui.dismiss {
		t.Error("capture failure must not touch recognition state")
	}
	if f.rec.Calls() != 0 {
		t.Error("recognizer should not run after a failed capture")
	}
}

func TestRepository_BindPreviewFailure(t *testing.T) {
	f := newRepoFixture(t, &FileDevice{Lens: LensFront, Path: "unused"})
	if err := f.repo.BindPreview(context.Background(), nil); !errors.Is(err, ErrNoCamera) {
		t.Errorf("BindPreview() error = %v, want ErrNoCamera", err)
	}
	if f.repo.Bound() {
		t.Error("preview should stay unbound")
	}
}

func TestRepository_ProcessPicked(t *testing.T) {
	f := newRepoFixture(t, nil)
	data, err := orientation.Inject(grayJPEG(t, 4, 4, 90), orientation.Normal)
	if err != nil {
		t.Fatal(err)
	}
	ref, err := f.store.Insert(context.Background(), mediastore.ContentValues{
		DisplayName: "picked",
		MIMEType:    "image/jpeg",
	}, bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}

	ui := &fakeUI{}
	task := f.repo.ProcessPicked(context.Background(), ref, ui)
	waitTask(t, task)
	if task.Phase() != jobs.PhaseDone {
		t.Errorf("phase = %s, want done", task.Phase())
	}
	if task.Kind != jobs.KindPick {
		t.Errorf("kind = %s, want pick", task.Kind)
	}
}

func TestLifecycle(t *testing.T) {
	base, cancelBase := context.WithCancel(context.Background())
	l := NewLifecycle(base)

	first := l.Start()
	second := l.Start()
	if first.Err() == nil {
		t.Error("starting a new owner should end the previous one")
	}
	if second.Err() != nil {
		t.Error("current owner should be active")
	}

	l.Stop()
	if second.Err() == nil {
		t.Error("Stop should end the current owner")
	}
	l.Stop()

	third := l.Start()
	cancelBase()
	if third.Err() == nil {
		t.Error("owners end with the base context")
	}
}
