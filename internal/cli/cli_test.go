package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/sirkon/deepequal"
	"github.com/spf13/cobra"

	"github.com/nace/ddrmount/internal/device"
	"github.com/nace/ddrmount/internal/fault"
	"github.com/nace/ddrmount/internal/mapfile"
	"github.com/nace/ddrmount/internal/registry"
	"github.com/nace/ddrmount/internal/system/mocks"
	"github.com/nace/ddrmount/internal/ui"
)

const sampleMap = `# Mapfile. Created by GNU ddrescue version 1.27
# current_pos  current_status  current_pass
0x00000000     ?               1
#      pos        size  status
0x00000000  0x00000200  +
0x00000200  0x00000400  -
`

const sampleTable = "0 1 linear /dev/loop5 0\n1 2 error\n"

type fixture struct {
	ctx    *GlobalContext
	runner *mocks.RunnerMock
	log    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	m := mocks.NewRunnerMock(ctrl)
	var log bytes.Buffer

	return &fixture{
		ctx: &GlobalContext{
			Logger:      ui.NewLoggerTo(&log, true, false, true),
			LoopManager: device.NewLoopManager(m),
			MapperMgr:   device.NewMapperManager(m),
			RegistryDir: t.TempDir(),
		},
		runner: m,
		log:    &log,
	}
}

func (f *fixture) seed(t *testing.T, devices ...registry.Device) {
	t.Helper()

	reg, err := registry.Open(f.ctx.RegistryDir, registry.ReadWrite)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range devices {
		reg.Insert(d.Slot, d.ImageFile, d.ImageMountPoint, d.DMMountPoint)
	}
	if err := reg.Close(); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) devices(t *testing.T) []registry.Device {
	t.Helper()

	reg, err := registry.Open(f.ctx.RegistryDir, registry.ReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer reg.Close()
	return reg.Devices()
}

func sample(t *testing.T) *mapfile.Map {
	t.Helper()

	m, err := mapfile.Parse("disk.map", sampleMap)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMountRegistersDevice(t *testing.T) {
	f := newFixture(t)
	f.seed(t, registry.Device{Slot: 1, ImageFile: "/images/old.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"})

	gomock.InOrder(
		f.runner.EXPECT().
			RunOutput("losetup", "-f", "--show", "-r", "-b", "512", "/images/disk.img").
			Return("/dev/loop5\n", nil),
		f.runner.EXPECT().
			RunInput(sampleTable, "dmsetup", "create", "ddrm2").
			Return("", nil),
	)

	var out bytes.Buffer
	cmd := &MountCommand{ctx: f.ctx, out: &out, blockSize: 512}
	if err := cmd.execute("/images/disk.img", sample(t)); err != nil {
		t.Fatalf("mount failed: %v", err)
	}

	if got := out.String(); got != "/images/disk.img is mounted at /dev/mapper/ddrm2\n" {
		t.Errorf("output = %q", got)
	}

	want := []registry.Device{
		{Slot: 1, ImageFile: "/images/old.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"},
		{Slot: 2, ImageFile: "/images/disk.img", ImageMountPoint: "/dev/loop5", DMMountPoint: "ddrm2"},
	}
	got := f.devices(t)
	if !deepequal.Equal(want, got) {
		t.Error("registry mismatch")
		deepequal.SideBySide(t, "devices", want, got)
	}
}

func TestMountDetachesLoopOnMapperFailure(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.runner.EXPECT().
			RunOutput("losetup", "-f", "--show", "-r", "-b", "4096", "/images/disk.img").
			Return("/dev/loop5\n", nil),
		f.runner.EXPECT().
			RunInput(sampleTable, "dmsetup", "create", "ddrm1").
			Return("", errors.New("device-mapper: reload ioctl failed")),
		f.runner.EXPECT().
			Run("losetup", "-d", "/dev/loop5").
			Return(errors.New("detach failed too")),
	)

	var out bytes.Buffer
	cmd := &MountCommand{ctx: f.ctx, out: &out, blockSize: 4096}
	err := cmd.execute("/images/disk.img", sample(t))
	if err == nil {
		t.Fatal("expected mount to fail")
	}
	if kind := fault.KindOf(err); kind != fault.Mount {
		t.Errorf("kind = %s, want %s", kind, fault.Mount)
	}
	if strings.Contains(err.Error(), "detach failed too") {
		t.Errorf("cleanup failure leaked into the reported error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
	if devices := f.devices(t); len(devices) != 0 {
		t.Errorf("failed mount left records: %+v", devices)
	}
}

func TestMountRollsBackWhenRecordCannotBeSaved(t *testing.T) {
	f := newFixture(t)
	registryFile := filepath.Join(f.ctx.RegistryDir, "config.json")

	gomock.InOrder(
		f.runner.EXPECT().
			RunOutput("losetup", "-f", "--show", "-r", "-b", "512", "/images/disk.img").
			Return("/dev/loop5\n", nil),
		f.runner.EXPECT().
			RunInput(sampleTable, "dmsetup", "create", "ddrm1").
			DoAndReturn(func(input, name string, args ...string) (string, error) {
				// A directory in place of the registry file makes the rename fail
				return "", os.MkdirAll(filepath.Join(registryFile, "blocker"), 0o755)
			}),
		f.runner.EXPECT().
			Run("dmsetup", "remove", "ddrm1").
			Return(nil),
		f.runner.EXPECT().
			Run("losetup", "-d", "/dev/loop5").
			Return(nil),
	)

	var out bytes.Buffer
	cmd := &MountCommand{ctx: f.ctx, out: &out, blockSize: 512}
	err := cmd.execute("/images/disk.img", sample(t))
	if kind := fault.KindOf(err); kind != fault.Config {
		t.Errorf("kind = %s, want %s: %v", kind, fault.Config, err)
	}
	if out.Len() != 0 {
		t.Errorf("unexpected output %q", out.String())
	}
	if !strings.Contains(f.log.String(), "Unable to record /dev/mapper/ddrm1") {
		t.Errorf("orphaned device was not logged:\n%s", f.log.String())
	}
}

func TestMountLoopFailure(t *testing.T) {
	f := newFixture(t)

	f.runner.EXPECT().
		RunOutput("losetup", gomock.Any()).
		Return("", errors.New("losetup: cannot find an unused loop device"))

	cmd := &MountCommand{ctx: f.ctx, out: &bytes.Buffer{}, blockSize: 512}
	err := cmd.execute("/images/disk.img", sample(t))
	if kind := fault.KindOf(err); kind != fault.Mount {
		t.Errorf("kind = %s, want %s: %v", kind, fault.Mount, err)
	}
}

func TestUnmount(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		registry.Device{Slot: 1, ImageFile: "/images/a.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"},
		registry.Device{Slot: 2, ImageFile: "/images/b.img", ImageMountPoint: "/dev/loop2", DMMountPoint: "ddrm2"},
	)

	gomock.InOrder(
		f.runner.EXPECT().Run("dmsetup", "remove", "ddrm2").Return(nil),
		f.runner.EXPECT().Run("losetup", "-d", "/dev/loop2").Return(nil),
	)

	cmd := &UnmountCommand{ctx: f.ctx}
	if err := cmd.execute("/dev/mapper/ddrm2"); err != nil {
		t.Fatalf("unmount failed: %v", err)
	}

	want := []registry.Device{
		{Slot: 1, ImageFile: "/images/a.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"},
	}
	got := f.devices(t)
	if !deepequal.Equal(want, got) {
		t.Error("registry mismatch")
		deepequal.SideBySide(t, "devices", want, got)
	}
}

func TestUnmountUnknownDevice(t *testing.T) {
	f := newFixture(t)
	seeded := registry.Device{Slot: 1, ImageFile: "/images/a.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"}
	f.seed(t, seeded)

	cmd := &UnmountCommand{ctx: f.ctx}
	err := cmd.execute("ddrm7")
	if err == nil {
		t.Fatal("expected a lookup error")
	}
	if kind := fault.KindOf(err); kind != fault.Unmount {
		t.Errorf("kind = %s, want %s", kind, fault.Unmount)
	}
	if !strings.Contains(err.Error(), "ddrm7") {
		t.Errorf("error does not name the device: %v", err)
	}

	got := f.devices(t)
	if !deepequal.Equal([]registry.Device{seeded}, got) {
		t.Error("registry changed")
		deepequal.SideBySide(t, "devices", []registry.Device{seeded}, got)
	}
}

func TestUnmountMapperFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.seed(t, registry.Device{Slot: 1, ImageFile: "/images/a.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"})

	f.runner.EXPECT().Run("dmsetup", "remove", "ddrm1").Return(errors.New("device or resource busy"))

	cmd := &UnmountCommand{ctx: f.ctx}
	err := cmd.execute("ddrm1")
	if kind := fault.KindOf(err); kind != fault.Unmount {
		t.Errorf("kind = %s, want %s: %v", kind, fault.Unmount, err)
	}
	if devices := f.devices(t); len(devices) != 1 {
		t.Errorf("record was dropped: %+v", devices)
	}
}

func TestUnmountLoopFailureDropsRecord(t *testing.T) {
	f := newFixture(t)
	f.seed(t, registry.Device{Slot: 1, ImageFile: "/images/a.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"})

	gomock.InOrder(
		f.runner.EXPECT().Run("dmsetup", "remove", "ddrm1").Return(nil),
		f.runner.EXPECT().Run("losetup", "-d", "/dev/loop1").Return(errors.New("no such device")),
	)

	cmd := &UnmountCommand{ctx: f.ctx}
	if err := cmd.execute("ddrm1"); err != nil {
		t.Fatalf("unmount failed: %v", err)
	}
	if devices := f.devices(t); len(devices) != 0 {
		t.Errorf("record survived: %+v", devices)
	}
	if !strings.Contains(f.log.String(), "[WARNING] Failed to detach loop device") {
		t.Errorf("missing warning in log:\n%s", f.log.String())
	}
}

func TestUnmountAllContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		registry.Device{Slot: 1, ImageFile: "/images/a.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"},
		registry.Device{Slot: 2, ImageFile: "/images/b.img", ImageMountPoint: "/dev/loop2", DMMountPoint: "ddrm2"},
		registry.Device{Slot: 3, ImageFile: "/images/c.img", ImageMountPoint: "/dev/loop3", DMMountPoint: "ddrm3"},
	)

	gomock.InOrder(
		f.runner.EXPECT().Run("dmsetup", "remove", "ddrm1").Return(nil),
		f.runner.EXPECT().Run("losetup", "-d", "/dev/loop1").Return(nil),
		f.runner.EXPECT().Run("dmsetup", "remove", "ddrm2").Return(errors.New("busy")),
		f.runner.EXPECT().Run("dmsetup", "remove", "ddrm3").Return(nil),
		f.runner.EXPECT().Run("losetup", "-d", "/dev/loop3").Return(nil),
	)

	cmd := &UnmountAllCommand{ctx: f.ctx, yes: true}
	err := cmd.execute()
	if kind := fault.KindOf(err); kind != fault.Unmount {
		t.Errorf("kind = %s, want %s: %v", kind, fault.Unmount, err)
	}

	want := []registry.Device{
		{Slot: 2, ImageFile: "/images/b.img", ImageMountPoint: "/dev/loop2", DMMountPoint: "ddrm2"},
	}
	got := f.devices(t)
	if !deepequal.Equal(want, got) {
		t.Error("registry mismatch")
		deepequal.SideBySide(t, "devices", want, got)
	}
}

func TestUnmountAllDeclined(t *testing.T) {
	f := newFixture(t)
	f.seed(t, registry.Device{Slot: 1, ImageFile: "/images/a.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"})

	asked := false
	cmd := &UnmountAllCommand{ctx: f.ctx, confirm: func(string) bool {
		asked = true
		return false
	}}
	if err := cmd.execute(); err != nil {
		t.Fatal(err)
	}
	if !asked {
		t.Error("no confirmation was requested")
	}
	if devices := f.devices(t); len(devices) != 1 {
		t.Errorf("declined unmount-all changed the registry: %+v", devices)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		registry.Device{Slot: 1, ImageFile: "/images/a.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"},
		registry.Device{Slot: 2, ImageFile: "/images/bigger.img", ImageMountPoint: "/dev/loop2", DMMountPoint: "ddrm2"},
	)

	var out bytes.Buffer
	cmd := &ListCommand{ctx: f.ctx}
	if err := cmd.execute(&out); err != nil {
		t.Fatal(err)
	}

	want := "/images/a.img       => /dev/mapper/ddrm1\n" +
		"/images/bigger.img  => /dev/mapper/ddrm2\n"
	if out.String() != want {
		t.Errorf("listing = %q, want %q", out.String(), want)
	}
}

func TestListVerbose(t *testing.T) {
	f := newFixture(t)
	f.seed(t,
		registry.Device{Slot: 1, ImageFile: "/images/a.img", ImageMountPoint: "/dev/loop1", DMMountPoint: "ddrm1"},
		registry.Device{Slot: 2, ImageFile: "/images/b.img", ImageMountPoint: "/dev/loop2", DMMountPoint: "ddrm2"},
	)

	f.runner.EXPECT().RunOutput("dmsetup", "ls").Return("ddrm1\t(253:0)\n", nil)

	var out bytes.Buffer
	cmd := &ListCommand{ctx: f.ctx, verbose: true}
	if err := cmd.execute(&out); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"Image: /images/a.img\n  Mapper: /dev/mapper/ddrm1\n  Loop Device: /dev/loop1\n  Slot: 1\n  State: active\n",
		"Image: /images/b.img\n  Mapper: /dev/mapper/ddrm2\n  Loop Device: /dev/loop2\n  Slot: 2\n  State: missing\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("verbose listing misses %q:\n%s", want, out.String())
		}
	}
}

func TestListJSONEmpty(t *testing.T) {
	f := newFixture(t)

	var out bytes.Buffer
	cmd := &ListCommand{ctx: f.ctx, json: true}
	if err := cmd.execute(&out); err != nil {
		t.Fatal(err)
	}
	if out.String() != "[]\n" {
		t.Errorf("json listing = %q, want []", out.String())
	}
}

func TestReport(t *testing.T) {
	_, parseErr := mapfile.Parse("disk.map", "0x0 ? 1\n0x0 0x201 +\n")

	tests := []struct {
		name     string
		err      error
		code     int
		contains string
	}{
		{name: "success", err: nil, code: 0},
		{name: "parse error", err: parseErr, code: 7, contains: " 1 | 0x0 0x201 +"},
		{name: "sector size", err: fault.New(fault.SectorSize, "Sector size is not a multiple of 512"), code: 9, contains: "Sector size"},
		{name: "untyped", err: errors.New(`unknown command "frob"`), code: 2, contains: "frob"},
		{name: "wrapped", err: runErr(errors.New("boom")), code: 10, contains: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := ui.NewLoggerTo(&buf, false, false, true)

			if code := Report(logger, tt.err); code != tt.code {
				t.Errorf("exit code = %d, want %d", code, tt.code)
			}
			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("report %q does not contain %q", buf.String(), tt.contains)
			}
		})
	}
}

func runErr(err error) error {
	return runE(func(_ *cobra.Command, _ []string) error { return err })(nil, nil)
}
