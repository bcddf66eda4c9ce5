package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/cablekin/internal/catenary"
	"github.com/san-kum/cablekin/internal/cdpr"
	"github.com/san-kum/cablekin/internal/geom"
	"github.com/san-kum/cablekin/internal/kinematics"
	"github.com/san-kum/cablekin/internal/robot"
	"gonum.org/v1/gonum/spatial/r3"
)

func squareRobot() *robot.Robot {
	corners := [][2]float64{{0, 0}, {2, 0}, {2, 2}, {0, 2}}
	r := &robot.Robot{
		Name:     "square",
		Pattern:  cdpr.Pattern3T,
		Material: &robot.Material{Density: 0.1, CrossSection: 1e-6, Young: 1e9},
	}
	for _, c := range corners {
		r.Cables = append(r.Cables, robot.Cable{
			Pulley:   robot.Pulley{Position: r3.Vec{X: c[0], Y: c[1]}, Orientation: geom.Identity(), Radius: 0.05},
			Anchor:   r3.Vec{X: (c[0] - 1) / 10, Y: (c[1] - 1) / 10, Z: 0.5},
			MinForce: 10,
			MaxForce: 1000,
		})
	}
	return r
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	rb := squareRobot()
	pose := geom.At(1, 1, -1.5)
	kin, dist, err := kinematics.Distribute(rb, pose, []float64{0, 0, -50, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	run := FromKinematics(rb, "pulley", kin, []float64{0, 0, -50}, dist)

	runID, err := st.Save(run)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if runID == "" || run.Meta.ID != runID {
		t.Errorf("run id %q, metadata id %q", runID, run.Meta.ID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if meta.Robot != "square" || meta.Pattern != "3T" || meta.Model != "pulley" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if meta.Rotation != geom.Identity() || meta.Position[2] != -1.5 {
		t.Errorf("pose not stored: %v %v", meta.Position, meta.Rotation)
	}

	cables, err := st.LoadCables(runID)
	if err != nil {
		t.Fatalf("load cables failed: %v", err)
	}
	if len(cables) != 4 {
		t.Fatalf("expected 4 cables, got %d", len(cables))
	}
	for i, c := range cables {
		if c != run.Cables[i] {
			t.Errorf("cable %d: %+v, saved %+v", i, c, run.Cables[i])
		}
		if math.Abs(c.Tension-dist.Forces[i]) > 1e-12 {
			t.Errorf("cable %d: tension %v, want %v", i, c.Tension, dist.Forces[i])
		}
		if math.Abs(math.Hypot(c.Fx, c.Fz)-c.Tension) > 1e-9 {
			t.Errorf("cable %d: force components do not add up", i)
		}
	}
}

func TestList(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "runs"))

	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Fatalf("missing directory should list nothing: %v %v", runs, err)
	}
	if err := st.Init(); err != nil {
		t.Fatal(err)
	}

	first := &Run{Meta: RunMetadata{Robot: "a"}}
	second := &Run{Meta: RunMetadata{Robot: "b"}}
	if _, err := st.Save(first); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Save(second); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(st.baseDir, "junk"), 0755); err != nil {
		t.Fatal(err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].Robot != "a" || runs[1].Robot != "b" {
		t.Errorf("unexpected runs %+v", runs)
	}

	loaded, err := st.LoadRun(second.Meta.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Cables) != 0 {
		t.Errorf("expected no cables, got %v", loaded.Cables)
	}
}

func TestLoadCablesRejectsBadRows(t *testing.T) {
	st := New(t.TempDir())
	dir := filepath.Join(st.baseDir, "broken")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data := "index,length\n0,abc\n"
	if err := os.WriteFile(filepath.Join(dir, "cables.csv"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := st.LoadCables("broken"); err == nil {
		t.Error("expected parse error")
	}
}

func TestExportCatenary(t *testing.T) {
	rb := squareRobot()
	res, err := catenary.Solve(context.Background(), rb, geom.At(1, 1, -1.5),
		[]float64{0, 0, -50, 0, 0, 0}, catenary.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	run := FromCatenary(rb, res)
	if run.Meta.Status != "converged" || run.Meta.Diagnostics["wrap_iterations"] < 1 {
		t.Errorf("unexpected metadata %+v", run.Meta)
	}

	var buf bytes.Buffer
	if err := ExportJSON(&buf, run); err != nil {
		t.Fatal(err)
	}
	var back Run
	if err := json.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatal(err)
	}
	if len(back.Cables) != 4 || back.Cables[2].Swivel != run.Cables[2].Swivel {
		t.Errorf("export lost data: %+v", back)
	}
	if math.Abs(back.Cables[0].Swivel-45) > 1e-9 {
		t.Errorf("swivel should be stored in degrees, got %v", back.Cables[0].Swivel)
	}

	path := filepath.Join(t.TempDir(), "run.json")
	if err := ExportJSONFile(path, run); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() != int64(buf.Len()) {
		t.Errorf("file export differs from stream export: %v", err)
	}
}
