package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID          string             `json:"id"`
	Robot       string             `json:"robot"`
	Pattern     string             `json:"pattern"`
	Model       string             `json:"model"`
	Timestamp   time.Time          `json:"timestamp"`
	Position    [3]float64         `json:"position"`
	Rotation    [9]float64         `json:"rotation"`
	Wrench      []float64          `json:"wrench"`
	Status      string             `json:"status"`
	Diagnostics map[string]float64 `json:"diagnostics"`
}

// CableRecord is one row of cables.csv. Angles are in degrees.
type CableRecord struct {
	Index      int        `json:"index"`
	Length     float64    `json:"length"`
	Unstrained float64    `json:"unstrained"`
	Tension    float64    `json:"tension"`
	TopTension float64    `json:"top_tension"`
	Fx         float64    `json:"fx"`
	Fz         float64    `json:"fz"`
	Swivel     float64    `json:"swivel_deg"`
	Wrap       float64    `json:"wrap_deg"`
	Direction  [3]float64 `json:"direction"`
	Exit       [3]float64 `json:"exit"`
}

type Run struct {
	Meta   RunMetadata   `json:"metadata"`
	Cables []CableRecord `json:"cables"`
}

var cableHeader = []string{
	"index", "length", "unstrained", "tension", "top_tension", "fx", "fz",
	"swivel_deg", "wrap_deg", "ux", "uy", "uz", "exit_x", "exit_y", "exit_z",
}

func (c CableRecord) row() []string {
	vals := []float64{
		c.Length, c.Unstrained, c.Tension, c.TopTension, c.Fx, c.Fz, c.Swivel, c.Wrap,
		c.Direction[0], c.Direction[1], c.Direction[2], c.Exit[0], c.Exit[1], c.Exit[2],
	}
	row := []string{strconv.Itoa(c.Index)}
	for _, v := range vals {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return row
}

func parseRow(record []string) (CableRecord, error) {
	if len(record) != len(cableHeader) {
		return CableRecord{}, fmt.Errorf("expected %d fields, got %d", len(cableHeader), len(record))
	}
	idx, err := strconv.Atoi(record[0])
	if err != nil {
		return CableRecord{}, err
	}
	vals := make([]float64, len(record)-1)
	for i, f := range record[1:] {
		if vals[i], err = strconv.ParseFloat(f, 64); err != nil {
			return CableRecord{}, fmt.Errorf("%s: %w", cableHeader[i+1], err)
		}
	}
	return CableRecord{
		Index:      idx,
		Length:     vals[0],
		Unstrained: vals[1],
		Tension:    vals[2],
		TopTension: vals[3],
		Fx:         vals[4],
		Fz:         vals[5],
		Swivel:     vals[6],
		Wrap:       vals[7],
		Direction:  [3]float64{vals[8], vals[9], vals[10]},
		Exit:       [3]float64{vals[11], vals[12], vals[13]},
	}, nil
}

// Save writes metadata.json and cables.csv into a new run directory and
// returns the run ID.
func (s *Store) Save(run *Run) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", run.Meta.Robot, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := run.Meta
	meta.ID = runID
	meta.Timestamp = now

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "cables.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	if err := w.Write(cableHeader); err != nil {
		return "", err
	}
	for _, c := range run.Cables {
		if err := w.Write(c.row()); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	run.Meta = meta
	return runID, nil
}

// List returns all runs, oldest first. Directories without readable
// metadata are skipped.
func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (s *Store) LoadCables(runID string) ([]CableRecord, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "cables.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return []CableRecord{}, nil
	}

	cables := make([]CableRecord, 0, len(records)-1)
	for i, record := range records[1:] {
		c, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("cables.csv line %d: %w", i+2, err)
		}
		cables = append(cables, c)
	}
	return cables, nil
}

// LoadRun reads both files of a run.
func (s *Store) LoadRun(runID string) (*Run, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	cables, err := s.LoadCables(runID)
	if err != nil {
		return nil, err
	}
	return &Run{Meta: *meta, Cables: cables}, nil
}
