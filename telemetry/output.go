package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/texbake/config"
)

// CSV file names inside the output directory.
const (
	FramesFile = "frames.csv"
	PassesFile = "passes.csv"
	PerfFile   = "perf.csv"
	ConfigFile = "config.yaml"
)

// csvSink appends records to one CSV file, writing the header once.
// The file is created on the first write.
type csvSink struct {
	path          string
	file          *os.File
	headerWritten bool
}

func (s *csvSink) write(records any) error {
	if s.file == nil {
		f, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Base(s.path), err)
		}
		s.file = f
	}

	if !s.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, s.file); err != nil {
			return fmt.Errorf("writing %s: %w", filepath.Base(s.path), err)
		}
		s.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, s.file); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(s.path), err)
	}
	return nil
}

func (s *csvSink) close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// OutputManager handles run output with CSV logging.
type OutputManager struct {
	dir    string
	frames csvSink
	passes csvSink
	perf   csvSink
}

// NewOutputManager creates the output directory.
// Returns nil if dir is empty (output disabled); every method is a no-op on
// a nil manager.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &OutputManager{
		dir:    dir,
		frames: csvSink{path: filepath.Join(dir, FramesFile)},
		passes: csvSink{path: filepath.Join(dir, PassesFile)},
		perf:   csvSink{path: filepath.Join(dir, PerfFile)},
	}, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, ConfigFile))
}

// WriteFrame appends a blue-noise frame record to frames.csv.
func (om *OutputManager) WriteFrame(r FrameRecord) error {
	if om == nil {
		return nil
	}
	return om.frames.write([]FrameRecord{r})
}

// WritePass appends a curvature-flow pass record to passes.csv.
func (om *OutputManager) WritePass(r PassRecord) error {
	if om == nil {
		return nil
	}
	return om.passes.write([]PassRecord{r})
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, frameEnd int) error {
	if om == nil {
		return nil
	}
	return om.perf.write([]PerfStatsCSV{stats.ToCSV(frameEnd)})
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Path joins name onto the output directory.
func (om *OutputManager) Path(name string) string {
	return filepath.Join(om.Dir(), name)
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	return errors.Join(om.frames.close(), om.passes.close(), om.perf.close())
}
