package logging

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/log"

	"swarmrl/internal/batch"
	"swarmrl/internal/env"
)

// Logger writes per-iteration batch summaries as CSV rows and JSON lines and
// echoes every Every-th one to the console.
type Logger struct {
	csvPath     string
	jsonPath    string
	csvFile     *os.File
	csvWriter   *csv.Writer
	jsonFile    *os.File
	console     *log.Logger
	every       int
	initialized bool
}

// NewLogger creates a new logger
func NewLogger(csvPath, jsonPath string, console *log.Logger, every int) (*Logger, error) {
	if every <= 0 {
		every = 1
	}
	l := &Logger{
		csvPath:  csvPath,
		jsonPath: jsonPath,
		console:  console,
		every:    every,
	}

	if err := os.MkdirAll(filepath.Dir(csvPath), 0755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(jsonPath), 0755); err != nil {
		return nil, err
	}

	return l, nil
}

// Init creates the log files and writes the CSV header.
func (l *Logger) Init() error {
	var err error

	l.csvFile, err = os.Create(l.csvPath)
	if err != nil {
		return err
	}
	l.csvWriter = csv.NewWriter(l.csvFile)

	header := []string{
		"run", "repeat", "iteration", "mean_reward", "mean_timestep",
		"finished", "terminated", "truncated",
	}
	if err := l.csvWriter.Write(header); err != nil {
		return err
	}

	l.jsonFile, err = os.OpenFile(l.jsonPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	l.initialized = true
	return nil
}

// Close flushes and closes all log files
func (l *Logger) Close() error {
	var first error
	if l.csvWriter != nil {
		l.csvWriter.Flush()
		first = l.csvWriter.Error()
	}
	if l.csvFile != nil {
		if err := l.csvFile.Close(); err != nil && first == nil {
			first = err
		}
	}
	if l.jsonFile != nil {
		if err := l.jsonFile.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// IterationRecord is one line of the JSONL log.
type IterationRecord struct {
	Run    string `json:"run"`
	Repeat int    `json:"repeat"`
	batch.Summary
}

// LogIteration records one batch summary.
func (l *Logger) LogIteration(run string, repeat int, sum batch.Summary) error {
	if !l.initialized {
		return nil
	}

	row := []string{
		run,
		strconv.Itoa(repeat),
		strconv.Itoa(sum.Iteration),
		strconv.FormatFloat(sum.MeanReward, 'f', 6, 64),
		fmt.Sprintf("%.2f", sum.MeanTimestep),
		strconv.Itoa(sum.Finished),
		strconv.Itoa(sum.Terminated),
		strconv.Itoa(sum.Truncated),
	}
	if err := l.csvWriter.Write(row); err != nil {
		return err
	}

	line, err := json.Marshal(IterationRecord{Run: run, Repeat: repeat, Summary: sum})
	if err != nil {
		return err
	}
	if _, err := l.jsonFile.Write(append(line, '\n')); err != nil {
		return err
	}

	if l.console != nil && sum.Iteration%l.every == 0 {
		l.csvWriter.Flush()
		l.console.Info("iteration",
			"repeat", repeat,
			"iter", sum.Iteration,
			"reward", fmt.Sprintf("%.4f", sum.MeanReward),
			"t", fmt.Sprintf("%.1f", sum.MeanTimestep),
			"terminated", sum.Terminated,
			"truncated", sum.Truncated,
		)
	}
	return nil
}

// LogEvaluation prints aggregated evaluation results.
func LogEvaluation(console *log.Logger, task string, agg env.AggregatedStats, robust float64) {
	console.Info("evaluation",
		"task", task,
		"episodes", agg.NumEpisodes,
		"return", fmt.Sprintf("%.3f±%.3f", agg.ReturnMean, agg.ReturnStd),
		"steps", fmt.Sprintf("%.1f", agg.StepsMean),
		"distance", fmt.Sprintf("%.3f", agg.DistanceMean),
		"terminated", agg.EndCounts[env.EndTerminated],
		"truncated", agg.EndCounts[env.EndTruncated],
		"robust", fmt.Sprintf("%.3f", robust),
	)
}
