package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	apperrors "github.com/gcbaptista/go-search-pipeline/internal/errors"
	"github.com/gcbaptista/go-search-pipeline/model"
)

// fakeProcessor appends a marker rescore before optionally failing.
type fakeProcessor struct {
	tag    string
	ignore bool
	fail   bool
}

func (p *fakeProcessor) Type() string        { return "fake" }
func (p *fakeProcessor) Tag() string         { return p.tag }
func (p *fakeProcessor) Description() string { return "" }
func (p *fakeProcessor) IgnoreFailure() bool { return p.ignore }

func (p *fakeProcessor) ProcessRequest(_ context.Context, req *model.SearchRequest) (*model.SearchRequest, error) {
	req.AddRescore(model.NewQueryRescore(model.NewOpaque("match_all", []byte(`{}`)), len(req.Rescores)+1))
	if p.fail {
		return nil, errors.New("fake failure")
	}
	return req, nil
}

type countingRecorder struct {
	runs     int
	failures map[bool]int
}

func (r *countingRecorder) RecordPipelineRun(string, error, time.Duration) { r.runs++ }
func (r *countingRecorder) RecordProcessorFailure(_ string, ignored bool) {
	if r.failures == nil {
		r.failures = make(map[bool]int)
	}
	r.failures[ignored]++
}

func fakeFactories() Factories {
	factories := NewFactories()
	factories["fake"] = func(cfg map[string]any, _ Dependencies) (RequestProcessor, error) {
		p := &fakeProcessor{}
		p.tag, _ = cfg["tag"].(string)
		p.ignore, _ = cfg["ignore_failure"].(bool)
		p.fail, _ = cfg["fail"].(bool)
		return p, nil
	}
	return factories
}

func fakeDefinition(configs ...map[string]any) model.PipelineDefinition {
	var def model.PipelineDefinition
	for _, cfg := range configs {
		def.RequestProcessors = append(def.RequestProcessors, model.ProcessorDefinition{Type: "fake", Config: cfg})
	}
	return def
}

func TestPipeline_ProcessorsRunInOrder(t *testing.T) {
	p, err := Build("p", fakeDefinition(map[string]any{"tag": "one"}, map[string]any{"tag": "two"}), fakeFactories(), Dependencies{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	out, err := p.Process(context.Background(), model.NewSearchRequest(nil))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(out.Rescores) != 2 || *out.Rescores[0].WindowSize != 1 || *out.Rescores[1].WindowSize != 2 {
		t.Errorf("Expected two rescores added in order, got %+v", out.Rescores)
	}
}

func TestPipeline_IgnoredFailureRestoresRequest(t *testing.T) {
	recorder := &countingRecorder{}
	def := fakeDefinition(
		map[string]any{"tag": "first"},
		map[string]any{"tag": "broken", "fail": true, "ignore_failure": true},
		map[string]any{"tag": "last"},
	)
	p, err := Build("p", def, fakeFactories(), Dependencies{Recorder: recorder})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	out, err := p.Process(context.Background(), model.NewSearchRequest(nil))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if len(out.Rescores) != 2 {
		t.Errorf("Expected the failing processor's change to be discarded, got %d rescores", len(out.Rescores))
	}
	if recorder.runs != 1 || recorder.failures[true] != 1 {
		t.Errorf("Unexpected recorder state: %+v", recorder)
	}
}

func TestPipeline_FailureAborts(t *testing.T) {
	recorder := &countingRecorder{}
	def := fakeDefinition(map[string]any{"tag": "broken", "fail": true}, map[string]any{"tag": "never"})
	p, err := Build("p", def, fakeFactories(), Dependencies{Recorder: recorder})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	_, err = p.Process(context.Background(), model.NewSearchRequest(nil))
	if err == nil {
		t.Fatal("Expected processor failure")
	}
	if err.Error() != "processor [fake:broken] failed: fake failure" {
		t.Errorf("Unexpected error message: %s", err.Error())
	}
	if recorder.failures[false] != 1 {
		t.Errorf("Expected one non-ignored failure, got %+v", recorder.failures)
	}
}

func TestPipeline_TwoPhaseIgnoreFailure(t *testing.T) {
	def := model.PipelineDefinition{RequestProcessors: []model.ProcessorDefinition{{
		Type: "neural_sparse_two_phase_processor",
		Config: map[string]any{
			"ignore_failure":      true,
			"two_phase_parameter": map[string]any{"max_window_size": 50},
		},
	}}}
	p, err := Build("p", def, NewFactories(), Dependencies{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	req := sparseRequest(20)
	before, err := req.Clone()
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	out, err := p.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Expected the window size error to be ignored, got %v", err)
	}
	if !reflect.DeepEqual(out, before) {
		t.Error("Expected the request to pass through unchanged")
	}
}

func TestPipeline_CanceledContext(t *testing.T) {
	p, err := Build("p", fakeDefinition(map[string]any{}), fakeFactories(), Dependencies{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Process(ctx, model.NewSearchRequest(nil)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestPipeline_NilRequest(t *testing.T) {
	p, err := Build("p", fakeDefinition(), fakeFactories(), Dependencies{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if _, err := p.Process(context.Background(), nil); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestPipeline_InvalidRequest(t *testing.T) {
	recorder := &countingRecorder{}
	p, err := Build("p", fakeDefinition(map[string]any{}), fakeFactories(), Dependencies{Recorder: recorder})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	req := model.NewSearchRequest(model.NewSparse(&model.SparseQuery{
		Field:       "f",
		QueryTokens: map[string]float64{"a": -1},
		Boost:       1.0,
	}))

	if _, err := p.Process(context.Background(), req); !errors.Is(err, apperrors.ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest, got %v", err)
	}
	if len(req.Rescores) != 0 || recorder.runs != 0 {
		t.Errorf("Expected no processor to run, got %d rescores and %d runs", len(req.Rescores), recorder.runs)
	}
}

func TestBuild_ReportsProcessorIndex(t *testing.T) {
	def := fakeDefinition(map[string]any{})
	def.RequestProcessors = append(def.RequestProcessors, model.ProcessorDefinition{
		Type:   "neural_sparse_two_phase_processor",
		Config: map[string]any{"two_phase_parameter": map[string]any{"prune_ratio": 3}},
	})

	_, err := Build("p", def, fakeFactories(), Dependencies{})
	if err == nil {
		t.Fatal("Expected build error")
	}
	if !errors.Is(err, apperrors.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration, got %v", err)
	}
	expectedPrefix := "request_processors[1] [neural_sparse_two_phase_processor]: "
	if len(err.Error()) < len(expectedPrefix) || err.Error()[:len(expectedPrefix)] != expectedPrefix {
		t.Errorf("Expected error to start with '%s', got '%s'", expectedPrefix, err.Error())
	}
}
