package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/models"
	"github.com/joshsymonds/advisor/internal/pipeline"
	"github.com/joshsymonds/advisor/pkg/logger"
)

type fakeReader struct {
	msgs      chan kafka.Message
	committed []kafka.Message
	mu        sync.Mutex
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	ch := make(chan kafka.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	return &fakeReader{msgs: ch}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type fakeWriter struct {
	err  error
	msgs []kafka.Message
	mu   sync.Mutex
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type fakeJobs struct {
	err   error
	calls []string
	mu    sync.Mutex
}

func (j *fakeJobs) record(call string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call)
	return j.err
}

func (j *fakeJobs) Ingest(_ context.Context, reportID, fileRef string) (*pipeline.IngestResult, error) {
	return nil, j.record("ingest " + reportID + " " + fileRef)
}

func (j *fakeJobs) Generate(_ context.Context, reportID string, rt models.ReportType) (*pipeline.GenerateResult, error) {
	return nil, j.record("generate " + reportID + " " + string(rt))
}

func (j *fakeJobs) Recategorize(_ context.Context, f pipeline.RecategorizeFilter) (*pipeline.RecategorizeResult, error) {
	return nil, j.record("recategorize " + string(f.Scope))
}

func (j *fakeJobs) seen() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Message
		wantErr bool
	}{
		{
			name: "ingest",
			body: `{"kind":"ingest","report_id":"r1","file_ref":"uploads/r1/export.csv"}`,
			want: Message{Kind: KindIngest, ReportID: "r1", FileRef: "uploads/r1/export.csv"},
		},
		{
			name: "generate",
			body: `{"kind":"generate","report_id":"r1","report_type":"cost"}`,
			want: Message{Kind: KindGenerate, ReportID: "r1", ReportType: models.ReportCost},
		},
		{
			name: "recategorize",
			body: `{"kind":"recategorize","filter":"uncategorized_only"}`,
			want: Message{Kind: KindRecategorize, Filter: database.ScopeUncategorizedOnly},
		},
		{name: "not json", body: `kind=ingest`, wantErr: true},
		{name: "unknown kind", body: `{"kind":"delete"}`, wantErr: true},
		{name: "ingest without report", body: `{"kind":"ingest"}`, wantErr: true},
		{name: "bad report type", body: `{"kind":"generate","report_id":"r1","report_type":"weekly"}`, wantErr: true},
		{name: "bad filter", body: `{"kind":"recategorize","filter":"some"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMessage([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProducerPublish(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "advisor-jobs", logger.NewMockLogger())

	require.NoError(t, p.Publish(context.Background(), Message{Kind: KindGenerate, ReportID: "r1", ReportType: models.ReportSecurity}))
	msgs := w.written()
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("r1"), msgs[0].Key)
	assert.JSONEq(t, `{"kind":"generate","report_id":"r1","report_type":"security"}`, string(msgs[0].Value))
	assert.Equal(t, 1, attemptOf(msgs[0]))

	require.Error(t, p.Publish(context.Background(), Message{Kind: "nope"}))

	w.err = errors.New("broker down")
	require.ErrorContains(t, p.Publish(context.Background(), Message{Kind: KindRecategorize}), "broker down")
}

func TestConsumerDispatchesAndCommits(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte(`{"kind":"ingest","report_id":"r1","file_ref":"uploads/r1/a.csv"}`)},
		kafka.Message{Offset: 2, Value: []byte(`garbage`)},
		kafka.Message{Offset: 3, Value: []byte(`{"kind":"generate","report_id":"r1","report_type":"cost"}`)},
		kafka.Message{Offset: 4, Value: []byte(`{"kind":"recategorize","filter":"all"}`)},
	)
	jobs := &fakeJobs{}
	log := logger.NewMockLogger()
	c := newConsumer(reader, jobs, nil, log)

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return reader.commits() == 4 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop())

	assert.Equal(t, []string{"ingest r1 uploads/r1/a.csv", "generate r1 cost", "recategorize all"}, jobs.seen())
	assert.True(t, log.HasMessage("ERROR", "Dropping invalid message"))
	assert.True(t, reader.closed)
}

func TestConsumerRequeuesRetryableFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		headers    []kafka.Header
		wantWrites int
	}{
		{name: "retryable job error", err: &pipeline.JobError{Kind: "generate", Err: errors.New("conversion failed"), Retryable: true}, wantWrites: 1},
		{name: "lock held elsewhere", err: pipeline.ErrJobInFlight, wantWrites: 1},
		{name: "permanent failure", err: &pipeline.JobError{Kind: "ingest", Err: pipeline.ErrNoValidRows}, wantWrites: 0},
		{name: "retry exhausted", err: pipeline.ErrRetryExhausted, wantWrites: 0},
		{
			name:       "attempts used up",
			err:        pipeline.ErrJobInFlight,
			headers:    []kafka.Header{{Key: AttemptHeader, Value: []byte("5")}},
			wantWrites: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWriter{}
			c := newConsumer(nil, &fakeJobs{err: tt.err}, newProducer(w, "advisor-jobs", logger.NewMockLogger()), logger.NewMockLogger())

			c.handle(context.Background(), kafka.Message{
				Value:   []byte(`{"kind":"generate","report_id":"r1"}`),
				Headers: tt.headers,
			})

			msgs := w.written()
			require.Len(t, msgs, tt.wantWrites)
			if tt.wantWrites > 0 {
				assert.Equal(t, 2, attemptOf(msgs[0]))
			}
		})
	}
}
