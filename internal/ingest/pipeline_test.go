package ingest

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/dcsense-core/internal/infrastructure/metrics"
)

func TestSubmit_RejectsInvalidBatches(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	mixed := append(batchFor(7, 1000, 2), batchFor(8, 1000, 1)...)

	tests := []struct {
		name  string
		batch []RawReading
		want  error
	}{
		{"nil", nil, ErrEmptyBatch},
		{"empty", []RawReading{}, ErrEmptyBatch},
		{"mixed controllers", mixed, ErrMixedControllers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tp.Submit(ctx, tt.batch); !errors.Is(err, tt.want) {
				t.Fatalf("Submit() error = %v, want %v", err, tt.want)
			}
		})
	}

	// Rejected batches must not touch any state.
	for _, id := range []int64{7, 8} {
		if _, exists, _ := tp.counters.Get(ctx, id); exists {
			t.Errorf("counter for controller %d exists after rejected batch", id)
		}
		if n, _ := tp.research.Count(ctx, id); n != 0 {
			t.Errorf("research count for controller %d = %d, want 0", id, n)
		}
	}
}

func TestEpochToTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int64
	}{
		{1772355600, 1772355600000},
		{1772355600.25, 1772355600250},
		{1772355600.0004, 1772355600000},
		{1772355600.0006, 1772355600001},
		{0, 0},
		{-62167219200, -62167219200000},
		{253402300799.999, 253402300799999},
	}
	for _, tt := range tests {
		got, err := EpochToTime(tt.seconds)
		if err != nil {
			t.Fatalf("EpochToTime(%v) error = %v", tt.seconds, err)
		}
		if got.UnixMilli() != tt.want {
			t.Errorf("EpochToTime(%v) = %d ms, want %d", tt.seconds, got.UnixMilli(), tt.want)
		}
		if got.Location() != time.UTC {
			t.Errorf("EpochToTime(%v) location = %v, want UTC", tt.seconds, got.Location())
		}
	}
}

func TestEpochToTime_OutOfRange(t *testing.T) {
	for _, seconds := range []float64{
		math.NaN(), math.Inf(1), math.Inf(-1),
		1e17, 1e19, -1e19,
		-62167219200.001,  // just before year 0
		253402300800,      // first instant of year 10000
		253402300799.9996, // rounds up into year 10000
	} {
		if got, err := EpochToTime(seconds); !errors.Is(err, ErrInvalidTime) {
			t.Errorf("EpochToTime(%v) = %v, %v; want ErrInvalidTime", seconds, got, err)
		}
	}
}

func TestSubmit_RejectsNonFiniteTime(t *testing.T) {
	for _, seconds := range []float64{math.NaN(), math.Inf(1), 1e17, 1e19, -1e19} {
		tp := newTestPipeline(t)
		setCounter(t, tp.db, 7, DefaultThreshold)
		batch := batchFor(7, 1000, 1)
		batch[0].Time = seconds

		if _, err := tp.Submit(context.Background(), batch); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("Submit(time=%v) error = %v, want ErrInvalidTime", seconds, err)
		}

		// Nothing stored and the counter untouched, so a rejected batch can
		// never reach the production listings.
		dates, err := tp.production.ListDates(context.Background(), 7, 0)
		if err != nil {
			t.Fatalf("ListDates() error = %v", err)
		}
		if len(dates) != 0 {
			t.Errorf("time=%v: production dates = %v, want none", seconds, dates)
		}
		if n, err := tp.research.Count(context.Background(), 7); err != nil || n != 0 {
			t.Errorf("time=%v: research count = %d, %v; want 0", seconds, n, err)
		}
		if got, _, err := tp.counters.Get(context.Background(), 7); err != nil || got != DefaultThreshold {
			t.Errorf("time=%v: counter = %d, want %d", seconds, got, DefaultThreshold)
		}
	}
}

func TestSubmit_FirstSubmissionCreatesCounter(t *testing.T) {
	tp := newTestPipeline(t)

	res, err := tp.Submit(context.Background(), batchFor(7, 1772355600.5, 3))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	want := Result{ControllerID: 7, Readings: 3, Counter: 1, Promoted: false}
	if res != want {
		t.Errorf("Submit() = %+v, want %+v", res, want)
	}

	got, err := tp.research.ReadingsAt(context.Background(), 7, time.UnixMilli(1772355600500))
	if err != nil {
		t.Fatalf("ReadingsAt() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("research readings = %d, want 3", len(got))
	}
	if got[0].SensorAddr != 40 || got[0].Temp != 20 || !got[0].Time.Equal(time.UnixMilli(1772355600500)) {
		t.Errorf("first reading = %+v", got[0])
	}
}

func TestSubmit_DecimationFloorNOver121(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	const n = 2*(DefaultThreshold+1) + 5
	promotions := 0
	for i := 1; i <= n; i++ {
		res, err := tp.Submit(ctx, batchFor(7, float64(1772355600+i*60), 1))
		if err != nil {
			t.Fatalf("submission %d: %v", i, err)
		}
		if res.Counter > DefaultThreshold {
			t.Fatalf("submission %d: counter %d exceeds threshold", i, res.Counter)
		}
		if res.Promoted {
			promotions++
			if i%(DefaultThreshold+1) != 0 {
				t.Errorf("submission %d promoted, want only multiples of %d", i, DefaultThreshold+1)
			}
			if res.Counter != 0 {
				t.Errorf("submission %d: counter = %d after promotion, want 0", i, res.Counter)
			}
		}
	}

	if want := n / (DefaultThreshold + 1); promotions != want {
		t.Errorf("promotions = %d, want %d", promotions, want)
	}
	if got, _ := tp.research.Count(ctx, 7); got != n {
		t.Errorf("research count = %d, want %d", got, n)
	}
	if got, _ := tp.production.Count(ctx, 7); got != promotions {
		t.Errorf("production count = %d, want %d", got, promotions)
	}

	dates, err := tp.production.ListDates(ctx, 7, 0)
	if err != nil {
		t.Fatalf("ListDates() error = %v", err)
	}
	wantNewest := time.Unix(int64(1772355600+2*(DefaultThreshold+1)*60), 0).UTC()
	if len(dates) != 2 || !dates[0].Equal(wantNewest) {
		t.Errorf("ListDates() = %v, want 2 dates newest %v", dates, wantNewest)
	}
}

func TestSubmit_CustomThreshold(t *testing.T) {
	tp := newTestPipeline(t, WithThreshold(2))
	ctx := context.Background()

	var got []bool
	for i := range 6 {
		res, err := tp.Submit(ctx, batchFor(3, float64(i), 1))
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		got = append(got, res.Promoted)
	}

	want := []bool{false, false, true, false, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("promotions = %v, want %v", got, want)
		}
	}
}

func TestSubmit_ControllersAreIndependent(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()
	setCounter(t, tp.db, 7, DefaultThreshold)

	res, err := tp.Submit(ctx, batchFor(8, 1000, 1))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Promoted || res.Counter != 1 {
		t.Errorf("controller 8 result = %+v, want counter 1 unpromoted", res)
	}

	res, err = tp.Submit(ctx, batchFor(7, 1000, 1))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !res.Promoted {
		t.Errorf("controller 7 result = %+v, want promoted", res)
	}
}

func TestSubmit_ConcurrentAtThresholdPromotesOnce(t *testing.T) {
	tp := newTestPipeline(t)
	setCounter(t, tp.db, 7, DefaultThreshold)

	const k = 16
	results := make([]Result, k)
	errs := make([]error, k)

	var wg sync.WaitGroup
	for i := range k {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = tp.Submit(context.Background(), batchFor(7, float64(2000+i), 1))
		}()
	}
	wg.Wait()

	promoted := 0
	for i := range k {
		if errs[i] != nil {
			t.Fatalf("submission %d: %v", i, errs[i])
		}
		if results[i].Promoted {
			promoted++
		}
	}
	if promoted != 1 {
		t.Errorf("promotions = %d, want exactly 1", promoted)
	}

	counter, _, err := tp.counters.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if counter != k-1 {
		t.Errorf("counter = %d, want %d", counter, k-1)
	}
	if got, _ := tp.production.Count(context.Background(), 7); got != 1 {
		t.Errorf("production count = %d, want 1", got)
	}
}

func TestSubmit_SharedDatabaseAcrossPipelines(t *testing.T) {
	tp := newTestPipeline(t)
	setCounter(t, tp.db, 9, DefaultThreshold)

	// A second pipeline has its own keyed mutex; only the transaction
	// keeps the two from double-promoting.
	other := NewPipeline(NewCounterStore(tp.db), NewResearchStore(tp.db), NewProductionStore(tp.db),
		slog.New(slog.DiscardHandler))

	var wg sync.WaitGroup
	promoted := make(chan bool, 8)
	for i := range 8 {
		p := tp.Pipeline
		if i%2 == 1 {
			p = other
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Submit(context.Background(), batchFor(9, float64(i), 1))
			if err != nil {
				t.Errorf("Submit() error = %v", err)
				return
			}
			promoted <- res.Promoted
		}()
	}
	wg.Wait()
	close(promoted)

	n := 0
	for p := range promoted {
		if p {
			n++
		}
	}
	if n != 1 {
		t.Errorf("promotions = %d, want 1", n)
	}
}

func TestSubmit_Metrics(t *testing.T) {
	tp := newTestPipeline(t, WithThreshold(1))
	ctx := context.Background()

	beforePromotions := testutil.ToFloat64(metrics.PromotionsTotal)
	beforeHTTP := testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues(TransportHTTP))
	beforeProd := testutil.ToFloat64(metrics.ReadingsWrittenTotal.WithLabelValues(metrics.TierProduction))
	beforeEmpty := testutil.ToFloat64(metrics.RejectedSubmissionsTotal.WithLabelValues("empty"))

	for i := range 2 {
		if _, err := tp.Submit(ctx, batchFor(5, float64(i), 3)); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	_, _ = tp.Submit(ctx, nil)

	if got := testutil.ToFloat64(metrics.PromotionsTotal) - beforePromotions; got != 1 {
		t.Errorf("promotions delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.SubmissionsTotal.WithLabelValues(TransportHTTP)) - beforeHTTP; got != 2 {
		t.Errorf("http submissions delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.ReadingsWrittenTotal.WithLabelValues(metrics.TierProduction)) - beforeProd; got != 3 {
		t.Errorf("production readings delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.RejectedSubmissionsTotal.WithLabelValues("empty")) - beforeEmpty; got != 1 {
		t.Errorf("empty rejections delta = %v, want 1", got)
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	results []Result
}

func (n *recordingNotifier) NotifyPromotion(_ context.Context, r Result, _ []Reading) {
	n.mu.Lock()
	n.results = append(n.results, r)
	n.mu.Unlock()
}

func TestSubmit_NotifiesOnPromotion(t *testing.T) {
	notifier := &recordingNotifier{}
	tp := newTestPipeline(t, WithThreshold(1), WithPromotionNotifier(notifier))

	for i := range 4 {
		if _, err := tp.Submit(context.Background(), batchFor(2, float64(i), 1)); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	if len(notifier.results) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notifier.results))
	}
	if !notifier.results[0].Promoted || notifier.results[0].ControllerID != 2 {
		t.Errorf("notification = %+v", notifier.results[0])
	}
}

func TestSubmit_ProductionFanOut(t *testing.T) {
	db := setupTestDB(t)
	mirror := &recordingSink{}
	production := MultiSink{NewProductionStore(db), mirror}
	p := NewPipeline(NewCounterStore(db), NewResearchStore(db), production,
		slog.New(slog.DiscardHandler), WithThreshold(1))

	for i := range 2 {
		if _, err := p.Submit(context.Background(), batchFor(4, float64(i), 2)); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	if mirror.count() != 1 {
		t.Errorf("mirror batches = %d, want 1", mirror.count())
	}
	if got, _ := NewProductionStore(db).Count(context.Background(), 4); got != 2 {
		t.Errorf("production readings = %d, want 2", got)
	}
}

func TestSubmit_StorageFailures(t *testing.T) {
	t.Run("counter", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		if err != nil {
			t.Fatalf("sqlmock.New() error = %v", err)
		}
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT counter FROM reading_counters").
			WithArgs(int64(7)).
			WillReturnError(errors.New("disk I/O error"))
		mock.ExpectRollback()

		research := &recordingSink{}
		p := NewPipeline(NewCounterStore(db), research, &recordingSink{}, slog.New(slog.DiscardHandler))

		if _, err := p.Submit(context.Background(), batchFor(7, 1, 1)); err == nil {
			t.Fatal("Submit() error = nil, want storage error")
		}
		if research.count() != 0 {
			t.Error("research written despite counter failure")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("research", func(t *testing.T) {
		tp := newTestPipeline(t)
		boom := errors.New("research unavailable")
		p := NewPipeline(tp.counters, &recordingSink{err: boom}, tp.production, slog.New(slog.DiscardHandler))

		if _, err := p.Submit(context.Background(), batchFor(7, 1, 1)); !errors.Is(err, boom) {
			t.Fatalf("Submit() error = %v, want wrapped %v", err, boom)
		}
	})
}
