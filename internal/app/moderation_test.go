package app_test

import (
	"context"
	"errors"
	"testing"

	"product_reviews/internal/app"
	"product_reviews/internal/domain"
)

// ---- fakes ----

type fakeStore struct {
	reviews    map[string]domain.Review
	getErr     error
	setErr     error
	statusSets int
}

func (f *fakeStore) GetReview(ctx context.Context, id string) (domain.Review, error) {
	if f.getErr != nil {
		return domain.Review{}, f.getErr
	}
	rv, ok := f.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, nil
}

func (f *fakeStore) SetReviewStatus(ctx context.Context, id string, status domain.ReviewStatus, reason *string) (domain.Review, error) {
	if f.setErr != nil {
		return domain.Review{}, f.setErr
	}
	rv, ok := f.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	rv.Status = status
	rv.ModerationReason = reason
	f.reviews[id] = rv
	f.statusSets++
	return rv, nil
}

type fakeClassifier struct {
	verdicts []domain.Verdict
	errs     []error
	calls    int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (domain.Verdict, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return domain.Verdict{}, f.errs[i]
	}
	if i < len(f.verdicts) {
		return f.verdicts[i], nil
	}
	return domain.Verdict{}, nil
}

type fakeCache struct {
	store map[string][]byte
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) { return false, nil }
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	c.store[key] = nil
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.dels = append(c.dels, key)
	return nil
}

func seedStore(id, productID, text string) *fakeStore {
	return &fakeStore{reviews: map[string]domain.Review{
		id: {ID: id, ProductID: productID, Text: text, Status: domain.StatusPending},
	}}
}

// ---- tests ----

func TestModerator_CleanTextPublished(t *testing.T) {
	store := seedStore("r1", "p1", "lovely product")
	cls := &fakeClassifier{verdicts: []domain.Verdict{{}}}
	m := app.NewModerator(store, cls, &fakeCache{}, 0)

	if err := m.Handle(context.Background(), domain.Task{ReviewID: "r1", Attempts: 1}); err != nil {
		t.Fatalf("err: %v", err)
	}
	rv := store.reviews["r1"]
	if rv.Status != domain.StatusPublished {
		t.Fatalf("status = %s, want published", rv.Status)
	}
	if rv.ModerationReason != nil {
		t.Fatalf("reason = %v, want nil", *rv.ModerationReason)
	}
}

func TestModerator_ToxicWinsOverSpam(t *testing.T) {
	store := seedStore("r1", "p1", "buy now!!!")
	cls := &fakeClassifier{verdicts: []domain.Verdict{{Toxic: true, Spam: true}}}
	m := app.NewModerator(store, cls, &fakeCache{}, 0)

	if err := m.Handle(context.Background(), domain.Task{ReviewID: "r1", Attempts: 1}); err != nil {
		t.Fatalf("err: %v", err)
	}
	rv := store.reviews["r1"]
	if rv.Status != domain.StatusRejected {
		t.Fatalf("status = %s, want rejected", rv.Status)
	}
	if rv.ModerationReason == nil || *rv.ModerationReason != domain.ReasonToxic {
		t.Fatalf("reason = %v, want toxic reason", rv.ModerationReason)
	}
}

func TestModerator_SpamRejected(t *testing.T) {
	store := seedStore("r1", "p1", "cheap pills")
	cls := &fakeClassifier{verdicts: []domain.Verdict{{Spam: true}}}
	m := app.NewModerator(store, cls, &fakeCache{}, 0)

	if err := m.Handle(context.Background(), domain.Task{ReviewID: "r1", Attempts: 1}); err != nil {
		t.Fatalf("err: %v", err)
	}
	rv := store.reviews["r1"]
	if rv.Status != domain.StatusRejected || rv.ModerationReason == nil || *rv.ModerationReason != domain.ReasonSpam {
		t.Fatalf("got %s/%v, want rejected with spam reason", rv.Status, rv.ModerationReason)
	}
}

func TestModerator_ReviewGone_DropsWithoutError(t *testing.T) {
	store := &fakeStore{reviews: map[string]domain.Review{}}
	cls := &fakeClassifier{}
	m := app.NewModerator(store, cls, &fakeCache{}, 0)

	if err := m.Handle(context.Background(), domain.Task{ReviewID: "missing", Attempts: 1}); err != nil {
		t.Fatalf("expected ack (nil), got %v", err)
	}
	if cls.calls != 0 {
		t.Fatalf("classifier called for a missing review")
	}
}

func TestModerator_ClassifierError_Requeues(t *testing.T) {
	store := seedStore("r1", "p1", "text")
	cls := &fakeClassifier{errs: []error{errors.New("model unavailable")}}
	m := app.NewModerator(store, cls, &fakeCache{}, 0)

	if err := m.Handle(context.Background(), domain.Task{ReviewID: "r1", Attempts: 1}); err == nil {
		t.Fatal("expected error to trigger requeue")
	}
	if store.reviews["r1"].Status != domain.StatusPending {
		t.Fatalf("status mutated on classifier failure")
	}
}

func TestModerator_StoreError_Requeues(t *testing.T) {
	store := seedStore("r1", "p1", "text")
	store.setErr = errors.New("db down")
	cls := &fakeClassifier{verdicts: []domain.Verdict{{}}}
	m := app.NewModerator(store, cls, &fakeCache{}, 0)

	if err := m.Handle(context.Background(), domain.Task{ReviewID: "r1", Attempts: 1}); err == nil {
		t.Fatal("expected error to trigger requeue")
	}
}

func TestModerator_FailThenSucceedOnRedelivery(t *testing.T) {
	store := seedStore("r1", "p1", "text")
	cls := &fakeClassifier{
		errs:     []error{errors.New("timeout"), nil},
		verdicts: []domain.Verdict{{}, {}},
	}
	m := app.NewModerator(store, cls, &fakeCache{}, 0)

	if err := m.Handle(context.Background(), domain.Task{ReviewID: "r1", Attempts: 1}); err == nil {
		t.Fatal("first delivery should fail")
	}
	if err := m.Handle(context.Background(), domain.Task{ReviewID: "r1", Attempts: 2}); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}
	if store.statusSets != 1 {
		t.Fatalf("statusSets = %d, want exactly one persisted write", store.statusSets)
	}
	if store.reviews["r1"].Status != domain.StatusPublished {
		t.Fatalf("status = %s, want published", store.reviews["r1"].Status)
	}
}

func TestModerator_DuplicateDelivery_Idempotent(t *testing.T) {
	store := seedStore("r1", "p1", "text")
	cls := &fakeClassifier{verdicts: []domain.Verdict{{}, {}}}
	m := app.NewModerator(store, cls, &fakeCache{}, 0)

	task := domain.Task{ReviewID: "r1", Attempts: 1}
	if err := m.Handle(context.Background(), task); err != nil {
		t.Fatalf("err: %v", err)
	}
	// at-least-once: same task again is a harmless re-write
	if err := m.Handle(context.Background(), task); err != nil {
		t.Fatalf("duplicate delivery errored: %v", err)
	}
	if store.reviews["r1"].Status != domain.StatusPublished {
		t.Fatalf("status = %s after duplicate, want published", store.reviews["r1"].Status)
	}
}

func TestModerator_DeliveryCapDrops(t *testing.T) {
	store := seedStore("r1", "p1", "text")
	cls := &fakeClassifier{}
	m := app.NewModerator(store, cls, &fakeCache{}, 3)

	if err := m.Handle(context.Background(), domain.Task{ReviewID: "r1", Attempts: 4}); err != nil {
		t.Fatalf("expected drop (nil), got %v", err)
	}
	if cls.calls != 0 {
		t.Fatalf("classifier called past the delivery cap")
	}
	if store.reviews["r1"].Status != domain.StatusPending {
		t.Fatalf("status mutated on dropped task")
	}
}

func TestModerator_InvalidatesProductCaches(t *testing.T) {
	store := seedStore("r1", "p7", "text")
	cache := &fakeCache{}
	m := app.NewModerator(store, &fakeClassifier{verdicts: []domain.Verdict{{}}}, cache, 0)

	if err := m.Handle(context.Background(), domain.Task{ReviewID: "r1", Attempts: 1}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(cache.dels) != 2 {
		t.Fatalf("cache dels = %v, want listing and product keys", cache.dels)
	}
}
