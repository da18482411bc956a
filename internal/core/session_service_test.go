package core

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cinesense/journey-engine/internal/metrics"
	"github.com/cinesense/journey-engine/internal/store"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-3 }

func movieIDs(recs []Recommendation) string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.MovieID
	}
	return strings.Join(ids, ",")
}

func TestStartSessionProcess(t *testing.T) {
	st := newFixtureStore(t)
	svc := NewSessionService(st, testRecommendConfig(), nop())
	ctx := context.Background()

	res, err := svc.StartSession(ctx, StartSessionInput{
		SentimentID:   1,
		IntentionType: store.IntentionProcess,
		UserID:        strPtr("user-1"),
		Context:       json.RawMessage(`{"note":"rainy day"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := movieIDs(res.Recommendations); got != "m3,m1" {
		t.Fatalf("recommendations = %s", got)
	}
	if r := res.Recommendations[0]; !approx(r.RelevanceScore, 0.7778) || !approx(r.IntentionAlignment, 1) || !approx(r.CombinedScore, 0.8667) {
		t.Errorf("unexpected scores for m3: %+v", r)
	}
	if r := res.Recommendations[1]; !approx(r.CombinedScore, 0.6) {
		t.Errorf("unexpected combined score for m1: %v", r.CombinedScore)
	}
	if res.Intention.Type != store.IntentionProcess || res.Intention.EmotionalTone != store.ToneSimilar {
		t.Errorf("unexpected intention summary %+v", res.Intention)
	}

	sess, err := st.GetSession(ctx, res.SessionID)
	if err != nil || sess == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if !sess.IsActive || sess.IntentionID != 1 || *sess.UserID != "user-1" {
		t.Errorf("unexpected session %+v", sess)
	}

	records, err := st.ListSessionRecords(ctx, res.SessionID)
	if err != nil || len(records) != 2 {
		t.Fatalf("records = %v, %v", records, err)
	}
	var factors ContextualFactors
	if err := json.Unmarshal(records[0].ContextualFactors, &factors); err != nil {
		t.Fatal(err)
	}
	if len(factors.TagMatches) != 2 || factors.TagMatches[0].Name != "Melancholy" || len(factors.GenreMatches) != 1 {
		t.Errorf("unexpected factors %+v", factors)
	}
	if records[0].PersonalizedReason != res.Recommendations[0].PersonalizedReason {
		t.Error("stored reason differs from returned one")
	}
}

func TestStartSessionAvoidList(t *testing.T) {
	svc := NewSessionService(newFixtureStore(t), testRecommendConfig(), nop())

	res, err := svc.StartSession(context.Background(), StartSessionInput{SentimentID: 1, IntentionType: store.IntentionTransform})
	if err != nil {
		t.Fatal(err)
	}
	if got := movieIDs(res.Recommendations); got != "m2,m5" {
		t.Errorf("recommendations = %s", got)
	}
	if !approx(res.Recommendations[0].CombinedScore, 1) || !approx(res.Recommendations[1].CombinedScore, 0.74) {
		t.Errorf("unexpected scores %+v", res.Recommendations)
	}
}

func TestStartSessionTruncates(t *testing.T) {
	cfg := testRecommendConfig()
	cfg.MaxResults = 1
	svc := NewSessionService(newFixtureStore(t), cfg, nop())

	res, err := svc.StartSession(context.Background(), StartSessionInput{SentimentID: 1, IntentionType: store.IntentionProcess})
	if err != nil {
		t.Fatal(err)
	}
	if got := movieIDs(res.Recommendations); got != "m3" {
		t.Errorf("recommendations = %s", got)
	}
}

func TestStartSessionErrors(t *testing.T) {
	svc := NewSessionService(newFixtureStore(t), testRecommendConfig(), nop())
	ctx := context.Background()

	if _, err := svc.StartSession(ctx, StartSessionInput{SentimentID: 1, IntentionType: "PANIC"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown type: expected ErrInvalidArgument, got %v", err)
	}
	if _, err := svc.StartSession(ctx, StartSessionInput{SentimentID: 2, IntentionType: store.IntentionProcess}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing intention: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.StartSession(ctx, StartSessionInput{SentimentID: 1, IntentionType: store.IntentionProcess, Context: json.RawMessage(`{`)}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad context: expected ErrInvalidArgument, got %v", err)
	}
}

type badWeightsStore struct {
	*store.SQLiteStore
}

func (b badWeightsStore) FindIntention(ctx context.Context, sentimentID int64, typ store.IntentionType) (*store.Intention, error) {
	in, err := b.SQLiteStore.FindIntention(ctx, sentimentID, typ)
	if in != nil {
		in.TagWeights = map[string]float64{"Hope": -1, "Comfort": 1}
	}
	return in, err
}

func TestStartSessionRejectsInvalidTagWeights(t *testing.T) {
	st := newFixtureStore(t)
	svc := NewSessionService(badWeightsStore{st}, testRecommendConfig(), nop())

	_, err := svc.StartSession(context.Background(), StartSessionInput{SentimentID: 1, IntentionType: store.IntentionMaintain})
	var integrity *GraphIntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected GraphIntegrityError, got %v", err)
	}
	if integrity.SentimentID != 1 || len(integrity.Problems) != 1 || !strings.Contains(integrity.Problems[0], "Hope") {
		t.Errorf("unexpected problems %+v", integrity)
	}
	stats, err := st.SessionStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalSessions != 0 {
		t.Errorf("expected no session saved, got %d", stats.TotalSessions)
	}
}

func TestStartSessionSkipsUnreadableCandidate(t *testing.T) {
	before := testutil.ToFloat64(metrics.ScoringDrops.WithLabelValues("session"))
	svc := NewSessionService(newFixtureStoreWithUnreadableMovie(t, "m1"), testRecommendConfig(), nop())

	res, err := svc.StartSession(context.Background(), StartSessionInput{SentimentID: 1, IntentionType: store.IntentionProcess})
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if got := movieIDs(res.Recommendations); got != "m3" {
		t.Errorf("recommendations = %s, want m3", got)
	}
	if r := res.Recommendations[0]; !approx(r.CombinedScore, 0.8667) {
		t.Errorf("unexpected combined score for m3: %v", r.CombinedScore)
	}
	if got := testutil.ToFloat64(metrics.ScoringDrops.WithLabelValues("session")) - before; got != 1 {
		t.Errorf("scoring drops = %v, want 1", got)
	}
}

func TestPersonalizedReasonIsDeterministic(t *testing.T) {
	m := &store.Movie{ID: "m3", Title: "Manchester by the Sea"}
	a := personalizedReason(store.IntentionProcess, m, []string{"Drama"})
	b := personalizedReason(store.IntentionProcess, m, []string{"Drama"})
	if a != b {
		t.Errorf("reasons differ: %q vs %q", a, b)
	}
	if !strings.Contains(a, m.Title) || !strings.Contains(a, "drama") {
		t.Errorf("unexpected reason %q", a)
	}
}

func TestFeedbackAndCompletion(t *testing.T) {
	st := newFixtureStore(t)
	svc := NewSessionService(st, testRecommendConfig(), nop())
	ctx := context.Background()

	res, err := svc.StartSession(ctx, StartSessionInput{SentimentID: 1, IntentionType: store.IntentionProcess, UserID: strPtr("u1")})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.RecordFeedback(ctx, res.SessionID, "m3", store.FeedbackUpdate{Viewed: true, Accepted: true, Feedback: strPtr("good")}); err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}
	if err := svc.RecordFeedback(ctx, res.SessionID, "m5", store.FeedbackUpdate{Viewed: true}); !errors.Is(err, ErrNotFound) {
		t.Errorf("movie outside session: expected ErrNotFound, got %v", err)
	}
	if err := svc.RecordFeedback(ctx, "missing", "m3", store.FeedbackUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown session: expected ErrNotFound, got %v", err)
	}

	if err := svc.CompleteSession(ctx, res.SessionID); err != nil {
		t.Fatalf("CompleteSession: %v", err)
	}
	if err := svc.CompleteSession(ctx, res.SessionID); err != nil {
		t.Errorf("second CompleteSession: %v", err)
	}
	if err := svc.CompleteSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown session: expected ErrNotFound, got %v", err)
	}

	// Feedback stays writable after completion.
	if err := svc.RecordFeedback(ctx, res.SessionID, "m1", store.FeedbackUpdate{Viewed: true}); err != nil {
		t.Errorf("feedback after completion: %v", err)
	}

	history, err := svc.History(ctx, "u1")
	if err != nil || len(history) != 1 {
		t.Fatalf("History = %v, %v", history, err)
	}
	if history[0].IsActive || history[0].CompletedAt == nil {
		t.Errorf("session not completed: %+v", history[0].Session)
	}
	if empty, _ := svc.History(ctx, "nobody"); empty == nil || len(empty) != 0 {
		t.Errorf("expected empty history, got %v", empty)
	}

	a, err := svc.Analytics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a.TotalSessions != 1 || a.CompletedSessions != 1 || a.TotalSuggestions != 2 || a.AcceptedSuggestions != 1 || a.AcceptanceRate != 50 {
		t.Errorf("unexpected analytics %+v", a)
	}
}

func TestListIntentions(t *testing.T) {
	svc := NewSessionService(newFixtureStore(t), testRecommendConfig(), nop())
	ctx := context.Background()

	list, err := svc.ListIntentions(ctx, 1)
	if err != nil || len(list) != 3 {
		t.Errorf("ListIntentions = %v, %v", list, err)
	}
	if _, err := svc.ListIntentions(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	empty, err := svc.ListIntentions(ctx, 4)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("expected empty list, got %v, %v", empty, err)
	}

	sentiments, err := svc.ListSentiments(ctx)
	if err != nil || len(sentiments) != 4 {
		t.Errorf("ListSentiments = %d, %v", len(sentiments), err)
	}
}
