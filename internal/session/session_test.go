package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/certwise/certprep-backend/internal/model"
)

func startExamSession(t *testing.T, mgr *Manager, snap *model.ExamSnapshot, mode model.AttemptMode) *Session {
	t.Helper()
	cand := Candidate{ID: uuid.New(), Name: "Avery"}
	s, err := mgr.Start(context.Background(), cand, snap, mode)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestSessionCountdownDisplay(t *testing.T) {
	mgr, _, src, snap := newTestEngine(1, 5, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)

	if got := s.Snapshot().RemainingDisplay; got != "5:00" {
		t.Fatalf("display at start = %q, want 5:00", got)
	}

	src.Advance(time.Second)
	s.handleTick()
	if got := s.Snapshot().RemainingDisplay; got != "4:59" {
		t.Fatalf("display after 1s = %q, want 4:59", got)
	}

	src.Advance(59 * time.Second)
	s.handleTick()
	if got := s.Snapshot().RemainingDisplay; got != "4:00" {
		t.Fatalf("display after 60s = %q, want 4:00", got)
	}
}

func TestSessionCountdownHourDisplay(t *testing.T) {
	mgr, _, src, snap := newTestEngine(1, 62, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)

	src.Advance(59 * time.Second) // 3720s - 59s = 3661s
	if got := s.Snapshot().RemainingDisplay; got != "1:01:01" {
		t.Fatalf("display = %q, want 1:01:01", got)
	}
}

func TestSessionWarningTiers(t *testing.T) {
	mgr, _, src, snap := newTestEngine(1, 30, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)

	if tier := s.Snapshot().Tier; tier != TierNone {
		t.Fatalf("tier at 30m = %s, want none", tier)
	}

	src.Advance(16 * time.Minute) // 14m left
	if tier := s.Snapshot().Tier; tier != TierLow {
		t.Fatalf("tier at 14m = %s, want low", tier)
	}

	src.Advance(10 * time.Minute) // 4m left
	if tier := s.Snapshot().Tier; tier != TierCritical {
		t.Fatalf("tier at 4m = %s, want critical", tier)
	}

	// The classification holds continuously, not only at the crossing.
	src.Advance(time.Minute) // 3m left
	if tier := s.Snapshot().Tier; tier != TierCritical {
		t.Fatalf("tier at 3m = %s, want critical", tier)
	}
}

func TestSessionAutoSubmitExactlyOnce(t *testing.T) {
	mgr, store, src, snap := newTestEngine(2, 1, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)

	src.Advance(58 * time.Second)
	s.handleTick()
	if got := s.Snapshot().RemainingSeconds; got != 2 {
		t.Fatalf("remaining = %d, want 2", got)
	}
	if s.Terminal() {
		t.Fatal("session must still be in progress at 2s")
	}

	// Overshoot the deadline by a second, as a delayed tick would.
	src.Advance(3 * time.Second)
	s.handleTick()

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel not closed after deadline")
	}
	snapAfter := s.Snapshot()
	if snapAfter.Status != model.AttemptCompleted {
		t.Fatalf("status = %s, want COMPLETED", snapAfter.Status)
	}
	if snapAfter.RemainingSeconds != 0 || snapAfter.RemainingDisplay != "0:00" {
		t.Fatalf("remaining = %d %q, want 0 0:00", snapAfter.RemainingSeconds, snapAfter.RemainingDisplay)
	}

	// Further ticks must not complete again.
	src.Advance(5 * time.Second)
	s.handleTick()
	s.handleTick()
	calls, ok, _ := store.counters()
	if calls != 1 || ok != 1 {
		t.Fatalf("complete calls = %d (ok %d), want exactly one", calls, ok)
	}
	if store.attemptStatus(s.AttemptID()) != model.AttemptCompleted {
		t.Fatal("attempt not completed in store")
	}
}

func TestSessionRemainingMonotonicNonIncreasing(t *testing.T) {
	mgr, _, src, snap := newTestEngine(1, 2, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)

	prev := s.Snapshot().RemainingSeconds
	for i := 0; i < 30; i++ {
		src.Advance(7 * time.Second)
		s.handleTick()
		cur := s.Snapshot().RemainingSeconds
		if cur > prev {
			t.Fatalf("remaining increased from %d to %d", prev, cur)
		}
		if cur < 0 {
			t.Fatalf("remaining went negative: %d", cur)
		}
		prev = cur
	}
	if prev != 0 {
		t.Fatalf("remaining = %d after the deadline, want 0", prev)
	}
}

func TestSessionSubmitScoresAndPersists(t *testing.T) {
	mgr, store, src, snap := newTestEngine(4, 60, 50)
	notifier := &recordingNotifier{}
	mgr.notifier = notifier
	s := startExamSession(t, mgr, snap, model.ModeExam)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ids := correctIDs(snap.Questions[i])
		if i == 2 {
			ids = wrongIDs(snap.Questions[i])
		}
		if _, err := s.RecordAnswer(ctx, snap.Questions[i].ID, ids, 20); err != nil {
			t.Fatalf("RecordAnswer %d: %v", i, err)
		}
	}

	src.Advance(20 * time.Minute)
	result, err := s.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if result.CorrectCount != 2 || result.TotalQuestions != 4 {
		t.Fatalf("result = %d/%d, want 2/4", result.CorrectCount, result.TotalQuestions)
	}
	if result.ScorePercent != 50 {
		t.Errorf("score = %v, want 50", result.ScorePercent)
	}
	if !result.Passed {
		t.Error("50%% at threshold 50 must pass")
	}
	if result.TimeSpentMinutes != 20 {
		t.Errorf("time spent = %v minutes, want 20", result.TimeSpentMinutes)
	}

	attempt := s.Attempt()
	if attempt.Status != model.AttemptCompleted || attempt.ScorePercent == nil || *attempt.ScorePercent != 50 {
		t.Errorf("attempt summary not applied: %+v", attempt)
	}
	if store.attemptStatus(s.AttemptID()) != model.AttemptCompleted {
		t.Error("attempt not completed in store")
	}
	if notifier.count() != 1 {
		t.Errorf("completion notifications = %d, want 1", notifier.count())
	}

	if _, err := s.Submit(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second submit err = %v, want ErrInvalidState", err)
	}
}

func TestSessionRecordAnswerStorageFailure(t *testing.T) {
	mgr, store, _, snap := newTestEngine(2, 60, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)
	ctx := context.Background()
	q := snap.Questions[0]

	store.setFail(false, true, false, false)
	_, err := s.RecordAnswer(ctx, q.ID, correctIDs(q), 5)
	if !IsStorageError(err) {
		t.Fatalf("err = %v, want StorageError", err)
	}
	if s.Snapshot().AnsweredCount != 0 {
		t.Fatal("failed persist must not mark the question answered")
	}
	if !s.InProgress() {
		t.Fatal("failed persist must not change lifecycle state")
	}

	// Retrying the identical call succeeds once storage recovers.
	store.setFail(false, false, false, false)
	if _, err := s.RecordAnswer(ctx, q.ID, correctIDs(q), 5); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s.Snapshot().AnsweredCount != 1 {
		t.Fatal("answered badge missing after successful retry")
	}
}

func TestSessionRecordAnswerSupersedes(t *testing.T) {
	mgr, store, _, snap := newTestEngine(2, 60, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)
	ctx := context.Background()
	q := snap.Questions[0]

	if _, err := s.RecordAnswer(ctx, q.ID, correctIDs(q), 5); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if _, err := s.RecordAnswer(ctx, q.ID, wrongIDs(q), 9); err != nil {
		t.Fatalf("second record: %v", err)
	}

	_, _, answers, err := store.LoadAttempt(ctx, s.AttemptID())
	if err != nil {
		t.Fatalf("LoadAttempt: %v", err)
	}
	var forQ []model.UserAnswer
	for _, ua := range answers {
		if ua.QuestionID == q.ID {
			forQ = append(forQ, ua)
		}
	}
	if len(forQ) != 1 {
		t.Fatalf("answers for question = %d, want 1 (superseded, not duplicated)", len(forQ))
	}
	if !equalIDSet(forQ[0].AnswerIDs, wrongIDs(q)) {
		t.Error("latest selection not the one re-read from the store")
	}
	if forQ[0].IsCorrect {
		t.Error("superseding wrong answer must be recorded incorrect")
	}
	if s.Snapshot().AnsweredCount != 1 {
		t.Errorf("answered count = %d, want 1", s.Snapshot().AnsweredCount)
	}
}

func TestSessionCompletionBarrier(t *testing.T) {
	mgr, _, _, snap := newTestEngine(2, 60, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)
	ctx := context.Background()

	if _, err := s.Submit(ctx); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err := s.RecordAnswer(ctx, snap.Questions[0].ID, correctIDs(snap.Questions[0]), 3)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("record after completion err = %v, want ErrInvalidState", err)
	}
	if err := s.Next(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("navigation after completion err = %v, want ErrInvalidState", err)
	}
	if _, err := s.ToggleFlag(snap.Questions[0].ID); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("flag after completion err = %v, want ErrInvalidState", err)
	}
}

func TestSessionAutoSubmitFailureSurfacesAndRetries(t *testing.T) {
	mgr, store, src, snap := newTestEngine(1, 1, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)
	ctx := context.Background()
	events := s.Subscribe()
	defer s.Unsubscribe(events)

	store.setFail(false, false, true, false)
	src.Advance(61 * time.Second)
	s.handleTick()

	if !s.InProgress() {
		t.Fatal("failed auto-submit must leave the attempt IN_PROGRESS")
	}
	if !s.NeedsFinalizeRetry() {
		t.Fatal("session must report a pending finalize retry")
	}
	ticker := s.clock.(*manualTicker)
	if !ticker.isStopped() {
		t.Fatal("clock must stop at zero even when persistence fails")
	}

	var sawError bool
	for drained := false; !drained; {
		select {
		case ev := <-events:
			if ev.Type == EventError {
				sawError = true
			}
		default:
			drained = true
		}
	}
	if !sawError {
		t.Fatal("auto-submit failure must surface an error event")
	}

	// An explicit submit retry succeeds once storage recovers.
	store.setFail(false, false, false, false)
	if _, err := s.Submit(ctx); err != nil {
		t.Fatalf("submit retry: %v", err)
	}
	if _, ok, _ := store.counters(); ok != 1 {
		t.Fatalf("completed writes = %d, want 1", ok)
	}
	if s.Snapshot().Status != model.AttemptCompleted {
		t.Fatal("attempt not completed after retry")
	}
}

func TestSessionPracticeModeUnlimited(t *testing.T) {
	mgr, store, src, snap := newTestEngine(2, 90, 65)
	s := startExamSession(t, mgr, snap, model.ModePractice)
	ctx := context.Background()

	snapBefore := s.Snapshot()
	if !snapBefore.Unlimited {
		t.Fatal("practice mode must report unlimited time")
	}
	if snapBefore.RemainingDisplay != UnlimitedDisplay {
		t.Fatalf("display = %q, want %q", snapBefore.RemainingDisplay, UnlimitedDisplay)
	}
	if snapBefore.Tier != TierNone {
		t.Fatalf("tier = %s, want none", snapBefore.Tier)
	}
	if a := s.Attempt(); a.TimeLimitMinutes != nil {
		t.Fatal("practice attempts carry no time limit")
	}

	// Hours pass; nothing counts down and nothing auto-submits.
	src.Advance(5 * time.Hour)
	s.handleTick()
	if s.Terminal() {
		t.Fatal("practice mode must never auto-submit")
	}
	if calls, _, _ := store.counters(); calls != 0 {
		t.Fatalf("complete calls = %d, want 0", calls)
	}

	result, err := s.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.TimeEfficiency != "excellent" {
		t.Errorf("practice efficiency = %s, want the most favorable tier", result.TimeEfficiency)
	}
}

func TestSessionNavigation(t *testing.T) {
	mgr, _, _, snap := newTestEngine(3, 60, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)

	if err := s.Select(2); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := s.Next(); err != nil { // clamped at the end
		t.Fatalf("Next: %v", err)
	}
	if got := s.Snapshot().CurrentIndex; got != 2 {
		t.Fatalf("index = %d, want clamp at 2", got)
	}

	if err := s.Select(3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("Select(3) err = %v, want ErrOutOfRange", err)
	}

	flagged, err := s.ToggleFlag(snap.Questions[1].ID)
	if err != nil || !flagged {
		t.Fatalf("ToggleFlag = %v, %v", flagged, err)
	}
	flagged, err = s.ToggleFlag(snap.Questions[1].ID)
	if err != nil || flagged {
		t.Fatalf("second ToggleFlag = %v, %v, want back to unflagged", flagged, err)
	}
}

func TestSessionRecordAnswerValidatesMembership(t *testing.T) {
	mgr, _, _, snap := newTestEngine(2, 60, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)
	ctx := context.Background()

	if _, err := s.RecordAnswer(ctx, uuid.New(), correctIDs(snap.Questions[0]), 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("unknown question err = %v, want ErrOutOfRange", err)
	}
	if _, err := s.RecordAnswer(ctx, snap.Questions[0].ID, []uuid.UUID{uuid.New()}, 1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("foreign answer err = %v, want ErrOutOfRange", err)
	}
}

func TestSessionEvents(t *testing.T) {
	mgr, _, src, snap := newTestEngine(1, 1, 65)
	s := startExamSession(t, mgr, snap, model.ModeExam)
	ctx := context.Background()
	events := s.Subscribe()

	src.Advance(time.Second)
	s.handleTick()
	ev := <-events
	if ev.Type != EventTick || ev.RemainingSeconds != 59 || ev.RemainingDisplay != "0:59" {
		t.Fatalf("tick event = %+v", ev)
	}
	if ev.Tier != TierCritical {
		t.Fatalf("tick tier = %s, want critical under one minute", ev.Tier)
	}

	if _, err := s.RecordAnswer(ctx, snap.Questions[0].ID, correctIDs(snap.Questions[0]), 2); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	ev = <-events
	if ev.Type != EventAnswerSaved || ev.QuestionID != snap.Questions[0].ID {
		t.Fatalf("answer event = %+v", ev)
	}

	src.Advance(2 * time.Minute)
	s.handleTick()
	var completed *Event
	for drained := false; !drained; {
		select {
		case e := <-events:
			if e.Type == EventCompleted {
				completed = &e
			}
		default:
			drained = true
		}
	}
	if completed == nil {
		t.Fatal("no completion event")
	}
	if completed.Summary == nil || completed.Summary.CorrectCount != 1 {
		t.Fatalf("completion summary = %+v", completed.Summary)
	}

	s.Unsubscribe(events)
	if _, ok := <-events; ok {
		t.Fatal("unsubscribed channel must be closed")
	}
}
