package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/service"
)

const streamSID = "stream-session"

type lockedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *lockedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *lockedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type streamFixture struct {
	flow   *service.ExamFlowService
	clock  *lockedClock
	feed   *repository.MemoryResultFeed
	ledger *repository.CSVLedgerRepository
}

// newStreamFixture builds a flow on memory backends with one started attempt.
func newStreamFixture(t *testing.T) *streamFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		TotalQuestions:  config.DefaultTotalQuestions,
		ExamDuration:    config.DefaultExamDurationMin * time.Minute,
		ImageFolder:     t.TempDir(),
		CorrectAnswers:  strings.Split(config.DefaultCorrectAnswers, ","),
		UrgentThreshold: 2 * time.Minute,
	}
	key, err := model.ParseAnswerKey(cfg.CorrectAnswers)
	if err != nil {
		t.Fatal(err)
	}
	ledger, err := repository.NewCSVLedgerRepository(filepath.Join(t.TempDir(), "results.csv"))
	if err != nil {
		t.Fatal(err)
	}

	clock := &lockedClock{now: time.Now()}
	feed := repository.NewMemoryResultFeed()
	images := service.NewQuestionImageService(cfg.ImageFolder, cfg.TotalQuestions)
	flow := service.NewExamFlowService(cfg, key, repository.NewMemorySessionRepository(0), ledger,
		repository.NewMemoryDeadlineRepository(), feed, images, logger.Nop()).WithClock(clock.Now)

	ctx := context.Background()
	if _, err := flow.NewSession(ctx, streamSID); err != nil {
		t.Fatal(err)
	}
	if _, err := flow.Start(ctx, streamSID, "Alice", "R-17"); err != nil {
		t.Fatal(err)
	}
	return &streamFixture{flow: flow, clock: clock, feed: feed, ledger: ledger}
}

// dial serves h behind a fake candidate token and connects to it.
func (f *streamFixture) dial(t *testing.T, h *WSHandler) *websocket.Conn {
	t.Helper()
	engine := gin.New()
	engine.GET("/stream", func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{
			TokenType: service.TokenTypeCandidate,
			SessionID: streamSID,
		})
		c.Next()
	}, h.ExamStream)

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/stream", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type streamEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func readEvent(t *testing.T, conn *websocket.Conn) streamEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev streamEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

// readUntil reads events until match accepts one, returning every event seen.
func readUntil(t *testing.T, conn *websocket.Conn, match func(streamEvent) bool) []streamEvent {
	t.Helper()
	var seen []streamEvent
	for i := 0; i < 20; i++ {
		ev := readEvent(t, conn)
		seen = append(seen, ev)
		if match(ev) {
			return seen
		}
	}
	t.Fatalf("no matching event in %d events", len(seen))
	return nil
}

func isFullView(ev streamEvent) bool {
	return ev.Event == "tick" && strings.Contains(string(ev.Data), `"screen"`)
}

func TestExamStreamTicksWhileInProgress(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.dial(t, NewWSHandler(f.flow, logger.Nop(), nil))

	first := readEvent(t, conn)
	if !isFullView(first) || !strings.Contains(string(first.Data), `"IN_PROGRESS"`) {
		t.Fatalf("first event = %s %s, want full IN_PROGRESS view", first.Event, first.Data)
	}

	next := readEvent(t, conn)
	var timer service.Countdown
	if next.Event != "tick" || json.Unmarshal(next.Data, &timer) != nil {
		t.Fatalf("second event = %s %s, want timer tick", next.Event, next.Data)
	}
	if timer.RemainingSeconds <= 0 || timer.RemainingSeconds > 720 {
		t.Errorf("remaining = %d", timer.RemainingSeconds)
	}
}

func TestExamStreamKeepsSilentClientConnected(t *testing.T) {
	f := newStreamFixture(t)
	h := NewWSHandler(f.flow, logger.Nop(), nil)
	h.pongWait = 300 * time.Millisecond
	h.pingPeriod = 100 * time.Millisecond
	conn := f.dial(t, h)

	// The client never writes; it only answers pings while reading.
	ticks := 0
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev := readEvent(t, conn); ev.Event == "tick" {
			ticks++
		}
	}
	if ticks < 2 {
		t.Errorf("ticks = %d over %s of silence, want >= 2", ticks, 2*time.Second)
	}
}

func TestExamStreamActions(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.dial(t, NewWSHandler(f.flow, logger.Nop(), nil))
	readEvent(t, conn)

	if err := conn.WriteJSON(map[string]interface{}{"action": "answer", "question": 1, "option": "C"}); err != nil {
		t.Fatal(err)
	}
	seen := readUntil(t, conn, isFullView)
	var view service.ExamView
	if err := json.Unmarshal(seen[len(seen)-1].Data, &view); err != nil {
		t.Fatal(err)
	}
	if sel := view.Questions[0].Selected; sel == nil || *sel != model.OptionC {
		t.Fatalf("question 1 selection = %v, want C", sel)
	}

	if err := conn.WriteJSON(map[string]interface{}{"action": "answer", "question": 11, "option": "A"}); err != nil {
		t.Fatal(err)
	}
	seen = readUntil(t, conn, func(ev streamEvent) bool { return ev.Event == "error" })
	if seen[len(seen)-1].Error == "" {
		t.Error("error event without message")
	}

	if err := conn.WriteJSON(map[string]string{"action": "ping"}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, conn, func(ev streamEvent) bool { return ev.Event == "pong" })

	if err := conn.WriteJSON(map[string]string{"action": "submit"}); err != nil {
		t.Fatal(err)
	}
	seen = readUntil(t, conn, func(ev streamEvent) bool { return ev.Event == "submitted" })
	view = service.ExamView{}
	if err := json.Unmarshal(seen[len(seen)-1].Data, &view); err != nil {
		t.Fatal(err)
	}
	if view.Report == nil || view.Report.Score != 1 || view.Report.Reason != model.SubmitReasonEarly {
		t.Errorf("report = %+v", view.Report)
	}
}

func TestExamStreamTimeoutSendsNoticeThenSubmitted(t *testing.T) {
	f := newStreamFixture(t)
	conn := f.dial(t, NewWSHandler(f.flow, logger.Nop(), nil))
	readEvent(t, conn)

	f.clock.Advance(13 * time.Minute)

	seen := readUntil(t, conn, func(ev streamEvent) bool { return ev.Event == "submitted" })
	if len(seen) < 2 {
		t.Fatalf("events = %+v, want a notice before submitted", seen)
	}
	notice := seen[len(seen)-2]
	var data struct {
		Message string `json:"message"`
	}
	if notice.Event != "notice" || json.Unmarshal(notice.Data, &data) != nil || !strings.HasPrefix(data.Message, "TIME EXPIRED") {
		t.Errorf("event before submitted = %s %s", notice.Event, notice.Data)
	}

	rows, err := f.ledger.ReadAll(context.Background())
	if err != nil || len(rows) != 1 || rows[0].Score != "0/10" {
		t.Errorf("ledger = %+v, %v", rows, err)
	}
}

func TestResultsStreamDeliversSubmission(t *testing.T) {
	f := newStreamFixture(t)

	engine := gin.New()
	engine.GET("/results/stream", NewMonitorHandler(f.feed, logger.Nop()).ResultsStreamSSE)
	srv := httptest.NewServer(engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/results/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	nextEvent := func() (string, string) {
		t.Helper()
		var event, data string
		for lines.Scan() {
			line := lines.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && event != "":
				return event, data
			}
		}
		t.Fatalf("stream ended: %v", lines.Err())
		return "", ""
	}

	if event, _ := nextEvent(); event != "ready" {
		t.Fatalf("first event = %q, want ready", event)
	}

	if _, err := f.flow.SubmitEarly(context.Background(), streamSID); err != nil {
		t.Fatal(err)
	}

	event, data := nextEvent()
	if event != "result" {
		t.Fatalf("event = %q, want result", event)
	}
	var rec model.ResultRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		t.Fatalf("result payload %q: %v", data, err)
	}
	if rec.Roll != "R-17" || rec.Score != "0/10" {
		t.Errorf("result = %+v", rec)
	}
}
