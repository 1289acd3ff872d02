package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/victornm/examprep/internal/api"
	"github.com/victornm/examprep/internal/attempt"
	"github.com/victornm/examprep/internal/auth"
	"github.com/victornm/examprep/internal/domain"
	"github.com/victornm/examprep/internal/errors"
	"github.com/victornm/examprep/internal/event"
	"github.com/victornm/examprep/internal/store/sqlite"
)

type fixture struct {
	engine   *gin.Engine
	client   *api.AttemptClient
	verifier *auth.Verifier
	redis    *redis.Client
}

func question(id string, number int) domain.Question {
	return domain.Question{
		QuestionID: id,
		Number:     number,
		Prompt:     "prompt " + id,
		Value:      decimal.NewFromInt(1),
		Candidates: []domain.Candidate{
			{Letter: "A", Text: "right", Correct: true},
			{Letter: "B", Text: "wrong"},
		},
	}
}

func makeAPI(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	s, err := sqlite.Open(ctx, sqlite.Config{DSN: sqlite.MemoryDSN(), MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.PutStudent(ctx, domain.Student{StudentID: "st1", Name: "Lan"}))
	require.NoError(t, s.PutStudent(ctx, domain.Student{StudentID: "st2", Name: "Minh"}))
	require.NoError(t, s.PutQuiz(ctx, domain.Quiz{QuizID: "qz1", AssessmentID: "as1", Title: "Algebra", Active: true}))
	require.NoError(t, s.PutQuestion(ctx, "as1", question("q1", 1)))
	require.NoError(t, s.PutQuestion(ctx, "as1", question("q2", 2)))

	mr := miniredis.RunT(t)
	r := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = r.Close() })

	eb := event.NewBus()
	t.Cleanup(eb.Stop)

	v := auth.NewVerifier(auth.Config{Secret: "s3cret"})

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(auth.UnaryServerInterceptor(v)))
	t.Cleanup(gs.Stop)

	a := api.New(api.Config{
		Attempts: attempt.NewService(attempt.Config{
			Bank:     s,
			Roster:   s,
			Attempts: s,
			Answers:  s,
			EventBus: eb,
		}),
		GRPC:         gs,
		EventBus:     eb,
		Redis:        r,
		PubsubPrefix: "examprep",
	})

	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	e := gin.New()
	a.RegisterRoutes(e, s, auth.GinMiddleware(v))

	return fixture{
		engine:   e,
		client:   api.NewAttemptClient(conn),
		verifier: v,
		redis:    r,
	}
}

func (f fixture) token(t *testing.T, studentID string) string {
	t.Helper()

	tok, err := f.verifier.Issue(studentID, time.Hour)
	require.NoError(t, err)

	return tok
}

func (f fixture) do(t *testing.T, studentID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var b bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&b).Encode(body))
	}

	req := httptest.NewRequest(method, path, &b)
	req.Header.Set("Content-Type", "application/json")
	if studentID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, studentID))
	}

	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)

	return w
}

func (f fixture) as(t *testing.T, studentID string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+f.token(t, studentID))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))

	return v
}

func TestHTTP_AttemptLifecycle(t *testing.T) {
	f := makeAPI(t)

	w := f.do(t, "st1", http.MethodPost, "/v1/attempts", api.StartRequest{QuizID: "qz1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode[api.AttemptView](t, w)
	assert.Equal(t, "st1", view.Attempt.StudentID)
	assert.Equal(t, "open", view.Attempt.State)
	assert.Len(t, view.Questions, 2)
	assert.NotContains(t, w.Body.String(), "correct\":true")

	w = f.do(t, "st1", http.MethodPost, "/v1/attempts", api.StartRequest{QuizID: "qz1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[api.AttemptView](t, w).Resumed)

	id := view.Attempt.AttemptID
	w = f.do(t, "st1", http.MethodPost, "/v1/attempts/"+id+"/answers", api.SubmitAnswerRequest{QuestionID: "q1", Letter: "a"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[api.AnswerResult](t, w)
	assert.True(t, res.Correct)
	assert.Equal(t, "A", res.Answer.Letter)
	assert.Equal(t, 1, res.Progress.Answered)

	w = f.do(t, "st1", http.MethodPost, "/v1/attempts/"+id+"/answers", api.SubmitAnswerRequest{QuestionID: "q1", Letter: "B"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, domain.ReasonDuplicateAnswer, decode[errors.Error](t, w).Reason)

	w = f.do(t, "st1", http.MethodGet, "/v1/attempts/"+id+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	progress := decode[api.ProgressView](t, w)
	assert.False(t, progress.Finished)
	require.Len(t, progress.Pending, 1)
	assert.Equal(t, "q2", progress.Pending[0].QuestionID)

	w = f.do(t, "st1", http.MethodGet, "/v1/attempts/"+id+"/result", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, "st1", http.MethodPost, "/v1/attempts/"+id+"/finalize", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	final := decode[api.FinalResult](t, w)
	assert.Equal(t, "finalized", final.Attempt.State)
	assert.True(t, decimal.NewFromInt(50).Equal(final.Aggregates.PercentCorrect))
	require.Len(t, final.Unanswered, 1)
	assert.Equal(t, "q2", final.Unanswered[0].QuestionID)

	w = f.do(t, "st1", http.MethodGet, "/v1/attempts/"+id+"/result", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[api.DetailedResult](t, w)
	require.Len(t, result.Items, 2)
	assert.True(t, result.Items[0].Answered)
	assert.False(t, result.Items[1].Answered)

	w = f.do(t, "st1", http.MethodGet, "/v1/attempts", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[api.ListAttemptsResponse](t, w).Attempts, 1)
}

func TestHTTP_Errors(t *testing.T) {
	f := makeAPI(t)

	w := f.do(t, "st1", http.MethodPost, "/v1/attempts", api.StartRequest{QuizID: "qz1"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode[api.AttemptView](t, w).Attempt.AttemptID

	tests := map[string]struct {
		studentID string
		method    string
		path      string
		body      any
		wantCode  int
	}{
		"missing token": {
			method:   http.MethodGet,
			path:     "/v1/attempts",
			wantCode: http.StatusUnauthorized,
		},
		"acting for another student": {
			studentID: "st1",
			method:    http.MethodPost,
			path:      "/v1/attempts",
			body:      api.StartRequest{StudentID: "st2", QuizID: "qz1"},
			wantCode:  http.StatusForbidden,
		},
		"another student's attempt": {
			studentID: "st2",
			method:    http.MethodGet,
			path:      "/v1/attempts/" + id + "/progress",
			wantCode:  http.StatusNotFound,
		},
		"unknown quiz": {
			studentID: "st1",
			method:    http.MethodPost,
			path:      "/v1/attempts",
			body:      api.StartRequest{QuizID: "nope"},
			wantCode:  http.StatusNotFound,
		},
		"malformed body": {
			studentID: "st1",
			method:    http.MethodPost,
			path:      "/v1/attempts/" + id + "/answers",
			body:      "not an object",
			wantCode:  http.StatusBadRequest,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := f.do(t, tt.studentID, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestHTTP_Healthz(t *testing.T) {
	f := makeAPI(t)

	w := f.do(t, "", http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGRPC_AttemptLifecycle(t *testing.T) {
	f := makeAPI(t)
	ctx := f.as(t, "st2")

	view, err := f.client.Start(ctx, &api.StartRequest{QuizID: "qz1"})
	require.NoError(t, err)
	assert.Equal(t, "st2", view.Attempt.StudentID)

	res, err := f.client.SubmitAnswer(ctx, &api.SubmitAnswerRequest{
		AttemptID:  view.Attempt.AttemptID,
		QuestionID: "q2",
		Letter:     "B",
	})
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, "A", res.CorrectCandidate.Letter)

	_, err = f.client.SubmitAnswer(ctx, &api.SubmitAnswerRequest{
		AttemptID:  view.Attempt.AttemptID,
		QuestionID: "q2",
		Letter:     "A",
	})
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	assert.Equal(t, domain.ReasonDuplicateAnswer, errors.FromGRPC(err).Reason)

	_, err = f.client.GetInProgress(f.as(t, "st1"), &api.AttemptRequest{AttemptID: view.Attempt.AttemptID})
	assert.Equal(t, codes.NotFound, status.Code(err))

	final, err := f.client.Finalize(ctx, &api.AttemptRequest{AttemptID: view.Attempt.AttemptID})
	require.NoError(t, err)
	assert.Equal(t, 1, final.Aggregates.Answered)
	assert.Equal(t, 0, final.Aggregates.Correct)

	_, err = f.client.Finalize(ctx, &api.AttemptRequest{AttemptID: view.Attempt.AttemptID})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	progress, err := f.client.GetInProgress(ctx, &api.AttemptRequest{AttemptID: view.Attempt.AttemptID})
	require.NoError(t, err)
	assert.True(t, progress.Finished)
	assert.Nil(t, progress.Progress)

	list, err := f.client.ListAttempts(ctx, &api.ListAttemptsRequest{QuizID: "qz1"})
	require.NoError(t, err)
	require.Len(t, list.Attempts, 1)
	assert.Equal(t, "finalized", list.Attempts[0].State)
}

func TestGRPC_Unauthenticated(t *testing.T) {
	f := makeAPI(t)

	_, err := f.client.Start(context.Background(), &api.StartRequest{StudentID: "st1", QuizID: "qz1"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestPubsub_Notifications(t *testing.T) {
	f := makeAPI(t)
	ctx := context.Background()

	sub := f.redis.Subscribe(ctx, api.StudentChannel("examprep", "st1"), api.QuizChannel("examprep", "qz1"))
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	_, err = sub.Receive(ctx)
	require.NoError(t, err)
	msgs := sub.Channel()

	view, err := f.client.Start(f.as(t, "st1"), &api.StartRequest{QuizID: "qz1"})
	require.NoError(t, err)
	_, err = f.client.SubmitAnswer(f.as(t, "st1"), &api.SubmitAnswerRequest{
		AttemptID:  view.Attempt.AttemptID,
		QuestionID: "q1",
		Letter:     "A",
	})
	require.NoError(t, err)

	next := func() (string, api.Notification) {
		t.Helper()

		select {
		case m := <-msgs:
			var n api.Notification
			require.NoError(t, json.Unmarshal([]byte(m.Payload), &n))
			return m.Channel, n
		case <-time.After(2 * time.Second):
			require.FailNow(t, "no notification received")
			return "", api.Notification{}
		}
	}

	ch, n := next()
	assert.Equal(t, "examprep:student:st1", ch)
	assert.Equal(t, domain.EventNameAnswerSubmitted, n.Event)

	_, err = f.client.Finalize(f.as(t, "st1"), &api.AttemptRequest{AttemptID: view.Attempt.AttemptID})
	require.NoError(t, err)

	got := map[string]string{}
	for range 2 {
		ch, n := next()
		got[ch] = n.Event
	}

	assert.Equal(t, map[string]string{
		"examprep:student:st1": domain.EventNameAttemptFinalized,
		"examprep:quiz:qz1":    domain.EventNameAttemptFinalized,
	}, got)
}
