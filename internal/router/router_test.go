package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-rewards/internal/config"
	"github.com/stemsi/exstem-rewards/internal/handler"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/repository/memory"
	"github.com/stemsi/exstem-rewards/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type apiFixture struct {
	db     *memory.DB
	engine *gin.Engine
}

func newAPI(t *testing.T, tick time.Duration) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := zerolog.Nop()
	db := memory.New()
	sessions := service.NewExamSessionService(db.Sessions(), db.Exams(), log)
	participation := service.NewParticipationService(db.Participations(), log)
	results := service.NewResultService(participation, sessions, db.Exams(), db.Scores(), db.Questions(), rdb, log)
	settlement := service.NewSettlementService(db.Exams(), db.Participations(), nil, log)

	handlers := &Handlers{
		Participation: handler.NewParticipationHandler(participation, log),
		Session:       handler.NewSessionHandler(sessions, log),
		Result:        handler.NewResultHandler(results, log),
		Admin:         handler.NewAdminHandler(sessions, settlement, log),
		WS:            handler.NewWSHandler(sessions, tick, log, nil),
	}
	engine := SetupRouter(ctx, service.NewAuthService(testSecret), handlers, &config.Config{GinMode: gin.TestMode})
	return &apiFixture{db: db, engine: engine}
}

func token(t *testing.T, typ service.TokenType, userID int) string {
	t.Helper()
	claims := service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		TokenType:        typ,
		UserID:           userID,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (f *apiFixture) do(t *testing.T, method, path, tok string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func errCode(env envelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func flexible(db *memory.DB) model.Exam {
	exam := model.Exam{
		ID:       uuid.New(),
		Name:     "Flexible",
		Schedule: model.FlexibleSchedule{TimeLimit: 10 * time.Minute, Status: model.FlexibleStatusActive},
		Reward:   model.RewardConfig{RewardPerWinner: decimal.NewFromInt(1), PassingScore: 50},
	}
	db.PutExam(exam)
	return exam
}

func TestHealth(t *testing.T) {
	f := newAPI(t, time.Second)
	code, _ := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestAuth(t *testing.T) {
	f := newAPI(t, time.Second)
	path := "/api/v1/participant/exams/" + uuid.NewString() + "/participation"

	code, env := f.do(t, http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TOKEN_REQUIRED", errCode(env))

	code, env = f.do(t, http.MethodGet, path, "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "TOKEN_INVALID", errCode(env))

	code, env = f.do(t, http.MethodGet, path, token(t, service.TokenTypeOperator, 1), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "PARTICIPANT_ACCESS_ONLY", errCode(env))

	code, env = f.do(t, http.MethodGet, "/api/v1/admin/exams/"+uuid.NewString()+"/sessions/active", token(t, service.TokenTypeParticipant, 1), nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "OPERATOR_ACCESS_ONLY", errCode(env))
}

func TestParticipationRoutes(t *testing.T) {
	f := newAPI(t, time.Second)
	tok := token(t, service.TokenTypeParticipant, 3)
	path := "/api/v1/participant/exams/" + uuid.NewString() + "/participation"

	code, env := f.do(t, http.MethodGet, path, tok, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_PARTICIPATED", errCode(env))

	code, env = f.do(t, http.MethodPost, path, tok, nil)
	assert.Equal(t, http.StatusCreated, code)
	assert.Contains(t, string(env.Data), `"result":"created"`)

	code, env = f.do(t, http.MethodPost, path, tok, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"result":"continue"`)

	code, _ = f.do(t, http.MethodGet, "/api/v1/participant/exams/not-a-uuid/participation", tok, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSessionRoutes(t *testing.T) {
	f := newAPI(t, time.Second)
	exam := flexible(f.db)
	owner := token(t, service.TokenTypeParticipant, 1)
	other := token(t, service.TokenTypeParticipant, 2)

	code, env := f.do(t, http.MethodPost, "/api/v1/participant/exams/"+exam.ID.String()+"/sessions", owner, nil)
	require.Equal(t, http.StatusOK, code)
	var started struct {
		Session model.ExamSession `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.EqualValues(t, 600, started.Session.RemainingSeconds)

	base := "/api/v1/participant/sessions/" + started.Session.ID.String()

	code, env = f.do(t, http.MethodPatch, base+"/remaining", owner, map[string]int64{"remaining_seconds": 100})
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"remaining_seconds":100`)

	code, env = f.do(t, http.MethodPatch, base+"/remaining", owner, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", errCode(env))

	code, env = f.do(t, http.MethodPatch, base+"/remaining", other, map[string]int64{"remaining_seconds": 50})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "NOT_SESSION_OWNER", errCode(env))

	code, _ = f.do(t, http.MethodPost, base+"/complete", owner, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = f.do(t, http.MethodPatch, base+"/remaining", owner, map[string]int64{"remaining_seconds": 50})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "SESSION_COMPLETED", errCode(env))

	code, env = f.do(t, http.MethodPost, "/api/v1/participant/sessions/"+uuid.NewString()+"/complete", owner, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", errCode(env))
}

func TestStartSession_UnavailableExam(t *testing.T) {
	f := newAPI(t, time.Second)
	exam := flexible(f.db)
	exam.Schedule = model.FlexibleSchedule{TimeLimit: time.Minute, Status: model.FlexibleStatusPassive}
	f.db.PutExam(exam)

	code, env := f.do(t, http.MethodPost, "/api/v1/participant/exams/"+exam.ID.String()+"/sessions", token(t, service.TokenTypeParticipant, 1), nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "EXAM_NOT_AVAILABLE", errCode(env))
}

func TestSubmitRoute(t *testing.T) {
	f := newAPI(t, time.Second)
	exam := flexible(f.db)
	f.db.PutAnswerKey(exam.ID, []model.AnswerKeyEntry{
		{QuestionID: "q1", CorrectAnswer: "A"},
		{QuestionID: "q2", CorrectAnswer: "B"},
	})
	tok := token(t, service.TokenTypeParticipant, 1)
	examPath := "/api/v1/participant/exams/" + exam.ID.String()

	code, env := f.do(t, http.MethodPost, examPath+"/submit", tok, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", errCode(env))

	answers := map[string]any{"answers": []map[string]any{
		{"question_id": "q1", "answer": "A"},
		{"question_id": "q2", "answer": "C"},
	}}

	code, env = f.do(t, http.MethodPost, examPath+"/submit", tok, answers)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", errCode(env))

	code, _ = f.do(t, http.MethodPost, examPath+"/participation", tok, nil)
	require.Equal(t, http.StatusCreated, code)

	code, env = f.do(t, http.MethodPost, examPath+"/submit", tok, answers)
	require.Equal(t, http.StatusOK, code)
	var body struct {
		Score model.Score `json:"score"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 1, body.Score.CorrectCount)
	assert.InDelta(t, 50.0, body.Score.Score, 0.001)
	assert.True(t, body.Score.IsWinner)

	code, env = f.do(t, http.MethodPost, examPath+"/submit", tok, answers)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_STATE", errCode(env))
}

func TestAdminRoutes(t *testing.T) {
	f := newAPI(t, time.Second)
	exam := flexible(f.db)
	op := token(t, service.TokenTypeOperator, 99)

	for uid := 1; uid <= 2; uid++ {
		code, _ := f.do(t, http.MethodPost, "/api/v1/participant/exams/"+exam.ID.String()+"/sessions", token(t, service.TokenTypeParticipant, uid), nil)
		require.Equal(t, http.StatusOK, code)
	}

	code, env := f.do(t, http.MethodGet, "/api/v1/admin/exams/"+exam.ID.String()+"/sessions/active", op, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"count":2`)

	code, env = f.do(t, http.MethodGet, "/api/v1/admin/exams/"+uuid.NewString()+"/sessions/active", op, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"count":0`)

	// Not completed yet.
	code, env = f.do(t, http.MethodPost, "/api/v1/admin/exams/"+exam.ID.String()+"/settle", op, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_STATE", errCode(env))
}

func dialStream(t *testing.T, f *apiFixture, sessionID uuid.UUID, userID int) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.engine)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws/v1/participant/sessions/" + sessionID.String() + "/stream?token=" + token(t, service.TokenTypeParticipant, userID)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSessionStream_CountsDownToCompletion(t *testing.T) {
	f := newAPI(t, 20*time.Millisecond)
	exam := flexible(f.db)
	sess := f.db.PutSession(model.ExamSession{ExamID: exam.ID, UserID: 1, StartTime: time.Now(), RemainingSeconds: 2})

	conn := dialStream(t, f, sess.ID, 1)

	tick := readEvent(t, conn)
	assert.Equal(t, "tick", tick["event"])
	assert.EqualValues(t, 1, tick["remaining_seconds"])

	done := readEvent(t, conn)
	assert.Equal(t, "completed", done["event"])

	stored, _ := f.db.Session(sess.ID)
	assert.True(t, stored.IsCompleted)
	assert.EqualValues(t, 0, stored.RemainingSeconds)
}

func TestSessionStream_PingAndFinish(t *testing.T) {
	f := newAPI(t, time.Hour)
	exam := flexible(f.db)
	sess := f.db.PutSession(model.ExamSession{ExamID: exam.ID, UserID: 1, StartTime: time.Now(), RemainingSeconds: 300})

	conn := dialStream(t, f, sess.ID, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	assert.Equal(t, "pong", readEvent(t, conn)["event"])

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "finish"}))
	assert.Equal(t, "completed", readEvent(t, conn)["event"])

	stored, _ := f.db.Session(sess.ID)
	assert.True(t, stored.IsCompleted)
	assert.EqualValues(t, 300, stored.RemainingSeconds)
}

func TestSessionStream_RejectsForeignSession(t *testing.T) {
	f := newAPI(t, time.Hour)
	exam := flexible(f.db)
	sess := f.db.PutSession(model.ExamSession{ExamID: exam.ID, UserID: 1, StartTime: time.Now(), RemainingSeconds: 300})

	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/ws/v1/participant/sessions/" + sess.ID.String() + "/stream?token=" + token(t, service.TokenTypeParticipant, 2)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
