package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/alejzeis/rps-arena/common"
	"github.com/alejzeis/rps-arena/config"
	"github.com/alejzeis/rps-arena/game/rps"
	"github.com/alejzeis/rps-arena/record"
)

const testSecret = "rest-test-secret"

func TestVerifyToken(t *testing.T) {
	user := uuid.New()

	token, err := IssueToken([]byte(testSecret), user, "alice", time.Minute)
	require.NoError(t, err)

	claims, err := verifyToken([]byte(testSecret), token)
	require.NoError(t, err)
	assert.Equal(t, user.String(), claims.Subject)
	assert.Equal(t, "alice", claims.Name)

	_, err = verifyToken([]byte("another secret"), token)
	assert.Error(t, err)

	expired, err := IssueToken([]byte(testSecret), user, "alice", -time.Minute)
	require.NoError(t, err)
	_, err = verifyToken([]byte(testSecret), expired)
	assert.Error(t, err)

	nameless, err := IssueToken([]byte(testSecret), user, " ", time.Minute)
	require.NoError(t, err)
	_, err = verifyToken([]byte(testSecret), nameless)
	assert.Error(t, err)

	_, err = verifyToken([]byte(testSecret), "garbage")
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws?token=from-query", nil)
	token, err := tokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "from-query", token)

	r.Header.Set("Authorization", "Bearer from-header")
	token, err = tokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "from-header", token)

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	_, err = tokenFromRequest(r)
	assert.Error(t, err)

	_, err = tokenFromRequest(httptest.NewRequest("GET", "/ws", nil))
	assert.Error(t, err)
}

func TestRestServer(t *testing.T) {
	suite.Run(t, new(RestServerTestSuite))
}

type RestServerTestSuite struct {
	suite.Suite

	srv      *Server
	server   *httptest.Server
	recorder *record.SQLiteRecorder
}

func (ts *RestServerTestSuite) SetupTest() {
	recorder, err := record.OpenSQLite(filepath.Join(ts.T().TempDir(), "results.db"))
	ts.Require().NoError(err)
	ts.recorder = recorder

	ts.srv = NewServer(&config.Config{
		Secret:          testSecret,
		SessionMaxAge:   time.Minute,
		SweepInterval:   time.Second,
		RecorderTimeout: time.Second,
	}, rps.Rules{}, recorder)
	ts.server = httptest.NewServer(ts.srv.Router())
}

func (ts *RestServerTestSuite) TearDownTest() {
	ts.server.Close()
	ts.NoError(ts.srv.Shutdown(context.Background()))
}

func (ts *RestServerTestSuite) dial(user uuid.UUID, name string) common.MessageConnection {
	token, err := IssueToken([]byte(testSecret), user, name, time.Minute)
	ts.Require().NoError(err)

	provider := &common.WebsocketConnectionProvider{
		Header: http.Header{"Authorization": {"Bearer " + token}},
	}
	conn, err := provider.DialForConnection("ws" + strings.TrimPrefix(ts.server.URL, "http") + "/ws")
	ts.Require().NoError(err)

	// The connection registers before reading, so a reply means it is reachable
	ts.send(conn, common.ClientMsg{Type: common.ClientStats})
	ts.Require().Equal(common.ServerStats, ts.read(conn).Type)
	return conn
}

func (ts *RestServerTestSuite) send(conn common.MessageConnection, msg common.ClientMsg) {
	data, err := json.Marshal(msg)
	ts.Require().NoError(err)
	ts.Require().NoError(conn.WriteMessage(data))
}

func (ts *RestServerTestSuite) read(conn common.MessageConnection) common.ServerMsg {
	type result struct {
		data []byte
		err  error
	}
	results := make(chan result, 1)
	go func() {
		data, err := conn.ReadMessage()
		results <- result{data, err}
	}()

	select {
	case res := <-results:
		ts.Require().NoError(res.err)
		var msg common.ServerMsg
		ts.Require().NoError(json.Unmarshal(res.data, &msg))
		return msg
	case <-time.After(5 * time.Second):
		ts.Require().FailNow("timed out waiting for a server message")
	}
	return common.ServerMsg{}
}

func (ts *RestServerTestSuite) get(path string) (int, []byte) {
	resp, err := http.Get(ts.server.URL + path)
	ts.Require().NoError(err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	ts.Require().NoError(err)
	return resp.StatusCode, body
}

func (ts *RestServerTestSuite) TestInfo() {
	status, body := ts.get("/info")
	ts.Equal(http.StatusOK, status)

	var info common.InfoResponse
	ts.Require().NoError(json.Unmarshal(body, &info))
	ts.Equal(common.SoftwareName, info.Software)
	ts.Equal(common.APIVersion, info.API)
}

func (ts *RestServerTestSuite) TestWebsocketAuth() {
	status, _ := ts.get("/ws")
	ts.Equal(http.StatusUnauthorized, status)

	status, _ = ts.get("/ws?token=garbage")
	ts.Equal(http.StatusForbidden, status)

	t := jwt.NewWithClaims(jwt.SigningMethodHS384, Claims{
		Name: "bob",
		StandardClaims: jwt.StandardClaims{
			Subject:   "bob",
			ExpiresAt: time.Now().Add(time.Minute).Unix(),
		},
	})
	token, err := t.SignedString([]byte(testSecret))
	ts.Require().NoError(err)

	status, _ = ts.get("/ws?token=" + token)
	ts.Equal(http.StatusBadRequest, status)
}

func (ts *RestServerTestSuite) TestPlayFullGame() {
	alice, bob := uuid.New(), uuid.New()
	aliceConn := ts.dial(alice, "alice")
	defer aliceConn.Close()
	bobConn := ts.dial(bob, "bob")
	defer bobConn.Close()

	ts.send(aliceConn, common.ClientMsg{Type: common.ClientJoin})
	ts.Equal(common.ServerWaiting, ts.read(aliceConn).Type)

	ts.send(bobConn, common.ClientMsg{Type: common.ClientJoin})
	matched := ts.read(bobConn)
	ts.Equal(common.ServerMatched, matched.Type)
	ts.Equal("alice", matched.Opponent)
	ts.Equal("bob", ts.read(aliceConn).Opponent)

	status, body := ts.get("/stats")
	ts.Equal(http.StatusOK, status)
	ts.JSONEq(`{"online":2,"waiting":0,"sessions":1}`, string(body))

	ts.send(aliceConn, common.ClientMsg{Type: common.ClientSubmit, Move: "rock"})
	ts.Equal([]bool{true, false}, ts.read(aliceConn).Submitted)
	ts.Equal([]bool{false, true}, ts.read(bobConn).Submitted)

	ts.send(bobConn, common.ClientMsg{Type: common.ClientSubmit, Move: "scissors"})
	finished := ts.read(aliceConn)
	ts.Equal(common.ServerFinished, finished.Type)
	ts.Equal("win", finished.Outcome)
	ts.Equal([]string{"rock", "scissors"}, finished.Moves)
	ts.Equal("defeat", ts.read(bobConn).Outcome)

	status, body = ts.get("/results/" + alice.String())
	ts.Equal(http.StatusOK, status)
	var tally common.TallyResponse
	ts.Require().NoError(json.Unmarshal(body, &tally))
	ts.Equal(int64(1), tally.Wins)
	ts.Equal(int64(0), tally.Losses)

	status, _ = ts.get("/results/not-a-uuid")
	ts.Equal(http.StatusBadRequest, status)
}

func (ts *RestServerTestSuite) TestBadInputKeepsConnectionOpen() {
	alice := uuid.New()
	conn := ts.dial(alice, "alice")
	defer conn.Close()

	ts.Require().NoError(conn.WriteMessage([]byte("not json")))
	msg := ts.read(conn)
	ts.Equal(common.ServerError, msg.Type)
	ts.Require().NotNil(msg.Error)
	ts.Equal(common.InvalidMove, *msg.Error)

	ts.send(conn, common.ClientMsg{Type: common.ClientSubmit, Move: "lizard"})
	ts.Equal(common.InvalidMove, *ts.read(conn).Error)

	ts.send(conn, common.ClientMsg{Type: common.ClientSubmit, Move: "rock"})
	ts.Equal(common.NotFound, *ts.read(conn).Error)

	ts.send(conn, common.ClientMsg{Type: common.ClientStats})
	stats := ts.read(conn)
	ts.Equal(common.ServerStats, stats.Type)
	ts.Require().NotNil(stats.Online)
	ts.Equal(1, *stats.Online)
}

func (ts *RestServerTestSuite) TestClosingLastConnectionLeaves() {
	alice, bob := uuid.New(), uuid.New()
	aliceTab1 := ts.dial(alice, "alice")
	aliceTab2 := ts.dial(alice, "alice")
	bobConn := ts.dial(bob, "bob")
	defer bobConn.Close()

	ts.send(aliceTab1, common.ClientMsg{Type: common.ClientJoin})
	ts.Equal(common.ServerWaiting, ts.read(aliceTab1).Type)
	ts.Equal(common.ServerWaiting, ts.read(aliceTab2).Type)

	ts.send(bobConn, common.ClientMsg{Type: common.ClientJoin})
	ts.Equal(common.ServerMatched, ts.read(bobConn).Type)

	// One tab closing keeps the game alive
	ts.Require().NoError(aliceTab1.Close())
	ts.Equal(common.ServerMatched, ts.read(aliceTab2).Type)
	ts.send(aliceTab2, common.ClientMsg{Type: common.ClientSubmit, Move: "paper"})
	ts.Equal(common.ServerGame, ts.read(aliceTab2).Type)
	ts.Equal(common.ServerGame, ts.read(bobConn).Type)

	ts.Require().NoError(aliceTab2.Close())
	msg := ts.read(bobConn)
	ts.Equal(common.ServerError, msg.Type)
	ts.Require().NotNil(msg.Error)
	ts.Equal(common.Disconnected, *msg.Error)

	ts.Eventually(func() bool {
		return ts.srv.store.Len() == 0 && ts.srv.registry.Online() == 1
	}, 5*time.Second, 10*time.Millisecond)
}
