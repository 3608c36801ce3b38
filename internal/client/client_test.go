package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xwordlive/xword/internal/puzzle"
	"github.com/xwordlive/xword/internal/session"
	"github.com/xwordlive/xword/internal/ws"
)

func startRelay(t *testing.T) string {
	t.Helper()

	hub := ws.NewHub()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testPuzzle(t *testing.T) *puzzle.Compiled {
	t.Helper()

	p := &puzzle.Puzzle{
		ID:    "mini",
		Title: "Test Mini",
		Squares: [][]int{
			{0, 0, 1},
			{0, 1, 0},
			{1, 0, 0},
		},
		Across: []puzzle.Clue{
			{Number: 1, Clue: "First across"},
			{Number: 3, Clue: "Second across"},
			{Number: 4, Clue: "Third across"},
			{Number: 5, Clue: "Fourth across"},
		},
		Down: []puzzle.Clue{
			{Number: 1, Clue: "First down"},
			{Number: 2, Clue: "Second down"},
			{Number: 4, Clue: "Third down"},
			{Number: 5, Clue: "Fourth down"},
		},
	}
	c, err := puzzle.Compile(p)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return c
}

func dialTest(t *testing.T, url, name, color string, source Source) *Client {
	t.Helper()

	c, err := Dial(context.Background(), url, name, color, source)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool, desc string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestDialWelcome(t *testing.T) {
	url := startRelay(t)
	c := dialTest(t, url, "alice", "#FF0000", StaticSource{})

	if c.ID() == "" {
		t.Error("expected an assigned id")
	}
	if c.Session() != nil {
		t.Error("expected no session before joining a room")
	}
}

func TestInputWithoutRoom(t *testing.T) {
	url := startRelay(t)
	c := dialTest(t, url, "alice", "#FF0000", StaticSource{})

	if err := c.Click(0, 0); err != ErrNoRoom {
		t.Fatalf("expected ErrNoRoom, got %v", err)
	}
}

func TestCreateAndJoin(t *testing.T) {
	url := startRelay(t)
	puz := testPuzzle(t)
	source := StaticSource{"mini": puz}
	ctx := context.Background()

	alice := dialTest(t, url, "alice", "#FF0000", source)
	if err := alice.CreateRoom(ctx, "ROOM1", puz); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if alice.RoomCode() != "ROOM1" || alice.Session() == nil {
		t.Fatal("creator has no live session")
	}

	bob := dialTest(t, url, "bob", "#0000FF", source)
	if err := bob.JoinRoom(ctx, "ROOM1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	if bob.RoomCode() != "ROOM1" || bob.Session() == nil {
		t.Fatal("joiner has no live session")
	}
}

func TestCreateDuplicateRoom(t *testing.T) {
	url := startRelay(t)
	puz := testPuzzle(t)
	source := StaticSource{"mini": puz}
	ctx := context.Background()

	alice := dialTest(t, url, "alice", "#FF0000", source)
	if err := alice.CreateRoom(ctx, "ROOM1", puz); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	bob := dialTest(t, url, "bob", "#0000FF", source)
	if err := bob.CreateRoom(ctx, "ROOM1", puz); err == nil {
		t.Fatal("expected duplicate room code to fail")
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	url := startRelay(t)

	c := dialTest(t, url, "alice", "#FF0000", StaticSource{})
	if err := c.JoinRoom(context.Background(), "NOPE"); err == nil {
		t.Fatal("expected join of unknown room to fail")
	}
}

func TestLateJoinerReconciles(t *testing.T) {
	url := startRelay(t)
	puz := testPuzzle(t)
	source := StaticSource{"mini": puz}
	ctx := context.Background()

	alice := dialTest(t, url, "alice", "#FF0000", source)
	if err := alice.CreateRoom(ctx, "ROOM1", puz); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	// Alice makes progress before anyone else arrives.
	if err := alice.Click(0, 0); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := alice.Type('a'); err != nil {
		t.Fatalf("Type: %v", err)
	}

	bob := dialTest(t, url, "bob", "#0000FF", source)
	if err := bob.JoinRoom(ctx, "ROOM1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	waitFor(t, func() bool {
		return bob.Session().Values()[0][0] == "A"
	}, "board snapshot from reconciliation")

	// Alice's selection advanced to (0,1) after typing; the status
	// payload carries it along with her color.
	waitFor(t, func() bool {
		return bob.Session().CellColor(0, 1) == "#FF0000"
	}, "peer selection from reconciliation")
}

func TestValueRelay(t *testing.T) {
	url := startRelay(t)
	puz := testPuzzle(t)
	source := StaticSource{"mini": puz}
	ctx := context.Background()

	alice := dialTest(t, url, "alice", "#FF0000", source)
	if err := alice.CreateRoom(ctx, "ROOM1", puz); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	bob := dialTest(t, url, "bob", "#0000FF", source)
	if err := bob.JoinRoom(ctx, "ROOM1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	if err := alice.Click(1, 2); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := alice.Type('q'); err != nil {
		t.Fatalf("Type: %v", err)
	}
	waitFor(t, func() bool {
		return bob.Session().Values()[1][2] == "Q"
	}, "alice's letter on bob's board")

	if err := bob.Click(2, 1); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := bob.Type('z'); err != nil {
		t.Fatalf("Type: %v", err)
	}
	waitFor(t, func() bool {
		return alice.Session().Values()[2][1] == "Z"
	}, "bob's letter on alice's board")
}

func TestSelectionRelay(t *testing.T) {
	url := startRelay(t)
	puz := testPuzzle(t)
	source := StaticSource{"mini": puz}
	ctx := context.Background()

	alice := dialTest(t, url, "alice", "#FF0000", source)
	if err := alice.CreateRoom(ctx, "ROOM1", puz); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	bob := dialTest(t, url, "bob", "#0000FF", source)
	if err := bob.JoinRoom(ctx, "ROOM1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	if err := bob.Click(2, 2); err != nil {
		t.Fatalf("Click: %v", err)
	}
	waitFor(t, func() bool {
		return alice.Session().CellColor(2, 2) == "#0000FF"
	}, "bob's selection on alice's board")
}

func TestPeerLeftClearsMask(t *testing.T) {
	url := startRelay(t)
	puz := testPuzzle(t)
	source := StaticSource{"mini": puz}
	ctx := context.Background()

	alice := dialTest(t, url, "alice", "#FF0000", source)
	if err := alice.CreateRoom(ctx, "ROOM1", puz); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	bob := dialTest(t, url, "bob", "#0000FF", source)
	if err := bob.JoinRoom(ctx, "ROOM1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	if err := bob.Click(2, 2); err != nil {
		t.Fatalf("Click: %v", err)
	}
	waitFor(t, func() bool {
		return alice.Session().CellColor(2, 2) == "#0000FF"
	}, "bob's selection visible")

	bob.Close()
	waitFor(t, func() bool {
		return alice.Session().CellColor(2, 2) == session.DefaultColor
	}, "bob's mask cleared after leaving")
}

// TestThreePartyJoin has two members answer a late joiner's status
// request; the joiner applies exactly one payload and still converges.
func TestThreePartyJoin(t *testing.T) {
	url := startRelay(t)
	puz := testPuzzle(t)
	source := StaticSource{"mini": puz}
	ctx := context.Background()

	alice := dialTest(t, url, "alice", "#FF0000", source)
	if err := alice.CreateRoom(ctx, "ROOM1", puz); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := alice.Click(0, 0); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := alice.Type('a'); err != nil {
		t.Fatalf("Type: %v", err)
	}

	bob := dialTest(t, url, "bob", "#0000FF", source)
	if err := bob.JoinRoom(ctx, "ROOM1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	waitFor(t, func() bool {
		return bob.Session().Values()[0][0] == "A"
	}, "bob's reconciliation")

	carol := dialTest(t, url, "carol", "#00FF00", source)
	if err := carol.JoinRoom(ctx, "ROOM1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	waitFor(t, func() bool {
		return carol.Session().Values()[0][0] == "A"
	}, "carol's reconciliation")

	// Both responders' boards agree, so whichever reply landed first,
	// carol must match them exactly.
	if carol.Session().Values()[0][1] != "" {
		t.Errorf("carol's board diverged: %v", carol.Session().Values())
	}

	if err := bob.Click(2, 2); err != nil {
		t.Fatalf("Click: %v", err)
	}
	waitFor(t, func() bool {
		return carol.Session().CellColor(2, 2) == "#0000FF"
	}, "bob's selection on carol's board")
}

func TestArrowMovesRelay(t *testing.T) {
	url := startRelay(t)
	puz := testPuzzle(t)
	source := StaticSource{"mini": puz}
	ctx := context.Background()

	alice := dialTest(t, url, "alice", "#FF0000", source)
	if err := alice.CreateRoom(ctx, "ROOM1", puz); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	bob := dialTest(t, url, "bob", "#0000FF", source)
	if err := bob.JoinRoom(ctx, "ROOM1"); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}

	if err := alice.Click(0, 0); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := alice.MoveArrow(session.ArrowDown); err != nil {
		t.Fatalf("MoveArrow: %v", err)
	}
	waitFor(t, func() bool {
		return bob.Session().CellColor(1, 0) == "#FF0000"
	}, "alice's arrow move on bob's board")
}
